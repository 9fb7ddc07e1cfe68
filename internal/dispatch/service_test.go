package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

type fakeRepository struct {
	technicians map[uuid.UUID]*models.Actor
	jobs        map[uuid.UUID]*models.ServiceRequest

	nearby []models.ServiceRequest
	recent []models.ServiceRequest

	nearbyIDs []uuid.UUID
	allIDs    []uuid.UUID

	lastRadiusKM        float64
	lastDefaultRadiusKM float64
}

func (f *fakeRepository) FindTechnician(_ context.Context, id uuid.UUID) (*models.Actor, error) {
	return f.technicians[id], nil
}

func (f *fakeRepository) FindJob(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	return f.jobs[id], nil
}

func (f *fakeRepository) BroadcastsWithinRadius(_ context.Context, _ types.GeographyPoint, radiusKM float64, _ int) ([]models.ServiceRequest, error) {
	f.lastRadiusKM = radiusKM
	return f.nearby, nil
}

func (f *fakeRepository) RecentBroadcasts(_ context.Context, _ int) ([]models.ServiceRequest, error) {
	return f.recent, nil
}

func (f *fakeRepository) TechniciansNear(_ context.Context, _ types.GeographyPoint, defaultRadiusKM float64) ([]uuid.UUID, error) {
	f.lastDefaultRadiusKM = defaultRadiusKM
	return f.nearbyIDs, nil
}

func (f *fakeRepository) AllTechnicianIDs(_ context.Context, _ int) ([]uuid.UUID, error) {
	return f.allIDs, nil
}

func newService(t *testing.T, repo *fakeRepository) Service {
	t.Helper()
	svc, err := NewService(repo, config.MarketplaceConfig{
		DefaultRadiusKM:      25,
		RecentBroadcastLimit: 10,
	}, nil, nil)
	require.NoError(t, err)
	return svc
}

func broadcast(id uuid.UUID) models.ServiceRequest {
	return models.ServiceRequest{ID: id, IsBroadcast: true}
}

func TestFeedUnknownTechnician(t *testing.T) {
	repo := &fakeRepository{technicians: map[uuid.UUID]*models.Actor{}}
	svc := newService(t, repo)

	_, err := svc.Feed(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestFeedWithoutLocationFallsBackToRecent(t *testing.T) {
	technicianID := uuid.New()
	recent := []models.ServiceRequest{broadcast(uuid.New()), broadcast(uuid.New())}
	repo := &fakeRepository{
		technicians: map[uuid.UUID]*models.Actor{
			technicianID: {ID: technicianID},
		},
		recent: recent,
	}
	svc := newService(t, repo)

	feed, err := svc.Feed(context.Background(), technicianID)
	require.NoError(t, err)
	assert.Equal(t, recent, feed)
	assert.Zero(t, repo.lastRadiusKM)
}

func TestFeedUsesTechnicianRadiusOverDefault(t *testing.T) {
	technicianID := uuid.New()
	radius := 60.0
	repo := &fakeRepository{
		technicians: map[uuid.UUID]*models.Actor{
			technicianID: {
				ID:               technicianID,
				Location:         &types.GeographyPoint{Lat: 12.97, Lng: 77.59},
				DispatchRadiusKM: &radius,
			},
		},
	}
	svc := newService(t, repo)

	_, err := svc.Feed(context.Background(), technicianID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, repo.lastRadiusKM)
}

func TestFeedDefaultRadiusWhenUnset(t *testing.T) {
	technicianID := uuid.New()
	repo := &fakeRepository{
		technicians: map[uuid.UUID]*models.Actor{
			technicianID: {
				ID:       technicianID,
				Location: &types.GeographyPoint{Lat: 12.97, Lng: 77.59},
			},
		},
	}
	svc := newService(t, repo)

	_, err := svc.Feed(context.Background(), technicianID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, repo.lastRadiusKM)
}

func TestFeedMergesRadiusAndRecentWithoutDuplicates(t *testing.T) {
	technicianID := uuid.New()
	shared := broadcast(uuid.New())
	nearOnly := broadcast(uuid.New())
	recentOnly := broadcast(uuid.New())
	repo := &fakeRepository{
		technicians: map[uuid.UUID]*models.Actor{
			technicianID: {
				ID:       technicianID,
				Location: &types.GeographyPoint{Lat: 12.97, Lng: 77.59},
			},
		},
		nearby: []models.ServiceRequest{nearOnly, shared},
		recent: []models.ServiceRequest{shared, recentOnly},
	}
	svc := newService(t, repo)

	feed, err := svc.Feed(context.Background(), technicianID)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, nearOnly.ID, feed[0].ID)
	assert.Equal(t, shared.ID, feed[1].ID)
	assert.Equal(t, recentOnly.ID, feed[2].ID)
}

func TestEligibleTechniciansUsesJobLocation(t *testing.T) {
	jobID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	repo := &fakeRepository{
		jobs: map[uuid.UUID]*models.ServiceRequest{
			jobID: {ID: jobID, Location: &types.GeographyPoint{Lat: 12.97, Lng: 77.59}},
		},
		nearbyIDs: ids,
	}
	svc := newService(t, repo)

	got, err := svc.EligibleTechnicians(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
	assert.Equal(t, 25.0, repo.lastDefaultRadiusKM)
}

func TestEligibleTechniciansWithoutLocationReachesEveryone(t *testing.T) {
	jobID := uuid.New()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo := &fakeRepository{
		jobs:   map[uuid.UUID]*models.ServiceRequest{jobID: {ID: jobID}},
		allIDs: ids,
	}
	svc := newService(t, repo)

	got, err := svc.EligibleTechnicians(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
}
