package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/metrics"
)

// feedLimit caps the radius portion of a technician's broadcast feed.
const feedLimit = 50

// fanoutCap bounds the recipient set when a broadcast has no location and
// every technician is eligible.
const fanoutCap = 500

// Service answers the two matching questions: which broadcasts a technician
// may see, and which technicians a broadcast should reach.
type Service interface {
	Feed(ctx context.Context, technicianID uuid.UUID) ([]models.ServiceRequest, error)
	EligibleTechnicians(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
}

type service struct {
	repo    Repository
	cfg     config.MarketplaceConfig
	metrics *metrics.MarketplaceMetrics
	logg    *logger.Logger
}

// NewService wires the dispatch dependencies.
func NewService(repo Repository, cfg config.MarketplaceConfig, m *metrics.MarketplaceMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatch repository required")
	}
	return &service{repo: repo, cfg: cfg, metrics: m, logg: logg}, nil
}

// Feed lists the unclaimed pending broadcasts visible to the technician:
// everything inside their radius, unioned with a fixed-size slice of the most
// recent broadcasts so a badly-located technician still sees work.
func (s *service) Feed(ctx context.Context, technicianID uuid.UUID) ([]models.ServiceRequest, error) {
	technician, err := s.repo.FindTechnician(ctx, technicianID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find technician")
	}
	if technician == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "technician not found")
	}

	recent, err := s.repo.RecentBroadcasts(ctx, s.cfg.RecentBroadcastLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recent broadcasts")
	}
	if technician.Location == nil {
		return recent, nil
	}

	radius := s.cfg.DefaultRadiusKM
	if technician.DispatchRadiusKM != nil && *technician.DispatchRadiusKM > 0 {
		radius = *technician.DispatchRadiusKM
	}
	nearby, err := s.repo.BroadcastsWithinRadius(ctx, *technician.Location, radius, feedLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "broadcasts within radius")
	}

	return mergeFeeds(nearby, recent), nil
}

// EligibleTechnicians resolves the recipient set for a broadcast. Used by the
// notification worker to fan a job.created event out.
func (s *service) EligibleTechnicians(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	job, err := s.repo.FindJob(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find job")
	}
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	if job.Location == nil {
		ids, err := s.repo.AllTechnicianIDs(ctx, fanoutCap)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list technicians")
		}
		return ids, nil
	}
	ids, err := s.repo.TechniciansNear(ctx, *job.Location, s.cfg.DefaultRadiusKM)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "technicians near job")
	}
	return ids, nil
}

// mergeFeeds unions the radius results with the recent fallback, radius hits
// first, duplicates dropped.
func mergeFeeds(nearby, recent []models.ServiceRequest) []models.ServiceRequest {
	seen := make(map[uuid.UUID]struct{}, len(nearby)+len(recent))
	merged := make([]models.ServiceRequest, 0, len(nearby)+len(recent))
	for _, job := range nearby {
		seen[job.ID] = struct{}{}
		merged = append(merged, job)
	}
	for _, job := range recent {
		if _, ok := seen[job.ID]; ok {
			continue
		}
		seen[job.ID] = struct{}{}
		merged = append(merged, job)
	}
	return merged
}
