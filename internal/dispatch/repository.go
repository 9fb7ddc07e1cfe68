package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// Repository exposes the geo queries behind broadcast matching. Distance
// filters run in PostGIS; radii are kilometers and converted to meters at
// the query boundary.
type Repository interface {
	FindTechnician(ctx context.Context, id uuid.UUID) (*models.Actor, error)
	FindJob(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	// BroadcastsWithinRadius lists unclaimed pending broadcasts whose location
	// falls inside the given radius around the technician.
	BroadcastsWithinRadius(ctx context.Context, point types.GeographyPoint, radiusKM float64, limit int) ([]models.ServiceRequest, error)
	// RecentBroadcasts is the fixed-size fallback feed for technicians
	// without a usable location, and the union tail for everyone else.
	RecentBroadcasts(ctx context.Context, limit int) ([]models.ServiceRequest, error)
	// TechniciansNear lists technicians whose own dispatch radius (or the
	// default) covers the given point.
	TechniciansNear(ctx context.Context, point types.GeographyPoint, defaultRadiusKM float64) ([]uuid.UUID, error)
	AllTechnicianIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a dispatch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindTechnician(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	var actor models.Actor
	err := r.db.WithContext(ctx).
		Where("id = ? AND role = ?", id, enums.ActorRoleTechnician).
		First(&actor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

func (r *repositoryImpl) FindJob(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var job models.ServiceRequest
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) BroadcastsWithinRadius(ctx context.Context, point types.GeographyPoint, radiusKM float64, limit int) ([]models.ServiceRequest, error) {
	var rows []models.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND technician_id IS NULL AND is_broadcast AND location IS NOT NULL",
			enums.JobStatusPending).
		Where("ST_DWithin(location, ST_GeogFromText(?), ?)", point, radiusKM*1000).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) RecentBroadcasts(ctx context.Context, limit int) ([]models.ServiceRequest, error) {
	var rows []models.ServiceRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND technician_id IS NULL AND is_broadcast", enums.JobStatusPending).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) TechniciansNear(ctx context.Context, point types.GeographyPoint, defaultRadiusKM float64) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Actor{}).
		Where("role = ? AND location IS NOT NULL", enums.ActorRoleTechnician).
		Where("ST_DWithin(location, ST_GeogFromText(?), COALESCE(dispatch_radius_km, ?) * 1000)",
			point, defaultRadiusKM).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repositoryImpl) AllTechnicianIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Actor{}).
		Where("role = ?", enums.ActorRoleTechnician).
		Order("created_at DESC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
