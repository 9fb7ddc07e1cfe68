package actors

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// Repository exposes the minimal actor persistence the core flows need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, actor *models.Actor) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Actor, error)
	FindByEmail(ctx context.Context, email string) (*models.Actor, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, location *types.GeographyPoint, radiusKM *float64) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an actor repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, actor *models.Actor) error {
	return r.db.WithContext(ctx).Create(actor).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Actor, error) {
	var actor models.Actor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&actor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

func (r *repositoryImpl) FindByEmail(ctx context.Context, email string) (*models.Actor, error) {
	var actor models.Actor
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&actor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &actor, nil
}

func (r *repositoryImpl) UpdateLocation(ctx context.Context, id uuid.UUID, location *types.GeographyPoint, radiusKM *float64) error {
	updates := map[string]any{"location": location}
	if radiusKM != nil {
		updates["dispatch_radius_km"] = radiusKM
	}
	result := r.db.WithContext(ctx).
		Model(&models.Actor{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
