package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
)

// Repository exposes persistence helpers for service requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.ServiceRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error)
	// UpdateWhereStatus applies updates only while the job sits in one of the
	// allowed states. The false return means the guard lost the race.
	UpdateWhereStatus(ctx context.Context, jobID uuid.UUID, allowed []enums.JobStatus, updates map[string]any) (bool, error)
	// ClaimPending assigns the technician only while the job is still pending
	// and not proposed to somebody else.
	ClaimPending(ctx context.Context, jobID, technicianID uuid.UUID) (bool, error)
	CompleteStep(ctx context.Context, jobID uuid.UUID, name string, at time.Time) error
	// ApplyRating stores the rating only while the job is completed and
	// unrated. The false return means another rating got there first.
	ApplyRating(ctx context.Context, jobID uuid.UUID, rating int, review *string) (bool, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a jobs repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, job *models.ServiceRequest) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var job models.ServiceRequest
	err := r.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repositoryImpl) UpdateWhereStatus(ctx context.Context, jobID uuid.UUID, allowed []enums.JobStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND status IN ?", jobID, allowed).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ClaimPending(ctx context.Context, jobID, technicianID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND (technician_id IS NULL OR technician_id = ?)",
			jobID, enums.JobStatusPending, technicianID).
		Updates(map[string]any{
			"status":        enums.JobStatusAccepted,
			"technician_id": technicianID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CompleteStep(ctx context.Context, jobID uuid.UUID, name string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.JobStep{}).
		Where("job_id = ? AND name = ? AND completed_at IS NULL", jobID, name).
		UpdateColumn("completed_at", at).Error
}

func (r *repositoryImpl) ApplyRating(ctx context.Context, jobID uuid.UUID, rating int, review *string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where("id = ? AND status = ? AND rating IS NULL", jobID, enums.JobStatusCompleted).
		Updates(map[string]any{
			"rating": rating,
			"review": review,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return r.list(ctx, "customer_id = ?", customerID, params)
}

func (r *repositoryImpl) ListByTechnician(ctx context.Context, technicianID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error) {
	return r.list(ctx, "technician_id = ?", technicianID, params)
}

func (r *repositoryImpl) list(ctx context.Context, condition string, actorID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.ServiceRequest{}).
		Where(condition, actorID)
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, nil, err
		}
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var rows []models.ServiceRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	trimmed, hasMore := pagination.Trim(rows, params.Limit)
	if hasMore {
		next := rows[len(trimmed)]
		return trimmed, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return trimmed, nil, nil
}
