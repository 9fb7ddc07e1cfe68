package payments

import (
	"context"

	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// Repository persists the gateway intent audit trail. Settlement does not
// depend on these rows; they exist so support can trace a charge back to the
// domain object it paid for.
type Repository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	MarkStatusByExternalOrderID(ctx context.Context, tx *gorm.DB, externalOrderID string, status enums.PaymentStatus) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an intent repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repositoryImpl) MarkStatusByExternalOrderID(ctx context.Context, tx *gorm.DB, externalOrderID string, status enums.PaymentStatus) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("external_order_id = ?", externalOrderID).
		Update("status", status).Error
}
