package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
)

// Repository exposes persistence helpers for parts orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.PartsOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PartsOrder, error)
	// ClaimInquiry assigns the supplier only while the order is an open
	// inquiry. The false return means another supplier got there first.
	ClaimInquiry(ctx context.Context, orderID, supplierID uuid.UUID, items []models.OrderItem, total decimal.Decimal) (bool, error)
	UpdateWhereStatus(ctx context.Context, orderID uuid.UUID, allowed []enums.OrderStatus, updates map[string]any) (bool, error)
	// UpdateWherePayment additionally guards on the current payment status so
	// two concurrent settlements cannot both win the row.
	UpdateWherePayment(ctx context.Context, orderID uuid.UUID, allowed []enums.OrderStatus, fromPayment []enums.PaymentStatus, updates map[string]any) (bool, error)
	ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error
	ListOpenInquiries(ctx context.Context, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error)
	ListForBuyer(ctx context.Context, buyerColumn string, buyerID uuid.UUID, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error)
	ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, order *models.PartsOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.PartsOrder, error) {
	var order models.PartsOrder
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) ClaimInquiry(ctx context.Context, orderID, supplierID uuid.UUID, items []models.OrderItem, total decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where("id = ? AND status = ? AND (supplier_id IS NULL OR supplier_id = ?)",
			orderID, enums.OrderStatusInquiry, supplierID).
		Updates(map[string]any{
			"supplier_id":  supplierID,
			"status":       enums.OrderStatusQuoted,
			"total_amount": total,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if err := r.ReplaceItems(ctx, orderID, items); err != nil {
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) UpdateWhereStatus(ctx context.Context, orderID uuid.UUID, allowed []enums.OrderStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where("id = ? AND status IN ?", orderID, allowed).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) UpdateWherePayment(ctx context.Context, orderID uuid.UUID, allowed []enums.OrderStatus, fromPayment []enums.PaymentStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where("id = ? AND status IN ? AND payment_status IN ?", orderID, allowed, fromPayment).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ReplaceItems(ctx context.Context, orderID uuid.UUID, items []models.OrderItem) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Delete(&models.OrderItem{}).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repositoryImpl) ListOpenInquiries(ctx context.Context, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where("status = ? AND supplier_id IS NULL", enums.OrderStatusInquiry)
	return r.page(ctx, query, params)
}

func (r *repositoryImpl) ListForBuyer(ctx context.Context, buyerColumn string, buyerID uuid.UUID, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where(buyerColumn+" = ?", buyerID)
	return r.page(ctx, query, params)
}

func (r *repositoryImpl) ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PartsOrder{}).
		Where("supplier_id = ?", supplierID)
	return r.page(ctx, query, params)
}

func (r *repositoryImpl) page(_ context.Context, query *gorm.DB, params pagination.Params) ([]models.PartsOrder, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, nil, err
		}
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var rows []models.PartsOrder
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
