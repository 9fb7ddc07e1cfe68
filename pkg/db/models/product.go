package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a supplier catalog listing with tracked stock.
type Product struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SupplierID uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null;index"`
	Name       string          `gorm:"column:name;not null"`
	SKU        *string         `gorm:"column:sku"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null"`
	Stock      int             `gorm:"column:stock;not null;default:0"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
