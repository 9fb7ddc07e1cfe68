package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/types"
)

// OrderItem is one line of a parts order. Snapshot fields (name, unit price)
// are frozen at quotation time so later catalog edits do not rewrite the
// order. Note rows render but never contribute to the total.
type OrderItem struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID *uuid.UUID         `gorm:"column:product_id;type:uuid"`
	Kind      types.LineItemKind `gorm:"column:kind;type:line_item_kind;not null;default:'priced'"`
	Name      string             `gorm:"column:name;not null"`
	UnitPrice decimal.Decimal    `gorm:"column:unit_price;type:numeric(14,2);not null;default:0"`
	Quantity  int                `gorm:"column:quantity;not null;default:0"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// Amount returns the line contribution to the order total.
func (i OrderItem) Amount() decimal.Decimal {
	if i.Kind == types.LineItemKindNote {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
