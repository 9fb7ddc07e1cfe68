package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// PartsOrder is a parts-fulfillment order between a buyer (customer or
// technician, exactly one set) and a supplier. SupplierID stays null while
// the order is an open inquiry; the first supplier to quote claims it.
type PartsOrder struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID   *uuid.UUID `gorm:"column:customer_id;type:uuid;index"`
	TechnicianID *uuid.UUID `gorm:"column:technician_id;type:uuid;index"`
	SupplierID   *uuid.UUID `gorm:"column:supplier_id;type:uuid;index"`

	Status        enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'inquiry'"`
	PaymentStatus enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:payment_method"`

	DeliveryType    enums.DeliveryType `gorm:"column:delivery_type;type:delivery_type;not null;default:'pickup'"`
	DeliveryAddress *types.Address     `gorm:"column:delivery_address;type:jsonb;serializer:json"`

	TotalAmount decimal.Decimal `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`

	ExternalOrderID   *string `gorm:"column:external_order_id"`
	ExternalPaymentID *string `gorm:"column:external_payment_id"`

	CancellationReason *string            `gorm:"column:cancellation_reason"`
	CancelledBy        *enums.CancelActor `gorm:"column:cancelled_by;type:cancel_actor"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// BuyerID returns the single buyer reference on the order.
func (o *PartsOrder) BuyerID() *uuid.UUID {
	if o.CustomerID != nil {
		return o.CustomerID
	}
	return o.TechnicianID
}

// BuyerRole reports which side of the marketplace placed the order.
func (o *PartsOrder) BuyerRole() enums.ActorRole {
	if o.CustomerID != nil {
		return enums.ActorRoleCustomer
	}
	return enums.ActorRoleTechnician
}
