package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// ServiceRequest is a vehicle service job moving through the matching,
// quoting, execution and billing lifecycle.
type ServiceRequest struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    uuid.UUID             `gorm:"column:customer_id;type:uuid;not null;index"`
	TechnicianID  *uuid.UUID            `gorm:"column:technician_id;type:uuid;index"`
	VehicleRef    string                `gorm:"column:vehicle_ref;not null"`
	Description   string                `gorm:"column:description;not null"`
	ServiceType   string                `gorm:"column:service_type;not null"`
	ServiceMethod string                `gorm:"column:service_method;not null"`
	IsBroadcast   bool                  `gorm:"column:is_broadcast;not null;default:false"`
	Location      *types.GeographyPoint `gorm:"column:location;type:geography(Point,4326)"`
	Status        enums.JobStatus       `gorm:"column:status;type:job_status;not null;default:'pending'"`

	QuoteItems types.LineItems `gorm:"column:quote_items;type:jsonb;serializer:json"`
	QuoteTotal decimal.Decimal `gorm:"column:quote_total;type:numeric(14,2);not null;default:0"`

	BillItems types.LineItems     `gorm:"column:bill_items;type:jsonb;serializer:json"`
	BillTotal decimal.Decimal     `gorm:"column:bill_total;type:numeric(14,2);not null;default:0"`
	BillState enums.PaymentStatus `gorm:"column:bill_state;type:payment_status;not null;default:'unpaid'"`

	PaymentMethod *enums.PaymentMethod `gorm:"column:payment_method;type:payment_method"`
	PartsSource   *enums.PartsSource   `gorm:"column:parts_source;type:parts_source"`

	CancellationReason *string            `gorm:"column:cancellation_reason"`
	CancelledBy        *enums.CancelActor `gorm:"column:cancelled_by;type:cancel_actor"`

	Rating *int    `gorm:"column:rating"`
	Review *string `gorm:"column:review"`

	Steps []JobStep `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
