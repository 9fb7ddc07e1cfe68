package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// PaymentIntent records a gateway order created for a wallet top-up, job
// bill, or parts order so webhook handlers can reconstruct the target
// domain object without client context.
type PaymentIntent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Purpose         enums.PaymentPurpose `gorm:"column:purpose;type:payment_purpose;not null"`
	OwnerID         uuid.UUID            `gorm:"column:owner_id;type:uuid;not null"`
	OwnerRole       enums.ActorRole      `gorm:"column:owner_role;type:actor_role;not null"`
	JobID           *uuid.UUID           `gorm:"column:job_id;type:uuid"`
	OrderID         *uuid.UUID           `gorm:"column:order_id;type:uuid"`
	ExternalOrderID string               `gorm:"column:external_order_id;not null;uniqueIndex:ux_payment_intents_external_order"`
	AmountMinor     int64                `gorm:"column:amount_minor;not null"`
	Currency        string               `gorm:"column:currency;not null"`
	Status          enums.PaymentStatus  `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
