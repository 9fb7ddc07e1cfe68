package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// WalletTransaction is an immutable ledger entry. Only Status may change
// after creation (pending -> completed|failed).
type WalletTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID           uuid.UUID               `gorm:"column:owner_id;type:uuid;not null;index:ix_wallet_txns_owner"`
	OwnerRole         enums.ActorRole         `gorm:"column:owner_role;type:actor_role;not null;index:ix_wallet_txns_owner"`
	Kind              enums.TransactionKind   `gorm:"column:kind;type:transaction_kind;not null"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	ReferenceID       *uuid.UUID              `gorm:"column:reference_id;type:uuid"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;type:payment_method;not null"`
	ExternalOrderID   *string                 `gorm:"column:external_order_id"`
	ExternalPaymentID *string                 `gorm:"column:external_payment_id;uniqueIndex:ux_wallet_txns_external_payment"`
	Status            enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'completed'"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}
