package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// Wallet holds the derived balance cache for one marketplace actor. The
// transaction history is the source of truth; Balance and TotalEarnings are
// updated in the same statement that appends a transaction.
type Wallet struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID       uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:ux_wallets_owner"`
	OwnerRole     enums.ActorRole `gorm:"column:owner_role;type:actor_role;not null;uniqueIndex:ux_wallets_owner"`
	Balance       decimal.Decimal `gorm:"column:balance;type:numeric(14,2);not null;default:0"`
	TotalEarnings decimal.Decimal `gorm:"column:total_earnings;type:numeric(14,2);not null;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
