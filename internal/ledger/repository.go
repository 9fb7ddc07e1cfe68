package ledger

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

// Repository exposes persistence helpers for wallets and their ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetWallet(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole) (*models.Wallet, error)
	EnsureWallet(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole) (*models.Wallet, error)
	DebitBalance(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal) (bool, error)
	CreditBalance(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal, asEarnings bool) error
	BumpEarnings(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal) error
	InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error
	FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, params listTransactionsParams) ([]models.WalletTransaction, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listTransactionsParams struct {
	OwnerID   uuid.UUID
	OwnerRole enums.ActorRole
	Limit     int
	Cursor    *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) GetWallet(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND owner_role = ?", ownerID, ownerRole).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *repositoryImpl) EnsureWallet(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole) (*models.Wallet, error) {
	wallet := models.Wallet{OwnerID: ownerID, OwnerRole: ownerRole}
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND owner_role = ?", ownerID, ownerRole).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// DebitBalance runs the balance check and mutation as one statement so two
// concurrent spends can never both pass the check. The false return means the
// balance was insufficient (or the wallet does not exist).
func (r *repositoryImpl) DebitBalance(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("owner_id = ? AND owner_role = ? AND balance >= ?", ownerID, ownerRole, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CreditBalance(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal, asEarnings bool) error {
	updates := map[string]any{
		"balance": gorm.Expr("balance + ?", amount),
	}
	if asEarnings {
		updates["total_earnings"] = gorm.Expr("total_earnings + ?", amount)
	}
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("owner_id = ? AND owner_role = ?", ownerID, ownerRole).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BumpEarnings moves the lifetime earnings counter without touching the
// spendable balance. Used for cash settlements that never enter the wallet.
func (r *repositoryImpl) BumpEarnings(ctx context.Context, ownerID uuid.UUID, ownerRole enums.ActorRole, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("owner_id = ? AND owner_role = ?", ownerID, ownerRole).
		UpdateColumn("total_earnings", gorm.Expr("total_earnings + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repositoryImpl) InsertTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repositoryImpl) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}

func (r *repositoryImpl) FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repositoryImpl) ListTransactions(ctx context.Context, params listTransactionsParams) ([]models.WalletTransaction, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("owner_id = ? AND owner_role = ?", params.OwnerID, params.OwnerRole)
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.WalletTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}
