package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/metrics"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
)

// OwnerRef identifies one wallet owner across the three marketplace sides.
type OwnerRef struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// Entry describes a ledger mutation. Amount must be positive; the kind
// determines the sign applied to the balance.
type Entry struct {
	Owner             OwnerRef
	Kind              enums.TransactionKind
	Amount            decimal.Decimal
	ReferenceID       *uuid.UUID
	Method            enums.PaymentMethod
	ExternalOrderID   *string
	ExternalPaymentID *string
	Status            enums.TransactionStatus
}

// TransferParams moves value from payer to payee atomically, optionally
// splitting a platform commission out of the payee's share.
type TransferParams struct {
	Payer       OwnerRef
	Payee       OwnerRef
	Amount      decimal.Decimal
	ReferenceID *uuid.UUID
	Method      enums.PaymentMethod
	Commission  decimal.Decimal // percent in [0,100]
	Platform    *OwnerRef
}

// CashSettlementParams records an off-ledger cash handover. Wallet balances
// are not touched; the rows exist for audit and the payee's lifetime earnings.
type CashSettlementParams struct {
	Payer       OwnerRef
	Payee       OwnerRef
	Amount      decimal.Decimal
	ReferenceID *uuid.UUID
}

// ExternalSettlementParams settles a payment collected by the gateway. The
// payer's wallet is not debited (the money never sat in it); the payee is
// credited for real because the platform now holds the funds on their behalf.
type ExternalSettlementParams struct {
	Payer             OwnerRef
	Payee             OwnerRef
	Amount            decimal.Decimal
	ReferenceID       *uuid.UUID
	ExternalOrderID   *string
	ExternalPaymentID *string
	Commission        decimal.Decimal // percent in [0,100]
	Platform          *OwnerRef
}

// TransferResult reports the ledger rows written by a transfer.
type TransferResult struct {
	PayerTxn      *models.WalletTransaction
	PayeeTxn      *models.WalletTransaction
	CommissionTxn *models.WalletTransaction
}

// HistoryResult wraps a transaction page with the next cursor.
type HistoryResult struct {
	Items  []models.WalletTransaction `json:"items"`
	Cursor string                     `json:"cursor"`
}

// Service is the wallet ledger. Mutations take the caller's transaction so a
// ledger write commits or rolls back with the domain state change around it.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error)
	Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error)
	Transfer(ctx context.Context, tx *gorm.DB, params TransferParams) (*TransferResult, error)
	RecordCashSettlement(ctx context.Context, tx *gorm.DB, params CashSettlementParams) (*TransferResult, error)
	SettleExternal(ctx context.Context, tx *gorm.DB, params ExternalSettlementParams) (*TransferResult, error)
	FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*models.WalletTransaction, error)
	MarkTransaction(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.TransactionStatus) error
	History(ctx context.Context, owner OwnerRef, params pagination.Params) (*HistoryResult, error)
	BalanceOf(ctx context.Context, owner OwnerRef) (decimal.Decimal, error)
}

type service struct {
	repo    Repository
	metrics *metrics.MarketplaceMetrics
	logg    *logger.Logger
}

// NewService wires the ledger dependencies.
func NewService(repo Repository, m *metrics.MarketplaceMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	return &service{repo: repo, metrics: m, logg: logg}, nil
}

func validateEntry(entry Entry) error {
	if entry.Owner.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet owner required")
	}
	if !entry.Owner.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet owner role invalid")
	}
	if !entry.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if entry.Kind == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction kind required")
	}
	return nil
}

// Credit adds funds and appends the matching transaction in one transaction.
// Earnings-kind credits also bump the owner's lifetime earnings counter.
func (s *service) Credit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if _, err := repo.EnsureWallet(ctx, entry.Owner.ID, entry.Owner.Role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	asEarnings := entry.Kind == enums.TransactionKindEarnings
	if err := repo.CreditBalance(ctx, entry.Owner.ID, entry.Owner.Role, entry.Amount, asEarnings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}
	txn, err := s.appendTransaction(ctx, repo, entry)
	if err != nil {
		return nil, err
	}
	s.metrics.IncLedgerTransfer(string(entry.Kind))
	return txn, nil
}

// Debit withdraws funds guarded by the wallet balance. Insufficient funds
// surface as INSUFFICIENT_BALANCE and leave the ledger untouched.
func (s *service) Debit(ctx context.Context, tx *gorm.DB, entry Entry) (*models.WalletTransaction, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if _, err := repo.EnsureWallet(ctx, entry.Owner.ID, entry.Owner.Role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	ok, err := repo.DebitBalance(ctx, entry.Owner.ID, entry.Owner.Role, entry.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "wallet balance too low")
	}
	txn, err := s.appendTransaction(ctx, repo, entry)
	if err != nil {
		return nil, err
	}
	s.metrics.IncLedgerTransfer(string(entry.Kind))
	return txn, nil
}

// Transfer debits the payer and credits the payee inside the caller's
// transaction, writing a payment row, an earnings row and, when a commission
// applies, a commission row for the platform account. Either every row
// commits or none do.
func (s *service) Transfer(ctx context.Context, tx *gorm.DB, params TransferParams) (*TransferResult, error) {
	if params.Payer == params.Payee {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer and payee must differ")
	}
	if params.Commission.IsNegative() || params.Commission.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission percent out of range")
	}

	payerTxn, err := s.Debit(ctx, tx, Entry{
		Owner:       params.Payer,
		Kind:        enums.TransactionKindPayment,
		Amount:      params.Amount,
		ReferenceID: params.ReferenceID,
		Method:      params.Method,
	})
	if err != nil {
		return nil, err
	}

	commission := params.Amount.Mul(params.Commission).Div(decimal.NewFromInt(100)).Round(2)
	payeeShare := params.Amount.Sub(commission)
	if commission.IsPositive() && params.Platform == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform account required for commission")
	}

	payeeTxn, err := s.Credit(ctx, tx, Entry{
		Owner:       params.Payee,
		Kind:        enums.TransactionKindEarnings,
		Amount:      payeeShare,
		ReferenceID: params.ReferenceID,
		Method:      params.Method,
	})
	if err != nil {
		return nil, err
	}

	result := &TransferResult{PayerTxn: payerTxn, PayeeTxn: payeeTxn}
	if commission.IsPositive() {
		commissionTxn, err := s.Credit(ctx, tx, Entry{
			Owner:       *params.Platform,
			Kind:        enums.TransactionKindCommission,
			Amount:      commission,
			ReferenceID: params.ReferenceID,
			Method:      params.Method,
		})
		if err != nil {
			return nil, err
		}
		result.CommissionTxn = commissionTxn
	}
	return result, nil
}

// RecordCashSettlement appends completed payment/earnings rows with the cash
// method. Money changed hands outside the platform, so balances stay put and
// only the payee's lifetime earnings counter moves.
func (s *service) RecordCashSettlement(ctx context.Context, tx *gorm.DB, params CashSettlementParams) (*TransferResult, error) {
	if params.Payer == params.Payee {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer and payee must differ")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	repo := s.repo.WithTx(tx)

	if _, err := repo.EnsureWallet(ctx, params.Payee.ID, params.Payee.Role); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	if err := repo.BumpEarnings(ctx, params.Payee.ID, params.Payee.Role, params.Amount); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bump earnings")
	}

	payerTxn, err := s.appendTransaction(ctx, repo, Entry{
		Owner:       params.Payer,
		Kind:        enums.TransactionKindPayment,
		Amount:      params.Amount,
		ReferenceID: params.ReferenceID,
		Method:      enums.PaymentMethodCash,
	})
	if err != nil {
		return nil, err
	}
	payeeTxn, err := s.appendTransaction(ctx, repo, Entry{
		Owner:       params.Payee,
		Kind:        enums.TransactionKindEarnings,
		Amount:      params.Amount,
		ReferenceID: params.ReferenceID,
		Method:      enums.PaymentMethodCash,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncLedgerTransfer("cash_settlement")
	return &TransferResult{PayerTxn: payerTxn, PayeeTxn: payeeTxn}, nil
}

// SettleExternal records a gateway-collected payment. The payer row carries
// the external identifiers that make replayed confirmations detectable; the
// payee (and platform, when a commission applies) receive real credits.
func (s *service) SettleExternal(ctx context.Context, tx *gorm.DB, params ExternalSettlementParams) (*TransferResult, error) {
	if params.Payer == params.Payee {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer and payee must differ")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if params.Commission.IsNegative() || params.Commission.GreaterThan(decimal.NewFromInt(100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission percent out of range")
	}
	commission := params.Amount.Mul(params.Commission).Div(decimal.NewFromInt(100)).Round(2)
	if commission.IsPositive() && params.Platform == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform account required for commission")
	}
	repo := s.repo.WithTx(tx)

	payerTxn, err := s.appendTransaction(ctx, repo, Entry{
		Owner:             params.Payer,
		Kind:              enums.TransactionKindPayment,
		Amount:            params.Amount,
		ReferenceID:       params.ReferenceID,
		Method:            enums.PaymentMethodGateway,
		ExternalOrderID:   params.ExternalOrderID,
		ExternalPaymentID: params.ExternalPaymentID,
	})
	if err != nil {
		return nil, err
	}

	payeeTxn, err := s.Credit(ctx, tx, Entry{
		Owner:       params.Payee,
		Kind:        enums.TransactionKindEarnings,
		Amount:      params.Amount.Sub(commission),
		ReferenceID: params.ReferenceID,
		Method:      enums.PaymentMethodGateway,
	})
	if err != nil {
		return nil, err
	}

	result := &TransferResult{PayerTxn: payerTxn, PayeeTxn: payeeTxn}
	if commission.IsPositive() {
		commissionTxn, err := s.Credit(ctx, tx, Entry{
			Owner:       *params.Platform,
			Kind:        enums.TransactionKindCommission,
			Amount:      commission,
			ReferenceID: params.ReferenceID,
			Method:      enums.PaymentMethodGateway,
		})
		if err != nil {
			return nil, err
		}
		result.CommissionTxn = commissionTxn
	}
	s.metrics.IncLedgerTransfer("external_settlement")
	return result, nil
}

func (s *service) FindByExternalPaymentID(ctx context.Context, externalPaymentID string) (*models.WalletTransaction, error) {
	if externalPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id required")
	}
	txn, err := s.repo.FindByExternalPaymentID(ctx, externalPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find transaction")
	}
	return txn, nil
}

// MarkTransaction moves a pending entry to its settled state.
func (s *service) MarkTransaction(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.TransactionStatus) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction status invalid")
	}
	if err := s.repo.WithTx(tx).UpdateTransactionStatus(ctx, id, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	return nil
}

func (s *service) History(ctx context.Context, owner OwnerRef, params pagination.Params) (*HistoryResult, error) {
	if owner.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet owner required")
	}
	query := listTransactionsParams{
		OwnerID:   owner.ID,
		OwnerRole: owner.Role,
		Limit:     params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListTransactions(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &HistoryResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) BalanceOf(ctx context.Context, owner OwnerRef) (decimal.Decimal, error) {
	if owner.ID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "wallet owner required")
	}
	wallet, err := s.repo.GetWallet(ctx, owner.ID, owner.Role)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get wallet")
	}
	if wallet == nil {
		return decimal.Zero, nil
	}
	return wallet.Balance, nil
}

func (s *service) appendTransaction(ctx context.Context, repo Repository, entry Entry) (*models.WalletTransaction, error) {
	status := entry.Status
	if status == "" {
		status = enums.TransactionStatusCompleted
	}
	txn := &models.WalletTransaction{
		OwnerID:           entry.Owner.ID,
		OwnerRole:         entry.Owner.Role,
		Kind:              entry.Kind,
		Amount:            entry.Amount,
		ReferenceID:       entry.ReferenceID,
		PaymentMethod:     entry.Method,
		ExternalOrderID:   entry.ExternalOrderID,
		ExternalPaymentID: entry.ExternalPaymentID,
		Status:            status,
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append transaction")
	}
	return txn, nil
}
