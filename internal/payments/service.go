package payments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/internal/jobs"
	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/internal/orders"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/gateway"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/metrics"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/outbox/payloads"
)

// Intent note keys. The webhook path reconstructs the domain object to settle
// from these, without any client-side context.
const (
	notePurpose   = "purpose"
	noteJobID     = "jobId"
	noteOrderID   = "orderId"
	noteOwnerID   = "ownerId"
	noteOwnerRole = "ownerRole"
)

// Gateway success events. Both carry the payment entity in the payload and
// funnel into the same idempotent settlement.
const (
	webhookEventCaptured  = "payment.captured"
	webhookEventOrderPaid = "order.paid"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayClient interface {
	CreateIntent(ctx context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	VerifySignature(intentID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	Currency() string
}

type intentStore interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	MarkStatusByExternalOrderID(ctx context.Context, tx *gorm.DB, externalOrderID string, status enums.PaymentStatus) error
}

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DedupKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

type jobSettler interface {
	SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params jobs.GatewaySettlementParams) error
}

type orderSettler interface {
	SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params orders.GatewaySettlementParams) error
}

// IntentParams stages a gateway charge for one of the four payment purposes.
type IntentParams struct {
	Purpose   enums.PaymentPurpose
	OwnerID   uuid.UUID
	OwnerRole enums.ActorRole
	JobID     *uuid.UUID
	OrderID   *uuid.UUID
	Amount    decimal.Decimal
}

// ConfirmParams carries the client-side checkout confirmation.
type ConfirmParams struct {
	IntentID  string `validate:"required"`
	PaymentID string `validate:"required"`
	Signature string `validate:"required"`
}

// WithdrawParams debits a wallet into a pending bank settlement.
type WithdrawParams struct {
	Owner  ledger.OwnerRef
	Amount decimal.Decimal
}

// Service owns the gateway payment flows: intent creation, client
// confirmation, webhook settlement and wallet withdrawals.
type Service interface {
	CreateIntent(ctx context.Context, params IntentParams) (*gateway.Intent, error)
	Confirm(ctx context.Context, params ConfirmParams) error
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	Withdraw(ctx context.Context, params WithdrawParams) (*models.WalletTransaction, error)
	CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID) error
}

type service struct {
	gateway gatewayClient
	ledger  ledger.Service
	jobs    jobSettler
	orders  orderSettler
	tx      txRunner
	outbox  outboxPublisher
	dedup   dedupStore
	intents intentStore
	cfg     config.MarketplaceConfig
	metrics *metrics.MarketplaceMetrics
	logg    *logger.Logger
}

// NewService wires the payment flow dependencies.
func NewService(
	gatewayClient gatewayClient,
	ledgerSvc ledger.Service,
	jobSvc jobSettler,
	orderSvc orderSettler,
	tx txRunner,
	outboxSvc outboxPublisher,
	dedup dedupStore,
	intents intentStore,
	cfg config.MarketplaceConfig,
	m *metrics.MarketplaceMetrics,
	logg *logger.Logger,
) (Service, error) {
	if gatewayClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	if jobSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jobs settler required")
	}
	if orderSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders settler required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if outboxSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if dedup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dedup store required")
	}
	if intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "intent store required")
	}
	return &service{
		gateway: gatewayClient,
		ledger:  ledgerSvc,
		jobs:    jobSvc,
		orders:  orderSvc,
		tx:      tx,
		outbox:  outboxSvc,
		dedup:   dedup,
		intents: intents,
		cfg:     cfg,
		metrics: m,
		logg:    logg,
	}, nil
}

// CreateIntent stages the charge at the gateway. The purpose and domain
// identifiers travel in the intent notes so settlement is self-describing.
func (s *service) CreateIntent(ctx context.Context, params IntentParams) (*gateway.Intent, error) {
	if !params.Purpose.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment purpose")
	}
	if params.OwnerID == uuid.Nil || !params.OwnerRole.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment owner required")
	}
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	notes := map[string]string{
		notePurpose:   params.Purpose.String(),
		noteOwnerID:   params.OwnerID.String(),
		noteOwnerRole: params.OwnerRole.String(),
	}
	var receipt string
	switch params.Purpose {
	case enums.PaymentPurposeWalletTopup:
		receipt = "topup-" + params.OwnerID.String()
	case enums.PaymentPurposeBillPayment:
		if params.JobID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required for bill payments")
		}
		notes[noteJobID] = params.JobID.String()
		receipt = "job-" + params.JobID.String()
	case enums.PaymentPurposeWholesalePayment, enums.PaymentPurposeStorePayment:
		if params.OrderID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required for order payments")
		}
		notes[noteOrderID] = params.OrderID.String()
		receipt = "order-" + params.OrderID.String()
	}

	intent, err := s.gateway.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountMinor: toMinorUnits(params.Amount),
		Currency:    s.gateway.Currency(),
		Receipt:     receipt,
		Notes:       notes,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway intent")
	}

	record := &models.PaymentIntent{
		Purpose:         params.Purpose,
		OwnerID:         params.OwnerID,
		OwnerRole:       params.OwnerRole,
		JobID:           params.JobID,
		OrderID:         params.OrderID,
		ExternalOrderID: intent.ID,
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
		Status:          enums.PaymentStatusPending,
	}
	if err := s.intents.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment intent")
	}
	return intent, nil
}

// Confirm handles the client-side checkout callback. The signature proves the
// gateway issued the payment id for this intent; the amount still comes from
// the gateway, never from the client.
func (s *service) Confirm(ctx context.Context, params ConfirmParams) error {
	if !s.gateway.VerifySignature(params.IntentID, params.PaymentID, params.Signature) {
		s.metrics.IncWebhookOutcome("invalid_signature")
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "payment signature verification failed")
	}
	payment, err := s.gateway.FetchPayment(ctx, params.PaymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch gateway payment")
	}
	return s.settle(ctx, payment)
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity gateway.Payment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the raw-body signature before parsing, then settles
// success events. Unknown events acknowledge without side effects.
func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.metrics.IncWebhookOutcome("invalid_signature")
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "webhook signature verification failed")
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		s.metrics.IncWebhookOutcome("malformed")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse webhook payload")
	}
	switch envelope.Event {
	case webhookEventCaptured, webhookEventOrderPaid:
	default:
		s.metrics.IncWebhookOutcome("ignored")
		return nil
	}
	payment := envelope.Payload.Payment.Entity
	return s.settle(ctx, &payment)
}

// settle is the single idempotent settlement routine both the confirmation
// endpoint and the webhook funnel into, keyed on the external payment id.
// Replays are detected by the ledger probe (the settled row carries the
// external payment id) with a redis SetNX guard in front of it.
func (s *service) settle(ctx context.Context, payment *gateway.Payment) error {
	start := time.Now()
	if payment == nil || payment.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	if !payment.Captured() {
		s.metrics.IncWebhookOutcome("not_captured")
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "payment not captured")
	}
	purpose, err := enums.ParsePaymentPurpose(payment.Notes[notePurpose])
	if err != nil {
		s.metrics.IncWebhookOutcome("malformed")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment purpose")
	}

	if existing, err := s.ledger.FindByExternalPaymentID(ctx, payment.ID); err != nil {
		return err
	} else if existing != nil {
		s.metrics.IncWebhookOutcome("duplicate")
		return nil
	}

	key := s.dedup.DedupKey("gateway:payment", payment.ID)
	acquired, err := s.dedup.SetNX(ctx, key, "1", s.cfg.WebhookIdempotencyTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settlement dedup")
	}
	if !acquired {
		s.metrics.IncWebhookOutcome("duplicate")
		return nil
	}

	if err := s.applySettlement(ctx, purpose, payment); err != nil {
		// release the guard so a later retry can settle
		if delErr := s.dedup.Del(ctx, key); delErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release settlement dedup key", delErr)
		}
		s.metrics.IncWebhookOutcome("failed")
		return err
	}

	// The ledger row is authoritative; the intent status is audit trail only.
	if payment.IntentID != "" {
		if err := s.intents.MarkStatusByExternalOrderID(ctx, nil, payment.IntentID, enums.PaymentStatusPaid); err != nil && s.logg != nil {
			s.logg.Error(ctx, "mark payment intent paid", err)
		}
	}

	s.metrics.IncWebhookOutcome("settled")
	s.metrics.ObserveSettleDuration(purpose.String(), time.Since(start))
	return nil
}

func (s *service) applySettlement(ctx context.Context, purpose enums.PaymentPurpose, payment *gateway.Payment) error {
	amount := fromMinorUnits(payment.AmountMinor)
	externalOrderID := payment.IntentID
	externalPaymentID := payment.ID

	switch purpose {
	case enums.PaymentPurposeWalletTopup:
		owner, err := ownerFromNotes(payment.Notes)
		if err != nil {
			return err
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			txn, err := s.ledger.Credit(ctx, tx, ledger.Entry{
				Owner:             owner,
				Kind:              enums.TransactionKindTopup,
				Amount:            amount,
				Method:            enums.PaymentMethodGateway,
				ExternalOrderID:   &externalOrderID,
				ExternalPaymentID: &externalPaymentID,
			})
			if err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventWalletTopup,
				AggregateType: enums.AggregateWallet,
				AggregateID:   owner.ID,
				Data: payloads.WalletTopupEvent{
					OwnerID:       owner.ID,
					OwnerRole:     owner.Role,
					Amount:        amount,
					TransactionID: txn.ID,
				},
			})
		})

	case enums.PaymentPurposeBillPayment:
		jobID, err := uuid.Parse(payment.Notes[noteJobID])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "job id note")
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.jobs.SettleGatewayPayment(ctx, tx, jobs.GatewaySettlementParams{
				JobID:             jobID,
				Amount:            amount,
				ExternalOrderID:   &externalOrderID,
				ExternalPaymentID: &externalPaymentID,
			})
		})

	case enums.PaymentPurposeWholesalePayment, enums.PaymentPurposeStorePayment:
		orderID, err := uuid.Parse(payment.Notes[noteOrderID])
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order id note")
		}
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.orders.SettleGatewayPayment(ctx, tx, orders.GatewaySettlementParams{
				OrderID:           orderID,
				Amount:            amount,
				ExternalOrderID:   &externalOrderID,
				ExternalPaymentID: &externalPaymentID,
			})
		})
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unhandled payment purpose")
}

// Withdraw debits the wallet immediately and parks a pending settlement row
// until the bank transfer clears.
func (s *service) Withdraw(ctx context.Context, params WithdrawParams) (*models.WalletTransaction, error) {
	if !params.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	var txn *models.WalletTransaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		txn, err = s.ledger.Debit(ctx, tx, ledger.Entry{
			Owner:  params.Owner,
			Kind:   enums.TransactionKindSettlement,
			Amount: params.Amount,
			Method: enums.PaymentMethodBankTransfer,
			Status: enums.TransactionStatusPending,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletPayout,
			AggregateType: enums.AggregateWallet,
			AggregateID:   params.Owner.ID,
			Data: payloads.WalletPayoutEvent{
				OwnerID:       params.Owner.ID,
				OwnerRole:     params.Owner.Role,
				Amount:        params.Amount,
				TransactionID: txn.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// CompleteWithdrawal marks the pending settlement completed once the bank
// transfer went through.
func (s *service) CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID) error {
	return s.ledger.MarkTransaction(ctx, nil, transactionID, enums.TransactionStatusCompleted)
}

func ownerFromNotes(notes map[string]string) (ledger.OwnerRef, error) {
	ownerID, err := uuid.Parse(notes[noteOwnerID])
	if err != nil {
		return ledger.OwnerRef{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "owner id note")
	}
	role, err := enums.ParseActorRole(notes[noteOwnerRole])
	if err != nil {
		return ledger.OwnerRef{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "owner role note")
	}
	return ledger.OwnerRef{ID: ownerID, Role: role}, nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

func fromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}
