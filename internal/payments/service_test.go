package payments

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/internal/jobs"
	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/internal/orders"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/gateway"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
)

const (
	goodSignature        = "sig-ok"
	goodWebhookSignature = "whsig-ok"
)

type fakeGateway struct {
	intents  []gateway.CreateIntentParams
	payments map[string]*gateway.Payment
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]*gateway.Payment)}
}

func (f *fakeGateway) CreateIntent(_ context.Context, params gateway.CreateIntentParams) (*gateway.Intent, error) {
	f.intents = append(f.intents, params)
	return &gateway.Intent{
		ID:          "order_" + uuid.NewString()[:8],
		AmountMinor: params.AmountMinor,
		Currency:    params.Currency,
		Receipt:     params.Receipt,
		Status:      gateway.IntentCreated,
		Notes:       params.Notes,
	}, nil
}

func (f *fakeGateway) FetchPayment(_ context.Context, paymentID string) (*gateway.Payment, error) {
	payment, ok := f.payments[paymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	copied := *payment
	return &copied, nil
}

func (f *fakeGateway) VerifySignature(intentID, paymentID, signature string) bool {
	return intentID != "" && paymentID != "" && signature == goodSignature
}

func (f *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return len(body) > 0 && signature == goodWebhookSignature
}

func (f *fakeGateway) Currency() string { return "INR" }

type fakeDedup struct {
	keys map[string]bool
}

func (f *fakeDedup) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeDedup) DedupKey(scope, id string) string {
	return "th:dedup:" + scope + ":" + id
}

func (f *fakeDedup) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

type fakeJobSettler struct {
	calls []jobs.GatewaySettlementParams
	err   error
}

func (f *fakeJobSettler) SettleGatewayPayment(_ context.Context, _ *gorm.DB, params jobs.GatewaySettlementParams) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, params)
	return nil
}

type fakeOrderSettler struct {
	calls []orders.GatewaySettlementParams
}

func (f *fakeOrderSettler) SettleGatewayPayment(_ context.Context, _ *gorm.DB, params orders.GatewaySettlementParams) error {
	f.calls = append(f.calls, params)
	return nil
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fakeTxRunner struct {
	ledger *fakeLedger
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	snapshot := f.ledger.cloneBalances()
	if err := fn(nil); err != nil {
		f.ledger.balances = snapshot
		return err
	}
	return nil
}

type fakeLedger struct {
	balances map[uuid.UUID]decimal.Decimal
	txns     []*models.WalletTransaction
	settled  map[string]*models.WalletTransaction
	statuses map[uuid.UUID]enums.TransactionStatus
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[uuid.UUID]decimal.Decimal),
		settled:  make(map[string]*models.WalletTransaction),
		statuses: make(map[uuid.UUID]enums.TransactionStatus),
	}
}

func (f *fakeLedger) cloneBalances() map[uuid.UUID]decimal.Decimal {
	snapshot := make(map[uuid.UUID]decimal.Decimal, len(f.balances))
	for id, balance := range f.balances {
		snapshot[id] = balance
	}
	return snapshot
}

func (f *fakeLedger) record(entry ledger.Entry) *models.WalletTransaction {
	txn := &models.WalletTransaction{
		ID:                uuid.New(),
		OwnerID:           entry.Owner.ID,
		OwnerRole:         entry.Owner.Role,
		Kind:              entry.Kind,
		Amount:            entry.Amount,
		PaymentMethod:     entry.Method,
		ExternalOrderID:   entry.ExternalOrderID,
		ExternalPaymentID: entry.ExternalPaymentID,
		Status:            entry.Status,
	}
	if txn.Status == "" {
		txn.Status = enums.TransactionStatusCompleted
	}
	f.txns = append(f.txns, txn)
	if entry.ExternalPaymentID != nil {
		f.settled[*entry.ExternalPaymentID] = txn
	}
	return txn
}

func (f *fakeLedger) Credit(_ context.Context, _ *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, error) {
	f.balances[entry.Owner.ID] = f.balances[entry.Owner.ID].Add(entry.Amount)
	return f.record(entry), nil
}

func (f *fakeLedger) Debit(_ context.Context, _ *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, error) {
	if f.balances[entry.Owner.ID].LessThan(entry.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "wallet balance too low")
	}
	f.balances[entry.Owner.ID] = f.balances[entry.Owner.ID].Sub(entry.Amount)
	return f.record(entry), nil
}

func (f *fakeLedger) Transfer(context.Context, *gorm.DB, ledger.TransferParams) (*ledger.TransferResult, error) {
	return &ledger.TransferResult{}, nil
}

func (f *fakeLedger) RecordCashSettlement(context.Context, *gorm.DB, ledger.CashSettlementParams) (*ledger.TransferResult, error) {
	return &ledger.TransferResult{}, nil
}

func (f *fakeLedger) SettleExternal(context.Context, *gorm.DB, ledger.ExternalSettlementParams) (*ledger.TransferResult, error) {
	return &ledger.TransferResult{}, nil
}

func (f *fakeLedger) FindByExternalPaymentID(_ context.Context, externalPaymentID string) (*models.WalletTransaction, error) {
	return f.settled[externalPaymentID], nil
}

func (f *fakeLedger) MarkTransaction(_ context.Context, _ *gorm.DB, id uuid.UUID, status enums.TransactionStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeLedger) History(context.Context, ledger.OwnerRef, pagination.Params) (*ledger.HistoryResult, error) {
	return &ledger.HistoryResult{}, nil
}

func (f *fakeLedger) BalanceOf(_ context.Context, owner ledger.OwnerRef) (decimal.Decimal, error) {
	return f.balances[owner.ID], nil
}

type fakeIntentStore struct {
	created  []*models.PaymentIntent
	statuses map[string]enums.PaymentStatus
}

func (f *fakeIntentStore) Create(_ context.Context, intent *models.PaymentIntent) error {
	f.created = append(f.created, intent)
	return nil
}

func (f *fakeIntentStore) MarkStatusByExternalOrderID(_ context.Context, _ *gorm.DB, externalOrderID string, status enums.PaymentStatus) error {
	f.statuses[externalOrderID] = status
	return nil
}

type harness struct {
	gateway *fakeGateway
	dedup   *fakeDedup
	jobs    *fakeJobSettler
	orders  *fakeOrderSettler
	ledger  *fakeLedger
	outbox  *recordingOutbox
	intents *fakeIntentStore
	svc     Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gw := newFakeGateway()
	dedup := &fakeDedup{keys: make(map[string]bool)}
	jobSettler := &fakeJobSettler{}
	orderSettler := &fakeOrderSettler{}
	ledgerSvc := newFakeLedger()
	events := &recordingOutbox{}
	runner := &fakeTxRunner{ledger: ledgerSvc}

	intents := &fakeIntentStore{statuses: make(map[string]enums.PaymentStatus)}
	svc, err := NewService(gw, ledgerSvc, jobSettler, orderSettler, runner, events, dedup, intents,
		config.MarketplaceConfig{WebhookIdempotencyTTL: time.Hour}, nil, nil)
	require.NoError(t, err)
	return &harness{
		gateway: gw, dedup: dedup, jobs: jobSettler, orders: orderSettler,
		ledger: ledgerSvc, outbox: events, intents: intents, svc: svc,
	}
}

func capturedPayment(id, intentID string, amountMinor int64, notes map[string]string) *gateway.Payment {
	return &gateway.Payment{
		ID:          id,
		IntentID:    intentID,
		AmountMinor: amountMinor,
		Currency:    "INR",
		Status:      gateway.PaymentCaptured,
		Notes:       notes,
	}
}

func webhookBody(t *testing.T, event string, payment *gateway.Payment) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{"entity": payment},
		},
	})
	require.NoError(t, err)
	return body
}

func TestCreateIntentCarriesPurposeAndMinorUnits(t *testing.T) {
	h := newHarness(t)
	jobID := uuid.New()
	ownerID := uuid.New()

	intent, err := h.svc.CreateIntent(context.Background(), IntentParams{
		Purpose:   enums.PaymentPurposeBillPayment,
		OwnerID:   ownerID,
		OwnerRole: enums.ActorRoleCustomer,
		JobID:     &jobID,
		Amount:    decimal.RequireFromString("499.99"),
	})
	require.NoError(t, err)

	require.Len(t, h.gateway.intents, 1)
	staged := h.gateway.intents[0]
	assert.Equal(t, int64(49999), staged.AmountMinor)
	assert.Equal(t, "INR", staged.Currency)
	assert.Equal(t, "job-"+jobID.String(), staged.Receipt)
	assert.Equal(t, "bill_payment", staged.Notes["purpose"])
	assert.Equal(t, jobID.String(), staged.Notes["jobId"])
	assert.Equal(t, ownerID.String(), staged.Notes["ownerId"])
	assert.Equal(t, gateway.IntentCreated, intent.Status)

	require.Len(t, h.intents.created, 1)
	record := h.intents.created[0]
	assert.Equal(t, intent.ID, record.ExternalOrderID)
	assert.Equal(t, enums.PaymentStatusPending, record.Status)
	require.NotNil(t, record.JobID)
	assert.Equal(t, jobID, *record.JobID)
}

func TestCreateIntentRequiresDomainReference(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateIntent(context.Background(), IntentParams{
		Purpose:   enums.PaymentPurposeBillPayment,
		OwnerID:   uuid.New(),
		OwnerRole: enums.ActorRoleCustomer,
		Amount:    decimal.RequireFromString("100.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.CreateIntent(context.Background(), IntentParams{
		Purpose:   enums.PaymentPurposeWholesalePayment,
		OwnerID:   uuid.New(),
		OwnerRole: enums.ActorRoleTechnician,
		Amount:    decimal.RequireFromString("100.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestConfirmRejectsBadSignature(t *testing.T) {
	h := newHarness(t)

	err := h.svc.Confirm(context.Background(), ConfirmParams{
		IntentID: "order_1", PaymentID: "pay_1", Signature: "forged",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
	assert.Empty(t, h.jobs.calls)
}

func TestConfirmSettlesBillPayment(t *testing.T) {
	h := newHarness(t)
	jobID := uuid.New()
	h.gateway.payments["pay_1"] = capturedPayment("pay_1", "order_1", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   jobID.String(),
	})

	err := h.svc.Confirm(context.Background(), ConfirmParams{
		IntentID: "order_1", PaymentID: "pay_1", Signature: goodSignature,
	})
	require.NoError(t, err)

	require.Len(t, h.jobs.calls, 1)
	call := h.jobs.calls[0]
	assert.Equal(t, jobID, call.JobID)
	assert.True(t, call.Amount.Equal(decimal.RequireFromString("700.00")))
	require.NotNil(t, call.ExternalPaymentID)
	assert.Equal(t, "pay_1", *call.ExternalPaymentID)
	assert.Equal(t, enums.PaymentStatusPaid, h.intents.statuses["order_1"])
}

func TestConfirmRejectsUncapturedPayment(t *testing.T) {
	h := newHarness(t)
	payment := capturedPayment("pay_1", "order_1", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})
	payment.Status = gateway.PaymentFailed
	h.gateway.payments["pay_1"] = payment

	err := h.svc.Confirm(context.Background(), ConfirmParams{
		IntentID: "order_1", PaymentID: "pay_1", Signature: goodSignature,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
	assert.Empty(t, h.jobs.calls)
}

func TestWebhookSettlesOrderPayment(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	payment := capturedPayment("pay_2", "order_2", 420000, map[string]string{
		"purpose": "wholesale_payment",
		"orderId": orderID.String(),
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.captured", payment), goodWebhookSignature)
	require.NoError(t, err)

	require.Len(t, h.orders.calls, 1)
	assert.Equal(t, orderID, h.orders.calls[0].OrderID)
	assert.True(t, h.orders.calls[0].Amount.Equal(decimal.RequireFromString("4200.00")))
}

func TestWebhookOrderPaidSettles(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	payment := capturedPayment("pay_10", "order_10", 140000, map[string]string{
		"purpose": "store_payment",
		"orderId": orderID.String(),
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "order.paid", payment), goodWebhookSignature)
	require.NoError(t, err)

	require.Len(t, h.orders.calls, 1)
	assert.Equal(t, orderID, h.orders.calls[0].OrderID)
	assert.True(t, h.orders.calls[0].Amount.Equal(decimal.RequireFromString("1400.00")))
}

func TestWebhookOrderPaidReplayAfterCaptureIsNoOp(t *testing.T) {
	h := newHarness(t)
	orderID := uuid.New()
	payment := capturedPayment("pay_11", "order_11", 140000, map[string]string{
		"purpose": "store_payment",
		"orderId": orderID.String(),
	})

	// the gateway fires both success events for the same payment
	require.NoError(t, h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.captured", payment), goodWebhookSignature))
	require.NoError(t, h.svc.HandleWebhook(context.Background(), webhookBody(t, "order.paid", payment), goodWebhookSignature))

	assert.Len(t, h.orders.calls, 1)
}

func TestWebhookReplayIsNoOp(t *testing.T) {
	h := newHarness(t)
	payment := capturedPayment("pay_3", "order_3", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})
	body := webhookBody(t, "payment.captured", payment)

	require.NoError(t, h.svc.HandleWebhook(context.Background(), body, goodWebhookSignature))
	require.NoError(t, h.svc.HandleWebhook(context.Background(), body, goodWebhookSignature))
	require.NoError(t, h.svc.HandleWebhook(context.Background(), body, goodWebhookSignature))

	// delivered three times, settled exactly once
	assert.Len(t, h.jobs.calls, 1)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	payment := capturedPayment("pay_4", "order_4", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.captured", payment), "forged")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
	assert.Empty(t, h.jobs.calls)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	h := newHarness(t)
	payment := capturedPayment("pay_5", "order_5", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.authorized", payment), goodWebhookSignature)
	require.NoError(t, err)
	assert.Empty(t, h.jobs.calls)
}

func TestSettleReleasesGuardOnFailure(t *testing.T) {
	h := newHarness(t)
	payment := capturedPayment("pay_6", "order_6", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})
	body := webhookBody(t, "payment.captured", payment)

	h.jobs.err = pkgerrors.New(pkgerrors.CodeStateConflict, "job not billable yet")
	err := h.svc.HandleWebhook(context.Background(), body, goodWebhookSignature)
	require.Error(t, err)

	// the dedup key was released, so the gateway's retry can settle
	h.jobs.err = nil
	require.NoError(t, h.svc.HandleWebhook(context.Background(), body, goodWebhookSignature))
	assert.Len(t, h.jobs.calls, 1)
}

func TestLedgerProbeShortCircuitsSettledPayments(t *testing.T) {
	h := newHarness(t)
	payID := "pay_7"
	h.ledger.settled[payID] = &models.WalletTransaction{ID: uuid.New(), ExternalPaymentID: &payID}
	payment := capturedPayment(payID, "order_7", 70000, map[string]string{
		"purpose": "bill_payment",
		"jobId":   uuid.NewString(),
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.captured", payment), goodWebhookSignature)
	require.NoError(t, err)
	assert.Empty(t, h.jobs.calls)
}

func TestTopupCreditsWalletAndEmitsEvent(t *testing.T) {
	h := newHarness(t)
	ownerID := uuid.New()
	payment := capturedPayment("pay_8", "order_8", 150000, map[string]string{
		"purpose":   "wallet_topup",
		"ownerId":   ownerID.String(),
		"ownerRole": "customer",
	})

	err := h.svc.HandleWebhook(context.Background(), webhookBody(t, "payment.captured", payment), goodWebhookSignature)
	require.NoError(t, err)

	assert.True(t, h.ledger.balances[ownerID].Equal(decimal.RequireFromString("1500.00")))
	require.Len(t, h.ledger.txns, 1)
	assert.Equal(t, enums.TransactionKindTopup, h.ledger.txns[0].Kind)
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, enums.EventWalletTopup, h.outbox.events[0].EventType)
}

func TestWithdrawParksPendingSettlement(t *testing.T) {
	h := newHarness(t)
	ownerID := uuid.New()
	owner := ledger.OwnerRef{ID: ownerID, Role: enums.ActorRoleTechnician}
	h.ledger.balances[ownerID] = decimal.RequireFromString("1000.00")

	txn, err := h.svc.Withdraw(context.Background(), WithdrawParams{
		Owner: owner, Amount: decimal.RequireFromString("400.00"),
	})
	require.NoError(t, err)

	assert.True(t, h.ledger.balances[ownerID].Equal(decimal.RequireFromString("600.00")))
	assert.Equal(t, enums.TransactionKindSettlement, txn.Kind)
	assert.Equal(t, enums.PaymentMethodBankTransfer, txn.PaymentMethod)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	require.Len(t, h.outbox.events, 1)
	assert.Equal(t, enums.EventWalletPayout, h.outbox.events[0].EventType)

	require.NoError(t, h.svc.CompleteWithdrawal(context.Background(), txn.ID))
	assert.Equal(t, enums.TransactionStatusCompleted, h.ledger.statuses[txn.ID])
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	ownerID := uuid.New()
	h.ledger.balances[ownerID] = decimal.RequireFromString("100.00")

	_, err := h.svc.Withdraw(context.Background(), WithdrawParams{
		Owner:  ledger.OwnerRef{ID: ownerID, Role: enums.ActorRoleSupplier},
		Amount: decimal.RequireFromString("400.00"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))
	assert.True(t, h.ledger.balances[ownerID].Equal(decimal.RequireFromString("100.00")))
	assert.Empty(t, h.outbox.events)
}
