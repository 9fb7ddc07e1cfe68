package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

type fakeStore struct {
	jobs map[uuid.UUID]*models.ServiceRequest
}

func (f *fakeStore) clone() map[uuid.UUID]*models.ServiceRequest {
	snapshot := make(map[uuid.UUID]*models.ServiceRequest, len(f.jobs))
	for id, job := range f.jobs {
		copied := *job
		copied.Steps = append([]models.JobStep(nil), job.Steps...)
		snapshot[id] = &copied
	}
	return snapshot
}

type fakeRepository struct {
	store *fakeStore
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, job *models.ServiceRequest) error {
	job.ID = uuid.New()
	job.CreatedAt = time.Now().UTC()
	for i := range job.Steps {
		job.Steps[i].ID = uuid.New()
		job.Steps[i].JobID = job.ID
	}
	copied := *job
	copied.Steps = append([]models.JobStep(nil), job.Steps...)
	f.store.jobs[job.ID] = &copied
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	job, ok := f.store.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	copied.Steps = append([]models.JobStep(nil), job.Steps...)
	return &copied, nil
}

func (f *fakeRepository) UpdateWhereStatus(_ context.Context, jobID uuid.UUID, allowed []enums.JobStatus, updates map[string]any) (bool, error) {
	job, ok := f.store.jobs[jobID]
	if !ok {
		return false, nil
	}
	permitted := false
	for _, status := range allowed {
		if job.Status == status {
			permitted = true
			break
		}
	}
	if !permitted {
		return false, nil
	}
	applyUpdates(job, updates)
	return true, nil
}

func (f *fakeRepository) ClaimPending(_ context.Context, jobID, technicianID uuid.UUID) (bool, error) {
	job, ok := f.store.jobs[jobID]
	if !ok {
		return false, nil
	}
	if job.Status != enums.JobStatusPending {
		return false, nil
	}
	if job.TechnicianID != nil && *job.TechnicianID != technicianID {
		return false, nil
	}
	job.Status = enums.JobStatusAccepted
	job.TechnicianID = &technicianID
	return true, nil
}

func (f *fakeRepository) CompleteStep(_ context.Context, jobID uuid.UUID, name string, at time.Time) error {
	job, ok := f.store.jobs[jobID]
	if !ok {
		return nil
	}
	for i := range job.Steps {
		if job.Steps[i].Name == name && job.Steps[i].CompletedAt == nil {
			stamped := at
			job.Steps[i].CompletedAt = &stamped
		}
	}
	return nil
}

func (f *fakeRepository) ApplyRating(_ context.Context, jobID uuid.UUID, rating int, review *string) (bool, error) {
	job, ok := f.store.jobs[jobID]
	if !ok || job.Status != enums.JobStatusCompleted || job.Rating != nil {
		return false, nil
	}
	job.Rating = &rating
	job.Review = review
	return true, nil
}

func (f *fakeRepository) ListByCustomer(_ context.Context, customerID uuid.UUID, _ pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error) {
	var rows []models.ServiceRequest
	for _, job := range f.store.jobs {
		if job.CustomerID == customerID {
			rows = append(rows, *job)
		}
	}
	return rows, nil, nil
}

func (f *fakeRepository) ListByTechnician(_ context.Context, technicianID uuid.UUID, _ pagination.Params) ([]models.ServiceRequest, *pagination.Cursor, error) {
	var rows []models.ServiceRequest
	for _, job := range f.store.jobs {
		if job.TechnicianID != nil && *job.TechnicianID == technicianID {
			rows = append(rows, *job)
		}
	}
	return rows, nil, nil
}

func applyUpdates(job *models.ServiceRequest, updates map[string]any) {
	for column, value := range updates {
		switch column {
		case "status":
			job.Status = value.(enums.JobStatus)
		case "technician_id":
			id := value.(uuid.UUID)
			job.TechnicianID = &id
		case "quote_items":
			job.QuoteItems = value.(types.LineItems)
		case "quote_total":
			job.QuoteTotal = value.(decimal.Decimal)
		case "bill_items":
			job.BillItems = value.(types.LineItems)
		case "bill_total":
			job.BillTotal = value.(decimal.Decimal)
		case "bill_state":
			job.BillState = value.(enums.PaymentStatus)
		case "payment_method":
			method := value.(enums.PaymentMethod)
			job.PaymentMethod = &method
		case "parts_source":
			source := value.(enums.PartsSource)
			job.PartsSource = &source
		case "cancellation_reason":
			reason := value.(string)
			job.CancellationReason = &reason
		case "cancelled_by":
			by := value.(enums.CancelActor)
			job.CancelledBy = &by
		}
	}
}

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) eventTypes() []enums.OutboxEventType {
	var out []enums.OutboxEventType
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeTxRunner restores repository and outbox state when the callback fails,
// mirroring a database rollback.
type fakeTxRunner struct {
	store  *fakeStore
	outbox *recordingOutbox
	ledger *fakeLedger
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	jobsSnapshot := f.store.clone()
	eventsLen := len(f.outbox.events)
	balancesSnapshot := f.ledger.cloneBalances()
	if err := fn(nil); err != nil {
		f.store.jobs = jobsSnapshot
		f.outbox.events = f.outbox.events[:eventsLen]
		f.ledger.balances = balancesSnapshot
		return err
	}
	return nil
}

type fakeLedger struct {
	balances        map[uuid.UUID]decimal.Decimal
	cashSettlements []ledger.CashSettlementParams
	external        []ledger.ExternalSettlementParams
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[uuid.UUID]decimal.Decimal)}
}

func (f *fakeLedger) cloneBalances() map[uuid.UUID]decimal.Decimal {
	snapshot := make(map[uuid.UUID]decimal.Decimal, len(f.balances))
	for id, balance := range f.balances {
		snapshot[id] = balance
	}
	return snapshot
}

func (f *fakeLedger) Credit(_ context.Context, _ *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, error) {
	f.balances[entry.Owner.ID] = f.balances[entry.Owner.ID].Add(entry.Amount)
	return &models.WalletTransaction{ID: uuid.New(), Amount: entry.Amount}, nil
}

func (f *fakeLedger) Debit(_ context.Context, _ *gorm.DB, entry ledger.Entry) (*models.WalletTransaction, error) {
	if f.balances[entry.Owner.ID].LessThan(entry.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "wallet balance too low")
	}
	f.balances[entry.Owner.ID] = f.balances[entry.Owner.ID].Sub(entry.Amount)
	return &models.WalletTransaction{ID: uuid.New(), Amount: entry.Amount}, nil
}

func (f *fakeLedger) Transfer(ctx context.Context, tx *gorm.DB, params ledger.TransferParams) (*ledger.TransferResult, error) {
	payerTxn, err := f.Debit(ctx, tx, ledger.Entry{Owner: params.Payer, Kind: enums.TransactionKindPayment, Amount: params.Amount})
	if err != nil {
		return nil, err
	}
	payeeTxn, err := f.Credit(ctx, tx, ledger.Entry{Owner: params.Payee, Kind: enums.TransactionKindEarnings, Amount: params.Amount})
	if err != nil {
		return nil, err
	}
	return &ledger.TransferResult{PayerTxn: payerTxn, PayeeTxn: payeeTxn}, nil
}

func (f *fakeLedger) RecordCashSettlement(_ context.Context, _ *gorm.DB, params ledger.CashSettlementParams) (*ledger.TransferResult, error) {
	f.cashSettlements = append(f.cashSettlements, params)
	return &ledger.TransferResult{
		PayerTxn: &models.WalletTransaction{ID: uuid.New()},
		PayeeTxn: &models.WalletTransaction{ID: uuid.New()},
	}, nil
}

func (f *fakeLedger) SettleExternal(ctx context.Context, tx *gorm.DB, params ledger.ExternalSettlementParams) (*ledger.TransferResult, error) {
	f.external = append(f.external, params)
	payeeTxn, err := f.Credit(ctx, tx, ledger.Entry{Owner: params.Payee, Kind: enums.TransactionKindEarnings, Amount: params.Amount})
	if err != nil {
		return nil, err
	}
	return &ledger.TransferResult{
		PayerTxn: &models.WalletTransaction{ID: uuid.New()},
		PayeeTxn: payeeTxn,
	}, nil
}

func (f *fakeLedger) FindByExternalPaymentID(context.Context, string) (*models.WalletTransaction, error) {
	return nil, nil
}

func (f *fakeLedger) MarkTransaction(context.Context, *gorm.DB, uuid.UUID, enums.TransactionStatus) error {
	return nil
}

func (f *fakeLedger) History(context.Context, ledger.OwnerRef, pagination.Params) (*ledger.HistoryResult, error) {
	return &ledger.HistoryResult{}, nil
}

func (f *fakeLedger) BalanceOf(_ context.Context, owner ledger.OwnerRef) (decimal.Decimal, error) {
	return f.balances[owner.ID], nil
}

type harness struct {
	store  *fakeStore
	outbox *recordingOutbox
	ledger *fakeLedger
	svc    Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &fakeStore{jobs: make(map[uuid.UUID]*models.ServiceRequest)}
	events := &recordingOutbox{}
	fakeLedgerSvc := newFakeLedger()
	runner := &fakeTxRunner{store: store, outbox: events, ledger: fakeLedgerSvc}

	svc, err := NewService(&fakeRepository{store: store}, runner, events, fakeLedgerSvc, config.MarketplaceConfig{}, nil)
	require.NoError(t, err)
	return &harness{store: store, outbox: events, ledger: fakeLedgerSvc, svc: svc}
}

func (h *harness) createBroadcastJob(t *testing.T, customerID uuid.UUID) *models.ServiceRequest {
	t.Helper()
	job, err := h.svc.Create(context.Background(), CreateParams{
		CustomerID:    customerID,
		VehicleRef:    "KA01AB1234",
		Description:   "engine knocking at idle",
		ServiceType:   "engine",
		ServiceMethod: "doorstep",
	})
	require.NoError(t, err)
	return job
}

func (h *harness) job(t *testing.T, id uuid.UUID) *models.ServiceRequest {
	t.Helper()
	job, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func billedJobItems() types.LineItems {
	return types.LineItems{
		types.PricedItem("brake pads", 1, decimal.RequireFromString("500.00")),
		types.PricedItem("labor", 1, decimal.RequireFromString("200.00")),
		types.NoteItem("old pads returned to customer"),
	}
}

func TestCreateSeedsChecklistAndEmitsEvent(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()

	job := h.createBroadcastJob(t, customerID)

	assert.Equal(t, enums.JobStatusPending, job.Status)
	assert.True(t, job.IsBroadcast)
	assert.Nil(t, job.TechnicianID)
	require.Len(t, job.Steps, 7)
	assert.Equal(t, StepRequestCreated, job.Steps[0].Name)
	assert.NotNil(t, job.Steps[0].CompletedAt)
	assert.Nil(t, job.Steps[1].CompletedAt)
	assert.Equal(t, []enums.OutboxEventType{enums.EventJobCreated}, h.outbox.eventTypes())
}

func TestDirectRequestRemainsProposal(t *testing.T) {
	h := newHarness(t)
	technicianID := uuid.New()

	job, err := h.svc.Create(context.Background(), CreateParams{
		CustomerID:    uuid.New(),
		TechnicianID:  &technicianID,
		VehicleRef:    "KA01AB1234",
		Description:   "flat tire",
		ServiceType:   "tires",
		ServiceMethod: "doorstep",
	})
	require.NoError(t, err)

	assert.Equal(t, enums.JobStatusPending, job.Status)
	assert.False(t, job.IsBroadcast)
	require.NotNil(t, job.TechnicianID)
	assert.Equal(t, technicianID, *job.TechnicianID)
}

func TestAcceptAssignsAndStampsStep(t *testing.T) {
	h := newHarness(t)
	job := h.createBroadcastJob(t, uuid.New())
	technicianID := uuid.New()

	accepted, err := h.svc.Accept(context.Background(), technicianID, job.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.JobStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.TechnicianID)
	assert.Equal(t, technicianID, *accepted.TechnicianID)
	for _, step := range accepted.Steps {
		if step.Name == StepTechnicianAssigned {
			assert.NotNil(t, step.CompletedAt)
		}
	}
	assert.Contains(t, h.outbox.eventTypes(), enums.EventJobAccepted)
}

func TestAcceptSecondTechnicianForbidden(t *testing.T) {
	h := newHarness(t)
	job := h.createBroadcastJob(t, uuid.New())

	_, err := h.svc.Accept(context.Background(), uuid.New(), job.ID)
	require.NoError(t, err)

	_, err = h.svc.Accept(context.Background(), uuid.New(), job.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestAcceptDirectRequestWrongTechnicianForbidden(t *testing.T) {
	h := newHarness(t)
	targetID := uuid.New()
	job, err := h.svc.Create(context.Background(), CreateParams{
		CustomerID:    uuid.New(),
		TechnicianID:  &targetID,
		VehicleRef:    "KA01AB1234",
		Description:   "battery dead",
		ServiceType:   "electrical",
		ServiceMethod: "doorstep",
	})
	require.NoError(t, err)

	_, err = h.svc.Accept(context.Background(), uuid.New(), job.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.Accept(context.Background(), targetID, job.ID)
	require.NoError(t, err)
}

func TestQuoteTotalsExcludeNotesAndApprovalRecordsPartsSource(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.createBroadcastJob(t, customerID)
	_, err := h.svc.Accept(context.Background(), technicianID, job.ID)
	require.NoError(t, err)

	err = h.svc.SubmitQuote(context.Background(), SubmitQuoteParams{
		TechnicianID: technicianID,
		JobID:        job.ID,
		Items:        billedJobItems(),
	})
	require.NoError(t, err)

	quoted := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusQuotePending, quoted.Status)
	assert.True(t, quoted.QuoteTotal.Equal(decimal.RequireFromString("700.00")))

	err = h.svc.RespondQuote(context.Background(), QuoteDecisionParams{
		CustomerID:  customerID,
		JobID:       job.ID,
		Approve:     true,
		PartsSource: enums.PartsSourceCustomer,
	})
	require.NoError(t, err)

	approved := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusInProgress, approved.Status)
	require.NotNil(t, approved.PartsSource)
	assert.Equal(t, enums.PartsSourceCustomer, *approved.PartsSource)
}

func TestQuoteRejectionAllowsRequote(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.createBroadcastJob(t, customerID)
	_, err := h.svc.Accept(context.Background(), technicianID, job.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.SubmitQuote(context.Background(), SubmitQuoteParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	require.NoError(t, h.svc.RespondQuote(context.Background(), QuoteDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: false,
	}))
	assert.Equal(t, enums.JobStatusQuoteRejected, h.job(t, job.ID).Status)

	require.NoError(t, h.svc.SubmitQuote(context.Background(), SubmitQuoteParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	assert.Equal(t, enums.JobStatusQuotePending, h.job(t, job.ID).Status)
}

func TestRespondQuoteOutsideQuotePendingConflicts(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	job := h.createBroadcastJob(t, customerID)

	err := h.svc.RespondQuote(context.Background(), QuoteDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, PartsSource: enums.PartsSourceTechnician,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func (h *harness) jobReadyForBilling(t *testing.T, customerID, technicianID uuid.UUID) *models.ServiceRequest {
	t.Helper()
	job := h.createBroadcastJob(t, customerID)
	_, err := h.svc.Accept(context.Background(), technicianID, job.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.SubmitQuote(context.Background(), SubmitQuoteParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	require.NoError(t, h.svc.RespondQuote(context.Background(), QuoteDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, PartsSource: enums.PartsSourceTechnician,
	}))
	require.NoError(t, h.svc.SubmitBill(context.Background(), SubmitBillParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	return h.job(t, job.ID)
}

func TestWalletBillPaymentInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)
	h.ledger.balances[customerID] = decimal.RequireFromString("500.00")

	_, err := h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodWallet,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))

	// rollback must leave the job billable and the wallet untouched
	assert.Equal(t, enums.JobStatusBillingPending, h.job(t, job.ID).Status)
	assert.True(t, h.ledger.balances[customerID].Equal(decimal.RequireFromString("500.00")))
}

func TestWalletBillPaymentCompletesJob(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)
	h.ledger.balances[customerID] = decimal.RequireFromString("1000.00")

	result, err := h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodWallet,
	})
	require.NoError(t, err)
	assert.False(t, result.RequiresGatewayPayment)

	settled := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusCompleted, settled.Status)
	assert.Equal(t, enums.PaymentStatusPaid, settled.BillState)
	assert.True(t, h.ledger.balances[customerID].Equal(decimal.RequireFromString("300.00")))
	assert.True(t, h.ledger.balances[technicianID].Equal(decimal.RequireFromString("700.00")))
	assert.Contains(t, h.outbox.eventTypes(), enums.EventJobPaid)
	assert.Contains(t, h.outbox.eventTypes(), enums.EventJobCompleted)
}

func TestBillRejectionParksJob(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, uuid.New())

	_, err := h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: false,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusBillRejected, h.job(t, job.ID).Status)
}

func TestDeliverVehicleKeepsBillAnswerable(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)

	// a stranger cannot hand the vehicle back
	err := h.svc.DeliverVehicle(context.Background(), uuid.New(), job.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, h.svc.DeliverVehicle(context.Background(), technicianID, job.ID))

	delivered := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusVehicleDelivered, delivered.Status)
	for _, step := range delivered.Steps {
		if step.Name == StepDelivery {
			assert.NotNil(t, step.CompletedAt)
		}
	}
	assert.Contains(t, h.outbox.eventTypes(), enums.EventJobDelivered)

	// delivering twice conflicts
	err = h.svc.DeliverVehicle(context.Background(), technicianID, job.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// the bill remains payable after the handover
	h.ledger.balances[customerID] = decimal.RequireFromString("700.00")
	_, err = h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodWallet,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusCompleted, h.job(t, job.ID).Status)
}

func TestDeliverVehicleBeforeBilling(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.createBroadcastJob(t, customerID)
	_, err := h.svc.Accept(context.Background(), technicianID, job.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.SubmitQuote(context.Background(), SubmitQuoteParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	require.NoError(t, h.svc.RespondQuote(context.Background(), QuoteDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, PartsSource: enums.PartsSourceTechnician,
	}))

	require.NoError(t, h.svc.DeliverVehicle(context.Background(), technicianID, job.ID))
	assert.Equal(t, enums.JobStatusVehicleDelivered, h.job(t, job.ID).Status)

	// billing still works after the vehicle went back
	require.NoError(t, h.svc.SubmitBill(context.Background(), SubmitBillParams{
		TechnicianID: technicianID, JobID: job.ID, Items: billedJobItems(),
	}))
	assert.Equal(t, enums.JobStatusBillingPending, h.job(t, job.ID).Status)
}

func TestCashPaymentAwaitsTechnicianConfirmation(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)

	_, err := h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.JobStatusPaymentPendingCash, h.job(t, job.ID).Status)

	require.NoError(t, h.svc.ConfirmCashPayment(context.Background(), technicianID, job.ID))

	confirmed := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusCompleted, confirmed.Status)
	assert.Equal(t, enums.PaymentStatusPaid, confirmed.BillState)
	require.Len(t, h.ledger.cashSettlements, 1)
	assert.True(t, h.ledger.cashSettlements[0].Amount.Equal(decimal.RequireFromString("700.00")))
}

func TestManualCompletionGuardRejectsGatewayJob(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)

	result, err := h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodGateway,
	})
	require.NoError(t, err)
	assert.True(t, result.RequiresGatewayPayment)
	assert.Equal(t, enums.JobStatusBillingPending, h.job(t, job.ID).Status)

	err = h.svc.ConfirmCashPayment(context.Background(), technicianID, job.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.NotEqual(t, enums.JobStatusCompleted, h.job(t, job.ID).Status)
}

func TestSettleGatewayPaymentAmountMismatch(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, uuid.New())

	payID := "pay_1"
	err := h.svc.SettleGatewayPayment(context.Background(), nil, GatewaySettlementParams{
		JobID:             job.ID,
		Amount:            decimal.RequireFromString("650.00"),
		ExternalPaymentID: &payID,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodePaymentVerification))
	assert.Equal(t, enums.JobStatusBillingPending, h.job(t, job.ID).Status)
}

func TestSettleGatewayPaymentCompletesOnce(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)

	payID := "pay_1"
	err := h.svc.SettleGatewayPayment(context.Background(), nil, GatewaySettlementParams{
		JobID:             job.ID,
		Amount:            decimal.RequireFromString("700.00"),
		ExternalPaymentID: &payID,
	})
	require.NoError(t, err)

	settled := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusCompleted, settled.Status)
	assert.True(t, h.ledger.balances[technicianID].Equal(decimal.RequireFromString("700.00")))

	// the status guard blocks a second settlement of the same job
	err = h.svc.SettleGatewayPayment(context.Background(), nil, GatewaySettlementParams{
		JobID:             job.ID,
		Amount:            decimal.RequireFromString("700.00"),
		ExternalPaymentID: &payID,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelRules(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()

	// customer may cancel while pending
	job := h.createBroadcastJob(t, customerID)
	require.NoError(t, h.svc.Cancel(context.Background(), CancelParams{
		ActorID: customerID, Role: enums.ActorRoleCustomer, JobID: job.ID, Reason: "changed my mind",
	}))
	cancelled := h.job(t, job.ID)
	assert.Equal(t, enums.JobStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, enums.CancelActorCustomer, *cancelled.CancelledBy)

	// customer cannot cancel once work is in progress
	inProgress := h.jobReadyForBilling(t, customerID, technicianID)
	err := h.svc.Cancel(context.Background(), CancelParams{
		ActorID: customerID, Role: enums.ActorRoleCustomer, JobID: inProgress.ID, Reason: "too slow",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	// admin can cancel any non-terminal job
	require.NoError(t, h.svc.Cancel(context.Background(), CancelParams{
		ActorID: uuid.New(), Role: enums.ActorRoleAdmin, JobID: inProgress.ID, Reason: "support escalation",
	}))
	assert.Equal(t, enums.JobStatusCancelled, h.job(t, inProgress.ID).Status)

	// missing reason rejected up front
	err = h.svc.Cancel(context.Background(), CancelParams{
		ActorID: customerID, Role: enums.ActorRoleCustomer, JobID: job.ID,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestRateOnlyOnceFromCompleted(t *testing.T) {
	h := newHarness(t)
	customerID := uuid.New()
	technicianID := uuid.New()
	job := h.jobReadyForBilling(t, customerID, technicianID)

	// not completed yet
	err := h.svc.Rate(context.Background(), RateParams{CustomerID: customerID, JobID: job.ID, Rating: 5})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	h.ledger.balances[customerID] = decimal.RequireFromString("700.00")
	_, err = h.svc.RespondBill(context.Background(), BillDecisionParams{
		CustomerID: customerID, JobID: job.ID, Approve: true, Method: enums.PaymentMethodWallet,
	})
	require.NoError(t, err)

	err = h.svc.Rate(context.Background(), RateParams{CustomerID: customerID, JobID: job.ID, Rating: 6})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	review := "quick and tidy"
	require.NoError(t, h.svc.Rate(context.Background(), RateParams{
		CustomerID: customerID, JobID: job.ID, Rating: 5, Review: &review,
	}))

	err = h.svc.Rate(context.Background(), RateParams{CustomerID: customerID, JobID: job.ID, Rating: 4})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}
