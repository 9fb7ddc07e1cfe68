package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/outbox/payloads"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

// Checklist step names seeded on every job. Step timestamps feed
// response-time reporting downstream.
const (
	StepRequestCreated     = "Request Created"
	StepTechnicianAssigned = "Technician Assigned"
	StepInspection         = "Inspection"
	StepQuotation          = "Quotation"
	StepWorkInProgress     = "Work In Progress"
	StepBilling            = "Billing"
	StepDelivery           = "Delivery"
)

var checklistSteps = []string{
	StepRequestCreated,
	StepTechnicianAssigned,
	StepInspection,
	StepQuotation,
	StepWorkInProgress,
	StepBilling,
	StepDelivery,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CreateParams captures a customer's new service request.
type CreateParams struct {
	CustomerID    uuid.UUID
	TechnicianID  *uuid.UUID
	VehicleRef    string `validate:"required"`
	Description   string `validate:"required"`
	ServiceType   string `validate:"required"`
	ServiceMethod string `validate:"required"`
	Location      *types.GeographyPoint
}

// SubmitQuoteParams carries a technician's itemized estimate.
type SubmitQuoteParams struct {
	TechnicianID uuid.UUID
	JobID        uuid.UUID
	Items        types.LineItems
}

// QuoteDecisionParams records the customer's answer to a quote.
type QuoteDecisionParams struct {
	CustomerID  uuid.UUID
	JobID       uuid.UUID
	Approve     bool
	PartsSource enums.PartsSource
}

// SubmitBillParams carries the post-work itemized invoice.
type SubmitBillParams struct {
	TechnicianID uuid.UUID
	JobID        uuid.UUID
	Items        types.LineItems
}

// BillDecisionParams records the customer's answer to a bill, including how
// they intend to pay when approving.
type BillDecisionParams struct {
	CustomerID uuid.UUID
	JobID      uuid.UUID
	Approve    bool
	Method     enums.PaymentMethod
}

// BillDecisionResult tells the caller whether an external payment flow must
// follow before the job can complete.
type BillDecisionResult struct {
	Job                    *models.ServiceRequest
	RequiresGatewayPayment bool
}

// CancelParams aborts a job on behalf of the given actor.
type CancelParams struct {
	ActorID uuid.UUID
	Role    enums.ActorRole
	JobID   uuid.UUID
	Reason  string `validate:"required"`
}

// RateParams records the customer's one-time rating of a completed job.
type RateParams struct {
	CustomerID uuid.UUID
	JobID      uuid.UUID
	Rating     int `validate:"min=1,max=5"`
	Review     *string
}

// GatewaySettlementParams finalizes a gateway-paid bill inside the caller's
// transaction. Invoked by the payment verification flow, never by clients.
type GatewaySettlementParams struct {
	JobID             uuid.UUID
	Amount            decimal.Decimal
	ExternalOrderID   *string
	ExternalPaymentID *string
}

// Service drives the service-request lifecycle.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.ServiceRequest, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.ServiceRequest, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, string, error)
	ListForTechnician(ctx context.Context, technicianID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, string, error)
	Accept(ctx context.Context, technicianID, jobID uuid.UUID) (*models.ServiceRequest, error)
	BeginDiagnosis(ctx context.Context, technicianID, jobID uuid.UUID) error
	SubmitQuote(ctx context.Context, params SubmitQuoteParams) error
	RespondQuote(ctx context.Context, params QuoteDecisionParams) error
	SubmitBill(ctx context.Context, params SubmitBillParams) error
	DeliverVehicle(ctx context.Context, technicianID, jobID uuid.UUID) error
	RespondBill(ctx context.Context, params BillDecisionParams) (*BillDecisionResult, error)
	ConfirmCashPayment(ctx context.Context, technicianID, jobID uuid.UUID) error
	Cancel(ctx context.Context, params CancelParams) error
	Rate(ctx context.Context, params RateParams) error
	SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params GatewaySettlementParams) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	ledger ledger.Service
	cfg    config.MarketplaceConfig
	logg   *logger.Logger
}

// NewService wires the job state machine dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	outboxSvc outboxPublisher,
	ledgerSvc ledger.Service,
	cfg config.MarketplaceConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jobs repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if outboxSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox publisher required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outboxSvc,
		ledger: ledgerSvc,
		cfg:    cfg,
		logg:   logg,
	}, nil
}

// Create opens a new request in pending. A direct request carries the target
// technician but stays a proposal until that technician accepts.
func (s *service) Create(ctx context.Context, params CreateParams) (*models.ServiceRequest, error) {
	if params.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if params.VehicleRef == "" || params.Description == "" || params.ServiceType == "" || params.ServiceMethod == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle, description, service type and method required")
	}

	now := time.Now().UTC()
	job := &models.ServiceRequest{
		CustomerID:    params.CustomerID,
		TechnicianID:  params.TechnicianID,
		VehicleRef:    params.VehicleRef,
		Description:   params.Description,
		ServiceType:   params.ServiceType,
		ServiceMethod: params.ServiceMethod,
		IsBroadcast:   params.TechnicianID == nil,
		Location:      params.Location,
		Status:        enums.JobStatusPending,
	}
	for i, name := range checklistSteps {
		step := models.JobStep{Name: name, Position: i + 1}
		if name == StepRequestCreated {
			step.CompletedAt = &now
		}
		job.Steps = append(job.Steps, step)
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, job); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create job")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobCreated,
			AggregateType: enums.AggregateJob,
			AggregateID:   job.ID,
			Actor:         &outbox.ActorRef{ActorID: params.CustomerID, Role: enums.ActorRoleCustomer.String()},
			Data: payloads.JobCreatedEvent{
				JobID:        job.ID,
				CustomerID:   job.CustomerID,
				TechnicianID: job.TechnicianID,
				IsBroadcast:  job.IsBroadcast,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *service) Get(ctx context.Context, jobID uuid.UUID) (*models.ServiceRequest, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find job")
	}
	if job == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	return job, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, string, error) {
	rows, next, err := s.repo.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list jobs")
	}
	return rows, encodeCursor(next), nil
}

func (s *service) ListForTechnician(ctx context.Context, technicianID uuid.UUID, params pagination.Params) ([]models.ServiceRequest, string, error) {
	rows, next, err := s.repo.ListByTechnician(ctx, technicianID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list jobs")
	}
	return rows, encodeCursor(next), nil
}

// Accept assigns the acting technician while the job is still pending. A
// direct request proposed to somebody else is off limits.
func (s *service) Accept(ctx context.Context, technicianID, jobID uuid.UUID) (*models.ServiceRequest, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.TechnicianID != nil && *job.TechnicianID != technicianID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "job proposed to another technician")
	}
	if job.Status != enums.JobStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job no longer accepting technicians")
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claimed, err := repo.ClaimPending(ctx, jobID, technicianID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim job")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job no longer accepting technicians")
		}
		if err := repo.CompleteStep(ctx, jobID, StepTechnicianAssigned, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobAccepted,
			AggregateType: enums.AggregateJob,
			AggregateID:   jobID,
			Actor:         &outbox.ActorRef{ActorID: technicianID, Role: enums.ActorRoleTechnician.String()},
			Data: payloads.JobAcceptedEvent{
				JobID:        jobID,
				CustomerID:   job.CustomerID,
				TechnicianID: technicianID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, jobID)
}

// BeginDiagnosis moves an accepted job into inspection.
func (s *service) BeginDiagnosis(ctx context.Context, technicianID, jobID uuid.UUID) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := requireTechnician(job, technicianID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, jobID,
			[]enums.JobStatus{enums.JobStatusAccepted},
			map[string]any{"status": enums.JobStatusDiagnosing})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job not ready for inspection")
		}
		return repo.CompleteStep(ctx, jobID, StepInspection, now)
	})
}

// SubmitQuote attaches the itemized estimate and parks the job on the
// customer's decision. A rejected quote can be replaced with a new one.
func (s *service) SubmitQuote(ctx context.Context, params SubmitQuoteParams) error {
	if len(params.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quote needs at least one item")
	}
	if err := params.Items.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quote items")
	}
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return err
	}
	if err := requireTechnician(job, params.TechnicianID); err != nil {
		return err
	}

	total := params.Items.Total()
	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, params.JobID,
			[]enums.JobStatus{enums.JobStatusAccepted, enums.JobStatusDiagnosing, enums.JobStatusQuoteRejected},
			map[string]any{
				"status":      enums.JobStatusQuotePending,
				"quote_items": params.Items,
				"quote_total": total,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job not ready for a quote")
		}
		if err := repo.CompleteStep(ctx, params.JobID, StepQuotation, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobQuoted,
			AggregateType: enums.AggregateJob,
			AggregateID:   params.JobID,
			Actor:         &outbox.ActorRef{ActorID: params.TechnicianID, Role: enums.ActorRoleTechnician.String()},
			Data: payloads.JobQuotedEvent{
				JobID:        params.JobID,
				CustomerID:   job.CustomerID,
				TechnicianID: params.TechnicianID,
				QuoteTotal:   total,
			},
		})
	})
}

// RespondQuote applies the customer's decision. Approval records where parts
// come from so the technician knows before procuring anything.
func (s *service) RespondQuote(ctx context.Context, params QuoteDecisionParams) error {
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return err
	}
	if job.CustomerID != params.CustomerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
	}
	if job.Status != enums.JobStatusQuotePending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no quote awaiting a response")
	}
	if job.TechnicianID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job has no technician")
	}
	technicianID := *job.TechnicianID

	updates := map[string]any{"status": enums.JobStatusQuoteRejected}
	var partsSource *enums.PartsSource
	if params.Approve {
		if !params.PartsSource.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, "parts source required on approval")
		}
		partsSource = &params.PartsSource
		updates = map[string]any{
			"status":       enums.JobStatusInProgress,
			"parts_source": params.PartsSource,
		}
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, params.JobID,
			[]enums.JobStatus{enums.JobStatusQuotePending}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quote already responded to")
		}
		if params.Approve {
			if err := repo.CompleteStep(ctx, params.JobID, StepWorkInProgress, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobQuoteReply,
			AggregateType: enums.AggregateJob,
			AggregateID:   params.JobID,
			Actor:         &outbox.ActorRef{ActorID: params.CustomerID, Role: enums.ActorRoleCustomer.String()},
			Data: payloads.JobQuoteReplyEvent{
				JobID:        params.JobID,
				TechnicianID: technicianID,
				Approved:     params.Approve,
				PartsSource:  partsSource,
			},
		})
	})
}

// SubmitBill attaches the post-work invoice. The bill is its own itemization;
// it may legitimately differ from the quote.
func (s *service) SubmitBill(ctx context.Context, params SubmitBillParams) error {
	if len(params.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "bill needs at least one item")
	}
	if err := params.Items.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bill items")
	}
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return err
	}
	if err := requireTechnician(job, params.TechnicianID); err != nil {
		return err
	}

	total := params.Items.Total()
	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, params.JobID,
			[]enums.JobStatus{enums.JobStatusInProgress, enums.JobStatusBillRejected, enums.JobStatusVehicleDelivered},
			map[string]any{
				"status":     enums.JobStatusBillingPending,
				"bill_items": params.Items,
				"bill_total": total,
				"bill_state": enums.PaymentStatusPending,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job not ready for billing")
		}
		if err := repo.CompleteStep(ctx, params.JobID, StepBilling, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobBilled,
			AggregateType: enums.AggregateJob,
			AggregateID:   params.JobID,
			Actor:         &outbox.ActorRef{ActorID: params.TechnicianID, Role: enums.ActorRoleTechnician.String()},
			Data: payloads.JobBilledEvent{
				JobID:      params.JobID,
				CustomerID: job.CustomerID,
				BillTotal:  total,
			},
		})
	})
}

// DeliverVehicle records the hand-back of the vehicle. The technician may
// return it before billing or while the bill awaits a response; the bill
// stays answerable either way.
func (s *service) DeliverVehicle(ctx context.Context, technicianID, jobID uuid.UUID) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := requireTechnician(job, technicianID); err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, jobID,
			[]enums.JobStatus{enums.JobStatusInProgress, enums.JobStatusBillingPending},
			map[string]any{"status": enums.JobStatusVehicleDelivered})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job not ready for vehicle delivery")
		}
		if err := repo.CompleteStep(ctx, jobID, StepDelivery, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobDelivered,
			AggregateType: enums.AggregateJob,
			AggregateID:   jobID,
			Actor:         &outbox.ActorRef{ActorID: technicianID, Role: enums.ActorRoleTechnician.String()},
			Data: payloads.JobDeliveredEvent{
				JobID:        jobID,
				CustomerID:   job.CustomerID,
				TechnicianID: technicianID,
			},
		})
	})
}

// RespondBill settles or parks the bill depending on the chosen method.
// Wallet pays and completes synchronously; cash waits for the technician's
// confirmation; gateway defers to the payment verification flow.
func (s *service) RespondBill(ctx context.Context, params BillDecisionParams) (*BillDecisionResult, error) {
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return nil, err
	}
	if job.CustomerID != params.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
	}
	if !job.Status.IsBillable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no bill awaiting a response")
	}
	if job.TechnicianID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job has no technician")
	}
	technicianID := *job.TechnicianID
	billable := []enums.JobStatus{enums.JobStatusBillingPending, enums.JobStatusVehicleDelivered}

	if !params.Approve {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.JobID, billable,
				map[string]any{"status": enums.JobStatusBillRejected})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "bill already responded to")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &BillDecisionResult{Job: job}, nil
	}

	switch params.Method {
	case enums.PaymentMethodWallet:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateWhereStatus(ctx, params.JobID, billable, map[string]any{
				"status":         enums.JobStatusCompleted,
				"bill_state":     enums.PaymentStatusPaid,
				"payment_method": enums.PaymentMethodWallet,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "bill already responded to")
			}
			jobRef := params.JobID
			if _, err := s.ledger.Transfer(ctx, tx, ledger.TransferParams{
				Payer:       ledger.OwnerRef{ID: params.CustomerID, Role: enums.ActorRoleCustomer},
				Payee:       ledger.OwnerRef{ID: technicianID, Role: enums.ActorRoleTechnician},
				Amount:      job.BillTotal,
				ReferenceID: &jobRef,
				Method:      enums.PaymentMethodWallet,
				Commission:  s.cfg.CommissionPercent,
				Platform:    s.platformRef(),
			}); err != nil {
				return err
			}
			if err := repo.CompleteStep(ctx, params.JobID, StepDelivery, time.Now().UTC()); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
			}
			if err := s.emitPaid(ctx, tx, job, technicianID, enums.PaymentMethodWallet); err != nil {
				return err
			}
			return s.emitCompleted(ctx, tx, job, technicianID, params.CustomerID)
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.JobID)
		if err != nil {
			return nil, err
		}
		return &BillDecisionResult{Job: refreshed}, nil

	case enums.PaymentMethodCash:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.JobID, billable, map[string]any{
				"status":         enums.JobStatusPaymentPendingCash,
				"payment_method": enums.PaymentMethodCash,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "bill already responded to")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.JobID)
		if err != nil {
			return nil, err
		}
		return &BillDecisionResult{Job: refreshed}, nil

	case enums.PaymentMethodGateway:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.JobID, billable, map[string]any{
				"payment_method": enums.PaymentMethodGateway,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "bill already responded to")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.JobID)
		if err != nil {
			return nil, err
		}
		return &BillDecisionResult{Job: refreshed, RequiresGatewayPayment: true}, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
}

// ConfirmCashPayment is the only direct path to completed: the technician
// confirms cash changed hands and the audit rows are written. Jobs paying via
// wallet or gateway must go through their ledger paths instead.
func (s *service) ConfirmCashPayment(ctx context.Context, technicianID, jobID uuid.UUID) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := requireTechnician(job, technicianID); err != nil {
		return err
	}
	if job.PaymentMethod == nil || *job.PaymentMethod != enums.PaymentMethodCash {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job is not a cash payment")
	}
	if job.Status != enums.JobStatusPaymentPendingCash {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no cash payment awaiting confirmation")
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWhereStatus(ctx, jobID,
			[]enums.JobStatus{enums.JobStatusPaymentPendingCash},
			map[string]any{
				"status":     enums.JobStatusCompleted,
				"bill_state": enums.PaymentStatusPaid,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash payment already confirmed")
		}
		jobRef := jobID
		if _, err := s.ledger.RecordCashSettlement(ctx, tx, ledger.CashSettlementParams{
			Payer:       ledger.OwnerRef{ID: job.CustomerID, Role: enums.ActorRoleCustomer},
			Payee:       ledger.OwnerRef{ID: technicianID, Role: enums.ActorRoleTechnician},
			Amount:      job.BillTotal,
			ReferenceID: &jobRef,
		}); err != nil {
			return err
		}
		if err := repo.CompleteStep(ctx, jobID, StepDelivery, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
		}
		if err := s.emitPaid(ctx, tx, job, technicianID, enums.PaymentMethodCash); err != nil {
			return err
		}
		return s.emitCompleted(ctx, tx, job, technicianID, job.CustomerID)
	})
}

// SettleGatewayPayment finalizes a verified gateway payment inside the
// caller's transaction so the ledger rows and the status flip commit together.
func (s *service) SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params GatewaySettlementParams) error {
	job, err := s.repo.WithTx(tx).FindByID(ctx, params.JobID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find job")
	}
	if job == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "job not found")
	}
	if job.TechnicianID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job has no technician")
	}
	if !params.Amount.Equal(job.BillTotal) {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "paid amount does not match bill total")
	}
	technicianID := *job.TechnicianID

	repo := s.repo.WithTx(tx)
	ok, err := repo.UpdateWhereStatus(ctx, params.JobID,
		[]enums.JobStatus{enums.JobStatusBillingPending, enums.JobStatusVehicleDelivered},
		map[string]any{
			"status":         enums.JobStatusCompleted,
			"bill_state":     enums.PaymentStatusPaid,
			"payment_method": enums.PaymentMethodGateway,
		})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job not awaiting gateway settlement")
	}

	jobRef := params.JobID
	if _, err := s.ledger.SettleExternal(ctx, tx, ledger.ExternalSettlementParams{
		Payer:             ledger.OwnerRef{ID: job.CustomerID, Role: enums.ActorRoleCustomer},
		Payee:             ledger.OwnerRef{ID: technicianID, Role: enums.ActorRoleTechnician},
		Amount:            params.Amount,
		ReferenceID:       &jobRef,
		ExternalOrderID:   params.ExternalOrderID,
		ExternalPaymentID: params.ExternalPaymentID,
		Commission:        s.cfg.CommissionPercent,
		Platform:          s.platformRef(),
	}); err != nil {
		return err
	}
	if err := repo.CompleteStep(ctx, params.JobID, StepDelivery, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp step")
	}
	if err := s.emitPaid(ctx, tx, job, technicianID, enums.PaymentMethodGateway); err != nil {
		return err
	}
	return s.emitCompleted(ctx, tx, job, technicianID, job.CustomerID)
}

// Cancel aborts the job. Customers and technicians may only bail out before
// work begins; admins can step in from any non-terminal state.
func (s *service) Cancel(ctx context.Context, params CancelParams) error {
	if params.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job already closed")
	}

	var cancelledBy enums.CancelActor
	var allowed []enums.JobStatus
	switch params.Role {
	case enums.ActorRoleCustomer:
		if job.CustomerID != params.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
		}
		cancelledBy = enums.CancelActorCustomer
		allowed = []enums.JobStatus{enums.JobStatusPending, enums.JobStatusAccepted}
	case enums.ActorRoleTechnician:
		if job.TechnicianID == nil || *job.TechnicianID != params.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
		}
		cancelledBy = enums.CancelActorTechnician
		allowed = []enums.JobStatus{enums.JobStatusPending, enums.JobStatusAccepted}
	case enums.ActorRoleAdmin:
		cancelledBy = enums.CancelActorAdmin
		allowed = nonTerminalStatuses()
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel jobs")
	}

	now := time.Now().UTC()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.JobID, allowed, map[string]any{
			"status":              enums.JobStatusCancelled,
			"cancellation_reason": params.Reason,
			"cancelled_by":        cancelledBy,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "job can no longer be cancelled by this actor")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobCancelled,
			AggregateType: enums.AggregateJob,
			AggregateID:   params.JobID,
			Actor:         &outbox.ActorRef{ActorID: params.ActorID, Role: params.Role.String()},
			Data: payloads.JobCancelledEvent{
				JobID:        params.JobID,
				CustomerID:   job.CustomerID,
				TechnicianID: job.TechnicianID,
				CancelledBy:  cancelledBy,
				Reason:       params.Reason,
				CancelledAt:  now,
			},
		})
	})
}

// Rate records a one-time rating on a completed job.
func (s *service) Rate(ctx context.Context, params RateParams) error {
	if params.Rating < 1 || params.Rating > 5 {
		return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	job, err := s.Get(ctx, params.JobID)
	if err != nil {
		return err
	}
	if job.CustomerID != params.CustomerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
	}
	if job.Status != enums.JobStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed jobs can be rated")
	}
	if job.Rating != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "job already rated")
	}
	if job.TechnicianID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job has no technician")
	}
	technicianID := *job.TechnicianID

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).ApplyRating(ctx, params.JobID, params.Rating, params.Review)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update job")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "job already rated")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventJobRated,
			AggregateType: enums.AggregateJob,
			AggregateID:   params.JobID,
			Actor:         &outbox.ActorRef{ActorID: params.CustomerID, Role: enums.ActorRoleCustomer.String()},
			Data: payloads.JobRatedEvent{
				JobID:        params.JobID,
				TechnicianID: technicianID,
				Rating:       params.Rating,
			},
		})
	})
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, job *models.ServiceRequest, technicianID uuid.UUID, method enums.PaymentMethod) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventJobPaid,
		AggregateType: enums.AggregateJob,
		AggregateID:   job.ID,
		Data: payloads.JobPaidEvent{
			JobID:        job.ID,
			TechnicianID: technicianID,
			Method:       method,
			Amount:       job.BillTotal,
		},
	})
}

func (s *service) emitCompleted(ctx context.Context, tx *gorm.DB, job *models.ServiceRequest, technicianID, customerID uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventJobCompleted,
		AggregateType: enums.AggregateJob,
		AggregateID:   job.ID,
		Data: payloads.JobCompletedEvent{
			JobID:        job.ID,
			CustomerID:   customerID,
			TechnicianID: technicianID,
		},
	})
}

func (s *service) platformRef() *ledger.OwnerRef {
	if !s.cfg.CommissionPercent.IsPositive() {
		return nil
	}
	id := s.cfg.PlatformAccount()
	if id == uuid.Nil {
		return nil
	}
	return &ledger.OwnerRef{ID: id, Role: enums.ActorRoleAdmin}
}

func requireTechnician(job *models.ServiceRequest, technicianID uuid.UUID) error {
	if job.TechnicianID == nil || *job.TechnicianID != technicianID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your job")
	}
	return nil
}

func nonTerminalStatuses() []enums.JobStatus {
	return []enums.JobStatus{
		enums.JobStatusPending,
		enums.JobStatusAccepted,
		enums.JobStatusDiagnosing,
		enums.JobStatusQuotePending,
		enums.JobStatusQuoteRejected,
		enums.JobStatusInProgress,
		enums.JobStatusBillingPending,
		enums.JobStatusBillRejected,
		enums.JobStatusVehicleDelivered,
		enums.JobStatusPaymentPendingCash,
	}
}

func encodeCursor(cursor *pagination.Cursor) string {
	if cursor == nil {
		return ""
	}
	return pagination.EncodeCursor(*cursor)
}
