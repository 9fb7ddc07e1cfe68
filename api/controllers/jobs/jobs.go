package jobs

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/api/middleware"
	"github.com/torquehub/torquehub-backend/api/responses"
	"github.com/torquehub/torquehub-backend/api/validators"
	"github.com/torquehub/torquehub-backend/internal/dispatch"
	internaljobs "github.com/torquehub/torquehub-backend/internal/jobs"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

type createRequest struct {
	VehicleRef    string                `json:"vehicle_ref" validate:"required"`
	Description   string                `json:"description" validate:"required"`
	ServiceType   string                `json:"service_type" validate:"required"`
	ServiceMethod string                `json:"service_method" validate:"required"`
	TechnicianID  *uuid.UUID            `json:"technician_id,omitempty"`
	Location      *types.GeographyPoint `json:"location,omitempty"`
}

type quoteRequest struct {
	Items types.LineItems `json:"items" validate:"required"`
}

type quoteDecisionRequest struct {
	Approve     bool   `json:"approve"`
	PartsSource string `json:"parts_source,omitempty"`
}

type billDecisionRequest struct {
	Approve bool   `json:"approve"`
	Method  string `json:"method,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type rateRequest struct {
	Rating int     `json:"rating" validate:"min=1,max=5"`
	Review *string `json:"review,omitempty"`
}

// Create opens a new service request for the authenticated customer.
func Create(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "jobs service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		job, err := svc.Create(r.Context(), internaljobs.CreateParams{
			CustomerID:    actor.ID,
			TechnicianID:  req.TechnicianID,
			VehicleRef:    req.VehicleRef,
			Description:   req.Description,
			ServiceType:   req.ServiceType,
			ServiceMethod: req.ServiceMethod,
			Location:      req.Location,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, job)
	}
}

// List pages the caller's jobs from their side of the marketplace.
func List(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "jobs service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch actor.Role {
		case enums.ActorRoleCustomer:
			jobs, cursor, err := svc.ListForCustomer(r.Context(), actor.ID, params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"items": jobs, "cursor": cursor})
		case enums.ActorRoleTechnician:
			jobs, cursor, err := svc.ListForTechnician(r.Context(), actor.ID, params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"items": jobs, "cursor": cursor})
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role has no job listing"))
		}
	}
}

// Feed returns broadcast jobs visible to the authenticated technician.
func Feed(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		jobs, err := svc.Feed(r.Context(), actor.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": jobs})
	}
}

// Detail returns one job after confirming the caller is a participant.
func Detail(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "jobs service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		jobID, err := parseJobID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		job, err := svc.Get(r.Context(), jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participant := job.CustomerID == actor.ID ||
			(job.TechnicianID != nil && *job.TechnicianID == actor.ID) ||
			actor.Role == enums.ActorRoleAdmin
		if !participant {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this job"))
			return
		}
		responses.WriteSuccess(w, job)
	}
}

// Accept claims a job for the authenticated technician.
func Accept(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		return svc.Accept(r.Context(), actorID, jobID)
	})
}

// BeginDiagnosis moves an accepted job into diagnosis.
func BeginDiagnosis(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		if err := svc.BeginDiagnosis(r.Context(), actorID, jobID); err != nil {
			return nil, err
		}
		return map[string]string{"status": string(enums.JobStatusDiagnosing)}, nil
	})
}

// SubmitQuote records the technician's itemized estimate.
func SubmitQuote(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.SubmitQuote(r.Context(), internaljobs.SubmitQuoteParams{
			TechnicianID: actorID,
			JobID:        jobID,
			Items:        req.Items,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"submitted": true}, nil
	})
}

// RespondQuote records the customer's approval or rejection of the quote.
func RespondQuote(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req quoteDecisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		params := internaljobs.QuoteDecisionParams{
			CustomerID: actorID,
			JobID:      jobID,
			Approve:    req.Approve,
		}
		if req.Approve {
			source, err := enums.ParsePartsSource(req.PartsSource)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid parts source")
			}
			params.PartsSource = source
		}
		if err := svc.RespondQuote(r.Context(), params); err != nil {
			return nil, err
		}
		return map[string]bool{"approved": req.Approve}, nil
	})
}

// SubmitBill records the technician's post-work invoice.
func SubmitBill(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req quoteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.SubmitBill(r.Context(), internaljobs.SubmitBillParams{
			TechnicianID: actorID,
			JobID:        jobID,
			Items:        req.Items,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"submitted": true}, nil
	})
}

// DeliverVehicle records the technician handing the vehicle back.
func DeliverVehicle(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		if err := svc.DeliverVehicle(r.Context(), actorID, jobID); err != nil {
			return nil, err
		}
		return map[string]string{"status": string(enums.JobStatusVehicleDelivered)}, nil
	})
}

// RespondBill records the customer's bill decision and chosen payment method.
func RespondBill(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req billDecisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		params := internaljobs.BillDecisionParams{
			CustomerID: actorID,
			JobID:      jobID,
			Approve:    req.Approve,
		}
		if req.Approve {
			method, err := enums.ParsePaymentMethod(req.Method)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
			}
			params.Method = method
		}
		result, err := svc.RespondBill(r.Context(), params)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// ConfirmCashPayment lets the technician acknowledge cash received.
func ConfirmCashPayment(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		if err := svc.ConfirmCashPayment(r.Context(), actorID, jobID); err != nil {
			return nil, err
		}
		return map[string]bool{"confirmed": true}, nil
	})
}

// Cancel aborts a job on behalf of the authenticated actor.
func Cancel(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.Cancel(r.Context(), internaljobs.CancelParams{
			ActorID: actorID,
			Role:    middleware.RoleFromContext(r.Context()),
			JobID:   jobID,
			Reason:  req.Reason,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"cancelled": true}, nil
	})
}

// Rate records the customer's one-time rating of a completed job.
func Rate(svc internaljobs.Service, logg *logger.Logger) http.HandlerFunc {
	return withJob(svc, logg, func(r *http.Request, actorID, jobID uuid.UUID) (any, error) {
		var req rateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.Rate(r.Context(), internaljobs.RateParams{
			CustomerID: actorID,
			JobID:      jobID,
			Rating:     req.Rating,
			Review:     req.Review,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"rated": true}, nil
	})
}

func withJob(svc internaljobs.Service, logg *logger.Logger, fn func(r *http.Request, actorID, jobID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "jobs service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		jobID, err := parseJobID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r, actor.ID, jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseJobID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "job id is required")
	}
	jobID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id")
	}
	return jobID, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
