package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/api/middleware"
	"github.com/torquehub/torquehub-backend/api/responses"
	"github.com/torquehub/torquehub-backend/api/validators"
	internalorders "github.com/torquehub/torquehub-backend/internal/orders"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/pagination"
	"github.com/torquehub/torquehub-backend/pkg/types"
)

type requestedItem struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type createRequest struct {
	SupplierID      *uuid.UUID      `json:"supplier_id,omitempty"`
	Items           []requestedItem `json:"items" validate:"required,min=1,dive"`
	DeliveryType    string          `json:"delivery_type,omitempty"`
	DeliveryAddress *types.Address  `json:"delivery_address,omitempty"`
}

type quotationItem struct {
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price,omitempty"`
	Note      bool            `json:"note,omitempty"`
}

type quotationRequest struct {
	Items []quotationItem `json:"items" validate:"required,min=1"`
}

type decisionRequest struct {
	Approve bool `json:"approve"`
}

type fulfillmentRequest struct {
	Status string `json:"status" validate:"required"`
}

type payRequest struct {
	Method string `json:"method" validate:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Create opens a parts inquiry for the authenticated buyer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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

		params := internalorders.CreateParams{
			BuyerID:         actor.ID,
			BuyerRole:       actor.Role,
			SupplierID:      req.SupplierID,
			DeliveryAddress: req.DeliveryAddress,
		}
		for _, item := range req.Items {
			params.Items = append(params.Items, internalorders.RequestedItem{
				Name:     item.Name,
				Quantity: item.Quantity,
			})
		}
		if req.DeliveryType != "" {
			deliveryType, err := enums.ParseDeliveryType(req.DeliveryType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery type"))
				return
			}
			params.DeliveryType = deliveryType
		}

		order, err := svc.Create(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// List pages the caller's orders from their side of the marketplace.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
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
		case enums.ActorRoleSupplier:
			orders, cursor, err := svc.ListForSupplier(r.Context(), actor.ID, params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"items": orders, "cursor": cursor})
		case enums.ActorRoleCustomer, enums.ActorRoleTechnician:
			orders, cursor, err := svc.ListForBuyer(r.Context(), actor.ID, actor.Role, params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"items": orders, "cursor": cursor})
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role has no order listing"))
		}
	}
}

// ListInquiries pages unclaimed open inquiries for supplier browsing.
func ListInquiries(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orders, cursor, err := svc.ListOpenInquiries(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": orders, "cursor": cursor})
	}
}

// Detail returns one order after confirming the caller is a participant.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		buyerID := order.BuyerID()
		participant := (buyerID != nil && *buyerID == actor.ID) ||
			(order.SupplierID != nil && *order.SupplierID == actor.ID) ||
			actor.Role == enums.ActorRoleAdmin
		// Open inquiries are supplier-browsable before a claim.
		if !participant && actor.Role == enums.ActorRoleSupplier && order.Status == enums.OrderStatusInquiry {
			participant = true
		}
		if !participant {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this order"))
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// SubmitQuotation prices an inquiry, claiming it for the supplier.
func SubmitQuotation(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		var req quotationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		params := internalorders.QuotationParams{
			SupplierID: actorID,
			OrderID:    orderID,
		}
		for _, item := range req.Items {
			params.Items = append(params.Items, internalorders.QuotationItem{
				ProductID: item.ProductID,
				Name:      item.Name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Note:      item.Note,
			})
		}
		return svc.SubmitQuotation(r.Context(), params)
	})
}

// RespondQuotation records the buyer's approval or rejection.
func RespondQuotation(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		var req decisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.RespondQuotation(r.Context(), internalorders.BuyerDecisionParams{
			ActorID: actorID,
			OrderID: orderID,
			Approve: req.Approve,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"approved": req.Approve}, nil
	})
}

// UpdateFulfillment advances the supplier pipeline.
func UpdateFulfillment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		var req fulfillmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status")
		}
		if err := svc.UpdateFulfillment(r.Context(), internalorders.FulfillmentParams{
			SupplierID: actorID,
			OrderID:    orderID,
			Status:     status,
		}); err != nil {
			return nil, err
		}
		return map[string]string{"status": string(status)}, nil
	})
}

// Pay settles the order with the buyer's chosen method.
func Pay(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		var req payRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		method, err := enums.ParsePaymentMethod(req.Method)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
		}
		return svc.Pay(r.Context(), internalorders.PayParams{
			ActorID: actorID,
			OrderID: orderID,
			Method:  method,
		})
	})
}

// ConfirmCashPayment lets the supplier acknowledge cash received.
func ConfirmCashPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		if err := svc.ConfirmCashPayment(r.Context(), actorID, orderID); err != nil {
			return nil, err
		}
		return map[string]bool{"confirmed": true}, nil
	})
}

// Cancel aborts an order on behalf of the authenticated actor.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(r *http.Request, actorID, orderID uuid.UUID) (any, error) {
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return nil, err
		}
		if err := svc.Cancel(r.Context(), internalorders.CancelParams{
			ActorID: actorID,
			Role:    middleware.RoleFromContext(r.Context()),
			OrderID: orderID,
			Reason:  req.Reason,
		}); err != nil {
			return nil, err
		}
		return map[string]bool{"cancelled": true}, nil
	})
}

func withOrder(svc internalorders.Service, logg *logger.Logger, fn func(r *http.Request, actorID, orderID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r, actor.ID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
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
