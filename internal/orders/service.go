package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/torquehub/torquehub-backend/internal/ledger"
	"github.com/torquehub/torquehub-backend/internal/products"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RequestedItem is what the buyer asks for before any supplier has priced it.
type RequestedItem struct {
	Name     string `validate:"required"`
	Quantity int    `validate:"min=1"`
}

// CreateParams opens a parts order. A nil SupplierID makes it an open inquiry
// visible to all suppliers; otherwise it goes straight to the named supplier.
type CreateParams struct {
	BuyerID         uuid.UUID
	BuyerRole       enums.ActorRole
	SupplierID      *uuid.UUID
	Items           []RequestedItem
	DeliveryType    enums.DeliveryType
	DeliveryAddress *types.Address
}

// QuotationItem is one supplier-priced line. Product references must belong
// to the quoting supplier; snapshot fields freeze the name and price.
type QuotationItem struct {
	ProductID *uuid.UUID
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Note      bool
}

// QuotationParams submits supplier pricing, claiming the inquiry if open.
type QuotationParams struct {
	SupplierID uuid.UUID
	OrderID    uuid.UUID
	Items      []QuotationItem
}

// BuyerDecisionParams records the buyer's answer to a quotation.
type BuyerDecisionParams struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
	Approve bool
}

// FulfillmentParams advances the order through the supplier pipeline.
type FulfillmentParams struct {
	SupplierID uuid.UUID
	OrderID    uuid.UUID
	Status     enums.OrderStatus
}

// PayParams settles the order with the buyer's chosen method.
type PayParams struct {
	ActorID uuid.UUID
	OrderID uuid.UUID
	Method  enums.PaymentMethod
}

// PayResult tells the caller whether an external payment flow must follow.
type PayResult struct {
	Order                  *models.PartsOrder
	RequiresGatewayPayment bool
}

// CancelParams aborts an order on behalf of the given actor.
type CancelParams struct {
	ActorID uuid.UUID
	Role    enums.ActorRole
	OrderID uuid.UUID
	Reason  string `validate:"required"`
}

// GatewaySettlementParams finalizes a verified gateway payment inside the
// caller's transaction. Invoked by the payment verification flow.
type GatewaySettlementParams struct {
	OrderID           uuid.UUID
	Amount            decimal.Decimal
	ExternalOrderID   *string
	ExternalPaymentID *string
}

// Service drives the parts-order lifecycle.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.PartsOrder, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.PartsOrder, error)
	ListOpenInquiries(ctx context.Context, params pagination.Params) ([]models.PartsOrder, string, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, role enums.ActorRole, params pagination.Params) ([]models.PartsOrder, string, error)
	ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.PartsOrder, string, error)
	SubmitQuotation(ctx context.Context, params QuotationParams) (*models.PartsOrder, error)
	RespondQuotation(ctx context.Context, params BuyerDecisionParams) error
	UpdateFulfillment(ctx context.Context, params FulfillmentParams) error
	Pay(ctx context.Context, params PayParams) (*PayResult, error)
	ConfirmCashPayment(ctx context.Context, supplierID, orderID uuid.UUID) error
	Cancel(ctx context.Context, params CancelParams) error
	SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params GatewaySettlementParams) error
}

type service struct {
	repo    Repository
	catalog products.Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  ledger.Service
	cfg     config.MarketplaceConfig
	logg    *logger.Logger
}

// NewService wires the order state machine dependencies.
func NewService(
	repo Repository,
	catalog products.Repository,
	tx txRunner,
	outboxSvc outboxPublisher,
	ledgerSvc ledger.Service,
	cfg config.MarketplaceConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "products repository required")
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
		repo:    repo,
		catalog: catalog,
		tx:      tx,
		outbox:  outboxSvc,
		ledger:  ledgerSvc,
		cfg:     cfg,
		logg:    logg,
	}, nil
}

// Create opens the order as an inquiry. Exactly one buyer side is set.
func (s *service) Create(ctx context.Context, params CreateParams) (*models.PartsOrder, error) {
	if params.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	deliveryType := params.DeliveryType
	if deliveryType == "" {
		deliveryType = enums.DeliveryTypePickup
	}
	if !deliveryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery type")
	}
	if deliveryType == enums.DeliveryTypeDelivery {
		if params.DeliveryAddress == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
		}
		if err := params.DeliveryAddress.Validate(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "delivery address")
		}
	}

	order := &models.PartsOrder{
		SupplierID:      params.SupplierID,
		Status:          enums.OrderStatusInquiry,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		DeliveryType:    deliveryType,
		DeliveryAddress: params.DeliveryAddress,
	}
	switch params.BuyerRole {
	case enums.ActorRoleCustomer:
		order.CustomerID = &params.BuyerID
	case enums.ActorRoleTechnician:
		order.TechnicianID = &params.BuyerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer must be a customer or technician")
	}
	for _, item := range params.Items {
		if item.Name == "" || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name and positive quantity required")
		}
		order.Items = append(order.Items, models.OrderItem{
			Kind:     types.LineItemKindPriced,
			Name:     item.Name,
			Quantity: item.Quantity,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{ActorID: params.BuyerID, Role: params.BuyerRole.String()},
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				BuyerID:    params.BuyerID,
				BuyerRole:  params.BuyerRole,
				SupplierID: params.SupplierID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.PartsOrder, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListOpenInquiries(ctx context.Context, params pagination.Params) ([]models.PartsOrder, string, error) {
	rows, next, err := s.repo.ListOpenInquiries(ctx, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inquiries")
	}
	return rows, encodeCursor(next), nil
}

func (s *service) ListForBuyer(ctx context.Context, buyerID uuid.UUID, role enums.ActorRole, params pagination.Params) ([]models.PartsOrder, string, error) {
	column := "customer_id"
	if role == enums.ActorRoleTechnician {
		column = "technician_id"
	}
	rows, next, err := s.repo.ListForBuyer(ctx, column, buyerID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, encodeCursor(next), nil
}

func (s *service) ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.PartsOrder, string, error) {
	rows, next, err := s.repo.ListForSupplier(ctx, supplierID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, encodeCursor(next), nil
}

// SubmitQuotation prices the order and claims it. The first supplier whose
// quotation commits wins; everybody else gets AlreadyClaimed.
func (s *service) SubmitQuotation(ctx context.Context, params QuotationParams) (*models.PartsOrder, error) {
	if len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quotation needs at least one item")
	}
	order, err := s.Get(ctx, params.OrderID)
	if err != nil {
		return nil, err
	}
	if order.SupplierID != nil && *order.SupplierID != params.SupplierID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already claimed by another supplier")
	}
	if order.Status != enums.OrderStatusInquiry {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order no longer accepting quotations")
	}

	items, total, err := s.buildQuotationItems(ctx, params.SupplierID, params.Items)
	if err != nil {
		return nil, err
	}
	buyerID := order.BuyerID()
	buyerRole := order.BuyerRole()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := s.repo.WithTx(tx).ClaimInquiry(ctx, params.OrderID, params.SupplierID, items, total)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim order")
		}
		if !claimed {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already claimed by another supplier")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderQuoted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   params.OrderID,
			Actor:         &outbox.ActorRef{ActorID: params.SupplierID, Role: enums.ActorRoleSupplier.String()},
			Data: payloads.OrderQuotedEvent{
				OrderID:    params.OrderID,
				BuyerID:    *buyerID,
				BuyerRole:  buyerRole,
				SupplierID: params.SupplierID,
				Total:      total,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, params.OrderID)
}

func (s *service) buildQuotationItems(ctx context.Context, supplierID uuid.UUID, input []QuotationItem) ([]models.OrderItem, decimal.Decimal, error) {
	var productIDs []uuid.UUID
	for _, item := range input {
		if item.ProductID != nil {
			productIDs = append(productIDs, *item.ProductID)
		}
	}
	owned := make(map[uuid.UUID]models.Product)
	if len(productIDs) > 0 {
		rows, err := s.catalog.FindByIDs(ctx, productIDs)
		if err != nil {
			return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		for _, p := range rows {
			owned[p.ID] = p
		}
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(input))
	for _, item := range input {
		row := models.OrderItem{
			ProductID: item.ProductID,
			Kind:      types.LineItemKindPriced,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		if item.Note {
			row.Kind = types.LineItemKindNote
			row.Quantity = 0
			row.UnitPrice = decimal.Zero
			if row.Name == "" {
				return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "note text required")
			}
			items = append(items, row)
			continue
		}
		if row.Name == "" || row.Quantity <= 0 || row.UnitPrice.IsNegative() {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "priced item needs a name, quantity and price")
		}
		if item.ProductID != nil {
			product, ok := owned[*item.ProductID]
			if !ok {
				return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "referenced product not found")
			}
			if product.SupplierID != supplierID {
				return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another supplier")
			}
			if row.Name == "" {
				row.Name = product.Name
			}
		}
		total = total.Add(row.Amount())
		items = append(items, row)
	}
	return items, total.Round(2), nil
}

// RespondQuotation applies the buyer's approve/reject decision.
func (s *service) RespondQuotation(ctx context.Context, params BuyerDecisionParams) error {
	order, err := s.Get(ctx, params.OrderID)
	if err != nil {
		return err
	}
	if err := requireBuyer(order, params.ActorID); err != nil {
		return err
	}
	if order.Status != enums.OrderStatusQuoted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no quotation awaiting a response")
	}
	if order.SupplierID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no supplier")
	}
	supplierID := *order.SupplierID

	next := enums.OrderStatusRejected
	if params.Approve {
		next = enums.OrderStatusConfirmed
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.OrderID,
			[]enums.OrderStatus{enums.OrderStatusQuoted},
			map[string]any{"status": next})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quotation already responded to")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDecided,
			AggregateType: enums.AggregateOrder,
			AggregateID:   params.OrderID,
			Actor:         &outbox.ActorRef{ActorID: params.ActorID, Role: order.BuyerRole().String()},
			Data: payloads.OrderDecidedEvent{
				OrderID:    params.OrderID,
				SupplierID: supplierID,
				Approved:   params.Approve,
			},
		})
	})
}

// UpdateFulfillment advances the order down the confirmed→packed→shipped→
// delivered pipeline. Regressions are rejected.
func (s *service) UpdateFulfillment(ctx context.Context, params FulfillmentParams) error {
	order, err := s.Get(ctx, params.OrderID)
	if err != nil {
		return err
	}
	authorized, err := s.supplierAuthorized(ctx, order, params.SupplierID)
	if err != nil {
		return err
	}
	if !authorized {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
	}
	if !order.Status.CanFulfillTo(params.Status) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "illegal fulfillment transition")
	}
	buyerID := order.BuyerID()
	buyerRole := order.BuyerRole()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.OrderID,
			[]enums.OrderStatus{order.Status},
			map[string]any{"status": params.Status})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order moved on, refresh and retry")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFulfilled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   params.OrderID,
			Actor:         &outbox.ActorRef{ActorID: params.SupplierID, Role: enums.ActorRoleSupplier.String()},
			Data: payloads.OrderFulfilledEvent{
				OrderID:   params.OrderID,
				BuyerID:   *buyerID,
				BuyerRole: buyerRole,
				Status:    params.Status,
			},
		})
	})
}

// supplierAuthorized allows the assigned supplier, or any supplier owning at
// least one line item's product.
func (s *service) supplierAuthorized(ctx context.Context, order *models.PartsOrder, supplierID uuid.UUID) (bool, error) {
	if order.SupplierID != nil && *order.SupplierID == supplierID {
		return true, nil
	}
	var productIDs []uuid.UUID
	for _, item := range order.Items {
		if item.ProductID != nil {
			productIDs = append(productIDs, *item.ProductID)
		}
	}
	if len(productIDs) == 0 {
		return false, nil
	}
	rows, err := s.catalog.FindByIDs(ctx, productIDs)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, p := range rows {
		if p.SupplierID == supplierID {
			return true, nil
		}
	}
	return false, nil
}

// Pay settles the order total. Wallet pays synchronously; cash waits for the
// supplier's confirmation; gateway defers to the payment verification flow.
func (s *service) Pay(ctx context.Context, params PayParams) (*PayResult, error) {
	order, err := s.Get(ctx, params.OrderID)
	if err != nil {
		return nil, err
	}
	if err := requireBuyer(order, params.ActorID); err != nil {
		return nil, err
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
	}
	if !payableStatus(order.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order not ready for payment")
	}
	if order.SupplierID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no supplier")
	}
	if !order.TotalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payable total")
	}
	supplierID := *order.SupplierID
	buyerRole := order.BuyerRole()

	switch params.Method {
	case enums.PaymentMethodWallet:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			ok, err := repo.UpdateWherePayment(ctx, params.OrderID, payableStatuses(), unsettledPaymentStatuses(), map[string]any{
				"payment_status": enums.PaymentStatusPaid,
				"payment_method": enums.PaymentMethodWallet,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order not ready for payment")
			}
			orderRef := params.OrderID
			if _, err := s.ledger.Transfer(ctx, tx, ledger.TransferParams{
				Payer:       ledger.OwnerRef{ID: params.ActorID, Role: buyerRole},
				Payee:       ledger.OwnerRef{ID: supplierID, Role: enums.ActorRoleSupplier},
				Amount:      order.TotalAmount,
				ReferenceID: &orderRef,
				Method:      enums.PaymentMethodWallet,
				Commission:  s.cfg.CommissionPercent,
				Platform:    s.platformRef(),
			}); err != nil {
				return err
			}
			if err := s.decrementStock(ctx, tx, order); err != nil {
				return err
			}
			return s.emitPaid(ctx, tx, order, supplierID, enums.PaymentMethodWallet)
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.OrderID)
		if err != nil {
			return nil, err
		}
		return &PayResult{Order: refreshed}, nil

	case enums.PaymentMethodCash:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateWherePayment(ctx, params.OrderID, payableStatuses(), unsettledPaymentStatuses(), map[string]any{
				"payment_status": enums.PaymentStatusPending,
				"payment_method": enums.PaymentMethodCash,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order not ready for payment")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.OrderID)
		if err != nil {
			return nil, err
		}
		return &PayResult{Order: refreshed}, nil

	case enums.PaymentMethodGateway:
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).UpdateWherePayment(ctx, params.OrderID, payableStatuses(), unsettledPaymentStatuses(), map[string]any{
				"payment_method": enums.PaymentMethodGateway,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order not ready for payment")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		refreshed, err := s.Get(ctx, params.OrderID)
		if err != nil {
			return nil, err
		}
		return &PayResult{Order: refreshed, RequiresGatewayPayment: true}, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
}

// ConfirmCashPayment closes the loop on a cash order: the supplier confirms
// the handover, audit rows are written and stock finally moves.
func (s *service) ConfirmCashPayment(ctx context.Context, supplierID, orderID uuid.UUID) error {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.SupplierID == nil || *order.SupplierID != supplierID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != enums.PaymentMethodCash {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not a cash payment")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no cash payment awaiting confirmation")
	}
	buyerID := order.BuyerID()
	buyerRole := order.BuyerRole()

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateWherePayment(ctx, orderID, payableStatuses(), []enums.PaymentStatus{enums.PaymentStatusPending}, map[string]any{
			"payment_status": enums.PaymentStatusPaid,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash payment already confirmed")
		}
		orderRef := orderID
		if _, err := s.ledger.RecordCashSettlement(ctx, tx, ledger.CashSettlementParams{
			Payer:       ledger.OwnerRef{ID: *buyerID, Role: buyerRole},
			Payee:       ledger.OwnerRef{ID: supplierID, Role: enums.ActorRoleSupplier},
			Amount:      order.TotalAmount,
			ReferenceID: &orderRef,
		}); err != nil {
			return err
		}
		if err := s.decrementStock(ctx, tx, order); err != nil {
			return err
		}
		return s.emitPaid(ctx, tx, order, supplierID, enums.PaymentMethodCash)
	})
}

// SettleGatewayPayment finalizes a verified gateway payment inside the
// caller's transaction.
func (s *service) SettleGatewayPayment(ctx context.Context, tx *gorm.DB, params GatewaySettlementParams) error {
	order, err := s.repo.WithTx(tx).FindByID(ctx, params.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.SupplierID == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no supplier")
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
	}
	if !params.Amount.Equal(order.TotalAmount) {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, "paid amount does not match order total")
	}
	supplierID := *order.SupplierID
	buyerID := order.BuyerID()
	buyerRole := order.BuyerRole()

	repo := s.repo.WithTx(tx)
	ok, err := repo.UpdateWherePayment(ctx, params.OrderID, payableStatuses(), unsettledPaymentStatuses(), map[string]any{
		"payment_status":      enums.PaymentStatusPaid,
		"payment_method":      enums.PaymentMethodGateway,
		"external_order_id":   params.ExternalOrderID,
		"external_payment_id": params.ExternalPaymentID,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order not awaiting gateway settlement")
	}

	orderRef := params.OrderID
	if _, err := s.ledger.SettleExternal(ctx, tx, ledger.ExternalSettlementParams{
		Payer:             ledger.OwnerRef{ID: *buyerID, Role: buyerRole},
		Payee:             ledger.OwnerRef{ID: supplierID, Role: enums.ActorRoleSupplier},
		Amount:            params.Amount,
		ReferenceID:       &orderRef,
		ExternalOrderID:   params.ExternalOrderID,
		ExternalPaymentID: params.ExternalPaymentID,
		Commission:        s.cfg.CommissionPercent,
		Platform:          s.platformRef(),
	}); err != nil {
		return err
	}
	if err := s.decrementStock(ctx, tx, order); err != nil {
		return err
	}
	return s.emitPaid(ctx, tx, order, supplierID, enums.PaymentMethodGateway)
}

// Cancel aborts the order. Buyers may back out before confirmation, the
// assigned supplier before payment, admins from any non-terminal state.
func (s *service) Cancel(ctx context.Context, params CancelParams) error {
	if params.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}
	order, err := s.Get(ctx, params.OrderID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already closed")
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be cancelled")
	}

	var cancelledBy enums.CancelActor
	var allowed []enums.OrderStatus
	switch params.Role {
	case enums.ActorRoleCustomer, enums.ActorRoleTechnician:
		if err := requireBuyer(order, params.ActorID); err != nil {
			return err
		}
		if params.Role == enums.ActorRoleCustomer {
			cancelledBy = enums.CancelActorCustomer
		} else {
			cancelledBy = enums.CancelActorTechnician
		}
		allowed = []enums.OrderStatus{enums.OrderStatusInquiry, enums.OrderStatusQuoted}
	case enums.ActorRoleSupplier:
		if order.SupplierID == nil || *order.SupplierID != params.ActorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
		}
		cancelledBy = enums.CancelActorSupplier
		allowed = []enums.OrderStatus{enums.OrderStatusQuoted, enums.OrderStatusConfirmed}
	case enums.ActorRoleAdmin:
		cancelledBy = enums.CancelActorAdmin
		allowed = nonTerminalOrderStatuses()
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "role cannot cancel orders")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateWhereStatus(ctx, params.OrderID, allowed, map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancellation_reason": params.Reason,
			"cancelled_by":        cancelledBy,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled by this actor")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   params.OrderID,
			Actor:         &outbox.ActorRef{ActorID: params.ActorID, Role: params.Role.String()},
			Data: payloads.OrderCancelledEvent{
				OrderID:     params.OrderID,
				SupplierID:  order.SupplierID,
				CancelledBy: cancelledBy,
				Reason:      params.Reason,
			},
		})
	})
}

// decrementStock reserves catalog stock once, at payment time. Items without
// a product reference (free-form lines) carry no stock.
func (s *service) decrementStock(ctx context.Context, tx *gorm.DB, order *models.PartsOrder) error {
	catalog := s.catalog.WithTx(tx)
	for _, item := range order.Items {
		if item.ProductID == nil || item.Kind == types.LineItemKindNote {
			continue
		}
		ok, err := catalog.DecrementStock(ctx, *item.ProductID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for "+item.Name)
		}
	}
	return nil
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.PartsOrder, supplierID uuid.UUID, method enums.PaymentMethod) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:    order.ID,
			SupplierID: supplierID,
			Method:     method,
			Amount:     order.TotalAmount,
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

func requireBuyer(order *models.PartsOrder, actorID uuid.UUID) error {
	buyerID := order.BuyerID()
	if buyerID == nil || *buyerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not your order")
	}
	return nil
}

func payableStatus(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusConfirmed, enums.OrderStatusPacked, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return true
	default:
		return false
	}
}

func payableStatuses() []enums.OrderStatus {
	return []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPacked,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	}
}

// unsettledPaymentStatuses lists the payment states a settlement may start
// from. A row already at paid fails the conditional update, so concurrent
// settles collapse to one winner.
func unsettledPaymentStatuses() []enums.PaymentStatus {
	return []enums.PaymentStatus{
		enums.PaymentStatusUnpaid,
		enums.PaymentStatusPending,
	}
}

func nonTerminalOrderStatuses() []enums.OrderStatus {
	return []enums.OrderStatus{
		enums.OrderStatusInquiry,
		enums.OrderStatusPending,
		enums.OrderStatusQuoted,
		enums.OrderStatusConfirmed,
		enums.OrderStatusPacked,
		enums.OrderStatusShipped,
	}
}

func encodeCursor(cursor *pagination.Cursor) string {
	if cursor == nil {
		return ""
	}
	return pagination.EncodeCursor(*cursor)
}
