package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// JobCreatedEvent signals a new service request entered the marketplace.
type JobCreatedEvent struct {
	JobID        uuid.UUID  `json:"job_id"`
	CustomerID   uuid.UUID  `json:"customer_id"`
	TechnicianID *uuid.UUID `json:"technician_id,omitempty"`
	IsBroadcast  bool       `json:"is_broadcast"`
}

// JobAcceptedEvent is emitted when a technician takes a job.
type JobAcceptedEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
}

// JobQuotedEvent carries the quote awaiting customer review.
type JobQuotedEvent struct {
	JobID        uuid.UUID       `json:"job_id"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	TechnicianID uuid.UUID       `json:"technician_id"`
	QuoteTotal   decimal.Decimal `json:"quote_total"`
}

// JobQuoteReplyEvent records the customer's quote decision.
type JobQuoteReplyEvent struct {
	JobID        uuid.UUID          `json:"job_id"`
	TechnicianID uuid.UUID          `json:"technician_id"`
	Approved     bool               `json:"approved"`
	PartsSource  *enums.PartsSource `json:"parts_source,omitempty"`
}

// JobBilledEvent carries the bill awaiting customer review.
type JobBilledEvent struct {
	JobID      uuid.UUID       `json:"job_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	BillTotal  decimal.Decimal `json:"bill_total"`
}

// JobDeliveredEvent records the vehicle's hand-back to the customer.
type JobDeliveredEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
}

// JobPaidEvent is emitted once a job payment settles.
type JobPaidEvent struct {
	JobID        uuid.UUID           `json:"job_id"`
	TechnicianID uuid.UUID           `json:"technician_id"`
	Method       enums.PaymentMethod `json:"method"`
	Amount       decimal.Decimal     `json:"amount"`
}

// JobCompletedEvent marks the terminal happy path.
type JobCompletedEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
}

// JobCancelledEvent records who aborted the job and why.
type JobCancelledEvent struct {
	JobID        uuid.UUID         `json:"job_id"`
	CustomerID   uuid.UUID         `json:"customer_id"`
	TechnicianID *uuid.UUID        `json:"technician_id,omitempty"`
	CancelledBy  enums.CancelActor `json:"cancelled_by"`
	Reason       string            `json:"reason,omitempty"`
	CancelledAt  time.Time         `json:"cancelled_at"`
}

// JobRatedEvent is emitted when the customer rates a completed job.
type JobRatedEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
	Rating       int       `json:"rating"`
}

// OrderCreatedEvent signals a new parts order or open inquiry.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	BuyerID    uuid.UUID       `json:"buyer_id"`
	BuyerRole  enums.ActorRole `json:"buyer_role"`
	SupplierID *uuid.UUID      `json:"supplier_id,omitempty"`
}

// OrderQuotedEvent is emitted when a supplier quotes (and claims) an order.
type OrderQuotedEvent struct {
	OrderID    uuid.UUID       `json:"order_id"`
	BuyerID    uuid.UUID       `json:"buyer_id"`
	BuyerRole  enums.ActorRole `json:"buyer_role"`
	SupplierID uuid.UUID       `json:"supplier_id"`
	Total      decimal.Decimal `json:"total"`
}

// OrderDecidedEvent records the buyer's response to a quotation.
type OrderDecidedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	Approved   bool      `json:"approved"`
}

// OrderFulfilledEvent is emitted on each fulfillment progression.
type OrderFulfilledEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	BuyerID   uuid.UUID         `json:"buyer_id"`
	BuyerRole enums.ActorRole   `json:"buyer_role"`
	Status    enums.OrderStatus `json:"status"`
}

// OrderPaidEvent is emitted once an order payment settles.
type OrderPaidEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	SupplierID uuid.UUID           `json:"supplier_id"`
	Method     enums.PaymentMethod `json:"method"`
	Amount     decimal.Decimal     `json:"amount"`
}

// OrderCancelledEvent records an aborted order.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	SupplierID  *uuid.UUID        `json:"supplier_id,omitempty"`
	CancelledBy enums.CancelActor `json:"cancelled_by"`
	Reason      string            `json:"reason,omitempty"`
}

// WalletTopupEvent is emitted when a gateway top-up credits a wallet.
type WalletTopupEvent struct {
	OwnerID       uuid.UUID       `json:"owner_id"`
	OwnerRole     enums.ActorRole `json:"owner_role"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

// WalletPayoutEvent is emitted when a settlement debits a wallet.
type WalletPayoutEvent struct {
	OwnerID       uuid.UUID       `json:"owner_id"`
	OwnerRole     enums.ActorRole `json:"owner_role"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}
