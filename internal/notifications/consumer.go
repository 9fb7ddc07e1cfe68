package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/metrics"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/outbox/idempotency"
	"github.com/torquehub/torquehub-backend/pkg/outbox/payloads"
)

const marketplaceNotificationConsumer = "marketplace-notifications"

type consumerRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// BroadcastResolver answers which technicians should see an open broadcast job.
type BroadcastResolver interface {
	EligibleTechnicians(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
}

// Consumer watches domain events and materializes actor notification feeds.
type Consumer struct {
	repo         consumerRepository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	resolver     BroadcastResolver
	metrics      *metrics.MarketplaceMetrics
	logg         *logger.Logger
}

// NewConsumer builds the marketplace notification consumer.
func NewConsumer(
	repo consumerRepository,
	subscription *pubsub.Subscriber,
	manager *idempotency.Manager,
	resolver BroadcastResolver,
	marketplaceMetrics *metrics.MarketplaceMetrics,
	logg *logger.Logger,
) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("broadcast resolver required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		resolver:     resolver,
		metrics:      marketplaceMetrics,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType.String(),
	})

	handler, ok := c.handlerFor(eventType)
	if !ok {
		c.logg.Info(logCtx, "event type carries no notification")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{"event_id": envelope.EventID})

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, marketplaceNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := handler(ctx, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, marketplaceNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

type eventHandler func(ctx context.Context, data json.RawMessage, logCtx context.Context) error

func (c *Consumer) handlerFor(eventType enums.OutboxEventType) (eventHandler, bool) {
	switch eventType {
	case enums.EventJobCreated:
		return c.handleJobCreated, true
	case enums.EventJobAccepted:
		return c.handleJobAccepted, true
	case enums.EventJobQuoted:
		return c.handleJobQuoted, true
	case enums.EventJobQuoteReply:
		return c.handleJobQuoteReply, true
	case enums.EventJobBilled:
		return c.handleJobBilled, true
	case enums.EventJobDelivered:
		return c.handleJobDelivered, true
	case enums.EventJobPaid:
		return c.handleJobPaid, true
	case enums.EventJobCompleted:
		return c.handleJobCompleted, true
	case enums.EventJobCancelled:
		return c.handleJobCancelled, true
	case enums.EventOrderCreated:
		return c.handleOrderCreated, true
	case enums.EventOrderQuoted:
		return c.handleOrderQuoted, true
	case enums.EventOrderDecided:
		return c.handleOrderDecided, true
	case enums.EventOrderFulfilled:
		return c.handleOrderFulfilled, true
	case enums.EventOrderPaid:
		return c.handleOrderPaid, true
	case enums.EventOrderCancelled:
		return c.handleOrderCancelled, true
	case enums.EventWalletTopup:
		return c.handleWalletTopup, true
	case enums.EventWalletPayout:
		return c.handleWalletPayout, true
	default:
		return nil, false
	}
}

func (c *Consumer) handleJobCreated(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.created payload: %w", err)
	}
	if payload.JobID == uuid.Nil {
		return fmt.Errorf("job id missing")
	}

	if !payload.IsBroadcast {
		if payload.TechnicianID == nil {
			return fmt.Errorf("direct job missing technician id")
		}
		return c.create(ctx, logCtx, &models.Notification{
			RecipientID:   *payload.TechnicianID,
			RecipientRole: enums.ActorRoleTechnician,
			Type:          enums.NotificationTypeJobDirect,
			Title:         "New service request",
			Message:       "A customer requested you directly for a service job.",
			RelatedID:     &payload.JobID,
		})
	}

	technicianIDs, err := c.resolver.EligibleTechnicians(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("resolve broadcast audience: %w", err)
	}
	for _, technicianID := range technicianIDs {
		notification := &models.Notification{
			RecipientID:   technicianID,
			RecipientRole: enums.ActorRoleTechnician,
			Type:          enums.NotificationTypeJobBroadcast,
			Title:         "New job near you",
			Message:       "A service request was broadcast in your service area.",
			RelatedID:     &payload.JobID,
		}
		if err := c.repo.Create(ctx, notification); err != nil {
			return err
		}
		c.metrics.IncDispatchFanout("delivered")
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{"fanout": len(technicianIDs)})
	c.logg.Info(logCtx, "broadcast fanout delivered")
	return nil
}

func (c *Consumer) handleJobAccepted(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobAcceptedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.accepted payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeJobAccepted,
		Title:         "Technician assigned",
		Message:       "A technician accepted your service request.",
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobQuoted(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobQuotedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.quoted payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeQuoteSubmitted,
		Title:         "Quote received",
		Message:       fmt.Sprintf("Your technician quoted %s for the job. Review and respond.", payload.QuoteTotal.StringFixed(2)),
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobQuoteReply(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobQuoteReplyEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.quote_replied payload: %w", err)
	}
	message := "The customer rejected your quote."
	if payload.Approved {
		message = "The customer approved your quote. Work can begin."
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.TechnicianID,
		RecipientRole: enums.ActorRoleTechnician,
		Type:          enums.NotificationTypeQuoteResponded,
		Title:         "Quote decision",
		Message:       message,
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobBilled(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobBilledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.billed payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeBillSubmitted,
		Title:         "Bill ready",
		Message:       fmt.Sprintf("Your final bill of %s is ready for payment.", payload.BillTotal.StringFixed(2)),
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobDelivered(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobDeliveredEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.vehicle_delivered payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeJobDelivered,
		Title:         "Vehicle delivered",
		Message:       "Your vehicle has been handed back by the technician.",
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobPaid(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobPaidEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.paid payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.TechnicianID,
		RecipientRole: enums.ActorRoleTechnician,
		Type:          enums.NotificationTypeWalletCredited,
		Title:         "Payment received",
		Message:       fmt.Sprintf("You earned %s for a completed job.", payload.Amount.StringFixed(2)),
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobCompleted(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobCompletedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.completed payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.CustomerID,
		RecipientRole: enums.ActorRoleCustomer,
		Type:          enums.NotificationTypeJobCompleted,
		Title:         "Job completed",
		Message:       "Your service job is complete. Consider rating your technician.",
		RelatedID:     &payload.JobID,
	})
}

func (c *Consumer) handleJobCancelled(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.JobCancelledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse job.cancelled payload: %w", err)
	}

	// Notify the counterparty of whoever cancelled; admin cancels notify both sides.
	message := "The job was cancelled."
	if payload.Reason != "" {
		message = fmt.Sprintf("The job was cancelled: %s", payload.Reason)
	}

	var recipients []models.Notification
	notifyCustomer := payload.CancelledBy != enums.CancelActorCustomer
	notifyTechnician := payload.CancelledBy != enums.CancelActorTechnician && payload.TechnicianID != nil
	if notifyCustomer {
		recipients = append(recipients, models.Notification{
			RecipientID:   payload.CustomerID,
			RecipientRole: enums.ActorRoleCustomer,
		})
	}
	if notifyTechnician {
		recipients = append(recipients, models.Notification{
			RecipientID:   *payload.TechnicianID,
			RecipientRole: enums.ActorRoleTechnician,
		})
	}

	for i := range recipients {
		notification := recipients[i]
		notification.Type = enums.NotificationTypeJobCancelled
		notification.Title = "Job cancelled"
		notification.Message = message
		notification.RelatedID = &payload.JobID
		if err := c.repo.Create(ctx, &notification); err != nil {
			return err
		}
	}
	c.logg.Info(logCtx, "cancellation notifications created")
	return nil
}

func (c *Consumer) handleOrderCreated(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderCreatedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.created payload: %w", err)
	}
	if payload.SupplierID == nil {
		// Open inquiries surface through the supplier feed, not notifications.
		c.logg.Info(logCtx, "open inquiry skipped")
		return nil
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   *payload.SupplierID,
		RecipientRole: enums.ActorRoleSupplier,
		Type:          enums.NotificationTypeOrderInquiry,
		Title:         "New parts inquiry",
		Message:       "A buyer sent you a parts inquiry. Submit a quotation to proceed.",
		RelatedID:     &payload.OrderID,
	})
}

func (c *Consumer) handleOrderQuoted(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderQuotedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.quoted payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.BuyerID,
		RecipientRole: payload.BuyerRole,
		Type:          enums.NotificationTypeOrderQuoted,
		Title:         "Quotation received",
		Message:       fmt.Sprintf("A supplier quoted %s for your parts order.", payload.Total.StringFixed(2)),
		RelatedID:     &payload.OrderID,
	})
}

func (c *Consumer) handleOrderDecided(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderDecidedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.decided payload: %w", err)
	}
	notification := &models.Notification{
		RecipientID:   payload.SupplierID,
		RecipientRole: enums.ActorRoleSupplier,
		Type:          enums.NotificationTypeOrderRejected,
		Title:         "Quotation rejected",
		Message:       "The buyer rejected your quotation.",
		RelatedID:     &payload.OrderID,
	}
	if payload.Approved {
		notification.Type = enums.NotificationTypeOrderConfirmed
		notification.Title = "Order confirmed"
		notification.Message = "The buyer approved your quotation. Prepare the order."
	}
	return c.create(ctx, logCtx, notification)
}

func (c *Consumer) handleOrderFulfilled(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderFulfilledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.fulfilled payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.BuyerID,
		RecipientRole: payload.BuyerRole,
		Type:          enums.NotificationTypeOrderFulfilled,
		Title:         "Order update",
		Message:       fmt.Sprintf("Your parts order is now %s.", payload.Status),
		RelatedID:     &payload.OrderID,
	})
}

func (c *Consumer) handleOrderPaid(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderPaidEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.paid payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.SupplierID,
		RecipientRole: enums.ActorRoleSupplier,
		Type:          enums.NotificationTypeOrderPaid,
		Title:         "Order paid",
		Message:       fmt.Sprintf("You received %s for a parts order.", payload.Amount.StringFixed(2)),
		RelatedID:     &payload.OrderID,
	})
}

func (c *Consumer) handleOrderCancelled(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderCancelledEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.cancelled payload: %w", err)
	}
	if payload.SupplierID == nil {
		c.logg.Info(logCtx, "unclaimed order cancelled, nobody to notify")
		return nil
	}
	message := "The parts order was cancelled."
	if payload.Reason != "" {
		message = fmt.Sprintf("The parts order was cancelled: %s", payload.Reason)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   *payload.SupplierID,
		RecipientRole: enums.ActorRoleSupplier,
		Type:          enums.NotificationTypeOrderCancelled,
		Title:         "Order cancelled",
		Message:       message,
		RelatedID:     &payload.OrderID,
	})
}

func (c *Consumer) handleWalletTopup(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.WalletTopupEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse wallet.topup payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.OwnerID,
		RecipientRole: payload.OwnerRole,
		Type:          enums.NotificationTypeWalletCredited,
		Title:         "Wallet credited",
		Message:       fmt.Sprintf("Your wallet was topped up with %s.", payload.Amount.StringFixed(2)),
		RelatedID:     &payload.TransactionID,
	})
}

func (c *Consumer) handleWalletPayout(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.WalletPayoutEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse wallet.payout payload: %w", err)
	}
	return c.create(ctx, logCtx, &models.Notification{
		RecipientID:   payload.OwnerID,
		RecipientRole: payload.OwnerRole,
		Type:          enums.NotificationTypeWalletDebited,
		Title:         "Payout initiated",
		Message:       fmt.Sprintf("A payout of %s was debited from your wallet.", payload.Amount.StringFixed(2)),
		RelatedID:     &payload.TransactionID,
	})
}

func (c *Consumer) create(ctx context.Context, logCtx context.Context, notification *models.Notification) error {
	if notification.RecipientID == uuid.Nil {
		return fmt.Errorf("recipient id missing")
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return err
	}
	c.logg.Info(logCtx, "notification created")
	return nil
}
