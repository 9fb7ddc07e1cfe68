package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/db/models"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	"github.com/torquehub/torquehub-backend/pkg/outbox"
	"github.com/torquehub/torquehub-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured domain topic.
// Every domain event flows through a single topic; consumers branch on the
// event type carried in message attributes.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.DomainTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventJobCreated,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobCreatedEvent{} },
		},
		{
			EventType:      enums.EventJobAccepted,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobAcceptedEvent{} },
		},
		{
			EventType:      enums.EventJobQuoted,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobQuotedEvent{} },
		},
		{
			EventType:      enums.EventJobQuoteReply,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobQuoteReplyEvent{} },
		},
		{
			EventType:      enums.EventJobBilled,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobBilledEvent{} },
		},
		{
			EventType:      enums.EventJobDelivered,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobDeliveredEvent{} },
		},
		{
			EventType:      enums.EventJobPaid,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobPaidEvent{} },
		},
		{
			EventType:      enums.EventJobCompleted,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobCompletedEvent{} },
		},
		{
			EventType:      enums.EventJobCancelled,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobCancelledEvent{} },
		},
		{
			EventType:      enums.EventJobRated,
			AggregateType:  enums.AggregateJob,
			PayloadFactory: func() interface{} { return &payloads.JobRatedEvent{} },
		},
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderCreatedEvent{} },
		},
		{
			EventType:      enums.EventOrderQuoted,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderQuotedEvent{} },
		},
		{
			EventType:      enums.EventOrderDecided,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderDecidedEvent{} },
		},
		{
			EventType:      enums.EventOrderFulfilled,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderFulfilledEvent{} },
		},
		{
			EventType:      enums.EventOrderPaid,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderPaidEvent{} },
		},
		{
			EventType:      enums.EventOrderCancelled,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() interface{} { return &payloads.OrderCancelledEvent{} },
		},
		{
			EventType:      enums.EventWalletTopup,
			AggregateType:  enums.AggregateWallet,
			PayloadFactory: func() interface{} { return &payloads.WalletTopupEvent{} },
		},
		{
			EventType:      enums.EventWalletPayout,
			AggregateType:  enums.AggregateWallet,
			PayloadFactory: func() interface{} { return &payloads.WalletPayoutEvent{} },
		},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
