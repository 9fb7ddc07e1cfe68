package enums

// OutboxEventType names the domain events emitted through the outbox.
type OutboxEventType string

const (
	EventJobCreated     OutboxEventType = "job.created"
	EventJobAccepted    OutboxEventType = "job.accepted"
	EventJobQuoted      OutboxEventType = "job.quoted"
	EventJobQuoteReply  OutboxEventType = "job.quote_replied"
	EventJobBilled      OutboxEventType = "job.billed"
	EventJobDelivered   OutboxEventType = "job.vehicle_delivered"
	EventJobPaid        OutboxEventType = "job.paid"
	EventJobCompleted   OutboxEventType = "job.completed"
	EventJobCancelled   OutboxEventType = "job.cancelled"
	EventJobRated       OutboxEventType = "job.rated"
	EventOrderCreated   OutboxEventType = "order.created"
	EventOrderQuoted    OutboxEventType = "order.quoted"
	EventOrderDecided   OutboxEventType = "order.decided"
	EventOrderFulfilled OutboxEventType = "order.fulfilled"
	EventOrderPaid      OutboxEventType = "order.paid"
	EventOrderCancelled OutboxEventType = "order.cancelled"
	EventWalletTopup    OutboxEventType = "wallet.topup"
	EventWalletPayout   OutboxEventType = "wallet.payout"
)

func (o OutboxEventType) String() string {
	return string(o)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateJob    OutboxAggregateType = "job"
	AggregateOrder  OutboxAggregateType = "order"
	AggregateWallet OutboxAggregateType = "wallet"
)

// OutboxDLQErrorReason classifies terminal publish failures.
type OutboxDLQErrorReason string

const (
	DLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	DLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
