package enums

// NotificationType classifies entries on an actor's notification feed.
type NotificationType string

const (
	NotificationTypeJobBroadcast    NotificationType = "job_broadcast"
	NotificationTypeJobDirect       NotificationType = "job_direct"
	NotificationTypeJobAccepted     NotificationType = "job_accepted"
	NotificationTypeQuoteSubmitted  NotificationType = "quote_submitted"
	NotificationTypeQuoteResponded  NotificationType = "quote_responded"
	NotificationTypeBillSubmitted   NotificationType = "bill_submitted"
	NotificationTypeJobDelivered    NotificationType = "vehicle_delivered"
	NotificationTypeJobCompleted    NotificationType = "job_completed"
	NotificationTypeJobCancelled    NotificationType = "job_cancelled"
	NotificationTypeOrderInquiry    NotificationType = "order_inquiry"
	NotificationTypeOrderQuoted     NotificationType = "order_quoted"
	NotificationTypeOrderConfirmed  NotificationType = "order_confirmed"
	NotificationTypeOrderFulfilled  NotificationType = "order_fulfilled"
	NotificationTypeOrderPaid       NotificationType = "order_paid"
	NotificationTypeOrderRejected   NotificationType = "order_rejected"
	NotificationTypeOrderCancelled  NotificationType = "order_cancelled"
	NotificationTypeWalletCredited  NotificationType = "wallet_credited"
	NotificationTypeWalletDebited   NotificationType = "wallet_debited"
	NotificationTypePayoutRequested NotificationType = "payout_requested"
)

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}
