package enums

import "fmt"

// JobStatus tracks the lifecycle of a service request.
type JobStatus string

const (
	JobStatusPending            JobStatus = "pending"
	JobStatusAccepted           JobStatus = "accepted"
	JobStatusDiagnosing         JobStatus = "diagnosing"
	JobStatusQuotePending       JobStatus = "quote_pending"
	JobStatusQuoteRejected      JobStatus = "quote_rejected"
	JobStatusInProgress         JobStatus = "in_progress"
	JobStatusBillingPending     JobStatus = "billing_pending"
	JobStatusBillRejected       JobStatus = "bill_rejected"
	JobStatusVehicleDelivered   JobStatus = "vehicle_delivered"
	JobStatusPaymentPendingCash JobStatus = "payment_pending_cash"
	JobStatusCompleted          JobStatus = "completed"
	JobStatusCancelled          JobStatus = "cancelled"
)

var validJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusAccepted,
	JobStatusDiagnosing,
	JobStatusQuotePending,
	JobStatusQuoteRejected,
	JobStatusInProgress,
	JobStatusBillingPending,
	JobStatusBillRejected,
	JobStatusVehicleDelivered,
	JobStatusPaymentPendingCash,
	JobStatusCompleted,
	JobStatusCancelled,
}

// String implements fmt.Stringer.
func (j JobStatus) String() string {
	return string(j)
}

// IsValid reports whether the value is a known JobStatus.
func (j JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == j {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (j JobStatus) IsTerminal() bool {
	return j == JobStatusCompleted || j == JobStatusCancelled
}

// IsBillable reports whether a customer may respond to a bill in this status.
func (j JobStatus) IsBillable() bool {
	return j == JobStatusBillingPending || j == JobStatusVehicleDelivered
}

// ParseJobStatus converts raw input into a JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}
