package enums

import "fmt"

// OrderStatus tracks the lifecycle of a parts order.
type OrderStatus string

const (
	OrderStatusInquiry   OrderStatus = "inquiry"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusQuoted    OrderStatus = "quoted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPacked    OrderStatus = "packed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusInquiry,
	OrderStatusPending,
	OrderStatusQuoted,
	OrderStatusConfirmed,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusRejected,
	OrderStatusCancelled,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusRejected || o == OrderStatusCancelled
}

// fulfillmentOrder fixes the legal supplier progression after confirmation.
var fulfillmentOrder = map[OrderStatus]int{
	OrderStatusConfirmed: 0,
	OrderStatusPacked:    1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// CanFulfillTo reports whether a supplier may move the order from o to next.
func (o OrderStatus) CanFulfillTo(next OrderStatus) bool {
	from, ok := fulfillmentOrder[o]
	if !ok {
		return false
	}
	to, ok := fulfillmentOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
