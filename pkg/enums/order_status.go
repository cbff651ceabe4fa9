package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the internal lifecycle of an order.
type OrderStatus string

const (
	OrderStatusCreated             OrderStatus = "created"
	OrderStatusAwaitingPayment     OrderStatus = "awaiting_payment"
	OrderStatusProcessingShipment  OrderStatus = "processing_shipment"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusDelivered           OrderStatus = "delivered"
	OrderStatusRefunded            OrderStatus = "refunded"
	OrderStatusCancelledBySeller   OrderStatus = "cancelled_by_seller"
	OrderStatusCancelledByCustomer OrderStatus = "cancelled_by_customer"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusAwaitingPayment,
	OrderStatusProcessingShipment,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusRefunded,
	OrderStatusCancelledBySeller,
	OrderStatusCancelledByCustomer,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsCancelled reports whether the status is one of the cancellation outcomes.
func (s OrderStatus) IsCancelled() bool {
	return s == OrderStatusCancelledBySeller || s == OrderStatusCancelledByCustomer
}

// IsTerminal reports whether the lifecycle has ended. DELIVERED is terminal
// even though a refund may still be recorded against it.
func (s OrderStatus) IsTerminal() bool {
	return s.IsCancelled() || s == OrderStatusRefunded || s == OrderStatusDelivered
}

// ParseOrderStatus converts raw input into an OrderStatus. Upper case input
// ("PROCESSING_SHIPMENT") is accepted.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
