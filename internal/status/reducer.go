// Package status translates external status codes into internal states and
// internal states into the public status shown on the tracking page. Every
// boundary that receives a status string maps it here exactly once.
package status

import (
	"strings"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

var gatewayToPayment = map[string]enums.PaymentStatus{
	"WAITING":     enums.PaymentStatusPending,
	"PENDING":     enums.PaymentStatusPending,
	"IN_ANALYSIS": enums.PaymentStatusPending,
	"PAID":        enums.PaymentStatusPaid,
	"AUTHORIZED":  enums.PaymentStatusPaid,
	"APPROVED":    enums.PaymentStatusApproved,
	"DECLINED":    enums.PaymentStatusCancelled,
	"CANCELLED":   enums.PaymentStatusCancelled,
	"CANCELED":    enums.PaymentStatusCancelled,
	"REFUNDED":    enums.PaymentStatusCancelled,
	"CHARGEBACK":  enums.PaymentStatusCancelled,
	"EXPIRED":     enums.PaymentStatusExpired,
}

// PaymentFromGateway maps a gateway charge status to the internal payment
// status. Unknown codes are treated as still pending.
func PaymentFromGateway(code string) enums.PaymentStatus {
	if mapped, ok := gatewayToPayment[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return mapped
	}
	return enums.PaymentStatusPending
}

// IsDeclined reports whether the gateway code is an outright refusal, as
// opposed to an expiry or a later reversal.
func IsDeclined(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), "DECLINED")
}

// OrderTargetForPayment returns the order status a payment status drives the
// order towards. ok is false when the payment status has no order effect.
// The caller still has to check the transition against the state machine.
func OrderTargetForPayment(payment enums.PaymentStatus) (enums.OrderStatus, bool) {
	switch payment {
	case enums.PaymentStatusPaid, enums.PaymentStatusApproved:
		return enums.OrderStatusProcessingShipment, true
	case enums.PaymentStatusCancelled, enums.PaymentStatusExpired:
		return enums.OrderStatusCancelledBySeller, true
	default:
		return "", false
	}
}

// PublicFromOrder maps the internal order status to the buyer-facing status.
func PublicFromOrder(order enums.OrderStatus) enums.PublicStatus {
	switch order {
	case enums.OrderStatusProcessingShipment:
		return enums.PublicStatusApproved
	case enums.OrderStatusShipped:
		return enums.PublicStatusShipped
	case enums.OrderStatusDelivered:
		return enums.PublicStatusDelivered
	case enums.OrderStatusCancelledBySeller, enums.OrderStatusCancelledByCustomer, enums.OrderStatusRefunded:
		return enums.PublicStatusCancelled
	default:
		return enums.PublicStatusPending
	}
}

// PublicFromGateway composes the gateway, payment and public tables for an
// order that is still awaiting payment.
func PublicFromGateway(code string) enums.PublicStatus {
	target, ok := OrderTargetForPayment(PaymentFromGateway(code))
	if !ok {
		return PublicFromOrder(enums.OrderStatusAwaitingPayment)
	}
	return PublicFromOrder(target)
}

var carrierToLabel = map[string]enums.LabelStatus{
	"pending":     enums.LabelStatusCreated,
	"released":    enums.LabelStatusPaid,
	"generated":   enums.LabelStatusPaid,
	"printed":     enums.LabelStatusPrinted,
	"posted":      enums.LabelStatusPosted,
	"delivered":   enums.LabelStatusDelivered,
	"undelivered": enums.LabelStatusPosted,
	"canceled":    enums.LabelStatusCancelled,
	"cancelled":   enums.LabelStatusCancelled,
}

// LabelFromCarrier maps a carrier shipment status. ok is false for codes the
// mirror does not track.
func LabelFromCarrier(code string) (enums.LabelStatus, bool) {
	mapped, ok := carrierToLabel[strings.ToLower(strings.TrimSpace(code))]
	return mapped, ok
}
