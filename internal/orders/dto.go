package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

// Line is one cart line priced at checkout time.
type Line struct {
	VariantID   uuid.UUID
	Quantity    int
	UnitPrice   decimal.Decimal
	ProductName string
	SKU         string
	NCM         string
	WeightKG    *float64
	Details     types.ItemDetails
}

// Subtotal is quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals are the server-computed order amounts.
type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
}

// Total is subtotal plus shipping minus discount.
func (t Totals) Total() decimal.Decimal {
	return t.Subtotal.Add(t.Shipping).Sub(t.Discount)
}

type CreateOrderInput struct {
	UserID        *uuid.UUID
	SessionID     *string
	Lines         []Line
	ShipTo        types.ShippingSnapshot
	Fiscal        types.FiscalSnapshot
	Selection     types.ShippingSelection
	Totals        Totals
	PaymentMethod enums.PaymentMethod
	ClientIP      string
	UserAgent     string
}

type RecordPaymentInput struct {
	OrderID        uuid.UUID
	Method         enums.PaymentMethod
	Amount         decimal.Decimal
	GatewayOrderID string
	Charge         payment.Charge
	Raw            []byte
}

// TransitionInput asks for an order status change.
type TransitionInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	// TrackingCode is forwarded to the ERP when the order ships.
	TrackingCode string
	// Source names the caller for the audit log (checkout, payment_webhook,
	// erp_webhook, label, admin, cron).
	Source string
}

// StatusChange is the outcome of a transition, including the follow-on
// actions the caller's transaction queued.
type StatusChange struct {
	OrderID uuid.UUID
	From    enums.OrderStatus
	To      enums.OrderStatus
	Changed bool
	Actions []outbox.Action
}

// PaymentUpdate is the outcome of applying a gateway status to a payment.
type PaymentUpdate struct {
	Payment       *models.Payment
	Previous      enums.PaymentStatus
	Appended      bool
	StatusChanged bool
}

// TrackingView is everything the anonymous tracking page shows.
type TrackingView struct {
	Order        *models.Order
	Payment      *models.Payment
	Label        *models.ShippingLabel
	PublicStatus enums.PublicStatus
	UpdatedAt    time.Time
}

// CancellationReason is the gateway's decline message for a cancelled order.
func (v *TrackingView) CancellationReason() string {
	if v.PublicStatus != enums.PublicStatusCancelled || v.Payment == nil || v.Payment.DeclineReason == nil {
		return ""
	}
	return *v.Payment.DeclineReason
}

// ERPSyncView joins the order with the ERP ids of its products and the
// documents already attached to it.
type ERPSyncView struct {
	Order          *models.Order
	ProductERPIDs  map[uuid.UUID]int64
	OrderLink      *models.ERPOrderLink
	FiscalDocument *models.FiscalDocument
	Label          *models.ShippingLabel
}

// MissingProducts lists variants not yet linked at the ERP.
func (v ERPSyncView) MissingProducts() []uuid.UUID {
	var out []uuid.UUID
	for _, item := range v.Order.Items {
		if _, ok := v.ProductERPIDs[item.VariantID]; !ok {
			out = append(out, item.VariantID)
		}
	}
	return out
}
