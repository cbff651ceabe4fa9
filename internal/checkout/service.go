// Package checkout runs the buyer's "pay" action: price the cart, reserve
// stock through the order store, charge at the payment gateway and hand back
// the public tracking token with the payment artifacts.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	"github.com/angelmondragon/atelie-backend/internal/catalog"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/internal/status"
	pkgcheckout "github.com/angelmondragon/atelie-backend/pkg/checkout"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

type cartStore interface {
	Cart(ctx context.Context, owner catalog.Owner) ([]models.CartItem, error)
	ClearCart(ctx context.Context, owner catalog.Owner) error
}

type orderStore interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (*models.Order, error)
	RecordPayment(ctx context.Context, in orders.RecordPaymentInput) (*orders.RecordedPayment, error)
	MintPublicToken(ctx context.Context, orderID uuid.UUID, public enums.PublicStatus) (string, error)
	DiscardUnpaidOrder(ctx context.Context, orderID uuid.UUID, reason string) error
}

type paymentGateway interface {
	CreateOrder(ctx context.Context, req payment.CreateOrderRequest, idempotencyKey string) (*payment.Order, []byte, error)
}

type freightQuoter interface {
	Calculate(ctx context.Context, req carrier.CalculateRequest) ([]carrier.Quote, error)
}

type cardTaker interface {
	Take(ctx context.Context, ref string) (cardvault.Card, error)
}

// Customer is the buyer's contact data sent to the gateway.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// CardInput carries either a card token with its CVV or a vault reference.
type CardInput struct {
	Token        string
	CVV          string
	HolderName   string
	CardRef      string
	Installments int
}

type Input struct {
	Owner     catalog.Owner
	Selection types.ShippingSelection
	ShipTo    types.ShippingSnapshot
	Fiscal    types.FiscalSnapshot
	Customer  Customer
	Method    enums.PaymentMethod
	Card      *CardInput
	ClientIP  string
	UserAgent string
}

// Artifacts is what the buyer needs to complete or confirm the payment.
type Artifacts struct {
	Type         string     `json:"type"`
	QRText       string     `json:"qr_text,omitempty"`
	QRLink       string     `json:"qr_link,omitempty"`
	Link         string     `json:"link,omitempty"`
	Barcode      string     `json:"barcode,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Approved     *bool      `json:"approved,omitempty"`
	Installments int        `json:"installments,omitempty"`
}

type Result struct {
	OrderCode   string             `json:"order_code"`
	PublicToken string             `json:"public_token"`
	Status      enums.PublicStatus `json:"status"`
	Total       decimal.Decimal    `json:"total"`
	Payment     Artifacts          `json:"payment"`
}

type Params struct {
	Carts    cartStore
	Orders   orderStore
	Payments paymentGateway
	Freight  freightQuoter
	Cards    cardTaker
	Logger   *logger.Logger
	Checkout config.CheckoutConfig
	Payment  config.PaymentConfig
	Shop     config.ShopConfig
	Shipping config.ShippingConfig
}

// Service executes checkout orchestration.
type Service struct {
	carts    cartStore
	orders   orderStore
	payments paymentGateway
	freight  freightQuoter
	cards    cardTaker
	logg     *logger.Logger
	cfg      config.CheckoutConfig
	payCfg   config.PaymentConfig
	shop     config.ShopConfig
	shipping config.ShippingConfig
	now      func() time.Time
}

func NewService(p Params) (*Service, error) {
	if p.Carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if p.Payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Checkout.VerifyFreightQuote && p.Freight == nil {
		return nil, fmt.Errorf("freight quoter required when freight verification is enabled")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		carts:    p.Carts,
		orders:   p.Orders,
		payments: p.Payments,
		freight:  p.Freight,
		cards:    p.Cards,
		logg:     logg,
		cfg:      p.Checkout,
		payCfg:   p.Payment,
		shop:     p.Shop,
		shipping: p.Shipping,
		now:      time.Now,
	}, nil
}

// Execute turns the owner's cart into a paid or payable order. The order
// commits before the gateway is called; a gateway failure discards it again.
func (s *Service) Execute(ctx context.Context, in Input) (*Result, error) {
	if !in.Owner.Valid() {
		return nil, pkgerrors.Validation("cart", "owner")
	}
	if !in.Method.IsValid() {
		return nil, pkgerrors.Validation("payment", "method")
	}
	ctx = s.logg.WithField(ctx, "cart_owner", in.Owner.Key())

	items, err := s.carts.Cart(ctx, in.Owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if len(items) == 0 {
		return nil, pkgerrors.Validation("cart", "empty")
	}
	lines, err := linesFromCart(items)
	if err != nil {
		return nil, err
	}

	if err := pkgcheckout.ValidateAddress(&in.ShipTo); err != nil {
		return nil, err
	}
	if err := pkgcheckout.ValidateFiscal(&in.Fiscal, in.ShipTo); err != nil {
		return nil, err
	}
	if err := pkgcheckout.ValidateEmail(in.Customer.Email); err != nil {
		return nil, err
	}
	in.ShipTo.Email = strings.TrimSpace(in.Customer.Email)
	if in.ShipTo.Phone == "" {
		in.ShipTo.Phone = in.Customer.Phone
	}

	selection, err := s.resolveFreight(ctx, in.Selection, in.ShipTo.CEP, lines)
	if err != nil {
		return nil, err
	}
	totals := computeTotals(lines, selection.Price, in.Method, s.cfg.PixDiscountPercent)
	if !totals.Total().IsPositive() {
		return nil, pkgerrors.Validation("cart", "total")
	}

	installments := 1
	if in.Method == enums.PaymentMethodCreditCard {
		installments, err = s.checkCard(in.Card)
		if err != nil {
			return nil, err
		}
	}

	var sessionID *string
	if in.Owner.UserID == nil {
		sid := in.Owner.SessionID
		sessionID = &sid
	}
	order, err := s.orders.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:        in.Owner.UserID,
		SessionID:     sessionID,
		Lines:         lines,
		ShipTo:        in.ShipTo,
		Fiscal:        in.Fiscal,
		Selection:     selection,
		Totals:        totals,
		PaymentMethod: in.Method,
		ClientIP:      in.ClientIP,
		UserAgent:     in.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderCode(ctx, order.Code)

	var card *cardvault.Card
	if in.Method == enums.PaymentMethodCreditCard {
		// A vaulted card is consumed only once stock is reserved.
		card, err = s.resolveCard(ctx, in.Card)
		if err != nil {
			if derr := s.orders.DiscardUnpaidOrder(ctx, order.ID, "card unavailable"); derr != nil {
				s.logg.Error(ctx, "failed to discard unpaid order", derr)
			}
			return nil, err
		}
	}

	req := s.buildPaymentRequest(order, in, card, installments)
	gwOrder, raw, err := s.payments.CreateOrder(ctx, req, order.Code)
	if err != nil {
		return nil, s.compensate(ctx, order, err)
	}
	charge, ok := gwOrder.FirstCharge()
	if !ok {
		return nil, s.compensate(ctx, order, errors.New("gateway answered without a parseable charge"))
	}
	if missingInstructions(in.Method, charge) {
		return nil, s.compensate(ctx, order, errors.New("pending charge without payment instructions"))
	}

	recorded, err := s.orders.RecordPayment(ctx, orders.RecordPaymentInput{
		OrderID:        order.ID,
		Method:         in.Method,
		Amount:         order.Total,
		GatewayOrderID: gwOrder.ID,
		Charge:         charge,
		Raw:            raw,
	})
	if err != nil {
		// The charge exists at the gateway; the order stays CREATED and the
		// orphan sweeper records the charge by reference before discarding.
		s.logg.Error(ctx, "failed to record gateway charge", err)
		return nil, err
	}

	final := recorded.Order.Status
	if final == enums.OrderStatusCancelledBySeller {
		reason := charge.DeclineMessage()
		s.logg.Warn(s.logg.WithField(ctx, "decline_reason", reason), "card payment declined")
		return nil, pkgerrors.PaymentDeclined(reason).WithDetails(map[string]any{
			"reason":     declineReason(reason),
			"order_code": order.Code,
		})
	}

	public := status.PublicFromOrder(final)
	token, err := s.orders.MintPublicToken(ctx, order.ID, public)
	if err != nil {
		s.logg.Error(ctx, "failed to mint public token", err)
		return nil, err
	}

	if err := s.carts.ClearCart(ctx, in.Owner); err != nil {
		s.logg.Error(ctx, "failed to clear cart after checkout", err)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"method":   string(in.Method),
		"status":   string(final),
		"total":    order.Total.StringFixed(2),
	}), "checkout completed")

	return &Result{
		OrderCode:   order.Code,
		PublicToken: token,
		Status:      public,
		Total:       order.Total,
		Payment:     artifactsFor(recorded.Payment),
	}, nil
}

// resolveFreight re-quotes the selected service so the carrier's price, not
// the client's, is charged.
func (s *Service) resolveFreight(ctx context.Context, sel types.ShippingSelection, destCEP string, lines []orders.Line) (types.ShippingSelection, error) {
	if sel.ServiceID <= 0 {
		return sel, pkgerrors.Validation("shipping", "service")
	}
	sel.OriginCEP = s.shop.OriginCEP
	if !s.cfg.VerifyFreightQuote {
		if sel.Price.IsNegative() {
			return sel, pkgerrors.Validation("shipping", "price")
		}
		return sel, nil
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}
	insurance, _ := subtotal.Float64()
	quotes, err := s.freight.Calculate(ctx, carrier.CalculateRequest{
		From:     carrier.PostalRef{PostalCode: s.shop.OriginCEP},
		To:       carrier.PostalRef{PostalCode: destCEP},
		Package:  pkgcheckout.Parcel(parcelItems(lines), s.shipping.DefaultItemWeight, s.shipping.MinimumWeight),
		Options:  carrier.Options{InsuranceValue: insurance},
		Services: strconv.Itoa(sel.ServiceID),
	})
	if err != nil {
		return sel, pkgerrors.GatewayUnavailable("carrier", err)
	}
	for _, q := range quotes {
		if q.ID != sel.ServiceID || q.Error != "" {
			continue
		}
		sel.Price = q.Price
		sel.ServiceName = q.Name
		sel.CarrierCompany = q.Company.Name
		sel.EstimateDays = q.DeliveryTime
		return sel, nil
	}
	return sel, pkgerrors.Validation("shipping", "service")
}

// checkCard validates the card input without consuming a vaulted card.
func (s *Service) checkCard(in *CardInput) (int, error) {
	if in == nil {
		return 0, pkgerrors.Validation("card", "required")
	}
	installments := in.Installments
	if installments == 0 {
		installments = 1
	}
	maxInstallments := s.payCfg.MaxInstallments
	if maxInstallments <= 0 {
		maxInstallments = 1
	}
	if installments < 1 || installments > maxInstallments {
		return 0, pkgerrors.Validation("card", "installments")
	}
	if strings.TrimSpace(in.CardRef) == "" && strings.TrimSpace(in.Token) == "" {
		return 0, pkgerrors.Validation("card", "token")
	}
	return installments, nil
}

func (s *Service) resolveCard(ctx context.Context, in *CardInput) (*cardvault.Card, error) {
	if ref := strings.TrimSpace(in.CardRef); ref != "" {
		if s.cards == nil {
			return nil, pkgerrors.Validation("card", "expired")
		}
		card, err := s.cards.Take(ctx, ref)
		if err != nil {
			return nil, err
		}
		if in.CVV != "" {
			card.CVV = in.CVV
		}
		return &card, nil
	}
	return &cardvault.Card{
		Encrypted:  strings.TrimSpace(in.Token),
		HolderName: strings.TrimSpace(in.HolderName),
		CVV:        in.CVV,
	}, nil
}

// missingInstructions reports a pending PIX or boleto charge the buyer
// cannot pay because the gateway left out the QR code or the slip.
func missingInstructions(method enums.PaymentMethod, charge payment.Charge) bool {
	if status.PaymentFromGateway(charge.Status) != enums.PaymentStatusPending {
		return false
	}
	switch method {
	case enums.PaymentMethodPix:
		return charge.QRText() == ""
	case enums.PaymentMethodBoleto:
		return charge.Boleto == nil || charge.Boleto.Barcode.Content == "" || charge.BoletoLink() == ""
	}
	return false
}

// compensate discards the just-created order after a failed charge attempt
// and translates the gateway failure.
func (s *Service) compensate(ctx context.Context, order *models.Order, cause error) error {
	s.logg.Error(ctx, "payment gateway call failed", cause)
	if err := s.orders.DiscardUnpaidOrder(ctx, order.ID, "payment gateway failure"); err != nil {
		s.logg.Error(ctx, "failed to discard unpaid order", err)
	}
	if gateway.IsKind(cause, gateway.KindBadRequest) {
		return pkgerrors.PaymentDeclined("rejected by gateway").WithDetails(map[string]any{
			"reason":     "rejected by gateway",
			"order_code": order.Code,
		})
	}
	return pkgerrors.GatewayUnavailable("payment", cause)
}

func declineReason(reason string) string {
	if reason == "" {
		return "declined"
	}
	return reason
}

func artifactsFor(p *models.Payment) Artifacts {
	out := Artifacts{Type: p.Method.GatewayType()}
	switch p.Method {
	case enums.PaymentMethodPix:
		out.QRText = deref(p.PixQRText)
		out.QRLink = deref(p.PixQRLink)
	case enums.PaymentMethodBoleto:
		out.Link = deref(p.BoletoLink)
		out.Barcode = deref(p.BoletoBarcode)
		out.ExpiresAt = p.BoletoDueDate
	case enums.PaymentMethodCreditCard:
		approved := p.Status.IsSettled()
		out.Approved = &approved
		if p.Installments != nil {
			out.Installments = *p.Installments
		}
	}
	return out
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
