// Package shipping mirrors the carrier label lifecycle for paid orders.
package shipping

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/internal/status"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

const SourceLabel = "label"

const defaultCancelReason = "cancelled by the shop"

type carrierClient interface {
	CreateShipment(ctx context.Context, req carrier.CreateShipmentRequest, idempotencyKey string) (*carrier.Shipment, []byte, error)
	Checkout(ctx context.Context, shipmentID string) (*carrier.Purchase, error)
	Print(ctx context.Context, shipmentID string) (string, error)
	Track(ctx context.Context, shipmentID string) (*carrier.Tracking, error)
	Cancel(ctx context.Context, shipmentID, reason string) error
}

type orderStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	TransitionTx(ctx context.Context, tx *gorm.DB, in orders.TransitionInput) (orders.StatusChange, error)
	EnqueueTx(ctx context.Context, tx *gorm.DB, actions []outbox.Action) error
}

type ServiceParams struct {
	Repository Repository
	Orders     orderStore
	Carrier    carrierClient
	Logger     *logger.Logger
	Shop       config.ShopConfig
	Shipping   config.ShippingConfig
}

type Service struct {
	repo     Repository
	orders   orderStore
	carrier  carrierClient
	logg     *logger.Logger
	shop     config.ShopConfig
	shipping config.ShippingConfig
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "label repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.Carrier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "carrier client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     params.Repository,
		orders:   params.Orders,
		carrier:  params.Carrier,
		logg:     logg,
		shop:     params.Shop,
		shipping: params.Shipping,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateForOrder registers the order's shipment at the carrier. An order
// that already has a non-cancelled label gets that label back.
func (s *Service) CreateForOrder(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error) {
	existing, err := s.repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load label")
	}
	if existing != nil {
		return existing, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(s.logg.WithOrderCode(ctx, order.Code), map[string]any{"order_id": order.ID.String()})
	if order.Status != enums.OrderStatusProcessingShipment {
		// No retry moves an order into shipping, so the action goes to the DLQ.
		return nil, pkgerrors.New(pkgerrors.CodeIllegalTransition, "order is not ready for shipping").
			WithDetails(map[string]any{"status": order.Status})
	}

	invoiceKey, err := s.repo.IssuedInvoiceKey(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load fiscal document")
	}
	if s.shipping.LabelTrigger == config.LabelTriggerInvoice && invoiceKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice not issued yet")
	}

	req, parcel := shipmentRequest(order, s.shop, s.shipping, invoiceKey)
	shipment, raw, err := s.carrier.CreateShipment(ctx, req, order.Code)
	if err != nil {
		s.logg.Error(ctx, "carrier shipment creation failed", err)
		return nil, carrierError(err)
	}

	freight := shipment.Price
	if freight.IsZero() {
		freight = order.ShippingSelection.Price
	}
	serviceID := shipment.ServiceID
	if serviceID == 0 {
		serviceID = order.ShippingSelection.ServiceID
	}
	label := &models.ShippingLabel{
		OrderID:        order.ID,
		ShipmentID:     shipment.ID,
		Protocol:       shipment.Protocol,
		ServiceID:      serviceID,
		ServiceName:    order.ShippingSelection.ServiceName,
		Status:         enums.LabelStatusCreated,
		CarrierCompany: order.ShippingSelection.CarrierCompany,
		OriginCEP:      req.From.PostalCode,
		DestinationCEP: req.To.PostalCode,
		WeightKG:       parcel.Weight,
		Freight:        freight,
		HeightCM:       parcel.Height,
		WidthCM:        parcel.Width,
		LengthCM:       parcel.Length,
		RawPayload:     jsonOrNil(raw),
	}
	if err := s.repo.Create(ctx, label); err != nil {
		if db.IsUniqueViolation(err, "") {
			if winner, ferr := s.repo.FindActiveByOrder(ctx, order.ID); ferr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist label")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"label_id":    label.ID.String(),
		"shipment_id": label.ShipmentID,
		"weight_kg":   label.WeightKG,
	}), "shipping label created")
	return label, nil
}

// Checkout pays for the label at the carrier.
func (s *Service) Checkout(ctx context.Context, labelID uuid.UUID) (*models.ShippingLabel, error) {
	label, err := s.load(ctx, labelID)
	if err != nil {
		return nil, err
	}
	switch label.Status {
	case enums.LabelStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "label is cancelled")
	case enums.LabelStatusCreated:
	default:
		return label, nil
	}

	ctx = s.labelContext(ctx, label)
	purchase, err := s.carrier.Checkout(ctx, label.ShipmentID)
	if err != nil {
		s.logg.Error(ctx, "carrier checkout failed", err)
		return nil, carrierError(err)
	}
	now := s.now()
	if err := s.repo.Update(ctx, label.ID, map[string]any{
		"status":  enums.LabelStatusPaid,
		"paid_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update label")
	}
	label.Status = enums.LabelStatusPaid
	label.PaidAt = &now
	s.logg.Info(s.logg.WithField(ctx, "purchase_id", purchase.ID), "shipping label paid")
	return label, nil
}

// Print fetches the printable label and marks the order shipped. A
// tracking code known at this point is forwarded to the ERP.
func (s *Service) Print(ctx context.Context, labelID uuid.UUID) (*models.ShippingLabel, error) {
	label, err := s.load(ctx, labelID)
	if err != nil {
		return nil, err
	}
	switch label.Status {
	case enums.LabelStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "label is cancelled")
	case enums.LabelStatusCreated:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "label is not paid")
	}

	ctx = s.labelContext(ctx, label)
	url, err := s.carrier.Print(ctx, label.ShipmentID)
	if err != nil {
		s.logg.Error(ctx, "carrier print failed", err)
		return nil, carrierError(err)
	}

	updates := map[string]any{"print_url": url}
	label.PrintURL = &url
	if label.Status == enums.LabelStatusPaid {
		now := s.now()
		updates["status"] = enums.LabelStatusPrinted
		updates["printed_at"] = now
		label.Status = enums.LabelStatusPrinted
		label.PrintedAt = &now
	}

	tracking, err := s.carrier.Track(ctx, label.ShipmentID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "tracking code unavailable after print")
	} else {
		applyTracking(label, tracking, updates)
	}

	err = s.orders.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, label.ID, updates); err != nil {
			return err
		}
		return s.advanceOrder(ctx, tx, label, enums.OrderStatusShipped)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record printed label")
	}
	s.logg.Info(ctx, "shipping label printed")
	return label, nil
}

// TrackResult is the carrier's latest view of a label after the mirror was
// updated.
type TrackResult struct {
	Label         *models.ShippingLabel
	CarrierStatus string
	Changed       bool
}

// Track refreshes the label from the carrier. Posting marks the order
// shipped and delivery marks it delivered, which clears its public token.
func (s *Service) Track(ctx context.Context, labelID uuid.UUID) (*TrackResult, error) {
	label, err := s.load(ctx, labelID)
	if err != nil {
		return nil, err
	}
	ctx = s.labelContext(ctx, label)
	tracking, err := s.carrier.Track(ctx, label.ShipmentID)
	if err != nil {
		s.logg.Error(ctx, "carrier tracking failed", err)
		return nil, carrierError(err)
	}

	result := &TrackResult{Label: label, CarrierStatus: tracking.Status}
	updates := map[string]any{}
	applyTracking(label, tracking, updates)

	mapped, known := status.LabelFromCarrier(tracking.Status)
	if known && advances(label.Status, mapped) {
		now := s.now()
		updates["status"] = mapped
		switch mapped {
		case enums.LabelStatusPosted:
			updates["posted_at"] = now
			label.PostedAt = &now
		case enums.LabelStatusDelivered:
			updates["delivered_at"] = now
			label.DeliveredAt = &now
		case enums.LabelStatusCancelled:
			updates["cancelled_at"] = now
			label.CancelledAt = &now
		}
		label.Status = mapped
	}
	if len(updates) == 0 {
		return result, nil
	}
	result.Changed = true

	err = s.orders.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, label.ID, updates); err != nil {
			return err
		}
		switch label.Status {
		case enums.LabelStatusPosted, enums.LabelStatusPrinted:
			return s.advanceOrder(ctx, tx, label, enums.OrderStatusShipped)
		case enums.LabelStatusDelivered:
			if err := s.advanceOrder(ctx, tx, label, enums.OrderStatusShipped); err != nil {
				return err
			}
			return s.advanceOrder(ctx, tx, label, enums.OrderStatusDelivered)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record tracking")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"carrier_status": tracking.Status,
		"label_status":   label.Status,
	}), "shipping label tracked")
	return result, nil
}

// Cancel voids the label at the carrier. The order status is left alone.
func (s *Service) Cancel(ctx context.Context, labelID uuid.UUID, reason string) (*models.ShippingLabel, error) {
	label, err := s.load(ctx, labelID)
	if err != nil {
		return nil, err
	}
	switch label.Status {
	case enums.LabelStatusCancelled:
		return label, nil
	case enums.LabelStatusPosted, enums.LabelStatusDelivered:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "label already handed to the carrier")
	}
	if reason == "" {
		reason = defaultCancelReason
	}

	ctx = s.labelContext(ctx, label)
	if err := s.carrier.Cancel(ctx, label.ShipmentID, reason); err != nil {
		s.logg.Error(ctx, "carrier cancel failed", err)
		return nil, carrierError(err)
	}
	now := s.now()
	if err := s.repo.Update(ctx, label.ID, map[string]any{
		"status":       enums.LabelStatusCancelled,
		"cancelled_at": now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update label")
	}
	label.Status = enums.LabelStatusCancelled
	label.CancelledAt = &now
	s.logg.Info(s.logg.WithField(ctx, "reason", reason), "shipping label cancelled")
	return label, nil
}

// SyncTracking tracks every printed or posted label. Failures of single
// labels do not stop the batch.
func (s *Service) SyncTracking(ctx context.Context, limit int) (int, error) {
	labels, err := s.repo.ListTrackable(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list trackable labels")
	}
	var errs error
	changed := 0
	for _, label := range labels {
		if ctx.Err() != nil {
			return changed, multierr.Append(errs, ctx.Err())
		}
		res, err := s.Track(ctx, label.ID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if res.Changed {
			changed++
		}
	}
	return changed, errs
}

// advanceOrder moves the label's order forward and queues the tracking
// forward when a code is known. Orders that already moved on are left as
// they are.
func (s *Service) advanceOrder(ctx context.Context, tx *gorm.DB, label *models.ShippingLabel, to enums.OrderStatus) error {
	code := ""
	if label.TrackingCode != nil {
		code = *label.TrackingCode
	}
	change, err := s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
		OrderID:      label.OrderID,
		To:           to,
		TrackingCode: code,
		Source:       SourceLabel,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition) {
		s.logg.Warn(s.logg.WithField(ctx, "to", to), "order not advanced by label")
		return nil
	}
	if err != nil {
		return err
	}
	if to == enums.OrderStatusShipped && code != "" && !change.Changed {
		return s.orders.EnqueueTx(ctx, tx, []outbox.Action{{
			Kind:         enums.ActionForwardTracking,
			OrderID:      label.OrderID,
			TrackingCode: code,
		}})
	}
	return nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.ShippingLabel, error) {
	label, err := s.repo.FindByID(ctx, id)
	if db.IsNotFound(err) {
		return nil, pkgerrors.NotFound("label")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load label")
	}
	return label, nil
}

func (s *Service) labelContext(ctx context.Context, label *models.ShippingLabel) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"label_id":    label.ID.String(),
		"order_id":    label.OrderID.String(),
		"shipment_id": label.ShipmentID,
	})
}

func applyTracking(label *models.ShippingLabel, t *carrier.Tracking, updates map[string]any) {
	if t == nil {
		return
	}
	if t.Tracking != nil && *t.Tracking != "" && (label.TrackingCode == nil || *label.TrackingCode != *t.Tracking) {
		code := *t.Tracking
		updates["tracking_code"] = code
		label.TrackingCode = &code
	}
	if t.TrackingURL != nil && *t.TrackingURL != "" && (label.TrackingURL == nil || *label.TrackingURL != *t.TrackingURL) {
		link := *t.TrackingURL
		updates["tracking_url"] = link
		label.TrackingURL = &link
	}
}

var labelRank = map[enums.LabelStatus]int{
	enums.LabelStatusCreated:   0,
	enums.LabelStatusPaid:      1,
	enums.LabelStatusPrinted:   2,
	enums.LabelStatusPosted:    3,
	enums.LabelStatusDelivered: 4,
}

// advances reports whether the mirror may move from one label status to the
// other. Delivered and cancelled labels are final.
func advances(from, to enums.LabelStatus) bool {
	if from == enums.LabelStatusCancelled || from == enums.LabelStatusDelivered {
		return false
	}
	if to == enums.LabelStatusCancelled {
		return true
	}
	return labelRank[to] > labelRank[from]
}

// carrierError translates a carrier failure for the admin caller. Rejections
// keep the carrier's message so the operator can fix the data.
func carrierError(err error) error {
	gerr, ok := gateway.AsError(err)
	if !ok {
		return pkgerrors.GatewayUnavailable("carrier", err)
	}
	details := map[string]any{
		"gateway": "carrier",
		"op":      gerr.Op,
		"kind":    string(gerr.Kind),
	}
	if gerr.Status != 0 {
		details["status"] = gerr.Status
	}
	switch gerr.Kind {
	case gateway.KindBadRequest:
		details["body"] = gerr.Body
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "carrier rejected the request").WithDetails(details)
	case gateway.KindRateLimited:
		details["retry_after_seconds"] = int(gerr.RetryAfter.Seconds())
	}
	return pkgerrors.GatewayUnavailable("carrier", err).WithDetails(details)
}

func jsonOrNil(raw []byte) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}
