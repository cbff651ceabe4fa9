package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

type TrackingReader interface {
	GetByPublicToken(ctx context.Context, token string) (*orders.TrackingView, error)
}

// OrderByToken renders the anonymous tracking page for a public token.
func OrderByToken(store TrackingReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := loadTracking(w, r, store, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newTrackingResponse(view))
	}
}

// OrderStatusByToken is the light poll used while a PIX or boleto payment is
// pending.
func OrderStatusByToken(store TrackingReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, ok := loadTracking(w, r, store, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, trackingStatusResponse{
			OrderCode:          view.Order.Code,
			Status:             view.PublicStatus,
			CancellationReason: view.CancellationReason(),
			UpdatedAt:          view.UpdatedAt,
		})
	}
}

func loadTracking(w http.ResponseWriter, r *http.Request, store TrackingReader, logg *logger.Logger) (*orders.TrackingView, bool) {
	ctx := r.Context()
	if store == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order store unavailable"))
		return nil, false
	}
	token := strings.TrimSpace(chi.URLParam(r, "publicToken"))
	if token == "" {
		responses.WriteError(ctx, logg, w, pkgerrors.NotFound("order"))
		return nil, false
	}
	view, err := store.GetByPublicToken(ctx, token)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return nil, false
	}
	if view == nil || view.Order == nil {
		responses.WriteError(ctx, logg, w, pkgerrors.NotFound("order"))
		return nil, false
	}
	return view, true
}

type trackingStatusResponse struct {
	OrderCode          string             `json:"order_code"`
	Status             enums.PublicStatus `json:"status"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type trackingResponse struct {
	OrderCode          string                   `json:"order_code"`
	Status             enums.PublicStatus       `json:"status"`
	CancellationReason string                   `json:"cancellation_reason,omitempty"`
	UpdatedAt          time.Time                `json:"updated_at"`
	CreatedAt          time.Time                `json:"created_at"`
	PaymentMethod      enums.PaymentMethod      `json:"payment_method"`
	Subtotal           decimal.Decimal          `json:"subtotal"`
	Shipping           decimal.Decimal          `json:"shipping"`
	Discount           decimal.Decimal          `json:"discount"`
	Total              decimal.Decimal          `json:"total"`
	ShipTo             types.ShippingSnapshot   `json:"ship_to"`
	Service            string                   `json:"service,omitempty"`
	DeliveryEstimate   *time.Time               `json:"delivery_estimate,omitempty"`
	ShippedAt          *time.Time               `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time               `json:"delivered_at,omitempty"`
	Items              []trackingItemResponse   `json:"items"`
	Payment            *trackingPaymentResponse `json:"payment,omitempty"`
	Tracking           *trackingLabelResponse   `json:"tracking,omitempty"`
}

type trackingItemResponse struct {
	VariantID   uuid.UUID         `json:"variant_id"`
	ProductName string            `json:"product_name"`
	SKU         string            `json:"sku"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Details     types.ItemDetails `json:"details"`
}

type trackingPaymentResponse struct {
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	PixQRText     *string             `json:"pix_qr_text,omitempty"`
	PixQRLink     *string             `json:"pix_qr_link,omitempty"`
	BoletoLink    *string             `json:"boleto_link,omitempty"`
	BoletoBarcode *string             `json:"boleto_barcode,omitempty"`
	BoletoDueDate *time.Time          `json:"boleto_due_date,omitempty"`
}

type trackingLabelResponse struct {
	Carrier      string  `json:"carrier,omitempty"`
	TrackingCode *string `json:"tracking_code,omitempty"`
	TrackingURL  *string `json:"tracking_url,omitempty"`
}

func newTrackingResponse(view *orders.TrackingView) trackingResponse {
	o := view.Order
	resp := trackingResponse{
		OrderCode:          o.Code,
		Status:             view.PublicStatus,
		CancellationReason: view.CancellationReason(),
		UpdatedAt:          view.UpdatedAt,
		CreatedAt:          o.CreatedAt,
		PaymentMethod:      o.PaymentMethod,
		Subtotal:           o.Subtotal,
		Shipping:           o.ShippingAmount,
		Discount:           o.Discount,
		Total:              o.Total,
		ShipTo:             o.ShipTo,
		Service:            o.ShippingSelection.ServiceName,
		DeliveryEstimate:   o.DeliveryEstimate,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
		Items:              make([]trackingItemResponse, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, trackingItemResponse{
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
			Details:     item.Details,
		})
	}
	if p := view.Payment; p != nil {
		resp.Payment = &trackingPaymentResponse{
			Method: p.Method,
			Status: p.Status,
		}
		// payment instructions only matter while the buyer can still pay
		if view.PublicStatus == enums.PublicStatusPending {
			resp.Payment.PixQRText = p.PixQRText
			resp.Payment.PixQRLink = p.PixQRLink
			resp.Payment.BoletoLink = p.BoletoLink
			resp.Payment.BoletoBarcode = p.BoletoBarcode
			resp.Payment.BoletoDueDate = p.BoletoDueDate
		}
	}
	if l := view.Label; l != nil && l.Status != enums.LabelStatusCancelled {
		resp.Tracking = &trackingLabelResponse{
			Carrier:      l.CarrierCompany,
			TrackingCode: l.TrackingCode,
			TrackingURL:  l.TrackingURL,
		}
	}
	return resp
}
