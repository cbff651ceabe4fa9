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
	"github.com/angelmondragon/atelie-backend/api/validators"
	"github.com/angelmondragon/atelie-backend/internal/shipping"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

type LabelService interface {
	CreateForOrder(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error)
	Checkout(ctx context.Context, labelID uuid.UUID) (*models.ShippingLabel, error)
	Print(ctx context.Context, labelID uuid.UUID) (*models.ShippingLabel, error)
	Track(ctx context.Context, labelID uuid.UUID) (*shipping.TrackResult, error)
	Cancel(ctx context.Context, labelID uuid.UUID, reason string) (*models.ShippingLabel, error)
}

// CreateLabel buys a carrier shipment for a paid order. Repeating the call
// returns the order's active label.
func CreateLabel(svc LabelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := uuidParam(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		label, err := svc.CreateForOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLabelResponse(label))
	}
}

// CheckoutLabel pays the label with the carrier wallet.
func CheckoutLabel(svc LabelService, logg *logger.Logger) http.HandlerFunc {
	return labelAction(logg, svc.Checkout)
}

// PrintLabel generates the label and returns its PDF URL.
func PrintLabel(svc LabelService, logg *logger.Logger) http.HandlerFunc {
	return labelAction(logg, svc.Print)
}

func TrackLabel(svc LabelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		labelID, err := uuidParam(r, "labelID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Track(ctx, labelID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, trackLabelResponse{
			Label:         newLabelResponse(result.Label),
			CarrierStatus: result.CarrierStatus,
			Changed:       result.Changed,
		})
	}
}

func CancelLabel(svc LabelService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		labelID, err := uuidParam(r, "labelID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload cancelLabelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		label, err := svc.Cancel(ctx, labelID, validators.SanitizeString(payload.Reason, 255))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLabelResponse(label))
	}
}

func labelAction(logg *logger.Logger, fn func(context.Context, uuid.UUID) (*models.ShippingLabel, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		labelID, err := uuidParam(r, "labelID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		label, err := fn(ctx, labelID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLabelResponse(label))
	}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Validation(name, "must be a uuid")
	}
	return id, nil
}

type cancelLabelRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type labelResponse struct {
	ID             uuid.UUID         `json:"id"`
	OrderID        uuid.UUID         `json:"order_id"`
	ShipmentID     string            `json:"shipment_id"`
	Protocol       string            `json:"protocol,omitempty"`
	Status         enums.LabelStatus `json:"status"`
	ServiceID      int               `json:"service_id"`
	ServiceName    string            `json:"service_name,omitempty"`
	CarrierCompany string            `json:"carrier_company,omitempty"`
	Freight        decimal.Decimal   `json:"freight"`
	WeightKG       float64           `json:"weight_kg"`
	TrackingCode   *string           `json:"tracking_code,omitempty"`
	TrackingURL    *string           `json:"tracking_url,omitempty"`
	PrintURL       *string           `json:"print_url,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	PrintedAt      *time.Time        `json:"printed_at,omitempty"`
	PostedAt       *time.Time        `json:"posted_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt    *time.Time        `json:"cancelled_at,omitempty"`
}

type trackLabelResponse struct {
	Label         labelResponse `json:"label"`
	CarrierStatus string        `json:"carrier_status"`
	Changed       bool          `json:"changed"`
}

func newLabelResponse(l *models.ShippingLabel) labelResponse {
	if l == nil {
		return labelResponse{}
	}
	return labelResponse{
		ID:             l.ID,
		OrderID:        l.OrderID,
		ShipmentID:     l.ShipmentID,
		Protocol:       l.Protocol,
		Status:         l.Status,
		ServiceID:      l.ServiceID,
		ServiceName:    l.ServiceName,
		CarrierCompany: l.CarrierCompany,
		Freight:        l.Freight,
		WeightKG:       l.WeightKG,
		TrackingCode:   l.TrackingCode,
		TrackingURL:    l.TrackingURL,
		PrintURL:       l.PrintURL,
		CreatedAt:      l.CreatedAt,
		PaidAt:         l.PaidAt,
		PrintedAt:      l.PrintedAt,
		PostedAt:       l.PostedAt,
		DeliveredAt:    l.DeliveredAt,
		CancelledAt:    l.CancelledAt,
	}
}
