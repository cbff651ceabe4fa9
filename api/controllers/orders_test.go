package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/internal/shipping"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

type stubTracking struct {
	views map[string]*orders.TrackingView
}

func (s stubTracking) GetByPublicToken(_ context.Context, token string) (*orders.TrackingView, error) {
	if v, ok := s.views[token]; ok {
		return v, nil
	}
	return nil, pkgerrors.NotFound("order")
}

func strPtr(v string) *string { return &v }

func trackingRouter(store TrackingReader) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders/{publicToken}", OrderByToken(store, nil))
	r.Get("/orders/{publicToken}/status", OrderStatusByToken(store, nil))
	return r
}

func TestOrderByTokenShowsPaymentInstructionsWhilePending(t *testing.T) {
	t.Parallel()

	updated := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	pending := &orders.TrackingView{
		Order: &models.Order{
			Code:          "AT1",
			PaymentMethod: enums.PaymentMethodPix,
			Total:         decimal.RequireFromString("99.90"),
			Items:         []models.OrderItem{{ProductName: "Vestido", SKU: "VST-P", Quantity: 1, UnitPrice: decimal.RequireFromString("78.00")}},
		},
		Payment:      &models.Payment{Method: enums.PaymentMethodPix, PixQRText: strPtr("000201qr")},
		PublicStatus: enums.PublicStatusPending,
		UpdatedAt:    updated,
	}
	approved := &orders.TrackingView{
		Order:        &models.Order{Code: "AT2", PaymentMethod: enums.PaymentMethodPix},
		Payment:      &models.Payment{Method: enums.PaymentMethodPix, PixQRText: strPtr("stale")},
		Label:        &models.ShippingLabel{Status: enums.LabelStatusPosted, TrackingCode: strPtr("BR123")},
		PublicStatus: enums.PublicStatusShipped,
		UpdatedAt:    updated,
	}
	router := trackingRouter(stubTracking{views: map[string]*orders.TrackingView{"p": pending, "s": approved}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/p", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"pix_qr_text":"000201qr"`) {
		t.Fatalf("expected pix instructions, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/s", nil))
	body := rec.Body.String()
	if strings.Contains(body, "stale") {
		t.Fatalf("payment instructions must be hidden once paid: %s", body)
	}
	if !strings.Contains(body, `"tracking_code":"BR123"`) {
		t.Fatalf("expected tracking code, got %s", body)
	}
}

func TestTrackingShowsCancellationReason(t *testing.T) {
	t.Parallel()

	cancelled := &orders.TrackingView{
		Order:        &models.Order{Code: "AT5", PaymentMethod: enums.PaymentMethodCreditCard},
		Payment:      &models.Payment{Method: enums.PaymentMethodCreditCard, Status: enums.PaymentStatusCancelled, DeclineReason: strPtr("insufficient funds")},
		PublicStatus: enums.PublicStatusCancelled,
	}
	approved := &orders.TrackingView{
		Order:        &models.Order{Code: "AT6", PaymentMethod: enums.PaymentMethodCreditCard},
		Payment:      &models.Payment{Method: enums.PaymentMethodCreditCard, DeclineReason: strPtr("soft decline")},
		PublicStatus: enums.PublicStatusApproved,
	}
	router := trackingRouter(stubTracking{views: map[string]*orders.TrackingView{"c": cancelled, "a": approved}})

	for _, path := range []string{"/orders/c", "/orders/c/status"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if !strings.Contains(rec.Body.String(), `"cancellation_reason":"insufficient funds"`) {
			t.Fatalf("%s: expected cancellation reason, got %s", path, rec.Body.String())
		}
	}
	for _, path := range []string{"/orders/a", "/orders/a/status"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if strings.Contains(rec.Body.String(), "cancellation_reason") {
			t.Fatalf("%s: reason must only show for cancelled orders, got %s", path, rec.Body.String())
		}
	}
}

func TestOrderStatusByToken(t *testing.T) {
	t.Parallel()

	view := &orders.TrackingView{Order: &models.Order{Code: "AT9"}, PublicStatus: enums.PublicStatusApproved}
	router := trackingRouter(stubTracking{views: map[string]*orders.TrackingView{"tok": view}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/tok/status", nil))
	var payload struct {
		Data trackingStatusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.Status != enums.PublicStatusApproved || payload.Data.OrderCode != "AT9" {
		t.Fatalf("unexpected status payload %+v", payload.Data)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/gone/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for cleared token, got %d", rec.Code)
	}
}

type stubLabels struct {
	label  *models.ShippingLabel
	err    error
	reason string
}

func (s *stubLabels) CreateForOrder(_ context.Context, orderID uuid.UUID) (*models.ShippingLabel, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.label.OrderID = orderID
	return s.label, nil
}

func (s *stubLabels) Checkout(context.Context, uuid.UUID) (*models.ShippingLabel, error) {
	return s.label, s.err
}

func (s *stubLabels) Print(context.Context, uuid.UUID) (*models.ShippingLabel, error) {
	return s.label, s.err
}

func (s *stubLabels) Track(context.Context, uuid.UUID) (*shipping.TrackResult, error) {
	return &shipping.TrackResult{Label: s.label, CarrierStatus: "posted", Changed: true}, s.err
}

func (s *stubLabels) Cancel(_ context.Context, _ uuid.UUID, reason string) (*models.ShippingLabel, error) {
	s.reason = reason
	return s.label, s.err
}

func labelRouter(svc LabelService) http.Handler {
	r := chi.NewRouter()
	r.Post("/labels/{orderID}/create", CreateLabel(svc, nil))
	r.Post("/labels/{labelID}/checkout", CheckoutLabel(svc, nil))
	r.Get("/labels/{labelID}/print", PrintLabel(svc, nil))
	r.Get("/labels/{labelID}/track", TrackLabel(svc, nil))
	r.Post("/labels/{labelID}/cancel", CancelLabel(svc, nil))
	return r
}

func TestLabelRoutes(t *testing.T) {
	t.Parallel()

	svc := &stubLabels{label: &models.ShippingLabel{ID: uuid.New(), Status: enums.LabelStatusPrinted, PrintURL: strPtr("https://carrier/label.pdf")}}
	router := labelRouter(svc)
	id := uuid.NewString()

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodPost, "/labels/" + id + "/create", "", http.StatusCreated},
		{http.MethodPost, "/labels/not-a-uuid/create", "", http.StatusBadRequest},
		{http.MethodPost, "/labels/" + id + "/checkout", "", http.StatusOK},
		{http.MethodGet, "/labels/" + id + "/print", "", http.StatusOK},
		{http.MethodGet, "/labels/" + id + "/track", "", http.StatusOK},
		{http.MethodPost, "/labels/" + id + "/cancel", `{"reason":"wrong size"}`, http.StatusOK},
		{http.MethodPost, "/labels/" + id + "/cancel", `{}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(c.method, c.path, strings.NewReader(c.body)))
		if rec.Code != c.want {
			t.Fatalf("%s %s: expected %d got %d: %s", c.method, c.path, c.want, rec.Code, rec.Body.String())
		}
	}
	if svc.reason != "wrong size" {
		t.Fatalf("cancel reason not forwarded: %q", svc.reason)
	}
}

func TestLabelCreateMapsCarrierOutage(t *testing.T) {
	t.Parallel()

	svc := &stubLabels{err: pkgerrors.GatewayUnavailable("carrier", errors.New("timeout"))}
	rec := httptest.NewRecorder()
	labelRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/labels/"+uuid.NewString()+"/create", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rec.Code)
	}
}

type stubTransitioner struct {
	in     orders.TransitionInput
	change orders.StatusChange
	err    error
}

func (s *stubTransitioner) UpdateOrderStatus(_ context.Context, in orders.TransitionInput) (orders.StatusChange, error) {
	s.in = in
	return s.change, s.err
}

func TestAdminOrderStatus(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	store := &stubTransitioner{change: orders.StatusChange{
		OrderID: orderID,
		From:    enums.OrderStatusProcessingShipment,
		To:      enums.OrderStatusShipped,
		Changed: true,
		Actions: []outbox.Action{{Kind: enums.ActionForwardTracking, OrderID: orderID, TrackingCode: "BR1"}},
	}}
	r := chi.NewRouter()
	r.Post("/admin/orders/{orderID}/status", AdminOrderStatus(store, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"SHIPPED","tracking_code":" BR1 "}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if store.in.To != enums.OrderStatusShipped || store.in.TrackingCode != "BR1" || store.in.Source != adminSource {
		t.Fatalf("unexpected transition input %+v", store.in)
	}
	if !strings.Contains(rec.Body.String(), string(enums.ActionForwardTracking)) {
		t.Fatalf("expected queued action in response: %s", rec.Body.String())
	}

	store.err = pkgerrors.IllegalTransition("delivered", "created")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"created"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"lost"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status got %d", rec.Code)
	}
}
