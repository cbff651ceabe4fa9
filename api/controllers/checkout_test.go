package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelie-backend/api/middleware"
	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	checkoutsvc "github.com/angelmondragon/atelie-backend/internal/checkout"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
)

type stubCheckoutService struct {
	input  checkoutsvc.Input
	result *checkoutsvc.Result
	err    error
	calls  int
}

func (s *stubCheckoutService) Execute(_ context.Context, in checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.calls++
	s.input = in
	return s.result, s.err
}

const checkoutBody = `{
	"shipping": {"service_id": 1, "service_name": "PAC", "price": "21.90"},
	"ship_to": {"recipient_name": "Ana Souza", "street": "Rua A", "number": "10", "district": "Centro", "city": "Sao Paulo", "state": "SP", "cep": "01001000"},
	"fiscal": {"document": "52998224725", "legal_name": "Ana Souza", "address": {"street": "Rua A", "number": "10", "district": "Centro", "city": "Sao Paulo", "state": "SP", "cep": "01001000"}},
	"customer": {"name": "Ana Souza", "email": "ana@example.com", "phone": "11999990000"},
	"payment_method": "PIX"
}`

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{result: &checkoutsvc.Result{
		OrderCode:   "AT123",
		PublicToken: "tok",
		Status:      enums.PublicStatusPending,
		Total:       decimal.RequireFromString("121.90"),
		Payment:     checkoutsvc.Artifacts{Type: "PIX", QRText: "000201"},
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	req.Header.Set("X-Forwarded-For", "200.10.10.10")
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-1"))
	rec := httptest.NewRecorder()

	Checkout(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.input.Method != enums.PaymentMethodPix {
		t.Fatalf("expected pix, got %s", svc.input.Method)
	}
	if svc.input.Owner.SessionID != "sess-1" || svc.input.Owner.UserID != nil {
		t.Fatalf("unexpected owner %+v", svc.input.Owner)
	}
	if svc.input.ClientIP != "200.10.10.10" {
		t.Fatalf("unexpected client ip %q", svc.input.ClientIP)
	}
	var payload struct {
		Data struct {
			OrderCode   string `json:"order_code"`
			PublicToken string `json:"public_token"`
			Payment     struct {
				QRText string `json:"qr_text"`
			} `json:"payment"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.OrderCode != "AT123" || payload.Data.PublicToken != "tok" || payload.Data.Payment.QRText != "000201" {
		t.Fatalf("unexpected response %+v", payload.Data)
	}
}

func TestCheckoutRejectsRequests(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name    string
		body    string
		user    string
		session string
		want    int
	}{
		{"no owner", checkoutBody, "", "", http.StatusUnauthorized},
		{"bad method", strings.Replace(checkoutBody, `"PIX"`, `"CHEQUE"`, 1), userID.String(), "", http.StatusBadRequest},
		{"bad email", strings.Replace(checkoutBody, "ana@example.com", "not-an-email", 1), "", "s", http.StatusBadRequest},
		{"unknown field", strings.Replace(checkoutBody, `"payment_method"`, `"coupon": "X", "payment_method"`, 1), "", "s", http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubCheckoutService{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(tt.body))
			ctx := req.Context()
			if tt.user != "" {
				ctx = middleware.WithUserID(ctx, tt.user)
			}
			if tt.session != "" {
				ctx = middleware.WithSessionID(ctx, tt.session)
			}
			rec := httptest.NewRecorder()
			Checkout(svc, nil).ServeHTTP(rec, req.WithContext(ctx))
			if rec.Code != tt.want {
				t.Fatalf("expected %d got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if svc.calls != 0 {
				t.Fatalf("service must not run")
			}
		})
	}
}

func TestCheckoutSurfacesDecline(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{err: pkgerrors.PaymentDeclined("insufficient funds")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody))
	uid := uuid.New()
	req = req.WithContext(middleware.WithUserID(req.Context(), uid.String()))
	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", rec.Code)
	}
	if svc.input.Owner.UserID == nil || *svc.input.Owner.UserID != uid {
		t.Fatalf("expected signed-in owner, got %+v", svc.input.Owner)
	}
}

type stubVault struct {
	card cardvault.Card
}

func (s *stubVault) Put(_ context.Context, card cardvault.Card) (string, time.Time, error) {
	s.card = card
	return "ref-1", time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC), nil
}

func TestStoreCard(t *testing.T) {
	t.Parallel()

	vault := &stubVault{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cards", strings.NewReader(`{"encrypted_card":"blob","holder_name":"ANA SOUZA","cvv":"123"}`))
	rec := httptest.NewRecorder()
	StoreCard(vault, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if vault.card.Encrypted != "blob" || vault.card.CVV != "123" {
		t.Fatalf("unexpected card %+v", vault.card)
	}
	if !strings.Contains(rec.Body.String(), `"card_ref":"ref-1"`) {
		t.Fatalf("missing card_ref: %s", rec.Body.String())
	}

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/cards", strings.NewReader(`{"encrypted_card":"blob","holder_name":"A","cvv":"12a"}`))
	rec = httptest.NewRecorder()
	StoreCard(vault, nil).ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cvv, got %d", rec.Code)
	}
}
