package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func testConfig() config.PaymentConfig {
	return config.PaymentConfig{BaseURL: "http://pay.test", Token: "tok", Timeout: time.Second}
}

const pixOrder = `{
  "id": "ORDE_1",
  "reference_id": "AT-1",
  "charges": [{
    "id": "CHAR_1",
    "status": "WAITING",
    "amount": {"value": 11489, "currency": "BRL"},
    "payment_method": {"type": "PIX"},
    "pix": {"qr_codes": [{"text": "00020101021226", "links": [{"rel": "QRCODE.PNG", "href": "https://pay.test/qr.png"}]}]}
  }]
}`

func TestCreateOrderSendsKeyAndParsesPix(t *testing.T) {
	var body map[string]any
	var header http.Header
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		header = req.Header.Clone()
		raw, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(pixOrder)), Header: http.Header{}}, nil
	})
	client, err := NewClient(testConfig(), gateway.WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	order, raw, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		ReferenceID: "AT-1",
		Charges: []Charge{{
			ReferenceID:   "AT-1",
			Amount:        Amount{Value: 11489, Currency: "BRL"},
			PaymentMethod: PaymentMethod{Type: "PIX"},
		}},
	}, "AT-1")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if header.Get(idempotencyHeader) != "AT-1" || header.Get("Authorization") != "Bearer tok" {
		t.Fatalf("unexpected headers %v", header)
	}
	if body["reference_id"] != "AT-1" {
		t.Fatalf("unexpected body %v", body)
	}
	charge, ok := order.FirstCharge()
	if !ok {
		t.Fatal("expected first charge")
	}
	if charge.QRText() != "00020101021226" || charge.QRLink() != "https://pay.test/qr.png" {
		t.Fatalf("unexpected pix artifacts %q %q", charge.QRText(), charge.QRLink())
	}
	if len(raw) == 0 {
		t.Fatal("expected raw body")
	}
}

func TestFirstChargeRejectsEmptyCharges(t *testing.T) {
	order := &Order{ID: "ORDE_2"}
	if _, ok := order.FirstCharge(); ok {
		t.Fatal("expected no charge")
	}
	order.Charges = []Charge{{ID: "CHAR", PaymentMethod: PaymentMethod{Type: "PIX"}}}
	if _, ok := order.FirstCharge(); ok {
		t.Fatal("charge without status must be rejected")
	}
}

func TestBoletoArtifacts(t *testing.T) {
	charge := Charge{Boleto: &BoletoResult{
		Barcode: Barcode{Content: "03399853012970000024227020901016278150000015630"},
		DueDate: "2026-03-04",
		Links: []Link{
			{Href: "https://pay.test/boleto.png", Media: "image/png"},
			{Href: "https://pay.test/boleto.pdf", Media: "application/pdf"},
		},
	}}
	if charge.BoletoLink() != "https://pay.test/boleto.pdf" {
		t.Fatalf("expected pdf link, got %s", charge.BoletoLink())
	}
	due, ok := charge.BoletoDueDate()
	if !ok || due.Format("2006-01-02") != "2026-03-04" {
		t.Fatalf("unexpected due date %v %v", due, ok)
	}
}

func TestGetOrderSurfacesGatewayError(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(`{}`)), Header: http.Header{}}, nil
	})
	client, _ := NewClient(testConfig(), gateway.WithHTTPClient(&http.Client{Transport: rt}))
	_, _, err := client.GetOrder(context.Background(), "ORDE_404")
	if !gateway.IsKind(err, gateway.KindBadRequest) {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestFindOrderByReference(t *testing.T) {
	var query string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		query = req.URL.Query().Get("reference_id")
		body := `{"orders":[` + pixOrder + `]}`
		if query != "AT-1" {
			body = `{"orders":[]}`
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body)), Header: http.Header{}}, nil
	})
	client, _ := NewClient(testConfig(), gateway.WithHTTPClient(&http.Client{Transport: rt}))

	order, raw, err := client.FindOrderByReference(context.Background(), "AT-1")
	if err != nil {
		t.Fatalf("FindOrderByReference: %v", err)
	}
	if query != "AT-1" {
		t.Fatalf("expected reference_id query, got %q", query)
	}
	if order == nil || order.ID != "ORDE_1" {
		t.Fatalf("unexpected order %+v", order)
	}
	if !strings.Contains(string(raw), "CHAR_1") {
		t.Fatalf("expected raw order payload, got %s", raw)
	}

	order, _, err = client.FindOrderByReference(context.Background(), "AT-2")
	if err != nil || order != nil {
		t.Fatalf("expected no order, got %+v %v", order, err)
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(config.PaymentConfig{BaseURL: "http://pay.test"}); err == nil {
		t.Fatal("expected error")
	}
}
