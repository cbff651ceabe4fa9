package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	checkoutsvc "github.com/angelmondragon/atelie-backend/internal/checkout"
	"github.com/angelmondragon/atelie-backend/internal/erpsync"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/atelie-backend/internal/webhooks/payment"
	pkgauth "github.com/angelmondragon/atelie-backend/pkg/auth"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryRedis struct {
	mu      sync.Mutex
	values  map[string]string
	counts  map[string]int64
	pingErr error
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return m.pingErr }

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = asString(value)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = asString(value)
	return nil
}

func (m *memoryRedis) GetDel(ctx context.Context, key string) (string, error) {
	v, err := m.Get(ctx, key)
	if err == nil {
		_ = m.Del(ctx, key)
	}
	return v, err
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func asString(value any) string {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(value)
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryRedis) OAuthStateKey(state string) string { return "state:" + state }

type countingCheckout struct {
	calls int
}

func (c *countingCheckout) Execute(context.Context, checkoutsvc.Input) (*checkoutsvc.Result, error) {
	c.calls++
	return &checkoutsvc.Result{OrderCode: "AT1", PublicToken: "tok", Status: enums.PublicStatusPending}, nil
}

type stubTransitions struct{}

func (stubTransitions) UpdateOrderStatus(_ context.Context, in orders.TransitionInput) (orders.StatusChange, error) {
	return orders.StatusChange{OrderID: in.OrderID, From: enums.OrderStatusShipped, To: in.To, Changed: true}, nil
}

type stubPayments struct {
	calls int
}

func (s *stubPayments) HandleNotification(context.Context, []byte) (paymentwebhook.Outcome, error) {
	s.calls++
	return paymentwebhook.Outcome{Applied: 1}, nil
}

type stubERPWebhook struct{}

func (stubERPWebhook) HandleWebhook(context.Context, []byte) (erpsync.WebhookOutcome, error) {
	return erpsync.WebhookOutcome{Ignored: true, Reason: "test"}, nil
}

type stubSituations struct{}

func (stubSituations) PushOrder(context.Context, uuid.UUID) (*models.ERPOrderLink, error) {
	return &models.ERPOrderLink{}, nil
}

func (stubSituations) EmitFiscalDocument(context.Context, uuid.UUID) (*models.FiscalDocument, error) {
	return &models.FiscalDocument{}, nil
}

func (stubSituations) PushProduct(context.Context, uuid.UUID) (*models.ERPProductLink, error) {
	return &models.ERPProductLink{}, nil
}

func (stubSituations) ListSituations(context.Context) ([]models.ERPSituation, error) {
	return []models.ERPSituation{{SituationID: 9}}, nil
}

func (stubSituations) SetSituation(_ context.Context, id int64, st *enums.OrderStatus, d string) (*models.ERPSituation, error) {
	return &models.ERPSituation{SituationID: id, OrderStatus: st, Description: d}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSOrigins: "http://localhost:3000", CheckoutRatePerMinute: 2},
		Admin: config.AdminConfig{
			Emails:    "ops@atelie.com.br",
			JWTSecret: "secret",
			JWTIssuer: "atelie-test",
			TokenTTL:  time.Hour,
		},
		Payment: config.PaymentConfig{WebhookSecret: "payment-secret"},
	}
}

type routerFixture struct {
	handler  http.Handler
	redis    *memoryRedis
	checkout *countingCheckout
	payments *stubPayments
	registry *prometheus.Registry
}

func newFixture(t *testing.T, db Pinger) routerFixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	f := routerFixture{
		redis:    newMemoryRedis(),
		checkout: &countingCheckout{},
		payments: &stubPayments{},
		registry: prometheus.NewRegistry(),
	}
	f.handler = NewRouter(testConfig(), logg, Dependencies{
		DB:             db,
		Redis:          f.redis,
		Gatherer:       f.registry,
		Checkout:       f.checkout,
		Orders:         stubTransitions{},
		ERP:            stubSituations{},
		PaymentWebhook: f.payments,
		ERPWebhook:     stubERPWebhook{},
	})
	return f
}

func adminToken(t *testing.T, email string, role pkgauth.Role) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(testConfig().Admin, time.Now(), pkgauth.AccessTokenPayload{Subject: uuid.NewString(), Email: email, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t, stubPinger{})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}

	down := newFixture(t, stubPinger{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()
	down.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the database is down, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	f := newFixture(t, stubPinger{})
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "atelie_test_total", Help: "test"})
	f.registry.MustRegister(counter)
	counter.Inc()

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "atelie_test_total 1") {
		t.Fatalf("unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutesRequireAllowlistedAdmin(t *testing.T) {
	f := newFixture(t, stubPinger{})
	path := "/api/v1/admin/erp/situations"

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"customer", adminToken(t, "ops@atelie.com.br", pkgauth.RoleCustomer), http.StatusForbidden},
		{"stranger", adminToken(t, "x@atelie.com.br", pkgauth.RoleAdmin), http.StatusForbidden},
		{"operator", adminToken(t, "ops@atelie.com.br", pkgauth.RoleAdmin), http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: expected %d got %d", c.name, c.want, rec.Code)
		}
	}
}

func TestAdminStatusRequiresIdempotencyKey(t *testing.T) {
	f := newFixture(t, stubPinger{})
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/status"
	token := adminToken(t, "ops@atelie.com.br", pkgauth.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"delivered"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"status":"delivered"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "k1")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

const checkoutPayload = `{
	"shipping": {"service_id": 1, "price": "10.00"},
	"ship_to": {"recipient_name": "Ana", "street": "Rua A", "number": "1", "city": "Sao Paulo", "state": "SP", "cep": "01001000"},
	"fiscal": {"document": "52998224725", "legal_name": "Ana"},
	"customer": {"name": "Ana", "email": "ana@example.com"},
	"payment_method": "pix"
}`

func TestCheckoutReplaysAndRateLimits(t *testing.T) {
	f := newFixture(t, stubPinger{})

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutPayload))
		req.Header.Set("X-Session-Id", "sess-1")
		req.Header.Set("Idempotency-Key", key)
		req.RemoteAddr = "200.1.1.1:5000"
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("a"); code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", code)
	}
	if code := send("a"); code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", code)
	}
	if f.checkout.calls != 1 {
		t.Fatalf("replay must not run checkout again, calls=%d", f.checkout.calls)
	}
	// the replay was served before the limiter, so this is the second counted attempt
	if code := send("b"); code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", code)
	}
	if code := send("c"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the per-minute limit, got %d", code)
	}
}

func TestPaymentWebhookRejectsForgedNotifications(t *testing.T) {
	f := newFixture(t, stubPinger{})
	body := `{"id":"ORDE_1","charges":[]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/payment", strings.NewReader(body))
	req.Header.Set("X-Authenticity-Token", "forged")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhook/payment", strings.NewReader(body))
	req.Header.Set("X-Authenticity-Token", security.AuthenticityToken("payment-secret", []byte(body)))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || f.payments.calls != 1 {
		t.Fatalf("expected accepted notification, code=%d calls=%d", rec.Code, f.payments.calls)
	}
}
