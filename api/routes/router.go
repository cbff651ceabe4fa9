package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/atelie-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/atelie-backend/api/controllers/webhooks"
	"github.com/angelmondragon/atelie-backend/api/middleware"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

// RedisStore is the slice of the Redis client the HTTP layer touches:
// readiness, rate limiting, idempotent replay and OAuth state.
type RedisStore interface {
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	OAuthStateKey(state string) string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies collects the services the routes are bound to.
type Dependencies struct {
	DB       Pinger
	Redis    RedisStore
	Gatherer prometheus.Gatherer

	Checkout  controllers.CheckoutService
	Cards     controllers.CardVault
	Tracking  controllers.TrackingReader
	Orders    controllers.OrderTransitioner
	Labels    controllers.LabelService
	ERP       controllers.ERPOperator
	ERPTokens controllers.ERPAuthorizer

	PaymentWebhook webhookcontrollers.PaymentWebhookService
	ERPWebhook     webhookcontrollers.ERPWebhookService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		time.Minute,
		cfg.App.CheckoutRatePerMinute,
		cfg.App.CheckoutRatePerMinute,
	)
	cardPolicy := middleware.NewRateLimitPolicy(
		"cards",
		time.Minute,
		cfg.App.CheckoutRatePerMinute*3,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhook", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentWebhook(deps.PaymentWebhook, cfg.Payment.WebhookSecret, logg))
		r.Post("/erp", webhookcontrollers.ERPWebhook(deps.ERPWebhook, cfg.ERP.SigningSecret(), logg))
	})

	r.Get("/erp/oauth/callback", controllers.ERPOAuthCallback(deps.ERPTokens, deps.Redis, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Identity(cfg.Admin, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg)).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
			r.With(middleware.RateLimit(cardPolicy, deps.Redis, logg)).Post("/cards", controllers.StoreCard(deps.Cards, logg))
		})

		r.Get("/orders/{publicToken}", controllers.OrderByToken(deps.Tracking, logg))
		r.Get("/orders/{publicToken}/status", controllers.OrderStatusByToken(deps.Tracking, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.Admin, logg))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Post("/labels/{orderID}/create", controllers.CreateLabel(deps.Labels, logg))
			r.Post("/labels/{labelID}/checkout", controllers.CheckoutLabel(deps.Labels, logg))
			r.Get("/labels/{labelID}/print", controllers.PrintLabel(deps.Labels, logg))
			r.Get("/labels/{labelID}/track", controllers.TrackLabel(deps.Labels, logg))
			r.Post("/labels/{labelID}/cancel", controllers.CancelLabel(deps.Labels, logg))

			r.Post("/admin/orders/{orderID}/status", controllers.AdminOrderStatus(deps.Orders, logg))
			r.Post("/admin/orders/{orderID}/erp-sync", controllers.AdminOrderERPSync(deps.ERP, logg))
			r.Post("/admin/orders/{orderID}/fiscal", controllers.AdminOrderFiscal(deps.ERP, logg))
			r.Post("/admin/products/{variantID}/erp-sync", controllers.AdminProductERPSync(deps.ERP, logg))
			r.Get("/admin/erp/situations", controllers.AdminListSituations(deps.ERP, logg))
			r.Put("/admin/erp/situations/{situationID}", controllers.AdminPutSituation(deps.ERP, logg))
			r.Get("/admin/erp/authorize", controllers.ERPAuthorize(deps.ERPTokens, deps.Redis, logg))
		})
	})

	return r
}
