// Package bootstrap assembles the services shared by the api, the action
// dispatcher and the cron worker.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/atelie-backend/internal/actions"
	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	"github.com/angelmondragon/atelie-backend/internal/catalog"
	"github.com/angelmondragon/atelie-backend/internal/checkout"
	"github.com/angelmondragon/atelie-backend/internal/erpsync"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/internal/shipping"
	paymentwebhook "github.com/angelmondragon/atelie-backend/internal/webhooks/payment"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/erp"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/idempotency"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/metrics"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
	"github.com/angelmondragon/atelie-backend/pkg/redis"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is every long-lived collaborator a process may need.
type Services struct {
	Catalog        *catalog.Repository
	Orders         *orders.Store
	Cards          *cardvault.Vault
	Checkout       *checkout.Service
	PaymentGateway *payment.Client
	Carrier        *carrier.Client
	Payments       *paymentwebhook.Service
	Labels         *shipping.Service
	ERP            *erpsync.Service
	ERPTokens      *erp.TokenManager
	Guard          *idempotency.Manager
	Outbox         *outbox.Repository
	DLQ            *outbox.DLQRepository
	Actions        *actions.Registry
	ActionMetrics  *metrics.ActionMetrics
	CronMetrics    *metrics.CronJobMetrics
}

func Build(p Params) (*Services, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil || p.Redis == nil {
		return nil, errors.New("config, logger, database and redis are required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	gatewayMetrics := metrics.NewGatewayMetrics(p.Registerer)
	common := []gateway.Option{gateway.WithMetrics(gatewayMetrics), gateway.WithLogger(p.Logger)}

	paymentClient, err := payment.NewClient(cfg.Payment, common...)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: %w", err)
	}
	carrierClient, err := carrier.NewClient(cfg.Carrier, common...)
	if err != nil {
		return nil, fmt.Errorf("carrier gateway: %w", err)
	}
	tokens, err := erp.NewTokenManager(cfg.ERP, erp.NewGormTokenStore(conn))
	if err != nil {
		return nil, fmt.Errorf("erp tokens: %w", err)
	}
	erpClient, err := erp.NewClient(cfg.ERP, tokens, common...)
	if err != nil {
		return nil, fmt.Errorf("erp gateway: %w", err)
	}

	guard, err := idempotency.NewManager(p.Redis, cfg.App.WebhookDedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency guard: %w", err)
	}
	cards, err := cardvault.New(p.Redis, cfg.Checkout.CardTTL)
	if err != nil {
		return nil, fmt.Errorf("card vault: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	codes, err := orders.NewCodeGenerator(cfg.App.NodeID)
	if err != nil {
		return nil, fmt.Errorf("order codes: %w", err)
	}
	store, err := orders.NewStore(orders.StoreParams{
		Repository:   orders.NewRepository(conn),
		Tx:           p.DB,
		Outbox:       outbox.NewService(outboxRepo, p.Logger),
		Codes:        codes,
		Logger:       p.Logger,
		LabelTrigger: cfg.Shipping.LabelTrigger,
	})
	if err != nil {
		return nil, fmt.Errorf("order store: %w", err)
	}

	catalogRepo := catalog.NewRepository(conn)
	checkoutSvc, err := checkout.NewService(checkout.Params{
		Carts:    catalogRepo,
		Orders:   store,
		Payments: paymentClient,
		Freight:  carrierClient,
		Cards:    cards,
		Logger:   p.Logger,
		Checkout: cfg.Checkout,
		Payment:  cfg.Payment,
		Shop:     cfg.Shop,
		Shipping: cfg.Shipping,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	payments, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{Orders: store, Logger: p.Logger})
	if err != nil {
		return nil, fmt.Errorf("payment webhook: %w", err)
	}
	labels, err := shipping.NewService(shipping.ServiceParams{
		Repository: shipping.NewRepository(conn),
		Orders:     store,
		Carrier:    carrierClient,
		Logger:     p.Logger,
		Shop:       cfg.Shop,
		Shipping:   cfg.Shipping,
	})
	if err != nil {
		return nil, fmt.Errorf("labels: %w", err)
	}
	erpSvc, err := erpsync.NewService(erpsync.ServiceParams{
		Repository: erpsync.NewRepository(conn),
		Orders:     store,
		ERP:        erpClient,
		Guard:      guard,
		Logger:     p.Logger,
		ERPConfig:  cfg.ERP,
		Shop:       cfg.Shop,
		Shipping:   cfg.Shipping,
	})
	if err != nil {
		return nil, fmt.Errorf("erp sync: %w", err)
	}

	return &Services{
		Catalog:        catalogRepo,
		Orders:         store,
		Cards:          cards,
		Checkout:       checkoutSvc,
		PaymentGateway: paymentClient,
		Carrier:        carrierClient,
		Payments:       payments,
		Labels:         labels,
		ERP:            erpSvc,
		ERPTokens:      tokens,
		Guard:          guard,
		Outbox:         outboxRepo,
		DLQ:            outbox.NewDLQRepository(conn),
		Actions:        actions.Wire(actions.WireParams{Labels: labels, ERP: erpSvc}),
		ActionMetrics:  metrics.NewActionMetrics(p.Registerer),
		CronMetrics:    metrics.NewCronJobMetrics(p.Registerer),
	}, nil
}
