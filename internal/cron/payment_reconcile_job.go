package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	paymentwebhook "github.com/angelmondragon/atelie-backend/internal/webhooks/payment"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const (
	SourcePaymentReconcile = "payment_reconcile"
	defaultReconcileAfter  = 30 * time.Minute
)

type reconcileOrderStore interface {
	ListStale(ctx context.Context, st enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
	LatestPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
}

type paymentOrderFetcher interface {
	GetOrder(ctx context.Context, gatewayOrderID string) (*payment.Order, []byte, error)
}

type chargeApplier interface {
	Apply(ctx context.Context, updates []paymentwebhook.ChargeUpdate, raw []byte, source string) (paymentwebhook.Outcome, error)
}

type PaymentReconcileJobParams struct {
	Logger    *logger.Logger
	Orders    reconcileOrderStore
	Gateway   paymentOrderFetcher
	Processor chargeApplier
	After     time.Duration
	BatchSize int
}

// NewPaymentReconcileJob polls the payment gateway for orders stuck waiting
// for a notification and feeds the answer through the webhook processor.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	after := params.After
	if after <= 0 {
		after = defaultReconcileAfter
	}
	return &paymentReconcileJob{
		logg:      params.Logger,
		orders:    params.Orders,
		gateway:   params.Gateway,
		processor: params.Processor,
		after:     after,
		batchSize: batchSize(params.BatchSize),
		now:       time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg      *logger.Logger
	orders    reconcileOrderStore
	gateway   paymentOrderFetcher
	processor chargeApplier
	after     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	waiting, err := j.orders.ListStale(ctx, enums.OrderStatusAwaitingPayment, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query awaiting orders: %w", err)
	}
	var (
		errs  error
		moved int
	)
	for _, order := range waiting {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		changed, err := j.reconcile(j.logg.WithOrderCode(ctx, order.Code), order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", order.Code, err))
			continue
		}
		if changed {
			moved++
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"checked": len(waiting), "moved": moved})
	j.logg.Info(logCtx, "payment reconciliation complete")
	return errs
}

func (j *paymentReconcileJob) reconcile(ctx context.Context, order models.Order) (bool, error) {
	p, err := j.orders.LatestPayment(ctx, order.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	if p.GatewayOrderID == nil || *p.GatewayOrderID == "" {
		j.logg.Warn(ctx, "awaiting order has no gateway order id")
		return false, nil
	}
	_, raw, err := j.gateway.GetOrder(ctx, *p.GatewayOrderID)
	if err != nil {
		return false, err
	}
	updates, err := paymentwebhook.Parse(raw)
	if err != nil {
		j.logg.Warn(ctx, "gateway order carries no charge")
		return false, nil
	}
	out, err := j.processor.Apply(ctx, updates, raw, SourcePaymentReconcile)
	if err != nil {
		return false, err
	}
	return len(out.Changes) > 0, nil
}
