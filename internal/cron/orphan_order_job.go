package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const (
	defaultOrphanAfter = 15 * time.Minute
	defaultBatchSize   = 100
	orphanReason       = "payment never recorded"
)

// OrphanOrderJobParams configure the orphan order sweeper.
type OrphanOrderJobParams struct {
	Logger    *logger.Logger
	Orders    orphanOrderStore
	Gateway   orphanPaymentLookup
	After     time.Duration
	BatchSize int
}

type orphanOrderStore interface {
	ListStale(ctx context.Context, st enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
	DiscardUnpaidOrder(ctx context.Context, orderID uuid.UUID, reason string) error
	RecordPayment(ctx context.Context, in orders.RecordPaymentInput) (*orders.RecordedPayment, error)
}

type orphanPaymentLookup interface {
	FindOrderByReference(ctx context.Context, referenceID string) (*payment.Order, []byte, error)
}

// NewOrphanOrderJob builds the job that compensates CREATED orders whose
// checkout died before the payment row was written. An order the gateway did
// charge gets its payment recorded instead of being discarded.
func NewOrphanOrderJob(params OrphanOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	after := params.After
	if after <= 0 {
		after = defaultOrphanAfter
	}
	return &orphanOrderJob{
		logg:      params.Logger,
		orders:    params.Orders,
		gateway:   params.Gateway,
		after:     after,
		batchSize: batchSize(params.BatchSize),
		now:       time.Now,
	}, nil
}

type orphanOrderJob struct {
	logg      *logger.Logger
	orders    orphanOrderStore
	gateway   orphanPaymentLookup
	after     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *orphanOrderJob) Name() string { return "orphan-order-sweeper" }

func (j *orphanOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	stale, err := j.orders.ListStale(ctx, enums.OrderStatusCreated, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query orphan orders: %w", err)
	}
	var (
		errs      error
		discarded int
		recorded  int
		skipped   int
	)
	for _, order := range stale {
		found, err := j.recordCharge(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if found {
			recorded++
			continue
		}
		err = j.orders.DiscardUnpaidOrder(ctx, order.ID, orphanReason)
		switch {
		case err == nil:
			discarded++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict),
			pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition),
			pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// a payment landed or the order moved on since the listing
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("discard order %s: %w", order.Code, err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"candidate": len(stale),
		"discarded": discarded,
		"recorded":  recorded,
		"skipped":   skipped,
	})
	j.logg.Info(logCtx, "orphan order sweep complete")
	return errs
}

// recordCharge stores the gateway charge of an order whose checkout died
// after the charge was created. It reports whether a charge was found.
func (j *orphanOrderJob) recordCharge(ctx context.Context, order models.Order) (bool, error) {
	gwOrder, raw, err := j.gateway.FindOrderByReference(ctx, order.Code)
	if err != nil {
		return false, fmt.Errorf("look up gateway order %s: %w", order.Code, err)
	}
	if gwOrder == nil {
		return false, nil
	}
	charge, ok := gwOrder.FirstCharge()
	if !ok {
		return false, nil
	}
	_, err = j.orders.RecordPayment(ctx, orders.RecordPaymentInput{
		OrderID:        order.ID,
		Method:         order.PaymentMethod,
		Amount:         order.Total,
		GatewayOrderID: gwOrder.ID,
		Charge:         charge,
		Raw:            raw,
	})
	if err != nil {
		return false, fmt.Errorf("record charge for order %s: %w", order.Code, err)
	}
	j.logg.Info(j.logg.WithOrderCode(ctx, order.Code), "recorded orphaned gateway charge")
	return true, nil
}

func batchSize(v int) int {
	if v <= 0 {
		return defaultBatchSize
	}
	return v
}
