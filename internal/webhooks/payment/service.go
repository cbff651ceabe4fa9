// Package paymentwebhook applies asynchronous charge notifications from the
// payment gateway to payments and orders.
package paymentwebhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/internal/status"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const SourceWebhook = "payment_webhook"

type orderStore interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	FindPaymentByTransaction(ctx context.Context, transactionID string) (*models.Payment, error)
	GetByCode(ctx context.Context, code string) (*models.Order, error)
	LatestPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdatePaymentStatusTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, gatewayStatus string, raw []byte, source string) (orders.PaymentUpdate, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, in orders.TransitionInput) (orders.StatusChange, error)
}

type ServiceParams struct {
	Orders orderStore
	Logger *logger.Logger
}

type Service struct {
	orders orderStore
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{orders: params.Orders, logg: logg}, nil
}

// Outcome summarizes one notification.
type Outcome struct {
	Applied int
	Ignored int
	Changes []orders.StatusChange
}

// HandleNotification parses body and applies every charge it carries. Only
// infrastructure failures are returned; unknown shapes, unknown charges and
// rejected transitions are logged and reported as ignored so the gateway
// does not redeliver.
func (s *Service) HandleNotification(ctx context.Context, body []byte) (Outcome, error) {
	updates, err := Parse(body)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "body_bytes", len(body)), "payment notification ignored: unknown shape")
		return Outcome{Ignored: 1}, nil
	}
	return s.Apply(ctx, updates, body, SourceWebhook)
}

// Apply runs already-parsed updates. raw is appended to each payment's
// history; source names the caller (webhook or reconciliation).
func (s *Service) Apply(ctx context.Context, updates []ChargeUpdate, raw []byte, source string) (Outcome, error) {
	var out Outcome
	for _, u := range updates {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"charge_id":      u.ChargeID,
			"reference_id":   u.ReferenceID,
			"gateway_status": u.Status,
			"shape":          string(u.Shape),
		})
		p, err := s.locate(logCtx, u)
		if err != nil {
			return out, err
		}
		if p == nil {
			s.logg.Warn(logCtx, "payment notification for unknown charge")
			out.Ignored++
			continue
		}
		change, err := s.applyOne(logCtx, p, u, raw, source)
		if err != nil {
			return out, err
		}
		out.Applied++
		if change.Changed {
			out.Changes = append(out.Changes, change)
		}
	}
	return out, nil
}

func (s *Service) locate(ctx context.Context, u ChargeUpdate) (*models.Payment, error) {
	p, err := s.orders.FindPaymentByTransaction(ctx, u.ChargeID)
	if err == nil {
		return p, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if u.ReferenceID == "" {
		return nil, nil
	}
	order, err := s.orders.GetByCode(ctx, u.ReferenceID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	p, err = s.orders.LatestPayment(ctx, order.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if p.TransactionID != nil && *p.TransactionID != u.ChargeID {
		return nil, nil
	}
	return p, nil
}

// applyOne appends the envelope, maps the status and moves the order in one
// transaction. An illegal order transition keeps the appended history.
func (s *Service) applyOne(ctx context.Context, p *models.Payment, u ChargeUpdate, raw []byte, source string) (orders.StatusChange, error) {
	var change orders.StatusChange
	err := s.orders.WithTx(ctx, func(tx *gorm.DB) error {
		update, err := s.orders.UpdatePaymentStatusTx(ctx, tx, p.ID, u.Status, raw, source)
		if err != nil {
			return err
		}
		target, ok := status.OrderTargetForPayment(update.Payment.Status)
		if !ok {
			return nil
		}
		change, err = s.orders.TransitionTx(ctx, tx, orders.TransitionInput{
			OrderID: p.OrderID,
			To:      target,
			Source:  source,
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition) {
			change = orders.StatusChange{OrderID: p.OrderID}
			return nil
		}
		return err
	})
	if err != nil {
		var typed *pkgerrors.Error
		if errors.As(err, &typed) && typed.Code() == pkgerrors.CodeNotFound {
			s.logg.Warn(ctx, "payment vanished while applying notification")
			return orders.StatusChange{}, nil
		}
		s.logg.Error(ctx, "failed to apply payment notification", err)
		return orders.StatusChange{}, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": p.OrderID.String(),
		"changed":  change.Changed,
		"to":       string(change.To),
	}), "payment notification applied")
	return change, nil
}
