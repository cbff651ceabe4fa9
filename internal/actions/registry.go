// Package actions runs the follow-on work queued by order state changes:
// shipping labels, NF-e emission and ERP order pushes.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

// Handler executes one queued action. Handlers must be safe to repeat: a
// row may be delivered again after a crash between the handler and the ack.
type Handler func(ctx context.Context, action outbox.Action) error

// Outcome tells the dispatcher what to do with a row after its handler ran.
type Outcome string

const (
	OutcomeDone     Outcome = "ok"
	OutcomeRetry    Outcome = "retry"
	OutcomeDefer    Outcome = "defer"
	OutcomeTerminal Outcome = "dlq"
)

// ErrNoHandler is returned for kinds nothing is registered for.
var ErrNoHandler = errors.New("no handler registered")

type Registry struct {
	handlers map[enums.ActionKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[enums.ActionKind]Handler{}}
}

func (r *Registry) Register(kind enums.ActionKind, h Handler) {
	r.handlers[kind] = h
}

func (r *Registry) Kinds() []enums.ActionKind {
	kinds := make([]enums.ActionKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Handle runs the handler registered for action.Kind.
func (r *Registry) Handle(ctx context.Context, action outbox.Action) error {
	h, ok := r.handlers[action.Kind]
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoHandler, action.Kind)
	}
	return h(ctx, action)
}

// Classify maps a handler error to the row's next step. Expired ERP
// credentials wait for an operator without burning attempts; errors no
// retry can fix go straight to the DLQ.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDone
	case errors.Is(err, ErrNoHandler):
		return OutcomeTerminal
	case pkgerrors.IsCode(err, pkgerrors.CodeReauthorization):
		return OutcomeDefer
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		pkgerrors.IsCode(err, pkgerrors.CodeIllegalTransition):
		return OutcomeTerminal
	}
	return OutcomeRetry
}

type labelCreator interface {
	CreateForOrder(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error)
}

type erpPusher interface {
	PushOrder(ctx context.Context, orderID uuid.UUID) (*models.ERPOrderLink, error)
	ForwardTracking(ctx context.Context, orderID uuid.UUID, trackingCode string) (*models.ERPOrderLink, error)
	EmitFiscalDocument(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error)
}

type WireParams struct {
	Labels labelCreator
	ERP    erpPusher
}

// Wire binds every action kind to its service. A kind whose dependency is
// missing stays unregistered and its rows land in the DLQ.
func Wire(params WireParams) *Registry {
	r := NewRegistry()
	if params.Labels != nil {
		r.Register(enums.ActionCreateLabel, func(ctx context.Context, a outbox.Action) error {
			_, err := params.Labels.CreateForOrder(ctx, a.OrderID)
			return err
		})
	}
	if params.ERP != nil {
		r.Register(enums.ActionPushOrder, func(ctx context.Context, a outbox.Action) error {
			_, err := params.ERP.PushOrder(ctx, a.OrderID)
			return err
		})
		r.Register(enums.ActionForwardTracking, func(ctx context.Context, a outbox.Action) error {
			_, err := params.ERP.ForwardTracking(ctx, a.OrderID, a.TrackingCode)
			return err
		})
		r.Register(enums.ActionEmitFiscalDocument, func(ctx context.Context, a outbox.Action) error {
			_, err := params.ERP.EmitFiscalDocument(ctx, a.OrderID)
			return err
		})
	}
	return r
}
