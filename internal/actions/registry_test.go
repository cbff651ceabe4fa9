package actions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) CreateForOrder(_ context.Context, id uuid.UUID) (*models.ShippingLabel, error) {
	r.calls = append(r.calls, "label:"+id.String())
	return &models.ShippingLabel{}, r.err
}

func (r *recorder) PushOrder(_ context.Context, id uuid.UUID) (*models.ERPOrderLink, error) {
	r.calls = append(r.calls, "push:"+id.String())
	return nil, r.err
}

func (r *recorder) ForwardTracking(_ context.Context, id uuid.UUID, code string) (*models.ERPOrderLink, error) {
	r.calls = append(r.calls, "tracking:"+code)
	return nil, r.err
}

func (r *recorder) EmitFiscalDocument(_ context.Context, id uuid.UUID) (*models.FiscalDocument, error) {
	r.calls = append(r.calls, "nfe:"+id.String())
	return nil, r.err
}

func TestWireRoutesEveryKind(t *testing.T) {
	rec := &recorder{}
	reg := Wire(WireParams{Labels: rec, ERP: rec})
	assert.ElementsMatch(t, enums.ActionKinds(), reg.Kinds())

	orderID := uuid.New()
	ctx := context.Background()
	require.NoError(t, reg.Handle(ctx, outbox.Action{Kind: enums.ActionCreateLabel, OrderID: orderID}))
	require.NoError(t, reg.Handle(ctx, outbox.Action{Kind: enums.ActionPushOrder, OrderID: orderID}))
	require.NoError(t, reg.Handle(ctx, outbox.Action{Kind: enums.ActionForwardTracking, OrderID: orderID, TrackingCode: "QB123BR"}))
	require.NoError(t, reg.Handle(ctx, outbox.Action{Kind: enums.ActionEmitFiscalDocument, OrderID: orderID}))
	assert.Equal(t, []string{
		"label:" + orderID.String(),
		"push:" + orderID.String(),
		"tracking:QB123BR",
		"nfe:" + orderID.String(),
	}, rec.calls)
}

func TestMissingDependencyLeavesKindUnhandled(t *testing.T) {
	reg := Wire(WireParams{Labels: &recorder{}})
	err := reg.Handle(context.Background(), outbox.Action{Kind: enums.ActionPushOrder, OrderID: uuid.New()})
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, OutcomeTerminal, Classify(err))
}

func TestClassify(t *testing.T) {
	reauth := &gateway.Error{Kind: gateway.KindUnauthorized, Err: pkgerrors.ReauthorizationRequired(errors.New("expired"))}
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"success", nil, OutcomeDone},
		{"transient", errors.New("connection reset"), OutcomeRetry},
		{"gateway down", pkgerrors.GatewayUnavailable("carrier", errors.New("503")), OutcomeRetry},
		{"conflict", pkgerrors.New(pkgerrors.CodeConflict, "invoice not issued yet"), OutcomeRetry},
		{"reauthorization", fmt.Errorf("push: %w", reauth), OutcomeDefer},
		{"validation", pkgerrors.MissingFields("product", []string{"ncm"}), OutcomeTerminal},
		{"not found", pkgerrors.NotFound("order"), OutcomeTerminal},
		{"order not shippable", pkgerrors.New(pkgerrors.CodeIllegalTransition, "order is not ready for shipping"), OutcomeTerminal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
