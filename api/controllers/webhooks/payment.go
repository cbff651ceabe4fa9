package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/atelie-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/atelie-backend/internal/webhooks/payment"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

const (
	authenticityHeader = "X-Authenticity-Token"
	maxWebhookBody     = 1 << 20
)

type PaymentWebhookService interface {
	HandleNotification(ctx context.Context, body []byte) (paymentwebhook.Outcome, error)
}

// PaymentWebhook receives gateway charge notifications. The authenticity
// token is checked against the raw body before anything is parsed.
func PaymentWebhook(svc PaymentWebhookService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !security.VerifyAuthenticityToken(secret, payload, r.Header.Get(authenticityHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid authenticity token"))
			return
		}

		outcome, err := svc.HandleNotification(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"applied": outcome.Applied,
			"ignored": outcome.Ignored,
		})
	}
}
