package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/internal/erpsync"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

const erpSignatureHeader = "X-Bling-Signature-256"

type ERPWebhookService interface {
	HandleWebhook(ctx context.Context, body []byte) (erpsync.WebhookOutcome, error)
}

// ERPWebhook receives ERP order and invoice situation changes. Duplicates and
// events that cannot affect local state are acknowledged with 200; only
// infrastructure failures answer 5xx so the ERP redelivers.
func ERPWebhook(svc ERPWebhookService, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "erp webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !security.VerifyHMACSHA256(signingSecret, payload, r.Header.Get(erpSignatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		outcome, err := svc.HandleWebhook(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		body := map[string]any{
			"duplicate": outcome.Duplicate,
			"ignored":   outcome.Ignored,
		}
		if outcome.Reason != "" {
			body["reason"] = outcome.Reason
		}
		if outcome.Change != nil {
			body["order_status"] = outcome.Change.To
		}
		if outcome.FiscalStatus != "" {
			body["fiscal_status"] = outcome.FiscalStatus
		}
		responses.WriteSuccess(w, body)
	}
}
