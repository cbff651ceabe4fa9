package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/atelie-backend/api/responses"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/atelie-backend/pkg/redis"
	"github.com/angelmondragon/atelie-backend/pkg/security"
)

const oauthStateTTL = 10 * time.Minute

type ERPAuthorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
}

type OAuthStateStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	OAuthStateKey(state string) string
}

// ERPAuthorize starts the ERP consent flow. The state nonce is remembered
// for ten minutes and consumed by the callback.
func ERPAuthorize(tokens ERPAuthorizer, states OAuthStateStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state, err := security.RandomToken(security.MinTokenBytes)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate state"))
			return
		}
		if err := states.Set(ctx, states.OAuthStateKey(state), "pending", oauthStateTTL); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store state"))
			return
		}
		http.Redirect(w, r, tokens.AuthCodeURL(state), http.StatusFound)
	}
}

// ERPOAuthCallback exchanges the authorization code and persists the token.
func ERPOAuthCallback(tokens ERPAuthorizer, states OAuthStateStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		query := r.URL.Query()
		if errCode := strings.TrimSpace(query.Get("error")); errCode != "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "erp authorization denied").WithDetails(map[string]string{"error": errCode}))
			return
		}
		state := strings.TrimSpace(query.Get("state"))
		code := strings.TrimSpace(query.Get("code"))
		if state == "" || code == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.MissingFields("oauth callback", missing(map[string]string{"state": state, "code": code})))
			return
		}

		if _, err := states.GetDel(ctx, states.OAuthStateKey(state)); err != nil {
			if pkgredis.IsNil(err) {
				responses.WriteError(ctx, logg, w, pkgerrors.Validation("state", "unknown or expired"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load state"))
			return
		}

		if err := tokens.Exchange(ctx, code); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "erp.authorized")
		}
		responses.WriteSuccess(w, map[string]string{"status": "authorized"})
	}
}

func missing(fields map[string]string) []string {
	out := []string{}
	for _, name := range []string{"state", "code"} {
		if fields[name] == "" {
			out = append(out, name)
		}
	}
	return out
}
