package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/api/responses"
	pkgauth "github.com/angelmondragon/atelie-backend/pkg/auth"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

const (
	SessionHeader = "X-Session-Id"
	SessionCookie = "atelie_session"
)

// Identity resolves who owns the cart. A signed-in customer is identified by
// the subject of their bearer token; anonymous shoppers by the session id the
// storefront keeps in a header or cookie. A present but invalid token is
// rejected rather than silently downgraded to an anonymous session.
func Identity(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fields := map[string]any{}

			if token := bearerToken(r); token != "" {
				claims, err := pkgauth.ParseAccessToken(cfg, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
					return
				}
				if claims.Role == pkgauth.RoleCustomer {
					if _, err := uuid.Parse(claims.Subject); err != nil {
						responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid subject"))
						return
					}
					ctx = WithUserID(ctx, claims.Subject)
					fields["user_id"] = claims.Subject
				}
			}

			if sessionID := sessionFromRequest(r); sessionID != "" {
				ctx = WithSessionID(ctx, sessionID)
				fields["session_id"] = sessionID
			}

			if logg != nil && len(fields) > 0 {
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(SessionHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
