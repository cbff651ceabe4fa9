package middleware

import "context"

type contextKey string

const (
	ctxUserID     contextKey = "user_id"
	ctxSessionID  contextKey = "session_id"
	ctxAdminEmail contextKey = "admin_email"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

// SessionIDFromContext returns the anonymous cart session attached by Identity.
func SessionIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxSessionID)
}

func AdminEmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxAdminEmail)
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, ctxUserID, userID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withString(ctx, ctxSessionID, sessionID)
}

func WithAdminEmail(ctx context.Context, email string) context.Context {
	return withString(ctx, ctxAdminEmail, email)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}
