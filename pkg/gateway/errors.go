package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an outbound call failure.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindBadRequest   Kind = "bad_request"
	KindGatewayError Kind = "gateway_error"
	KindMalformed    Kind = "malformed_response"
)

const maxErrorBodyBytes = 2048

// Error is the typed failure every gateway operation returns. It never
// reaches an HTTP response as-is; callers translate it into a domain error.
type Error struct {
	Name       string
	Op         string
	Kind       Kind
	Status     int
	Body       string
	Retryable  bool
	RetryAfter time.Duration
	Err        error

	// fromAuthorizer marks failures raised while obtaining credentials.
	// The client never retries them.
	fromAuthorizer bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Name, e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Gateway() string      { return e.Name }
func (e *Error) HTTPStatus() int      { return e.Status }
func (e *Error) ResponseBody() string { return e.Body }

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind Kind) bool {
	gerr, ok := AsError(err)
	return ok && gerr.Kind == kind
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}

func retryableKind(kind Kind) bool {
	switch kind {
	case KindNetwork, KindTimeout, KindRateLimited, KindGatewayError:
		return true
	default:
		return false
	}
}
