package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithHTTPClient(&http.Client{Transport: rt}),
		WithBackoffBase(time.Millisecond),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
	client, err := New("payment", "http://gateway.test/v1", append(base, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDoDecodesSuccess(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusCreated, `{"id":"ORDE_1"}`), nil
	}, WithAuthorizer(BearerToken("secret")), WithIdempotentCreates("x-idempotency-key"), WithUserAgent("atelie-test"))

	var out struct {
		ID string `json:"id"`
	}
	resp, err := client.Do(context.Background(), Request{
		Op:             "create_order",
		Method:         http.MethodPost,
		Path:           "/orders",
		Body:           map[string]string{"reference_id": "AT-1"},
		IdempotencyKey: "AT-1",
	}, &out)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.Status != http.StatusCreated || out.ID != "ORDE_1" {
		t.Fatalf("unexpected response %d %+v", resp.Status, out)
	}
	if captured.URL.String() != "http://gateway.test/v1/orders" {
		t.Fatalf("unexpected url %s", captured.URL)
	}
	if captured.Header.Get("Authorization") != "Bearer secret" {
		t.Fatal("missing bearer header")
	}
	if captured.Header.Get("x-idempotency-key") != "AT-1" {
		t.Fatal("missing idempotency header")
	}
	if captured.Header.Get("User-Agent") != "atelie-test" {
		t.Fatal("missing user agent")
	}
}

func TestDoClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusBadRequest, KindBadRequest},
		{http.StatusUnprocessableEntity, KindBadRequest},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusInternalServerError, KindGatewayError},
		{http.StatusGatewayTimeout, KindTimeout},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(tc.status, `{"error_messages":[{"code":"40002"}]}`), nil
		})
		_, err := client.Do(context.Background(), Request{Op: "create_order", Method: http.MethodPost, Path: "/orders"}, nil)
		gerr, ok := AsError(err)
		if !ok {
			t.Fatalf("status %d: expected gateway error, got %v", tc.status, err)
		}
		if gerr.Kind != tc.kind || gerr.Status != tc.status {
			t.Fatalf("status %d: got kind %s status %d", tc.status, gerr.Kind, gerr.Status)
		}
		if !strings.Contains(gerr.Body, "40002") {
			t.Fatalf("status %d: body not captured", tc.status)
		}
	}
}

func TestDoRetriesIdempotentVerbsOnNetworkErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	if _, err := client.Do(context.Background(), Request{Op: "get_order", Method: http.MethodGet, Path: "/orders/1"}, nil); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoGivesUpAfterThreeRetries(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, timeoutErr{}
	})
	_, err := client.Do(context.Background(), Request{Op: "get_order", Method: http.MethodGet, Path: "/orders/1"}, nil)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 1 attempt + 3 retries, got %d", calls)
	}
}

func TestDoDoesNotRetryUnkeyedPost(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	}, WithIdempotentCreates(""))
	_, err := client.Do(context.Background(), Request{Op: "create", Method: http.MethodPost, Path: "/x"}, nil)
	if !IsKind(err, KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestDoRetriesKeyedPostOnlyWhenUpstreamHonorsKeys(t *testing.T) {
	var calls int32
	rt := func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	}
	client := newTestClient(t, rt)
	_, _ = client.Do(context.Background(), Request{Op: "create", Method: http.MethodPost, Path: "/x", IdempotencyKey: "k"}, nil)
	if calls != 1 {
		t.Fatalf("expected no retry without idempotency support, got %d", calls)
	}

	atomic.StoreInt32(&calls, 0)
	client = newTestClient(t, rt, WithIdempotentCreates(""))
	_, _ = client.Do(context.Background(), Request{Op: "create", Method: http.MethodPost, Path: "/x", IdempotencyKey: "k"}, nil)
	if calls != 4 {
		t.Fatalf("expected keyed POST to retry, got %d", calls)
	}
}

func TestDoBacksOffOnRateLimitTwiceThenSurfaces(t *testing.T) {
	var calls int32
	var waits []time.Duration
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		resp := jsonResponse(http.StatusTooManyRequests, `{}`)
		resp.Header.Set("Retry-After", "120")
		return resp, nil
	}, WithSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	_, err := client.Do(context.Background(), Request{Op: "calculate", Method: http.MethodPost, Path: "/calculate"}, nil)
	gerr, ok := AsError(err)
	if !ok || gerr.Kind != KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if gerr.RetryAfter != 120*time.Second {
		t.Fatalf("expected retry-after to be reported, got %v", gerr.RetryAfter)
	}
	if calls != 3 {
		t.Fatalf("expected 1 attempt + 2 rate-limit retries, got %d", calls)
	}
	for _, w := range waits {
		if w != 30*time.Second {
			t.Fatalf("expected wait capped at 30s, got %v", w)
		}
	}
}

func TestDoRecoversAfterRateLimit(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			resp := jsonResponse(http.StatusTooManyRequests, `{}`)
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	if _, err := client.Do(context.Background(), Request{Op: "cart", Method: http.MethodPost, Path: "/cart"}, nil); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestDoReportsMalformedJSON(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `<html>`), nil
	})
	var out map[string]any
	_, err := client.Do(context.Background(), Request{Op: "get", Method: http.MethodGet, Path: "/x"}, &out)
	if !IsKind(err, KindMalformed) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client, err := New("carrier", srv.URL, WithTimeout(20*time.Millisecond), WithBackoffBase(time.Millisecond))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = client.Do(context.Background(), Request{Op: "create_shipment", Method: http.MethodPost, Path: "/cart"}, nil)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

type countingAuth struct {
	invalidated int
}

func (a *countingAuth) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer t")
	return nil
}

func (a *countingAuth) Invalidate(context.Context) { a.invalidated++ }

func TestDoInvalidatesCredentialOnceOn401(t *testing.T) {
	var calls int32
	auth := &countingAuth{}
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusUnauthorized, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	}, WithAuthorizer(auth))
	if _, err := client.Do(context.Background(), Request{Op: "get", Method: http.MethodGet, Path: "/x"}, nil); err != nil {
		t.Fatalf("expected success after invalidation, got %v", err)
	}
	if auth.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", auth.invalidated)
	}
}

type limitedAuth struct {
	calls int
}

func (a *limitedAuth) Authorize(context.Context, *http.Request) error {
	a.calls++
	return &Error{Name: "erp", Op: "refresh_token", Kind: KindRateLimited, Status: http.StatusTooManyRequests, Retryable: true, RetryAfter: 7 * time.Second}
}

func TestDoSurfacesAuthorizerFailuresWithoutRetry(t *testing.T) {
	var calls int32
	var sleeps []time.Duration
	auth := &limitedAuth{}
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusOK, `{}`), nil
	}, WithAuthorizer(auth), WithSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))

	_, err := client.Do(context.Background(), Request{Op: "get", Method: http.MethodGet, Path: "/x"}, nil)
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if gerr, _ := AsError(err); gerr.RetryAfter != 7*time.Second {
		t.Fatalf("expected retry-after preserved, got %v", gerr.RetryAfter)
	}
	if auth.calls != 1 || len(sleeps) != 0 || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected a single authorize and no upstream call, got auth=%d sleeps=%v calls=%d", auth.calls, sleeps, calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := ParseRetryAfter("7", now); got != 7*time.Second {
		t.Fatalf("seconds form: %v", got)
	}
	if got := ParseRetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now); got != 5*time.Second {
		t.Fatalf("date form: %v", got)
	}
	if got := ParseRetryAfter("soon", now); got != 0 {
		t.Fatalf("garbage: %v", got)
	}
}

func TestErrorExposesUpstreamDetails(t *testing.T) {
	gerr := &Error{Name: "erp", Op: "push_order", Kind: KindBadRequest, Status: 400, Body: "bad"}
	if gerr.Gateway() != "erp" || gerr.HTTPStatus() != 400 || gerr.ResponseBody() != "bad" {
		t.Fatalf("unexpected accessors %+v", gerr)
	}
	if !strings.Contains(gerr.Error(), "status 400") {
		t.Fatalf("unexpected message %q", gerr.Error())
	}
}
