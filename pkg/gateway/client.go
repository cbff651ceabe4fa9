// Package gateway is the shared HTTP client behind the payment, carrier and
// ERP integrations. Every call gets a per-attempt deadline, classified
// failures, bounded retries and 429 backoff.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/atelie-backend/pkg/logger"
	"github.com/angelmondragon/atelie-backend/pkg/metrics"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultBackoffBase     = 500 * time.Millisecond
	defaultMaxRetries      = 3
	defaultRateLimitRetry  = 2
	defaultRateLimitCap    = 30 * time.Second
	defaultRetryAfter      = time.Second
	responseBodyReadLimit  = 4 << 20
	defaultIdempotencyName = "Idempotency-Key"
)

// Authorizer decorates outgoing requests with credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Invalidator is implemented by authorizers that can drop a cached credential
// after the remote side answered 401.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// BearerToken is a static bearer Authorizer.
type BearerToken string

func (b BearerToken) Authorize(_ context.Context, req *http.Request) error {
	if b == "" {
		return errors.New("bearer token not configured")
	}
	req.Header.Set("Authorization", "Bearer "+string(b))
	return nil
}

// Request describes one logical call. Body is JSON-encoded when non-nil.
type Request struct {
	Op             string
	Method         string
	Path           string
	Query          url.Values
	Body           any
	Header         http.Header
	IdempotencyKey string
	// Timeout overrides the client's per-attempt deadline.
	Timeout time.Duration
}

// Response is a successful (2xx) answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client performs classified, retried JSON calls against one upstream.
type Client struct {
	name              string
	baseURL           string
	httpClient        *http.Client
	timeout           time.Duration
	backoffBase       time.Duration
	maxRetries        uint64
	rateLimitRetries  int
	rateLimitCap      time.Duration
	sleep             func(ctx context.Context, d time.Duration) error
	limiter           *rate.Limiter
	auth              Authorizer
	metrics           *metrics.GatewayMetrics
	logg              *logger.Logger
	honorsIdempotency bool
	idempotencyHeader string
	userAgent         string
}

// Option configures optional client behavior.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBackoffBase sets the first retry delay; later delays double.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// WithSleep replaces the wait used between 429 retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithAuthorizer(auth Authorizer) Option {
	return func(c *Client) { c.auth = auth }
}

func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// WithIdempotentCreates marks the upstream as honoring idempotency keys on
// POST, which makes keyed POSTs retryable. header names the key header.
func WithIdempotentCreates(header string) Option {
	return func(c *Client) {
		c.honorsIdempotency = true
		if header != "" {
			c.idempotencyHeader = header
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New builds a client for the named upstream rooted at baseURL.
func New(name, baseURL string, opts ...Option) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("gateway name is required")
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(baseURL)); err != nil {
		return nil, fmt.Errorf("gateway %s: invalid base url: %w", name, err)
	}
	c := &Client{
		name:              name,
		baseURL:           strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:        &http.Client{},
		timeout:           defaultTimeout,
		backoffBase:       defaultBackoffBase,
		maxRetries:        defaultMaxRetries,
		rateLimitRetries:  defaultRateLimitRetry,
		rateLimitCap:      defaultRateLimitCap,
		sleep:             sleepContext,
		logg:              logger.Nop(),
		idempotencyHeader: defaultIdempotencyName,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Name returns the upstream label used in logs and metrics.
func (c *Client) Name() string { return c.name }

// Do executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	start := time.Now()
	ctx = c.logg.WithGateway(ctx, c.name, req.Op)

	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Name: c.name, Op: req.Op, Kind: KindBadRequest, Err: fmt.Errorf("encode request: %w", err)}
		}
		payload = encoded
	}

	retryTransport := c.canRetry(req)
	attempt := 0
	rateLimited := 0
	reauthorized := false

	var resp *Response
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		for {
			attempt++
			r, gerr := c.attempt(ctx, req, payload)
			c.logAttempt(ctx, attempt, r, gerr, start)
			if gerr == nil {
				resp = r
				return nil
			}
			if gerr.fromAuthorizer {
				return gerr
			}
			if gerr.Kind == KindRateLimited && rateLimited < c.rateLimitRetries {
				rateLimited++
				wait := gerr.RetryAfter
				if wait <= 0 {
					wait = defaultRetryAfter
				}
				if wait > c.rateLimitCap {
					wait = c.rateLimitCap
				}
				if err := c.sleep(ctx, wait); err != nil {
					return gerr
				}
				continue
			}
			if gerr.Kind == KindUnauthorized && !reauthorized && gerr.Status == http.StatusUnauthorized {
				if inv, ok := c.auth.(Invalidator); ok {
					reauthorized = true
					inv.Invalidate(ctx)
					continue
				}
			}
			if retryTransport && (gerr.Kind == KindNetwork || gerr.Kind == KindTimeout) {
				return retry.RetryableError(gerr)
			}
			return gerr
		}
	})
	if err != nil {
		gerr, ok := AsError(err)
		if !ok {
			gerr = &Error{Name: c.name, Op: req.Op, Kind: classifyTransport(err), Err: err}
			gerr.Retryable = retryableKind(gerr.Kind)
		}
		c.metrics.Observe(c.name, req.Op, string(gerr.Kind), time.Since(start))
		return nil, gerr
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			gerr := &Error{Name: c.name, Op: req.Op, Kind: KindMalformed, Status: resp.Status, Body: truncate(resp.Body), Err: err}
			c.metrics.Observe(c.name, req.Op, string(gerr.Kind), time.Since(start))
			return resp, gerr
		}
	}
	c.metrics.Observe(c.name, req.Op, "ok", time.Since(start))
	return resp, nil
}

func (c *Client) canRetry(req Request) bool {
	switch strings.ToUpper(req.Method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	case http.MethodPost:
		return req.IdempotencyKey != "" && c.honorsIdempotency
	default:
		return false
	}
}

func (c *Client) attempt(ctx context.Context, req Request, payload []byte) (*Response, *Error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(kind Kind, status int, body []byte, err error) *Error {
		return &Error{Name: c.name, Op: req.Op, Kind: kind, Status: status, Body: truncate(body), Retryable: retryableKind(kind), Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(actx); err != nil {
			return nil, fail(classifyTransport(err), 0, nil, err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(actx, req.Method, c.buildURL(req.Path, req.Query), body)
	if err != nil {
		return nil, fail(KindBadRequest, 0, nil, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if req.IdempotencyKey != "" && c.honorsIdempotency {
		httpReq.Header.Set(c.idempotencyHeader, req.IdempotencyKey)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if c.auth != nil {
		if err := c.auth.Authorize(actx, httpReq); err != nil {
			return nil, c.authorizerFailure(req, err)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fail(classifyTransport(err), 0, nil, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, fail(classifyTransport(err), httpResp.StatusCode, nil, err)
	}

	status := httpResp.StatusCode
	switch {
	case status >= 200 && status < 300:
		return &Response{Status: status, Header: httpResp.Header, Body: raw}, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fail(KindUnauthorized, status, raw, nil)
	case status == http.StatusTooManyRequests:
		gerr := fail(KindRateLimited, status, raw, nil)
		gerr.RetryAfter = ParseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now())
		return nil, gerr
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return nil, fail(KindTimeout, status, raw, nil)
	case status >= 500:
		return nil, fail(KindGatewayError, status, raw, nil)
	default:
		return nil, fail(KindBadRequest, status, raw, nil)
	}
}

// authorizerFailure wraps a credential error as final. A rate-limited token
// endpoint keeps its Retry-After so the caller can schedule the next attempt.
func (c *Client) authorizerFailure(req Request, err error) *Error {
	if gerr, ok := AsError(err); ok {
		final := *gerr
		final.fromAuthorizer = true
		return &final
	}
	return &Error{Name: c.name, Op: req.Op, Kind: KindUnauthorized, Err: err, fromAuthorizer: true}
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

func (c *Client) logAttempt(ctx context.Context, attempt int, resp *Response, gerr *Error, start time.Time) {
	fields := map[string]any{
		"attempt":     attempt,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if resp != nil {
		fields["status"] = resp.Status
		c.logg.Debug(c.logg.WithFields(ctx, fields), "gateway call succeeded")
		return
	}
	fields["status"] = gerr.Status
	fields["kind"] = string(gerr.Kind)
	c.logg.Warn(c.logg.WithFields(ctx, fields), "gateway call failed")
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns zero when the header is absent or unparseable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
