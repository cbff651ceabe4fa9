package erp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
)

const (
	refreshSkew            = 60 * time.Second
	defaultTokenRetryAfter = 10 * time.Second
)

// ErrNoToken is returned by a TokenStore that has never been authorized.
var ErrNoToken = errors.New("erp token not found")

// TokenStore persists the single ERP token record.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// TokenManager owns the process-wide ERP access token. Refreshes are
// serialized by mu so concurrent callers never spend the same refresh token
// twice.
type TokenManager struct {
	oauth      *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	cached *oauth2.Token
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(m *TokenManager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewTokenManager(cfg config.ERPConfig, store TokenStore, opts ...TokenOption) (*TokenManager, error) {
	if store == nil {
		return nil, errors.New("erp token store is required")
	}
	m := &TokenManager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:      store,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// AuthCodeURL is the consent page the admin is redirected to.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and persists it.
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return pkgerrors.Validation("code", "required")
	}
	tok, err := m.oauth.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return m.classify(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, tok); err != nil {
		return err
	}
	m.cached = tok
	return nil
}

// Token returns a valid access token, refreshing it when it expires within
// a minute.
func (m *TokenManager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok := m.cached
	if tok == nil {
		loaded, err := m.store.Load(ctx)
		if errors.Is(err, ErrNoToken) {
			return nil, pkgerrors.ReauthorizationRequired(err)
		}
		if err != nil {
			return nil, err
		}
		tok = loaded
		m.cached = loaded
	}
	if tok.AccessToken != "" && tok.Expiry.Sub(m.now()) >= refreshSkew {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, pkgerrors.ReauthorizationRequired(errors.New("refresh token missing"))
	}

	src := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return nil, m.classify(err)
	}
	if err := m.store.Save(ctx, refreshed); err != nil {
		return nil, err
	}
	m.cached = refreshed
	return refreshed, nil
}

// Authorize implements gateway.Authorizer.
func (m *TokenManager) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := m.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// Invalidate forces the next call to refresh.
func (m *TokenManager) Invalidate(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		stale := *m.cached
		stale.Expiry = m.now().Add(-time.Second)
		m.cached = &stale
	}
}

func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// classify turns token endpoint failures into gateway or domain errors. A 429
// is surfaced with its Retry-After and never retried here.
func (m *TokenManager) classify(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return &gateway.Error{Name: gatewayName, Op: "refresh_token", Kind: gateway.KindNetwork, Retryable: true, Err: err}
	}
	status := re.Response.StatusCode
	switch {
	case status == http.StatusTooManyRequests:
		wait := gateway.ParseRetryAfter(re.Response.Header.Get("Retry-After"), m.now())
		if wait <= 0 {
			wait = defaultTokenRetryAfter
		}
		return &gateway.Error{Name: gatewayName, Op: "refresh_token", Kind: gateway.KindRateLimited, Status: status, Body: string(re.Body), Retryable: true, RetryAfter: wait, Err: err}
	case re.ErrorCode == "invalid_grant" || status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return pkgerrors.ReauthorizationRequired(err)
	case status >= 500:
		return &gateway.Error{Name: gatewayName, Op: "refresh_token", Kind: gateway.KindGatewayError, Status: status, Body: string(re.Body), Retryable: true, Err: err}
	default:
		return &gateway.Error{Name: gatewayName, Op: "refresh_token", Kind: gateway.KindBadRequest, Status: status, Body: string(re.Body), Err: err}
	}
}
