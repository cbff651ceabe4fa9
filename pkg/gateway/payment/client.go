// Package payment talks to the card/PIX/boleto gateway.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
)

const (
	gatewayName       = "payment"
	idempotencyHeader = "x-idempotency-key"
)

// Client wraps the gateway order endpoints.
type Client struct {
	http *gateway.Client
}

// NewClient builds the payment client from config. Extra options are applied
// after the config-derived ones.
func NewClient(cfg config.PaymentConfig, opts ...gateway.Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("payment token is required")
	}
	base := []gateway.Option{
		gateway.WithAuthorizer(gateway.BearerToken(cfg.Token)),
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithIdempotentCreates(idempotencyHeader),
	}
	httpClient, err := gateway.New(gatewayName, cfg.BaseURL, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient}, nil
}

// CreateOrder creates the gateway order and its charge. The order code is the
// idempotency key so a retried POST never charges twice.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*Order, []byte, error) {
	var out Order
	resp, err := c.http.Do(ctx, gateway.Request{
		Op:             "create_order",
		Method:         http.MethodPost,
		Path:           "/orders",
		Body:           req,
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, resp.Body, nil
}

// GetOrder fetches the current state of a gateway order.
func (c *Client) GetOrder(ctx context.Context, gatewayOrderID string) (*Order, []byte, error) {
	var out Order
	resp, err := c.http.Do(ctx, gateway.Request{
		Op:     "get_order",
		Method: http.MethodGet,
		Path:   "/orders/" + url.PathEscape(gatewayOrderID),
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	return &out, resp.Body, nil
}

// FindOrderByReference looks up the gateway order created for one of our
// order codes. It returns a nil order when the gateway has none.
func (c *Client) FindOrderByReference(ctx context.Context, referenceID string) (*Order, []byte, error) {
	var out struct {
		Orders []json.RawMessage `json:"orders"`
	}
	_, err := c.http.Do(ctx, gateway.Request{
		Op:     "find_order",
		Method: http.MethodGet,
		Path:   "/orders",
		Query:  url.Values{"reference_id": {referenceID}},
	}, &out)
	if err != nil {
		if gerr, ok := gateway.AsError(err); ok && gerr.Status == http.StatusNotFound {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	for _, raw := range out.Orders {
		var order Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, nil, &gateway.Error{Name: gatewayName, Op: "find_order", Kind: gateway.KindMalformed, Err: err}
		}
		if order.ReferenceID == referenceID {
			return &order, raw, nil
		}
	}
	return nil, nil, nil
}
