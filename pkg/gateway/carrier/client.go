// Package carrier talks to the shipping-label marketplace.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
)

const (
	gatewayName        = "carrier"
	idempotencyHeader  = "X-Idempotency-Key"
	defaultPrintWindow = 60 * time.Second
	cancelReasonID     = "2"
)

// Client wraps the cart, checkout, print, tracking and cancel endpoints.
type Client struct {
	http         *gateway.Client
	printTimeout time.Duration
}

func NewClient(cfg config.CarrierConfig, opts ...gateway.Option) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("carrier token is required")
	}
	base := []gateway.Option{
		gateway.WithAuthorizer(gateway.BearerToken(cfg.Token)),
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithUserAgent(cfg.UserAgent),
		gateway.WithIdempotentCreates(idempotencyHeader),
	}
	httpClient, err := gateway.New(gatewayName, cfg.BaseURL, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	printTimeout := cfg.PrintTimeout
	if printTimeout <= 0 {
		printTimeout = defaultPrintWindow
	}
	return &Client{http: httpClient, printTimeout: printTimeout}, nil
}

// Calculate quotes every service for the package.
func (c *Client) Calculate(ctx context.Context, req CalculateRequest) ([]Quote, error) {
	var out []Quote
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "calculate",
		Method: http.MethodPost,
		Path:   "/api/v2/me/shipment/calculate",
		Body:   req,
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateShipment adds a shipment to the carrier cart.
func (c *Client) CreateShipment(ctx context.Context, req CreateShipmentRequest, idempotencyKey string) (*Shipment, []byte, error) {
	var out Shipment
	resp, err := c.http.Do(ctx, gateway.Request{
		Op:             "create_shipment",
		Method:         http.MethodPost,
		Path:           "/api/v2/me/cart",
		Body:           req,
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	if out.ID == "" {
		return nil, resp.Body, &gateway.Error{Name: gatewayName, Op: "create_shipment", Kind: gateway.KindMalformed, Status: resp.Status, Err: errors.New("shipment id missing")}
	}
	return &out, resp.Body, nil
}

// Checkout pays for the shipment with the account balance.
func (c *Client) Checkout(ctx context.Context, shipmentID string) (*Purchase, error) {
	var out struct {
		Purchase Purchase `json:"purchase"`
	}
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "checkout",
		Method: http.MethodPost,
		Path:   "/api/v2/me/shipment/checkout",
		Body:   ordersRequest{Orders: []string{shipmentID}},
	}, &out); err != nil {
		return nil, err
	}
	return &out.Purchase, nil
}

// Print generates the label and returns the printable URL.
func (c *Client) Print(ctx context.Context, shipmentID string) (string, error) {
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:      "generate",
		Method:  http.MethodPost,
		Path:    "/api/v2/me/shipment/generate",
		Body:    ordersRequest{Orders: []string{shipmentID}},
		Timeout: c.printTimeout,
	}, nil); err != nil {
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:      "print",
		Method:  http.MethodPost,
		Path:    "/api/v2/me/shipment/print",
		Body:    ordersRequest{Orders: []string{shipmentID}, Mode: "public"},
		Timeout: c.printTimeout,
	}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", &gateway.Error{Name: gatewayName, Op: "print", Kind: gateway.KindMalformed, Err: errors.New("print url missing")}
	}
	return out.URL, nil
}

// Track returns the carrier's latest status for the shipment.
func (c *Client) Track(ctx context.Context, shipmentID string) (*Tracking, error) {
	out := map[string]Tracking{}
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "track",
		Method: http.MethodPost,
		Path:   "/api/v2/me/shipment/tracking",
		Body:   ordersRequest{Orders: []string{shipmentID}},
	}, &out); err != nil {
		return nil, err
	}
	tr, ok := out[shipmentID]
	if !ok {
		return nil, &gateway.Error{Name: gatewayName, Op: "track", Kind: gateway.KindMalformed, Err: fmt.Errorf("shipment %s absent from tracking response", shipmentID)}
	}
	if tr.ID == "" {
		tr.ID = shipmentID
	}
	return &tr, nil
}

// Cancel voids the shipment. The carrier refunds the balance when it was paid.
func (c *Client) Cancel(ctx context.Context, shipmentID, reason string) error {
	out := map[string]struct {
		Canceled bool `json:"canceled"`
	}{}
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "cancel",
		Method: http.MethodPost,
		Path:   "/api/v2/me/shipment/cancel",
		Body:   cancelRequest{Order: cancelOrder{ID: shipmentID, ReasonID: cancelReasonID, Description: reason}},
	}, &out); err != nil {
		return err
	}
	if res, ok := out[shipmentID]; ok && !res.Canceled {
		return &gateway.Error{Name: gatewayName, Op: "cancel", Kind: gateway.KindBadRequest, Err: errors.New("carrier refused cancellation")}
	}
	return nil
}
