// Package erp talks to the ERP's v3 REST API: products, contacts, sales
// orders and NF-e emission, behind an OAuth2 token that refreshes itself.
package erp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
)

const gatewayName = "erp"

// Client wraps the ERP endpoints the order core needs.
type Client struct {
	http *gateway.Client
}

// NewClient builds a rate-limited ERP client authorized by tokens.
func NewClient(cfg config.ERPConfig, tokens gateway.Authorizer, opts ...gateway.Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("erp token source is required")
	}
	base := []gateway.Option{
		gateway.WithAuthorizer(tokens),
		gateway.WithTimeout(cfg.Timeout),
		gateway.WithRateLimit(cfg.RequestsPerSecond),
	}
	httpClient, err := gateway.New(gatewayName, cfg.BaseURL, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Client{http: httpClient}, nil
}

// FindProductByCode looks a product up by SKU. found is false when absent.
func (c *Client) FindProductByCode(ctx context.Context, code string) (int64, bool, error) {
	var out envelope[[]Product]
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "find_product",
		Method: http.MethodGet,
		Path:   "/produtos",
		Query:  url.Values{"codigo": []string{code}},
	}, &out); err != nil {
		return 0, false, err
	}
	for _, p := range out.Data {
		if p.Code == code && p.ID != 0 {
			return p.ID, true, nil
		}
	}
	return 0, false, nil
}

// CreateProduct creates the product and returns its ERP id.
func (c *Client) CreateProduct(ctx context.Context, p Product, localID string) (int64, error) {
	return c.create(ctx, "create_product", "/produtos", p, localID)
}

// UpdateProduct replaces the product.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p Product) error {
	return c.update(ctx, "update_product", "/produtos/"+strconv.FormatInt(id, 10), p)
}

// FindContactByDocument looks up a contact by CPF/CNPJ digits.
func (c *Client) FindContactByDocument(ctx context.Context, document string) (int64, bool, error) {
	var out envelope[[]Contact]
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "find_contact",
		Method: http.MethodGet,
		Path:   "/contatos",
		Query:  url.Values{"numeroDocumento": []string{document}},
	}, &out); err != nil {
		return 0, false, err
	}
	for _, ct := range out.Data {
		if ct.ID != 0 {
			return ct.ID, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) CreateContact(ctx context.Context, ct Contact, localKey string) (int64, error) {
	return c.create(ctx, "create_contact", "/contatos", ct, localKey)
}

func (c *Client) UpdateContact(ctx context.Context, id int64, ct Contact) error {
	return c.update(ctx, "update_contact", "/contatos/"+strconv.FormatInt(id, 10), ct)
}

// CreateOrder creates the sales order and returns its ERP id.
func (c *Client) CreateOrder(ctx context.Context, o Order, localID string) (int64, error) {
	return c.create(ctx, "create_order", "/pedidos/vendas", o, localID)
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, o Order) error {
	return c.update(ctx, "update_order", "/pedidos/vendas/"+strconv.FormatInt(id, 10), o)
}

// GetOrder fetches the sales order including its tracking volumes.
func (c *Client) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var out envelope[Order]
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "get_order",
		Method: http.MethodGet,
		Path:   "/pedidos/vendas/" + strconv.FormatInt(id, 10),
	}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// SetOrderSituation moves the ERP order to another situation.
func (c *Client) SetOrderSituation(ctx context.Context, id, situationID int64) error {
	_, err := c.http.Do(ctx, gateway.Request{
		Op:     "set_order_situation",
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/pedidos/vendas/%d/situacoes/%d", id, situationID),
	}, nil)
	return err
}

// EmitFiscalDocument creates the NF-e draft and sends it to the tax
// authority. It returns the ERP document id.
func (c *Client) EmitFiscalDocument(ctx context.Context, req FiscalDocumentRequest, localID string) (int64, error) {
	id, err := c.create(ctx, "create_nfe", "/nfe", req, localID)
	if err != nil {
		return 0, err
	}
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "send_nfe",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/nfe/%d/enviar", id),
	}, nil); err != nil {
		return id, err
	}
	return id, nil
}

// GetFiscalDocument reads the NF-e's authoritative situation.
func (c *Client) GetFiscalDocument(ctx context.Context, id int64) (*FiscalDocument, error) {
	var out envelope[FiscalDocument]
	if _, err := c.http.Do(ctx, gateway.Request{
		Op:     "get_nfe",
		Method: http.MethodGet,
		Path:   "/nfe/" + strconv.FormatInt(id, 10),
	}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) create(ctx context.Context, op, path string, body any, localKey string) (int64, error) {
	var out envelope[Ref]
	resp, err := c.http.Do(ctx, gateway.Request{
		Op:             op,
		Method:         http.MethodPost,
		Path:           path,
		Body:           body,
		IdempotencyKey: localKey,
	}, &out)
	if err != nil {
		return 0, err
	}
	if out.Data.ID == 0 {
		return 0, &gateway.Error{Name: gatewayName, Op: op, Kind: gateway.KindMalformed, Status: resp.Status, Err: errors.New("created id missing")}
	}
	return out.Data.ID, nil
}

func (c *Client) update(ctx context.Context, op, path string, body any) error {
	_, err := c.http.Do(ctx, gateway.Request{
		Op:     op,
		Method: http.MethodPut,
		Path:   path,
		Body:   body,
	}, nil)
	return err
}
