package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	"github.com/angelmondragon/atelie-backend/internal/catalog"
	"github.com/angelmondragon/atelie-backend/internal/orders"
	"github.com/angelmondragon/atelie-backend/pkg/config"
	"github.com/angelmondragon/atelie-backend/pkg/db/dbtest"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/carrier"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/outbox"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

type fakePayments struct {
	mu       sync.Mutex
	requests []payment.CreateOrderRequest
	keys     []string
	respond  func(req payment.CreateOrderRequest) (*payment.Order, error)
}

func (f *fakePayments) CreateOrder(_ context.Context, req payment.CreateOrderRequest, key string) (*payment.Order, []byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	out, err := f.respond(req)
	if err != nil {
		return nil, nil, err
	}
	raw, _ := json.Marshal(out)
	return out, raw, nil
}

func (f *fakePayments) last() payment.CreateOrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeQuoter struct {
	mu     sync.Mutex
	quotes []carrier.Quote
	calls  []carrier.CalculateRequest
}

func (f *fakeQuoter) Calculate(_ context.Context, req carrier.CalculateRequest) ([]carrier.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.quotes, nil
}

type fakeCards struct {
	cards map[string]cardvault.Card
}

func (f *fakeCards) Take(_ context.Context, ref string) (cardvault.Card, error) {
	card, ok := f.cards[ref]
	if !ok {
		return cardvault.Card{}, pkgerrors.Validation("card", "expired")
	}
	delete(f.cards, ref)
	return card, nil
}

func pixCharge(req payment.CreateOrderRequest) (*payment.Order, error) {
	return &payment.Order{
		ID:          "ORDE_PIX",
		ReferenceID: req.ReferenceID,
		Charges: []payment.Charge{{
			ID:            "CHAR_PIX_" + req.ReferenceID,
			Status:        "WAITING",
			Amount:        req.Charges[0].Amount,
			PaymentMethod: payment.PaymentMethod{Type: "PIX"},
			Pix: &payment.Pix{QRCodes: []payment.QRCode{{
				Text:  "00020126580014br.gov.bcb.pix0136",
				Links: []payment.Link{{Href: "https://pay.example/qr.png"}},
			}}},
		}},
	}, nil
}

func cardCharge(status, message string) func(payment.CreateOrderRequest) (*payment.Order, error) {
	return func(req payment.CreateOrderRequest) (*payment.Order, error) {
		return &payment.Order{
			ID:          "ORDE_CARD",
			ReferenceID: req.ReferenceID,
			Charges: []payment.Charge{{
				ID:     "CHAR_CARD_" + req.ReferenceID,
				Status: status,
				Amount: req.Charges[0].Amount,
				PaymentMethod: payment.PaymentMethod{
					Type:         "CREDIT_CARD",
					Installments: req.Charges[0].PaymentMethod.Installments,
					Card:         &payment.Card{Brand: "visa", LastDigits: "1111"},
				},
				PaymentResponse: &payment.PaymentResponse{Code: "10002", Message: message},
			}},
		}, nil
	}
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	carts    *catalog.Repository
	store    *orders.Store
	outbox   *outbox.Repository
	payments *fakePayments
	quoter   *fakeQuoter
	cards    *fakeCards
	owner    catalog.Owner
}

func newHarness(t *testing.T, cfg config.CheckoutConfig) harness {
	t.Helper()
	client := dbtest.Open(t)
	codes, err := orders.NewCodeGenerator(1)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	store, err := orders.NewStore(orders.StoreParams{
		Repository: orders.NewRepository(client.DB()),
		Tx:         client,
		Outbox:     outbox.NewService(outboxRepo, nil),
		Codes:      codes,
	})
	require.NoError(t, err)

	h := harness{
		db:       client.DB(),
		carts:    catalog.NewRepository(client.DB()),
		store:    store,
		outbox:   outboxRepo,
		payments: &fakePayments{respond: pixCharge},
		quoter: &fakeQuoter{quotes: []carrier.Quote{
			{ID: 1, Name: "PAC", Price: decimal.RequireFromString("14.89"), DeliveryTime: 6, Company: carrier.Company{Name: "Correios"}},
			{ID: 2, Name: "SEDEX", Error: "service unavailable for route"},
		}},
		cards: &fakeCards{cards: map[string]cardvault.Card{}},
		owner: catalog.Owner{SessionID: "sess-" + uuid.NewString()},
	}
	svc, err := NewService(Params{
		Carts:    h.carts,
		Orders:   store,
		Payments: h.payments,
		Freight:  h.quoter,
		Cards:    h.cards,
		Checkout: cfg,
		Payment:  config.PaymentConfig{MaxInstallments: 6, BoletoDueDays: 3, SoftDescriptor: "ATELIE", NotificationURL: "https://atelie.example/webhook/payment"},
		Shop:     config.ShopConfig{OriginCEP: "01310100"},
		Shipping: config.ShippingConfig{DefaultItemWeight: 0.5, MinimumWeight: 0.3},
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func defaultConfig() config.CheckoutConfig {
	return config.CheckoutConfig{VerifyFreightQuote: true}
}

func (h harness) input(method enums.PaymentMethod) Input {
	return Input{
		Owner:     h.owner,
		Selection: types.ShippingSelection{ServiceID: 1, Price: decimal.RequireFromString("0.01")},
		ShipTo: types.ShippingSnapshot{
			RecipientName: "Maria Silva",
			Street:        "Rua Augusta",
			Number:        "1500",
			District:      "Consolação",
			City:          "São Paulo",
			State:         "SP",
			CEP:           "01304-001",
		},
		Fiscal:    types.FiscalSnapshot{Document: "529.982.247-25", LegalName: "Maria Silva"},
		Customer:  Customer{Name: "Maria Silva", Email: "maria@example.com", Phone: "(11) 98888-7777"},
		Method:    method,
		ClientIP:  "203.0.113.9",
		UserAgent: "test",
	}
}

func (h harness) seedCart(t *testing.T, price string, stock, qty int) models.ProductVariant {
	t.Helper()
	v := dbtest.SeedVariant(t, h.db, "SKU-"+uuid.NewString()[:8], price, stock)
	require.NoError(t, h.carts.AddItem(context.Background(), h.owner, v.ID, qty))
	return v
}

func (h harness) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func validationReason(t *testing.T, err error) string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code(), "unexpected error %v", err)
	details := typed.Details().(map[string]any)
	return details["field"].(string) + "/" + details["reason"].(string)
}

func TestHappyPixCheckout(t *testing.T) {
	h := newHarness(t, defaultConfig())
	v := h.seedCart(t, "100.00", 5, 1)

	res, err := h.svc.Execute(context.Background(), h.input(enums.PaymentMethodPix))
	require.NoError(t, err)

	assert.True(t, res.Total.Equal(decimal.RequireFromString("114.89")), "total %s", res.Total)
	assert.Equal(t, enums.PublicStatusPending, res.Status)
	assert.Equal(t, "PIX", res.Payment.Type)
	assert.NotEmpty(t, res.Payment.QRText)
	assert.Equal(t, "https://pay.example/qr.png", res.Payment.QRLink)
	assert.NotEmpty(t, res.PublicToken)

	order, err := h.store.GetByCode(context.Background(), res.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, order.Status)
	assert.True(t, order.ShippingAmount.Equal(decimal.RequireFromString("14.89")), "client freight price must be replaced")
	assert.Equal(t, "PAC", order.ShippingSelection.ServiceName)
	assert.Equal(t, "01310100", order.ShippingSelection.OriginCEP)
	assert.Equal(t, "01304001", order.ShipTo.CEP)
	assert.Equal(t, "52998224725", order.Fiscal.Document)
	assert.Equal(t, 4, dbtest.Stock(t, h.db, v.ID))

	view, err := h.store.GetByPublicToken(context.Background(), res.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, order.ID, view.Order.ID)
	assert.Equal(t, enums.PublicStatusPending, view.PublicStatus)

	cart, err := h.carts.Cart(context.Background(), h.owner)
	require.NoError(t, err)
	assert.Empty(t, cart)

	req := h.payments.last()
	assert.Equal(t, []string{res.OrderCode}, h.payments.keys, "order code is the idempotency key")
	assert.Equal(t, int64(11489), req.Charges[0].Amount.Value)
	assert.Equal(t, "PIX", req.Charges[0].PaymentMethod.Type)
	assert.NotNil(t, req.Charges[0].PaymentMethod.Pix)
	assert.Equal(t, "52998224725", req.Customer.TaxID)
	require.Len(t, req.Customer.Phones, 1)
	assert.Equal(t, "11", req.Customer.Phones[0].Area)
	assert.Equal(t, []string{"https://atelie.example/webhook/payment"}, req.NotificationURLs)

	require.Len(t, h.quoter.calls, 1)
	assert.Equal(t, "1", h.quoter.calls[0].Services)
	assert.Equal(t, "01304001", h.quoter.calls[0].To.PostalCode)
}

func TestApprovedCardCheckout(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.seedCart(t, "79.90", 3, 2)
	h.payments.respond = cardCharge("PAID", "")

	in := h.input(enums.PaymentMethodCreditCard)
	in.Card = &CardInput{Token: "enc-card", CVV: "123", HolderName: "MARIA SILVA", Installments: 3}
	res, err := h.svc.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, enums.PublicStatusApproved, res.Status)
	require.NotNil(t, res.Payment.Approved)
	assert.True(t, *res.Payment.Approved)
	assert.Equal(t, 3, res.Payment.Installments)

	order, err := h.store.GetByCode(context.Background(), res.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessingShipment, order.Status)

	events, err := h.outbox.ListForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	kinds := map[enums.ActionKind]bool{}
	for _, e := range events {
		kinds[e.Kind] = true
	}
	assert.True(t, kinds[enums.ActionCreateLabel])
	assert.True(t, kinds[enums.ActionEmitFiscalDocument])
	assert.True(t, kinds[enums.ActionPushOrder])

	card := h.payments.last().Charges[0].PaymentMethod
	require.NotNil(t, card.Card)
	assert.Equal(t, "enc-card", card.Card.Encrypted)
	assert.Equal(t, "123", card.Card.SecurityCode)
	assert.Equal(t, 3, card.Installments)
}

func TestDeclinedCardCancelsAndRestocks(t *testing.T) {
	h := newHarness(t, defaultConfig())
	v := h.seedCart(t, "50.00", 2, 2)
	h.payments.respond = cardCharge("DECLINED", "insufficient funds")

	in := h.input(enums.PaymentMethodCreditCard)
	in.Card = &CardInput{Token: "enc-card", CVV: "321"}
	res, err := h.svc.Execute(context.Background(), in)
	require.Nil(t, res)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentDeclined), "got %v", err)

	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, "insufficient funds", details["reason"])
	code := details["order_code"].(string)

	order, err := h.store.GetByCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelledBySeller, order.Status)
	assert.Equal(t, 2, dbtest.Stock(t, h.db, v.ID))

	events, err := h.outbox.ListForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, events, "a declined order must not queue a label")

	cart, err := h.carts.Cart(context.Background(), h.owner)
	require.NoError(t, err)
	assert.Len(t, cart, 1, "cart is kept so the buyer can retry")
}

func TestCardFromVaultIsSingleUse(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.seedCart(t, "40.00", 10, 1)
	h.payments.respond = cardCharge("AUTHORIZED", "")
	h.cards.cards["ref-1"] = cardvault.Card{Encrypted: "vaulted", HolderName: "Maria"}

	in := h.input(enums.PaymentMethodCreditCard)
	in.Card = &CardInput{CardRef: "ref-1", CVV: "999"}
	_, err := h.svc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "vaulted", h.payments.last().Charges[0].PaymentMethod.Card.Encrypted)
	assert.Equal(t, "999", h.payments.last().Charges[0].PaymentMethod.Card.SecurityCode)

	h.seedCart(t, "40.00", 10, 1)
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "card/expired", validationReason(t, err))
	assert.Equal(t, int64(1), h.orderCount(t), "an expired card must not reserve stock")
}

func TestEmptyChargesDiscardsOrder(t *testing.T) {
	h := newHarness(t, defaultConfig())
	v := h.seedCart(t, "100.00", 1, 1)
	h.payments.respond = func(req payment.CreateOrderRequest) (*payment.Order, error) {
		return &payment.Order{ID: "ORDE_EMPTY", ReferenceID: req.ReferenceID}, nil
	}

	_, err := h.svc.Execute(context.Background(), h.input(enums.PaymentMethodPix))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable), "got %v", err)
	assert.Equal(t, int64(0), h.orderCount(t))
	assert.Equal(t, 1, dbtest.Stock(t, h.db, v.ID))
}

func TestPendingChargeWithoutInstructionsDiscardsOrder(t *testing.T) {
	cases := []struct {
		name   string
		method enums.PaymentMethod
		charge payment.Charge
	}{
		{"pix without qr code", enums.PaymentMethodPix, payment.Charge{
			ID: "CHAR_PIX", Status: "WAITING", PaymentMethod: payment.PaymentMethod{Type: "PIX"},
		}},
		{"boleto without barcode", enums.PaymentMethodBoleto, payment.Charge{
			ID: "CHAR_BOL", Status: "WAITING", PaymentMethod: payment.PaymentMethod{Type: "BOLETO"},
			Boleto: &payment.BoletoResult{DueDate: "2026-10-22"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultConfig())
			v := h.seedCart(t, "100.00", 3, 1)
			h.payments.respond = func(req payment.CreateOrderRequest) (*payment.Order, error) {
				return &payment.Order{ID: "ORDE_BARE", ReferenceID: req.ReferenceID, Charges: []payment.Charge{tc.charge}}, nil
			}

			res, err := h.svc.Execute(context.Background(), h.input(tc.method))
			require.Nil(t, res)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayUnavailable), "got %v", err)
			assert.Equal(t, int64(0), h.orderCount(t))
			assert.Equal(t, 3, dbtest.Stock(t, h.db, v.ID))

			cart, err := h.carts.Cart(context.Background(), h.owner)
			require.NoError(t, err)
			assert.Len(t, cart, 1)
		})
	}
}

func TestVaultedCardSurvivesStockShortage(t *testing.T) {
	h := newHarness(t, defaultConfig())
	v := h.seedCart(t, "40.00", 5, 1)
	require.NoError(t, h.db.Model(&models.ProductVariant{}).Where("id = ?", v.ID).Update("stock", 0).Error)
	h.cards.cards["ref-keep"] = cardvault.Card{Encrypted: "vaulted"}

	in := h.input(enums.PaymentMethodCreditCard)
	in.Card = &CardInput{CardRef: "ref-keep", CVV: "111"}
	_, err := h.svc.Execute(context.Background(), in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)

	_, kept := h.cards.cards["ref-keep"]
	assert.True(t, kept, "card ref must stay usable after a failed reservation")
	assert.Empty(t, h.payments.requests)
}

func TestGatewayErrorsAreTranslated(t *testing.T) {
	cases := []struct {
		name string
		kind gateway.Kind
		want pkgerrors.Code
	}{
		{"bad request declines", gateway.KindBadRequest, pkgerrors.CodePaymentDeclined},
		{"timeout is unavailable", gateway.KindTimeout, pkgerrors.CodeGatewayUnavailable},
		{"5xx is unavailable", gateway.KindGatewayError, pkgerrors.CodeGatewayUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, defaultConfig())
			v := h.seedCart(t, "30.00", 4, 2)
			h.payments.respond = func(payment.CreateOrderRequest) (*payment.Order, error) {
				return nil, &gateway.Error{Name: "payment", Op: "create_order", Kind: tc.kind, Status: 400}
			}
			_, err := h.svc.Execute(context.Background(), h.input(enums.PaymentMethodBoleto))
			require.True(t, pkgerrors.IsCode(err, tc.want), "got %v", err)
			assert.Equal(t, int64(0), h.orderCount(t))
			assert.Equal(t, 4, dbtest.Stock(t, h.db, v.ID))
		})
	}
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness(t, defaultConfig())

	_, err := h.svc.Execute(context.Background(), h.input(enums.PaymentMethodPix))
	assert.Equal(t, "cart/empty", validationReason(t, err))

	h.seedCart(t, "100.00", 5, 1)

	in := h.input(enums.PaymentMethodPix)
	in.Fiscal.Document = "529.982.247-24"
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "fiscal/cpf", validationReason(t, err))

	in = h.input(enums.PaymentMethodPix)
	in.ShipTo.CEP = "0130400"
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "address/cep", validationReason(t, err))

	in = h.input(enums.PaymentMethodPix)
	in.Customer.Email = "maria"
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "customer/email", validationReason(t, err))

	in = h.input(enums.PaymentMethodPix)
	in.Selection.ServiceID = 2
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "shipping/service", validationReason(t, err))

	in = h.input(enums.PaymentMethodCreditCard)
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "card/required", validationReason(t, err))

	in = h.input(enums.PaymentMethodCreditCard)
	in.Card = &CardInput{Token: "enc", Installments: 12}
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "card/installments", validationReason(t, err))

	in = h.input(enums.PaymentMethod("cash"))
	_, err = h.svc.Execute(context.Background(), in)
	assert.Equal(t, "payment/method", validationReason(t, err))

	assert.Equal(t, int64(0), h.orderCount(t))
	assert.Empty(t, h.payments.requests)
}

func TestPixDiscountWithoutRequote(t *testing.T) {
	h := newHarness(t, config.CheckoutConfig{PixDiscountPercent: 5})
	h.seedCart(t, "100.00", 5, 2)

	in := h.input(enums.PaymentMethodPix)
	in.Selection.Price = decimal.RequireFromString("20.00")
	res, err := h.svc.Execute(context.Background(), in)
	require.NoError(t, err)

	order, err := h.store.GetByCode(context.Background(), res.OrderCode)
	require.NoError(t, err)
	assert.True(t, order.Discount.Equal(decimal.RequireFromString("10.00")), "discount %s", order.Discount)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("210.00")), "total %s", order.Total)
	assert.Empty(t, h.quoter.calls)
}

func TestConcurrentCheckoutOnLastUnit(t *testing.T) {
	h := newHarness(t, defaultConfig())
	v := dbtest.SeedVariant(t, h.db, "SKU-LAST", "100.00", 1)

	owners := []catalog.Owner{{SessionID: "buyer-a"}, {SessionID: "buyer-b"}}
	for _, o := range owners {
		require.NoError(t, h.carts.AddItem(context.Background(), o, v.ID, 1))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(owners))
	for i, o := range owners {
		wg.Add(1)
		go func(i int, o catalog.Owner) {
			defer wg.Done()
			in := h.input(enums.PaymentMethodPix)
			in.Owner = o
			_, errs[i] = h.svc.Execute(context.Background(), in)
		}(i, o)
	}
	wg.Wait()

	ok, short := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, int64(1), h.orderCount(t))
	assert.Equal(t, 0, dbtest.Stock(t, h.db, v.ID))
}
