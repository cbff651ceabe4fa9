package checkout

import (
	"strings"

	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	"github.com/angelmondragon/atelie-backend/pkg/brdoc"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
	"github.com/angelmondragon/atelie-backend/pkg/gateway"
	"github.com/angelmondragon/atelie-backend/pkg/gateway/payment"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

const (
	currencyBRL   = "BRL"
	countryBrazil = "BRA"
)

// buildPaymentRequest builds the gateway order with its single charge. The
// amount is always the persisted order total.
func (s *Service) buildPaymentRequest(order *models.Order, in Input, card *cardvault.Card, installments int) payment.CreateOrderRequest {
	name := strings.TrimSpace(in.Customer.Name)
	if name == "" {
		name = order.Fiscal.LegalName
	}
	customer := payment.Customer{
		Name:  name,
		Email: strings.TrimSpace(in.Customer.Email),
		TaxID: order.Fiscal.DocumentDigits(),
	}
	if phone, ok := splitPhone(in.Customer.Phone); ok {
		customer.Phones = []payment.Phone{phone}
	}

	items := make([]payment.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payment.Item{
			ReferenceID: item.SKU,
			Name:        item.ProductName,
			Quantity:    item.Quantity,
			UnitAmount:  gateway.Cents(item.UnitPrice),
		})
	}

	address := gatewayAddress(order.ShipTo)
	charge := payment.Charge{
		ReferenceID: order.Code,
		Description: "Pedido " + order.Code,
		Amount:      payment.Amount{Value: gateway.Cents(order.Total), Currency: currencyBRL},
		PaymentMethod: payment.PaymentMethod{
			Type: in.Method.GatewayType(),
		},
	}

	now := s.now()
	switch in.Method {
	case enums.PaymentMethodPix:
		charge.PaymentMethod.Pix = &payment.PixMethod{
			ExpirationDate: now.Add(s.payCfg.PixExpiry).Format("2006-01-02T15:04:05-07:00"),
		}
	case enums.PaymentMethodBoleto:
		days := s.payCfg.BoletoDueDays
		if days <= 0 {
			days = 3
		}
		charge.PaymentMethod.Boleto = &payment.BoletoMethod{
			DueDate: now.AddDate(0, 0, days).Format("2006-01-02"),
			InstructionLines: &payment.Instruction{
				Line1: "Pagamento do pedido " + order.Code,
				Line2: "Não receber após o vencimento",
			},
			Holder: payment.BoletoHolder{
				Name:    order.Fiscal.LegalName,
				TaxID:   order.Fiscal.DocumentDigits(),
				Email:   customer.Email,
				Address: address,
			},
		}
	case enums.PaymentMethodCreditCard:
		capture := true
		charge.PaymentMethod.Installments = installments
		charge.PaymentMethod.Capture = &capture
		charge.PaymentMethod.SoftDescriptor = s.payCfg.SoftDescriptor
		if card != nil {
			holder := card.HolderName
			if holder == "" {
				holder = name
			}
			charge.PaymentMethod.Card = &payment.Card{
				Encrypted:    card.Encrypted,
				SecurityCode: card.CVV,
				Holder:       &payment.CardHolder{Name: holder, TaxID: order.Fiscal.DocumentDigits()},
			}
		}
	}

	req := payment.CreateOrderRequest{
		ReferenceID: order.Code,
		Customer:    customer,
		Items:       items,
		Shipping:    &payment.Shipping{Address: address},
		Charges:     []payment.Charge{charge},
	}
	if url := strings.TrimSpace(s.payCfg.NotificationURL); url != "" {
		req.NotificationURLs = []string{url}
	}
	return req
}

func gatewayAddress(addr types.ShippingSnapshot) payment.Address {
	return payment.Address{
		Street:     addr.Street,
		Number:     addr.Number,
		Complement: addr.Complement,
		Locality:   addr.District,
		City:       addr.City,
		RegionCode: addr.State,
		Country:    countryBrazil,
		PostalCode: addr.CEP,
	}
}

// splitPhone turns "(41) 99999-0000" into area and number. Numbers without
// an area code are dropped.
func splitPhone(raw string) (payment.Phone, bool) {
	digits := brdoc.Digits(raw)
	digits = strings.TrimPrefix(digits, "55")
	if len(digits) < 10 || len(digits) > 11 {
		return payment.Phone{}, false
	}
	return payment.Phone{
		Country: "55",
		Area:    digits[:2],
		Number:  digits[2:],
		Type:    "MOBILE",
	}, true
}
