package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingSnapshot is the ship-to address copied into the order at checkout.
type ShippingSnapshot struct {
	RecipientName string `json:"recipient_name" validate:"required"`
	Street        string `json:"street" validate:"required"`
	Number        string `json:"number" validate:"required"`
	Complement    string `json:"complement,omitempty"`
	District      string `json:"district"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required,len=2"`
	CEP           string `json:"cep" validate:"required"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// FiscalSnapshot carries the buyer identity printed on the invoice.
type FiscalSnapshot struct {
	Document          string        `json:"document" validate:"required"`
	LegalName         string        `json:"legal_name" validate:"required"`
	StateRegistration string        `json:"state_registration,omitempty"`
	Address           FiscalAddress `json:"address"`
}

// IsCompany reports whether the document is a CNPJ (14 digits).
func (f FiscalSnapshot) IsCompany() bool {
	return len(digitsOnly(f.Document)) == 14
}

// DocumentDigits returns the document without punctuation.
func (f FiscalSnapshot) DocumentDigits() string {
	return digitsOnly(f.Document)
}

type FiscalAddress struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	CEP        string `json:"cep"`
}

// IsZero reports whether no fiscal address was supplied.
func (a FiscalAddress) IsZero() bool {
	return a == FiscalAddress{}
}

// FiscalAddressFromShipping copies a ship-to address into the fiscal address shape.
func FiscalAddressFromShipping(s ShippingSnapshot) FiscalAddress {
	return FiscalAddress{
		Street:     s.Street,
		Number:     s.Number,
		Complement: s.Complement,
		District:   s.District,
		City:       s.City,
		State:      s.State,
		CEP:        s.CEP,
	}
}

// ShippingSelection is the freight option the buyer picked.
type ShippingSelection struct {
	ServiceID      int             `json:"service_id" validate:"required,gt=0"`
	ServiceName    string          `json:"service_name,omitempty"`
	CarrierCompany string          `json:"carrier_company,omitempty"`
	Price          decimal.Decimal `json:"price"`
	EstimateDays   int             `json:"estimate_days,omitempty"`
	OriginCEP      string          `json:"origin_cep,omitempty"`
}

// ItemDetails is the structured product snapshot stored on each order item.
type ItemDetails struct {
	Category string `json:"category,omitempty"`
	Print    string `json:"print,omitempty"`
	Size     string `json:"size,omitempty"`
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
