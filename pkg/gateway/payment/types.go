package payment

import (
	"strings"
	"time"
)

// CreateOrderRequest is the gateway order with a single charge.
type CreateOrderRequest struct {
	ReferenceID      string    `json:"reference_id"`
	Customer         Customer  `json:"customer"`
	Items            []Item    `json:"items"`
	Shipping         *Shipping `json:"shipping,omitempty"`
	Charges          []Charge  `json:"charges"`
	NotificationURLs []string  `json:"notification_urls,omitempty"`
}

type Customer struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	TaxID  string  `json:"tax_id"`
	Phones []Phone `json:"phones,omitempty"`
}

type Phone struct {
	Country string `json:"country"`
	Area    string `json:"area"`
	Number  string `json:"number"`
	Type    string `json:"type"`
}

type Item struct {
	ReferenceID string `json:"reference_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"`
}

type Shipping struct {
	Address Address `json:"address"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	Locality   string `json:"locality"`
	City       string `json:"city"`
	RegionCode string `json:"region_code"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency,omitempty"`
}

// Charge is used both in requests and responses; response-only fields are
// left empty on the way out.
type Charge struct {
	ID              string           `json:"id,omitempty"`
	ReferenceID     string           `json:"reference_id,omitempty"`
	Description     string           `json:"description,omitempty"`
	Status          string           `json:"status,omitempty"`
	Amount          Amount           `json:"amount"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	PaymentResponse *PaymentResponse `json:"payment_response,omitempty"`
	Pix             *Pix             `json:"pix,omitempty"`
	Boleto          *BoletoResult    `json:"boleto,omitempty"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
}

type PaymentMethod struct {
	Type           string        `json:"type"`
	Installments   int           `json:"installments,omitempty"`
	Capture        *bool         `json:"capture,omitempty"`
	SoftDescriptor string        `json:"soft_descriptor,omitempty"`
	Card           *Card         `json:"card,omitempty"`
	Boleto         *BoletoMethod `json:"boleto,omitempty"`
	Pix            *PixMethod    `json:"pix,omitempty"`
}

type Card struct {
	Encrypted    string      `json:"encrypted,omitempty"`
	SecurityCode string      `json:"security_code,omitempty"`
	Holder       *CardHolder `json:"holder,omitempty"`
	Store        bool        `json:"store"`
	Brand        string      `json:"brand,omitempty"`
	FirstDigits  string      `json:"first_digits,omitempty"`
	LastDigits   string      `json:"last_digits,omitempty"`
}

type CardHolder struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id,omitempty"`
}

type BoletoMethod struct {
	DueDate          string       `json:"due_date"`
	InstructionLines *Instruction `json:"instruction_lines,omitempty"`
	Holder           BoletoHolder `json:"holder"`
}

type Instruction struct {
	Line1 string `json:"line_1"`
	Line2 string `json:"line_2,omitempty"`
}

type BoletoHolder struct {
	Name    string  `json:"name"`
	TaxID   string  `json:"tax_id"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

type PixMethod struct {
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type PaymentResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reference string `json:"reference,omitempty"`
}

type Link struct {
	Rel   string `json:"rel,omitempty"`
	Href  string `json:"href"`
	Media string `json:"media,omitempty"`
}

type Pix struct {
	QRCodes []QRCode `json:"qr_codes"`
}

type QRCode struct {
	ID    string `json:"id,omitempty"`
	Text  string `json:"text"`
	Links []Link `json:"links,omitempty"`
}

type BoletoResult struct {
	ID      string  `json:"id,omitempty"`
	Barcode Barcode `json:"barcode"`
	DueDate string  `json:"due_date"`
	Links   []Link  `json:"links,omitempty"`
}

type Barcode struct {
	Content string `json:"content"`
}

// Order is the gateway's answer to create/get order.
type Order struct {
	ID          string   `json:"id"`
	ReferenceID string   `json:"reference_id"`
	Charges     []Charge `json:"charges"`
}

// FirstCharge returns the charge the checkout created. ok is false when the
// gateway answered without charges or with an unparseable first charge.
func (o *Order) FirstCharge() (Charge, bool) {
	if o == nil || len(o.Charges) == 0 {
		return Charge{}, false
	}
	c := o.Charges[0]
	if strings.TrimSpace(c.Status) == "" || strings.TrimSpace(c.PaymentMethod.Type) == "" {
		return Charge{}, false
	}
	return c, true
}

// QRText returns the first PIX copy-and-paste payload.
func (c Charge) QRText() string {
	if c.Pix == nil {
		return ""
	}
	for _, qr := range c.Pix.QRCodes {
		if qr.Text != "" {
			return qr.Text
		}
	}
	return ""
}

// QRLink returns the first PIX QR image link.
func (c Charge) QRLink() string {
	if c.Pix == nil {
		return ""
	}
	for _, qr := range c.Pix.QRCodes {
		for _, l := range qr.Links {
			if l.Href != "" {
				return l.Href
			}
		}
	}
	return ""
}

// BoletoLink prefers the PDF link when several are present.
func (c Charge) BoletoLink() string {
	if c.Boleto == nil {
		return ""
	}
	first := ""
	for _, l := range c.Boleto.Links {
		if l.Href == "" {
			continue
		}
		if strings.EqualFold(l.Media, "application/pdf") {
			return l.Href
		}
		if first == "" {
			first = l.Href
		}
	}
	return first
}

// BoletoDueDate parses the YYYY-MM-DD due date.
func (c Charge) BoletoDueDate() (time.Time, bool) {
	if c.Boleto == nil || c.Boleto.DueDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", c.Boleto.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DeclineMessage returns the acquirer's message, if any.
func (c Charge) DeclineMessage() string {
	if c.PaymentResponse == nil {
		return ""
	}
	if c.PaymentResponse.Message != "" {
		return c.PaymentResponse.Message
	}
	return c.PaymentResponse.Code
}
