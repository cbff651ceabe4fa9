package carrier

import "github.com/shopspring/decimal"

type PostalRef struct {
	PostalCode string `json:"postal_code"`
}

type Package struct {
	Height int     `json:"height"`
	Width  int     `json:"width"`
	Length int     `json:"length"`
	Weight float64 `json:"weight"`
}

type Options struct {
	InsuranceValue float64 `json:"insurance_value"`
	Receipt        bool    `json:"receipt"`
	OwnHand        bool    `json:"own_hand"`
}

type CalculateRequest struct {
	From     PostalRef `json:"from"`
	To       PostalRef `json:"to"`
	Package  Package   `json:"package"`
	Options  Options   `json:"options"`
	Services string    `json:"services,omitempty"`
}

type Company struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// Quote is one service offer. Error is set when the service cannot serve the
// route; such quotes carry no price.
type Quote struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DeliveryTime int             `json:"delivery_time"`
	Company      Company         `json:"company"`
	Error        string          `json:"error,omitempty"`
}

type Party struct {
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
	Document        string `json:"document,omitempty"`
	CompanyDocument string `json:"company_document,omitempty"`
	StateRegister   string `json:"state_register,omitempty"`
	Address         string `json:"address"`
	Complement      string `json:"complement,omitempty"`
	Number          string `json:"number"`
	District        string `json:"district"`
	City            string `json:"city"`
	StateAbbr       string `json:"state_abbr"`
	CountryID       string `json:"country_id"`
	PostalCode      string `json:"postal_code"`
}

type Product struct {
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitaryValue float64 `json:"unitary_value"`
}

type Volume struct {
	Height int     `json:"height"`
	Width  int     `json:"width"`
	Length int     `json:"length"`
	Weight float64 `json:"weight"`
}

type Invoice struct {
	Key string `json:"key"`
}

type Tag struct {
	Tag string `json:"tag"`
	URL string `json:"url,omitempty"`
}

type ShipmentOptions struct {
	InsuranceValue float64  `json:"insurance_value"`
	Receipt        bool     `json:"receipt"`
	OwnHand        bool     `json:"own_hand"`
	Reverse        bool     `json:"reverse"`
	NonCommercial  bool     `json:"non_commercial"`
	Invoice        *Invoice `json:"invoice,omitempty"`
	Platform       string   `json:"platform,omitempty"`
	Tags           []Tag    `json:"tags,omitempty"`
}

type CreateShipmentRequest struct {
	Service  int             `json:"service"`
	From     Party           `json:"from"`
	To       Party           `json:"to"`
	Products []Product       `json:"products"`
	Volumes  []Volume        `json:"volumes"`
	Options  ShipmentOptions `json:"options"`
}

type Shipment struct {
	ID        string          `json:"id"`
	Protocol  string          `json:"protocol"`
	Status    string          `json:"status"`
	ServiceID int             `json:"service_id"`
	Price     decimal.Decimal `json:"price"`
}

type ordersRequest struct {
	Orders []string `json:"orders"`
	Mode   string   `json:"mode,omitempty"`
}

// Purchase is the result of paying for shipments at the carrier.
type Purchase struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Total  decimal.Decimal `json:"total"`
}

// Tracking is the carrier's latest view of a shipment.
type Tracking struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	Tracking    *string `json:"tracking"`
	TrackingURL *string `json:"melhorenvio_tracking"`
	PostedAt    *string `json:"posted_at"`
	DeliveredAt *string `json:"delivered_at"`
	CanceledAt  *string `json:"canceled_at"`
}

type cancelRequest struct {
	Order cancelOrder `json:"order"`
}

type cancelOrder struct {
	ID          string `json:"id"`
	ReasonID    string `json:"reason_id"`
	Description string `json:"description"`
}
