package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// Payment mirrors a gateway charge for an order.
type Payment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	TransactionID  *string             `gorm:"column:transaction_id;uniqueIndex:ux_payments_transaction"`
	GatewayOrderID *string             `gorm:"column:gateway_order_id"`
	Method         enums.PaymentMethod `gorm:"column:method;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;not null"`
	GatewayStatus  string              `gorm:"column:gateway_status"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	CardBrand      *string             `gorm:"column:card_brand"`
	Installments   *int                `gorm:"column:installments"`
	PixQRText      *string             `gorm:"column:pix_qr_text"`
	PixQRLink      *string             `gorm:"column:pix_qr_link"`
	BoletoBarcode  *string             `gorm:"column:boleto_barcode"`
	BoletoLink     *string             `gorm:"column:boleto_link"`
	BoletoDueDate  *time.Time          `gorm:"column:boleto_due_date"`
	DeclineReason  *string             `gorm:"column:decline_reason"`
	RawHistory     datatypes.JSON      `gorm:"column:raw_history;type:jsonb;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if len(p.RawHistory) == 0 {
		p.RawHistory = datatypes.JSON("[]")
	}
	return nil
}

// PaymentEnvelope is one entry of the append-only raw history.
type PaymentEnvelope struct {
	ReceivedAt time.Time      `json:"received_at"`
	Source     string         `json:"source"`
	SHA256     string         `json:"sha256"`
	Payload    datatypes.JSON `json:"payload"`
}
