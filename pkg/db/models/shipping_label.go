package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// ShippingLabel mirrors a carrier shipment created for an order.
type ShippingLabel struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ShipmentID     string            `gorm:"column:shipment_id;not null"`
	Protocol       string            `gorm:"column:protocol"`
	ServiceID      int               `gorm:"column:service_id;not null"`
	ServiceName    string            `gorm:"column:service_name"`
	Status         enums.LabelStatus `gorm:"column:status;not null"`
	CarrierCompany string            `gorm:"column:carrier_company"`
	OriginCEP      string            `gorm:"column:origin_cep;not null"`
	DestinationCEP string            `gorm:"column:destination_cep;not null"`
	WeightKG       float64           `gorm:"column:weight_kg;not null"`
	Freight        decimal.Decimal   `gorm:"column:freight;type:numeric(12,2);not null"`
	HeightCM       int               `gorm:"column:height_cm;not null"`
	WidthCM        int               `gorm:"column:width_cm;not null"`
	LengthCM       int               `gorm:"column:length_cm;not null"`
	TrackingCode   *string           `gorm:"column:tracking_code"`
	TrackingURL    *string           `gorm:"column:tracking_url"`
	PrintURL       *string           `gorm:"column:print_url"`
	RawPayload     datatypes.JSON    `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt         *time.Time        `gorm:"column:paid_at"`
	PrintedAt      *time.Time        `gorm:"column:printed_at"`
	PostedAt       *time.Time        `gorm:"column:posted_at"`
	DeliveredAt    *time.Time        `gorm:"column:delivered_at"`
	CancelledAt    *time.Time        `gorm:"column:cancelled_at"`
}

func (ShippingLabel) TableName() string { return "shipping_labels" }

func (l *ShippingLabel) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// FiscalDocument mirrors the NF-e the ERP emits for an order.
type FiscalDocument struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_fiscal_documents_order"`
	ERPDocumentID *int64                     `gorm:"column:erp_document_id;index"`
	Number        *string                    `gorm:"column:number"`
	Series        *string                    `gorm:"column:series"`
	AccessKey     *string                    `gorm:"column:access_key"`
	Status        enums.FiscalDocumentStatus `gorm:"column:status;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	Envelope      datatypes.JSON             `gorm:"column:envelope;type:jsonb"`
	EmittedAt     *time.Time                 `gorm:"column:emitted_at"`
	CancelledAt   *time.Time                 `gorm:"column:cancelled_at"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (FiscalDocument) TableName() string { return "fiscal_documents" }

func (f *FiscalDocument) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}
