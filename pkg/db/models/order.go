package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
	"github.com/angelmondragon/atelie-backend/pkg/types"
)

// Order is the aggregate root for a buyer's purchase.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Code              string                  `gorm:"column:code;not null;uniqueIndex:ux_orders_code"`
	UserID            *uuid.UUID              `gorm:"column:user_id;type:uuid;index"`
	SessionID         *string                 `gorm:"column:session_id"`
	Status            enums.OrderStatus       `gorm:"column:status;not null"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	Subtotal          decimal.Decimal         `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingAmount    decimal.Decimal         `gorm:"column:shipping_amount;type:numeric(12,2);not null"`
	Discount          decimal.Decimal         `gorm:"column:discount;type:numeric(12,2);not null"`
	Total             decimal.Decimal         `gorm:"column:total;type:numeric(12,2);not null"`
	ShipTo            types.ShippingSnapshot  `gorm:"column:ship_to;type:jsonb;serializer:json;not null"`
	Fiscal            types.FiscalSnapshot    `gorm:"column:fiscal;type:jsonb;serializer:json;not null"`
	ShippingSelection types.ShippingSelection `gorm:"column:shipping_selection;type:jsonb;serializer:json;not null"`
	ClientIP          string                  `gorm:"column:client_ip"`
	UserAgent         string                  `gorm:"column:user_agent"`
	AdminNotes        *string                 `gorm:"column:admin_notes"`
	Items             []OrderItem             `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveryEstimate  *time.Time              `gorm:"column:delivery_estimate"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots a cart line at the moment of sale. Immutable.
type OrderItem struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	VariantID   uuid.UUID         `gorm:"column:variant_id;type:uuid;not null"`
	Quantity    int               `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal    decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ProductName string            `gorm:"column:product_name;not null"`
	SKU         string            `gorm:"column:sku;not null"`
	NCM         string            `gorm:"column:ncm"`
	WeightKG    *float64          `gorm:"column:weight_kg"`
	Details     types.ItemDetails `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// PublicToken lets an anonymous buyer follow an order. A cleared token keeps
// its row for audit but no longer resolves.
type PublicToken struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_public_tokens_order"`
	Token     *string            `gorm:"column:token;uniqueIndex:ux_public_tokens_token"`
	Status    enums.PublicStatus `gorm:"column:status;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	ClearedAt *time.Time         `gorm:"column:cleared_at"`
}

func (PublicToken) TableName() string { return "public_tokens" }

func (p *PublicToken) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
