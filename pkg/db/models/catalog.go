package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductVariant is a sellable size/print combination with its own stock.
type ProductVariant struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ProductName string          `gorm:"column:product_name;not null"`
	SKU         string          `gorm:"column:sku;not null"`
	Category    string          `gorm:"column:category"`
	Print       string          `gorm:"column:print"`
	Size        string          `gorm:"column:size"`
	NCM         string          `gorm:"column:ncm"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock       int             `gorm:"column:stock;not null;default:0"`
	WeightKG    *float64        `gorm:"column:weight_kg"`
	Active      bool            `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductVariant) TableName() string { return "products" }

func (p *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// CartItem is one line of a cart owned by a user or an anonymous session.
type CartItem struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID     `gorm:"column:user_id;type:uuid;index"`
	SessionID *string        `gorm:"column:session_id;index"`
	VariantID uuid.UUID      `gorm:"column:variant_id;type:uuid;not null"`
	Quantity  int            `gorm:"column:quantity;not null"`
	Variant   ProductVariant `gorm:"foreignKey:VariantID;references:ID"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (CartItem) TableName() string { return "cart_items" }

func (c *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
