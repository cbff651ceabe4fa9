// Package dbtest opens throwaway sqlite databases with the full schema for
// package tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
)

// Models lists every table the services touch.
func Models() []any {
	return []any{
		&models.ProductVariant{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PublicToken{},
		&models.ShippingLabel{},
		&models.FiscalDocument{},
		&models.ERPToken{},
		&models.ERPProductLink{},
		&models.ERPContactLink{},
		&models.ERPOrderLink{},
		&models.ERPSituation{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns a client over a fresh in-memory database. The pool is capped
// at one connection so concurrent transactions serialize instead of failing
// with sqlite table locks.
func Open(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:atelie_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db.Wrap(conn)
}

// SeedVariant inserts an active product variant with the given price and stock.
func SeedVariant(t *testing.T, conn *gorm.DB, sku, price string, stock int) models.ProductVariant {
	t.Helper()
	weight := 0.4
	v := models.ProductVariant{
		ProductName: "Camiseta " + sku,
		SKU:         sku,
		Category:    "camisetas",
		Print:       "floral",
		Size:        "M",
		NCM:         "61091000",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		WeightKG:    &weight,
		Active:      true,
	}
	if err := conn.Create(&v).Error; err != nil {
		t.Fatalf("seed variant %s: %v", sku, err)
	}
	return v
}

// Stock reads the current stock of a variant.
func Stock(t *testing.T, conn *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var v models.ProductVariant
	if err := conn.Where("id = ?", id).First(&v).Error; err != nil {
		t.Fatalf("load variant %s: %v", id, err)
	}
	return v.Stock
}
