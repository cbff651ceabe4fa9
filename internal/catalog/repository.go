// Package catalog is the narrow read interface over products and carts the
// order core consumes. Catalog and cart CRUD live elsewhere.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
)

// Owner identifies a cart: a signed-in user or an anonymous session.
type Owner struct {
	UserID    *uuid.UUID
	SessionID string
}

// ErrNoOwner is returned when neither a user nor a session is known.
var ErrNoOwner = errors.New("cart owner required")

func (o Owner) Valid() bool {
	return o.UserID != nil || strings.TrimSpace(o.SessionID) != ""
}

// Key renders the owner for logs and idempotency keys.
func (o Owner) Key() string {
	if o.UserID != nil {
		return "user:" + o.UserID.String()
	}
	return "session:" + o.SessionID
}

func (o Owner) scope(db *gorm.DB) *gorm.DB {
	if o.UserID != nil {
		return db.Where("user_id = ?", *o.UserID)
	}
	return db.Where("session_id = ?", o.SessionID)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Cart loads the owner's lines with their current variant rows.
func (r *Repository) Cart(ctx context.Context, owner Owner) ([]models.CartItem, error) {
	if !owner.Valid() {
		return nil, ErrNoOwner
	}
	var items []models.CartItem
	err := owner.scope(r.db.WithContext(ctx)).
		Preload("Variant").
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClearCart removes every line of the owner's cart.
func (r *Repository) ClearCart(ctx context.Context, owner Owner) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	return owner.scope(r.db.WithContext(ctx)).Delete(&models.CartItem{}).Error
}

// AddItem appends a line, merging quantities when the variant is already in
// the cart.
func (r *Repository) AddItem(ctx context.Context, owner Owner, variantID uuid.UUID, qty int) error {
	if !owner.Valid() {
		return ErrNoOwner
	}
	var existing models.CartItem
	err := owner.scope(r.db.WithContext(ctx)).Where("variant_id = ?", variantID).First(&existing).Error
	if err == nil {
		return r.db.WithContext(ctx).Model(&models.CartItem{}).
			Where("id = ?", existing.ID).
			Update("quantity", gorm.Expr("quantity + ?", qty)).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	item := models.CartItem{UserID: owner.UserID, VariantID: variantID, Quantity: qty}
	if owner.UserID == nil {
		session := owner.SessionID
		item.SessionID = &session
	}
	return r.db.WithContext(ctx).Omit("Variant").Create(&item).Error
}

func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var v models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListActiveVariants pages through sellable variants ordered by id.
func (r *Repository) ListActiveVariants(ctx context.Context, after uuid.UUID, limit int) ([]models.ProductVariant, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.ProductVariant
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	err := q.Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
