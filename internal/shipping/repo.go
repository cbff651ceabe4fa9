package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/db"
	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// Repository persists shipping labels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, label *models.ShippingLabel) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ShippingLabel, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.ShippingLabel, error)
	FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListTrackable(ctx context.Context, limit int) ([]models.ShippingLabel, error)
	IssuedInvoiceKey(ctx context.Context, orderID uuid.UUID) (string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, label *models.ShippingLabel) error {
	return r.db.WithContext(ctx).Create(label).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ShippingLabel, error) {
	var label models.ShippingLabel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&label).Error; err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.ShippingLabel, error) {
	var label models.ShippingLabel
	if err := db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&label).Error; err != nil {
		return nil, err
	}
	return &label, nil
}

// FindActiveByOrder returns the order's non-cancelled label, or nil.
func (r *repository) FindActiveByOrder(ctx context.Context, orderID uuid.UUID) (*models.ShippingLabel, error) {
	var label models.ShippingLabel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.LabelStatusCancelled).
		Order("created_at DESC").
		First(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ShippingLabel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListTrackable returns printed or posted labels, least recently refreshed first.
func (r *repository) ListTrackable(ctx context.Context, limit int) ([]models.ShippingLabel, error) {
	var labels []models.ShippingLabel
	q := r.db.WithContext(ctx).
		Where("status IN ?", []enums.LabelStatus{enums.LabelStatusPrinted, enums.LabelStatusPosted}).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&labels).Error; err != nil {
		return nil, err
	}
	return labels, nil
}

// IssuedInvoiceKey returns the access key of the order's issued NF-e, or "".
func (r *repository) IssuedInvoiceKey(ctx context.Context, orderID uuid.UUID) (string, error) {
	var doc models.FiscalDocument
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.FiscalStatusIssued).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if doc.AccessKey == nil {
		return "", nil
	}
	return *doc.AccessKey, nil
}
