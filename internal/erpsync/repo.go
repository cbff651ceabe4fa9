package erpsync

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// Repository persists ERP links, the situation map and fiscal documents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)

	FindProductLink(ctx context.Context, variantID uuid.UUID) (*models.ERPProductLink, error)
	SaveProductLink(ctx context.Context, link *models.ERPProductLink) error
	FindContactLink(ctx context.Context, document string) (*models.ERPContactLink, error)
	SaveContactLink(ctx context.Context, link *models.ERPContactLink) error
	FindOrderLinkByERPID(ctx context.Context, erpID int64) (*models.ERPOrderLink, error)
	SaveOrderLink(ctx context.Context, link *models.ERPOrderLink) error

	ListSituations(ctx context.Context) ([]models.ERPSituation, error)
	FindSituation(ctx context.Context, situationID int64) (*models.ERPSituation, error)
	SaveSituation(ctx context.Context, situation *models.ERPSituation) error
	InsertSituationIfMissing(ctx context.Context, situation *models.ERPSituation) (bool, error)

	FindFiscalDocumentByOrder(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error)
	FindFiscalDocumentByERPID(ctx context.Context, erpID int64) (*models.FiscalDocument, error)
	CreateFiscalDocument(ctx context.Context, doc *models.FiscalDocument) error
	UpdateFiscalDocument(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListFiscalDocumentsByStatus(ctx context.Context, statuses []enums.FiscalDocumentStatus, limit int) ([]models.FiscalDocument, error)
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

func (r *repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var v models.ProductVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) FindProductLink(ctx context.Context, variantID uuid.UUID) (*models.ERPProductLink, error) {
	return findOne[models.ERPProductLink](ctx, r.db, "local_key = ?", variantID.String())
}

func (r *repository) SaveProductLink(ctx context.Context, link *models.ERPProductLink) error {
	return r.upsertLink(ctx, link)
}

func (r *repository) FindContactLink(ctx context.Context, document string) (*models.ERPContactLink, error) {
	return findOne[models.ERPContactLink](ctx, r.db, "local_key = ?", document)
}

func (r *repository) SaveContactLink(ctx context.Context, link *models.ERPContactLink) error {
	return r.upsertLink(ctx, link)
}

func (r *repository) FindOrderLinkByERPID(ctx context.Context, erpID int64) (*models.ERPOrderLink, error) {
	return findOne[models.ERPOrderLink](ctx, r.db, "erp_id = ?", erpID)
}

func (r *repository) SaveOrderLink(ctx context.Context, link *models.ERPOrderLink) error {
	return r.upsertLink(ctx, link)
}

// upsertLink writes a link row keyed by local_key. The row id of an
// existing link is kept.
func (r *repository) upsertLink(ctx context.Context, link any) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"erp_id", "erp_code", "sync_status", "last_synced_at", "last_error", "updated_at"}),
	}).Create(link).Error
}

func (r *repository) ListSituations(ctx context.Context) ([]models.ERPSituation, error) {
	var rows []models.ERPSituation
	if err := r.db.WithContext(ctx).Order("situation_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindSituation(ctx context.Context, situationID int64) (*models.ERPSituation, error) {
	return findOne[models.ERPSituation](ctx, r.db, "situation_id = ?", situationID)
}

func (r *repository) SaveSituation(ctx context.Context, situation *models.ERPSituation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "situation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_status", "description", "updated_at"}),
	}).Create(situation).Error
}

func (r *repository) InsertSituationIfMissing(ctx context.Context, situation *models.ERPSituation) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "situation_id"}},
		DoNothing: true,
	}).Create(situation)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindFiscalDocumentByOrder(ctx context.Context, orderID uuid.UUID) (*models.FiscalDocument, error) {
	return findOne[models.FiscalDocument](ctx, r.db, "order_id = ?", orderID)
}

func (r *repository) FindFiscalDocumentByERPID(ctx context.Context, erpID int64) (*models.FiscalDocument, error) {
	return findOne[models.FiscalDocument](ctx, r.db, "erp_document_id = ?", erpID)
}

func (r *repository) CreateFiscalDocument(ctx context.Context, doc *models.FiscalDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *repository) UpdateFiscalDocument(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.FiscalDocument{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListFiscalDocumentsByStatus(ctx context.Context, statuses []enums.FiscalDocumentStatus, limit int) ([]models.FiscalDocument, error) {
	var docs []models.FiscalDocument
	q := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// findOne returns the first row matching the condition, or nil.
func findOne[T any](ctx context.Context, conn *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := conn.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
