package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
)

const maxErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores the row unless an action with the same dedupe key is already
// queued. inserted is false when the row was collapsed into an existing one.
func (r *Repository) Insert(tx *gorm.DB, event *models.OutboxEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimPending locks up to limit due rows, pushes their availability out by
// lease and returns them. Postgres skips rows other dispatchers hold.
func (r *Repository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("dispatched_at IS NULL AND available_at <= ?", now).
			Order("available_at ASC").
			Order("created_at ASC").
			Limit(limit).
			Find(&rows).Error
		if err != nil || len(rows) == 0 {
			return err
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return tx.Model(&models.OutboxEvent{}).
			Where("id IN ?", ids).
			Update("available_at", now.Add(lease)).Error
	})
	return rows, err
}

func (r *Repository) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"dispatched_at": time.Now().UTC(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    nil,
		}).Error
}

// MarkFailed records the error and schedules the next attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, err error, next time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(err.Error()),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"available_at":  next.UTC(),
		}).Error
}

// Defer pushes a row out to next without counting an attempt, used while a
// dependency waits on an operator.
func (r *Repository) Defer(ctx context.Context, id uuid.UUID, err error, next time.Time) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":   truncateError(err.Error()),
			"available_at": next.UTC(),
		}).Error
}

// Release makes a claimed row due again without counting an attempt.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Update("available_at", time.Now().UTC()).Error
}

// DeleteTx removes a row, used when it moves to the DLQ.
func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Where("id = ?", id).Delete(&models.OutboxEvent{}).Error
}

// DeleteDispatchedBefore purges rows dispatched before cutoff.
func (r *Repository) DeleteDispatchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("dispatched_at IS NOT NULL AND dispatched_at < ?", cutoff.UTC()).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

// ListForOrder returns every queued or dispatched action of an order.
func (r *Repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func truncateError(message string) string {
	if len(message) <= maxErrorLen {
		return message
	}
	return message[:maxErrorLen]
}
