package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// OutboxEvent is a follow-on action recorded in the same transaction as the
// state change that produced it.
type OutboxEvent struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Kind         enums.ActionKind `gorm:"column:kind;not null"`
	OrderID      uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	DedupeKey    *string          `gorm:"column:dedupe_key;uniqueIndex:ux_outbox_events_dedupe"`
	Payload      datatypes.JSON   `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount int              `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string          `gorm:"column:last_error"`
	AvailableAt  time.Time        `gorm:"column:available_at;not null;index"`
	DispatchedAt *time.Time       `gorm:"column:dispatched_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	if e.AvailableAt.IsZero() {
		e.AvailableAt = time.Now().UTC()
	}
	return nil
}

// OutboxDLQ keeps actions that exhausted their retries.
type OutboxDLQ struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	EventID      uuid.UUID                  `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_outbox_dlq_event"`
	Kind         enums.ActionKind           `gorm:"column:kind;not null"`
	OrderID      uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	Payload      datatypes.JSON             `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason  enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage *string                    `gorm:"column:error_message"`
	AttemptCount int                        `gorm:"column:attempt_count;not null"`
	FailedAt     time.Time                  `gorm:"column:failed_at;not null"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }

func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
