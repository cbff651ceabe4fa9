package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelie-backend/pkg/enums"
)

// ERPToken is the single process-wide OAuth record for the ERP.
type ERPToken struct {
	ID           int       `gorm:"column:id;primaryKey"`
	AccessToken  string    `gorm:"column:access_token;not null"`
	RefreshToken string    `gorm:"column:refresh_token;not null"`
	TokenType    string    `gorm:"column:token_type"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ERPToken) TableName() string { return "erp_tokens" }

// ERPTokenRowID is the primary key of the only row in erp_tokens.
const ERPTokenRowID = 1

// ERPLink maps a local entity to its ERP counterpart. LocalKey is the
// variant id, order id or contact document depending on the table.
type ERPLink struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	LocalKey     string              `gorm:"column:local_key;not null;uniqueIndex"`
	ERPID        *int64              `gorm:"column:erp_id"`
	ERPCode      string              `gorm:"column:erp_code"`
	SyncStatus   enums.ERPSyncStatus `gorm:"column:sync_status;not null"`
	LastSyncedAt *time.Time          `gorm:"column:last_synced_at"`
	LastError    *string             `gorm:"column:last_error"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

type ERPProductLink struct {
	ERPLink `gorm:"embedded"`
}

func (ERPProductLink) TableName() string { return "erp_links_product" }

func (l *ERPProductLink) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

type ERPContactLink struct {
	ERPLink `gorm:"embedded"`
}

func (ERPContactLink) TableName() string { return "erp_links_contact" }

func (l *ERPContactLink) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

type ERPOrderLink struct {
	ERPLink `gorm:"embedded"`
}

func (ERPOrderLink) TableName() string { return "erp_links_order" }

func (l *ERPOrderLink) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// ERPSituation maps an ERP situation id to an internal order status. A nil
// OrderStatus means the situation has no local effect.
type ERPSituation struct {
	SituationID int64              `gorm:"column:situation_id;primaryKey;autoIncrement:false"`
	OrderStatus *enums.OrderStatus `gorm:"column:order_status"`
	Description string             `gorm:"column:description"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (ERPSituation) TableName() string { return "erp_situation_map" }
