package erp

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelie-backend/pkg/db/models"
)

// GormTokenStore keeps the token in the single-row erp_tokens table.
type GormTokenStore struct {
	db *gorm.DB
}

func NewGormTokenStore(db *gorm.DB) *GormTokenStore {
	return &GormTokenStore{db: db}
}

func (s *GormTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	var row models.ERPToken
	err := s.db.WithContext(ctx).First(&row, "id = ?", models.ERPTokenRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Expiry:       row.ExpiresAt,
	}, nil
}

func (s *GormTokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	row := models.ERPToken{
		ID:           models.ERPTokenRowID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry.UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "token_type", "expires_at", "updated_at"}),
	}).Create(&row).Error
}
