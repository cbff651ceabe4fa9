package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/atelie-backend/api/responses"
	"github.com/angelmondragon/atelie-backend/api/validators"
	"github.com/angelmondragon/atelie-backend/internal/cardvault"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/logger"
)

type CardVault interface {
	Put(ctx context.Context, card cardvault.Card) (string, time.Time, error)
}

// StoreCard parks the encrypted card blob so a later checkout can reference
// it once.
func StoreCard(vault CardVault, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if vault == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "card vault unavailable"))
			return
		}

		var payload storeCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ref, expires, err := vault.Put(ctx, cardvault.Card{
			Encrypted:  payload.EncryptedCard,
			HolderName: payload.HolderName,
			CVV:        payload.CVV,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, storeCardResponse{CardRef: ref, ExpiresAt: expires})
	}
}

type storeCardRequest struct {
	EncryptedCard string `json:"encrypted_card" validate:"required"`
	HolderName    string `json:"holder_name" validate:"required"`
	CVV           string `json:"cvv,omitempty" validate:"omitempty,numeric,min=3,max=4"`
}

type storeCardResponse struct {
	CardRef   string    `json:"card_ref"`
	ExpiresAt time.Time `json:"expires_at"`
}
