// Package cardvault bridges the card tokenization step and checkout: card
// data lives in Redis under a single-use reference with a short TTL and is
// deleted on first read.
package cardvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelie-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
	"github.com/angelmondragon/atelie-backend/pkg/redis"
)

// Card is what the storefront collected: the gateway-encrypted card blob,
// the holder name and optionally the CVV.
type Card struct {
	Encrypted  string `json:"encrypted"`
	HolderName string `json:"holder_name"`
	CVV        string `json:"cvv,omitempty"`
}

type Vault struct {
	store redis.CardStore
	ttl   time.Duration
	now   func() time.Time
}

func New(store redis.CardStore, ttl time.Duration) (*Vault, error) {
	if store == nil {
		return nil, errors.New("card store required")
	}
	if ttl <= 0 || ttl > config.MaxCardTTL {
		return nil, fmt.Errorf("card ttl must be within (0, %s]", config.MaxCardTTL)
	}
	return &Vault{store: store, ttl: ttl, now: time.Now}, nil
}

// Put stores card and returns its single-use reference.
func (v *Vault) Put(ctx context.Context, card Card) (string, time.Time, error) {
	card.Encrypted = strings.TrimSpace(card.Encrypted)
	card.HolderName = strings.TrimSpace(card.HolderName)
	if card.Encrypted == "" {
		return "", time.Time{}, pkgerrors.Validation("card", "encrypted card required")
	}
	if card.HolderName == "" {
		return "", time.Time{}, pkgerrors.Validation("card", "holder name required")
	}
	if card.CVV != "" && !validCVV(card.CVV) {
		return "", time.Time{}, pkgerrors.Validation("card", "cvv")
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return "", time.Time{}, err
	}
	ref := uuid.NewString()
	if err := v.store.Set(ctx, v.store.CardKey(ref), payload, v.ttl); err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store card")
	}
	return ref, v.now().Add(v.ttl).UTC(), nil
}

// Take returns the card and deletes it atomically. Unknown, expired or
// already used references are a validation error.
func (v *Vault) Take(ctx context.Context, ref string) (Card, error) {
	if _, err := uuid.Parse(strings.TrimSpace(ref)); err != nil {
		return Card{}, pkgerrors.Validation("card", "expired")
	}
	raw, err := v.store.GetDel(ctx, v.store.CardKey(strings.TrimSpace(ref)))
	if err != nil {
		if redis.IsNil(err) {
			return Card{}, pkgerrors.Validation("card", "expired")
		}
		return Card{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read card")
	}
	var card Card
	if err := json.Unmarshal([]byte(raw), &card); err != nil {
		return Card{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode card")
	}
	return card, nil
}

func validCVV(cvv string) bool {
	if len(cvv) < 3 || len(cvv) > 4 {
		return false
	}
	for _, r := range cvv {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
