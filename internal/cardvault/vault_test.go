package cardvault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/atelie-backend/pkg/errors"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) GetDel(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	delete(m.data, key)
	return v, nil
}

func (m *memStore) CardKey(ref string) string {
	return "at:card:" + ref
}

func TestPutThenTakeOnce(t *testing.T) {
	store := newMemStore()
	vault, err := New(store, 5*time.Minute)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ref, expires, err := vault.Put(context.Background(), Card{Encrypted: "enc-blob", HolderName: " Maria Silva ", CVV: "123"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if time.Until(expires) > 5*time.Minute || time.Until(expires) < 4*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}
	if store.ttls["at:card:"+ref] != 5*time.Minute {
		t.Fatalf("ttl not applied: %v", store.ttls)
	}

	card, err := vault.Take(context.Background(), ref)
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if card.Encrypted != "enc-blob" || card.HolderName != "Maria Silva" || card.CVV != "123" {
		t.Fatalf("unexpected card %+v", card)
	}

	_, err = vault.Take(context.Background(), ref)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("second read must fail as expired, got %v", err)
	}
}

func TestPutValidates(t *testing.T) {
	vault, _ := New(newMemStore(), time.Minute)
	cases := []Card{
		{HolderName: "Maria"},
		{Encrypted: "blob"},
		{Encrypted: "blob", HolderName: "Maria", CVV: "12a"},
	}
	for _, card := range cases {
		if _, _, err := vault.Put(context.Background(), card); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", card, err)
		}
	}
}

func TestTakeRejectsMalformedRefAndSurfacesStoreErrors(t *testing.T) {
	store := newMemStore()
	vault, _ := New(store, time.Minute)
	if _, err := vault.Take(context.Background(), "../etc"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	store.err = errors.New("connection refused")
	if _, err := vault.Take(context.Background(), "6f1c2d4e-0000-4000-8000-000000000000"); !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestNewBoundsTTL(t *testing.T) {
	if _, err := New(newMemStore(), 11*time.Minute); err == nil {
		t.Fatal("ttl above ten minutes must be rejected")
	}
	if _, err := New(nil, time.Minute); err == nil {
		t.Fatal("nil store must be rejected")
	}
}
