package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/atelie-backend/pkg/db/dbtest"
)

func TestCartIsScopedToOwner(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	v := dbtest.SeedVariant(t, client.DB(), "CT-01", "59.90", 4)
	userID := uuid.New()
	user := Owner{UserID: &userID}
	guest := Owner{SessionID: "sess-1"}

	require.NoError(t, repo.AddItem(ctx, user, v.ID, 1))
	require.NoError(t, repo.AddItem(ctx, user, v.ID, 2))
	require.NoError(t, repo.AddItem(ctx, guest, v.ID, 1))

	lines, err := repo.Cart(ctx, user)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "CT-01", lines[0].Variant.SKU)

	require.NoError(t, repo.ClearCart(ctx, user))
	lines, err = repo.Cart(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, lines)

	guestLines, err := repo.Cart(ctx, guest)
	require.NoError(t, err)
	assert.Len(t, guestLines, 1)
}

func TestOwnerRequired(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	_, err := repo.Cart(context.Background(), Owner{})
	assert.ErrorIs(t, err, ErrNoOwner)
	assert.Equal(t, "session:abc", Owner{SessionID: "abc"}.Key())
}

func TestListActiveVariantsPages(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	for _, sku := range []string{"P-1", "P-2", "P-3"} {
		dbtest.SeedVariant(t, client.DB(), sku, "10.00", 1)
	}
	first, err := repo.ListActiveVariants(context.Background(), uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := repo.ListActiveVariants(context.Background(), first[1].ID, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
