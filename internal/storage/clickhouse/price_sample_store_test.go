package clickhouse

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

func TestPriceSampleStore_InsertIfAbsentAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceSampleStore(conn)

	inserted, err := store.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: "SCR", Date: "2024-05-01", Price: decimal.RequireFromString("1.25")})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: "SCR", Date: "2024-05-01", Price: decimal.NewFromInt(7)})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.Get(ctx, "SCR", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("1.25")), "got %s", got.Price)

	_, err = store.Get(ctx, "SCR", "2024-05-02")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPriceSampleStore_ListKeepsSentinels(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceSampleStore(conn)

	for _, p := range []*domain.PriceSample{
		{Symbol: "USDC", Date: "2024-05-02", Price: decimal.NewFromInt(1)},
		{Symbol: "FOO", Date: "2024-05-01", Price: decimal.Zero},
	} {
		_, err := store.InsertIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	samples, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "FOO", samples[0].Symbol)
	assert.True(t, samples[0].IsSentinel())
	assert.Equal(t, "2024-05-02", samples[1].Date)
}
