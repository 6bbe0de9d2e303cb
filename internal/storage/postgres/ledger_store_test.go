package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

func sampleTx(hash string, ts int64, dir domain.Direction, contract, value string) *domain.Transaction {
	return &domain.Transaction{
		WalletID:        "ops",
		Hash:            hash,
		BlockNumber:     ts / 10,
		Timestamp:       ts,
		From:            "0xfrom",
		To:              "0xto",
		RawValue:        value,
		Value:           decimal.RequireFromString(value),
		TokenSymbol:     "USDC",
		TokenName:       "USD Coin",
		TokenDecimals:   6,
		ContractAddress: contract,
		Kind:            domain.KindToken,
		Direction:       dir,
		GasPrice:        "0",
	}
}

func TestTransactionStore_UpsertIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewTransactionStore(pool)

	tx := sampleTx("0xaa", 1704110400, domain.DirectionOut, "0xusdc", "12.5")
	inserted, err := store.Upsert(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotZero(t, tx.ID)

	inserted, err = store.Upsert(ctx, sampleTx("0xaa", 1704110400, domain.DirectionOut, "0xusdc", "99"))
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, total, err := store.Query(ctx, storage.TxFilter{WalletID: "ops"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.True(t, rows[0].Value.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, domain.Uncategorised, rows[0].Category)
	assert.Equal(t, domain.KindToken, rows[0].Kind)
}

func TestTransactionStore_CategoryAndSigners(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewTransactionStore(pool)

	tx := sampleTx("0xaa", 1704110400, domain.DirectionOut, "0xusdc", "1")
	_, err := store.Upsert(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, store.UpdateCategory(ctx, tx.ID, "Grants", "round 2"))
	assert.ErrorIs(t, store.UpdateCategory(ctx, tx.ID+1000, "Grants", ""), storage.ErrNotFound)

	n, err := store.UpdateSigners(ctx, "ops", "0xaa", "0x01,0x02")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, _, err := store.Query(ctx, storage.TxFilter{WalletID: "ops", Category: "Grants", Search: "round"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "0x01,0x02", rows[0].Signers)

	counts, err := store.Counts(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, storage.TxCounts{Total: 1, Outgoing: 1}, counts)
}

func TestTransactionStore_SearchIgnoresCaseAndWildcards(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewTransactionStore(pool)

	_, err := store.Upsert(ctx, sampleTx("0x01", 1704110400, domain.DirectionIn, "0xusdc", "1"))
	require.NoError(t, err)

	grant := sampleTx("0x05", 1704196800, domain.DirectionOut, "0xusdc", "5")
	grant.To = "0x20fa362323447506d9d0c02483ae97c4e2d6b607"
	_, err = store.Upsert(ctx, grant)
	require.NoError(t, err)
	require.NoError(t, store.UpdateCategory(ctx, grant.ID, "Grants", "Q1 Grant 50%"))

	searches := []struct {
		query string
		want  int
	}{
		{"0x20fa362323447506D9d0C02483ae97C4e2d6B607", 1},
		{"q1 grant", 1},
		{"50%", 1},
		{"0x20fa%", 0},
		{"0x_5", 0},
	}
	for _, tc := range searches {
		_, total, err := store.Query(ctx, storage.TxFilter{WalletID: "ops", Search: tc.query})
		require.NoError(t, err)
		assert.Equal(t, tc.want, total, tc.query)
	}
}

func TestTransactionStore_TokenFlowsAndSpendDates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewTransactionStore(pool)

	failed := sampleTx("0x03", 1704196800, domain.DirectionOut, "0xusdc", "40")
	failed.IsError = true
	for _, tx := range []*domain.Transaction{
		sampleTx("0x01", 1704110400, domain.DirectionIn, "0xusdc", "100"),
		sampleTx("0x02", 1704196800, domain.DirectionOut, "0xusdc", "30.25"),
		failed,
	} {
		_, err := store.Upsert(ctx, tx)
		require.NoError(t, err)
	}

	flows, err := store.TokenFlows(ctx, "ops")
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.True(t, flows[0].TotalIn.Equal(decimal.NewFromInt(100)))
	assert.True(t, flows[0].TotalOut.Equal(decimal.RequireFromString("30.25")))
	assert.Equal(t, 6, flows[0].TokenDecimals)

	dates, err := store.SpendDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SymbolDate{{Symbol: "USDC", Date: "2024-01-02"}}, dates)
}

func TestCheckpointStore_AdvanceNeverRegresses(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewCheckpointStore(pool)

	_, err := store.Get(ctx, "ops", domain.KindNative)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for _, block := range []int64{500, 900, 700} {
		require.NoError(t, store.Advance(ctx, &domain.FetchCheckpoint{
			WalletID: "ops", Kind: domain.KindNative, LastBlock: block, FetchedAt: 1, TxCount: 1,
		}))
	}

	cp, err := store.Get(ctx, "ops", domain.KindNative)
	require.NoError(t, err)
	assert.Equal(t, int64(900), cp.LastBlock)

	require.NoError(t, store.DeleteByWallet(ctx, "ops"))
	_, err = store.Get(ctx, "ops", domain.KindNative)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBalanceStore_UpsertOverwrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedWallet(t, ctx, pool, "ops")
	store := NewBalanceStore(pool)

	b := &domain.Balance{
		WalletID: "ops", ContractAddress: "", TokenSymbol: domain.NativeSymbol, TokenName: domain.NativeName,
		Raw: "1500000000000000000", Value: decimal.RequireFromString("1.5"), LastUpdated: 1,
	}
	require.NoError(t, store.Upsert(ctx, b))

	b.Raw = "2000000000000000000"
	b.Value = decimal.NewFromInt(2)
	require.NoError(t, store.Upsert(ctx, b))

	got, err := store.ListByWallet(ctx, "ops")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Value.Equal(decimal.NewFromInt(2)))
}

func TestPriceSampleStore_InsertIfAbsent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPriceSampleStore(pool)

	inserted, err := store.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: "SCR", Date: "2024-01-02", Price: decimal.Zero})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: "SCR", Date: "2024-01-02", Price: decimal.RequireFromString("0.91")})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.Get(ctx, "SCR", "2024-01-02")
	require.NoError(t, err)
	assert.True(t, got.IsSentinel())
}
