package treasury

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-ledger/internal/aggregation"
	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/pricing"
	"treasury-ledger/internal/storage"
	"treasury-ledger/internal/storage/memory"
)

type currentProvider struct {
	prices map[string]decimal.Decimal
}

func (p *currentProvider) Current(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if v, ok := p.prices[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (p *currentProvider) Historical(context.Context, string, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type recordingSubmitter struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingSubmitter) Submit(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return true
}

type fixture struct {
	svc       *Service
	txs       *memory.TransactionStore
	submitter *recordingSubmitter
}

func ts(date string, hour int) int64 {
	t, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return t.Add(time.Duration(hour) * time.Hour).Unix()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	wallets := memory.NewWalletStore()
	txs := memory.NewTransactionStore()
	balances := memory.NewBalanceStore()
	samples := memory.NewPriceSampleStore()

	require.NoError(t, wallets.Upsert(ctx, &domain.Wallet{ID: "treasury", Name: "Treasury", Address: "0xabc"}))

	rows := []*domain.Transaction{
		{
			WalletID: "treasury", Hash: "0x01", BlockNumber: 10, Timestamp: ts("2024-03-05", 12),
			From: "0xabc", To: "0xdef", Value: decimal.NewFromInt(1), RawValue: "1000000000000000000",
			TokenSymbol: "ETH", Kind: domain.KindNative, Direction: domain.DirectionOut,
		},
		{
			WalletID: "treasury", Hash: "0x02", BlockNumber: 11, Timestamp: ts("2024-03-06", 9),
			From: "0xabc", To: "0xfee", Value: decimal.NewFromInt(100), RawValue: "100",
			TokenSymbol: "SCR", ContractAddress: "0xscr", Kind: domain.KindToken,
			Direction: domain.DirectionOut, Category: "Grants",
		},
		{
			WalletID: "treasury", Hash: "0x03", BlockNumber: 12, Timestamp: ts("2024-03-07", 9),
			From: "0x999", To: "0xabc", Value: decimal.NewFromInt(50), RawValue: "50",
			TokenSymbol: "USDC", ContractAddress: "0xusdc", Kind: domain.KindToken,
			Direction: domain.DirectionIn, Notes: "refund",
		},
	}
	for _, tx := range rows {
		_, err := txs.Upsert(ctx, tx)
		require.NoError(t, err)
	}

	_, err := samples.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: "ETH", Date: "2024-03-05", Price: decimal.NewFromInt(3000)})
	require.NoError(t, err)
	require.NoError(t, balances.Upsert(ctx, &domain.Balance{
		WalletID: "treasury", TokenSymbol: "ETH", Value: decimal.NewFromInt(2), Raw: "2000000000000000000",
	}))

	cache := pricing.NewCurrentCache(pricing.CacheOptions{
		Provider: &currentProvider{prices: map[string]decimal.Decimal{
			"ethereum": decimal.NewFromInt(3500),
			"scroll":   decimal.NewFromInt(2),
			"usd-coin": decimal.NewFromInt(1),
		}},
		Tokens: map[string]string{"ETH": "ethereum", "SCR": "scroll", "USDC": "usd-coin"},
		Clock:  func() time.Time { return now },
	})

	plan := aggregation.BudgetPlan{
		Budgets: []aggregation.Budget{
			{Category: "Grants", Quarterly: decimal.NewFromInt(1000), Group: "Ecosystem", SharedID: "pool1"},
			{Category: "Ops", Quarterly: decimal.NewFromInt(500), Group: "Ecosystem", SharedID: "pool1"},
		},
		Pools:         []aggregation.Pool{{ID: "pool1", Quarterly: decimal.NewFromInt(5000)}},
		DefaultTotals: aggregation.Totals{Quarterly: decimal.NewFromInt(9000)},
	}

	submitter := &recordingSubmitter{}
	svc := New(Options{
		Wallets:      wallets,
		Transactions: txs,
		Balances:     balances,
		Samples:      samples,
		Cache:        cache,
		Engine:       aggregation.NewEngine(aggregation.Options{Transactions: txs, BaseAsset: "SCR", Clock: func() time.Time { return now }}),
		Plan:         plan,
		Categories:   func(string) []string { return []string{domain.Uncategorised, "Grants", "Ops"} },
		Submitter:    submitter,
	})
	return &fixture{svc: svc, txs: txs, submitter: submitter}
}

func TestService_Triggers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queued, err := f.svc.RunFullIngestion()
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = f.svc.RunWalletIngestion(ctx, "treasury")
	require.NoError(t, err)
	assert.True(t, queued)

	_, err = f.svc.RunWalletIngestion(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, []string{"*", "treasury"}, f.submitter.keys)

	disabled := New(Options{})
	_, err = disabled.RunFullIngestion()
	assert.ErrorIs(t, err, ErrIngestionDisabled)
}

func TestService_QueryTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{Direction: "out"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, storage.DefaultPageSize, page.Limit)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "0x02", page.Transactions[0].Hash, "newest first")

	page, err = f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{DateTo: "2024-03-05"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total, "date_to includes the whole day")

	page, err = f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{DateFrom: "2024-03-06", Direction: "sideways"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "unknown direction is ignored")

	page, err = f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{DateFrom: "not-a-date", Search: "refund", Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, storage.MaxPageSize, page.Limit)
}

func TestService_Categorise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{Token: "SCR"})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	id := page.Transactions[0].ID

	require.NoError(t, f.svc.CategoriseTransaction(ctx, id, "", "reset"))
	page, err = f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{Token: "SCR"})
	require.NoError(t, err)
	assert.Equal(t, domain.Uncategorised, page.Transactions[0].Category)
	assert.Equal(t, "reset", page.Transactions[0].Notes)

	err = f.svc.CategoriseTransaction(ctx, 999, "Ops", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	updated, err := f.svc.BulkCategorise(ctx, []CategoryUpdate{
		{ID: 0, Category: "Ops"},
		{ID: id, Category: "Ops"},
		{ID: 999, Category: "Ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	page, err = f.svc.QueryTransactions(ctx, "treasury", TransactionQuery{Category: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestService_WalletStats(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.WalletStats(context.Background(), "treasury")
	require.NoError(t, err)

	require.Len(t, stats.Balances, 1)
	assert.True(t, stats.Balances[0].PriceUSD.Equal(decimal.NewFromInt(3500)))
	assert.True(t, stats.Balances[0].BalanceUSD.Equal(decimal.NewFromInt(7000)))

	require.Len(t, stats.SpendByCategory, 2)
	assert.Equal(t, domain.Uncategorised, stats.SpendByCategory[0].Category)
	assert.True(t, stats.SpendByCategory[0].USD.Equal(decimal.NewFromInt(3000)), "historical sample wins over current")
	assert.Equal(t, "Grants", stats.SpendByCategory[1].Category)
	assert.True(t, stats.SpendByCategory[1].USD.Equal(decimal.NewFromInt(200)), "current price fallback")

	require.Len(t, stats.MonthlyBurn, 2)
	assert.Equal(t, "2024-03", stats.MonthlyBurn[0].Month)

	assert.Equal(t, storage.TxCounts{Total: 3, Incoming: 1, Outgoing: 2, Uncategorised: 2}, stats.Counts)
	assert.Equal(t, []string{"ETH", "SCR", "USDC"}, stats.Tokens)
	assert.Equal(t, "SCR", stats.BaseAsset)

	_, err = f.svc.WalletStats(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_BudgetComparison(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.BudgetComparison(context.Background(), "treasury")
	require.NoError(t, err)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, "Grants", report.Categories[0].Category)
	assert.True(t, report.Categories[0].SpentUSD.Equal(decimal.NewFromInt(200)))
	assert.True(t, report.Categories[0].SpentBase.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Ops", report.Categories[1].Category)
	assert.True(t, report.Categories[1].SpentUSD.IsZero())

	assert.True(t, report.Totals.Spent.Equal(decimal.NewFromInt(200)))
	assert.True(t, report.Totals.BudgetQuarterly.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, []string{"Ecosystem"}, report.Groups)
	assert.Len(t, report.CurrentPrices, 3)

	require.Len(t, report.Pools, 1)
	assert.Equal(t, "pool1", report.Pools[0].PoolID)
	assert.Equal(t, []string{"Grants", "Ops"}, report.Pools[0].Categories)
	assert.True(t, report.Pools[0].BudgetQuarterly.Equal(decimal.NewFromInt(5000)))
}

func TestService_ExportLedger(t *testing.T) {
	f := newFixture(t)

	rows, err := f.svc.ExportLedger(context.Background(), "treasury")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"0x03", "0x02", "0x01"}, []string{rows[0].Hash, rows[1].Hash, rows[2].Hash})
}
