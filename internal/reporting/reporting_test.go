package reporting

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/aggregation"
	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
	"treasury-ledger/internal/treasury"
)

func TestRenderLedgerCSV(t *testing.T) {
	rows := []*domain.Transaction{
		{
			Hash: "0x02", BlockNumber: 200, Timestamp: 1709726400,
			From: "0xabc", To: "0xdef", Value: decimal.RequireFromString("1.5"),
			TokenSymbol: "ETH", Kind: domain.KindNative, Direction: domain.DirectionOut,
			Category: "Grants", Notes: "round 1, batch \"a\"",
		},
		{
			Hash: "0x01", BlockNumber: 100, Timestamp: 1709640000,
			From: "0x999", To: "0xabc", Value: decimal.NewFromInt(50),
			TokenSymbol: "USDC", Kind: domain.KindToken, Direction: domain.DirectionIn,
			Category: domain.Uncategorised,
		},
	}

	var buf bytes.Buffer
	if err := RenderLedgerCSV(&buf, rows); err != nil {
		t.Fatalf("RenderLedgerCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "Date,TX Hash,From,To,Amount,Token,Type,Direction,Category,Notes,Block" {
		t.Errorf("unexpected header: %v", records[0])
	}

	want := []string{"2024-03-06 12:00:00", "0x02", "0xabc", "0xdef", "1.5", "ETH", "normal", "out", "Grants", "round 1, batch \"a\"", "200"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("row 1 column %s: expected %q, got %q", LedgerHeader[i], v, records[1][i])
		}
	}
	if records[2][1] != "0x01" || records[2][6] != "erc20" {
		t.Errorf("row order or type not preserved: %v", records[2])
	}
}

func TestRenderLedgerCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderLedgerCSV(&buf, nil); err != nil {
		t.Fatalf("RenderLedgerCSV: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("expected header only, got %q", buf.String())
	}
}

func TestExportFilename(t *testing.T) {
	if got := ExportFilename("treasury"); got != "treasury_treasury.csv" {
		t.Errorf("unexpected filename %q", got)
	}
}

func TestRenderStatsMarkdown(t *testing.T) {
	stats := &treasury.WalletStats{
		Wallet: &domain.Wallet{ID: "treasury", Name: "DAO Treasury", Address: "0xabc"},
		Balances: []treasury.BalanceView{{
			Balance:    &domain.Balance{TokenSymbol: "ETH", Value: decimal.NewFromInt(2)},
			PriceUSD:   decimal.NewFromInt(3500),
			BalanceUSD: decimal.NewFromInt(7000),
		}},
		SpendByCategory: []aggregation.CategorySpend{
			{Category: domain.Uncategorised, Symbol: "ETH", Amount: decimal.NewFromInt(1), USD: decimal.NewFromInt(3000), TxCount: 1},
		},
		Counts:    storage.TxCounts{Total: 3, Incoming: 1, Outgoing: 2, Uncategorised: 2},
		Tokens:    []string{"ETH", "SCR"},
		BaseAsset: "SCR",
	}

	md := RenderStatsMarkdown(stats)

	for _, want := range []string{
		"# DAO Treasury",
		"Transactions: 3 | In: 1 | Out: 2 | Uncategorised: 2",
		"| ETH | 2.0000 | $3500.00 | $7000.00 |",
		"| Uncategorised | ETH | 1.0000 | $3000.00 | 1 |",
		"No spend in the last six months.",
		"Tokens: ETH, SCR",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRenderBudgetMarkdown(t *testing.T) {
	report := &treasury.BudgetReport{
		BudgetComparison: &aggregation.BudgetComparison{
			Categories: []aggregation.CategoryBudget{
				{Category: "Grants", SpentUSD: decimal.NewFromInt(30), SpentBase: decimal.NewFromInt(15), BudgetQuarterly: decimal.NewFromInt(100), Group: "Ecosystem", SharedID: "pool1"},
				{Category: "Legal", SpentUSD: decimal.NewFromInt(5), SpentBase: decimal.Zero, BudgetQuarterly: decimal.NewFromInt(50), Group: "Operations"},
			},
			Totals: aggregation.WalletBudgetTotals{Spent: decimal.NewFromInt(35), BudgetQuarterly: decimal.NewFromInt(500)},
			Groups: []string{"Ecosystem", "Operations", "Other"},
		},
		CurrentPrices: map[string]decimal.Decimal{"SCR": decimal.NewFromInt(2), "ETH": decimal.NewFromInt(3500)},
		Pools: []aggregation.PoolSpend{
			{PoolID: "pool1", Categories: []string{"Grants"}, SpentUSD: decimal.NewFromInt(30), BudgetQuarterly: decimal.NewFromInt(1000)},
		},
		BaseAsset: "SCR",
	}

	md := RenderBudgetMarkdown("DAO Treasury", report)

	for _, want := range []string{
		"Prices: ETH $3500.00 | SCR $2.00",
		"## Ecosystem",
		"| Grants | $30.00 | 15.00 | $100.00 | $0.00 | pool1 |",
		"## Operations",
		"| Legal | $5.00 | 0.00 | $50.00 | $0.00 | - |",
		"| pool1 | Grants | $30.00 | $1000.00 | $0.00 |",
		"| Spent | $35.00 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Other") {
		t.Error("empty group should not be rendered")
	}
}
