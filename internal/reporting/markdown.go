package reporting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/treasury"
)

func usd(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// RenderStatsMarkdown renders wallet stats as Markdown string.
func RenderStatsMarkdown(s *treasury.WalletStats) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", s.Wallet.Name))
	if s.Wallet.Address != "" {
		sb.WriteString(fmt.Sprintf("Address: `%s`\n\n", s.Wallet.Address))
	} else {
		sb.WriteString("Address: not configured\n\n")
	}
	sb.WriteString(fmt.Sprintf("Transactions: %d | In: %d | Out: %d | Uncategorised: %d\n\n",
		s.Counts.Total, s.Counts.Incoming, s.Counts.Outgoing, s.Counts.Uncategorised))

	// Balances
	sb.WriteString("## Balances\n\n")
	if len(s.Balances) > 0 {
		sb.WriteString("| Token | Balance | Price | Value |\n")
		sb.WriteString("|-------|---------|-------|-------|\n")
		for _, b := range s.Balances {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				b.TokenSymbol, b.Value.StringFixed(4), usd(b.PriceUSD), usd(b.BalanceUSD)))
		}
	} else {
		sb.WriteString("No balances yet.\n")
	}
	sb.WriteString("\n")

	// Spend by category
	sb.WriteString("## Spend by Category\n\n")
	if len(s.SpendByCategory) > 0 {
		sb.WriteString("| Category | Token | Amount | USD | Txs |\n")
		sb.WriteString("|----------|-------|--------|-----|-----|\n")
		for _, c := range s.SpendByCategory {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
				c.Category, c.Symbol, c.Amount.StringFixed(4), usd(c.USD), c.TxCount))
		}
	} else {
		sb.WriteString("No outgoing transactions.\n")
	}
	sb.WriteString("\n")

	// Monthly burn
	sb.WriteString("## Monthly Burn\n\n")
	if len(s.MonthlyBurn) > 0 {
		sb.WriteString(fmt.Sprintf("| Month | Token | Amount | USD | %s |\n", s.BaseAsset))
		sb.WriteString("|-------|-------|--------|-----|-----|\n")
		for _, m := range s.MonthlyBurn {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				m.Month, m.Symbol, m.Amount.StringFixed(4), usd(m.USD), m.Base.StringFixed(2)))
		}
	} else {
		sb.WriteString("No spend in the last six months.\n")
	}
	sb.WriteString("\n")

	if len(s.Tokens) > 0 {
		sb.WriteString(fmt.Sprintf("Tokens: %s\n", strings.Join(s.Tokens, ", ")))
	}

	return sb.String()
}

// RenderBudgetMarkdown renders a budget comparison as Markdown string.
func RenderBudgetMarkdown(walletName string, r *treasury.BudgetReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Budget: %s\n\n", walletName))

	// Prices
	if len(r.CurrentPrices) > 0 {
		symbols := make([]string, 0, len(r.CurrentPrices))
		for sym := range r.CurrentPrices {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		parts := make([]string, 0, len(symbols))
		for _, sym := range symbols {
			parts = append(parts, fmt.Sprintf("%s %s", sym, usd(r.CurrentPrices[sym])))
		}
		sb.WriteString(fmt.Sprintf("Prices: %s\n\n", strings.Join(parts, " | ")))
	}

	// Categories, grouped
	for _, group := range r.Groups {
		var rows []string
		for _, c := range r.Categories {
			if c.Group != group {
				continue
			}
			shared := c.SharedID
			if shared == "" {
				shared = "-"
			}
			rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				c.Category, usd(c.SpentUSD), c.SpentBase.StringFixed(2),
				usd(c.BudgetQuarterly), usd(c.BudgetSemester), shared))
		}
		if len(rows) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", group))
		sb.WriteString(fmt.Sprintf("| Category | Spent | Spent %s | Quarterly | Semester | Pool |\n", r.BaseAsset))
		sb.WriteString("|----------|-------|----------|-----------|----------|------|\n")
		for _, row := range rows {
			sb.WriteString(row)
		}
		sb.WriteString("\n")
	}

	// Shared pools
	if len(r.Pools) > 0 {
		sb.WriteString("## Shared Pools\n\n")
		sb.WriteString("| Pool | Categories | Spent | Quarterly | Semester |\n")
		sb.WriteString("|------|------------|-------|-----------|----------|\n")
		for _, p := range r.Pools {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				p.PoolID, strings.Join(p.Categories, ", "),
				usd(p.SpentUSD), usd(p.BudgetQuarterly), usd(p.BudgetSemester)))
		}
		sb.WriteString("\n")
	}

	// Totals
	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Spent | %s |\n", usd(r.Totals.Spent)))
	sb.WriteString(fmt.Sprintf("| Spent (%s) | %s |\n", r.BaseAsset, r.Totals.SpentBase.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("| Quarterly Budget | %s |\n", usd(r.Totals.BudgetQuarterly)))
	sb.WriteString(fmt.Sprintf("| Semester Budget | %s |\n", usd(r.Totals.BudgetSemester)))
	sb.WriteString("\n")

	return sb.String()
}
