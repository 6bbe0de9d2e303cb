// Package aggregation computes price-weighted spend figures over ledger rows.
// The compute functions are pure: they take rows and a price resolver and
// never touch storage.
package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
)

// PriceResolver resolves the USD price of a symbol on a calendar date.
// Implementations apply: historical sample, else current price, else zero.
type PriceResolver interface {
	Resolve(symbol, date string) decimal.Decimal
}

// BurnWindow is the trailing window of the monthly burn.
const BurnWindow = 180 * 24 * 60 * 60 // seconds

// CategorySpend is the outgoing total of one (category, symbol).
type CategorySpend struct {
	Category string
	Symbol   string
	Amount   decimal.Decimal
	USD      decimal.Decimal
	TxCount  int
}

// MonthlyBurn is the outgoing total of one (month, symbol).
type MonthlyBurn struct {
	Month  string // YYYY-MM
	Symbol string
	Amount decimal.Decimal
	USD    decimal.Decimal
	Base   decimal.Decimal // base-asset equivalent
}

// usdValue returns amount × resolved price at the row's date.
func usdValue(tx *domain.Transaction, prices PriceResolver) decimal.Decimal {
	return tx.Value.Mul(prices.Resolve(tx.TokenSymbol, domain.DateOf(tx.Timestamp)))
}

// baseValue returns the base-asset equivalent of a row worth usd: the amount
// itself for the base asset, else usd / base price at the same date, zero when
// that price is unavailable.
func baseValue(tx *domain.Transaction, usd decimal.Decimal, baseAsset string, prices PriceResolver) decimal.Decimal {
	if tx.TokenSymbol == baseAsset {
		return tx.Value
	}
	basePrice := prices.Resolve(baseAsset, domain.DateOf(tx.Timestamp))
	if !basePrice.IsPositive() {
		return decimal.Zero
	}
	return usd.Div(basePrice)
}

// ComputeSpendByCategory groups spend rows by (category, symbol). Rows that
// are not outgoing non-error transfers are ignored. Ordering: "Uncategorised"
// first, then categories by descending USD total, then by name; within a
// category by descending USD, then symbol.
func ComputeSpendByCategory(txs []*domain.Transaction, prices PriceResolver) []CategorySpend {
	type key struct{ category, symbol string }

	groups := make(map[key]*CategorySpend)
	categoryTotals := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if !tx.CountsAsSpend() {
			continue
		}
		category := tx.Category
		if category == "" {
			category = domain.Uncategorised
		}
		k := key{category, tx.TokenSymbol}
		g, ok := groups[k]
		if !ok {
			g = &CategorySpend{Category: category, Symbol: tx.TokenSymbol, Amount: decimal.Zero, USD: decimal.Zero}
			groups[k] = g
		}
		usd := usdValue(tx, prices)
		g.Amount = g.Amount.Add(tx.Value)
		g.USD = g.USD.Add(usd)
		g.TxCount++
		categoryTotals[category] = categoryTotals[category].Add(usd)
	}

	result := make([]CategorySpend, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Category != b.Category {
			if a.Category == domain.Uncategorised {
				return true
			}
			if b.Category == domain.Uncategorised {
				return false
			}
			if c := categoryTotals[a.Category].Cmp(categoryTotals[b.Category]); c != 0 {
				return c > 0
			}
			return a.Category < b.Category
		}
		if c := a.USD.Cmp(b.USD); c != 0 {
			return c > 0
		}
		return a.Symbol < b.Symbol
	})
	return result
}

// ComputeMonthlyBurn groups spend rows with timestamp >= since by (month, symbol),
// ascending by month then symbol.
func ComputeMonthlyBurn(txs []*domain.Transaction, since int64, baseAsset string, prices PriceResolver) []MonthlyBurn {
	type key struct{ month, symbol string }

	groups := make(map[key]*MonthlyBurn)
	for _, tx := range txs {
		if !tx.CountsAsSpend() || tx.Timestamp < since {
			continue
		}
		k := key{domain.MonthOf(tx.Timestamp), tx.TokenSymbol}
		g, ok := groups[k]
		if !ok {
			g = &MonthlyBurn{Month: k.month, Symbol: k.symbol, Amount: decimal.Zero, USD: decimal.Zero, Base: decimal.Zero}
			groups[k] = g
		}
		usd := usdValue(tx, prices)
		g.Amount = g.Amount.Add(tx.Value)
		g.USD = g.USD.Add(usd)
		g.Base = g.Base.Add(baseValue(tx, usd, baseAsset, prices))
	}

	result := make([]MonthlyBurn, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Month != result[j].Month {
			return result[i].Month < result[j].Month
		}
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// TotalSpendUSD sums the USD value of every outgoing non-error row.
func TotalSpendUSD(txs []*domain.Transaction, prices PriceResolver) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.CountsAsSpend() {
			total = total.Add(usdValue(tx, prices))
		}
	}
	return total
}
