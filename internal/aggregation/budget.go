package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
)

// DefaultGroup is the group of a category without a configured budget group.
const DefaultGroup = "Other"

// Budget is the configured budget of one category.
type Budget struct {
	Category  string
	Quarterly decimal.Decimal
	Semester  decimal.Decimal
	Group     string
	SharedID  string // pool id, empty when the category has its own budget
}

// Pool is a budget shared by every category with the same SharedID.
type Pool struct {
	ID        string
	Quarterly decimal.Decimal
	Semester  decimal.Decimal
}

// Totals is a wallet-level budget.
type Totals struct {
	Quarterly decimal.Decimal
	Semester  decimal.Decimal
}

// BudgetPlan is the static budget configuration.
type BudgetPlan struct {
	Budgets       []Budget          // config order; defines the group order
	Pools         []Pool            // explicit pool totals
	WalletTotals  map[string]Totals // wallet id -> totals
	DefaultTotals Totals
}

// budget returns the configured budget of category, zero when absent.
func (p BudgetPlan) budget(category string) Budget {
	for _, b := range p.Budgets {
		if b.Category == category {
			return b
		}
	}
	return Budget{Category: category, Quarterly: decimal.Zero, Semester: decimal.Zero}
}

// Groups returns the distinct budget groups in config order.
func (p BudgetPlan) Groups() []string {
	seen := make(map[string]struct{})
	var groups []string
	for _, b := range p.Budgets {
		g := b.Group
		if g == "" {
			g = DefaultGroup
		}
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			groups = append(groups, g)
		}
	}
	return groups
}

// TotalsFor returns the wallet's totals, falling back to the default table.
func (p BudgetPlan) TotalsFor(walletID string) Totals {
	if t, ok := p.WalletTotals[walletID]; ok {
		return t
	}
	return p.DefaultTotals
}

// CategoryBudget compares one category's spend against its configured budget.
type CategoryBudget struct {
	Category        string
	SpentUSD        decimal.Decimal
	SpentBase       decimal.Decimal
	BudgetQuarterly decimal.Decimal
	BudgetSemester  decimal.Decimal
	Group           string
	SharedID        string
}

// WalletBudgetTotals sums a wallet's category rows against its wallet budget.
type WalletBudgetTotals struct {
	Spent           decimal.Decimal
	SpentBase       decimal.Decimal
	BudgetQuarterly decimal.Decimal
	BudgetSemester  decimal.Decimal
}

// BudgetComparison is the budget-vs-actual view of one wallet.
type BudgetComparison struct {
	Categories []CategoryBudget
	Totals     WalletBudgetTotals
	Groups     []string
}

// ComputeBudgetComparison sums spend for every wallet category except
// "Uncategorised", in the given category order.
func ComputeBudgetComparison(walletID string, categories []string, txs []*domain.Transaction, plan BudgetPlan, baseAsset string, prices PriceResolver) *BudgetComparison {
	byCategory := make(map[string][]*domain.Transaction)
	for _, tx := range txs {
		if tx.CountsAsSpend() {
			byCategory[tx.Category] = append(byCategory[tx.Category], tx)
		}
	}

	cmp := &BudgetComparison{
		Totals: WalletBudgetTotals{Spent: decimal.Zero, SpentBase: decimal.Zero},
		Groups: plan.Groups(),
	}
	for _, category := range categories {
		if category == domain.Uncategorised {
			continue
		}
		b := plan.budget(category)
		row := CategoryBudget{
			Category:        category,
			SpentUSD:        decimal.Zero,
			SpentBase:       decimal.Zero,
			BudgetQuarterly: b.Quarterly,
			BudgetSemester:  b.Semester,
			Group:           b.Group,
			SharedID:        b.SharedID,
		}
		if row.Group == "" {
			row.Group = DefaultGroup
		}
		for _, tx := range byCategory[category] {
			usd := usdValue(tx, prices)
			row.SpentUSD = row.SpentUSD.Add(usd)
			row.SpentBase = row.SpentBase.Add(baseValue(tx, usd, baseAsset, prices))
		}
		cmp.Categories = append(cmp.Categories, row)
		cmp.Totals.Spent = cmp.Totals.Spent.Add(row.SpentUSD)
		cmp.Totals.SpentBase = cmp.Totals.SpentBase.Add(row.SpentBase)
	}

	totals := plan.TotalsFor(walletID)
	cmp.Totals.BudgetQuarterly = totals.Quarterly
	cmp.Totals.BudgetSemester = totals.Semester
	return cmp
}

// PoolSpend compares the combined spend of a shared pool against its single budget.
type PoolSpend struct {
	PoolID          string
	Categories      []string
	SpentUSD        decimal.Decimal
	SpentBase       decimal.Decimal
	BudgetQuarterly decimal.Decimal
	BudgetSemester  decimal.Decimal
}

// PoolRollup sums per-category rows into their shared pools. The pool budget
// is the pool's own total, never a member category's configured amount.
// Categories without a SharedID are not included. Ordered by pool id.
func PoolRollup(rows []CategoryBudget, pools []Pool) []PoolSpend {
	totals := make(map[string]Pool, len(pools))
	for _, p := range pools {
		totals[p.ID] = p
	}

	byPool := make(map[string]*PoolSpend)
	for _, row := range rows {
		if row.SharedID == "" {
			continue
		}
		ps, ok := byPool[row.SharedID]
		if !ok {
			p := totals[row.SharedID]
			ps = &PoolSpend{
				PoolID:          row.SharedID,
				SpentUSD:        decimal.Zero,
				SpentBase:       decimal.Zero,
				BudgetQuarterly: p.Quarterly,
				BudgetSemester:  p.Semester,
			}
			byPool[row.SharedID] = ps
		}
		ps.Categories = append(ps.Categories, row.Category)
		ps.SpentUSD = ps.SpentUSD.Add(row.SpentUSD)
		ps.SpentBase = ps.SpentBase.Add(row.SpentBase)
	}

	result := make([]PoolSpend, 0, len(byPool))
	for _, ps := range byPool {
		result = append(result, *ps)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PoolID < result[j].PoolID })
	return result
}
