package aggregation

import (
	"context"
	"fmt"
	"time"

	"treasury-ledger/internal/storage"
)

// Engine loads spend rows from the ledger and runs the compute functions.
type Engine struct {
	txs       storage.TransactionStore
	baseAsset string
	now       func() time.Time
}

// Options configures an Engine.
type Options struct {
	Transactions storage.TransactionStore
	BaseAsset    string
	Clock        func() time.Time // time.Now when nil
}

// NewEngine creates an aggregation Engine.
func NewEngine(opts Options) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{txs: opts.Transactions, baseAsset: opts.BaseAsset, now: now}
}

// BaseAsset returns the symbol used for base-asset equivalents.
func (e *Engine) BaseAsset() string {
	return e.baseAsset
}

// SpendByCategory returns the wallet's category spend.
func (e *Engine) SpendByCategory(ctx context.Context, walletID string, prices PriceResolver) ([]CategorySpend, error) {
	txs, err := e.txs.ListSpend(ctx, walletID, 0)
	if err != nil {
		return nil, fmt.Errorf("list spend: %w", err)
	}
	return ComputeSpendByCategory(txs, prices), nil
}

// MonthlyBurn returns the wallet's burn over the trailing BurnWindow.
func (e *Engine) MonthlyBurn(ctx context.Context, walletID string, prices PriceResolver) ([]MonthlyBurn, error) {
	since := e.now().Unix() - BurnWindow
	txs, err := e.txs.ListSpend(ctx, walletID, since)
	if err != nil {
		return nil, fmt.Errorf("list spend: %w", err)
	}
	return ComputeMonthlyBurn(txs, since, e.baseAsset, prices), nil
}

// BudgetComparison returns the wallet's budget-vs-actual view for categories.
func (e *Engine) BudgetComparison(ctx context.Context, walletID string, categories []string, plan BudgetPlan, prices PriceResolver) (*BudgetComparison, error) {
	txs, err := e.txs.ListSpend(ctx, walletID, 0)
	if err != nil {
		return nil, fmt.Errorf("list spend: %w", err)
	}
	return ComputeBudgetComparison(walletID, categories, txs, plan, e.baseAsset, prices), nil
}
