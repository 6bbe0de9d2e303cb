// Package treasury exposes the read and write operations consumed by the web
// layer and the CLI: ingestion triggers, ledger queries, categorisation, wallet
// stats, budget comparison and ledger export.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury-ledger/internal/aggregation"
	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/ingestion"
	"treasury-ledger/internal/pricing"
	"treasury-ledger/internal/storage"
)

// Service is the facade over stores, price cache and aggregation engine.
type Service struct {
	wallets    storage.WalletStore
	txs        storage.TransactionStore
	balances   storage.BalanceStore
	samples    storage.PriceSampleStore
	cache      *pricing.CurrentCache
	engine     *aggregation.Engine
	plan       aggregation.BudgetPlan
	categories func(walletID string) []string
	submit     ingestion.Submitter
	logger     zerolog.Logger
}

// Options configures a Service.
type Options struct {
	Wallets      storage.WalletStore
	Transactions storage.TransactionStore
	Balances     storage.BalanceStore
	Samples      storage.PriceSampleStore
	Cache        *pricing.CurrentCache
	Engine       *aggregation.Engine
	Plan         aggregation.BudgetPlan
	Categories   func(walletID string) []string
	Submitter    ingestion.Submitter // nil disables ingestion triggers
	Logger       zerolog.Logger
}

// ErrIngestionDisabled is returned by triggers when the service has no submitter.
var ErrIngestionDisabled = errors.New("ingestion disabled")

// New creates a Service.
func New(opts Options) *Service {
	categories := opts.Categories
	if categories == nil {
		categories = func(string) []string { return []string{domain.Uncategorised} }
	}
	return &Service{
		wallets:    opts.Wallets,
		txs:        opts.Transactions,
		balances:   opts.Balances,
		samples:    opts.Samples,
		cache:      opts.Cache,
		engine:     opts.Engine,
		plan:       opts.Plan,
		categories: categories,
		submit:     opts.Submitter,
		logger:     opts.Logger.With().Str("component", "treasury").Logger(),
	}
}

// RunFullIngestion queues a sweep over every wallet and returns immediately.
// queued is false when a sweep is already pending.
func (s *Service) RunFullIngestion() (queued bool, err error) {
	if s.submit == nil {
		return false, ErrIngestionDisabled
	}
	return s.submit.Submit(ingestion.AllWallets), nil
}

// RunWalletIngestion queues a single-wallet run and returns immediately.
func (s *Service) RunWalletIngestion(ctx context.Context, walletID string) (queued bool, err error) {
	if s.submit == nil {
		return false, ErrIngestionDisabled
	}
	if _, err := s.wallets.Get(ctx, walletID); err != nil {
		return false, fmt.Errorf("wallet %s: %w", walletID, err)
	}
	return s.submit.Submit(walletID), nil
}

// Wallets returns the configured wallets ordered by id.
func (s *Service) Wallets(ctx context.Context) ([]*domain.Wallet, error) {
	return s.wallets.List(ctx)
}

// TransactionQuery holds the user-facing query parameters. Dates are
// YYYY-MM-DD in UTC; unparseable dates are ignored.
type TransactionQuery struct {
	Direction string
	Category  string
	Token     string
	DateFrom  string
	DateTo    string // inclusive of the whole day
	Search    string
	Limit     int
	Offset    int
}

// Filter converts the query into a store filter for walletID.
func (q TransactionQuery) Filter(walletID string) storage.TxFilter {
	f := storage.TxFilter{
		WalletID:  walletID,
		Direction: domain.Direction(q.Direction),
		Category:  q.Category,
		Token:     q.Token,
		Search:    q.Search,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if t, err := time.Parse(domain.DateLayout, q.DateFrom); err == nil {
		f.From = t.Unix()
	}
	if t, err := time.Parse(domain.DateLayout, q.DateTo); err == nil {
		f.To = t.Unix() + 86400
	}
	return f.Normalize()
}

// TransactionPage is one page of query results.
type TransactionPage struct {
	Transactions []*domain.Transaction
	Total        int
	Limit        int
	Offset       int
}

// QueryTransactions returns one page of the wallet's ledger, newest first.
func (s *Service) QueryTransactions(ctx context.Context, walletID string, q TransactionQuery) (*TransactionPage, error) {
	f := q.Filter(walletID)
	rows, total, err := s.txs.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return &TransactionPage{Transactions: rows, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// CategoriseTransaction sets category and notes. An empty category resets the
// row to Uncategorised. Returns storage.ErrNotFound for an unknown id.
func (s *Service) CategoriseTransaction(ctx context.Context, id int64, category, notes string) error {
	if category == "" {
		category = domain.Uncategorised
	}
	if err := s.txs.UpdateCategory(ctx, id, category, notes); err != nil {
		return fmt.Errorf("categorise %d: %w", id, err)
	}
	return nil
}

// CategoryUpdate is one item of a bulk categorisation.
type CategoryUpdate struct {
	ID       int64
	Category string
	Notes    string
}

// BulkCategorise applies every update and returns the number of rows changed.
// Items without an id and unknown ids are skipped.
func (s *Service) BulkCategorise(ctx context.Context, items []CategoryUpdate) (int, error) {
	updated := 0
	for _, item := range items {
		if item.ID == 0 {
			continue
		}
		err := s.CategoriseTransaction(ctx, item.ID, item.Category, item.Notes)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// BalanceView is a balance valued at the current price.
type BalanceView struct {
	*domain.Balance
	PriceUSD   decimal.Decimal
	BalanceUSD decimal.Decimal
}

// WalletStats is the dashboard view of one wallet.
type WalletStats struct {
	Wallet          *domain.Wallet
	Balances        []BalanceView
	SpendByCategory []aggregation.CategorySpend
	MonthlyBurn     []aggregation.MonthlyBurn
	Counts          storage.TxCounts
	Tokens          []string
	BaseAsset       string
}

// WalletStats builds balances, spend, burn, counts and token list for a wallet.
func (s *Service) WalletStats(ctx context.Context, walletID string) (*WalletStats, error) {
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", walletID, err)
	}
	book, err := pricing.LoadBook(ctx, s.samples, s.cache)
	if err != nil {
		return nil, err
	}

	balances, err := s.balances.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	views := make([]BalanceView, 0, len(balances))
	for _, b := range balances {
		price := book.Current(b.TokenSymbol)
		views = append(views, BalanceView{Balance: b, PriceUSD: price, BalanceUSD: b.Value.Mul(price)})
	}

	spend, err := s.engine.SpendByCategory(ctx, walletID, book)
	if err != nil {
		return nil, err
	}
	burn, err := s.engine.MonthlyBurn(ctx, walletID, book)
	if err != nil {
		return nil, err
	}
	counts, err := s.txs.Counts(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	tokens, err := s.txs.TokenSymbols(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	return &WalletStats{
		Wallet:          w,
		Balances:        views,
		SpendByCategory: spend,
		MonthlyBurn:     burn,
		Counts:          counts,
		Tokens:          tokens,
		BaseAsset:       s.engine.BaseAsset(),
	}, nil
}

// BudgetReport is the budget-vs-actual view of one wallet.
type BudgetReport struct {
	*aggregation.BudgetComparison
	CurrentPrices map[string]decimal.Decimal
	Pools         []aggregation.PoolSpend
	BaseAsset     string
}

// BudgetComparison compares the wallet's category spend with the budget plan.
func (s *Service) BudgetComparison(ctx context.Context, walletID string) (*BudgetReport, error) {
	if _, err := s.wallets.Get(ctx, walletID); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", walletID, err)
	}
	book, err := pricing.LoadBook(ctx, s.samples, s.cache)
	if err != nil {
		return nil, err
	}
	cmp, err := s.engine.BudgetComparison(ctx, walletID, s.categories(walletID), s.plan, book)
	if err != nil {
		return nil, err
	}
	return &BudgetReport{
		BudgetComparison: cmp,
		CurrentPrices:    book.CurrentPrices(),
		Pools:            aggregation.PoolRollup(cmp.Categories, s.plan.Pools),
		BaseAsset:        s.engine.BaseAsset(),
	}, nil
}

// ExportLedger returns every row of the wallet, newest first.
func (s *Service) ExportLedger(ctx context.Context, walletID string) ([]*domain.Transaction, error) {
	if _, err := s.wallets.Get(ctx, walletID); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", walletID, err)
	}
	rows, err := s.txs.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("export ledger: %w", err)
	}
	s.logger.Debug().Str("wallet", walletID).Int("rows", len(rows)).Msg("ledger exported")
	return rows, nil
}
