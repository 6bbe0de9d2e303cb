// Package config loads the static treasury configuration: wallets, categories,
// budgets and pools, token price ids, upstream endpoints and storage.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"treasury-ledger/internal/aggregation"
	"treasury-ledger/internal/domain"
)

// Environment overrides.
const (
	EnvExplorerAPIKey = "TREASURY_EXPLORER_API_KEY"
	EnvPostgresDSN    = "TREASURY_POSTGRES_DSN"
	EnvClickhouseDSN  = "TREASURY_CLICKHOUSE_DSN"
)

// DefaultTotalsKey is the budget_totals entry used for wallets without their own.
const DefaultTotalsKey = "default"

// Config is the full treasury configuration.
type Config struct {
	Wallets      []Wallet           `yaml:"wallets"`
	Budgets      []Budget           `yaml:"budgets"`
	Pools        []Pool             `yaml:"pools"`
	BudgetTotals map[string]Amounts `yaml:"budget_totals"`
	Tokens       map[string]string  `yaml:"tokens"` // symbol -> coingecko id
	BaseAsset    string             `yaml:"base_asset"`
	Upstream     Upstream           `yaml:"upstream"`
	Ingestion    Ingestion          `yaml:"ingestion"`
	Pricing      Pricing            `yaml:"pricing"`
	Storage      Storage            `yaml:"storage"`
}

// Wallet is a tracked multisig and its expense categories.
type Wallet struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Address     string   `yaml:"address"`
	Description string   `yaml:"description"`
	Categories  []string `yaml:"categories"`
}

// Budget is the USD allocation of one category.
type Budget struct {
	Category  string          `yaml:"category"`
	Quarterly decimal.Decimal `yaml:"quarterly"`
	Semester  decimal.Decimal `yaml:"semester"`
	Group     string          `yaml:"group"`
	SharedID  string          `yaml:"shared_id"`
}

// Pool is the single allocation shared by every budget with its id as shared_id.
type Pool struct {
	ID        string          `yaml:"id"`
	Quarterly decimal.Decimal `yaml:"quarterly"`
	Semester  decimal.Decimal `yaml:"semester"`
}

// Amounts is a quarterly and semester USD pair.
type Amounts struct {
	Quarterly decimal.Decimal `yaml:"quarterly"`
	Semester  decimal.Decimal `yaml:"semester"`
}

// Upstream holds endpoints and call policy of the upstream services.
type Upstream struct {
	ExplorerURL     string        `yaml:"explorer_url"`
	ExplorerAPIKey  string        `yaml:"explorer_api_key"`
	ChainID         int64         `yaml:"chain_id"`
	SafeURL         string        `yaml:"safe_url"`
	PriceURL        string        `yaml:"price_url"`
	ExplorerTimeout time.Duration `yaml:"explorer_timeout"`
	PriceTimeout    time.Duration `yaml:"price_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	PacingDelay     time.Duration `yaml:"pacing_delay"`
	PriceDelay      time.Duration `yaml:"price_delay"`
}

// Ingestion holds scheduler and worker pool settings.
type Ingestion struct {
	Interval  time.Duration `yaml:"interval"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
}

// Pricing holds price cache and backfill settings.
type Pricing struct {
	CurrentTTL    time.Duration `yaml:"current_ttl"`
	ReferenceHour int           `yaml:"reference_hour"`
}

// Storage selects the ledger backend.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional price sample store
	UseMemory     bool   `yaml:"use_memory"`
}

// Default returns a Config with every default applied and no wallets.
func Default() *Config {
	return &Config{
		BudgetTotals: map[string]Amounts{},
		Tokens: map[string]string{
			"ETH":  "ethereum",
			"WETH": "weth",
			"SCR":  "scroll",
			"USDC": "usd-coin",
			"USDT": "tether",
			"DAI":  "dai",
			"WBTC": "bitcoin",
		},
		BaseAsset: "SCR",
		Upstream: Upstream{
			ExplorerURL:     "https://api.etherscan.io/v2/api",
			ChainID:         534352,
			SafeURL:         "https://safe-transaction-scroll.safe.global/api/v1",
			PriceURL:        "https://coins.llama.fi",
			ExplorerTimeout: 30 * time.Second,
			PriceTimeout:    10 * time.Second,
			MaxAttempts:     3,
			PacingDelay:     300 * time.Millisecond,
			PriceDelay:      500 * time.Millisecond,
		},
		Ingestion: Ingestion{
			Interval:  15 * time.Minute,
			Workers:   2,
			QueueSize: 16,
		},
		Pricing: Pricing{
			CurrentTTL:    300 * time.Second,
			ReferenceHour: 12,
		},
	}
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and DSNs from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvExplorerAPIKey); v != "" {
		c.Upstream.ExplorerAPIKey = v
	}
	if v := getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := getenv(EnvClickhouseDSN); v != "" {
		c.Storage.ClickhouseDSN = v
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.BaseAsset) == "" {
		errs = append(errs, errors.New("base_asset is empty"))
	}

	seen := make(map[string]struct{}, len(c.Wallets))
	for _, w := range c.Wallets {
		if w.ID == "" {
			errs = append(errs, errors.New("wallet with empty id"))
			continue
		}
		if _, dup := seen[w.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate wallet id %q", w.ID))
		}
		seen[w.ID] = struct{}{}
		if !slices.Contains(w.Categories, domain.Uncategorised) {
			errs = append(errs, fmt.Errorf("wallet %q: categories must include %q", w.ID, domain.Uncategorised))
		}
	}

	pools := make(map[string]struct{}, len(c.Pools))
	for _, p := range c.Pools {
		if p.ID == "" {
			errs = append(errs, errors.New("pool with empty id"))
		}
		if p.Quarterly.IsNegative() || p.Semester.IsNegative() {
			errs = append(errs, fmt.Errorf("pool %q: negative budget", p.ID))
		}
		pools[p.ID] = struct{}{}
	}

	for _, b := range c.Budgets {
		if b.Quarterly.IsNegative() || b.Semester.IsNegative() {
			errs = append(errs, fmt.Errorf("budget %q: negative amount", b.Category))
		}
		if b.SharedID != "" {
			if _, ok := pools[b.SharedID]; !ok {
				errs = append(errs, fmt.Errorf("budget %q: unknown pool %q", b.Category, b.SharedID))
			}
		}
	}

	for id, t := range c.BudgetTotals {
		if t.Quarterly.IsNegative() || t.Semester.IsNegative() {
			errs = append(errs, fmt.Errorf("budget_totals %q: negative amount", id))
		}
	}

	if c.Upstream.ChainID <= 0 {
		errs = append(errs, errors.New("upstream.chain_id must be positive"))
	}
	if c.Upstream.MaxAttempts <= 0 {
		errs = append(errs, errors.New("upstream.max_attempts must be positive"))
	}
	if c.Pricing.ReferenceHour < 0 || c.Pricing.ReferenceHour > 23 {
		errs = append(errs, errors.New("pricing.reference_hour must be within 0-23"))
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("storage.postgres_dsn is required (set %s or storage.use_memory)", EnvPostgresDSN))
	}

	return errors.Join(errs...)
}

// Wallet returns the configured wallet with id.
func (c *Config) Wallet(id string) (Wallet, bool) {
	for _, w := range c.Wallets {
		if w.ID == id {
			return w, true
		}
	}
	return Wallet{}, false
}

// Categories returns the categories of a wallet, or just "Uncategorised" for
// an unknown wallet.
func (c *Config) Categories(walletID string) []string {
	if w, ok := c.Wallet(walletID); ok {
		return append([]string(nil), w.Categories...)
	}
	return []string{domain.Uncategorised}
}

// DomainWallets converts the wallet list for seeding.
func (c *Config) DomainWallets() []*domain.Wallet {
	out := make([]*domain.Wallet, 0, len(c.Wallets))
	for _, w := range c.Wallets {
		out = append(out, &domain.Wallet{
			ID:          w.ID,
			Name:        w.Name,
			Address:     w.Address,
			Description: w.Description,
		})
	}
	return out
}

// BudgetPlan converts budgets, pools and totals for the aggregation engine.
func (c *Config) BudgetPlan() aggregation.BudgetPlan {
	plan := aggregation.BudgetPlan{
		WalletTotals:  make(map[string]aggregation.Totals, len(c.BudgetTotals)),
		DefaultTotals: aggregation.Totals{Quarterly: decimal.Zero, Semester: decimal.Zero},
	}
	for _, b := range c.Budgets {
		plan.Budgets = append(plan.Budgets, aggregation.Budget{
			Category:  b.Category,
			Quarterly: b.Quarterly,
			Semester:  b.Semester,
			Group:     b.Group,
			SharedID:  b.SharedID,
		})
	}
	for _, p := range c.Pools {
		plan.Pools = append(plan.Pools, aggregation.Pool{ID: p.ID, Quarterly: p.Quarterly, Semester: p.Semester})
	}
	for id, t := range c.BudgetTotals {
		totals := aggregation.Totals{Quarterly: t.Quarterly, Semester: t.Semester}
		if id == DefaultTotalsKey {
			plan.DefaultTotals = totals
			continue
		}
		plan.WalletTotals[id] = totals
	}
	return plan
}
