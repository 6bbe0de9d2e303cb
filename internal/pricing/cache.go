package pricing

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"treasury-ledger/internal/observability"
)

// DefaultCurrentTTL is how long a current price is served without refetching.
const DefaultCurrentTTL = 300 * time.Second

// DefaultCacheSize bounds the number of cached symbols.
const DefaultCacheSize = 256

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

type currentEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// CurrentCache serves current USD prices by symbol with a TTL.
// On expiry it refreshes every configured symbol in one provider call; on
// failure it keeps serving the last known value, stale, and zero when nothing
// was ever cached.
type CurrentCache struct {
	provider Provider
	ids      map[string]string // symbol -> provider id
	ttl      time.Duration
	now      Clock
	logger   zerolog.Logger

	entries *lru.Cache[string, currentEntry]
	group   singleflight.Group

	mu          sync.Mutex
	lastAttempt time.Time
}

// CacheOptions configures a CurrentCache.
type CacheOptions struct {
	Provider Provider
	Tokens   map[string]string // symbol -> provider id
	TTL      time.Duration     // DefaultCurrentTTL when zero
	Clock    Clock             // time.Now when nil
	Size     int               // DefaultCacheSize when zero
	Logger   zerolog.Logger
}

// NewCurrentCache creates a CurrentCache.
func NewCurrentCache(opts CacheOptions) *CurrentCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultCurrentTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Size <= 0 {
		opts.Size = DefaultCacheSize
	}
	if opts.Size < len(opts.Tokens) {
		opts.Size = len(opts.Tokens)
	}
	entries, _ := lru.New[string, currentEntry](opts.Size) // only fails for size <= 0

	ids := make(map[string]string, len(opts.Tokens))
	for sym, id := range opts.Tokens {
		ids[sym] = id
	}

	return &CurrentCache{
		provider: opts.Provider,
		ids:      ids,
		ttl:      opts.TTL,
		now:      opts.Clock,
		logger:   opts.Logger.With().Str("component", "price_cache").Logger(),
		entries:  entries,
	}
}

// Get returns the current price of symbol and whether it is within the TTL.
// A stale or zero price is returned with isFresh false.
func (c *CurrentCache) Get(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if _, known := c.ids[symbol]; !known {
		observability.RecordCurrentPrice("unknown")
		return decimal.Zero, false
	}

	if e, ok := c.entries.Get(symbol); ok && c.fresh(e) {
		observability.RecordCurrentPrice("hit")
		return e.price, true
	}

	c.refresh(ctx)

	e, ok := c.entries.Get(symbol)
	switch {
	case !ok:
		observability.RecordCurrentPrice("miss")
		return decimal.Zero, false
	case c.fresh(e):
		observability.RecordCurrentPrice("refreshed")
		return e.price, true
	default:
		observability.RecordCurrentPrice("stale")
		return e.price, false
	}
}

// Snapshot returns the current price of every configured symbol, refreshing at
// most once. Symbols never priced map to zero.
func (c *CurrentCache) Snapshot(ctx context.Context) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.ids))
	for _, sym := range c.Symbols() {
		price, _ := c.Get(ctx, sym)
		out[sym] = price
	}
	return out
}

// Symbols returns the configured symbols in ascending order.
func (c *CurrentCache) Symbols() []string {
	syms := make([]string, 0, len(c.ids))
	for sym := range c.ids {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func (c *CurrentCache) fresh(e currentEntry) bool {
	return c.now().Sub(e.fetchedAt) < c.ttl
}

// refresh fetches all configured symbols. Concurrent callers share one call,
// and at most one attempt is made per TTL window, successful or not.
func (c *CurrentCache) refresh(ctx context.Context) {
	_, _, _ = c.group.Do("current", func() (interface{}, error) {
		now := c.now()

		c.mu.Lock()
		if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.ttl {
			c.mu.Unlock()
			return nil, nil
		}
		c.lastAttempt = now
		c.mu.Unlock()

		if c.provider == nil {
			return nil, nil
		}

		idToSymbols := make(map[string][]string, len(c.ids))
		ids := make([]string, 0, len(c.ids))
		for sym, id := range c.ids {
			if _, seen := idToSymbols[id]; !seen {
				ids = append(ids, id)
			}
			idToSymbols[id] = append(idToSymbols[id], sym)
		}

		prices, err := c.provider.Current(ctx, ids)
		if err != nil {
			c.logger.Error().Err(err).Msg("current price refresh failed, serving cached values")
			return nil, err
		}
		for id, price := range prices {
			for _, sym := range idToSymbols[id] {
				c.entries.Add(sym, currentEntry{price: price, fetchedAt: now})
			}
		}
		c.logger.Debug().Int("prices", len(prices)).Msg("current prices refreshed")
		return nil, nil
	})
}
