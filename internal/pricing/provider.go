// Package pricing provides USD prices: a current-price TTL cache, a persistent
// historical backfill, and the resolution rule used by aggregations.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider looks up USD prices by provider-specific token id (coingecko ids).
type Provider interface {
	// Current returns the latest price of each id. Ids without a price are absent.
	Current(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)

	// Historical returns the price of id closest to at. A zero price means the
	// provider answered without a usable value.
	Historical(ctx context.Context, id string, at time.Time) (decimal.Decimal, error)
}
