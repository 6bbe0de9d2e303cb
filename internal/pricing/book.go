package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// Book is a point-in-time view of all prices used by one aggregation call:
// every stored historical sample plus one snapshot of current prices.
type Book struct {
	samples map[domain.SymbolDate]decimal.Decimal
	current map[string]decimal.Decimal
}

// NewBook creates a Book from explicit maps.
func NewBook(samples map[domain.SymbolDate]decimal.Decimal, current map[string]decimal.Decimal) *Book {
	if samples == nil {
		samples = map[domain.SymbolDate]decimal.Decimal{}
	}
	if current == nil {
		current = map[string]decimal.Decimal{}
	}
	return &Book{samples: samples, current: current}
}

// LoadBook reads all samples and snapshots the current cache.
func LoadBook(ctx context.Context, store storage.PriceSampleStore, cache *CurrentCache) (*Book, error) {
	list, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list price samples: %w", err)
	}
	samples := make(map[domain.SymbolDate]decimal.Decimal, len(list))
	for _, p := range list {
		samples[domain.SymbolDate{Symbol: p.Symbol, Date: p.Date}] = p.Price
	}

	var current map[string]decimal.Decimal
	if cache != nil {
		current = cache.Snapshot(ctx)
	}
	return NewBook(samples, current), nil
}

// Resolve returns the USD price of symbol on date: the stored sample when one
// exists (a zero sentinel included), else the current price, else zero.
func (b *Book) Resolve(symbol, date string) decimal.Decimal {
	if p, ok := b.samples[domain.SymbolDate{Symbol: symbol, Date: date}]; ok {
		return p
	}
	return b.Current(symbol)
}

// Current returns the snapshot current price of symbol, zero if unknown.
func (b *Book) Current(symbol string) decimal.Decimal {
	if p, ok := b.current[symbol]; ok {
		return p
	}
	return decimal.Zero
}

// CurrentPrices returns a copy of the current price snapshot.
func (b *Book) CurrentPrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.current))
	for k, v := range b.current {
		out[k] = v
	}
	return out
}
