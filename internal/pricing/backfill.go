package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/observability"
	"treasury-ledger/internal/storage"
	"treasury-ledger/internal/upstream"
)

// Backfill defaults.
const (
	DefaultBaseAsset     = "SCR"
	DefaultReferenceHour = 12
	DefaultPriceDelay    = 500 * time.Millisecond
)

// Backfiller writes missing historical price samples for every (symbol, date)
// with outgoing activity.
type Backfiller struct {
	provider  Provider
	samples   storage.PriceSampleStore
	txs       storage.TransactionStore
	ids       map[string]string
	baseAsset string
	refHour   int
	pacer     *upstream.Pacer
	logger    zerolog.Logger
}

// BackfillOptions configures a Backfiller.
type BackfillOptions struct {
	Provider      Provider
	Samples       storage.PriceSampleStore
	Transactions  storage.TransactionStore
	Tokens        map[string]string // symbol -> provider id
	BaseAsset     string            // DefaultBaseAsset when empty
	ReferenceHour int               // UTC hour of the lookup; DefaultReferenceHour when zero
	Pacer         *upstream.Pacer   // delay between provider calls; DefaultPriceDelay when nil
	Logger        zerolog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	if opts.BaseAsset == "" {
		opts.BaseAsset = DefaultBaseAsset
	}
	if opts.ReferenceHour <= 0 || opts.ReferenceHour > 23 {
		opts.ReferenceHour = DefaultReferenceHour
	}
	if opts.Pacer == nil {
		opts.Pacer = upstream.NewPacer(DefaultPriceDelay)
	}
	return &Backfiller{
		provider:  opts.Provider,
		samples:   opts.Samples,
		txs:       opts.Transactions,
		ids:       opts.Tokens,
		baseAsset: opts.BaseAsset,
		refHour:   opts.ReferenceHour,
		pacer:     opts.Pacer,
		logger:    opts.Logger.With().Str("component", "price_backfill").Logger(),
	}
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Missing   int // pairs without a stored sample at the start of the run
	Written   int // samples written from the provider
	Sentinels int // zero sentinels written for unknown symbols
	Empty     int // provider answered without a positive price; retried next run
	Failed    int // provider or store failures; retried next run
}

// Run scans for missing samples and fills them. Per-pair failures are logged and
// counted; only a failure to list the candidate pairs is returned.
func (b *Backfiller) Run(ctx context.Context) (BackfillResult, error) {
	var res BackfillResult

	missing, err := b.missingPairs(ctx)
	if err != nil {
		return res, err
	}
	res.Missing = len(missing)
	if len(missing) == 0 {
		b.logger.Info().Msg("no historical prices to fetch")
		return res, nil
	}
	b.logger.Info().Int("missing", len(missing)).Msg("fetching historical prices")

	for _, pair := range missing {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b.fill(ctx, pair, &res)
	}

	b.logger.Info().
		Int("written", res.Written).
		Int("sentinels", res.Sentinels).
		Int("empty", res.Empty).
		Int("failed", res.Failed).
		Msg("historical price backfill complete")
	return res, nil
}

func (b *Backfiller) fill(ctx context.Context, pair domain.SymbolDate, res *BackfillResult) {
	log := b.logger.With().Str("symbol", pair.Symbol).Str("date", pair.Date).Logger()

	id, known := b.ids[pair.Symbol]
	if !known {
		if _, err := b.samples.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: pair.Symbol, Date: pair.Date, Price: decimal.Zero}); err != nil {
			log.Error().Err(err).Msg("write sentinel price failed")
			res.Failed++
			observability.RecordPriceLookup("failed")
			return
		}
		log.Warn().Msg("unknown token, stored zero sentinel")
		res.Sentinels++
		observability.RecordPriceLookup("sentinel")
		return
	}

	at, err := b.referenceTime(pair.Date)
	if err != nil {
		log.Error().Err(err).Msg("invalid sample date")
		res.Failed++
		observability.RecordPriceLookup("failed")
		return
	}

	if err := b.pacer.Wait(ctx); err != nil {
		res.Failed++
		return
	}

	price, err := b.provider.Historical(ctx, id, at)
	if err != nil {
		log.Error().Err(err).Msg("historical price lookup failed")
		res.Failed++
		observability.RecordPriceLookup("failed")
		return
	}
	if !price.IsPositive() {
		log.Warn().Msg("no price found")
		res.Empty++
		observability.RecordPriceLookup("empty")
		return
	}

	if _, err := b.samples.InsertIfAbsent(ctx, &domain.PriceSample{Symbol: pair.Symbol, Date: pair.Date, Price: price}); err != nil {
		log.Error().Err(err).Msg("write price sample failed")
		res.Failed++
		observability.RecordPriceLookup("failed")
		return
	}
	res.Written++
	observability.RecordPriceLookup("written")
}

// missingPairs returns spend (symbol, date) pairs plus the base asset on every
// spend date, minus pairs that already have a sample. Ordered by (symbol, date).
func (b *Backfiller) missingPairs(ctx context.Context) ([]domain.SymbolDate, error) {
	spend, err := b.txs.SpendDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list spend dates: %w", err)
	}

	candidates := make(map[domain.SymbolDate]struct{}, len(spend)*2)
	for _, sd := range spend {
		candidates[sd] = struct{}{}
		candidates[domain.SymbolDate{Symbol: b.baseAsset, Date: sd.Date}] = struct{}{}
	}

	var missing []domain.SymbolDate
	for sd := range candidates {
		_, err := b.samples.Get(ctx, sd.Symbol, sd.Date)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrNotFound):
			missing = append(missing, sd)
		default:
			return nil, fmt.Errorf("get price sample %s/%s: %w", sd.Symbol, sd.Date, err)
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Symbol != missing[j].Symbol {
			return missing[i].Symbol < missing[j].Symbol
		}
		return missing[i].Date < missing[j].Date
	})
	return missing, nil
}

// referenceTime returns date at the reference hour UTC.
func (b *Backfiller) referenceTime(date string) (time.Time, error) {
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return time.Time{}, err
	}
	return day.UTC().Add(time.Duration(b.refHour) * time.Hour), nil
}
