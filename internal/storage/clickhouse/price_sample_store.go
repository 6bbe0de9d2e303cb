package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
// MergeTree does not enforce uniqueness: inserts check existence first, and reads
// take the earliest inserted row so a racing duplicate never changes a sample.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertIfAbsent writes the sample unless (symbol, date) already exists.
func (s *PriceSampleStore) InsertIfAbsent(ctx context.Context, p *domain.PriceSample) (bool, error) {
	if p == nil || p.Symbol == "" || p.Date == "" {
		return false, storage.ErrInvalidInput
	}
	date, err := time.Parse(domain.DateLayout, p.Date)
	if err != nil {
		return false, fmt.Errorf("%w: date %q", storage.ErrInvalidInput, p.Date)
	}

	exists, err := s.exists(ctx, p.Symbol, date)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return false, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_samples (symbol, date, price)`)
	if err != nil {
		return false, fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(p.Symbol, date, p.Price); err != nil {
		return false, fmt.Errorf("append to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return false, fmt.Errorf("send batch: %w", err)
	}
	return true, nil
}

// Get retrieves a sample. Returns ErrNotFound if not exists.
func (s *PriceSampleStore) Get(ctx context.Context, symbol, date string) (*domain.PriceSample, error) {
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", storage.ErrInvalidInput, date)
	}

	var price decimal.Decimal
	err = s.conn.QueryRow(ctx, `
		SELECT price FROM price_samples
		WHERE symbol = ? AND date = ?
		ORDER BY inserted_at ASC
		LIMIT 1
	`, symbol, d).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get price sample: %w", err)
	}
	return &domain.PriceSample{Symbol: symbol, Date: date, Price: price}, nil
}

// List retrieves all samples ordered by (symbol, date).
func (s *PriceSampleStore) List(ctx context.Context) ([]*domain.PriceSample, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT symbol, date, argMin(price, inserted_at)
		FROM price_samples
		GROUP BY symbol, date
		ORDER BY symbol, date
	`)
	if err != nil {
		return nil, fmt.Errorf("list price samples: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

func (s *PriceSampleStore) exists(ctx context.Context, symbol string, date time.Time) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM price_samples WHERE symbol = ? AND date = ?
	`, symbol, date).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanPriceSamples(rows chRows) ([]*domain.PriceSample, error) {
	var samples []*domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		var date time.Time
		if err := rows.Scan(&p.Symbol, &date, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}
		p.Date = date.UTC().Format(domain.DateLayout)
		samples = append(samples, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}
	return samples, nil
}
