package postgres

import (
	"context"
	"fmt"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore on the token_prices table.
type PriceSampleStore struct {
	pool *Pool
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(pool *Pool) *PriceSampleStore {
	return &PriceSampleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertIfAbsent writes the sample unless (symbol, date) already exists.
func (s *PriceSampleStore) InsertIfAbsent(ctx context.Context, p *domain.PriceSample) (bool, error) {
	if p == nil || p.Symbol == "" || p.Date == "" {
		return false, storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_prices (symbol, date, price) VALUES ($1, $2, $3::text::numeric)
	`, p.Symbol, p.Date, p.Price.String())
	if err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert price sample: %w", err)
	}
	return true, nil
}

// Get retrieves a sample. Returns ErrNotFound if not exists.
func (s *PriceSampleStore) Get(ctx context.Context, symbol, date string) (*domain.PriceSample, error) {
	p := domain.PriceSample{Symbol: symbol, Date: date}
	var price string
	err := s.pool.QueryRow(ctx, `
		SELECT price::text FROM token_prices WHERE symbol = $1 AND date = $2
	`, symbol, date).Scan(&price)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get price sample: %w", err)
	}
	if p.Price, err = parseNumeric(price); err != nil {
		return nil, err
	}
	return &p, nil
}

// List retrieves all samples ordered by (symbol, date).
func (s *PriceSampleStore) List(ctx context.Context) ([]*domain.PriceSample, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol, date, price::text FROM token_prices ORDER BY symbol, date`)
	if err != nil {
		return nil, fmt.Errorf("list price samples: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceSample
	for rows.Next() {
		var p domain.PriceSample
		var price string
		if err := rows.Scan(&p.Symbol, &p.Date, &price); err != nil {
			return nil, fmt.Errorf("scan price sample: %w", err)
		}
		if p.Price, err = parseNumeric(price); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price samples: %w", err)
	}
	return result, nil
}
