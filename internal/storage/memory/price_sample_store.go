package memory

import (
	"context"
	"sort"
	"sync"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[domain.SymbolDate]*domain.PriceSample
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[domain.SymbolDate]*domain.PriceSample),
	}
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertIfAbsent writes the sample unless (symbol, date) already exists.
func (s *PriceSampleStore) InsertIfAbsent(_ context.Context, p *domain.PriceSample) (bool, error) {
	if p == nil || p.Symbol == "" || p.Date == "" {
		return false, storage.ErrInvalidInput
	}

	key := domain.SymbolDate{Symbol: p.Symbol, Date: p.Date}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return false, nil
	}
	copy := *p
	s.data[key] = &copy
	return true, nil
}

// Get retrieves a sample. Returns ErrNotFound if not exists.
func (s *PriceSampleStore) Get(_ context.Context, symbol, date string) (*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[domain.SymbolDate{Symbol: symbol, Date: date}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

// List retrieves all samples ordered by (symbol, date).
func (s *PriceSampleStore) List(_ context.Context) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PriceSample, 0, len(s.data))
	for _, p := range s.data {
		copy := *p
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Date < result[j].Date
	})
	return result, nil
}
