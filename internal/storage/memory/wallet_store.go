package memory

import (
	"context"
	"sort"
	"sync"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

var _ storage.WalletStore = (*WalletStore)(nil)

// Get retrieves a wallet by ID. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(_ context.Context, id string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *w
	return &copy, nil
}

// Upsert inserts the wallet or overwrites it.
func (s *WalletStore) Upsert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *w
	s.data[w.ID] = &copy
	return nil
}

// List retrieves all wallets ordered by ID.
func (s *WalletStore) List(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Wallet, 0, len(s.data))
	for _, w := range s.data {
		copy := *w
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}
