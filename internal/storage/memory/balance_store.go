package memory

import (
	"context"
	"sort"
	"sync"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.Balance // wallet -> contract -> balance
}

// NewBalanceStore creates a new in-memory balance store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{
		data: make(map[string]map[string]*domain.Balance),
	}
}

var _ storage.BalanceStore = (*BalanceStore)(nil)

// Upsert overwrites the (wallet, contract) snapshot.
func (s *BalanceStore) Upsert(_ context.Context, b *domain.Balance) error {
	if b == nil || b.WalletID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byContract, ok := s.data[b.WalletID]
	if !ok {
		byContract = make(map[string]*domain.Balance)
		s.data[b.WalletID] = byContract
	}
	copy := *b
	byContract[b.ContractAddress] = &copy
	return nil
}

// ListByWallet retrieves all balances of a wallet ordered by contract address.
func (s *BalanceStore) ListByWallet(_ context.Context, walletID string) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Balance, 0, len(s.data[walletID]))
	for _, b := range s.data[walletID] {
		copy := *b
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ContractAddress < result[j].ContractAddress
	})
	return result, nil
}

// DeleteByWallet removes every balance of a wallet.
func (s *BalanceStore) DeleteByWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, walletID)
	return nil
}
