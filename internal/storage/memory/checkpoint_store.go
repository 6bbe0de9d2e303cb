package memory

import (
	"context"
	"sync"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

type checkpointKey struct {
	walletID string
	kind     domain.TransferKind
}

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[checkpointKey]*domain.FetchCheckpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[checkpointKey]*domain.FetchCheckpoint),
	}
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the checkpoint for (wallet, kind). Returns ErrNotFound if none was recorded.
func (s *CheckpointStore) Get(_ context.Context, walletID string, kind domain.TransferKind) (*domain.FetchCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[checkpointKey{walletID, kind}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *cp
	return &copy, nil
}

// Advance records a checkpoint unless a higher block is already stored.
func (s *CheckpointStore) Advance(_ context.Context, cp *domain.FetchCheckpoint) error {
	if cp == nil || cp.WalletID == "" || !cp.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	key := checkpointKey{cp.WalletID, cp.Kind}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok && existing.LastBlock > cp.LastBlock {
		return nil
	}
	copy := *cp
	s.data[key] = &copy
	return nil
}

// DeleteByWallet removes every checkpoint of a wallet.
func (s *CheckpointStore) DeleteByWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.data {
		if k.walletID == walletID {
			delete(s.data, k)
		}
	}
	return nil
}
