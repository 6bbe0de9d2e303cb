package postgres

import (
	"context"
	"fmt"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// Every advance appends a row to fetch_log; the checkpoint is the row with the
// highest last_block for (wallet_id, tx_type).
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the highest checkpoint for (wallet, kind).
func (s *CheckpointStore) Get(ctx context.Context, walletID string, kind domain.TransferKind) (*domain.FetchCheckpoint, error) {
	var cp domain.FetchCheckpoint
	var k string
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_id, tx_type, last_block, fetched_at, tx_count
		FROM fetch_log
		WHERE wallet_id = $1 AND tx_type = $2
		ORDER BY last_block DESC, id DESC
		LIMIT 1
	`, walletID, string(kind)).Scan(&cp.WalletID, &k, &cp.LastBlock, &cp.FetchedAt, &cp.TxCount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	cp.Kind = domain.TransferKind(k)
	return &cp, nil
}

// Advance appends a checkpoint unless a higher block is already recorded.
func (s *CheckpointStore) Advance(ctx context.Context, cp *domain.FetchCheckpoint) error {
	if cp == nil || cp.WalletID == "" || !cp.Kind.IsValid() {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fetch_log (wallet_id, tx_type, last_block, fetched_at, tx_count)
		SELECT $1::text, $2::text, $3::bigint, $4::bigint, $5::integer
		WHERE $3::bigint >= COALESCE(
			(SELECT MAX(last_block) FROM fetch_log WHERE wallet_id = $1::text AND tx_type = $2::text),
			-1
		)
	`, cp.WalletID, string(cp.Kind), cp.LastBlock, cp.FetchedAt, cp.TxCount)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("advance checkpoint for wallet %s: %w", cp.WalletID, storage.ErrNotFound)
		}
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}

// DeleteByWallet removes every checkpoint of a wallet.
func (s *CheckpointStore) DeleteByWallet(ctx context.Context, walletID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM fetch_log WHERE wallet_id = $1`, walletID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}
