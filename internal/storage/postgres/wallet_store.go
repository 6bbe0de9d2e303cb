package postgres

import (
	"context"
	"fmt"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Get retrieves a wallet by ID. Returns ErrNotFound if not exists.
func (s *WalletStore) Get(ctx context.Context, id string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, address, description FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.Address, &w.Description)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// Upsert inserts the wallet or overwrites name, address and description.
func (s *WalletStore) Upsert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (id, name, address, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    address = EXCLUDED.address,
		    description = EXCLUDED.description
	`, w.ID, w.Name, w.Address, w.Description)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

// List retrieves all wallets ordered by ID.
func (s *WalletStore) List(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, address, description FROM wallets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.Name, &w.Address, &w.Description); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}
