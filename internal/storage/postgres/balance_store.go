package postgres

import (
	"context"
	"fmt"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *Pool
}

// NewBalanceStore creates a new BalanceStore.
func NewBalanceStore(pool *Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// Upsert overwrites the (wallet, contract) snapshot.
func (s *BalanceStore) Upsert(ctx context.Context, b *domain.Balance) error {
	if b == nil || b.WalletID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO balances (
			wallet_id, contract_address, token_symbol, token_name, balance, balance_decimal, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7)
		ON CONFLICT (wallet_id, contract_address) DO UPDATE
		SET token_symbol = EXCLUDED.token_symbol,
		    token_name = EXCLUDED.token_name,
		    balance = EXCLUDED.balance,
		    balance_decimal = EXCLUDED.balance_decimal,
		    last_updated = EXCLUDED.last_updated
	`, b.WalletID, b.ContractAddress, b.TokenSymbol, b.TokenName, b.Raw, b.Value.String(), b.LastUpdated)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("upsert balance for wallet %s: %w", b.WalletID, storage.ErrNotFound)
		}
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// ListByWallet retrieves all balances of a wallet ordered by contract address.
func (s *BalanceStore) ListByWallet(ctx context.Context, walletID string) ([]*domain.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_id, contract_address, token_symbol, token_name, balance, balance_decimal::text, last_updated
		FROM balances
		WHERE wallet_id = $1
		ORDER BY contract_address
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var result []*domain.Balance
	for rows.Next() {
		var b domain.Balance
		var value string
		if err := rows.Scan(&b.WalletID, &b.ContractAddress, &b.TokenSymbol, &b.TokenName, &b.Raw, &value, &b.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		if b.Value, err = parseNumeric(value); err != nil {
			return nil, err
		}
		result = append(result, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return result, nil
}

// DeleteByWallet removes every balance of a wallet.
func (s *BalanceStore) DeleteByWallet(ctx context.Context, walletID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM balances WHERE wallet_id = $1`, walletID); err != nil {
		return fmt.Errorf("delete balances: %w", err)
	}
	return nil
}
