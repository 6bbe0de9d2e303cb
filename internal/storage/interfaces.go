package storage

import (
	"context"

	"treasury-ledger/internal/domain"
)

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Get retrieves a wallet by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Wallet, error)

	// Upsert inserts the wallet or overwrites name, address and description.
	Upsert(ctx context.Context, w *domain.Wallet) error

	// List retrieves all wallets ordered by ID.
	List(ctx context.Context) ([]*domain.Wallet, error)
}

// TransactionStore provides access to transactions storage.
type TransactionStore interface {
	// Upsert inserts a transaction. A row with the same identity tuple is left
	// untouched and inserted is false; this is not an error.
	Upsert(ctx context.Context, tx *domain.Transaction) (inserted bool, err error)

	// UpdateCategory sets category and notes. Returns ErrNotFound if id does not exist.
	UpdateCategory(ctx context.Context, id int64, category, notes string) error

	// UpdateSigners sets the signer list on every row of the wallet with the given hash.
	// Returns the number of rows updated.
	UpdateSigners(ctx context.Context, walletID, hash, signers string) (int, error)

	// Query returns one page of rows matching the filter, ordered by timestamp DESC,
	// plus the total number of matching rows.
	Query(ctx context.Context, f TxFilter) ([]*domain.Transaction, int, error)

	// ListSpend retrieves outgoing non-error rows of a wallet with timestamp >= since.
	ListSpend(ctx context.Context, walletID string, since int64) ([]*domain.Transaction, error)

	// ListByWallet retrieves all rows of a wallet ordered by timestamp DESC.
	ListByWallet(ctx context.Context, walletID string) ([]*domain.Transaction, error)

	// Counts returns row counts by direction and category for a wallet.
	Counts(ctx context.Context, walletID string) (TxCounts, error)

	// TokenSymbols returns the distinct token symbols of a wallet in ascending order.
	TokenSymbols(ctx context.Context, walletID string) ([]string, error)

	// TokenFlows returns per (wallet, contract) sums of non-error token transfers.
	// Native rows (empty contract) are excluded. Empty walletID means all wallets.
	TokenFlows(ctx context.Context, walletID string) ([]*TokenFlow, error)

	// SpendDates returns the distinct (symbol, UTC date) pairs of outgoing non-error rows.
	SpendDates(ctx context.Context) ([]domain.SymbolDate, error)

	// DeleteByWallet removes every row of a wallet. Only the address-change wipe uses it.
	DeleteByWallet(ctx context.Context, walletID string) error
}

// BalanceStore provides access to balances storage.
type BalanceStore interface {
	// Upsert overwrites the (wallet, contract) snapshot.
	Upsert(ctx context.Context, b *domain.Balance) error

	// ListByWallet retrieves all balances of a wallet ordered by contract address.
	ListByWallet(ctx context.Context, walletID string) ([]*domain.Balance, error)

	// DeleteByWallet removes every balance of a wallet.
	DeleteByWallet(ctx context.Context, walletID string) error
}

// CheckpointStore persists fetch progress per (wallet, transfer kind).
// This enables resumption after restarts without refetching the full history.
type CheckpointStore interface {
	// Get returns the checkpoint with the highest block for (wallet, kind).
	// Returns ErrNotFound if nothing has been recorded yet.
	Get(ctx context.Context, walletID string, kind domain.TransferKind) (*domain.FetchCheckpoint, error)

	// Advance records a checkpoint. A block lower than the stored one is ignored,
	// so the checkpoint never regresses.
	Advance(ctx context.Context, cp *domain.FetchCheckpoint) error

	// DeleteByWallet removes every checkpoint of a wallet.
	DeleteByWallet(ctx context.Context, walletID string) error
}

// PriceSampleStore provides access to historical price samples.
type PriceSampleStore interface {
	// InsertIfAbsent writes the sample unless (symbol, date) already exists.
	// Existing samples, including zero sentinels, are never overwritten.
	InsertIfAbsent(ctx context.Context, p *domain.PriceSample) (inserted bool, err error)

	// Get retrieves a sample. Returns ErrNotFound if not exists.
	Get(ctx context.Context, symbol, date string) (*domain.PriceSample, error)

	// List retrieves all samples ordered by (symbol, date).
	List(ctx context.Context) ([]*domain.PriceSample, error)
}
