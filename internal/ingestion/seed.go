package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// SeedStores are the stores touched by SeedWallets.
type SeedStores struct {
	Wallets      storage.WalletStore
	Transactions storage.TransactionStore
	Balances     storage.BalanceStore
	Checkpoints  storage.CheckpointStore
}

// SeedWallets upserts configured wallets. When a wallet's stored address is
// non-empty and differs from the configured one, its transactions, balances
// and checkpoints are deleted first. Returns the ids of wiped wallets.
func SeedWallets(ctx context.Context, stores SeedStores, wallets []*domain.Wallet, logger zerolog.Logger) ([]string, error) {
	var wiped []string
	for _, w := range wallets {
		existing, err := stores.Wallets.Get(ctx, w.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return wiped, fmt.Errorf("get wallet %s: %w", w.ID, err)
		case existing.Address != "" && !strings.EqualFold(existing.Address, w.Address):
			if err := wipeWallet(ctx, stores, w.ID); err != nil {
				return wiped, err
			}
			logger.Warn().
				Str("wallet", w.ID).
				Str("old_address", existing.Address).
				Str("new_address", w.Address).
				Msg("wallet address changed, cleared stale data")
			wiped = append(wiped, w.ID)
		}

		if err := stores.Wallets.Upsert(ctx, w); err != nil {
			return wiped, fmt.Errorf("upsert wallet %s: %w", w.ID, err)
		}
	}
	return wiped, nil
}

func wipeWallet(ctx context.Context, stores SeedStores, walletID string) error {
	if err := stores.Transactions.DeleteByWallet(ctx, walletID); err != nil {
		return fmt.Errorf("delete transactions of %s: %w", walletID, err)
	}
	if err := stores.Balances.DeleteByWallet(ctx, walletID); err != nil {
		return fmt.Errorf("delete balances of %s: %w", walletID, err)
	}
	if err := stores.Checkpoints.DeleteByWallet(ctx, walletID); err != nil {
		return fmt.Errorf("delete checkpoints of %s: %w", walletID, err)
	}
	return nil
}
