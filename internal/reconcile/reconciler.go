// Package reconcile rebuilds balance snapshots. Token balances are derived from
// the ledger as inflows minus outflows; the native balance is read from the
// balance connector and never derived.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/observability"
	"treasury-ledger/internal/storage"
)

// NativeBalanceSource returns the authoritative native balance of an address.
type NativeBalanceSource interface {
	NativeBalance(ctx context.Context, address string) (*domain.Balance, error)
}

// Reconciler writes full replacement balance snapshots.
type Reconciler struct {
	txs      storage.TransactionStore
	balances storage.BalanceStore
	native   NativeBalanceSource
	now      func() time.Time
	logger   zerolog.Logger
}

// Options configures a Reconciler.
type Options struct {
	Transactions storage.TransactionStore
	Balances     storage.BalanceStore
	Native       NativeBalanceSource // optional
	Clock        func() time.Time    // time.Now when nil
	Logger       zerolog.Logger
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		txs:      opts.Transactions,
		balances: opts.Balances,
		native:   opts.Native,
		now:      now,
		logger:   opts.Logger.With().Str("component", "reconciler").Logger(),
	}
}

// Tokens recomputes every token balance of walletID, or of all wallets when
// walletID is empty. Returns the number of rows written.
func (r *Reconciler) Tokens(ctx context.Context, walletID string) (int, error) {
	flows, err := r.txs.TokenFlows(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("token flows: %w", err)
	}

	updated := r.now().Unix()
	written := 0
	for _, f := range flows {
		value := f.TotalIn.Sub(f.TotalOut)
		b := &domain.Balance{
			WalletID:        f.WalletID,
			ContractAddress: f.ContractAddress,
			TokenSymbol:     f.TokenSymbol,
			TokenName:       f.TokenName,
			Raw:             value.Shift(int32(f.TokenDecimals)).Truncate(0).String(),
			Value:           value,
			LastUpdated:     updated,
		}
		if err := r.balances.Upsert(ctx, b); err != nil {
			r.logger.Error().Err(err).
				Str("wallet", f.WalletID).
				Str("contract", f.ContractAddress).
				Msg("write token balance failed")
			continue
		}
		written++
	}

	observability.RecordBalancesWritten(written)
	r.logger.Debug().Str("wallet", walletID).Int("written", written).Msg("token balances reconciled")
	return written, nil
}

// Native fetches and stores the native balance of a wallet. On failure the
// previous snapshot is kept and the error returned.
func (r *Reconciler) Native(ctx context.Context, w *domain.Wallet) error {
	if r.native == nil || w.Address == "" {
		return nil
	}

	b, err := r.native.NativeBalance(ctx, w.Address)
	if err != nil {
		return err
	}
	b.WalletID = w.ID
	b.ContractAddress = ""
	b.LastUpdated = r.now().Unix()

	if err := r.balances.Upsert(ctx, b); err != nil {
		return fmt.Errorf("write native balance: %w", err)
	}
	observability.RecordBalancesWritten(1)
	r.logger.Info().Str("wallet", w.ID).Str("balance", b.Value.String()).Msg("native balance updated")
	return nil
}
