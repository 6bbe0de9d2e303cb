package verification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// ErrWalletNotFound is returned when the wallet id doesn't exist.
var ErrWalletNotFound = errors.New("wallet not found")

// LedgerVerifier implements Verifier over the ledger stores.
type LedgerVerifier struct {
	wallets      storage.WalletStore
	transactions storage.TransactionStore
	balances     storage.BalanceStore
	checkpoints  storage.CheckpointStore
}

// LedgerVerifierOptions contains configuration for creating a LedgerVerifier.
type LedgerVerifierOptions struct {
	Wallets      storage.WalletStore
	Transactions storage.TransactionStore
	Balances     storage.BalanceStore
	Checkpoints  storage.CheckpointStore
}

// NewLedgerVerifier creates a new LedgerVerifier.
func NewLedgerVerifier(opts LedgerVerifierOptions) *LedgerVerifier {
	return &LedgerVerifier{
		wallets:      opts.Wallets,
		transactions: opts.Transactions,
		balances:     opts.Balances,
		checkpoints:  opts.Checkpoints,
	}
}

// VerifyWallet recomputes token balances and checkpoint floors of one wallet.
func (v *LedgerVerifier) VerifyWallet(ctx context.Context, walletID string) (*VerificationResult, error) {
	if _, err := v.wallets.Get(ctx, walletID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}

	rows, err := v.transactions.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	stored, err := v.balances.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	result := &VerificationResult{WalletID: walletID}

	// 1. Token balances
	expected := ExpectedTokenBalances(rows)
	result.Divergences = append(result.Divergences, CompareBalances(expected, stored)...)
	result.BalancesChecked = len(expected)

	// 2. Checkpoints never lag stored rows
	maxBlocks := MaxBlocks(rows)
	for _, kind := range domain.TransferKinds {
		highest, ok := maxBlocks[kind]
		if !ok {
			continue
		}
		result.CheckpointsChecked++

		cp, err := v.checkpoints.Get(ctx, walletID, kind)
		if errors.Is(err, storage.ErrNotFound) {
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field:    "checkpoint:" + kind.String(),
				Expected: highest,
				Actual:   nil,
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get checkpoint %s: %w", kind, err)
		}
		if cp.LastBlock < highest {
			result.Divergences = append(result.Divergences, FieldDivergence{
				Field:    "checkpoint:" + kind.String(),
				Expected: highest,
				Actual:   cp.LastBlock,
			})
		}
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll verifies every wallet in id order.
func (v *LedgerVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	wallets, err := v.wallets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	report := &VerificationReport{
		TotalWallets: len(wallets),
		Results:      make([]VerificationResult, 0, len(wallets)),
	}
	for _, w := range wallets {
		res, err := v.VerifyWallet(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		if res.Match {
			report.MatchedWallets++
		} else {
			report.DivergentWallets++
		}
		report.Results = append(report.Results, *res)
	}
	return report, nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compile-time interface check.
var _ Verifier = (*LedgerVerifier)(nil)
