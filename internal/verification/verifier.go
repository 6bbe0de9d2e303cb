// Package verification recomputes derived ledger state from raw transaction
// rows and reports where stored state diverges: token balances against
// Σin − Σout, and fetch checkpoints against the highest stored block.
package verification

import (
	"context"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
)

// FieldDivergence represents a mismatch between stored and recomputed values.
type FieldDivergence struct {
	Field    string      // e.g. "balance:0xcontract" or "checkpoint:erc20"
	Expected interface{} // recomputed value
	Actual   interface{} // stored value
}

// VerificationResult contains the result of verifying a single wallet.
type VerificationResult struct {
	WalletID           string
	Match              bool
	Divergences        []FieldDivergence
	BalancesChecked    int
	CheckpointsChecked int
}

// VerificationReport contains results for every wallet.
type VerificationReport struct {
	TotalWallets     int
	MatchedWallets   int
	DivergentWallets int
	Results          []VerificationResult
}

// Verifier checks stored ledger state.
type Verifier interface {
	// VerifyWallet recomputes balances and checkpoints of one wallet.
	VerifyWallet(ctx context.Context, walletID string) (*VerificationResult, error)

	// VerifyAll verifies every wallet.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// ExpectedTokenBalances sums non-error token rows per contract: inflows minus
// outflows. Native rows are skipped since the native balance is read from
// the chain, not derived.
func ExpectedTokenBalances(rows []*domain.Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, tx := range rows {
		if tx.IsError || tx.IsNative() {
			continue
		}
		v, ok := out[tx.ContractAddress]
		if !ok {
			v = decimal.Zero
		}
		switch tx.Direction {
		case domain.DirectionIn:
			v = v.Add(tx.Value)
		case domain.DirectionOut:
			v = v.Sub(tx.Value)
		}
		out[tx.ContractAddress] = v
	}
	return out
}

// CompareBalances returns a divergence for every contract whose stored value
// differs from the expected one, including contracts missing on either side.
func CompareBalances(expected map[string]decimal.Decimal, stored []*domain.Balance) []FieldDivergence {
	var divergences []FieldDivergence

	seen := make(map[string]struct{}, len(stored))
	for _, b := range stored {
		if b.ContractAddress == "" {
			continue
		}
		seen[b.ContractAddress] = struct{}{}
		want, ok := expected[b.ContractAddress]
		if !ok {
			divergences = append(divergences, FieldDivergence{
				Field:    "balance:" + b.ContractAddress,
				Expected: nil,
				Actual:   b.Value.String(),
			})
			continue
		}
		if !want.Equal(b.Value) {
			divergences = append(divergences, FieldDivergence{
				Field:    "balance:" + b.ContractAddress,
				Expected: want.String(),
				Actual:   b.Value.String(),
			})
		}
	}

	for _, contract := range sortedKeys(expected) {
		if _, ok := seen[contract]; ok {
			continue
		}
		divergences = append(divergences, FieldDivergence{
			Field:    "balance:" + contract,
			Expected: expected[contract].String(),
			Actual:   nil,
		})
	}
	return divergences
}

// MaxBlocks returns the highest stored block per transfer kind.
func MaxBlocks(rows []*domain.Transaction) map[domain.TransferKind]int64 {
	out := make(map[domain.TransferKind]int64)
	for _, tx := range rows {
		if b, ok := out[tx.Kind]; !ok || tx.BlockNumber > b {
			out[tx.Kind] = tx.BlockNumber
		}
	}
	return out
}
