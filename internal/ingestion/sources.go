package ingestion

import (
	"context"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/pricing"
)

// TransferSource provides normalized transfers of one kind from an upstream feed.
type TransferSource interface {
	// Kind returns the transfer kind this source feeds.
	Kind() domain.TransferKind

	// Fetch returns transfers of address from startBlock (inclusive) onwards.
	// Records may be unordered; the Coordinator enforces deterministic ordering.
	// WalletID is left empty for the Coordinator to fill in.
	Fetch(ctx context.Context, address string, startBlock int64) ([]*domain.Transaction, error)
}

// SignerSource provides the confirming signers of executed multisig proposals.
type SignerSource interface {
	// FetchSigners returns tx hash -> sorted, comma-joined signer list.
	FetchSigners(ctx context.Context, address string) (map[string]string, error)
}

// PriceBackfill fills missing historical price samples after a full run.
type PriceBackfill interface {
	Run(ctx context.Context) (pricing.BackfillResult, error)
}
