package connectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/upstream"
)

// TransferConnector fetches one transfer kind from the explorer.
type TransferConnector struct {
	explorer *Explorer
	kind     domain.TransferKind
	action   string
	logger   zerolog.Logger
}

var actions = map[domain.TransferKind]string{
	domain.KindNative:   "txlist",
	domain.KindToken:    "tokentx",
	domain.KindInternal: "txlistinternal",
}

// NewTransferConnector creates a connector for kind.
func NewTransferConnector(explorer *Explorer, kind domain.TransferKind, logger zerolog.Logger) *TransferConnector {
	return &TransferConnector{
		explorer: explorer,
		kind:     kind,
		action:   actions[kind],
		logger:   logger.With().Str("component", "connector").Str("kind", kind.String()).Logger(),
	}
}

// NewTransferConnectors creates one connector per transfer kind, in fetch order.
func NewTransferConnectors(explorer *Explorer, logger zerolog.Logger) []*TransferConnector {
	out := make([]*TransferConnector, 0, len(domain.TransferKinds))
	for _, kind := range domain.TransferKinds {
		out = append(out, NewTransferConnector(explorer, kind, logger))
	}
	return out
}

// Kind returns the transfer kind served by the connector.
func (c *TransferConnector) Kind() domain.TransferKind {
	return c.kind
}

// Fetch returns normalized transfers of address from startBlock (inclusive).
// WalletID is left empty for the caller to set. On failure it logs and returns
// an empty batch with the classified *upstream.Error.
func (c *TransferConnector) Fetch(ctx context.Context, address string, startBlock int64) ([]*domain.Transaction, error) {
	start := time.Now()
	records, err := c.explorer.ListTransfers(ctx, c.action, address, startBlock)
	if err != nil {
		c.logger.Error().Err(err).
			Str("address", address).
			Int64("block", startBlock).
			Str("error_kind", upstream.KindOf(err).String()).
			Msg("transfer fetch failed")
		return nil, err
	}

	txs := make([]*domain.Transaction, 0, len(records))
	for _, rec := range records {
		txs = append(txs, normalize(c.kind, address, rec))
	}

	c.logger.Debug().
		Str("address", address).
		Int64("block", startBlock).
		Int("fetched", len(txs)).
		Dur("took", time.Since(start)).
		Msg("transfers fetched")
	return txs, nil
}
