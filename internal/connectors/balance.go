package connectors

import (
	"context"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/domain"
)

// BalanceConnector reads the authoritative native balance of a wallet.
type BalanceConnector struct {
	explorer *Explorer
	logger   zerolog.Logger
}

// NewBalanceConnector creates a BalanceConnector.
func NewBalanceConnector(explorer *Explorer, logger zerolog.Logger) *BalanceConnector {
	return &BalanceConnector{
		explorer: explorer,
		logger:   logger.With().Str("component", "connector").Str("kind", "balance").Logger(),
	}
}

// NativeBalance returns the native asset balance row of address at the latest block.
// WalletID and LastUpdated are left for the caller.
func (c *BalanceConnector) NativeBalance(ctx context.Context, address string) (*domain.Balance, error) {
	wei, err := c.explorer.Balance(ctx, address)
	if err != nil {
		c.logger.Error().Err(err).Str("address", address).Msg("balance fetch failed")
		return nil, err
	}
	return &domain.Balance{
		ContractAddress: "",
		TokenSymbol:     domain.NativeSymbol,
		TokenName:       domain.NativeName,
		Raw:             wei,
		Value:           scale(wei, domain.NativeDecimals),
	}, nil
}
