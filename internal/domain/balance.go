package domain

import "github.com/shopspring/decimal"

// Balance is a per (wallet, contract) snapshot. Each reconciliation pass
// overwrites the row entirely.
type Balance struct {
	WalletID        string
	ContractAddress string // empty for the native asset
	TokenSymbol     string
	TokenName       string
	Raw             string
	Value           decimal.Decimal
	LastUpdated     int64 // unix seconds
}
