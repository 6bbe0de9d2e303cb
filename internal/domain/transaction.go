package domain

import "github.com/shopspring/decimal"

// Uncategorised is the default category of every ingested transaction.
const Uncategorised = "Uncategorised"

// Native asset metadata used for native and internal transfers.
const (
	NativeSymbol   = "ETH"
	NativeName     = "Ether"
	NativeDecimals = 18
)

// Transaction is a single value movement recorded against a wallet.
// Corresponds to transactions table in PostgreSQL.
//
// Identity is (Hash, WalletID, Kind, From, To, ContractAddress). Category,
// Notes and Signers are the only fields mutated after insert.
type Transaction struct {
	ID              int64 // BIGSERIAL primary key
	WalletID        string
	Hash            string
	BlockNumber     int64
	Timestamp       int64 // unix seconds
	From            string
	To              string
	RawValue        string          // integer amount in the token's smallest unit
	Value           decimal.Decimal // RawValue / 10^TokenDecimals
	TokenSymbol     string
	TokenName       string
	TokenDecimals   int
	ContractAddress string // empty for the native asset
	Kind            TransferKind
	Direction       Direction
	Category        string
	Notes           string
	Signers         string // sorted, comma-joined confirming owners
	GasUsed         int64
	GasPrice        string
	IsError         bool
}

// TxKey is the identity tuple of a Transaction.
type TxKey struct {
	Hash            string
	WalletID        string
	Kind            TransferKind
	From            string
	To              string
	ContractAddress string
}

// Key returns the identity tuple of the transaction.
func (t *Transaction) Key() TxKey {
	return TxKey{
		Hash:            t.Hash,
		WalletID:        t.WalletID,
		Kind:            t.Kind,
		From:            t.From,
		To:              t.To,
		ContractAddress: t.ContractAddress,
	}
}

// IsNative reports whether the transaction moves the native asset.
func (t *Transaction) IsNative() bool {
	return t.ContractAddress == ""
}

// CountsAsSpend reports whether the transaction is an outgoing, non-error transfer.
func (t *Transaction) CountsAsSpend() bool {
	return t.Direction == DirectionOut && !t.IsError
}
