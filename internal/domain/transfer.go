package domain

import "strings"

// TransferKind identifies the upstream feed a transaction was ingested from.
// Persisted codes match the tx_type column of the ledger schema.
type TransferKind string

const (
	KindNative   TransferKind = "normal"   // native asset transfers (txlist)
	KindToken    TransferKind = "erc20"    // token transfers (tokentx)
	KindInternal TransferKind = "internal" // internal native transfers (txlistinternal)
)

// TransferKinds lists the kinds in the order the coordinator fetches them.
var TransferKinds = []TransferKind{KindNative, KindToken, KindInternal}

// String returns the string representation of TransferKind.
func (k TransferKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k TransferKind) IsValid() bool {
	return k == KindNative || k == KindToken || k == KindInternal
}

// Direction of a transfer relative to the wallet that owns it.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// DirectionFor returns "out" when from equals the wallet address (case-insensitive), else "in".
func DirectionFor(walletAddress, from string) Direction {
	if walletAddress != "" && strings.EqualFold(from, walletAddress) {
		return DirectionOut
	}
	return DirectionIn
}
