package storage

import (
	"strings"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
)

// Page size limits for transaction queries.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// TxFilter selects transactions of one wallet. Zero values disable a condition.
type TxFilter struct {
	WalletID  string
	Direction domain.Direction // ignored unless "in" or "out"
	Category  string
	Token     string // token symbol
	From      int64  // timestamp >= From when non-zero
	To        int64  // timestamp <= To when non-zero
	Search    string // case-insensitive substring of hash, from, to or notes
	Limit     int
	Offset    int
}

// Normalize applies paging defaults and the hard page size cap.
func (f TxFilter) Normalize() TxFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if !f.Direction.IsValid() {
		f.Direction = ""
	}
	return f
}

// Matches reports whether tx satisfies every condition of the filter.
// Paging fields are ignored.
func (f TxFilter) Matches(tx *domain.Transaction) bool {
	if tx.WalletID != f.WalletID {
		return false
	}
	if f.Direction.IsValid() && tx.Direction != f.Direction {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.Token != "" && tx.TokenSymbol != f.Token {
		return false
	}
	if f.From != 0 && tx.Timestamp < f.From {
		return false
	}
	if f.To != 0 && tx.Timestamp > f.To {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !containsFold(tx.Hash, q) &&
			!containsFold(tx.From, q) &&
			!containsFold(tx.To, q) &&
			!containsFold(tx.Notes, q) {
			return false
		}
	}
	return true
}

// containsFold reports whether lowered q is a substring of s, ignoring case.
// Wildcard characters in q are literal.
func containsFold(s, q string) bool {
	return strings.Contains(strings.ToLower(s), q)
}

// TxCounts summarises a wallet's rows.
type TxCounts struct {
	Total         int
	Incoming      int
	Outgoing      int
	Uncategorised int
}

// TokenFlow is the sum of non-error inflows and outflows of one token in one wallet.
// Symbol, name and decimals are taken from the most recently inserted row.
type TokenFlow struct {
	WalletID        string
	ContractAddress string
	TokenSymbol     string
	TokenName       string
	TokenDecimals   int
	TotalIn         decimal.Decimal
	TotalOut        decimal.Decimal
}
