package connectors

import (
	"strconv"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
)

// Token metadata used when the explorer omits it.
const (
	unknownTokenSymbol = "UNKNOWN"
	unknownTokenName   = "Unknown Token"
)

// normalize converts an explorer record into a ledger row for the wallet at address.
// Malformed numeric fields default to zero; the record is never dropped.
func normalize(kind domain.TransferKind, address string, rec explorerTransfer) *domain.Transaction {
	raw := rec.Value
	if raw == "" {
		raw = "0"
	}

	tx := &domain.Transaction{
		Hash:          rec.Hash,
		BlockNumber:   parseInt(rec.BlockNumber),
		Timestamp:     parseInt(rec.TimeStamp),
		From:          rec.From,
		To:            rec.To,
		RawValue:      raw,
		TokenSymbol:   domain.NativeSymbol,
		TokenName:     domain.NativeName,
		TokenDecimals: domain.NativeDecimals,
		Kind:          kind,
		Direction:     domain.DirectionFor(address, rec.From),
		Category:      domain.Uncategorised,
		GasUsed:       parseInt(rec.GasUsed),
		GasPrice:      orZero(rec.GasPrice),
		IsError:       rec.IsError == "1",
	}

	switch kind {
	case domain.KindToken:
		tx.TokenSymbol = orDefault(rec.TokenSymbol, unknownTokenSymbol)
		tx.TokenName = orDefault(rec.TokenName, unknownTokenName)
		tx.TokenDecimals = parseDecimals(rec.TokenDecimal)
		tx.ContractAddress = rec.ContractAddress
		tx.IsError = false
	case domain.KindInternal:
		tx.GasPrice = "0"
	}

	tx.Value = scale(raw, tx.TokenDecimals)
	return tx
}

// scale returns raw / 10^decimals, or zero when raw is not an integer.
func scale(raw string, decimals int) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil || !v.IsInteger() {
		return decimal.Zero
	}
	return v.Shift(int32(-decimals))
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseDecimals defaults missing or invalid token decimals to 18.
func parseDecimals(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return domain.NativeDecimals
	}
	return n
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orZero(s string) string {
	return orDefault(s, "0")
}
