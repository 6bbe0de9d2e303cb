package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"treasury-ledger/internal/domain"
)

// LedgerHeader is the header row of the ledger export.
var LedgerHeader = []string{
	"Date", "TX Hash", "From", "To", "Amount", "Token",
	"Type", "Direction", "Category", "Notes", "Block",
}

// LedgerTimeLayout formats the Date column (UTC).
const LedgerTimeLayout = "2006-01-02 15:04:05"

// ExportFilename returns the download file name for a wallet's ledger.
func ExportFilename(walletID string) string {
	return fmt.Sprintf("treasury_%s.csv", walletID)
}

// RenderLedgerCSV writes rows as CSV in the given order, header first.
func RenderLedgerCSV(w io.Writer, rows []*domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, tx := range rows {
		record := []string{
			time.Unix(tx.Timestamp, 0).UTC().Format(LedgerTimeLayout),
			tx.Hash,
			tx.From,
			tx.To,
			tx.Value.String(),
			tx.TokenSymbol,
			string(tx.Kind),
			string(tx.Direction),
			tx.Category,
			tx.Notes,
			strconv.FormatInt(tx.BlockNumber, 10),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %s: %w", tx.Hash, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
