package ingestion

import (
	"sort"
	"strings"

	"treasury-ledger/internal/domain"
)

// SortTransfers orders transfers by (block ASC, hash ASC, from ASC, to ASC, contract ASC).
// This provides deterministic ordering based on chain order.
func SortTransfers(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return compareTransfers(txs[i], txs[j]) < 0
	})
}

// MaxBlock returns the highest block number in txs, or -1 when empty.
func MaxBlock(txs []*domain.Transaction) int64 {
	highest := int64(-1)
	for _, tx := range txs {
		if tx.BlockNumber > highest {
			highest = tx.BlockNumber
		}
	}
	return highest
}

// compareTransfers returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (block ASC, hash ASC, from ASC, to ASC, contract ASC)
func compareTransfers(a, b *domain.Transaction) int {
	if a.BlockNumber != b.BlockNumber {
		if a.BlockNumber < b.BlockNumber {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Hash, b.Hash); c != 0 {
		return c
	}
	if c := strings.Compare(a.From, b.From); c != 0 {
		return c
	}
	if c := strings.Compare(a.To, b.To); c != 0 {
		return c
	}
	return strings.Compare(a.ContractAddress, b.ContractAddress)
}
