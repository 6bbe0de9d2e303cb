package ingestion

import (
	"testing"

	"treasury-ledger/internal/domain"
)

func TestSortTransfers(t *testing.T) {
	// Intentionally unordered transfers
	txs := []*domain.Transaction{
		{BlockNumber: 200, Hash: "0x2", From: "a", To: "b"},
		{BlockNumber: 100, Hash: "0x1", From: "b", To: "a"},
		{BlockNumber: 100, Hash: "0x1", From: "a", To: "c"},
		{BlockNumber: 100, Hash: "0x1", From: "a", To: "b", ContractAddress: "0xt"},
		{BlockNumber: 100, Hash: "0x1", From: "a", To: "b"},
		{BlockNumber: 300, Hash: "0x0", From: "a", To: "b"},
	}

	SortTransfers(txs)

	expected := []struct {
		block    int64
		hash     string
		from, to string
		contract string
	}{
		{100, "0x1", "a", "b", ""},
		{100, "0x1", "a", "b", "0xt"},
		{100, "0x1", "a", "c", ""},
		{100, "0x1", "b", "a", ""},
		{200, "0x2", "a", "b", ""},
		{300, "0x0", "a", "b", ""},
	}

	for i, exp := range expected {
		got := txs[i]
		if got.BlockNumber != exp.block || got.Hash != exp.hash || got.From != exp.from || got.To != exp.to || got.ContractAddress != exp.contract {
			t.Errorf("Index %d: got (%d, %s, %s, %s, %s), want %+v",
				i, got.BlockNumber, got.Hash, got.From, got.To, got.ContractAddress, exp)
		}
	}
}

func TestSortTransfers_Empty(t *testing.T) {
	var txs []*domain.Transaction
	SortTransfers(txs) // Should not panic
}

func TestMaxBlock(t *testing.T) {
	if got := MaxBlock(nil); got != -1 {
		t.Errorf("Expected -1 for empty batch, got %d", got)
	}
	txs := []*domain.Transaction{{BlockNumber: 5}, {BlockNumber: 42}, {BlockNumber: 7}}
	if got := MaxBlock(txs); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
}
