package stub

import (
	"context"
	"sync"

	"treasury-ledger/internal/domain"
)

// StubTransferSource returns fixed in-memory transfers for testing.
// Transfers can be intentionally unordered to test sorting.
// Implements ingestion.TransferSource interface.
type StubTransferSource struct {
	kind domain.TransferKind

	mu     sync.Mutex
	txs    []*domain.Transaction
	err    error
	starts []int64
}

// NewStubTransferSource creates a new stub transfer source of kind with the given transfers.
func NewStubTransferSource(kind domain.TransferKind, txs []*domain.Transaction) *StubTransferSource {
	return &StubTransferSource{kind: kind, txs: txs}
}

// Kind returns the transfer kind of the source.
func (s *StubTransferSource) Kind() domain.TransferKind {
	return s.kind
}

// Fetch returns transfers at or above startBlock.
// Returns copies to prevent mutation.
func (s *StubTransferSource) Fetch(_ context.Context, _ string, startBlock int64) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.starts = append(s.starts, startBlock)
	if s.err != nil {
		return nil, s.err
	}

	var result []*domain.Transaction
	for _, tx := range s.txs {
		if tx.BlockNumber >= startBlock {
			copy := *tx
			result = append(result, &copy)
		}
	}
	return result, nil
}

// SetTransfers replaces the transfers returned by Fetch.
func (s *StubTransferSource) SetTransfers(txs []*domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = txs
}

// SetError makes Fetch fail with err until cleared with nil.
func (s *StubTransferSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// StartBlocks returns the start block of every Fetch call so far.
func (s *StubTransferSource) StartBlocks() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.starts...)
}

// StubSignerSource returns fixed signer lists for testing.
// Implements ingestion.SignerSource interface.
type StubSignerSource struct {
	signers map[string]string // keyed by tx hash
	err     error
}

// NewStubSignerSource creates a new stub signer source.
func NewStubSignerSource(signers map[string]string, err error) *StubSignerSource {
	return &StubSignerSource{signers: signers, err: err}
}

// FetchSigners returns the configured signer lists.
func (s *StubSignerSource) FetchSigners(_ context.Context, _ string) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(s.signers))
	for hash, list := range s.signers {
		out[hash] = list
	}
	return out, nil
}
