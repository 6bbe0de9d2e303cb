package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.Transaction
	byKey  map[domain.TxKey]int64
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		byID:  make(map[int64]*domain.Transaction),
		byKey: make(map[domain.TxKey]int64),
	}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// Upsert inserts a transaction unless its identity tuple already exists.
func (s *TransactionStore) Upsert(_ context.Context, tx *domain.Transaction) (bool, error) {
	if tx == nil || tx.WalletID == "" || tx.Hash == "" {
		return false, storage.ErrInvalidInput
	}

	key := tx.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[key]; exists {
		return false, nil
	}

	s.nextID++
	copy := *tx
	copy.ID = s.nextID
	if copy.Category == "" {
		copy.Category = domain.Uncategorised
	}
	s.byID[copy.ID] = &copy
	s.byKey[key] = copy.ID
	tx.ID = copy.ID
	return true, nil
}

// UpdateCategory sets category and notes. Returns ErrNotFound if id does not exist.
func (s *TransactionStore) UpdateCategory(_ context.Context, id int64, category, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	tx.Category = category
	tx.Notes = notes
	return nil
}

// UpdateSigners sets signers on every row of the wallet with the given hash.
func (s *TransactionStore) UpdateSigners(_ context.Context, walletID, hash, signers string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, tx := range s.byID {
		if tx.WalletID == walletID && tx.Hash == hash {
			tx.Signers = signers
			n++
		}
	}
	return n, nil
}

// Query returns one page of matching rows ordered by timestamp DESC and the total match count.
func (s *TransactionStore) Query(_ context.Context, f storage.TxFilter) ([]*domain.Transaction, int, error) {
	f = f.Normalize()

	s.mu.RLock()
	var matched []*domain.Transaction
	for _, tx := range s.byID {
		if f.Matches(tx) {
			copy := *tx
			matched = append(matched, &copy)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)

	total := len(matched)
	if f.Offset >= total {
		return []*domain.Transaction{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

// ListSpend retrieves outgoing non-error rows of a wallet with timestamp >= since.
func (s *TransactionStore) ListSpend(_ context.Context, walletID string, since int64) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.byID {
		if tx.WalletID == walletID && tx.CountsAsSpend() && tx.Timestamp >= since {
			copy := *tx
			result = append(result, &copy)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// ListByWallet retrieves all rows of a wallet ordered by timestamp DESC.
func (s *TransactionStore) ListByWallet(_ context.Context, walletID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.byID {
		if tx.WalletID == walletID {
			copy := *tx
			result = append(result, &copy)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// Counts returns row counts by direction and category for a wallet.
func (s *TransactionStore) Counts(_ context.Context, walletID string) (storage.TxCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c storage.TxCounts
	for _, tx := range s.byID {
		if tx.WalletID != walletID {
			continue
		}
		c.Total++
		switch tx.Direction {
		case domain.DirectionIn:
			c.Incoming++
		case domain.DirectionOut:
			c.Outgoing++
		}
		if tx.Category == domain.Uncategorised {
			c.Uncategorised++
		}
	}
	return c, nil
}

// TokenSymbols returns the distinct token symbols of a wallet in ascending order.
func (s *TransactionStore) TokenSymbols(_ context.Context, walletID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tx := range s.byID {
		if tx.WalletID == walletID && tx.TokenSymbol != "" {
			seen[tx.TokenSymbol] = struct{}{}
		}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// TokenFlows returns per (wallet, contract) sums of non-error token transfers.
func (s *TransactionStore) TokenFlows(_ context.Context, walletID string) ([]*storage.TokenFlow, error) {
	type flowKey struct {
		walletID string
		contract string
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	flows := make(map[flowKey]*storage.TokenFlow)
	latest := make(map[flowKey]int64)
	for _, tx := range s.byID {
		if tx.IsNative() || tx.IsError {
			continue
		}
		if walletID != "" && tx.WalletID != walletID {
			continue
		}
		k := flowKey{tx.WalletID, tx.ContractAddress}
		f, ok := flows[k]
		if !ok {
			f = &storage.TokenFlow{
				WalletID:        tx.WalletID,
				ContractAddress: tx.ContractAddress,
				TotalIn:         decimal.Zero,
				TotalOut:        decimal.Zero,
			}
			flows[k] = f
		}
		switch tx.Direction {
		case domain.DirectionIn:
			f.TotalIn = f.TotalIn.Add(tx.Value)
		case domain.DirectionOut:
			f.TotalOut = f.TotalOut.Add(tx.Value)
		}
		if tx.ID > latest[k] {
			latest[k] = tx.ID
			f.TokenSymbol = tx.TokenSymbol
			f.TokenName = tx.TokenName
			f.TokenDecimals = tx.TokenDecimals
		}
	}

	result := make([]*storage.TokenFlow, 0, len(flows))
	for _, f := range flows {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].WalletID != result[j].WalletID {
			return result[i].WalletID < result[j].WalletID
		}
		return result[i].ContractAddress < result[j].ContractAddress
	})
	return result, nil
}

// SpendDates returns the distinct (symbol, UTC date) pairs of outgoing non-error rows.
func (s *TransactionStore) SpendDates(_ context.Context) ([]domain.SymbolDate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.SymbolDate]struct{})
	for _, tx := range s.byID {
		if !tx.CountsAsSpend() || tx.TokenSymbol == "" {
			continue
		}
		seen[domain.SymbolDate{Symbol: tx.TokenSymbol, Date: domain.DateOf(tx.Timestamp)}] = struct{}{}
	}

	result := make([]domain.SymbolDate, 0, len(seen))
	for sd := range seen {
		result = append(result, sd)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Date < result[j].Date
	})
	return result, nil
}

// DeleteByWallet removes every row of a wallet.
func (s *TransactionStore) DeleteByWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tx := range s.byID {
		if tx.WalletID == walletID {
			delete(s.byKey, tx.Key())
			delete(s.byID, id)
		}
	}
	return nil
}

// sortNewestFirst orders by timestamp DESC, then ID DESC.
func sortNewestFirst(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Timestamp != txs[j].Timestamp {
			return txs[i].Timestamp > txs[j].Timestamp
		}
		return txs[i].ID > txs[j].ID
	})
}
