package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	id, wallet_id, tx_hash, block_number, timestamp, from_address, to_address,
	value, value_decimal::text, token_symbol, token_name, token_decimal, contract_address,
	tx_type, direction, category, notes, signers, gas_used, gas_price, is_error
`

// Upsert inserts a transaction; a conflicting identity tuple is a no-op.
func (s *TransactionStore) Upsert(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if tx == nil || tx.WalletID == "" || tx.Hash == "" {
		return false, storage.ErrInvalidInput
	}

	category := tx.Category
	if category == "" {
		category = domain.Uncategorised
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (
			wallet_id, tx_hash, block_number, timestamp, from_address, to_address,
			value, value_decimal, token_symbol, token_name, token_decimal, contract_address,
			tx_type, direction, category, notes, signers, gas_used, gas_price, is_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (tx_hash, wallet_id, tx_type, from_address, to_address, contract_address) DO NOTHING
		RETURNING id
	`,
		tx.WalletID, tx.Hash, tx.BlockNumber, tx.Timestamp, tx.From, tx.To,
		tx.RawValue, tx.Value.String(), tx.TokenSymbol, tx.TokenName, tx.TokenDecimals, tx.ContractAddress,
		string(tx.Kind), string(tx.Direction), category, tx.Notes, tx.Signers, tx.GasUsed, tx.GasPrice, tx.IsError,
	).Scan(&id)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		if isForeignKeyError(err) {
			return false, fmt.Errorf("insert transaction for wallet %s: %w", tx.WalletID, storage.ErrNotFound)
		}
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	tx.ID = id
	return true, nil
}

// UpdateCategory sets category and notes. Returns ErrNotFound if id does not exist.
func (s *TransactionStore) UpdateCategory(ctx context.Context, id int64, category, notes string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET category = $2, notes = $3 WHERE id = $1
	`, id, category, notes)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateSigners sets signers on every row of the wallet with the given hash.
func (s *TransactionStore) UpdateSigners(ctx context.Context, walletID, hash, signers string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET signers = $3 WHERE wallet_id = $1 AND tx_hash = $2
	`, walletID, hash, signers)
	if err != nil {
		return 0, fmt.Errorf("update signers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Query returns one page of matching rows ordered by timestamp DESC and the total match count.
func (s *TransactionStore) Query(ctx context.Context, f storage.TxFilter) ([]*domain.Transaction, int, error) {
	f = f.Normalize()
	where, args := buildWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	return txs, total, nil
}

// buildWhere renders the filter as a WHERE clause with positional arguments.
func buildWhere(f storage.TxFilter) (string, []any) {
	conds := []string{"wallet_id = $1"}
	args := []any{f.WalletID}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}

	if f.Direction.IsValid() {
		add("direction = ?", string(f.Direction))
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.Token != "" {
		add("token_symbol = ?", f.Token)
	}
	if f.From != 0 {
		add("timestamp >= ?", f.From)
	}
	if f.To != 0 {
		add("timestamp <= ?", f.To)
	}
	if f.Search != "" {
		// strpos keeps % and _ literal, matching TxFilter.Matches.
		add("(strpos(lower(tx_hash), lower(?)) > 0 OR strpos(lower(from_address), lower(?)) > 0"+
			" OR strpos(lower(to_address), lower(?)) > 0 OR strpos(lower(notes), lower(?)) > 0)", f.Search)
	}

	return strings.Join(conds, " AND "), args
}

// ListSpend retrieves outgoing non-error rows of a wallet with timestamp >= since.
func (s *TransactionStore) ListSpend(ctx context.Context, walletID string, since int64) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1 AND direction = 'out' AND NOT is_error AND timestamp >= $2
		ORDER BY timestamp DESC, id DESC
	`, walletID, since)
	if err != nil {
		return nil, fmt.Errorf("list spend: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByWallet retrieves all rows of a wallet ordered by timestamp DESC.
func (s *TransactionStore) ListByWallet(ctx context.Context, walletID string) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY timestamp DESC, id DESC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list by wallet: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Counts returns row counts by direction and category for a wallet.
func (s *TransactionStore) Counts(ctx context.Context, walletID string) (storage.TxCounts, error) {
	var c storage.TxCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'in'),
			COUNT(*) FILTER (WHERE direction = 'out'),
			COUNT(*) FILTER (WHERE category = $2)
		FROM transactions
		WHERE wallet_id = $1
	`, walletID, domain.Uncategorised).Scan(&c.Total, &c.Incoming, &c.Outgoing, &c.Uncategorised)
	if err != nil {
		return storage.TxCounts{}, fmt.Errorf("count transactions: %w", err)
	}
	return c, nil
}

// TokenSymbols returns the distinct token symbols of a wallet in ascending order.
func (s *TransactionStore) TokenSymbols(ctx context.Context, walletID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT token_symbol FROM transactions
		WHERE wallet_id = $1 AND token_symbol <> ''
		ORDER BY token_symbol
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("token symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan token symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// TokenFlows returns per (wallet, contract) sums of non-error token transfers.
func (s *TransactionStore) TokenFlows(ctx context.Context, walletID string) ([]*storage.TokenFlow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			wallet_id,
			contract_address,
			(array_agg(token_symbol ORDER BY id DESC))[1],
			(array_agg(token_name ORDER BY id DESC))[1],
			(array_agg(token_decimal ORDER BY id DESC))[1],
			COALESCE(SUM(value_decimal) FILTER (WHERE direction = 'in'), 0)::text,
			COALESCE(SUM(value_decimal) FILTER (WHERE direction = 'out'), 0)::text
		FROM transactions
		WHERE contract_address <> '' AND NOT is_error AND ($1::text = '' OR wallet_id = $1::text)
		GROUP BY wallet_id, contract_address
		ORDER BY wallet_id, contract_address
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("token flows: %w", err)
	}
	defer rows.Close()

	var result []*storage.TokenFlow
	for rows.Next() {
		var f storage.TokenFlow
		var in, out string
		if err := rows.Scan(&f.WalletID, &f.ContractAddress, &f.TokenSymbol, &f.TokenName, &f.TokenDecimals, &in, &out); err != nil {
			return nil, fmt.Errorf("scan token flow: %w", err)
		}
		if f.TotalIn, err = parseNumeric(in); err != nil {
			return nil, err
		}
		if f.TotalOut, err = parseNumeric(out); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token flows: %w", err)
	}
	return result, nil
}

// SpendDates returns the distinct (symbol, UTC date) pairs of outgoing non-error rows.
func (s *TransactionStore) SpendDates(ctx context.Context) ([]domain.SymbolDate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT token_symbol, to_char(to_timestamp(timestamp) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS d
		FROM transactions
		WHERE direction = 'out' AND NOT is_error AND token_symbol <> ''
		ORDER BY token_symbol, d
	`)
	if err != nil {
		return nil, fmt.Errorf("spend dates: %w", err)
	}
	defer rows.Close()

	var result []domain.SymbolDate
	for rows.Next() {
		var sd domain.SymbolDate
		if err := rows.Scan(&sd.Symbol, &sd.Date); err != nil {
			return nil, fmt.Errorf("scan spend date: %w", err)
		}
		result = append(result, sd)
	}
	return result, rows.Err()
}

// DeleteByWallet removes every row of a wallet.
func (s *TransactionStore) DeleteByWallet(ctx context.Context, walletID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE wallet_id = $1`, walletID); err != nil {
		return fmt.Errorf("delete transactions: %w", err)
	}
	return nil
}

// scanTransactions scans rows selected with transactionColumns.
func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var value, kind, direction string
		err := rows.Scan(
			&tx.ID, &tx.WalletID, &tx.Hash, &tx.BlockNumber, &tx.Timestamp, &tx.From, &tx.To,
			&tx.RawValue, &value, &tx.TokenSymbol, &tx.TokenName, &tx.TokenDecimals, &tx.ContractAddress,
			&kind, &direction, &tx.Category, &tx.Notes, &tx.Signers, &tx.GasUsed, &tx.GasPrice, &tx.IsError,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Value, err = parseNumeric(value); err != nil {
			return nil, err
		}
		tx.Kind = domain.TransferKind(kind)
		tx.Direction = domain.Direction(direction)
		result = append(result, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}
