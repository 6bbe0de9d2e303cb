package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/storage/memory"
)

type stubNative struct {
	balance *domain.Balance
	err     error
}

func (s *stubNative) NativeBalance(_ context.Context, _ string) (*domain.Balance, error) {
	if s.err != nil {
		return nil, s.err
	}
	b := *s.balance
	return &b, nil
}

func fixedClock() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func insert(t *testing.T, store *memory.TransactionStore, hash string, dir domain.Direction, value string, isError bool) {
	t.Helper()
	_, err := store.Upsert(context.Background(), &domain.Transaction{
		WalletID:        "ops",
		Hash:            hash,
		Timestamp:       1000,
		From:            "0xa",
		To:              "0xb",
		Value:           decimal.RequireFromString(value),
		TokenSymbol:     "USDC",
		TokenName:       "USD Coin",
		TokenDecimals:   6,
		ContractAddress: "0xusdc",
		Kind:            domain.KindToken,
		Direction:       dir,
		IsError:         isError,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", hash, err)
	}
}

func TestReconciler_TokensInMinusOut(t *testing.T) {
	ctx := context.Background()
	txs := memory.NewTransactionStore()
	balances := memory.NewBalanceStore()

	insert(t, txs, "0x1", domain.DirectionIn, "100.5", false)
	insert(t, txs, "0x2", domain.DirectionOut, "40.25", false)
	insert(t, txs, "0x3", domain.DirectionOut, "1000", true) // failed transfer

	r := New(Options{Transactions: txs, Balances: balances, Clock: fixedClock, Logger: zerolog.Nop()})

	written, err := r.Tokens(ctx, "ops")
	if err != nil {
		t.Fatalf("Tokens failed: %v", err)
	}
	if written != 1 {
		t.Fatalf("expected 1 balance, got %d", written)
	}

	rows, _ := balances.ListByWallet(ctx, "ops")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	b := rows[0]
	if !b.Value.Equal(decimal.RequireFromString("60.25")) {
		t.Errorf("expected 60.25, got %s", b.Value)
	}
	if b.Raw != "60250000" {
		t.Errorf("expected raw 60250000, got %s", b.Raw)
	}
	if b.LastUpdated != fixedClock().Unix() {
		t.Errorf("unexpected LastUpdated %d", b.LastUpdated)
	}
}

func TestReconciler_TokensIsIdempotent(t *testing.T) {
	ctx := context.Background()
	txs := memory.NewTransactionStore()
	balances := memory.NewBalanceStore()
	insert(t, txs, "0x1", domain.DirectionIn, "5", false)

	r := New(Options{Transactions: txs, Balances: balances, Clock: fixedClock, Logger: zerolog.Nop()})
	for i := 0; i < 2; i++ {
		if _, err := r.Tokens(ctx, ""); err != nil {
			t.Fatalf("Tokens failed: %v", err)
		}
	}

	rows, _ := balances.ListByWallet(ctx, "ops")
	if len(rows) != 1 || !rows[0].Value.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected a single balance of 5, got %+v", rows)
	}
}

func TestReconciler_Native(t *testing.T) {
	ctx := context.Background()
	balances := memory.NewBalanceStore()
	src := &stubNative{balance: &domain.Balance{
		TokenSymbol: domain.NativeSymbol,
		TokenName:   domain.NativeName,
		Raw:         "1500000000000000000",
		Value:       decimal.RequireFromString("1.5"),
	}}

	r := New(Options{
		Transactions: memory.NewTransactionStore(),
		Balances:     balances,
		Native:       src,
		Clock:        fixedClock,
		Logger:       zerolog.Nop(),
	})

	w := &domain.Wallet{ID: "ops", Address: "0xabc"}
	if err := r.Native(ctx, w); err != nil {
		t.Fatalf("Native failed: %v", err)
	}

	src.err = errors.New("rate limited")
	if err := r.Native(ctx, w); err == nil {
		t.Fatal("expected error from failing source")
	}

	rows, _ := balances.ListByWallet(ctx, "ops")
	if len(rows) != 1 {
		t.Fatalf("expected previous snapshot to survive, got %d rows", len(rows))
	}
	if rows[0].ContractAddress != "" || !rows[0].Value.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("unexpected native row %+v", rows[0])
	}
}
