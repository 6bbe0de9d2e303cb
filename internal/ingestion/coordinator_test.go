package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/ingestion/stub"
	"treasury-ledger/internal/pricing"
	"treasury-ledger/internal/reconcile"
	"treasury-ledger/internal/storage"
	"treasury-ledger/internal/storage/memory"
	"treasury-ledger/internal/upstream"
)

const opsAddress = "0xOps0000000000000000000000000000000000001"

type testEnv struct {
	wallets     *memory.WalletStore
	txs         *memory.TransactionStore
	balances    *memory.BalanceStore
	checkpoints *memory.CheckpointStore
	native      *stub.StubTransferSource
	token       *stub.StubTransferSource
	internal    *stub.StubTransferSource
	prices      *countingBackfill
	coord       *Coordinator
}

type countingBackfill struct {
	runs int
}

func (b *countingBackfill) Run(context.Context) (pricing.BackfillResult, error) {
	b.runs++
	return pricing.BackfillResult{}, nil
}

type fixedNative struct{}

func (fixedNative) NativeBalance(context.Context, string) (*domain.Balance, error) {
	return &domain.Balance{TokenSymbol: "ETH", TokenName: "Ether", Raw: "1000000000000000000", Value: decimal.NewFromInt(1)}, nil
}

func transfer(block int64, hash, from, to, value string) *domain.Transaction {
	return &domain.Transaction{
		Hash:        hash,
		BlockNumber: block,
		Timestamp:   1_700_000_000 + block,
		From:        from,
		To:          to,
		Value:       decimal.RequireFromString(value),
		TokenSymbol: domain.NativeSymbol,
		Direction:   domain.DirectionFor(opsAddress, from),
	}
}

func tokenTransfer(block int64, hash, from, to, value string) *domain.Transaction {
	tx := transfer(block, hash, from, to, value)
	tx.TokenSymbol = "USDC"
	tx.TokenDecimals = 6
	tx.ContractAddress = "0xusdc"
	return tx
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		wallets:     memory.NewWalletStore(),
		txs:         memory.NewTransactionStore(),
		balances:    memory.NewBalanceStore(),
		checkpoints: memory.NewCheckpointStore(),
		prices:      &countingBackfill{},
	}

	env.native = stub.NewStubTransferSource(domain.KindNative, []*domain.Transaction{
		transfer(120, "0xb", opsAddress, "0xvendor", "0.5"),
		transfer(100, "0xa", "0xdonor", opsAddress, "2"),
	})
	env.token = stub.NewStubTransferSource(domain.KindToken, []*domain.Transaction{
		tokenTransfer(110, "0xc", "0xdonor", opsAddress, "1000"),
		tokenTransfer(130, "0xd", opsAddress, "0xvendor", "250"),
	})
	env.internal = stub.NewStubTransferSource(domain.KindInternal, nil)

	ctx := context.Background()
	if err := env.wallets.Upsert(ctx, &domain.Wallet{ID: "ops", Name: "Operations", Address: opsAddress}); err != nil {
		t.Fatalf("seed wallet: %v", err)
	}

	rec := reconcile.New(reconcile.Options{
		Transactions: env.txs,
		Balances:     env.balances,
		Native:       fixedNative{},
		Logger:       zerolog.Nop(),
	})
	env.coord = NewCoordinator(CoordinatorOptions{
		Wallets:      env.wallets,
		Transactions: env.txs,
		Checkpoints:  env.checkpoints,
		Sources:      []TransferSource{env.native, env.token, env.internal},
		Signers:      stub.NewStubSignerSource(map[string]string{"0xb": "0x1,0x2"}, nil),
		Reconciler:   rec,
		Prices:       env.prices,
		Logger:       zerolog.Nop(),
	})
	return env
}

func (env *testEnv) checkpoint(t *testing.T, kind domain.TransferKind) int64 {
	t.Helper()
	cp, err := env.checkpoints.Get(context.Background(), "ops", kind)
	if errors.Is(err, storage.ErrNotFound) {
		return -1
	}
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	return cp.LastBlock
}

func (env *testEnv) rowCount(t *testing.T) int {
	t.Helper()
	rows, err := env.txs.ListByWallet(context.Background(), "ops")
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	return len(rows)
}

func TestCoordinator_RunAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.coord.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if res.RunID == "" {
		t.Error("expected run id")
	}
	if len(res.Wallets) != 1 || res.Wallets[0].State != StateDone {
		t.Fatalf("expected ops done, got %+v", res.Wallets)
	}
	if got := env.rowCount(t); got != 4 {
		t.Errorf("expected 4 rows, got %d", got)
	}
	if got := env.checkpoint(t, domain.KindNative); got != 120 {
		t.Errorf("native checkpoint = %d, want 120", got)
	}
	if got := env.checkpoint(t, domain.KindToken); got != 130 {
		t.Errorf("token checkpoint = %d, want 130", got)
	}
	if got := env.checkpoint(t, domain.KindInternal); got != -1 {
		t.Errorf("empty batch must not create a checkpoint, got %d", got)
	}
	if res.Wallets[0].SignersUpdated != 1 {
		t.Errorf("expected 1 signer update, got %d", res.Wallets[0].SignersUpdated)
	}
	if env.prices.runs != 1 {
		t.Errorf("expected one price backfill, got %d", env.prices.runs)
	}

	balances, _ := env.balances.ListByWallet(ctx, "ops")
	if len(balances) != 2 {
		t.Fatalf("expected native + USDC balances, got %d", len(balances))
	}
	for _, b := range balances {
		if b.ContractAddress == "0xusdc" && !b.Value.Equal(decimal.NewFromInt(750)) {
			t.Errorf("USDC balance = %s, want 750", b.Value)
		}
	}
}

func TestCoordinator_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.coord.RunAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rowsBefore := env.rowCount(t)
	nativeBefore := env.checkpoint(t, domain.KindNative)
	tokenBefore := env.checkpoint(t, domain.KindToken)

	res, err := env.coord.RunAll(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, kr := range res.Wallets[0].Kinds {
		if kr.Inserted != 0 {
			t.Errorf("%s: expected no new rows, got %d", kr.Kind, kr.Inserted)
		}
	}
	if got := env.rowCount(t); got != rowsBefore {
		t.Errorf("row count changed: %d -> %d", rowsBefore, got)
	}
	if env.checkpoint(t, domain.KindNative) != nativeBefore || env.checkpoint(t, domain.KindToken) != tokenBefore {
		t.Error("checkpoints changed on identical data")
	}

	// Resumes from the stored checkpoint.
	starts := env.native.StartBlocks()
	if starts[len(starts)-1] != 120 {
		t.Errorf("expected second fetch from block 120, got %v", starts)
	}
}

func TestCoordinator_FailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.native.SetError(upstream.NewTransient(errors.New("rate limited")))

	res, err := env.coord.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll must not escalate connector failures: %v", err)
	}
	wr := res.Wallets[0]
	if wr.State != StateFailed {
		t.Errorf("expected failed_partial, got %s", wr.State)
	}
	if got := env.checkpoint(t, domain.KindNative); got != -1 {
		t.Errorf("failed kind must not advance checkpoint, got %d", got)
	}
	if got := env.checkpoint(t, domain.KindToken); got != 130 {
		t.Errorf("token kind should still be ingested, checkpoint %d", got)
	}
	if wr.Kinds[0].ErrorKind != "transient" {
		t.Errorf("expected transient error kind, got %q", wr.Kinds[0].ErrorKind)
	}
}

func TestCoordinator_CheckpointMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.coord.RunAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Upstream regresses to an older block, then fails.
	env.token.SetTransfers([]*domain.Transaction{tokenTransfer(90, "0xold", "0xdonor", opsAddress, "1")})
	if _, err := env.coord.RunAll(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := env.checkpoint(t, domain.KindToken); got != 130 {
		t.Errorf("checkpoint regressed to %d", got)
	}

	env.token.SetError(errors.New("boom"))
	if _, err := env.coord.RunAll(ctx); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if got := env.checkpoint(t, domain.KindToken); got != 130 {
		t.Errorf("checkpoint changed on failure: %d", got)
	}

	env.token.SetError(nil)
	env.token.SetTransfers([]*domain.Transaction{tokenTransfer(200, "0xnew", "0xdonor", opsAddress, "1")})
	if _, err := env.coord.RunAll(ctx); err != nil {
		t.Fatalf("fourth run: %v", err)
	}
	if got := env.checkpoint(t, domain.KindToken); got != 200 {
		t.Errorf("expected checkpoint 200, got %d", got)
	}
}

func TestCoordinator_RunWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.coord.RunWallet(ctx, "ops")
	if err != nil {
		t.Fatalf("RunWallet failed: %v", err)
	}
	if res.Wallets[0].State != StateDone {
		t.Errorf("expected done, got %s", res.Wallets[0].State)
	}
	if env.prices.runs != 0 {
		t.Error("single-wallet run must not backfill prices")
	}

	if _, err := env.coord.RunWallet(ctx, "ghost"); !errors.Is(err, ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestCoordinator_SkipsWalletWithoutAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_ = env.wallets.Upsert(ctx, &domain.Wallet{ID: "grants", Name: "Grants"})

	res, err := env.coord.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	for _, wr := range res.Wallets {
		if wr.WalletID == "grants" && wr.State != StateSkipped {
			t.Errorf("expected grants skipped, got %s", wr.State)
		}
	}
}

// blockingSource blocks Fetch until release is closed.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) Kind() domain.TransferKind { return domain.KindNative }

func (b *blockingSource) Fetch(ctx context.Context, _ string, _ int64) ([]*domain.Transaction, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestCoordinator_SuppressesInFlightWallet(t *testing.T) {
	wallets := memory.NewWalletStore()
	ctx := context.Background()
	_ = wallets.Upsert(ctx, &domain.Wallet{ID: "ops", Address: opsAddress})

	src := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	coord := NewCoordinator(CoordinatorOptions{
		Wallets:      wallets,
		Transactions: memory.NewTransactionStore(),
		Checkpoints:  memory.NewCheckpointStore(),
		Sources:      []TransferSource{src},
		Logger:       zerolog.Nop(),
	})

	done := make(chan *RunResult)
	go func() {
		res, _ := coord.RunWallet(ctx, "ops")
		done <- res
	}()
	<-src.entered

	res, err := coord.RunWallet(ctx, "ops")
	if err != nil {
		t.Fatalf("RunWallet failed: %v", err)
	}
	if res.Wallets[0].State != StateSuppressed {
		t.Errorf("expected suppressed, got %s", res.Wallets[0].State)
	}

	close(src.release)
	select {
	case first := <-done:
		if first.Wallets[0].State != StateDone {
			t.Errorf("expected first run done, got %s", first.Wallets[0].State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
}
