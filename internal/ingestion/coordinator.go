package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"treasury-ledger/internal/domain"
	"treasury-ledger/internal/observability"
	"treasury-ledger/internal/reconcile"
	"treasury-ledger/internal/storage"
	"treasury-ledger/internal/upstream"
)

// ErrWalletNotFound is returned by RunWallet for an unknown wallet id.
var ErrWalletNotFound = errors.New("wallet not found")

// WalletState is the position of a wallet in the ingestion state machine.
type WalletState string

const (
	StateIdle        WalletState = "idle"
	StateFetching    WalletState = "fetching"
	StateReconciling WalletState = "reconciling"
	StateDone        WalletState = "done"
	StateFailed      WalletState = "failed_partial"
	StateSkipped     WalletState = "skipped"    // no address configured
	StateSuppressed  WalletState = "suppressed" // a run for the wallet was already in flight
)

// KindResult is the outcome of one (wallet, kind) batch.
type KindResult struct {
	Kind       domain.TransferKind
	Fetched    int
	Inserted   int
	Errors     int   // per-record store errors
	Checkpoint int64 // checkpoint after the batch, -1 when none exists
	Failed     bool
	ErrorKind  string
}

// WalletResult is the outcome of one wallet run.
type WalletResult struct {
	WalletID       string
	State          WalletState
	Kinds          []KindResult
	SignersUpdated int
	Failures       []string
}

// RunResult summarises a full or single-wallet run.
type RunResult struct {
	RunID           string
	Wallets         []*WalletResult
	BalancesWritten int
	PricesWritten   int
	PriceSentinels  int
	Duration        time.Duration
}

// Failed reports whether any wallet finished in Failed(partial).
func (r *RunResult) Failed() bool {
	for _, w := range r.Wallets {
		if w.State == StateFailed {
			return true
		}
	}
	return false
}

// Coordinator drives the transfer sources of every wallet into the ledger,
// advancing per (wallet, kind) checkpoints, then reconciles balances and
// backfills historical prices.
type Coordinator struct {
	wallets     storage.WalletStore
	txs         storage.TransactionStore
	checkpoints storage.CheckpointStore
	sources     []TransferSource
	signers     SignerSource
	reconciler  *reconcile.Reconciler
	prices      PriceBackfill
	pacer       *upstream.Pacer
	now         func() time.Time
	logger      zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// CoordinatorOptions contains configuration for creating a Coordinator.
type CoordinatorOptions struct {
	Wallets      storage.WalletStore
	Transactions storage.TransactionStore
	Checkpoints  storage.CheckpointStore
	Sources      []TransferSource // fetched in order, one call per wallet each
	Signers      SignerSource     // optional
	Reconciler   *reconcile.Reconciler
	Prices       PriceBackfill   // optional, full runs only
	Pacer        *upstream.Pacer // delay between upstream calls; no pacing when nil
	Clock        func() time.Time
	Logger       zerolog.Logger
}

// NewCoordinator creates a new ingestion coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		wallets:     opts.Wallets,
		txs:         opts.Transactions,
		checkpoints: opts.Checkpoints,
		sources:     opts.Sources,
		signers:     opts.Signers,
		reconciler:  opts.Reconciler,
		prices:      opts.Prices,
		pacer:       opts.Pacer,
		now:         now,
		logger:      opts.Logger.With().Str("component", "coordinator").Logger(),
		inFlight:    make(map[string]struct{}),
	}
}

// RunAll ingests every configured wallet, then reconciles token balances of all
// wallets and backfills historical prices. Per-wallet and per-kind failures are
// recorded in the result and never abort the run; only a failure to list
// wallets is returned.
func (c *Coordinator) RunAll(ctx context.Context) (*RunResult, error) {
	start := c.now()
	res := &RunResult{RunID: uuid.NewString()}
	log := c.logger.With().Str("run_id", res.RunID).Logger()

	wallets, err := c.wallets.List(ctx)
	if err != nil {
		observability.RecordIngestionRun("all", "error", c.now().Sub(start).Seconds())
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	log.Info().Int("wallets", len(wallets)).Msg("starting full ingestion")

	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Wallets = append(res.Wallets, c.guardedWallet(ctx, log, w))
	}

	if c.reconciler != nil {
		n, err := c.reconciler.Tokens(ctx, "")
		if err != nil {
			log.Error().Err(err).Msg("token balance reconciliation failed")
		}
		res.BalancesWritten += n
	}

	if c.prices != nil {
		pr, err := c.prices.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("historical price backfill failed")
		}
		res.PricesWritten = pr.Written
		res.PriceSentinels = pr.Sentinels
	}

	c.finish(log, "all", start, res)
	return res, nil
}

// RunWallet ingests a single wallet and reconciles its token balances.
// Historical prices are left to the next full run.
func (c *Coordinator) RunWallet(ctx context.Context, walletID string) (*RunResult, error) {
	start := c.now()
	res := &RunResult{RunID: uuid.NewString()}
	log := c.logger.With().Str("run_id", res.RunID).Logger()

	w, err := c.wallets.Get(ctx, walletID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", walletID, err)
	}

	wr := c.guardedWallet(ctx, log, w)
	res.Wallets = append(res.Wallets, wr)

	if c.reconciler != nil && (wr.State == StateDone || wr.State == StateFailed) {
		n, err := c.reconciler.Tokens(ctx, w.ID)
		if err != nil {
			log.Error().Err(err).Str("wallet", w.ID).Msg("token balance reconciliation failed")
		}
		res.BalancesWritten += n
	}

	c.finish(log, "wallet", start, res)
	return res, nil
}

func (c *Coordinator) finish(log zerolog.Logger, scope string, start time.Time, res *RunResult) {
	res.Duration = c.now().Sub(start)
	status := "success"
	if res.Failed() {
		status = "partial"
	} else {
		observability.MarkIngestionSuccess(c.now().Unix())
	}
	observability.RecordIngestionRun(scope, status, res.Duration.Seconds())
	log.Info().
		Str("status", status).
		Int("wallets", len(res.Wallets)).
		Int("balances", res.BalancesWritten).
		Int("prices", res.PricesWritten).
		Dur("duration", res.Duration).
		Msg("ingestion run complete")
}

// guardedWallet runs one wallet unless a run for it is already in flight.
func (c *Coordinator) guardedWallet(ctx context.Context, log zerolog.Logger, w *domain.Wallet) *WalletResult {
	if w.Address == "" {
		log.Warn().Str("wallet", w.ID).Msg("skipping wallet without address")
		return &WalletResult{WalletID: w.ID, State: StateSkipped}
	}
	if !c.acquire(w.ID) {
		log.Info().Str("wallet", w.ID).Msg("wallet run already in flight, suppressed")
		observability.RecordSuppressed("in_flight")
		return &WalletResult{WalletID: w.ID, State: StateSuppressed}
	}
	defer c.release(w.ID)
	return c.runWallet(ctx, log.With().Str("wallet", w.ID).Logger(), w)
}

func (c *Coordinator) acquire(walletID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[walletID]; busy {
		return false
	}
	c.inFlight[walletID] = struct{}{}
	return true
}

func (c *Coordinator) release(walletID string) {
	c.mu.Lock()
	delete(c.inFlight, walletID)
	c.mu.Unlock()
}

// runWallet walks Idle -> Fetching(kind)... -> Reconciling -> Done | Failed(partial).
func (c *Coordinator) runWallet(ctx context.Context, log zerolog.Logger, w *domain.Wallet) *WalletResult {
	wr := &WalletResult{WalletID: w.ID, State: StateIdle}
	log.Info().Str("address", w.Address).Msg("fetching wallet")

	wr.State = StateFetching
	for _, src := range c.sources {
		kr := c.ingestKind(ctx, log.With().Str("kind", src.Kind().String()).Logger(), w, src)
		if kr.Failed {
			wr.Failures = append(wr.Failures, fmt.Sprintf("%s: %s", kr.Kind, kr.ErrorKind))
		}
		wr.Kinds = append(wr.Kinds, kr)
	}

	if c.signers != nil {
		updated, err := c.enrichSigners(ctx, w)
		if err != nil {
			log.Error().Err(err).Msg("signer enrichment failed")
			wr.Failures = append(wr.Failures, "signers: "+upstream.KindOf(err).String())
		}
		wr.SignersUpdated = updated
	}

	wr.State = StateReconciling
	if c.reconciler != nil {
		if err := c.pacer.Wait(ctx); err == nil {
			if err := c.reconciler.Native(ctx, w); err != nil {
				log.Error().Err(err).Msg("native balance update failed")
				wr.Failures = append(wr.Failures, "balance: "+upstream.KindOf(err).String())
			}
		}
	}

	if len(wr.Failures) > 0 {
		wr.State = StateFailed
	} else {
		wr.State = StateDone
	}
	return wr
}

// ingestKind fetches one kind from the wallet checkpoint, upserts every record
// in chain order and advances the checkpoint to the highest block seen. The
// checkpoint stays put when the connector fails or returns nothing.
func (c *Coordinator) ingestKind(ctx context.Context, log zerolog.Logger, w *domain.Wallet, src TransferSource) KindResult {
	kind := src.Kind()
	kr := KindResult{Kind: kind, Checkpoint: -1}

	var startBlock int64
	cp, err := c.checkpoints.Get(ctx, w.ID, kind)
	switch {
	case err == nil:
		startBlock = cp.LastBlock
		kr.Checkpoint = cp.LastBlock
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Error().Err(err).Msg("read checkpoint failed")
		kr.Failed = true
		kr.ErrorKind = "storage"
		observability.RecordKindFailure(kind.String(), kr.ErrorKind)
		return kr
	}

	if err := c.pacer.Wait(ctx); err != nil {
		kr.Failed = true
		kr.ErrorKind = "canceled"
		return kr
	}

	txs, err := src.Fetch(ctx, w.Address, startBlock)
	if err != nil {
		kr.Failed = true
		kr.ErrorKind = upstream.KindOf(err).String()
		observability.RecordKindFailure(kind.String(), kr.ErrorKind)
		log.Warn().Err(err).Int64("block", startBlock).Msg("fetch failed, checkpoint not advanced")
		return kr
	}
	kr.Fetched = len(txs)

	SortTransfers(txs)
	for _, tx := range txs {
		tx.WalletID = w.ID
		tx.Kind = kind
		inserted, err := c.txs.Upsert(ctx, tx)
		if err != nil {
			kr.Errors++
			log.Error().Err(err).Str("hash", tx.Hash).Msg("store transfer failed, skipped")
			continue
		}
		if inserted {
			kr.Inserted++
		}
	}
	observability.RecordBatch(kind.String(), kr.Fetched, kr.Inserted, kr.Errors)

	if len(txs) > 0 {
		next := &domain.FetchCheckpoint{
			WalletID:  w.ID,
			Kind:      kind,
			LastBlock: MaxBlock(txs),
			FetchedAt: c.now().Unix(),
			TxCount:   kr.Inserted,
		}
		if err := c.checkpoints.Advance(ctx, next); err != nil {
			log.Error().Err(err).Int64("block", next.LastBlock).Msg("advance checkpoint failed")
		} else if next.LastBlock > kr.Checkpoint {
			kr.Checkpoint = next.LastBlock
		}
	}
	if kr.Checkpoint >= 0 {
		observability.UpdateCheckpoint(w.ID, kind.String(), kr.Checkpoint)
	}

	log.Info().
		Int("fetched", kr.Fetched).
		Int("inserted", kr.Inserted).
		Int("errors", kr.Errors).
		Int64("block", kr.Checkpoint).
		Msg("kind ingested")
	return kr
}

// enrichSigners attaches confirming signers to the wallet's stored transactions.
func (c *Coordinator) enrichSigners(ctx context.Context, w *domain.Wallet) (int, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return 0, err
	}
	signers, err := c.signers.FetchSigners(ctx, w.Address)
	if err != nil {
		return 0, err
	}

	updated := 0
	for hash, list := range signers {
		n, err := c.txs.UpdateSigners(ctx, w.ID, hash, list)
		if err != nil {
			c.logger.Error().Err(err).Str("wallet", w.ID).Str("hash", hash).Msg("update signers failed")
			continue
		}
		updated += n
	}
	return updated, nil
}
