package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"treasury-ledger/internal/aggregation"
	"treasury-ledger/internal/config"
	"treasury-ledger/internal/connectors"
	"treasury-ledger/internal/ingestion"
	"treasury-ledger/internal/pricing"
	"treasury-ledger/internal/reconcile"
	"treasury-ledger/internal/storage"
	chstore "treasury-ledger/internal/storage/clickhouse"
	"treasury-ledger/internal/storage/memory"
	"treasury-ledger/internal/storage/migrations"
	pgstore "treasury-ledger/internal/storage/postgres"
	"treasury-ledger/internal/treasury"
	"treasury-ledger/internal/upstream"
)

// allStores holds all storage implementations.
type allStores struct {
	wallets      storage.WalletStore
	transactions storage.TransactionStore
	balances     storage.BalanceStore
	checkpoints  storage.CheckpointStore
	samples      storage.PriceSampleStore
}

// createStores opens the configured backends. With migrate set, pending
// migrations are applied before the stores are returned.
func createStores(ctx context.Context, cfg config.Storage, migrate bool, logger zerolog.Logger) (*allStores, func(), error) {
	if cfg.UseMemory {
		logger.Warn().Msg("using in-memory storage, data is lost on exit")
		stores := &allStores{
			wallets:      memory.NewWalletStore(),
			transactions: memory.NewTransactionStore(),
			balances:     memory.NewBalanceStore(),
			checkpoints:  memory.NewCheckpointStore(),
			samples:      memory.NewPriceSampleStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if migrate {
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("versions", applied).Msg("postgres migrations applied")
		}
	}

	stores := &allStores{
		wallets:      pgstore.NewWalletStore(pool),
		transactions: pgstore.NewTransactionStore(pool),
		balances:     pgstore.NewBalanceStore(pool),
		checkpoints:  pgstore.NewCheckpointStore(pool),
		samples:      pgstore.NewPriceSampleStore(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse (optional price samples)
	if cfg.ClickhouseDSN == "" {
		return stores, cleanup, nil
	}
	var chConn *chstore.Conn
	if migrate {
		chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
	} else {
		chConn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
	}
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	stores.samples = chstore.NewPriceSampleStore(chConn)
	logger.Info().Msg("price samples stored in clickhouse")

	cleanup = func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// app wires stores, upstream connectors, pricing and the ingestion core.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	stores      *allStores
	cache       *pricing.CurrentCache
	coordinator *ingestion.Coordinator
	close       func()
}

func newApp(ctx context.Context, cfg *config.Config, migrate bool, logger zerolog.Logger) (*app, error) {
	stores, cleanup, err := createStores(ctx, cfg.Storage, migrate, logger)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, stores, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	a.close = cleanup

	wiped, err := ingestion.SeedWallets(ctx, ingestion.SeedStores{
		Wallets:      stores.wallets,
		Transactions: stores.transactions,
		Balances:     stores.balances,
		Checkpoints:  stores.checkpoints,
	}, cfg.DomainWallets(), logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("seed wallets: %w", err)
	}
	logger.Info().Int("wallets", len(cfg.Wallets)).Strs("wiped", wiped).Msg("wallets seeded")
	return a, nil
}

func wire(cfg *config.Config, stores *allStores, logger zerolog.Logger) (*app, error) {
	up := cfg.Upstream

	explorerClient := upstream.NewClient(
		upstream.WithTimeout(up.ExplorerTimeout),
		upstream.WithMaxAttempts(up.MaxAttempts),
		upstream.WithLogger(logger),
	)
	priceClient := upstream.NewClient(
		upstream.WithTimeout(up.PriceTimeout),
		upstream.WithMaxAttempts(up.MaxAttempts),
		upstream.WithLogger(logger),
	)

	explorer, err := connectors.NewExplorer(explorerClient, connectors.ExplorerConfig{
		BaseURL: up.ExplorerURL,
		APIKey:  up.ExplorerAPIKey,
		ChainID: up.ChainID,
	})
	if err != nil {
		return nil, err
	}
	if up.ExplorerAPIKey == "" {
		logger.Warn().Msg("no explorer api key configured, requests may be throttled")
	}

	var sources []ingestion.TransferSource
	for _, c := range connectors.NewTransferConnectors(explorer, logger) {
		sources = append(sources, c)
	}

	var signers ingestion.SignerSource
	if up.SafeURL != "" {
		sc, err := connectors.NewSignerConnector(explorerClient, up.SafeURL, logger)
		if err != nil {
			return nil, err
		}
		signers = sc
	}

	provider, err := pricing.NewDefiLlama(priceClient, up.PriceURL)
	if err != nil {
		return nil, err
	}
	cache := pricing.NewCurrentCache(pricing.CacheOptions{
		Provider: provider,
		Tokens:   cfg.Tokens,
		TTL:      cfg.Pricing.CurrentTTL,
		Logger:   logger,
	})
	backfill := pricing.NewBackfiller(pricing.BackfillOptions{
		Provider:      provider,
		Samples:       stores.samples,
		Transactions:  stores.transactions,
		Tokens:        cfg.Tokens,
		BaseAsset:     cfg.BaseAsset,
		ReferenceHour: cfg.Pricing.ReferenceHour,
		Pacer:         upstream.NewPacer(up.PriceDelay),
		Logger:        logger,
	})

	reconciler := reconcile.New(reconcile.Options{
		Transactions: stores.transactions,
		Balances:     stores.balances,
		Native:       connectors.NewBalanceConnector(explorer, logger),
		Logger:       logger,
	})

	coordinator := ingestion.NewCoordinator(ingestion.CoordinatorOptions{
		Wallets:      stores.wallets,
		Transactions: stores.transactions,
		Checkpoints:  stores.checkpoints,
		Sources:      sources,
		Signers:      signers,
		Reconciler:   reconciler,
		Prices:       backfill,
		Pacer:        upstream.NewPacer(up.PacingDelay),
		Logger:       logger,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		stores:      stores,
		cache:       cache,
		coordinator: coordinator,
	}, nil
}

// service returns the facade. submit may be nil for read-only commands.
func (a *app) service(submit ingestion.Submitter) *treasury.Service {
	engine := aggregation.NewEngine(aggregation.Options{
		Transactions: a.stores.transactions,
		BaseAsset:    a.cfg.BaseAsset,
	})
	return treasury.New(treasury.Options{
		Wallets:      a.stores.wallets,
		Transactions: a.stores.transactions,
		Balances:     a.stores.balances,
		Samples:      a.stores.samples,
		Cache:        a.cache,
		Engine:       engine,
		Plan:         a.cfg.BudgetPlan(),
		Categories:   a.cfg.Categories,
		Submitter:    submit,
		Logger:       a.logger,
	})
}
