package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"treasury-ledger/internal/config"
	"treasury-ledger/internal/ingestion"
	"treasury-ledger/internal/observability"
	"treasury-ledger/internal/reporting"
	"treasury-ledger/internal/storage/migrations"
	pgstore "treasury-ledger/internal/storage/postgres"
	"treasury-ledger/internal/verification"
)

// setup parses logging flags and loads the configuration.
func setup(flags *rootFlags) (*config.Config, zerolog.Logger, error) {
	logger, err := newLogger(flags)
	if err != nil {
		return nil, logger, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, logger, err
	}
	return cfg, logger, nil
}

func serveCmd(flags *rootFlags) *cobra.Command {
	var addr string
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled ingestion with metrics and health endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, addr, !skipMigrate, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "HTTP address for /metrics, /healthz and /ingest")
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply pending migrations on startup")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string, migrate bool, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer a.close()

	dispatcher := ingestion.NewDispatcher(ingestion.DispatcherOptions{
		Run:       ingestion.CoordinatorRunFunc(a.coordinator, logger),
		Workers:   cfg.Ingestion.Workers,
		QueueSize: cfg.Ingestion.QueueSize,
		Logger:    logger,
	})
	dispatcher.Start(ctx)

	svc := a.service(dispatcher)
	scheduler := ingestion.NewScheduler(dispatcher, cfg.Ingestion.Interval, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var queued bool
		var err error
		if walletID := r.URL.Query().Get("wallet"); walletID != "" {
			queued, err = svc.RunWalletIngestion(r.Context(), walletID)
		} else {
			queued, err = svc.RunFullIngestion()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]bool{"queued": queued})
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	err = scheduler.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error().Err(serr).Msg("HTTP server shutdown")
	}
	dispatcher.Wait()
	logger.Info().Msg("shutdown complete")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func ingestCmd(flags *rootFlags) *cobra.Command {
	var walletID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, true, logger)
			if err != nil {
				return err
			}
			defer a.close()

			var res *ingestion.RunResult
			if walletID != "" {
				res, err = a.coordinator.RunWallet(cmd.Context(), walletID)
			} else {
				res, err = a.coordinator.RunAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			printRunResult(cmd.OutOrStdout(), res)
			if res.Failed() {
				return errors.New("ingestion finished with failures")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&walletID, "wallet", "", "Only ingest this wallet id")
	return cmd
}

func printRunResult(w io.Writer, res *ingestion.RunResult) {
	fmt.Fprintf(w, "run %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	for _, wr := range res.Wallets {
		fmt.Fprintf(w, "  %-24s %s\n", wr.WalletID, wr.State)
		for _, k := range wr.Kinds {
			status := "ok"
			if k.Failed {
				status = "failed (" + k.ErrorKind + ")"
			}
			fmt.Fprintf(w, "    %-9s fetched=%d inserted=%d errors=%d checkpoint=%d %s\n",
				k.Kind, k.Fetched, k.Inserted, k.Errors, k.Checkpoint, status)
		}
	}
	fmt.Fprintf(w, "balances written: %d, prices written: %d, sentinels: %d\n",
		res.BalancesWritten, res.PricesWritten, res.PriceSentinels)
}

func statsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <wallet-id>",
		Short: "Print balances, spend and burn of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.service(nil).WalletStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), reporting.RenderStatsMarkdown(stats))
			return err
		},
	}
}

func budgetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <wallet-id>",
		Short: "Print spend against budget for a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.service(nil).BudgetComparison(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			name := args[0]
			if w, ok := cfg.Wallet(args[0]); ok {
				name = w.Name
			}
			_, err = io.WriteString(cmd.OutOrStdout(), reporting.RenderBudgetMarkdown(name, report))
			return err
		},
	}
}

func exportCmd(flags *rootFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <wallet-id>",
		Short: "Export a wallet's ledger as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer a.close()

			rows, err := a.service(nil).ExportLedger(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = reporting.ExportFilename(args[0])
			}
			if outPath == "-" {
				return reporting.RenderLedgerCSV(cmd.OutOrStdout(), rows)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := reporting.RenderLedgerCSV(f, rows); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info().Str("wallet", args[0]).Int("rows", len(rows)).Str("path", outPath).Msg("ledger exported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (- for stdout)")
	return cmd
}

func migrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			if cfg.Storage.UseMemory {
				return errors.New("migrate requires postgres storage")
			}
			ctx := cmd.Context()

			pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				return err
			}
			logger.Info().Strs("versions", applied).Msg("postgres migrations applied")

			if cfg.Storage.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
				if err != nil {
					return err
				}
				defer conn.Close()
				logger.Info().Msg("clickhouse migrations applied")
			}
			return nil
		},
	}
}

func verifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [wallet-id]",
		Short: "Recompute token balances and checkpoints from stored rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false, logger)
			if err != nil {
				return err
			}
			defer a.close()

			v := verification.NewLedgerVerifier(verification.LedgerVerifierOptions{
				Wallets:      a.stores.wallets,
				Transactions: a.stores.transactions,
				Balances:     a.stores.balances,
				Checkpoints:  a.stores.checkpoints,
			})

			var results []verification.VerificationResult
			if len(args) == 1 {
				res, err := v.VerifyWallet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results = append(results, *res)
			} else {
				report, err := v.VerifyAll(cmd.Context())
				if err != nil {
					return err
				}
				results = report.Results
			}

			out := cmd.OutOrStdout()
			divergent := 0
			for _, res := range results {
				status := "OK"
				if !res.Match {
					status = "DIVERGENT"
					divergent++
				}
				fmt.Fprintf(out, "%-24s %s (balances=%d checkpoints=%d)\n",
					res.WalletID, status, res.BalancesChecked, res.CheckpointsChecked)
				for _, d := range res.Divergences {
					fmt.Fprintf(out, "  %s expected=%v stored=%v\n", d.Field, d.Expected, d.Actual)
				}
			}
			if divergent > 0 {
				return fmt.Errorf("%d wallet(s) diverge", divergent)
			}
			return nil
		},
	}
}
