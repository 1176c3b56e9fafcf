package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeper/db/migrations"
	"github.com/tinoosan/bookkeeper/internal/config"
	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/httpapi"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/account"
	"github.com/tinoosan/bookkeeper/internal/service/asset"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
	pgstore "github.com/tinoosan/bookkeeper/internal/storage/postgres"
	"github.com/tinoosan/bookkeeper/internal/storage/sqlite"
)

func newServeCommand() *cobra.Command {
	var addr, currency string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

The storage backend is chosen from the environment: DATABASE_URL selects
Postgres, SQLITE_PATH a SQLite file, otherwise an in-memory store is used.
The chart of accounts (built-in, or CHART_FILE) is seeded on start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if currency != "" {
				if cfg.Currency, err = ledger.ParseCurrency(currency); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&currency, "currency", "", "ledger currency (overrides LEDGER_CURRENCY)")

	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	logger.Info("storage backend: "+cfg.Backend(), "currency", cfg.Currency.Code)

	chart := dictionary.Default()
	if cfg.ChartFile != "" {
		if chart, err = dictionary.Load(cfg.ChartFile); err != nil {
			return err
		}
	}
	accs, err := account.New(store, store).EnsureChart(ctx, chart)
	if err != nil {
		return fmt.Errorf("seed chart of accounts: %w", err)
	}
	logger.Info("chart of accounts ready", "accounts", len(accs))

	engine := posting.New(cfg.Currency)
	if cfg.DevSeed {
		if err := devSeed(ctx, store, engine, os.Stdout, logger, cfg.Backend()); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	api := httpapi.New(store, httpapi.Options{
		Engine:             engine,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Depreciation:       asset.Options{Workers: cfg.DepreciationWorkers, Retries: cfg.DepreciationRetries},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bookkeeper listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
			return err
		}
		return nil
	case err := <-errCh:
		logger.Error("server error", "err", err)
		return err
	}
}

// openStore builds the configured backend. Postgres is migrated on open; the
// SQLite store migrates itself.
func openStore(ctx context.Context, cfg *config.Config) (httpapi.Store, func(), error) {
	switch cfg.Backend() {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		script, err := migrations.Script()
		if err == nil {
			err = pg.Migrate(ctx, script)
		}
		if err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, pg.Close, nil
	case "sqlite":
		lite, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return lite, func() { _ = lite.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}
