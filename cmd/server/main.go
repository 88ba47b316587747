/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the salon finance server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and environment, apply flag overrides
  2. Set up slog (tint handler)
  3. Open the store: Postgres for a postgres:// DATABASE_URL, in-memory
     for memory://, SQLite otherwise
  4. Create API handler, metrics and router
  5. Optionally seed the salon-year demo
  6. Start the outstanding-balance refresher and the HTTP server

COMMAND-LINE FLAGS:
  -addr    Listen address, overrides APP_ADDR (default: :8080)
  -db      SQLite database path, overrides SQLITE_PATH (default: finance.db)
           Use ":memory:" for in-memory database
  -seed    Load the salon-year demo at startup, same as SEED_DEMO=true

ENVIRONMENT:
  See config/config.go. DATABASE_URL, LOG_LEVEL, CORS_ORIGINS,
  METRICS_ENABLED, SHUTDOWN_TIMEOUT, DB_MAX_CONNS.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SHUTDOWN_TIMEOUT)
  3. Stop the refresher
  4. Close database connection

EXAMPLES:
  ./server -db="./data/finance.db"
  DATABASE_URL=postgres://localhost/finance ./server -addr=:3000
  DATABASE_URL=memory:// ./server -seed

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salonops/finance-engine/api"
	"github.com/salonops/finance-engine/config"
	"github.com/salonops/finance-engine/pkg/logging"
	"github.com/salonops/finance-engine/store/memory"
	"github.com/salonops/finance-engine/store/postgres"
	"github.com/salonops/finance-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags win over the environment
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	flag.BoolVar(&cfg.SeedDemo, "seed", cfg.SeedDemo, "load the salon-year demo at startup")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var metrics *api.Metrics
	if cfg.MetricsEnabled {
		metrics = api.NewMetrics()
	}
	handler := api.NewHandler(store, metrics, logger)

	if cfg.SeedDemo {
		result, err := handler.LoadScenarioByID(context.Background(), "salon-year")
		if err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
		logger.Info("demo data loaded", "scenario", result.Scenario, "payroll_records", result.PayrollRecords)
	}

	refresher := api.NewOutstandingRefresher(handler.Payroll, metrics, logger)
	refresher.Start()
	defer refresher.Stop()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.CORSOrigins}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "postgres", cfg.UsePostgres(), "metrics", cfg.MetricsEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(cfg config.Config, logger *slog.Logger) (api.Store, error) {
	if cfg.UseMemory() {
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	}
	if cfg.UsePostgres() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		store, err := postgres.Connect(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("using postgres store", "max_conns", cfg.DBMaxConns)
		return store, nil
	}
	store, err := sqlite.New(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	logger.Info("using sqlite store", "path", cfg.SQLitePath)
	return store, nil
}
