package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/liamcoop/ivf-estimator/formulas"
	"github.com/liamcoop/ivf-estimator/internal/config"
	"github.com/liamcoop/ivf-estimator/internal/logger"
	"github.com/liamcoop/ivf-estimator/validation"
)

// openSource returns the configured formula source and, for Postgres, the
// connection the caller must close
func openSource(ctx context.Context, cfg *config.Config) (formulas.Source, *sql.DB, error) {
	switch cfg.Formulas.Source {
	case config.SourcePostgres:
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return formulas.NewPostgresSource(db), db, nil
	default:
		return formulas.NewCSVFileSource(cfg.Formulas.CSVPath), nil, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	ctx := context.Background()
	logOpts := logger.OptionsFromEnv()
	logOpts.Level = cfg.Logging.Level
	logOpts.SampleRate = cfg.Logging.SampleRate
	logOpts.OTEL = logOpts.OTEL || cfg.Logging.OTEL
	if err := logger.Setup(ctx, logOpts); err != nil {
		logger.Warn("logger setup incomplete", "error", err)
	}

	source, db, err := openSource(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open formula source", "source", cfg.Formulas.Source, "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	table := formulas.NewTableWithCache(source, formulas.NewInMemoryFormulaCache(formulas.CacheConfig{
		TTL: cfg.Formulas.CacheTTL,
	}))
	rows, err := table.Formulas(ctx)
	if err != nil {
		logger.Fatal("failed to load formulas", "error", err)
	}
	logger.Info("formulas ready", "source", source.Name(), "count", len(rows))

	validator, err := validation.NewValidator(validation.DefaultRules())
	if err != nil {
		logger.Fatal("failed to compile validation rules", "error", err)
	}

	server := NewServer(formulas.NewEngine(table), validator, ServerOptions{
		RequestTimeout:       cfg.Server.RequestTimeout,
		SlowRequestThreshold: cfg.Server.SlowRequestThreshold,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
