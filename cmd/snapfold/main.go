// Entry point for the snapfold service: folds versioned snapshot records
// from a linked-data event stream into queryable current-state entities.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/snapfold/codelist"
	"github.com/hazyhaar/snapfold/config"
	"github.com/hazyhaar/snapfold/dbopen"
	"github.com/hazyhaar/snapfold/httpapi"
	"github.com/hazyhaar/snapfold/ingest"
	"github.com/hazyhaar/snapfold/merge"
	"github.com/hazyhaar/snapfold/store"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to YAML config file")
		listen     = pflag.String("listen", "", "listen address (overrides config)")
		dbPath     = pflag.String("db", "", "database path (overrides config)")
	)
	pflag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.ApplySchema(db); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}
	st := store.NewStore(db)

	// Merge pipeline.
	registry := codelist.NewRegistry(codelist.RegistryConfig{
		SearchURL: cfg.Registry.SearchURL,
		Timeout:   time.Duration(cfg.Registry.TimeoutMs) * time.Millisecond,
		MaxBytes:  cfg.Registry.MaxBytes,
		UserAgent: cfg.Registry.UserAgent,
	})
	backfill := codelist.NewBackfill(st, registry, logger)
	merger := merge.New(st, backfill, logger)
	processor := ingest.NewProcessor(st, merger.Merge, logger)

	// Single sequential worker; scheduler tick and HTTP notifications both
	// coalesce onto it.
	runner := ingest.NewRunner(processor.Process, logger)
	scheduler := ingest.NewScheduler(
		time.Duration(cfg.CheckIntervalMs)*time.Millisecond, runner.Trigger, logger)
	go runner.Run(ctx)
	go scheduler.Run(ctx)

	// HTTP surface.
	api := httpapi.NewServer(st, runner.Trigger, cfg.SnapshotTypes, logger)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("snapfold: listening", "addr", cfg.Listen, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("snapfold: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	slog.Info("snapfold: stopped")
}
