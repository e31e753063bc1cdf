package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/application/service"
	"github.com/damon-houk/fx-rate-engine/internal/config"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/api"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/db"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/handler"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/logger"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/metrics"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/middleware"
	"github.com/damon-houk/fx-rate-engine/internal/infrastructure/mockrates"
	"github.com/dgraph-io/badger/v3"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logger.NewJSONLogger(os.Stdout, logger.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{
			"error": err.Error(),
		})
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal("Invalid log level", map[string]interface{}{
			"error": err.Error(),
		})
	}
	log = logger.NewJSONLogger(os.Stdout, level)
	logger.SetDefaultLogger(log)

	log.Info("Starting exchange rate engine", map[string]interface{}{
		"port":          cfg.HTTPPort,
		"data_dir":      cfg.DataDir,
		"base_currency": cfg.Provider.BaseCurrency,
		"mock_mode":     cfg.MockMode,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Server stopped", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup BadgerDB
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return err
	}

	badgerOpts := badger.DefaultOptions(cfg.DataDir)
	badgerOpts.Logger = nil // Disable Badger's default logger

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := badgerDB.Close(); err != nil {
			log.Error("Error closing BadgerDB", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	m := metrics.NewMetrics()

	// Initialize repositories
	store := db.NewDeferredRepository(db.NewBadgerSnapshotRepository(badgerDB), log, m)

	// Initialize rate sources
	remote := api.NewRateAPIClient(api.ClientOptions{
		BaseURL:      cfg.Provider.BaseURL,
		APIKey:       cfg.Provider.APIKey,
		Timeout:      cfg.Provider.Timeout,
		MaxAttempts:  cfg.Provider.MaxAttempts,
		RetryBackoff: cfg.Provider.RetryBackoff,
		Logger:       log,
	})

	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	fallback, err := mockrates.NewMockRateSource(mockrates.Options{
		Base:     opts.BaseCurrency,
		Location: opts.Calendar,
	})
	if err != nil {
		return err
	}

	// Initialize services
	rateService := service.NewRateService(remote, fallback, store, opts, log, m)
	if err := rateService.Restore(ctx); err != nil {
		// Start with empty caches rather than refuse to serve
		log.Error("Failed to restore cached rates", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Setup router
	router := mux.NewRouter()
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware(m))
	handler.NewRateHandler(rateService, log).RegisterRoutes(router)
	router.Handle("/metrics", m.Handler()).Methods("GET")

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"addr": server.Addr,
		})
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := rateService.Close(shutdownCtx); err != nil {
		log.Warn("Background refresh still running at shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := store.Close(shutdownCtx); err != nil {
		log.Error("Failed to flush cached rates", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return nil
}
