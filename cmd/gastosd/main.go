package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/chart"
	"gastos/internal/config"
	apphttp "gastos/internal/http"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/session"
	"gastos/internal/store"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Data backend
	var (
		dataStore  store.Store
		mongoStore *store.MongoStore
	)
	switch cfg.DataBackend {
	case "mongo":
		var err error
		mongoStore, err = store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", log.FieldError, err)
			os.Exit(1)
		}
		dataStore = mongoStore
		logger.Info("Initialized mongo backend", "database", cfg.MongoDatabase)
	default:
		dataStore = store.NewMemoryStore()
		logger.Info("Initialized memory backend")
	}

	// Weekly chart persistence; the store runs its own migrations.
	snapshotStore, err := chart.NewSQLiteSnapshotStore(cfg.SnapshotDBPath)
	if err != nil {
		logger.Error("Failed to open snapshot store", log.FieldError, err, log.FieldPath, cfg.SnapshotDBPath)
		os.Exit(1)
	}
	defer snapshotStore.Close()
	tracker := chart.NewTracker(snapshotStore)

	// AMQP is optional; the ledger degrades to not publishing events.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger events disabled", log.FieldError, err)
			events = nil
		} else {
			defer events.Close()
		}
	}

	ledgerSvc := ledger.NewService(dataStore, events)
	sessions := session.NewManager(dataStore, ledgerSvc, tracker)
	defer sessions.Close()

	scheduler, err := chart.NewScheduler(cfg.ChartResetSpec, tracker, sessions.ActiveOwners)
	if err != nil {
		logger.Error("Failed to build chart scheduler", log.FieldError, err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, sessions, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if mongoStore != nil {
			if err := mongoStore.Close(shutdownCtx); err != nil {
				logger.Error("Mongo close error", log.FieldError, err)
			}
		}
		return nil
	})

	logger.Info("Starting gastosd", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
