package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redlabs-sc/document-converter-service/config"
	"github.com/redlabs-sc/document-converter-service/internal/converter"
	"github.com/redlabs-sc/document-converter-service/internal/history"
	"github.com/redlabs-sc/document-converter-service/internal/libreoffice"
	"github.com/redlabs-sc/document-converter-service/internal/logger"
	"github.com/redlabs-sc/document-converter-service/internal/metrics"
	"github.com/redlabs-sc/document-converter-service/internal/notify"
	"github.com/redlabs-sc/document-converter-service/internal/pool"
	"github.com/redlabs-sc/document-converter-service/internal/server"
	"github.com/redlabs-sc/document-converter-service/internal/staging"
	"go.uber.org/zap"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.InitLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Document Converter Service",
		zap.Strings("input_formats", cfg.InputFormats),
		zap.String("output_format", cfg.OutputFormat),
		zap.Int("workers", cfg.ConvertWorkers))

	// 3. Create staging area
	stagingManager, err := staging.NewManager(cfg.TempDir, log)
	if err != nil {
		log.Fatal("Error creating staging area", zap.Error(err))
	}

	// 4. Resolve the converter binary
	binary := libreoffice.ResolveBinary(cfg.SofficePath)
	log.Info("Using converter binary", zap.String("path", binary))

	invoker := libreoffice.NewInvoker(binary, cfg.OutputFormat, cfg.ConvertTimeout(), stagingManager, log)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Start the worker pool
	workerPool := pool.New(cfg.ConvertWorkers, log)
	workerPool.Start(ctx)

	// 6. Build the orchestrator with its optional collaborators
	svc := converter.NewService(cfg, stagingManager, invoker, workerPool, log)

	var db *sql.DB
	if cfg.HistoryEnabled() {
		db, err = sql.Open("postgres", cfg.GetDatabaseDSN())
		if err != nil {
			log.Fatal("Error connecting to database", zap.Error(err))
		}
		defer db.Close()

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)

		if err := db.Ping(); err != nil {
			log.Fatal("Error pinging database", zap.Error(err))
		}

		store, err := history.NewStore(db, log)
		if err != nil {
			log.Fatal("Error initializing history store", zap.Error(err))
		}
		svc.WithHistory(store)
		log.Info("Conversion history enabled",
			zap.String("host", cfg.DBHost),
			zap.String("database", cfg.DBName))
	}

	if cfg.NotifyEnabled() {
		notifier, err := notify.NewNotifier(cfg, log)
		if err != nil {
			log.Fatal("Error creating Telegram notifier", zap.Error(err))
		}
		svc.WithNotifier(notifier)
		log.Info("Failure notifications enabled", zap.Int("admins", len(cfg.AdminIDs)))
	}

	// 7. Start staging janitor
	janitor := staging.NewJanitor(stagingManager,
		time.Duration(cfg.StagingRetentionMin)*time.Minute,
		time.Duration(cfg.CleanupIntervalMin)*time.Minute,
		log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		janitor.Start(ctx)
	}()

	// 8. Start metrics server
	metrics.StartMetricsServer(cfg, workerPool, log)
	log.Info("Metrics server started", zap.Int("port", cfg.MetricsPort))

	// 9. Start API server
	apiServer := server.New(cfg, svc, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	log.Info("All services started successfully - waiting for shutdown signal")

	// Wait for interrupt signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			log.Error("API server error", zap.Error(err))
		}
	}

	// Graceful shutdown: stop accepting requests, then stop the workers
	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("API server shutdown error", zap.Error(err))
	}

	cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Wait()
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("All workers stopped gracefully")
	case <-sigChan:
		log.Warn("Forced shutdown - workers may not have stopped cleanly")
	}

	log.Info("Shutdown complete")
}
