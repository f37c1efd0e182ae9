package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"results-portal/internal/config"
	"results-portal/internal/handlers"
	"results-portal/internal/repository"
	"results-portal/internal/services"
	"results-portal/pkg/database"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

const (
	serviceName    = "results-api"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := logging.ParseLevel(cfg.Logging.Level)
	var logger *logging.StructuredLogger
	if cfg.Logging.Production() {
		logger = logging.NewStructuredLogger(serviceName, serviceVersion, logLevel)
	} else {
		logger = logging.NewConsoleLogger(serviceName, serviceVersion, logLevel)
	}

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting results portal API server", logging.Fields{
		"version":          serviceVersion,
		"server_host":      cfg.Server.Host,
		"server_port":      cfg.Server.Port,
		"workbook_backend": cfg.Workbook.Backend,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("results_portal", prometheus.DefaultRegisterer)

	verifier, err := cfg.Admin.NewVerifier()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid administrator credential", logging.Fields{}, err)
	}

	// Initialize workbook persistence
	var workbooks repository.WorkbookRepository
	switch cfg.Workbook.Backend {
	case config.BackendPostgres:
		dbConfig := &database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}

		db, err := database.NewPostgresDB(ctx, dbConfig, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
		}
		defer db.Close()

		workbooks = repository.NewPostgresWorkbookRepository(db, cfg.Workbook.TempDir, logger)
	default:
		workbooks = repository.NewFileWorkbookRepository(cfg.Workbook.Path, logger)
	}

	// Initialize store and service
	store := repository.NewResultStore(logger, metricsCollector)
	resultService := services.NewResultService(
		verifier, store, workbooks,
		cfg.Cache.SummaryTTL, cfg.Workbook.SyncInterval,
		logger, metricsCollector,
	)

	if err := resultService.Restore(ctx); err != nil {
		// keep serving so the administrator can upload a replacement
		logger.Error(ctx, "[STARTUP_ERROR] Failed to restore persisted workbook", logging.Fields{}, err)
	}

	// Initialize handlers and router
	resultHandler := handlers.NewResultHandler(resultService, cfg.Server.MaxUploadBytes, logger, metricsCollector)
	router := handlers.NewRouter(resultHandler, prometheus.DefaultGatherer, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
