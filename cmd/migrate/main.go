package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"results-portal/internal/config"
	"results-portal/pkg/database"
	"results-portal/pkg/logging"
	"results-portal/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	dir := flag.String("dir", "migrations", "Directory holding the migration files")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Unknown direction %q, expected up or down\n", *direction)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewConsoleLogger("results-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Connect to database
	db, err := database.NewPostgresDB(ctx, &database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger, metrics.NewCollector("results_migrate", prometheus.NewRegistry()))
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	// Read migration file
	migrationFile := filepath.Join(*dir, fmt.Sprintf("001_create_workbook.%s.sql", *direction))
	content, err := os.ReadFile(migrationFile)
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to read migration file", logging.Fields{
			"file": migrationFile,
		}, err)
	}

	logger.Info(ctx, "[MIGRATE] Running migration", logging.Fields{
		"file":      migrationFile,
		"direction": *direction,
	})

	// Execute migration
	if _, err := db.ExecContext(ctx, "migration", string(content)); err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to execute migration", logging.Fields{
			"file": migrationFile,
		}, err)
	}

	logger.Info(ctx, "[MIGRATE] Migration completed successfully", logging.Fields{})
}
