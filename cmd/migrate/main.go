package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"storeadmin/internal/database"
	"storeadmin/internal/logging"
)

func main() {
	logger := logging.New(os.Stdout, os.Getenv("LOG_LEVEL"))

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "./migrations"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		fatal(logger, "database connection failed", err)
	}
	defer db.Close()

	if err := database.ApplyMigrations(ctx, db, os.DirFS(migrationsDir)); err != nil {
		db.Close()
		fatal(logger, "migration failed", err)
	}

	logger.Info("migrations applied", "dir", migrationsDir)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logging.Error(logger, msg, err)
	os.Exit(1)
}
