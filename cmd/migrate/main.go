package main

import (
	"context"
	"os"

	"classdesk/internal/config"
	"classdesk/internal/database"
	"classdesk/internal/logging"
	"classdesk/internal/migrations"
)

func main() {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.NewRunner(db, logger).Apply(ctx); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}
}
