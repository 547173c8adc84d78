package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docshelf/internal/config"
	"docshelf/internal/database"
	"docshelf/internal/database/migration"
	"docshelf/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log, cfg.Location())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Error("database_connect_failed", "driver", cfg.Database.Driver, "error", err)
		return err
	}
	defer db.Close()

	return migration.EnsureMigrated(ctx, db, cfg.Database.Driver, log)
}
