package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammengine/internal/amm"
	"ammengine/internal/config"
	"ammengine/internal/storage"
	"ammengine/internal/storage/postgres"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snapshots storage.SnapshotStore
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, "ammd")
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		snapshots = store
	} else {
		snapshots = &storage.FileSnapshotStore{Path: cfg.SnapshotFile}
	}

	engine := amm.New(amm.Options{Snapshots: snapshots, Logger: logger})
	found, err := engine.LoadCheckpoint(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no snapshot found")
	}

	route, err := engine.FindRoute(cfg.TokenIn, cfg.TokenOut, cfg.Amount)
	if err != nil {
		return err
	}
	logger.Debug("route found",
		zap.Strings("pools", route.PoolIDs()),
		zap.String("estimated_output", route.EstimatedOutput.String()),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(route)
}
