package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammengine/internal/amm"
	"ammengine/internal/api"
	"ammengine/internal/config"
	"ammengine/internal/storage"
	"ammengine/internal/storage/postgres"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Admins) == 0 {
		logger.Warn("no admins configured; pause, fee withdrawal and mining programs are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		sink      storage.EventSink
		snapshots storage.SnapshotStore
	)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, "ammd")
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sink, snapshots = store, store
	} else {
		if cfg.EventLog != "" {
			sink = storage.NewJsonlStorage(cfg.EventLog)
		}
		if cfg.SnapshotFile != "" {
			snapshots = &storage.FileSnapshotStore{Path: cfg.SnapshotFile}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := amm.New(amm.Options{
		Admins:               cfg.Admins,
		OracleUpdateInterval: cfg.OracleUpdateInterval,
		EventSink:            sink,
		EventRetention:       cfg.EventRetention,
		Snapshots:            snapshots,
		Metrics:              amm.NewMetrics(reg, cfg.MetricsNamespace),
		Logger:               logger,
	})

	restored, err := engine.LoadCheckpoint(ctx)
	if err != nil {
		return err
	}

	logger.Info("ammd start",
		zap.String("listen", cfg.Listen),
		zap.Int("admins", len(cfg.Admins)),
		zap.Duration("oracle_update_interval", cfg.OracleUpdateInterval),
		zap.String("event_log", cfg.EventLog),
		zap.String("snapshot_file", cfg.SnapshotFile),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("restored", restored),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Events.Run(ctx, cfg.FlushInterval)
	}()
	go func() {
		defer wg.Done()
		engine.RunCheckpoints(ctx, cfg.CheckpointInterval)
	}()

	server := api.NewServer(engine, reg, logger.Named("api"))
	serveErr := server.Run(ctx, cfg.Listen)
	stop()
	wg.Wait()
	logger.Info("ammd stopped")
	return serveErr
}
