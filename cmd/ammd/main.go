package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammd",
		Short:        "Constant-product AMM liquidity engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("admins", nil, "bootstrap admin identities (comma-separated)")
	serveCmd.Flags().Duration("oracle-update-interval", time.Minute, "expected oracle update interval; prices go stale after 5x")
	serveCmd.Flags().String("event-log", "./data/events.jsonl", "pool event JSONL path (ignored when pg-dsn is set)")
	serveCmd.Flags().Int("event-retention", 10_000, "flushed events kept in memory; older ones are read back from the sink")
	serveCmd.Flags().String("snapshot-file", "./data/snapshot.json", "snapshot file path (ignored when pg-dsn is set)")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for events and snapshots")
	serveCmd.Flags().Duration("flush-interval", 5*time.Second, "event flush interval")
	serveCmd.Flags().Duration("checkpoint-interval", time.Minute, "snapshot checkpoint interval")
	serveCmd.Flags().String("metrics-namespace", "amm", "Prometheus metric namespace")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Estimate the best route against a stored snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("snapshot-file", "./data/snapshot.json", "snapshot file path")
	quoteCmd.Flags().String("pg-dsn", "", "read the snapshot from Postgres instead of a file")
	quoteCmd.Flags().String("token-in", "", "token sold")
	quoteCmd.Flags().String("token-out", "", "token bought")
	quoteCmd.Flags().String("amount", "", "amount sold in base units")
	quoteCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
