package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMM"

// Config holds the serve settings loaded from flags, env, or config file.
type Config struct {
	Listen               string
	LogLevel             string
	Admins               []string
	OracleUpdateInterval time.Duration
	EventLog             string
	EventRetention       int
	SnapshotFile         string
	PGDSN                string
	FlushInterval        time.Duration
	CheckpointInterval   time.Duration
	MetricsNamespace     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("listen", ":8080")
		v.SetDefault("log-level", "info")
		v.SetDefault("oracle-update-interval", time.Minute)
		v.SetDefault("event-log", "./data/events.jsonl")
		v.SetDefault("event-retention", 10_000)
		v.SetDefault("snapshot-file", "./data/snapshot.json")
		v.SetDefault("flush-interval", 5*time.Second)
		v.SetDefault("checkpoint-interval", time.Minute)
		v.SetDefault("metrics-namespace", "amm")
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:               v.GetString("listen"),
		LogLevel:             v.GetString("log-level"),
		Admins:               getStringSlice(v, "admins"),
		OracleUpdateInterval: v.GetDuration("oracle-update-interval"),
		EventLog:             v.GetString("event-log"),
		EventRetention:       v.GetInt("event-retention"),
		SnapshotFile:         v.GetString("snapshot-file"),
		PGDSN:                v.GetString("pg-dsn"),
		FlushInterval:        v.GetDuration("flush-interval"),
		CheckpointInterval:   v.GetDuration("checkpoint-interval"),
		MetricsNamespace:     v.GetString("metrics-namespace"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.OracleUpdateInterval <= 0 {
		return fmt.Errorf("oracle-update-interval must be positive")
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("event-retention must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush-interval must be positive")
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("checkpoint-interval must be positive")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	defaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
