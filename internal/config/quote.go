package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// QuoteConfig holds settings for an offline route estimate.
type QuoteConfig struct {
	SnapshotFile string
	PGDSN        string
	TokenIn      string
	TokenOut     string
	Amount       *big.Int
	LogLevel     string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("snapshot-file", "./data/snapshot.json")
		v.SetDefault("log-level", "warn")
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	amount, err := ParseAmount(v.GetString("amount"))
	if err != nil {
		return QuoteConfig{}, fmt.Errorf("parse amount: %w", err)
	}
	cfg := QuoteConfig{
		SnapshotFile: v.GetString("snapshot-file"),
		PGDSN:        v.GetString("pg-dsn"),
		TokenIn:      strings.TrimSpace(v.GetString("token-in")),
		TokenOut:     strings.TrimSpace(v.GetString("token-out")),
		Amount:       amount,
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.TokenIn == "" || cfg.TokenOut == "" {
		return QuoteConfig{}, fmt.Errorf("token-in and token-out are required")
	}
	return cfg, nil
}

// ParseAmount parses a positive base-unit integer. Underscores are accepted
// as digit separators.
func ParseAmount(input string) (*big.Int, error) {
	input = strings.ReplaceAll(strings.TrimSpace(input), "_", "")
	if input == "" {
		return nil, fmt.Errorf("amount is required")
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", input)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}
