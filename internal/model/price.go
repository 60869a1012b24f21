package model

import (
	"math/big"
	"time"
)

// PricePoint is an externally reported reference price for a token.
type PricePoint struct {
	Token      string    `json:"token"`
	Price      *big.Int  `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// PauseRecord describes the emergency state of a pool.
type PauseRecord struct {
	PoolID   string    `json:"pool_id"`
	Paused   bool      `json:"paused"`
	PausedAt time.Time `json:"paused_at"`
	PausedBy string    `json:"paused_by"`
}

// FeeBalance is the uncollected protocol fee for one token of one pool.
type FeeBalance struct {
	PoolID string   `json:"pool_id"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}
