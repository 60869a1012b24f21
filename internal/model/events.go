package model

import (
	"math/big"
	"time"
)

// Event kinds recorded by the pool event log.
const (
	EventPoolCreated     = "pool_created"
	EventSwap            = "swap"
	EventLiquidityAdded  = "liquidity_added"
	EventLiquidityRemove = "liquidity_removed"
	EventFeesWithdrawn   = "fees_withdrawn"
	EventPoolPaused      = "pool_paused"
	EventPoolUnpaused    = "pool_unpaused"
)

// PoolEvent is an append-only record of a pool state change.
type PoolEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	PoolID    string    `json:"pool_id"`
	Actor     string    `json:"actor,omitempty"`
	TokenIn   string    `json:"token_in,omitempty"`
	TokenOut  string    `json:"token_out,omitempty"`
	AmountIn  *big.Int  `json:"amount_in,omitempty"`
	AmountOut *big.Int  `json:"amount_out,omitempty"`
	AmountA   *big.Int  `json:"amount_a,omitempty"`
	AmountB   *big.Int  `json:"amount_b,omitempty"`
	Shares    *big.Int  `json:"shares,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
