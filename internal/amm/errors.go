package amm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAsset          = errors.New("invalid asset")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrPoolExists            = errors.New("pool already exists")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolPaused            = errors.New("pool is paused")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrNoRouteFound          = errors.New("no route found")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrProgramNotFound       = errors.New("mining program not found")
	ErrProgramExists         = errors.New("mining program already exists")
	ErrInsufficientStake     = errors.New("insufficient stake")
	// ErrStaleOracleData is advisory; lookups report it as absence rather than failure.
	ErrStaleOracleData = errors.New("stale oracle data")
)

// OpError attaches the failing operation and pool to an error kind.
type OpError struct {
	Op     string
	PoolID string
	Err    error
}

func (e *OpError) Error() string {
	if e.PoolID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s pool %s: %v", e.Op, e.PoolID, e.Err)
}

// Unwrap allows the error to be inspected with errors.Is and errors.As.
func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(op, poolID string, err error) error {
	return &OpError{Op: op, PoolID: poolID, Err: err}
}

// ErrorKind maps an error onto a short label used for metrics and API codes.
func ErrorKind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{ErrInvalidAsset, "invalid_asset"},
		{ErrInvalidAmount, "invalid_amount"},
		{ErrPoolExists, "pool_exists"},
		{ErrPoolNotFound, "pool_not_found"},
		{ErrPoolPaused, "pool_paused"},
		{ErrSlippageExceeded, "slippage_exceeded"},
		{ErrInsufficientShares, "insufficient_shares"},
		{ErrInsufficientLiquidity, "insufficient_liquidity"},
		{ErrNoRouteFound, "no_route_found"},
		{ErrDivisionByZero, "division_by_zero"},
		{ErrUnauthorized, "unauthorized"},
		{ErrInvalidRecipient, "invalid_recipient"},
		{ErrProgramNotFound, "program_not_found"},
		{ErrProgramExists, "program_exists"},
		{ErrInsufficientStake, "insufficient_stake"},
		{ErrStaleOracleData, "stale_oracle_data"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
