package model

import (
	"math/big"
	"time"
)

// PoolView is a read-only snapshot of a constant-product pool.
type PoolView struct {
	ID          string    `json:"id"`
	TokenA      string    `json:"token_a"`
	TokenB      string    `json:"token_b"`
	ReserveA    *big.Int  `json:"reserve_a"`
	ReserveB    *big.Int  `json:"reserve_b"`
	TotalShares *big.Int  `json:"total_shares"`
	FeeBps      uint16    `json:"fee_bps"` // i.e 30 for 0.3%
	CreatedAt   time.Time `json:"created_at"`
}

// Clone deep-copies the reserve and share values.
func (p PoolView) Clone() PoolView {
	p.ReserveA = cloneInt(p.ReserveA)
	p.ReserveB = cloneInt(p.ReserveB)
	p.TotalShares = cloneInt(p.TotalShares)
	return p
}

// Has reports whether token is one side of the pool.
func (p PoolView) Has(token string) bool {
	return p.TokenA == token || p.TokenB == token
}

// Other returns the counterpart of token, or "" if token is not in the pool.
func (p PoolView) Other(token string) string {
	switch token {
	case p.TokenA:
		return p.TokenB
	case p.TokenB:
		return p.TokenA
	default:
		return ""
	}
}

// ReservesFor orders the reserves as (in, out) for a trade selling tokenIn.
func (p PoolView) ReservesFor(tokenIn string) (reserveIn, reserveOut *big.Int, ok bool) {
	switch tokenIn {
	case p.TokenA:
		return p.ReserveA, p.ReserveB, true
	case p.TokenB:
		return p.ReserveB, p.ReserveA, true
	default:
		return nil, nil, false
	}
}

// Position is the number of LP shares an owner holds in a pool.
type Position struct {
	PoolID string   `json:"pool_id"`
	Owner  string   `json:"owner"`
	Shares *big.Int `json:"shares"`
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
