package model

import "math/big"

// Hop is one pool traversal in a route.
type Hop struct {
	PoolID    string   `json:"pool_id"`
	TokenIn   string   `json:"token_in"`
	TokenOut  string   `json:"token_out"`
	AmountIn  *big.Int `json:"amount_in"`
	AmountOut *big.Int `json:"amount_out"`
}

// Route is an ordered list of hops converting TokenIn into TokenOut.
// EstimatedOutput is advisory; execution re-prices every hop.
type Route struct {
	TokenIn         string   `json:"token_in"`
	TokenOut        string   `json:"token_out"`
	AmountIn        *big.Int `json:"amount_in"`
	Hops            []Hop    `json:"hops"`
	EstimatedOutput *big.Int `json:"estimated_output"`

	// Set only when the oracle holds fresh prices for both ends.
	OracleOutput *big.Int `json:"oracle_output,omitempty"`
	DeviationBps *int64   `json:"deviation_bps,omitempty"`
}

// PoolIDs lists the pools in traversal order.
func (r Route) PoolIDs() []string {
	ids := make([]string, 0, len(r.Hops))
	for _, hop := range r.Hops {
		ids = append(ids, hop.PoolID)
	}
	return ids
}

// HopCount returns the number of pools traversed.
func (r Route) HopCount() int {
	return len(r.Hops)
}
