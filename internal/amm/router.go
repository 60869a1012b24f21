package amm

import (
	"math/big"

	"go.uber.org/zap"

	"ammengine/internal/model"
)

// PoolReader exposes pool snapshots in creation order.
type PoolReader interface {
	Pools() []model.PoolView
}

// PriceReader returns fresh oracle prices only.
type PriceReader interface {
	GetPrice(token string) (*big.Int, bool)
}

// PauseReader reports the emergency pause flag of a pool.
type PauseReader interface {
	IsPaused(poolID string) bool
}

// RouteOptimizer searches direct and single-intermediate routes over a
// snapshot of the unpaused pool set. It never mutates pools.
type RouteOptimizer struct {
	pools   PoolReader
	prices  PriceReader
	paused  PauseReader
	metrics *Metrics
	logger  *zap.Logger
}

// NewRouteOptimizer builds an optimizer. prices may be nil to skip oracle
// comparison; paused may be nil when every pool is routable.
func NewRouteOptimizer(pools PoolReader, prices PriceReader, paused PauseReader, metrics *Metrics, logger *zap.Logger) *RouteOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteOptimizer{pools: pools, prices: prices, paused: paused, metrics: metrics, logger: logger}
}

// routable drops paused pools from the snapshot.
func (r *RouteOptimizer) routable() []model.PoolView {
	views := r.pools.Pools()
	if r.paused == nil {
		return views
	}
	out := views[:0:0]
	for _, v := range views {
		if !r.paused.IsPaused(v.ID) {
			out = append(out, v)
		}
	}
	return out
}

// FindDirectRoute returns the unpaused pool connecting the two tokens, if any.
func (r *RouteOptimizer) FindDirectRoute(tokenIn, tokenOut string) (string, bool) {
	view, ok := directPool(r.routable(), tokenIn, tokenOut)
	if !ok {
		return "", false
	}
	return view.ID, true
}

func directPool(views []model.PoolView, tokenIn, tokenOut string) (model.PoolView, bool) {
	if tokenIn == tokenOut {
		return model.PoolView{}, false
	}
	for _, v := range views {
		if v.Has(tokenIn) && v.Has(tokenOut) {
			return v, true
		}
	}
	return model.PoolView{}, false
}

// FindBestRoute prefers a direct pool whenever one exists. Paused pools are
// skipped throughout. Otherwise it tries
// every intermediate token reachable from tokenIn, in pool creation order, and
// keeps the two-hop route with the highest estimate. Ties keep the earlier candidate.
func (r *RouteOptimizer) FindBestRoute(tokenIn, tokenOut string, amountIn *big.Int) (model.Route, bool) {
	if tokenIn == "" || tokenOut == "" || tokenIn == tokenOut || !isPositive(amountIn) {
		return model.Route{}, false
	}
	views := r.routable()

	if direct, ok := directPool(views, tokenIn, tokenOut); ok {
		route, err := EstimateOutput([]model.PoolView{direct}, tokenIn, amountIn)
		if err != nil {
			// A drained direct pool still wins; its estimate is zero.
			route = model.Route{
				TokenIn:  tokenIn,
				TokenOut: tokenOut,
				AmountIn: new(big.Int).Set(amountIn),
				Hops: []model.Hop{{
					PoolID:    direct.ID,
					TokenIn:   tokenIn,
					TokenOut:  tokenOut,
					AmountIn:  new(big.Int).Set(amountIn),
					AmountOut: big.NewInt(0),
				}},
				EstimatedOutput: big.NewInt(0),
			}
		}
		return r.finish(route), true
	}

	var (
		best  model.Route
		found bool
		seen  = make(map[string]struct{})
	)
	for _, first := range views {
		if !first.Has(tokenIn) {
			continue
		}
		mid := first.Other(tokenIn)
		if _, dup := seen[mid]; dup {
			continue
		}
		seen[mid] = struct{}{}

		second, ok := directPool(views, mid, tokenOut)
		if !ok {
			continue
		}
		candidate, err := EstimateOutput([]model.PoolView{first, second}, tokenIn, amountIn)
		if err != nil {
			continue
		}
		if !found || candidate.EstimatedOutput.Cmp(best.EstimatedOutput) > 0 {
			best, found = candidate, true
		}
	}
	if !found {
		r.logger.Debug("no route", zap.String("token_in", tokenIn), zap.String("token_out", tokenOut))
		return model.Route{}, false
	}
	return r.finish(best), true
}

func (r *RouteOptimizer) finish(route model.Route) model.Route {
	if r.metrics != nil {
		r.metrics.RouteHops.Observe(float64(route.HopCount()))
	}
	if r.prices == nil {
		return route
	}
	priceIn, okIn := r.prices.GetPrice(route.TokenIn)
	priceOut, okOut := r.prices.GetPrice(route.TokenOut)
	if !okIn || !okOut || priceOut.Sign() == 0 {
		return route
	}
	oracleOut := new(big.Int).Mul(route.AmountIn, priceIn)
	oracleOut.Quo(oracleOut, priceOut)
	route.OracleOutput = oracleOut
	if oracleOut.Sign() > 0 {
		diff := new(big.Int).Sub(route.EstimatedOutput, oracleOut)
		diff.Mul(diff, big.NewInt(bpsDenominator))
		diff.Quo(diff, oracleOut)
		if diff.IsInt64() {
			bps := diff.Int64()
			route.DeviationBps = &bps
		}
	}
	return route
}

// EstimateOutput walks path sequentially from tokenIn, feeding each hop's
// output into the next, and returns the resulting route.
func EstimateOutput(path []model.PoolView, tokenIn string, amountIn *big.Int) (model.Route, error) {
	if len(path) == 0 {
		return model.Route{}, ErrNoRouteFound
	}
	route := model.Route{
		TokenIn:  tokenIn,
		AmountIn: new(big.Int).Set(amountIn),
		Hops:     make([]model.Hop, 0, len(path)),
	}
	token := tokenIn
	current := new(big.Int).Set(amountIn)
	for _, v := range path {
		reserveIn, reserveOut, ok := v.ReservesFor(token)
		if !ok {
			return model.Route{}, ErrInvalidAsset
		}
		out, _, err := GetAmountOut(current, reserveIn, reserveOut)
		if err != nil {
			return model.Route{}, err
		}
		next := v.Other(token)
		route.Hops = append(route.Hops, model.Hop{
			PoolID:    v.ID,
			TokenIn:   token,
			TokenOut:  next,
			AmountIn:  current,
			AmountOut: out,
		})
		token, current = next, out
	}
	route.TokenOut = token
	route.EstimatedOutput = new(big.Int).Set(current)
	return route, nil
}

// Steps converts a route into the execution path for PoolManager.ExecuteRoute.
func Steps(route model.Route) []PathStep {
	steps := make([]PathStep, 0, len(route.Hops))
	for _, hop := range route.Hops {
		steps = append(steps, PathStep{PoolID: hop.PoolID, TokenIn: hop.TokenIn})
	}
	return steps
}
