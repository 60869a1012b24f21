package amm

import (
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ammengine/internal/model"
)

const (
	// DefaultUpdateInterval applies when the oracle is built without one.
	DefaultUpdateInterval = time.Minute
	// staleFactor multiplies the update interval to get the staleness bound.
	staleFactor = 5
)

// PriceScale is the fixed-point unit of oracle and pool prices (1e18).
var PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PriceOracle stores externally reported reference prices. Prices are
// advisory: nothing in swap execution consults them.
type PriceOracle struct {
	mu             sync.RWMutex
	points         map[string]model.PricePoint
	updateInterval time.Duration
	now            Clock
	logger         *zap.Logger
}

func NewPriceOracle(updateInterval time.Duration, now Clock, logger *zap.Logger) *PriceOracle {
	if updateInterval <= 0 {
		updateInterval = DefaultUpdateInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceOracle{
		points:         make(map[string]model.PricePoint),
		updateInterval: updateInterval,
		now:            orSystemClock(now),
		logger:         logger,
	}
}

// StaleAfter is the age beyond which a price is treated as absent.
func (o *PriceOracle) StaleAfter() time.Duration {
	return staleFactor * o.updateInterval
}

// SetPrice records price (scaled by PriceScale) for token at the current time.
func (o *PriceOracle) SetPrice(token string, price *big.Int) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return opError("set_price", "", ErrInvalidAsset)
	}
	if !isPositive(price) {
		return opError("set_price", "", ErrInvalidAmount)
	}
	point := model.PricePoint{Token: token, Price: new(big.Int).Set(price), ObservedAt: o.now()}
	o.mu.Lock()
	o.points[token] = point
	o.mu.Unlock()
	o.logger.Debug("price updated", zap.String("token", token), zap.String("price", price.String()))
	return nil
}

// GetPrice returns the last price for token, or false when none is known or
// the last observation is stale.
func (o *PriceOracle) GetPrice(token string) (*big.Int, bool) {
	point, err := o.GetPricePoint(token)
	if err != nil {
		return nil, false
	}
	return point.Price, true
}

// GetPricePoint returns the stored observation. A stale observation is
// returned together with ErrStaleOracleData so callers can still inspect it.
func (o *PriceOracle) GetPricePoint(token string) (model.PricePoint, error) {
	o.mu.RLock()
	point, ok := o.points[token]
	o.mu.RUnlock()
	if !ok {
		return model.PricePoint{}, opError("get_price", "", ErrInvalidAsset)
	}
	point.Price = new(big.Int).Set(point.Price)
	if o.now().Sub(point.ObservedAt) > o.StaleAfter() {
		return point, opError("get_price", "", ErrStaleOracleData)
	}
	return point, nil
}

// CalculatePoolPrice returns the price of token A in units of token B,
// reserveB * PriceScale / reserveA.
func CalculatePoolPrice(reserveA, reserveB *big.Int) (*big.Int, error) {
	if reserveA == nil || reserveA.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if reserveB == nil || reserveB.Sign() < 0 || reserveA.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	price := new(big.Int).Mul(reserveB, PriceScale)
	return price.Quo(price, reserveA), nil
}

func (o *PriceOracle) snapshot() []model.PricePoint {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]model.PricePoint, 0, len(o.points))
	for _, p := range o.points {
		p.Price = new(big.Int).Set(p.Price)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

func (o *PriceOracle) restore(points []model.PricePoint) {
	m := make(map[string]model.PricePoint, len(points))
	for _, p := range points {
		if p.Token == "" || !isPositive(p.Price) {
			continue
		}
		p.Price = new(big.Int).Set(p.Price)
		m[p.Token] = p
	}
	o.mu.Lock()
	o.points = m
	o.mu.Unlock()
}
