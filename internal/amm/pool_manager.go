package amm

import (
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"ammengine/internal/model"
)

// LockedSharesOwner holds the minimum-liquidity shares; nothing can withdraw them.
const LockedSharesOwner = "0x0"

// FeeSink receives the protocol share of swap fees.
type FeeSink interface {
	CollectFee(poolID, token string, amount *big.Int) error
	CalculateProtocolFee(swapFee *big.Int) *big.Int
}

// AccessGuard rejects mutations on paused pools.
type AccessGuard interface {
	CheckPoolAccess(poolID string) error
}

// EventRecorder is the append-only sink for pool events.
type EventRecorder interface {
	Record(event model.PoolEvent)
}

// PathStep names one hop of a multi-hop swap.
type PathStep struct {
	PoolID  string
	TokenIn string
}

type pool struct {
	mu          sync.Mutex
	id          string
	tokenA      string
	tokenB      string
	reserveA    *big.Int
	reserveB    *big.Int
	totalShares *big.Int
	positions   map[string]*big.Int
	createdAt   time.Time
}

// view must be called with p.mu held.
func (p *pool) view() model.PoolView {
	return model.PoolView{
		ID:          p.id,
		TokenA:      p.tokenA,
		TokenB:      p.tokenB,
		ReserveA:    new(big.Int).Set(p.reserveA),
		ReserveB:    new(big.Int).Set(p.reserveB),
		TotalShares: new(big.Int).Set(p.totalShares),
		FeeBps:      SwapFeeBps,
		CreatedAt:   p.createdAt,
	}
}

// PoolManager owns pool reserves and LP positions. Each pool carries its own
// lock, so operations on different pools run in parallel.
type PoolManager struct {
	mu    sync.RWMutex
	pools map[string]*pool
	order []string

	fees    FeeSink
	guard   AccessGuard
	events  EventRecorder
	metrics *Metrics
	now     Clock
	logger  *zap.Logger
}

// NewPoolManager wires the manager to its collaborators. events and metrics may be nil.
func NewPoolManager(fees FeeSink, guard AccessGuard, events EventRecorder, metrics *Metrics, now Clock, logger *zap.Logger) *PoolManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolManager{
		pools:   make(map[string]*pool),
		fees:    fees,
		guard:   guard,
		events:  events,
		metrics: metrics,
		now:     orSystemClock(now),
		logger:  logger,
	}
}

// CanonicalPair orders two tokens so (A,B) and (B,A) map to one pool.
func CanonicalPair(tokenA, tokenB string) (string, string) {
	if tokenB < tokenA {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}

// PoolID derives the pool identifier from the canonical token pair.
func PoolID(tokenA, tokenB string) string {
	a, b := CanonicalPair(tokenA, tokenB)
	return crypto.Keccak256Hash([]byte(a + "/" + b)).Hex()
}

// CreatePool registers a pool and mints floor(sqrt(rA*rB)) shares, of which
// MinimumLiquidity are locked to LockedSharesOwner.
func (m *PoolManager) CreatePool(provider, tokenA, tokenB string, reserveA, reserveB *big.Int) (string, error) {
	const op = "create_pool"
	tokenA = strings.TrimSpace(tokenA)
	tokenB = strings.TrimSpace(tokenB)
	if tokenA == "" || tokenB == "" || tokenA == tokenB {
		return "", m.fail(op, "", ErrInvalidAsset)
	}
	if !isPositive(reserveA) || !isPositive(reserveB) {
		return "", m.fail(op, "", ErrInvalidAmount)
	}
	if strings.TrimSpace(provider) == "" {
		return "", m.fail(op, "", ErrInvalidRecipient)
	}
	if tokenB < tokenA {
		tokenA, tokenB = tokenB, tokenA
		reserveA, reserveB = reserveB, reserveA
	}

	id := PoolID(tokenA, tokenB)
	shares := initialShares(reserveA, reserveB)
	if shares.Cmp(MinimumLiquidity) <= 0 {
		return "", m.fail(op, id, ErrInsufficientLiquidity)
	}
	providerShares := new(big.Int).Sub(shares, MinimumLiquidity)

	m.mu.Lock()
	if _, ok := m.pools[id]; ok {
		m.mu.Unlock()
		return "", m.fail(op, id, ErrPoolExists)
	}
	created := m.now()
	m.pools[id] = &pool{
		id:          id,
		tokenA:      tokenA,
		tokenB:      tokenB,
		reserveA:    new(big.Int).Set(reserveA),
		reserveB:    new(big.Int).Set(reserveB),
		totalShares: shares,
		positions: map[string]*big.Int{
			LockedSharesOwner: new(big.Int).Set(MinimumLiquidity),
			provider:          providerShares,
		},
		createdAt: created,
	}
	m.order = append(m.order, id)
	count := len(m.order)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PoolsTotal.Set(float64(count))
	}
	m.record(model.PoolEvent{
		Kind:      model.EventPoolCreated,
		PoolID:    id,
		Actor:     provider,
		AmountA:   new(big.Int).Set(reserveA),
		AmountB:   new(big.Int).Set(reserveB),
		Shares:    new(big.Int).Set(providerShares),
		Timestamp: created,
	})
	m.logger.Info("pool created",
		zap.String("pool", id),
		zap.String("token_a", tokenA),
		zap.String("token_b", tokenB),
		zap.String("shares", shares.String()),
	)
	return id, nil
}

// Swap sells amountIn of tokenIn in a single pool.
func (m *PoolManager) Swap(trader, poolID, tokenIn string, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	hops, err := m.ExecuteRoute(trader, []PathStep{{PoolID: poolID, TokenIn: tokenIn}}, amountIn, minAmountOut)
	if err != nil {
		return nil, err
	}
	return hops[0].AmountOut, nil
}

type stagedReserves struct {
	p        *pool
	reserveA *big.Int
	reserveB *big.Int
}

// ExecuteRoute swaps along steps, re-pricing every hop against live reserves.
// All pools on the path are locked in identifier order for the duration, and
// no reserve changes unless every hop succeeds and the final output meets
// minAmountOut. Intermediate hops must produce a non-zero amount.
func (m *PoolManager) ExecuteRoute(trader string, steps []PathStep, amountIn, minAmountOut *big.Int) ([]model.Hop, error) {
	const op = "swap"
	if len(steps) == 0 {
		return nil, m.fail(op, "", ErrNoRouteFound)
	}
	if !isPositive(amountIn) {
		return nil, m.fail(op, steps[0].PoolID, ErrInvalidAmount)
	}
	if minAmountOut == nil {
		minAmountOut = big.NewInt(0)
	}
	if minAmountOut.Sign() < 0 {
		return nil, m.fail(op, steps[0].PoolID, ErrInvalidAmount)
	}

	staged := make(map[string]*stagedReserves, len(steps))
	m.mu.RLock()
	for _, step := range steps {
		p, ok := m.pools[step.PoolID]
		if !ok {
			m.mu.RUnlock()
			return nil, m.fail(op, step.PoolID, ErrPoolNotFound)
		}
		staged[step.PoolID] = &stagedReserves{p: p}
	}
	m.mu.RUnlock()

	unlock := lockPools(staged)
	defer unlock()

	for id, s := range staged {
		if err := m.guard.CheckPoolAccess(id); err != nil {
			return nil, m.fail(op, id, err)
		}
		s.reserveA = new(big.Int).Set(s.p.reserveA)
		s.reserveB = new(big.Int).Set(s.p.reserveB)
	}

	type feeCredit struct {
		poolID string
		token  string
		amount *big.Int
	}
	hops := make([]model.Hop, 0, len(steps))
	credits := make([]feeCredit, 0, len(steps))
	current := new(big.Int).Set(amountIn)

	for i, step := range steps {
		s := staged[step.PoolID]
		var reserveIn, reserveOut *big.Int
		var tokenOut string
		switch step.TokenIn {
		case s.p.tokenA:
			reserveIn, reserveOut, tokenOut = s.reserveA, s.reserveB, s.p.tokenB
		case s.p.tokenB:
			reserveIn, reserveOut, tokenOut = s.reserveB, s.reserveA, s.p.tokenA
		default:
			return nil, m.fail(op, step.PoolID, ErrInvalidAsset)
		}
		if i > 0 && hops[i-1].TokenOut != step.TokenIn {
			return nil, m.fail(op, step.PoolID, ErrInvalidAsset)
		}

		amountOut, net, err := GetAmountOut(current, reserveIn, reserveOut)
		if err != nil {
			return nil, m.fail(op, step.PoolID, err)
		}
		if amountOut.Sign() == 0 {
			if i == len(steps)-1 && minAmountOut.Sign() > 0 {
				return nil, m.fail(op, step.PoolID, ErrSlippageExceeded)
			}
			return nil, m.fail(op, step.PoolID, ErrInvalidAmount)
		}

		swapFee := new(big.Int).Sub(current, net)
		protocolFee := m.fees.CalculateProtocolFee(swapFee)

		// The protocol share leaves the pool; the rest of the fee stays in reserves.
		reserveIn.Add(reserveIn, current)
		reserveIn.Sub(reserveIn, protocolFee)
		reserveOut.Sub(reserveOut, amountOut)

		hops = append(hops, model.Hop{
			PoolID:    step.PoolID,
			TokenIn:   step.TokenIn,
			TokenOut:  tokenOut,
			AmountIn:  new(big.Int).Set(current),
			AmountOut: new(big.Int).Set(amountOut),
		})
		if protocolFee.Sign() > 0 {
			credits = append(credits, feeCredit{poolID: step.PoolID, token: step.TokenIn, amount: protocolFee})
		}
		current = amountOut
	}

	if current.Cmp(minAmountOut) < 0 {
		return nil, m.fail(op, steps[len(steps)-1].PoolID, ErrSlippageExceeded)
	}

	for _, s := range staged {
		s.p.reserveA.Set(s.reserveA)
		s.p.reserveB.Set(s.reserveB)
	}
	for _, c := range credits {
		if err := m.fees.CollectFee(c.poolID, c.token, c.amount); err != nil {
			m.logger.Error("protocol fee credit failed", zap.String("pool", c.poolID), zap.Error(err))
			continue
		}
		if m.metrics != nil {
			m.metrics.ProtocolFees.WithLabelValues(c.token).Inc()
		}
	}

	ts := m.now()
	for _, hop := range hops {
		if m.metrics != nil {
			m.metrics.SwapsTotal.WithLabelValues(hop.PoolID).Inc()
		}
		m.record(model.PoolEvent{
			Kind:      model.EventSwap,
			PoolID:    hop.PoolID,
			Actor:     trader,
			TokenIn:   hop.TokenIn,
			TokenOut:  hop.TokenOut,
			AmountIn:  new(big.Int).Set(hop.AmountIn),
			AmountOut: new(big.Int).Set(hop.AmountOut),
			Timestamp: ts,
		})
	}
	m.logger.Debug("swap executed",
		zap.String("trader", trader),
		zap.Int("hops", len(hops)),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", current.String()),
	)
	return hops, nil
}

// lockPools acquires every pool lock in identifier order and returns the release func.
func lockPools(staged map[string]*stagedReserves) func() {
	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		staged[id].p.mu.Lock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			staged[ids[i]].p.mu.Unlock()
		}
	}
}

// Quote estimates a single-hop swap without touching state.
func (m *PoolManager) Quote(poolID, tokenIn string, amountIn *big.Int) (*big.Int, error) {
	view, err := m.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, ok := view.ReservesFor(tokenIn)
	if !ok {
		return nil, opError("quote", poolID, ErrInvalidAsset)
	}
	out, _, err := GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, opError("quote", poolID, err)
	}
	return out, nil
}

// AddLiquidity deposits both amounts in full and mints
// min(amountA*T/reserveA, amountB*T/reserveB) shares. Amounts off the reserve
// ratio are not corrected; the surplus accrues to existing holders.
func (m *PoolManager) AddLiquidity(provider, poolID string, amountA, amountB *big.Int) (*big.Int, error) {
	const op = "add_liquidity"
	if !isPositive(amountA) || !isPositive(amountB) {
		return nil, m.fail(op, poolID, ErrInvalidAmount)
	}
	if strings.TrimSpace(provider) == "" {
		return nil, m.fail(op, poolID, ErrInvalidRecipient)
	}
	p, err := m.lookup(poolID)
	if err != nil {
		return nil, m.fail(op, poolID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := m.guard.CheckPoolAccess(poolID); err != nil {
		return nil, m.fail(op, poolID, err)
	}

	var minted *big.Int
	if p.totalShares.Sign() == 0 {
		minted = initialShares(amountA, amountB)
	} else {
		if p.reserveA.Sign() == 0 || p.reserveB.Sign() == 0 {
			return nil, m.fail(op, poolID, ErrInsufficientLiquidity)
		}
		minted = minInt(
			proportional(amountA, p.totalShares, p.reserveA),
			proportional(amountB, p.totalShares, p.reserveB),
		)
	}
	if minted.Sign() == 0 {
		return nil, m.fail(op, poolID, ErrInvalidAmount)
	}

	p.reserveA.Add(p.reserveA, amountA)
	p.reserveB.Add(p.reserveB, amountB)
	p.totalShares.Add(p.totalShares, minted)
	pos, ok := p.positions[provider]
	if !ok {
		pos = big.NewInt(0)
		p.positions[provider] = pos
	}
	pos.Add(pos, minted)

	if m.metrics != nil {
		m.metrics.LiquidityOps.WithLabelValues(op).Inc()
	}
	m.record(model.PoolEvent{
		Kind:      model.EventLiquidityAdded,
		PoolID:    poolID,
		Actor:     provider,
		AmountA:   new(big.Int).Set(amountA),
		AmountB:   new(big.Int).Set(amountB),
		Shares:    new(big.Int).Set(minted),
		Timestamp: m.now(),
	})
	return new(big.Int).Set(minted), nil
}

// RemoveLiquidity burns shares and returns the proportional reserves, rounded down.
func (m *PoolManager) RemoveLiquidity(provider, poolID string, shares *big.Int) (*big.Int, *big.Int, error) {
	const op = "remove_liquidity"
	if !isPositive(shares) {
		return nil, nil, m.fail(op, poolID, ErrInvalidAmount)
	}
	if provider == LockedSharesOwner {
		return nil, nil, m.fail(op, poolID, ErrUnauthorized)
	}
	p, err := m.lookup(poolID)
	if err != nil {
		return nil, nil, m.fail(op, poolID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := m.guard.CheckPoolAccess(poolID); err != nil {
		return nil, nil, m.fail(op, poolID, err)
	}

	pos, ok := p.positions[provider]
	if !ok || pos.Cmp(shares) < 0 {
		return nil, nil, m.fail(op, poolID, ErrInsufficientShares)
	}

	amountA := proportional(shares, p.reserveA, p.totalShares)
	amountB := proportional(shares, p.reserveB, p.totalShares)

	p.reserveA.Sub(p.reserveA, amountA)
	p.reserveB.Sub(p.reserveB, amountB)
	p.totalShares.Sub(p.totalShares, shares)
	pos.Sub(pos, shares)
	if pos.Sign() == 0 {
		delete(p.positions, provider)
	}

	if m.metrics != nil {
		m.metrics.LiquidityOps.WithLabelValues(op).Inc()
	}
	m.record(model.PoolEvent{
		Kind:      model.EventLiquidityRemove,
		PoolID:    poolID,
		Actor:     provider,
		AmountA:   new(big.Int).Set(amountA),
		AmountB:   new(big.Int).Set(amountB),
		Shares:    new(big.Int).Set(shares),
		Timestamp: m.now(),
	})
	return amountA, amountB, nil
}

// GetPool returns a read-only snapshot of one pool.
func (m *PoolManager) GetPool(poolID string) (model.PoolView, error) {
	p, err := m.lookup(poolID)
	if err != nil {
		return model.PoolView{}, opError("get_pool", poolID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view(), nil
}

// HasPool reports whether poolID is registered.
func (m *PoolManager) HasPool(poolID string) bool {
	_, err := m.lookup(poolID)
	return err == nil
}

// Pools returns snapshots of every pool in creation order. Each pool is read
// under its own lock; the set as a whole is not a single atomic cut.
func (m *PoolManager) Pools() []model.PoolView {
	m.mu.RLock()
	ordered := make([]*pool, 0, len(m.order))
	for _, id := range m.order {
		ordered = append(ordered, m.pools[id])
	}
	m.mu.RUnlock()

	views := make([]model.PoolView, 0, len(ordered))
	for _, p := range ordered {
		p.mu.Lock()
		views = append(views, p.view())
		p.mu.Unlock()
	}
	return views
}

// Shares returns the LP shares owner holds in poolID.
func (m *PoolManager) Shares(poolID, owner string) (*big.Int, error) {
	p, err := m.lookup(poolID)
	if err != nil {
		return nil, opError("shares", poolID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[owner]; ok {
		return new(big.Int).Set(pos), nil
	}
	return big.NewInt(0), nil
}

// Position returns owner's position; an owner without shares reads as zero.
func (m *PoolManager) Position(poolID, owner string) (model.Position, error) {
	shares, err := m.Shares(poolID, owner)
	if err != nil {
		return model.Position{}, err
	}
	return model.Position{PoolID: poolID, Owner: owner, Shares: shares}, nil
}

// Positions lists every non-zero position of a pool ordered by owner.
func (m *PoolManager) Positions(poolID string) ([]model.Position, error) {
	p, err := m.lookup(poolID)
	if err != nil {
		return nil, opError("positions", poolID, err)
	}
	p.mu.Lock()
	out := make([]model.Position, 0, len(p.positions))
	for owner, shares := range p.positions {
		out = append(out, model.Position{PoolID: poolID, Owner: owner, Shares: new(big.Int).Set(shares)})
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

func (m *PoolManager) lookup(poolID string) (*pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

func (m *PoolManager) fail(op, poolID string, err error) error {
	m.metrics.observeError(op, err)
	return opError(op, poolID, err)
}

func (m *PoolManager) record(event model.PoolEvent) {
	if m.events != nil {
		m.events.Record(event)
	}
}

// snapshot returns every pool and position, pools in creation order.
func (m *PoolManager) snapshot() ([]model.PoolView, []model.Position) {
	views := m.Pools()
	var positions []model.Position
	for _, v := range views {
		ps, err := m.Positions(v.ID)
		if err != nil {
			continue
		}
		positions = append(positions, ps...)
	}
	return views, positions
}

// restore replaces the registry with the given state.
func (m *PoolManager) restore(views []model.PoolView, positions []model.Position) {
	pools := make(map[string]*pool, len(views))
	order := make([]string, 0, len(views))
	for _, v := range views {
		v = v.Clone()
		pools[v.ID] = &pool{
			id:          v.ID,
			tokenA:      v.TokenA,
			tokenB:      v.TokenB,
			reserveA:    v.ReserveA,
			reserveB:    v.ReserveB,
			totalShares: v.TotalShares,
			positions:   make(map[string]*big.Int),
			createdAt:   v.CreatedAt,
		}
		order = append(order, v.ID)
	}
	for _, pos := range positions {
		p, ok := pools[pos.PoolID]
		if !ok || !isPositive(pos.Shares) {
			continue
		}
		p.positions[pos.Owner] = new(big.Int).Set(pos.Shares)
	}

	m.mu.Lock()
	m.pools = pools
	m.order = order
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.PoolsTotal.Set(float64(len(order)))
	}
}
