package amm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"ammengine/internal/model"
	"ammengine/internal/storage"
)

// Options configures an Engine. Zero values are usable.
type Options struct {
	Admins               []string
	OracleUpdateInterval time.Duration
	EventSink            storage.EventSink
	EventRetention       int
	Snapshots            storage.SnapshotStore
	Metrics              *Metrics
	Clock                Clock
	Logger               *zap.Logger
}

// Engine owns one isolated instance of every component and exposes the
// request/response contract served by the API.
type Engine struct {
	Pools     *PoolManager
	Router    *RouteOptimizer
	Fees      *FeeCollector
	Mining    *LiquidityMining
	Oracle    *PriceOracle
	Emergency *PoolEmergency
	Events    *PoolEventLogger

	snapshots storage.SnapshotStore
	metrics   *Metrics
	now       Clock
	logger    *zap.Logger
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := orSystemClock(opts.Clock)

	fees := NewFeeCollector(logger.Named("fees"))
	emergency := NewPoolEmergency(opts.Admins, now, logger.Named("emergency"))
	events := NewPoolEventLogger(opts.EventSink, opts.Metrics, now, logger.Named("events"))
	events.SetRetention(opts.EventRetention)
	pools := NewPoolManager(fees, emergency, events, opts.Metrics, now, logger.Named("pools"))
	oracle := NewPriceOracle(opts.OracleUpdateInterval, now, logger.Named("oracle"))

	return &Engine{
		Pools:     pools,
		Router:    NewRouteOptimizer(pools, oracle, emergency, opts.Metrics, logger.Named("router")),
		Fees:      fees,
		Mining:    NewLiquidityMining(pools, opts.Metrics, now, logger.Named("mining")),
		Oracle:    oracle,
		Emergency: emergency,
		Events:    events,
		snapshots: opts.Snapshots,
		metrics:   opts.Metrics,
		now:       now,
		logger:    logger,
	}
}

func (e *Engine) CreatePool(provider, tokenA, tokenB string, reserveA, reserveB *big.Int) (string, error) {
	return e.Pools.CreatePool(provider, tokenA, tokenB, reserveA, reserveB)
}

func (e *Engine) Swap(trader, poolID, tokenIn string, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	return e.Pools.Swap(trader, poolID, tokenIn, amountIn, minAmountOut)
}

// FindRoute returns the best route or ErrNoRouteFound.
func (e *Engine) FindRoute(tokenIn, tokenOut string, amountIn *big.Int) (model.Route, error) {
	if !isPositive(amountIn) {
		return model.Route{}, opError("find_route", "", ErrInvalidAmount)
	}
	route, ok := e.Router.FindBestRoute(tokenIn, tokenOut, amountIn)
	if !ok {
		e.metrics.observeError("find_route", ErrNoRouteFound)
		return model.Route{}, opError("find_route", "", ErrNoRouteFound)
	}
	return route, nil
}

// SwapRoute finds the best route and executes it. The route estimate is only
// a hint; execution re-prices against live reserves.
func (e *Engine) SwapRoute(trader, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int) ([]model.Hop, error) {
	route, err := e.FindRoute(tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, err
	}
	return e.Pools.ExecuteRoute(trader, Steps(route), amountIn, minAmountOut)
}

func (e *Engine) AddLiquidity(provider, poolID string, amountA, amountB *big.Int) (*big.Int, error) {
	return e.Pools.AddLiquidity(provider, poolID, amountA, amountB)
}

func (e *Engine) RemoveLiquidity(provider, poolID string, shares *big.Int) (*big.Int, *big.Int, error) {
	return e.Pools.RemoveLiquidity(provider, poolID, shares)
}

// CreateProgram attaches a mining program to an existing pool. Admin only.
func (e *Engine) CreateProgram(admin, poolID, rewardToken string, rewardRate *big.Int, duration time.Duration) error {
	if err := e.requireAdmin("create_program", poolID, admin); err != nil {
		return err
	}
	if !e.Pools.HasPool(poolID) {
		return opError("create_program", poolID, ErrPoolNotFound)
	}
	return e.Mining.CreateProgram(poolID, rewardToken, rewardRate, duration)
}

// ResetProgram restarts a program with new parameters. Admin only.
func (e *Engine) ResetProgram(admin, poolID, rewardToken string, rewardRate *big.Int, duration time.Duration) error {
	if err := e.requireAdmin("reset_program", poolID, admin); err != nil {
		return err
	}
	return e.Mining.ResetProgram(poolID, rewardToken, rewardRate, duration)
}

func (e *Engine) Stake(poolID, user string, amount *big.Int) (model.Stake, error) {
	return e.Mining.Stake(poolID, user, amount)
}

func (e *Engine) Unstake(poolID, user string, amount *big.Int) (model.Stake, error) {
	return e.Mining.Unstake(poolID, user, amount)
}

func (e *Engine) Harvest(poolID, user string) (*big.Int, error) {
	return e.Mining.Harvest(poolID, user)
}

func (e *Engine) SetPrice(token string, price *big.Int) error {
	return e.Oracle.SetPrice(token, price)
}

// GetPrice returns the fresh price point for token, or false when absent or stale.
func (e *Engine) GetPrice(token string) (model.PricePoint, bool) {
	point, err := e.Oracle.GetPricePoint(token)
	if err != nil {
		return model.PricePoint{}, false
	}
	return point, true
}

// PoolPrice is the spot price of the pool's token A in token B, scaled by PriceScale.
func (e *Engine) PoolPrice(poolID string) (*big.Int, error) {
	view, err := e.Pools.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	price, err := CalculatePoolPrice(view.ReserveA, view.ReserveB)
	if err != nil {
		return nil, opError("pool_price", poolID, err)
	}
	return price, nil
}

func (e *Engine) Pause(poolID, admin string) error {
	return e.setPaused(poolID, admin, true)
}

func (e *Engine) Unpause(poolID, admin string) error {
	return e.setPaused(poolID, admin, false)
}

func (e *Engine) setPaused(poolID, admin string, paused bool) error {
	op, kind := "unpause", model.EventPoolUnpaused
	if paused {
		op, kind = "pause", model.EventPoolPaused
	}
	if !e.Pools.HasPool(poolID) {
		e.metrics.observeError(op, ErrPoolNotFound)
		return opError(op, poolID, ErrPoolNotFound)
	}
	var err error
	if paused {
		err = e.Emergency.PausePool(poolID, admin)
	} else {
		err = e.Emergency.UnpausePool(poolID, admin)
	}
	if err != nil {
		e.metrics.observeError(op, err)
		return err
	}
	e.Events.Record(model.PoolEvent{Kind: kind, PoolID: poolID, Actor: admin})
	return nil
}

// WithdrawFees drains the protocol fee balance to recipient. Admin only.
func (e *Engine) WithdrawFees(admin, poolID, token, recipient string) (*big.Int, error) {
	if err := e.requireAdmin("withdraw_fees", poolID, admin); err != nil {
		return nil, err
	}
	amount, err := e.Fees.WithdrawFees(poolID, token, recipient)
	if err != nil {
		e.metrics.observeError("withdraw_fees", err)
		return nil, err
	}
	if amount.Sign() > 0 {
		e.Events.Record(model.PoolEvent{
			Kind:      model.EventFeesWithdrawn,
			PoolID:    poolID,
			Actor:     recipient,
			TokenOut:  token,
			AmountOut: new(big.Int).Set(amount),
		})
	}
	return amount, nil
}

// AddAdmin grants admin rights; caller must already be an admin.
func (e *Engine) AddAdmin(caller, admin string) error {
	if err := e.Emergency.AddAdmin(caller, admin); err != nil {
		e.metrics.observeError("add_admin", err)
		return err
	}
	return nil
}

// Quote prices a single-pool swap without executing it.
func (e *Engine) Quote(poolID, tokenIn string, amountIn *big.Int) (*big.Int, error) {
	return e.Pools.Quote(poolID, tokenIn, amountIn)
}

func (e *Engine) requireAdmin(op, poolID, admin string) error {
	if !e.Emergency.IsAdmin(admin) {
		e.metrics.observeError(op, ErrUnauthorized)
		return opError(op, poolID, ErrUnauthorized)
	}
	return nil
}

// Snapshot captures every component. Components are read one after another,
// so concurrent mutations may land between them.
func (e *Engine) Snapshot() model.Snapshot {
	pools, positions := e.Pools.snapshot()
	programs, stakes := e.Mining.snapshot()
	pauses, admins := e.Emergency.snapshot()
	return model.Snapshot{
		TakenAt:   e.now(),
		Pools:     pools,
		Positions: positions,
		Fees:      e.Fees.Balances(),
		Programs:  programs,
		Stakes:    stakes,
		Prices:    e.Oracle.snapshot(),
		Pauses:    pauses,
		Admins:    admins,
	}
}

// Restore replaces component state with snap. Bootstrap admins are kept.
func (e *Engine) Restore(snap model.Snapshot) {
	e.Pools.restore(snap.Pools, snap.Positions)
	e.Fees.restore(snap.Fees)
	e.Mining.restore(snap.Programs, snap.Stakes)
	e.Oracle.restore(snap.Prices)
	e.Emergency.restore(snap.Pauses, snap.Admins)
	e.logger.Info("engine state restored",
		zap.Time("taken_at", snap.TakenAt),
		zap.Int("pools", len(snap.Pools)),
		zap.Int("programs", len(snap.Programs)),
	)
}

// Checkpoint writes the current snapshot to the configured store.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.snapshots == nil {
		return nil
	}
	if err := e.snapshots.SaveSnapshot(ctx, e.Snapshot()); err != nil {
		if e.metrics != nil {
			e.metrics.CheckpointErrors.Inc()
		}
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores from the configured store and reports whether a
// snapshot was found.
func (e *Engine) LoadCheckpoint(ctx context.Context) (bool, error) {
	if e.snapshots == nil {
		return false, nil
	}
	snap, ok, err := e.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return false, nil
	}
	e.Restore(snap)
	return true, nil
}

// RunCheckpoints checkpoints every interval until ctx is done, then once more.
func (e *Engine) RunCheckpoints(ctx context.Context, interval time.Duration) {
	if e.snapshots == nil {
		<-ctx.Done()
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.Checkpoint(final); err != nil {
				e.logger.Error("final checkpoint failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := e.Checkpoint(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("checkpoint failed", zap.Error(err))
			}
		}
	}
}
