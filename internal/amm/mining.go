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

// ShareReader reports LP share balances, bounding what a user may stake.
type ShareReader interface {
	Shares(poolID, owner string) (*big.Int, error)
}

type stakeRecord struct {
	amount      *big.Int
	accrued     *big.Int
	lastAccrual time.Time
}

type program struct {
	mu          sync.Mutex
	poolID      string
	rewardToken string
	rewardRate  *big.Int
	start       time.Time
	end         time.Time
	totalStaked *big.Int
	stakes      map[string]*stakeRecord
}

// pending is floor(elapsed * rate * amount / totalStaked), elapsed measured in
// nanoseconds and capped at the program end. Callers hold p.mu.
func (p *program) pending(s *stakeRecord, now time.Time) *big.Int {
	if p.totalStaked.Sign() == 0 || s.amount.Sign() == 0 {
		return big.NewInt(0)
	}
	if now.After(p.end) {
		now = p.end
	}
	elapsed := now.Sub(s.lastAccrual)
	if elapsed <= 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(big.NewInt(int64(elapsed)), p.rewardRate)
	reward.Mul(reward, s.amount)
	den := new(big.Int).Mul(p.totalStaked, big.NewInt(int64(time.Second)))
	return reward.Quo(reward, den)
}

// settle folds pending rewards into accrued and moves the accrual point to now.
func (p *program) settle(s *stakeRecord, now time.Time) {
	s.accrued.Add(s.accrued, p.pending(s, now))
	s.lastAccrual = now
}

func (p *program) view() model.Program {
	return model.Program{
		PoolID:      p.poolID,
		RewardToken: p.rewardToken,
		RewardRate:  new(big.Int).Set(p.rewardRate),
		StartTime:   p.start,
		EndTime:     p.end,
		TotalStaked: new(big.Int).Set(p.totalStaked),
	}
}

func (p *program) stakeView(user string, s *stakeRecord) model.Stake {
	return model.Stake{
		PoolID:      p.poolID,
		User:        user,
		Amount:      new(big.Int).Set(s.amount),
		Accrued:     new(big.Int).Set(s.accrued),
		LastAccrual: s.lastAccrual,
	}
}

// LiquidityMining emits rewards to staked LP shares. Every program has its own
// lock covering its stakes and total.
type LiquidityMining struct {
	mu       sync.RWMutex
	programs map[string]*program
	shares   ShareReader
	metrics  *Metrics
	now      Clock
	logger   *zap.Logger
}

func NewLiquidityMining(shares ShareReader, metrics *Metrics, now Clock, logger *zap.Logger) *LiquidityMining {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiquidityMining{
		programs: make(map[string]*program),
		shares:   shares,
		metrics:  metrics,
		now:      orSystemClock(now),
		logger:   logger,
	}
}

// CreateProgram starts emitting rewardRate per second for duration.
func (l *LiquidityMining) CreateProgram(poolID, rewardToken string, rewardRate *big.Int, duration time.Duration) error {
	const op = "create_program"
	if err := validateProgram(rewardToken, rewardRate, duration); err != nil {
		return l.fail(op, poolID, err)
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.programs[poolID]; ok {
		return l.fail(op, poolID, ErrProgramExists)
	}
	l.programs[poolID] = &program{
		poolID:      poolID,
		rewardToken: strings.TrimSpace(rewardToken),
		rewardRate:  new(big.Int).Set(rewardRate),
		start:       now,
		end:         now.Add(duration),
		totalStaked: big.NewInt(0),
		stakes:      make(map[string]*stakeRecord),
	}
	l.logger.Info("mining program created",
		zap.String("pool", poolID),
		zap.String("reward_token", rewardToken),
		zap.String("rate", rewardRate.String()),
		zap.Duration("duration", duration),
	)
	return nil
}

// ResetProgram settles every stake under the old schedule, then restarts the
// program with new parameters. Stakes carry over.
func (l *LiquidityMining) ResetProgram(poolID, rewardToken string, rewardRate *big.Int, duration time.Duration) error {
	const op = "reset_program"
	if err := validateProgram(rewardToken, rewardRate, duration); err != nil {
		return l.fail(op, poolID, err)
	}
	p, err := l.program(poolID)
	if err != nil {
		return l.fail(op, poolID, err)
	}
	now := l.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stakes {
		p.settle(s, now)
	}
	p.rewardToken = strings.TrimSpace(rewardToken)
	p.rewardRate = new(big.Int).Set(rewardRate)
	p.start = now
	p.end = now.Add(duration)
	return nil
}

func validateProgram(rewardToken string, rewardRate *big.Int, duration time.Duration) error {
	if strings.TrimSpace(rewardToken) == "" {
		return ErrInvalidAsset
	}
	if !isPositive(rewardRate) || duration <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Stake locks amount of the user's LP shares into the program.
func (l *LiquidityMining) Stake(poolID, user string, amount *big.Int) (model.Stake, error) {
	const op = "stake"
	if !isPositive(amount) {
		return model.Stake{}, l.fail(op, poolID, ErrInvalidAmount)
	}
	if strings.TrimSpace(user) == "" {
		return model.Stake{}, l.fail(op, poolID, ErrInvalidRecipient)
	}
	p, err := l.program(poolID)
	if err != nil {
		return model.Stake{}, l.fail(op, poolID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := l.now()
	s, ok := p.stakes[user]
	if !ok {
		s = &stakeRecord{amount: big.NewInt(0), accrued: big.NewInt(0), lastAccrual: now}
	}

	if l.shares != nil {
		held, err := l.shares.Shares(poolID, user)
		if err != nil {
			return model.Stake{}, l.fail(op, poolID, err)
		}
		if new(big.Int).Add(s.amount, amount).Cmp(held) > 0 {
			return model.Stake{}, l.fail(op, poolID, ErrInsufficientShares)
		}
	}

	p.settle(s, now)
	s.amount.Add(s.amount, amount)
	p.totalStaked.Add(p.totalStaked, amount)
	p.stakes[user] = s
	return p.stakeView(user, s), nil
}

// Unstake releases amount from the user's stake. Accrued rewards are kept.
func (l *LiquidityMining) Unstake(poolID, user string, amount *big.Int) (model.Stake, error) {
	const op = "unstake"
	if !isPositive(amount) {
		return model.Stake{}, l.fail(op, poolID, ErrInvalidAmount)
	}
	p, err := l.program(poolID)
	if err != nil {
		return model.Stake{}, l.fail(op, poolID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stakes[user]
	if !ok || s.amount.Cmp(amount) < 0 {
		return model.Stake{}, l.fail(op, poolID, ErrInsufficientStake)
	}
	p.settle(s, l.now())
	s.amount.Sub(s.amount, amount)
	p.totalStaked.Sub(p.totalStaked, amount)
	view := p.stakeView(user, s)
	if s.amount.Sign() == 0 && s.accrued.Sign() == 0 {
		delete(p.stakes, user)
	}
	return view, nil
}

// CalculatePending returns accrued plus not-yet-settled rewards for user.
func (l *LiquidityMining) CalculatePending(poolID, user string) (*big.Int, error) {
	p, err := l.program(poolID)
	if err != nil {
		return nil, opError("pending", poolID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stakes[user]
	if !ok {
		return big.NewInt(0), nil
	}
	total := p.pending(s, l.now())
	return total.Add(total, s.accrued), nil
}

// Harvest pays out everything owed to user and zeroes the accrual.
func (l *LiquidityMining) Harvest(poolID, user string) (*big.Int, error) {
	const op = "harvest"
	p, err := l.program(poolID)
	if err != nil {
		return nil, l.fail(op, poolID, err)
	}

	p.mu.Lock()
	s, ok := p.stakes[user]
	if !ok {
		p.mu.Unlock()
		return big.NewInt(0), nil
	}
	p.settle(s, l.now())
	paid := new(big.Int).Set(s.accrued)
	s.accrued.SetInt64(0)
	if s.amount.Sign() == 0 {
		delete(p.stakes, user)
	}
	token := p.rewardToken
	p.mu.Unlock()

	if paid.Sign() > 0 {
		if l.metrics != nil {
			l.metrics.RewardsPaid.WithLabelValues(token).Inc()
		}
		l.logger.Info("rewards harvested",
			zap.String("pool", poolID),
			zap.String("user", user),
			zap.String("token", token),
			zap.String("amount", paid.String()),
		)
	}
	return paid, nil
}

// Program returns the schedule and total stake of a pool's program.
func (l *LiquidityMining) Program(poolID string) (model.Program, error) {
	p, err := l.program(poolID)
	if err != nil {
		return model.Program{}, opError("program", poolID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view(), nil
}

// StakeOf returns the user's stake record; a missing record reads as zero.
func (l *LiquidityMining) StakeOf(poolID, user string) (model.Stake, error) {
	p, err := l.program(poolID)
	if err != nil {
		return model.Stake{}, opError("stake_of", poolID, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stakes[user]
	if !ok {
		return model.Stake{PoolID: poolID, User: user, Amount: big.NewInt(0), Accrued: big.NewInt(0)}, nil
	}
	return p.stakeView(user, s), nil
}

func (l *LiquidityMining) program(poolID string) (*program, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.programs[poolID]
	if !ok {
		return nil, ErrProgramNotFound
	}
	return p, nil
}

func (l *LiquidityMining) fail(op, poolID string, err error) error {
	l.metrics.observeError(op, err)
	return opError(op, poolID, err)
}

func (l *LiquidityMining) snapshot() ([]model.Program, []model.Stake) {
	l.mu.RLock()
	ps := make([]*program, 0, len(l.programs))
	for _, p := range l.programs {
		ps = append(ps, p)
	}
	l.mu.RUnlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].poolID < ps[j].poolID })

	var programs []model.Program
	var stakes []model.Stake
	for _, p := range ps {
		p.mu.Lock()
		programs = append(programs, p.view())
		users := make([]string, 0, len(p.stakes))
		for u := range p.stakes {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			stakes = append(stakes, p.stakeView(u, p.stakes[u]))
		}
		p.mu.Unlock()
	}
	return programs, stakes
}

func (l *LiquidityMining) restore(programs []model.Program, stakes []model.Stake) {
	m := make(map[string]*program, len(programs))
	for _, pv := range programs {
		if pv.RewardRate == nil {
			continue
		}
		total := big.NewInt(0)
		if pv.TotalStaked != nil {
			total.Set(pv.TotalStaked)
		}
		m[pv.PoolID] = &program{
			poolID:      pv.PoolID,
			rewardToken: pv.RewardToken,
			rewardRate:  new(big.Int).Set(pv.RewardRate),
			start:       pv.StartTime,
			end:         pv.EndTime,
			totalStaked: total,
			stakes:      make(map[string]*stakeRecord),
		}
	}
	for _, sv := range stakes {
		p, ok := m[sv.PoolID]
		if !ok {
			continue
		}
		rec := &stakeRecord{amount: big.NewInt(0), accrued: big.NewInt(0), lastAccrual: sv.LastAccrual}
		if sv.Amount != nil {
			rec.amount.Set(sv.Amount)
		}
		if sv.Accrued != nil {
			rec.accrued.Set(sv.Accrued)
		}
		p.stakes[sv.User] = rec
	}
	l.mu.Lock()
	l.programs = m
	l.mu.Unlock()
}
