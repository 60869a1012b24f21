package amm

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	c.t = epoch.Add(offset)
	c.mu.Unlock()
}

func bi(v int64) *big.Int {
	return big.NewInt(v)
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok, "bad integer literal %q", s)
	return v
}

type testManager struct {
	*PoolManager
	fees      *FeeCollector
	emergency *PoolEmergency
	events    *PoolEventLogger
	clock     *fakeClock
}

func newTestManager(t *testing.T) *testManager {
	t.Helper()
	clock := newFakeClock()
	fees := NewFeeCollector(nil)
	emergency := NewPoolEmergency([]string{"admin"}, clock.Now, nil)
	events := NewPoolEventLogger(nil, nil, clock.Now, nil)
	return &testManager{
		PoolManager: NewPoolManager(fees, emergency, events, NewMetrics(nil, "test"), clock.Now, nil),
		fees:        fees,
		emergency:   emergency,
		events:      events,
		clock:       clock,
	}
}

func (m *testManager) mustCreate(t *testing.T, tokenA, tokenB string, reserveA, reserveB int64) string {
	t.Helper()
	id, err := m.CreatePool("lp", tokenA, tokenB, bi(reserveA), bi(reserveB))
	require.NoError(t, err)
	return id
}

func product(t *testing.T, m *PoolManager, poolID string) *big.Int {
	t.Helper()
	view, err := m.GetPool(poolID)
	require.NoError(t, err)
	return new(big.Int).Mul(view.ReserveA, view.ReserveB)
}
