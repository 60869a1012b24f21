package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammengine/internal/model"
)

type staticPools []model.PoolView

func (s staticPools) Pools() []model.PoolView { return s }

type staticPrices map[string]*big.Int

func (s staticPrices) GetPrice(token string) (*big.Int, bool) {
	p, ok := s[token]
	return p, ok
}

func TestFindDirectRoute(t *testing.T) {
	m := newTestManager(t)
	id := m.mustCreate(t, "STX", "USDA", 1_000_000, 1_000_000)
	r := NewRouteOptimizer(m, nil, nil, nil, nil)

	got, ok := r.FindDirectRoute("USDA", "STX")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = r.FindDirectRoute("STX", "ALEX")
	assert.False(t, ok)
	_, ok = r.FindDirectRoute("STX", "STX")
	assert.False(t, ok)
}

func TestFindBestRoute(t *testing.T) {
	t.Run("direct pool wins even when a detour pays more", func(t *testing.T) {
		m := newTestManager(t)
		direct := m.mustCreate(t, "STX", "USDA", 1_000_000, 10_000)
		m.mustCreate(t, "STX", "ALEX", 1_000_000, 1_000_000)
		m.mustCreate(t, "ALEX", "USDA", 1_000_000, 1_000_000)
		r := NewRouteOptimizer(m, nil, nil, nil, nil)

		route, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, 1, route.HopCount())
		assert.Equal(t, []string{direct}, route.PoolIDs())
	})

	t.Run("picks the intermediate with the higher estimate", func(t *testing.T) {
		m := newTestManager(t)
		m.mustCreate(t, "STX", "ALEX", 1_000_000, 1_000_000)
		m.mustCreate(t, "ALEX", "USDA", 1_000_000, 1_000_000)
		viaDIKO1 := m.mustCreate(t, "STX", "DIKO", 1_000_000, 2_000_000)
		viaDIKO2 := m.mustCreate(t, "DIKO", "USDA", 1_000_000, 1_000_000)
		r := NewRouteOptimizer(m, nil, nil, nil, nil)

		route, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, []string{viaDIKO1, viaDIKO2}, route.PoolIDs())
		assert.Equal(t, int64(19_303), route.EstimatedOutput.Int64())
		assert.Equal(t, "DIKO", route.Hops[0].TokenOut)
		assert.Equal(t, "USDA", route.TokenOut)
	})

	t.Run("ties keep the first discovered intermediate", func(t *testing.T) {
		m := newTestManager(t)
		viaALEX := m.mustCreate(t, "STX", "ALEX", 1_000_000, 1_000_000)
		m.mustCreate(t, "STX", "DIKO", 1_000_000, 1_000_000)
		m.mustCreate(t, "DIKO", "USDA", 1_000_000, 1_000_000)
		m.mustCreate(t, "ALEX", "USDA", 1_000_000, 1_000_000)
		r := NewRouteOptimizer(m, nil, nil, nil, nil)

		route, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, viaALEX, route.Hops[0].PoolID)
		assert.Equal(t, int64(9_745), route.EstimatedOutput.Int64())
	})

	t.Run("no route", func(t *testing.T) {
		m := newTestManager(t)
		m.mustCreate(t, "STX", "ALEX", 1_000_000, 1_000_000)
		m.mustCreate(t, "DIKO", "USDA", 1_000_000, 1_000_000)
		r := NewRouteOptimizer(m, nil, nil, nil, nil)

		_, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		assert.False(t, ok, "three hops are out of reach")
		_, ok = r.FindBestRoute("STX", "USDA", bi(0))
		assert.False(t, ok)
	})

	t.Run("paused direct pool falls back to the two-hop route", func(t *testing.T) {
		m := newTestManager(t)
		direct := m.mustCreate(t, "STX", "USDA", 1_000_000, 1_000_000)
		viaDIKO1 := m.mustCreate(t, "STX", "DIKO", 1_000_000, 1_000_000)
		viaDIKO2 := m.mustCreate(t, "DIKO", "USDA", 1_000_000, 1_000_000)
		require.NoError(t, m.emergency.PausePool(direct, "admin"))
		r := NewRouteOptimizer(m, nil, m.emergency, nil, nil)

		_, ok := r.FindDirectRoute("STX", "USDA")
		assert.False(t, ok)
		route, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, []string{viaDIKO1, viaDIKO2}, route.PoolIDs())
		assert.Equal(t, int64(9_745), route.EstimatedOutput.Int64())

		require.NoError(t, m.emergency.UnpausePool(direct, "admin"))
		route, ok = r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, []string{direct}, route.PoolIDs())
	})

	t.Run("paused intermediate leg is skipped", func(t *testing.T) {
		m := newTestManager(t)
		m.mustCreate(t, "STX", "DIKO", 1_000_000, 2_000_000)
		viaDIKO2 := m.mustCreate(t, "DIKO", "USDA", 1_000_000, 1_000_000)
		viaALEX1 := m.mustCreate(t, "STX", "ALEX", 1_000_000, 1_000_000)
		viaALEX2 := m.mustCreate(t, "ALEX", "USDA", 1_000_000, 1_000_000)
		require.NoError(t, m.emergency.PausePool(viaDIKO2, "admin"))
		r := NewRouteOptimizer(m, nil, m.emergency, nil, nil)

		route, ok := r.FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, []string{viaALEX1, viaALEX2}, route.PoolIDs())

		require.NoError(t, m.emergency.PausePool(viaALEX2, "admin"))
		_, ok = r.FindBestRoute("STX", "USDA", bi(10_000))
		assert.False(t, ok)
	})

	t.Run("does not mutate pools", func(t *testing.T) {
		m := newTestManager(t)
		id := m.mustCreate(t, "STX", "USDA", 1_000_000, 1_000_000)
		before := product(t, m.PoolManager, id)
		_, ok := NewRouteOptimizer(m, nil, nil, nil, nil).FindBestRoute("STX", "USDA", bi(10_000))
		require.True(t, ok)
		assert.Equal(t, 0, before.Cmp(product(t, m.PoolManager, id)))
	})
}

func TestRouteOracleDeviation(t *testing.T) {
	pools := staticPools{{
		ID: "p", TokenA: "STX", TokenB: "USDA",
		ReserveA: bi(100_000_000), ReserveB: bi(50_000_000), TotalShares: bi(1),
	}}
	half := new(big.Int).Div(PriceScale, bi(2))
	r := NewRouteOptimizer(pools, staticPrices{"STX": half, "USDA": PriceScale}, nil, nil, nil)

	route, ok := r.FindBestRoute("STX", "USDA", bi(1_000_000))
	require.True(t, ok)
	assert.Equal(t, int64(493_579), route.EstimatedOutput.Int64())
	require.NotNil(t, route.OracleOutput)
	assert.Equal(t, int64(500_000), route.OracleOutput.Int64())
	require.NotNil(t, route.DeviationBps)
	assert.Equal(t, int64(-128), *route.DeviationBps)

	r = NewRouteOptimizer(pools, staticPrices{"STX": half}, nil, nil, nil)
	route, ok = r.FindBestRoute("STX", "USDA", bi(1_000_000))
	require.True(t, ok)
	assert.Nil(t, route.OracleOutput, "missing price leaves the route unannotated")
}

func TestEstimateOutputIsBoundedByZeroFeePool(t *testing.T) {
	first := model.PoolView{ID: "a", TokenA: "ALEX", TokenB: "STX", ReserveA: bi(2_000_000), ReserveB: bi(1_000_000)}
	second := model.PoolView{ID: "b", TokenA: "ALEX", TokenB: "USDA", ReserveA: bi(2_000_000), ReserveB: bi(3_000_000)}

	route, err := EstimateOutput([]model.PoolView{first, second}, "STX", bi(50_000))
	require.NoError(t, err)

	// ideal: no fee across the same two pools
	mid := new(big.Int).Mul(bi(50_000), bi(2_000_000))
	mid.Quo(mid, bi(1_050_000))
	ideal := new(big.Int).Mul(mid, bi(3_000_000))
	ideal.Quo(ideal, new(big.Int).Add(bi(2_000_000), mid))
	assert.LessOrEqual(t, route.EstimatedOutput.Cmp(ideal), 0)

	_, err = EstimateOutput([]model.PoolView{first}, "DIKO", bi(1))
	assert.ErrorIs(t, err, ErrInvalidAsset)
	_, err = EstimateOutput(nil, "STX", bi(1))
	assert.ErrorIs(t, err, ErrNoRouteFound)
}
