package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAmountOut(t *testing.T) {
	t.Run("reference swap", func(t *testing.T) {
		out, net, err := GetAmountOut(bi(1_000_000), bi(100_000_000), bi(50_000_000))
		require.NoError(t, err)
		assert.Equal(t, int64(997_000), net.Int64())
		assert.Equal(t, int64(493_579), out.Int64())
	})

	t.Run("rounds toward the pool", func(t *testing.T) {
		// 9 * 0.997 = 8.973 -> 8 net; 8*10/(10+8) = 4.44 -> 4
		out, net, err := GetAmountOut(bi(9), bi(10), bi(10))
		require.NoError(t, err)
		assert.Equal(t, int64(8), net.Int64())
		assert.Equal(t, int64(4), out.Int64())
	})

	t.Run("rejects non-positive input", func(t *testing.T) {
		_, _, err := GetAmountOut(bi(0), bi(10), bi(10))
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, _, err = GetAmountOut(nil, bi(10), bi(10))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects empty reserves", func(t *testing.T) {
		_, _, err := GetAmountOut(bi(10), bi(0), bi(10))
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("arbitrary precision", func(t *testing.T) {
		reserve := mustBig(t, "1000000000000000000000000000000")
		out, _, err := GetAmountOut(mustBig(t, "1000000000000000000000"), reserve, reserve)
		require.NoError(t, err)
		assert.Equal(t, 1, reserve.Cmp(out))
		assert.Equal(t, 1, out.Sign())
	})
}

func TestCalculateProtocolFee(t *testing.T) {
	cases := []struct {
		fee  *big.Int
		want int64
	}{
		{bi(3000), 1},
		{bi(1999), 0},
		{bi(2_000_000), 1000},
		{bi(0), 0},
		{nil, 0},
		{bi(-5), 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CalculateProtocolFee(c.fee).Int64(), "fee %v", c.fee)
	}
}

func TestInitialShares(t *testing.T) {
	assert.Equal(t, int64(70_710_678), initialShares(bi(100_000_000), bi(50_000_000)).Int64())
	assert.Equal(t, int64(1000), initialShares(bi(1000), bi(1000)).Int64())
}

func TestErrorKind(t *testing.T) {
	err := opError("swap", "p", ErrSlippageExceeded)
	assert.Equal(t, "slippage_exceeded", ErrorKind(err))
	assert.Equal(t, "swap pool p: slippage exceeded", err.Error())
	assert.Equal(t, "internal", ErrorKind(assert.AnError))

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "swap", opErr.Op)
}
