package amm

import "math/big"

const (
	// SwapFeeBps is the trader-facing swap fee (0.3%).
	SwapFeeBps = 30
	// ProtocolFeeBps is the protocol's cut of the swap fee (0.05% of the fee).
	ProtocolFeeBps = 5

	bpsDenominator   = 10_000
	protocolFeeDenom = 10_000
)

// MinimumLiquidity is the share amount locked forever at pool creation.
var MinimumLiquidity = big.NewInt(1000)

var (
	feeNumerator   = big.NewInt(bpsDenominator - SwapFeeBps) // 9970, i.e. 997/1000
	feeDenominator = big.NewInt(bpsDenominator)
)

// netOfFee returns floor(amountIn * 997 / 1000).
func netOfFee(amountIn *big.Int) *big.Int {
	net := new(big.Int).Mul(amountIn, feeNumerator)
	return net.Quo(net, feeDenominator)
}

// GetAmountOut applies the fee-adjusted constant-product formula:
// floor(net * reserveOut / (reserveIn + net)) with net = floor(amountIn * 997 / 1000).
// It also returns net so callers can derive the fee withheld.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (amountOut, net *big.Int, err error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	net = netOfFee(amountIn)
	numerator := new(big.Int).Mul(net, reserveOut)
	denominator := new(big.Int).Add(reserveIn, net)
	amountOut = numerator.Quo(numerator, denominator)
	return amountOut, net, nil
}

// CalculateProtocolFee returns floor(swapFee * 0.0005).
func CalculateProtocolFee(swapFee *big.Int) *big.Int {
	if swapFee == nil || swapFee.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(swapFee, big.NewInt(ProtocolFeeBps))
	return fee.Quo(fee, big.NewInt(protocolFeeDenom))
}

// initialShares returns floor(sqrt(a*b)).
func initialShares(a, b *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	return product.Sqrt(product)
}

// proportional returns floor(amount * num / den).
func proportional(amount, num, den *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, num)
	return out.Quo(out, den)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
