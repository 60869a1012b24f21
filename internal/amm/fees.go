package amm

import (
	"math/big"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ammengine/internal/model"
)

type feeKey struct {
	poolID string
	token  string
}

// FeeCollector accumulates protocol fee balances per (pool, token).
type FeeCollector struct {
	mu     sync.Mutex
	ledger map[feeKey]*big.Int
	logger *zap.Logger
}

func NewFeeCollector(logger *zap.Logger) *FeeCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeCollector{
		ledger: make(map[feeKey]*big.Int),
		logger: logger,
	}
}

// CollectFee adds amount to the ledger entry.
func (f *FeeCollector) CollectFee(poolID, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return opError("collect_fee", poolID, ErrInvalidAmount)
	}
	if amount.Sign() == 0 {
		return nil
	}
	key := feeKey{poolID: poolID, token: token}

	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.ledger[key]
	if !ok {
		bal = big.NewInt(0)
		f.ledger[key] = bal
	}
	bal.Add(bal, amount)
	return nil
}

// CalculateProtocolFee returns the protocol's share of a swap fee.
func (f *FeeCollector) CalculateProtocolFee(swapFee *big.Int) *big.Int {
	return CalculateProtocolFee(swapFee)
}

// WithdrawFees reads and zeroes the ledger entry in one critical section.
func (f *FeeCollector) WithdrawFees(poolID, token, recipient string) (*big.Int, error) {
	if strings.TrimSpace(recipient) == "" {
		return nil, opError("withdraw_fees", poolID, ErrInvalidRecipient)
	}
	key := feeKey{poolID: poolID, token: token}

	f.mu.Lock()
	bal, ok := f.ledger[key]
	delete(f.ledger, key)
	f.mu.Unlock()

	if !ok {
		return big.NewInt(0), nil
	}
	f.logger.Info("fees withdrawn",
		zap.String("pool", poolID),
		zap.String("token", token),
		zap.String("recipient", recipient),
		zap.String("amount", bal.String()),
	)
	return bal, nil
}

// Balance returns the current uncollected amount.
func (f *FeeCollector) Balance(poolID, token string) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.ledger[feeKey{poolID: poolID, token: token}]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Balances lists all non-zero ledger entries ordered by pool then token.
func (f *FeeCollector) Balances() []model.FeeBalance {
	f.mu.Lock()
	out := make([]model.FeeBalance, 0, len(f.ledger))
	for key, bal := range f.ledger {
		out = append(out, model.FeeBalance{PoolID: key.poolID, Token: key.token, Amount: new(big.Int).Set(bal)})
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PoolID != out[j].PoolID {
			return out[i].PoolID < out[j].PoolID
		}
		return out[i].Token < out[j].Token
	})
	return out
}

func (f *FeeCollector) restore(balances []model.FeeBalance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledger = make(map[feeKey]*big.Int, len(balances))
	for _, b := range balances {
		if isPositive(b.Amount) {
			f.ledger[feeKey{poolID: b.PoolID, token: b.Token}] = new(big.Int).Set(b.Amount)
		}
	}
}
