package model

import (
	"math/big"
	"time"
)

// Program is a reward-emission schedule attached to one pool.
type Program struct {
	PoolID      string    `json:"pool_id"`
	RewardToken string    `json:"reward_token"`
	RewardRate  *big.Int  `json:"reward_rate"` // per second
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalStaked *big.Int  `json:"total_staked"`
}

// Stake is a user's position in a mining program.
type Stake struct {
	PoolID      string    `json:"pool_id"`
	User        string    `json:"user"`
	Amount      *big.Int  `json:"amount"`
	Accrued     *big.Int  `json:"accrued"`
	LastAccrual time.Time `json:"last_accrual"`
}
