package model

import "time"

// Snapshot is the full engine state handed to the persistence boundary.
type Snapshot struct {
	TakenAt   time.Time     `json:"taken_at"`
	Pools     []PoolView    `json:"pools"`
	Positions []Position    `json:"positions"`
	Fees      []FeeBalance  `json:"fees"`
	Programs  []Program     `json:"programs"`
	Stakes    []Stake       `json:"stakes"`
	Prices    []PricePoint  `json:"prices"`
	Pauses    []PauseRecord `json:"pauses"`
	Admins    []string      `json:"admins"`
}
