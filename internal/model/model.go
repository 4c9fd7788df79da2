// Package model defines the data points that flow from the engine to
// reporting: snapshots of pool state.
package model

import (
	"fmt"
	"time"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// PoolSnapshot is the public state of one pool at a moment.
type PoolSnapshot struct {
	// Pool is the pool id
	Pool string `json:"pool"`

	// Time is the block time the snapshot was projected to
	Time types.Moment `json:"time"`

	Staked      fixed.Amount   `json:"staked"`
	Volume      fixed.Volume   `json:"volume"`
	Budget      fixed.Amount   `json:"budget"`
	Distributed fixed.Amount   `json:"distributed"`
	Unlocked    fixed.Amount   `json:"unlocked"`
	Bonding     types.Duration `json:"bonding"`
	Closed      bool           `json:"closed"`
	Variant     string         `json:"variant"`

	// LiquidityRatio is set for liquidity_ratio pools
	LiquidityRatio float64 `json:"liquidity_ratio,omitempty"`

	// CollectedAt is the Unix timestamp when this snapshot was taken
	CollectedAt int64 `json:"collected_at"`
}

// NewSnapshot captures pool totals
func NewSnapshot(pool string, t *rewards.Totals) PoolSnapshot {
	s := PoolSnapshot{
		Pool:        pool,
		Time:        t.Now,
		Staked:      t.Staked,
		Volume:      t.Volume,
		Budget:      t.Budget,
		Distributed: t.Distributed,
		Unlocked:    t.Unlocked,
		Bonding:     t.Bonding,
		Closed:      t.Closed != nil,
		Variant:     string(t.Variant),
		CollectedAt: time.Now().Unix(),
	}
	if t.Liquidity != nil {
		s.LiquidityRatio = t.Liquidity.Ratio.Float64()
	}
	return s
}

// Validate checks that unlocked is distributed plus budget
func (s PoolSnapshot) Validate() error {
	sum, err := s.Distributed.Add(s.Budget)
	if err != nil {
		return err
	}
	if !sum.Equal(s.Unlocked) {
		return fmt.Errorf("pool %s: unlocked %s != distributed %s + budget %s", s.Pool, s.Unlocked, s.Distributed, s.Budget)
	}
	return nil
}
