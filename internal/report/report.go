// Package report summarizes the state of all pools.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/model"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Source answers pool queries
type Source interface {
	Pools(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, pool string, at types.Moment) (model.PoolSnapshot, error)
}

// Summary aggregates snapshots of several pools
type Summary struct {
	Time   types.Moment `json:"time"`
	Pools  int          `json:"pools"`
	Open   int          `json:"open"`
	Closed int          `json:"closed"`

	Staked      fixed.Amount `json:"staked"`
	Budget      fixed.Amount `json:"budget"`
	Distributed fixed.Amount `json:"distributed"`

	// MedianBudget is robust against one pool holding most rewards
	MedianBudget float64 `json:"median_budget"`
	// WeightedBonding is the stake-weighted average bonding period
	WeightedBonding float64 `json:"weighted_bonding"`
	// PayoutRatio is distributed / (distributed + budget) across pools
	PayoutRatio float64 `json:"payout_ratio"`
	// Largest is the pool with the most stake
	Largest string `json:"largest,omitempty"`
}

// Collect snapshots every pool of src at a moment, concurrently. Snapshots
// are returned sorted by pool id.
func Collect(ctx context.Context, src Source, at types.Moment) ([]model.PoolSnapshot, error) {
	ids, err := src.Pools(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		snaps = make([]model.PoolSnapshot, 0, len(ids))
		errs  []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s, err := src.Snapshot(ctx, id, at)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("pool %s: %w", id, err))
				return
			}
			snaps = append(snaps, s)
		}(id)
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Pool < snaps[j].Pool })
	return snaps, nil
}

// Summarize aggregates snapshots taken at the same moment
func Summarize(snaps []model.PoolSnapshot) (Summary, error) {
	var s Summary
	if len(snaps) == 0 {
		return s, nil
	}

	budgets := make([]float64, 0, len(snaps))
	var largest fixed.Amount
	var weightedBonding, totalStake float64
	for _, p := range snaps {
		if err := p.Validate(); err != nil {
			logrus.WithField("pool", p.Pool).Warnf("Inconsistent snapshot: %v", err)
		}
		s.Time = p.Time
		s.Pools++
		if p.Closed {
			s.Closed++
		} else {
			s.Open++
		}

		var err error
		if s.Staked, err = s.Staked.Add(p.Staked); err != nil {
			return s, err
		}
		if s.Budget, err = s.Budget.Add(p.Budget); err != nil {
			return s, err
		}
		if s.Distributed, err = s.Distributed.Add(p.Distributed); err != nil {
			return s, err
		}

		budgets = append(budgets, p.Budget.Float64())
		stake := p.Staked.Float64()
		weightedBonding += float64(p.Bonding) * stake
		totalStake += stake
		if s.Largest == "" || largest.Lt(p.Staked) {
			largest, s.Largest = p.Staked, p.Pool
		}
	}

	s.MedianBudget = Median(budgets)
	if totalStake > 0 {
		s.WeightedBonding = weightedBonding / totalStake
	}
	if unlocked := s.Distributed.Float64() + s.Budget.Float64(); unlocked > 0 {
		s.PayoutRatio = s.Distributed.Float64() / unlocked
	}
	return s, nil
}

// Median returns the median of values, or 0 when empty
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
