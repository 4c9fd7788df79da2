package rewards

import (
	"context"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// ClaimErrorKind says why a simulated claim would be rejected
type ClaimErrorKind string

// Simulated claim rejections
const (
	ClaimPoolEmpty         ClaimErrorKind = "pool_empty"
	ClaimPoolClosed        ClaimErrorKind = "pool_closed"
	ClaimAccountZeroLocked ClaimErrorKind = "account_zero_locked"
	ClaimAccountZeroReward ClaimErrorKind = "account_zero_reward"
	ClaimEarly             ClaimErrorKind = "early_claim"
)

// ClaimError is a simulated rejection
type ClaimError struct {
	Kind       ClaimErrorKind `json:"kind"`
	TimeToWait types.Duration `json:"time_to_wait,omitempty"`
}

// ClaimResult is the outcome of a simulated claim in one pool
type ClaimResult struct {
	Pool   string       `json:"pool"`
	Reward fixed.Amount `json:"reward"`
	Error  *ClaimError  `json:"error,omitempty"`
}

// ClaimSimulation reports what claiming from several pools would pay
type ClaimSimulation struct {
	Time    types.Moment  `json:"time"`
	Total   fixed.Amount  `json:"total"`
	Results []ClaimResult `json:"results"`
}

// SimulateClaims evaluates a claim by address in each pool at a moment,
// without changing any state.
func (e *Engine) SimulateClaims(ctx context.Context, pools []string, address types.Address, key string, at types.Moment) (*ClaimSimulation, error) {
	if err := e.auth.CheckViewingKey(ctx, address, key); err != nil {
		return nil, err
	}
	sim := &ClaimSimulation{Time: at, Results: make([]ClaimResult, 0, len(pools))}
	for _, id := range pools {
		p, err := e.Pool(ctx, id)
		if err != nil {
			return nil, err
		}
		a, err := p.Account(ctx, at, address)
		if err != nil {
			return nil, err
		}
		result := ClaimResult{Pool: id, Error: simulateClaim(a)}
		if result.Error == nil {
			result.Reward = a.Claimable
			if sim.Total, err = sim.Total.Add(a.Claimable); err != nil {
				return nil, err
			}
		}
		sim.Results = append(sim.Results, result)
	}
	return sim, nil
}

func simulateClaim(a *Account) *ClaimError {
	switch {
	case a.total.Closed != nil:
		return &ClaimError{Kind: ClaimPoolClosed}
	case a.Bonding > 0:
		return &ClaimError{Kind: ClaimEarly, TimeToWait: a.Bonding}
	case a.Age != nil && a.Age.Remaining > 0:
		return &ClaimError{Kind: ClaimEarly, TimeToWait: a.Age.Remaining}
	case a.total.Budget.IsZero():
		return &ClaimError{Kind: ClaimPoolEmpty}
	case a.Claimable.IsZero() && a.Staked.IsZero():
		return &ClaimError{Kind: ClaimAccountZeroLocked}
	case a.Claimable.IsZero():
		return &ClaimError{Kind: ClaimAccountZeroReward}
	}
	return nil
}
