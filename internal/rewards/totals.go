package rewards

import (
	"context"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Pool state keys
var (
	keyTotalVolume      = []byte("/total/volume")
	keyTotalUpdated     = []byte("/total/updated")
	keyTotalStaked      = []byte("/total/size")
	keyTotalDistributed = []byte("/total/claimed")
)

// Totals is the projection of a pool's state at a moment
type Totals struct {
	// Now is the moment these values hold for
	Now types.Moment `json:"now"`
	// Updated is when the stored pool state last changed
	Updated types.Moment `json:"updated"`
	// Volume is the liquidity the pool contained over its lifetime
	Volume fixed.Volume `json:"volume"`
	// Staked is the amount currently locked by all accounts
	Staked fixed.Amount `json:"staked"`
	// Budget is the reward balance available for distribution
	Budget fixed.Amount `json:"budget"`
	// Distributed is everything paid out by claims so far
	Distributed fixed.Amount `json:"distributed"`
	// Unlocked is Distributed + Budget
	Unlocked fixed.Amount `json:"unlocked"`
	// Bonding is how long accounts wait between claims
	Bonding types.Duration `json:"bonding"`
	// Closed is set once, irreversibly
	Closed *types.CloseSeal `json:"closed,omitempty"`

	Variant      Variant             `json:"variant"`
	AgeThreshold *AgeThresholdTotals `json:"age_threshold,omitempty"`
	Liquidity    *LiquidityTotals    `json:"liquidity,omitempty"`

	// elapsed is the accruing time since Updated, frozen at closure
	elapsed types.Duration
	config  poolConfig
}

// accrualEnd is the last moment at which accumulators advance: now, or the
// closing moment if the pool was closed before now.
func accrualEnd(now types.Moment, closed *types.CloseSeal) types.Moment {
	if closed != nil && closed.Time < now {
		return closed.Time
	}
	return now
}

// Totals projects the pool state to now
func (p *Pool) Totals(ctx context.Context, now types.Moment) (*Totals, error) {
	cfg, err := p.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	t := &Totals{Now: now, config: cfg, Variant: cfg.settings.Variant}

	// Timestamps
	if t.Updated, err = getMoment(ctx, p.store, keyTotalUpdated, now); err != nil {
		return nil, err
	}
	if now < t.Updated {
		return nil, fmt.Errorf("%w: pool updated at %d, now is %d", ErrTimeTravel, t.Updated, now)
	}
	var seal types.CloseSeal
	if found, err := getJSON(ctx, p.store, keyClosed, &seal); err != nil {
		return nil, err
	} else if found {
		t.Closed = &seal
	}
	t.elapsed = accrualEnd(now, t.Closed).Since(t.Updated)

	// Liquidity
	lastVolume, err := getVolume(ctx, p.store, keyTotalVolume, fixed.Volume{})
	if err != nil {
		return nil, err
	}
	if t.Staked, err = getAmount(ctx, p.store, keyTotalStaked); err != nil {
		return nil, err
	}
	if t.Volume, err = fixed.Accumulate(lastVolume, uint64(t.elapsed), t.Staked); err != nil {
		return nil, err
	}

	// Budget
	if t.Budget, err = p.engine.querier.Balance(ctx, cfg.rewardToken, cfg.self.Address, cfg.rewardVK); err != nil {
		return nil, fmt.Errorf("query budget of %s: %w", p.ID, err)
	}
	if cfg.singleSided() {
		if t.Budget, err = t.Budget.Sub(t.Staked); err != nil {
			return nil, inconsistency("reward balance %s below staked %s", t.Budget, t.Staked)
		}
	}
	if err := p.projectVariant(ctx, t); err != nil {
		return nil, err
	}
	if t.Distributed, err = getAmount(ctx, p.store, keyTotalDistributed); err != nil {
		return nil, err
	}
	if t.Unlocked, err = t.Distributed.Add(t.Budget); err != nil {
		return nil, err
	}

	// Throttles
	if t.Bonding, err = getDuration(ctx, p.store, keyBonding, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Pool) projectVariant(ctx context.Context, t *Totals) error {
	switch t.Variant {
	case VariantAgeThreshold:
		t.AgeThreshold = &AgeThresholdTotals{Threshold: t.config.settings.AgeThreshold.Threshold}

	case VariantLiquidityRatio:
		l := &LiquidityTotals{}
		var populated types.Moment
		if found, err := getJSON(ctx, p.store, keyTotalPopulated, &populated); err != nil {
			return err
		} else if found {
			l.Populated = &populated
		}
		liquid, err := getDuration(ctx, p.store, keyTotalLiquid, 0)
		if err != nil {
			return err
		}
		if !t.Staked.IsZero() {
			liquid += t.elapsed
		}
		l.Liquid = liquid

		var span types.Duration
		if l.Populated != nil {
			span = accrualEnd(t.Now, t.Closed).Since(*l.Populated)
		}
		if span == 0 {
			l.Ratio = fixed.NewRatio(fixed.NewVolume(1), fixed.NewVolume(1))
		} else {
			l.Ratio = fixed.NewRatio(fixed.NewVolume(uint64(liquid)), fixed.NewVolume(uint64(span)))
			if t.Budget, err = t.Budget.MulRatio(l.Ratio.Num, l.Ratio.Den); err != nil {
				return err
			}
		}
		t.Liquidity = l
	}
	return nil
}

// commit writes the projected accumulators back as the new baseline
func (p *Pool) commitTotals(ctx context.Context, t *Totals) error {
	if err := setVolume(ctx, p, keyTotalVolume, t.Volume); err != nil {
		return err
	}
	if err := setU64(ctx, p.store, keyTotalUpdated, uint64(t.Now)); err != nil {
		return err
	}
	if t.Liquidity != nil {
		if err := setU64(ctx, p.store, keyTotalLiquid, uint64(t.Liquidity.Liquid)); err != nil {
			return err
		}
	}
	t.Updated = t.Now
	t.elapsed = 0
	return nil
}

func setVolume(ctx context.Context, p *Pool, key []byte, v fixed.Volume) error {
	return p.store.Set(ctx, key, v.Bytes())
}

func setAmount(ctx context.Context, p *Pool, key []byte, v fixed.Amount) error {
	return p.store.Set(ctx, key, v.Bytes())
}
