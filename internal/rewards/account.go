package rewards

import (
	"context"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Account state keys, namespaced by address
var (
	nsUserEntry   = []byte("/user/entry/")
	nsUserStaked  = []byte("/user/current/")
	nsUserUpdated = []byte("/user/updated/")
	nsUserVolume  = []byte("/user/volume/")
	nsUserClaimed = []byte("/user/claimed/")
	nsUserBonding = []byte("/user/bonding/")
	nsUserPresent = []byte("/user/present/")
)

// Reasons reported when an account has earned nothing
const (
	ReasonPoolEmpty   = "pool is empty"
	ReasonNoLiquidity = "no liquidity accumulated yet"
	ReasonNotLocked   = "nothing locked"
	ReasonCrowdedOut  = "share rounds down to zero"
)

// Account is the projection of one address's state in one pool
type Account struct {
	Address types.Address `json:"address"`
	// Updated is when this account's stored state last changed
	Updated types.Moment `json:"updated"`
	// Entry is the pool volume at which this account's contribution started counting
	Entry fixed.Volume `json:"entry"`
	// Staked is the amount currently locked by this account
	Staked fixed.Amount `json:"staked"`
	// PoolShare is staked / pool staked
	PoolShare fixed.Ratio `json:"pool_share"`
	// Volume is the liquidity this account contributed since Entry
	Volume fixed.Volume `json:"volume"`
	// RewardShare is volume / (pool volume - entry)
	RewardShare fixed.Ratio `json:"reward_share"`
	// Earned is budget * reward share, rounded down
	Earned fixed.Amount `json:"earned"`
	// Claimed is everything ever paid to this account by this pool
	Claimed fixed.Amount `json:"claimed"`
	// Claimable is what a claim would pay now
	Claimable fixed.Amount `json:"claimable"`
	// Reason explains a zero Earned
	Reason string `json:"reason,omitempty"`
	// Bonding is how long until this account may claim again
	Bonding types.Duration `json:"bonding"`

	Age *AgeAccount `json:"age,omitempty"`

	total *Totals
	pool  *Pool
}

// Account projects the state of address to now
func (p *Pool) Account(ctx context.Context, now types.Moment, address types.Address) (*Account, error) {
	total, err := p.Totals(ctx, now)
	if err != nil {
		return nil, err
	}
	return p.account(ctx, total, address)
}

func (p *Pool) account(ctx context.Context, total *Totals, address types.Address) (*Account, error) {
	a := &Account{Address: address, total: total, pool: p}
	s := p.store
	now := total.Now
	var err error

	// Timestamps
	if a.Updated, err = getMoment(ctx, s, userKey(nsUserUpdated, address), now); err != nil {
		return nil, err
	}
	if now < a.Updated {
		return nil, fmt.Errorf("%w: account updated at %d, now is %d", ErrTimeTravel, a.Updated, now)
	}
	elapsed := accrualEnd(now, total.Closed).Since(a.Updated)

	// Liquidity and liquidity share
	if a.Entry, err = getVolume(ctx, s, userKey(nsUserEntry, address), total.Volume); err != nil {
		return nil, err
	}
	if a.Entry.Gt(total.Volume) {
		return nil, fmt.Errorf("%w: entry %s beyond pool volume %s", ErrTimeTravel, a.Entry, total.Volume)
	}
	if a.Staked, err = getAmount(ctx, s, userKey(nsUserStaked, address)); err != nil {
		return nil, err
	}
	lastVolume, err := getVolume(ctx, s, userKey(nsUserVolume, address), fixed.Volume{})
	if err != nil {
		return nil, err
	}
	if a.Volume, err = fixed.Accumulate(lastVolume, uint64(elapsed), a.Staked); err != nil {
		return nil, err
	}
	a.PoolShare = fixed.AmountRatio(a.Staked, total.Staked)
	denominator, err := total.Volume.Sub(a.Entry)
	if err != nil {
		return nil, err
	}
	a.RewardShare = fixed.NewRatio(a.Volume, denominator)

	// Rewards. Earned can shrink when other accounts' volume grows faster.
	if !a.RewardShare.IsUndefined() {
		if a.Earned, err = total.Budget.MulRatio(a.RewardShare.Num, a.RewardShare.Den); err != nil {
			return nil, err
		}
	}
	if a.Claimed, err = getAmount(ctx, s, userKey(nsUserClaimed, address)); err != nil {
		return nil, err
	}
	a.Claimable = fixed.MinAmount(total.Budget, a.Earned)
	a.Reason = a.zeroReason()

	// Bonding counts down only while something is staked
	if a.Bonding, err = getDuration(ctx, s, userKey(nsUserBonding, address), total.Bonding); err != nil {
		return nil, err
	}
	if !a.Staked.IsZero() {
		a.Bonding = a.Bonding.SatSub(elapsed)
	}

	if total.AgeThreshold != nil {
		present, err := getDuration(ctx, s, userKey(nsUserPresent, address), 0)
		if err != nil {
			return nil, err
		}
		if !a.Staked.IsZero() {
			present += elapsed
		}
		a.Age = &AgeAccount{Present: present, Remaining: total.AgeThreshold.Threshold.SatSub(present)}
	}
	return a, nil
}

func (a *Account) zeroReason() string {
	switch {
	case !a.Earned.IsZero():
		return ""
	case a.total.Budget.IsZero():
		return ReasonPoolEmpty
	case a.Staked.IsZero() && a.Volume.IsZero():
		return ReasonNotLocked
	case a.RewardShare.IsUndefined():
		return ReasonNoLiquidity
	default:
		return ReasonCrowdedOut
	}
}

// Totals returns the pool projection this account was computed against
func (a *Account) Totals() *Totals { return a.total }

func (a *Account) key(ns []byte) []byte { return userKey(ns, a.Address) }

func (a *Account) deposit(ctx context.Context, amount fixed.Amount) (*Response, error) {
	if a.total.Closed != nil {
		return a.forceExit(ctx)
	}
	return a.incrementStake(ctx, amount)
}

func (a *Account) incrementStake(ctx context.Context, amount fixed.Amount) (*Response, error) {
	lp, err := a.total.config.lpTokenContract()
	if err != nil {
		return nil, err
	}
	if err := a.commitElapsed(ctx); err != nil {
		return nil, err
	}

	if a.Staked, err = a.Staked.Add(amount); err != nil {
		return nil, err
	}
	if err := setAmount(ctx, a.pool, a.key(nsUserStaked), a.Staked); err != nil {
		return nil, err
	}

	if a.total.Staked, err = a.total.Staked.Add(amount); err != nil {
		return nil, err
	}
	if err := setAmount(ctx, a.pool, keyTotalStaked, a.total.Staked); err != nil {
		return nil, err
	}

	if l := a.total.Liquidity; l != nil && l.Populated == nil {
		now := a.total.Now
		l.Populated = &now
		if err := setJSON(ctx, a.pool.store, keyTotalPopulated, now); err != nil {
			return nil, err
		}
	}

	resp := &Response{}
	resp.msg(lp.TransferFrom(a.Address, a.total.config.self.Address, amount))
	return resp, nil
}

func (a *Account) withdraw(ctx context.Context, amount fixed.Amount) (*Response, error) {
	switch {
	case a.total.Closed != nil:
		return a.forceExit(ctx)
	case a.Staked.Lt(amount):
		return nil, &StakeError{Staked: a.Staked, Requested: amount}
	case a.total.Staked.Lt(amount):
		return nil, inconsistency("pool staked %s below withdrawal %s", a.total.Staked, amount)
	default:
		return a.decrementStake(ctx, amount)
	}
}

func (a *Account) decrementStake(ctx context.Context, amount fixed.Amount) (*Response, error) {
	lp, err := a.total.config.lpTokenContract()
	if err != nil {
		return nil, err
	}
	if err := a.commitElapsed(ctx); err != nil {
		return nil, err
	}

	if a.Staked, err = a.Staked.Sub(amount); err != nil {
		return nil, err
	}
	if err := setAmount(ctx, a.pool, a.key(nsUserStaked), a.Staked); err != nil {
		return nil, err
	}

	remaining, err := a.total.Staked.Sub(amount)
	if err != nil {
		return nil, inconsistency("pool staked %s below withdrawal %s", a.total.Staked, amount)
	}
	a.total.Staked = remaining
	if err := setAmount(ctx, a.pool, keyTotalStaked, a.total.Staked); err != nil {
		return nil, err
	}

	resp := &Response{}
	if a.Staked.IsZero() {
		if a.mayClaim() {
			if resp, err = a.commitClaim(ctx); err != nil {
				return nil, err
			}
		} else if err := a.reset(ctx); err != nil {
			return nil, err
		}
	}
	if !amount.IsZero() {
		resp.msg(lp.Transfer(a.Address, amount))
	}
	return resp, nil
}

// mayClaim reports whether both the bonding period and the age threshold
// have elapsed
func (a *Account) mayClaim() bool {
	return a.Bonding == 0 && (a.Age == nil || a.Age.Remaining == 0)
}

func (a *Account) claim(ctx context.Context) (*Response, error) {
	switch {
	case a.total.Closed != nil:
		return a.forceExit(ctx)
	case a.Bonding > 0:
		return nil, &BondingError{Reason: ErrStillBonding, Remaining: a.Bonding}
	case a.Age != nil && a.Age.Remaining > 0:
		return nil, &BondingError{Reason: ErrAgeThreshold, Remaining: a.Age.Remaining}
	case a.total.Budget.IsZero():
		return nil, ErrPoolEmpty
	case a.Claimable.IsZero():
		return nil, ErrNothingToClaim
	}
	if err := a.commitElapsed(ctx); err != nil {
		return nil, err
	}
	return a.commitClaim(ctx)
}

// forceExit returns the whole stake of the account from a closed pool
func (a *Account) forceExit(ctx context.Context) (*Response, error) {
	seal := a.total.Closed
	if seal == nil {
		return nil, inconsistency("forced exit from open pool %s", a.pool.ID)
	}
	resp, err := a.decrementStake(ctx, a.Staked)
	if err != nil {
		return nil, err
	}
	resp.log("close_time", fmt.Sprintf("%d", seal.Time))
	resp.log("close_reason", seal.Reason)
	return resp, nil
}

// commitElapsed stores the projected accumulators of account and pool as
// their new baseline
func (a *Account) commitElapsed(ctx context.Context) error {
	if a.Staked.IsZero() {
		if err := a.reset(ctx); err != nil {
			return err
		}
	} else {
		s := a.pool.store
		if err := setU64(ctx, s, a.key(nsUserBonding), uint64(a.Bonding)); err != nil {
			return err
		}
		if err := setVolume(ctx, a.pool, a.key(nsUserVolume), a.Volume); err != nil {
			return err
		}
		if err := a.commitUpdated(ctx); err != nil {
			return err
		}
	}
	return a.pool.commitTotals(ctx, a.total)
}

func (a *Account) commitClaim(ctx context.Context) (*Response, error) {
	amount := a.Claimable
	if err := a.reset(ctx); err != nil {
		return nil, err
	}
	resp := &Response{}
	if amount.IsZero() {
		return resp, nil
	}

	var err error
	if a.total.Distributed, err = a.total.Distributed.Add(amount); err != nil {
		return nil, err
	}
	if err := setAmount(ctx, a.pool, keyTotalDistributed, a.total.Distributed); err != nil {
		return nil, err
	}
	if a.Claimed, err = a.Claimed.Add(amount); err != nil {
		return nil, err
	}
	if err := setAmount(ctx, a.pool, a.key(nsUserClaimed), a.Claimed); err != nil {
		return nil, err
	}
	a.total.Budget = a.total.Budget.SatSub(amount)
	a.Earned, a.Claimable = fixed.Amount{}, fixed.Amount{}

	resp.msg(a.total.config.rewardTokenContract().Transfer(a.Address, amount))
	resp.log("reward", amount.String())
	return resp, nil
}

// reset restarts the account's contribution from the pool's current volume
func (a *Account) reset(ctx context.Context) error {
	a.Entry = a.total.Volume
	a.Bonding = a.total.Bonding
	a.Volume = fixed.Volume{}
	s := a.pool.store
	if err := setVolume(ctx, a.pool, a.key(nsUserEntry), a.Entry); err != nil {
		return err
	}
	if err := setU64(ctx, s, a.key(nsUserBonding), uint64(a.Bonding)); err != nil {
		return err
	}
	if err := setVolume(ctx, a.pool, a.key(nsUserVolume), a.Volume); err != nil {
		return err
	}
	return a.commitUpdated(ctx)
}

func (a *Account) commitUpdated(ctx context.Context) error {
	a.Updated = a.total.Now
	if err := setU64(ctx, a.pool.store, a.key(nsUserUpdated), uint64(a.Updated)); err != nil {
		return err
	}
	if a.Age != nil {
		return setU64(ctx, a.pool.store, a.key(nsUserPresent), uint64(a.Age.Present))
	}
	return nil
}
