package rewards

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var (
	lpToken     = types.ContractLink{Address: "lp-token", CodeHash: "lp"}
	rewardToken = types.ContractLink{Address: "reward-token", CodeHash: "reward"}
	escrow      = types.ContractLink{Address: "pool-escrow", CodeHash: "rewards"}
)

const admin types.Address = "admin"

type harness struct {
	ctx    context.Context
	store  *store.Memory
	ledger *token.Ledger
	auth   *auth.Auth
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	a := auth.New(mem)
	require.NoError(t, a.InitAdmin(ctx, admin))
	ledger := token.NewLedger(mem)
	return &harness{ctx: ctx, store: mem, ledger: ledger, auth: a, engine: New(mem, ledger, a)}
}

func (h *harness) dispatch(t *testing.T, resp *Response, now types.Moment) {
	t.Helper()
	for _, m := range resp.Messages {
		require.NoError(t, h.ledger.Execute(h.ctx, m, now), m.String())
	}
}

func (h *harness) createPool(t *testing.T, id string, bonding types.Duration, cfg InitConfig) *Pool {
	t.Helper()
	if cfg.LPToken == nil {
		lp := lpToken
		cfg.LPToken = &lp
	}
	if cfg.RewardToken.IsZero() {
		cfg.RewardToken = rewardToken
	}
	if cfg.RewardVK == "" {
		cfg.RewardVK = "escrow-vk"
	}
	cfg.Bonding = &bonding
	self := escrow
	self.Address = types.Address(string(escrow.Address) + "-" + id)
	resp, err := h.engine.InitPool(h.ctx, id, self, cfg)
	require.NoError(t, err)
	h.dispatch(t, resp, 0)
	p, err := h.engine.Pool(h.ctx, id)
	require.NoError(t, err)
	return p
}

func (h *harness) fundBudget(t *testing.T, p *Pool, amount uint64) {
	t.Helper()
	self, err := p.Escrow(h.ctx)
	require.NoError(t, err)
	cfg, err := p.loadConfig(h.ctx)
	require.NoError(t, err)
	require.NoError(t, h.ledger.Mint(h.ctx, cfg.rewardToken, self.Address, fixed.NewAmount(amount)))
}

func (h *harness) user(t *testing.T, p *Pool, address types.Address) {
	t.Helper()
	self, err := p.Escrow(h.ctx)
	require.NoError(t, err)
	require.NoError(t, h.ledger.Mint(h.ctx, lpToken, address, fixed.NewAmount(1_000_000)))
	approve := token.Attach(lpToken, address).IncreaseAllowance(self.Address, fixed.MaxAmount(), nil)
	require.NoError(t, h.ledger.Execute(h.ctx, approve, 0))
	require.NoError(t, h.auth.SetViewingKey(h.ctx, address, string(address)+"-key"))
}

func (h *harness) lock(t *testing.T, p *Pool, who types.Address, amount uint64, now types.Moment) *Response {
	t.Helper()
	resp, err := p.Lock(h.ctx, types.Env{Time: now, Sender: who}, fixed.NewAmount(amount))
	require.NoError(t, err)
	h.dispatch(t, resp, now)
	return resp
}

func (h *harness) retrieve(t *testing.T, p *Pool, who types.Address, amount uint64, now types.Moment) *Response {
	t.Helper()
	resp, err := p.Retrieve(h.ctx, types.Env{Time: now, Sender: who}, fixed.NewAmount(amount))
	require.NoError(t, err)
	h.dispatch(t, resp, now)
	return resp
}

func (h *harness) status(t *testing.T, p *Pool, who types.Address, now types.Moment) *Status {
	t.Helper()
	st, err := p.Status(h.ctx, now, who, string(who)+"-key")
	require.NoError(t, err)
	return st
}

func (h *harness) balance(t *testing.T, link types.ContractLink, who types.Address) string {
	t.Helper()
	b, err := h.ledger.BalanceOf(h.ctx, link, who)
	require.NoError(t, err)
	return b.String()
}

func TestSingleStaker_EarnsWholeBudget(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	const t0 = types.Moment(100)
	h.lock(t, p, "alice", 3600, t0)

	st := h.status(t, p, "alice", t0)
	assert.Equal(t, "0", st.Total.Volume.String())
	assert.Equal(t, "0", st.Account.Volume.String())
	assert.Equal(t, "3600", st.Total.Staked.String())

	st = h.status(t, p, "alice", t0+10)
	assert.Equal(t, "36000", st.Total.Volume.String())
	assert.Equal(t, "36000", st.Account.Volume.String())
	assert.Equal(t, "36000", st.Account.RewardShare.Num.String())
	assert.Equal(t, "36000", st.Account.RewardShare.Den.String())
	assert.Equal(t, "1000", st.Total.Budget.String())
	assert.Equal(t, "1000", st.Account.Earned.String())
	assert.Equal(t, "1000", st.Account.Claimable.String())

	resp, err := p.Claim(h.ctx, types.Env{Time: t0 + 10, Sender: "alice"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, token.KindTransfer, resp.Messages[0].Kind)
	assert.Equal(t, rewardToken.Address, resp.Messages[0].Token.Address)
	h.dispatch(t, resp, t0+10)

	assert.Equal(t, "1000", h.balance(t, rewardToken, "alice"))
	st = h.status(t, p, "alice", t0+10)
	assert.Equal(t, "1000", st.Total.Distributed.String())
	assert.Equal(t, "1000", st.Total.Unlocked.String())
	assert.Equal(t, "1000", st.Account.Claimed.String())
	assert.True(t, st.Account.Claimable.IsZero())
	assert.Equal(t, ReasonPoolEmpty, st.Account.Reason)
}

func TestTwoStakers_ShareProportionally(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.user(t, p, "bob")
	h.fundBudget(t, p, 1000)

	const t0 = types.Moment(50)
	h.lock(t, p, "alice", 100, t0)
	h.lock(t, p, "bob", 300, t0)

	a := h.status(t, p, "alice", t0+10)
	b := h.status(t, p, "bob", t0+10)

	assert.Equal(t, "4000", a.Total.Volume.String())
	assert.Equal(t, "1000", a.Account.Volume.String())
	assert.Equal(t, "3000", b.Account.Volume.String())
	assert.InDelta(t, 0.25, a.Account.RewardShare.Float64(), 1e-9)
	assert.InDelta(t, 0.75, b.Account.RewardShare.Float64(), 1e-9)
	assert.InDelta(t, 0.25, a.Account.PoolShare.Float64(), 1e-9)
	assert.Equal(t, "250", a.Account.Earned.String())
	assert.Equal(t, "750", b.Account.Earned.String())
}

func TestClose_ForcesExitAndFreezesAccrual(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.user(t, p, "bob")
	h.fundBudget(t, p, 1000)

	h.lock(t, p, "alice", 100, 100)

	_, err := p.Close(h.ctx, types.Env{Time: 110, Sender: "alice"}, "emergency")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = p.Close(h.ctx, types.Env{Time: 110, Sender: admin}, "emergency")
	require.NoError(t, err)
	_, err = p.Close(h.ctx, types.Env{Time: 111, Sender: admin}, "again")
	require.ErrorIs(t, err, ErrPoolClosed)

	st := h.status(t, p, "alice", 500)
	assert.Equal(t, "1000", st.Total.Volume.String())
	assert.Equal(t, "1000", st.Account.Volume.String())
	require.NotNil(t, st.Total.Closed)
	assert.Equal(t, types.Moment(110), st.Total.Closed.Time)
	assert.Equal(t, "emergency", st.Total.Closed.Reason)

	lpBefore := h.balance(t, lpToken, "alice")
	resp := h.lock(t, p, "alice", 50, 120)
	for _, m := range resp.Messages {
		assert.NotEqual(t, token.KindTransferFrom, m.Kind)
	}
	assert.Contains(t, resp.Logs, types.Log{Key: "close_reason", Value: "emergency"})
	assert.Contains(t, resp.Logs, types.Log{Key: "close_time", Value: "110"})
	assert.Equal(t, "1000000", h.balance(t, lpToken, "alice"))
	assert.NotEqual(t, lpBefore, h.balance(t, lpToken, "alice"))
	assert.Equal(t, "1000", h.balance(t, rewardToken, "alice"))

	st = h.status(t, p, "alice", 130)
	assert.True(t, st.Total.Staked.IsZero())
	assert.True(t, st.Account.Staked.IsZero())
	assert.Equal(t, "1000", st.Total.Volume.String())

	// an account with nothing locked gets nothing back and deposits nothing
	resp = h.lock(t, p, "bob", 50, 140)
	assert.Empty(t, resp.Messages)
	assert.Equal(t, "1000000", h.balance(t, lpToken, "bob"))

	resp, err = p.Retrieve(h.ctx, types.Env{Time: 150, Sender: "bob"}, fixed.NewAmount(1))
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
	resp, err = p.Claim(h.ctx, types.Env{Time: 150, Sender: "bob"})
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
}

func TestClaim_NothingToClaimLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)
	h.lock(t, p, "alice", 100, 10)

	before := h.store.Snapshot()
	_, err := p.Claim(h.ctx, types.Env{Time: 10, Sender: "alice"})
	require.ErrorIs(t, err, ErrNothingToClaim)
	assert.Equal(t, before, h.store.Snapshot())

	_, err = p.Claim(h.ctx, types.Env{Time: 10, Sender: "alice"})
	require.ErrorIs(t, err, ErrNothingToClaim)
	assert.Equal(t, before, h.store.Snapshot())
}

func TestClaim_PoolEmpty(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.lock(t, p, "alice", 100, 10)

	before := h.store.Snapshot()
	_, err := p.Claim(h.ctx, types.Env{Time: 20, Sender: "alice"})
	require.ErrorIs(t, err, ErrPoolEmpty)
	assert.Equal(t, before, h.store.Snapshot())

	st := h.status(t, p, "alice", 20)
	assert.Equal(t, ReasonPoolEmpty, st.Account.Reason)
}

func TestClaim_BondingGate(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 100, InitConfig{})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	const t0 = types.Moment(1000)
	h.lock(t, p, "alice", 100, t0)

	before := h.store.Snapshot()
	_, err := p.Claim(h.ctx, types.Env{Time: t0 + 50, Sender: "alice"})
	require.ErrorIs(t, err, ErrStillBonding)
	var bondingErr *BondingError
	require.True(t, errors.As(err, &bondingErr))
	assert.Equal(t, types.Duration(50), bondingErr.Remaining)
	assert.Equal(t, before, h.store.Snapshot())

	resp, err := p.Claim(h.ctx, types.Env{Time: t0 + 100, Sender: "alice"})
	require.NoError(t, err)
	h.dispatch(t, resp, t0+100)
	assert.Equal(t, "1000", h.balance(t, rewardToken, "alice"))

	// bonding restarts after a claim
	st := h.status(t, p, "alice", t0+100)
	assert.Equal(t, types.Duration(100), st.Account.Bonding)
}

func TestBonding_HoldsWhileNothingStaked(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 100, InitConfig{})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	h.lock(t, p, "alice", 100, 0)
	h.retrieve(t, p, "alice", 100, 30)

	st := h.status(t, p, "alice", 500)
	assert.Equal(t, types.Duration(100), st.Account.Bonding)
	assert.True(t, st.Account.Volume.IsZero())
}

func TestRetrieve_Errors(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.lock(t, p, "alice", 100, 10)

	_, err := p.Retrieve(h.ctx, types.Env{Time: 20, Sender: "alice"}, fixed.NewAmount(101))
	require.ErrorIs(t, err, ErrInsufficientStake)
	var stakeErr *StakeError
	require.True(t, errors.As(err, &stakeErr))
	assert.Equal(t, "100", stakeErr.Staked.String())
	assert.Equal(t, "101", stakeErr.Requested.String())

	_, err = p.Retrieve(h.ctx, types.Env{Time: 20, Sender: "alice"}, fixed.Amount{})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = p.Lock(h.ctx, types.Env{Time: 20, Sender: "alice"}, fixed.Amount{})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// corrupt the pool total below the account's stake
	require.NoError(t, p.store.Set(h.ctx, keyTotalStaked, fixed.NewAmount(10).Bytes()))
	_, err = p.Retrieve(h.ctx, types.Env{Time: 20, Sender: "alice"}, fixed.NewAmount(50))
	require.ErrorIs(t, err, ErrInternalInconsistency)
	assert.False(t, errors.Is(err, ErrInsufficientStake))
}

func TestRetrieve_AutoClaimsWhenFullyOut(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	h.lock(t, p, "alice", 100, 10)
	resp := h.retrieve(t, p, "alice", 40, 20)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "0", h.balance(t, rewardToken, "alice"))

	resp = h.retrieve(t, p, "alice", 60, 30)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, token.KindTransfer, resp.Messages[0].Kind)
	assert.Equal(t, rewardToken.Address, resp.Messages[0].Token.Address)
	assert.Equal(t, lpToken.Address, resp.Messages[1].Token.Address)
	assert.Equal(t, "1000", h.balance(t, rewardToken, "alice"))
	assert.Equal(t, "1000000", h.balance(t, lpToken, "alice"))
}

func TestTimeTravel(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.lock(t, p, "alice", 100, 100)

	_, err := p.Status(h.ctx, 50, "", "")
	require.ErrorIs(t, err, ErrTimeTravel)

	_, err = p.Lock(h.ctx, types.Env{Time: 90, Sender: "alice"}, fixed.NewAmount(1))
	require.ErrorIs(t, err, ErrTimeTravel)

	// an account entry beyond the pool's volume cannot be projected
	require.NoError(t, p.store.Set(h.ctx, userKey(nsUserEntry, "alice"), fixed.NewVolume(1<<40).Bytes()))
	_, err = p.Account(h.ctx, 110, "alice")
	require.ErrorIs(t, err, ErrTimeTravel)
}

func TestStatus_ViewingKey(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")

	_, err := p.Status(h.ctx, 10, "alice", "")
	require.ErrorIs(t, err, ErrMissingViewingKey)
	_, err = p.Status(h.ctx, 10, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	st, err := p.Status(h.ctx, 10, "", "")
	require.NoError(t, err)
	assert.Nil(t, st.Account)
	assert.Equal(t, types.Duration(0), st.Total.Bonding)
}

func TestSingleSidedStaking_ExcludesPrincipal(t *testing.T) {
	h := newHarness(t)
	lp := lpToken
	p := h.createPool(t, "single", 0, InitConfig{RewardToken: lpToken, LPToken: &lp})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 500)

	h.lock(t, p, "alice", 100, 10)
	st := h.status(t, p, "alice", 20)
	assert.Equal(t, "500", st.Total.Budget.String())
	assert.Equal(t, "500", st.Account.Earned.String())

	resp, err := p.Claim(h.ctx, types.Env{Time: 20, Sender: "alice"})
	require.NoError(t, err)
	h.dispatch(t, resp, 20)

	st = h.status(t, p, "alice", 20)
	assert.True(t, st.Total.Budget.IsZero())
	assert.Equal(t, "100", st.Total.Staked.String())
}

func TestConservationAndMonotonicVolume(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.fundBudget(t, p, 1_000_000)
	users := []types.Address{"alice", "bob", "carol", "dave"}
	for _, u := range users {
		h.user(t, p, u)
	}

	rng := rand.New(rand.NewSource(7))
	now := types.Moment(1)
	lastPool := fixed.Volume{}
	lastAccount := map[types.Address]*Account{}
	stakes := map[types.Address]int{}

	for step := 0; step < 300; step++ {
		now += types.Moment(rng.Intn(20))
		who := users[rng.Intn(len(users))]

		if rng.Intn(2) == 0 || stakes[who] == 0 {
			amount := 1 + rng.Intn(500)
			h.lock(t, p, who, uint64(amount), now)
			stakes[who] += amount
		} else {
			amount := 1 + rng.Intn(stakes[who])
			h.retrieve(t, p, who, uint64(amount), now)
			stakes[who] -= amount
		}

		total, err := p.Totals(h.ctx, now)
		require.NoError(t, err)
		sum := fixed.Amount{}
		for _, u := range users {
			acct, err := p.Account(h.ctx, now, u)
			require.NoError(t, err)
			sum, err = sum.Add(acct.Staked)
			require.NoError(t, err)
			assert.True(t, acct.Staked.Equal(fixed.NewAmount(uint64(stakes[u]))))

			assert.True(t, acct.Claimable.Cmp(total.Budget) <= 0)
			assert.True(t, acct.Claimable.Equal(fixed.MinAmount(total.Budget, acct.Earned)))
			if prev := lastAccount[u]; prev != nil && !prev.Staked.IsZero() && !acct.Staked.IsZero() && u != who {
				assert.False(t, acct.Volume.Lt(prev.Volume), "account volume decreased for %s", u)
			}
			lastAccount[u] = acct
		}
		assert.True(t, total.Staked.Equal(sum), "step %d: pool staked %s != sum %s", step, total.Staked, sum)
		assert.False(t, total.Volume.Lt(lastPool), "pool volume decreased at step %d", step)
		lastPool = total.Volume
	}
}

func TestConfigure(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})

	bonding := types.Duration(42)
	_, err := p.Configure(h.ctx, types.Env{Time: 1, Sender: "alice"}, ConfigUpdate{Bonding: &bonding})
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	resp, err := p.Configure(h.ctx, types.Env{Time: 1, Sender: admin}, ConfigUpdate{Bonding: &bonding})
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)

	next := types.ContractLink{Address: "reward-v2"}
	resp, err = p.Configure(h.ctx, types.Env{Time: 2, Sender: admin}, ConfigUpdate{RewardToken: &next})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, token.KindSetViewingKey, resp.Messages[0].Kind)
	assert.Equal(t, next.Address, resp.Messages[0].Token.Address)
	assert.Equal(t, "escrow-vk", resp.Messages[0].Key)
	h.dispatch(t, resp, 2)

	st, err := p.Status(h.ctx, 3, "", "")
	require.NoError(t, err)
	assert.Equal(t, types.Duration(42), st.Total.Bonding)
	assert.True(t, st.Total.Budget.IsZero())

	vk := "rotated"
	resp, err = p.Configure(h.ctx, types.Env{Time: 3, Sender: admin}, ConfigUpdate{RewardVK: &vk})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "rotated", resp.Messages[0].Key)
	assert.Equal(t, next.Address, resp.Messages[0].Token.Address)
}

func TestDrain(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.fundBudget(t, p, 300)

	req := DrainRequest{Token: rewardToken, Key: "drain-vk"}
	_, err := p.Drain(h.ctx, types.Env{Time: 5, Sender: "alice"}, req)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	resp, err := p.Drain(h.ctx, types.Env{Time: 5, Sender: admin}, req)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	allowance := resp.Messages[0]
	assert.Equal(t, token.KindIncreaseAllowance, allowance.Kind)
	assert.Equal(t, admin, allowance.Recipient)
	assert.True(t, allowance.Amount.Equal(fixed.MaxAmount()))
	require.NotNil(t, allowance.Expiration)
	assert.Equal(t, types.Moment(5)+types.Moment(DrainAllowanceDuration), *allowance.Expiration)
	assert.Equal(t, token.KindSetViewingKey, resp.Messages[1].Kind)
	h.dispatch(t, resp, 5)

	// the new key is used for budget queries
	st, err := p.Status(h.ctx, 6, "", "")
	require.NoError(t, err)
	assert.Equal(t, "300", st.Total.Budget.String())

	self, err := p.Escrow(h.ctx)
	require.NoError(t, err)
	pull := token.Attach(rewardToken, admin).TransferFrom(self.Address, admin, fixed.NewAmount(300))
	require.NoError(t, h.ledger.Execute(h.ctx, pull, 7))
	assert.Equal(t, "300", h.balance(t, rewardToken, admin))
}

func TestInitPool_Validation(t *testing.T) {
	h := newHarness(t)
	h.createPool(t, "lp-token", 0, InitConfig{})

	lp := lpToken
	_, err := h.engine.InitPool(h.ctx, "", escrow, InitConfig{LPToken: &lp, RewardToken: rewardToken})
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = h.engine.InitPool(h.ctx, "bad/id", escrow, InitConfig{RewardToken: rewardToken})
	require.ErrorIs(t, err, ErrInvalidPool)

	_, err = h.engine.InitPool(h.ctx, "other", escrow, InitConfig{})
	require.ErrorIs(t, err, ErrInvalidPool)

	_, err = h.engine.InitPool(h.ctx, "other", escrow, InitConfig{
		RewardToken: rewardToken,
		Variant:     Settings{Variant: VariantAgeThreshold},
	})
	require.ErrorIs(t, err, ErrInvalidPool)

	_, err = h.engine.Pool(h.ctx, "missing")
	require.ErrorIs(t, err, ErrUnknownPool)

	ids, err := h.engine.Pools(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lp-token"}, ids)

	// bonding defaults to a day
	resp, err := h.engine.InitPool(h.ctx, "daily", escrow, InitConfig{RewardToken: rewardToken, RewardVK: "vk"})
	require.NoError(t, err)
	h.dispatch(t, resp, 0)
	p, err := h.engine.Pool(h.ctx, "daily")
	require.NoError(t, err)
	st, err := p.Status(h.ctx, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, types.Day, st.Total.Bonding)
	assert.Equal(t, VariantBonding, st.Total.Variant)

	ids, err = h.engine.Pools(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily", "lp-token"}, ids)

	// without an lp token nothing can be locked
	_, err = p.Lock(h.ctx, types.Env{Time: 1, Sender: "alice"}, fixed.NewAmount(1))
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestVariant_AgeThreshold(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "aged", 0, InitConfig{
		Variant: Settings{Variant: VariantAgeThreshold, AgeThreshold: &AgeThresholdConfig{Threshold: 50}},
	})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	h.lock(t, p, "alice", 100, 10)

	_, err := p.Claim(h.ctx, types.Env{Time: 40, Sender: "alice"})
	require.ErrorIs(t, err, ErrAgeThreshold)
	var bondingErr *BondingError
	require.True(t, errors.As(err, &bondingErr))
	assert.Equal(t, types.Duration(20), bondingErr.Remaining)

	st := h.status(t, p, "alice", 40)
	require.NotNil(t, st.Account.Age)
	assert.Equal(t, types.Duration(30), st.Account.Age.Present)
	require.NotNil(t, st.Total.AgeThreshold)

	resp, err := p.Claim(h.ctx, types.Env{Time: 60, Sender: "alice"})
	require.NoError(t, err)
	h.dispatch(t, resp, 60)
	assert.Equal(t, "1000", h.balance(t, rewardToken, "alice"))

	// presence is never reset by claims
	st = h.status(t, p, "alice", 70)
	assert.Equal(t, types.Duration(60), st.Account.Age.Present)
}

func TestVariant_AgeThresholdHoldsOnFullWithdrawal(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "aged", 0, InitConfig{
		Variant: Settings{Variant: VariantAgeThreshold, AgeThreshold: &AgeThresholdConfig{Threshold: 50}},
	})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 1000)

	h.lock(t, p, "alice", 100, 10)
	_, err := p.Claim(h.ctx, types.Env{Time: 20, Sender: "alice"})
	require.ErrorIs(t, err, ErrAgeThreshold)

	resp := h.retrieve(t, p, "alice", 100, 20)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, lpToken.Address, resp.Messages[0].Token.Address)
	assert.Equal(t, "0", h.balance(t, rewardToken, "alice"))
	assert.Equal(t, "1000000", h.balance(t, lpToken, "alice"))

	st := h.status(t, p, "alice", 20)
	assert.True(t, st.Account.Volume.IsZero())
	assert.True(t, st.Account.Claimed.IsZero())
	assert.Equal(t, types.Duration(10), st.Account.Age.Present)
	assert.True(t, st.Total.Distributed.IsZero())
}

func TestClaimable_FloorsAtZeroWhenCrowdedOut(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "lp-token", 0, InitConfig{})
	h.user(t, p, "alice")
	h.user(t, p, "bob")
	h.fundBudget(t, p, 10)

	h.lock(t, p, "alice", 10, 0)
	st := h.status(t, p, "alice", 10)
	assert.Equal(t, "10", st.Account.Earned.String())
	assert.Equal(t, "10", st.Account.Claimable.String())

	h.lock(t, p, "bob", 10_000, 10)

	// 10 * 200 / 100200 rounds down to zero
	st = h.status(t, p, "alice", 20)
	assert.Equal(t, "100200", st.Total.Volume.String())
	assert.Equal(t, "200", st.Account.Volume.String())
	assert.True(t, st.Account.Earned.IsZero())
	assert.True(t, st.Account.Claimable.IsZero())
	assert.Equal(t, ReasonCrowdedOut, st.Account.Reason)

	before := h.store.Snapshot()
	_, err := p.Claim(h.ctx, types.Env{Time: 20, Sender: "alice"})
	require.ErrorIs(t, err, ErrNothingToClaim)
	assert.Equal(t, before, h.store.Snapshot())
}

func TestVariant_LiquidityRatio(t *testing.T) {
	h := newHarness(t)
	p := h.createPool(t, "ratio", 1000, InitConfig{Variant: Settings{Variant: VariantLiquidityRatio}})
	h.user(t, p, "alice")
	h.fundBudget(t, p, 900)

	st, err := p.Status(h.ctx, 5, "", "")
	require.NoError(t, err)
	require.NotNil(t, st.Total.Liquidity)
	assert.Nil(t, st.Total.Liquidity.Populated)
	assert.Equal(t, "900", st.Total.Budget.String())

	h.lock(t, p, "alice", 100, 10)
	h.retrieve(t, p, "alice", 100, 20)

	st, err = p.Status(h.ctx, 40, "", "")
	require.NoError(t, err)
	require.NotNil(t, st.Total.Liquidity.Populated)
	assert.Equal(t, types.Moment(10), *st.Total.Liquidity.Populated)
	assert.Equal(t, types.Duration(10), st.Total.Liquidity.Liquid)
	assert.Equal(t, "300", st.Total.Budget.String())
}

func TestSimulateClaims(t *testing.T) {
	h := newHarness(t)
	a := h.createPool(t, "pool-a", 0, InitConfig{})
	b := h.createPool(t, "pool-b", 100, InitConfig{})
	c := h.createPool(t, "pool-c", 0, InitConfig{})
	h.user(t, a, "alice")
	h.user(t, b, "alice")
	h.user(t, c, "alice")
	h.fundBudget(t, a, 1000)
	h.fundBudget(t, b, 1000)

	h.lock(t, a, "alice", 10, 0)
	h.lock(t, b, "alice", 10, 0)

	_, err := h.engine.SimulateClaims(h.ctx, []string{"pool-a"}, "alice", "", 10)
	require.ErrorIs(t, err, ErrMissingViewingKey)

	before := h.store.Snapshot()
	sim, err := h.engine.SimulateClaims(h.ctx, []string{"pool-a", "pool-b", "pool-c"}, "alice", "alice-key", 10)
	require.NoError(t, err)
	assert.Equal(t, before, h.store.Snapshot())

	require.Len(t, sim.Results, 3)
	assert.Nil(t, sim.Results[0].Error)
	assert.Equal(t, "1000", sim.Results[0].Reward.String())
	require.NotNil(t, sim.Results[1].Error)
	assert.Equal(t, ClaimEarly, sim.Results[1].Error.Kind)
	assert.Equal(t, types.Duration(90), sim.Results[1].Error.TimeToWait)
	require.NotNil(t, sim.Results[2].Error)
	assert.Equal(t, ClaimPoolEmpty, sim.Results[2].Error.Kind)
	assert.Equal(t, "1000", sim.Total.String())

	_, err = h.engine.SimulateClaims(h.ctx, []string{"nope"}, "alice", "alice-key", 10)
	require.ErrorIs(t, err, ErrUnknownPool)
}
