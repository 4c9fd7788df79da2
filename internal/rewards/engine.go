// Package rewards implements liquidity-mining accounting: each pool tracks
// the time integral of its stake, each account the integral of its own, and
// an account's reward is the pool's budget pro-rated by the ratio of the two.
//
// Nothing is iterated over: every operation projects the stored accumulators
// to the current moment, mutates them and writes them back.
package rewards

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var keyPoolIndex = []byte("/pools")

var poolIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidPoolID reports whether id can name a pool
func ValidPoolID(id string) bool { return poolIDPattern.MatchString(id) }

// DrainAllowanceDuration is how long a Drain allowance stays valid
const DrainAllowanceDuration = types.Day * 10000

// Response is the result of a transaction: messages to dispatch, in order,
// and log attributes
type Response struct {
	Messages []token.Message `json:"messages,omitempty"`
	Logs     []types.Log     `json:"logs,omitempty"`
}

func (r *Response) msg(m token.Message) { r.Messages = append(r.Messages, m) }

func (r *Response) log(key, value string) {
	r.Logs = append(r.Logs, types.Log{Key: key, Value: value})
}

// Engine hosts any number of pools over one store
type Engine struct {
	store   store.Store
	querier token.Querier
	auth    *auth.Auth
}

// New creates an Engine. Budgets are resolved through querier.
func New(s store.Store, querier token.Querier, a *auth.Auth) *Engine {
	return &Engine{store: s, querier: querier, auth: a}
}

// Pool is a handle on one pool's namespaced state
type Pool struct {
	ID     string
	store  store.Store
	engine *Engine
}

func (e *Engine) handle(id string) *Pool {
	return &Pool{ID: id, store: store.Prefix(e.store, "/pool/"+id+"/"), engine: e}
}

// Pool returns the pool with the given id
func (e *Engine) Pool(ctx context.Context, id string) (*Pool, error) {
	exists, err := e.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	return e.handle(id), nil
}

// Exists reports whether a pool with the given id was created
func (e *Engine) Exists(ctx context.Context, id string) (bool, error) {
	if !poolIDPattern.MatchString(id) {
		return false, nil
	}
	raw, err := e.handle(id).store.Get(ctx, keySelf)
	return raw != nil, err
}

// Pools lists the ids of all pools, sorted
func (e *Engine) Pools(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := getJSON(ctx, e.store, keyPoolIndex, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// InitPool creates a pool whose escrow is self. The id defaults to the LP
// token address.
func (e *Engine) InitPool(ctx context.Context, id string, self types.ContractLink, cfg InitConfig) (*Response, error) {
	if id == "" && cfg.LPToken != nil {
		id = string(cfg.LPToken.Address)
	}
	if !poolIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: bad id %q", ErrInvalidPool, id)
	}
	if self.IsZero() {
		return nil, fmt.Errorf("%w: missing escrow address", ErrInvalidPool)
	}
	if cfg.RewardToken.IsZero() {
		return nil, fmt.Errorf("%w: need to provide link to reward token", ErrInvalidPool)
	}
	if err := cfg.Variant.Validate(); err != nil {
		return nil, err
	}
	exists, err := e.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrPoolExists, id)
	}

	p := e.handle(id)
	if err := setJSON(ctx, p.store, keySelf, self); err != nil {
		return nil, err
	}
	if err := setJSON(ctx, p.store, keyVariant, cfg.Variant.normalize()); err != nil {
		return nil, err
	}
	bonding := types.Day
	if cfg.Bonding != nil {
		bonding = *cfg.Bonding
	}
	vk := cfg.RewardVK
	rewardToken := cfg.RewardToken
	messages, err := p.commitConfig(ctx, ConfigUpdate{
		LPToken:     cfg.LPToken,
		RewardToken: &rewardToken,
		RewardVK:    &vk,
		Bonding:     &bonding,
	})
	if err != nil {
		return nil, err
	}

	ids, err := e.Pools(ctx)
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)
	sort.Strings(ids)
	if err := setJSON(ctx, e.store, keyPoolIndex, ids); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"pool":    id,
		"escrow":  self.Address,
		"variant": cfg.Variant.normalize().Variant,
		"bonding": bonding,
	}).Info("Pool created")
	return &Response{Messages: messages}, nil
}

// Lock deposits amount of the LP token from the sender
func (p *Pool) Lock(ctx context.Context, env types.Env, amount fixed.Amount) (*Response, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: lock of zero", ErrInvalidAmount)
	}
	a, err := p.Account(ctx, env.Time, env.Sender)
	if err != nil {
		return nil, err
	}
	return a.deposit(ctx, amount)
}

// Retrieve withdraws amount of the LP token to the sender
func (p *Pool) Retrieve(ctx context.Context, env types.Env, amount fixed.Amount) (*Response, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: retrieve of zero", ErrInvalidAmount)
	}
	a, err := p.Account(ctx, env.Time, env.Sender)
	if err != nil {
		return nil, err
	}
	return a.withdraw(ctx, amount)
}

// Claim pays the sender's claimable reward
func (p *Pool) Claim(ctx context.Context, env types.Env) (*Response, error) {
	a, err := p.Account(ctx, env.Time, env.Sender)
	if err != nil {
		return nil, err
	}
	return a.claim(ctx)
}

// Configure updates the pool configuration. Admin only.
func (p *Pool) Configure(ctx context.Context, env types.Env, u ConfigUpdate) (*Response, error) {
	if err := p.engine.auth.AssertAdmin(ctx, env.Sender); err != nil {
		return nil, err
	}
	messages, err := p.commitConfig(ctx, u)
	if err != nil {
		return nil, err
	}
	return &Response{Messages: messages}, nil
}

// Close seals the pool at the current moment. Admin only, irreversible.
func (p *Pool) Close(ctx context.Context, env types.Env, reason string) (*Response, error) {
	if err := p.engine.auth.AssertAdmin(ctx, env.Sender); err != nil {
		return nil, err
	}
	var seal types.CloseSeal
	found, err := getJSON(ctx, p.store, keyClosed, &seal)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, fmt.Errorf("%w: at %d: %s", ErrPoolClosed, seal.Time, seal.Reason)
	}
	seal = types.CloseSeal{Time: env.Time, Reason: reason}
	if err := setJSON(ctx, p.store, keyClosed, seal); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"pool": p.ID, "block_time": env.Time, "reason": reason}).Warn("Pool closed")
	resp := &Response{}
	resp.log("close_time", fmt.Sprintf("%d", seal.Time))
	resp.log("close_reason", seal.Reason)
	return resp, nil
}

// DrainRequest names the token whose escrow balance is released
type DrainRequest struct {
	Token types.ContractLink `json:"token"`
	// Recipient defaults to the sender
	Recipient types.Address `json:"recipient,omitempty"`
	Key       string        `json:"key"`
}

// Drain grants the recipient an unlimited allowance over the escrow's
// balance of a token and resets the escrow's viewing key. Admin only.
func (p *Pool) Drain(ctx context.Context, env types.Env, req DrainRequest) (*Response, error) {
	if err := p.engine.auth.AssertAdmin(ctx, env.Sender); err != nil {
		return nil, err
	}
	cfg, err := p.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	recipient := req.Recipient
	if recipient.IsZero() {
		recipient = env.Sender
	}
	if cfg.rewardToken.Address == req.Token.Address {
		if err := setJSON(ctx, p.store, keyRewardVK, req.Key); err != nil {
			return nil, err
		}
	}
	expiration := env.Time.Add(DrainAllowanceDuration)
	snip20 := token.Attach(req.Token, cfg.self.Address)

	logrus.WithFields(logrus.Fields{
		"pool":      p.ID,
		"token":     req.Token.Address,
		"recipient": recipient,
	}).Warn("Pool drained")
	resp := &Response{}
	resp.msg(snip20.IncreaseAllowance(recipient, fixed.MaxAmount(), &expiration))
	resp.msg(snip20.SetViewingKey(req.Key))
	return resp, nil
}

// Escrow returns the address holding the pool's funds
func (p *Pool) Escrow(ctx context.Context) (types.ContractLink, error) {
	cfg, err := p.loadConfig(ctx)
	return cfg.self, err
}

// Status is the answer to a status query
type Status struct {
	Time    types.Moment `json:"time"`
	Pool    string       `json:"pool"`
	Total   *Totals      `json:"total"`
	Account *Account     `json:"account,omitempty"`
}

// Status reports pool state and, when an address is given, that account's
// state at a moment. Account queries need the address's viewing key.
func (p *Pool) Status(ctx context.Context, at types.Moment, address types.Address, key string) (*Status, error) {
	if !address.IsZero() && key == "" {
		return nil, ErrMissingViewingKey
	}
	total, err := p.Totals(ctx, at)
	if err != nil {
		return nil, err
	}
	status := &Status{Time: at, Pool: p.ID, Total: total}
	if address.IsZero() {
		return status, nil
	}
	if err := p.engine.auth.CheckViewingKey(ctx, address, key); err != nil {
		return nil, err
	}
	if status.Account, err = p.account(ctx, total, address); err != nil {
		return nil, err
	}
	return status, nil
}
