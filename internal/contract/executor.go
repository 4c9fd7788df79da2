// Package contract executes transactions against the rewards engine the way
// a chain would: one at a time, atomically, with the token messages they
// emit dispatched before anything is committed.
package contract

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/circuitbreaker"
	"github.com/sbellem/SiennaNetwork/internal/config"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/model"
	"github.com/sbellem/SiennaNetwork/internal/otel"
	"github.com/sbellem/SiennaNetwork/internal/registry"
	"github.com/sbellem/SiennaNetwork/internal/report"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/security"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
	"github.com/sbellem/SiennaNetwork/internal/validation"
)

var (
	keyBlockTime = []byte("/contract/time")
	keyHeight    = []byte("/contract/height")
	nsReceipt    = "/contract/receipt/"
)

// Option configures an Executor
type Option func(*Executor)

// WithClock replaces the wall clock used by Now
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithBreaker guards budget queries with cb
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(e *Executor) { e.breaker = cb }
}

// WithMetrics reports to m
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSink is called with every committed receipt
func WithSink(sink func(Receipt)) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithSigner signs every receipt id with s
func WithSigner(s *security.Signer) Option {
	return func(e *Executor) { e.signer = s }
}

// WithValidation replaces the default validation limits
func WithValidation(opts validation.ValidationOptions) Option {
	return func(e *Executor) { e.opts = opts }
}

// Executor serializes transactions over a store
type Executor struct {
	// mu is held exclusively by transactions and shared by queries
	mu sync.RWMutex

	store   store.Store
	breaker *circuitbreaker.CircuitBreaker
	guard   *circuitbreaker.Querier
	metrics *Metrics
	sink    func(Receipt)
	signer  *security.Signer
	opts    validation.ValidationOptions
	now     func() time.Time
}

// New creates an Executor over s
func New(s store.Store, options ...Option) *Executor {
	e := &Executor{
		store: s,
		opts:  validation.DefaultValidationOptions(),
		now:   time.Now,
	}
	for _, o := range options {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.breaker == nil {
		e.breaker = circuitbreaker.New(circuitbreaker.Thresholds{})
	}
	e.breaker.WithStateCallback(e.metrics.setBreakerState)
	e.guard = circuitbreaker.GuardQuerier(nil, e.breaker)
	return e
}

// Breaker returns the circuit breaker guarding budget queries
func (e *Executor) Breaker() *circuitbreaker.CircuitBreaker { return e.breaker }

// Signer returns the address signing receipts, empty when unsigned
func (e *Executor) Signer() types.Address {
	if e.signer == nil {
		return ""
	}
	return e.signer.Address()
}

// host wires the engine and its collaborators over one view of the store
type host struct {
	auth     *auth.Auth
	ledger   *token.Ledger
	engine   *rewards.Engine
	registry *registry.Registry
}

func (e *Executor) host(s store.Store) *host {
	a := auth.New(s)
	ledger := token.NewLedger(s)
	engine := rewards.New(s, e.guard.With(ledger), a)
	return &host{auth: a, ledger: ledger, engine: engine, registry: registry.New(s, a, engine)}
}

// Now returns the block time for a new transaction: the wall clock, held
// back to the last block time if it went backwards.
func (e *Executor) Now(ctx context.Context) (types.Moment, error) {
	last, _, err := readChainState(ctx, e.store)
	if err != nil {
		return 0, err
	}
	wall := types.Moment(e.now().Unix())
	if wall < last {
		return last, nil
	}
	return wall, nil
}

// Env returns the environment of a new transaction by sender
func (e *Executor) Env(ctx context.Context, sender types.Address) (types.Env, error) {
	now, err := e.Now(ctx)
	return types.Env{Time: now, Sender: sender}, err
}

// Height returns the number of committed transactions and the last block time
func (e *Executor) Height(ctx context.Context) (uint64, types.Moment, error) {
	last, height, err := readChainState(ctx, e.store)
	return height, last, err
}

// Execute runs tx at env. Either every write of the transaction and of the
// messages it emits is committed, or none is.
func (e *Executor) Execute(ctx context.Context, env types.Env, tx Tx) (*Receipt, error) {
	ctx, span := otel.Start(ctx, "tx."+string(tx.Kind),
		attribute.String("tx.kind", string(tx.Kind)),
		attribute.String("tx.pool", tx.Pool),
		attribute.String("tx.sender", string(env.Sender)),
		attribute.Int64("tx.time", int64(env.Time)),
	)
	defer span.End()
	start := time.Now()

	e.mu.Lock()
	receipt, err := e.execute(ctx, env, tx)
	e.mu.Unlock()

	class := Classify(err)
	e.metrics.txTotal.WithLabelValues(string(tx.Kind), class.String()).Inc()
	e.metrics.txDuration.WithLabelValues(string(tx.Kind)).Observe(time.Since(start).Seconds())

	fields := logrus.Fields{
		"kind":       tx.Kind,
		"pool":       tx.Pool,
		"sender":     env.Sender,
		"block_time": env.Time,
		"outcome":    class.String(),
	}
	if err != nil {
		otel.RecordError(ctx, err)
		if class == ClassInternal {
			logrus.WithFields(fields).Errorf("Transaction failed: %v", err)
		} else {
			logrus.WithFields(fields).Warnf("Transaction rejected: %v", err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("tx.receipt", receipt.ID))
	fields["receipt"] = receipt.ID
	fields["height"] = receipt.Height
	logrus.WithFields(fields).Info("Transaction committed")

	if e.sink != nil {
		e.sink(*receipt)
	}
	return receipt, nil
}

func (e *Executor) execute(ctx context.Context, env types.Env, tx Tx) (*Receipt, error) {
	if env.Sender.IsZero() {
		return nil, fmt.Errorf("%w: missing sender", auth.ErrUnauthorized)
	}
	sender := validation.New(e.opts)
	sender.Address("sender", env.Sender)
	if err := sender.Err(); err != nil {
		return nil, err
	}
	if err := tx.Validate(e.opts); err != nil {
		return nil, err
	}

	cache := store.NewCache(e.store)
	defer cache.Discard()

	last, height, err := readChainState(ctx, cache)
	if err != nil {
		return nil, err
	}
	if env.Time < last {
		return nil, fmt.Errorf("%w: block time %d precedes last block %d", rewards.ErrTimeTravel, env.Time, last)
	}

	h := e.host(cache)
	receipt := &Receipt{
		Height: height + 1,
		Kind:   tx.Kind,
		Pool:   tx.Pool,
		Sender: env.Sender,
		Time:   env.Time,
	}
	resp, err := h.handle(ctx, env, tx, receipt)
	if err != nil {
		return nil, err
	}
	if err := h.dispatch(ctx, resp.Messages, env.Time); err != nil {
		return nil, err
	}
	receipt.Messages = resp.Messages
	receipt.Logs = resp.Logs

	if receipt.ID, err = receipt.contentID(); err != nil {
		return nil, err
	}
	if e.signer != nil {
		if receipt.Signature, err = e.signer.Sign([]byte(receipt.ID)); err != nil {
			return nil, err
		}
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("encode receipt: %w", err)
	}
	if err := cache.Set(ctx, []byte(nsReceipt+receipt.ID), raw); err != nil {
		return nil, err
	}
	if err := writeChainState(ctx, cache, env.Time, receipt.Height); err != nil {
		return nil, err
	}
	if err := cache.Write(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	for _, m := range receipt.Messages {
		e.metrics.messages.WithLabelValues(string(m.Kind)).Inc()
	}
	e.metrics.height.Set(float64(receipt.Height))
	e.metrics.blockTime.Set(float64(receipt.Time))
	return receipt, nil
}

func (h *host) handle(ctx context.Context, env types.Env, tx Tx, r *Receipt) (*rewards.Response, error) {
	switch tx.Kind {
	case KindCreatePool:
		inst, err := h.registry.CreatePool(ctx, env, tx.Pool, *tx.Init)
		if err != nil {
			return nil, err
		}
		r.Pool = inst.PoolID
		r.Instantiate = inst
		return h.registry.Register(ctx, *inst)

	case KindSetViewingKey:
		if err := h.auth.SetViewingKey(ctx, env.Sender, tx.Key); err != nil {
			return nil, err
		}
		return &rewards.Response{}, nil

	case KindChangeAdmin:
		if err := h.auth.ChangeAdmin(ctx, env.Sender, tx.Address); err != nil {
			return nil, err
		}
		return &rewards.Response{Logs: []types.Log{{Key: "admin", Value: string(tx.Address)}}}, nil

	case KindMint:
		if err := h.auth.AssertAdmin(ctx, env.Sender); err != nil {
			return nil, err
		}
		to := tx.Address
		if to.IsZero() {
			to = env.Sender
		}
		if err := h.ledger.Mint(ctx, *tx.Token, to, *tx.Amount); err != nil {
			return nil, err
		}
		return &rewards.Response{Logs: []types.Log{{Key: "minted", Value: tx.Amount.String()}}}, nil

	case KindTransfer:
		msg := token.Attach(*tx.Token, env.Sender).Transfer(tx.Address, *tx.Amount)
		return &rewards.Response{Messages: []token.Message{msg}}, nil

	case KindIncreaseAllowance:
		msg := token.Attach(*tx.Token, env.Sender).IncreaseAllowance(tx.Address, *tx.Amount, tx.Expiration)
		return &rewards.Response{Messages: []token.Message{msg}}, nil

	case KindTokenViewingKey:
		msg := token.Attach(*tx.Token, env.Sender).SetViewingKey(tx.Key)
		return &rewards.Response{Messages: []token.Message{msg}}, nil
	}

	pool, err := h.engine.Pool(ctx, tx.Pool)
	if err != nil {
		return nil, err
	}
	switch tx.Kind {
	case KindLock:
		return pool.Lock(ctx, env, *tx.Amount)
	case KindRetrieve:
		return pool.Retrieve(ctx, env, *tx.Amount)
	case KindClaim:
		return pool.Claim(ctx, env)
	case KindConfigure:
		return pool.Configure(ctx, env, *tx.Config)
	case KindClose:
		return pool.Close(ctx, env, tx.Reason)
	case KindDrain:
		return pool.Drain(ctx, env, rewards.DrainRequest{Token: *tx.Token, Recipient: tx.Address, Key: tx.Key})
	}
	return nil, fmt.Errorf("%w: kind %q", validation.ErrInvalid, tx.Kind)
}

// dispatch executes messages in order; the first failure fails the transaction
func (h *host) dispatch(ctx context.Context, messages []token.Message, now types.Moment) error {
	for i, m := range messages {
		if err := h.ledger.Execute(ctx, m, now); err != nil {
			return fmt.Errorf("message %d (%s): %w", i, m, err)
		}
	}
	return nil
}

// Genesis initializes an empty store from g in a single commit. A store that
// already has an admin is left untouched.
func (e *Executor) Genesis(ctx context.Context, g *config.Genesis) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cache := store.NewCache(e.store)
	defer cache.Discard()
	h := e.host(cache)

	if admin, err := h.auth.Admin(ctx); err == nil {
		logrus.WithField("admin", admin).Info("Store already initialized, skipping genesis")
		return nil
	} else if !errors.Is(err, auth.ErrNoAdmin) {
		return err
	}
	if err := h.auth.InitAdmin(ctx, g.Admin); err != nil {
		return err
	}

	for _, b := range g.Balances {
		if err := h.ledger.Mint(ctx, b.Token, b.Address, b.Amount); err != nil {
			return fmt.Errorf("genesis balance of %s: %w", b.Address, err)
		}
	}
	for _, k := range g.Keys {
		if err := h.auth.SetViewingKey(ctx, k.Address, k.Key); err != nil {
			return err
		}
	}

	env := types.Env{Time: g.Time, Sender: g.Admin}
	for i := range g.Pools {
		p := g.Pools[i]
		tx := Tx{Kind: KindCreatePool, Pool: p.ID, Init: &p.InitConfig}
		if err := tx.Validate(e.opts); err != nil {
			return fmt.Errorf("genesis pool %d: %w", i, err)
		}
		r := &Receipt{}
		resp, err := h.handle(ctx, env, tx, r)
		if err != nil {
			return fmt.Errorf("genesis pool %d: %w", i, err)
		}
		if err := h.dispatch(ctx, resp.Messages, env.Time); err != nil {
			return err
		}
		if p.Budget != nil {
			if err := h.ledger.Mint(ctx, p.RewardToken, r.Instantiate.Escrow.Address, *p.Budget); err != nil {
				return fmt.Errorf("genesis budget of %s: %w", r.Pool, err)
			}
		}
	}

	if err := writeChainState(ctx, cache, g.Time, 0); err != nil {
		return err
	}
	if err := cache.Write(ctx); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"admin":    g.Admin,
		"pools":    len(g.Pools),
		"balances": len(g.Balances),
	}).Info("Genesis applied")
	return nil
}

// query runs fn over the committed state
func (e *Executor) query(ctx context.Context, name string, fn func(context.Context, *host) error) error {
	ctx, span := otel.Start(ctx, "query."+name)
	defer span.End()

	e.mu.RLock()
	err := fn(ctx, e.host(e.store))
	e.mu.RUnlock()

	e.metrics.queryTotal.WithLabelValues(name, Classify(err).String()).Inc()
	if err != nil {
		otel.RecordError(ctx, err)
		logrus.WithField("query", name).Debugf("Query failed: %v", err)
	}
	return err
}

// Status reports a pool and optionally one account in it at a moment
func (e *Executor) Status(ctx context.Context, pool string, at types.Moment, address types.Address, key string) (*rewards.Status, error) {
	var status *rewards.Status
	err := e.query(ctx, "status", func(ctx context.Context, h *host) error {
		p, err := h.engine.Pool(ctx, pool)
		if err != nil {
			return err
		}
		status, err = p.Status(ctx, at, address, key)
		return err
	})
	return status, err
}

// SimulateClaims evaluates a claim in each of pools, or in every pool when
// none are given
func (e *Executor) SimulateClaims(ctx context.Context, pools []string, address types.Address, key string, at types.Moment) (*rewards.ClaimSimulation, error) {
	var sim *rewards.ClaimSimulation
	err := e.query(ctx, "simulate", func(ctx context.Context, h *host) error {
		if len(pools) == 0 {
			var err error
			if pools, err = h.engine.Pools(ctx); err != nil {
				return err
			}
		}
		var err error
		sim, err = h.engine.SimulateClaims(ctx, pools, address, key, at)
		return err
	})
	return sim, err
}

// Pools lists every pool id
func (e *Executor) Pools(ctx context.Context) ([]string, error) {
	var ids []string
	err := e.query(ctx, "pools", func(ctx context.Context, h *host) error {
		var err error
		ids, err = h.engine.Pools(ctx)
		return err
	})
	return ids, err
}

// Escrow returns the address holding a pool's funds
func (e *Executor) Escrow(ctx context.Context, pool string) (types.ContractLink, error) {
	var link types.ContractLink
	err := e.query(ctx, "escrow", func(ctx context.Context, h *host) error {
		p, err := h.engine.Pool(ctx, pool)
		if err != nil {
			return err
		}
		link, err = p.Escrow(ctx)
		return err
	})
	return link, err
}

// Balance queries a token balance with the owner's token viewing key
func (e *Executor) Balance(ctx context.Context, tok types.ContractLink, address types.Address, key string) (fixed.Amount, error) {
	var balance fixed.Amount
	err := e.query(ctx, "balance", func(ctx context.Context, h *host) error {
		var err error
		balance, err = h.ledger.Balance(ctx, tok, address, key)
		return err
	})
	return balance, err
}

// Authenticate checks the rewards viewing key of address
func (e *Executor) Authenticate(ctx context.Context, address types.Address, key string) error {
	return e.query(ctx, "authenticate", func(ctx context.Context, h *host) error {
		return h.auth.CheckViewingKey(ctx, address, key)
	})
}

// Receipt looks up a committed transaction by id
func (e *Executor) Receipt(ctx context.Context, id string) (*Receipt, error) {
	if _, err := ParseReceiptID(id); err != nil {
		return nil, err
	}
	var r Receipt
	err := e.query(ctx, "receipt", func(ctx context.Context, h *host) error {
		raw, err := e.store.Get(ctx, []byte(nsReceipt+id))
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
		}
		return json.Unmarshal(raw, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Snapshots projects every pool to a moment
func (e *Executor) Snapshots(ctx context.Context, at types.Moment) ([]model.PoolSnapshot, error) {
	var snaps []model.PoolSnapshot
	err := e.query(ctx, "snapshots", func(ctx context.Context, h *host) error {
		var err error
		snaps, err = report.Collect(ctx, h, at)
		return err
	})
	return snaps, err
}

// Summary aggregates every pool at a moment
func (e *Executor) Summary(ctx context.Context, at types.Moment) (report.Summary, error) {
	snaps, err := e.Snapshots(ctx, at)
	if err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(snaps)
}

// Pools implements report.Source
func (h *host) Pools(ctx context.Context) ([]string, error) {
	return h.engine.Pools(ctx)
}

// Snapshot implements report.Source
func (h *host) Snapshot(ctx context.Context, pool string, at types.Moment) (model.PoolSnapshot, error) {
	p, err := h.engine.Pool(ctx, pool)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	totals, err := p.Totals(ctx, at)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	return model.NewSnapshot(pool, totals), nil
}

func readChainState(ctx context.Context, s store.Store) (types.Moment, uint64, error) {
	rawTime, err := s.Get(ctx, keyBlockTime)
	if err != nil {
		return 0, 0, err
	}
	rawHeight, err := s.Get(ctx, keyHeight)
	if err != nil {
		return 0, 0, err
	}
	var last types.Moment
	var height uint64
	if len(rawTime) == 8 {
		last = types.Moment(binary.BigEndian.Uint64(rawTime))
	}
	if len(rawHeight) == 8 {
		height = binary.BigEndian.Uint64(rawHeight)
	}
	return last, height, nil
}

func writeChainState(ctx context.Context, s store.Store, at types.Moment, height uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at))
	if err := s.Set(ctx, keyBlockTime, buf); err != nil {
		return err
	}
	buf = make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return s.Set(ctx, keyHeight, buf)
}
