// Package registry creates pools on behalf of the admin.
//
// Creation happens in two steps. CreatePool records a correlation token and
// returns an Instantiate request; whoever instantiates the pool escrow calls
// Register echoing that token, which creates the pool in the engine.
package registry

import (
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var (
	keyEphemeral = []byte("/registry/ephemeral")
	keyNonce     = []byte("/registry/nonce")
)

// ErrNoPendingRegistration is returned by Register when CreatePool was not called
var ErrNoPendingRegistration = errors.New("registry: no pending registration")

// EscrowCodeHash is the code hash of every pool escrow
const EscrowCodeHash = "sienna-rewards"

// Instantiate asks the host to instantiate a pool escrow
type Instantiate struct {
	PoolID string             `json:"pool"`
	Escrow types.ContractLink `json:"escrow"`
	Config rewards.InitConfig `json:"config"`
	// Token must be echoed back to Register
	Token []byte `json:"token"`
}

// Registry keeps the pending registration slot
type Registry struct {
	store  store.Store
	auth   *auth.Auth
	engine *rewards.Engine
}

// New creates a Registry over s
func New(s store.Store, a *auth.Auth, e *rewards.Engine) *Registry {
	return &Registry{store: s, auth: a, engine: e}
}

// EscrowAddress derives the escrow address of a pool from its id
func EscrowAddress(poolID string) types.Address {
	return types.Address(common.BytesToAddress(crypto.Keccak256([]byte("pool:" + poolID))).Hex())
}

// CreatePool validates a new pool and records the correlation token of its
// registration. Admin only.
func (r *Registry) CreatePool(ctx context.Context, env types.Env, id string, cfg rewards.InitConfig) (*Instantiate, error) {
	if err := r.auth.AssertAdmin(ctx, env.Sender); err != nil {
		return nil, err
	}
	if id == "" && cfg.LPToken != nil {
		id = string(cfg.LPToken.Address)
	}
	if !rewards.ValidPoolID(id) {
		return nil, fmt.Errorf("%w: bad id %q", rewards.ErrInvalidPool, id)
	}
	if cfg.RewardToken.IsZero() {
		return nil, fmt.Errorf("%w: need to provide link to reward token", rewards.ErrInvalidPool)
	}
	if err := cfg.Variant.Validate(); err != nil {
		return nil, err
	}
	exists, err := r.engine.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", rewards.ErrPoolExists, id)
	}

	nonce, err := r.nextNonce(ctx)
	if err != nil {
		return nil, err
	}
	token := correlationToken(env.Sender, env.Time, nonce)
	if err := r.store.Set(ctx, keyEphemeral, token); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"pool": id, "sender": env.Sender}).Debug("Pool registration pending")
	return &Instantiate{
		PoolID: id,
		Escrow: types.ContractLink{Address: EscrowAddress(id), CodeHash: EscrowCodeHash},
		Config: cfg,
		Token:  token,
	}, nil
}

// Register completes a pending registration. The token must match the one
// recorded by CreatePool, and the slot is cleared when it does.
func (r *Registry) Register(ctx context.Context, req Instantiate) (*rewards.Response, error) {
	stored, err := r.store.Get(ctx, keyEphemeral)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthorized, ErrNoPendingRegistration)
	}
	if subtle.ConstantTimeCompare(stored, req.Token) != 1 {
		return nil, fmt.Errorf("%w: correlation token mismatch", auth.ErrUnauthorized)
	}
	if err := r.store.Delete(ctx, keyEphemeral); err != nil {
		return nil, err
	}
	return r.engine.InitPool(ctx, req.PoolID, req.Escrow, req.Config)
}

// Pending reports whether a registration awaits Register
func (r *Registry) Pending(ctx context.Context) (bool, error) {
	stored, err := r.store.Get(ctx, keyEphemeral)
	return len(stored) > 0, err
}

func (r *Registry) nextNonce(ctx context.Context) (uint64, error) {
	raw, err := r.store.Get(ctx, keyNonce)
	if err != nil {
		return 0, err
	}
	var nonce uint64
	if len(raw) == 8 {
		nonce = binary.BigEndian.Uint64(raw)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce+1)
	return nonce, r.store.Set(ctx, keyNonce, buf)
}

func correlationToken(sender types.Address, at types.Moment, nonce uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], uint64(at))
	binary.BigEndian.PutUint64(buf[8:], nonce)
	return crypto.Keccak256([]byte(sender), buf)
}
