package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

func newRegistry(t *testing.T) (*Registry, *rewards.Engine) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	a := auth.New(mem)
	require.NoError(t, a.InitAdmin(ctx, "admin"))
	engine := rewards.New(mem, token.NewLedger(mem), a)
	return New(mem, a, engine), engine
}

func poolConfig() rewards.InitConfig {
	lp := types.ContractLink{Address: "lp"}
	return rewards.InitConfig{LPToken: &lp, RewardToken: types.ContractLink{Address: "sienna"}, RewardVK: "vk"}
}

func TestRegistry_CreateAndRegister(t *testing.T) {
	ctx := context.Background()
	r, engine := newRegistry(t)

	req, err := r.CreatePool(ctx, types.Env{Time: 10, Sender: "admin"}, "", poolConfig())
	require.NoError(t, err)
	assert.Equal(t, "lp", req.PoolID)
	assert.Equal(t, EscrowAddress("lp"), req.Escrow.Address)
	assert.Len(t, req.Token, 32)

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	resp, err := r.Register(ctx, *req)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, token.KindSetViewingKey, resp.Messages[0].Kind)
	assert.Equal(t, req.Escrow.Address, resp.Messages[0].Sender)

	pending, err = r.Pending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	exists, err := engine.Exists(ctx, "lp")
	require.NoError(t, err)
	assert.True(t, exists)

	// the token is single use
	_, err = r.Register(ctx, *req)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.ErrorIs(t, err, ErrNoPendingRegistration)

	_, err = r.CreatePool(ctx, types.Env{Time: 11, Sender: "admin"}, "lp", poolConfig())
	require.ErrorIs(t, err, rewards.ErrPoolExists)
}

func TestRegistry_TokenMismatch(t *testing.T) {
	ctx := context.Background()
	r, engine := newRegistry(t)

	req, err := r.CreatePool(ctx, types.Env{Time: 10, Sender: "admin"}, "pool-1", poolConfig())
	require.NoError(t, err)

	forged := *req
	forged.Token = append([]byte{}, req.Token...)
	forged.Token[0] ^= 0xFF
	_, err = r.Register(ctx, forged)
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	exists, err := engine.Exists(ctx, "pool-1")
	require.NoError(t, err)
	assert.False(t, exists)
	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestRegistry_TokensDiffer(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	env := types.Env{Time: 10, Sender: "admin"}

	first, err := r.CreatePool(ctx, env, "pool-1", poolConfig())
	require.NoError(t, err)
	second, err := r.CreatePool(ctx, env, "pool-1", poolConfig())
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	// only the latest token is accepted
	_, err = r.Register(ctx, *first)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = r.Register(ctx, *second)
	require.NoError(t, err)
}

func TestRegistry_CreatePoolRejections(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	tests := []struct {
		name   string
		sender types.Address
		id     string
		cfg    rewards.InitConfig
		want   error
	}{
		{name: "not admin", sender: "mallory", id: "p", cfg: poolConfig(), want: auth.ErrUnauthorized},
		{name: "bad id", sender: "admin", id: "has space", cfg: poolConfig(), want: rewards.ErrInvalidPool},
		{name: "no reward token", sender: "admin", id: "p", cfg: rewards.InitConfig{}, want: rewards.ErrInvalidPool},
		{
			name:   "variant without settings",
			sender: "admin",
			id:     "p",
			cfg: rewards.InitConfig{
				RewardToken: types.ContractLink{Address: "sienna"},
				Variant:     rewards.Settings{Variant: rewards.VariantAgeThreshold},
			},
			want: rewards.ErrInvalidPool,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreatePool(ctx, types.Env{Time: 1, Sender: tt.sender}, tt.id, tt.cfg)
			require.ErrorIs(t, err, tt.want)
		})
	}

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestEscrowAddress(t *testing.T) {
	assert.Equal(t, EscrowAddress("a"), EscrowAddress("a"))
	assert.NotEqual(t, EscrowAddress("a"), EscrowAddress("b"))
	assert.Len(t, string(EscrowAddress("a")), 42)
}
