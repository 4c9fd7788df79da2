package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var lpToken = types.ContractLink{Address: "lp", CodeHash: "lp-hash"}

func TestLedger_MintAndTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory())

	require.NoError(t, l.Mint(ctx, lpToken, "alice", fixed.NewAmount(100)))
	require.NoError(t, l.Execute(ctx, Attach(lpToken, "alice").Transfer("bob", fixed.NewAmount(40)), 1))

	alice, err := l.BalanceOf(ctx, lpToken, "alice")
	require.NoError(t, err)
	bob, err := l.BalanceOf(ctx, lpToken, "bob")
	require.NoError(t, err)
	assert.Equal(t, "60", alice.String())
	assert.Equal(t, "40", bob.String())

	supply, err := l.Supply(ctx, lpToken)
	require.NoError(t, err)
	assert.Equal(t, "100", supply.String())

	err = l.Execute(ctx, Attach(lpToken, "bob").Transfer("alice", fixed.NewAmount(41)), 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestLedger_TransferFrom(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory())
	require.NoError(t, l.Mint(ctx, lpToken, "alice", fixed.NewAmount(100)))

	pull := Attach(lpToken, "escrow").TransferFrom("alice", "escrow", fixed.NewAmount(30))
	assert.ErrorIs(t, l.Execute(ctx, pull, 10), ErrInsufficientAllowance)

	expiry := types.Moment(20)
	require.NoError(t, l.Execute(ctx, Attach(lpToken, "alice").IncreaseAllowance("escrow", fixed.NewAmount(50), &expiry), 10))
	require.NoError(t, l.Execute(ctx, pull, 10))

	allowance, err := l.Allowance(ctx, lpToken, "alice", "escrow")
	require.NoError(t, err)
	assert.Equal(t, "20", allowance.Amount.String())

	escrow, err := l.BalanceOf(ctx, lpToken, "escrow")
	require.NoError(t, err)
	assert.Equal(t, "30", escrow.String())

	small := Attach(lpToken, "escrow").TransferFrom("alice", "escrow", fixed.NewAmount(5))
	assert.ErrorIs(t, l.Execute(ctx, small, 20), ErrAllowanceExpired)
}

func TestLedger_IncreaseAllowanceSaturates(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory())

	msg := Attach(lpToken, "pool").IncreaseAllowance("admin", fixed.MaxAmount(), nil)
	require.NoError(t, l.Execute(ctx, msg, 1))
	require.NoError(t, l.Execute(ctx, msg, 2))

	allowance, err := l.Allowance(ctx, lpToken, "pool", "admin")
	require.NoError(t, err)
	assert.True(t, allowance.Amount.Equal(fixed.MaxAmount()))
	assert.False(t, allowance.Expired(1<<62))
}

func TestLedger_BalanceRequiresViewingKey(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory())
	require.NoError(t, l.Mint(ctx, lpToken, "pool", fixed.NewAmount(7)))

	_, err := l.Balance(ctx, lpToken, "pool", "secret")
	assert.ErrorIs(t, err, ErrInvalidViewingKey)

	require.NoError(t, l.Execute(ctx, Attach(lpToken, "pool").SetViewingKey("secret"), 1))

	_, err = l.Balance(ctx, lpToken, "pool", "wrong")
	assert.ErrorIs(t, err, ErrInvalidViewingKey)

	balance, err := l.Balance(ctx, lpToken, "pool", "secret")
	require.NoError(t, err)
	assert.Equal(t, "7", balance.String())
}

func TestLedger_TokensAreIsolated(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(store.NewMemory())
	reward := types.ContractLink{Address: "reward"}

	require.NoError(t, l.Mint(ctx, lpToken, "alice", fixed.NewAmount(1)))
	balance, err := l.BalanceOf(ctx, reward, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	err = l.Execute(ctx, Message{Kind: "burn", Token: reward}, 1)
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
