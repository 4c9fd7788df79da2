// Package auth gates administrative transactions and private queries:
// a single admin address and per-address viewing keys, stored hashed.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var (
	// ErrUnauthorized is returned when the sender is not allowed to act
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingViewingKey is returned when a private query carries no key
	ErrMissingViewingKey = errors.New("missing viewing key")
	// ErrNoAdmin is returned before an admin has been configured
	ErrNoAdmin = errors.New("admin not set")
)

var (
	keyAdmin = []byte("/auth/admin")
	nsVK     = []byte("/auth/vk/")
)

// Auth reads and writes authentication state in a store
type Auth struct {
	store store.Store
}

// New creates an Auth over s
func New(s store.Store) *Auth {
	return &Auth{store: s}
}

// InitAdmin sets the admin address when none is configured yet
func (a *Auth) InitAdmin(ctx context.Context, admin types.Address) error {
	if admin.IsZero() {
		return fmt.Errorf("%w: empty admin address", ErrUnauthorized)
	}
	current, err := a.store.Get(ctx, keyAdmin)
	if err != nil {
		return err
	}
	if current != nil {
		return nil
	}
	return a.store.Set(ctx, keyAdmin, []byte(admin))
}

// Admin returns the configured admin address
func (a *Auth) Admin(ctx context.Context) (types.Address, error) {
	raw, err := a.store.Get(ctx, keyAdmin)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNoAdmin
	}
	return types.Address(raw), nil
}

// AssertAdmin fails unless sender is the admin
func (a *Auth) AssertAdmin(ctx context.Context, sender types.Address) error {
	admin, err := a.Admin(ctx)
	if err != nil {
		return err
	}
	if admin != sender {
		logrus.WithFields(logrus.Fields{"sender": sender}).Warn("Rejected admin transaction")
		return fmt.Errorf("%w: %s is not admin", ErrUnauthorized, sender)
	}
	return nil
}

// ChangeAdmin hands the admin role to next. Only the current admin may call it.
func (a *Auth) ChangeAdmin(ctx context.Context, sender, next types.Address) error {
	if err := a.AssertAdmin(ctx, sender); err != nil {
		return err
	}
	if next.IsZero() {
		return fmt.Errorf("%w: empty admin address", ErrUnauthorized)
	}
	return a.store.Set(ctx, keyAdmin, []byte(next))
}

// SetViewingKey stores the hash of key for address
func (a *Auth) SetViewingKey(ctx context.Context, address types.Address, key string) error {
	return store.SetNS(ctx, a.store, nsVK, []byte(address), HashKey(key))
}

// CheckViewingKey verifies key against the stored hash for address
func (a *Auth) CheckViewingKey(ctx context.Context, address types.Address, key string) error {
	if key == "" {
		return ErrMissingViewingKey
	}
	stored, err := store.GetNS(ctx, a.store, nsVK, []byte(address))
	if err != nil {
		return err
	}
	if stored == nil || subtle.ConstantTimeCompare(stored, HashKey(key)) != 1 {
		return fmt.Errorf("%w: wrong viewing key for %s", ErrUnauthorized, address)
	}
	return nil
}

// HashKey returns the Keccak-256 digest of a viewing key
func HashKey(key string) []byte {
	return crypto.Keccak256([]byte(key))
}
