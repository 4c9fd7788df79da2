package token

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/store"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

var (
	// ErrInsufficientFunds is returned when a balance cannot cover a debit
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInsufficientAllowance is returned when transfer_from exceeds the allowance
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	// ErrAllowanceExpired is returned when transfer_from uses an expired allowance
	ErrAllowanceExpired = errors.New("token: allowance expired")
	// ErrInvalidViewingKey is returned by balance queries with a wrong or unset key
	ErrInvalidViewingKey = errors.New("token: wrong viewing key")
	// ErrUnknownMessage is returned for unsupported message kinds
	ErrUnknownMessage = errors.New("token: unknown message")
)

var (
	nsBalance   = []byte("/balance/")
	nsAllowance = []byte("/allowance/")
	nsVK        = []byte("/vk/")
	keySupply   = []byte("/supply")
)

// Allowance is the amount a spender may move on behalf of an owner
type Allowance struct {
	Amount     fixed.Amount  `json:"amount"`
	Expiration *types.Moment `json:"expiration,omitempty"`
}

// Expired reports whether the allowance is no longer usable at now
func (a Allowance) Expired(now types.Moment) bool {
	return a.Expiration != nil && now >= *a.Expiration
}

// Ledger is a fungible-token ledger for any number of tokens, kept in the
// same store as the rewards state so that it commits and rolls back with it.
type Ledger struct {
	store store.Store
}

var _ Querier = (*Ledger)(nil)

// NewLedger creates a ledger over s
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) scope(token types.Address) store.Store {
	return store.Prefix(l.store, "/token/"+string(token))
}

// Mint credits amount of token to the recipient and grows the supply
func (l *Ledger) Mint(ctx context.Context, token types.ContractLink, to types.Address, amount fixed.Amount) error {
	s := l.scope(token.Address)
	supply, err := readAmount(ctx, s, keySupply)
	if err != nil {
		return err
	}
	if supply, err = supply.Add(amount); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if err := s.Set(ctx, keySupply, supply.Bytes()); err != nil {
		return err
	}
	return l.credit(ctx, s, to, amount)
}

// Supply returns the total minted amount of token
func (l *Ledger) Supply(ctx context.Context, token types.ContractLink) (fixed.Amount, error) {
	return readAmount(ctx, l.scope(token.Address), keySupply)
}

// BalanceOf returns a balance without checking the viewing key
func (l *Ledger) BalanceOf(ctx context.Context, token types.ContractLink, address types.Address) (fixed.Amount, error) {
	return readAmountNS(ctx, l.scope(token.Address), nsBalance, address)
}

// Balance implements Querier: the caller must present the account's viewing key
func (l *Ledger) Balance(ctx context.Context, token types.ContractLink, address types.Address, key string) (fixed.Amount, error) {
	s := l.scope(token.Address)
	stored, err := store.GetNS(ctx, s, nsVK, []byte(address))
	if err != nil {
		return fixed.Amount{}, err
	}
	if stored == nil || subtle.ConstantTimeCompare(stored, crypto.Keccak256([]byte(key))) != 1 {
		return fixed.Amount{}, fmt.Errorf("%w for %s", ErrInvalidViewingKey, address)
	}
	return readAmountNS(ctx, s, nsBalance, address)
}

// Allowance returns what spender may move from owner's balance
func (l *Ledger) Allowance(ctx context.Context, token types.ContractLink, owner, spender types.Address) (Allowance, error) {
	var a Allowance
	raw, err := store.GetNS(ctx, l.scope(token.Address), nsAllowance, allowanceKey(owner, spender))
	if err != nil || raw == nil {
		return a, err
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, fmt.Errorf("decode allowance: %w", err)
	}
	return a, nil
}

// Execute applies a token message at block time now
func (l *Ledger) Execute(ctx context.Context, msg Message, now types.Moment) error {
	s := l.scope(msg.Token.Address)
	switch msg.Kind {
	case KindTransfer:
		return l.move(ctx, s, msg.Sender, msg.Recipient, msg.Amount)

	case KindTransferFrom:
		allowance, err := l.Allowance(ctx, msg.Token, msg.Owner, msg.Sender)
		if err != nil {
			return err
		}
		if allowance.Expired(now) {
			return fmt.Errorf("%w: %s for %s", ErrAllowanceExpired, msg.Owner, msg.Sender)
		}
		if allowance.Amount.Lt(msg.Amount) {
			return fmt.Errorf("%w: %s allowed, %s requested", ErrInsufficientAllowance, allowance.Amount, msg.Amount)
		}
		allowance.Amount = allowance.Amount.SatSub(msg.Amount)
		if err := l.putAllowance(ctx, s, msg.Owner, msg.Sender, allowance); err != nil {
			return err
		}
		return l.move(ctx, s, msg.Owner, msg.Recipient, msg.Amount)

	case KindIncreaseAllowance:
		allowance, err := l.Allowance(ctx, msg.Token, msg.Sender, msg.Recipient)
		if err != nil {
			return err
		}
		sum, err := allowance.Amount.Add(msg.Amount)
		if err != nil {
			sum = fixed.MaxAmount()
		}
		allowance.Amount = sum
		allowance.Expiration = msg.Expiration
		return l.putAllowance(ctx, s, msg.Sender, msg.Recipient, allowance)

	case KindSetViewingKey:
		return store.SetNS(ctx, s, nsVK, []byte(msg.Sender), crypto.Keccak256([]byte(msg.Key)))

	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Kind)
	}
}

func (l *Ledger) move(ctx context.Context, s store.Store, from, to types.Address, amount fixed.Amount) error {
	balance, err := readAmountNS(ctx, s, nsBalance, from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, balance, amount)
	}
	if err := store.SetNS(ctx, s, nsBalance, []byte(from), balance.SatSub(amount).Bytes()); err != nil {
		return err
	}
	return l.credit(ctx, s, to, amount)
}

func (l *Ledger) credit(ctx context.Context, s store.Store, to types.Address, amount fixed.Amount) error {
	balance, err := readAmountNS(ctx, s, nsBalance, to)
	if err != nil {
		return err
	}
	if balance, err = balance.Add(amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return store.SetNS(ctx, s, nsBalance, []byte(to), balance.Bytes())
}

func (l *Ledger) putAllowance(ctx context.Context, s store.Store, owner, spender types.Address, a Allowance) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return store.SetNS(ctx, s, nsAllowance, allowanceKey(owner, spender), raw)
}

func allowanceKey(owner, spender types.Address) []byte {
	key, _ := store.NSKey([]byte(owner), []byte(spender))
	return key
}

func readAmount(ctx context.Context, s store.Store, key []byte) (fixed.Amount, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return fixed.Amount{}, err
	}
	return fixed.AmountFromBytes(raw)
}

func readAmountNS(ctx context.Context, s store.Store, ns []byte, address types.Address) (fixed.Amount, error) {
	raw, err := store.GetNS(ctx, s, ns, []byte(address))
	if err != nil || raw == nil {
		return fixed.Amount{}, err
	}
	return fixed.AmountFromBytes(raw)
}
