// Package token is the interface to fungible-token contracts: outbound
// messages emitted by the rewards engine and the balance query it consumes.
package token

import (
	"context"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Kind identifies a token message
type Kind string

// Token message kinds
const (
	KindTransfer          Kind = "transfer"
	KindTransferFrom      Kind = "transfer_from"
	KindSetViewingKey     Kind = "set_viewing_key"
	KindIncreaseAllowance Kind = "increase_allowance"
)

// Message is a call into a token contract, executed after the emitting
// transaction's own state changes.
type Message struct {
	Kind  Kind               `json:"kind"`
	Token types.ContractLink `json:"token"`
	// Sender is the account on whose behalf the token contract is called
	Sender types.Address `json:"sender"`
	// Owner is the account debited by transfer_from
	Owner types.Address `json:"owner,omitempty"`
	// Recipient is the credited account, or the spender for increase_allowance
	Recipient  types.Address `json:"recipient,omitempty"`
	Amount     fixed.Amount  `json:"amount"`
	Key        string        `json:"key,omitempty"`
	Expiration *types.Moment `json:"expiration,omitempty"`
}

func (m Message) String() string {
	switch m.Kind {
	case KindTransfer:
		return fmt.Sprintf("%s: transfer %s from %s to %s", m.Token.Address, m.Amount, m.Sender, m.Recipient)
	case KindTransferFrom:
		return fmt.Sprintf("%s: transfer_from %s from %s to %s by %s", m.Token.Address, m.Amount, m.Owner, m.Recipient, m.Sender)
	case KindIncreaseAllowance:
		return fmt.Sprintf("%s: increase_allowance %s for %s by %s", m.Token.Address, m.Amount, m.Recipient, m.Sender)
	default:
		return fmt.Sprintf("%s: %s by %s", m.Token.Address, m.Kind, m.Sender)
	}
}

// Contract builds messages to a token contract on behalf of a caller
type Contract struct {
	Link   types.ContractLink
	Caller types.Address
}

// Attach returns a message builder for link, called by caller
func Attach(link types.ContractLink, caller types.Address) Contract {
	return Contract{Link: link, Caller: caller}
}

// Transfer moves amount from the caller to recipient
func (c Contract) Transfer(recipient types.Address, amount fixed.Amount) Message {
	return Message{Kind: KindTransfer, Token: c.Link, Sender: c.Caller, Recipient: recipient, Amount: amount}
}

// TransferFrom moves amount from owner to recipient using the caller's allowance
func (c Contract) TransferFrom(owner, recipient types.Address, amount fixed.Amount) Message {
	return Message{Kind: KindTransferFrom, Token: c.Link, Sender: c.Caller, Owner: owner, Recipient: recipient, Amount: amount}
}

// SetViewingKey sets the caller's viewing key
func (c Contract) SetViewingKey(key string) Message {
	return Message{Kind: KindSetViewingKey, Token: c.Link, Sender: c.Caller, Key: key}
}

// IncreaseAllowance lets spender move up to amount of the caller's funds until expiration
func (c Contract) IncreaseAllowance(spender types.Address, amount fixed.Amount, expiration *types.Moment) Message {
	return Message{Kind: KindIncreaseAllowance, Token: c.Link, Sender: c.Caller, Recipient: spender, Amount: amount, Expiration: expiration}
}

// Querier answers balance queries against token contracts
type Querier interface {
	Balance(ctx context.Context, token types.ContractLink, address types.Address, key string) (fixed.Amount, error)
}
