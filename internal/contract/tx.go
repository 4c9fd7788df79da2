package contract

import (
	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/types"
	"github.com/sbellem/SiennaNetwork/internal/validation"
)

// Kind names a transaction
type Kind string

// Transaction kinds
const (
	KindLock              Kind = "lock"
	KindRetrieve          Kind = "retrieve"
	KindClaim             Kind = "claim"
	KindConfigure         Kind = "configure"
	KindClose             Kind = "close"
	KindDrain             Kind = "drain"
	KindCreatePool        Kind = "create_pool"
	KindSetViewingKey     Kind = "set_viewing_key"
	KindChangeAdmin       Kind = "change_admin"
	KindMint              Kind = "mint"
	KindTransfer          Kind = "transfer"
	KindIncreaseAllowance Kind = "increase_allowance"
	KindTokenViewingKey   Kind = "token_set_viewing_key"
)

// Tx is a transaction. Which fields are read depends on Kind.
type Tx struct {
	Kind Kind   `json:"kind"`
	Pool string `json:"pool,omitempty"`

	Amount *fixed.Amount `json:"amount,omitempty"`
	// Reason is the close message
	Reason string `json:"reason,omitempty"`
	// Key is a viewing key: the sender's own, or the escrow's new one for drain
	Key string `json:"key,omitempty"`
	// Address is the recipient, spender or new admin
	Address types.Address `json:"address,omitempty"`

	Token      *types.ContractLink `json:"token,omitempty"`
	Expiration *types.Moment       `json:"expiration,omitempty"`

	Config *rewards.ConfigUpdate `json:"config,omitempty"`
	Init   *rewards.InitConfig   `json:"init,omitempty"`
}

// Validate checks the fields used by the transaction's kind
func (tx Tx) Validate(opts validation.ValidationOptions) error {
	v := validation.New(opts)
	switch tx.Kind {
	case KindLock, KindRetrieve:
		v.PoolID("pool", tx.Pool, true)
		v.Amount("amount", tx.Amount)

	case KindClaim:
		v.PoolID("pool", tx.Pool, true)

	case KindConfigure:
		v.PoolID("pool", tx.Pool, true)
		v.Require(tx.Config != nil && !tx.Config.IsEmpty(), "config", "nothing to change")
		if tx.Config != nil {
			v.Link("config.lp_token", tx.Config.LPToken, false)
			v.Link("config.reward_token", tx.Config.RewardToken, false)
			v.Bonding("config.bonding", tx.Config.Bonding)
			if tx.Config.RewardVK != nil {
				v.ViewingKey("config.reward_vk", *tx.Config.RewardVK)
			}
		}

	case KindClose:
		v.PoolID("pool", tx.Pool, true)
		v.Reason("reason", tx.Reason)

	case KindDrain:
		v.PoolID("pool", tx.Pool, true)
		v.Link("token", tx.Token, true)
		v.OptionalAddress("address", tx.Address)
		v.ViewingKey("key", tx.Key)

	case KindCreatePool:
		v.PoolID("pool", tx.Pool, false)
		v.Require(tx.Init != nil, "init", "required")
		if tx.Init != nil {
			v.Link("init.lp_token", tx.Init.LPToken, false)
			v.Link("init.reward_token", &tx.Init.RewardToken, true)
			v.Bonding("init.bonding", tx.Init.Bonding)
			v.Require(tx.Pool != "" || tx.Init.LPToken != nil, "pool", "required without lp_token")
		}

	case KindSetViewingKey:
		v.ViewingKey("key", tx.Key)

	case KindChangeAdmin:
		v.Address("address", tx.Address)

	case KindMint:
		v.Link("token", tx.Token, true)
		v.OptionalAddress("address", tx.Address)
		v.Amount("amount", tx.Amount)

	case KindTransfer, KindIncreaseAllowance:
		v.Link("token", tx.Token, true)
		v.Address("address", tx.Address)
		v.Amount("amount", tx.Amount)

	case KindTokenViewingKey:
		v.Link("token", tx.Token, true)
		v.ViewingKey("key", tx.Key)

	default:
		v.Require(false, "kind", "unknown transaction kind "+string(tx.Kind))
	}
	return v.Err()
}
