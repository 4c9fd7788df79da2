package rewards

import (
	"context"
	"fmt"

	"github.com/sbellem/SiennaNetwork/internal/token"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Pool configuration keys
var (
	keySelf        = []byte("/config/self")
	keyLPToken     = []byte("/config/lp_token")
	keyRewardToken = []byte("/config/reward_token")
	keyRewardVK    = []byte("/config/reward_vk")
	keyBonding     = []byte("/config/bonding")
	keyClosed      = []byte("/config/closed")
	keyVariant     = []byte("/config/variant")
)

// InitConfig describes a new pool
type InitConfig struct {
	LPToken     *types.ContractLink `json:"lp_token,omitempty" yaml:"lp_token"`
	RewardToken types.ContractLink  `json:"reward_token" yaml:"reward_token"`
	RewardVK    string              `json:"reward_vk,omitempty" yaml:"reward_vk"`
	// Bonding defaults to one day
	Bonding *types.Duration `json:"bonding,omitempty" yaml:"bonding"`
	Variant Settings        `json:"variant" yaml:"variant"`
}

// ConfigUpdate changes any subset of a pool's configuration
type ConfigUpdate struct {
	LPToken     *types.ContractLink `json:"lp_token,omitempty"`
	RewardToken *types.ContractLink `json:"reward_token,omitempty"`
	RewardVK    *string             `json:"reward_vk,omitempty"`
	Bonding     *types.Duration     `json:"bonding,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u ConfigUpdate) IsEmpty() bool {
	return u.LPToken == nil && u.RewardToken == nil && u.RewardVK == nil && u.Bonding == nil
}

// poolConfig is the stored configuration of a pool
type poolConfig struct {
	self        types.ContractLink
	lpToken     *types.ContractLink
	rewardToken types.ContractLink
	rewardVK    string
	settings    Settings
}

func (p *Pool) loadConfig(ctx context.Context) (poolConfig, error) {
	var cfg poolConfig
	found, err := getJSON(ctx, p.store, keySelf, &cfg.self)
	if err != nil {
		return cfg, err
	}
	if !found {
		return cfg, fmt.Errorf("%w: %s", ErrUnknownPool, p.ID)
	}
	var lp types.ContractLink
	if found, err = getJSON(ctx, p.store, keyLPToken, &lp); err != nil {
		return cfg, err
	} else if found {
		cfg.lpToken = &lp
	}
	if found, err = getJSON(ctx, p.store, keyRewardToken, &cfg.rewardToken); err != nil {
		return cfg, err
	} else if !found {
		return cfg, fmt.Errorf("%w: no reward token", ErrNotConfigured)
	}
	if _, err = getJSON(ctx, p.store, keyRewardVK, &cfg.rewardVK); err != nil {
		return cfg, err
	}
	if _, err = getJSON(ctx, p.store, keyVariant, &cfg.settings); err != nil {
		return cfg, err
	}
	cfg.settings = cfg.settings.normalize()
	return cfg, nil
}

// lpTokenContract returns a message builder for the staked token, called by the pool escrow
func (c poolConfig) lpTokenContract() (token.Contract, error) {
	if c.lpToken == nil {
		return token.Contract{}, fmt.Errorf("%w: no lp token", ErrNotConfigured)
	}
	return token.Attach(*c.lpToken, c.self.Address), nil
}

func (c poolConfig) rewardTokenContract() token.Contract {
	return token.Attach(c.rewardToken, c.self.Address)
}

// singleSided reports whether stakers lock the reward token itself
func (c poolConfig) singleSided() bool {
	return c.lpToken != nil && c.lpToken.Address == c.rewardToken.Address
}

// commitConfig writes the update and returns the messages it requires.
// Setting a reward token always points it at the current viewing key.
func (p *Pool) commitConfig(ctx context.Context, u ConfigUpdate) ([]token.Message, error) {
	var messages []token.Message

	if u.LPToken != nil {
		if err := setJSON(ctx, p.store, keyLPToken, u.LPToken); err != nil {
			return nil, err
		}
	}

	if u.Bonding != nil {
		if err := setU64(ctx, p.store, keyBonding, uint64(*u.Bonding)); err != nil {
			return nil, err
		}
	}

	if u.RewardVK != nil {
		if err := setJSON(ctx, p.store, keyRewardVK, *u.RewardVK); err != nil {
			return nil, err
		}
	}

	if u.RewardToken != nil {
		if err := setJSON(ctx, p.store, keyRewardToken, u.RewardToken); err != nil {
			return nil, err
		}
	}

	if u.RewardToken != nil || u.RewardVK != nil {
		cfg, err := p.loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		messages = append(messages, cfg.rewardTokenContract().SetViewingKey(cfg.rewardVK))
	}

	return messages, nil
}
