package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sbellem/SiennaNetwork/internal/fixed"
	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

// Genesis is the initial state of a fresh store
type Genesis struct {
	Admin types.Address `yaml:"admin"`
	// Time is the block time of the genesis transaction
	Time     types.Moment    `yaml:"time"`
	Balances []Balance       `yaml:"balances"`
	Pools    []GenesisPool   `yaml:"pools"`
	Keys     []ViewingKeySet `yaml:"viewing_keys"`
}

// Balance is an amount of a token minted at genesis
type Balance struct {
	Token   types.ContractLink `yaml:"token"`
	Address types.Address      `yaml:"address"`
	Amount  fixed.Amount       `yaml:"amount"`
}

// GenesisPool is a pool created at genesis
type GenesisPool struct {
	ID                 string `yaml:"id"`
	rewards.InitConfig `yaml:",inline"`
	// Budget is minted in the reward token to the pool escrow
	Budget *fixed.Amount `yaml:"budget"`
}

// ViewingKeySet sets an address's rewards viewing key at genesis
type ViewingKeySet struct {
	Address types.Address `yaml:"address"`
	Key     string        `yaml:"key"`
}

// LoadGenesis reads a genesis file. An empty path yields nil.
func LoadGenesis(path string) (*Genesis, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	g, err := ParseGenesis(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"path":     path,
		"pools":    len(g.Pools),
		"balances": len(g.Balances),
	}).Info("Genesis loaded")
	return g, nil
}

// ParseGenesis decodes a YAML genesis document
func ParseGenesis(data []byte) (*Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	if g.Admin.IsZero() {
		return nil, fmt.Errorf("genesis: admin is required")
	}
	for i, b := range g.Balances {
		if b.Token.IsZero() || b.Address.IsZero() {
			return nil, fmt.Errorf("genesis: balance %d needs token and address", i)
		}
	}
	for i, p := range g.Pools {
		if err := p.Variant.Validate(); err != nil {
			return nil, fmt.Errorf("genesis: pool %d: %w", i, err)
		}
	}
	return &g, nil
}
