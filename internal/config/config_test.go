package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbellem/SiennaNetwork/internal/rewards"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "PORT", "STORE_BACKEND", "BREAKER_FAILURES", "BREAKER_COOLDOWN")
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 5, cfg.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.BreakerCooldown)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("BREAKER_COOLDOWN", "1m")
	t.Setenv("SNAPSHOT_CRON", "")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, "", cfg.SnapshotCron)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{StoreBackend: BackendMemory, JWTSecret: "0123456789abcdef", RateLimitRPS: 1, RateLimitBurst: 1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "redis" }},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }},
		{name: "sqlite without path", mutate: func(c *Config) { c.StoreBackend = BackendSQLite }},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }},
		{name: "no rate", mutate: func(c *Config) { c.RateLimitRPS = 0 }},
		{name: "sample ratio above one", mutate: func(c *Config) { c.OtelSampleRatio = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

const genesisYAML = `
admin: admin
time: 1000
balances:
  - token: {address: sienna, code_hash: snip20}
    address: admin
    amount: "1000000"
  - token: {address: lp, code_hash: snip20}
    address: alice
    amount: 500
pools:
  - id: lp-pool
    lp_token: {address: lp, code_hash: snip20}
    reward_token: {address: sienna, code_hash: snip20}
    reward_vk: escrow-key
    bonding: 3600
    budget: "9000"
  - lp_token: {address: lp2}
    reward_token: {address: sienna}
    variant:
      variant: age_threshold
      age_threshold: {threshold: 600}
viewing_keys:
  - address: alice
    key: alice-key
`

func TestParseGenesis(t *testing.T) {
	g, err := ParseGenesis([]byte(genesisYAML))
	require.NoError(t, err)

	assert.Equal(t, types.Address("admin"), g.Admin)
	assert.Equal(t, types.Moment(1000), g.Time)
	require.Len(t, g.Balances, 2)
	assert.Equal(t, "1000000", g.Balances[0].Amount.String())
	assert.Equal(t, "500", g.Balances[1].Amount.String())

	require.Len(t, g.Pools, 2)
	p := g.Pools[0]
	assert.Equal(t, "lp-pool", p.ID)
	require.NotNil(t, p.LPToken)
	assert.Equal(t, types.Address("lp"), p.LPToken.Address)
	assert.Equal(t, "escrow-key", p.RewardVK)
	require.NotNil(t, p.Bonding)
	assert.Equal(t, types.Duration(3600), *p.Bonding)
	require.NotNil(t, p.Budget)
	assert.Equal(t, "9000", p.Budget.String())
	assert.Nil(t, g.Pools[1].Budget)

	assert.Equal(t, "", g.Pools[1].ID)
	assert.Equal(t, rewards.VariantAgeThreshold, g.Pools[1].Variant.Variant)
	require.NotNil(t, g.Pools[1].Variant.AgeThreshold)
	assert.Equal(t, types.Duration(600), g.Pools[1].Variant.AgeThreshold.Threshold)

	require.Len(t, g.Keys, 1)
	assert.Equal(t, "alice-key", g.Keys[0].Key)
}

func TestParseGenesis_Rejections(t *testing.T) {
	_, err := ParseGenesis([]byte("time: 1"))
	assert.Error(t, err)
	_, err = ParseGenesis([]byte("admin: a\nbalances:\n  - address: b\n    amount: 1\n"))
	assert.Error(t, err)
	_, err = ParseGenesis([]byte("admin: a\nbalances:\n  - token: {address: t}\n    address: b\n    amount: -1\n"))
	assert.Error(t, err)
	_, err = ParseGenesis([]byte("admin: a\npools:\n  - variant: {variant: nope}\n"))
	assert.Error(t, err)
	_, err = ParseGenesis([]byte("admin: [unterminated"))
	assert.Error(t, err)
}

func TestLoadGenesis(t *testing.T) {
	g, err := LoadGenesis("")
	require.NoError(t, err)
	assert.Nil(t, g)

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(genesisYAML), 0o600))
	g, err = LoadGenesis(path)
	require.NoError(t, err)
	assert.Len(t, g.Pools, 2)

	_, err = LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
