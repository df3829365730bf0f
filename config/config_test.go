// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/sengulatik66/catalyst/fixedpoint"
)

const sample = `
log_level: debug
log_format: json
relay:
  cron: "@every 1m"
  packet_timeout: 120
pools:
  - name: Stable A
    symbol: sA
    chain_id: 10
    address: "0x0000000000000000000000000000000000009010"
    chain_interface: "0x00000000000000000000000000000000000000c1"
    setup_authority: "0x0000000000000000000000000000000000005e70"
    governance: "0x0000000000000000000000000000000000009000"
    assets: ["0x00000000000000000000000000000000000000a1", "0x00000000000000000000000000000000000000b2"]
    weights: [1, 3]
    one_minus_amp: "0.25"
    pool_fee: "0.01"
    initial_balances: ["1000", "2000"]
  - name: Stable B
    symbol: sB
    chain_id: 20
    address: "0x0000000000000000000000000000000000009020"
    chain_interface: "0x00000000000000000000000000000000000000c2"
    setup_authority: "0x0000000000000000000000000000000000005e70"
    governance: "0x0000000000000000000000000000000000009000"
    assets: ["0x00000000000000000000000000000000000000a1"]
    weights: [1]
    one_minus_amp: "0.5"
    initial_balances: ["5000"]
swap:
  user: "0x000000000000000000000000000000000000beef"
  amount: "42"
  min_out: "7"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalyst.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "@every 1m", cfg.Relay.Cron)
	require.Equal(t, uint64(120), cfg.Relay.PacketTimeout)
	require.Len(t, cfg.Pools, 2)

	pc, err := cfg.Pools[0].PoolConfig()
	require.NoError(t, err)
	require.Equal(t, uint64(10), pc.ChainID)
	require.Equal(t, common.HexToAddress("0x9010"), pc.Address)
	require.Equal(t, []uint64{1, 3}, pc.Weights)
	quarter, err := fixedpoint.Fraction(1, 4)
	require.NoError(t, err)
	require.Equal(t, quarter, pc.OneMinusAmp)
	require.Nil(t, pc.GovernanceFeeShare)
	require.Equal(t, common.Address{}, pc.FeeAdministrator)

	balances, err := cfg.Pools[0].Balances()
	require.NoError(t, err)
	require.Equal(t, []*uint256.Int{uint256.NewInt(1000), uint256.NewInt(2000)}, balances)

	user, err := cfg.Swap.SwapUser()
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xbeef"), user)
	amount, minOut, err := cfg.Swap.Amounts()
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(42), amount)
	require.Equal(t, uint256.NewInt(7), minOut)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, "@every 5s", cfg.Relay.Cron)
	require.Equal(t, uint64(3600), cfg.Relay.PacketTimeout)
	require.Len(t, cfg.Pools, 2)
	require.NotEqual(t, cfg.Pools[0].ChainID, cfg.Pools[1].ChainID)

	log, err := cfg.NewLogger()
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv(EnvConfigPath, path)
	t.Setenv("CATALYST_LOG_LEVEL", "warn")
	t.Setenv("CATALYST_RELAY_CRON", "@every 10s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "@every 10s", cfg.Relay.Cron)
	require.Equal(t, "Stable A", cfg.Pools[0].Name)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "pools: [::"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
		{name: "log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "one pool", mutate: func(c *Config) { c.Pools = c.Pools[:1] }},
		{name: "bad address", mutate: func(c *Config) { c.Pools[0].Address = "pool" }},
		{name: "bad fraction", mutate: func(c *Config) { c.Pools[0].OneMinusAmp = "half" }},
		{name: "unamplified", mutate: func(c *Config) { c.Pools[0].OneMinusAmp = "1" }},
		{name: "balance count", mutate: func(c *Config) { c.Pools[0].InitialBalances = []string{"1"} }},
		{name: "bad balance", mutate: func(c *Config) { c.Pools[0].InitialBalances[0] = "-1" }},
		{name: "chain interface clash", mutate: func(c *Config) {
			c.Pools[1].ChainID = c.Pools[0].ChainID
		}},
		{name: "duplicate pool", mutate: func(c *Config) {
			c.Pools[1].ChainID = c.Pools[0].ChainID
			c.Pools[1].ChainInterface = c.Pools[0].ChainInterface
			c.Pools[1].Address = c.Pools[0].Address
		}},
		{name: "from asset", mutate: func(c *Config) { c.Swap.FromAsset = 5 }},
		{name: "to asset", mutate: func(c *Config) { c.Swap.ToAsset = 5 }},
		{name: "swap amount", mutate: func(c *Config) { c.Swap.Amount = "lots" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigPath, "")
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
			require.NoError(t, err)
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestValidateSameAddressOnTwoChains(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Pools[1].Address = cfg.Pools[0].Address
	require.NoError(t, cfg.Validate())
}
