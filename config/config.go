// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the YAML description of a simulated pool network.
package config

import (
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sengulatik66/catalyst/fixedpoint"
	"github.com/sengulatik66/catalyst/pool"
)

// EnvConfigPath names the config file when no path is given.
const EnvConfigPath = "CATALYST_CONFIG"

// Config holds the simulation configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Relay struct {
		Cron          string `yaml:"cron"`
		PacketTimeout uint64 `yaml:"packet_timeout"`
	} `yaml:"relay"`

	Pools []Pool `yaml:"pools"`
	Swap  Swap   `yaml:"swap"`
}

// Pool is the setup of one pool. Fractions are decimal strings, amounts
// are base-10 integers in the token's smallest unit.
type Pool struct {
	Name               string   `yaml:"name"`
	Symbol             string   `yaml:"symbol"`
	ChainID            uint64   `yaml:"chain_id"`
	Address            string   `yaml:"address"`
	ChainInterface     string   `yaml:"chain_interface"`
	SetupAuthority     string   `yaml:"setup_authority"`
	Governance         string   `yaml:"governance"`
	FeeAdministrator   string   `yaml:"fee_administrator"`
	Assets             []string `yaml:"assets"`
	Weights            []uint64 `yaml:"weights"`
	OneMinusAmp        string   `yaml:"one_minus_amp"`
	PoolFee            string   `yaml:"pool_fee"`
	GovernanceFeeShare string   `yaml:"governance_fee_share"`
	InitialBalances    []string `yaml:"initial_balances"`
}

// Swap is the cross-chain swap run by the simulation, from the first pool
// to the second.
type Swap struct {
	User      string `yaml:"user"`
	FromAsset int    `yaml:"from_asset"`
	ToAsset   uint8  `yaml:"to_asset"`
	Amount    string `yaml:"amount"`
	MinOut    string `yaml:"min_out"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. An empty path falls back to $CATALYST_CONFIG; a
// missing file yields the default network.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("CATALYST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CATALYST_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CATALYST_RELAY_CRON"); v != "" {
		cfg.Relay.Cron = v
	}

	// Defaults
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.Relay.Cron == "" {
		cfg.Relay.Cron = "@every 5s"
	}
	if cfg.Relay.PacketTimeout == 0 {
		cfg.Relay.PacketTimeout = 60 * 60
	}
	if len(cfg.Pools) == 0 {
		cfg.Pools = defaultPools()
	}
	if cfg.Swap.User == "" {
		cfg.Swap.User = "0x000000000000000000000000000000000000a11c"
	}
	if cfg.Swap.Amount == "" {
		cfg.Swap.Amount = "1000000000000000000000"
	}

	return cfg, nil
}

func defaultPools() []Pool {
	base := Pool{
		SetupAuthority:     "0x0000000000000000000000000000000000005e70",
		Governance:         "0x0000000000000000000000000000000000009000",
		FeeAdministrator:   "0x000000000000000000000000000000000000fee0",
		Assets:             []string{"0x00000000000000000000000000000000000000a1", "0x00000000000000000000000000000000000000b2"},
		Weights:            []uint64{1, 1},
		OneMinusAmp:        "0.5",
		PoolFee:            "0.003",
		GovernanceFeeShare: "0.2",
		InitialBalances:    []string{"1000000000000000000000000", "1000000000000000000000000"},
	}
	a, b := base, base
	a.Name, a.Symbol, a.ChainID = "Catalyst A/B", "cAB-1", 1
	a.Address, a.ChainInterface = "0x0000000000000000000000000000000000009010", "0x00000000000000000000000000000000000000c1"
	b.Name, b.Symbol, b.ChainID = "Catalyst A/B", "cAB-2", 2
	b.Address, b.ChainInterface = "0x0000000000000000000000000000000000009020", "0x00000000000000000000000000000000000000c2"
	return []Pool{a, b}
}

// Validate checks that the network can be built.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	if len(c.Pools) < 2 {
		return fmt.Errorf("pools: need at least 2, got %d", len(c.Pools))
	}
	chains := make(map[uint64]string)
	deployed := make(map[string]int)
	for i := range c.Pools {
		p := &c.Pools[i]
		cfg, err := p.PoolConfig()
		if err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if _, err := p.Balances(); err != nil {
			return fmt.Errorf("pools[%d]: %w", i, err)
		}
		if iface, ok := chains[p.ChainID]; ok && iface != p.ChainInterface {
			return fmt.Errorf("pools[%d]: chain %d has two chain interfaces", i, p.ChainID)
		}
		chains[p.ChainID] = p.ChainInterface

		key := fmt.Sprintf("%d/%s", cfg.ChainID, cfg.Address.Hex())
		if j, ok := deployed[key]; ok {
			return fmt.Errorf("pools[%d]: same chain and address as pools[%d]", i, j)
		}
		deployed[key] = i
	}
	if c.Swap.FromAsset < 0 || c.Swap.FromAsset >= len(c.Pools[0].Assets) {
		return fmt.Errorf("swap.from_asset %d out of range", c.Swap.FromAsset)
	}
	if int(c.Swap.ToAsset) >= len(c.Pools[1].Assets) {
		return fmt.Errorf("swap.to_asset %d out of range", c.Swap.ToAsset)
	}
	if _, err := parseAddress("swap.user", c.Swap.User); err != nil {
		return err
	}
	if _, err := parseAmount("swap.amount", c.Swap.Amount); err != nil {
		return err
	}
	if _, err := parseOptionalAmount("swap.min_out", c.Swap.MinOut); err != nil {
		return err
	}
	return nil
}

// PoolConfig converts the section into pool setup parameters.
func (p *Pool) PoolConfig() (pool.Config, error) {
	cfg := pool.Config{
		Name:    p.Name,
		Symbol:  p.Symbol,
		ChainID: p.ChainID,
		Weights: append([]uint64(nil), p.Weights...),
	}
	var err error
	if cfg.Address, err = parseAddress("address", p.Address); err != nil {
		return pool.Config{}, err
	}
	if cfg.ChainInterface, err = parseAddress("chain_interface", p.ChainInterface); err != nil {
		return pool.Config{}, err
	}
	if cfg.SetupAuthority, err = parseAddress("setup_authority", p.SetupAuthority); err != nil {
		return pool.Config{}, err
	}
	if cfg.Governance, err = parseAddress("governance", p.Governance); err != nil {
		return pool.Config{}, err
	}
	if p.FeeAdministrator != "" {
		if cfg.FeeAdministrator, err = parseAddress("fee_administrator", p.FeeAdministrator); err != nil {
			return pool.Config{}, err
		}
	}
	for i, a := range p.Assets {
		addr, err := parseAddress(fmt.Sprintf("assets[%d]", i), a)
		if err != nil {
			return pool.Config{}, err
		}
		cfg.Assets = append(cfg.Assets, addr)
	}
	if cfg.OneMinusAmp, err = parseFraction("one_minus_amp", p.OneMinusAmp); err != nil {
		return pool.Config{}, err
	}
	if p.PoolFee != "" {
		if cfg.PoolFee, err = parseFraction("pool_fee", p.PoolFee); err != nil {
			return pool.Config{}, err
		}
	}
	if p.GovernanceFeeShare != "" {
		if cfg.GovernanceFeeShare, err = parseFraction("governance_fee_share", p.GovernanceFeeShare); err != nil {
			return pool.Config{}, err
		}
	}
	return cfg, nil
}

// Balances returns the initial balances, one per asset.
func (p *Pool) Balances() ([]*uint256.Int, error) {
	if len(p.InitialBalances) != len(p.Assets) {
		return nil, fmt.Errorf("%d initial balances for %d assets", len(p.InitialBalances), len(p.Assets))
	}
	out := make([]*uint256.Int, len(p.InitialBalances))
	for i, s := range p.InitialBalances {
		v, err := parseAmount(fmt.Sprintf("initial_balances[%d]", i), s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SwapUser returns the simulated swapper.
func (s *Swap) SwapUser() (common.Address, error) {
	return parseAddress("swap.user", s.User)
}

// Amounts returns the swap amount and minimum output.
func (s *Swap) Amounts() (amount, minOut *uint256.Int, err error) {
	if amount, err = parseAmount("swap.amount", s.Amount); err != nil {
		return nil, nil, err
	}
	if minOut, err = parseOptionalAmount("swap.min_out", s.MinOut); err != nil {
		return nil, nil, err
	}
	return amount, minOut, nil
}

// NewLogger builds the zap logger described by LogLevel and LogFormat.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseOptionalAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return parseAmount(field, s)
}

func parseFraction(field, s string) (*uint256.Int, error) {
	v, err := fixedpoint.ParseX64(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
