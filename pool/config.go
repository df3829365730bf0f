// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/sengulatik66/catalyst/curve"
	"github.com/sengulatik66/catalyst/fixedpoint"
)

// MaxAssets is the number of asset slots in a pool.
const MaxAssets = 3

// MaxWeight bounds initial and scheduled weights so that weighted curve
// terms stay far from the 256-bit ceiling.
const MaxWeight uint64 = 1 << 48

var (
	// InitialShares are minted to the depositor of the initial balances.
	InitialShares = uint256.NewInt(1_000_000_000_000_000_000)

	// MaxPoolFee is 10% in X64.
	MaxPoolFee = new(uint256.Int).Div(fixedpoint.One, uint256.NewInt(10))

	// MaxGovernanceFeeShare is 75% of the pool fee in X64.
	MaxGovernanceFeeShare = new(uint256.Int).Div(new(uint256.Int).Mul(fixedpoint.One, uint256.NewInt(3)), uint256.NewInt(4))
)

// Config contains the one-time setup parameters of a pool.
type Config struct {
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
	ChainID uint64         `json:"chainId"`
	Address common.Address `json:"address"`

	Assets  []common.Address `json:"assets"`
	Weights []uint64         `json:"weights"`

	// OneMinusAmp is 1-k in X64; it must lie strictly between 0 and 1.
	OneMinusAmp *uint256.Int `json:"oneMinusAmp"`

	// PoolFee and GovernanceFeeShare are X64 fractions.
	PoolFee            *uint256.Int `json:"poolFee"`
	GovernanceFeeShare *uint256.Int `json:"governanceFeeShare"`

	FeeAdministrator common.Address `json:"feeAdministrator"`
	ChainInterface   common.Address `json:"chainInterface"`
	SetupAuthority   common.Address `json:"setupAuthority"`
	Governance       common.Address `json:"governance"`
}

// Validate checks the setup parameters.
func (c *Config) Validate() error {
	if c.Address == (common.Address{}) {
		return errorsmod.Wrap(ErrInvalidConfig, "pool address is zero")
	}
	if len(c.Assets) == 0 || len(c.Assets) > MaxAssets {
		return errorsmod.Wrapf(ErrInvalidConfig, "asset count %d not in [1, %d]", len(c.Assets), MaxAssets)
	}
	if len(c.Weights) != len(c.Assets) {
		return errorsmod.Wrapf(ErrInvalidConfig, "%d weights for %d assets", len(c.Weights), len(c.Assets))
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		if asset == (common.Address{}) {
			return errorsmod.Wrapf(ErrInvalidConfig, "asset %d is zero address", i)
		}
		if _, dup := seen[asset]; dup {
			return errorsmod.Wrapf(ErrInvalidConfig, "duplicate asset %s", asset.Hex())
		}
		seen[asset] = struct{}{}
		if c.Weights[i] == 0 || c.Weights[i] > MaxWeight {
			return errorsmod.Wrapf(ErrInvalidConfig, "weight %d of asset %d", c.Weights[i], i)
		}
	}
	if err := curve.ValidateAmplification(c.OneMinusAmp); err != nil {
		return errorsmod.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.PoolFee != nil && c.PoolFee.Gt(MaxPoolFee) {
		return errorsmod.Wrapf(ErrInvalidConfig, "pool fee %s above maximum", c.PoolFee)
	}
	if c.GovernanceFeeShare != nil && c.GovernanceFeeShare.Gt(MaxGovernanceFeeShare) {
		return errorsmod.Wrapf(ErrInvalidConfig, "governance fee share %s above maximum", c.GovernanceFeeShare)
	}
	return nil
}

func (c *Config) poolFee() *uint256.Int {
	if c.PoolFee == nil {
		return new(uint256.Int)
	}
	return c.PoolFee
}

func (c *Config) governanceFeeShare() *uint256.Int {
	if c.GovernanceFeeShare == nil {
		return new(uint256.Int)
	}
	return c.GovernanceFeeShare
}
