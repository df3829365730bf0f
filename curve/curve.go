// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package curve prices swaps and liquidity changes on the amplified
// invariant
//
//	Σ W_i · A_i^(1-k)
//
// where W_i is the asset weight, A_i its balance and k the amplification.
// Units, the chain-agnostic value carried between pools, are X64 values of
// this invariant. All functions are pure; pool state is passed in.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/sengulatik66/catalyst/fixedpoint"
)

var (
	ErrBalanceOutOfRange     = errors.New("balance out of range")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidWeight         = errors.New("invalid weight")
	ErrInvalidAmplification  = errors.New("invalid amplification")
	ErrLengthMismatch        = errors.New("balances and weights length mismatch")
)

// ValidateAmplification checks that oneMinusAmp is strictly between 0 and 1.
// 1-k = 1 is the unamplified curve and is not served by this package.
func ValidateAmplification(oneMinusAmp *uint256.Int) error {
	if oneMinusAmp == nil || oneMinusAmp.IsZero() || !oneMinusAmp.Lt(fixedpoint.One) {
		return ErrInvalidAmplification
	}
	return nil
}

// lift converts an integer amount to X64, failing before any curve math
// when the amount cannot be represented.
func lift(v *uint256.Int) (*uint256.Int, error) {
	x, err := fixedpoint.FromInt(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBalanceOutOfRange, v)
	}
	return x, nil
}

// inverseExponent returns 1/(1-k), rounded down.
func inverseExponent(oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.DivX64(fixedpoint.One, oneMinusAmp)
}

func mulWeight(x *uint256.Int, weight uint64) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, uint256.NewInt(weight))
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	return z, nil
}

// UnitsForInput returns the units bought by selling input into an asset
// with the given balance:
//
//	U = W · ((A + input)^(1-k) - A^(1-k))
//
// The first power rounds down and the second up, so U never overstates
// the integral. The upward margin of the second power is about A·2^-40,
// so inputs below roughly A·2^-39 buy zero units: U is non-decreasing in
// input everywhere and strictly increasing only above that dust floor.
func UnitsForInput(input, balance *uint256.Int, weight uint64, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if weight == 0 {
		return nil, ErrInvalidWeight
	}
	total, overflow := new(uint256.Int).AddOverflow(balance, input)
	if overflow {
		return nil, ErrBalanceOutOfRange
	}
	if input.IsZero() {
		return new(uint256.Int), nil
	}

	totalX, err := lift(total)
	if err != nil {
		return nil, err
	}
	balanceX, err := lift(balance)
	if err != nil {
		return nil, err
	}

	hi, err := fixedpoint.PowX64(totalX, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	lo, err := fixedpoint.PowUpX64(balanceX, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if !hi.Gt(lo) {
		return new(uint256.Int), nil
	}
	return mulWeight(hi.Sub(hi, lo), weight)
}

// OutputForUnits returns the amount released by redeeming units against an
// asset with the given balance:
//
//	out = B · (1 - ((W·B^(1-k) - U) / (W·B^(1-k)))^(1/(1-k)))
//
// It fails with ErrInsufficientLiquidity when U reaches W·B^(1-k).
func OutputForUnits(units, balance *uint256.Int, weight uint64, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if weight == 0 {
		return nil, ErrInvalidWeight
	}
	if units.IsZero() {
		return new(uint256.Int), nil
	}
	if balance.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	balanceX, err := lift(balance)
	if err != nil {
		return nil, err
	}
	p, err := fixedpoint.PowUpX64(balanceX, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	s, err := mulWeight(p, weight)
	if err != nil {
		return nil, err
	}
	if !units.Lt(s) {
		return nil, fmt.Errorf("%w: units %s exceed %s", ErrInsufficientLiquidity, units, s)
	}

	ratio, err := fixedpoint.DivX64Up(new(uint256.Int).Sub(s, units), s)
	if err != nil {
		return nil, err
	}
	q, err := inverseExponent(oneMinusAmp)
	if err != nil {
		return nil, err
	}
	r, err := powBelowOne(ratio, q)
	if err != nil {
		return nil, err
	}
	kept, err := fixedpoint.MulX64Up(balance, r)
	if err != nil {
		return nil, err
	}
	if !kept.Lt(balance) {
		return new(uint256.Int), nil
	}
	return kept.Sub(balance, kept), nil
}

// OutputForInput prices a local swap by composing UnitsForInput and
// OutputForUnits. Units stay in X64 between the two steps.
func OutputForInput(
	input *uint256.Int,
	balanceIn *uint256.Int,
	balanceOut *uint256.Int,
	weightIn uint64,
	weightOut uint64,
	oneMinusAmp *uint256.Int,
) (*uint256.Int, error) {
	units, err := UnitsForInput(input, balanceIn, weightIn, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	return OutputForUnits(units, balanceOut, weightOut, oneMinusAmp)
}

// powBelowOne evaluates x^q for x < 1, where very small results underflow
// the exponent range. Those are clamped to the smallest positive X64 value
// so callers keep rounding in the pool's favour.
func powBelowOne(x, q *uint256.Int) (*uint256.Int, error) {
	r, err := fixedpoint.PowX64(x, q)
	if errors.Is(err, fixedpoint.ErrOverflow) && x.Lt(fixedpoint.One) {
		return uint256.NewInt(1), nil
	}
	if err != nil {
		return nil, err
	}
	if r.IsZero() {
		r.SetUint64(1)
	}
	return r, nil
}

// WeightedBalanceSum returns Σ W_i · A_i^(1-k) in X64. Assets with zero
// weight are unused slots and are skipped.
func WeightedBalanceSum(balances []*uint256.Int, weights []uint64, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if len(balances) != len(weights) {
		return nil, ErrLengthMismatch
	}
	sum := new(uint256.Int)
	for i, balance := range balances {
		if weights[i] == 0 {
			continue
		}
		x, err := lift(balance)
		if err != nil {
			return nil, err
		}
		p, err := fixedpoint.PowX64(x, oneMinusAmp)
		if err != nil {
			return nil, err
		}
		wp, err := mulWeight(p, weights[i])
		if err != nil {
			return nil, err
		}
		if _, overflow := sum.AddOverflow(sum, wp); overflow {
			return nil, fixedpoint.ErrOverflow
		}
	}
	return sum, nil
}

// ReferenceBalance returns walpha_0, the weighted reference balance per
// asset: (Σ W_i·A_i^(1-k) - unitTracker) / n. Units sold but not yet
// reflected as balance changes elsewhere are carried by unitTracker.
func ReferenceBalance(weightedSum *uint256.Int, unitTracker *big.Int, n int) (*uint256.Int, error) {
	if n <= 0 {
		return nil, ErrLengthMismatch
	}
	ref := new(big.Int).Sub(weightedSum.ToBig(), unitTracker)
	if ref.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reference balance %s", ErrInsufficientLiquidity, ref)
	}
	ref.Quo(ref, big.NewInt(int64(n)))
	z, overflow := uint256.FromBig(ref)
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	return z, nil
}

// MaxUnitCapacity returns the units needed to halve every asset of a pool
// with the given weighted balance sum: Σ W_i·A_i^(1-k) · (1 - 2^-(1-k)).
func MaxUnitCapacity(weightedSum, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	half, err := fixedpoint.InvPowX64(fixedpoint.Two, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if !half.Lt(fixedpoint.One) {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulX64(weightedSum, new(uint256.Int).Sub(fixedpoint.One, half))
}

// DepositAmounts returns the per-asset amounts needed to mint shares of a
// pool with totalSupply outstanding, keeping the reference balance per
// share constant. Balances are gross, including escrowed amounts. Every
// amount is rounded up.
//
//	d    = walpha_0 · (((ts + shares) / ts)^(1-k) - 1)
//	A_i' = (A_i^(1-k) + d / W_i)^(1/(1-k))
func DepositAmounts(
	shares *uint256.Int,
	totalSupply *uint256.Int,
	walpha0 *uint256.Int,
	balances []*uint256.Int,
	weights []uint64,
	oneMinusAmp *uint256.Int,
) ([]*uint256.Int, error) {
	if len(balances) != len(weights) {
		return nil, ErrLengthMismatch
	}
	if totalSupply.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	amounts := make([]*uint256.Int, len(balances))
	for i := range amounts {
		amounts[i] = new(uint256.Int)
	}
	if shares.IsZero() {
		return amounts, nil
	}

	grown, overflow := new(uint256.Int).AddOverflow(totalSupply, shares)
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	growth, err := fixedpoint.DivX64Up(grown, totalSupply)
	if err != nil {
		return nil, err
	}
	g, err := fixedpoint.PowUpX64(growth, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if !g.Gt(fixedpoint.One) {
		return amounts, nil
	}
	d, err := fixedpoint.MulX64Up(walpha0, g.Sub(g, fixedpoint.One))
	if err != nil {
		return nil, err
	}
	q, err := inverseExponent(oneMinusAmp)
	if err != nil {
		return nil, err
	}

	for i, balance := range balances {
		if weights[i] == 0 {
			continue
		}
		x, err := lift(balance)
		if err != nil {
			return nil, err
		}
		top, err := fixedpoint.PowUpX64(x, oneMinusAmp)
		if err != nil {
			return nil, err
		}
		step, rem := new(uint256.Int).DivMod(d, uint256.NewInt(weights[i]), new(uint256.Int))
		if !rem.IsZero() {
			step.AddUint64(step, 1)
		}
		if _, overflow := top.AddOverflow(top, step); overflow {
			return nil, fixedpoint.ErrOverflow
		}
		target, err := fixedpoint.PowUpX64(top, q)
		if err != nil {
			return nil, err
		}
		next := fixedpoint.Ceil(target)
		if next.Gt(balance) {
			amounts[i].Sub(next, balance)
		}
	}
	return amounts, nil
}

// WithdrawAmounts returns the per-asset amounts released by burning shares
// out of effectiveSupply, the total supply plus shares escrowed by pending
// liquidity swaps. Balances are net of escrowed amounts. Every amount is
// rounded down and capped at the proportional share A_i · shares / supply.
//
//	d    = walpha_0 · (1 - ((ts - shares) / ts)^(1-k))
//	A_i' = (A_i^(1-k) - d / W_i)^(1/(1-k))
func WithdrawAmounts(
	shares *uint256.Int,
	effectiveSupply *uint256.Int,
	walpha0 *uint256.Int,
	balances []*uint256.Int,
	weights []uint64,
	oneMinusAmp *uint256.Int,
) ([]*uint256.Int, error) {
	if len(balances) != len(weights) {
		return nil, ErrLengthMismatch
	}
	amounts := make([]*uint256.Int, len(balances))
	for i := range amounts {
		amounts[i] = new(uint256.Int)
	}
	if shares.IsZero() {
		return amounts, nil
	}
	d, err := shareValue(shares, effectiveSupply, walpha0, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	q, err := inverseExponent(oneMinusAmp)
	if err != nil {
		return nil, err
	}

	for i, balance := range balances {
		if weights[i] == 0 || balance.IsZero() {
			continue
		}
		share, overflow := new(uint256.Int).MulDivOverflow(balance, shares, effectiveSupply)
		if overflow {
			return nil, fixedpoint.ErrOverflow
		}

		x, err := lift(balance)
		if err != nil {
			return nil, err
		}
		top, err := fixedpoint.PowUpX64(x, oneMinusAmp)
		if err != nil {
			return nil, err
		}
		step := new(uint256.Int).Div(d, uint256.NewInt(weights[i]))
		if !step.Lt(top) {
			amounts[i] = share
			continue
		}
		remaining := new(uint256.Int).Sub(top, step)
		var target *uint256.Int
		if remaining.Lt(fixedpoint.One) {
			target, err = powBelowOne(remaining, q)
		} else {
			target, err = fixedpoint.PowUpX64(remaining, q)
		}
		if err != nil {
			return nil, err
		}
		kept := fixedpoint.Ceil(target)
		if kept.Lt(balance) {
			amounts[i].Sub(balance, kept)
		}
		if amounts[i].Gt(share) {
			amounts[i] = share
		}
	}
	return amounts, nil
}

// shareValue returns walpha_0 · (1 - ((ts - shares)/ts)^(1-k)), rounded
// down. It is the per-asset invariant released by burning shares.
func shareValue(shares, supply, walpha0, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if supply.IsZero() || shares.Gt(supply) {
		return nil, fmt.Errorf("%w: burning %s of %s shares", ErrInsufficientLiquidity, shares, supply)
	}
	shrink, err := fixedpoint.DivX64Up(new(uint256.Int).Sub(supply, shares), supply)
	if err != nil {
		return nil, err
	}
	r, err := fixedpoint.PowX64(shrink, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	if !r.Lt(fixedpoint.One) {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulX64(walpha0, r.Sub(fixedpoint.One, r))
}

// LiquidityUnitsForShares returns the units carried by a liquidity swap that
// burns shares out of effectiveSupply across n assets. Balances behind
// walpha0 are net of escrowed amounts.
func LiquidityUnitsForShares(shares, effectiveSupply, walpha0 *uint256.Int, n int, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if shares.IsZero() {
		return new(uint256.Int), nil
	}
	d, err := shareValue(shares, effectiveSupply, walpha0, oneMinusAmp)
	if err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(d, uint256.NewInt(uint64(n)))
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	return z, nil
}

// SharesForLiquidityUnits returns the shares minted for incoming liquidity
// units, rounded down:
//
//	shares = ts · ((1 + U / (n · walpha_0))^(1/(1-k)) - 1)
func SharesForLiquidityUnits(units, totalSupply, walpha0 *uint256.Int, n int, oneMinusAmp *uint256.Int) (*uint256.Int, error) {
	if units.IsZero() {
		return new(uint256.Int), nil
	}
	if totalSupply.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	base, overflow := new(uint256.Int).MulOverflow(walpha0, uint256.NewInt(uint64(n)))
	if overflow {
		return nil, fixedpoint.ErrOverflow
	}
	rel, err := fixedpoint.DivX64(units, base)
	if err != nil {
		return nil, err
	}
	if _, overflow := rel.AddOverflow(rel, fixedpoint.One); overflow {
		return nil, fixedpoint.ErrOverflow
	}
	q, err := inverseExponent(oneMinusAmp)
	if err != nil {
		return nil, err
	}
	g, err := fixedpoint.PowX64(rel, q)
	if err != nil {
		return nil, err
	}
	if !g.Gt(fixedpoint.One) {
		return new(uint256.Int), nil
	}
	return fixedpoint.MulX64(totalSupply, g.Sub(g, fixedpoint.One))
}
