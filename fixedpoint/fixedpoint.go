// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements the X64 fixed-point arithmetic used by the
// amplified invariant. Values are unsigned 256-bit integers scaled by 2^64.
//
// Rounding is directional and documented per function. Callers that pay
// value out of a pool are expected to combine the down-rounding and
// up-rounding variants so the pool never pays more than the curve implies.
package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Fractional bits of an X64 value.
const Bits = 64

// powMarginBits controls the upward bias of PowUpX64. It must dominate the
// approximation error of PowX64, which is below 2^-58 relative.
const powMarginBits = 40

var (
	// One is 1.0 in X64.
	One = new(uint256.Int).Lsh(uint256.NewInt(1), Bits)

	// Two is 2.0 in X64.
	Two = new(uint256.Int).Lsh(uint256.NewInt(2), Bits)

	// MaxBalance is the largest integer amount that can be lifted into X64
	// without losing the top bits of a 256-bit word.
	MaxBalance = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 256-Bits), uint256.NewInt(1))

	// ln(2) scaled by 2^128.
	ln2X128 = uint256.MustFromHex("0xb17217f7d1cf79abc9e3b39803f2f6af")

	one128   = new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	oneSq    = new(uint256.Int).Lsh(uint256.NewInt(1), 2*Bits)
	fracMask = new(uint256.Int).Sub(One, uint256.NewInt(1))
)

// Errors
var (
	ErrOverflow       = errors.New("fixed point overflow")
	ErrDivisionByZero = errors.New("fixed point division by zero")
	ErrOutOfDomain    = errors.New("fixed point argument out of domain")
)

// FromUint64 lifts an integer into X64.
func FromUint64(v uint64) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(v), Bits)
}

// FromInt lifts an integer amount into X64. Amounts above MaxBalance are
// rejected with ErrOverflow.
func FromInt(v *uint256.Int) (*uint256.Int, error) {
	if v.Gt(MaxBalance) {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Lsh(v, Bits), nil
}

// Floor truncates an X64 value to its integer part.
func Floor(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, Bits)
}

// Ceil rounds an X64 value up to the next integer.
func Ceil(x *uint256.Int) *uint256.Int {
	z := new(uint256.Int).Rsh(x, Bits)
	if !new(uint256.Int).And(x, fracMask).IsZero() {
		z.AddUint64(z, 1)
	}
	return z
}

// Fraction returns num/den in X64, rounded down.
func Fraction(num, den uint64) (*uint256.Int, error) {
	return DivX64(FromUint64(num), FromUint64(den))
}

// ParseX64 parses a decimal string such as "0.5" into X64, rounded down.
func ParseX64(s string) (*uint256.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, ErrOutOfDomain
	}
	num := new(big.Int).Lsh(r.Num(), Bits)
	num.Quo(num, r.Denom())
	z, overflow := uint256.FromBig(num)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Float64 converts an X64 value for display purposes only.
func Float64(x *uint256.Int) float64 {
	f, _ := new(big.Rat).SetFrac(x.ToBig(), new(big.Int).Lsh(big.NewInt(1), Bits)).Float64()
	return f
}

// MulX64 returns a*b in X64, rounded down.
func MulX64(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, One)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulX64Up returns a*b in X64, rounded up.
func MulX64Up(a, b *uint256.Int) (*uint256.Int, error) {
	z, err := MulX64(a, b)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, b, One).IsZero() {
		if _, overflow := z.AddOverflow(z, uint256.NewInt(1)); overflow {
			return nil, ErrOverflow
		}
	}
	return z, nil
}

// DivX64 returns a/b in X64, rounded down.
func DivX64(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, One, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// DivX64Up returns a/b in X64, rounded up.
func DivX64Up(a, b *uint256.Int) (*uint256.Int, error) {
	z, err := DivX64(a, b)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(a, One, b).IsZero() {
		if _, overflow := z.AddOverflow(z, uint256.NewInt(1)); overflow {
			return nil, ErrOverflow
		}
	}
	return z, nil
}

// Log2X64 returns log2(x) for x >= 1, rounded down.
func Log2X64(x *uint256.Int) (*uint256.Int, error) {
	if x.Lt(One) {
		return nil, ErrOutOfDomain
	}
	n := uint(x.BitLen() - (Bits + 1))
	result := new(uint256.Int).Lsh(uint256.NewInt(uint64(n)), Bits)

	// y in [1, 2)
	y := new(uint256.Int).Rsh(x, n)
	for i := Bits - 1; i >= 0; i-- {
		y.Mul(y, y)
		y.Rsh(y, Bits)
		if !y.Lt(Two) {
			result.Or(result, new(uint256.Int).Lsh(uint256.NewInt(1), uint(i)))
			y.Rsh(y, 1)
		}
	}
	return result, nil
}

// Exp2X64 returns 2^y, rounded down. The integer part of y must be below
// 192 or the result does not fit in 256 bits.
func Exp2X64(y *uint256.Int) (*uint256.Int, error) {
	intPart := new(uint256.Int).Rsh(y, Bits)
	if !intPart.IsUint64() || intPart.Uint64() >= 256-Bits {
		return nil, ErrOverflow
	}
	frac := new(uint256.Int).And(y, fracMask)

	// z = frac * ln2 in X128, then e^z by its Taylor series.
	z := new(uint256.Int).Mul(frac, ln2X128)
	z.Rsh(z, Bits)

	sum := new(uint256.Int).Set(one128)
	term := new(uint256.Int).Set(one128)
	for n := uint64(1); n < 48; n++ {
		term.Mul(term, z)
		term.Rsh(term, 128)
		term.Div(term, uint256.NewInt(n))
		if term.IsZero() {
			break
		}
		sum.Add(sum, term)
	}

	sum.Rsh(sum, 128-Bits)
	return sum.Lsh(sum, uint(intPart.Uint64())), nil
}

// PowX64 returns x^p for X64 x and p. The result is rounded down when
// x >= 1 and rounded up when x < 1.
func PowX64(x, p *uint256.Int) (*uint256.Int, error) {
	if p.IsZero() {
		return new(uint256.Int).Set(One), nil
	}
	if x.IsZero() {
		return new(uint256.Int), nil
	}
	if !x.Lt(One) {
		return powAboveOne(x, p)
	}

	// x^p = 1/(1/x)^p
	inv := new(uint256.Int).Div(oneSq, x)
	r, err := powAboveOne(inv, p)
	if err != nil {
		return nil, err
	}
	return DivX64Up(One, r)
}

// PowUpX64 returns x^p biased upwards by a relative margin that exceeds
// the approximation error of PowX64.
func PowUpX64(x, p *uint256.Int) (*uint256.Int, error) {
	r, err := PowX64(x, p)
	if err != nil {
		return nil, err
	}
	margin := new(uint256.Int).Rsh(r, powMarginBits)
	margin.AddUint64(margin, 1)
	if _, overflow := r.AddOverflow(r, margin); overflow {
		return nil, ErrOverflow
	}
	return r, nil
}

// InvPowX64 returns x^-p. The result is rounded up when x >= 1.
func InvPowX64(x, p *uint256.Int) (*uint256.Int, error) {
	if x.IsZero() {
		return nil, ErrDivisionByZero
	}
	if !x.Lt(One) {
		r, err := powAboveOne(x, p)
		if err != nil {
			return nil, err
		}
		return DivX64Up(One, r)
	}
	inv := new(uint256.Int).Div(oneSq, x)
	return powAboveOne(inv, p)
}

func powAboveOne(x, p *uint256.Int) (*uint256.Int, error) {
	l, err := Log2X64(x)
	if err != nil {
		return nil, err
	}
	e, err := MulX64(l, p)
	if err != nil {
		return nil, err
	}
	return Exp2X64(e)
}
