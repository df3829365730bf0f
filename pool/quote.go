// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/sengulatik66/catalyst/curve"
)

// at returns a copy of the state with the schedule advanced to now.
func (p *Pool) at(ctx context.Context, now uint64) (*state, error) {
	var (
		st  *state
		err error
	)
	p.view(ctx, func(cur *state) {
		st = cur.clone()
		err = st.advance(now)
	})
	return st, err
}

// QuoteLocalSwap returns the output of LocalSwap at now, fees included.
func (p *Pool) QuoteLocalSwap(ctx context.Context, fromAsset, toAsset common.Address, amount *uint256.Int, now uint64) (*uint256.Int, error) {
	from, err := p.assetIndex(fromAsset)
	if err != nil {
		return nil, err
	}
	to, err := p.assetIndex(toAsset)
	if err != nil {
		return nil, err
	}
	st, err := p.at(ctx, now)
	if err != nil {
		return nil, err
	}
	amount = orZero(amount)
	fee, _, err := p.fees(amount)
	if err != nil {
		return nil, err
	}
	in := new(uint256.Int).Sub(amount, fee)
	out, err := curve.OutputForInput(in, st.balances[from], st.netBalance(to), st.weights[from], st.weights[to], st.oneMinusAmp)
	return out, wrapMath(err)
}

// QuoteSendAsset returns the units SendAsset would carry for amount.
func (p *Pool) QuoteSendAsset(ctx context.Context, fromAsset common.Address, amount *uint256.Int, now uint64) (*uint256.Int, error) {
	i, err := p.assetIndex(fromAsset)
	if err != nil {
		return nil, err
	}
	st, err := p.at(ctx, now)
	if err != nil {
		return nil, err
	}
	amount = orZero(amount)
	fee, _, err := p.fees(amount)
	if err != nil {
		return nil, err
	}
	units, err := curve.UnitsForInput(new(uint256.Int).Sub(amount, fee), st.balances[i], st.weights[i], st.oneMinusAmp)
	return units, wrapMath(err)
}

// QuoteReceiveAsset returns the output ReceiveAsset would pay for units.
// It does not check the security limit.
func (p *Pool) QuoteReceiveAsset(ctx context.Context, toAsset uint8, units *uint256.Int, now uint64) (*uint256.Int, error) {
	if err := p.checkIndex(toAsset); err != nil {
		return nil, err
	}
	st, err := p.at(ctx, now)
	if err != nil {
		return nil, err
	}
	i := int(toAsset)
	out, err := curve.OutputForUnits(orZero(units), st.netBalance(i), st.weights[i], st.oneMinusAmp)
	return out, wrapMath(err)
}

// UnitCapacity returns the units inbound swaps may still redeem at now.
func (p *Pool) UnitCapacity(ctx context.Context, now uint64) (*uint256.Int, error) {
	st, err := p.at(ctx, now)
	if err != nil {
		return nil, err
	}
	return st.limit.available(now), nil
}

// MaxUnitCapacity returns the current security limit, ignoring decay.
func (p *Pool) MaxUnitCapacity(ctx context.Context) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) { out = new(uint256.Int).Set(st.limit.max) })
	return out
}

// PendingUnitCapacity returns the capacity decrease waiting for the active
// schedule to finalize, or nil when none is pending.
func (p *Pool) PendingUnitCapacity(ctx context.Context) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) {
		if st.limit.pendingMax != nil {
			out = new(uint256.Int).Set(st.limit.pendingMax)
		}
	})
	return out
}

// ReferenceBalance returns walpha_0 over balances net of escrow.
func (p *Pool) ReferenceBalance(ctx context.Context) (*uint256.Int, error) {
	var (
		ref *uint256.Int
		err error
	)
	p.view(ctx, func(st *state) { ref, err = st.reference(st.netBalances()) })
	return ref, err
}
