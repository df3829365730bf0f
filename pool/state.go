// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/sengulatik66/catalyst/curve"
)

type connection struct {
	chainID uint64
	pool    common.Address
}

// state is everything an operation may mutate. Operations run against
// p.st and restore a clone taken on entry when they fail.
type state struct {
	// balances are gross: they include escrowed amounts.
	balances []*uint256.Int
	escrowed []*uint256.Int

	weights     []uint64
	oneMinusAmp *uint256.Int

	// unitTracker is units sold minus units bought, in X64.
	unitTracker *big.Int

	totalSupply    *uint256.Int
	escrowedShares *uint256.Int
	shares         map[common.Address]*uint256.Int

	schedule schedule
	limit    securityLimit

	connections    map[connection]bool
	pendingEscrows int

	setupAuthority common.Address
	initialized    bool
}

func newState(cfg *Config) *state {
	n := len(cfg.Assets)
	st := &state{
		balances:       make([]*uint256.Int, n),
		escrowed:       make([]*uint256.Int, n),
		weights:        append([]uint64(nil), cfg.Weights...),
		oneMinusAmp:    new(uint256.Int).Set(cfg.OneMinusAmp),
		unitTracker:    new(big.Int),
		totalSupply:    new(uint256.Int),
		escrowedShares: new(uint256.Int),
		shares:         make(map[common.Address]*uint256.Int),
		limit:          newSecurityLimit(),
		connections:    make(map[connection]bool),
		setupAuthority: cfg.SetupAuthority,
	}
	for i := 0; i < n; i++ {
		st.balances[i] = new(uint256.Int)
		st.escrowed[i] = new(uint256.Int)
	}
	return st
}

func cloneInts(xs []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(xs))
	for i, x := range xs {
		out[i] = new(uint256.Int).Set(x)
	}
	return out
}

func (st *state) clone() *state {
	c := &state{
		balances:       cloneInts(st.balances),
		escrowed:       cloneInts(st.escrowed),
		weights:        append([]uint64(nil), st.weights...),
		oneMinusAmp:    new(uint256.Int).Set(st.oneMinusAmp),
		unitTracker:    new(big.Int).Set(st.unitTracker),
		totalSupply:    new(uint256.Int).Set(st.totalSupply),
		escrowedShares: new(uint256.Int).Set(st.escrowedShares),
		shares:         make(map[common.Address]*uint256.Int, len(st.shares)),
		schedule:       st.schedule.clone(),
		limit:          st.limit.clone(),
		connections:    make(map[connection]bool, len(st.connections)),
		pendingEscrows: st.pendingEscrows,
		setupAuthority: st.setupAuthority,
		initialized:    st.initialized,
	}
	for k, v := range st.shares {
		c.shares[k] = new(uint256.Int).Set(v)
	}
	for k, v := range st.connections {
		c.connections[k] = v
	}
	return c
}

func (st *state) netBalance(i int) *uint256.Int {
	if st.escrowed[i].Gt(st.balances[i]) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(st.balances[i], st.escrowed[i])
}

func (st *state) netBalances() []*uint256.Int {
	out := make([]*uint256.Int, len(st.balances))
	for i := range st.balances {
		out[i] = st.netBalance(i)
	}
	return out
}

// reference returns walpha_0 for the given balance view.
func (st *state) reference(balances []*uint256.Int) (*uint256.Int, error) {
	sum, err := curve.WeightedBalanceSum(balances, st.weights, st.oneMinusAmp)
	if err != nil {
		return nil, wrapMath(err)
	}
	ref, err := curve.ReferenceBalance(sum, st.unitTracker, len(balances))
	return ref, wrapMath(err)
}

// refreshLimit recomputes the unit capacity from net balances. Decreases
// are deferred while a schedule is active and deferDecrease is set.
func (st *state) refreshLimit(deferDecrease bool) error {
	sum, err := curve.WeightedBalanceSum(st.netBalances(), st.weights, st.oneMinusAmp)
	if err != nil {
		return wrapMath(err)
	}
	capacity, err := curve.MaxUnitCapacity(sum, st.oneMinusAmp)
	if err != nil {
		return wrapMath(err)
	}
	st.limit.recalculate(capacity, deferDecrease && st.schedule.active())
	return nil
}

func (st *state) shareBalance(account common.Address) *uint256.Int {
	if b, ok := st.shares[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (st *state) mintShares(to common.Address, amount *uint256.Int) {
	b, ok := st.shares[to]
	if !ok {
		b = new(uint256.Int)
		st.shares[to] = b
	}
	b.Add(b, amount)
	st.totalSupply.Add(st.totalSupply, amount)
}

func (st *state) burnShares(from common.Address, amount *uint256.Int) error {
	b := st.shareBalance(from)
	if b.Lt(amount) {
		return errorsmod.Wrapf(ErrInvalidAmount, "%s holds %s shares, burning %s", from.Hex(), b, amount)
	}
	b.Sub(b, amount)
	if b.IsZero() {
		delete(st.shares, from)
	}
	st.totalSupply.Sub(st.totalSupply, amount)
	return nil
}

// effectiveSupply counts shares escrowed by pending liquidity swaps.
func (st *state) effectiveSupply() *uint256.Int {
	return new(uint256.Int).Add(st.totalSupply, st.escrowedShares)
}

func (st *state) addUnits(units *uint256.Int) {
	st.unitTracker.Add(st.unitTracker, units.ToBig())
}

func (st *state) subUnits(units *uint256.Int) {
	st.unitTracker.Sub(st.unitTracker, units.ToBig())
}
