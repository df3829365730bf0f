// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// DecayPeriod is the time over which a full capacity of used units decays
// back to zero.
const DecayPeriod uint64 = 24 * 60 * 60

// securityLimit bounds the net units redeemable by inbound swaps.
type securityLimit struct {
	max *uint256.Int
	// pendingMax holds a decrease deferred until the active schedule
	// finalizes. nil when nothing is pending.
	pendingMax *uint256.Int

	used   *uint256.Int
	usedAt uint64
}

func newSecurityLimit() securityLimit {
	return securityLimit{
		max:  new(uint256.Int),
		used: new(uint256.Int),
	}
}

func (l securityLimit) clone() securityLimit {
	c := securityLimit{
		max:    new(uint256.Int).Set(l.max),
		used:   new(uint256.Int).Set(l.used),
		usedAt: l.usedAt,
	}
	if l.pendingMax != nil {
		c.pendingMax = new(uint256.Int).Set(l.pendingMax)
	}
	return c
}

// usedNow returns used capacity after linear decay up to now.
func (l *securityLimit) usedNow(now uint64) *uint256.Int {
	if now <= l.usedAt || l.used.IsZero() {
		return new(uint256.Int).Set(l.used)
	}
	elapsed := now - l.usedAt
	if elapsed >= DecayPeriod {
		return new(uint256.Int)
	}
	decay, overflow := new(uint256.Int).MulDivOverflow(l.max, uint256.NewInt(elapsed), uint256.NewInt(DecayPeriod))
	if overflow || !decay.Lt(l.used) {
		return new(uint256.Int)
	}
	return decay.Sub(l.used, decay)
}

// available returns the units that may still be redeemed at now.
func (l *securityLimit) available(now uint64) *uint256.Int {
	used := l.usedNow(now)
	if !used.Lt(l.max) {
		return new(uint256.Int)
	}
	return used.Sub(l.max, used)
}

// consume records units redeemed by an inbound swap.
func (l *securityLimit) consume(units *uint256.Int, now uint64) error {
	used := l.usedNow(now)
	next, overflow := new(uint256.Int).AddOverflow(used, units)
	if overflow || next.Gt(l.max) {
		return errorsmod.Wrapf(ErrSecurityLimitExceeded, "units %s, used %s, capacity %s", units, used, l.max)
	}
	l.used = next
	l.usedAt = now
	return nil
}

// release returns units of an acknowledged outbound swap to the capacity.
func (l *securityLimit) release(units *uint256.Int, now uint64) {
	used := l.usedNow(now)
	if units.Gt(used) {
		used.Clear()
	} else {
		used.Sub(used, units)
	}
	l.used = used
	l.usedAt = now
}

// recalculate applies a new capacity. Increases apply immediately and
// supersede any pending decrease; decreases wait for finalize when
// deferDecrease is set.
func (l *securityLimit) recalculate(capacity *uint256.Int, deferDecrease bool) {
	if !capacity.Lt(l.max) || !deferDecrease {
		l.max = new(uint256.Int).Set(capacity)
		l.pendingMax = nil
		return
	}
	l.pendingMax = new(uint256.Int).Set(capacity)
}
