// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/sengulatik66/catalyst/fixedpoint"
)

// Adjustment windows and step bounds for parameter schedules.
const (
	MinAdjustmentTime uint64 = 2 * 24 * 60 * 60
	MaxAdjustmentTime uint64 = 365 * 24 * 60 * 60

	MaxWeightChange uint64 = 10
	MaxAmpChange    uint64 = 2
)

// ScheduleKind identifies the parameter being adjusted.
type ScheduleKind uint8

const (
	ScheduleIdle ScheduleKind = iota
	ScheduleWeights
	ScheduleAmplification
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleIdle:
		return "idle"
	case ScheduleWeights:
		return "weights"
	case ScheduleAmplification:
		return "amplification"
	default:
		return "unknown"
	}
}

// schedule interpolates either the weights or the amplification, never both.
type schedule struct {
	kind         ScheduleKind
	startTime    uint64
	targetTime   uint64
	lastModified uint64

	startWeights  []uint64
	targetWeights []uint64

	startAmp  *uint256.Int
	targetAmp *uint256.Int
}

func (s schedule) active() bool {
	return s.kind != ScheduleIdle
}

func (s schedule) clone() schedule {
	c := s
	c.startWeights = append([]uint64(nil), s.startWeights...)
	c.targetWeights = append([]uint64(nil), s.targetWeights...)
	if s.startAmp != nil {
		c.startAmp = new(uint256.Int).Set(s.startAmp)
	}
	if s.targetAmp != nil {
		c.targetAmp = new(uint256.Int).Set(s.targetAmp)
	}
	return c
}

// ScheduleInfo describes the active schedule.
type ScheduleInfo struct {
	Kind         ScheduleKind
	StartTime    uint64
	TargetTime   uint64
	LastModified uint64

	TargetWeights []uint64
	TargetAmp     *uint256.Int
}

func (s schedule) info() ScheduleInfo {
	c := s.clone()
	return ScheduleInfo{
		Kind:          c.kind,
		StartTime:     c.startTime,
		TargetTime:    c.targetTime,
		LastModified:  c.lastModified,
		TargetWeights: c.targetWeights,
		TargetAmp:     c.targetAmp,
	}
}

func checkTargetTime(targetTime, now uint64) error {
	if targetTime < now+MinAdjustmentTime {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "target time %d earlier than %d", targetTime, now+MinAdjustmentTime)
	}
	if targetTime > now+MaxAdjustmentTime {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "target time %d later than %d", targetTime, now+MaxAdjustmentTime)
	}
	return nil
}

// withinFactor reports whether target lies in [current/factor, current*factor].
func withinFactor(current, target *uint256.Int, factor uint64) bool {
	f := uint256.NewInt(factor)
	hi, overflow := new(uint256.Int).MulOverflow(current, f)
	if !overflow && target.Gt(hi) {
		return false
	}
	lo, overflow := new(uint256.Int).MulOverflow(target, f)
	return overflow || !lo.Lt(current)
}

func (st *state) startWeightSchedule(targets []uint64, targetTime, now uint64) error {
	if st.schedule.active() {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "%s adjustment in progress", st.schedule.kind)
	}
	if err := checkTargetTime(targetTime, now); err != nil {
		return err
	}
	if len(targets) != len(st.weights) {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "%d weights for %d assets", len(targets), len(st.weights))
	}
	for i, target := range targets {
		if target == 0 || target > MaxWeight {
			return errorsmod.Wrapf(ErrInvalidScheduleState, "weight %d of asset %d", target, i)
		}
		if !withinFactor(uint256.NewInt(st.weights[i]), uint256.NewInt(target), MaxWeightChange) {
			return errorsmod.Wrapf(ErrInvalidScheduleState, "weight %d of asset %d moves more than %dx from %d",
				target, i, MaxWeightChange, st.weights[i])
		}
	}
	st.schedule = schedule{
		kind:          ScheduleWeights,
		startTime:     now,
		targetTime:    targetTime,
		lastModified:  now,
		startWeights:  append([]uint64(nil), st.weights...),
		targetWeights: append([]uint64(nil), targets...),
	}
	return nil
}

func (st *state) startAmpSchedule(target *uint256.Int, targetTime, now uint64) error {
	if st.schedule.active() {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "%s adjustment in progress", st.schedule.kind)
	}
	if err := checkTargetTime(targetTime, now); err != nil {
		return err
	}
	if target == nil || target.IsZero() || !target.Lt(fixedpoint.One) {
		return errorsmod.Wrap(ErrInvalidScheduleState, "amplification target out of range")
	}
	if !withinFactor(st.oneMinusAmp, target, MaxAmpChange) {
		return errorsmod.Wrapf(ErrInvalidScheduleState, "amplification target moves more than %dx", MaxAmpChange)
	}
	st.schedule = schedule{
		kind:         ScheduleAmplification,
		startTime:    now,
		targetTime:   targetTime,
		lastModified: now,
		startAmp:     new(uint256.Int).Set(st.oneMinusAmp),
		targetAmp:    new(uint256.Int).Set(target),
	}
	return nil
}

// advance moves the scheduled parameter to its value at now. Past the
// target time the schedule finalizes: the parameter snaps to its target
// and any deferred capacity decrease applies.
func (st *state) advance(now uint64) error {
	s := &st.schedule
	if !s.active() || now <= s.lastModified {
		return nil
	}

	if now >= s.targetTime {
		switch s.kind {
		case ScheduleWeights:
			st.weights = append([]uint64(nil), s.targetWeights...)
		case ScheduleAmplification:
			st.oneMinusAmp = new(uint256.Int).Set(s.targetAmp)
		}
		st.schedule = schedule{}
		return st.refreshLimit(false)
	}

	elapsed := now - s.startTime
	total := s.targetTime - s.startTime
	switch s.kind {
	case ScheduleWeights:
		for i := range st.weights {
			w := interpolate(uint256.NewInt(s.startWeights[i]), uint256.NewInt(s.targetWeights[i]), elapsed, total)
			st.weights[i] = w.Uint64()
		}
	case ScheduleAmplification:
		st.oneMinusAmp = interpolate(s.startAmp, s.targetAmp, elapsed, total)
	}
	s.lastModified = now
	return st.refreshLimit(true)
}

// interpolate returns start + (target-start)·elapsed/total, rounded towards
// start. elapsed < total.
func interpolate(start, target *uint256.Int, elapsed, total uint64) *uint256.Int {
	e, t := uint256.NewInt(elapsed), uint256.NewInt(total)
	if !target.Lt(start) {
		step, _ := new(uint256.Int).MulDivOverflow(new(uint256.Int).Sub(target, start), e, t)
		return step.Add(start, step)
	}
	step, _ := new(uint256.Int).MulDivOverflow(new(uint256.Int).Sub(start, target), e, t)
	return step.Sub(start, step)
}
