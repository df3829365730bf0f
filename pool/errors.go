// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"errors"

	errorsmod "cosmossdk.io/errors"

	"github.com/sengulatik66/catalyst/curve"
	"github.com/sengulatik66/catalyst/fixedpoint"
)

// ModuleName is the codespace of the pool's registered errors.
const ModuleName = "catalyst"

// Pool errors
var (
	ErrArithmeticOverflow    = errorsmod.Register(ModuleName, 2, "arithmetic overflow")
	ErrBalanceOutOfRange     = errorsmod.Register(ModuleName, 3, "balance out of range")
	ErrInsufficientReturn    = errorsmod.Register(ModuleName, 4, "insufficient return")
	ErrSecurityLimitExceeded = errorsmod.Register(ModuleName, 5, "security limit exceeded")
	ErrInvalidCaller         = errorsmod.Register(ModuleName, 6, "invalid caller")
	ErrDuplicateEscrow       = errorsmod.Register(ModuleName, 7, "duplicate escrow")
	ErrUnknownEscrow         = errorsmod.Register(ModuleName, 8, "unknown escrow")
	ErrInvalidScheduleState  = errorsmod.Register(ModuleName, 9, "invalid schedule state")
	ErrInsufficientLiquidity = errorsmod.Register(ModuleName, 10, "insufficient liquidity")
	ErrInvalidAsset          = errorsmod.Register(ModuleName, 11, "invalid asset")
	ErrInvalidAmount         = errorsmod.Register(ModuleName, 12, "invalid amount")
	ErrNoConnection          = errorsmod.Register(ModuleName, 13, "no connection to remote pool")
	ErrReentrant             = errorsmod.Register(ModuleName, 14, "reentrancy detected")
	ErrSetupFinalized        = errorsmod.Register(ModuleName, 15, "setup finalized")
	ErrInvalidConfig         = errorsmod.Register(ModuleName, 16, "invalid pool config")
	ErrNotInitialized        = errorsmod.Register(ModuleName, 17, "pool not initialized")
	ErrAlreadyInitialized    = errorsmod.Register(ModuleName, 18, "pool already initialized")
)

// wrapMath maps curve and fixed point failures into the pool's taxonomy.
func wrapMath(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, curve.ErrBalanceOutOfRange):
		return errorsmod.Wrap(ErrBalanceOutOfRange, err.Error())
	case errors.Is(err, curve.ErrInsufficientLiquidity):
		return errorsmod.Wrap(ErrInsufficientLiquidity, err.Error())
	case errors.Is(err, curve.ErrInvalidWeight), errors.Is(err, curve.ErrInvalidAmplification):
		return errorsmod.Wrap(ErrInvalidConfig, err.Error())
	case errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrDivisionByZero),
		errors.Is(err, fixedpoint.ErrOutOfDomain):
		return errorsmod.Wrap(ErrArithmeticOverflow, err.Error())
	default:
		return err
	}
}
