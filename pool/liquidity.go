// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/codec"
	"github.com/sengulatik66/catalyst/curve"
)

// SendLiquidityParams describes the outbound leg of a liquidity swap.
type SendLiquidityParams struct {
	ChainID    uint64
	TargetPool common.Address
	TargetUser common.Address
	Shares     *uint256.Int
	MinShares  *uint256.Int
	// Fallback receives the shares back if the swap times out. Defaults to
	// the caller.
	Fallback common.Address
}

// ReceiveLiquidityParams describes the inbound leg of a liquidity swap.
type ReceiveLiquidityParams struct {
	SourceChain   uint64
	SourcePool    common.Address
	CorrelationID common.Hash
	Units         *uint256.Int
	MinShares     *uint256.Int
	Recipient     common.Address
}

// Deposit mints shares to caller against the per-asset amounts that keep
// the reference balance per share constant. The amounts are priced on
// gross balances and may not exceed maxAmounts.
func (p *Pool) Deposit(ctx context.Context, caller common.Address, shares *uint256.Int, maxAmounts []*uint256.Int, now uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := p.execute(ctx, "deposit", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := requirePositive("shares", shares); err != nil {
			return err
		}
		if maxAmounts != nil && len(maxAmounts) != len(st.balances) {
			return errorsmod.Wrapf(ErrInvalidAmount, "%d limits for %d assets", len(maxAmounts), len(st.balances))
		}
		if err := st.advance(now); err != nil {
			return err
		}

		ref, err := st.reference(st.balances)
		if err != nil {
			return err
		}
		amounts, err = curve.DepositAmounts(shares, st.totalSupply, ref, st.balances, st.weights, st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		for i, amount := range amounts {
			if maxAmounts != nil && amount.Gt(maxAmounts[i]) {
				return errorsmod.Wrapf(ErrInsufficientReturn, "asset %d requires %s above limit %s", i, amount, maxAmounts[i])
			}
			st.balances[i].Add(st.balances[i], amount)
			tx.move(p.cfg.Assets[i], caller, p.cfg.Address, amount)
		}
		st.mintShares(caller, shares)
		if err := st.refreshLimit(true); err != nil {
			return err
		}
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		tx.emit(Deposit{Account: caller, Shares: new(uint256.Int).Set(shares), Amounts: cloneInts(amounts)})
		p.log.Info("deposit", zap.Stringer("account", caller), zap.Stringer("shares", shares))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// Withdraw burns shares of caller and pays out the per-asset amounts,
// priced on balances net of escrow. Each amount must reach minOut.
func (p *Pool) Withdraw(ctx context.Context, caller common.Address, shares *uint256.Int, minOut []*uint256.Int, now uint64) ([]*uint256.Int, error) {
	var amounts []*uint256.Int
	err := p.execute(ctx, "withdraw", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := requirePositive("shares", shares); err != nil {
			return err
		}
		if minOut != nil && len(minOut) != len(st.balances) {
			return errorsmod.Wrapf(ErrInvalidAmount, "%d minimums for %d assets", len(minOut), len(st.balances))
		}
		if err := st.advance(now); err != nil {
			return err
		}

		net := st.netBalances()
		ref, err := st.reference(net)
		if err != nil {
			return err
		}
		amounts, err = curve.WithdrawAmounts(shares, st.effectiveSupply(), ref, net, st.weights, st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		if err := st.burnShares(caller, shares); err != nil {
			return err
		}
		for i, amount := range amounts {
			if minOut != nil && amount.Lt(orZero(minOut[i])) {
				return errorsmod.Wrapf(ErrInsufficientReturn, "asset %d returns %s below minimum %s", i, amount, minOut[i])
			}
			st.balances[i].Sub(st.balances[i], amount)
			tx.move(p.cfg.Assets[i], p.cfg.Address, caller, amount)
		}
		if err := st.refreshLimit(true); err != nil {
			return err
		}
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		tx.emit(Withdraw{Account: caller, Shares: new(uint256.Int).Set(shares), Amounts: cloneInts(amounts)})
		p.log.Info("withdraw", zap.Stringer("account", caller), zap.Stringer("shares", shares))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SendLiquidity burns shares of caller, converts their value into
// liquidity units and sends them to a pool on another chain. The burned
// shares stay escrowed until ack or timeout.
func (p *Pool) SendLiquidity(ctx context.Context, caller common.Address, params SendLiquidityParams, now uint64) (common.Hash, *uint256.Int, error) {
	var (
		id    common.Hash
		units *uint256.Int
	)
	err := p.execute(ctx, "sendLiquidity", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := requirePositive("shares", params.Shares); err != nil {
			return err
		}
		if p.transport == nil {
			return errorsmod.Wrap(ErrNoConnection, "no chain interface configured")
		}
		if err := p.requireConnection(params.ChainID, params.TargetPool); err != nil {
			return err
		}
		fallback := params.Fallback
		if fallback == (common.Address{}) {
			fallback = caller
		}
		minShares := orZero(params.MinShares)
		if err := st.advance(now); err != nil {
			return err
		}

		net := st.netBalances()
		ref, err := st.reference(net)
		if err != nil {
			return err
		}
		units, err = curve.LiquidityUnitsForShares(params.Shares, st.effectiveSupply(), ref, len(net), st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		if err := st.burnShares(caller, params.Shares); err != nil {
			return err
		}
		st.escrowedShares.Add(st.escrowedShares, params.Shares)
		st.addUnits(units)

		id = correlationID(p.cfg.ChainID, p.cfg.Address,
			u64(params.ChainID),
			params.TargetPool.Bytes(),
			params.TargetUser.Bytes(),
			u256(params.Shares),
			u256(minShares),
			fallback.Bytes(),
			u64(now),
		)
		if err := p.ledger.lock(id, &EscrowRecord{
			Kind:     EscrowLiquidity,
			Amount:   new(uint256.Int).Set(params.Shares),
			Units:    units,
			Fallback: fallback,
		}); err != nil {
			return err
		}
		st.pendingEscrows++
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		// The send is the last step that can fail.
		payload := &codec.LiquidityPayload{
			CorrelationID: id,
			SourceChain:   p.cfg.ChainID,
			SourcePool:    p.cfg.Address,
			TargetChain:   params.ChainID,
			TargetPool:    params.TargetPool,
			TargetUser:    params.TargetUser,
			FallbackUser:  fallback,
			Units:         new(uint256.Int).Set(units),
			MinShares:     new(uint256.Int).Set(minShares),
			Timestamp:     now,
		}
		if err := p.call(func() error { return p.transport.SendLiquidity(ctx, payload) }); err != nil {
			return errorsmod.Wrap(err, "send liquidity intent")
		}

		tx.emit(SendLiquidity{
			CorrelationID: id,
			ChainID:       params.ChainID,
			TargetPool:    params.TargetPool,
			TargetUser:    params.TargetUser,
			Shares:        new(uint256.Int).Set(params.Shares),
			Units:         new(uint256.Int).Set(units),
			Fallback:      fallback,
		})
		p.metrics.escrows.WithLabelValues(EscrowLiquidity.String(), "locked").Inc()
		p.log.Info("liquidity sent",
			zap.Stringer("correlationID", id),
			zap.Uint64("targetChain", params.ChainID),
			zap.Stringer("units", units),
		)
		return nil
	})
	if err != nil {
		return common.Hash{}, nil, err
	}
	return id, units, nil
}

// ReceiveLiquidity mints shares for liquidity units delivered by the chain
// interface.
func (p *Pool) ReceiveLiquidity(ctx context.Context, caller common.Address, params ReceiveLiquidityParams, now uint64) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.execute(ctx, "receiveLiquidity", func(_ context.Context, tx *txn) error {
		st := p.st
		if err := p.requireChainInterface(caller); err != nil {
			return err
		}
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := p.requireConnection(params.SourceChain, params.SourcePool); err != nil {
			return err
		}
		units := orZero(params.Units)
		if err := st.advance(now); err != nil {
			return err
		}

		if err := st.limit.consume(units, now); err != nil {
			return err
		}
		ref, err := st.reference(st.balances)
		if err != nil {
			return err
		}
		minted, err = curve.SharesForLiquidityUnits(units, st.totalSupply, ref, len(st.balances), st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		if minted.Lt(orZero(params.MinShares)) {
			return errorsmod.Wrapf(ErrInsufficientReturn, "minted %s shares below minimum %s", minted, params.MinShares)
		}

		st.mintShares(params.Recipient, minted)
		st.subUnits(units)
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		tx.emit(ReceiveLiquidity{
			CorrelationID: params.CorrelationID,
			SourceChain:   params.SourceChain,
			SourcePool:    params.SourcePool,
			Recipient:     params.Recipient,
			Units:         new(uint256.Int).Set(units),
			Shares:        new(uint256.Int).Set(minted),
		})
		p.log.Info("liquidity received",
			zap.Stringer("correlationID", params.CorrelationID),
			zap.Uint64("sourceChain", params.SourceChain),
			zap.Stringer("units", units),
			zap.Stringer("shares", minted),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}
