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
	"github.com/sengulatik66/catalyst/fixedpoint"
)

// LocalSwapParams describes a swap between two assets of the same pool.
type LocalSwapParams struct {
	FromAsset common.Address
	ToAsset   common.Address
	Amount    *uint256.Int
	MinOut    *uint256.Int
}

// SendAssetParams describes the outbound leg of a cross-chain swap.
type SendAssetParams struct {
	ChainID      uint64
	TargetPool   common.Address
	TargetUser   common.Address
	FromAsset    common.Address
	ToAssetIndex uint8
	Amount       *uint256.Int
	MinOut       *uint256.Int
	// Fallback receives the escrow if the swap times out. Defaults to the
	// caller.
	Fallback common.Address
	// Data is passed to the target user's receiver after the inbound leg.
	Data []byte
}

// ReceiveAssetParams describes the inbound leg of a cross-chain swap.
type ReceiveAssetParams struct {
	SourceChain   uint64
	SourcePool    common.Address
	CorrelationID common.Hash
	ToAssetIndex  uint8
	Units         *uint256.Int
	MinOut        *uint256.Int
	Recipient     common.Address
	Data          []byte
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// fees returns the pool fee on amount and the governance share of it.
func (p *Pool) fees(amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	fee, err := fixedpoint.MulX64(amount, p.cfg.poolFee())
	if err != nil {
		return nil, nil, wrapMath(err)
	}
	govFee, err := fixedpoint.MulX64(fee, p.cfg.governanceFeeShare())
	if err != nil {
		return nil, nil, wrapMath(err)
	}
	return fee, govFee, nil
}

// LocalSwap sells Amount of FromAsset for ToAsset within the pool.
func (p *Pool) LocalSwap(ctx context.Context, caller common.Address, params LocalSwapParams, now uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "localSwap", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := requirePositive("amount", params.Amount); err != nil {
			return err
		}
		from, err := p.assetIndex(params.FromAsset)
		if err != nil {
			return err
		}
		to, err := p.assetIndex(params.ToAsset)
		if err != nil {
			return err
		}
		if from == to {
			return errorsmod.Wrap(ErrInvalidAsset, "cannot swap an asset for itself")
		}
		if err := st.advance(now); err != nil {
			return err
		}

		fee, govFee, err := p.fees(params.Amount)
		if err != nil {
			return err
		}
		in := new(uint256.Int).Sub(params.Amount, fee)
		out, err = curve.OutputForInput(in, st.balances[from], st.netBalance(to), st.weights[from], st.weights[to], st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		if out.Lt(orZero(params.MinOut)) {
			return errorsmod.Wrapf(ErrInsufficientReturn, "output %s below minimum %s", out, params.MinOut)
		}

		st.balances[from].Add(st.balances[from], new(uint256.Int).Sub(params.Amount, govFee))
		st.balances[to].Sub(st.balances[to], out)
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		tx.move(params.FromAsset, caller, p.cfg.Address, params.Amount)
		tx.move(params.FromAsset, p.cfg.Address, p.cfg.FeeAdministrator, govFee)
		tx.move(params.ToAsset, p.cfg.Address, caller, out)
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		tx.emit(LocalSwap{
			Account:   caller,
			FromAsset: params.FromAsset,
			ToAsset:   params.ToAsset,
			Amount:    new(uint256.Int).Set(params.Amount),
			Output:    new(uint256.Int).Set(out),
			Fee:       fee,
		})
		p.log.Debug("local swap",
			zap.Stringer("account", caller),
			zap.Stringer("amount", params.Amount),
			zap.Stringer("output", out),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendAsset sells Amount of FromAsset for units and sends them to a pool
// on another chain. The sold amount, net of the pool fee, stays escrowed
// until the chain interface delivers an ack or a timeout for the returned
// correlation id.
func (p *Pool) SendAsset(ctx context.Context, caller common.Address, params SendAssetParams, now uint64) (common.Hash, *uint256.Int, error) {
	var (
		id    common.Hash
		units *uint256.Int
	)
	err := p.execute(ctx, "sendAsset", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireInitialized(); err != nil {
			return err
		}
		if err := requirePositive("amount", params.Amount); err != nil {
			return err
		}
		if p.transport == nil {
			return errorsmod.Wrap(ErrNoConnection, "no chain interface configured")
		}
		if err := p.requireConnection(params.ChainID, params.TargetPool); err != nil {
			return err
		}
		i, err := p.assetIndex(params.FromAsset)
		if err != nil {
			return err
		}
		fallback := params.Fallback
		if fallback == (common.Address{}) {
			fallback = caller
		}
		minOut := orZero(params.MinOut)
		if err := st.advance(now); err != nil {
			return err
		}

		fee, govFee, err := p.fees(params.Amount)
		if err != nil {
			return err
		}
		escrow := new(uint256.Int).Sub(params.Amount, fee)
		units, err = curve.UnitsForInput(escrow, st.balances[i], st.weights[i], st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}

		st.balances[i].Add(st.balances[i], new(uint256.Int).Sub(params.Amount, govFee))
		st.escrowed[i].Add(st.escrowed[i], escrow)
		st.addUnits(units)

		id = correlationID(p.cfg.ChainID, p.cfg.Address,
			u64(params.ChainID),
			params.TargetPool.Bytes(),
			params.TargetUser.Bytes(),
			[]byte{byte(i), params.ToAssetIndex},
			u256(params.Amount),
			u256(minOut),
			fallback.Bytes(),
			u64(now),
			params.Data,
		)
		if err := p.ledger.lock(id, &EscrowRecord{
			Kind:     EscrowAsset,
			Asset:    uint8(i),
			Amount:   escrow,
			Units:    units,
			Fallback: fallback,
		}); err != nil {
			return err
		}
		st.pendingEscrows++
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		tx.move(params.FromAsset, caller, p.cfg.Address, params.Amount)
		tx.move(params.FromAsset, p.cfg.Address, p.cfg.FeeAdministrator, govFee)
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		// The send is the last step that can fail, so a queued packet
		// always has a committed escrow.
		payload := &codec.SwapPayload{
			CorrelationID: id,
			SourceChain:   p.cfg.ChainID,
			SourcePool:    p.cfg.Address,
			TargetChain:   params.ChainID,
			TargetPool:    params.TargetPool,
			TargetUser:    params.TargetUser,
			FallbackUser:  fallback,
			ToAsset:       params.ToAssetIndex,
			Units:         new(uint256.Int).Set(units),
			MinOut:        new(uint256.Int).Set(minOut),
			Timestamp:     now,
			Data:          params.Data,
		}
		if err := p.call(func() error { return p.transport.SendSwap(ctx, payload) }); err != nil {
			return errorsmod.Wrap(err, "send swap intent")
		}

		tx.emit(SendAsset{
			CorrelationID: id,
			ChainID:       params.ChainID,
			TargetPool:    params.TargetPool,
			TargetUser:    params.TargetUser,
			FromAsset:     params.FromAsset,
			ToAssetIndex:  params.ToAssetIndex,
			Amount:        new(uint256.Int).Set(params.Amount),
			Units:         new(uint256.Int).Set(units),
			MinOut:        new(uint256.Int).Set(minOut),
			Fee:           fee,
			Fallback:      fallback,
		})
		p.metrics.escrows.WithLabelValues(EscrowAsset.String(), "locked").Inc()
		p.log.Info("asset sent",
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

// ReceiveAsset redeems units delivered by the chain interface for the
// asset at ToAssetIndex and pays Recipient.
func (p *Pool) ReceiveAsset(ctx context.Context, caller common.Address, params ReceiveAssetParams, now uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := p.execute(ctx, "receiveAsset", func(ctx context.Context, tx *txn) error {
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
		if err := p.checkIndex(params.ToAssetIndex); err != nil {
			return err
		}
		units := orZero(params.Units)
		i := int(params.ToAssetIndex)
		if err := st.advance(now); err != nil {
			return err
		}

		if err := st.limit.consume(units, now); err != nil {
			return err
		}
		var err error
		out, err = curve.OutputForUnits(units, st.netBalance(i), st.weights[i], st.oneMinusAmp)
		if err != nil {
			return wrapMath(err)
		}
		if out.Lt(orZero(params.MinOut)) {
			return errorsmod.Wrapf(ErrInsufficientReturn, "output %s below minimum %s", out, params.MinOut)
		}

		st.balances[i].Sub(st.balances[i], out)
		st.subUnits(units)
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		asset := p.cfg.Assets[i]
		tx.move(asset, p.cfg.Address, params.Recipient, out)
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		if len(params.Data) > 0 {
			if r, ok := p.receivers[params.Recipient]; ok {
				err := p.call(func() error {
					return r.OnSwapComplete(ctx, p.cfg.Address, new(uint256.Int).Set(out), params.Data)
				})
				if err != nil {
					return errorsmod.Wrapf(err, "receiver %s", params.Recipient.Hex())
				}
			}
		}

		tx.emit(ReceiveAsset{
			CorrelationID: params.CorrelationID,
			SourceChain:   params.SourceChain,
			SourcePool:    params.SourcePool,
			Recipient:     params.Recipient,
			ToAsset:       asset,
			Units:         new(uint256.Int).Set(units),
			Output:        new(uint256.Int).Set(out),
		})
		p.log.Info("asset received",
			zap.Stringer("correlationID", params.CorrelationID),
			zap.Uint64("sourceChain", params.SourceChain),
			zap.Stringer("units", units),
			zap.Stringer("output", out),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OnAck resolves an outbound leg delivered on the remote chain. The
// escrowed value stays in the pool and the acknowledged units are returned
// to the security limit.
func (p *Pool) OnAck(ctx context.Context, caller common.Address, id common.Hash, now uint64) error {
	return p.execute(ctx, "ack", func(_ context.Context, tx *txn) error {
		st := p.st
		if err := p.requireChainInterface(caller); err != nil {
			return err
		}
		if err := st.advance(now); err != nil {
			return err
		}
		rec, err := p.ledger.release(id)
		if err != nil {
			return err
		}
		if err := st.unescrow(rec); err != nil {
			return err
		}
		st.limit.release(rec.Units, now)
		if err := st.refreshLimit(true); err != nil {
			return err
		}

		tx.emit(EscrowAck{CorrelationID: id, Kind: rec.Kind, Amount: rec.Amount})
		p.metrics.escrows.WithLabelValues(rec.Kind.String(), "ack").Inc()
		p.log.Info("escrow acknowledged",
			zap.Stringer("correlationID", id),
			zap.Stringer("kind", rec.Kind),
		)
		return nil
	})
}

// OnTimeout resolves an outbound leg that was not delivered. The escrowed
// value is returned to the fallback recipient and the units are taken back
// out of the unit tracker.
func (p *Pool) OnTimeout(ctx context.Context, caller common.Address, id common.Hash, now uint64) error {
	return p.execute(ctx, "timeout", func(ctx context.Context, tx *txn) error {
		st := p.st
		if err := p.requireChainInterface(caller); err != nil {
			return err
		}
		if err := st.advance(now); err != nil {
			return err
		}
		rec, err := p.ledger.release(id)
		if err != nil {
			return err
		}
		if err := st.unescrow(rec); err != nil {
			return err
		}
		switch rec.Kind {
		case EscrowAsset:
			i := int(rec.Asset)
			if st.balances[i].Lt(rec.Amount) {
				return errorsmod.Wrapf(ErrArithmeticOverflow, "refund %s exceeds balance %s", rec.Amount, st.balances[i])
			}
			st.balances[i].Sub(st.balances[i], rec.Amount)
			tx.move(p.cfg.Assets[i], p.cfg.Address, rec.Fallback, rec.Amount)
		case EscrowLiquidity:
			st.mintShares(rec.Fallback, rec.Amount)
		}
		st.subUnits(rec.Units)
		if err := st.refreshLimit(true); err != nil {
			return err
		}
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		tx.emit(EscrowTimeout{CorrelationID: id, Kind: rec.Kind, Fallback: rec.Fallback, Amount: rec.Amount})
		p.metrics.escrows.WithLabelValues(rec.Kind.String(), "timeout").Inc()
		p.log.Warn("escrow timed out",
			zap.Stringer("correlationID", id),
			zap.Stringer("kind", rec.Kind),
			zap.Stringer("fallback", rec.Fallback),
			zap.Stringer("amount", rec.Amount),
		)
		return nil
	})
}

// unescrow removes a resolved record from the escrowed totals.
func (st *state) unescrow(rec *EscrowRecord) error {
	var total *uint256.Int
	switch rec.Kind {
	case EscrowAsset:
		if int(rec.Asset) >= len(st.escrowed) {
			return errorsmod.Wrapf(ErrInvalidAsset, "escrowed asset index %d", rec.Asset)
		}
		total = st.escrowed[rec.Asset]
	case EscrowLiquidity:
		total = st.escrowedShares
	default:
		return errorsmod.Wrapf(ErrUnknownEscrow, "kind %d", rec.Kind)
	}
	if total.Lt(rec.Amount) {
		return errorsmod.Wrapf(ErrArithmeticOverflow, "escrow %s exceeds escrowed total %s", rec.Amount, total)
	}
	total.Sub(total, rec.Amount)
	st.pendingEscrows--
	return nil
}
