// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"go.uber.org/zap"
)

// Tokens moves fungible tokens between accounts.
type Tokens interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
}

// guardKey marks a context as running inside an operation of one pool.
type guardKey struct {
	pool *Pool
}

// inside reports whether ctx belongs to an operation already running on p.
func (p *Pool) inside(ctx context.Context) bool {
	return ctx.Value(guardKey{pool: p}) != nil
}

// enter serializes mutating operations. Calls that carry the context of a
// running operation, or that arrive while the pool waits on an external
// call, are rejected whatever context they carry.
func (p *Pool) enter(ctx context.Context) (context.Context, func(), error) {
	if p.inside(ctx) || p.calling.Load() {
		return nil, nil, ErrReentrant
	}
	p.mu.Lock()
	return context.WithValue(ctx, guardKey{pool: p}, struct{}{}), p.mu.Unlock, nil
}

// call runs fn, a token transfer, transport send or receiver callback,
// while the write lock is held. Reads made meanwhile see the state as it
// was when fn started.
func (p *Pool) call(fn func() error) error {
	p.frozen.Store(p.st.clone())
	p.calling.Store(true)
	defer p.calling.Store(false)
	return fn()
}

type transfer struct {
	token  common.Address
	from   common.Address
	to     common.Address
	amount *uint256.Int
}

// txn collects the side effects of one operation. State mutations happen
// in place and are undone from the checkpoint; transfers run at settle and
// are reversed if a later step fails; events are emitted on success only.
type txn struct {
	op         string
	checkpoint *state
	transfers  []transfer
	executed   []transfer
	events     []Event
}

func (tx *txn) move(token, from, to common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	tx.transfers = append(tx.transfers, transfer{token: token, from: from, to: to, amount: new(uint256.Int).Set(amount)})
}

func (tx *txn) emit(ev Event) {
	tx.events = append(tx.events, ev)
}

// execute runs fn as one atomic operation.
func (p *Pool) execute(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	ctx, unlock, err := p.enter(ctx)
	if err != nil {
		p.metrics.operations.WithLabelValues(op, "reentrant").Inc()
		return err
	}
	defer unlock()

	tx := &txn{op: op, checkpoint: p.st.clone()}
	p.ledger.begin()

	if err := fn(ctx, tx); err != nil {
		if rbErr := p.rollback(ctx, tx); rbErr != nil {
			p.log.Error("rollback failed",
				zap.String("operation", op),
				zap.Error(rbErr),
			)
			err = errors.Join(err, rbErr)
		}
		if errors.Is(err, ErrSecurityLimitExceeded) {
			p.metrics.limitRejections.Inc()
		}
		p.metrics.operations.WithLabelValues(op, "failed").Inc()
		p.log.Debug("operation failed",
			zap.String("operation", op),
			zap.Error(err),
		)
		return err
	}

	p.ledger.commit()
	p.metrics.operations.WithLabelValues(op, "ok").Inc()
	p.metrics.observe(p.st)
	for _, ev := range tx.events {
		p.events.Emit(p.cfg.Address, ev)
	}
	return nil
}

// settle executes the collected transfers in order.
func (p *Pool) settle(ctx context.Context, tx *txn) error {
	if len(tx.transfers) == 0 {
		return nil
	}
	return p.call(func() error {
		for _, t := range tx.transfers {
			if err := p.tokens.Transfer(ctx, t.token, t.from, t.to, t.amount); err != nil {
				return errorsmod.Wrapf(err, "transfer %s of %s from %s to %s", t.amount, t.token.Hex(), t.from.Hex(), t.to.Hex())
			}
			tx.executed = append(tx.executed, t)
		}
		tx.transfers = tx.transfers[:0]
		return nil
	})
}

func (p *Pool) rollback(ctx context.Context, tx *txn) error {
	var errs []error
	if len(tx.executed) > 0 {
		_ = p.call(func() error {
			for i := len(tx.executed) - 1; i >= 0; i-- {
				t := tx.executed[i]
				if err := p.tokens.Transfer(ctx, t.token, t.to, t.from, t.amount); err != nil {
					errs = append(errs, err)
				}
			}
			return nil
		})
	}
	errs = append(errs, p.ledger.revert())
	p.st = tx.checkpoint
	return errors.Join(errs...)
}
