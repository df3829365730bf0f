// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token provides an in-memory fungible token ledger used as the
// pools' external token collaborator.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrOverflow            = errors.New("token balance overflow")
)

// TransferHook observes a transfer after balances have moved. Returning an
// error undoes the transfer. Hooks run without the ledger lock held, so a
// hook may call back into the ledger or into a pool.
type TransferHook func(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error

// Ledger holds balances for any number of tokens.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*uint256.Int
	supply   map[common.Address]*uint256.Int
	hook     TransferHook
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
		supply:   make(map[common.Address]*uint256.Int),
	}
}

// SetHook installs a transfer hook. Passing nil removes it.
func (l *Ledger) SetHook(hook TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = hook
}

// Mint credits amount of token to the account.
func (l *Ledger) Mint(token, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	supply := l.supplyOf(token)
	if _, overflow := new(uint256.Int).AddOverflow(supply, amount); overflow {
		return ErrOverflow
	}
	supply.Add(supply, amount)
	bal := l.balanceOf(token, to)
	bal.Add(bal, amount)
	return nil
}

// BalanceOf returns a copy of the account's balance.
func (l *Ledger) BalanceOf(token, account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[token][account]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the token's total supply.
func (l *Ledger) TotalSupply(token common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if s, ok := l.supply[token]; ok {
		return new(uint256.Int).Set(s)
	}
	return new(uint256.Int)
}

// Transfer moves amount of token between accounts and then runs the hook.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error {
	if err := l.move(token, from, to, amount); err != nil {
		return err
	}

	l.mu.RLock()
	hook := l.hook
	l.mu.RUnlock()
	if hook == nil {
		return nil
	}
	if err := hook(ctx, token, from, to, amount); err != nil {
		if undoErr := l.move(token, to, from, amount); undoErr != nil {
			return errors.Join(err, undoErr)
		}
		return err
	}
	return nil
}

func (l *Ledger) move(token, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.balanceOf(token, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src, amount)
	}
	src.Sub(src, amount)
	dst := l.balanceOf(token, to)
	dst.Add(dst, amount)
	return nil
}

func (l *Ledger) balanceOf(token, account common.Address) *uint256.Int {
	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[token] = accounts
	}
	b, ok := accounts[account]
	if !ok {
		b = new(uint256.Int)
		accounts[account] = b
	}
	return b
}

func (l *Ledger) supplyOf(token common.Address) *uint256.Int {
	s, ok := l.supply[token]
	if !ok {
		s = new(uint256.Int)
		l.supply[token] = s
	}
	return s
}
