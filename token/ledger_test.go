// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	usdc  = common.HexToAddress("0xa0")
	alice = common.HexToAddress("0x01")
	bob   = common.HexToAddress("0x02")
)

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, alice, uint256.NewInt(100)))
	require.Equal(t, uint256.NewInt(100), l.TotalSupply(usdc))

	require.NoError(t, l.Transfer(context.Background(), usdc, alice, bob, uint256.NewInt(40)))
	require.Equal(t, uint256.NewInt(60), l.BalanceOf(usdc, alice))
	require.Equal(t, uint256.NewInt(40), l.BalanceOf(usdc, bob))

	err := l.Transfer(context.Background(), usdc, bob, alice, uint256.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, uint256.NewInt(40), l.BalanceOf(usdc, bob))
}

func TestLedgerHookRevertsTransfer(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, alice, uint256.NewInt(10)))

	rejected := errors.New("rejected")
	var seen int
	l.SetHook(func(_ context.Context, _, _, to common.Address, _ *uint256.Int) error {
		seen++
		if to == bob {
			return rejected
		}
		return nil
	})

	err := l.Transfer(context.Background(), usdc, alice, bob, uint256.NewInt(5))
	require.ErrorIs(t, err, rejected)
	require.Equal(t, uint256.NewInt(10), l.BalanceOf(usdc, alice))
	require.True(t, l.BalanceOf(usdc, bob).IsZero())

	require.NoError(t, l.Transfer(context.Background(), usdc, alice, common.HexToAddress("0x03"), uint256.NewInt(5)))
	require.Equal(t, 2, seen)
}

func TestLedgerMintOverflow(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(usdc, alice, new(uint256.Int).SetAllOne()))
	require.ErrorIs(t, l.Mint(usdc, bob, uint256.NewInt(1)), ErrOverflow)
}
