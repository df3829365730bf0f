// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chaininterface

import (
	"context"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sengulatik66/catalyst/fixedpoint"
	"github.com/sengulatik66/catalyst/pool"
	"github.com/sengulatik66/catalyst/token"
)

var (
	assetX = common.HexToAddress("0xa1")
	assetY = common.HexToAddress("0xb2")

	setupAddr = common.HexToAddress("0x5e7")
	govAddr   = common.HexToAddress("0x90")
	alice     = common.HexToAddress("0xa11ce")
	bob       = common.HexToAddress("0xb0b")
)

const t0 uint64 = 1_700_000_000

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type chain struct {
	id       uint64
	ledger   *token.Ledger
	endpoint *Endpoint
	pool     *pool.Pool
}

func newPool(t *testing.T, ledger *token.Ledger, chainID uint64, iface, address common.Address) *pool.Pool {
	t.Helper()
	amp, err := fixedpoint.Fraction(1, 2)
	require.NoError(t, err)
	p, err := pool.New(pool.Config{
		Name:           "Catalyst X/Y",
		Symbol:         "cXY",
		ChainID:        chainID,
		Address:        address,
		Assets:         []common.Address{assetX, assetY},
		Weights:        []uint64{1, 1},
		OneMinusAmp:    amp,
		ChainInterface: iface,
		SetupAuthority: setupAddr,
		Governance:     govAddr,
	}, ledger)
	require.NoError(t, err)
	return p
}

func newChain(t *testing.T, r *Router, id uint64, iface, address common.Address) *chain {
	t.Helper()
	ctx := context.Background()

	e, err := r.AddEndpoint(id, iface)
	require.NoError(t, err)

	ledger := token.NewLedger()
	for _, asset := range []common.Address{assetX, assetY} {
		require.NoError(t, ledger.Mint(asset, setupAddr, tokens(1_000_000)))
		require.NoError(t, ledger.Mint(asset, alice, tokens(1_000_000)))
	}
	p := newPool(t, ledger, id, iface, address)
	require.NoError(t, r.RegisterPool(p))
	require.NoError(t, p.Initialize(ctx, setupAddr, []*uint256.Int{tokens(1_000_000), tokens(1_000_000)}, setupAddr, t0))
	return &chain{id: id, ledger: ledger, endpoint: e, pool: p}
}

func connect(t *testing.T, a, b *chain) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.pool.CreateConnection(ctx, setupAddr, b.id, b.pool.Address(), true))
	require.NoError(t, b.pool.CreateConnection(ctx, setupAddr, a.id, a.pool.Address(), true))
}

func twoChains(t *testing.T, opts ...Option) (*Router, *chain, *chain) {
	r := NewRouter(opts...)
	a := newChain(t, r, 1, common.HexToAddress("0xc1"), common.HexToAddress("0x9010"))
	b := newChain(t, r, 2, common.HexToAddress("0xc2"), common.HexToAddress("0x9020"))
	connect(t, a, b)
	return r, a, b
}

func swapTo(b *chain, amount *uint256.Int) pool.SendAssetParams {
	return pool.SendAssetParams{
		ChainID:      b.id,
		TargetPool:   b.pool.Address(),
		TargetUser:   bob,
		FromAsset:    assetX,
		ToAssetIndex: 1,
		Amount:       amount,
	}
}

func TestCrossChainSwap(t *testing.T) {
	r, a, b := twoChains(t)
	ctx := context.Background()

	id, units, err := a.pool.SendAsset(ctx, alice, swapTo(b, tokens(1000)), t0)
	require.NoError(t, err)

	pending := r.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)
	require.Equal(t, b.id, pending[0].TargetChain)

	deliveries, err := r.Relay(ctx, t0+10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, Delivered, deliveries[0].Outcome)
	require.NoError(t, deliveries[0].Reason)
	require.NoError(t, deliveries[0].Err)
	require.Empty(t, r.Pending())

	received := b.ledger.BalanceOf(assetY, bob)
	require.False(t, received.IsZero())
	require.True(t, received.Lt(tokens(1000)))

	require.Zero(t, a.pool.PendingEscrows(ctx))
	require.True(t, a.pool.Escrowed(ctx)[0].IsZero())
	require.Equal(t, units.ToBig(), a.pool.UnitTracker(ctx))
	require.Equal(t, new(uint256.Int).Sub(tokens(1_000_000), received), b.pool.Balances(ctx)[1])
	require.Equal(t, new(big.Int).Neg(units.ToBig()), b.pool.UnitTracker(ctx))
	require.InDelta(t, 1, testutil.ToFloat64(r.packets.WithLabelValues("swap", "delivered")), 0)
}

func TestFailedDeliveryRefunds(t *testing.T) {
	r, a, b := twoChains(t)
	ctx := context.Background()

	params := swapTo(b, tokens(1000))
	params.MinOut = tokens(5000)
	_, _, err := a.pool.SendAsset(ctx, alice, params, t0)
	require.NoError(t, err)

	deliveries, err := r.Relay(ctx, t0+10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, TimedOut, deliveries[0].Outcome)
	require.ErrorIs(t, deliveries[0].Reason, pool.ErrInsufficientReturn)
	require.NoError(t, deliveries[0].Err)

	require.Equal(t, tokens(1_000_000), a.ledger.BalanceOf(assetX, alice))
	require.True(t, b.ledger.BalanceOf(assetY, bob).IsZero())
	require.Zero(t, a.pool.UnitTracker(ctx).Sign())
	require.Zero(t, b.pool.UnitTracker(ctx).Sign())
	require.InDelta(t, 1, testutil.ToFloat64(r.packets.WithLabelValues("swap", "timeout")), 0)
}

func TestExpiredPacket(t *testing.T) {
	r, a, b := twoChains(t, WithPacketTimeout(600))
	ctx := context.Background()

	_, _, err := a.pool.SendAsset(ctx, alice, swapTo(b, tokens(1000)), t0)
	require.NoError(t, err)

	deliveries, err := r.Relay(ctx, t0+601)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, TimedOut, deliveries[0].Outcome)
	require.Error(t, deliveries[0].Reason)

	require.Equal(t, tokens(1_000_000), a.ledger.BalanceOf(assetX, alice))
	require.True(t, b.ledger.BalanceOf(assetY, bob).IsZero())
}

func TestForcedTimeout(t *testing.T) {
	r, a, b := twoChains(t)
	ctx := context.Background()

	id, _, err := a.pool.SendAsset(ctx, alice, swapTo(b, tokens(1000)), t0)
	require.NoError(t, err)

	d, err := r.Timeout(ctx, id, t0+5)
	require.NoError(t, err)
	require.Equal(t, TimedOut, d.Outcome)
	require.Equal(t, tokens(1_000_000), a.ledger.BalanceOf(assetX, alice))

	_, err = r.Timeout(ctx, id, t0+5)
	require.ErrorIs(t, err, ErrUnknownPacket)

	deliveries, err := r.Relay(ctx, t0+10)
	require.NoError(t, err)
	require.Empty(t, deliveries)
}

func TestCrossChainLiquidity(t *testing.T) {
	r, a, b := twoChains(t)
	ctx := context.Background()
	shares := uint256.NewInt(100_000_000_000_000_000)

	_, _, err := a.pool.SendLiquidity(ctx, setupAddr, pool.SendLiquidityParams{
		ChainID:    b.id,
		TargetPool: b.pool.Address(),
		TargetUser: bob,
		Shares:     shares,
	}, t0)
	require.NoError(t, err)
	require.Equal(t, shares, a.pool.EscrowedShares(ctx))

	deliveries, err := r.Relay(ctx, t0+10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, Delivered, deliveries[0].Outcome)

	require.True(t, a.pool.EscrowedShares(ctx).IsZero())
	minted := b.pool.BalanceOf(ctx, bob)
	require.False(t, minted.IsZero())
	require.False(t, minted.Gt(shares))
}

func TestSendToUnknownChain(t *testing.T) {
	r, a, _ := twoChains(t)
	ctx := context.Background()
	remote := common.HexToAddress("0x9099")
	require.NoError(t, a.pool.CreateConnection(ctx, setupAddr, 9, remote, true))

	_, _, err := a.pool.SendAsset(ctx, alice, pool.SendAssetParams{
		ChainID:    9,
		TargetPool: remote,
		TargetUser: bob,
		FromAsset:  assetX,
		Amount:     tokens(10),
	}, t0)
	require.ErrorIs(t, err, ErrUnknownChain)
	require.Equal(t, tokens(1_000_000), a.ledger.BalanceOf(assetX, alice))
	require.Zero(t, a.pool.PendingEscrows(ctx))
	require.Empty(t, r.Pending())
}

func TestEveryQueuedPacketHasAnEscrow(t *testing.T) {
	r, a, b := twoChains(t)
	ctx := context.Background()
	remote := common.HexToAddress("0x9099")
	require.NoError(t, a.pool.CreateConnection(ctx, setupAddr, 9, remote, true))

	params := swapTo(b, tokens(10))
	id, _, err := a.pool.SendAsset(ctx, alice, params, t0)
	require.NoError(t, err)

	// Rejected by the router: the pool rolls back and nothing is queued.
	unroutable := params
	unroutable.ChainID, unroutable.TargetPool = 9, remote
	_, _, err = a.pool.SendAsset(ctx, alice, unroutable, t0)
	require.ErrorIs(t, err, ErrUnknownChain)

	// Rejected by the pool before anything reaches the router.
	_, _, err = a.pool.SendAsset(ctx, alice, params, t0)
	require.ErrorIs(t, err, pool.ErrDuplicateEscrow)

	pending := r.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, id, pending[0].ID)
	require.Equal(t, 1, a.pool.PendingEscrows(ctx))
	for _, pk := range pending {
		_, err := a.pool.Escrow(ctx, pk.ID)
		require.NoError(t, err)
	}

	deliveries, err := r.Relay(ctx, t0)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.Equal(t, Delivered, deliveries[0].Outcome)
	require.Zero(t, a.pool.PendingEscrows(ctx))
}

func TestRelayStopsOnCancel(t *testing.T) {
	r, a, b := twoChains(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, _, err := a.pool.SendAsset(ctx, alice, swapTo(b, tokens(1000)), t0)
	require.NoError(t, err)

	cancel()
	deliveries, err := r.Relay(ctx, t0+10)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, deliveries)
	require.Len(t, r.Pending(), 1)
}

func TestRegisterPool(t *testing.T) {
	r := NewRouter()
	iface := common.HexToAddress("0xc1")
	_, err := r.AddEndpoint(1, iface)
	require.NoError(t, err)
	_, err = r.AddEndpoint(1, iface)
	require.Error(t, err)

	ledger := token.NewLedger()
	require.ErrorIs(t, r.RegisterPool(newPool(t, ledger, 7, iface, common.HexToAddress("0x9001"))), ErrUnknownChain)
	require.ErrorIs(t, r.RegisterPool(newPool(t, ledger, 1, common.HexToAddress("0xc9"), common.HexToAddress("0x9001"))), ErrWrongInterface)

	for _, addr := range []string{"0x9030", "0x9010", "0x9020"} {
		require.NoError(t, r.RegisterPool(newPool(t, ledger, 1, iface, common.HexToAddress(addr))))
	}
	require.ErrorIs(t, r.RegisterPool(newPool(t, ledger, 1, iface, common.HexToAddress("0x9020"))), ErrDuplicatePool)

	var got []common.Address
	for _, p := range r.Pools(1) {
		got = append(got, p.Address())
	}
	require.Equal(t, []common.Address{
		common.HexToAddress("0x9010"),
		common.HexToAddress("0x9020"),
		common.HexToAddress("0x9030"),
	}, got)
	require.Empty(t, r.Pools(2))
}
