// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sengulatik66/catalyst/codec"
	"github.com/sengulatik66/catalyst/fixedpoint"
	"github.com/sengulatik66/catalyst/token"
)

var (
	assetA = common.HexToAddress("0xa1")
	assetB = common.HexToAddress("0xb2")

	poolAddr   = common.HexToAddress("0x9010")
	remotePool = common.HexToAddress("0x9020")
	setupAddr  = common.HexToAddress("0x5e7")
	govAddr    = common.HexToAddress("0x90")
	feeAdmin   = common.HexToAddress("0xfee")
	chainIface = common.HexToAddress("0xc1")
	alice      = common.HexToAddress("0xa11ce")
	bob        = common.HexToAddress("0xb0b")
)

const (
	t0          uint64 = 1_700_000_000
	localChain  uint64 = 1
	remoteChain uint64 = 2
)

var ether = uint256.NewInt(1_000_000_000_000_000_000)

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), ether)
}

func x64(num, den uint64) *uint256.Int {
	z, err := fixedpoint.Fraction(num, den)
	if err != nil {
		panic(err)
	}
	return z
}

// fakeTransport records the payloads it accepts.
type fakeTransport struct {
	swaps     []*codec.SwapPayload
	liquidity []*codec.LiquidityPayload
	sendErr   error
}

func (f *fakeTransport) SendSwap(_ context.Context, p *codec.SwapPayload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.swaps = append(f.swaps, p)
	return nil
}

func (f *fakeTransport) SendLiquidity(_ context.Context, p *codec.LiquidityPayload) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.liquidity = append(f.liquidity, p)
	return nil
}

type harness struct {
	pool      *Pool
	ledger    *token.Ledger
	transport *fakeTransport
	events    *Recorder
}

func testConfig() Config {
	return Config{
		Name:             "Catalyst A/B",
		Symbol:           "cAB",
		ChainID:          localChain,
		Address:          poolAddr,
		Assets:           []common.Address{assetA, assetB},
		Weights:          []uint64{1, 1},
		OneMinusAmp:      x64(1, 2),
		FeeAdministrator: feeAdmin,
		ChainInterface:   chainIface,
		SetupAuthority:   setupAddr,
		Governance:       govAddr,
	}
}

// newHarness creates, initializes and connects a pool holding balances of
// each asset.
func newHarness(t *testing.T, cfg Config, balances []*uint256.Int, opts ...Option) *harness {
	t.Helper()
	ctx := context.Background()

	ledger := token.NewLedger()
	for i, asset := range cfg.Assets {
		require.NoError(t, ledger.Mint(asset, setupAddr, balances[i]))
		require.NoError(t, ledger.Mint(asset, alice, tokens(10_000_000)))
	}

	h := &harness{ledger: ledger, transport: &fakeTransport{}, events: &Recorder{}}
	opts = append([]Option{WithTransport(h.transport), WithEventSink(h.events)}, opts...)
	p, err := New(cfg, ledger, opts...)
	require.NoError(t, err)
	h.pool = p

	require.NoError(t, p.Initialize(ctx, setupAddr, balances, setupAddr, t0))
	require.NoError(t, p.CreateConnection(ctx, setupAddr, remoteChain, remotePool, true))
	return h
}

func defaultHarness(t *testing.T, opts ...Option) *harness {
	return newHarness(t, testConfig(), []*uint256.Int{tokens(1_000_000), tokens(1_000_000)}, opts...)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "zero address", mutate: func(c *Config) { c.Address = common.Address{} }},
		{name: "no assets", mutate: func(c *Config) { c.Assets, c.Weights = nil, nil }},
		{name: "too many assets", mutate: func(c *Config) {
			c.Assets = []common.Address{assetA, assetB, {0x3}, {0x4}}
			c.Weights = []uint64{1, 1, 1, 1}
		}},
		{name: "weight count", mutate: func(c *Config) { c.Weights = []uint64{1} }},
		{name: "zero weight", mutate: func(c *Config) { c.Weights = []uint64{1, 0} }},
		{name: "duplicate asset", mutate: func(c *Config) { c.Assets = []common.Address{assetA, assetA} }},
		{name: "unamplified", mutate: func(c *Config) { c.OneMinusAmp = fixedpoint.One }},
		{name: "pool fee", mutate: func(c *Config) { c.PoolFee = x64(11, 100) }},
		{name: "governance share", mutate: func(c *Config) { c.GovernanceFeeShare = x64(4, 5) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, token.NewLedger())
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg := testConfig()
	require.NoError(t, cfg.Validate())
}

func TestInitialize(t *testing.T) {
	h := defaultHarness(t)
	ctx := context.Background()
	p := h.pool

	require.Equal(t, InitialShares, p.TotalSupply(ctx))
	require.Equal(t, InitialShares, p.BalanceOf(ctx, setupAddr))
	require.Equal(t, []*uint256.Int{tokens(1_000_000), tokens(1_000_000)}, p.Balances(ctx))
	require.Equal(t, tokens(1_000_000), h.ledger.BalanceOf(assetA, poolAddr))
	require.False(t, p.MaxUnitCapacity(ctx).IsZero())

	err := p.Initialize(ctx, setupAddr, []*uint256.Int{tokens(1), tokens(1)}, setupAddr, t0)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	require.ErrorIs(t, p.FinalizeSetup(ctx, alice), ErrInvalidCaller)
	require.NoError(t, p.FinalizeSetup(ctx, setupAddr))
	require.ErrorIs(t, p.CreateConnection(ctx, setupAddr, 9, remotePool, true), ErrSetupFinalized)
	require.Len(t, h.events.Named("SetupFinalized"), 1)
}

func TestUninitializedPool(t *testing.T) {
	p, err := New(testConfig(), token.NewLedger())
	require.NoError(t, err)

	_, err = p.LocalSwap(context.Background(), alice, LocalSwapParams{
		FromAsset: assetA, ToAsset: assetB, Amount: tokens(1),
	}, t0)
	require.ErrorIs(t, err, ErrNotInitialized)

	err = p.Initialize(context.Background(), alice, []*uint256.Int{tokens(1), tokens(1)}, alice, t0)
	require.ErrorIs(t, err, ErrInvalidCaller)
}

func TestLocalSwap(t *testing.T) {
	h := defaultHarness(t)
	ctx := context.Background()
	p := h.pool
	amount := tokens(1000)

	quote, err := p.QuoteLocalSwap(ctx, assetA, assetB, amount, t0)
	require.NoError(t, err)

	out, err := p.LocalSwap(ctx, alice, LocalSwapParams{
		FromAsset: assetA, ToAsset: assetB, Amount: amount, MinOut: quote,
	}, t0)
	require.NoError(t, err)
	require.Equal(t, quote, out)
	require.True(t, out.Lt(amount))

	balances := p.Balances(ctx)
	require.Equal(t, new(uint256.Int).Add(tokens(1_000_000), amount), balances[0])
	require.Equal(t, new(uint256.Int).Sub(tokens(1_000_000), out), balances[1])
	require.Equal(t, new(uint256.Int).Add(tokens(10_000_000), out), h.ledger.BalanceOf(assetB, alice))
	require.Len(t, h.events.Named("LocalSwap"), 1)

	_, err = p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetA, Amount: amount}, t0)
	require.ErrorIs(t, err, ErrInvalidAsset)

	_, err = p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: common.HexToAddress("0xdead"), Amount: amount}, t0)
	require.ErrorIs(t, err, ErrInvalidAsset)

	_, err = p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: new(uint256.Int)}, t0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLocalSwapMinOutRollsBack(t *testing.T) {
	h := defaultHarness(t)
	ctx := context.Background()
	p := h.pool
	before := p.Balances(ctx)
	aliceBefore := h.ledger.BalanceOf(assetA, alice)

	_, err := p.LocalSwap(ctx, alice, LocalSwapParams{
		FromAsset: assetA, ToAsset: assetB, Amount: tokens(1000), MinOut: tokens(1000),
	}, t0)
	require.ErrorIs(t, err, ErrInsufficientReturn)

	require.Equal(t, before, p.Balances(ctx))
	require.Equal(t, aliceBefore, h.ledger.BalanceOf(assetA, alice))
	require.Empty(t, h.events.Named("LocalSwap"))
}

func TestLocalSwapFees(t *testing.T) {
	cfg := testConfig()
	cfg.PoolFee = x64(1, 100)
	cfg.GovernanceFeeShare = x64(1, 2)
	h := newHarness(t, cfg, []*uint256.Int{tokens(1_000_000), tokens(1_000_000)})
	ctx := context.Background()
	amount := tokens(1000)

	_, err := h.pool.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: amount}, t0)
	require.NoError(t, err)

	fee, govFee, err := h.pool.fees(amount)
	require.NoError(t, err)
	require.Equal(t, govFee, h.ledger.BalanceOf(assetA, feeAdmin))
	require.False(t, govFee.IsZero())
	require.True(t, govFee.Lt(fee))

	kept := new(uint256.Int).Sub(amount, govFee)
	require.Equal(t, new(uint256.Int).Add(tokens(1_000_000), kept), h.pool.Balances(ctx)[0])
	require.Equal(t, h.pool.Balances(ctx)[0], h.ledger.BalanceOf(assetA, poolAddr))
}

func TestReentrantTransferRejected(t *testing.T) {
	h := defaultHarness(t)
	ctx := context.Background()
	p := h.pool
	before := p.Balances(ctx)

	var (
		inner    error
		observed []*uint256.Int
	)
	h.ledger.SetHook(func(ctx context.Context, tok, _, to common.Address, _ *uint256.Int) error {
		if to != alice || tok != assetB {
			return nil
		}
		observed = p.Balances(ctx)
		_, inner = p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetB, ToAsset: assetA, Amount: tokens(1)}, t0)
		return inner
	})

	_, err := p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: tokens(10)}, t0)
	require.ErrorIs(t, inner, ErrReentrant)
	require.ErrorIs(t, err, ErrReentrant)
	require.NotNil(t, observed)

	h.ledger.SetHook(nil)
	require.Equal(t, before, p.Balances(ctx))
	require.Equal(t, tokens(1_000_000), h.ledger.BalanceOf(assetA, poolAddr))
	require.Equal(t, tokens(10_000_000), h.ledger.BalanceOf(assetA, alice))
}

func TestReentrantTransferFreshContext(t *testing.T) {
	h := defaultHarness(t)
	ctx := context.Background()
	p := h.pool

	var inner error
	h.ledger.SetHook(func(_ context.Context, _, _, _ common.Address, _ *uint256.Int) error {
		_, inner = p.Deposit(context.Background(), alice, uint256.NewInt(1_000_000), nil, t0)
		return nil
	})

	_, err := p.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: tokens(10)}, t0)
	require.NoError(t, err)
	require.ErrorIs(t, inner, ErrReentrant)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(nil)
	h := defaultHarness(t, WithEventSink(sink))
	ctx := context.Background()

	_, err := h.pool.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: tokens(5)}, t0)
	require.NoError(t, err)

	logs := sink.Logs()
	// PoolDeployed, Deposit, ConnectionSet, LocalSwap
	require.Len(t, logs, 4)
	last := logs[3]
	require.Equal(t, poolAddr, last.Address)
	require.Equal(t, EventABI.Events["LocalSwap"].ID, last.Topics[0])
	require.Equal(t, common.BytesToHash(alice.Bytes()), last.Topics[1])

	values, err := EventABI.UnpackEventData("LocalSwap", last.Data)
	require.NoError(t, err)
	require.Len(t, values, 3)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := defaultHarness(t, WithRegisterer(reg))
	ctx := context.Background()

	_, err := h.pool.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: tokens(5)}, t0)
	require.NoError(t, err)
	_, err = h.pool.LocalSwap(ctx, alice, LocalSwapParams{FromAsset: assetA, ToAsset: assetB, Amount: tokens(5), MinOut: tokens(6)}, t0)
	require.Error(t, err)

	require.InDelta(t, 1, testutil.ToFloat64(h.pool.metrics.operations.WithLabelValues("localSwap", "ok")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(h.pool.metrics.operations.WithLabelValues("localSwap", "failed")), 0)
	require.Positive(t, testutil.ToFloat64(h.pool.metrics.unitCapacity))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestMetricsPerChain(t *testing.T) {
	reg := prometheus.NewRegistry()
	ledger := token.NewLedger()

	cfg := testConfig()
	_, err := New(cfg, ledger, WithRegisterer(reg))
	require.NoError(t, err)

	// Same address on another chain.
	cfg.ChainID = remoteChain
	_, err = New(cfg, ledger, WithRegisterer(reg))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "catalyst_pool_unit_capacity" {
			continue
		}
		require.Len(t, f.GetMetric(), 2)
		return
	}
	t.Fatal("unit capacity gauge not registered")
}
