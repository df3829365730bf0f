// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool implements an amplified multi-asset liquidity pool that
// swaps locally and across chains. Assets sold to a remote pool are
// converted into units, escrowed until the remote leg is acknowledged or
// times out, and bounded on the receiving side by a decaying security
// limit.
package pool

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/codec"
)

// Transport hands outbound messages to the chain interface. The ack or
// timeout is later delivered under the payload's CorrelationID. A send
// that returns an error must not have queued anything.
type Transport interface {
	SendSwap(ctx context.Context, payload *codec.SwapPayload) error
	SendLiquidity(ctx context.Context, payload *codec.LiquidityPayload) error
}

// Receiver is called after an inbound swap settles when the swap carries
// data for its recipient.
type Receiver interface {
	OnSwapComplete(ctx context.Context, pool common.Address, amount *uint256.Int, data []byte) error
}

// Pool is a single amplified pool. All methods are safe for concurrent
// use; mutating operations are serialized. A mutating call that reaches
// the pool while it waits on a token transfer, the transport or a receiver
// fails with ErrReentrant.
type Pool struct {
	mu      sync.RWMutex
	calling atomic.Bool
	frozen  atomic.Pointer[state]

	cfg       Config
	log       *zap.Logger
	metrics   *metrics
	events    EventSink
	tokens    Tokens
	transport Transport
	receivers map[common.Address]Receiver
	ledger    *escrowLedger

	st *state
}

type options struct {
	log       *zap.Logger
	reg       prometheus.Registerer
	sinks     []EventSink
	store     Store
	transport Transport
}

// Option configures a Pool.
type Option func(*options)

// WithLogger sets the pool logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRegisterer registers the pool metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithEventSink adds an event sink.
func WithEventSink(sink EventSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sink) }
}

// WithStore sets the escrow store. Defaults to an in-memory database.
func WithStore(store Store) Option {
	return func(o *options) { o.store = store }
}

// WithTransport sets the chain interface used by outbound legs.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// New creates a pool from its setup parameters. Balances are seeded by
// Initialize.
func New(cfg Config, tokens Tokens, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = memdb.New()
	}

	cfg.Assets = append([]common.Address(nil), cfg.Assets...)
	cfg.Weights = append([]uint64(nil), cfg.Weights...)

	p := &Pool{
		cfg:       cfg,
		log:       o.log.With(zap.Stringer("pool", cfg.Address), zap.Uint64("chain", cfg.ChainID)),
		metrics:   newMetrics(o.reg, cfg.ChainID, cfg.Address),
		events:    multiSink(o.sinks),
		tokens:    tokens,
		transport: o.transport,
		receivers: make(map[common.Address]Receiver),
		ledger:    newEscrowLedger(o.store, cfg.Address),
		st:        newState(&cfg),
	}

	p.events.Emit(cfg.Address, PoolDeployed{
		Assets:      append([]common.Address(nil), cfg.Assets...),
		Weights:     append([]uint64(nil), cfg.Weights...),
		OneMinusAmp: new(uint256.Int).Set(cfg.OneMinusAmp),
	})
	p.log.Info("pool deployed",
		zap.String("name", cfg.Name),
		zap.Int("assets", len(cfg.Assets)),
	)
	return p, nil
}

// SetTransport replaces the chain interface.
func (p *Pool) SetTransport(t Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transport = t
}

// RegisterReceiver installs the callback for inbound swaps to account.
func (p *Pool) RegisterReceiver(account common.Address, r Receiver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receivers[account] = r
}

// Address returns the pool address.
func (p *Pool) Address() common.Address { return p.cfg.Address }

// ChainID returns the chain the pool lives on.
func (p *Pool) ChainID() uint64 { return p.cfg.ChainID }

// ChainInterface returns the address allowed to deliver inbound legs.
func (p *Pool) ChainInterface() common.Address { return p.cfg.ChainInterface }

// Assets returns the pool's assets in slot order.
func (p *Pool) Assets() []common.Address {
	return append([]common.Address(nil), p.cfg.Assets...)
}

// view runs fn with read access to the pool state. Inside an operation of
// this pool the write lock is already held; during an external call fn
// reads the state frozen at its start.
func (p *Pool) view(ctx context.Context, fn func(st *state)) {
	switch {
	case p.inside(ctx):
		fn(p.st)
	case p.calling.Load():
		fn(p.frozen.Load())
	default:
		p.mu.RLock()
		defer p.mu.RUnlock()
		fn(p.st)
	}
}

// Balances returns gross balances, including escrowed amounts.
func (p *Pool) Balances(ctx context.Context) []*uint256.Int {
	var out []*uint256.Int
	p.view(ctx, func(st *state) { out = cloneInts(st.balances) })
	return out
}

// Escrowed returns the escrowed amount per asset.
func (p *Pool) Escrowed(ctx context.Context) []*uint256.Int {
	var out []*uint256.Int
	p.view(ctx, func(st *state) { out = cloneInts(st.escrowed) })
	return out
}

// Weights returns the current weights.
func (p *Pool) Weights(ctx context.Context) []uint64 {
	var out []uint64
	p.view(ctx, func(st *state) { out = append([]uint64(nil), st.weights...) })
	return out
}

// OneMinusAmp returns the current 1-k in X64.
func (p *Pool) OneMinusAmp(ctx context.Context) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) { out = new(uint256.Int).Set(st.oneMinusAmp) })
	return out
}

// UnitTracker returns units sold minus units bought, in X64.
func (p *Pool) UnitTracker(ctx context.Context) *big.Int {
	var out *big.Int
	p.view(ctx, func(st *state) { out = new(big.Int).Set(st.unitTracker) })
	return out
}

// TotalSupply returns the outstanding pool shares.
func (p *Pool) TotalSupply(ctx context.Context) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) { out = new(uint256.Int).Set(st.totalSupply) })
	return out
}

// EscrowedShares returns the shares burned by pending liquidity swaps.
func (p *Pool) EscrowedShares(ctx context.Context) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) { out = new(uint256.Int).Set(st.escrowedShares) })
	return out
}

// BalanceOf returns the pool shares held by account.
func (p *Pool) BalanceOf(ctx context.Context, account common.Address) *uint256.Int {
	var out *uint256.Int
	p.view(ctx, func(st *state) { out = new(uint256.Int).Set(st.shareBalance(account)) })
	return out
}

// Schedule describes the active parameter schedule.
func (p *Pool) Schedule(ctx context.Context) ScheduleInfo {
	var out ScheduleInfo
	p.view(ctx, func(st *state) { out = st.schedule.info() })
	return out
}

// PendingEscrows returns the number of unresolved outbound legs.
func (p *Pool) PendingEscrows(ctx context.Context) int {
	var out int
	p.view(ctx, func(st *state) { out = st.pendingEscrows })
	return out
}

// Escrow returns the pending record under a correlation id.
func (p *Pool) Escrow(ctx context.Context, id common.Hash) (*EscrowRecord, error) {
	var (
		rec *EscrowRecord
		err error
	)
	p.view(ctx, func(*state) { rec, err = p.ledger.get(id) })
	return rec, err
}

// Connected reports whether outbound legs to remotePool on chainID are
// allowed and inbound legs from it are accepted.
func (p *Pool) Connected(ctx context.Context, chainID uint64, remotePool common.Address) bool {
	var out bool
	p.view(ctx, func(st *state) { out = st.connections[connection{chainID: chainID, pool: remotePool}] })
	return out
}

func (p *Pool) assetIndex(asset common.Address) (int, error) {
	for i, a := range p.cfg.Assets {
		if a == asset {
			return i, nil
		}
	}
	return 0, errorsmod.Wrapf(ErrInvalidAsset, "%s", asset.Hex())
}

func (p *Pool) checkIndex(i uint8) error {
	if int(i) >= len(p.cfg.Assets) {
		return errorsmod.Wrapf(ErrInvalidAsset, "index %d", i)
	}
	return nil
}

func (p *Pool) requireChainInterface(caller common.Address) error {
	if p.cfg.ChainInterface == (common.Address{}) || caller != p.cfg.ChainInterface {
		return errorsmod.Wrapf(ErrInvalidCaller, "%s is not the chain interface", caller.Hex())
	}
	return nil
}

func (p *Pool) requireConnection(chainID uint64, remotePool common.Address) error {
	if !p.st.connections[connection{chainID: chainID, pool: remotePool}] {
		return errorsmod.Wrapf(ErrNoConnection, "chain %d pool %s", chainID, remotePool.Hex())
	}
	return nil
}

func (p *Pool) requireInitialized() error {
	if !p.st.initialized {
		return ErrNotInitialized
	}
	return nil
}

func requirePositive(name string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return errorsmod.Wrapf(ErrInvalidAmount, "%s is zero", name)
	}
	return nil
}

// Initialize seeds the pool balances from caller and mints InitialShares
// to depositor. Only the setup authority may initialize, once.
func (p *Pool) Initialize(ctx context.Context, caller common.Address, amounts []*uint256.Int, depositor common.Address, now uint64) error {
	return p.execute(ctx, "initialize", func(ctx context.Context, tx *txn) error {
		st := p.st
		if st.setupAuthority == (common.Address{}) {
			return ErrSetupFinalized
		}
		if caller != st.setupAuthority {
			return errorsmod.Wrapf(ErrInvalidCaller, "%s is not the setup authority", caller.Hex())
		}
		if st.initialized {
			return ErrAlreadyInitialized
		}
		if len(amounts) != len(p.cfg.Assets) {
			return errorsmod.Wrapf(ErrInvalidAmount, "%d amounts for %d assets", len(amounts), len(p.cfg.Assets))
		}
		for i, amount := range amounts {
			if err := requirePositive("initial balance", amount); err != nil {
				return err
			}
			st.balances[i] = new(uint256.Int).Set(amount)
			tx.move(p.cfg.Assets[i], caller, p.cfg.Address, amount)
		}
		if _, err := st.reference(st.balances); err != nil {
			return err
		}
		st.mintShares(depositor, InitialShares)
		st.initialized = true
		if err := st.refreshLimit(false); err != nil {
			return err
		}
		if err := p.settle(ctx, tx); err != nil {
			return err
		}

		tx.emit(Deposit{Account: depositor, Shares: new(uint256.Int).Set(InitialShares), Amounts: cloneInts(amounts)})
		p.log.Info("pool initialized", zap.Stringer("depositor", depositor), zap.Uint64("time", now))
		return nil
	})
}

// FinalizeSetup revokes the setup authority.
func (p *Pool) FinalizeSetup(ctx context.Context, caller common.Address) error {
	return p.execute(ctx, "finalizeSetup", func(_ context.Context, tx *txn) error {
		if p.st.setupAuthority == (common.Address{}) {
			return ErrSetupFinalized
		}
		if caller != p.st.setupAuthority {
			return errorsmod.Wrapf(ErrInvalidCaller, "%s is not the setup authority", caller.Hex())
		}
		p.st.setupAuthority = common.Address{}
		tx.emit(SetupFinalized{})
		return nil
	})
}

// CreateConnection allows or disallows swaps with remotePool on chainID.
// Only the setup authority may manage connections.
func (p *Pool) CreateConnection(ctx context.Context, caller common.Address, chainID uint64, remotePool common.Address, enabled bool) error {
	return p.execute(ctx, "createConnection", func(_ context.Context, tx *txn) error {
		if p.st.setupAuthority == (common.Address{}) {
			return ErrSetupFinalized
		}
		if caller != p.st.setupAuthority {
			return errorsmod.Wrapf(ErrInvalidCaller, "%s is not the setup authority", caller.Hex())
		}
		p.st.connections[connection{chainID: chainID, pool: remotePool}] = enabled
		tx.emit(ConnectionSet{ChainID: chainID, RemotePool: remotePool, Enabled: enabled})
		return nil
	})
}

// SetWeights schedules a linear move of every weight to targets, reached
// at targetTime.
func (p *Pool) SetWeights(ctx context.Context, caller common.Address, targets []uint64, targetTime, now uint64) error {
	return p.execute(ctx, "setWeights", func(_ context.Context, tx *txn) error {
		if caller != p.cfg.Governance {
			return errorsmod.Wrapf(ErrInvalidCaller, "%s is not governance", caller.Hex())
		}
		if err := p.st.advance(now); err != nil {
			return err
		}
		if err := p.st.startWeightSchedule(targets, targetTime, now); err != nil {
			return err
		}
		tx.emit(ScheduleStarted{Kind: ScheduleWeights, TargetTime: targetTime})
		p.log.Info("weight schedule started", zap.Uint64s("targets", targets), zap.Uint64("targetTime", targetTime))
		return nil
	})
}

// SetAmplification schedules a linear move of 1-k to target, reached at
// targetTime.
func (p *Pool) SetAmplification(ctx context.Context, caller common.Address, target *uint256.Int, targetTime, now uint64) error {
	return p.execute(ctx, "setAmplification", func(_ context.Context, tx *txn) error {
		if caller != p.cfg.Governance {
			return errorsmod.Wrapf(ErrInvalidCaller, "%s is not governance", caller.Hex())
		}
		if err := p.st.advance(now); err != nil {
			return err
		}
		if err := p.st.startAmpSchedule(target, targetTime, now); err != nil {
			return err
		}
		tx.emit(ScheduleStarted{Kind: ScheduleAmplification, TargetTime: targetTime})
		p.log.Info("amplification schedule started", zap.Stringer("target", target), zap.Uint64("targetTime", targetTime))
		return nil
	})
}

// UpdateParameters advances the active schedule to now.
func (p *Pool) UpdateParameters(ctx context.Context, now uint64) error {
	return p.execute(ctx, "updateParameters", func(context.Context, *txn) error {
		return p.st.advance(now)
	})
}
