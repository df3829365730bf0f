// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chaininterface is an in-process message layer between pools on
// different chains. Endpoints queue outbound packets; the Router relays
// them to the target pool and resolves the source escrow with an ack when
// delivery succeeds or a timeout when it fails.
package chaininterface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/codec"
	"github.com/sengulatik66/catalyst/pool"
)

// DefaultPacketTimeout is the delivery window of a packet in seconds.
const DefaultPacketTimeout uint64 = 60 * 60

var (
	ErrUnknownChain    = errors.New("unknown chain")
	ErrUnknownPool     = errors.New("unknown pool")
	ErrUnknownPacket   = errors.New("unknown packet")
	ErrDuplicatePacket = errors.New("duplicate packet")
	ErrDuplicatePool   = errors.New("pool already registered")
	ErrWrongInterface  = errors.New("pool uses a different chain interface")
)

// Packet is a queued cross-chain message.
type Packet struct {
	ID          common.Hash
	Kind        codec.Kind
	SourceChain uint64
	SourcePool  common.Address
	TargetChain uint64
	TargetPool  common.Address
	Payload     []byte
	SentAt      uint64
}

// Outcome is the result of relaying a packet.
type Outcome uint8

const (
	Delivered Outcome = iota
	TimedOut
)

func (o Outcome) String() string {
	if o == TimedOut {
		return "timeout"
	}
	return "delivered"
}

// Delivery reports what happened to one packet.
type Delivery struct {
	Packet  Packet
	Outcome Outcome
	// Reason is why the packet timed out.
	Reason error
	// Err is set when the source escrow could not be resolved.
	Err error
}

type registered struct {
	chainID uint64
	pool    *pool.Pool
}

type options struct {
	log     *zap.Logger
	reg     prometheus.Registerer
	timeout uint64
}

// Option configures a Router.
type Option func(*options)

// WithLogger sets the router logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRegisterer registers the router metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithPacketTimeout overrides DefaultPacketTimeout.
func WithPacketTimeout(seconds uint64) Option {
	return func(o *options) { o.timeout = seconds }
}

// Router connects the endpoints of all chains.
type Router struct {
	mu      sync.Mutex
	log     *zap.Logger
	timeout uint64

	endpoints map[uint64]*Endpoint
	// pools are kept sorted by chain and address for deterministic
	// iteration.
	pools   []registered
	pending []*Packet
	ids     map[common.Hash]struct{}

	packets *prometheus.CounterVec
	queued  prometheus.Gauge
}

// NewRouter creates a router without endpoints.
func NewRouter(opts ...Option) *Router {
	o := options{log: zap.NewNop(), timeout: DefaultPacketTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	factory := promauto.With(o.reg)
	return &Router{
		log:       o.log,
		timeout:   o.timeout,
		endpoints: make(map[uint64]*Endpoint),
		ids:       make(map[common.Hash]struct{}),
		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalyst",
			Subsystem: "relay",
			Name:      "packets_total",
			Help:      "Relayed packets by kind and outcome",
		}, []string{"kind", "outcome"}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "catalyst",
			Subsystem: "relay",
			Name:      "pending_packets",
			Help:      "Packets waiting for relay",
		}),
	}
}

// AddEndpoint creates the endpoint of chainID. Pools on that chain must
// use address as their chain interface.
func (r *Router) AddEndpoint(chainID uint64, address common.Address) (*Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[chainID]; ok {
		return nil, fmt.Errorf("endpoint for chain %d already exists", chainID)
	}
	e := &Endpoint{router: r, chainID: chainID, address: address}
	r.endpoints[chainID] = e
	return e, nil
}

// Endpoint returns the endpoint of chainID.
func (r *Router) Endpoint(chainID uint64) (*Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[chainID]
	return e, ok
}

// RegisterPool makes p reachable by packets and installs the chain's
// endpoint as its transport.
func (r *Router) RegisterPool(p *pool.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.endpoints[p.ChainID()]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, p.ChainID())
	}
	if p.ChainInterface() != e.address {
		return fmt.Errorf("%w: pool %s expects %s, endpoint is %s",
			ErrWrongInterface, p.Address(), p.ChainInterface(), e.address)
	}
	for _, reg := range r.pools {
		if reg.chainID == p.ChainID() && reg.pool.Address() == p.Address() {
			return fmt.Errorf("%w: %s on chain %d", ErrDuplicatePool, p.Address(), p.ChainID())
		}
	}

	r.pools = insertSorted(r.pools, registered{chainID: p.ChainID(), pool: p})
	p.SetTransport(e)
	r.log.Info("pool registered",
		zap.Uint64("chain", p.ChainID()),
		zap.Stringer("pool", p.Address()),
	)
	return nil
}

// Pools returns the registered pools of chainID in address order.
func (r *Router) Pools(chainID uint64) []*pool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pool.Pool
	for _, reg := range r.pools {
		if reg.chainID == chainID {
			out = append(out, reg.pool)
		}
	}
	return out
}

func (r *Router) lookup(chainID uint64, address common.Address) (*pool.Pool, *Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[chainID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	for _, reg := range r.pools {
		if reg.chainID == chainID && reg.pool.Address() == address {
			return reg.pool, e, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s on chain %d", ErrUnknownPool, address, chainID)
}

func (r *Router) enqueue(pk *Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[pk.TargetChain]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, pk.TargetChain)
	}
	if _, ok := r.ids[pk.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePacket, pk.ID)
	}
	r.ids[pk.ID] = struct{}{}
	r.pending = append(r.pending, pk)
	r.queued.Set(float64(len(r.pending)))
	return nil
}

// Pending returns the queued packets in send order.
func (r *Router) Pending() []Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Packet, len(r.pending))
	for i, pk := range r.pending {
		out[i] = *pk
	}
	return out
}

// Relay delivers every queued packet. Packets older than the packet
// timeout are timed out without delivery. Pools are called without the
// router lock held, so packets sent during relay wait for the next call.
func (r *Router) Relay(ctx context.Context, now uint64) ([]Delivery, error) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.queued.Set(0)
	r.mu.Unlock()

	deliveries := make([]Delivery, 0, len(batch))
	for i, pk := range batch {
		if err := ctx.Err(); err != nil {
			r.requeue(batch[i:])
			return deliveries, err
		}
		deliveries = append(deliveries, r.relay(ctx, pk, now))
	}
	return deliveries, nil
}

// Timeout drops a queued packet and refunds its source.
func (r *Router) Timeout(ctx context.Context, id common.Hash, now uint64) (Delivery, error) {
	r.mu.Lock()
	var pk *Packet
	for i, p := range r.pending {
		if p.ID == id {
			pk = p
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	r.queued.Set(float64(len(r.pending)))
	r.mu.Unlock()

	if pk == nil {
		return Delivery{}, fmt.Errorf("%w: %s", ErrUnknownPacket, id)
	}
	d := r.resolve(ctx, pk, now, errors.New("forced timeout"))
	return d, d.Err
}

func (r *Router) requeue(packets []*Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(append([]*Packet(nil), packets...), r.pending...)
	r.queued.Set(float64(len(r.pending)))
}

func (r *Router) relay(ctx context.Context, pk *Packet, now uint64) Delivery {
	if now > pk.SentAt+r.timeout {
		return r.resolve(ctx, pk, now, fmt.Errorf("packet expired at %d", pk.SentAt+r.timeout))
	}
	return r.resolve(ctx, pk, now, r.deliver(ctx, pk, now))
}

// deliver runs the inbound leg on the target pool.
func (r *Router) deliver(ctx context.Context, pk *Packet, now uint64) error {
	dst, e, err := r.lookup(pk.TargetChain, pk.TargetPool)
	if err != nil {
		return err
	}
	switch pk.Kind {
	case codec.KindSwap:
		msg, err := codec.DecodeSwap(pk.Payload)
		if err != nil {
			return err
		}
		_, err = dst.ReceiveAsset(ctx, e.address, pool.ReceiveAssetParams{
			SourceChain:   msg.SourceChain,
			SourcePool:    msg.SourcePool,
			CorrelationID: msg.CorrelationID,
			ToAssetIndex:  msg.ToAsset,
			Units:         msg.Units,
			MinOut:        msg.MinOut,
			Recipient:     msg.TargetUser,
			Data:          msg.Data,
		}, now)
		return err
	case codec.KindLiquidity:
		msg, err := codec.DecodeLiquidity(pk.Payload)
		if err != nil {
			return err
		}
		_, err = dst.ReceiveLiquidity(ctx, e.address, pool.ReceiveLiquidityParams{
			SourceChain:   msg.SourceChain,
			SourcePool:    msg.SourcePool,
			CorrelationID: msg.CorrelationID,
			Units:         msg.Units,
			MinShares:     msg.MinShares,
			Recipient:     msg.TargetUser,
		}, now)
		return err
	default:
		return fmt.Errorf("%w: %d", codec.ErrUnknownKind, pk.Kind)
	}
}

// resolve acks the source when failure is nil and times it out otherwise.
func (r *Router) resolve(ctx context.Context, pk *Packet, now uint64, failure error) Delivery {
	r.mu.Lock()
	delete(r.ids, pk.ID)
	r.mu.Unlock()

	d := Delivery{Packet: *pk, Outcome: Delivered}
	if failure != nil {
		d.Outcome = TimedOut
		d.Reason = failure
	}
	kind := "swap"
	if pk.Kind == codec.KindLiquidity {
		kind = "liquidity"
	}
	r.packets.WithLabelValues(kind, d.Outcome.String()).Inc()

	src, e, err := r.lookup(pk.SourceChain, pk.SourcePool)
	if err != nil {
		r.log.Error("source pool unreachable",
			zap.Stringer("id", pk.ID),
			zap.Error(err),
		)
		d.Err = err
		return d
	}

	if failure == nil {
		err = src.OnAck(ctx, e.address, pk.ID, now)
	} else {
		r.log.Warn("packet timed out",
			zap.Stringer("id", pk.ID),
			zap.Uint64("sourceChain", pk.SourceChain),
			zap.Uint64("targetChain", pk.TargetChain),
			zap.Error(failure),
		)
		err = src.OnTimeout(ctx, e.address, pk.ID, now)
	}
	if err != nil {
		r.log.Error("failed to resolve escrow",
			zap.Stringer("id", pk.ID),
			zap.Stringer("outcome", d.Outcome),
			zap.Error(err),
		)
		d.Err = err
	}
	return d
}

// insertSorted keeps pools ordered by chain id, then address.
func insertSorted(data []registered, reg registered) []registered {
	data = append(data, reg)
	sort.Slice(data, func(i, j int) bool {
		if data[i].chainID != data[j].chainID {
			return data[i].chainID < data[j].chainID
		}
		return bytes.Compare(data[i].pool.Address().Bytes(), data[j].pool.Address().Bytes()) < 0
	})
	return data
}
