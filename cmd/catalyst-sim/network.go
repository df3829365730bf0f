// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/chaininterface"
	"github.com/sengulatik66/catalyst/config"
	"github.com/sengulatik66/catalyst/pool"
	"github.com/sengulatik66/catalyst/token"
)

// network is a set of initialized pools wired through one router. Every
// chain has its own token ledger.
type network struct {
	log     *zap.Logger
	router  *chaininterface.Router
	ledgers map[uint64]*token.Ledger
	pools   []*pool.Pool
	events  *pool.Recorder
	logs    *pool.LogSink
}

// buildNetwork deploys, initializes and fully connects the configured
// pools. Setup balances are minted to each pool's setup authority.
func buildNetwork(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer, now uint64) (*network, error) {
	n := &network{
		log: log,
		router: chaininterface.NewRouter(
			chaininterface.WithLogger(log.Named("router")),
			chaininterface.WithRegisterer(reg),
			chaininterface.WithPacketTimeout(cfg.Relay.PacketTimeout),
		),
		ledgers: make(map[uint64]*token.Ledger),
		events:  &pool.Recorder{},
		logs:    pool.NewLogSink(log.Named("logs")),
	}

	setups := make([]pool.Config, len(cfg.Pools))
	for i := range cfg.Pools {
		pc, err := cfg.Pools[i].PoolConfig()
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", cfg.Pools[i].Name, err)
		}
		setups[i] = pc

		if _, ok := n.router.Endpoint(pc.ChainID); !ok {
			if _, err := n.router.AddEndpoint(pc.ChainID, pc.ChainInterface); err != nil {
				return nil, err
			}
			n.ledgers[pc.ChainID] = token.NewLedger()
		}

		p, err := pool.New(pc, n.ledgers[pc.ChainID],
			pool.WithLogger(log.Named("pool")),
			pool.WithRegisterer(reg),
			pool.WithEventSink(n.events),
			pool.WithEventSink(n.logs),
		)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", pc.Name, err)
		}
		if err := n.router.RegisterPool(p); err != nil {
			return nil, fmt.Errorf("pool %q: %w", pc.Name, err)
		}

		balances, err := cfg.Pools[i].Balances()
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", pc.Name, err)
		}
		ledger := n.ledgers[pc.ChainID]
		for j, asset := range pc.Assets {
			if err := ledger.Mint(asset, pc.SetupAuthority, balances[j]); err != nil {
				return nil, err
			}
		}
		if err := p.Initialize(ctx, pc.SetupAuthority, balances, pc.SetupAuthority, now); err != nil {
			return nil, fmt.Errorf("initialize %q: %w", pc.Name, err)
		}
		n.pools = append(n.pools, p)
	}

	for i, p := range n.pools {
		for j, q := range n.pools {
			if i == j || p.ChainID() == q.ChainID() {
				continue
			}
			if err := p.CreateConnection(ctx, setups[i].SetupAuthority, q.ChainID(), q.Address(), true); err != nil {
				return nil, fmt.Errorf("connect %q to %q: %w", setups[i].Name, setups[j].Name, err)
			}
		}
	}
	return n, nil
}

type swapQuote struct {
	units *uint256.Int
	out   *uint256.Int
}

// endpoints resolves the configured swap against the first two pools.
func (n *network) endpoints(s config.Swap) (src, dst *pool.Pool, from common.Address, err error) {
	if len(n.pools) < 2 {
		return nil, nil, common.Address{}, fmt.Errorf("swap needs two pools, have %d", len(n.pools))
	}
	src, dst = n.pools[0], n.pools[1]
	assets := src.Assets()
	if s.FromAsset < 0 || s.FromAsset >= len(assets) {
		return nil, nil, common.Address{}, fmt.Errorf("swap.from_asset %d out of range", s.FromAsset)
	}
	return src, dst, assets[s.FromAsset], nil
}

// quote prices the configured swap on both legs without sending it.
func (n *network) quote(ctx context.Context, s config.Swap, now uint64) (swapQuote, error) {
	src, dst, from, err := n.endpoints(s)
	if err != nil {
		return swapQuote{}, err
	}
	amount, _, err := s.Amounts()
	if err != nil {
		return swapQuote{}, err
	}
	units, err := src.QuoteSendAsset(ctx, from, amount, now)
	if err != nil {
		return swapQuote{}, err
	}
	out, err := dst.QuoteReceiveAsset(ctx, s.ToAsset, units, now)
	if err != nil {
		return swapQuote{}, err
	}
	return swapQuote{units: units, out: out}, nil
}

// swap sends the configured swap from the first pool to the second and
// returns its correlation id.
func (n *network) swap(ctx context.Context, s config.Swap, now uint64) (common.Hash, *uint256.Int, error) {
	src, dst, from, err := n.endpoints(s)
	if err != nil {
		return common.Hash{}, nil, err
	}
	user, err := s.SwapUser()
	if err != nil {
		return common.Hash{}, nil, err
	}
	amount, minOut, err := s.Amounts()
	if err != nil {
		return common.Hash{}, nil, err
	}
	if err := n.ledgers[src.ChainID()].Mint(from, user, amount); err != nil {
		return common.Hash{}, nil, err
	}
	return src.SendAsset(ctx, user, pool.SendAssetParams{
		ChainID:      dst.ChainID(),
		TargetPool:   dst.Address(),
		TargetUser:   user,
		FromAsset:    from,
		ToAssetIndex: s.ToAsset,
		Amount:       amount,
		MinOut:       minOut,
	}, now)
}

// relay delivers the queued packets and logs every outcome.
func (n *network) relay(ctx context.Context, now uint64) ([]chaininterface.Delivery, error) {
	deliveries, err := n.router.Relay(ctx, now)
	for _, d := range deliveries {
		fields := []zap.Field{
			zap.Stringer("packet", d.Packet.ID),
			zap.Stringer("outcome", d.Outcome),
		}
		if d.Reason != nil {
			fields = append(fields, zap.NamedError("reason", d.Reason))
		}
		if d.Err != nil {
			n.log.Error("relay failed", append(fields, zap.Error(d.Err))...)
			continue
		}
		n.log.Info("relayed", fields...)
	}
	return deliveries, err
}

// report logs balances, unit trackers and remaining capacity per pool.
func (n *network) report(ctx context.Context, now uint64) {
	for _, p := range n.pools {
		capacity, err := p.UnitCapacity(ctx, now)
		if err != nil {
			n.log.Warn("capacity unavailable", zap.Stringer("pool", p.Address()), zap.Error(err))
			capacity = new(uint256.Int)
		}
		balances := p.Balances(ctx)
		strs := make([]string, len(balances))
		for i, b := range balances {
			strs[i] = b.Dec()
		}
		fields := []zap.Field{
			zap.Stringer("pool", p.Address()),
			zap.Uint64("chain", p.ChainID()),
			zap.Strings("balances", strs),
			zap.Stringer("unit_tracker", p.UnitTracker(ctx)),
			zap.String("capacity", capacity.Dec()),
			zap.Int("pending_escrows", p.PendingEscrows(ctx)),
		}
		if pending := p.PendingUnitCapacity(ctx); pending != nil {
			fields = append(fields, zap.String("pending_capacity", pending.Dec()))
		}
		n.log.Info("pool state", fields...)
	}
}
