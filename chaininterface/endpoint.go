// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chaininterface

import (
	"context"

	"github.com/luxfi/geth/common"

	"github.com/sengulatik66/catalyst/codec"
)

// Endpoint is the chain interface of one chain. It implements
// pool.Transport for the pools registered on that chain.
type Endpoint struct {
	router  *Router
	chainID uint64
	address common.Address
}

// ChainID returns the endpoint's chain.
func (e *Endpoint) ChainID() uint64 { return e.chainID }

// Address is the caller pools see for inbound legs, acks and timeouts.
func (e *Endpoint) Address() common.Address { return e.address }

// SendSwap queues a swap packet under the payload's correlation id.
func (e *Endpoint) SendSwap(_ context.Context, payload *codec.SwapPayload) error {
	b, err := codec.EncodeSwap(payload)
	if err != nil {
		return err
	}
	return e.router.enqueue(&Packet{
		ID:          payload.CorrelationID,
		Kind:        codec.KindSwap,
		SourceChain: e.chainID,
		SourcePool:  payload.SourcePool,
		TargetChain: payload.TargetChain,
		TargetPool:  payload.TargetPool,
		Payload:     b,
		SentAt:      payload.Timestamp,
	})
}

// SendLiquidity queues a liquidity packet under the payload's correlation
// id.
func (e *Endpoint) SendLiquidity(_ context.Context, payload *codec.LiquidityPayload) error {
	b, err := codec.EncodeLiquidity(payload)
	if err != nil {
		return err
	}
	return e.router.enqueue(&Packet{
		ID:          payload.CorrelationID,
		Kind:        codec.KindLiquidity,
		SourceChain: e.chainID,
		SourcePool:  payload.SourcePool,
		TargetChain: payload.TargetChain,
		TargetPool:  payload.TargetPool,
		Payload:     b,
		SentAt:      payload.Timestamp,
	})
}
