// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// Kind prefixes every encoded cross-chain message.
type Kind uint8

const (
	KindSwap      Kind = 0x00
	KindLiquidity Kind = 0x01
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownKind = errors.New("unknown payload kind")
)

// SwapPayload carries units sold by a source pool to a target pool, which
// redeems them for the asset at ToAsset.
type SwapPayload struct {
	CorrelationID common.Hash
	SourceChain   uint64
	SourcePool    common.Address
	TargetChain   uint64
	TargetPool    common.Address
	TargetUser    common.Address
	FallbackUser  common.Address
	ToAsset       uint8
	Units         *uint256.Int
	MinOut        *uint256.Int
	Timestamp     uint64
	Data          []byte
}

// LiquidityPayload carries liquidity units; the target pool mints shares.
type LiquidityPayload struct {
	CorrelationID common.Hash
	SourceChain   uint64
	SourcePool    common.Address
	TargetChain   uint64
	TargetPool    common.Address
	TargetUser    common.Address
	FallbackUser  common.Address
	Units         *uint256.Int
	MinShares     *uint256.Int
	Timestamp     uint64
}

var (
	swapArgs = abi.Arguments{
		{Name: "correlationId", Type: mustType("bytes32")},
		{Name: "sourceChain", Type: mustType("uint64")},
		{Name: "sourcePool", Type: mustType("address")},
		{Name: "targetChain", Type: mustType("uint64")},
		{Name: "targetPool", Type: mustType("address")},
		{Name: "targetUser", Type: mustType("address")},
		{Name: "fallbackUser", Type: mustType("address")},
		{Name: "toAsset", Type: mustType("uint8")},
		{Name: "units", Type: mustType("uint256")},
		{Name: "minOut", Type: mustType("uint256")},
		{Name: "timestamp", Type: mustType("uint64")},
		{Name: "data", Type: mustType("bytes")},
	}

	liquidityArgs = abi.Arguments{
		{Name: "correlationId", Type: mustType("bytes32")},
		{Name: "sourceChain", Type: mustType("uint64")},
		{Name: "sourcePool", Type: mustType("address")},
		{Name: "targetChain", Type: mustType("uint64")},
		{Name: "targetPool", Type: mustType("address")},
		{Name: "targetUser", Type: mustType("address")},
		{Name: "fallbackUser", Type: mustType("address")},
		{Name: "units", Type: mustType("uint256")},
		{Name: "minShares", Type: mustType("uint256")},
		{Name: "timestamp", Type: mustType("uint64")},
	}
)

// EncodeSwap packs a swap payload behind its kind prefix.
func EncodeSwap(p *SwapPayload) ([]byte, error) {
	data := p.Data
	if data == nil {
		data = []byte{}
	}
	packed, err := swapArgs.Pack(
		[32]byte(p.CorrelationID),
		p.SourceChain,
		p.SourcePool,
		p.TargetChain,
		p.TargetPool,
		p.TargetUser,
		p.FallbackUser,
		p.ToAsset,
		normalize(p.Units),
		normalize(p.MinOut),
		p.Timestamp,
		data,
	)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(KindSwap)}, packed...), nil
}

// EncodeLiquidity packs a liquidity payload behind its kind prefix.
func EncodeLiquidity(p *LiquidityPayload) ([]byte, error) {
	packed, err := liquidityArgs.Pack(
		[32]byte(p.CorrelationID),
		p.SourceChain,
		p.SourcePool,
		p.TargetChain,
		p.TargetPool,
		p.TargetUser,
		p.FallbackUser,
		normalize(p.Units),
		normalize(p.MinShares),
		p.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(KindLiquidity)}, packed...), nil
}

// PeekKind returns the kind of an encoded message.
func PeekKind(b []byte) (Kind, error) {
	if len(b) == 0 {
		return 0, ErrMalformed
	}
	switch k := Kind(b[0]); k {
	case KindSwap, KindLiquidity:
		return k, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, b[0])
	}
}

// DecodeSwap unpacks a message produced by EncodeSwap.
func DecodeSwap(b []byte) (*SwapPayload, error) {
	values, err := unpack(b, KindSwap, swapArgs)
	if err != nil {
		return nil, err
	}
	units, err := toUint256(values[8])
	if err != nil {
		return nil, err
	}
	minOut, err := toUint256(values[9])
	if err != nil {
		return nil, err
	}
	return &SwapPayload{
		CorrelationID: common.Hash(values[0].([32]byte)),
		SourceChain:   values[1].(uint64),
		SourcePool:    values[2].(common.Address),
		TargetChain:   values[3].(uint64),
		TargetPool:    values[4].(common.Address),
		TargetUser:    values[5].(common.Address),
		FallbackUser:  values[6].(common.Address),
		ToAsset:       values[7].(uint8),
		Units:         units,
		MinOut:        minOut,
		Timestamp:     values[10].(uint64),
		Data:          values[11].([]byte),
	}, nil
}

// DecodeLiquidity unpacks a message produced by EncodeLiquidity.
func DecodeLiquidity(b []byte) (*LiquidityPayload, error) {
	values, err := unpack(b, KindLiquidity, liquidityArgs)
	if err != nil {
		return nil, err
	}
	units, err := toUint256(values[7])
	if err != nil {
		return nil, err
	}
	minShares, err := toUint256(values[8])
	if err != nil {
		return nil, err
	}
	return &LiquidityPayload{
		CorrelationID: common.Hash(values[0].([32]byte)),
		SourceChain:   values[1].(uint64),
		SourcePool:    values[2].(common.Address),
		TargetChain:   values[3].(uint64),
		TargetPool:    values[4].(common.Address),
		TargetUser:    values[5].(common.Address),
		FallbackUser:  values[6].(common.Address),
		Units:         units,
		MinShares:     minShares,
		Timestamp:     values[9].(uint64),
	}, nil
}

func unpack(b []byte, want Kind, args abi.Arguments) ([]interface{}, error) {
	kind, err := PeekKind(b)
	if err != nil {
		return nil, err
	}
	if kind != want {
		return nil, fmt.Errorf("%w: expected kind %d, got %d", ErrMalformed, want, kind)
	}
	values, err := args.Unpack(b[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(values) != len(args) {
		return nil, fmt.Errorf("%w: %d fields", ErrMalformed, len(values))
	}
	return values, nil
}
