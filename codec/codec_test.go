// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

const testABI = `[
	{"type":"event","name":"Swap","inputs":[
		{"name":"pool","type":"address","indexed":true},
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"units","type":"uint256","indexed":false}
	]}
]`

func TestSwapPayload(t *testing.T) {
	in := &SwapPayload{
		CorrelationID: common.HexToHash("0x01"),
		SourceChain:   1,
		SourcePool:    common.HexToAddress("0x10"),
		TargetChain:   2,
		TargetPool:    common.HexToAddress("0x20"),
		TargetUser:    common.HexToAddress("0x30"),
		FallbackUser:  common.HexToAddress("0x40"),
		ToAsset:       2,
		Units:         uint256.NewInt(12345),
		MinOut:        uint256.NewInt(7),
		Timestamp:     1700000000,
		Data:          []byte("hello"),
	}
	b, err := EncodeSwap(in)
	require.NoError(t, err)

	kind, err := PeekKind(b)
	require.NoError(t, err)
	require.Equal(t, KindSwap, kind)

	out, err := DecodeSwap(b)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = DecodeLiquidity(b)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestLiquidityPayload(t *testing.T) {
	in := &LiquidityPayload{
		CorrelationID: common.HexToHash("0xabc"),
		SourceChain:   5,
		SourcePool:    common.HexToAddress("0x11"),
		TargetChain:   6,
		TargetPool:    common.HexToAddress("0x22"),
		TargetUser:    common.HexToAddress("0x33"),
		FallbackUser:  common.HexToAddress("0x44"),
		Units:         new(uint256.Int).Lsh(uint256.NewInt(1), 200),
		MinShares:     new(uint256.Int),
		Timestamp:     42,
	}
	b, err := EncodeLiquidity(in)
	require.NoError(t, err)

	out, err := DecodeLiquidity(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestPeekKind(t *testing.T) {
	_, err := PeekKind(nil)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = PeekKind([]byte{0x7f})
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = DecodeSwap([]byte{byte(KindSwap), 0x01})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEscrowRecord(t *testing.T) {
	in := &Escrow{
		Kind:     1,
		Asset:    0,
		Fallback: common.HexToAddress("0xfa11"),
		Amount:   uint256.NewInt(1000),
		Units:    uint256.NewInt(99),
	}
	b, err := EncodeEscrow(in)
	require.NoError(t, err)

	out, err := DecodeEscrow(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestPackEvent(t *testing.T) {
	e, err := ParseABI(testABI)
	require.NoError(t, err)

	pool := common.HexToAddress("0x1234")
	id := common.HexToHash("0xbeef")
	topics, data, err := e.PackEvent("Swap", pool, id, uint256.NewInt(10), big.NewInt(20))
	require.NoError(t, err)

	require.Len(t, topics, 3)
	require.Equal(t, common.BytesToHash(crypto.Keccak256([]byte("Swap(address,bytes32,uint256,uint256)"))), topics[0])
	require.Equal(t, common.BytesToHash(pool.Bytes()), topics[1])
	require.Equal(t, id, topics[2])

	values, err := e.UnpackEventData("Swap", data)
	require.NoError(t, err)
	require.Equal(t, []interface{}{big.NewInt(10), big.NewInt(20)}, values)

	_, _, err = e.PackEvent("Missing")
	require.Error(t, err)
	_, _, err = e.PackEvent("Swap", pool)
	require.Error(t, err)

	_, err = ParseABI("not json")
	require.Error(t, err)
}
