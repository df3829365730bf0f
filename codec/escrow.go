// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// Escrow is the persisted form of a pending escrow.
type Escrow struct {
	Kind     uint8
	Asset    uint8
	Fallback common.Address
	Amount   *uint256.Int
	Units    *uint256.Int
}

var escrowArgs = abi.Arguments{
	{Name: "kind", Type: mustType("uint8")},
	{Name: "asset", Type: mustType("uint8")},
	{Name: "fallback", Type: mustType("address")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "units", Type: mustType("uint256")},
}

// EncodeEscrow packs an escrow record for storage.
func EncodeEscrow(e *Escrow) ([]byte, error) {
	return escrowArgs.Pack(e.Kind, e.Asset, e.Fallback, normalize(e.Amount), normalize(e.Units))
}

// DecodeEscrow unpacks a record produced by EncodeEscrow.
func DecodeEscrow(b []byte) (*Escrow, error) {
	values, err := escrowArgs.Unpack(b)
	if err != nil {
		return nil, err
	}
	amount, err := toUint256(values[3])
	if err != nil {
		return nil, err
	}
	units, err := toUint256(values[4])
	if err != nil {
		return nil, err
	}
	return &Escrow{
		Kind:     values[0].(uint8),
		Asset:    values[1].(uint8),
		Fallback: values[2].(common.Address),
		Amount:   amount,
		Units:    units,
	}, nil
}
