// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec encodes the pool's cross-chain payloads, persisted escrow
// records and event logs with the Ethereum ABI.
package codec

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// ExtendedABI wraps the standard ABI and adds event packing and unpacking.
type ExtendedABI struct {
	abi.ABI
}

// ParseABI parses the raw ABI JSON and returns an ExtendedABI
func ParseABI(rawABI string) (ExtendedABI, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return ExtendedABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return ExtendedABI{ABI: parsed}, nil
}

// MustParseABI is ParseABI for package-level ABI definitions.
func MustParseABI(rawABI string) ExtendedABI {
	e, err := ParseABI(rawABI)
	if err != nil {
		panic(err)
	}
	return e
}

// PackEvent packs the given event name and arguments to conform the ABI.
// Returns the topics for the event and the packed data of non-indexed args.
func (e ExtendedABI) PackEvent(name string, args ...interface{}) ([]common.Hash, []byte, error) {
	event, exist := e.Events[name]
	if !exist {
		return nil, nil, fmt.Errorf("event '%s' not found", name)
	}
	if len(args) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event '%s' unexpected number of inputs %d", name, len(args))
	}

	var (
		nonIndexedInputs = make([]interface{}, 0, len(args))
		nonIndexedArgs   abi.Arguments
		topics           = make([]common.Hash, 0, len(args)+1)
	)
	if !event.Anonymous {
		topics = append(topics, event.ID)
	}

	for i, arg := range event.Inputs {
		value := normalize(args[i])
		if !arg.Indexed {
			nonIndexedArgs = append(nonIndexedArgs, arg)
			nonIndexedInputs = append(nonIndexedInputs, value)
			continue
		}
		topic, err := packTopic(value)
		if err != nil {
			return nil, nil, fmt.Errorf("event '%s' topic %s: %w", name, arg.Name, err)
		}
		topics = append(topics, topic)
	}

	data, err := nonIndexedArgs.Pack(nonIndexedInputs...)
	if err != nil {
		return nil, nil, err
	}
	return topics, data, nil
}

// UnpackEventData decodes the non-indexed arguments of an event log.
func (e ExtendedABI) UnpackEventData(name string, data []byte) ([]interface{}, error) {
	event, exist := e.Events[name]
	if !exist {
		return nil, fmt.Errorf("event '%s' not found", name)
	}
	return event.Inputs.NonIndexed().Unpack(data)
}

// normalize converts uint256 values to the *big.Int the ABI packer expects.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case *uint256.Int:
		if v == nil {
			return new(big.Int)
		}
		return v.ToBig()
	case []*uint256.Int:
		out := make([]*big.Int, len(v))
		for i, x := range v {
			out[i] = normalize(x).(*big.Int)
		}
		return out
	default:
		return value
	}
}

// packTopic packs a single indexed argument into a topic hash
func packTopic(value interface{}) (common.Hash, error) {
	switch v := value.(type) {
	case common.Address:
		return common.BytesToHash(v.Bytes()), nil
	case common.Hash:
		return v, nil
	case [32]byte:
		return common.Hash(v), nil
	case *big.Int:
		return common.BigToHash(v), nil
	case uint64:
		return common.BigToHash(new(big.Int).SetUint64(v)), nil
	case uint8:
		return common.BigToHash(big.NewInt(int64(v))), nil
	case []byte:
		return common.BytesToHash(crypto.Keccak256(v)), nil
	case string:
		return common.BytesToHash(crypto.Keccak256([]byte(v))), nil
	default:
		return common.Hash{}, fmt.Errorf("unsupported indexed type: %T", value)
	}
}

// toUint256 converts an unpacked ABI integer back to uint256.
func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: expected *big.Int, got %T", ErrMalformed, v)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: integer overflows 256 bits", ErrMalformed)
	}
	return z, nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
