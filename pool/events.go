// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Event is emitted by a pool after an operation succeeds.
type Event interface {
	EventName() string
}

// EventSink receives pool events in emission order.
type EventSink interface {
	Emit(pool common.Address, ev Event)
}

type PoolDeployed struct {
	Assets      []common.Address
	Weights     []uint64
	OneMinusAmp *uint256.Int
}

type LocalSwap struct {
	Account   common.Address
	FromAsset common.Address
	ToAsset   common.Address
	Amount    *uint256.Int
	Output    *uint256.Int
	Fee       *uint256.Int
}

type SendAsset struct {
	CorrelationID common.Hash
	ChainID       uint64
	TargetPool    common.Address
	TargetUser    common.Address
	FromAsset     common.Address
	ToAssetIndex  uint8
	Amount        *uint256.Int
	Units         *uint256.Int
	MinOut        *uint256.Int
	Fee           *uint256.Int
	Fallback      common.Address
}

type ReceiveAsset struct {
	CorrelationID common.Hash
	SourceChain   uint64
	SourcePool    common.Address
	Recipient     common.Address
	ToAsset       common.Address
	Units         *uint256.Int
	Output        *uint256.Int
}

type SendLiquidity struct {
	CorrelationID common.Hash
	ChainID       uint64
	TargetPool    common.Address
	TargetUser    common.Address
	Shares        *uint256.Int
	Units         *uint256.Int
	Fallback      common.Address
}

type ReceiveLiquidity struct {
	CorrelationID common.Hash
	SourceChain   uint64
	SourcePool    common.Address
	Recipient     common.Address
	Units         *uint256.Int
	Shares        *uint256.Int
}

type Deposit struct {
	Account common.Address
	Shares  *uint256.Int
	Amounts []*uint256.Int
}

type Withdraw struct {
	Account common.Address
	Shares  *uint256.Int
	Amounts []*uint256.Int
}

type EscrowAck struct {
	CorrelationID common.Hash
	Kind          EscrowKind
	Amount        *uint256.Int
}

type EscrowTimeout struct {
	CorrelationID common.Hash
	Kind          EscrowKind
	Fallback      common.Address
	Amount        *uint256.Int
}

type ScheduleStarted struct {
	Kind       ScheduleKind
	TargetTime uint64
}

type ConnectionSet struct {
	ChainID    uint64
	RemotePool common.Address
	Enabled    bool
}

type SetupFinalized struct{}

func (PoolDeployed) EventName() string     { return "PoolDeployed" }
func (LocalSwap) EventName() string        { return "LocalSwap" }
func (SendAsset) EventName() string        { return "SendAsset" }
func (ReceiveAsset) EventName() string     { return "ReceiveAsset" }
func (SendLiquidity) EventName() string    { return "SendLiquidity" }
func (ReceiveLiquidity) EventName() string { return "ReceiveLiquidity" }
func (Deposit) EventName() string          { return "Deposit" }
func (Withdraw) EventName() string         { return "Withdraw" }
func (EscrowAck) EventName() string        { return "EscrowAck" }
func (EscrowTimeout) EventName() string    { return "EscrowTimeout" }
func (ScheduleStarted) EventName() string  { return "ScheduleStarted" }
func (ConnectionSet) EventName() string    { return "ConnectionSet" }
func (SetupFinalized) EventName() string   { return "SetupFinalized" }

// Recorder is an EventSink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is an event together with the emitting pool.
type RecordedEvent struct {
	Pool  common.Address
	Event Event
}

// Emit records ev.
func (r *Recorder) Emit(pool common.Address, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Pool: pool, Event: ev})
}

// Events returns the recorded events.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Event.EventName() == name {
			out = append(out, e.Event)
		}
	}
	return out
}

type multiSink []EventSink

func (m multiSink) Emit(pool common.Address, ev Event) {
	for _, s := range m {
		s.Emit(pool, ev)
	}
}
