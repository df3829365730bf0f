// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"go.uber.org/zap"

	"github.com/sengulatik66/catalyst/codec"
)

const eventABIJSON = `[
	{"type":"event","name":"PoolDeployed","inputs":[
		{"name":"assets","type":"address[]","indexed":false},
		{"name":"weights","type":"uint64[]","indexed":false},
		{"name":"oneMinusAmp","type":"uint256","indexed":false}]},
	{"type":"event","name":"LocalSwap","inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"fromAsset","type":"address","indexed":true},
		{"name":"toAsset","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"output","type":"uint256","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]},
	{"type":"event","name":"SendAsset","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"chainId","type":"uint64","indexed":false},
		{"name":"targetPool","type":"address","indexed":false},
		{"name":"targetUser","type":"address","indexed":false},
		{"name":"fromAsset","type":"address","indexed":true},
		{"name":"toAssetIndex","type":"uint8","indexed":false},
		{"name":"amount","type":"uint256","indexed":false},
		{"name":"units","type":"uint256","indexed":false},
		{"name":"minOut","type":"uint256","indexed":false},
		{"name":"fee","type":"uint256","indexed":false},
		{"name":"fallbackUser","type":"address","indexed":false}]},
	{"type":"event","name":"ReceiveAsset","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"sourceChain","type":"uint64","indexed":false},
		{"name":"sourcePool","type":"address","indexed":false},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"toAsset","type":"address","indexed":true},
		{"name":"units","type":"uint256","indexed":false},
		{"name":"output","type":"uint256","indexed":false}]},
	{"type":"event","name":"SendLiquidity","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"chainId","type":"uint64","indexed":false},
		{"name":"targetPool","type":"address","indexed":false},
		{"name":"targetUser","type":"address","indexed":false},
		{"name":"shares","type":"uint256","indexed":false},
		{"name":"units","type":"uint256","indexed":false},
		{"name":"fallbackUser","type":"address","indexed":false}]},
	{"type":"event","name":"ReceiveLiquidity","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"sourceChain","type":"uint64","indexed":false},
		{"name":"sourcePool","type":"address","indexed":false},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"units","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Deposit","inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"shares","type":"uint256","indexed":false},
		{"name":"amounts","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"Withdraw","inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"shares","type":"uint256","indexed":false},
		{"name":"amounts","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"EscrowAck","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"EscrowTimeout","inputs":[
		{"name":"correlationId","type":"bytes32","indexed":true},
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"fallbackUser","type":"address","indexed":false},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"ScheduleStarted","inputs":[
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"targetTime","type":"uint64","indexed":false}]},
	{"type":"event","name":"ConnectionSet","inputs":[
		{"name":"chainId","type":"uint64","indexed":true},
		{"name":"remotePool","type":"address","indexed":true},
		{"name":"enabled","type":"bool","indexed":false}]},
	{"type":"event","name":"SetupFinalized","inputs":[]}
]`

// EventABI describes the logs produced by LogSink.
var EventABI = codec.MustParseABI(eventABIJSON)

// eventArgs returns the ABI arguments of ev in EventABI order.
func eventArgs(ev Event) ([]interface{}, error) {
	switch e := ev.(type) {
	case PoolDeployed:
		return []interface{}{e.Assets, e.Weights, e.OneMinusAmp}, nil
	case LocalSwap:
		return []interface{}{e.Account, e.FromAsset, e.ToAsset, e.Amount, e.Output, e.Fee}, nil
	case SendAsset:
		return []interface{}{e.CorrelationID, e.ChainID, e.TargetPool, e.TargetUser, e.FromAsset,
			e.ToAssetIndex, e.Amount, e.Units, e.MinOut, e.Fee, e.Fallback}, nil
	case ReceiveAsset:
		return []interface{}{e.CorrelationID, e.SourceChain, e.SourcePool, e.Recipient, e.ToAsset, e.Units, e.Output}, nil
	case SendLiquidity:
		return []interface{}{e.CorrelationID, e.ChainID, e.TargetPool, e.TargetUser, e.Shares, e.Units, e.Fallback}, nil
	case ReceiveLiquidity:
		return []interface{}{e.CorrelationID, e.SourceChain, e.SourcePool, e.Recipient, e.Units, e.Shares}, nil
	case Deposit:
		return []interface{}{e.Account, e.Shares, e.Amounts}, nil
	case Withdraw:
		return []interface{}{e.Account, e.Shares, e.Amounts}, nil
	case EscrowAck:
		return []interface{}{e.CorrelationID, uint8(e.Kind), e.Amount}, nil
	case EscrowTimeout:
		return []interface{}{e.CorrelationID, uint8(e.Kind), e.Fallback, e.Amount}, nil
	case ScheduleStarted:
		return []interface{}{uint8(e.Kind), e.TargetTime}, nil
	case ConnectionSet:
		return []interface{}{e.ChainID, e.RemotePool, e.Enabled}, nil
	case SetupFinalized:
		return []interface{}{}, nil
	default:
		return nil, fmt.Errorf("no log encoding for %T", ev)
	}
}

// Log is an EVM-style event log.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// LogSink encodes pool events as ABI logs.
type LogSink struct {
	mu   sync.Mutex
	log  *zap.Logger
	logs []Log
}

// NewLogSink creates a LogSink. Encoding failures are reported on log.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

// Emit encodes ev as a log of pool. Events that fail to encode are logged
// and dropped.
func (s *LogSink) Emit(pool common.Address, ev Event) {
	args, err := eventArgs(ev)
	if err == nil {
		var (
			topics []common.Hash
			data   []byte
		)
		topics, data, err = EventABI.PackEvent(ev.EventName(), args...)
		if err == nil {
			s.mu.Lock()
			s.logs = append(s.logs, Log{Address: pool, Topics: topics, Data: data})
			s.mu.Unlock()
			return
		}
	}
	s.log.Error("failed to encode event",
		zap.String("event", ev.EventName()),
		zap.Error(err),
	)
}

// Logs returns the encoded logs.
func (s *LogSink) Logs() []Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Log(nil), s.logs...)
}
