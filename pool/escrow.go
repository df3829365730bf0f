// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"encoding/binary"
	"errors"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/sengulatik66/catalyst/codec"
)

// Store is the key/value store holding escrow records. Any
// database.Database satisfies it.
type Store interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// EscrowKind distinguishes escrowed assets from escrowed pool shares.
type EscrowKind uint8

const (
	EscrowAsset EscrowKind = iota
	EscrowLiquidity
)

func (k EscrowKind) String() string {
	if k == EscrowLiquidity {
		return "liquidity"
	}
	return "asset"
}

// EscrowRecord is a pending outbound leg.
type EscrowRecord struct {
	Kind EscrowKind
	// Asset is the escrowed asset index; unused for liquidity escrows.
	Asset uint8
	// Amount is the escrowed token amount, or the escrowed share count.
	Amount *uint256.Int
	// Units carried by the outbound message.
	Units    *uint256.Int
	Fallback common.Address
}

// Storage key prefixes
var (
	escrowPrefix      = []byte("escr")
	correlationPrefix = []byte("corr")
)

// makeStorageKey creates a storage key from prefix and identifiers
func makeStorageKey(prefix []byte, ids ...[]byte) []byte {
	h := blake3.New()
	h.Write(prefix)
	for _, id := range ids {
		h.Write(id)
	}
	key := make([]byte, 32)
	h.Digest().Read(key)
	return key
}

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// escrowLedger maps correlation ids to escrow records. Writes made during
// an operation are journaled so a failed operation can undo them.
type escrowLedger struct {
	store   Store
	pool    common.Address
	journal []journalEntry
}

func newEscrowLedger(store Store, pool common.Address) *escrowLedger {
	return &escrowLedger{store: store, pool: pool}
}

func (l *escrowLedger) key(id common.Hash) []byte {
	return makeStorageKey(escrowPrefix, l.pool.Bytes(), id.Bytes())
}

func (l *escrowLedger) begin() {
	l.journal = l.journal[:0]
}

func (l *escrowLedger) commit() {
	l.journal = l.journal[:0]
}

// revert undoes journaled writes in reverse order.
func (l *escrowLedger) revert() error {
	var errs []error
	for i := len(l.journal) - 1; i >= 0; i-- {
		e := l.journal[i]
		if e.existed {
			errs = append(errs, l.store.Put(e.key, e.prev))
		} else {
			errs = append(errs, l.store.Delete(e.key))
		}
	}
	l.journal = l.journal[:0]
	return errors.Join(errs...)
}

func (l *escrowLedger) record(key []byte) error {
	prev, err := l.store.Get(key)
	switch {
	case err == nil:
		l.journal = append(l.journal, journalEntry{key: key, prev: prev, existed: true})
	case errors.Is(err, database.ErrNotFound):
		l.journal = append(l.journal, journalEntry{key: key})
	default:
		return err
	}
	return nil
}

// lock stores a record under id. An id may only hold one record.
func (l *escrowLedger) lock(id common.Hash, rec *EscrowRecord) error {
	key := l.key(id)
	exists, err := l.store.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return errorsmod.Wrapf(ErrDuplicateEscrow, "correlation id %s", id.Hex())
	}
	value, err := codec.EncodeEscrow(&codec.Escrow{
		Kind:     uint8(rec.Kind),
		Asset:    rec.Asset,
		Fallback: rec.Fallback,
		Amount:   rec.Amount,
		Units:    rec.Units,
	})
	if err != nil {
		return err
	}
	if err := l.record(key); err != nil {
		return err
	}
	return l.store.Put(key, value)
}

// get returns the record under id.
func (l *escrowLedger) get(id common.Hash) (*EscrowRecord, error) {
	value, err := l.store.Get(l.key(id))
	if errors.Is(err, database.ErrNotFound) {
		return nil, errorsmod.Wrapf(ErrUnknownEscrow, "correlation id %s", id.Hex())
	}
	if err != nil {
		return nil, err
	}
	e, err := codec.DecodeEscrow(value)
	if err != nil {
		return nil, err
	}
	return &EscrowRecord{
		Kind:     EscrowKind(e.Kind),
		Asset:    e.Asset,
		Amount:   e.Amount,
		Units:    e.Units,
		Fallback: e.Fallback,
	}, nil
}

// release removes and returns the record under id. Resolving an id twice
// fails with ErrUnknownEscrow.
func (l *escrowLedger) release(id common.Hash) (*EscrowRecord, error) {
	rec, err := l.get(id)
	if err != nil {
		return nil, err
	}
	key := l.key(id)
	if err := l.record(key); err != nil {
		return nil, err
	}
	if err := l.store.Delete(key); err != nil {
		return nil, err
	}
	return rec, nil
}

// correlationID derives the id of an outbound message from the caller's
// intent and the send time. Repeating an intent within one timestamp
// collides.
func correlationID(chainID uint64, pool common.Address, fields ...[]byte) common.Hash {
	return common.BytesToHash(makeStorageKey(correlationPrefix, append([][]byte{u64(chainID), pool.Bytes()}, fields...)...))
}

func u64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func u256(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}
