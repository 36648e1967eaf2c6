// Package state is the ledger's persistent key-value namespace.
//
// Every entry carries a live_until ledger sequence. The ledger extends
// lifetimes with ExtendTTL; only the host reclaims expired entries, through
// Backend.Sweep or a backend's native expiry. Reads never filter on
// live_until, so an expired entry stays readable until it is reclaimed.
// Keys that start with PinnedPrefix are never reclaimed.
//
// All reads and writes of one ledger operation happen inside one Txn. A Txn
// either commits every write or none of them.
package state

import (
	"context"
	"errors"
)

// PinnedPrefix is the leading key byte of entries that outlive their
// live_until. Sweep and native expiry skip them.
const PinnedPrefix byte = 0x00

// Pinned reports whether key is exempt from reclamation.
func Pinned(key []byte) bool {
	return len(key) > 0 && key[0] == PinnedPrefix
}

// DefaultMinLiveLedgers is the lifetime given to a newly created entry
// before any ExtendTTL call.
const DefaultMinLiveLedgers uint32 = 4096

var (
	// ErrEntryNotFound is returned by ExtendTTL for a key with no entry.
	ErrEntryNotFound = errors.New("state: entry not found")

	// ErrTxnFinished is returned when a committed or discarded Txn is used.
	ErrTxnFinished = errors.New("state: transaction already finished")
)

// Txn is one atomic unit of work against the namespace, pinned to the
// ledger sequence it was begun at.
type Txn interface {
	// Ledger is the ledger sequence this transaction executes in.
	Ledger() uint32

	// Get returns the value stored at key. ok is false if no entry exists.
	Get(key []byte) (value []byte, ok bool, err error)

	// Set stores value at key. A new entry lives for the backend's minimum
	// lifetime; an existing entry keeps its live_until.
	Set(key, value []byte) error

	// ExtendTTL applies the extend rule to the entry at key:
	// if live_until - ledger < threshold then live_until = ledger + extendTo.
	ExtendTTL(key []byte, threshold, extendTo uint32) error

	// LiveUntil returns the entry's live_until ledger sequence.
	LiveUntil(key []byte) (uint32, bool, error)

	// Commit makes every write visible. The Txn is finished afterwards.
	Commit() error

	// Discard drops every write. Safe to call after Commit.
	Discard()
}

// Backend opens transactions and reclaims expired entries.
type Backend interface {
	// Begin opens a transaction executing at ledger sequence ledger.
	Begin(ctx context.Context, ledger uint32) (Txn, error)

	// Sweep deletes every unpinned entry whose live_until is below ledger
	// and returns how many were removed.
	Sweep(ctx context.Context, ledger uint32) (int, error)

	Close() error
}

// Entry is a stored value with its lifetime.
type Entry struct {
	Value     []byte
	LiveUntil uint32
}

// Extend applies the extend rule at ledger and returns the new live_until.
// Lifetimes never shrink.
func Extend(liveUntil, ledger, threshold, extendTo uint32) uint32 {
	var remaining uint32
	if liveUntil > ledger {
		remaining = liveUntil - ledger
	}
	if remaining >= threshold {
		return liveUntil
	}
	target := uint64(ledger) + uint64(extendTo)
	if target > uint64(^uint32(0)) {
		target = uint64(^uint32(0))
	}
	if uint32(target) < liveUntil {
		return liveUntil
	}
	return uint32(target)
}

// InitialLiveUntil is the live_until of an entry created at ledger.
func InitialLiveUntil(ledger, minLive uint32) uint32 {
	return Extend(0, ledger, minLive, minLive)
}
