/*
Package kv defines the abstraction Strata's subsystems use to reach the
external, distributed, transactional, ordered key/value store described in
spec.md §2/§6. Everything above this package (tuple, directory, itemstore,
indexmanager, maintainer, builder, session, schema) depends only on the
Database/Transaction interfaces here, never on a concrete backend.

Two implementations are provided: internal/kv/boltkv, a single-process
reference backend over go.etcd.io/bbolt, and internal/kvtest, a pure
in-memory test double. A real deployment would point Database at an actual
distributed ordered KV store; nothing above this package would change.
*/
package kv

import (
	"context"
	"errors"

	"github.com/strata-db/strata/internal/tuple"
)

// ErrConflict is returned by a Transaction method, or discovered at commit
// time, to signal an optimistic-concurrency conflict that Transact should
// retry. Backends wrap this with backend-specific detail via fmt.Errorf's
// %w verb; callers test for it with errors.Is.
var ErrConflict = errors.New("kv: conflict, retry transaction")

// RangeEntry is one key/value pair returned by a range scan.
type RangeEntry struct {
	Key   []byte
	Value []byte
}

// RangeIterator streams RangeEntry values in key order over a right-open
// range. Implementations are not safe for concurrent use.
type RangeIterator interface {
	// Next advances to the next entry, returning false when the range is
	// exhausted or ctx is cancelled. Callers must check Err after Next
	// returns false.
	Next(ctx context.Context) bool
	Entry() RangeEntry
	Err() error
}

// Transaction is the set of operations available inside one KV Store
// transaction. All reads within a Transaction observe one snapshot; all
// writes apply atomically at commit.
type Transaction interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte)
	Clear(ctx context.Context, key []byte)
	// ClearRange clears every key in [begin, end).
	ClearRange(ctx context.Context, begin, end []byte)
	// GetRange streams every key/value pair in [begin, end) in key order.
	GetRange(ctx context.Context, begin, end []byte) (RangeIterator, error)
	// AtomicAdd adds delta to the little-endian int64 stored at key,
	// treating a missing key as zero. Commutative with other AtomicAdd
	// calls on the same key within and across transactions.
	AtomicAdd(ctx context.Context, key []byte, delta int64)
	// AtomicMin sets the value at key to the byte-wise minimum of its
	// current value (or value, if key is unset) and value.
	AtomicMin(ctx context.Context, key []byte, value []byte)
	// AtomicMax sets the value at key to the byte-wise maximum of its
	// current value (or value, if key is unset) and value.
	AtomicMax(ctx context.Context, key []byte, value []byte)
	// NextVersionstamp returns a token that is strictly greater than every
	// versionstamp returned by a transaction that committed before this
	// one, and strictly ordered relative to any other call within the same
	// transaction: the transaction-version component is fixed for the
	// lifetime of the transaction, and successive calls within it return
	// increasing values.
	NextVersionstamp() tuple.Versionstamp
}

// Database is the entry point for running transactions against the KV
// Store, mirroring spec.md §6's with_transaction(retry) wrapper.
type Database interface {
	// Transact runs fn in a fresh transaction, retrying automatically on
	// ErrConflict up to the backend's configured retry budget (spec.md §5:
	// default 5-second timeout). fn's return value is passed through on
	// success.
	Transact(ctx context.Context, fn func(ctx context.Context, tx Transaction) (any, error)) (any, error)
	// Close releases any resources (file handles, background goroutines)
	// held by the backend.
	Close() error
}
