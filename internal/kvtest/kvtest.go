/*
Package kvtest provides a pure in-memory kv.Database, used throughout
Strata's test suites so that itemstore, indexmanager, maintainer, builder,
session, and schema tests exercise real transaction semantics without
opening a bbolt file. It replaces the "global in-memory registry" anti-
pattern spec.md §9 warns against: every test constructs its own handle via
New(), so test state is never shared across test functions.

The whole database is guarded by a single mutex held for the duration of
each Transact call, so it never produces a genuine ErrConflict; this matches
how a single-process, single-writer store behaves and is sufficient for
exercising the contracts above this package.
*/
package kvtest

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// Database is an in-memory kv.Database.
type Database struct {
	mu                 sync.Mutex
	data               map[string][]byte
	transactionVersion uint64
}

// New returns an empty in-memory Database.
func New() *Database {
	return &Database{data: make(map[string][]byte)}
}

// Transact implements kv.Database.
func (d *Database) Transact(ctx context.Context, fn func(ctx context.Context, tx kv.Transaction) (any, error)) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.transactionVersion++
	txn := &transaction{db: d, version: d.transactionVersion}
	result, err := fn(ctx, txn)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close implements kv.Database.
func (d *Database) Close() error { return nil }

type transaction struct {
	db          *Database
	version     uint64
	userVersion uint16
}

func (t *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, ok := t.db.data[string(key)]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *transaction) Set(ctx context.Context, key, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	t.db.data[string(key)] = cp
}

func (t *transaction) Clear(ctx context.Context, key []byte) {
	delete(t.db.data, string(key))
}

func (t *transaction) ClearRange(ctx context.Context, begin, end []byte) {
	for k := range t.db.data {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && (end == nil || bytes.Compare(kb, end) < 0) {
			delete(t.db.data, k)
		}
	}
}

func (t *transaction) GetRange(ctx context.Context, begin, end []byte) (kv.RangeIterator, error) {
	var keys []string
	for k := range t.db.data {
		kb := []byte(k)
		if bytes.Compare(kb, begin) >= 0 && (end == nil || bytes.Compare(kb, end) < 0) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	entries := make([]kv.RangeEntry, 0, len(keys))
	for _, k := range keys {
		v := t.db.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		entries = append(entries, kv.RangeEntry{Key: []byte(k), Value: cp})
	}
	return &sliceIterator{entries: entries, idx: -1}, nil
}

func (t *transaction) AtomicAdd(ctx context.Context, key []byte, delta int64) {
	current := int64(0)
	if v, ok := t.db.data[string(key)]; ok {
		current = decodeI64(v)
	}
	t.db.data[string(key)] = encodeI64(current + delta)
}

func (t *transaction) AtomicMin(ctx context.Context, key []byte, value []byte) {
	if existing, ok := t.db.data[string(key)]; ok && bytes.Compare(existing, value) <= 0 {
		return
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.db.data[string(key)] = cp
}

func (t *transaction) AtomicMax(ctx context.Context, key []byte, value []byte) {
	if existing, ok := t.db.data[string(key)]; ok && bytes.Compare(existing, value) >= 0 {
		return
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.db.data[string(key)] = cp
}

func (t *transaction) NextVersionstamp() tuple.Versionstamp {
	vs := tuple.Versionstamp{TransactionVersion: t.version, UserVersion: t.userVersion}
	t.userVersion++
	return vs
}

type sliceIterator struct {
	entries []kv.RangeEntry
	idx     int
}

func (it *sliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	it.idx++
	return it.idx < len(it.entries)
}

func (it *sliceIterator) Entry() kv.RangeEntry { return it.entries[it.idx] }
func (it *sliceIterator) Err() error           { return nil }

func encodeI64(v int64) []byte {
	var b [8]byte
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b[:]
}

func decodeI64(b []byte) int64 {
	var u uint64
	for i := 0; i < len(b) && i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
