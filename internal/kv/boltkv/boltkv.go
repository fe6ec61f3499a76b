/*
Package boltkv is Strata's reference kv.Database backend, built on
go.etcd.io/bbolt — the same embedded, ordered, transactional store the
teacher codebase (cuemby/warren) uses for its own cluster state. bbolt gives
Strata everything spec.md §6 asks of the KV Store contract except native
atomic add/min/max and versionstamps; those are emulated here (documented
below) since bbolt serializes all writers through a single read-write
transaction at a time, making the emulation linearizable even though it is
not lock-free the way a real distributed KV store's atomics are.
*/
package boltkv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

var dataBucket = []byte("strata")

var versionstampCounterKey = []byte("\xff/versionstamp_counter")

// Database wraps a single bbolt file as a kv.Database.
type Database struct {
	db     *bolt.DB
	policy kv.RetryPolicy
}

// Open opens (creating if necessary) a bbolt file at path as a kv.Database.
func Open(path string) (*Database, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltkv: create root bucket: %w", err)
	}
	return &Database{db: db, policy: kv.DefaultRetryPolicy()}, nil
}

// Close implements kv.Database.
func (d *Database) Close() error {
	return d.db.Close()
}

// Transact implements kv.Database. Each attempt runs in exactly one bbolt
// read-write transaction; bbolt commits are all-or-nothing, so there is no
// genuine serialization conflict to retry within a single process — the
// retry loop exists so the Transact contract matches a real distributed
// backend and so callers never need to special-case this backend.
func (d *Database) Transact(ctx context.Context, fn func(ctx context.Context, tx kv.Transaction) (any, error)) (any, error) {
	return kv.RunWithRetry(ctx, d.policy, func(ctx context.Context) (any, error) {
		var result any
		err := d.db.Update(func(boltTx *bolt.Tx) error {
			txn := &transaction{bucket: boltTx.Bucket(dataBucket)}
			r, err := fn(ctx, txn)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

type transaction struct {
	bucket      *bolt.Bucket
	txVersion   uint64
	haveVersion bool
	userVersion uint16
}

func (t *transaction) Get(ctx context.Context, key []byte) ([]byte, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *transaction) Set(ctx context.Context, key, value []byte) {
	_ = t.bucket.Put(key, value)
}

func (t *transaction) Clear(ctx context.Context, key []byte) {
	_ = t.bucket.Delete(key)
}

func (t *transaction) ClearRange(ctx context.Context, begin, end []byte) {
	c := t.bucket.Cursor()
	var keys [][]byte
	for k, _ := c.Seek(begin); k != nil && (end == nil || bytes.Compare(k, end) < 0); k, _ = c.Next() {
		kc := make([]byte, len(k))
		copy(kc, k)
		keys = append(keys, kc)
	}
	for _, k := range keys {
		_ = t.bucket.Delete(k)
	}
}

func (t *transaction) GetRange(ctx context.Context, begin, end []byte) (kv.RangeIterator, error) {
	c := t.bucket.Cursor()
	var entries []kv.RangeEntry
	for k, v := c.Seek(begin); k != nil && (end == nil || bytes.Compare(k, end) < 0); k, v = c.Next() {
		kc := make([]byte, len(k))
		copy(kc, k)
		vc := make([]byte, len(v))
		copy(vc, v)
		entries = append(entries, kv.RangeEntry{Key: kc, Value: vc})
	}
	return &sliceIterator{entries: entries, idx: -1}, nil
}

func (t *transaction) AtomicAdd(ctx context.Context, key []byte, delta int64) {
	current := int64(0)
	if v := t.bucket.Get(key); v != nil {
		current = decodeI64(v)
	}
	_ = t.bucket.Put(key, encodeI64(current+delta))
}

func (t *transaction) AtomicMin(ctx context.Context, key []byte, value []byte) {
	if existing := t.bucket.Get(key); existing != nil && bytes.Compare(existing, value) <= 0 {
		return
	}
	_ = t.bucket.Put(key, value)
}

func (t *transaction) AtomicMax(ctx context.Context, key []byte, value []byte) {
	if existing := t.bucket.Get(key); existing != nil && bytes.Compare(existing, value) >= 0 {
		return
	}
	_ = t.bucket.Put(key, value)
}

// NextVersionstamp emulates FoundationDB's commit-time versionstamp with a
// persisted monotonic counter: the transaction-version component advances
// once per commit (the first call within a transaction reads-increments-
// writes the counter and caches it), and the user-version component orders
// multiple versionstamps requested within that same transaction. This is
// strictly monotonic for a single boltkv.Database instance, which is
// sufficient for the "changed since" queries spec.md §4.5.5 describes, but
// is not a substitute for a real distributed store's cluster-wide
// versionstamp uniqueness.
func (t *transaction) NextVersionstamp() tuple.Versionstamp {
	if !t.haveVersion {
		current := uint64(0)
		if v := t.bucket.Get(versionstampCounterKey); v != nil {
			current = decodeU64(v)
		}
		current++
		_ = t.bucket.Put(versionstampCounterKey, encodeU64(current))
		t.txVersion = current
		t.haveVersion = true
	}
	vs := tuple.Versionstamp{TransactionVersion: t.txVersion, UserVersion: t.userVersion}
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
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func decodeI64(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
