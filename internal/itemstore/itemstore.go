/*
Package itemstore implements Strata's Item Store (spec.md §4.3): type-
independent binary CRUD over item bytes, with zero knowledge of indexes.
Everything it writes lives under a per-entity subspace at
<root>/R/<itemType>/<id...>, the letter R kept for backward compatibility
with pre-existing data exactly as spec.md directs.
*/
package itemstore

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

const recordSubspaceTag = "R"

// Store is the Item Store rooted at a subspace shared by every item type
// (spec.md §4.3's `<root>/R/...` layout); itemType further partitions it.
type Store struct {
	root tuple.Subspace
}

// New returns an Item Store rooted at root.
func New(root tuple.Subspace) *Store {
	return &Store{root: root.Sub(recordSubspaceTag)}
}

// Entry is one (id, bytes) pair produced by Scan.
type Entry struct {
	ID    tuple.Tuple
	Bytes []byte
}

func (s *Store) typeSubspace(itemType string) tuple.Subspace {
	return s.root.Sub(itemType)
}

func (s *Store) key(itemType string, id tuple.Tuple) []byte {
	return s.typeSubspace(itemType).Pack(id)
}

// Save overwrites the bytes stored at (itemType, id).
func (s *Store) Save(ctx context.Context, tx kv.Transaction, itemType string, id tuple.Tuple, data []byte) {
	tx.Set(ctx, s.key(itemType, id), data)
}

// Load returns the bytes stored at (itemType, id), or nil if absent.
func (s *Store) Load(ctx context.Context, tx kv.Transaction, itemType string, id tuple.Tuple) ([]byte, error) {
	v, err := tx.Get(ctx, s.key(itemType, id))
	if err != nil {
		return nil, fmt.Errorf("itemstore: load %s: %w", itemType, err)
	}
	return v, nil
}

// Delete clears the single key at (itemType, id).
func (s *Store) Delete(ctx context.Context, tx kv.Transaction, itemType string, id tuple.Tuple) {
	tx.Clear(ctx, s.key(itemType, id))
}

// Clear range-clears every item of itemType.
func (s *Store) Clear(ctx context.Context, tx kv.Transaction, itemType string) {
	begin, end := s.typeSubspace(itemType).Range()
	tx.ClearRange(ctx, begin, end)
}

// Scan streams every (id, bytes) pair of itemType in key order.
func (s *Store) Scan(ctx context.Context, tx kv.Transaction, itemType string) ([]Entry, error) {
	sub := s.typeSubspace(itemType)
	begin, end := sub.Range()
	it, err := tx.GetRange(ctx, begin, end)
	if err != nil {
		return nil, fmt.Errorf("itemstore: scan %s: %w", itemType, err)
	}
	var entries []Entry
	for it.Next(ctx) {
		e := it.Entry()
		id, err := sub.Unpack(e.Key)
		if err != nil {
			return nil, fmt.Errorf("itemstore: scan %s: %w: %v", itemType, errs.ErrCodec, err)
		}
		entries = append(entries, Entry{ID: id, Bytes: e.Value})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ScanFrom streams every (id, bytes) pair of itemType whose id is > after,
// used by the online builder to resume a scan from recorded progress.
func (s *Store) ScanFrom(ctx context.Context, tx kv.Transaction, itemType string, after tuple.Tuple, limit int) ([]Entry, error) {
	sub := s.typeSubspace(itemType)
	_, end := sub.Range()
	// Exclusive lower bound: appending a byte to the exact packed key of
	// after sorts strictly above it (a proper prefix always sorts lower)
	// and strictly below any id that packs to a lexicographically greater
	// key, so this resumes the scan immediately past the last-processed id.
	begin := append(sub.Pack(after), 0x00)
	it, err := tx.GetRange(ctx, begin, end)
	if err != nil {
		return nil, fmt.Errorf("itemstore: scan %s: %w", itemType, err)
	}
	var entries []Entry
	for it.Next(ctx) {
		if limit > 0 && len(entries) >= limit {
			break
		}
		e := it.Entry()
		id, err := sub.Unpack(e.Key)
		if err != nil {
			return nil, fmt.Errorf("itemstore: scan %s: %w: %v", itemType, errs.ErrCodec, err)
		}
		entries = append(entries, Entry{ID: id, Bytes: e.Value})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
