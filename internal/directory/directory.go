/*
Package directory implements Strata's DirectoryLayer: a mapping from a
human-readable path (a sequence of strings) to a uniquely allocated short
byte prefix, as described in spec.md §4.1.

The layer itself lives in the KV Store under a reserved root subspace
(conventionally "\xfe" + "directory", kept out of the way of any path a
caller might choose) and tracks two things per path: the allocated prefix,
and a monotonic counter used to allocate the next prefix. Allocation is a
simple incrementing counter encoded as a tuple.Uint element rather than
FoundationDB's own high-contention allocator, since Strata's reference KV
backend (internal/kv/boltkv) is single-writer and never needs the
conflict-avoidance an HCA gives a truly distributed store.
*/
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

const (
	nodeSubspaceTag  = "node"
	counterSubspaceTag = "hca"
)

// Layer is a DirectoryLayer rooted at a reserved subspace of the database.
type Layer struct {
	root tuple.Subspace // reserved root the layer's own bookkeeping lives under
	node tuple.Subspace // node -> allocated prefix records
	hca  tuple.Subspace // plain incrementing allocation counter (not an HCA)
}

// New returns a DirectoryLayer rooted at root (typically a fixed,
// well-known prefix distinct from anything application paths would use).
func New(root tuple.Subspace) *Layer {
	return &Layer{
		root: root,
		node: root.Sub(nodeSubspaceTag),
		hca:  root.Sub(counterSubspaceTag),
	}
}

func pathKey(node tuple.Subspace, path []string) []byte {
	elems := make(tuple.Tuple, len(path))
	for i, p := range path {
		elems[i] = p
	}
	return node.Pack(elems)
}

func validatePath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("directory: %w: empty path", errs.ErrPathInvalid)
	}
	for _, p := range path {
		if p == "" {
			return fmt.Errorf("directory: %w: empty path component", errs.ErrPathInvalid)
		}
	}
	return nil
}

// Exists reports whether path has already been allocated a prefix.
func (l *Layer) Exists(ctx context.Context, db kv.Database, path []string) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		v, err := tx.Get(ctx, pathKey(l.node, path))
		if err != nil {
			return nil, err
		}
		return v != nil, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Open returns the prefix previously allocated to path, failing with
// ErrDirectoryNotFound if it was never created.
func (l *Layer) Open(ctx context.Context, db kv.Database, path []string) (tuple.Subspace, error) {
	if err := validatePath(path); err != nil {
		return tuple.Subspace{}, err
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		v, err := tx.Get(ctx, pathKey(l.node, path))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("directory: path %v: %w", path, errs.ErrDirectoryNotFound)
		}
		return tuple.NewSubspace(v), nil
	})
	if err != nil {
		return tuple.Subspace{}, err
	}
	return res.(tuple.Subspace), nil
}

// Create allocates a fresh prefix for path, failing with
// ErrDirectoryAlreadyExists if it was already created.
func (l *Layer) Create(ctx context.Context, db kv.Database, path []string) (tuple.Subspace, error) {
	if err := validatePath(path); err != nil {
		return tuple.Subspace{}, err
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		key := pathKey(l.node, path)
		existing, err := tx.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("directory: path %v: %w", path, errs.ErrDirectoryAlreadyExists)
		}
		prefix, err := l.allocate(ctx, tx)
		if err != nil {
			return nil, err
		}
		tx.Set(ctx, key, prefix)
		return tuple.NewSubspace(prefix), nil
	})
	if err != nil {
		return tuple.Subspace{}, err
	}
	return res.(tuple.Subspace), nil
}

// CreateOrOpen returns the existing prefix for path, allocating one if it
// does not yet exist. This is the common entry point used at process
// startup to (re-)establish an entity's or index's subspace.
func (l *Layer) CreateOrOpen(ctx context.Context, db kv.Database, path []string) (tuple.Subspace, error) {
	if err := validatePath(path); err != nil {
		return tuple.Subspace{}, err
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		key := pathKey(l.node, path)
		existing, err := tx.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return tuple.NewSubspace(existing), nil
		}
		prefix, err := l.allocate(ctx, tx)
		if err != nil {
			return nil, err
		}
		tx.Set(ctx, key, prefix)
		return tuple.NewSubspace(prefix), nil
	})
	if err != nil {
		return tuple.Subspace{}, err
	}
	return res.(tuple.Subspace), nil
}

// Move atomically relabels oldPath's allocation as newPath, leaving the
// underlying prefix (and everything stored under it) untouched.
func (l *Layer) Move(ctx context.Context, db kv.Database, oldPath, newPath []string) error {
	if err := validatePath(oldPath); err != nil {
		return err
	}
	if err := validatePath(newPath); err != nil {
		return err
	}
	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		oldKey := pathKey(l.node, oldPath)
		newKey := pathKey(l.node, newPath)
		prefix, err := tx.Get(ctx, oldKey)
		if err != nil {
			return nil, err
		}
		if prefix == nil {
			return nil, fmt.Errorf("directory: path %v: %w", oldPath, errs.ErrDirectoryNotFound)
		}
		if existing, err := tx.Get(ctx, newKey); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, fmt.Errorf("directory: path %v: %w", newPath, errs.ErrDirectoryAlreadyExists)
		}
		tx.Set(ctx, newKey, prefix)
		tx.Clear(ctx, oldKey)
		return nil, nil
	})
	return err
}

// Remove deletes path's allocation record and clears the entire key range
// under its prefix in a single range-clear.
func (l *Layer) Remove(ctx context.Context, db kv.Database, path []string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		key := pathKey(l.node, path)
		prefix, err := tx.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if prefix == nil {
			return nil, fmt.Errorf("directory: path %v: %w", path, errs.ErrDirectoryNotFound)
		}
		sub := tuple.NewSubspace(prefix)
		begin, end := sub.Range()
		tx.ClearRange(ctx, begin, end)
		tx.Clear(ctx, key)
		return nil, nil
	})
	return err
}

// allocate assigns and persists the next prefix, encoded as a fixed-width
// big-endian counter under the layer's hca subspace so allocated prefixes
// sort in allocation order and never collide.
func (l *Layer) allocate(ctx context.Context, tx kv.Transaction) ([]byte, error) {
	counterKey := l.hca.Pack(tuple.Tuple{"next"})
	raw, err := tx.Get(ctx, counterKey)
	if err != nil {
		return nil, err
	}
	var next uint64
	if raw != nil {
		t, err := tuple.Unpack(raw)
		if err != nil {
			return nil, err
		}
		next = t[0].(uint64)
	}
	tx.Set(ctx, counterKey, tuple.Pack(tuple.Tuple{next + 1}))
	return l.hca.Pack(tuple.Tuple{"p", next}), nil
}

// PathString renders a path the way error messages and logs do.
func PathString(path []string) string {
	return strings.Join(path, "/")
}
