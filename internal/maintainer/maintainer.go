/*
Package maintainer implements Strata's IndexMaintainer contract (spec.md
§4.5): one concrete type per built-in IndexKind, each computing the delta
between an item's old and new state and applying it to the index's entries.

Every maintainer implements the same three operations the Index Manager and
Online Builder call: UpdateIndex (insert/delete/update, old and new given as
nil to mean absent), ScanItem (used during online build — equivalent to an
insert of an already-live item), and ComputeIndexKeys (used by tests and a
future scrubber to recompute what an item's entries should be without
applying them).
*/
package maintainer

import (
	"context"

	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// Maintainer is the common contract every index kind implements.
type Maintainer interface {
	// UpdateIndex applies the delta between old and new to the index's
	// entries for id. A nil accessor means "absent" (insert when old is
	// nil, delete when new is nil, update when both are non-nil).
	UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error
	// ScanItem applies item as if it were a fresh insert, used by the
	// online builder to populate a write-only index from existing items.
	ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error
	// ComputeIndexKeys returns the keys a maintainer of this kind would
	// derive for item, without touching the KV Store. For scalar indexes
	// these are the keys written; version-index keys omit the version
	// token, which exists only once UpdateIndex draws it from the
	// transaction. Used by tests and scrubbing tools.
	ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error)
}

// New constructs the Maintainer appropriate for ix.Kind.Identifier.
func New(ix *index.Index) Maintainer {
	switch ix.Kind.Identifier {
	case index.KindScalar:
		return &Scalar{ix: ix}
	case index.KindCount:
		return &Count{ix: ix}
	case index.KindSum:
		return &Sum{ix: ix}
	case index.KindMin:
		return &MinMax{ix: ix, max: false}
	case index.KindMax:
		return &MinMax{ix: ix, max: true}
	case index.KindVersion:
		return &Version{ix: ix}
	default:
		return nil
	}
}

// entryKey packs a row's key components followed by id into ix's subspace,
// the <idx_subspace>/<field_tuple>/<id_tuple> layout spec.md §4.5.1/§4.5.5
// use for flat-structure kinds.
func entryKey(sub tuple.Subspace, key tuple.Tuple, id tuple.Tuple) []byte {
	full := make(tuple.Tuple, 0, len(key)+len(id))
	full = append(full, key...)
	full = append(full, id...)
	return sub.Pack(full)
}

// groupKey packs a row's key components alone into ix's subspace, the
// <idx_subspace>/<group_tuple> layout aggregation kinds use.
func groupKey(sub tuple.Subspace, key tuple.Tuple) []byte {
	return sub.Pack(append(tuple.Tuple{}, key...))
}

func rowsOrEmpty(ix *index.Index, acc keyexpr.ItemAccessor) ([]keyexpr.Row, error) {
	if acc == nil {
		return nil, nil
	}
	return ix.Evaluate(acc)
}
