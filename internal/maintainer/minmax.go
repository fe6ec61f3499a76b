package maintainer

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// orderedValue extracts the single value-marked component of row, which
// min/max accept as numeric or any other totally-ordered scalar (spec.md
// §3: "trailing field numeric or ordered").
func orderedValue(row keyexpr.Row) (tuple.Element, error) {
	if len(row.Value) != 1 {
		return nil, errs.ErrInsufficientFields
	}
	return row.Value[0], nil
}

// MinMax is the min/max-kind maintainer (spec.md §4.5.4): one reduced entry
// per group, holding the running minimum or maximum of the trailing field.
//
// Unlike Sum, the stored encoding here is the tuple package's order-
// preserving transform (tuple.Pack of a single-element tuple), not a raw
// IEEE bit pattern: AtomicMin/AtomicMax compare encoded values byte-wise, so
// they only produce the correct numeric min/max when byte order matches
// value order, which is exactly what the order-preserving encoding
// guarantees and a raw bit pattern does not.
//
// Deletes cannot decrement a min/max atomically (spec.md §4.5.4): removing
// the current extreme value leaves the stored entry stale until
// rebuild_index re-scans the group from scratch. This maintainer does not
// attempt to detect or repair that case.
type MinMax struct {
	ix  *index.Index
	max bool
}

func (m *MinMax) apply(ctx context.Context, tx kv.Transaction, key []byte, encoded []byte) {
	if m.max {
		tx.AtomicMax(ctx, key, encoded)
	} else {
		tx.AtomicMin(ctx, key, encoded)
	}
}

func (m *MinMax) UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	// Deletes are a documented no-op per spec.md §4.5.4; only inserts and
	// updates can move the stored extreme.
	newRows, err := rowsOrEmpty(m.ix, new)
	if err != nil {
		return err
	}
	for _, r := range newRows {
		v, err := orderedValue(r)
		if err != nil {
			return fmt.Errorf("maintainer: index %s: %w", m.ix.Descriptor.Name, err)
		}
		encoded := tuple.Pack(tuple.Tuple{v})
		m.apply(ctx, tx, groupKey(m.ix.Subspace, r.Key), encoded)
	}
	return nil
}

func (m *MinMax) ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error {
	return m.UpdateIndex(ctx, tx, id, nil, item)
}

func (m *MinMax) ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error) {
	rows, err := rowsOrEmpty(m.ix, item)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(rows))
	for i, r := range rows {
		keys[i] = groupKey(m.ix.Subspace, r.Key)
	}
	return keys, nil
}
