package maintainer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/rmetrics"
	"github.com/strata-db/strata/internal/tuple"
)

// Scalar is the scalar-kind maintainer (spec.md §4.5.1): one empty-valued
// entry per row at <idx_subspace>/<field_tuple>/<id_tuple>.
type Scalar struct {
	ix *index.Index
}

func (m *Scalar) rowKeys(id tuple.Tuple, acc keyexpr.ItemAccessor) (map[string]keyexpr.Row, error) {
	rows, err := rowsOrEmpty(m.ix, acc)
	if err != nil {
		return nil, err
	}
	out := make(map[string]keyexpr.Row, len(rows))
	for _, r := range rows {
		out[string(entryKey(m.ix.Subspace, r.Key, id))] = r
	}
	return out, nil
}

func (m *Scalar) UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	oldKeys, err := m.rowKeys(id, old)
	if err != nil {
		return err
	}
	newKeys, err := m.rowKeys(id, new)
	if err != nil {
		return err
	}

	for k, row := range newKeys {
		if _, ok := oldKeys[k]; ok {
			continue
		}
		if err := m.checkUnique(ctx, tx, row, id); err != nil {
			return err
		}
		tx.Set(ctx, []byte(k), []byte{})
	}
	for k := range oldKeys {
		if _, ok := newKeys[k]; ok {
			continue
		}
		tx.Clear(ctx, []byte(k))
	}
	return nil
}

func (m *Scalar) ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error {
	return m.UpdateIndex(ctx, tx, id, nil, item)
}

func (m *Scalar) ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error) {
	rows, err := rowsOrEmpty(m.ix, item)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, entryKey(m.ix.Subspace, r.Key, id))
	}
	return keys, nil
}

// checkUnique enforces the unique option: if the index is unique and any
// entry already exists under this row's group prefix with a different id,
// fail without writing (spec.md §4.5.1).
func (m *Scalar) checkUnique(ctx context.Context, tx kv.Transaction, row keyexpr.Row, id tuple.Tuple) error {
	if !m.ix.Descriptor.Options.Unique {
		return nil
	}
	groupSub := m.ix.Subspace.Sub(row.Key...)
	begin, end := groupSub.Range()
	it, err := tx.GetRange(ctx, begin, end)
	if err != nil {
		return err
	}
	myID := tuple.Pack(id)
	for it.Next(ctx) {
		entryID, err := groupSub.Unpack(it.Entry().Key)
		if err != nil {
			return err
		}
		if !bytes.Equal(tuple.Pack(entryID), myID) {
			rmetrics.IndexUniquenessViolationsTotal.WithLabelValues(m.ix.Descriptor.Name).Inc()
			return fmt.Errorf("maintainer: index %s: %w", m.ix.Descriptor.Name, errs.ErrUniquenessViolation)
		}
	}
	return it.Err()
}
