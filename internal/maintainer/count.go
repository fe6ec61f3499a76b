package maintainer

import (
	"context"

	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// Count is the count-kind maintainer (spec.md §4.5.2): one little-endian
// int64 entry per group at <idx_subspace>/<group_tuple>.
type Count struct {
	ix *index.Index
}

func (m *Count) groups(acc keyexpr.ItemAccessor) ([]tuple.Tuple, error) {
	rows, err := rowsOrEmpty(m.ix, acc)
	if err != nil {
		return nil, err
	}
	groups := make([]tuple.Tuple, len(rows))
	for i, r := range rows {
		groups[i] = r.Key
	}
	return groups, nil
}

func (m *Count) UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	oldGroups, err := m.groups(old)
	if err != nil {
		return err
	}
	newGroups, err := m.groups(new)
	if err != nil {
		return err
	}
	for _, g := range oldGroups {
		tx.AtomicAdd(ctx, groupKey(m.ix.Subspace, g), -1)
	}
	for _, g := range newGroups {
		tx.AtomicAdd(ctx, groupKey(m.ix.Subspace, g), +1)
	}
	return nil
}

func (m *Count) ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error {
	return m.UpdateIndex(ctx, tx, id, nil, item)
}

func (m *Count) ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error) {
	groups, err := m.groups(item)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(groups))
	for i, g := range groups {
		keys[i] = groupKey(m.ix.Subspace, g)
	}
	return keys, nil
}
