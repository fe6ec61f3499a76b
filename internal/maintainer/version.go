package maintainer

import (
	"bytes"
	"context"

	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// Version is the version-kind maintainer (spec.md §4.5.5): entries at
// <idx_subspace>/<group_tuple>/<version_token>/<id_tuple>, used for
// "changed since" queries. The version token is produced by the
// transaction's NextVersionstamp at commit time, so every row written in
// one UpdateIndex call within the same transaction shares a
// TransactionVersion component and is ordered by UserVersion.
type Version struct {
	ix *index.Index
}

func (m *Version) entryKey(tx kv.Transaction, key tuple.Tuple, id tuple.Tuple) []byte {
	full := make(tuple.Tuple, 0, len(key)+2+len(id))
	full = append(full, key...)
	full = append(full, tx.NextVersionstamp())
	full = append(full, id...)
	return m.ix.Subspace.Pack(full)
}

func (m *Version) UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	oldRows, err := rowsOrEmpty(m.ix, old)
	if err != nil {
		return err
	}
	newRows, err := rowsOrEmpty(m.ix, new)
	if err != nil {
		return err
	}

	myID := tuple.Pack(id)
	for _, r := range oldRows {
		// Find this id's prior entry within the group range (its version
		// token is unknown, so every entry in the group must be inspected
		// and matched by trailing id) and clear only that one entry; the
		// rest of the group's history belongs to other ids.
		groupSub := m.ix.Subspace.Sub(r.Key...)
		begin, end := groupSub.Range()
		it, err := tx.GetRange(ctx, begin, end)
		if err != nil {
			return err
		}
		var toClear [][]byte
		for it.Next(ctx) {
			e := it.Entry()
			rest, err := groupSub.Unpack(e.Key)
			if err != nil {
				return err
			}
			if len(rest) == 0 {
				continue
			}
			entryID := rest[1:]
			if bytes.Equal(tuple.Pack(entryID), myID) {
				toClear = append(toClear, e.Key)
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
		for _, k := range toClear {
			tx.Clear(ctx, k)
		}
	}
	for _, r := range newRows {
		tx.Set(ctx, m.entryKey(tx, r.Key, id), []byte{})
	}
	return nil
}

func (m *Version) ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error {
	return m.UpdateIndex(ctx, tx, id, nil, item)
}

func (m *Version) ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error) {
	rows, err := rowsOrEmpty(m.ix, item)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(rows))
	for _, r := range rows {
		full := make(tuple.Tuple, 0, len(r.Key)+len(id))
		full = append(full, r.Key...)
		full = append(full, id...)
		keys = append(keys, m.ix.Subspace.Pack(full))
	}
	return keys, nil
}
