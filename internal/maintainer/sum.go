package maintainer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// Sum is the sum-kind maintainer (spec.md §4.5.3): one reduced entry per
// group, holding the running sum of the trailing (value-marked) field as a
// 64-bit little-endian IEEE-754 double. Each delta is applied as a
// floating-point read-modify-write inside the caller's transaction.
type Sum struct {
	ix *index.Index
}

func numericValue(row keyexpr.Row) (float64, error) {
	if len(row.Value) != 1 {
		return 0, errs.ErrInsufficientFields
	}
	switch v := row.Value[0].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint, uint32, uint64:
		return 0, errs.ErrNonNumericValue // widen later if unsigned support is needed
	default:
		return 0, errs.ErrNonNumericValue
	}
}

// sumDelta adds delta to the little-endian double stored at key, treating
// an absent key as 0.0.
func sumDelta(ctx context.Context, tx kv.Transaction, key []byte, delta float64) error {
	raw, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	current := 0.0
	if len(raw) == 8 {
		current = math.Float64frombits(binary.LittleEndian.Uint64(raw))
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(current+delta))
	tx.Set(ctx, key, b[:])
	return nil
}

func (m *Sum) UpdateIndex(ctx context.Context, tx kv.Transaction, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	oldRows, err := rowsOrEmpty(m.ix, old)
	if err != nil {
		return err
	}
	newRows, err := rowsOrEmpty(m.ix, new)
	if err != nil {
		return err
	}

	for _, r := range oldRows {
		v, err := numericValue(r)
		if err != nil {
			return fmt.Errorf("maintainer: index %s: %w", m.ix.Descriptor.Name, err)
		}
		if err := sumDelta(ctx, tx, groupKey(m.ix.Subspace, r.Key), -v); err != nil {
			return err
		}
	}
	for _, r := range newRows {
		v, err := numericValue(r)
		if err != nil {
			return fmt.Errorf("maintainer: index %s: %w", m.ix.Descriptor.Name, err)
		}
		if err := sumDelta(ctx, tx, groupKey(m.ix.Subspace, r.Key), v); err != nil {
			return err
		}
	}
	return nil
}

func (m *Sum) ScanItem(ctx context.Context, tx kv.Transaction, id tuple.Tuple, item keyexpr.ItemAccessor) error {
	return m.UpdateIndex(ctx, tx, id, nil, item)
}

func (m *Sum) ComputeIndexKeys(id tuple.Tuple, item keyexpr.ItemAccessor) ([][]byte, error) {
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
