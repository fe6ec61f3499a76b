package maintainer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/kvtest"
	"github.com/strata-db/strata/internal/tuple"
)

type mapAccessor struct {
	fields map[string]any
}

func (a mapAccessor) Field(name string) (any, error) {
	v, ok := a.fields[name]
	if !ok {
		return nil, errs.ErrFieldNotFound
	}
	return v, nil
}

func (a mapAccessor) Elements(name string) ([]any, error) {
	return nil, errs.ErrFieldNotFound
}

func newIndex(t *testing.T, desc index.IndexDescriptor) *index.Index {
	t.Helper()
	ix, err := index.New(desc, tuple.NewSubspace([]byte{0xfd}), []string{"user"})
	require.NoError(t, err)
	return ix
}

func TestScalarMaintainerInsertUpdateDelete(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name"}, Kind: index.KindScalar})
	m := New(ix)

	id := tuple.Tuple{"u1"}
	alice := mapAccessor{fields: map[string]any{"name": "alice"}}
	bob := mapAccessor{fields: map[string]any{"name": "bob"}}

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, id, nil, alice)
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		keys, err := m.ComputeIndexKeys(id, alice)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			v, err := tx.Get(ctx, k)
			if err != nil {
				return nil, err
			}
			assert.NotNil(t, v)
		}
		return nil, nil
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, id, alice, bob)
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		oldKeys, _ := m.ComputeIndexKeys(id, alice)
		for _, k := range oldKeys {
			v, err := tx.Get(ctx, k)
			require.NoError(t, err)
			assert.Nil(t, v)
		}
		newKeys, _ := m.ComputeIndexKeys(id, bob)
		for _, k := range newKeys {
			v, err := tx.Get(ctx, k)
			require.NoError(t, err)
			assert.NotNil(t, v)
		}
		return nil, nil
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, id, bob, nil)
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		keys, _ := m.ComputeIndexKeys(id, bob)
		for _, k := range keys {
			v, err := tx.Get(ctx, k)
			require.NoError(t, err)
			assert.Nil(t, v)
		}
		return nil, nil
	})
	require.NoError(t, err)
}

func TestScalarMaintainerUniquenessViolation(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{
		Name: "by_email", KeyPaths: []string{"email"}, Kind: index.KindScalar,
		Options: index.CommonOptions{Unique: true},
	})
	m := New(ix)

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"u1"}, nil, mapAccessor{fields: map[string]any{"email": "a@x.com"}})
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"u2"}, nil, mapAccessor{fields: map[string]any{"email": "a@x.com"}})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUniquenessViolation)
}

func TestCountMaintainer(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{Name: "by_role", KeyPaths: []string{"role"}, Kind: index.KindCount})
	m := New(ix)

	admin := mapAccessor{fields: map[string]any{"role": "admin"}}

	for i := 0; i < 3; i++ {
		id := tuple.Tuple{int64(i)}
		_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
			return nil, m.UpdateIndex(ctx, tx, id, nil, admin)
		})
		require.NoError(t, err)
	}

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		keys, _ := m.ComputeIndexKeys(nil, admin)
		return tx.Get(ctx, keys[0])
	})
	require.NoError(t, err)
	v := res.([]byte)
	require.Len(t, v, 8)
	count := int64(0)
	for i := 0; i < 8; i++ {
		count |= int64(v[i]) << (8 * i)
	}
	assert.Equal(t, int64(3), count)
}

func TestSumMaintainer(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{Name: "total", KeyPaths: []string{"owner", "amount"}, Kind: index.KindSum})
	m := New(ix)

	a := mapAccessor{fields: map[string]any{"owner": "team-a", "amount": 10.0}}
	b := mapAccessor{fields: map[string]any{"owner": "team-a", "amount": 5.0}}

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"o1"}, nil, a)
	})
	require.NoError(t, err)
	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"o2"}, nil, b)
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		keys, err := m.ComputeIndexKeys(tuple.Tuple{"o1"}, a)
		if err != nil {
			return nil, err
		}
		return tx.Get(ctx, keys[0])
	})
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestMinMaxMaintainer(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{Name: "lowest", KeyPaths: []string{"owner", "price"}, Kind: index.KindMin})
	m := New(ix)

	high := mapAccessor{fields: map[string]any{"owner": "team-a", "price": 100.0}}
	low := mapAccessor{fields: map[string]any{"owner": "team-a", "price": 10.0}}

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"p1"}, nil, high)
	})
	require.NoError(t, err)
	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, tuple.Tuple{"p2"}, nil, low)
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		keys, err := m.ComputeIndexKeys(tuple.Tuple{"p1"}, high)
		if err != nil {
			return nil, err
		}
		v, err := tx.Get(ctx, keys[0])
		if err != nil {
			return nil, err
		}
		return tuple.Unpack(v)
	})
	require.NoError(t, err)
	got := res.(tuple.Tuple)
	assert.Equal(t, 10.0, got[0])
}

func TestVersionMaintainerReplacesEntryOnSameGroupUpdate(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	ix := newIndex(t, index.IndexDescriptor{Name: "changed", KeyPaths: []string{"owner"}, Kind: index.KindVersion})
	m := New(ix)

	id := tuple.Tuple{"u1"}
	acc := mapAccessor{fields: map[string]any{"owner": "team-a"}}

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, id, nil, acc)
	})
	require.NoError(t, err)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, id, acc, acc)
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		sub := ix.Subspace.Sub("team-a")
		begin, end := sub.Range()
		it, err := tx.GetRange(ctx, begin, end)
		if err != nil {
			return nil, err
		}
		count := 0
		for it.Next(ctx) {
			count++
		}
		return count, it.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.(int))
}
