package itemstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/kvtest"
	"github.com/strata-db/strata/internal/tuple"
)

func newStore() (*Store, *kvtest.Database) {
	db := kvtest.New()
	return New(tuple.NewSubspace([]byte{0xfe})), db
}

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s, db := newStore()

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		s.Save(ctx, tx, "user", tuple.Tuple{"u1"}, []byte("alice"))
		return nil, nil
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.Load(ctx, tx, "user", tuple.Tuple{"u1"})
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), res)

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		s.Delete(ctx, tx, "user", tuple.Tuple{"u1"})
		return nil, nil
	})
	require.NoError(t, err)

	res, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.Load(ctx, tx, "user", tuple.Tuple{"u1"})
	})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestScanOrdersByID(t *testing.T) {
	ctx := context.Background()
	s, db := newStore()

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		s.Save(ctx, tx, "user", tuple.Tuple{"u2"}, []byte("bob"))
		s.Save(ctx, tx, "user", tuple.Tuple{"u1"}, []byte("alice"))
		s.Save(ctx, tx, "other", tuple.Tuple{"o1"}, []byte("ignored"))
		return nil, nil
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.Scan(ctx, tx, "user")
	})
	require.NoError(t, err)
	entries := res.([]Entry)
	require.Len(t, entries, 2)
	assert.Equal(t, tuple.Tuple{"u1"}, entries[0].ID)
	assert.Equal(t, []byte("alice"), entries[0].Bytes)
	assert.Equal(t, tuple.Tuple{"u2"}, entries[1].ID)
}

func TestScanFromResumesAfterID(t *testing.T) {
	ctx := context.Background()
	s, db := newStore()

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		s.Save(ctx, tx, "user", tuple.Tuple{"u1"}, []byte("a"))
		s.Save(ctx, tx, "user", tuple.Tuple{"u2"}, []byte("b"))
		s.Save(ctx, tx, "user", tuple.Tuple{"u3"}, []byte("c"))
		return nil, nil
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.ScanFrom(ctx, tx, "user", tuple.Tuple{"u1"}, 0)
	})
	require.NoError(t, err)
	entries := res.([]Entry)
	require.Len(t, entries, 2)
	assert.Equal(t, tuple.Tuple{"u2"}, entries[0].ID)
	assert.Equal(t, tuple.Tuple{"u3"}, entries[1].ID)
}

func TestClearRangeClearsOnlyOneType(t *testing.T) {
	ctx := context.Background()
	s, db := newStore()

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		s.Save(ctx, tx, "user", tuple.Tuple{"u1"}, []byte("a"))
		s.Save(ctx, tx, "order", tuple.Tuple{"o1"}, []byte("b"))
		s.Clear(ctx, tx, "user")
		return nil, nil
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		users, err := s.Scan(ctx, tx, "user")
		if err != nil {
			return nil, err
		}
		orders, err := s.Scan(ctx, tx, "order")
		if err != nil {
			return nil, err
		}
		return [2]int{len(users), len(orders)}, nil
	})
	require.NoError(t, err)
	counts := res.([2]int)
	assert.Equal(t, 0, counts[0])
	assert.Equal(t, 1, counts[1])
}
