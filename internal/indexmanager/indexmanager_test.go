package indexmanager

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

func newManagerWithIndex(t *testing.T) (*Manager, *index.Index, *kvtest.Database) {
	t.Helper()
	ctx := context.Background()
	db := kvtest.New()
	root := tuple.NewSubspace([]byte{0xaa})
	m := New(root)

	desc := index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name"}, Kind: index.KindScalar}
	ix, err := index.New(desc, root.Sub("I", "by_name"), []string{"user"})
	require.NoError(t, err)
	require.NoError(t, m.Register(ctx, db, ix))
	return m, ix, db
}

func TestRegisterDefaultsToDisabled(t *testing.T) {
	ctx := context.Background()
	m, _, db := newManagerWithIndex(t)

	state, err := m.State(ctx, db, "by_name")
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, state)
}

func TestTransitionFollowsStateTable(t *testing.T) {
	ctx := context.Background()
	m, _, db := newManagerWithIndex(t)

	require.NoError(t, m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly))
	state, err := m.State(ctx, db, "by_name")
	require.NoError(t, err)
	assert.Equal(t, StateWriteOnly, state)

	require.NoError(t, m.Transition(ctx, db, "by_name", StateWriteOnly, StateReadable))
	state, err = m.State(ctx, db, "by_name")
	require.NoError(t, err)
	assert.Equal(t, StateReadable, state)
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	ctx := context.Background()
	m, _, db := newManagerWithIndex(t)

	err := m.Transition(ctx, db, "by_name", StateDisabled, StateReadable)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStateTransitionNotAllowed)
}

func TestTransitionRejectsStaleFromState(t *testing.T) {
	ctx := context.Background()
	m, _, db := newManagerWithIndex(t)

	require.NoError(t, m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly))
	err := m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStateTransitionNotAllowed)
}

func TestUpdateIndexSkipsDisabledIndex(t *testing.T) {
	ctx := context.Background()
	m, ix, db := newManagerWithIndex(t)

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, "user", tuple.Tuple{"u1"}, nil, mapAccessor{fields: map[string]any{"name": "alice"}})
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		begin, end := ix.Subspace.Range()
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
	assert.Equal(t, 0, res.(int))
}

func TestUpdateIndexMaintainsWriteOnlyIndex(t *testing.T) {
	ctx := context.Background()
	m, ix, db := newManagerWithIndex(t)
	require.NoError(t, m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly))

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, "user", tuple.Tuple{"u1"}, nil, mapAccessor{fields: map[string]any{"name": "alice"}})
	})
	require.NoError(t, err)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		begin, end := ix.Subspace.Range()
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

func TestRemoveClearsEntriesAndDisables(t *testing.T) {
	ctx := context.Background()
	m, ix, db := newManagerWithIndex(t)
	require.NoError(t, m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly))

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return nil, m.UpdateIndex(ctx, tx, "user", tuple.Tuple{"u1"}, nil, mapAccessor{fields: map[string]any{"name": "alice"}})
	})
	require.NoError(t, err)

	require.NoError(t, m.Remove(ctx, db, "by_name"))

	_, _, err = m.Index("by_name")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnknownIndex)

	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		begin, end := ix.Subspace.Range()
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
	assert.Equal(t, 0, res.(int))
}

func TestRegisterDescriptorDriftDetected(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	root := tuple.NewSubspace([]byte{0xbb})
	m := New(root)

	desc := index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name"}, Kind: index.KindScalar}
	ix, err := index.New(desc, root.Sub("I", "by_name"), []string{"user"})
	require.NoError(t, err)
	require.NoError(t, m.Register(ctx, db, ix))
	require.NoError(t, m.Transition(ctx, db, "by_name", StateDisabled, StateWriteOnly))

	drifted := index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name", "email"}, Kind: index.KindScalar}
	drfitedIx, err := index.New(drifted, root.Sub("I", "by_name"), []string{"user"})
	require.NoError(t, err)

	err = m.Register(ctx, db, drfitedIx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDescriptorMismatch)
}

func TestRegisterSameDescriptorTwiceSucceeds(t *testing.T) {
	ctx := context.Background()
	m, ix, db := newManagerWithIndex(t)

	require.NoError(t, m.Register(ctx, db, ix))
}
