package builder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/indexmanager"
	"github.com/strata-db/strata/internal/itemstore"
	"github.com/strata-db/strata/internal/keyexpr"
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

func decodeFakeItem(itemType string, data []byte) (keyexpr.ItemAccessor, error) {
	return mapAccessor{fields: map[string]any{"name": string(data)}}, nil
}

func TestBuildPromotesIndexToReadable(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	root := tuple.NewSubspace([]byte{0xcc})

	items := itemstore.New(root)
	manager := indexmanager.New(root)

	desc := index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name"}, Kind: index.KindScalar}
	ix, err := index.New(desc, root.Sub("I", "by_name"), []string{"user"})
	require.NoError(t, err)
	require.NoError(t, manager.Register(ctx, db, ix))

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		for i := 0; i < 12; i++ {
			items.Save(ctx, tx, "user", tuple.Tuple{fmt.Sprintf("u%02d", i)}, []byte(fmt.Sprintf("name-%d", i)))
		}
		return nil, nil
	})
	require.NoError(t, err)

	b := New(manager, items, decodeFakeItem).WithBatchBounds(5, DefaultBatchBytes)
	require.NoError(t, b.Build(ctx, db, "by_name", "user", nil))

	state, err := manager.State(ctx, db, "by_name")
	require.NoError(t, err)
	assert.Equal(t, indexmanager.StateReadable, state)

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
	assert.Equal(t, 12, res.(int))
}

func TestBuildFlipsDisabledToWriteOnlyFirst(t *testing.T) {
	ctx := context.Background()
	db := kvtest.New()
	root := tuple.NewSubspace([]byte{0xdd})

	items := itemstore.New(root)
	manager := indexmanager.New(root)

	desc := index.IndexDescriptor{Name: "by_name", KeyPaths: []string{"name"}, Kind: index.KindScalar}
	ix, err := index.New(desc, root.Sub("I", "by_name"), []string{"user"})
	require.NoError(t, err)
	require.NoError(t, manager.Register(ctx, db, ix))

	state, err := manager.State(ctx, db, "by_name")
	require.NoError(t, err)
	require.Equal(t, indexmanager.StateDisabled, state)

	b := New(manager, items, decodeFakeItem)
	require.NoError(t, b.Build(ctx, db, "by_name", "user", nil))

	state, err = manager.State(ctx, db, "by_name")
	require.NoError(t, err)
	assert.Equal(t, indexmanager.StateReadable, state)
}
