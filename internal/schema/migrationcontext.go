package schema

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/builder"
	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/indexmanager"
	"github.com/strata-db/strata/internal/itemstore"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/tuple"
)

// EntityRuntime is one entity's live store, index registry, and builder, as
// constructed by the container and handed to migrations (spec.md §4.9).
// Data is the subspace new index subspaces are allocated under (entities
// sharing one container share the same Data subspace).
type EntityRuntime struct {
	Items   *itemstore.Store
	Manager *indexmanager.Manager
	Builder *builder.Builder
	Data    tuple.Subspace
}

// MigrationContext is the entity-scoped surface a Migration's closure
// operates on: add_index, remove_index, rebuild_index (spec.md §4.8).
type MigrationContext struct {
	db       kv.Database
	entities map[string]EntityRuntime
}

// NewMigrationContext returns a MigrationContext over entities, keyed by
// entity name.
func NewMigrationContext(db kv.Database, entities map[string]EntityRuntime) *MigrationContext {
	return &MigrationContext{db: db, entities: entities}
}

func (c *MigrationContext) entity(name string) (EntityRuntime, error) {
	e, ok := c.entities[name]
	if !ok {
		return EntityRuntime{}, fmt.Errorf("schema: migration: unknown entity %s: %w", name, errs.ErrInvalidConfiguration)
	}
	return e, nil
}

// IndexForEntity builds an *index.Index for desc rooted under entityName's
// Data subspace, for callers (YAML-driven migrations, stratactl) that only
// have a descriptor and an entity name on hand rather than a pre-built
// *index.Index.
func (c *MigrationContext) IndexForEntity(entityName string, desc index.IndexDescriptor) (*index.Index, EntityRuntime, error) {
	e, err := c.entity(entityName)
	if err != nil {
		return nil, EntityRuntime{}, err
	}
	ix, err := index.New(desc, e.Data.Sub("I", desc.Name), []string{entityName})
	if err != nil {
		return nil, EntityRuntime{}, err
	}
	return ix, e, nil
}

// AddIndex registers ix on entityName's store and sets its state to
// writeOnly. It does not mark the index readable: an empty readable index
// would produce false negatives until a separate online build runs
// (spec.md §4.8).
func (c *MigrationContext) AddIndex(ctx context.Context, entityName string, ix *index.Index) error {
	e, err := c.entity(entityName)
	if err != nil {
		return err
	}
	if err := e.Manager.Register(ctx, c.db, ix); err != nil {
		return err
	}
	state, err := e.Manager.State(ctx, c.db, ix.Descriptor.Name)
	if err != nil {
		return err
	}
	if state != indexmanager.StateDisabled {
		return nil
	}
	return e.Manager.Transition(ctx, c.db, ix.Descriptor.Name, indexmanager.StateDisabled, indexmanager.StateWriteOnly)
}

// RemoveIndex range-clears indexName's subspace, sets its state to
// disabled, and drops it from registration (spec.md §4.8).
func (c *MigrationContext) RemoveIndex(ctx context.Context, entityName, indexName string) error {
	e, err := c.entity(entityName)
	if err != nil {
		return err
	}
	return e.Manager.Remove(ctx, c.db, indexName)
}

// RebuildIndex transitions readable -> writeOnly if applicable, clears
// prior entries, then drives the Online Builder to repopulate indexName
// from every live item of itemType (spec.md §4.8).
func (c *MigrationContext) RebuildIndex(ctx context.Context, entityName, indexName, itemType string) error {
	e, err := c.entity(entityName)
	if err != nil {
		return err
	}
	state, err := e.Manager.State(ctx, c.db, indexName)
	if err != nil {
		return err
	}
	if state == indexmanager.StateReadable {
		if err := e.Manager.Transition(ctx, c.db, indexName, indexmanager.StateReadable, indexmanager.StateWriteOnly); err != nil {
			return err
		}
	}

	ix, _, err := e.Manager.Index(indexName)
	if err != nil {
		return err
	}
	if _, err := c.db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		begin, end := ix.Subspace.Range()
		tx.ClearRange(ctx, begin, end)
		return nil, nil
	}); err != nil {
		return err
	}

	return e.Builder.Build(ctx, c.db, indexName, itemType, nil)
}
