/*
Package container is Strata's composition root (spec.md §4.9 / Glossary's
"Container — process-wide owner of schema, directory layer cache, and
index registry"): the thing a process constructs once from an
FDBConfiguration, the way cmd/warren's manager.NewManager builds one
long-lived Manager wrapping every subsystem a node needs.

A single itemstore.Store and indexmanager.Manager serve every entity in the
schema: both are itemType-discriminated internally (a Store partitions its
subspace by itemType; a Manager dispatches to an index only for the
itemTypes its descriptor covers), so one pair of instances rooted at the
container's subspace is sufficient — there is no per-entity subspace to
keep isolated beyond what itemType already provides.
*/
package container

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/builder"
	"github.com/strata-db/strata/internal/directory"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/indexmanager"
	"github.com/strata-db/strata/internal/itemstore"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/kv/boltkv"
	"github.com/strata-db/strata/internal/rlog"
	"github.com/strata-db/strata/internal/schema"
	"github.com/strata-db/strata/internal/session"
	"github.com/strata-db/strata/internal/tuple"
)

// Config holds the parameters needed to construct a Container.
type Config struct {
	// DataPath is the bbolt file backing the Database.
	DataPath string
	// RootSubspace isolates one tenant's data from another's; nil means
	// the single-tenant default root.
	RootSubspace []byte
	// MultiTenant selects <root_subspace>/_metadata for the schema
	// version location instead of the fixed well-known root (spec.md
	// §4.8).
	MultiTenant bool
	// Schema is the Schema this container serves.
	Schema schema.Schema
	// Decode turns an entity's stored bytes into a KeyExpression
	// accessor; itemType-specific and supplied by the caller.
	Decode session.ItemDecoder
}

// Container owns the Database, DirectoryLayer, the shared Item Store and
// Index Manager serving every entity, and the schema's persisted version.
type Container struct {
	db        kv.Database
	directory *directory.Layer
	root      tuple.Subspace
	data      tuple.Subspace
	schema    schema.Schema
	decode    session.ItemDecoder

	items   *itemstore.Store
	manager *indexmanager.Manager
	builder *builder.Builder

	runtime  schema.EntityRuntime
	versions *schema.VersionStore
}

// New opens the Database at cfg.DataPath, builds the DirectoryLayer, and
// registers every entity's index descriptors against the shared Index
// Manager in their declared state.
func New(ctx context.Context, cfg Config) (*Container, error) {
	db, err := boltkv.Open(cfg.DataPath)
	if err != nil {
		return nil, fmt.Errorf("container: open database: %w", err)
	}

	root := tuple.NewSubspace(cfg.RootSubspace)
	dir := directory.New(root.Sub("\xfe", "directory"))

	metaSub := root.Sub("_meta")
	if cfg.MultiTenant {
		metaSub = root.Sub("_metadata")
	}

	dataSub, err := dir.CreateOrOpen(ctx, db, []string{"data"})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("container: open data subspace: %w", err)
	}

	items := itemstore.New(dataSub)
	manager := indexmanager.New(dataSub)
	b := builder.New(manager, items, builder.ItemDecoder(cfg.Decode))
	runtime := schema.EntityRuntime{Items: items, Manager: manager, Builder: b, Data: dataSub}

	c := &Container{
		db:        db,
		directory: dir,
		root:      root,
		data:      dataSub,
		schema:    cfg.Schema,
		decode:    cfg.Decode,
		items:     items,
		manager:   manager,
		builder:   b,
		runtime:   runtime,
		versions:  schema.NewVersionStore(metaSub),
	}

	for _, entity := range cfg.Schema.Entities {
		for _, desc := range entity.Indexes {
			ix, err := index.New(desc, dataSub.Sub("I", desc.Name), []string{entity.Name})
			if err != nil {
				return nil, fmt.Errorf("container: entity %s: index %s: %w", entity.Name, desc.Name, err)
			}
			if err := manager.Register(ctx, db, ix); err != nil {
				return nil, fmt.Errorf("container: entity %s: index %s: %w", entity.Name, desc.Name, err)
			}
			// A freshly declared schema index (first run, nothing registered
			// before) starts disabled; promote it straight to readable since
			// there is no existing data to build against. An index added
			// later by a migration instead goes through MigrationContext's
			// disabled -> writeOnly -> online build -> readable path.
			state, err := manager.State(ctx, db, desc.Name)
			if err != nil {
				return nil, fmt.Errorf("container: entity %s: index %s: %w", entity.Name, desc.Name, err)
			}
			if state == indexmanager.StateDisabled {
				if err := manager.Transition(ctx, db, desc.Name, indexmanager.StateDisabled, indexmanager.StateWriteOnly); err != nil {
					return nil, fmt.Errorf("container: entity %s: index %s: %w", entity.Name, desc.Name, err)
				}
				if err := manager.Transition(ctx, db, desc.Name, indexmanager.StateWriteOnly, indexmanager.StateReadable); err != nil {
					return nil, fmt.Errorf("container: entity %s: index %s: %w", entity.Name, desc.Name, err)
				}
			}
		}
		rlog.WithItemType(entity.Name).Info().Msg("entity registered")
	}

	return c, nil
}

// Close releases the underlying Database handle.
func (c *Container) Close() error {
	return c.db.Close()
}

// NewSession returns a fresh change-tracking Session sharing this
// container's Item Store and Index Manager.
func (c *Container) NewSession() *session.Session {
	return session.New(c.db, c.items, c.manager, c.decode)
}

// Entities returns every entity's runtime (all sharing the same Item Store
// and Index Manager), keyed by name, for constructing a
// schema.MigrationContext.
func (c *Container) Entities() map[string]schema.EntityRuntime {
	out := make(map[string]schema.EntityRuntime, len(c.schema.Entities))
	for _, e := range c.schema.Entities {
		out[e.Name] = c.runtime
	}
	return out
}

// Migrate resolves and applies the migration path from the persisted
// schema version to target, then persists target as current (spec.md
// §4.8).
func (c *Container) Migrate(ctx context.Context, registry *schema.Registry, target schema.Version, expectedStages int) error {
	mctx := schema.NewMigrationContext(c.db, c.Entities())
	return schema.Migrate(ctx, c.db, registry, c.versions, mctx, target, expectedStages)
}

// SchemaVersion returns the persisted schema version, or the zero Version
// if none has ever been set.
func (c *Container) SchemaVersion(ctx context.Context) (schema.Version, error) {
	v, _, err := c.versions.Get(ctx, c.db)
	return v, err
}

// IndexState returns the persisted state of the named index.
func (c *Container) IndexState(ctx context.Context, indexName string) (indexmanager.State, error) {
	return c.manager.State(ctx, c.db, indexName)
}
