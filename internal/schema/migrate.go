package schema

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/rlog"
	"github.com/strata-db/strata/internal/rmetrics"
	"github.com/strata-db/strata/internal/tuple"
)

// VersionStore persists the schema version at
// <metadata_subspace>/schema/version (spec.md §4.8 / §6).
type VersionStore struct {
	sub tuple.Subspace
}

// NewVersionStore returns a VersionStore rooted at metadataSubspace, which
// is either a fixed well-known root (single-tenant) or
// <root_subspace>/_metadata (multi-tenant), per the caller's choice.
func NewVersionStore(metadataSubspace tuple.Subspace) *VersionStore {
	return &VersionStore{sub: metadataSubspace}
}

func (vs *VersionStore) key() []byte {
	return vs.sub.Pack(tuple.Tuple{"schema", "version"})
}

// Get returns the persisted version, or false if none has ever been set.
func (vs *VersionStore) Get(ctx context.Context, db kv.Database) (Version, bool, error) {
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return tx.Get(ctx, vs.key())
	})
	if err != nil {
		return Version{}, false, err
	}
	raw, _ := res.([]byte)
	if raw == nil {
		return Version{}, false, nil
	}
	t, err := tuple.Unpack(raw)
	if err != nil {
		return Version{}, false, fmt.Errorf("schema: decode version: %w: %v", errs.ErrCodec, err)
	}
	if len(t) != 3 {
		return Version{}, false, fmt.Errorf("schema: decode version: %w: expected 3 components, got %d", errs.ErrCodec, len(t))
	}
	maj, ok1 := t[0].(int64)
	min, ok2 := t[1].(int64)
	pat, ok3 := t[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return Version{}, false, fmt.Errorf("schema: decode version: %w", errs.ErrCodec)
	}
	return Version{Major: int(maj), Minor: int(min), Patch: int(pat)}, true, nil
}

// set persists v within an already-open transaction.
func (vs *VersionStore) set(ctx context.Context, tx kv.Transaction, v Version) {
	tx.Set(ctx, vs.key(), tuple.Pack(tuple.Tuple{int64(v.Major), int64(v.Minor), int64(v.Patch)}))
}

// Migrate resolves the path from the persisted current version (or, when
// none is persisted, the lowest FromVersion in registry) to target
// through registry, runs each migration's closure over mctx in order, and
// persists target as the new schema version on success (spec.md §4.8,
// scenario 5). If expectedStages is positive, the resolved path's length
// must match it exactly or the migration fails with StageCountMismatch
// before any migration runs — a caller-supplied safety check for operators
// driving multi-hop migrations from the CLI.
func Migrate(ctx context.Context, db kv.Database, registry *Registry, versions *VersionStore, mctx *MigrationContext, target Version, expectedStages int) error {
	current, ok, err := versions.Get(ctx, db)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing persisted yet: start from the registry's earliest version.
		first := true
		for from := range registry.edges {
			if first || from.Compare(current) < 0 {
				current, first = from, false
			}
		}
	}

	path, err := registry.Resolve(current, target)
	if err != nil {
		return err
	}
	if expectedStages > 0 && len(path) != expectedStages {
		return fmt.Errorf("schema: migrate %s -> %s: expected %d stage(s), resolved %d: %w", current, target, expectedStages, len(path), errs.ErrStageCountMismatch)
	}

	for _, m := range path {
		if err := m.Migrate(ctx, mctx); err != nil {
			rmetrics.MigrationsAppliedTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("schema: migration %s -> %s (%s): %w", m.FromVersion, m.ToVersion, m.Description, err)
		}
		rmetrics.MigrationsAppliedTotal.WithLabelValues("success").Inc()
		rlog.Logger.Info().
			Str("from", m.FromVersion.String()).
			Str("to", m.ToVersion.String()).
			Str("description", m.Description).
			Msg("migration applied")
	}

	_, err = db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		versions.set(ctx, tx, target)
		return nil, nil
	})
	return err
}
