package schema

import (
	"context"
	"fmt"

	"github.com/strata-db/strata/internal/errs"
)

// Migration transforms a MigrationContext to carry a schema from
// FromVersion to ToVersion (spec.md §3/§4.8).
type Migration struct {
	FromVersion Version
	ToVersion   Version
	Description string
	Migrate     func(ctx context.Context, mctx *MigrationContext) error
}

// Registry holds every registered Migration as edges of a directed graph
// keyed by FromVersion; spec.md §4.8 allows a general graph but expects a
// linear chain in practice.
type Registry struct {
	edges map[Version][]Migration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{edges: make(map[Version][]Migration)}
}

// Add registers m, failing with VersionsNotOrdered if its endpoints are not
// strictly increasing.
func (r *Registry) Add(m Migration) error {
	if m.ToVersion.Compare(m.FromVersion) <= 0 {
		return fmt.Errorf("schema: migration %s -> %s: %w", m.FromVersion, m.ToVersion, errs.ErrVersionsNotOrdered)
	}
	r.edges[m.FromVersion] = append(r.edges[m.FromVersion], m)
	return nil
}

// Resolve finds an ordered chain of registered migrations connecting from
// to to. A missing edge anywhere along every explored path fails with
// NoMigrationPath; to < from fails with DowngradeNotSupported before any
// search is attempted.
func (r *Registry) Resolve(from, to Version) ([]Migration, error) {
	if to.Compare(from) < 0 {
		return nil, fmt.Errorf("schema: migrate %s -> %s: %w", from, to, errs.ErrDowngradeNotSupported)
	}
	if to.Compare(from) == 0 {
		return nil, nil
	}
	path, ok := r.search(from, to, map[Version]bool{})
	if !ok {
		return nil, fmt.Errorf("schema: migrate %s -> %s: %w", from, to, errs.ErrNoMigrationPath)
	}
	return path, nil
}

func (r *Registry) search(from, to Version, visited map[Version]bool) ([]Migration, bool) {
	if visited[from] {
		return nil, false
	}
	visited[from] = true
	for _, m := range r.edges[from] {
		if m.ToVersion.Compare(to) == 0 {
			return []Migration{m}, true
		}
		if rest, ok := r.search(m.ToVersion, to, visited); ok {
			return append([]Migration{m}, rest...), true
		}
	}
	return nil, false
}
