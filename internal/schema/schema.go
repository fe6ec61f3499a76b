/*
Package schema implements Strata's Schema and Migration subsystem
(spec.md §4.8): immutable versioned schema bundles, entity-scoped index
lifecycle operations driven through a MigrationContext, and migration-path
resolution over a directed graph of registered migrations.
*/
package schema

import "github.com/strata-db/strata/internal/index"

// Entity is one model type's runtime metadata: its name, declared field
// list, and the set of index descriptors maintained on its behalf. A
// descriptor name is unique within a schema (spec.md §3).
type Entity struct {
	Name    string
	Fields  []string
	Indexes []index.IndexDescriptor
}

// Schema is an immutable ordered set of Entities plus a version. Entities
// are produced by the out-of-scope declarative mechanism; the runtime only
// ever consumes the resulting data (spec.md §4.8).
type Schema struct {
	Version  Version
	Entities []Entity
}

// Entity returns the named entity, if present.
func (s Schema) Entity(name string) (Entity, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// IndexDescriptor finds the descriptor named indexName across every
// entity, returning the owning entity's name alongside it.
func (s Schema) IndexDescriptor(indexName string) (index.IndexDescriptor, string, bool) {
	for _, e := range s.Entities {
		for _, d := range e.Indexes {
			if d.Name == indexName {
				return d, e.Name, true
			}
		}
	}
	return index.IndexDescriptor{}, "", false
}
