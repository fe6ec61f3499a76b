package schema

import (
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
)

// IndexConfiguration is the abstract per-deployment tuning record spec.md
// §6 describes: {kindIdentifier, indexName, modelTypeName, extra...}. Kinds
// that support per-deployment tuning (future vector/full-text) read Extra;
// built-in kinds ignore it.
type IndexConfiguration struct {
	KindIdentifier index.KindIdentifier
	IndexName      string
	ModelTypeName  string
	Extra          map[string]any
}

// FDBConfiguration is the runtime configuration record spec.md §6
// describes: {name?, schema, api_version?, cluster_url?,
// index_configurations}.
type FDBConfiguration struct {
	Name                string
	SchemaVersion       Version
	APIVersion          string
	ClusterURL          string
	IndexConfigurations []IndexConfiguration
}

// ValidateConfiguration applies spec.md §4.8's container-construction-time
// validation rules to every IndexConfiguration entry against sch.
func ValidateConfiguration(sch Schema, cfg FDBConfiguration) error {
	for _, ic := range cfg.IndexConfigurations {
		entity, ok := sch.Entity(ic.ModelTypeName)
		if !ok {
			return fmt.Errorf("schema: configuration %s: model type %s: %w", ic.IndexName, ic.ModelTypeName, errs.ErrInvalidConfiguration)
		}
		desc, ownerEntity, found := sch.IndexDescriptor(ic.IndexName)
		if !found {
			return fmt.Errorf("schema: configuration: %w: %s", errs.ErrUnknownIndex, ic.IndexName)
		}
		if ownerEntity != entity.Name {
			return fmt.Errorf("schema: configuration %s: index belongs to entity %s, not %s: %w", ic.IndexName, ownerEntity, ic.ModelTypeName, errs.ErrInvalidConfiguration)
		}
		if desc.Kind != ic.KindIdentifier {
			return fmt.Errorf("schema: configuration %s: %w: configured %s, resolved %s", ic.IndexName, errs.ErrIndexKindMismatch, ic.KindIdentifier, desc.Kind)
		}
	}
	return nil
}
