package runtimeconfig

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/schema"
)

// MigrationStepDocument is one declarative step of a migration: add, remove,
// or rebuild a single index on a single entity. This covers every migration
// a deployment can express without a compiled-in Go closure; a program that
// needs bespoke logic registers its own schema.Migration directly instead.
type MigrationStepDocument struct {
	Op        string                  `yaml:"op"`
	Entity    string                  `yaml:"entity"`
	Index     IndexDescriptorDocument `yaml:"index,omitempty"`
	IndexName string                  `yaml:"indexName,omitempty"`
	ItemType  string                  `yaml:"itemType,omitempty"`
}

// MigrationDocument is the YAML shape of one schema.Migration.
type MigrationDocument struct {
	From        VersionDocument         `yaml:"from"`
	To          VersionDocument         `yaml:"to"`
	Description string                  `yaml:"description,omitempty"`
	Steps       []MigrationStepDocument `yaml:"steps"`
}

// RegistryDocument is the YAML shape of a schema.Registry: an unordered
// list of migrations resolved into a directed graph at load time.
type RegistryDocument struct {
	Migrations []MigrationDocument `yaml:"migrations"`
}

// LoadRegistry reads and parses the migration registry YAML document at
// path into a schema.Registry.
func LoadRegistry(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a schema.Registry YAML document from data.
func ParseRegistry(data []byte) (*schema.Registry, error) {
	var doc RegistryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("runtimeconfig: %w: %v", errs.ErrInvalidConfiguration, err)
	}

	registry := schema.NewRegistry()
	for _, md := range doc.Migrations {
		m := schema.Migration{
			FromVersion: schema.Version{Major: md.From.Major, Minor: md.From.Minor, Patch: md.From.Patch},
			ToVersion:   schema.Version{Major: md.To.Major, Minor: md.To.Minor, Patch: md.To.Patch},
			Description: md.Description,
			Migrate:     stepsMigrateFunc(md.Steps),
		}
		if err := registry.Add(m); err != nil {
			return nil, fmt.Errorf("runtimeconfig: migration %s -> %s: %w", m.FromVersion, m.ToVersion, err)
		}
	}
	return registry, nil
}

func stepsMigrateFunc(steps []MigrationStepDocument) func(context.Context, *schema.MigrationContext) error {
	return func(ctx context.Context, mctx *schema.MigrationContext) error {
		for _, step := range steps {
			switch step.Op {
			case "add_index":
				desc := index.IndexDescriptor{
					Name:     step.Index.Name,
					KeyPaths: step.Index.KeyPaths,
					Kind:     index.KindIdentifier(step.Index.Kind),
					Options:  index.CommonOptions{Unique: step.Index.Unique},
				}
				ix, _, err := mctx.IndexForEntity(step.Entity, desc)
				if err != nil {
					return err
				}
				if err := mctx.AddIndex(ctx, step.Entity, ix); err != nil {
					return err
				}
			case "remove_index":
				if err := mctx.RemoveIndex(ctx, step.Entity, step.IndexName); err != nil {
					return err
				}
			case "rebuild_index":
				if err := mctx.RebuildIndex(ctx, step.Entity, step.IndexName, step.ItemType); err != nil {
					return err
				}
			default:
				return fmt.Errorf("runtimeconfig: %w: unknown migration step op %q", errs.ErrInvalidConfiguration, step.Op)
			}
		}
		return nil
	}
}
