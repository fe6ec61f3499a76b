package runtimeconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/schema"
)

// SchemaDocument is the on-disk YAML shape of a schema.Schema, for
// stratactl commands that operate against a declared schema without a
// compiled-in Go program declaring one.
type SchemaDocument struct {
	Version  VersionDocument  `yaml:"version"`
	Entities []EntityDocument `yaml:"entities"`
}

// EntityDocument is the YAML shape of a schema.Entity.
type EntityDocument struct {
	Name    string                    `yaml:"name"`
	Fields  []string                  `yaml:"fields,omitempty"`
	Indexes []IndexDescriptorDocument `yaml:"indexes,omitempty"`
}

// IndexDescriptorDocument is the YAML shape of an index.IndexDescriptor.
type IndexDescriptorDocument struct {
	Name     string   `yaml:"name"`
	KeyPaths []string `yaml:"keyPaths"`
	Kind     string   `yaml:"kind"`
	Unique   bool     `yaml:"unique,omitempty"`
}

// LoadSchema reads and parses the schema YAML document at path.
func LoadSchema(path string) (schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.Schema{}, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes a schema.Schema YAML document from data.
func ParseSchema(data []byte) (schema.Schema, error) {
	var doc SchemaDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.Schema{}, fmt.Errorf("runtimeconfig: %w: %v", errs.ErrInvalidConfiguration, err)
	}

	entities := make([]schema.Entity, 0, len(doc.Entities))
	for _, ed := range doc.Entities {
		indexes := make([]index.IndexDescriptor, 0, len(ed.Indexes))
		for _, id := range ed.Indexes {
			indexes = append(indexes, index.IndexDescriptor{
				Name:     id.Name,
				KeyPaths: id.KeyPaths,
				Kind:     index.KindIdentifier(id.Kind),
				Options:  index.CommonOptions{Unique: id.Unique},
			})
		}
		entities = append(entities, schema.Entity{Name: ed.Name, Fields: ed.Fields, Indexes: indexes})
	}

	return schema.Schema{
		Version: schema.Version{
			Major: doc.Version.Major,
			Minor: doc.Version.Minor,
			Patch: doc.Version.Patch,
		},
		Entities: entities,
	}, nil
}
