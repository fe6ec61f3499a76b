/*
Package runtimeconfig loads an FDBConfiguration document from YAML (spec.md
§6 "Runtime configuration"), the way cmd/warren's apply command parses its
resource YAML: a plain struct decoded with gopkg.in/yaml.v3, then validated
against a schema before the container uses it.
*/
package runtimeconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/schema"
)

// Document is the on-disk YAML shape of an FDBConfiguration.
type Document struct {
	Name                string                `yaml:"name,omitempty"`
	SchemaVersion       VersionDocument       `yaml:"schemaVersion"`
	APIVersion          string                `yaml:"apiVersion,omitempty"`
	ClusterURL          string                `yaml:"clusterUrl,omitempty"`
	IndexConfigurations []IndexConfigDocument `yaml:"indexConfigurations,omitempty"`
}

// VersionDocument is the YAML shape of a schema.Version.
type VersionDocument struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
	Patch int `yaml:"patch"`
}

// IndexConfigDocument is the YAML shape of a schema.IndexConfiguration.
type IndexConfigDocument struct {
	KindIdentifier string         `yaml:"kindIdentifier"`
	IndexName      string         `yaml:"indexName"`
	ModelTypeName  string         `yaml:"modelTypeName"`
	Extra          map[string]any `yaml:"extra,omitempty"`
}

// Load reads and parses the FDBConfiguration YAML document at path.
func Load(path string) (schema.FDBConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schema.FDBConfiguration{}, fmt.Errorf("runtimeconfig: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes an FDBConfiguration YAML document from data.
func Parse(data []byte) (schema.FDBConfiguration, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.FDBConfiguration{}, fmt.Errorf("runtimeconfig: %w: %v", errs.ErrInvalidConfiguration, err)
	}
	return doc.toConfiguration(), nil
}

func (d Document) toConfiguration() schema.FDBConfiguration {
	ics := make([]schema.IndexConfiguration, 0, len(d.IndexConfigurations))
	for _, icd := range d.IndexConfigurations {
		ics = append(ics, schema.IndexConfiguration{
			KindIdentifier: index.KindIdentifier(icd.KindIdentifier),
			IndexName:      icd.IndexName,
			ModelTypeName:  icd.ModelTypeName,
			Extra:          icd.Extra,
		})
	}
	return schema.FDBConfiguration{
		Name: d.Name,
		SchemaVersion: schema.Version{
			Major: d.SchemaVersion.Major,
			Minor: d.SchemaVersion.Minor,
			Patch: d.SchemaVersion.Patch,
		},
		APIVersion:          d.APIVersion,
		ClusterURL:          d.ClusterURL,
		IndexConfigurations: ics,
	}
}

// LoadAndValidate loads path and validates the result against sch, wrapping
// schema.ValidateConfiguration (spec.md §4.8's container-construction-time
// validation rules).
func LoadAndValidate(path string, sch schema.Schema) (schema.FDBConfiguration, error) {
	cfg, err := Load(path)
	if err != nil {
		return schema.FDBConfiguration{}, err
	}
	if err := schema.ValidateConfiguration(sch, cfg); err != nil {
		return schema.FDBConfiguration{}, err
	}
	return cfg, nil
}
