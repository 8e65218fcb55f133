// Package migrate implements C9, the SchemaMigrator: idempotent
// application of a schema manifest to a fresh or existing TypeManager,
// the operational entrypoint a deployment uses instead of calling
// typesystem's mutation API type by type (SPEC_FULL.md §2, §4.9).
package migrate

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/pthm/typecore/engine"
)

// Manifest is the declarative, YAML-authored shape of a schema: a flat
// list of types plus the edges (owns/plays/relates) and annotations
// each one carries. sigs.k8s.io/yaml decodes YAML by round-tripping it
// through JSON first, so every field here is tagged with `json`, not
// `yaml`, matching that package's convention.
type Manifest struct {
	Types []TypeSpec `json:"types"`
}

// TypeSpec describes one schema type. Kind is one of "entity",
// "relation", "attribute"; role types are never declared directly —
// they're introduced inline by a relation's Relates entries.
type TypeSpec struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Supertype string `json:"supertype,omitempty"`
	ValueType string `json:"valueType,omitempty"`
	Abstract  bool   `json:"abstract,omitempty"`
	Independent bool `json:"independent,omitempty"`

	Owns    []OwnsSpec    `json:"owns,omitempty"`
	Plays   []PlaysSpec   `json:"plays,omitempty"`
	Relates []RelatesSpec `json:"relates,omitempty"`

	IndexEnabled bool `json:"indexEnabled,omitempty"`
}

// OwnsSpec declares that the enclosing type owns attribute Attribute.
type OwnsSpec struct {
	Attribute   string           `json:"attribute"`
	Key         bool             `json:"key,omitempty"`
	Unique      bool             `json:"unique,omitempty"`
	Distinct    bool             `json:"distinct,omitempty"`
	Cardinality *CardinalitySpec `json:"cardinality,omitempty"`
}

// PlaysSpec declares that the enclosing type may play a role,
// identified as "<relation label>:<role name>".
type PlaysSpec struct {
	Role string `json:"role"`
}

// RelatesSpec declares a role on the enclosing relation type.
type RelatesSpec struct {
	RoleName    string           `json:"roleName"`
	Cardinality *CardinalitySpec `json:"cardinality,omitempty"`
}

// CardinalitySpec is the YAML-facing form of typesystem.Cardinality;
// End is a pointer so "unbounded" (absent) is distinguishable from 0.
type CardinalitySpec struct {
	Start uint64  `json:"start"`
	End   *uint64 `json:"end,omitempty"`
}

// ParseValueCategory maps a manifest's value-type name onto the
// engine's fixed ValueCategory enum (engine/schemafacts.go).
func ParseValueCategory(s string) (engine.ValueCategory, error) {
	switch s {
	case "bool", "boolean":
		return engine.ValueBool, nil
	case "long", "int", "integer":
		return engine.ValueLong, nil
	case "double", "float":
		return engine.ValueDouble, nil
	case "decimal":
		return engine.ValueDecimal, nil
	case "date":
		return engine.ValueDate, nil
	case "datetime":
		return engine.ValueDateTime, nil
	case "datetime-tz", "datetimetz":
		return engine.ValueDateTimeTZ, nil
	case "duration":
		return engine.ValueDuration, nil
	case "string":
		return engine.ValueString, nil
	case "struct":
		return engine.ValueStruct, nil
	default:
		return 0, fmt.Errorf("%w: unknown value type %q", ErrManifest, s)
	}
}

// LoadManifestFile reads and decodes a YAML schema manifest from path.
func LoadManifestFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: reading %s: %v", ErrManifest, path, err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a YAML schema manifest from raw bytes.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: decoding manifest: %v", ErrManifest, err)
	}
	return m, nil
}
