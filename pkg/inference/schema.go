package inference

import "github.com/pthm/typecore/engine"

// Schema is the read surface the seeding algorithm needs: everything in
// engine.SchemaFacts (shared with the checker and executor) plus the
// catalog-style lookups unary constraints require to resolve an
// unbounded vertex to its starting candidate set. pkg/typesystem.TypeManager
// implements this; pkg/concept's ThingManager has no reason to.
type Schema interface {
	engine.SchemaFacts

	// GetKindTypes returns every declared type of the given kind, used
	// to seed a vertex bounded only by `Kind(k)`.
	GetKindTypes(kind engine.Kind) []engine.TypeID
	// GetTypeIDByLabel resolves a fixed schema label to its TypeID, used
	// to seed label vertices (spec §4.4.2 annotate_fixed_vertices).
	GetTypeIDByLabel(kind engine.Kind, label string) (engine.TypeID, bool)
	// GetRolesByName enumerates every role type sharing a short name,
	// resolving `RoleName(n)`.
	GetRolesByName(name string) []engine.TypeID
	// AttributeTypesWithValueType enumerates attribute types declaring
	// the given value category, resolving unary `Value(vt)`.
	AttributeTypesWithValueType(cat engine.ValueCategory) []engine.TypeID
}
