package engine

// ValueCategory is the fixed set of attribute value-type categories from
// spec §3.
type ValueCategory int

const (
	ValueBool ValueCategory = iota
	ValueLong
	ValueDouble
	ValueDecimal
	ValueDate
	ValueDateTime
	ValueDateTimeTZ
	ValueDuration
	ValueString
	ValueStruct
)

// numericallyComparable reports whether two value categories can be compared after a
// numeric cast (spec §4.6: "Comparison coerces numerically-castable value
// types both directions").
func numericallyComparable(a, b ValueCategory) bool {
	isNum := func(c ValueCategory) bool {
		switch c {
		case ValueLong, ValueDouble, ValueDecimal:
			return true
		default:
			return false
		}
	}
	return isNum(a) && isNum(b)
}

// Comparable reports whether two value-type categories may appear on
// either side of a Comparison constraint/check (spec §4.4.1, §4.6).
func Comparable(a, b ValueCategory) bool {
	if a == b {
		return true
	}
	if numericallyComparable(a, b) {
		return true
	}
	dt := func(c ValueCategory) bool {
		return c == ValueDate || c == ValueDateTime || c == ValueDateTimeTZ
	}
	return dt(a) && dt(b)
}

// SchemaFacts is the minimal read-only schema surface the engine needs
// to propagate, prune, and check types. pkg/typesystem.TypeManager (root
// module) implements this interface; engine never imports it directly,
// keeping this module dependency-free (SPEC_FULL.md §1.1).
type SchemaFacts interface {
	// IsSubtype reports whether sub is sub (or equal to) super in the
	// rooted sub partial order (spec §3).
	IsSubtype(sub, super TypeID) bool
	// SupertypesTransitive returns the direct supertype chain of t, root
	// last.
	SupertypesTransitive(t TypeID) []TypeID
	// SubtypesTransitive returns every type in t's subtree, including t.
	SubtypesTransitive(t TypeID) []TypeID
	// Owns reports whether ownerType declares (or inherits) Owns to
	// attrType.
	Owns(ownerType, attrType TypeID) bool
	// Plays reports whether playerType declares (or inherits) Plays to
	// roleType.
	Plays(playerType, roleType TypeID) bool
	// Relates reports whether relType declares Relates to roleType.
	Relates(relType, roleType TypeID) bool
	// ValueType resolves an attribute type's value-type category,
	// walking the super-attribute chain (spec §4.2).
	ValueType(attrType TypeID) (ValueCategory, bool)
	// IsAbstract reports whether t carries the Abstract annotation.
	IsAbstract(t TypeID) bool
	// RelationIndexAvailable reports whether the all-pairs role-player
	// index is maintained for relType (spec §4.3, §9).
	RelationIndexAvailable(relType TypeID) bool
}
