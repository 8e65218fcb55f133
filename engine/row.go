package engine

// ThingRef identifies a concrete instance (entity, relation, or
// attribute vertex) by its type and type-prefixed vertex ID (spec §3).
type ThingRef struct {
	Type TypeID
	ID   []byte
}

// Binding is the concrete value a Row assigns to one Vertex. Exactly one
// of Thing, TypeVal, or Value is populated, matching the three variable
// categories of spec §3/§4.4.1 (thing, type, value).
type Binding struct {
	Thing   *ThingRef
	TypeVal *TypeID
	Value   Value
}

// IsThing reports whether this binding names an instance.
func (b Binding) IsThing() bool { return b.Thing != nil }

// Row is one tuple flowing through the executor pipeline: a binding of
// every variable produced so far to a concrete value.
type Row map[string]Binding

// Clone returns a shallow copy suitable for Cartesian expansion (spec
// §4.7), where a sub-iterator must not mutate the parent row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
