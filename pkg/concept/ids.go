// Package concept implements C3, the ThingManager: instance CRUD, the
// Has/Links edge writers, the role-player index, attribute value
// encoding and deduplication, and two-phase transaction finalization
// (spec §4.3). It sits over an engine.ReadWriteSnapshot the same way
// pkg/typesystem does, and implements engine.ThingFacts so the checker
// and executor can read instance facts without importing this package.
package concept

import (
	"github.com/google/uuid"

	"github.com/pthm/typecore/engine"
)

// newVertexID mints a fresh instance identifier for an entity or
// relation. Attribute identifiers are derived from their value instead
// (see vertexID in value.go) so equal values collapse to one
// vertex (spec §3: "an attribute value is either inline ... or hashed").
func newVertexID() []byte {
	id := uuid.New()
	b := make([]byte, len(id))
	copy(b, id[:])
	return b
}

// newRef builds a ThingRef for a freshly minted entity/relation vertex.
func newRef(t engine.TypeID) engine.ThingRef {
	return engine.ThingRef{Type: t, ID: newVertexID()}
}
