package typesystem

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/pthm/typecore/engine"
)

// TypeManager is the C2 schema cache and mutation surface (spec §4.2).
// A TypeManager is bound to one snapshot's sequence number; on schema
// commit a transaction obtains a fresh TypeManager rather than mutating
// a shared one in place (spec §5: "Schema caches are reference-counted
// immutable snapshots per transaction").
type TypeManager struct {
	snapshot engine.Snapshot

	mu    sync.RWMutex
	types map[TypeID]*TypeDef

	validator *SchemaValidator
}

// Load rebuilds a TypeManager's cache from every schema record visible
// in snapshot. Root types (conventionally "entity", "relation",
// "attribute", "role" with no declared supertype) are expected to
// already be present from an earlier bootstrap; Load does not create
// them.
func Load(ctx context.Context, snapshot engine.Snapshot) (*TypeManager, error) {
	mgr := &TypeManager{snapshot: snapshot, types: make(map[TypeID]*TypeDef)}
	mgr.validator = newSchemaValidator(mgr)

	it, err := snapshot.IterateRange(ctx, schemaKeyRange(prefixType))
	if err != nil {
		return nil, fmt.Errorf("typesystem: loading type definitions: %w", err)
	}
	defer it.Close()
	for it.Next(ctx) {
		def, err := decodeTypeDef(it.Item().Value)
		if err != nil {
			return nil, fmt.Errorf("typesystem: decoding type definition: %w", err)
		}
		mgr.types[def.ID] = def
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("typesystem: loading type definitions: %w", err)
	}
	return mgr, nil
}

func init() {
	gob.Register(TypeDef{})
}

func decodeTypeDef(v engine.Value) (*TypeDef, error) {
	var def TypeDef
	if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func encodeTypeDef(def *TypeDef) (engine.Value, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(*def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- Read surface (spec §4.2) -------------------------------------------

// GetType looks up a type by its full ID.
func (m *TypeManager) GetType(id TypeID) (*TypeDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[id]
	return t, ok
}

// GetTypeByLabel looks up a type by kind and label.
func (m *TypeManager) GetTypeByLabel(kind Kind, label string) (*TypeDef, bool) {
	return m.GetType(TypeID{Kind: kind, Label: label})
}

// GetTypeIDByLabel is GetTypeByLabel narrowed to just the ID, for
// callers (pkg/inference) that don't need the full definition.
func (m *TypeManager) GetTypeIDByLabel(kind Kind, label string) (TypeID, bool) {
	id := TypeID{Kind: kind, Label: label}
	_, ok := m.GetType(id)
	return id, ok
}

// GetKindTypes returns every declared type of the given kind.
func (m *TypeManager) GetKindTypes(kind Kind) []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TypeID
	for id := range m.types {
		if id.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// AttributeTypesWithValueType returns every attribute type whose own
// declared (non-inherited) value type is cat, resolving the unary
// `Value(vt)` constraint of spec §4.4.1.
func (m *TypeManager) AttributeTypesWithValueType(cat ValueCategory) []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TypeID
	for id, def := range m.types {
		if id.Kind == KindAttribute && def.ValueType != nil && *def.ValueType == cat {
			out = append(out, id)
		}
	}
	return out
}

// GetRolesByName returns every role type across the schema whose short
// RoleName matches name, resolving the `RoleName(n)` unary constraint of
// spec §4.4.1.
func (m *TypeManager) GetRolesByName(name string) []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TypeID
	for id, def := range m.types {
		if id.Kind == KindRole && def.RoleName == name {
			out = append(out, id)
		}
	}
	return out
}

// IsIndependent reports whether t carries the Independent annotation
// (spec §3: an independent attribute instance survives losing its last
// owner).
func (m *TypeManager) IsIndependent(t TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.types[t]
	return ok && def.hasAnnotation(AnnotationIndependent)
}

// ValueTypeWithoutSource resolves attrType's own declared value type,
// without walking the supertype chain, returning false if it has none
// (i.e. it is abstract-only, spec §3).
func (m *TypeManager) ValueTypeWithoutSource(attrType TypeID) (ValueCategory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.types[attrType]
	if !ok || def.ValueType == nil {
		return 0, false
	}
	return *def.ValueType, true
}

// IsSubtype implements engine.SchemaFacts.
func (m *TypeManager) IsSubtype(sub, super TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t := sub; ; {
		if t == super {
			return true
		}
		def, ok := m.types[t]
		if !ok || def.Supertype == nil {
			return false
		}
		t = *def.Supertype
	}
}

// SupertypesTransitive implements engine.SchemaFacts: the direct
// supertype chain of t, root last.
func (m *TypeManager) SupertypesTransitive(t TypeID) []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TypeID
	for def, ok := m.types[t], true; ok; {
		if def == nil || def.Supertype == nil {
			break
		}
		out = append(out, *def.Supertype)
		def, ok = m.types[*def.Supertype]
	}
	return out
}

// SubtypesTransitive implements engine.SchemaFacts via a BFS over the
// direct-subtype adjacency, the same traversal shape the teacher's
// closure.go uses for implied-by closures.
func (m *TypeManager) SubtypesTransitive(t TypeID) []TypeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	children := make(map[TypeID][]TypeID, len(m.types))
	for id, def := range m.types {
		if def.Supertype != nil {
			children[*def.Supertype] = append(children[*def.Supertype], id)
		}
	}

	result := []TypeID{t}
	queue := []TypeID{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			result = append(result, child)
			queue = append(queue, child)
		}
	}
	return result
}

// Owns implements engine.SchemaFacts, walking the supertype chain so an
// inherited Owns edge is visible on a subtype.
func (m *TypeManager) Owns(ownerType, attrType TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t := ownerType; ; {
		def, ok := m.types[t]
		if !ok {
			return false
		}
		for _, e := range def.Owns {
			if e.AttrType == attrType {
				return true
			}
		}
		if def.Supertype == nil {
			return false
		}
		t = *def.Supertype
	}
}

// Plays implements engine.SchemaFacts.
func (m *TypeManager) Plays(playerType, roleType TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t := playerType; ; {
		def, ok := m.types[t]
		if !ok {
			return false
		}
		for _, e := range def.Plays {
			if e.RoleType == roleType {
				return true
			}
		}
		if def.Supertype == nil {
			return false
		}
		t = *def.Supertype
	}
}

// Relates implements engine.SchemaFacts. Relates is not inherited the
// way Owns/Plays are: a relation type declares its own roles (spec §3).
func (m *TypeManager) Relates(relType, roleType TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.types[relType]
	if !ok {
		return false
	}
	for _, e := range def.Relates {
		if e.RoleType == roleType {
			return true
		}
	}
	return false
}

// ValueType implements engine.SchemaFacts, walking the super-attribute
// chain and returning the first declared value type (spec §4.2).
func (m *TypeManager) ValueType(attrType TypeID) (ValueCategory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t := attrType; ; {
		def, ok := m.types[t]
		if !ok {
			return 0, false
		}
		if def.ValueType != nil {
			return *def.ValueType, true
		}
		if def.Supertype == nil {
			return 0, false
		}
		t = *def.Supertype
	}
}

// IsAbstract implements engine.SchemaFacts.
func (m *TypeManager) IsAbstract(t TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.types[t]
	return ok && def.IsAbstract()
}

// OwnsEdgeFor finds the (possibly inherited) Owns edge from ownerType to
// attrType, returning the edge's own annotations and the type that
// declared it — callers needing cardinality/key validation (pkg/concept)
// walk this instead of the schema graph directly.
func (m *TypeManager) OwnsEdgeFor(ownerType, attrType TypeID) (edge OwnsEdge, declaredOn TypeID, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t := ownerType; ; {
		def, found := m.types[t]
		if !found {
			return OwnsEdge{}, TypeID{}, false
		}
		for _, e := range def.Owns {
			if e.AttrType == attrType {
				return e, t, true
			}
		}
		if def.Supertype == nil {
			return OwnsEdge{}, TypeID{}, false
		}
		t = *def.Supertype
	}
}

// OwnsEdgesForOwner returns every Owns edge visible on ownerType,
// including inherited ones, alongside the type that declared each —
// used by finalize-time cardinality validation (pkg/concept), which
// must check every declared edge (even one with zero matching
// instances) rather than only the attribute types an owner happens to
// have instances of.
func (m *TypeManager) OwnsEdgesForOwner(ownerType TypeID) []OwnedEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OwnedEdge
	seen := make(map[TypeID]bool)
	for t, ok := ownerType, true; ok; {
		def, found := m.types[t]
		if !found {
			break
		}
		for _, e := range def.Owns {
			if seen[e.AttrType] {
				continue
			}
			seen[e.AttrType] = true
			out = append(out, OwnedEdge{Edge: e, DeclaredOn: t})
		}
		if def.Supertype == nil {
			break
		}
		t, ok = *def.Supertype, true
	}
	return out
}

// RelatesEdgeFor finds the Relates edge from relType to roleType (not
// inherited, spec §3).
func (m *TypeManager) RelatesEdgeFor(relType, roleType TypeID) (edge RelatesEdge, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, found := m.types[relType]
	if !found {
		return RelatesEdge{}, false
	}
	for _, e := range def.Relates {
		if e.RoleType == roleType {
			return e, true
		}
	}
	return RelatesEdge{}, false
}

// RelationIndexAvailable implements engine.SchemaFacts (spec §9:
// "optional optimisation controlled by a per-relation-type flag").
func (m *TypeManager) RelationIndexAvailable(relType TypeID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.types[relType]
	return ok && def.IndexEnabled
}

// --- Mutations (spec §4.2: each delegates to SchemaValidator first) ----

// CreateType registers a new type. The caller supplies a fully-formed
// TypeDef (without Supertype, Owns, Plays, Relates — those are set via
// the dedicated mutation methods so each passes through validation
// individually).
func (m *TypeManager) CreateType(ctx context.Context, rw engine.ReadWriteSnapshot, def TypeDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validator.ValidateLabel(def.ID); err != nil {
		return err
	}
	stored := def
	m.types[def.ID] = &stored

	enc, err := encodeTypeDef(&stored)
	if err != nil {
		return fmt.Errorf("typesystem: encoding type definition: %w", err)
	}
	if err := rw.Put(ctx, typeDefKey(def.ID), enc); err != nil {
		return fmt.Errorf("typesystem: writing type definition: %w", err)
	}
	idBytes, _ := encodeTypeID(def.ID)
	if err := rw.Put(ctx, labelKey(def.ID.Kind, def.Label), idBytes); err != nil {
		return fmt.Errorf("typesystem: writing label index: %w", err)
	}
	return nil
}

func encodeTypeID(id TypeID) (engine.Value, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(id); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetSupertype validates and applies child sub parent.
func (m *TypeManager) SetSupertype(ctx context.Context, rw engine.ReadWriteSnapshot, child, parent TypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validator.ValidateSetSupertype(child, parent); err != nil {
		return err
	}
	m.types[child].Supertype = &parent
	m.types[parent].Subtypes = append(m.types[parent].Subtypes, child)

	enc, err := encodeTypeID(parent)
	if err != nil {
		return fmt.Errorf("typesystem: encoding supertype: %w", err)
	}
	if err := rw.Put(ctx, subKey(child), enc); err != nil {
		return fmt.Errorf("typesystem: writing sub edge: %w", err)
	}
	return m.persistType(ctx, rw, child)
}

// SetOwns validates and adds (or replaces) an Owns edge with the given
// annotations.
func (m *TypeManager) SetOwns(ctx context.Context, rw engine.ReadWriteSnapshot, owner, attr TypeID, annotations []Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ownerDef, ok := m.types[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, owner)
	}
	for _, a := range annotations {
		if err := m.validator.ValidateAnnotation(nil, a); err != nil {
			return err
		}
	}

	replaced := false
	for i, e := range ownerDef.Owns {
		if e.AttrType == attr {
			ownerDef.Owns[i].Annotations = annotations
			replaced = true
			break
		}
	}
	if !replaced {
		ownerDef.Owns = append(ownerDef.Owns, OwnsEdge{AttrType: attr, Annotations: annotations})
	}

	enc, err := encodeAnnotations(annotations)
	if err != nil {
		return fmt.Errorf("typesystem: encoding owns annotations: %w", err)
	}
	if err := rw.Put(ctx, ownsKey(owner, attr), enc); err != nil {
		return fmt.Errorf("typesystem: writing owns edge: %w", err)
	}
	return m.persistType(ctx, rw, owner)
}

// SetPlays adds a Plays edge. It runs no SchemaValidator check and
// appends the edge even if the player already declares it.
func (m *TypeManager) SetPlays(ctx context.Context, rw engine.ReadWriteSnapshot, player, role TypeID, annotations []Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	playerDef, ok := m.types[player]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, player)
	}
	playerDef.Plays = append(playerDef.Plays, PlaysEdge{RoleType: role, Annotations: annotations})

	enc, err := encodeAnnotations(annotations)
	if err != nil {
		return fmt.Errorf("typesystem: encoding plays annotations: %w", err)
	}
	if err := rw.Put(ctx, playsKey(player, role), enc); err != nil {
		return fmt.Errorf("typesystem: writing plays edge: %w", err)
	}
	return m.persistType(ctx, rw, player)
}

// SetRelates validates and adds a Relates edge, creating the Role type
// if it does not already exist.
func (m *TypeManager) SetRelates(ctx context.Context, rw engine.ReadWriteSnapshot, relation TypeID, roleName string, annotations []Annotation) (TypeID, error) {
	m.mu.Lock()

	role := TypeID{Kind: KindRole, Label: relation.Label + ":" + roleName}
	if err := m.validator.ValidateLabel(role); err != nil {
		m.mu.Unlock()
		return TypeID{}, err
	}
	if err := m.validator.ValidateRoleName(roleName, relation); err != nil {
		m.mu.Unlock()
		return TypeID{}, err
	}
	m.types[role] = &TypeDef{ID: role, Label: role.Label, RoleName: roleName, RelatingType: relation}

	relDef, ok := m.types[relation]
	if !ok {
		m.mu.Unlock()
		delete(m.types, role)
		return TypeID{}, fmt.Errorf("%w: %s", ErrTypeNotFound, relation)
	}
	relDef.Relates = append(relDef.Relates, RelatesEdge{RoleType: role, Annotations: annotations})
	m.mu.Unlock()

	enc, err := encodeAnnotations(annotations)
	if err != nil {
		return TypeID{}, fmt.Errorf("typesystem: encoding relates annotations: %w", err)
	}
	if err := rw.Put(ctx, relatesKey(relation, role), enc); err != nil {
		return TypeID{}, fmt.Errorf("typesystem: writing relates edge: %w", err)
	}
	if err := m.persistType(ctx, rw, role); err != nil {
		return TypeID{}, err
	}
	if err := m.persistType(ctx, rw, relation); err != nil {
		return TypeID{}, err
	}
	return role, nil
}

// SetAnnotation validates and appends an annotation to a type's own
// declaration list (as opposed to an edge's, handled by SetOwns et al).
func (m *TypeManager) SetAnnotation(ctx context.Context, rw engine.ReadWriteSnapshot, id TypeID, a Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	def, ok := m.types[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, id)
	}
	if err := m.validator.ValidateAnnotation(def.Annotations, a); err != nil {
		return err
	}
	def.Annotations = append(def.Annotations, a)
	return m.persistType(ctx, rw, id)
}

// SetRelationIndexEnabled toggles the optional all-pairs role-player
// index maintenance flag for relType (spec §4.3, §9).
func (m *TypeManager) SetRelationIndexEnabled(ctx context.Context, rw engine.ReadWriteSnapshot, relType TypeID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.types[relType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTypeNotFound, relType)
	}
	def.IndexEnabled = enabled
	return m.persistType(ctx, rw, relType)
}

func (m *TypeManager) persistType(ctx context.Context, rw engine.ReadWriteSnapshot, id TypeID) error {
	enc, err := encodeTypeDef(m.types[id])
	if err != nil {
		return fmt.Errorf("typesystem: encoding type definition: %w", err)
	}
	if err := rw.Put(ctx, typeDefKey(id), enc); err != nil {
		return fmt.Errorf("typesystem: writing type definition: %w", err)
	}
	return nil
}

func encodeAnnotations(a []Annotation) (engine.Value, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
