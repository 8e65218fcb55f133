package migrate

import (
	"context"
	"fmt"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/typesystem"
)

// Result summarizes what Apply did, so a CLI caller (cmd/typecore
// migrate) can report it without re-deriving it from
// the manifest.
type Result struct {
	Created []engine.TypeID
	Skipped []engine.TypeID
}

// Apply loads every type in manifest into schema, skipping types whose
// label is already declared (idempotent, matching the teacher's
// "safe to run on every application startup" migrator contract) and
// then wiring owns/plays/relates edges and annotations. SetOwns replaces
// an existing edge; roles and Plays edges that are already declared are
// left as they are, so a repeated Apply adds nothing.
//
// Roles are never declared as their own TypeSpec entries; a relation's
// RelatesSpec entries mint them, and a PlaysSpec elsewhere in the
// manifest resolves to them by "<relation label>:<role name>".
func Apply(ctx context.Context, rw engine.ReadWriteSnapshot, schema *typesystem.TypeManager, manifest Manifest) (*Result, error) {
	res := &Result{}
	roles := make(map[string]engine.TypeID)

	for _, spec := range manifest.Types {
		id, existed, err := createBaseType(ctx, rw, schema, spec)
		if err != nil {
			return nil, fmt.Errorf("migrate: type %q: %w", spec.Label, err)
		}
		if existed {
			res.Skipped = append(res.Skipped, id)
		} else {
			res.Created = append(res.Created, id)
		}
	}

	// Relates must run before Owns/Plays so role TypeIDs exist for
	// cross-type Plays references, and before Owns/annotations since
	// those only touch already-declared types.
	for _, spec := range manifest.Types {
		if spec.Kind != "relation" {
			continue
		}
		id := engine.TypeID{Kind: engine.KindRelation, Label: spec.Label}
		for _, rel := range spec.Relates {
			roleID := engine.TypeID{Kind: engine.KindRole, Label: spec.Label + ":" + rel.RoleName}
			if _, exists := schema.GetType(roleID); !exists {
				var err error
				roleID, err = schema.SetRelates(ctx, rw, id, rel.RoleName, annotationsForRelates(rel))
				if err != nil {
					return nil, fmt.Errorf("migrate: %s relates %s: %w", spec.Label, rel.RoleName, err)
				}
			}
			roles[spec.Label+":"+rel.RoleName] = roleID
		}
		if spec.IndexEnabled {
			if err := schema.SetRelationIndexEnabled(ctx, rw, id, true); err != nil {
				return nil, fmt.Errorf("migrate: %s index: %w", spec.Label, err)
			}
		}
	}

	for _, spec := range manifest.Types {
		id := idFor(spec)
		for _, owns := range spec.Owns {
			attrID := engine.TypeID{Kind: engine.KindAttribute, Label: owns.Attribute}
			if err := schema.SetOwns(ctx, rw, id, attrID, annotationsForOwns(owns)); err != nil {
				return nil, fmt.Errorf("migrate: %s owns %s: %w", spec.Label, owns.Attribute, err)
			}
		}
		for _, plays := range spec.Plays {
			roleID, ok := roles[plays.Role]
			if !ok {
				return nil, fmt.Errorf("%w: %s plays undeclared role %q", ErrUnresolved, spec.Label, plays.Role)
			}
			declared := false
			if def, ok := schema.GetType(id); ok {
				for _, e := range def.Plays {
					declared = declared || e.RoleType == roleID
				}
			}
			if declared {
				continue
			}
			if err := schema.SetPlays(ctx, rw, id, roleID, nil); err != nil {
				return nil, fmt.Errorf("migrate: %s plays %s: %w", spec.Label, plays.Role, err)
			}
		}
	}

	return res, nil
}

func idFor(spec TypeSpec) engine.TypeID {
	switch spec.Kind {
	case "entity":
		return engine.TypeID{Kind: engine.KindEntity, Label: spec.Label}
	case "relation":
		return engine.TypeID{Kind: engine.KindRelation, Label: spec.Label}
	case "attribute":
		return engine.TypeID{Kind: engine.KindAttribute, Label: spec.Label}
	default:
		return engine.TypeID{}
	}
}

func createBaseType(ctx context.Context, rw engine.ReadWriteSnapshot, schema *typesystem.TypeManager, spec TypeSpec) (engine.TypeID, bool, error) {
	id := idFor(spec)
	if id.Label == "" {
		return id, false, fmt.Errorf("%w: unknown kind %q", ErrManifest, spec.Kind)
	}
	if _, ok := schema.GetType(id); ok {
		return id, true, nil
	}

	def := typesystem.TypeDef{ID: id, Label: spec.Label}
	if spec.Supertype != "" {
		super := engine.TypeID{Kind: id.Kind, Label: spec.Supertype}
		def.Supertype = &super
	}
	if spec.Kind == "attribute" {
		cat, err := ParseValueCategory(spec.ValueType)
		if err != nil {
			return id, false, err
		}
		def.ValueType = &cat
	}

	var annotations []typesystem.Annotation
	if spec.Abstract {
		annotations = append(annotations, typesystem.Annotation{Category: typesystem.AnnotationAbstract})
	}
	if spec.Independent {
		annotations = append(annotations, typesystem.Annotation{Category: typesystem.AnnotationIndependent})
	}
	def.IndexEnabled = spec.IndexEnabled

	if err := schema.CreateType(ctx, rw, def); err != nil {
		return id, false, err
	}
	if def.Supertype != nil {
		if err := schema.SetSupertype(ctx, rw, id, *def.Supertype); err != nil {
			return id, false, err
		}
	}
	for _, a := range annotations {
		if err := schema.SetAnnotation(ctx, rw, id, a); err != nil {
			return id, false, err
		}
	}
	return id, false, nil
}

func annotationsForOwns(spec OwnsSpec) []typesystem.Annotation {
	var out []typesystem.Annotation
	if spec.Key {
		card := spec.Cardinality
		if card == nil {
			one := uint64(1)
			card = &CardinalitySpec{Start: 1, End: &one}
		}
		out = append(out, typesystem.Annotation{Category: typesystem.AnnotationKey, Cardinality: cardinalityOf(card)})
	}
	if spec.Unique {
		out = append(out, typesystem.Annotation{Category: typesystem.AnnotationUnique})
	}
	if spec.Distinct {
		out = append(out, typesystem.Annotation{Category: typesystem.AnnotationDistinct})
	}
	if !spec.Key && spec.Cardinality != nil {
		out = append(out, typesystem.Annotation{Category: typesystem.AnnotationCardinality, Cardinality: cardinalityOf(spec.Cardinality)})
	}
	return out
}

func annotationsForRelates(spec RelatesSpec) []typesystem.Annotation {
	if spec.Cardinality == nil {
		return nil
	}
	return []typesystem.Annotation{{Category: typesystem.AnnotationCardinality, Cardinality: cardinalityOf(spec.Cardinality)}}
}

func cardinalityOf(spec *CardinalitySpec) typesystem.Cardinality {
	if spec == nil {
		return typesystem.Cardinality{}
	}
	return typesystem.Cardinality{Start: spec.Start, End: spec.End}
}
