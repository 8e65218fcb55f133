package executor

import (
	"context"
	"fmt"

	"github.com/pthm/typecore/engine"
	"github.com/pthm/typecore/pkg/concept"
	"github.com/pthm/typecore/pkg/inference"
	"github.com/pthm/typecore/pkg/pattern"
)

// Planner compiles one seeded inference.Graph into a flat
// []engine.ExecutionStep, in the conjunction's authored constraint
// order (spec §4.7; ordering/optimization is explicitly out of scope,
// SPEC_FULL.md Non-goals). Isa/Has/Links constraints become
// IntersectionSteps that bind a new variable from whichever side is
// already bound, or a CheckStep when both sides are bound. Comparison
// and Is constraints become CheckSteps. Sub/Owns/Plays/Relates and the
// unary constraints emit no step.
type Planner struct {
	Things  *concept.ThingManager
	Schema  engine.SchemaFacts
	Checker *engine.Checker
}

// NewPlanner builds a Planner over things/schema, constructing its own
// engine.Checker the way pkg/concept.ThingManager implements
// engine.ThingFacts for it.
func NewPlanner(things *concept.ThingManager, schema engine.SchemaFacts) *Planner {
	return &Planner{Things: things, Schema: schema, Checker: engine.NewChecker(schema, things)}
}

// Compile returns an error immediately if g carries a pruning failure
// from seeding (spec §8 scenario 2: DetectedUnsatisfiableEdge).
func (p *Planner) Compile(g *inference.Graph) ([]engine.ExecutionStep, error) {
	if g.Unsatisfiable != nil {
		return nil, g.Unsatisfiable
	}

	bound := make(map[string]bool)
	var steps []engine.ExecutionStep

	for _, c := range g.Conjunction.Constraints {
		switch c.Kind {
		case pattern.ConstraintIsa:
			step, err := p.isaStep(g, c, bound)
			if err != nil {
				return nil, err
			}
			steps = append(steps, step)

		case pattern.ConstraintHas:
			next, err := p.hasSteps(g, c, bound)
			if err != nil {
				return nil, err
			}
			steps = append(steps, next...)

		case pattern.ConstraintLinks:
			next, err := p.linksSteps(g, c, bound)
			if err != nil {
				return nil, err
			}
			steps = append(steps, next...)

		case pattern.ConstraintComparison:
			steps = append(steps, CheckStep{
				Checker:      p.Checker,
				Instructions: []engine.CheckInstruction{p.comparisonCheck(c)},
			})

		case pattern.ConstraintIs:
			steps = append(steps, CheckStep{
				Checker:      p.Checker,
				Instructions: []engine.CheckInstruction{engine.IsCheck{Left: string(c.Left), Right: string(c.Right)}},
			})

		case pattern.ConstraintSub, pattern.ConstraintOwns, pattern.ConstraintPlays, pattern.ConstraintRelates,
			pattern.ConstraintKindOf, pattern.ConstraintLabel, pattern.ConstraintRoleName, pattern.ConstraintValue:
			// Schema-shape constraints are resolved entirely by type
			// inference (pkg/inference); there is no instance-data step
			// left to run for them.
		}
	}
	return steps, nil
}

func (p *Planner) isaStep(g *inference.Graph, c pattern.Constraint, bound map[string]bool) (engine.ExecutionStep, error) {
	v := inference.Vertex{Variable: string(c.Left)}
	types := g.Vertices[v]
	if types == nil || types.Len() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnseededVariable, c.Left)
	}
	bound[string(c.Left)] = true
	return engine.IntersectionStep{
		Var:     string(c.Left),
		Sources: []engine.IteratorFactory{isaIteratorFactory(p.Things, types)},
	}, nil
}

func (p *Planner) hasSteps(g *inference.Graph, c pattern.Constraint, bound map[string]bool) ([]engine.ExecutionStep, error) {
	owner, attr := string(c.Left), string(c.Right)
	switch {
	case bound[owner] && !bound[attr]:
		bound[attr] = true
		return []engine.ExecutionStep{engine.IntersectionStep{
			Var:     attr,
			Sources: []engine.IteratorFactory{hasOwnerFactory(p.Things, owner)},
		}}, nil

	case bound[attr] && !bound[owner]:
		bound[owner] = true
		return []engine.ExecutionStep{engine.IntersectionStep{
			Var:     owner,
			Sources: []engine.IteratorFactory{hasAttrFactory(p.Things, attr)},
		}}, nil

	case !bound[owner] && !bound[attr]:
		ownerTypes := g.Vertices[inference.Vertex{Variable: owner}]
		if ownerTypes == nil || ownerTypes.Len() == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnseededVariable, owner)
		}
		bound[owner] = true
		bound[attr] = true
		return []engine.ExecutionStep{
			engine.IntersectionStep{Var: owner, Sources: []engine.IteratorFactory{isaIteratorFactory(p.Things, ownerTypes)}},
			engine.IntersectionStep{Var: attr, Sources: []engine.IteratorFactory{hasOwnerFactory(p.Things, owner)}},
		}, nil

	default: // both already bound: just verify the edge holds
		return []engine.ExecutionStep{CheckStep{
			Checker:      p.Checker,
			Instructions: []engine.CheckInstruction{engine.HasCheck{OwnerVar: owner, AttrVar: attr}},
		}}, nil
	}
}

func (p *Planner) linksSteps(g *inference.Graph, c pattern.Constraint, bound map[string]bool) ([]engine.ExecutionStep, error) {
	relation, player, roleVar := string(c.Left), string(c.Right), string(c.RoleVar)
	var roleTypes *inference.TypeSet
	if roleVar != "" {
		roleTypes = g.Vertices[inference.Vertex{Variable: roleVar}]
		bound[roleVar] = true
	}

	switch {
	case bound[relation] && !bound[player]:
		bound[player] = true
		return []engine.ExecutionStep{engine.IntersectionStep{
			Var:     player,
			Sources: []engine.IteratorFactory{linksPlayerFactory(p.Things, relation, roleTypes)},
		}}, nil

	case bound[player] && !bound[relation]:
		bound[relation] = true
		return []engine.ExecutionStep{engine.IntersectionStep{
			Var:     relation,
			Sources: []engine.IteratorFactory{linksRelationFactory(p.Things, player, roleTypes)},
		}}, nil

	case !bound[relation] && !bound[player]:
		relTypes := g.Vertices[inference.Vertex{Variable: relation}]
		if relTypes == nil || relTypes.Len() == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnseededVariable, relation)
		}
		bound[relation] = true
		bound[player] = true
		return []engine.ExecutionStep{
			engine.IntersectionStep{Var: relation, Sources: []engine.IteratorFactory{isaIteratorFactory(p.Things, relTypes)}},
			engine.IntersectionStep{Var: player, Sources: []engine.IteratorFactory{linksPlayerFactory(p.Things, relation, roleTypes)}},
		}, nil

	default:
		return []engine.ExecutionStep{CheckStep{
			Checker: p.Checker,
			Instructions: []engine.CheckInstruction{
				engine.LinksCheck{RelationVar: relation, PlayerVar: player, RoleTypeVar: roleVar},
			},
		}}, nil
	}
}

func (p *Planner) comparisonCheck(c pattern.Constraint) engine.CheckInstruction {
	if c.Right != "" {
		return ValueCompareCheck{Schema: p.Schema, LeftVar: string(c.Left), RightVar: string(c.Right), Op: c.Op}
	}
	return ValueCompareCheck{Schema: p.Schema, LeftVar: string(c.Left), Literal: c.RightLiteral, Op: c.Op}
}

// Run compiles g and executes it over seed, invoking emit for every
// completed row (spec §4.7). It is the thin end-to-end entrypoint
// pkg/txn's Query handler drives per pipeline.
func Run(ctx context.Context, things *concept.ThingManager, schema engine.SchemaFacts, g *inference.Graph, seed engine.Row, interrupt engine.Interrupt, emit func(engine.Row) error) error {
	p := NewPlanner(things, schema)
	steps, err := p.Compile(g)
	if err != nil {
		return err
	}
	exec := engine.NewMatchExecutor(steps, interrupt)
	return exec.Execute(ctx, seed, emit)
}
