package engine

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Checker evaluates a list of CheckInstructions over a concrete Row,
// short-circuiting on the first failing instruction (spec §4.6).
//
// Checkers are lightweight and safe to create per query. They hold no
// state beyond the schema/thing fact sources and a regex compilation
// cache for Like instructions, whose compiled form the caller should
// reuse across rows (spec §4.6: "caller should cache").
type Checker struct {
	schema SchemaFacts
	things ThingFacts

	mu     sync.Mutex
	regexC map[string]*regexp.Regexp
}

// NewChecker builds a Checker against the given schema and instance fact
// sources.
func NewChecker(schema SchemaFacts, things ThingFacts) *Checker {
	return &Checker{schema: schema, things: things, regexC: make(map[string]*regexp.Regexp)}
}

// CheckInstruction is one residual predicate evaluated per row (spec
// §4.6). Implementations must be side-effect free and safe to reuse
// across rows.
type CheckInstruction interface {
	Evaluate(ctx context.Context, c *Checker, row Row) (bool, error)
}

// Run evaluates every instruction against row, short-circuiting on the
// first false or error result.
func (c *Checker) Run(ctx context.Context, instructions []CheckInstruction, row Row) (bool, error) {
	for _, instr := range instructions {
		ok, err := instr.Evaluate(ctx, c, row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Checker) compileRegex(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.regexC[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.regexC[pattern] = re
	return re, nil
}

// --- Instructions ------------------------------------------------------

// IidCheck verifies the variable is bound to an instance whose vertex ID
// equals the expected bytes.
type IidCheck struct {
	Var string
	IID []byte
}

func (ci IidCheck) Evaluate(ctx context.Context, c *Checker, row Row) (bool, error) {
	b, ok := row[ci.Var]
	if !ok || !b.IsThing() {
		return false, nil
	}
	if len(b.Thing.ID) != len(ci.IID) {
		return false, nil
	}
	for i := range ci.IID {
		if b.Thing.ID[i] != ci.IID[i] {
			return false, nil
		}
	}
	return c.things.Exists(ctx, *b.Thing)
}

// TypeListCheck verifies a type-category variable's bound type is one of
// Allowed.
type TypeListCheck struct {
	Var     string
	Allowed []TypeID
}

func (ci TypeListCheck) Evaluate(_ context.Context, _ *Checker, row Row) (bool, error) {
	b, ok := row[ci.Var]
	if !ok || b.TypeVal == nil {
		return false, nil
	}
	for _, t := range ci.Allowed {
		if *b.TypeVal == t {
			return true, nil
		}
	}
	return false, nil
}

// ThingTypeListCheck verifies a thing variable's runtime type is one of
// Allowed.
type ThingTypeListCheck struct {
	Var     string
	Allowed []TypeID
}

func (ci ThingTypeListCheck) Evaluate(_ context.Context, _ *Checker, row Row) (bool, error) {
	b, ok := row[ci.Var]
	if !ok || !b.IsThing() {
		return false, nil
	}
	for _, t := range ci.Allowed {
		if b.Thing.Type == t {
			return true, nil
		}
	}
	return false, nil
}

// SubCheck verifies Left is a (non-strict) subtype of Right.
type SubCheck struct {
	Left, Right string
}

func (ci SubCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	l, lok := row[ci.Left]
	r, rok := row[ci.Right]
	if !lok || !rok || l.TypeVal == nil || r.TypeVal == nil {
		return false, nil
	}
	return c.schema.IsSubtype(*l.TypeVal, *r.TypeVal), nil
}

// OwnsCheck verifies OwnerType owns AttrType.
type OwnsCheck struct {
	OwnerVar, AttrTypeVar string
}

func (ci OwnsCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	owner, ok := row[ci.OwnerVar]
	attrT, ok2 := row[ci.AttrTypeVar]
	if !ok || !ok2 {
		return false, nil
	}
	var ownerType TypeID
	switch {
	case owner.IsThing():
		ownerType = owner.Thing.Type
	case owner.TypeVal != nil:
		ownerType = *owner.TypeVal
	default:
		return false, nil
	}
	if attrT.TypeVal == nil {
		return false, nil
	}
	return c.schema.Owns(ownerType, *attrT.TypeVal), nil
}

// PlaysCheck verifies PlayerType plays RoleType.
type PlaysCheck struct {
	PlayerVar, RoleTypeVar string
}

func (ci PlaysCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	player, ok := row[ci.PlayerVar]
	role, ok2 := row[ci.RoleTypeVar]
	if !ok || !ok2 || role.TypeVal == nil {
		return false, nil
	}
	var playerType TypeID
	switch {
	case player.IsThing():
		playerType = player.Thing.Type
	case player.TypeVal != nil:
		playerType = *player.TypeVal
	default:
		return false, nil
	}
	return c.schema.Plays(playerType, *role.TypeVal), nil
}

// RelatesCheck verifies RelationType relates RoleType.
type RelatesCheck struct {
	RelationVar, RoleTypeVar string
}

func (ci RelatesCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	rel, ok := row[ci.RelationVar]
	role, ok2 := row[ci.RoleTypeVar]
	if !ok || !ok2 || role.TypeVal == nil {
		return false, nil
	}
	var relType TypeID
	switch {
	case rel.IsThing():
		relType = rel.Thing.Type
	case rel.TypeVal != nil:
		relType = *rel.TypeVal
	default:
		return false, nil
	}
	return c.schema.Relates(relType, *role.TypeVal), nil
}

// IsaCheck verifies the thing variable's type is a subtype of TypeVar's
// bound type.
type IsaCheck struct {
	ThingVar, TypeVar string
}

func (ci IsaCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	thing, ok := row[ci.ThingVar]
	typ, ok2 := row[ci.TypeVar]
	if !ok || !ok2 || !thing.IsThing() || typ.TypeVal == nil {
		return false, nil
	}
	return c.schema.IsSubtype(thing.Thing.Type, *typ.TypeVal), nil
}

// HasCheck verifies an owner-attribute Has edge exists.
type HasCheck struct {
	OwnerVar, AttrVar string
}

func (ci HasCheck) Evaluate(ctx context.Context, c *Checker, row Row) (bool, error) {
	owner, ok := row[ci.OwnerVar]
	attr, ok2 := row[ci.AttrVar]
	if !ok || !ok2 || !owner.IsThing() || !attr.IsThing() {
		return false, nil
	}
	_, found, err := c.things.HasCount(ctx, *owner.Thing, *attr.Thing)
	return found, err
}

// LinksCheck verifies a (relation, player, role) Links edge exists.
type LinksCheck struct {
	RelationVar, PlayerVar, RoleTypeVar string
}

func (ci LinksCheck) Evaluate(ctx context.Context, c *Checker, row Row) (bool, error) {
	rel, ok := row[ci.RelationVar]
	player, ok2 := row[ci.PlayerVar]
	role, ok3 := row[ci.RoleTypeVar]
	if !ok || !ok2 || !ok3 || !rel.IsThing() || !player.IsThing() || role.TypeVal == nil {
		return false, nil
	}
	_, found, err := c.things.LinksCount(ctx, *rel.Thing, *player.Thing, *role.TypeVal)
	return found, err
}

// IndexedRelationCheck verifies the role-player index contains a
// directed pair between two players of the same relation.
type IndexedRelationCheck struct {
	RelationVar, StartVar, EndVar string
}

func (ci IndexedRelationCheck) Evaluate(ctx context.Context, c *Checker, row Row) (bool, error) {
	rel, ok := row[ci.RelationVar]
	start, ok2 := row[ci.StartVar]
	end, ok3 := row[ci.EndVar]
	if !ok || !ok2 || !ok3 || !rel.IsThing() || !start.IsThing() || !end.IsThing() {
		return false, nil
	}
	_, _, _, found, err := c.things.IndexedPair(ctx, *rel.Thing, *start.Thing, *end.Thing)
	return found, err
}

// IsCheck verifies two variables are bound to the same identity.
type IsCheck struct {
	Left, Right string
}

func (ci IsCheck) Evaluate(_ context.Context, _ *Checker, row Row) (bool, error) {
	l, ok := row[ci.Left]
	r, ok2 := row[ci.Right]
	if !ok || !ok2 {
		return false, nil
	}
	if l.IsThing() && r.IsThing() {
		return l.Thing.Type == r.Thing.Type && bytesEqual(l.Thing.ID, r.Thing.ID), nil
	}
	if l.TypeVal != nil && r.TypeVal != nil {
		return *l.TypeVal == *r.TypeVal, nil
	}
	return false, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LinksDeduplicationCheck rejects a row where two Cartesian-expanded
// role-player positions have collapsed onto the identical player,
// preventing the same instance from double-counting a duplicate-player
// relation (spec §4.6).
type LinksDeduplicationCheck struct {
	Vars []string
}

func (ci LinksDeduplicationCheck) Evaluate(_ context.Context, _ *Checker, row Row) (bool, error) {
	seen := make(map[string]bool, len(ci.Vars))
	for _, v := range ci.Vars {
		b, ok := row[v]
		if !ok || !b.IsThing() {
			continue
		}
		key := b.Thing.Type.String() + ":" + string(b.Thing.ID)
		if seen[key] {
			return false, nil
		}
		seen[key] = true
	}
	return true, nil
}

// CompareOp enumerates the comparison operators a Comparison check may
// use.
type CompareOp int

const (
	CompareEQ CompareOp = iota
	CompareNEQ
	CompareLT
	CompareLTE
	CompareGT
	CompareGTE
	CompareLike
	CompareContains
)

// ValueOrd compares two Values of compatible categories. It is supplied
// by the caller (pkg/concept implements the value codec described in
// spec §4.3) since engine itself carries no attribute-value codec.
type ValueOrd func(cat ValueCategory, a, b Value) int

// ComparisonCheck evaluates a comparison between two attribute-bound
// variables, or a variable and a literal. Comparable value-type
// categories are required (spec §4.4.1); Like compiles (and caches) a
// regex, Contains folds to case-insensitive (spec §4.6).
type ComparisonCheck struct {
	LeftVar   string
	RightVar  string // empty if comparing against Literal
	Literal   Value
	LeftCat   ValueCategory
	RightCat  ValueCategory
	Op        CompareOp
	Ord       ValueOrd
}

func (ci ComparisonCheck) Evaluate(_ context.Context, c *Checker, row Row) (bool, error) {
	left, ok := row[ci.LeftVar]
	if !ok || !left.IsThing() {
		return false, nil
	}
	var rightVal Value
	if ci.RightVar != "" {
		right, ok2 := row[ci.RightVar]
		if !ok2 || !right.IsThing() {
			return false, nil
		}
		rightVal = right.Thing.ID
	} else {
		rightVal = ci.Literal
	}

	if !Comparable(ci.LeftCat, ci.RightCat) {
		return false, nil
	}

	switch ci.Op {
	case CompareLike:
		re, err := c.compileRegex(string(rightVal))
		if err != nil {
			return false, fmt.Errorf("engine: compiling like pattern: %w", err)
		}
		return re.Match(left.Thing.ID), nil
	case CompareContains:
		return containsFold(left.Thing.ID, rightVal), nil
	default:
		if ci.Ord == nil {
			return false, fmt.Errorf("engine: comparison check missing value ordering function")
		}
		cmp := ci.Ord(ci.LeftCat, left.Thing.ID, rightVal)
		switch ci.Op {
		case CompareEQ:
			return cmp == 0, nil
		case CompareNEQ:
			return cmp != 0, nil
		case CompareLT:
			return cmp < 0, nil
		case CompareLTE:
			return cmp <= 0, nil
		case CompareGT:
			return cmp > 0, nil
		case CompareGTE:
			return cmp >= 0, nil
		}
	}
	return false, nil
}

func containsFold(haystack, needle Value) bool {
	h, n := toLowerASCII(haystack), toLowerASCII(needle)
	if len(n) == 0 {
		return true
	}
	for i := 0; i+len(n) <= len(h); i++ {
		if string(h[i:i+len(n)]) == string(n) {
			return true
		}
	}
	return false
}

func toLowerASCII(v Value) Value {
	out := make(Value, len(v))
	for i, b := range v {
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return out
}

// NotNoneCheck rejects a row where Var is unbound (used after an
// optional pattern to filter rows that didn't match the optional
// branch).
type NotNoneCheck struct {
	Var string
}

func (ci NotNoneCheck) Evaluate(_ context.Context, _ *Checker, row Row) (bool, error) {
	_, ok := row[ci.Var]
	return ok, nil
}

// UnsatisfiableCheck always fails. Planners emit it for a subgraph that
// seeding proved has no admissible typing, so the step it guards never
// produces rows without needing special-case plumbing elsewhere.
type UnsatisfiableCheck struct {
	Reason string
}

func (ci UnsatisfiableCheck) Evaluate(_ context.Context, _ *Checker, _ Row) (bool, error) {
	return false, nil
}
