package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSchema is a minimal in-memory SchemaFacts used only by this
// package's own tests; the real implementation is pkg/typesystem in the
// root module.
type fakeSchema struct {
	subOf map[TypeID]TypeID // direct supertype
	owns  map[[2]TypeID]bool
	plays map[[2]TypeID]bool
	rel   map[[2]TypeID]bool
	vtype map[TypeID]ValueCategory
}

func newFakeSchema() *fakeSchema {
	return &fakeSchema{
		subOf: make(map[TypeID]TypeID),
		owns:  make(map[[2]TypeID]bool),
		plays: make(map[[2]TypeID]bool),
		rel:   make(map[[2]TypeID]bool),
		vtype: make(map[TypeID]ValueCategory),
	}
}

func (s *fakeSchema) IsSubtype(sub, super TypeID) bool {
	for t := sub; ; {
		if t == super {
			return true
		}
		parent, ok := s.subOf[t]
		if !ok {
			return false
		}
		t = parent
	}
}

func (s *fakeSchema) SupertypesTransitive(t TypeID) []TypeID {
	var out []TypeID
	for cur, ok := s.subOf[t]; ok; cur, ok = s.subOf[cur] {
		out = append(out, cur)
	}
	return out
}

func (s *fakeSchema) SubtypesTransitive(t TypeID) []TypeID {
	var out []TypeID
	for child, parent := range s.subOf {
		if parent == t {
			out = append(out, child)
		}
	}
	return out
}

func (s *fakeSchema) Owns(ownerType, attrType TypeID) bool  { return s.owns[[2]TypeID{ownerType, attrType}] }
func (s *fakeSchema) Plays(playerType, roleType TypeID) bool {
	return s.plays[[2]TypeID{playerType, roleType}]
}
func (s *fakeSchema) Relates(relType, roleType TypeID) bool {
	return s.rel[[2]TypeID{relType, roleType}]
}
func (s *fakeSchema) ValueType(attrType TypeID) (ValueCategory, bool) {
	c, ok := s.vtype[attrType]
	return c, ok
}
func (s *fakeSchema) IsAbstract(TypeID) bool                { return false }
func (s *fakeSchema) RelationIndexAvailable(TypeID) bool    { return true }

type fakeThings struct {
	has   map[[2]string]uint64
	links map[string]uint64
	exist map[string]bool
}

func newFakeThings() *fakeThings {
	return &fakeThings{has: make(map[[2]string]uint64), links: make(map[string]uint64), exist: make(map[string]bool)}
}

func refKey(r ThingRef) string { return r.Type.String() + ":" + string(r.ID) }

func (f *fakeThings) HasCount(_ context.Context, owner, attr ThingRef) (uint64, bool, error) {
	c, ok := f.has[[2]string{refKey(owner), refKey(attr)}]
	return c, ok, nil
}

func (f *fakeThings) LinksCount(_ context.Context, relation, player ThingRef, role TypeID) (uint64, bool, error) {
	c, ok := f.links[refKey(relation)+"|"+refKey(player)+"|"+role.String()]
	return c, ok, nil
}

func (f *fakeThings) IndexedPair(_ context.Context, relation, start, end ThingRef) (TypeID, TypeID, uint64, bool, error) {
	return TypeID{}, TypeID{}, 0, false, nil
}

func (f *fakeThings) Exists(_ context.Context, ref ThingRef) (bool, error) {
	return f.exist[refKey(ref)], nil
}

var (
	personType = TypeID{Kind: KindEntity, Label: "person"}
	studentType = TypeID{Kind: KindEntity, Label: "student"}
	nameType   = TypeID{Kind: KindAttribute, Label: "name"}
)

func TestSubCheckFollowsTransitiveSupertype(t *testing.T) {
	schema := newFakeSchema()
	schema.subOf[studentType] = personType
	checker := NewChecker(schema, newFakeThings())

	row := Row{
		"x": {TypeVal: &studentType},
		"y": {TypeVal: &personType},
	}
	ok, err := SubCheck{Left: "x", Right: "y"}.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasCheckRequiresEdgePresence(t *testing.T) {
	schema := newFakeSchema()
	things := newFakeThings()
	owner := ThingRef{Type: personType, ID: []byte("p1")}
	attr := ThingRef{Type: nameType, ID: []byte("alice")}
	things.has[[2]string{refKey(owner), refKey(attr)}] = 1

	checker := NewChecker(schema, things)
	row := Row{"owner": {Thing: &owner}, "attr": {Thing: &attr}}

	ok, err := HasCheck{OwnerVar: "owner", AttrVar: "attr"}.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.True(t, ok)

	missingAttr := ThingRef{Type: nameType, ID: []byte("bob")}
	row2 := Row{"owner": {Thing: &owner}, "attr": {Thing: &missingAttr}}
	ok, err = HasCheck{OwnerVar: "owner", AttrVar: "attr"}.Evaluate(context.Background(), checker, row2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestComparisonCheckRejectsIncomparableCategories(t *testing.T) {
	schema := newFakeSchema()
	checker := NewChecker(schema, newFakeThings())
	left := ThingRef{Type: nameType, ID: []byte("5")}
	row := Row{"x": {Thing: &left}}

	check := ComparisonCheck{
		LeftVar: "x", Literal: Value("hello"),
		LeftCat: ValueLong, RightCat: ValueString,
		Op: CompareEQ,
	}
	ok, err := check.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.False(t, ok, "long and string are not comparable categories")
}

func TestComparisonCheckLikeMatchesAndCachesPattern(t *testing.T) {
	schema := newFakeSchema()
	checker := NewChecker(schema, newFakeThings())
	left := ThingRef{Type: nameType, ID: []byte("alice")}
	row := Row{"x": {Thing: &left}}

	check := ComparisonCheck{
		LeftVar: "x", Literal: Value("^al.*"),
		LeftCat: ValueString, RightCat: ValueString,
		Op: CompareLike,
	}
	ok, err := check.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, checker.regexC, 1)
	_, err = check.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.Len(t, checker.regexC, 1, "second evaluation should reuse the cached regex")
}

func TestLinksDeduplicationCheckRejectsRepeatedPlayer(t *testing.T) {
	checker := NewChecker(newFakeSchema(), newFakeThings())
	p := ThingRef{Type: personType, ID: []byte("p1")}
	row := Row{"a": {Thing: &p}, "b": {Thing: &p}}

	ok, err := LinksDeduplicationCheck{Vars: []string{"a", "b"}}.Evaluate(context.Background(), checker, row)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnsatisfiableCheckAlwaysFails(t *testing.T) {
	checker := NewChecker(newFakeSchema(), newFakeThings())
	ok, err := (UnsatisfiableCheck{Reason: "no admissible typing"}).Evaluate(context.Background(), checker, Row{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckerRunShortCircuitsOnFirstFailure(t *testing.T) {
	checker := NewChecker(newFakeSchema(), newFakeThings())
	calls := 0
	instructions := []CheckInstruction{
		UnsatisfiableCheck{},
		countingCheck{calls: &calls},
	}
	ok, err := checker.Run(context.Background(), instructions, Row{})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, calls, "second instruction must not run after the first fails")
}

type countingCheck struct{ calls *int }

func (c countingCheck) Evaluate(context.Context, *Checker, Row) (bool, error) {
	*c.calls++
	return true, nil
}
