package typesystem

// AnnotationCategory enumerates the fixed set of schema annotation
// kinds (spec §3).
type AnnotationCategory int

const (
	AnnotationAbstract AnnotationCategory = iota
	AnnotationDistinct
	AnnotationIndependent
	AnnotationUnique
	AnnotationKey
	AnnotationCardinality
	AnnotationRegex
	AnnotationCascade
	AnnotationRange
	AnnotationValues
)

func (c AnnotationCategory) String() string {
	switch c {
	case AnnotationAbstract:
		return "abstract"
	case AnnotationDistinct:
		return "distinct"
	case AnnotationIndependent:
		return "independent"
	case AnnotationUnique:
		return "unique"
	case AnnotationKey:
		return "key"
	case AnnotationCardinality:
		return "cardinality"
	case AnnotationRegex:
		return "regex"
	case AnnotationCascade:
		return "cascade"
	case AnnotationRange:
		return "range"
	case AnnotationValues:
		return "values"
	default:
		return "unknown"
	}
}

// Cardinality bounds the multiplicity of an Owns/Relates/Plays edge.
// End == nil means unbounded.
type Cardinality struct {
	Start uint64
	End   *uint64
}

// Contains reports whether n falls within the interval.
func (c Cardinality) Contains(n uint64) bool {
	if n < c.Start {
		return false
	}
	return c.End == nil || n <= *c.End
}

// SubIntervalOf reports whether c is contained within parent — used to
// validate that a subtype's cardinality narrows its supertype's (spec
// §4.5).
func (c Cardinality) SubIntervalOf(parent Cardinality) bool {
	if c.Start < parent.Start {
		return false
	}
	if parent.End == nil {
		return true
	}
	return c.End != nil && *c.End <= *parent.End
}

// RangeBound bounds a Range annotation's ordered scalar value, encoded
// the same way an attribute value of that category would be, so
// comparison can reuse engine.Comparable's category rules.
type RangeBound struct {
	Start, End []byte // nil means unbounded on that side
}

// Annotation is one decoration attached to a type or an edge. Exactly
// the fields relevant to Category are populated.
type Annotation struct {
	Category    AnnotationCategory
	Cardinality Cardinality  // AnnotationCardinality / AnnotationKey (fixed 1..1)
	Pattern     string       // AnnotationRegex
	Range       RangeBound   // AnnotationRange
	Values      [][]byte     // AnnotationValues
}

// declarationRules captures, per category, whether it may coexist with
// other annotations on the same declaration (declarable_alongside),
// whether it may additionally be re-declared on a subtype/sub-edge
// (declarable_below), and whether a declaration on a supertype/edge
// is inherited by subtypes unless overridden (inheritable). Spec §3.
type declarationRules struct {
	exclusiveWith []AnnotationCategory
	declarableBelow bool
	inheritable     bool
}

var rules = map[AnnotationCategory]declarationRules{
	AnnotationAbstract:     {declarableBelow: false, inheritable: false},
	AnnotationDistinct:     {declarableBelow: true, inheritable: true},
	AnnotationIndependent:  {declarableBelow: false, inheritable: false},
	AnnotationUnique:       {exclusiveWith: []AnnotationCategory{AnnotationKey, AnnotationCardinality}, declarableBelow: true, inheritable: true},
	AnnotationKey:          {exclusiveWith: []AnnotationCategory{AnnotationUnique, AnnotationCardinality}, declarableBelow: false, inheritable: true},
	AnnotationCardinality:  {exclusiveWith: []AnnotationCategory{AnnotationKey, AnnotationUnique}, declarableBelow: true, inheritable: true},
	AnnotationRegex:        {declarableBelow: true, inheritable: true},
	AnnotationCascade:      {declarableBelow: false, inheritable: true},
	AnnotationRange:        {declarableBelow: true, inheritable: true},
	AnnotationValues:       {declarableBelow: true, inheritable: true},
}

// ConflictsWith reports whether a and b cannot be declared on the same
// type/edge simultaneously (spec §3: "Key and Unique/Cardinality are
// mutually exclusive on the same edge").
func ConflictsWith(a, b AnnotationCategory) bool {
	for _, c := range rules[a].exclusiveWith {
		if c == b {
			return true
		}
	}
	return false
}

// DeclarableBelow reports whether category may be re-declared (e.g. to
// narrow) on a subtype or overriding edge.
func DeclarableBelow(c AnnotationCategory) bool { return rules[c].declarableBelow }

// Inheritable reports whether category propagates to subtypes absent an
// overriding declaration. Abstractness is explicitly not inheritable
// (spec §3).
func Inheritable(c AnnotationCategory) bool { return rules[c].inheritable }
