// Package inference builds and seeds the per-conjunction type inference
// graph (C4, C5 of spec §3, §4.4): the bipartite vertex/edge structure
// type-checking fills in before a pattern reaches planning, and the
// fixpoint seeding algorithm that fills it.
package inference

import (
	"sort"

	"github.com/pthm/typecore/engine"
)

// TypeSet is an ordered, deduplicated set of candidate types for one
// vertex or edge endpoint. Iteration order is by TypeID.String() so
// seeding is deterministic and tests can assert on exact membership.
type TypeSet struct {
	m map[engine.TypeID]struct{}
}

// NewTypeSet builds a TypeSet from the given types, deduplicating.
func NewTypeSet(types ...engine.TypeID) *TypeSet {
	s := &TypeSet{m: make(map[engine.TypeID]struct{}, len(types))}
	for _, t := range types {
		s.m[t] = struct{}{}
	}
	return s
}

// Len returns the number of distinct types in the set.
func (s *TypeSet) Len() int { return len(s.m) }

// Contains reports whether t is a member.
func (s *TypeSet) Contains(t engine.TypeID) bool {
	_, ok := s.m[t]
	return ok
}

// Add inserts t, returning true if it was not already present.
func (s *TypeSet) Add(t engine.TypeID) bool {
	if _, ok := s.m[t]; ok {
		return false
	}
	s.m[t] = struct{}{}
	return true
}

// Slice returns the set's members in deterministic order.
func (s *TypeSet) Slice() []engine.TypeID {
	out := make([]engine.TypeID, 0, len(s.m))
	for t := range s.m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Clone returns an independent copy.
func (s *TypeSet) Clone() *TypeSet {
	return NewTypeSet(s.Slice()...)
}

// Intersect returns a new TypeSet containing only types present in both
// s and other.
func (s *TypeSet) Intersect(other *TypeSet) *TypeSet {
	out := NewTypeSet()
	for t := range s.m {
		if other.Contains(t) {
			out.Add(t)
		}
	}
	return out
}

// Union returns a new TypeSet containing every type in s or other.
func (s *TypeSet) Union(other *TypeSet) *TypeSet {
	out := s.Clone()
	for _, t := range other.Slice() {
		out.Add(t)
	}
	return out
}

// Equal reports whether s and other have the same membership.
func (s *TypeSet) Equal(other *TypeSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for t := range s.m {
		if !other.Contains(t) {
			return false
		}
	}
	return true
}
