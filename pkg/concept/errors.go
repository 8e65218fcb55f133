package concept

import (
	"errors"
	"fmt"
)

// Sentinel errors for ThingManager write-path failures (spec §4.3),
// matching pkg/typesystem/errors.go's sentinel + Is*Err convention.
var (
	ErrAbstractType           = errors.New("concept: cannot instantiate an abstract type")
	ErrValueConstraintViolation = errors.New("concept: value violates a declared constraint")
	ErrVertexNotFound         = errors.New("concept: vertex not found")
	ErrNotPutInTransaction    = errors.New("concept: unput/decrement target was not written in this transaction")
	ErrCardinalityViolation   = errors.New("concept: cardinality constraint violated")
	ErrKeyViolation           = errors.New("concept: key annotation violated")
)

func IsAbstractTypeErr(err error) bool         { return errors.Is(err, ErrAbstractType) }
func IsValueConstraintErr(err error) bool       { return errors.Is(err, ErrValueConstraintViolation) }
func IsVertexNotFoundErr(err error) bool        { return errors.Is(err, ErrVertexNotFound) }
func IsCardinalityViolationErr(err error) bool  { return errors.Is(err, ErrCardinalityViolation) }
func IsKeyViolationErr(err error) bool          { return errors.Is(err, ErrKeyViolation) }

// WriteError aggregates every violation finalize-time validation found
// (spec §4.3: "All violations are collected (not short-circuited) and
// returned as Vec<ConceptWriteError>").
type WriteError struct {
	Violations []error
}

func (e *WriteError) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0].Error()
	}
	return fmt.Sprintf("concept: %d write violations, first: %v", len(e.Violations), e.Violations[0])
}

func (e *WriteError) Unwrap() []error { return e.Violations }
