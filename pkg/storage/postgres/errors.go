package postgres

import "errors"

// Storage-tier errors specific to the Postgres backend, layered on top
// of the generic engine sentinels (engine.ErrReadOnly, ErrSnapshotClosed)
// per the three-stratum error design (SPEC_FULL.md §7).
var (
	ErrQuery = errors.New("postgres: query failed")
	ErrOpen  = errors.New("postgres: opening snapshot failed")
)

// IsQueryErr returns true if err is or wraps ErrQuery.
func IsQueryErr(err error) bool { return errors.Is(err, ErrQuery) }
