// Package postgres is a reference Snapshot backend (SPEC_FULL.md §4.1):
// a key/value table (typecore_kv) plus a commit sequence (typecore_seq),
// accessed through
// a pooled jackc/pgx/v5 connection. It exists to exercise the abstract
// Snapshot contract end to end for tests and local development; it is
// explicitly not "the" on-disk format a production deployment of this
// engine would need to use.
package postgres

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

var logger = log.New(log.Writer(), "[typecore] ", log.LstdFlags)

const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS typecore_kv (
	key   BYTEA PRIMARY KEY,
	value BYTEA NOT NULL
);
CREATE SEQUENCE IF NOT EXISTS typecore_seq;
`

// Store owns a pgxpool.Pool and hands out Snapshots over the
// typecore_kv table. A Store is safe for concurrent use; the
// Snapshots it opens are not (matching engine.Iterator's contract).
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and bootstraps the backing table if it doesn't
// already exist. Callers must Close the returned Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.bootstrap(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, bootstrapDDL); err != nil {
		return fmt.Errorf("postgres: bootstrapping schema: %w", err)
	}
	logger.Printf("bootstrapped typecore_kv")
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for callers that need raw
// connectivity checks or DDL beyond the Snapshot contract.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
