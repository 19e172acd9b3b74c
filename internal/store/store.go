// Package store is the Persistence Gateway: a database/sql wrapper over modernc.org/sqlite
// with hand-written SQL and typed repository methods per entity, following the teacher's
// store/strategy.go approach rather than an ORM.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"perpilot/internal/apperr"
	"perpilot/internal/logger"
)

const queryTimeout = 30 * time.Second

// Store is the shared SQLite-backed persistence gateway. All repository methods hang off it.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (and if needed creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY storms
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.Internal, "apply schema", err)
	}
	return &Store{db: db, log: logger.With("store")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// nowUTC8 returns the current wall-clock time in the UTC+8 trading-day reference used by
// daily account snapshots and the glossary's "trading day" concept. This is a fixed eight-hour
// offset with no DST handling, matching how the exchange's own trading-day boundary is defined.
func nowUTC8() time.Time {
	return time.Now().UTC().Add(8 * time.Hour)
}

// tradingDayUTC8 truncates t (already UTC+8-shifted) to its calendar day.
func tradingDayUTC8(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rollback(tx *sql.Tx, log *logger.Logger, cause error) error {
	if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		log.Warnf("rollback after error failed: %v (original: %v)", rbErr, cause)
	}
	return cause
}

func notFound(entity, id string) error {
	return apperr.New(apperr.NotFound, fmt.Sprintf("%s %q not found", entity, id))
}
