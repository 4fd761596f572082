package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is the read surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is the write surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithConnection opens an independent host-side connection to the store's
// backing data, passes it to fn, and releases it on every exit path.
//
// The connection observes committed data of shared-cache and file stores.
// Exclusive in-memory stores return ErrConnectionUnavailable without calling
// fn.
func (s *Store) WithConnection(ctx context.Context, fn func(*sql.DB) error) (err error) {
	if s.Closed() {
		return ErrUseAfterClose
	}
	if !s.shared {
		return ErrConnectionUnavailable
	}

	db, err := s.openHandle(ctx)
	if err != nil {
		return fmt.Errorf("open scoped connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close scoped connection: %w", cerr))
		}
	}()

	if err := applyPragmas(ctx, db, true); err != nil {
		return fmt.Errorf("configure scoped connection: %w", err)
	}

	return fn(db)
}
