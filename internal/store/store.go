package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on MCVertices.genvertex_id
const currentSchemaVersion = 1

const busyTimeoutMS = 5000

// Store is the event store shared by the stages of a pipeline.
type Store struct {
	path   string
	uri    string
	shared bool
	memory bool
	logger *slog.Logger
	drv    *sqlite3.SQLiteDriver
	rng    *Random

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

type options struct {
	schema bool
	seed   *int64
	logger *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithoutSchema skips creating the convention tables.
func WithoutSchema() Option {
	return func(o *options) { o.schema = false }
}

// WithSeed seeds the random source as part of Open.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger sets the logger used by the store. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open creates or opens the event store identified by path.
//
// The database is configured with:
//   - a single pinned connection for the native handle
//   - 5-second busy timeout for lock contention
//   - WAL journal and NORMAL synchronous mode when file-backed
//   - the convention schema, unless WithoutSchema is given
//
// Any failure is reported as *OpenError.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{schema: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	uri, shared, memory := resolvePath(path)
	s := &Store{
		path:   path,
		uri:    uri,
		shared: shared,
		memory: memory,
		logger: o.logger,
		rng:    newRandom(),
	}
	s.drv = newDriver(s.rng)

	ctx := context.Background()
	db, err := s.openHandle(ctx)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	if err := applyPragmas(ctx, db, memory); err != nil {
		db.Close()
		return nil, &OpenError{Path: path, Err: fmt.Errorf("failed to apply pragmas: %w", err)}
	}

	if o.schema {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, &OpenError{Path: path, Err: fmt.Errorf("failed to apply schema: %w", err)}
		}
	}

	s.db = db
	if o.seed != nil {
		s.rng.reseed(*o.seed)
	}

	s.logger.Debug("event store opened", "path", path, "uri", uri, "shared", shared)
	return s, nil
}

// resolvePath maps the accepted path forms onto a SQLite URI and reports
// whether independent connections can observe the same data.
func resolvePath(path string) (uri string, shared, memory bool) {
	switch {
	case path == "":
		return fmt.Sprintf("file:fastsim-%s?mode=memory&cache=shared", uuid.NewString()), true, true
	case path == ":memory:":
		return path, false, true
	case strings.HasPrefix(path, "file:"):
		inMemory := strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
		if inMemory {
			return path, strings.Contains(path, "cache=shared"), true
		}
		return path, true, false
	default:
		return path, true, false
	}
}

// dsn appends driver parameters to the store URI.
func (s *Store) dsn() string {
	sep := "?"
	if strings.Contains(s.uri, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_busy_timeout=%d", s.uri, sep, busyTimeoutMS)
}

// openHandle opens a new handle to the store URI, pinned to one connection.
// SQLite only supports one writer at a time and TEMPORARY tables live on a
// single connection, so the pool never grows past one.
func (s *Store) openHandle(ctx context.Context) (*sql.DB, error) {
	db := sql.OpenDB(&connector{drv: s.drv, dsn: s.dsn()})
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Path returns the path the store was opened with.
func (s *Store) Path() string { return s.path }

// URI returns the resolved SQLite URI.
func (s *Store) URI() string { return s.uri }

// Shared reports whether scoped host connections can be opened.
func (s *Store) Shared() bool { return s.shared }

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Handle returns the native handle used by stages.
// Callers must not cache it across stage executions: Refresh replaces it.
func (s *Store) Handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrUseAfterClose
	}
	return s.db, nil
}

// Seed installs a new random source seeded with value, discarding any
// previous state. Seeding twice with the same value reproduces the same
// sequence of draws.
func (s *Store) Seed(value int64) error {
	if s.Closed() {
		return ErrUseAfterClose
	}
	s.rng.reseed(value)
	s.logger.Debug("event store reseeded", "uri", s.uri, "seed", value)
	return nil
}

// Random returns the store's random source.
// Returns ErrUnseeded if Seed was never called.
func (s *Store) Random() (*Random, error) {
	if s.Closed() {
		return nil, ErrUseAfterClose
	}
	if !s.rng.Seeded() {
		return nil, ErrUnseeded
	}
	return s.rng, nil
}

// Refresh replaces the native handle with a fresh connection to the same
// URI, resynchronizing the store's view with the backing file. TEMPORARY
// tables do not survive a refresh.
//
// Exclusive in-memory stores cannot be refreshed: their data lives on the
// connection being replaced.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUseAfterClose
	}
	if s.memory && !s.shared {
		return ErrConnectionUnavailable
	}

	// The new handle is opened before the old one is closed so that a
	// shared-cache memory database never drops to zero connections.
	db, err := s.openHandle(ctx)
	if err != nil {
		return &OpenError{Path: s.path, Err: err}
	}
	if err := applyPragmas(ctx, db, s.memory); err != nil {
		db.Close()
		return &OpenError{Path: s.path, Err: fmt.Errorf("failed to apply pragmas: %w", err)}
	}

	old := s.db
	s.db = db
	if err := old.Close(); err != nil {
		s.logger.Warn("closing replaced handle", "uri", s.uri, "error", err)
	}
	s.logger.Debug("event store refreshed", "uri", s.uri)
	return nil
}

// Close releases the native handle. It succeeds exactly once; later calls
// return ErrUseAfterClose.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrUseAfterClose
	}
	s.closed = true

	db := s.db
	s.db = nil
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close event store: %w", err)
	}
	s.logger.Debug("event store closed", "uri", s.uri)
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB, memory bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
	}
	if !memory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the UNIQUE index on MCVertices.genvertex_id relied upon by
// particle selection when it inserts end vertices with INSERT OR IGNORE.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_mcvertices_genvertex_unique
		ON MCVertices(genvertex_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	db, err := s.Handle()
	if err != nil {
		return err
	}
	var value string
	if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
