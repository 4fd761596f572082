// Package transformer implements the processing stages that read and mutate
// an event store.
//
// Every stage is an owned handle bound to one *store.Store at construction.
// Configuration is validated eagerly by the constructors; a stage that was
// constructed successfully only fails at Execute time, with an *ExecError
// classified as a storage or logic fault.
//
// Stages never outlive their store: once the store is closed, Execute fails
// with an error wrapping store.ErrUseAfterClose. After Close, Execute fails
// with ErrHandleClosed.
package transformer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/fastsim/internal/plugin"
	"github.com/roach88/fastsim/internal/store"
)

// Kind discriminates the closed set of stage variants.
type Kind int

const (
	ParticleSelection Kind = iota + 1
	VertexFinder
	VertexReconstruction
	ExternalFunctionPlugin
	StochasticExternalFunctionPlugin
	TemporaryView
	StoreEditor
	StoreCleaner
	ConnectionRefresh
)

var kindNames = map[Kind]string{
	ParticleSelection:                "particle_selection",
	VertexFinder:                     "vertex_finder",
	VertexReconstruction:             "vertex_reconstruction",
	ExternalFunctionPlugin:           "plugin",
	StochasticExternalFunctionPlugin: "generative_plugin",
	TemporaryView:                    "temporary_view",
	StoreEditor:                      "store_editor",
	StoreCleaner:                     "store_cleaner",
	ConnectionRefresh:                "connection_refresh",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name such as "vertex_finder" to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transformer kind %q", name)
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		ParticleSelection, VertexFinder, VertexReconstruction,
		ExternalFunctionPlugin, StochasticExternalFunctionPlugin,
		TemporaryView, StoreEditor, StoreCleaner, ConnectionRefresh,
	}
}

// Transformer is a natively executed stage.
type Transformer interface {
	// Kind reports the variant.
	Kind() Kind

	// Store returns the store the stage is bound to.
	Store() *store.Store

	// Execute runs the stage once against the current store state.
	Execute(ctx context.Context) error

	// Close releases variant resources. Execute after Close fails with
	// ErrHandleClosed. Close is idempotent.
	Close() error
}

// Option configures stage construction.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	loader plugin.Loader
}

// WithLogger sets the logger used by the stage. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithLoader sets the plugin loader used by plugin stages.
// Defaults to plugin.Dynamic.
func WithLoader(l plugin.Loader) Option {
	return func(s *settings) { s.loader = l }
}

func applyOptions(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loader == nil {
		s.loader = plugin.Dynamic{}
	}
	return s
}

// base carries the state shared by every variant.
type base struct {
	kind   Kind
	store  *store.Store
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (b *base) init(kind Kind, s *store.Store, set settings) {
	b.kind = kind
	b.store = s
	b.logger = set.logger.With("stage", kind.String())
}

// checkStore rejects a nil or closed store.
func checkStore(kind Kind, s *store.Store) error {
	if s == nil {
		return configErr(kind, "store", "store is nil")
	}
	if s.Closed() {
		return &ConfigError{Kind: kind, Field: "store", Message: "store is closed", Err: store.ErrUseAfterClose}
	}
	return nil
}

func (b *base) Kind() Kind { return b.kind }

func (b *base) Store() *store.Store { return b.store }

func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// handle returns the native handle, refusing closed stages and closed stores.
func (b *base) handle() (*sql.DB, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, b.logic("execute", ErrHandleClosed)
	}
	db, err := b.store.Handle()
	if err != nil {
		return nil, b.logic("execute", err)
	}
	return db, nil
}

// fault wraps err with the class Classify assigns to it.
func (b *base) fault(op string, err error) error {
	return &ExecError{Class: Classify(err), Kind: b.kind, Op: op, Err: err}
}

// logic wraps err as a domain-invariant violation.
func (b *base) logic(op string, err error) error {
	return &ExecError{Class: Logic, Kind: b.kind, Op: op, Err: err}
}

// inTx runs fn inside a transaction on db, rolling back on failure.
func (b *base) inTx(ctx context.Context, db *sql.DB, op string, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return b.fault(op, fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			b.logger.Warn("rollback failed", "op", op, "error", rerr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return b.fault(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}
