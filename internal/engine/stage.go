package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/transformer"
)

// Callback is host logic run as a pipeline stage. db is a connection
// scoped to the call: it is opened before and released after every
// invocation, and it does not see the native connection's TEMPORARY tables.
type Callback func(ctx context.Context, db *sql.DB) error

// CallbackStage binds a Callback to the store whose data it inspects.
type CallbackStage struct {
	Name  string
	Store *store.Store
	Fn    Callback
}

// run executes the callback with a freshly scoped connection. A panic in
// the callback is reported as an error.
func (c *CallbackStage) run(ctx context.Context) error {
	if c.Store == nil {
		return errors.New("callback has no store")
	}
	if c.Fn == nil {
		return errors.New("callback has no function")
	}
	return c.Store.WithConnection(ctx, func(db *sql.DB) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return c.Fn(ctx, db)
	})
}

// Stage is either a native transformer or a callback. The zero Stage is
// invalid.
type Stage struct {
	native   transformer.Transformer
	callback *CallbackStage
}

// Native wraps a transformer as a stage.
func Native(t transformer.Transformer) Stage {
	return Stage{native: t}
}

// Call wraps fn as a callback stage bound to s.
func Call(name string, s *store.Store, fn Callback) Stage {
	return Stage{callback: &CallbackStage{Name: name, Store: s, Fn: fn}}
}

// IsCallback reports whether the stage runs on the host.
func (s Stage) IsCallback() bool { return s.callback != nil }

// Transformer returns the native stage, or nil for a callback.
func (s Stage) Transformer() transformer.Transformer { return s.native }

// Callback returns the callback stage, or nil for a native stage.
func (s Stage) Callback() *CallbackStage { return s.callback }

// Name describes the stage for logs.
func (s Stage) Name() string {
	switch {
	case s.callback != nil:
		return s.callback.Name
	case s.native != nil:
		return s.native.Kind().String()
	default:
		return "invalid"
	}
}

// CloseStages closes every native stage, joining the errors.
// Pipelines never close their stages; the caller that built them does.
func CloseStages(stages []Stage) error {
	var errs []error
	for _, s := range stages {
		if s.native != nil {
			if err := s.native.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
