package transformer

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrHandleClosed is returned by Execute after Close.
var ErrHandleClosed = errors.New("transformer handle closed")

// FaultClass separates storage-layer failures from domain-invariant
// violations.
type FaultClass int

const (
	// Logic marks a domain-invariant violation.
	Logic FaultClass = iota
	// Storage marks a failure of the underlying database.
	Storage
)

func (c FaultClass) String() string {
	switch c {
	case Storage:
		return "storage"
	case Logic:
		return "logic"
	default:
		return fmt.Sprintf("FaultClass(%d)", int(c))
	}
}

// ConfigError reports an invalid stage configuration, detected before any
// resource is acquired.
type ConfigError struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s: %s", e.Kind, e.Field, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(kind Kind, field, format string, args ...any) *ConfigError {
	return &ConfigError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExecError reports a failure during Execute.
type ExecError struct {
	Class FaultClass
	Kind  Kind
	Op    string
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s %s (%s fault): %v", e.Kind, e.Op, e.Class, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Classify assigns a fault class to any error returned by a stage.
// SQLite driver errors are storage faults; everything else, including
// use-after-close and missing randomness, is a logic fault.
func Classify(err error) FaultClass {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Class
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return Storage
	}
	return Logic
}

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
