package plugin

import (
	"errors"
	"fmt"
)

// ErrSignatureMismatch is wrapped by SymbolError when a symbol exists but
// does not have the requested shape.
var ErrSignatureMismatch = errors.New("signature mismatch")

// LoadError reports a library that could not be opened.
type LoadError struct {
	Library string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin library %q: %v", e.Library, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SymbolError reports a symbol that is missing from an opened library or
// has an incompatible signature.
type SymbolError struct {
	Library string
	Symbol  string
	Err     error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("resolve symbol %q in %q: %v", e.Symbol, e.Library, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// IsLoadError reports whether err is a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsSymbolError reports whether err is a *SymbolError.
func IsSymbolError(err error) bool {
	var se *SymbolError
	return errors.As(err, &se)
}
