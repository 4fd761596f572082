// Package plugin loads parametrization functions used by plugin stages.
//
// A parametrization is a flat float32 function: it reads one input row and
// fills one output row. Stochastic parametrizations also read a row of
// standard-normal draws. Functions come from shared libraries exporting
// C symbols of the shapes
//
//	float* f(float* out, const float* in)
//	float* f(float* out, const float* in, const float* rnd)
//
// or from an in-process Registry holding Go functions of the same shapes.
// Both are resolved and validated when loaded, never when called.
package plugin

import (
	"errors"
	"fmt"
	"sync"
)

// Signature identifies the calling shape of a parametrization.
type Signature int

const (
	// Deterministic functions take (out, in).
	Deterministic Signature = iota
	// Generative functions take (out, in, rnd).
	Generative
)

func (s Signature) String() string {
	switch s {
	case Deterministic:
		return "deterministic"
	case Generative:
		return "generative"
	default:
		return fmt.Sprintf("Signature(%d)", int(s))
	}
}

// Func is the Go shape of a deterministic parametrization.
type Func func(out, in []float32)

// GenerativeFunc is the Go shape of a stochastic parametrization.
type GenerativeFunc func(out, in, rnd []float32)

// Loader resolves a symbol in a library as a typed Function.
type Loader interface {
	Load(library, symbol string, sig Signature) (*Function, error)
}

// Function is a resolved parametrization. It is safe to call from one
// goroutine at a time.
type Function struct {
	Library   string
	Symbol    string
	Signature Signature

	call    GenerativeFunc
	release func() error

	mu     sync.Mutex
	closed bool
}

// ErrFunctionClosed is returned by Call after Close.
var ErrFunctionClosed = errors.New("plugin function closed")

// Call invokes the function. rnd must be nil for deterministic functions.
func (f *Function) Call(out, in, rnd []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFunctionClosed
	}
	if len(out) == 0 || len(in) == 0 {
		return fmt.Errorf("call %s: empty input or output row", f.Symbol)
	}
	if f.Signature == Generative && len(rnd) == 0 {
		return fmt.Errorf("call %s: generative function needs random inputs", f.Symbol)
	}
	f.call(out, in, rnd)
	return nil
}

// Close releases the library reference held by the function.
// Calling Close more than once is a no-op.
func (f *Function) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.release != nil {
		return f.release()
	}
	return nil
}
