package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry holds parametrizations compiled into the binary, grouped by a
// library name. It implements Loader.
type Registry struct {
	mu   sync.RWMutex
	libs map[string]map[string]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{libs: make(map[string]map[string]any)}
}

// Register adds fn under library/symbol. fn must be a Func, a GenerativeFunc,
// or a plain function literal of either shape.
func (r *Registry) Register(library, symbol string, fn any) error {
	switch fn.(type) {
	case Func, func(out, in []float32), GenerativeFunc, func(out, in, rnd []float32):
	default:
		return fmt.Errorf("register %s/%s: unsupported function type %T", library, symbol, fn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	syms, ok := r.libs[library]
	if !ok {
		syms = make(map[string]any)
		r.libs[library] = syms
	}
	if _, dup := syms[symbol]; dup {
		return fmt.Errorf("register %s/%s: already registered", library, symbol)
	}
	syms[symbol] = fn
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(library, symbol string, fn any) {
	if err := r.Register(library, symbol, fn); err != nil {
		panic(err)
	}
}

// Libraries lists registered library names.
func (r *Registry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.libs))
	for name := range r.libs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Load resolves a registered function, checking that its shape matches sig.
func (r *Registry) Load(library, symbol string, sig Signature) (*Function, error) {
	r.mu.RLock()
	syms, libOK := r.libs[library]
	fn, symOK := syms[symbol]
	r.mu.RUnlock()

	if !libOK {
		return nil, &LoadError{Library: library, Err: errors.New("library not registered")}
	}
	if !symOK {
		return nil, &SymbolError{Library: library, Symbol: symbol, Err: errors.New("symbol not registered")}
	}
	if got := signatureOf(fn); got != sig {
		return nil, &SymbolError{
			Library: library,
			Symbol:  symbol,
			Err:     fmt.Errorf("%w: registered %s, requested %s", ErrSignatureMismatch, got, sig),
		}
	}

	f := &Function{Library: library, Symbol: symbol, Signature: sig}
	switch c := fn.(type) {
	case Func:
		f.call = deterministic(c)
	case func(out, in []float32):
		f.call = deterministic(c)
	case GenerativeFunc:
		f.call = c
	case func(out, in, rnd []float32):
		f.call = c
	}
	return f, nil
}

func deterministic(fn func(out, in []float32)) GenerativeFunc {
	return func(out, in, _ []float32) { fn(out, in) }
}

func signatureOf(fn any) Signature {
	switch fn.(type) {
	case GenerativeFunc, func(out, in, rnd []float32):
		return Generative
	default:
		return Deterministic
	}
}

// Chain tries loaders in order. A *LoadError moves on to the next loader;
// any other outcome is returned as is.
type Chain []Loader

func (c Chain) Load(library, symbol string, sig Signature) (*Function, error) {
	err := error(&LoadError{Library: library, Err: errors.New("no loaders configured")})
	for _, l := range c {
		var fn *Function
		fn, err = l.Load(library, symbol, sig)
		if err == nil || !IsLoadError(err) {
			return fn, err
		}
	}
	return nil, err
}
