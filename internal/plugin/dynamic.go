//go:build darwin || freebsd || linux

package plugin

import (
	"errors"
	"fmt"

	"github.com/ebitengine/purego"
)

// Dynamic loads parametrizations from shared libraries with dlopen.
// Each Load opens its own library reference, released by Function.Close.
type Dynamic struct{}

// Load opens library, resolves symbol and binds it with the C shape
// matching sig.
func (Dynamic) Load(library, symbol string, sig Signature) (*Function, error) {
	if library == "" {
		return nil, &LoadError{Library: library, Err: errors.New("empty library path")}
	}
	if sig != Deterministic && sig != Generative {
		return nil, &SymbolError{Library: library, Symbol: symbol, Err: fmt.Errorf("%w: %s", ErrSignatureMismatch, sig)}
	}

	handle, err := purego.Dlopen(library, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, &LoadError{Library: library, Err: err}
	}
	release := func() error { return purego.Dlclose(handle) }

	addr, err := purego.Dlsym(handle, symbol)
	if err != nil || addr == 0 {
		release()
		if err == nil {
			err = errors.New("symbol not found")
		}
		return nil, &SymbolError{Library: library, Symbol: symbol, Err: err}
	}

	fn := &Function{
		Library:   library,
		Symbol:    symbol,
		Signature: sig,
		release:   release,
	}

	switch sig {
	case Deterministic:
		var c func(out, in *float32) *float32
		purego.RegisterFunc(&c, addr)
		fn.call = func(out, in, _ []float32) { c(&out[0], &in[0]) }
	case Generative:
		var c func(out, in, rnd *float32) *float32
		purego.RegisterFunc(&c, addr)
		fn.call = func(out, in, rnd []float32) { c(&out[0], &in[0], &rnd[0]) }
	}
	return fn, nil
}
