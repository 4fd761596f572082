//go:build !(darwin || freebsd || linux)

package plugin

import (
	"fmt"
	"runtime"
)

// Dynamic loads parametrizations from shared libraries. It is unavailable on
// this platform and always fails with *LoadError.
type Dynamic struct{}

func (Dynamic) Load(library, _ string, _ Signature) (*Function, error) {
	return nil, &LoadError{Library: library, Err: fmt.Errorf("dynamic loading unsupported on %s", runtime.GOOS)}
}
