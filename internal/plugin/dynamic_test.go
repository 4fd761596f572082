//go:build darwin || freebsd || linux

package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/testutil"
)

func TestDynamic_CallsDeterministicFunction(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)

	fn, err := Dynamic{}.Load(lib, "sum_and_double", Deterministic)
	require.NoError(t, err)
	assert.Equal(t, lib, fn.Library)
	assert.Equal(t, Deterministic, fn.Signature)

	out := make([]float32, 2)
	require.NoError(t, fn.Call(out, []float32{3, 4}, nil))
	assert.Equal(t, []float32{6, 7}, out)

	require.NoError(t, fn.Close())
	require.NoError(t, fn.Close(), "second Close does not release twice")
	assert.ErrorIs(t, fn.Call(out, []float32{3, 4}, nil), ErrFunctionClosed)
}

func TestDynamic_CallsGenerativeFunction(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)

	fn, err := Dynamic{}.Load(lib, "jitter", Generative)
	require.NoError(t, err)
	t.Cleanup(func() { fn.Close() })

	out := make([]float32, 2)
	require.NoError(t, fn.Call(out, []float32{1, 2}, []float32{0.5, -0.25}))
	assert.Equal(t, []float32{1.5, 1.75}, out)
}

func TestDynamic_IndependentReferences(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)

	first, err := Dynamic{}.Load(lib, "sum_and_double", Deterministic)
	require.NoError(t, err)
	second, err := Dynamic{}.Load(lib, "sum_and_double", Deterministic)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	require.NoError(t, first.Close())

	out := make([]float32, 2)
	require.NoError(t, second.Call(out, []float32{1, 1}, nil), "library stays mapped while referenced")
	assert.Equal(t, []float32{2, 2}, out)
}

func TestDynamic_UnknownSymbolInBuiltLibrary(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)

	_, err := Dynamic{}.Load(lib, "not_exported", Deterministic)
	assert.True(t, IsSymbolError(err), "got %T: %v", err, err)
}
