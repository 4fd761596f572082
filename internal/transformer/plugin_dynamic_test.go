//go:build darwin || freebsd || linux

package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/plugin"
	"github.com/roach88/fastsim/internal/testutil"
)

func TestPlugin_SharedLibrary(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)
	s := seededStore(t, 1)

	p, err := NewPlugin(s, PluginConfig{
		Library:     lib,
		Function:    "sum_and_double",
		Query:       momentumQuery,
		OutputTable: "derived",
		Outputs:     []string{"a", "b"},
	}, WithLoader(plugin.Dynamic{}))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	mustExecute(t, p)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, queryInts(t, s, "SELECT ref_id FROM derived ORDER BY ref_id"))
	assert.Equal(t, []int64{20, -20, 2, 2}, queryInts(t, s,
		"SELECT CAST(a AS INTEGER) FROM derived WHERE ref_id IN (2, 3, 4, 5) ORDER BY ref_id"))
	assert.Equal(t, []int64{30, -30, 2, 3}, queryInts(t, s,
		"SELECT CAST(b AS INTEGER) FROM derived WHERE ref_id IN (2, 3, 4, 5) ORDER BY ref_id"))
}

func TestGenerativePlugin_SharedLibraryMatchesInProcess(t *testing.T) {
	lib := testutil.BuildParametrizationLibrary(t)

	run := func(library string, loader plugin.Loader) string {
		s := seededStore(t, 2024)
		p, err := NewGenerativePlugin(s, GenerativePluginConfig{
			PluginConfig: PluginConfig{
				Library:     library,
				Function:    "jitter",
				Query:       momentumQuery,
				OutputTable: "jittered",
				Outputs:     []string{"px_smeared", "py_smeared"},
			},
			NRandom: 2,
		}, WithLoader(loader))
		require.NoError(t, err)
		t.Cleanup(func() { p.Close() })
		mustExecute(t, p)
		return dump(t, s, "SELECT * FROM jittered ORDER BY ref_id")
	}

	native := run(lib, plugin.Dynamic{})
	assert.Equal(t, run("physics", physics()), native)
	assert.Contains(t, native, "px_smeared")
}
