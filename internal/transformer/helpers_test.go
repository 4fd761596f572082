package transformer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/testutil"
)

// requireFault asserts err is an *ExecError of the given class and kind.
func requireFault(t *testing.T, err error, class FaultClass, kind Kind) *ExecError {
	t.Helper()
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, class, ee.Class, "fault class: %v", err)
	assert.Equal(t, kind, ee.Kind)
	assert.Equal(t, class, Classify(err))
	return ee
}

// requireConfigError asserts err is a *ConfigError naming field.
func requireConfigError(t *testing.T, err error, field string) *ConfigError {
	t.Helper()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, field, ce.Field, "config error: %v", err)
	assert.True(t, IsConfigError(err))
	return ce
}

// seededStore opens a store with the fixture events and a seeded random
// source.
func seededStore(t *testing.T, seed int64) *store.Store {
	t.Helper()
	s := testutil.OpenStore(t, store.WithSeed(seed))
	testutil.SeedEvents(t, s)
	return s
}

func mustExecute(t *testing.T, tr Transformer) {
	t.Helper()
	require.NoError(t, tr.Execute(context.Background()))
}

func dump(t *testing.T, s *store.Store, query string) string {
	t.Helper()
	db, err := s.Handle()
	require.NoError(t, err)
	out, err := store.DumpTable(context.Background(), db, query)
	require.NoError(t, err)
	return out
}

func queryInts(t *testing.T, s *store.Store, query string, args ...any) []int64 {
	t.Helper()
	db, err := s.Handle()
	require.NoError(t, err)
	rows, err := db.QueryContext(context.Background(), query, args...)
	require.NoError(t, err)
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}
