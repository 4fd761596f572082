package transformer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/testutil"
)

func stableView(t *testing.T, s *store.Store, persistent bool) *TemporaryViewStage {
	t.Helper()
	v, err := NewTemporaryView(s, TemporaryViewConfig{
		OutputTable: "stable",
		Columns:     []string{"genparticle_id", "pid"},
		Queries:     []string{"SELECT genparticle_id, pid FROM GenParticles WHERE status = 1"},
		Persistent:  persistent,
	})
	require.NoError(t, err)
	return v
}

func TestTemporaryView_MaterializesQuery(t *testing.T) {
	s := seededStore(t, 1)
	v := stableView(t, s, false)

	mustExecute(t, v)
	mustExecute(t, v)

	ids := queryInts(t, s, "SELECT genparticle_id FROM stable ORDER BY genparticle_id")
	assert.Equal(t, []int64{2, 3, 5, 10}, ids, "rerun replaces content")
}

func TestTemporaryView_MultipleQueriesAppend(t *testing.T) {
	s := seededStore(t, 1)
	v, err := NewTemporaryView(s, TemporaryViewConfig{
		OutputTable: "picked",
		Columns:     []string{"id"},
		Queries: []string{
			"SELECT genparticle_id FROM GenParticles WHERE pid = 23",
			"SELECT genvertex_id FROM GenVertices WHERE genevent_id = 2",
		},
	})
	require.NoError(t, err)
	mustExecute(t, v)

	assert.Equal(t, []int64{1, 10, 11}, queryInts(t, s, "SELECT id FROM picked ORDER BY id"))
}

func TestTemporaryView_PersistenceVisibleToScopedConnections(t *testing.T) {
	count := func(t *testing.T, s *store.Store) (n int64, err error) {
		err = s.WithConnection(context.Background(), func(db *sql.DB) error {
			return db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM stable").Scan(&n)
		})
		return n, err
	}

	t.Run("temporary", func(t *testing.T) {
		s := seededStore(t, 1)
		mustExecute(t, stableView(t, s, false))
		_, err := count(t, s)
		assert.Error(t, err, "temporary tables live on the native connection only")
	})

	t.Run("persistent", func(t *testing.T) {
		s := seededStore(t, 1)
		mustExecute(t, stableView(t, s, true))
		n, err := count(t, s)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})
}

func TestTemporaryView_BadQueryIsStorageFault(t *testing.T) {
	s := seededStore(t, 1)
	v, err := NewTemporaryView(s, TemporaryViewConfig{
		OutputTable: "broken",
		Columns:     []string{"a"},
		Queries:     []string{"SELECT a FROM NoSuchTable"},
	})
	require.NoError(t, err)

	requireFault(t, v.Execute(context.Background()), Storage, TemporaryView)
}

func TestStoreEditor_CommitsAllStatements(t *testing.T) {
	s := seededStore(t, 1)
	e, err := NewStoreEditor(s, []string{
		"UPDATE GenParticles SET status = 3 WHERE pid = 23",
		"DELETE FROM GenParticles WHERE genevent_id = 2",
	})
	require.NoError(t, err)
	mustExecute(t, e)

	assert.Equal(t, int64(5), testutil.QueryInt(t, s, "SELECT COUNT(*) FROM GenParticles"))
	assert.Equal(t, int64(3), testutil.QueryInt(t, s, "SELECT status FROM GenParticles WHERE genparticle_id = 1"))
}

func TestStoreEditor_RollsBackOnFailure(t *testing.T) {
	s := seededStore(t, 1)
	e, err := NewStoreEditor(s, []string{
		"INSERT INTO GenEvents (genevent_id) VALUES (100)",
		"INSERT INTO NoSuchTable VALUES (1)",
	})
	require.NoError(t, err)

	requireFault(t, e.Execute(context.Background()), Storage, StoreEditor)
	assert.Equal(t, int64(0), testutil.QueryInt(t, s, "SELECT COUNT(*) FROM GenEvents WHERE genevent_id = 100"))
}

func TestStoreEditor_ScriptWithSeveralStatements(t *testing.T) {
	s := seededStore(t, 1)
	e, err := NewStoreEditor(s, []string{`
		CREATE TABLE Tags (genparticle_id INTEGER, tag TEXT);
		INSERT INTO Tags SELECT genparticle_id, 'muon' FROM GenParticles WHERE abs(pid) = 13;
	`})
	require.NoError(t, err)
	mustExecute(t, e)

	assert.Equal(t, int64(2), testutil.QueryInt(t, s, "SELECT COUNT(*) FROM Tags"))
}

func schemaOf(t *testing.T, s *store.Store) string {
	t.Helper()
	return dump(t, s, `
		SELECT type, name, sql FROM sqlite_master
		UNION ALL
		SELECT type, name, sql FROM sqlite_temp_master
		ORDER BY 1, 2`)
}

func TestStoreCleaner_EmptiesEveryTable(t *testing.T) {
	s := seededStore(t, 1)
	testutil.Exec(t, s,
		"CREATE TEMPORARY TABLE scratch (a INTEGER)",
		"INSERT INTO scratch VALUES (1), (2)",
		`CREATE TABLE "Odd Name" (a INTEGER)`,
		`INSERT INTO "Odd Name" VALUES (1)`,
	)
	before := schemaOf(t, s)

	c, err := NewStoreCleaner(s)
	require.NoError(t, err)
	mustExecute(t, c)

	db, err := s.Handle()
	require.NoError(t, err)
	tables, err := store.Tables(context.Background(), db)
	require.NoError(t, err)
	require.Contains(t, tables, "scratch")
	for _, table := range tables {
		n, err := store.CountRows(context.Background(), db, table)
		require.NoError(t, err)
		assert.Zero(t, n, "table %s", table)
	}
	assert.Equal(t, before, schemaOf(t, s))
}

func TestStoreCleaner_TwiceOnEmptyStoreKeepsSchema(t *testing.T) {
	s := testutil.OpenStore(t)
	before := schemaOf(t, s)

	c, err := NewStoreCleaner(s)
	require.NoError(t, err)

	mustExecute(t, c)
	assert.Equal(t, before, schemaOf(t, s))
	mustExecute(t, c)
	assert.Equal(t, before, schemaOf(t, s))
}

func TestConnectionRefresh_DropsTemporaryState(t *testing.T) {
	s := seededStore(t, 1)
	testutil.Exec(t, s, "CREATE TEMPORARY TABLE scratch (a INTEGER)")

	r, err := NewConnectionRefresh(s)
	require.NoError(t, err)
	mustExecute(t, r)

	assert.Equal(t, int64(0), testutil.QueryInt(t, s,
		"SELECT COUNT(*) FROM sqlite_temp_master WHERE name = 'scratch'"))
	assert.Equal(t, int64(7), testutil.QueryInt(t, s, "SELECT COUNT(*) FROM GenParticles"))
}

func TestConnectionRefresh_SeesExternalWrites(t *testing.T) {
	s := seededStore(t, 1)
	err := s.WithConnection(context.Background(), func(db *sql.DB) error {
		_, err := db.ExecContext(context.Background(), "INSERT INTO GenEvents (genevent_id) VALUES (3)")
		return err
	})
	require.NoError(t, err)

	r, err := NewConnectionRefresh(s)
	require.NoError(t, err)
	mustExecute(t, r)

	assert.Equal(t, int64(3), testutil.QueryInt(t, s, "SELECT COUNT(*) FROM GenEvents"))
}

func TestConnectionRefresh_ExclusiveMemoryStore(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	r, err := NewConnectionRefresh(s)
	require.NoError(t, err)

	err = r.Execute(context.Background())
	assert.ErrorIs(t, err, store.ErrConnectionUnavailable)
	requireFault(t, err, Logic, ConnectionRefresh)
}
