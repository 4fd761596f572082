package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fastsim/internal/store"
)

// OpenStore opens a file-backed store in a temporary directory and closes
// it when the test ends.
func OpenStore(tb testing.TB, opts ...store.Option) *store.Store {
	tb.Helper()
	s, err := store.Open(filepath.Join(tb.TempDir(), "events.db"), opts...)
	if err != nil {
		tb.Fatalf("store.Open() failed: %v", err)
	}
	tb.Cleanup(func() {
		if !s.Closed() {
			s.Close()
		}
	})
	return s
}

// Exec runs statements on the store's native handle.
func Exec(tb testing.TB, s *store.Store, stmts ...string) {
	tb.Helper()
	db, err := s.Handle()
	if err != nil {
		tb.Fatalf("Handle() failed: %v", err)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			tb.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// QueryInt returns the single integer produced by query.
func QueryInt(tb testing.TB, s *store.Store, query string, args ...any) int64 {
	tb.Helper()
	db, err := s.Handle()
	if err != nil {
		tb.Fatalf("Handle() failed: %v", err)
	}
	var n int64
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		tb.Fatalf("query %q: %v", query, err)
	}
	return n
}

// Two generator events.
//
// Event 1 has no signal particle:
//
//	v1 --p1 (Z, pid 23)--> v2 --p2 (mu-, status 1)
//	                          \-p3 (mu+, status 1)
//	v1 --p4 (d quark)----> v3 --p5 (pi+, status 1)
//
// Event 2 carries a signal B0 (status 889) produced at v11:
//
//	v10 --p10 (e-, status 1)
//	v11 --p11 (B0, status 889)
//
// No vertex is flagged primary.
var eventRows = []string{
	`INSERT INTO GenEvents (genevent_id, hepmc_id) VALUES (1, 1), (2, 2)`,
	`INSERT INTO GenVertices (genvertex_id, genevent_id, hepmc_id, status, t, x, y, z) VALUES
		(1, 1, -1, 0, 0.0, 0.010, -0.020, 1.5),
		(2, 1, -2, 0, 0.1, 0.012, -0.018, 1.6),
		(3, 1, -3, 0, 0.2, 0.009, -0.021, 1.4),
		(10, 2, -1, 0, 0.0, -0.030, 0.040, -2.0),
		(11, 2, -2, 0, 0.0, 0.050, 0.060, 3.0)`,
	`INSERT INTO GenParticles
		(genparticle_id, genevent_id, hepmc_id, production_vertex, end_vertex, pid, status, pe, px, py, pz, m) VALUES
		(1, 1, 1, 1, 2, 23, 2, 91.2, 0.0, 0.0, 0.5, 91.19),
		(2, 1, 2, 2, NULL, 13, 1, 45.0, 10.0, 20.0, 30.0, 0.106),
		(3, 1, 3, 2, NULL, -13, 1, 46.0, -10.0, -20.0, -30.0, 0.106),
		(4, 1, 4, 1, 3, 1, 2, 5.0, 1.0, 1.0, 1.0, 0.005),
		(5, 1, 5, 3, NULL, 211, 1, 4.0, 1.0, 2.0, 3.0, 0.140),
		(10, 2, 1, 10, NULL, 11, 1, 3.0, 1.0, 1.0, 2.0, 0.000511),
		(11, 2, 2, 11, NULL, 511, 889, 10.0, 2.0, 3.0, 8.0, 5.279)`,
}

// SeedEvents inserts the fixture events described above.
func SeedEvents(tb testing.TB, s *store.Store) {
	tb.Helper()
	Exec(tb, s, eventRows...)
}

// Resolution is one row of a vertex parametrization table.
type Resolution struct {
	Condition string
	Coord     string
	Mu        float64
	F1, F2    float64
	Sigma1    float64
	Sigma2    float64
	Sigma3    float64
}

// WriteParametrization creates a SQLite file at path holding table with the
// given resolution rows.
func WriteParametrization(tb testing.TB, path, table string, rows ...Resolution) {
	tb.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		tb.Fatalf("open parametrization: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE `+table+` (
		condition TEXT NOT NULL,
		coord TEXT NOT NULL,
		mu REAL, f1 REAL, f2 REAL,
		sigma1 REAL, sigma2 REAL, sigma3 REAL
	)`)
	if err != nil {
		tb.Fatalf("create parametrization table: %v", err)
	}
	for _, r := range rows {
		_, err := db.ExecContext(ctx,
			`INSERT INTO `+table+` VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Condition, r.Coord, r.Mu, r.F1, r.F2, r.Sigma1, r.Sigma2, r.Sigma3,
		)
		if err != nil {
			tb.Fatalf("insert parametrization row: %v", err)
		}
	}
}

// UniformResolution returns x, y and z rows for condition with a single
// Gaussian of width sigma.
func UniformResolution(condition string, sigma float64) []Resolution {
	out := make([]Resolution, 0, 3)
	for _, c := range []string{"x", "y", "z"} {
		out = append(out, Resolution{
			Condition: condition, Coord: c,
			F1: 1, Sigma1: sigma, Sigma2: sigma, Sigma3: sigma,
		})
	}
	return out
}
