package transformer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/store"
)

// reconstructedStore runs the vertex stages so particle selection has roots.
func reconstructedStore(t *testing.T) *store.Store {
	t.Helper()
	s := seededStore(t, 1)
	findPrimaries(t, s)
	vr, err := NewVertexReconstruction(s, VertexReconstructionConfig{
		Parametrization: Smearing{X: offsetOnly(0), Y: offsetOnly(0), Z: offsetOnly(0)},
	})
	require.NoError(t, err)
	mustExecute(t, vr)
	return s
}

type mcParticle struct {
	gen, prod int64
	end       *int64
	signal    bool
}

func mcParticles(t *testing.T, s *store.Store) []mcParticle {
	t.Helper()
	db, err := s.Handle()
	require.NoError(t, err)
	rows, err := db.QueryContext(context.Background(), `
		SELECT p.genparticle_id, pv.genvertex_id, ev.genvertex_id, p.is_signal
		FROM MCParticles AS p
		INNER JOIN MCVertices AS pv ON pv.mcvertex_id = p.production_vertex
		LEFT JOIN MCVertices AS ev ON ev.mcvertex_id = p.end_vertex
		ORDER BY p.genparticle_id
	`)
	require.NoError(t, err)
	defer rows.Close()

	var out []mcParticle
	for rows.Next() {
		var p mcParticle
		require.NoError(t, rows.Scan(&p.gen, &p.prod, &p.end, &p.signal))
		out = append(out, p)
	}
	require.NoError(t, rows.Err())
	return out
}

func ptr(v int64) *int64 { return &v }

func TestParticleSelection_DefaultLists(t *testing.T) {
	s := reconstructedStore(t)
	ps, err := NewParticleSelection(s, ParticleSelectionConfig{})
	require.NoError(t, err)
	mustExecute(t, ps)

	// Production and end vertices are given by generator vertex id.
	// The d quark (p4) is dropped and the pion reattaches to v1.
	// The electron (p10) is not produced at a primary vertex.
	want := []mcParticle{
		{gen: 1, prod: 1, end: ptr(2)},
		{gen: 2, prod: 2},
		{gen: 3, prod: 2},
		{gen: 5, prod: 1},
		{gen: 11, prod: 11, signal: true},
	}
	assert.Equal(t, want, mcParticles(t, s))

	vertices := queryInts(t, s, "SELECT genvertex_id FROM MCVertices ORDER BY genvertex_id")
	assert.Equal(t, []int64{1, 2, 11}, vertices, "v3 ends a dropped particle and is not mirrored")
}

func TestParticleSelection_EmptyListsKeepLeptonsOnly(t *testing.T) {
	s := reconstructedStore(t)
	ps, err := NewParticleSelection(s, ParticleSelectionConfig{
		RetainedStatus: []int64{},
		RetainedAbsPID: []int64{},
	})
	require.NoError(t, err)
	mustExecute(t, ps)

	want := []mcParticle{
		{gen: 2, prod: 1},
		{gen: 3, prod: 1},
	}
	assert.Equal(t, want, mcParticles(t, s))
}

func TestParticleSelection_NoReconstructedVertices(t *testing.T) {
	s := seededStore(t, 1)
	findPrimaries(t, s)

	ps, err := NewParticleSelection(s, ParticleSelectionConfig{})
	require.NoError(t, err)
	mustExecute(t, ps)

	assert.Empty(t, mcParticles(t, s))
}

func TestParticleSelection_Keep(t *testing.T) {
	ps := &ParticleSelectionStage{
		status: toSet([]int64{StatusStableInProdGen}),
		abspid: toSet([]int64{22, 511}),
	}

	tests := []struct {
		name   string
		status int64
		pid    int64
		want   bool
	}{
		{"retained status", 1, 2101, true},
		{"retained abspid", 2, 22, true},
		{"retained negative pid", 2, -511, true},
		{"quark", 2, 3, false},
		{"antiquark", 2, -5, false},
		{"charged lepton", 2, 13, true},
		{"neutrino", 2, -16, true},
		{"other hadron", 2, 211, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ps.keep(tt.status, tt.pid))
		})
	}
}
