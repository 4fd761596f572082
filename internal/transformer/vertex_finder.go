package transformer

import (
	"context"

	"github.com/roach88/fastsim/internal/store"
)

// VertexFinderConfig configures NewVertexFinder. A zero SignalStatus
// selects DefaultSignalStatus.
type VertexFinderConfig struct {
	SignalStatus int64
}

// VertexFinderStage flags a primary generator vertex for every event that
// has none: the production vertex of the first signal particle if there is
// one, otherwise the production vertex of the particle with the lowest
// hepmc id.
type VertexFinderStage struct {
	base
	signal int64
}

// NewVertexFinder builds a vertex finder stage.
func NewVertexFinder(s *store.Store, cfg VertexFinderConfig, opts ...Option) (*VertexFinderStage, error) {
	if err := checkStore(VertexFinder, s); err != nil {
		return nil, err
	}
	if cfg.SignalStatus == 0 {
		cfg.SignalStatus = DefaultSignalStatus
	}
	v := &VertexFinderStage{signal: cfg.SignalStatus}
	v.init(VertexFinder, s, applyOptions(opts))
	return v, nil
}

const markPrimaryFromSignal = `
	WITH no_pv AS (
		SELECT genevent_id FROM GenVertices
		GROUP BY genevent_id
		HAVING SUM(is_primary) = 0
	),
	root AS (
		SELECT p.production_vertex AS vtx,
			ROW_NUMBER() OVER (PARTITION BY p.genevent_id ORDER BY p.hepmc_id) AS rn
		FROM GenParticles AS p
		INNER JOIN no_pv ON no_pv.genevent_id = p.genevent_id
		WHERE p.status = ? AND p.production_vertex IS NOT NULL
	)
	UPDATE GenVertices SET is_primary = 1
	WHERE genvertex_id IN (SELECT vtx FROM root WHERE rn = 1)
`

const markPrimaryFromHepMCID = `
	WITH no_pv AS (
		SELECT genevent_id FROM GenVertices
		GROUP BY genevent_id
		HAVING SUM(is_primary) = 0
	),
	root AS (
		SELECT p.production_vertex AS vtx,
			ROW_NUMBER() OVER (PARTITION BY p.genevent_id ORDER BY p.hepmc_id) AS rn
		FROM GenParticles AS p
		INNER JOIN no_pv ON no_pv.genevent_id = p.genevent_id
		WHERE p.production_vertex IS NOT NULL
	)
	UPDATE GenVertices SET is_primary = 1
	WHERE genvertex_id IN (SELECT vtx FROM root WHERE rn = 1)
`

func (v *VertexFinderStage) Execute(ctx context.Context) error {
	db, err := v.handle()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, markPrimaryFromSignal, v.signal)
	if err != nil {
		return v.fault("mark signal vertices", err)
	}
	fromSignal, _ := res.RowsAffected()

	res, err = db.ExecContext(ctx, markPrimaryFromHepMCID)
	if err != nil {
		return v.fault("mark first vertices", err)
	}
	fromFirst, _ := res.RowsAffected()

	v.logger.Debug("primary vertices flagged", "from_signal", fromSignal, "from_first_particle", fromFirst)
	return nil
}
