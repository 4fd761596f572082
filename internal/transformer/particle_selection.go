package transformer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fastsim/internal/store"
)

// Generator status codes.
const (
	StatusStableInProdGen    = 1
	StatusDecayedByDecayGen  = 777
	StatusDecayedAndProduced = 888
	StatusSignalInLabFrame   = 889
	StatusStableInDecayGen   = 999

	DefaultSignalStatus = StatusSignalInLabFrame
)

const (
	maxQuarkAbsPID  = 8
	minLeptonAbsPID = 11
	maxLeptonAbsPID = 18
)

// DefaultRetainedStatus lists generator statuses always retained.
var DefaultRetainedStatus = []int64{
	StatusStableInProdGen,
	StatusDecayedByDecayGen,
	StatusDecayedAndProduced,
	StatusSignalInLabFrame,
	StatusStableInDecayGen,
}

// DefaultRetainedAbsPID lists |pid| values always retained.
var DefaultRetainedAbsPID = []int64{
	// Standard model
	6, 22, 23, 24, 25, 32, 33, 34, 35, 36, 37, 102,
	// Strange mesons
	130, 310, 311, 321,
	// Charm mesons
	411, 421, 413, 423, 415, 425, 431, 435,
	// Beauty mesons
	511, 521, 513, 523, 515, 525, 531, 535, 541, 545,
	// Charmonium
	441, 10441, 100441, 443, 10443, 20443, 100443, 30443, 9000443, 9010443,
	9020443, 445, 10445,
	// Bottomonium
	551, 10551, 100551, 110551, 200551, 210551, 553, 10553, 20553, 30553,
	100553, 110553, 120553, 130553, 200553, 210553, 220553, 300553,
	9000553, 9010553, 555, 10555, 20555, 100555, 110555, 120555, 200555,
	557, 100557,
	// Light baryons
	2212,
	// Strange baryons
	3122, 3222, 3212, 3224, 3214, 3114, 3322, 3312, 3324, 3314, 3334,
	// Charm baryons
	4122, 4222, 4212, 4112, 4224, 4214, 4114, 4232, 4132, 4322, 4312, 4324,
	4314, 4332, 4334, 4412, 4422, 4414, 4424, 4432, 4434, 4444,
	// Beauty baryons
	5122, 5112, 5212, 5222, 5114, 5214, 5224, 5132, 5232, 5312, 5322,
	5314, 5324, 5332, 5334, 5142, 5242, 5412, 5422, 5414, 5424, 5342, 5432,
	5442, 5444, 5512, 5522, 5514, 5524, 5532, 5534, 5542, 5544, 5554,
}

// ParticleSelectionConfig configures NewParticleSelection. Nil lists select
// the defaults; a zero SignalStatus selects DefaultSignalStatus.
type ParticleSelectionConfig struct {
	RetainedStatus []int64
	RetainedAbsPID []int64
	SignalStatus   int64
}

// ParticleSelectionStage copies the generator particle tree into
// MCParticles/MCVertices, dropping particles that are not retained and
// reattaching their daughters to the nearest retained ancestor vertex.
//
// Roots are the particles produced at primary generator vertices that have
// a reconstructed primary MCVertex. The walk runs in one transaction and
// visits each generator particle at most once.
type ParticleSelectionStage struct {
	base
	status map[int64]bool
	abspid map[int64]bool
	signal int64
}

// NewParticleSelection builds a particle selection stage.
func NewParticleSelection(s *store.Store, cfg ParticleSelectionConfig, opts ...Option) (*ParticleSelectionStage, error) {
	if err := checkStore(ParticleSelection, s); err != nil {
		return nil, err
	}
	if cfg.RetainedStatus == nil {
		cfg.RetainedStatus = DefaultRetainedStatus
	}
	if cfg.RetainedAbsPID == nil {
		cfg.RetainedAbsPID = DefaultRetainedAbsPID
	}
	if cfg.SignalStatus == 0 {
		cfg.SignalStatus = DefaultSignalStatus
	}
	for _, pid := range cfg.RetainedAbsPID {
		if pid < 0 {
			return nil, configErr(ParticleSelection, "retained_abspid", "negative value %d", pid)
		}
	}

	p := &ParticleSelectionStage{
		status: toSet(cfg.RetainedStatus),
		abspid: toSet(cfg.RetainedAbsPID),
		signal: cfg.SignalStatus,
	}
	p.init(ParticleSelection, s, applyOptions(opts))
	return p, nil
}

func toSet(values []int64) map[int64]bool {
	set := make(map[int64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// keep decides whether a generator particle is copied.
func (p *ParticleSelectionStage) keep(status, pid int64) bool {
	abspid := pid
	if abspid < 0 {
		abspid = -abspid
	}
	switch {
	case p.status[status]:
		return true
	case p.abspid[abspid]:
		return true
	case abspid <= maxQuarkAbsPID:
		return false
	case abspid >= minLeptonAbsPID && abspid <= maxLeptonAbsPID:
		return true
	default:
		return false
	}
}

type root struct {
	particle int64
	vertex   int64
}

func (p *ParticleSelectionStage) Execute(ctx context.Context) error {
	db, err := p.handle()
	if err != nil {
		return err
	}

	var roots []root
	var kept int
	err = p.inTx(ctx, db, "select particles", func(tx *sql.Tx) error {
		var qerr error
		roots, qerr = p.roots(ctx, tx)
		if qerr != nil {
			return qerr
		}
		w := &walk{stage: p, tx: tx, visited: make(map[int64]bool)}
		for _, r := range roots {
			if err := w.visit(ctx, r.particle, r.vertex); err != nil {
				return err
			}
		}
		kept = w.kept
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Debug("particle selection complete", "roots", len(roots), "kept", kept)
	return nil
}

func (p *ParticleSelectionStage) roots(ctx context.Context, tx *sql.Tx) ([]root, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT p.genparticle_id, mcv.mcvertex_id
		FROM GenParticles AS p
		INNER JOIN GenVertices AS v ON v.genvertex_id = p.production_vertex
		INNER JOIN MCVertices AS mcv ON mcv.genvertex_id = v.genvertex_id
		WHERE v.is_primary = 1 AND mcv.is_primary = 1
		ORDER BY p.genparticle_id
	`)
	if err != nil {
		return nil, p.fault("query roots", err)
	}
	defer rows.Close()

	var out []root
	for rows.Next() {
		var r root
		if err := rows.Scan(&r.particle, &r.vertex); err != nil {
			return nil, p.fault("scan roots", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, p.fault("query roots", err)
	}
	return out, nil
}

// walk is the state of one depth-first traversal of the particle DAG.
type walk struct {
	stage   *ParticleSelectionStage
	tx      *sql.Tx
	visited map[int64]bool
	kept    int
}

func (w *walk) visit(ctx context.Context, id, prodVertex int64) error {
	if w.visited[id] {
		return nil
	}
	w.visited[id] = true
	p := w.stage

	var (
		status, pid     int64
		hasProd, hasEnd bool
	)
	err := w.tx.QueryRowContext(ctx, `
		SELECT status, pid, production_vertex IS NOT NULL, end_vertex IS NOT NULL
		FROM GenParticles WHERE genparticle_id = ?
	`, id).Scan(&status, &pid, &hasProd, &hasEnd)
	if errors.Is(err, sql.ErrNoRows) {
		p.logger.Debug("particle vanished during walk", "genparticle_id", id)
		return nil
	}
	if err != nil {
		return p.fault("load particle", err)
	}

	kept := p.keep(status, pid)
	endVertex := prodVertex
	if kept && hasEnd {
		endVertex, err = w.endVertex(ctx, id)
		if err != nil {
			return err
		}
	}

	var daughters []int64
	if hasEnd {
		daughters, err = w.daughters(ctx, id)
		if err != nil {
			return err
		}
	}
	for _, d := range daughters {
		if err := w.visit(ctx, d, endVertex); err != nil {
			return err
		}
	}

	if !kept || !hasProd {
		return nil
	}

	var end any
	if hasEnd {
		end = endVertex
	}
	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO MCParticles (
			genparticle_id, genevent_id, pid, pe, px, py, pz, m,
			is_signal, production_vertex, end_vertex
		)
		SELECT genparticle_id, genevent_id, pid, pe, px, py, pz, m,
			status = ?, ?, ?
		FROM GenParticles WHERE genparticle_id = ?
	`, p.signal, prodVertex, end, id)
	if err != nil {
		return p.fault("insert particle", err)
	}
	w.kept++
	return nil
}

func (w *walk) daughters(ctx context.Context, id int64) ([]int64, error) {
	rows, err := w.tx.QueryContext(ctx, `
		SELECT daughter.genparticle_id
		FROM GenParticles AS mother
		INNER JOIN GenParticles AS daughter
			ON mother.end_vertex = daughter.production_vertex
		WHERE mother.genparticle_id = ?
		ORDER BY daughter.genparticle_id
	`, id)
	if err != nil {
		return nil, w.stage.fault("query daughters", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, w.stage.fault("scan daughters", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, w.stage.fault("query daughters", err)
	}
	return out, nil
}

// endVertex returns the MCVertex mirroring the particle's generator end
// vertex, creating it if needed.
func (w *walk) endVertex(ctx context.Context, id int64) (int64, error) {
	_, err := w.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO MCVertices
			(genvertex_id, genevent_id, status, is_primary, t, x, y, z)
		SELECT gv.genvertex_id, gv.genevent_id, gv.status, gv.is_primary,
			gv.t, gv.x, gv.y, gv.z
		FROM GenParticles AS gp
		INNER JOIN GenVertices AS gv ON gp.end_vertex = gv.genvertex_id
		WHERE gp.genparticle_id = ? AND gv.is_primary = 0
	`, id)
	if err != nil {
		return 0, w.stage.fault("insert end vertex", err)
	}

	var mcv int64
	err = w.tx.QueryRowContext(ctx, `
		SELECT mcv.mcvertex_id
		FROM GenParticles AS gp
		INNER JOIN MCVertices AS mcv ON gp.end_vertex = mcv.genvertex_id
		WHERE gp.genparticle_id = ?
	`, id).Scan(&mcv)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, w.stage.logic("insert end vertex",
			fmt.Errorf("no MCVertex for end vertex of particle %d", id))
	}
	if err != nil {
		return 0, w.stage.fault("load end vertex", err)
	}
	return mcv, nil
}
