package transformer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fastsim/internal/store"
)

// Smearing1D is the resolution model of one coordinate: three Gaussians
// sharing the offset Mu, with fractions F1, F2 and 1-F1-F2.
type Smearing1D struct {
	Mu, F1, F2             float64
	Sigma1, Sigma2, Sigma3 float64
}

// Smearing is the resolution model of the three coordinates.
type Smearing struct {
	X, Y, Z Smearing1D
}

func (s Smearing1D) validate(coord string) error {
	if s.F1 < 0 || s.F2 < 0 || s.F1+s.F2 > 1 {
		return fmt.Errorf("coordinate %s: fractions f1=%g f2=%g out of range", coord, s.F1, s.F2)
	}
	if s.Sigma1 < 0 || s.Sigma2 < 0 || s.Sigma3 < 0 {
		return fmt.Errorf("coordinate %s: negative sigma", coord)
	}
	return nil
}

// LoadSmearing reads a parametrization from the SQLite file at path. The
// table holds one row per (condition, coord) with columns
// mu, f1, f2, sigma1, sigma2, sigma3; coord is matched case-insensitively.
func LoadSmearing(ctx context.Context, path, table, condition string) (Smearing, error) {
	if !validIdent(table) {
		return Smearing{}, fmt.Errorf("%q is not a valid table name", table)
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return Smearing{}, fmt.Errorf("open parametrization: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(`
		SELECT mu, f1, f2, sigma1, sigma2, sigma3
		FROM %s
		WHERE condition = ? AND coord = ? COLLATE NOCASE
	`, table)

	var out Smearing
	for _, c := range []struct {
		name string
		dst  *Smearing1D
	}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}} {
		d := c.dst
		err := db.QueryRowContext(ctx, query, condition, c.name).
			Scan(&d.Mu, &d.F1, &d.F2, &d.Sigma1, &d.Sigma2, &d.Sigma3)
		if errors.Is(err, sql.ErrNoRows) {
			return Smearing{}, fmt.Errorf("no parametrization for condition %q coordinate %s", condition, c.name)
		}
		if err != nil {
			return Smearing{}, fmt.Errorf("load parametrization: %w", err)
		}
	}
	return out, nil
}

// VertexReconstructionConfig configures NewVertexReconstruction. When Path
// is set the parametrization is loaded from Table in that file for
// Condition; otherwise Parametrization is used as given.
type VertexReconstructionConfig struct {
	Parametrization Smearing
	Path            string
	Table           string
	Condition       string
}

// VertexReconstructionStage smears every primary generator vertex that has
// no MCVertex yet and records the result, with the sigma drawn for each
// coordinate, in MCVertices. It draws from the store's random source.
type VertexReconstructionStage struct {
	base
	param Smearing
}

// NewVertexReconstruction builds a vertex reconstruction stage, loading the
// parametrization eagerly.
func NewVertexReconstruction(s *store.Store, cfg VertexReconstructionConfig, opts ...Option) (*VertexReconstructionStage, error) {
	if err := checkStore(VertexReconstruction, s); err != nil {
		return nil, err
	}

	param := cfg.Parametrization
	if cfg.Path != "" {
		if err := checkTable(VertexReconstruction, "table", cfg.Table); err != nil {
			return nil, err
		}
		if cfg.Condition == "" {
			return nil, configErr(VertexReconstruction, "condition", "condition is empty")
		}
		loaded, err := LoadSmearing(context.Background(), cfg.Path, cfg.Table, cfg.Condition)
		if err != nil {
			return nil, &ConfigError{
				Kind:    VertexReconstruction,
				Field:   "path",
				Message: fmt.Sprintf("cannot load parametrization from %q", cfg.Path),
				Err:     err,
			}
		}
		param = loaded
	}

	for _, c := range []struct {
		name string
		s    Smearing1D
	}{{"x", param.X}, {"y", param.Y}, {"z", param.Z}} {
		if err := c.s.validate(c.name); err != nil {
			return nil, &ConfigError{Kind: VertexReconstruction, Field: "parametrization", Message: "invalid", Err: err}
		}
	}

	v := &VertexReconstructionStage{param: param}
	v.init(VertexReconstruction, s, applyOptions(opts))
	return v, nil
}

// Parametrization returns the resolution model in use.
func (v *VertexReconstructionStage) Parametrization() Smearing { return v.param }

type genVertex struct {
	id, event, status int64
	t, x, y, z        sql.NullFloat64
}

// smear draws one reconstructed coordinate and the sigma used for it.
func smear(r *store.Random, truth float64, p Smearing1D) (value, sigma float64, err error) {
	u, err := r.Uniform()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case u < p.F1:
		sigma = p.Sigma1
	case u < p.F1+p.F2:
		sigma = p.Sigma2
	default:
		sigma = p.Sigma3
	}
	value, err = r.Gaussian(truth+p.Mu, sigma)
	return value, sigma, err
}

func (v *VertexReconstructionStage) Execute(ctx context.Context) error {
	db, err := v.handle()
	if err != nil {
		return err
	}
	rng, err := v.store.Random()
	if err != nil {
		return v.logic("smear vertices", err)
	}

	vertices, err := v.pending(ctx, db)
	if err != nil {
		return err
	}

	err = v.inTx(ctx, db, "smear vertices", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO MCVertices (
				genvertex_id, genevent_id, status, is_primary,
				t, x, y, z, sigma_x, sigma_y, sigma_z
			) VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return v.fault("prepare insert", err)
		}
		defer stmt.Close()

		for _, gv := range vertices {
			x, sx, err := smear(rng, gv.x.Float64, v.param.X)
			if err != nil {
				return v.logic("smear vertices", err)
			}
			y, sy, err := smear(rng, gv.y.Float64, v.param.Y)
			if err != nil {
				return v.logic("smear vertices", err)
			}
			z, sz, err := smear(rng, gv.z.Float64, v.param.Z)
			if err != nil {
				return v.logic("smear vertices", err)
			}
			if _, err := stmt.ExecContext(ctx, gv.id, gv.event, gv.status, gv.t, x, y, z, sx, sy, sz); err != nil {
				return v.fault("insert vertex", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.logger.Debug("primary vertices reconstructed", "count", len(vertices))
	return nil
}

// pending lists primary generator vertices without a reconstructed twin.
func (v *VertexReconstructionStage) pending(ctx context.Context, db *sql.DB) ([]genVertex, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT gv.genvertex_id, gv.genevent_id, COALESCE(gv.status, 0), gv.t, gv.x, gv.y, gv.z
		FROM GenVertices AS gv
		WHERE gv.is_primary = 1
			AND NOT EXISTS (
				SELECT 1 FROM MCVertices AS mcv WHERE mcv.genvertex_id = gv.genvertex_id
			)
		ORDER BY gv.genvertex_id
	`)
	if err != nil {
		return nil, v.fault("query primary vertices", err)
	}
	defer rows.Close()

	var out []genVertex
	for rows.Next() {
		var gv genVertex
		if err := rows.Scan(&gv.id, &gv.event, &gv.status, &gv.t, &gv.x, &gv.y, &gv.z); err != nil {
			return nil, v.fault("scan primary vertices", err)
		}
		out = append(out, gv)
	}
	if err := rows.Err(); err != nil {
		return nil, v.fault("query primary vertices", err)
	}
	return out, nil
}
