package transformer

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/fastsim/internal/plugin"
	"github.com/roach88/fastsim/internal/store"
)

// DefaultReferences is the reference column list used when none is given.
var DefaultReferences = []string{"ref_id"}

// PluginConfig configures NewPlugin.
//
// Query selects the inputs: columns named in References are copied to the
// output table unchanged, every other column is passed, in order, to the
// function as a float32 input. Outputs names the columns of the function's
// output row. The output table is dropped and recreated on every run; it is
// TEMPORARY unless Persistent is set.
type PluginConfig struct {
	Library     string
	Function    string
	Query       string
	OutputTable string
	Outputs     []string
	References  []string
	Persistent  bool
}

// GenerativePluginConfig configures NewGenerativePlugin. NRandom standard
// normal draws from the store's random source are passed to the function
// with every row.
type GenerativePluginConfig struct {
	PluginConfig
	NRandom int
}

// PluginStage evaluates an external parametrization row by row.
type PluginStage struct {
	base
	cfg     PluginConfig
	nRandom int
	fn      *plugin.Function
}

// NewPlugin builds a deterministic plugin stage. The library and symbol are
// resolved here: a missing library fails with *plugin.LoadError and a
// missing symbol with *plugin.SymbolError.
func NewPlugin(s *store.Store, cfg PluginConfig, opts ...Option) (*PluginStage, error) {
	return newPluginStage(ExternalFunctionPlugin, s, cfg, 0, opts)
}

// NewGenerativePlugin builds a stochastic plugin stage.
func NewGenerativePlugin(s *store.Store, cfg GenerativePluginConfig, opts ...Option) (*PluginStage, error) {
	if cfg.NRandom <= 0 {
		return nil, configErr(StochasticExternalFunctionPlugin, "n_random", "must be positive, got %d", cfg.NRandom)
	}
	return newPluginStage(StochasticExternalFunctionPlugin, s, cfg.PluginConfig, cfg.NRandom, opts)
}

func newPluginStage(kind Kind, s *store.Store, cfg PluginConfig, nRandom int, opts []Option) (*PluginStage, error) {
	if err := checkStore(kind, s); err != nil {
		return nil, err
	}
	if cfg.Library == "" {
		return nil, configErr(kind, "library", "library path is empty")
	}
	if cfg.Function == "" {
		return nil, configErr(kind, "function", "function name is empty")
	}
	if err := checkQuery(kind, "query", cfg.Query); err != nil {
		return nil, err
	}
	if err := checkTable(kind, "output_table", cfg.OutputTable); err != nil {
		return nil, err
	}
	if err := checkIdents(kind, "outputs", cfg.Outputs, true); err != nil {
		return nil, err
	}
	if cfg.References == nil {
		cfg.References = DefaultReferences
	}
	if err := checkIdents(kind, "references", cfg.References, false); err != nil {
		return nil, err
	}
	if err := checkIdents(kind, "columns", append(append([]string{}, cfg.References...), cfg.Outputs...), true); err != nil {
		return nil, err
	}

	set := applyOptions(opts)
	sig := plugin.Deterministic
	if kind == StochasticExternalFunctionPlugin {
		sig = plugin.Generative
	}
	fn, err := set.loader.Load(cfg.Library, cfg.Function, sig)
	if err != nil {
		return nil, err
	}

	p := &PluginStage{cfg: cfg, nRandom: nRandom, fn: fn}
	p.init(kind, s, set)
	return p, nil
}

// Close releases the library reference.
func (p *PluginStage) Close() error {
	if err := p.base.Close(); err != nil {
		return err
	}
	return p.fn.Close()
}

// Function returns the resolved parametrization.
func (p *PluginStage) Function() *plugin.Function { return p.fn }

// pluginRow is one selected input row.
type pluginRow struct {
	refs   []any
	inputs []float32
}

func (p *PluginStage) Execute(ctx context.Context) error {
	db, err := p.handle()
	if err != nil {
		return err
	}

	var rng *store.Random
	if p.nRandom > 0 {
		if rng, err = p.store.Random(); err != nil {
			return p.logic("draw random inputs", err)
		}
	}

	rows, nInputs, err := p.load(ctx, db)
	if err != nil {
		return err
	}

	err = p.inTx(ctx, db, "write outputs", func(tx *sql.Tx) error {
		if err := p.recreate(ctx, tx); err != nil {
			return err
		}

		cols := append(append([]string{}, p.cfg.References...), p.cfg.Outputs...)
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			"INSERT INTO %s.%s (%s) VALUES (%s)",
			p.schema(), p.cfg.OutputTable, columnList(cols), placeholders,
		))
		if err != nil {
			return p.fault("prepare insert", err)
		}
		defer stmt.Close()

		out := make([]float32, len(p.cfg.Outputs))
		var rnd []float32
		if p.nRandom > 0 {
			rnd = make([]float32, p.nRandom)
		}
		args := make([]any, len(cols))
		for _, r := range rows {
			if rnd != nil {
				if err := rng.NormalFloat32(rnd); err != nil {
					return p.logic("draw random inputs", err)
				}
			}
			clear(out)
			if err := p.fn.Call(out, r.inputs, rnd); err != nil {
				return p.logic("evaluate", err)
			}
			n := copy(args, r.refs)
			for i, v := range out {
				args[n+i] = float64(v)
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return p.fault("insert output", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Debug("plugin evaluated", "function", p.cfg.Function, "rows", len(rows), "inputs", nInputs)
	return nil
}

// load runs the input query and splits each row into references and inputs.
func (p *PluginStage) load(ctx context.Context, db *sql.DB) ([]pluginRow, int, error) {
	rs, err := db.QueryContext(ctx, p.cfg.Query)
	if err != nil {
		return nil, 0, p.fault("select inputs", err)
	}
	defer rs.Close()

	columns, err := rs.Columns()
	if err != nil {
		return nil, 0, p.fault("select inputs", err)
	}

	refIndex := make([]int, len(p.cfg.References))
	isRef := make(map[int]bool, len(refIndex))
	for i, ref := range p.cfg.References {
		idx := indexOf(columns, ref)
		if idx < 0 {
			return nil, 0, p.logic("select inputs", fmt.Errorf("reference column %q not in query result %v", ref, columns))
		}
		refIndex[i] = idx
		isRef[idx] = true
	}
	nInputs := len(columns) - len(isRef)
	if nInputs == 0 {
		return nil, 0, p.logic("select inputs", fmt.Errorf("query selects no input columns besides references %v", p.cfg.References))
	}

	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	var out []pluginRow
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, 0, p.fault("scan inputs", err)
		}
		row := pluginRow{
			refs:   make([]any, len(refIndex)),
			inputs: make([]float32, 0, nInputs),
		}
		for i, idx := range refIndex {
			row.refs[i] = raw[idx]
		}
		for i, v := range raw {
			if isRef[i] {
				continue
			}
			f, err := asFloat(v)
			if err != nil {
				return nil, 0, p.logic("scan inputs", fmt.Errorf("column %q: %w", columns[i], err))
			}
			row.inputs = append(row.inputs, float32(f))
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, 0, p.fault("select inputs", err)
	}
	return out, nInputs, nil
}

func (p *PluginStage) schema() string {
	if p.cfg.Persistent {
		return "main"
	}
	return "temp"
}

// recreate drops and creates the output table.
func (p *PluginStage) recreate(ctx context.Context, tx *sql.Tx) error {
	table := p.schema() + "." + p.cfg.OutputTable
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return p.fault("drop output table", err)
	}

	defs := make([]string, 0, len(p.cfg.References)+len(p.cfg.Outputs))
	defs = append(defs, p.cfg.References...)
	for _, o := range p.cfg.Outputs {
		defs = append(defs, o+" REAL")
	}
	temp := "TEMPORARY "
	if p.cfg.Persistent {
		temp = ""
	}
	create := fmt.Sprintf("CREATE %sTABLE %s (%s)", temp, p.cfg.OutputTable, columnList(defs))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return p.fault("create output table", err)
	}
	return nil
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// asFloat converts a scanned SQLite value to float64. NULL becomes NaN.
func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("non-numeric value of type %T", v)
	}
}
