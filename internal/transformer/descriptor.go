package transformer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/fastsim/internal/store"
)

// Descriptor is the flat string form of a stage configuration. List-valued
// fields (outputs, references, columns, retained_status, retained_abspid)
// are joined with ListDelimiter.
//
// Recognized keys per kind:
//
//	particle_selection     retained_status, retained_abspid, signal_status
//	vertex_finder          signal_status
//	vertex_reconstruction  path, table, condition
//	plugin                 library, function, query, output_table, outputs, references, persistent
//	generative_plugin      the plugin keys and n_random
//	temporary_view         output_table, columns, query, persistent
//	store_editor           statements
//	store_cleaner          (none)
//	connection_refresh     (none)
type Descriptor map[string]string

var descriptorKeys = map[Kind][]string{
	ParticleSelection:                {"retained_status", "retained_abspid", "signal_status"},
	VertexFinder:                     {"signal_status"},
	VertexReconstruction:             {"path", "table", "condition"},
	ExternalFunctionPlugin:           {"library", "function", "query", "output_table", "outputs", "references", "persistent"},
	StochasticExternalFunctionPlugin: {"library", "function", "query", "output_table", "outputs", "references", "persistent", "n_random"},
	TemporaryView:                    {"output_table", "columns", "query", "persistent"},
	StoreEditor:                      {"statements"},
	StoreCleaner:                     {},
	ConnectionRefresh:                {},
}

// New builds a stage of the given kind from its descriptor.
func New(kind Kind, s *store.Store, d Descriptor, opts ...Option) (Transformer, error) {
	allowed, ok := descriptorKeys[kind]
	if !ok {
		return nil, configErr(kind, "kind", "unknown transformer kind")
	}
	if err := d.checkKeys(kind, allowed); err != nil {
		return nil, err
	}

	t, err := d.build(kind, s, opts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d Descriptor) build(kind Kind, s *store.Store, opts []Option) (Transformer, error) {
	switch kind {
	case ParticleSelection:
		status, err := d.integers(kind, "retained_status")
		if err != nil {
			return nil, err
		}
		abspid, err := d.integers(kind, "retained_abspid")
		if err != nil {
			return nil, err
		}
		signal, err := d.integer(kind, "signal_status")
		if err != nil {
			return nil, err
		}
		st, err := NewParticleSelection(s, ParticleSelectionConfig{
			RetainedStatus: status,
			RetainedAbsPID: abspid,
			SignalStatus:   signal,
		}, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case VertexFinder:
		signal, err := d.integer(kind, "signal_status")
		if err != nil {
			return nil, err
		}
		st, err := NewVertexFinder(s, VertexFinderConfig{SignalStatus: signal}, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case VertexReconstruction:
		if d["path"] == "" {
			return nil, configErr(kind, "path", "parametrization path is empty")
		}
		st, err := NewVertexReconstruction(s, VertexReconstructionConfig{
			Path:      d["path"],
			Table:     d["table"],
			Condition: d["condition"],
		}, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case ExternalFunctionPlugin, StochasticExternalFunctionPlugin:
		persistent, err := d.boolean(kind, "persistent")
		if err != nil {
			return nil, err
		}
		cfg := PluginConfig{
			Library:     d["library"],
			Function:    d["function"],
			Query:       d["query"],
			OutputTable: d["output_table"],
			Outputs:     SplitList(d["outputs"]),
			Persistent:  persistent,
		}
		if refs, ok := d["references"]; ok {
			cfg.References = SplitList(refs)
			if cfg.References == nil {
				cfg.References = []string{}
			}
		}
		var st *PluginStage
		if kind == ExternalFunctionPlugin {
			st, err = NewPlugin(s, cfg, opts...)
		} else {
			var n int64
			if n, err = d.integer(kind, "n_random"); err != nil {
				return nil, err
			}
			st, err = NewGenerativePlugin(s, GenerativePluginConfig{PluginConfig: cfg, NRandom: int(n)}, opts...)
		}
		if err != nil {
			return nil, err
		}
		return st, nil

	case TemporaryView:
		persistent, err := d.boolean(kind, "persistent")
		if err != nil {
			return nil, err
		}
		var queries []string
		if q := d["query"]; q != "" {
			queries = []string{q}
		}
		st, err := NewTemporaryView(s, TemporaryViewConfig{
			OutputTable: d["output_table"],
			Columns:     SplitList(d["columns"]),
			Queries:     queries,
			Persistent:  persistent,
		}, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case StoreEditor:
		var stmts []string
		if script := d["statements"]; script != "" {
			stmts = []string{script}
		}
		st, err := NewStoreEditor(s, stmts, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case StoreCleaner:
		st, err := NewStoreCleaner(s, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil

	case ConnectionRefresh:
		st, err := NewConnectionRefresh(s, opts...)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, configErr(kind, "kind", "unknown transformer kind")
}

func (d Descriptor) checkKeys(kind Kind, allowed []string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var unknown []string
	for k := range d {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return configErr(kind, "descriptor", "unknown keys %s", strings.Join(unknown, ", "))
	}
	return nil
}

func (d Descriptor) integer(kind Kind, key string) (int64, error) {
	v := strings.TrimSpace(d[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, configErr(kind, key, "%q is not an integer", v)
	}
	return n, nil
}

func (d Descriptor) integers(kind Kind, key string) ([]int64, error) {
	parts := SplitList(d[key])
	if parts == nil {
		return nil, nil
	}
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, configErr(kind, key, "element %d: %q is not an integer", i, p)
		}
		out[i] = n
	}
	return out, nil
}

func (d Descriptor) boolean(kind Kind, key string) (bool, error) {
	v := strings.TrimSpace(d[key])
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, configErr(kind, key, "%q is not a boolean", v)
	}
	return b, nil
}

// String renders the descriptor with sorted keys, for logs.
func (d Descriptor) String() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, d[k])
	}
	return strings.Join(parts, " ")
}
