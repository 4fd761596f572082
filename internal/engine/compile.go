package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/fastsim/internal/config"
	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/transformer"
)

// CallbackFactory builds the callback of a callback stage from its
// configuration.
type CallbackFactory func(stage config.Stage) (Callback, error)

// Callbacks maps the callback names usable in pipeline files to their
// factories.
type Callbacks map[string]CallbackFactory

// Names returns the registered callback names in sorted order.
func (c Callbacks) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompileError reports the stage of a pipeline file that could not be built.
type CompileError struct {
	Position int
	Name     string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Position, e.Name, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile builds the stages of cfg against s. Native stages go through
// transformer.New; callback stages are looked up in callbacks. On error the
// stages built so far are closed.
func Compile(cfg *config.Pipeline, s *store.Store, callbacks Callbacks, opts ...transformer.Option) ([]Stage, error) {
	stages := make([]Stage, 0, len(cfg.Stages))
	for i, sc := range cfg.Stages {
		st, err := compileStage(sc, s, callbacks, opts)
		if err != nil {
			_ = CloseStages(stages)
			return nil, &CompileError{Position: i, Name: sc.Name, Err: err}
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func compileStage(sc config.Stage, s *store.Store, callbacks Callbacks, opts []transformer.Option) (Stage, error) {
	if sc.IsCallback() {
		factory, ok := callbacks[sc.Callback]
		if !ok {
			return Stage{}, fmt.Errorf("unknown callback %q (known: %s)", sc.Callback, strings.Join(callbacks.Names(), ", "))
		}
		fn, err := factory(sc)
		if err != nil {
			return Stage{}, err
		}
		return Call(sc.Name, s, fn), nil
	}

	kind, err := transformer.ParseKind(sc.Kind)
	if err != nil {
		return Stage{}, err
	}
	t, err := transformer.New(kind, s, Descriptor(sc), opts...)
	if err != nil {
		return Stage{}, err
	}
	return Native(t), nil
}

// Descriptor flattens a native stage configuration into the descriptor
// form accepted by transformer.New. Zero values are omitted, except for
// references, where an empty list is kept because it means "no references".
func Descriptor(sc config.Stage) transformer.Descriptor {
	d := transformer.Descriptor{}
	set := func(key, value string) {
		if value != "" {
			d[key] = value
		}
	}
	ints := func(key string, values []int64) {
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = strconv.FormatInt(v, 10)
		}
		set(key, transformer.JoinList(parts))
	}

	ints("retained_status", sc.RetainedStatus)
	ints("retained_abspid", sc.RetainedAbsPID)
	if sc.SignalStatus != 0 {
		set("signal_status", strconv.FormatInt(sc.SignalStatus, 10))
	}
	set("path", sc.Path)
	set("table", sc.Table)
	set("condition", sc.Condition)
	set("library", sc.Library)
	set("function", sc.Function)
	set("query", sc.Query)
	set("output_table", sc.OutputTable)
	set("outputs", transformer.JoinList(sc.Outputs))
	if sc.References != nil {
		d["references"] = transformer.JoinList(sc.References)
	}
	if sc.Persistent {
		d["persistent"] = "true"
	}
	if sc.NRandom != 0 {
		set("n_random", strconv.Itoa(sc.NRandom))
	}
	set("columns", transformer.JoinList(sc.Columns))
	set("statements", strings.Join(sc.Statements, ";\n"))
	return d
}
