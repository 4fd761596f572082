// Package config loads pipeline definitions.
//
// A pipeline file is YAML:
//
//	schema_version: v1
//	store:
//	  path: events.db
//	  seed: 42
//	stages:
//	  - name: find primaries
//	    kind: vertex_finder
//	  - name: counts
//	    kind: callback
//	    callback: row_counts
//
// The file is checked against an embedded CUE schema before it is decoded,
// so unknown keys and unknown stage kinds are rejected with their path.
// FASTSIM_STORE__PATH and FASTSIM_STORE__SEED override the store section.
package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"golang.org/x/text/unicode/norm"
	yamlv3 "gopkg.in/yaml.v3"
)

// SupportedSchema is the only accepted schema_version.
const SupportedSchema = "v1"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "FASTSIM_"

// CallbackKind is the kind of host callback stages.
const CallbackKind = "callback"

//go:embed schema.cue
var schemaCUE string

// Pipeline is a decoded pipeline file.
type Pipeline struct {
	SchemaVersion string  `koanf:"schema_version" yaml:"schema_version"`
	Store         Store   `koanf:"store" yaml:"store"`
	Stages        []Stage `koanf:"stages" yaml:"stages"`
}

// Store configures the event store.
type Store struct {
	Path string `koanf:"path" yaml:"path,omitempty"`
	Seed *int64 `koanf:"seed" yaml:"seed,omitempty"`
}

// Stage is one pipeline stage. Only the fields of its kind are set.
type Stage struct {
	Name     string `koanf:"name" yaml:"name"`
	Kind     string `koanf:"kind" yaml:"kind"`
	Callback string `koanf:"callback" yaml:"callback,omitempty"`

	RetainedStatus []int64 `koanf:"retained_status" yaml:"retained_status,omitempty"`
	RetainedAbsPID []int64 `koanf:"retained_abspid" yaml:"retained_abspid,omitempty"`
	SignalStatus   int64   `koanf:"signal_status" yaml:"signal_status,omitempty"`

	Path      string `koanf:"path" yaml:"path,omitempty"`
	Table     string `koanf:"table" yaml:"table,omitempty"`
	Condition string `koanf:"condition" yaml:"condition,omitempty"`

	Library     string   `koanf:"library" yaml:"library,omitempty"`
	Function    string   `koanf:"function" yaml:"function,omitempty"`
	Query       string   `koanf:"query" yaml:"query,omitempty"`
	OutputTable string   `koanf:"output_table" yaml:"output_table,omitempty"`
	Outputs     []string `koanf:"outputs" yaml:"outputs,omitempty"`
	References  []string `koanf:"references" yaml:"references,omitempty"`
	Persistent  bool     `koanf:"persistent" yaml:"persistent,omitempty"`
	NRandom     int      `koanf:"n_random" yaml:"n_random,omitempty"`

	Columns    []string `koanf:"columns" yaml:"columns,omitempty"`
	Statements []string `koanf:"statements" yaml:"statements,omitempty"`
}

// IsCallback reports whether the stage runs a host callback.
func (s Stage) IsCallback() bool { return s.Kind == CallbackKind }

// ValidationError reports a pipeline file that does not match the schema.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pipeline %s: %s", e.Path, strings.Join(e.Issues, "; "))
}

// Load reads, validates and decodes the pipeline file at path, then applies
// environment overrides.
func Load(path string) (*Pipeline, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", path, err)
	}

	if err := validate(path, k.Raw()); err != nil {
		return nil, err
	}

	err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if !strings.HasPrefix(key, "store__") {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var p Pipeline
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("decode pipeline %s: %w", path, err)
	}
	if err := checkNames(path, p.Stages); err != nil {
		return nil, err
	}
	return &p, nil
}

// validate unifies the raw document with #Pipeline.
func validate(path string, raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile pipeline schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Pipeline"))

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return &ValidationError{Path: path, Issues: []string{err.Error()}}
	}
	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var issues []string
		for _, e := range errors.Errors(err) {
			issues = append(issues, e.Error())
		}
		return &ValidationError{Path: path, Issues: issues}
	}
	return nil
}

// checkNames rejects duplicate stage names, which the schema cannot express.
// Names are compared in Unicode NFC form.
func checkNames(path string, stages []Stage) error {
	seen := make(map[string]int, len(stages))
	for i, s := range stages {
		name := norm.NFC.String(s.Name)
		if j, dup := seen[name]; dup {
			return &ValidationError{Path: path, Issues: []string{
				fmt.Sprintf("stages.%d: name %q already used by stages.%d", i, s.Name, j),
			}}
		}
		seen[name] = i
	}
	return nil
}

// Marshal renders the pipeline as YAML.
func Marshal(p *Pipeline) ([]byte, error) {
	return yamlv3.Marshal(p)
}
