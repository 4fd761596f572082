package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/fastsim/internal/config"
	"github.com/roach88/fastsim/internal/engine"
	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/telemetry"
	"github.com/roach88/fastsim/internal/transformer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Seed        int64
	Repeat      int
	MetricsAddr string

	// RunIDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the JSON form of one pipeline run.
type RunResult struct {
	RunID        string        `json:"run_id"`
	Chunks       int           `json:"chunks"`
	NativeStages int           `json:"native_stages"`
	Callbacks    int           `json:"callbacks"`
	Duration     time.Duration `json:"duration_ns"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <pipeline.yml>",
		Short: "Execute a pipeline against an event store",
		Long: `Execute every stage of a pipeline file, in order, against an event store.

The store comes from --db, or from the pipeline's store.path (relative to
the pipeline file). Without either an in-memory store is used. --seed
overrides store.seed. The run stops at the first failing stage.

Example:
  fastsim run pipeline.yml --db events.db --seed 42
  fastsim run pipeline.yml --repeat 10 --metrics-addr :9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event store (overrides store.path)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (overrides store.seed)")
	cmd.Flags().IntVar(&opts.Repeat, "repeat", 1, "number of times to execute the pipeline")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func runPipeline(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := formatter.Logger()

	if opts.Repeat < 1 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid --repeat", fmt.Errorf("must be at least 1, got %d", opts.Repeat))
	}

	cfg, err := config.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load pipeline", err)
	}
	formatter.VerboseLog("Loaded %d stage(s) from %s", len(cfg.Stages), path)

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = resolveStorePath(path, cfg.Store.Path)
	}
	storeOpts := []store.Option{store.WithLogger(logger)}
	switch {
	case cmd.Flags().Changed("seed"):
		storeOpts = append(storeOpts, store.WithSeed(opts.Seed))
	case cfg.Store.Seed != nil:
		storeOpts = append(storeOpts, store.WithSeed(*cfg.Store.Seed))
	}

	st, err := store.Open(dbPath, storeOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open event store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing event store", "error", closeErr)
		}
	}()

	stages, err := engine.Compile(cfg, st, BuiltinCallbacks(logger), transformer.WithLogger(logger))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "failed to build pipeline", err)
	}
	defer func() {
		if closeErr := engine.CloseStages(stages); closeErr != nil {
			logger.Error("error closing stages", "error", closeErr)
		}
	}()

	pipeOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.RunIDs != nil {
		pipeOpts = append(pipeOpts, engine.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := telemetry.NewMetrics(reg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to register metrics", err)
		}
		srv, err := telemetry.Serve(opts.MetricsAddr, reg, logger)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to serve metrics", err)
		}
		defer srv.Close()
		pipeOpts = append(pipeOpts, engine.WithObserver(metrics))
	}
	pipeline := engine.New(stages, pipeOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]RunResult, 0, opts.Repeat)
	for i := 0; i < opts.Repeat; i++ {
		report, err := pipeline.Execute(ctx)
		if err != nil {
			return formatter.Fail(ExitFailure, runErrorCode(err), "pipeline run failed", err)
		}
		results = append(results, RunResult{
			RunID:        report.RunID,
			Chunks:       report.Chunks,
			NativeStages: report.NativeStages,
			Callbacks:    report.Callbacks,
			Duration:     report.Duration,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(results)
	}
	for _, r := range results {
		fmt.Fprintf(formatter.Writer, "✓ run %s: %d chunk(s), %d native stage(s), %d callback(s) in %s\n",
			r.RunID, r.Chunks, r.NativeStages, r.Callbacks, r.Duration)
	}
	return nil
}

// resolveStorePath interprets a store path from a pipeline file relative
// to the file. Empty and in-memory paths are kept as they are.
func resolveStorePath(pipelinePath, storePath string) string {
	if storePath == "" || storePath == ":memory:" || filepath.IsAbs(storePath) {
		return storePath
	}
	return filepath.Join(filepath.Dir(pipelinePath), storePath)
}

// runErrorCode maps a pipeline failure to its CLI error code.
func runErrorCode(err error) string {
	switch {
	case engine.IsStorageError(err):
		return ErrCodeStorage
	case engine.IsLogicError(err):
		return ErrCodeLogic
	case engine.IsCallbackError(err):
		return ErrCodeCallback
	}
	var ue *engine.UnclassifiedEngineError
	if errors.As(err, &ue) {
		return ErrCodeEngine
	}
	return ErrCodeGeneric
}
