package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/fastsim/internal/transformer"
)

// Report summarizes one pipeline run. It is returned for failed runs too,
// describing the work done before the failure.
type Report struct {
	// RunID identifies the run in logs and metrics.
	RunID string

	// Chunks counts native chunk calls.
	Chunks int

	// Flushes counts chunk boundaries reached, including empty ones that
	// made no native call.
	Flushes int

	// NativeStages counts native stages handed to the executor.
	NativeStages int

	// Callbacks counts callback stages run.
	Callbacks int

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Pipeline is an ordered list of stages. It does not own its stages: the
// caller closes them (see CloseStages) after the pipeline is done.
//
// Thread-safety model:
//   - Execute(): one run at a time; concurrent calls are serialized
//   - State(): safe from any goroutine
type Pipeline struct {
	stages   []Stage
	executor ChunkExecutor
	runIDs   RunIDGenerator
	clock    Clock
	observer Observer
	logger   *slog.Logger
	hooks    []TransitionHook

	run   sync.Mutex
	mu    sync.Mutex
	state State
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutor replaces the NativeExecutor.
func WithExecutor(x ChunkExecutor) Option {
	return func(p *Pipeline) { p.executor = x }
}

// WithRunIDGenerator sets the run id source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(p *Pipeline) { p.runIDs = g }
}

// WithClock sets the clock used for durations. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithObserver sets the execution observer. Default: NopObserver.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithTransitionHook registers a hook called on every state change.
func WithTransitionHook(h TransitionHook) Option {
	return func(p *Pipeline) { p.hooks = append(p.hooks, h) }
}

// New creates a pipeline over stages. The slice is copied, so later changes
// by the caller do not affect the stage order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   append([]Stage(nil), stages...),
		executor: NativeExecutor{},
		runIDs:   UUIDv7Generator{},
		clock:    SystemClock{},
		observer: NopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Stages returns a copy of the stage list.
func (p *Pipeline) Stages() []Stage { return append([]Stage(nil), p.stages...) }

// State returns the current run state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()
	if from == to {
		return
	}
	for _, h := range p.hooks {
		h(from, to)
	}
}

// Execute runs every stage once, in order, and stops at the first failure.
//
// Errors:
//   - *ChunkStorageError / *ChunkLogicError: a native stage failed; the
//     error names the stage and its position
//   - *UnclassifiedEngineError: the executor returned a status outside
//     both bands
//   - *HostCallbackError: a callback stage failed
//
// The report is never nil.
func (p *Pipeline) Execute(ctx context.Context) (*Report, error) {
	p.run.Lock()
	defer p.run.Unlock()

	r := &runState{
		p:      p,
		report: &Report{RunID: p.runIDs.Generate()},
	}
	p.transition(Idle)
	start := p.clock.Now()
	p.logger.Info("pipeline run starting", "run_id", r.report.RunID, "stages", len(p.stages))

	err := r.execute(ctx)

	r.report.Duration = p.clock.Now().Sub(start)
	if err != nil {
		p.transition(Failed)
		p.logger.Error("pipeline run failed",
			"run_id", r.report.RunID,
			"chunks", r.report.Chunks,
			"callbacks", r.report.Callbacks,
			"error", err,
		)
	} else {
		p.transition(Completed)
		p.logger.Info("pipeline run completed",
			"run_id", r.report.RunID,
			"chunks", r.report.Chunks,
			"native_stages", r.report.NativeStages,
			"callbacks", r.report.Callbacks,
			"duration", r.report.Duration,
		)
	}
	p.observer.RunFinished(r.report, err)
	return r.report, err
}

// runState is the scheduler state of one Execute call.
type runState struct {
	p      *Pipeline
	report *Report

	chunk      []transformer.Transformer
	chunkStart int
}

func (r *runState) execute(ctx context.Context) error {
	p := r.p
	for i, st := range p.stages {
		if st.native == nil && st.callback == nil {
			return fmt.Errorf("stage %d is neither native nor callback", i)
		}
	}

	for i, st := range p.stages {
		if i == 0 {
			p.transition(Accumulating)
		}

		if !st.IsCallback() {
			if len(r.chunk) == 0 {
				r.chunkStart = i
			}
			r.chunk = append(r.chunk, st.native)
			if len(r.chunk) == MaxChunkLength && i+1 < len(p.stages) && !p.stages[i+1].IsCallback() {
				if err := r.flush(ctx, true); err != nil {
					return err
				}
			}
			continue
		}

		if err := r.flush(ctx, true); err != nil {
			return err
		}
		if err := r.callback(ctx, i, st.callback, i+1 < len(p.stages)); err != nil {
			return err
		}
	}
	return r.flush(ctx, false)
}

// flush executes the accumulated chunk. more reports whether stages remain
// after it.
func (r *runState) flush(ctx context.Context, more bool) error {
	p := r.p
	r.report.Flushes++
	if len(r.chunk) == 0 {
		return nil
	}

	chunk := r.chunk
	r.chunk = nil
	p.transition(ChunkExecuting)
	p.logger.Debug("executing chunk", "run_id", r.report.RunID, "start", r.chunkStart, "size", len(chunk))

	began := p.clock.Now()
	status, cause := p.executor.ExecuteChunk(ctx, chunk)
	elapsed := p.clock.Now().Sub(began)

	r.report.Chunks++
	r.report.NativeStages += len(chunk)

	err := Decode(status, chunk, r.chunkStart, cause)
	p.observer.ChunkExecuted(len(chunk), elapsed, err)
	if err != nil {
		if f, ok := FailedStage(err); ok {
			class := transformer.Logic
			if IsStorageError(err) {
				class = transformer.Storage
			}
			p.observer.StageFailed(f.Stage.Kind(), class)
		}
		return err
	}
	if more {
		p.transition(Accumulating)
	}
	return nil
}

func (r *runState) callback(ctx context.Context, pos int, cb *CallbackStage, more bool) error {
	p := r.p
	p.transition(CallbackExecuting)
	p.logger.Debug("executing callback", "run_id", r.report.RunID, "position", pos, "name", cb.Name)

	err := cb.run(ctx)
	r.report.Callbacks++
	if err != nil {
		err = &HostCallbackError{Position: pos, Name: cb.Name, Cause: err}
	}
	p.observer.CallbackExecuted(cb.Name, err)
	if err != nil {
		return err
	}
	if more {
		p.transition(Accumulating)
	}
	return nil
}
