package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/transformer"
)

// trace records the order in which stages ran.
type trace struct {
	mu    sync.Mutex
	names []string
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.names = append(tr.names, name)
}

func (tr *trace) all() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.names...)
}

// fakeStage is a native stage that records its execution and returns err.
type fakeStage struct {
	name   string
	kind   transformer.Kind
	tr     *trace
	err    error
	closed bool
}

func (f *fakeStage) Kind() transformer.Kind { return f.kind }

func (f *fakeStage) Store() *store.Store { return nil }

func (f *fakeStage) Execute(context.Context) error {
	f.tr.add(f.name)
	return f.err
}

func (f *fakeStage) Close() error {
	f.closed = true
	return nil
}

func native(tr *trace, name string) *fakeStage {
	return &fakeStage{name: name, kind: transformer.StoreEditor, tr: tr}
}

func failing(tr *trace, name string, class transformer.FaultClass) *fakeStage {
	f := native(tr, name)
	f.err = &transformer.ExecError{Class: class, Kind: f.kind, Op: "edit", Err: fmt.Errorf("%s broke", name)}
	return f
}

// nativeStages builds n recording native stages named n0, n1, ...
func nativeStages(tr *trace, n int) []Stage {
	out := make([]Stage, n)
	for i := range out {
		out[i] = Native(native(tr, fmt.Sprintf("n%d", i)))
	}
	return out
}

// recordingExecutor wraps NativeExecutor and records chunk sizes.
type recordingExecutor struct {
	sizes []int
}

func (r *recordingExecutor) ExecuteChunk(ctx context.Context, chunk []transformer.Transformer) (int, error) {
	r.sizes = append(r.sizes, len(chunk))
	return NativeExecutor{}.ExecuteChunk(ctx, chunk)
}

// scriptedExecutor returns a fixed status without running the chunk.
type scriptedExecutor struct {
	status int
	cause  error
}

func (s scriptedExecutor) ExecuteChunk(context.Context, []transformer.Transformer) (int, error) {
	return s.status, s.cause
}

// recordingObserver records every observer event.
type recordingObserver struct {
	chunks    []int
	elapsed   []time.Duration
	failures  []string
	callbacks []string
	finished  []*Report
	runErrs   []error
}

func (o *recordingObserver) ChunkExecuted(size int, elapsed time.Duration, _ error) {
	o.chunks = append(o.chunks, size)
	o.elapsed = append(o.elapsed, elapsed)
}

func (o *recordingObserver) StageFailed(kind transformer.Kind, class transformer.FaultClass) {
	o.failures = append(o.failures, kind.String()+"/"+class.String())
}

func (o *recordingObserver) CallbackExecuted(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.callbacks = append(o.callbacks, name+":"+result)
}

func (o *recordingObserver) RunFinished(r *Report, err error) {
	o.finished = append(o.finished, r)
	o.runErrs = append(o.runErrs, err)
}
