package engine

import "fmt"

// State is the phase of a pipeline run.
//
//	Idle -> Accumulating <-> {ChunkExecuting, CallbackExecuting} -> {Accumulating, Completed, Failed}
//
// An empty pipeline goes straight from Idle to Completed. Completed and
// Failed are terminal for a run; the next Execute starts again from Idle.
type State int

const (
	Idle State = iota
	Accumulating
	ChunkExecuting
	CallbackExecuting
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case ChunkExecuting:
		return "chunk_executing"
	case CallbackExecuting:
		return "callback_executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition follows in the run.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// TransitionHook observes state changes. It runs synchronously inside
// Execute and must not call back into the pipeline.
type TransitionHook func(from, to State)
