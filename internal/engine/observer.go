package engine

import (
	"time"

	"github.com/roach88/fastsim/internal/transformer"
)

// Observer receives execution events, typically to record metrics.
// Methods run synchronously inside Execute.
type Observer interface {
	// ChunkExecuted is called after every native chunk call.
	ChunkExecuted(size int, elapsed time.Duration, err error)

	// StageFailed is called once for the native stage that aborted a run.
	StageFailed(kind transformer.Kind, class transformer.FaultClass)

	// CallbackExecuted is called after every callback stage.
	CallbackExecuted(name string, err error)

	// RunFinished is called once per Execute.
	RunFinished(report *Report, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ChunkExecuted(int, time.Duration, error)              {}
func (NopObserver) StageFailed(transformer.Kind, transformer.FaultClass) {}
func (NopObserver) CallbackExecuted(string, error)                       {}
func (NopObserver) RunFinished(*Report, error)                           {}
