package engine

import (
	"context"

	"github.com/roach88/fastsim/internal/transformer"
)

// ChunkExecutor runs a chunk of native stages in one call and reports a
// single status, as described by Decode. cause is the error of the failing
// stage and may be nil.
type ChunkExecutor interface {
	ExecuteChunk(ctx context.Context, chunk []transformer.Transformer) (status int, cause error)
}

// NativeExecutor executes stages in order in the calling goroutine and
// stops at the first failure.
type NativeExecutor struct{}

// ExecuteChunk implements ChunkExecutor.
func (NativeExecutor) ExecuteChunk(ctx context.Context, chunk []transformer.Transformer) (int, error) {
	for i, t := range chunk {
		if err := t.Execute(ctx); err != nil {
			return Encode(i, err), err
		}
	}
	return StatusOK, nil
}
