package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fastsim/internal/transformer"
)

// StageFailure describes the native stage that aborted a run.
type StageFailure struct {
	// StageIndex is the index within the chunk.
	StageIndex int

	// Position is the index within the pipeline.
	Position int

	// Stage is the offending transformer.
	Stage transformer.Transformer

	// Cause is the error the stage returned, when the executor reports one.
	Cause error
}

func (f StageFailure) describe(class string) string {
	kind := "unknown"
	if f.Stage != nil {
		kind = f.Stage.Kind().String()
	}
	msg := fmt.Sprintf("%s failure in stage %d (%s, chunk index %d)", class, f.Position, kind, f.StageIndex)
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

// ChunkStorageError reports a storage-layer failure of a native stage.
type ChunkStorageError struct {
	StageFailure
}

func (e *ChunkStorageError) Error() string { return e.describe("storage") }

func (e *ChunkStorageError) Unwrap() error { return e.Cause }

// ChunkLogicError reports a domain-invariant violation by a native stage.
type ChunkLogicError struct {
	StageFailure
}

func (e *ChunkLogicError) Error() string { return e.describe("logic") }

func (e *ChunkLogicError) Unwrap() error { return e.Cause }

// UnclassifiedEngineError reports a chunk status outside both bands.
type UnclassifiedEngineError struct {
	RawCode    int
	ChunkStart int
	Cause      error
}

func (e *UnclassifiedEngineError) Error() string {
	msg := fmt.Sprintf("unclassified engine status %d (chunk starting at stage %d)", e.RawCode, e.ChunkStart)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnclassifiedEngineError) Unwrap() error { return e.Cause }

// HostCallbackError reports a failed callback stage. It is always fatal.
type HostCallbackError struct {
	Position int
	Name     string
	Cause    error
}

func (e *HostCallbackError) Error() string {
	return fmt.Sprintf("callback %q (stage %d): %v", e.Name, e.Position, e.Cause)
}

func (e *HostCallbackError) Unwrap() error { return e.Cause }

// IsStorageError returns true if the error is a chunk storage failure.
// Uses errors.As to handle wrapped errors.
func IsStorageError(err error) bool {
	var se *ChunkStorageError
	return errors.As(err, &se)
}

// IsLogicError returns true if the error is a chunk logic failure.
// Uses errors.As to handle wrapped errors.
func IsLogicError(err error) bool {
	var le *ChunkLogicError
	return errors.As(err, &le)
}

// IsCallbackError returns true if the error came from a callback stage.
// Uses errors.As to handle wrapped errors.
func IsCallbackError(err error) bool {
	var ce *HostCallbackError
	return errors.As(err, &ce)
}

// FailedStage returns the failure of the native stage that aborted a run,
// if err carries one.
func FailedStage(err error) (StageFailure, bool) {
	var se *ChunkStorageError
	if errors.As(err, &se) {
		return se.StageFailure, true
	}
	var le *ChunkLogicError
	if errors.As(err, &le) {
		return le.StageFailure, true
	}
	return StageFailure{}, false
}
