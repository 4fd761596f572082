package engine

import "github.com/roach88/fastsim/internal/transformer"

// Status band layout of a chunk call. Both bases exceed MaxChunkLength, so
// success, the storage band and the logic band never overlap.
const (
	// SQLErrorBase offsets the index of a stage that failed in the
	// storage layer.
	SQLErrorBase = 10000

	// LogicErrorBase offsets the index of a stage that violated a domain
	// invariant.
	LogicErrorBase = 20000

	// MaxChunkLength is the longest chunk the bands can address.
	MaxChunkLength = SQLErrorBase - 1
)

// StatusOK is the status of a chunk whose stages all succeeded.
const StatusOK = 0

// Encode returns the status reporting a failure of the stage at index
// within its chunk.
func Encode(index int, err error) int {
	if transformer.Classify(err) == transformer.Storage {
		return SQLErrorBase + index
	}
	return LogicErrorBase + index
}

// Decode maps the status of a chunk call to a typed error. chunkStart is
// the position of chunk[0] in the pipeline; cause is the error reported
// alongside the status, if any.
//
// Returns nil for StatusOK, *ChunkStorageError or *ChunkLogicError for a
// status inside a band, and *UnclassifiedEngineError otherwise.
func Decode(status int, chunk []transformer.Transformer, chunkStart int, cause error) error {
	n := len(chunk)
	switch {
	case status == StatusOK:
		return nil
	case status >= SQLErrorBase && status < SQLErrorBase+n:
		i := status - SQLErrorBase
		return &ChunkStorageError{StageFailure{
			StageIndex: i,
			Position:   chunkStart + i,
			Stage:      chunk[i],
			Cause:      cause,
		}}
	case status >= LogicErrorBase && status < LogicErrorBase+n:
		i := status - LogicErrorBase
		return &ChunkLogicError{StageFailure{
			StageIndex: i,
			Position:   chunkStart + i,
			Stage:      chunk[i],
			Cause:      cause,
		}}
	default:
		return &UnclassifiedEngineError{RawCode: status, ChunkStart: chunkStart, Cause: cause}
	}
}
