// Package engine implements the fastsim pipeline scheduler.
//
// A Pipeline is an ordered list of stages bound to one event store. Native
// stages are transformer.Transformer values; callback stages are host
// functions that inspect or edit the store through a scoped connection.
//
// ARCHITECTURE:
//
// Chunking:
// The scheduler scans the stage list in order. Maximal contiguous runs of
// native stages form a chunk, which is handed to a ChunkExecutor in one
// call. A callback stage always flushes the accumulating chunk (an empty
// flush is a no-op), runs, and accumulation resumes after it. Runs longer
// than MaxChunkLength are split.
//
// Status decoding:
// A chunk call returns one integer. Zero is success; values in
// [SQLErrorBase, SQLErrorBase+len) and [LogicErrorBase, LogicErrorBase+len)
// name the failing stage within the chunk; anything else is an
// UnclassifiedEngineError. Decode turns the status into a typed error
// carrying the offending Transformer and its global position.
//
// Failure policy:
// The first failure aborts the run. Later stages of the chunk and every
// later chunk or callback never execute. Callback failures are always
// fatal and never enter the status bands. Nothing is retried.
//
// Execution is single-threaded: Execute is one synchronous call and stages
// never run concurrently. ctx is passed to database calls; there is no
// cancellation between stages.
package engine
