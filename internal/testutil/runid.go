package testutil

// FixedRunIDGenerator generates the same run id every time.
//
// This enables deterministic reports and golden comparisons: the same
// pipeline run with the same generator produces identical output.
//
// Unlike engine.FixedGenerator which returns ids in sequence, this generator
// always returns the same id, so a pipeline can be executed any number of
// times.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a new fixed run id generator.
// If id is empty, Generate returns "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
//
// Implements engine.RunIDGenerator interface.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
