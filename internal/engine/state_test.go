package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Accumulating, "accumulating"},
		{ChunkExecuting, "chunk_executing"},
		{CallbackExecuting, "callback_executing"},
		{Completed, "completed"},
		{Failed, "failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{Idle, Accumulating, ChunkExecuting, CallbackExecuting} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.True(t, Completed.Terminal())
	assert.True(t, Failed.Terminal())
}
