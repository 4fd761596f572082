package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fastsim/internal/engine"
	"github.com/roach88/fastsim/internal/store"
	"github.com/roach88/fastsim/internal/transformer"
)

func newMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	return m, reg
}

func TestMetrics_RecordsEvents(t *testing.T) {
	m, _ := newMetrics(t)

	m.ChunkExecuted(3, 10*time.Millisecond, nil)
	m.ChunkExecuted(1, 20*time.Millisecond, errors.New("x"))
	m.StageFailed(transformer.VertexFinder, transformer.Storage)
	m.CallbackExecuted("row_counts", nil)
	m.CallbackExecuted("row_counts", errors.New("boom"))
	m.RunFinished(&engine.Report{Duration: 2 * time.Second}, errors.New("failed"))

	assert.Equal(t, 2.0, promtest.ToFloat64(m.chunkCalls))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.stageFailures.WithLabelValues("vertex_finder", "storage")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.callbackRuns.WithLabelValues("row_counts", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.callbackRuns.WithLabelValues("row_counts", "error")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.pipelineRuns.WithLabelValues("error")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.lastDuration))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	var are prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, err, &are)
}

func TestMetrics_ObservesPipeline(t *testing.T) {
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cleaner, err := transformer.NewStoreCleaner(s)
	require.NoError(t, err)
	t.Cleanup(func() { cleaner.Close() })

	m, reg := newMetrics(t)
	p := engine.New([]engine.Stage{engine.Native(cleaner), engine.Native(cleaner)}, engine.WithObserver(m))
	_, err = p.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.chunkCalls))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.pipelineRuns.WithLabelValues("ok")))

	expected := `
# HELP fastsim_pipeline_runs_total Pipeline runs, by result.
# TYPE fastsim_pipeline_runs_total counter
fastsim_pipeline_runs_total{result="ok"} 1
`
	assert.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "fastsim_pipeline_runs_total"))
}

func TestServe_ExposesMetrics(t *testing.T) {
	m, reg := newMetrics(t)
	m.ChunkExecuted(1, time.Millisecond, nil)

	srv, err := Serve("127.0.0.1:0", reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fastsim_chunk_calls_total 1")
}
