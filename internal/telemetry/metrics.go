// Package telemetry exports pipeline execution metrics to Prometheus.
package telemetry

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fastsim/internal/engine"
	"github.com/roach88/fastsim/internal/transformer"
)

const namespace = "fastsim"

// Metrics records pipeline execution as Prometheus collectors. It
// implements engine.Observer.
type Metrics struct {
	chunkCalls    prometheus.Counter
	chunkDuration prometheus.Histogram
	chunkStages   prometheus.Histogram
	stageFailures *prometheus.CounterVec
	callbackRuns  *prometheus.CounterVec
	pipelineRuns  *prometheus.CounterVec
	lastDuration  prometheus.Gauge
}

var _ engine.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		chunkCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_calls_total",
			Help:      "Native chunk calls made.",
		}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall time of native chunk calls.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		chunkStages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_stages",
			Help:      "Native stages per chunk call.",
			Buckets:   []float64{1, 2, 4, 8, 16, 64, 256, 1024, float64(engine.MaxChunkLength)},
		}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Native stages that aborted a run, by kind and fault class.",
		}, []string{"kind", "class"}),
		callbackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_runs_total",
			Help:      "Callback stages run, by callback and result.",
		}, []string{"callback", "result"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs, by result.",
		}, []string{"result"}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent pipeline run.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.chunkCalls, m.chunkDuration, m.chunkStages,
		m.stageFailures, m.callbackRuns, m.pipelineRuns, m.lastDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ChunkExecuted implements engine.Observer.
func (m *Metrics) ChunkExecuted(size int, elapsed time.Duration, _ error) {
	m.chunkCalls.Inc()
	m.chunkDuration.Observe(elapsed.Seconds())
	m.chunkStages.Observe(float64(size))
}

// StageFailed implements engine.Observer.
func (m *Metrics) StageFailed(kind transformer.Kind, class transformer.FaultClass) {
	m.stageFailures.WithLabelValues(kind.String(), class.String()).Inc()
}

// CallbackExecuted implements engine.Observer.
func (m *Metrics) CallbackExecuted(name string, err error) {
	m.callbackRuns.WithLabelValues(name, result(err)).Inc()
}

// RunFinished implements engine.Observer.
func (m *Metrics) RunFinished(report *engine.Report, err error) {
	m.pipelineRuns.WithLabelValues(result(err)).Inc()
	m.lastDuration.Set(report.Duration.Seconds())
}

// Server exposes a registry over HTTP at /metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts serving g on addr in the background. An addr with port 0
// picks a free port; see Addr.
func Serve(addr string, g prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops the server.
func (s *Server) Close() error { return s.srv.Close() }
