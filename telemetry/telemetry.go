package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "sqlstream"

// drop reasons
const (
	ReasonSerialization = "serialization"
	ReasonMapping       = "mapping"
	ReasonDeterministic = "deterministic"
	ReasonRetries       = "retries_exhausted"
)

// Metrics holds the process counters. A nil *Metrics records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	rowsEmitted           *prometheus.CounterVec
	rowsImported          *prometheus.CounterVec
	rowsDropped           *prometheus.CounterVec
	fallbacks             *prometheus.CounterVec
	pollErrors            *prometheus.CounterVec
	checkpointFlushErrors prometheus.Counter
	batchRetries          *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
		registry.MustRegister(vec)
		return vec
	}

	flushErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_flush_errors_total",
		Help:      "Checkpoint flushes that failed.",
	})
	registry.MustRegister(flushErrors)

	return &Metrics{
		registry:              registry,
		rowsEmitted:           counterVec("rows_emitted_total", "Rows emitted by source tables.", "table"),
		rowsImported:          counterVec("rows_imported_total", "Rows inserted into destination tables.", "table"),
		rowsDropped:           counterVec("rows_dropped_total", "Rows dropped by a source or destination table.", "table", "reason"),
		fallbacks:             counterVec("fallbacks_total", "Batches degraded to row by row import.", "table"),
		pollErrors:            counterVec("poll_errors_total", "Poll cycles of a table that failed.", "table"),
		checkpointFlushErrors: flushErrors,
		batchRetries:          counterVec("batch_retries_total", "Destination batches retried after a transient failure.", "table"),
	}
}

func (m *Metrics) RowsEmitted(table string, n int) {
	if m != nil {
		m.rowsEmitted.WithLabelValues(table).Add(float64(n))
	}
}

func (m *Metrics) RowsImported(table string, n int) {
	if m != nil {
		m.rowsImported.WithLabelValues(table).Add(float64(n))
	}
}

func (m *Metrics) RowsDropped(table, reason string, n int) {
	if m != nil {
		m.rowsDropped.WithLabelValues(table, reason).Add(float64(n))
	}
}

func (m *Metrics) Fallback(table string) {
	if m != nil {
		m.fallbacks.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) PollError(table string) {
	if m != nil {
		m.pollErrors.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) CheckpointFlushError() {
	if m != nil {
		m.checkpointFlushErrors.Inc()
	}
}

func (m *Metrics) BatchRetry(table string) {
	if m != nil {
		m.batchRetries.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Router serves /metrics and /healthz.
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))
	}
	return r
}

// Serve listens on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
