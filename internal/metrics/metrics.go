package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Phase labels for reader counters.
const (
	PhaseBacklog = "backlog"
	PhaseLive    = "live"
)

// Metrics holds the ingest counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LinesRead          *prometheus.CounterVec
	MalformedLines     *prometheus.CounterVec
	FragmentsDiscarded prometheus.Counter
	Alerts             *prometheus.CounterVec
	BulkRequests       *prometheus.CounterVec
	BulkRetries        prometheus.Counter
	BatchesDropped     prometheus.Counter
	BulkItemErrors     prometheus.Counter
	DocumentsIndexed   prometheus.Counter
	NotifyFailures     prometheus.Counter
}

// New creates and registers the ingest counters on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "ingest", Name: "lines_read_total",
			Help: "Non-empty lines read from the eve log.",
		}, []string{"phase"}),
		MalformedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "ingest", Name: "malformed_lines_total",
			Help: "Lines that did not decode as a JSON object on their own.",
		}, []string{"phase"}),
		FragmentsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "ingest", Name: "fragment_buffers_discarded_total",
			Help: "Partial-line buffers dropped after exceeding the fragment bound.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "ingest", Name: "alerts_total",
			Help: "Records that passed the alert filter.",
		}, []string{"phase"}),
		BulkRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "bulk", Name: "requests_total",
			Help: "Bulk submissions by outcome.",
		}, []string{"result"}),
		BulkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "bulk", Name: "retries_total",
			Help: "Bulk submissions retried after a failure.",
		}),
		BatchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "bulk", Name: "batches_dropped_total",
			Help: "Batches dropped after the retry also failed.",
		}),
		BulkItemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "bulk", Name: "item_errors_total",
			Help: "Per-document errors reported inside accepted bulk responses.",
		}),
		DocumentsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "bulk", Name: "documents_total",
			Help: "Documents contained in accepted bulk requests.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisiem", Subsystem: "notify", Name: "failures_total",
			Help: "Best-effort notifications that failed and were discarded.",
		}),
	}

	m.registry.MustRegister(
		m.LinesRead,
		m.MalformedLines,
		m.FragmentsDiscarded,
		m.Alerts,
		m.BulkRequests,
		m.BulkRetries,
		m.BatchesDropped,
		m.BulkItemErrors,
		m.DocumentsIndexed,
		m.NotifyFailures,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a /metrics listener until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// LineRead counts one non-empty line read in the given phase.
func (m *Metrics) LineRead(phase string) {
	if m != nil {
		m.LinesRead.WithLabelValues(phase).Inc()
	}
}

// MalformedLine counts a line that did not decode on its own.
func (m *Metrics) MalformedLine(phase string) {
	if m != nil {
		m.MalformedLines.WithLabelValues(phase).Inc()
	}
}

// FragmentBufferDiscarded counts a partial-line buffer dropped past its bound.
func (m *Metrics) FragmentBufferDiscarded() {
	if m != nil {
		m.FragmentsDiscarded.Inc()
	}
}

// Alert counts a record that passed the alert filter.
func (m *Metrics) Alert(phase string) {
	if m != nil {
		m.Alerts.WithLabelValues(phase).Inc()
	}
}

// BulkResult records one bulk submission and, on success, its document count.
func (m *Metrics) BulkResult(ok bool, docs int) {
	if m == nil {
		return
	}
	if ok {
		m.BulkRequests.WithLabelValues("success").Inc()
		m.DocumentsIndexed.Add(float64(docs))
		return
	}
	m.BulkRequests.WithLabelValues("failure").Inc()
}

// BulkRetry counts a bulk submission retried after a failure.
func (m *Metrics) BulkRetry() {
	if m != nil {
		m.BulkRetries.Inc()
	}
}

// BatchDropped counts a batch given up after its retry failed.
func (m *Metrics) BatchDropped() {
	if m != nil {
		m.BatchesDropped.Inc()
	}
}

// ItemErrors adds per-document errors from an accepted bulk response.
func (m *Metrics) ItemErrors(n int) {
	if m != nil && n > 0 {
		m.BulkItemErrors.Add(float64(n))
	}
}

// NotifyFailed counts a discarded notification failure.
func (m *Metrics) NotifyFailed() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}
