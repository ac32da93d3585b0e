package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LineRead(PhaseLive)
	m.MalformedLine(PhaseBacklog)
	m.FragmentBufferDiscarded()
	m.Alert(PhaseLive)
	m.BulkResult(true, 3)
	m.BulkRetry()
	m.BatchDropped()
	m.ItemErrors(2)
	m.NotifyFailed()
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Alert(PhaseBacklog)
	m.Alert(PhaseBacklog)
	m.BulkResult(true, 2)
	m.BulkResult(false, 2)
	m.ItemErrors(0)

	if got := testutil.ToFloat64(m.Alerts.WithLabelValues(PhaseBacklog)); got != 2 {
		t.Fatalf("expected 2 backlog alerts, got %v", got)
	}
	if got := testutil.ToFloat64(m.DocumentsIndexed); got != 2 {
		t.Fatalf("expected 2 indexed documents, got %v", got)
	}
	if got := testutil.ToFloat64(m.BulkItemErrors); got != 0 {
		t.Fatalf("expected no item errors, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `minisiem_bulk_requests_total{result="failure"} 1`) {
		t.Fatalf("expected failure counter in exposition, got:\n%s", body)
	}
}
