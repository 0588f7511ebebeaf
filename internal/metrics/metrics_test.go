package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAreExported(t *testing.T) {
	m := New()
	m.Observe(context.Background(), "import_legacy", true, 20*time.Millisecond)
	m.ImportRows(3, 2, 1)
	m.Diagnostics(4)
	m.Allocated("order")

	if got := testutil.ToFloat64(m.importRows.WithLabelValues("created")); got != 3 {
		t.Fatalf("expected 3 created rows, got %v", got)
	}
	if got := testutil.ToFloat64(m.diagnostics); got != 4 {
		t.Fatalf("expected 4 diagnostics, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"salestrack_operations_total", "salestrack_sequence_allocations_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in exposition", name)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Observe(context.Background(), "noop", false, time.Second)
	m.ImportRows(1, 1, 1)
	m.Diagnostics(1)
	m.Allocated("product")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
