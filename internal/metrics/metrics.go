// Package metrics exports service counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	importRows  *prometheus.CounterVec
	diagnostics prometheus.Counter
	allocations *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salestrack",
			Name:      "operations_total",
			Help:      "Service operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salestrack",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salestrack",
			Name:      "import_rows_total",
			Help:      "Workbook rows by outcome.",
		}, []string{"outcome"}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salestrack",
			Name:      "import_diagnostics_total",
			Help:      "Row and sheet problems reported by imports, including truncated ones.",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salestrack",
			Name:      "sequence_allocations_total",
			Help:      "Allocated product codes and order numbers.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.operations,
		m.durations,
		m.importRows,
		m.diagnostics,
		m.allocations,
		collectors.NewGoCollector(),
	)
	return m
}

// Observe records one service call.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ImportRows(created int, updated int, skipped int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("created").Add(float64(created))
	m.importRows.WithLabelValues("updated").Add(float64(updated))
	m.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) Diagnostics(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.diagnostics.Add(float64(count))
}

func (m *Metrics) Allocated(kind string) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(kind).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
