/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Request counters and latency histograms for every route, plus domain
  counters for recorded payments and imported payroll rows, and gauges
  for the outstanding payroll balance of the current month (refreshed by
  OutstandingRefresher in scheduler.go).

  A nil *Metrics is valid and records nothing, so handlers never check
  whether metrics are enabled.

ENDPOINT:
  GET /metrics (only mounted when METRICS_ENABLED is true)

SEE ALSO:
  - server.go: mounts the middleware and the endpoint
  - scheduler.go: outstanding balance gauges
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/payroll"
)

const namespace = "salon_finance"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	payments   prometheus.Counter
	importRows *prometheus.CounterVec

	outstanding    prometheus.Gauge
	recordsByState *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded against payroll records.",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payroll_import_rows_total",
			Help:      "Payroll import rows by outcome.",
		}, []string{"outcome"}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payroll_outstanding",
			Help:      "Remaining payroll amount for the current month.",
		}),
		recordsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "payroll_records",
			Help:      "Payroll records of the current month by status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.payments, m.importRows, m.outstanding, m.recordsByState,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records one observation per request, labelled by route pattern
// so that ids in paths do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) paymentRecorded() {
	if m != nil {
		m.payments.Inc()
	}
}

func (m *Metrics) importReported(report payroll.ImportReport, parseErrors int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(string(payroll.OutcomeImported)).Add(float64(report.Imported))
	m.importRows.WithLabelValues(string(payroll.OutcomeReplaced)).Add(float64(report.Replaced))
	m.importRows.WithLabelValues(string(payroll.OutcomeRejected)).Add(float64(report.Rejected + parseErrors))
}

func (m *Metrics) setOutstanding(summary engine.MonthSummary) {
	if m == nil {
		return
	}
	remaining, _ := summary.Remaining.Decimal().Float64()
	m.outstanding.Set(remaining)
	for _, st := range []engine.Status{engine.StatusPending, engine.StatusPartial, engine.StatusPaid, engine.StatusOverpaid} {
		m.recordsByState.WithLabelValues(string(st)).Set(float64(summary.Counts[st]))
	}
}
