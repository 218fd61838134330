/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Request counters and latency histograms for every route, plus counters
  for the ledger writes that matter to operators. Exposed on /metrics.

LABELS:
  Routes are labelled with the chi route pattern ("/api/houses/{houseID}"),
  never the raw path, so ids do not blow up cardinality.

SEE ALSO:
  - server.go: middleware and /metrics registration
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
)

type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	ExpensesCreated    prometheus.Counter
	ContributionsAdded prometheus.Counter
	VotesCast          prometheus.Counter
	PollsClosed        prometheus.Counter
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "house_ledger",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "house_ledger",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ExpensesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "house_ledger",
			Name:      "expenses_created_total",
			Help:      "Expenses recorded.",
		}),
		ContributionsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "house_ledger",
			Name:      "contributions_added_total",
			Help:      "Contributions recorded, excluding payer shares.",
		}),
		VotesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "house_ledger",
			Name:      "poll_votes_cast_total",
			Help:      "Poll vote rows written.",
		}),
		PollsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "house_ledger",
			Name:      "polls_closed_total",
			Help:      "Polls closed by the scheduler.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration,
		m.ExpensesCreated, m.ContributionsAdded, m.VotesCast, m.PollsClosed,
	)
	return m
}

// Middleware records one observation per request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
