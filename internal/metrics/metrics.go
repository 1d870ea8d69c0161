// Package metrics exposes Prometheus collectors for the forms service.
//
// A Registry implements core.Metrics for the domain counters and provides an
// HTTP middleware for request counts and latencies. Each Registry owns its
// own prometheus.Registry, so tests can create as many as they like.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/formsvc/internal/core"
)

const namespace = "forms"

// Registry holds every collector of the service.
type Registry struct {
	reg *prometheus.Registry

	submissions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	seqRetries  prometheus.Counter
	exports     *prometheus.CounterVec
	exportRows  prometheus.Counter
	published   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ core.Metrics = (*Registry)(nil)

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submissions by result (accepted or rejected).",
		}, []string{"result"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_rejections_total",
			Help:      "Rejected submissions by error kind.",
		}, []string{"kind"}),
		seqRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_seq_retries_total",
			Help:      "Submit transactions retried after a sequence conflict.",
		}),
		exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "CSV exports by result (ok, busy or error).",
		}, []string{"result"}),
		exportRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_rows_total",
			Help:      "Submission rows written by CSV exports.",
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Publish operations.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Registry) FormPublished() {
	m.published.Inc()
}

func (m *Registry) SubmissionAccepted() {
	m.submissions.WithLabelValues("accepted").Inc()
}

func (m *Registry) SubmissionRejected(kind core.Kind) {
	m.submissions.WithLabelValues("rejected").Inc()
	m.rejections.WithLabelValues(string(kind)).Inc()
}

func (m *Registry) SequenceRetry() {
	m.seqRetries.Inc()
}

func (m *Registry) ExportFinished(rows int, err error) {
	m.exportRows.Add(float64(rows))
	switch {
	case err == nil:
		m.exports.WithLabelValues("ok").Inc()
	case errors.Is(err, core.ErrTooManyExports):
		m.exports.WithLabelValues("busy").Inc()
	default:
		m.exports.WithLabelValues("error").Inc()
	}
}

// Middleware records request count and latency. The route label is the chi
// route pattern, so path parameters do not explode cardinality.
func (m *Registry) Middleware(next http.Handler) http.Handler {
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

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
