// Package metrics exports install flow counters and latencies to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-appinstall/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var operationLabels = []string{"operation", "status", "provider_id", "outcome", "reason"}

// Recorder implements core.MetricsRecorder. Every operation lands in one
// counter and one histogram, labelled by operation name.
type Recorder struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	gatherer          prometheus.Gatherer
}

// NewRecorder registers the collectors on registry. A nil registry gets a
// private one.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appinstall_operations_total",
			Help: "Install flow operations by outcome",
		}, operationLabels),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appinstall_operation_duration_ms",
			Help:    "Install flow operation latency in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000, 30000},
		}, []string{"operation", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "appinstall_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appinstall_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: registry,
	}
	for _, collector := range []prometheus.Collector{
		r.operations,
		r.operationDuration,
		r.httpRequests,
		r.httpDuration,
	} {
		if err := registerCollector(registry, collector); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 || !strings.HasSuffix(name, ".total") {
		return
	}
	r.operations.With(operationLabelValues(name, tags)).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil || !strings.HasSuffix(name, ".duration_ms") {
		return
	}
	labels := operationLabelValues(name, tags)
	r.operationDuration.WithLabelValues(labels["operation"], labels["status"]).Observe(value)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests per route pattern. route maps a request to
// its pattern so ids never end up in labels.
func (r *Recorder) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			startedAt := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, req)

			pattern := req.URL.Path
			if route != nil {
				if resolved := route(req); resolved != "" {
					pattern = resolved
				}
			}
			r.httpRequests.WithLabelValues(req.Method, pattern, strconv.Itoa(sw.status)).Inc()
			r.httpDuration.WithLabelValues(req.Method, pattern).Observe(time.Since(startedAt).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func operationLabelValues(name string, tags map[string]string) prometheus.Labels {
	labels := prometheus.Labels{}
	for _, key := range operationLabels {
		labels[key] = strings.TrimSpace(tags[key])
	}
	if labels["operation"] == "" {
		labels["operation"] = core.OperationFromMetricName(name)
	}
	return labels
}

func registerCollector(registry prometheus.Registerer, collector prometheus.Collector) error {
	if err := registry.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return err
	}
	return nil
}

var _ core.MetricsRecorder = (*Recorder)(nil)
