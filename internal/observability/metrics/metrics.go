// Package metrics provides Prometheus instrumentation for piggyfactory.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Deployment record metrics
	deploymentRecordTotal *prometheus.CounterVec
	deploymentLookupTotal *prometheus.CounterVec
	deploymentVerifyTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Calling it again replaces the
// registry, so tests can start from zeroed counters.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": svcName}

	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "route"},
	)

	deploymentRecordTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deployment_record_total",
			Help:        "Total number of deployments recorded",
			ConstLabels: constLabels,
		},
		[]string{"source", "status"},
	)

	deploymentLookupTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deployment_lookup_total",
			Help:        "Total number of deployment reads",
			ConstLabels: constLabels,
		},
		[]string{"operation", "status"},
	)

	deploymentVerifyTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "deployment_verify_total",
			Help:        "Total number of deployment verification updates",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
