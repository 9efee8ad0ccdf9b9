// Package metrics provides Prometheus instrumentation for posdeploy.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	register    sync.Once

	// HTTP metrics (status server)
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Pipeline metrics
	stageTransitionsTotal *prometheus.CounterVec
	deployTotal           *prometheus.CounterVec
	confirmationWait      *prometheus.HistogramVec
	verificationTotal     *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process and pipeline collectors carry svcName as the "service" label.
// Later calls only toggle collection.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	register.Do(func() {
		service := prometheus.Labels{"service": serviceName}

		// HTTP request counter
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		// HTTP request duration histogram
		httpDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)

		// State machine transitions
		stageTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "posdeploy_stage_transitions_total",
				Help:        "Total number of orchestrator state transitions",
				ConstLabels: service,
			},
			[]string{"network", "state"},
		)

		// Contract creation submissions
		deployTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "posdeploy_deploy_total",
				Help:        "Total number of contract creation attempts",
				ConstLabels: service,
			},
			[]string{"network", "status"},
		)

		// Time spent waiting for confirmation depth
		confirmationWait = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "posdeploy_confirmation_wait_seconds",
				Help:        "Time spent waiting for a confirmation depth",
				Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600},
				ConstLabels: service,
			},
			[]string{"network", "confirmations"},
		)

		// Verification outcomes
		verificationTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "posdeploy_verification_total",
				Help:        "Total number of verification attempts by outcome",
				ConstLabels: service,
			},
			[]string{"network", "outcome"},
		)
	})

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

