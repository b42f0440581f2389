// Package metrics exposes the provisioning counters on a dedicated registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds every collector served on /metrics.
	Registry = prometheus.NewRegistry()

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "terraform_provider",
			Name:      "runs_total",
			Help:      "Total number of provisioning runs by terminal status",
		},
		[]string{"result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "terraform_provider",
			Name:      "run_duration_seconds",
			Help:      "Duration of provisioning runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43min
		},
		[]string{"result"},
	)

	runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "terraform_provider",
			Name:      "runs_active",
			Help:      "Number of provisioning runs currently executing in this process",
		},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "terraform_provider",
			Name:      "stage_duration_seconds",
			Help:      "Duration of terraform stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 500ms to ~17min
		},
		[]string{"stage"},
	)

	governanceRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "terraform_provider",
			Name:      "governance_rejections_total",
			Help:      "Total number of approvals rejected by governance rules",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		runsTotal,
		runDuration,
		runsActive,
		stageDuration,
		governanceRejections,
	)
}

// Handler serves Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func RunStarted() {
	runsActive.Inc()
}

// RunFinished records a run reaching result after d.
func RunFinished(result string, d time.Duration) {
	runsActive.Dec()
	runsTotal.WithLabelValues(result).Inc()
	runDuration.WithLabelValues(result).Observe(d.Seconds())
}

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func GovernanceRejected() {
	governanceRejections.Inc()
}
