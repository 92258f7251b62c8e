// -----------------------------------------------------------------------
// Metrics - verification metrics registry and exposition
// -----------------------------------------------------------------------

package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/probo/internal/models"
)

// Registry collects verification metrics. Each instance owns its own
// prometheus registry, so tests and embedded callers never share state
// through a process-wide default.
type Registry struct {
	registry *prometheus.Registry

	checksTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	checkDuration prometheus.Histogram
	queueWaiting  prometheus.Gauge
	queueActive   prometheus.Gauge

	successes atomic.Int64
	errors    atomic.Int64
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Registry{
		registry: registry,
		checksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probo_checks_total",
			Help: "Verification attempts by resulting link status.",
		}, []string{"status"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probo_check_errors_total",
			Help: "Failed verification attempts by error type.",
		}, []string{"error_type"}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "probo_check_duration_seconds",
			Help:    "Wall clock duration of verification attempts.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		queueWaiting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "probo_queue_waiting_jobs",
			Help: "Jobs admitted and waiting to execute.",
		}),
		queueActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "probo_queue_active_jobs",
			Help: "Jobs currently executing.",
		}),
	}
}

// Record observes the outcome of one verification attempt. Non-ok
// statuses count as errors with the status as the error type.
func (r *Registry) Record(status models.LinkStatus, latency time.Duration) {
	r.checksTotal.WithLabelValues(string(status)).Inc()
	r.checkDuration.Observe(latency.Seconds())

	if status == models.LinkStatusOK {
		r.successes.Add(1)
	} else {
		r.errorsTotal.WithLabelValues(string(status)).Inc()
		r.errors.Add(1)
	}
}

// SetQueueDepth updates the queue occupancy gauges.
func (r *Registry) SetQueueDepth(waiting, active int) {
	r.queueWaiting.Set(float64(waiting))
	r.queueActive.Set(float64(active))
}

// ErrorRate returns the fraction of recorded attempts that failed, and 0
// when nothing has been recorded yet.
func (r *Registry) ErrorRate() float64 {
	errors := r.errors.Load()
	total := errors + r.successes.Load()
	if total == 0 {
		return 0
	}
	return float64(errors) / float64(total)
}

// Handler exposes the registry in prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
