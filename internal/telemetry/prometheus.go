package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter mirrors latency samples into Prometheus collectors.
type Exporter struct {
	duration *prometheus.HistogramVec
	attempts *prometheus.CounterVec
}

// NewExporter registers the council request collectors on reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)

	return &Exporter{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "council_request_duration_seconds",
				Help:    "Council request duration from call start to response receipt",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "status"},
		),
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "council_request_attempts_total",
				Help: "Council HTTP attempts, including rate-limit retries",
			},
			[]string{"method", "status", "retry"},
		),
	}
}

// Observe records a single sample.
func (e *Exporter) Observe(sample Sample) {
	status := strconv.Itoa(sample.Status)
	e.duration.WithLabelValues(sample.Method, status).Observe(sample.Duration.Seconds())
	e.attempts.WithLabelValues(sample.Method, status, strconv.FormatBool(sample.Attempt > 1)).Inc()
}

// Attach subscribes the exporter to the bus and returns the unsubscribe function.
func (e *Exporter) Attach(bus *Bus) func() {
	return bus.Subscribe(e.Observe)
}
