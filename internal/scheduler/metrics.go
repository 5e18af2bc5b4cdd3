package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes the scheduler state as gauges.
func RegisterMetrics(reg prometheus.Registerer, s *Scheduler) error {
	boolGauge := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "council_streams_in_flight",
			Help: "Council streams currently holding a slot.",
		}, func() float64 { return float64(s.Status().InFlight) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "council_stream_queue_depth",
			Help: "Requests waiting for a stream slot.",
		}, func() float64 { return float64(s.Status().Queued) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "council_fallback_active",
			Help: "1 once the council has reported streaming as unsupported.",
		}, func() float64 { return boolGauge(s.Status().Fallback) }),
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
