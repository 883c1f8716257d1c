package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the lifecycle controller.
type Metrics struct {
	Operations   *prometheus.CounterVec
	AutoStops    *prometheus.CounterVec
	PendingStops prometheus.Gauge
	Duration     *prometheus.HistogramVec
}

// NewMetrics creates and registers controller metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlsandbox",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		AutoStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlsandbox",
			Subsystem: "lifecycle",
			Name:      "auto_stops_total",
			Help:      "Timer-initiated stops by outcome (stopped, failed, stale).",
		}, []string{"outcome"}),
		PendingStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mlsandbox",
			Subsystem: "lifecycle",
			Name:      "pending_auto_stops",
			Help:      "Auto-stop timers currently armed.",
		}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlsandbox",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of lifecycle operations, including image builds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"op"}),
	}

	reg.MustRegister(m.Operations, m.AutoStops, m.PendingStops, m.Duration)
	return m
}

func (m *Metrics) observe(op string, res Result, started time.Time) {
	if m == nil {
		return
	}
	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) autoStop(outcome string) {
	if m == nil {
		return
	}
	m.AutoStops.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.PendingStops.Set(float64(n))
}
