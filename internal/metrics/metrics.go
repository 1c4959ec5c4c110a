// Package metrics records the outcome and latency of core operations.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives one observation per finished operation.
type Recorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusRecorder exports kartoteka_operations_total{operation,status} and
// kartoteka_operation_duration_seconds{operation}.
type PrometheusRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers its collectors on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kartoteka",
			Name:      "operations_total",
			Help:      "Ledger, snapshot and transfer operations by result.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kartoteka",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger, snapshot and transfer operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.total.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Track is meant to be deferred with a pointer to the named error result:
//
//	defer metrics.Track(ctx, rec, "ledger.AppendEntry", time.Now(), &err)
func Track(ctx context.Context, rec Recorder, operation string, start time.Time, err *error) {
	if rec == nil {
		return
	}
	rec.Observe(ctx, operation, err == nil || *err == nil, time.Since(start))
}
