package tableapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the table service collectors.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	CheckIns prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asistencia",
			Name:      "table_requests_total",
			Help:      "Table requests by table, operation and status code.",
		}, []string{"table", "op", "code"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "asistencia",
			Name:      "table_request_duration_seconds",
			Help:      "Table request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table", "op"}),
		CheckIns: f.NewCounter(prometheus.CounterOpts{
			Namespace: "asistencia",
			Name:      "attendance_records_created_total",
			Help:      "Attendance records inserted.",
		}),
	}
}
