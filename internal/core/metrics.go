package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import outcome labels.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"  // rows rejected, nothing persisted
	StatusAborted   = "aborted" // fatal error
	StatusRejected  = "rejected"
)

// Metrics holds the import collectors. A nil *Metrics records nothing.
type Metrics struct {
	importsTotal   *prometheus.CounterVec
	rowErrorsTotal *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	inFlight       prometheus.Gauge
}

// NewMetrics registers the import collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// importsTotal counts finished imports by table, mode and outcome.
		importsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvimport_imports_total",
				Help: "Total number of CSV imports by table, mode and status",
			},
			[]string{"table", "mode", "status"},
		),
		// rowErrorsTotal counts reported row errors.
		rowErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csvimport_row_errors_total",
				Help: "Total number of row errors reported by CSV imports",
			},
			[]string{"table"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csvimport_import_duration_seconds",
				Help:    "Duration of CSV imports, including waiting for a slot",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"table"},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "csvimport_imports_in_flight",
				Help: "Number of CSV imports currently holding a slot",
			},
		),
	}
}

func (m *Metrics) observe(table string, validateOnly bool, status string, rowErrors int, d time.Duration) {
	if m == nil {
		return
	}
	mode := "import"
	if validateOnly {
		mode = "validate"
	}
	m.importsTotal.WithLabelValues(table, mode, status).Inc()
	if rowErrors > 0 {
		m.rowErrorsTotal.WithLabelValues(table).Add(float64(rowErrors))
	}
	if status != StatusRejected {
		m.duration.WithLabelValues(table).Observe(d.Seconds())
	}
}

func (m *Metrics) started() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) finished() {
	if m != nil {
		m.inFlight.Dec()
	}
}
