package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes.
const (
	OutcomeFresh       = "fresh"
	OutcomeCached      = "cached"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	Cycles         *prometheus.CounterVec
	SourceAttempts *prometheus.CounterVec
	CycleDuration  *prometheus.HistogramVec
	ValidUntil     *prometheus.GaugeVec
	Intervals      *prometheus.GaugeVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotprice",
			Name:      "fetch_cycles_total",
			Help:      "Fetch cycles by area and outcome.",
		}, []string{"area", "outcome"}),
		SourceAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotprice",
			Name:      "source_attempts_total",
			Help:      "Source attempts by area, source and result.",
		}, []string{"area", "source", "result"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spotprice",
			Name:      "fetch_cycle_duration_seconds",
			Help:      "Duration of fetch cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"area"}),
		ValidUntil: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spotprice",
			Name:      "data_valid_until_timestamp_seconds",
			Help:      "End of the last cached interval per area.",
		}, []string{"area"}),
		Intervals: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "spotprice",
			Name:      "cached_intervals",
			Help:      "Cached intervals per area and day.",
		}, []string{"area", "day"}),
	}
}

func (m *Metrics) cycle(area, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(area, outcome).Inc()
	m.CycleDuration.WithLabelValues(area).Observe(d.Seconds())
}

func (m *Metrics) attempt(area, source, result string) {
	if m == nil {
		return
	}
	m.SourceAttempts.WithLabelValues(area, source, result).Inc()
}

func (m *Metrics) coverage(area string, validUntil time.Time, today, tomorrow int) {
	if m == nil {
		return
	}
	if !validUntil.IsZero() {
		m.ValidUntil.WithLabelValues(area).Set(float64(validUntil.Unix()))
	}
	m.Intervals.WithLabelValues(area, "today").Set(float64(today))
	m.Intervals.WithLabelValues(area, "tomorrow").Set(float64(tomorrow))
}
