// Package metrics exposes prometheus collectors for attendance submissions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector counts submissions by status and tracks submitted distances.
type Collector struct {
	submissions *prometheus.CounterVec
	distance    prometheus.Histogram
	failures    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "submissions_total",
			Help:      "Persisted attendance submissions by status.",
		}, []string{"status"}),
		distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "presence",
			Name:      "distance_meters",
			Help:      "Distance between submitted positions and the reference point.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 25000},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "presence",
			Name:      "submission_failures_total",
			Help:      "Submissions rejected before persistence, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(c.submissions, c.distance, c.failures)
	return c
}

// ObserveRecorded accounts for a persisted submission.
func (c *Collector) ObserveRecorded(status string, distanceM float64) {
	c.submissions.WithLabelValues(status).Inc()
	c.distance.Observe(distanceM)
}

// ObserveFailure accounts for a submission that was not persisted.
func (c *Collector) ObserveFailure(reason string) {
	c.failures.WithLabelValues(reason).Inc()
}
