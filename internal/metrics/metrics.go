package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "saas"

// Deployment outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeFaulted   = "faulted"
	OutcomeNotFound  = "not_found"
	OutcomeRejected  = "rejected"
)

// Deployments records deployment job activity.
type Deployments struct {
	total    *prometheus.CounterVec
	inFlight prometheus.Gauge
	duration prometheus.Histogram
}

// NewDeployments creates the deployment metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewDeployments(reg prometheus.Registerer) *Deployments {
	d := &Deployments{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "The number of deployment runs by outcome.",
			}, []string{"outcome"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "deployments_in_flight",
				Help:      "The number of deployment runs currently executing.",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "The time taken by deployment runs that reached the provisioner.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
	}
	if reg != nil {
		reg.MustRegister(d.total, d.inFlight, d.duration)
	}
	return d
}

// Started marks a run as executing.
func (d *Deployments) Started() {
	d.inFlight.Inc()
}

// Finished records the outcome of a run previously marked Started.
func (d *Deployments) Finished(outcome string, elapsed time.Duration) {
	d.inFlight.Dec()
	d.total.WithLabelValues(outcome).Inc()
	d.duration.Observe(elapsed.Seconds())
}

// Skipped records a run that never started.
func (d *Deployments) Skipped(outcome string) {
	d.total.WithLabelValues(outcome).Inc()
}

// NewProgressTopics exports the number of progress topics with at least one
// subscriber, as reported by count, and registers it with reg when reg is not nil.
func NewProgressTopics(reg prometheus.Registerer, count func() int) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_topics",
			Help:      "The number of deployment topics with at least one subscriber.",
		},
		func() float64 { return float64(count()) },
	)
	if reg != nil {
		reg.MustRegister(g)
	}
	return g
}
