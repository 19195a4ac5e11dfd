// Package metrics turns executor events into Prometheus metrics and writes
// them in the node exporter textfile format.
package metrics

import (
	"errors"
	"time"

	"github.com/bcomnes/ratchet"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ratchet"

// Collector is a ratchet.Observer that records per unit counters and
// durations, plus the outcome of the last run.
type Collector struct {
	registry *prometheus.Registry

	units    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec
	pending  prometheus.Gauge

	now func() time.Time
}

var _ ratchet.Observer = (*Collector)(nil)

// New returns a Collector on a private registry. engine labels every
// series.
func New(engine string) *Collector {
	labels := prometheus.Labels{"engine": engine}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "migrations_total",
			Help:        "Migration units run, by direction and outcome.",
			ConstLabels: labels,
		}, []string{"direction", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "migration_duration_seconds",
			Help:        "Time spent running one migration unit.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"direction"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the last run finished, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pending_migrations",
			Help:        "Units on disk not yet applied after the last run.",
			ConstLabels: labels,
		}),
		now: time.Now,
	}
	c.registry.MustRegister(c.units, c.duration, c.lastRun, c.pending)
	return c
}

// OnEvent implements ratchet.Observer.
func (c *Collector) OnEvent(ev ratchet.Event) {
	dir := string(ev.Direction)
	switch ev.Kind {
	case ratchet.EventSucceeded:
		c.units.WithLabelValues(dir, "success").Inc()
		c.duration.WithLabelValues(dir).Observe(ev.Duration.Seconds())
	case ratchet.EventFailed:
		c.units.WithLabelValues(dir, "failure").Inc()
		c.duration.WithLabelValues(dir).Observe(ev.Duration.Seconds())
	}
}

// ObserveRun records the end of a run.
func (c *Collector) ObserveRun(report *ratchet.Report, err error) {
	c.lastRun.WithLabelValues(Result(err)).Set(float64(c.now().Unix()))
	if report == nil || report.Plan == nil {
		return
	}
	pending := len(report.Plan.Pending)
	for _, r := range report.Completed {
		if r.Direction == ratchet.DirectionUp {
			pending--
		} else {
			pending++
		}
	}
	if pending < 0 {
		pending = 0
	}
	c.pending.Set(float64(pending))
}

// Result names the outcome of a run for the result label.
func Result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ratchet.ErrCancelled):
		return "cancelled"
	case errors.Is(err, ratchet.ErrLockUnavailable):
		return "locked"
	case errors.Is(err, ratchet.ErrDriftDetected):
		return "drift"
	}
	return "failure"
}

// Gatherer exposes the registry.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// WriteTextfile writes every metric to path for the node exporter textfile
// collector. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
