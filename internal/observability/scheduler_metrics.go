package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes reschedule-pass Prometheus metrics.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	PassDuration         prometheus.Histogram
	PassesTotal          *prometheus.CounterVec
	BookingsActive       prometheus.Gauge
	PendingRequests      prometheus.Gauge
	ShortfallsTotal      *prometheus.CounterVec
	CollaboratorFailures *prometheus.CounterVec
	PassCacheHitRatio    prometheus.Gauge
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	passHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_pass_duration_seconds",
		Help:    "Duration of full reschedule passes, including availability queries.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}), "scheduler_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	passes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_passes_total",
		Help: "Reschedule passes by outcome (committed, aborted).",
	}, []string{"outcome"}), "scheduler_passes_total")
	if err != nil {
		return nil, err
	}

	bookings, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_bookings_active",
		Help: "Number of bookings in the last committed plan.",
	}), "scheduler_bookings_active")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_requests_pending",
		Help: "Number of requests considered by the last reschedule pass.",
	}), "scheduler_requests_pending")
	if err != nil {
		return nil, err
	}

	shortfalls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_shortfalls_total",
		Help: "Requests left with remaining demand after a committed pass, by kind.",
	}, []string{"kind"}), "scheduler_shortfalls_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_collaborator_failures_total",
		Help: "Reschedule passes aborted by a failing collaborator, by collaborator.",
	}, []string{"collaborator"}), "scheduler_collaborator_failures_total")
	if err != nil {
		return nil, err
	}

	cacheRatio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_pass_cache_hit_ratio",
		Help: "Hit ratio for the visibility pass cache.",
	}), "scheduler_pass_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:             gatherer,
		PassDuration:         passHistogram,
		PassesTotal:          passes,
		BookingsActive:       bookings,
		PendingRequests:      pending,
		ShortfallsTotal:      shortfalls,
		CollaboratorFailures: failures,
		PassCacheHitRatio:    cacheRatio,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObservePass records a pass duration and its outcome.
func (c *SchedulerCollector) ObservePass(d time.Duration, committed bool) {
	if c == nil {
		return
	}
	if c.PassDuration != nil {
		c.PassDuration.Observe(d.Seconds())
	}
	if c.PassesTotal != nil {
		outcome := "aborted"
		if committed {
			outcome = "committed"
		}
		c.PassesTotal.WithLabelValues(outcome).Inc()
	}
}

// SetPlanSize updates the pending-request and active-booking gauges.
func (c *SchedulerCollector) SetPlanSize(requests, bookings int) {
	if c == nil {
		return
	}
	if c.PendingRequests != nil {
		c.PendingRequests.Set(float64(requests))
	}
	if c.BookingsActive != nil {
		c.BookingsActive.Set(float64(bookings))
	}
}

// AddShortfalls adds n shortfalls for the given request kind.
func (c *SchedulerCollector) AddShortfalls(kind string, n int) {
	if c == nil || c.ShortfallsTotal == nil || n <= 0 {
		return
	}
	c.ShortfallsTotal.WithLabelValues(kind).Add(float64(n))
}

// IncCollaboratorFailure counts one aborted pass against collaborator.
func (c *SchedulerCollector) IncCollaboratorFailure(collaborator string) {
	if c == nil || c.CollaboratorFailures == nil {
		return
	}
	c.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

// SetPassCacheHitRatio sets the pass cache hit ratio, clamped to [0, 1].
func (c *SchedulerCollector) SetPassCacheHitRatio(ratio float64) {
	if c == nil || c.PassCacheHitRatio == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	c.PassCacheHitRatio.Set(ratio)
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
