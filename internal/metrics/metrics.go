package metrics

import (
	"time"

	"github.com/Domenick1991/bookingsaga/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booking"

// Metrics groups the saga collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	created              prometheus.Counter
	confirmed            prometheus.Counter
	cancelled            *prometheus.CounterVec
	compensationFailures *prometheus.CounterVec
	rejections           *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
	sweepCompensated     prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Bookings created with seats debited.",
		}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmed_total",
			Help:      "Bookings whose payment was accepted.",
		}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancelled_total",
			Help:      "Bookings moved to CANCELLED, by trigger.",
		}, []string{"trigger"}),
		compensationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_failures_total",
			Help:      "Compensations that could not complete, by trigger.",
		}, []string{"trigger"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Failed create/payment requests, by operation and error kind.",
		}, []string{"operation", "kind"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepCompensated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_compensated_total",
			Help:      "Bookings cancelled by the expiry sweeper.",
		}),
	}

	reg.MustRegister(
		m.created,
		m.confirmed,
		m.cancelled,
		m.compensationFailures,
		m.rejections,
		m.sweepDuration,
		m.sweepCompensated,
	)
	return m
}

func (m *Metrics) BookingCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) BookingConfirmed() {
	if m == nil {
		return
	}
	m.confirmed.Inc()
}

func (m *Metrics) BookingCancelled(trigger string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(trigger).Inc()
}

func (m *Metrics) CompensationFailed(trigger string) {
	if m == nil {
		return
	}
	m.compensationFailures.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Rejected(operation string, kind domain.Kind) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, string(kind)).Inc()
}

func (m *Metrics) SweepFinished(started time.Time, compensated int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(time.Since(started).Seconds())
	m.sweepCompensated.Add(float64(compensated))
}
