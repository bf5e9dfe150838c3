package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcbe_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReserveConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcbe_reserve_conflicts_total",
			Help: "Conditional seat updates that lost to a concurrent booking",
		},
	)

	BookingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcbe_booking_seconds",
			Help:    "Duration of booking attempts including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcbe_cancellations_total",
			Help: "Reservation cancellations",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcbe_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcbe_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
