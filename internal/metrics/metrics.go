package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingUpdatesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_updates_sent_total",
			Help: "Booking updates accepted for broadcast",
		},
		[]string{"path"}, // local | backplane
	)

	BookingUpdateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_update_deliveries_total",
			Help: "Booking updates enqueued to a connected client",
		},
	)

	BookingUpdateDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_update_drops_total",
			Help: "Booking updates a connection could not accept",
		},
	)

	HubConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booking_hub_connections",
			Help: "Currently connected booking hub clients",
		},
		[]string{"transport"}, // ws | grpc
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of REST requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"route", "status"},
	)

	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"surface"},
	)
)
