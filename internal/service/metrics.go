package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "lifecycle",
		Name:      "orders_created_total",
		Help:      "Total number of orders created.",
	})

	ordersConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "lifecycle",
		Name:      "orders_confirmed_total",
		Help:      "Total number of orders confirmed.",
	})

	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "lifecycle",
		Name:      "orders_cancelled_total",
		Help:      "Total number of orders cancelled.",
	})

	reservationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "lifecycle",
		Name:      "reservation_failures_total",
		Help:      "Total number of confirms that failed on stock reservation.",
	})

	releaseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "lifecycle",
		Name:      "release_failures_total",
		Help:      "Total number of cancellations blocked by a failed stock release.",
	})
)
