package stock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	compensationsRun = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "stock_saga",
		Name:      "compensations_total",
		Help:      "Total number of reservation decrements compensated after a partial failure.",
	})

	pendingCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "order_service",
		Subsystem: "stock_saga",
		Name:      "pending_compensations_total",
		Help:      "Total number of compensation increments that had to be recorded for reconciliation.",
	})
)
