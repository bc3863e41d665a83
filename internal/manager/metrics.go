package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	pipelinesLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "live_pipelines",
			Help:      "Live pipelines per pair",
		},
		[]string{"pair"},
	)

	pipelinesHolding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "holding_pipelines",
			Help:      "Retired pipelines waiting for their last caller",
		},
	)

	pipelinesStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "pipelines_started_total",
			Help:      "Pipelines started per pair",
		},
		[]string{"pair"},
	)

	pipelinesRetiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "pipelines_retired_total",
			Help:      "Pipelines retired, by reason (stuck, restart, idle, uninstalled)",
		},
		[]string{"reason"},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "requests_total",
			Help:      "Translation and mode requests by target and outcome",
		},
		[]string{"target", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apyd",
			Subsystem: "pool",
			Name:      "request_duration_seconds",
			Help:      "Time spent inside pipelines per request",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(pipelinesLive, pipelinesHolding, pipelinesStartedTotal,
		pipelinesRetiredTotal, requestsTotal, requestDuration)
}
