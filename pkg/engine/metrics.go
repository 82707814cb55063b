package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics registered on the default registry.
var (
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyndns_sweeps_total",
		Help: "Total number of sweeps by result.",
	}, []string{"result"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dyndns_sweep_duration_seconds",
		Help:    "Duration of sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dyndns_publishes_total",
		Help: "Total number of provider publish calls by result.",
	}, []string{"result"})

	resolutionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dyndns_resolution_failures_total",
		Help: "Total number of failed public address resolutions.",
	})

	domainsDisabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dyndns_domains_disabled",
		Help: "Current number of domains disabled after a fatal provider error.",
	})

	backoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dyndns_backoff_seconds",
		Help:    "Delay before each scheduled retry in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
