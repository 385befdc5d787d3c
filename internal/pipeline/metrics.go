package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts terminal run outcomes.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_runs_total",
		Help: "Total pipeline runs by terminal outcome.",
	}, []string{"outcome"})

	// activeRuns tracks runs currently holding a limiter permit.
	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courier_active_runs",
		Help: "Pipeline runs currently holding a concurrency permit.",
	})

	// stageDuration observes per-stage wall time.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courier_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stages.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// cacheLookups counts cache hits and misses at admission.
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_cache_lookups_total",
		Help: "Cache lookups by result.",
	}, []string{"result"})

	// bytesDelivered counts artifact bytes handed to a sink.
	bytesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_delivered_bytes_total",
		Help: "Total artifact bytes successfully delivered.",
	})
)
