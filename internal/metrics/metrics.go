// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RankingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_rankings_total",
			Help: "Total number of rankings computed",
		},
		[]string{"subject", "outcome"},
	)

	RankingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifelink_ranking_duration_seconds",
			Help:    "Duration of a ranking in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"subject"},
	)

	PairsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_pairs_scored_total",
			Help: "Donor/request pairs scored, by result",
		},
		[]string{"result"},
	)

	DonorAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifelink_donor_alerts_total",
			Help: "Donor alert events published",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "lifelink_http_request_duration_seconds",
			Help: "HTTP request latency in seconds",
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter",
		},
		[]string{"tenant"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_cache_lookups_total",
			Help: "Evaluation cache lookups by backend and result",
		},
		[]string{"backend", "result"},
	)

	BusEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelink_bus_events_total",
			Help: "Events handed to the bus by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	WorkerJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifelink_worker_jobs_active",
			Help: "Ranking jobs currently running in the worker",
		},
	)
)

// Pair results for PairsScored.
const (
	PairScored       = "scored"
	PairIncompatible = "incompatible"
	PairExcluded     = "excluded"
	PairBelowMin     = "below_min"
)

// Outcomes for CacheLookups and BusEvents.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheError   = "error"
	EventSent    = "sent"
	EventDropped = "dropped"
	EventFailed  = "failed"
)
