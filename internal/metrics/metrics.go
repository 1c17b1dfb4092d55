package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsValidated counts submitted actions by verdict reason.
	ActionsValidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_actions_validated_total",
			Help: "Total actions run through the validator, by verdict reason",
		},
		[]string{"reason"},
	)

	// AntiCheatViolations counts anti-cheat findings by kind.
	AntiCheatViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_anticheat_violations_total",
			Help: "Total anti-cheat violations detected, by kind",
		},
		[]string{"kind"},
	)

	// TurnsResolved counts resolved turns.
	TurnsResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "arbiter_turns_resolved_total",
			Help: "Total turns resolved across all matches",
		},
	)

	// MatchesActive tracks the number of matches currently in memory.
	MatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_matches_active",
			Help: "Number of matches currently running",
		},
	)

	// ResolutionDuration observes how long turn resolution takes.
	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arbiter_resolution_duration_seconds",
			Help:    "Turn resolution wall time",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTPRequests counts HTTP requests by method, route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arbiter_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration observes HTTP request latency by method and route.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "arbiter_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(ActionsValidated)
	prometheus.MustRegister(AntiCheatViolations)
	prometheus.MustRegister(TurnsResolved)
	prometheus.MustRegister(MatchesActive)
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
}
