package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics use only bounded-cardinality labels (a verdict name) — no
// per-entity or per-connection labels, since either would grow unbounded
// with player count and blow up a scrape.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zoneserver_tick_duration_seconds",
		Help:    "Wall-clock time spent executing one simulation tick.",
		Buckets: []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.05, 0.1},
	})

	connectedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zoneserver_connected_players",
		Help: "Players currently connected to this zone.",
	})

	anticheatVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoneserver_anticheat_verdicts_total",
		Help: "Anti-cheat verdicts issued during movement validation, by verdict.",
	}, []string{"verdict"})

	snapshotBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zoneserver_snapshot_bytes",
		Help:    "Size in bytes of delta-compressed snapshot payloads sent to connections.",
		Buckets: prometheus.ExponentialBuckets(32, 2, 10),
	})

	migrationsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zoneserver_migrations_aborted_total",
		Help: "Entity migrations aborted after exceeding their deadline.",
	})

	migrationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zoneserver_migrations_started_total",
		Help: "Entity migrations started after a border-crossing was detected.",
	})

	migrationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zoneserver_migrations_completed_total",
		Help: "Entity migrations that reached a confirmed hand-off to the neighbour zone.",
	})

	qosDegradeEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zoneserver_qos_degrade_total",
		Help: "Times the tick scheduler degraded snapshot send rates due to sustained tick overruns.",
	})
)
