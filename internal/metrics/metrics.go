// Package metrics exposes Prometheus counters and histograms for the
// update engine's mutating operations, so an embedder that already runs a
// /metrics endpoint (as syncthing's own cmd/syncthing does) gets update
// activity for free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LockAcquisitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esky",
		Subsystem: "lock",
		Name:      "acquisitions_total",
		Help:      "Number of times the appdir lock was successfully acquired.",
	}, []string{"appdir"})

	LockStaleBreaks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esky",
		Subsystem: "lock",
		Name:      "stale_breaks_total",
		Help:      "Number of times an abandoned appdir lock was broken by a new acquirer.",
	}, []string{"appdir"})

	Installs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esky",
		Subsystem: "swapper",
		Name:      "installs_total",
		Help:      "Number of version install attempts, by outcome.",
	}, []string{"appdir", "outcome"})

	Uninstalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esky",
		Subsystem: "swapper",
		Name:      "uninstalls_total",
		Help:      "Number of version uninstall attempts, by outcome.",
	}, []string{"appdir", "outcome"})

	CleanupRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esky",
		Subsystem: "cleanup",
		Name:      "runs_total",
		Help:      "Number of cleanup passes run, by whether they fully cleaned the appdir.",
	}, []string{"appdir", "fully_cleaned"})

	CleanupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "esky",
		Subsystem: "cleanup",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of a single cleanup pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"appdir"})
)

// MustRegister registers every collector in this package against reg. Call
// once per process; panics (like prometheus.MustRegister) if a collector
// with a colliding name is already registered.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		LockAcquisitions,
		LockStaleBreaks,
		Installs,
		Uninstalls,
		CleanupRuns,
		CleanupDuration,
	)
}
