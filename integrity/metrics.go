package integrity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	integrityHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integrity_hits",
		Help: "The number of hits processed by structural integrity systems.",
	})

	integrityDestroyedCells = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integrity_destroyed_cells",
		Help: "The number of destroyed cells.",
	})

	integrityDetachedGroups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integrity_detached_groups",
		Help: "The number of cell groups detached from every anchor.",
	})

	integrityDetachedCells = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integrity_detached_cells",
		Help: "The number of cells detached from every anchor.",
	})

	integrityCollapses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integrity_collapses",
		Help: "The number of updates leaving a structure without any anchor.",
	})

	integrityReachabilityLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "integrity_reachability_latency",
		Help: "The time to recompute anchor reachability.",
	})
)

func instrumentHit() {
	integrityHits.Inc()
}

func instrumentDestroyedCells(n int) {
	integrityDestroyedCells.Add(float64(n))
}

func instrumentReachability(start time.Time) {
	integrityReachabilityLatency.Observe(time.Since(start).Seconds())
}

func instrumentResult(r Result) {
	integrityDetachedGroups.Add(float64(len(r.DetachedGroups)))
	integrityDetachedCells.Add(float64(r.DetachedCellCount()))
	if r.Collapsed {
		integrityCollapses.Inc()
	}
}
