package cellstructure

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
)

var (
	cellStructureBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cell_structure_builds",
		Help: "The number of cell structures built.",
	})

	cellStructureBuildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cell_structure_build_errors",
		Help: "The errors that occured while building a cell structure.",
	}, []string{
		errTypeLabel,
	})

	cellStructureBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "cell_structure_build_latency",
		Help: "The time to build a cell structure.",
	})

	cellStructureCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cell_structure_cells",
		Help:    "The number of cells of built cell structures.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func instrumentBuild(start time.Time, data *Data, err error) {
	cellStructureBuildLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		cellStructureBuildErrors.
			With(prometheus.Labels{
				errTypeLabel: errors.Type(err),
			}).
			Inc()
		return
	}

	cellStructureBuilds.Inc()
	cellStructureCells.Observe(float64(data.CellCount()))
}
