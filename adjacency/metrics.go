package adjacency

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	adjacencyBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "adjacency_build_latency",
		Help: "The time to build a chunk adjacency graph.",
	})

	adjacencyNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adjacency_nodes",
		Help:    "The number of nodes of built adjacency graphs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	adjacencyEdges = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "adjacency_edges",
		Help:    "The number of edges of built adjacency graphs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	adjacencyLostEdges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adjacency_lost_edges",
		Help: "The number of edges removed when rebuilding connections of modified chunks.",
	})
)

func instrumentBuild(start time.Time, nodes, edges int) {
	adjacencyBuildLatency.Observe(time.Since(start).Seconds())
	adjacencyNodes.Observe(float64(nodes))
	adjacencyEdges.Observe(float64(edges))
}

func instrumentRebuild(before, after int) {
	if before > after {
		adjacencyLostEdges.Add(float64(before - after))
	}
}
