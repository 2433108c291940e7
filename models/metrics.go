package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	destructibleLabel = "destructible"
	resultLabel       = "result"
)

var (
	destructibleCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "destructible_count",
		Help: "The number of destructibles.",
	})

	debrisCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debris_count",
		Help: "The number of debris kept by the debris store.",
	})

	debrisSpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "debris_spawned_total",
		Help: "The total number of spawned debris.",
	}, []string{destructibleLabel})

	impacts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "impacts_total",
		Help: "The total number of impacts by result.",
	}, []string{
		destructibleLabel,
		resultLabel,
	})
)

func instrumentDestructibleGauge(n int) {
	destructibleCount.Set(float64(n))
}

func instrumentDebrisGauge(n int) {
	debrisCount.Set(float64(n))
}

func instrumentDebrisSpawn(destructible string) {
	debrisSpawned.
		With(prometheus.Labels{destructibleLabel: destructible}).
		Inc()
}

func instrumentImpact(destructible, result string) {
	impacts.
		With(prometheus.Labels{
			destructibleLabel: destructible,
			resultLabel:       result,
		}).
		Inc()
}
