package workerpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workerpool_active_workers",
		Help: "The number of workers running work.",
	})

	pendingWork = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workerpool_pending_work",
		Help: "The number of closures waiting for a worker.",
	})

	workLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "workerpool_work_latency",
		Help: "The time to run a closure.",
	})

	workPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workerpool_panics",
		Help: "The number of closures that panicked.",
	})
)

func instrumentQueue(active, pending int) {
	activeWorkers.Set(float64(active))
	pendingWork.Set(float64(pending))
}

func instrumentWork(start time.Time) {
	workLatency.Observe(time.Since(start).Seconds())
}

func instrumentPanic() {
	workPanics.Inc()
}
