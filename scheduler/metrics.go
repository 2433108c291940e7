package scheduler

import (
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel      = "error_type"
	priorityLabel     = "priority"
	chunkLabel        = "chunk"
	destructibleLabel = "destructible"
	resultLabel       = "result"
)

var (
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth",
		Help: "The number of requests waiting to be batched.",
	}, []string{
		priorityLabel,
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_batch_size",
		Help:    "The number of requests unioned together.",
		Buckets: prometheus.LinearBuckets(1, 2, 10),
	})

	subtractLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "scheduler_subtract_latency",
		Help: "The time to subtract a union from a chunk mesh.",
	}, []string{
		errTypeLabel,
	})

	unionLimit = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_union_limit",
		Help: "The number of requests a chunk unions together.",
	}, []string{
		chunkLabel,
	})

	busyRequeues = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_busy_requeues",
		Help: "The number of union results held back because their chunk was busy.",
	})

	simplifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_simplifications",
		Help: "The number of chunk mesh simplifications.",
	})

	applyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "scheduler_apply_latency",
		Help: "The time for an owner to apply a boolean result.",
	}, []string{
		destructibleLabel,
	})

	requestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_request_results",
		Help: "The number of requests completed or skipped.",
	}, []string{
		destructibleLabel,
		resultLabel,
	})
)

func instrumentQueues(high, normal int) {
	queueDepth.With(prometheus.Labels{priorityLabel: "high"}).Set(float64(high))
	queueDepth.With(prometheus.Labels{priorityLabel: "normal"}).Set(float64(normal))
}

func instrumentBatch(size int) {
	batchSize.Observe(float64(size))
}

func instrumentSubtract(d time.Duration, err error) {
	var errType string
	if err != nil {
		errType = errors.Type(err)
	}

	subtractLatency.
		With(prometheus.Labels{
			errTypeLabel: errType,
		}).
		Observe(d.Seconds())
}

func instrumentUnionLimit(chunk, limit int) {
	unionLimit.
		With(prometheus.Labels{chunkLabel: strconv.Itoa(chunk)}).
		Set(float64(limit))
}

func instrumentBusyRequeue() {
	busyRequeues.Inc()
}

func instrumentSimplify() {
	simplifications.Inc()
}
