package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/prometheus/client_golang/prometheus"
)

// Owner owns the chunk meshes edited by a scheduler. Its methods are called
// from the goroutine calling Tick and must not call back into the scheduler,
// Enqueue excepted.
type Owner interface {
	ChunkCount() int

	// ChunkMesh returns a copy of the chunk mesh.
	ChunkMesh(chunk int) (*mesh.Mesh, error)

	ApplyBooleanResult(m *mesh.Mesh, chunk int, deferCollisionUpdate bool)

	NotifyBooleanCompleted(requestID uint32)
	NotifyBooleanSkipped(requestID uint32)
}

// WorkRequester runs functions on workers.
type WorkRequester interface {
	RequestWork(fn func())
}

// OwnerWithLogs logs the results handed to an owner and periodically logs a
// summary of them.
func OwnerWithLogs(o Owner, name string, summaryInterval time.Duration) *LoggedOwner {
	ctx, cancel := context.WithCancel(context.Background())

	owner := &LoggedOwner{
		Owner:              o,
		name:               name,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go owner.startSummaryWorker(ctx)
	return owner
}

type LoggedOwner struct {
	Owner

	name               string
	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (o *LoggedOwner) ApplyBooleanResult(m *mesh.Mesh, chunk int, deferCollisionUpdate bool) {
	o.Owner.ApplyBooleanResult(m, chunk, deferCollisionUpdate)

	logs.WithTag("destructible", o.name).
		WithTag("chunk", chunk).
		WithTag("triangles", m.TriangleCount()).
		Debug("boolean result applied")
	o.incCounter("applied")
}

func (o *LoggedOwner) NotifyBooleanCompleted(requestID uint32) {
	o.Owner.NotifyBooleanCompleted(requestID)
	o.incCounter("completed")
}

func (o *LoggedOwner) NotifyBooleanSkipped(requestID uint32) {
	o.Owner.NotifyBooleanSkipped(requestID)

	logs.WithTag("destructible", o.name).
		WithTag("request_id", requestID).
		Debug("boolean request skipped")
	o.incCounter("skipped")
}

// Close stops the summary worker and logs a last summary.
func (o *LoggedOwner) Close() {
	o.closeSummaryWorker()
	o.logSummary()
}

func (o *LoggedOwner) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(o.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			o.logSummary()
		}
	}
}

func (o *LoggedOwner) incCounter(name string) {
	o.counterMutex.Lock()
	defer o.counterMutex.Unlock()

	o.counter[name]++
}

func (o *LoggedOwner) logSummary() {
	o.counterMutex.Lock()
	defer o.counterMutex.Unlock()

	if len(o.counter) == 0 {
		return
	}

	entry := logs.
		WithTag("destructible", o.name).
		WithTag("time_interval", o.summaryInterval)

	for k, v := range o.counter {
		entry = entry.WithTag(k, v)
		delete(o.counter, k)
	}

	entry.Info("boolean result summary")
}

// OwnerWithMetrics counts the results handed to an owner.
func OwnerWithMetrics(o Owner, name string) Owner {
	return &ownerWithMetrics{
		Owner: o,
		name:  name,
	}
}

type ownerWithMetrics struct {
	Owner

	name string
}

func (o *ownerWithMetrics) ApplyBooleanResult(m *mesh.Mesh, chunk int, deferCollisionUpdate bool) {
	start := time.Now()
	o.Owner.ApplyBooleanResult(m, chunk, deferCollisionUpdate)

	applyLatency.
		With(prometheus.Labels{destructibleLabel: o.name}).
		Observe(time.Since(start).Seconds())
}

func (o *ownerWithMetrics) NotifyBooleanCompleted(requestID uint32) {
	o.Owner.NotifyBooleanCompleted(requestID)

	requestResults.
		With(prometheus.Labels{
			destructibleLabel: o.name,
			resultLabel:       "completed",
		}).
		Inc()
}

func (o *ownerWithMetrics) NotifyBooleanSkipped(requestID uint32) {
	o.Owner.NotifyBooleanSkipped(requestID)

	requestResults.
		With(prometheus.Labels{
			destructibleLabel: o.name,
			resultLabel:       "skipped",
		}).
		Inc()
}
