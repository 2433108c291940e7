package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/brotna/boolean"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeInvalidInput = "invalid_input"
	ErrTypeShutdown     = "scheduler_shutdown"
)

// Request asks for a tool shape to be carved out of a chunk.
type Request struct {
	ID    uint32
	Chunk int

	// The tool shape in its local space. It is shared between requests and
	// never modified.
	Tool      *mesh.Mesh
	Transform mesh.Transform

	// Penetrating requests are served before surface ones.
	Penetrating bool
}

type batch struct {
	chunk    int
	seq      uint64
	requests []Request
}

type unionResult struct {
	chunk      int
	seq        uint64
	tool       *mesh.Mesh
	requestIDs []uint32
	skipped    []uint32
}

type subtractJob struct {
	union unionResult
	lease *Lease
}

type subtractResult struct {
	chunk      int
	mesh       *mesh.Mesh
	err        error
	requestIDs []uint32
	duration   time.Duration
	lease      *Lease
}

type slot struct {
	unionActive    atomic.Int32
	subtractActive atomic.Int32

	unions    []batch
	subtracts []subtractJob
}

func (s *slot) load() int {
	return int(s.unionActive.Load()) + 2*int(s.subtractActive.Load())
}

// admit reserves a worker on counter when it is under limit.
func admit(counter *atomic.Int32, limit int) bool {
	for {
		n := counter.Load()
		if int(n) >= limit {
			return false
		}
		if counter.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Scheduler carves tool shapes out of chunk meshes. Requests of a chunk are
// unioned in batches, each union is subtracted from a copy of the chunk mesh
// on a worker and the result is applied by the goroutine calling Tick.
type Scheduler struct {
	settings Settings
	owner    Owner
	pool     WorkRequester
	op       boolean.Operator
	life     *lifetime
	busy     *BusyTokens

	queueMutex sync.Mutex
	high       []Request
	normal     []Request

	mailboxMutex    sync.Mutex
	unionMailbox    []unionResult
	subtractMailbox []subtractResult

	// Owned by the goroutine calling Tick.
	mutex        sync.Mutex
	chunkCount   int
	slots        []*slot
	chunkSlots   map[int]int
	inFlight     []int
	pending      [][]unionResult
	nextBatch    []uint64
	nextSubtract []uint64
	generations  []uint64
	holeCounts   []int

	pacingMutex  sync.Mutex
	pacing       []chunkPacing
	cadence      simplifyCadence
	subtractCost costAverage
}

// New creates a scheduler for the chunks of owner. Workers are requested
// from pool and geometry is computed with op.
func New(owner Owner, pool WorkRequester, op boolean.Operator, settings Settings) (*Scheduler, error) {
	chunkCount := owner.ChunkCount()
	if chunkCount <= 0 {
		return nil, errors.New("owner has no chunk").
			WithType(ErrTypeInvalidInput)
	}

	poolSize := 1
	if p, ok := pool.(interface{ Max() int }); ok {
		poolSize = p.Max()
	}
	settings = settings.withDefaults(poolSize)

	s := &Scheduler{
		settings:     settings,
		owner:        owner,
		pool:         pool,
		op:           op,
		busy:         NewBusyTokens(chunkCount),
		chunkCount:   chunkCount,
		slots:        make([]*slot, settings.Slots),
		chunkSlots:   make(map[int]int),
		inFlight:     make([]int, chunkCount),
		pending:      make([][]unionResult, chunkCount),
		nextBatch:    make([]uint64, chunkCount),
		nextSubtract: make([]uint64, chunkCount),
		generations:  make([]uint64, chunkCount),
		holeCounts:   make([]int, chunkCount),
		pacing:       make([]chunkPacing, chunkCount),
		cadence:      newSimplifyCadence(settings.SimplifyInterval, settings.MinSimplifyInterval),
		subtractCost: costAverage{avg: initialSubtractCost},
	}
	s.life = newLifetime(s)

	for i := range s.slots {
		s.slots[i] = &slot{}
	}

	for i := range s.pacing {
		s.pacing[i].unionLimit = settings.InitialUnionLimit
		if m, err := owner.ChunkMesh(i); err == nil {
			s.pacing[i].lastSimplifyTriCount = m.TriangleCount()
		}
	}

	logs.WithTag("chunks", chunkCount).
		WithTag("slots", settings.Slots).
		Debug("boolean scheduler created")
	return s, nil
}

func (s *Scheduler) Settings() Settings {
	return s.settings
}

// Enqueue queues a request. It can be called from any goroutine.
func (s *Scheduler) Enqueue(r Request) error {
	if !s.life.alive.Load() {
		return errors.New("scheduler is shut down").
			WithType(ErrTypeShutdown).
			WithTag("request_id", r.ID)
	}

	if r.Chunk < 0 || r.Chunk >= s.chunkCount {
		return errors.New("invalid chunk").
			WithType(ErrTypeInvalidInput).
			WithTag("request_id", r.ID).
			WithTag("chunk", r.Chunk)
	}

	s.queueMutex.Lock()
	defer s.queueMutex.Unlock()

	if r.Penetrating {
		s.high = append(s.high, r)
	} else {
		s.normal = append(s.normal, r)
	}
	return nil
}

// Tick applies finished results and dispatches queued work. It must always
// be called from the same goroutine.
func (s *Scheduler) Tick() {
	if !s.life.alive.Load() {
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.drainMailbox()
	s.batchQueues()
	s.dispatchUnions()
	s.queueSubtracts()
	s.dispatchSubtracts()

	s.queueMutex.Lock()
	high, normal := len(s.high), len(s.normal)
	s.queueMutex.Unlock()
	instrumentQueues(high, normal)
}

// Run calls Tick every frameDuration until ctx is done.
func (s *Scheduler) Run(ctx context.Context, frameDuration time.Duration) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if !s.life.alive.Load() {
				return errors.New("scheduler is shut down").
					WithType(ErrTypeShutdown)
			}
			s.Tick()
		}
	}
}

// Idle reports whether no request is queued or being processed.
func (s *Scheduler) Idle() bool {
	s.queueMutex.Lock()
	queued := len(s.high) + len(s.normal)
	s.queueMutex.Unlock()
	if queued != 0 {
		return false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, n := range s.inFlight {
		if n != 0 {
			return false
		}
	}
	return true
}

// Generation returns the number of results applied to the chunk.
func (s *Scheduler) Generation(chunk int) uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if chunk < 0 || chunk >= s.chunkCount {
		return 0
	}
	return s.generations[chunk]
}

// HoleCount returns the number of requests carved out of the chunk.
func (s *Scheduler) HoleCount(chunk int) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if chunk < 0 || chunk >= s.chunkCount {
		return 0
	}
	return s.holeCounts[chunk]
}

// CancelAll drops queued work and resets the adaptive state. Dropped
// requests are reported as skipped. Work already running on a worker still
// completes.
func (s *Scheduler) CancelAll() {
	s.queueMutex.Lock()
	dropped := append(s.high, s.normal...)
	s.high = nil
	s.normal = nil
	s.queueMutex.Unlock()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, sl := range s.slots {
		for _, b := range sl.unions {
			dropped = append(dropped, b.requests...)
			s.inFlight[b.chunk]--
		}
		sl.unions = nil

		for _, job := range sl.subtracts {
			job.lease.Release()
			s.inFlight[job.union.chunk]--
			for _, id := range job.union.requestIDs {
				s.owner.NotifyBooleanSkipped(id)
			}
		}
		sl.subtracts = nil
	}

	for chunk, results := range s.pending {
		for _, r := range results {
			s.inFlight[chunk]--
			// Skipped tools were reported when the result was drained.
			for _, id := range r.requestIDs {
				s.owner.NotifyBooleanSkipped(id)
			}
		}
		s.pending[chunk] = nil
		s.nextSubtract[chunk] = s.nextBatch[chunk]
		s.holeCounts[chunk] = 0
		s.releaseChunkSlot(chunk)
	}

	for _, r := range dropped {
		s.owner.NotifyBooleanSkipped(r.ID)
	}

	s.pacingMutex.Lock()
	for i := range s.pacing {
		last := s.pacing[i].lastSimplifyTriCount
		s.pacing[i] = chunkPacing{
			unionLimit:           s.settings.InitialUnionLimit,
			lastSimplifyTriCount: last,
		}
	}
	s.cadence.applyCost = 0
	s.pacingMutex.Unlock()

	logs.WithTag("dropped", len(dropped)).Info("boolean operations cancelled")
}

// Shutdown stops the scheduler. Running workers finish but their results are
// dropped.
func (s *Scheduler) Shutdown() {
	s.life.clear()

	s.queueMutex.Lock()
	s.high = nil
	s.normal = nil
	s.queueMutex.Unlock()

	s.mailboxMutex.Lock()
	s.unionMailbox = nil
	s.subtractMailbox = nil
	s.mailboxMutex.Unlock()

	logs.Debug("boolean scheduler shut down")
}

func (s *Scheduler) postUnion(r unionResult) {
	s.mailboxMutex.Lock()
	defer s.mailboxMutex.Unlock()

	s.unionMailbox = append(s.unionMailbox, r)
}

func (s *Scheduler) postSubtract(r subtractResult) {
	s.mailboxMutex.Lock()
	defer s.mailboxMutex.Unlock()

	s.subtractMailbox = append(s.subtractMailbox, r)
}

func (s *Scheduler) drainMailbox() {
	s.mailboxMutex.Lock()
	unions, subtracts := s.unionMailbox, s.subtractMailbox
	s.unionMailbox, s.subtractMailbox = nil, nil
	s.mailboxMutex.Unlock()

	for _, r := range unions {
		for _, id := range r.skipped {
			s.owner.NotifyBooleanSkipped(id)
		}
		if r.seq < s.nextSubtract[r.chunk] {
			// Cancelled while unioning.
			for _, id := range r.requestIDs {
				s.owner.NotifyBooleanSkipped(id)
			}
			s.inFlight[r.chunk]--
			s.releaseChunkSlot(r.chunk)
			continue
		}

		pending := append(s.pending[r.chunk], r)
		sort.Slice(pending, func(i, j int) bool {
			return pending[i].seq < pending[j].seq
		})
		s.pending[r.chunk] = pending
	}

	for _, r := range subtracts {
		s.apply(r)
	}
}

func (s *Scheduler) apply(r subtractResult) {
	if r.mesh != nil {
		start := time.Now()
		s.owner.ApplyBooleanResult(r.mesh, r.chunk, false)
		s.generations[r.chunk]++
		s.holeCounts[r.chunk] += len(r.requestIDs)
		s.updateSimplifyCadence(time.Since(start))
	} else if r.err != nil {
		logs.Warn(errors.New("subtracting tool from chunk failed").
			WithTag("chunk", r.chunk).
			WithTag("requests", len(r.requestIDs)).
			Wrap(r.err))
	}

	r.lease.Release()
	s.inFlight[r.chunk]--
	s.releaseChunkSlot(r.chunk)

	for _, id := range r.requestIDs {
		s.owner.NotifyBooleanCompleted(id)
	}
	instrumentSubtract(r.duration, r.err)
}

// batchQueues groups queued requests per chunk in order of first appearance.
// Requests over the chunk union limit are put back in front of the queue.
func (s *Scheduler) batchQueues() {
	s.queueMutex.Lock()
	high, normal := s.high, s.normal
	s.high, s.normal = nil, nil
	s.queueMutex.Unlock()

	highBatches, highOverflow := s.gather(high)
	normalBatches, normalOverflow := s.gather(normal)

	if len(highOverflow) != 0 || len(normalOverflow) != 0 {
		s.queueMutex.Lock()
		s.high = append(highOverflow, s.high...)
		s.normal = append(normalOverflow, s.normal...)
		s.queueMutex.Unlock()
	}

	for _, b := range append(highBatches, normalBatches...) {
		b.seq = s.nextBatch[b.chunk]
		s.nextBatch[b.chunk]++
		s.inFlight[b.chunk]++

		sl := s.slots[s.routeChunk(b.chunk)]
		sl.unions = append(sl.unions, b)
		instrumentBatch(len(b.requests))
	}
}

func (s *Scheduler) gather(requests []Request) ([]batch, []Request) {
	var batches []batch
	var overflow []Request
	index := make(map[int]int)

	for _, r := range requests {
		i, ok := index[r.Chunk]
		if !ok {
			i = len(batches)
			index[r.Chunk] = i
			batches = append(batches, batch{chunk: r.Chunk})
		}

		if len(batches[i].requests) >= s.unionLimit(r.Chunk) {
			overflow = append(overflow, r)
			continue
		}
		batches[i].requests = append(batches[i].requests, r)
	}
	return batches, overflow
}

// routeChunk returns the slot already serving the chunk, or the least busy
// one.
func (s *Scheduler) routeChunk(chunk int) int {
	if i, ok := s.chunkSlots[chunk]; ok {
		return i
	}

	best, bestLoad := 0, -1
	for i, sl := range s.slots {
		load := sl.load() + len(sl.unions) + 2*len(sl.subtracts)
		if bestLoad < 0 || load < bestLoad {
			best, bestLoad = i, load
		}
	}

	s.chunkSlots[chunk] = best
	return best
}

func (s *Scheduler) releaseChunkSlot(chunk int) {
	if s.inFlight[chunk] <= 0 {
		s.inFlight[chunk] = 0
		delete(s.chunkSlots, chunk)
	}
}

func (s *Scheduler) dispatchUnions() {
	for _, sl := range s.slots {
		for len(sl.unions) != 0 && admit(&sl.unionActive, s.settings.MaxUnionWorkersPerSlot) {
			b := sl.unions[0]
			sl.unions = sl.unions[1:]
			s.pool.RequestWork(s.unionWork(sl, b))
		}
	}
}

// queueSubtracts moves the next union result of every idle chunk to the
// subtract queue of its slot.
func (s *Scheduler) queueSubtracts() {
	for chunk := range s.pending {
		for len(s.pending[chunk]) != 0 {
			r := s.pending[chunk][0]
			if r.seq != s.nextSubtract[chunk] {
				break
			}

			if r.tool == nil {
				s.pending[chunk] = s.pending[chunk][1:]
				s.nextSubtract[chunk]++
				s.inFlight[chunk]--
				s.releaseChunkSlot(chunk)
				continue
			}

			lease, ok := s.busy.TryAcquire(chunk)
			if !ok {
				instrumentBusyRequeue()
				break
			}

			s.pending[chunk] = s.pending[chunk][1:]
			s.nextSubtract[chunk]++

			sl := s.slots[s.routeChunk(chunk)]
			sl.subtracts = append(sl.subtracts, subtractJob{
				union: r,
				lease: lease,
			})
			break
		}
	}
}

func (s *Scheduler) dispatchSubtracts() {
	for _, sl := range s.slots {
		for len(sl.subtracts) != 0 && admit(&sl.subtractActive, s.settings.MaxSubtractWorkersPerSlot) {
			job := sl.subtracts[0]
			sl.subtracts = sl.subtracts[1:]

			target, err := s.owner.ChunkMesh(job.union.chunk)
			if err != nil {
				sl.subtractActive.Add(-1)
				s.apply(subtractResult{
					chunk:      job.union.chunk,
					err:        err,
					requestIDs: job.union.requestIDs,
					lease:      job.lease,
				})
				continue
			}

			s.pool.RequestWork(s.subtractWork(sl, job, target))
		}
	}
}

func (s *Scheduler) unionWork(sl *slot, b batch) func() {
	life := s.life
	op := s.op

	return func() {
		defer sl.unionActive.Add(-1)

		if life.get() == nil {
			return
		}

		res := unionResult{
			chunk: b.chunk,
			seq:   b.seq,
		}

		for _, r := range b.requests {
			if r.Tool == nil || r.Tool.IsEmpty() {
				res.skipped = append(res.skipped, r.ID)
				continue
			}

			tool := r.Tool.Transformed(r.Transform)
			if tool.IsEmpty() {
				res.skipped = append(res.skipped, r.ID)
				continue
			}

			if res.tool == nil {
				res.tool = tool
			} else {
				u, err := op.Union(res.tool, tool)
				if err != nil {
					logs.Warn(errors.New("union of tool shapes failed").
						WithTag("chunk", b.chunk).
						WithTag("request_id", r.ID).
						Wrap(err))
					res.skipped = append(res.skipped, r.ID)
					continue
				}
				res.tool = u
			}
			res.requestIDs = append(res.requestIDs, r.ID)
		}

		if sched := life.get(); sched != nil {
			sched.postUnion(res)
		}
	}
}

func (s *Scheduler) subtractWork(sl *slot, job subtractJob, target *mesh.Mesh) func() {
	life := s.life
	op := s.op
	retry := s.settings.Retry

	return func() {
		defer sl.subtractActive.Add(-1)

		sched := life.get()
		if sched == nil {
			return
		}

		chunk := job.union.chunk
		start := time.Now()
		out, err := retry.Subtract(op, target, job.union.tool, mesh.IdentityTransform())
		d := time.Since(start)

		res := subtractResult{
			chunk:      chunk,
			requestIDs: job.union.requestIDs,
			duration:   d,
			lease:      job.lease,
		}

		if err != nil {
			sched.resetSubtractDuration(chunk)
			res.err = err
		} else {
			sched.accumulateSubtractDuration(chunk, d)
			res.mesh = sched.trySimplify(out, chunk, len(job.union.requestIDs))
			sched.updateSubtractCost(d)
			sched.updateUnionLimit(chunk, d)
		}

		if sched = life.get(); sched != nil {
			sched.postSubtract(res)
		}
	}
}
