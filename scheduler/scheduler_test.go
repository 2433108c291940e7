package scheduler

import (
	"sync"
	"testing"

	"github.com/aukilabs/brotna/boolean"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct {
	mutex     sync.Mutex
	chunks    []*mesh.Mesh
	applied   []int
	completed []uint32
	skipped   []uint32
}

func newFakeOwner(chunkCount int) *fakeOwner {
	return &fakeOwner{
		chunks: mesh.BoxGrid(
			mgl64.Vec3{},
			mgl64.Vec3{float64(chunkCount), 1, 1},
			mesh.SliceCount{chunkCount, 1, 1},
		),
	}
}

func (o *fakeOwner) ChunkCount() int {
	return len(o.chunks)
}

func (o *fakeOwner) ChunkMesh(chunk int) (*mesh.Mesh, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if chunk < 0 || chunk >= len(o.chunks) {
		return nil, errors.New("invalid chunk")
	}
	return o.chunks[chunk].Clone(), nil
}

func (o *fakeOwner) ApplyBooleanResult(m *mesh.Mesh, chunk int, deferCollisionUpdate bool) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.chunks[chunk] = m
	o.applied = append(o.applied, chunk)
}

func (o *fakeOwner) NotifyBooleanCompleted(requestID uint32) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.completed = append(o.completed, requestID)
}

func (o *fakeOwner) NotifyBooleanSkipped(requestID uint32) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.skipped = append(o.skipped, requestID)
}

// inlinePool runs work right away.
type inlinePool struct{}

func (inlinePool) RequestWork(fn func()) {
	fn()
}

// manualPool runs work when asked to.
type manualPool struct {
	mutex sync.Mutex
	work  []func()
}

func (p *manualPool) RequestWork(fn func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.work = append(p.work, fn)
}

func (p *manualPool) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.work)
}

// RunAt runs the work queued at index i.
func (p *manualPool) RunAt(i int) {
	p.mutex.Lock()
	fn := p.work[i]
	p.work = append(p.work[:i], p.work[i+1:]...)
	p.mutex.Unlock()

	fn()
}

func (p *manualPool) RunAll() int {
	p.mutex.Lock()
	work := p.work
	p.work = nil
	p.mutex.Unlock()

	for _, fn := range work {
		fn()
	}
	return len(work)
}

// carvingRequest returns a request removing the +x side of the unit chunk.
func carvingRequest(id uint32, chunk int, penetrating bool) Request {
	return Request{
		ID:          id,
		Chunk:       chunk,
		Tool:        mesh.Box(mgl64.Vec3{-0.5, -1, -1}, mgl64.Vec3{0.5, 2, 2}),
		Transform:   mesh.TranslationTransform(mgl64.Vec3{float64(chunk) + 1, 0, 0}),
		Penetrating: penetrating,
	}
}

func tickUntilIdle(t *testing.T, s *Scheduler) {
	for i := 0; i < 100; i++ {
		s.Tick()
		if s.Idle() {
			return
		}
	}
	require.FailNow(t, "scheduler did not become idle")
}

func TestNew(t *testing.T) {
	t.Run("owner without chunk", func(t *testing.T) {
		_, err := New(&fakeOwner{}, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))
	})

	t.Run("defaults are applied", func(t *testing.T) {
		s, err := New(newFakeOwner(2), inlinePool{}, boolean.CullingOperator{}, Settings{})
		require.NoError(t, err)

		settings := s.Settings()
		require.Equal(t, 1, settings.Slots)
		require.Equal(t, 10, settings.InitialUnionLimit)
		require.Equal(t, 20, settings.MaxUnionLimit)

		stats := s.Stats()
		require.Len(t, stats.Chunks, 2)
		require.Equal(t, 12, stats.Chunks[0].LastSimplified)
		require.Equal(t, 30, stats.SimplifyIntervalCap)
	})
}

func TestEnqueue(t *testing.T) {
	s, err := New(newFakeOwner(2), inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
	require.NoError(t, err)

	t.Run("invalid chunk is rejected", func(t *testing.T) {
		err := s.Enqueue(carvingRequest(1, 2, false))
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidInput, errors.Type(err))

		err = s.Enqueue(carvingRequest(1, -1, false))
		require.Error(t, err)
	})

	t.Run("requests are queued by priority", func(t *testing.T) {
		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(2, 0, true)))

		stats := s.Stats()
		require.Equal(t, 1, stats.HighQueue)
		require.Equal(t, 1, stats.NormalQueue)
		require.False(t, s.Idle())
	})
}

func TestScheduler(t *testing.T) {
	t.Run("request is carved out of its chunk", func(t *testing.T) {
		owner := newFakeOwner(2)
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{1}, owner.completed)
		require.Empty(t, owner.skipped)
		require.Equal(t, []int{0}, owner.applied)
		require.Less(t, owner.chunks[0].TriangleCount(), 12)
		require.Greater(t, owner.chunks[0].TriangleCount(), 0)
		require.Equal(t, 12, owner.chunks[1].TriangleCount())
		require.Equal(t, uint64(1), s.Generation(0))
		require.Equal(t, uint64(0), s.Generation(1))
		require.Equal(t, 1, s.HoleCount(0))
	})

	t.Run("requests of a chunk are unioned", func(t *testing.T) {
		owner := newFakeOwner(1)
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		for i := uint32(1); i <= 3; i++ {
			require.NoError(t, s.Enqueue(carvingRequest(i, 0, false)))
		}
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{1, 2, 3}, owner.completed)
		require.Equal(t, []int{0}, owner.applied)
		require.Equal(t, uint64(1), s.Generation(0))
		require.Equal(t, 3, s.HoleCount(0))
	})

	t.Run("empty tools are skipped", func(t *testing.T) {
		owner := newFakeOwner(1)
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(Request{ID: 1, Chunk: 0}))
		require.NoError(t, s.Enqueue(Request{ID: 2, Chunk: 0, Tool: &mesh.Mesh{}}))
		require.NoError(t, s.Enqueue(carvingRequest(3, 0, false)))
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{1, 2}, owner.skipped)
		require.Equal(t, []uint32{3}, owner.completed)
		require.Equal(t, 1, s.HoleCount(0))
	})

	t.Run("batch without tool is skipped", func(t *testing.T) {
		owner := newFakeOwner(1)
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(Request{ID: 1, Chunk: 0}))
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{1}, owner.skipped)
		require.Empty(t, owner.completed)
		require.Empty(t, owner.applied)
		require.Equal(t, uint64(0), s.Generation(0))
	})

	t.Run("failed subtract completes without mesh", func(t *testing.T) {
		owner := newFakeOwner(1)
		owner.chunks[0] = &mesh.Mesh{}
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{1}, owner.completed)
		require.Empty(t, owner.applied)
		require.Equal(t, 0, s.HoleCount(0))
		require.Equal(t, 0, s.Stats().BusyChunks)
	})

	t.Run("overflow is re-enqueued", func(t *testing.T) {
		owner := newFakeOwner(1)
		pool := &manualPool{}
		s, err := New(owner, pool, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		for i := uint32(1); i <= 15; i++ {
			require.NoError(t, s.Enqueue(carvingRequest(i, 0, false)))
		}
		s.Tick()

		stats := s.Stats()
		require.Equal(t, 5, stats.NormalQueue)
		require.Equal(t, 1, stats.Chunks[0].InFlight)
		require.Equal(t, 1, pool.Len())

		for !s.Idle() {
			pool.RunAll()
			s.Tick()
		}
		require.Len(t, owner.completed, 15)
		require.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, owner.completed[:10])
		require.Equal(t, 15, s.HoleCount(0))
	})

	t.Run("requests are served in priority then arrival order", func(t *testing.T) {
		owner := newFakeOwner(1)
		settings := DefaultSettings()
		settings.InitialUnionLimit = 1
		settings.DisableAdaptiveUnion = true

		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, settings)
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(2, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(3, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(4, 0, true)))
		tickUntilIdle(t, s)

		require.Equal(t, []uint32{4, 1, 2, 3}, owner.completed)
		require.Equal(t, uint64(4), s.Generation(0))
	})

	t.Run("one subtract in flight per chunk", func(t *testing.T) {
		owner := newFakeOwner(1)
		pool := &manualPool{}
		s, err := New(owner, pool, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(2, 0, true)))

		s.Tick()
		require.Equal(t, 2, pool.Len())
		pool.RunAll()

		s.Tick()
		stats := s.Stats()
		require.Equal(t, 1, stats.BusyChunks)
		require.Equal(t, 1, stats.Chunks[0].PendingUnions)
		require.Equal(t, 1, pool.Len())

		s.Tick()
		require.Equal(t, 1, pool.Len())
		require.Equal(t, 1, s.Stats().Chunks[0].PendingUnions)

		pool.RunAll()
		s.Tick()
		require.Equal(t, []uint32{2}, owner.completed)
		require.Equal(t, 0, s.Stats().Chunks[0].PendingUnions)
		require.Equal(t, 1, pool.Len())

		for !s.Idle() {
			pool.RunAll()
			s.Tick()
		}
		require.Equal(t, []uint32{2, 1}, owner.completed)
		require.Equal(t, 0, s.Stats().BusyChunks)
	})

	t.Run("chunks are processed independently", func(t *testing.T) {
		owner := newFakeOwner(3)
		s, err := New(owner, inlinePool{}, boolean.CullingOperator{}, DefaultSettings())
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 2, false)))
		require.NoError(t, s.Enqueue(carvingRequest(2, 0, false)))
		tickUntilIdle(t, s)

		require.ElementsMatch(t, []uint32{1, 2}, owner.completed)
		require.ElementsMatch(t, []int{0, 2}, owner.applied)
		require.Equal(t, 12, owner.chunks[1].TriangleCount())
	})
}

func TestCancelAll(t *testing.T) {
	owner := newFakeOwner(1)
	pool := &manualPool{}
	s, err := New(owner, pool, boolean.CullingOperator{}, DefaultSettings())
	require.NoError(t, err)

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, s.Enqueue(carvingRequest(i, 0, false)))
	}
	s.Tick()
	require.Equal(t, 1, pool.Len())

	require.NoError(t, s.Enqueue(carvingRequest(4, 0, false)))
	require.NoError(t, s.Enqueue(carvingRequest(5, 0, true)))

	s.CancelAll()
	require.ElementsMatch(t, []uint32{4, 5}, owner.skipped)

	pool.RunAll()
	s.Tick()
	require.ElementsMatch(t, []uint32{1, 2, 3, 4, 5}, owner.skipped)
	require.Empty(t, owner.completed)
	require.True(t, s.Idle())
	require.Equal(t, 0, s.HoleCount(0))

	t.Run("scheduler is usable after cancel", func(t *testing.T) {
		require.NoError(t, s.Enqueue(carvingRequest(6, 0, false)))
		for !s.Idle() {
			pool.RunAll()
			s.Tick()
		}
		require.Equal(t, []uint32{6}, owner.completed)
		require.Equal(t, 1, s.HoleCount(0))
	})

	t.Run("parked union results are reported once", func(t *testing.T) {
		owner := newFakeOwner(1)
		pool := &manualPool{}
		settings := DefaultSettings()
		settings.InitialUnionLimit = 2
		s, err := New(owner, pool, boolean.CullingOperator{}, settings)
		require.NoError(t, err)

		require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
		require.NoError(t, s.Enqueue(carvingRequest(2, 0, false)))
		require.NoError(t, s.Enqueue(Request{ID: 3, Chunk: 0, Tool: &mesh.Mesh{}}))
		require.NoError(t, s.Enqueue(carvingRequest(4, 0, false)))

		s.Tick()
		require.Equal(t, 1, pool.RunAll())

		// Second batch union is queued before the first batch subtract.
		s.Tick()
		require.Equal(t, 2, pool.Len())
		pool.RunAt(0)

		// The chunk is busy so the second union result stays parked.
		s.Tick()
		require.Equal(t, []uint32{3}, owner.skipped)
		require.True(t, s.busy.IsBusy(0))

		s.CancelAll()
		pool.RunAll()
		s.Tick()

		require.Equal(t, []uint32{1, 2}, owner.completed)
		require.ElementsMatch(t, []uint32{3, 4}, owner.skipped)
		require.True(t, s.Idle())

		reports := make(map[uint32]int)
		for _, id := range append(owner.completed, owner.skipped...) {
			reports[id]++
		}
		for id := uint32(1); id <= 4; id++ {
			require.Equal(t, 1, reports[id], "request %d", id)
		}
	})
}

func TestShutdown(t *testing.T) {
	owner := newFakeOwner(1)
	pool := &manualPool{}
	s, err := New(owner, pool, boolean.CullingOperator{}, DefaultSettings())
	require.NoError(t, err)

	require.NoError(t, s.Enqueue(carvingRequest(1, 0, false)))
	s.Tick()
	require.Equal(t, 1, pool.Len())

	s.Shutdown()
	pool.RunAll()
	s.Tick()

	require.Empty(t, owner.completed)
	require.Empty(t, owner.applied)
	require.Zero(t, pool.Len())

	err = s.Enqueue(carvingRequest(2, 0, false))
	require.Error(t, err)
	require.Equal(t, ErrTypeShutdown, errors.Type(err))
}
