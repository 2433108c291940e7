package models

import (
	"context"
	"sync"
	"testing"

	"github.com/aukilabs/brotna/journal"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/brotna/scheduler"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

type inlinePool struct{}

func (inlinePool) RequestWork(fn func()) {
	fn()
}

type memoryJournal struct {
	mutex  sync.Mutex
	events []journal.Event
}

func (w *memoryJournal) Write(v any) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.events = append(w.events, v.(journal.Event))
	return nil
}

func (w *memoryJournal) kinds() map[journal.Kind]int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	kinds := make(map[journal.Kind]int)
	for _, e := range w.events {
		kinds[e.Kind]++
	}
	return kinds
}

var (
	wallMin = mgl64.Vec3{0, 0, 0}
	wallMax = mgl64.Vec3{2, 1, 4}
)

func wallSettings() DestructibleSettings {
	s := DefaultDestructibleSettings()
	s.Slices = mesh.SliceCount{1, 1, 2}
	s.CellStructure.BaseResolution = 2
	s.CellStructure.TargetSeedCount = 8
	return s
}

func newWall(t *testing.T, opts ...DestructibleOption) *Destructible {
	opts = append([]DestructibleOption{
		WithChunks(mesh.BoxGrid(wallMin, wallMax, mesh.SliceCount{1, 1, 2})),
		WithWorkRequester(inlinePool{}),
	}, opts...)

	d, err := NewDestructible("wall", mesh.Box(wallMin, wallMax), wallSettings(), opts...)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func tickUntilIdle(t *testing.T, d *Destructible) {
	for i := 0; i < 100; i++ {
		d.Tick()
		if d.Idle() {
			return
		}
	}
	require.FailNow(t, "destructible did not become idle")
}

func TestNewDestructible(t *testing.T) {
	t.Run("destructible is created", func(t *testing.T) {
		d := newWall(t)
		require.NotEmpty(t, d.ID)
		require.Equal(t, "wall", d.Name)
		require.Equal(t, 2, d.ChunkCount())
		require.Equal(t, 24, d.TriangleCount())
		require.Greater(t, d.CellStructure().CellCount(), 1)
		require.NotEmpty(t, d.Integrity().AnchorCellIDs())
		require.True(t, d.ChunksConnected(0, 1))
		require.True(t, d.Idle())

		stats := d.Stats()
		require.Equal(t, 2, stats.Chunks)
		require.Equal(t, d.CellStructure().CellCount(), stats.Integrity.Cells)
		require.Zero(t, stats.PendingImpact)
	})

	t.Run("source mesh is sliced without chunks", func(t *testing.T) {
		d, err := NewDestructible("wall", mesh.Box(wallMin, wallMax), wallSettings(), WithWorkRequester(inlinePool{}))
		require.NoError(t, err)
		defer d.Close()

		require.Equal(t, 2, d.ChunkCount())
		require.Equal(t, 12, d.TriangleCount())
	})

	t.Run("empty mesh returns an error", func(t *testing.T) {
		_, err := NewDestructible("empty", &mesh.Mesh{}, wallSettings())
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidMesh, errors.Type(err))
	})

	t.Run("chunk graph is disabled", func(t *testing.T) {
		settings := wallSettings()
		settings.DisableChunkGraph = true

		d, err := NewDestructible("wall", mesh.Box(wallMin, wallMax), settings, WithWorkRequester(inlinePool{}))
		require.NoError(t, err)
		defer d.Close()

		require.False(t, d.ChunksConnected(0, 1))
	})
}

func TestDestructibleChunks(t *testing.T) {
	d := newWall(t)

	t.Run("chunk mesh is a copy", func(t *testing.T) {
		m, err := d.ChunkMesh(0)
		require.NoError(t, err)

		m.Triangles = nil
		require.Equal(t, 24, d.TriangleCount())
	})

	t.Run("invalid chunk returns an error", func(t *testing.T) {
		_, err := d.ChunkMesh(2)
		require.Error(t, err)
		require.Equal(t, scheduler.ErrTypeInvalidInput, errors.Type(err))
	})

	t.Run("applied result replaces the chunk", func(t *testing.T) {
		d.ApplyBooleanResult(mesh.Box(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}), 0, false)
		require.Equal(t, uint64(1), d.ChunkRevision(0))
		require.Zero(t, d.ChunkRevision(1))
		require.Equal(t, 24, d.TriangleCount())

		d.Tick()
	})
}

func TestDestructibleImpact(t *testing.T) {
	t.Run("impact carves the reached chunk and destroys cells", func(t *testing.T) {
		w := &memoryJournal{}
		j := journal.New(w, 100)
		d := newWall(t, WithJournal(j))

		id, err := d.Impact(Impact{
			Location: mgl64.Vec3{1, 0.5, 1},
			Radius:   0.6,
		})
		require.NoError(t, err)
		require.NotZero(t, id)
		require.False(t, d.Idle())

		tickUntilIdle(t, d)
		require.Equal(t, uint64(1), d.scheduler.Generation(0))
		require.Zero(t, d.scheduler.Generation(1))
		require.NotZero(t, d.ChunkRevision(0))
		require.NotZero(t, d.Integrity().Stats().Destroyed)
		require.Zero(t, d.Stats().PendingImpact)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		j.Handle(ctx)

		kinds := w.kinds()
		require.Equal(t, 1, kinds[journal.KindImpact])
		require.Equal(t, 1, kinds[journal.KindApplied])
		require.Zero(t, kinds[journal.KindSkipped])
	})

	t.Run("impact across chunks carves every reached chunk", func(t *testing.T) {
		d := newWall(t)

		_, err := d.Impact(Impact{
			Location:    mgl64.Vec3{1, 0.5, 2},
			Radius:      0.5,
			Penetrating: true,
		})
		require.NoError(t, err)

		tickUntilIdle(t, d)
		require.Equal(t, uint64(1), d.scheduler.Generation(0))
		require.Equal(t, uint64(1), d.scheduler.Generation(1))
	})

	t.Run("impact out of reach returns an error", func(t *testing.T) {
		d := newWall(t)

		_, err := d.Impact(Impact{
			Location: mgl64.Vec3{10, 10, 10},
			Radius:   1,
		})
		require.Error(t, err)
		require.Equal(t, ErrTypeImpactMissed, errors.Type(err))
		require.True(t, d.Idle())
	})

	t.Run("impact without radius returns an error", func(t *testing.T) {
		d := newWall(t)

		_, err := d.Impact(Impact{Location: mgl64.Vec3{1, 0.5, 1}})
		require.Error(t, err)
		require.Equal(t, scheduler.ErrTypeInvalidInput, errors.Type(err))
	})

	t.Run("impact after close returns an error", func(t *testing.T) {
		d := newWall(t)
		d.Close()

		_, err := d.Impact(Impact{
			Location: mgl64.Vec3{1, 0.5, 1},
			Radius:   0.5,
		})
		require.Error(t, err)
		require.Equal(t, scheduler.ErrTypeShutdown, errors.Type(err))
	})
}

func lowestCell(d *Destructible) int {
	cells := d.CellStructure()

	lowest := 0
	for id := 1; id < cells.CellCount(); id++ {
		if cells.CellWorldPosition(id).Z() < cells.CellWorldPosition(lowest).Z() {
			lowest = id
		}
	}
	return lowest
}

func TestDestructibleDebris(t *testing.T) {
	t.Run("detached cells are cut out as debris", func(t *testing.T) {
		store := &DebrisStore{}
		w := &memoryJournal{}
		j := journal.New(w, 100)
		d := newWall(t, WithDebrisSpawner(store), WithJournal(j))

		anchor := lowestCell(d)
		d.Integrity().SetAnchors([]int{anchor})
		before := d.TriangleCount()

		d.DestroyCells(context.Background(), []int{anchor})
		d.Tick()

		require.NotZero(t, store.Count())
		require.Less(t, d.TriangleCount(), before)

		var cut int
		for _, debris := range store.List() {
			require.Equal(t, d.ID, debris.DestructibleID)
			require.NotEmpty(t, debris.CellIDs)
			require.Equal(t, debris.TriangleCount, debris.Mesh.TriangleCount())
			cut += debris.TriangleCount
		}
		require.Equal(t, before, d.TriangleCount()+cut)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		j.Handle(ctx)

		kinds := w.kinds()
		require.NotZero(t, kinds[journal.KindDetached])
		require.Equal(t, 1, kinds[journal.KindCollapse])
	})

	t.Run("debris is not spawned when disabled", func(t *testing.T) {
		store := &DebrisStore{}
		settings := wallSettings()
		settings.DisableDebris = true

		d, err := NewDestructible("wall", mesh.Box(wallMin, wallMax), settings,
			WithChunks(mesh.BoxGrid(wallMin, wallMax, mesh.SliceCount{1, 1, 2})),
			WithWorkRequester(inlinePool{}),
			WithDebrisSpawner(store),
		)
		require.NoError(t, err)
		defer d.Close()

		anchor := lowestCell(d)
		d.Integrity().SetAnchors([]int{anchor})
		d.DestroyCells(context.Background(), []int{anchor})
		d.Tick()

		require.Zero(t, store.Count())
		require.Equal(t, 24, d.TriangleCount())
	})

	t.Run("hit destroys cells", func(t *testing.T) {
		d := newWall(t)

		cell := lowestCell(d)
		r := d.Hit(d.CellStructure().CellWorldPosition(cell), 1000, 0)
		require.Contains(t, r.NewlyDestroyed, cell)
	})
}
