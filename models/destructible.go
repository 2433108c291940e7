package models

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/brotna/adjacency"
	"github.com/aukilabs/brotna/boolean"
	"github.com/aukilabs/brotna/cellstructure"
	"github.com/aukilabs/brotna/integrity"
	"github.com/aukilabs/brotna/journal"
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/brotna/scheduler"
	"github.com/aukilabs/brotna/workerpool"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const (
	ErrTypeInvalidMesh  = "invalid_mesh"
	ErrTypeImpactMissed = "impact_missed"
)

// DestructibleSettings configures a destructible.
type DestructibleSettings struct {
	// The grid the source mesh is sliced into chunks with.
	Slices mesh.SliceCount `json:"slices" yaml:"slices"`

	CellStructure cellstructure.Settings `json:"cell_structure" yaml:"cell_structure"`
	Integrity     integrity.Settings     `json:"integrity"      yaml:"integrity"`
	Adjacency     adjacency.Settings     `json:"adjacency"      yaml:"adjacency"`
	Scheduler     scheduler.Settings     `json:"scheduler"      yaml:"scheduler"`

	// The icosphere detail of impact tools.
	ToolSubdivisions int `json:"tool_subdivisions" yaml:"tool_subdivisions"`

	// The interval between two logged summaries of boolean results.
	SummaryInterval time.Duration `json:"summary_interval" yaml:"summary_interval"`

	DisableDebris     bool `json:"disable_debris"      yaml:"disable_debris"`
	DisableValidation bool `json:"disable_validation"  yaml:"disable_validation"`
	DisableChunkGraph bool `json:"disable_chunk_graph" yaml:"disable_chunk_graph"`
}

func DefaultDestructibleSettings() DestructibleSettings {
	cells := cellstructure.DefaultSettings()
	cells.BaseResolution = 8

	return DestructibleSettings{
		Slices:           mesh.SliceCount{4, 1, 2},
		CellStructure:    cells,
		Integrity:        integrity.DefaultSettings(),
		Adjacency:        adjacency.DefaultSettings(),
		Scheduler:        scheduler.DefaultSettings(),
		ToolSubdivisions: 1,
		SummaryInterval:  time.Minute,
	}
}

type DestructibleOption func(*Destructible)

// WithChunks uses the given chunk meshes instead of slicing the source mesh.
// They must be indexed like the slice grid for the chunk graph to be built.
func WithChunks(chunks []*mesh.Mesh) DestructibleOption {
	return func(d *Destructible) {
		d.chunks = chunks
	}
}

// WithWorkRequester runs boolean operations with w instead of a worker pool
// owned by the destructible.
func WithWorkRequester(w scheduler.WorkRequester) DestructibleOption {
	return func(d *Destructible) {
		d.workers = w
	}
}

func WithOperator(op boolean.Operator) DestructibleOption {
	return func(d *Destructible) {
		d.op = op
	}
}

func WithDebrisSpawner(s DebrisSpawner) DestructibleOption {
	return func(d *Destructible) {
		d.spawner = s
	}
}

func WithJournal(j *journal.Journal) DestructibleOption {
	return func(d *Destructible) {
		d.journal = j
	}
}

// Destructible is a mesh destroyed at runtime. Impacts carve holes into its
// chunks, the cells around them are destroyed and the fragments that lose
// their anchors are cut out as debris.
//
// Tick must be called from a single goroutine. The other methods can be
// called from any goroutine.
type Destructible struct {
	ID   string
	Name string

	settings DestructibleSettings
	op       boolean.Operator
	workers  scheduler.WorkRequester
	pool     *workerpool.Pool
	spawner  DebrisSpawner
	journal  *journal.Journal

	source    *mesh.Mesh
	tool      *mesh.Mesh
	cells     *cellstructure.Data
	integrity *integrity.System
	async     *integrity.AsyncProcessor
	graph     *adjacency.Graph
	scheduler *scheduler.Scheduler
	logged    *scheduler.LoggedOwner

	chunkMutex    sync.RWMutex
	chunks        []*mesh.Mesh
	revisions     []uint64
	modified      map[int]struct{}
	detachedCells map[int]struct{}

	impactMutex sync.Mutex
	impactIDs   SequentialIDGenerator
	requestIDs  SequentialIDGenerator
	impacts     map[uint32]*pendingImpact
	requests    map[uint32]uint32

	closeOnce sync.Once
}

// NewDestructible partitions source into cells and chunks and readies it for
// impacts.
func NewDestructible(name string, source *mesh.Mesh, settings DestructibleSettings, opts ...DestructibleOption) (*Destructible, error) {
	if err := source.Validate(); err != nil {
		return nil, errors.New("invalid destructible mesh").
			WithType(ErrTypeInvalidMesh).
			WithTag("destructible", name).
			Wrap(err)
	}
	if source.IsEmpty() {
		return nil, errors.New("empty destructible mesh").
			WithType(ErrTypeInvalidMesh).
			WithTag("destructible", name)
	}

	d := &Destructible{
		ID:            uuid.NewString(),
		Name:          name,
		settings:      settings,
		source:        source,
		op:            boolean.CullingOperator{},
		modified:      make(map[int]struct{}),
		detachedCells: make(map[int]struct{}),
		impacts:       make(map[uint32]*pendingImpact),
		requests:      make(map[uint32]uint32),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.chunks == nil {
		d.chunks = mesh.Slice(source, settings.Slices)
	}
	d.revisions = make([]uint64, len(d.chunks))
	d.tool = mesh.Sphere(mgl64.Vec3{}, 1, settings.ToolSubdivisions)

	cells, err := cellstructure.Build(source, settings.CellStructure)
	if err != nil {
		return nil, errors.New("building cell structure failed").
			WithTag("destructible", name).
			Wrap(err)
	}
	d.cells = cells

	if !settings.DisableValidation {
		if report := cellstructure.Validate(cells, source); !report.OK() {
			logs.Warn(errors.New("cell structure has issues").
				WithTag("destructible", name).
				WithTag("issues", report.IssueCount()).
				WithTag("report", report))
		}
	}

	d.integrity = integrity.New(settings.Integrity)
	if err := d.integrity.Initialize(cells); err != nil {
		return nil, errors.New("initializing structural integrity failed").
			WithTag("destructible", name).
			Wrap(err)
	}
	d.async = integrity.NewAsyncProcessor(d.integrity)

	if !settings.DisableChunkGraph {
		d.graph = d.buildChunkGraph()
	}

	if d.workers == nil {
		d.pool = workerpool.New(0)
		d.workers = d.pool
	}

	summaryInterval := settings.SummaryInterval
	if summaryInterval <= 0 {
		summaryInterval = time.Minute
	}
	d.logged = scheduler.OwnerWithLogs(d, name, summaryInterval)

	d.scheduler, err = scheduler.New(
		scheduler.OwnerWithMetrics(d.logged, name),
		d.workers,
		d.op,
		settings.Scheduler,
	)
	if err != nil {
		d.logged.Close()
		return nil, errors.New("creating boolean scheduler failed").
			WithTag("destructible", name).
			Wrap(err)
	}

	logs.WithTag("destructible", name).
		WithTag("id", d.ID).
		WithTag("chunks", len(d.chunks)).
		WithTag("cells", cells.CellCount()).
		WithTag("anchors", len(d.integrity.AnchorCellIDs())).
		Info("destructible created")
	return d, nil
}

func (d *Destructible) buildChunkGraph() *adjacency.Graph {
	slices := d.settings.Slices
	if slices.Total() != len(d.chunks) {
		logs.Warn(errors.New("chunks do not match the slice grid, chunk graph disabled").
			WithTag("destructible", d.Name).
			WithTag("chunks", len(d.chunks)).
			WithTag("slices", slices))
		return nil
	}

	ids := make([]int, len(d.chunks))
	for i := range ids {
		ids[i] = i
	}

	g := adjacency.NewGraph(d.settings.Adjacency)
	g.SetDivisionPlanes(d.source.Bounds(), slices, ids)
	if err := g.Build(d.chunks); err != nil {
		logs.Warn(errors.New("building chunk graph failed").
			WithTag("destructible", d.Name).
			Wrap(err))
		return nil
	}
	return g
}

// Tick applies finished boolean operations, updates the chunk graph and
// spawns the debris of finished destructions.
func (d *Destructible) Tick() {
	d.scheduler.Tick()
	d.updateChunkGraph()

	for _, r := range d.async.Drain() {
		if r.Err != nil {
			logs.Warn(errors.New("destroying cells failed").
				WithTag("destructible", d.Name).
				WithTag("task_id", r.TaskID).
				Wrap(r.Err))
			continue
		}
		d.handleResult(r.Result)
	}
}

// Run calls Tick every frameDuration until ctx is done.
func (d *Destructible) Run(ctx context.Context, frameDuration time.Duration) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.Tick()
		}
	}
}

// Idle reports whether no impact or destruction is in progress.
func (d *Destructible) Idle() bool {
	d.impactMutex.Lock()
	pending := len(d.impacts)
	d.impactMutex.Unlock()

	return pending == 0 && d.scheduler.Idle() && d.async.Pending() == 0
}

// Close stops processing. Pending impacts are dropped.
func (d *Destructible) Close() {
	d.closeOnce.Do(func() {
		d.scheduler.Shutdown()
		d.logged.Close()

		ctx, cancel := context.WithTimeout(context.Background(), workerpool.DefaultGracePeriod)
		defer cancel()

		if err := d.async.Wait(ctx); err != nil {
			logs.Warn(errors.New("waiting for destructions failed").
				WithTag("destructible", d.Name).
				Wrap(err))
		}

		if d.pool != nil {
			if err := d.pool.Close(ctx); err != nil {
				logs.Warn(errors.New("closing worker pool failed").
					WithTag("destructible", d.Name).
					Wrap(err))
			}
		}

		logs.WithTag("destructible", d.Name).
			WithTag("id", d.ID).
			Info("destructible closed")
	})
}

func (d *Destructible) ChunkCount() int {
	d.chunkMutex.RLock()
	defer d.chunkMutex.RUnlock()

	return len(d.chunks)
}

// ChunkMesh returns a copy of the chunk mesh.
func (d *Destructible) ChunkMesh(chunk int) (*mesh.Mesh, error) {
	d.chunkMutex.RLock()
	defer d.chunkMutex.RUnlock()

	if chunk < 0 || chunk >= len(d.chunks) {
		return nil, errors.New("invalid chunk").
			WithType(scheduler.ErrTypeInvalidInput).
			WithTag("destructible", d.Name).
			WithTag("chunk", chunk)
	}
	return d.chunks[chunk].Clone(), nil
}

// ChunkRevision returns the number of times the chunk mesh was replaced.
func (d *Destructible) ChunkRevision(chunk int) uint64 {
	d.chunkMutex.RLock()
	defer d.chunkMutex.RUnlock()

	if chunk < 0 || chunk >= len(d.revisions) {
		return 0
	}
	return d.revisions[chunk]
}

// TriangleCount returns the number of triangles of every chunk.
func (d *Destructible) TriangleCount() int {
	d.chunkMutex.RLock()
	defer d.chunkMutex.RUnlock()

	var n int
	for _, c := range d.chunks {
		n += c.TriangleCount()
	}
	return n
}

// ApplyBooleanResult replaces a chunk mesh. Triangles of cells already cut
// out as debris are dropped.
func (d *Destructible) ApplyBooleanResult(m *mesh.Mesh, chunk int, deferCollisionUpdate bool) {
	d.chunkMutex.Lock()
	defer d.chunkMutex.Unlock()

	if chunk < 0 || chunk >= len(d.chunks) {
		return
	}

	if len(d.detachedCells) != 0 {
		if ids := d.trianglesInCells(m, d.detachedCells); len(ids) != 0 {
			m = m.Without(ids)
		}
	}

	d.setChunk(chunk, m)
	d.journal.Record(journal.Event{
		Kind:         journal.KindApplied,
		Destructible: d.Name,
		Chunk:        journal.IntPtr(chunk),
		Triangles:    m.TriangleCount(),
	})
}

func (d *Destructible) setChunk(chunk int, m *mesh.Mesh) {
	d.chunks[chunk] = m
	d.revisions[chunk]++
	d.modified[chunk] = struct{}{}
}

func (d *Destructible) trianglesInCells(m *mesh.Mesh, cells map[int]struct{}) []int {
	var ids []int
	for tri := range m.Triangles {
		if _, ok := cells[d.cells.CellForPoint(m.Centroid(tri))]; ok {
			ids = append(ids, tri)
		}
	}
	return ids
}

func (d *Destructible) updateChunkGraph() {
	if d.graph == nil {
		return
	}

	d.chunkMutex.Lock()
	if len(d.modified) == 0 {
		d.chunkMutex.Unlock()
		return
	}

	ids := make([]int, 0, len(d.modified))
	for id := range d.modified {
		ids = append(ids, id)
	}
	d.modified = make(map[int]struct{})
	chunks := append([]*mesh.Mesh(nil), d.chunks...)
	d.chunkMutex.Unlock()

	updates := d.graph.UpdateModifiedChunks(ids, chunks)
	edges := d.graph.RebuildConnectionsForChunks(updates, chunks)

	logs.WithTag("destructible", d.Name).
		WithTag("chunks", len(updates)).
		WithTag("edges", edges).
		Debug("chunk graph updated")
}

// ChunksConnected reports whether two chunks still share geometry across
// their division plane.
func (d *Destructible) ChunksConnected(a, b int) bool {
	if d.graph == nil {
		return false
	}
	return d.graph.ChunksConnected(a, b)
}

func (d *Destructible) Integrity() *integrity.System {
	return d.integrity
}

func (d *Destructible) CellStructure() *cellstructure.Data {
	return d.cells
}
