package adjacency

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeInvalidChunks = "adjacency_invalid_chunks"
)

// Settings configures how chunk cells are connected.
type Settings struct {
	// The distance under which a vertex lies on a division plane.
	PlaneTolerance float64 `json:"plane_tolerance" yaml:"plane_tolerance"`

	// The amount division plane rectangles are inflated by.
	RectTolerance float64 `json:"rect_tolerance" yaml:"rect_tolerance"`

	// Cells whose lowest point is within this height of the mesh floor are
	// anchors.
	FloorHeightThreshold float64 `json:"floor_height_threshold" yaml:"floor_height_threshold"`
}

func DefaultSettings() Settings {
	return Settings{
		PlaneTolerance:       0.1,
		RectTolerance:        0.1,
		FloorHeightThreshold: 10,
	}
}

// Neighbor is an edge to a cell of another chunk, through the division plane
// at index Plane.
type Neighbor struct {
	Key   CellKey `json:"key"`
	Plane int     `json:"plane"`
}

// Node is a cell of a chunk. Cells are the connected components of the chunk
// mesh.
type Node struct {
	Key       CellKey    `json:"key"`
	Neighbors []Neighbor `json:"neighbors"`
	Anchor    bool       `json:"anchor"`
}

// ChunkCells caches the cells of a chunk. Cell ids are indices.
type ChunkCells struct {
	ChunkID       int           `json:"chunk_id"`
	CellTriangles [][]int       `json:"cell_triangles"`
	CellBounds    []mesh.Bounds `json:"cell_bounds"`
	CellAreas     []float64     `json:"cell_areas"`
	Revision      int           `json:"revision"`
}

func (c ChunkCells) CellCount() int {
	return len(c.CellTriangles)
}

func (c ChunkCells) HasGeometry() bool {
	return len(c.CellTriangles) != 0
}

// CellMapping tells what an old cell became after a chunk update.
type CellMapping struct {
	OldCellID  int   `json:"old_cell_id"`
	NewCellIDs []int `json:"new_cell_ids"`
	Destroyed  bool  `json:"destroyed"`
}

// ChunkUpdate is the result of recomputing the cells of a modified chunk.
type ChunkUpdate struct {
	ChunkID  int           `json:"chunk_id"`
	Mappings []CellMapping `json:"mappings"`
	Old      ChunkCells    `json:"old"`
	New      ChunkCells    `json:"new"`
}

// Graph connects the cells of neighbouring chunks through their division
// planes. It is safe for concurrent use.
type Graph struct {
	settings Settings

	mutex  sync.RWMutex
	planes []Plane
	bounds mesh.Bounds
	chunks []ChunkCells
	nodes  []Node
	index  map[CellKey]int
}

func NewGraph(settings Settings) *Graph {
	return &Graph{
		settings: settings,
		bounds:   mesh.EmptyBounds(),
		index:    make(map[CellKey]int),
	}
}

func (g *Graph) Settings() Settings {
	return g.settings
}

// SetDivisionPlanes computes the division planes of a regular slicing of
// bounds. It must be called before Build.
func (g *Graph) SetDivisionPlanes(bounds mesh.Bounds, count mesh.SliceCount, chunkIDByGridIndex []int) {
	planes := BuildDivisionPlanes(bounds, count, chunkIDByGridIndex)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.planes = planes
	g.bounds = bounds
}

// Planes returns a copy of the division planes.
func (g *Graph) Planes() []Plane {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return append([]Plane(nil), g.planes...)
}

// Build computes the cells of every chunk, connects them through the
// division planes and flags the cells touching the floor as anchors.
// chunkMeshes is indexed by chunk id; nil meshes have no cells.
func (g *Graph) Build(chunkMeshes []*mesh.Mesh) error {
	if len(chunkMeshes) == 0 {
		return errors.New("no chunk mesh").WithType(ErrTypeInvalidChunks)
	}

	start := time.Now()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.bounds.IsValid() {
		for _, m := range chunkMeshes {
			if !m.IsEmpty() {
				g.bounds = g.bounds.Union(m.Bounds())
			}
		}
	}

	g.chunks = make([]ChunkCells, len(chunkMeshes))
	g.nodes = nil
	for id, m := range chunkMeshes {
		g.chunks[id] = buildChunkCells(m, id)
		g.addNodes(id)
	}
	g.sortNodes()

	var edges int
	for i := range g.planes {
		edges += g.connectPlane(i, chunkMeshes)
	}

	instrumentBuild(start, len(g.nodes), edges)
	logs.WithTag("chunks", len(chunkMeshes)).
		WithTag("planes", len(g.planes)).
		WithTag("nodes", len(g.nodes)).
		WithTag("edges", edges).
		Debug("adjacency graph built")
	return nil
}

// Reset removes every node, plane and chunk.
func (g *Graph) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.planes = nil
	g.bounds = mesh.EmptyBounds()
	g.chunks = nil
	g.nodes = nil
	g.index = make(map[CellKey]int)
}

func (g *Graph) IsBuilt() bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.nodes) != 0
}

func (g *Graph) NodeCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.nodes)
}

func (g *Graph) ChunkCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.chunks)
}

// Node returns a copy of the node at index i. Nodes are sorted by key.
func (g *Graph) Node(i int) (Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if i < 0 || i >= len(g.nodes) {
		return Node{}, false
	}

	n := g.nodes[i]
	n.Neighbors = append([]Neighbor(nil), n.Neighbors...)
	return n, true
}

// FindNodeIndex returns the index of the node with the given key, or -1.
func (g *Graph) FindNodeIndex(key CellKey) int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if i, ok := g.index[key]; ok {
		return i
	}
	return -1
}

func (g *Graph) ChunkCells(chunkID int) (ChunkCells, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if chunkID < 0 || chunkID >= len(g.chunks) {
		return ChunkCells{}, false
	}
	return g.chunks[chunkID], true
}

// ChunksConnected reports whether a cell of chunk a is connected to a cell of
// chunk b.
func (g *Graph) ChunksConnected(a, b int) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	for _, n := range g.nodes {
		if n.Key.ChunkID != a {
			continue
		}
		for _, nb := range n.Neighbors {
			if nb.Key.ChunkID == b {
				return true
			}
		}
	}
	return false
}

// Snapshot returns the graph as consumed by the structural integrity system.
// Node centres and masses come from the cell bounds and surface areas.
func (g *Graph) Snapshot() Snapshot {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	s := Snapshot{
		Nodes: make([]SnapshotNode, len(g.nodes)),
	}

	for i, n := range g.nodes {
		cells := g.chunks[n.Key.ChunkID]
		s.Nodes[i] = SnapshotNode{
			Key:       n.Key,
			Neighbors: g.neighborIndices(n),
			Anchor:    n.Anchor,
			Center:    cells.CellBounds[n.Key.CellID].Center(),
			Mass:      cells.CellAreas[n.Key.CellID],
		}
	}
	return s
}

// InitData is a flat adjacency list over node indices.
type InitData struct {
	CellNeighbors [][]int `json:"cell_neighbors"`
	AnchorCellIDs []int   `json:"anchor_cell_ids"`
}

func (g *Graph) InitData() InitData {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var d InitData
	if len(g.nodes) == 0 {
		return d
	}

	d.CellNeighbors = make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		d.CellNeighbors[i] = g.neighborIndices(n)
		if n.Anchor {
			d.AnchorCellIDs = append(d.AnchorCellIDs, i)
		}
	}
	return d
}

// UpdateModifiedChunks recomputes the cells of the given chunks and maps old
// cells to the new cells whose bounds overlap them. Edges of updated chunks
// are dropped until RebuildConnectionsForChunks is called.
func (g *Graph) UpdateModifiedChunks(chunkIDs []int, chunkMeshes []*mesh.Mesh) []ChunkUpdate {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	ids := append([]int(nil), chunkIDs...)
	sort.Ints(ids)

	var updates []ChunkUpdate
	for i, id := range ids {
		if (i > 0 && ids[i-1] == id) || id < 0 || id >= len(g.chunks) {
			continue
		}

		var m *mesh.Mesh
		if id < len(chunkMeshes) {
			m = chunkMeshes[id]
		}

		old := g.chunks[id]
		cells := buildChunkCells(m, id)
		cells.Revision = old.Revision + 1
		g.chunks[id] = cells

		g.removeNodes(id)
		g.addNodes(id)

		updates = append(updates, ChunkUpdate{
			ChunkID:  id,
			Mappings: mapCells(old, cells),
			Old:      old,
			New:      cells,
		})
	}

	g.sortNodes()
	return updates
}

// RebuildConnectionsForChunks rechecks every division plane touching an
// updated chunk and returns the number of edges on those planes.
func (g *Graph) RebuildConnectionsForChunks(updates []ChunkUpdate, chunkMeshes []*mesh.Mesh) int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var before, after int
	for i, p := range g.planes {
		touched := false
		for _, u := range updates {
			if p.Touches(u.ChunkID) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}

		before += g.removePlaneEdges(i)
		after += g.connectPlane(i, chunkMeshes)
	}

	instrumentRebuild(before, after)
	return after
}

func (g *Graph) addNodes(chunkID int) {
	cells := g.chunks[chunkID]
	for cellID := range cells.CellTriangles {
		g.nodes = append(g.nodes, Node{
			Key:    CellKey{ChunkID: chunkID, CellID: cellID},
			Anchor: g.isOnFloor(cells.CellBounds[cellID]),
		})
	}
}

func (g *Graph) removeNodes(chunkID int) {
	nodes := g.nodes[:0]
	for _, n := range g.nodes {
		if n.Key.ChunkID == chunkID {
			continue
		}

		neighbors := n.Neighbors[:0]
		for _, nb := range n.Neighbors {
			if nb.Key.ChunkID != chunkID {
				neighbors = append(neighbors, nb)
			}
		}
		n.Neighbors = neighbors
		nodes = append(nodes, n)
	}
	g.nodes = nodes
}

func (g *Graph) removePlaneEdges(plane int) int {
	var removed int
	for i := range g.nodes {
		neighbors := g.nodes[i].Neighbors[:0]
		for _, nb := range g.nodes[i].Neighbors {
			if nb.Plane == plane {
				removed++
				continue
			}
			neighbors = append(neighbors, nb)
		}
		g.nodes[i].Neighbors = neighbors
	}
	return removed / 2
}

// connectPlane adds an edge between every pair of cells touching through
// the plane and returns the number of edges added.
func (g *Graph) connectPlane(plane int, chunkMeshes []*mesh.Mesh) int {
	p := g.planes[plane]
	if p.ChunkA < 0 || p.ChunkA >= len(chunkMeshes) || p.ChunkB < 0 || p.ChunkB >= len(chunkMeshes) {
		return 0
	}
	if p.ChunkA >= len(g.chunks) || p.ChunkB >= len(g.chunks) {
		return 0
	}

	meshA, meshB := chunkMeshes[p.ChunkA], chunkMeshes[p.ChunkB]
	cellsA, cellsB := g.chunks[p.ChunkA], g.chunks[p.ChunkB]
	if !cellsA.HasGeometry() || !cellsB.HasGeometry() {
		return 0
	}

	var edges int
	for a, trisA := range cellsA.CellTriangles {
		for b, trisB := range cellsB.CellTriangles {
			if !AreNodesConnectedByPlane(meshA, trisA, meshB, trisB, p, g.settings.PlaneTolerance, g.settings.RectTolerance) {
				continue
			}

			keyA := CellKey{ChunkID: p.ChunkA, CellID: a}
			keyB := CellKey{ChunkID: p.ChunkB, CellID: b}
			ia, okA := g.index[keyA]
			ib, okB := g.index[keyB]
			if !okA || !okB {
				continue
			}

			g.nodes[ia].Neighbors = append(g.nodes[ia].Neighbors, Neighbor{Key: keyB, Plane: plane})
			g.nodes[ib].Neighbors = append(g.nodes[ib].Neighbors, Neighbor{Key: keyA, Plane: plane})
			edges++
		}
	}
	return edges
}

func (g *Graph) sortNodes() {
	sort.Slice(g.nodes, func(i, j int) bool {
		return g.nodes[i].Key.Less(g.nodes[j].Key)
	})

	g.index = make(map[CellKey]int, len(g.nodes))
	for i, n := range g.nodes {
		g.index[n.Key] = i
	}
}

// neighborIndices returns the sorted, deduplicated node indices of the
// neighbours of n.
func (g *Graph) neighborIndices(n Node) []int {
	var ids []int
	for _, nb := range n.Neighbors {
		if i, ok := g.index[nb.Key]; ok {
			ids = append(ids, i)
		}
	}
	sort.Ints(ids)

	deduped := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			deduped = append(deduped, id)
		}
	}
	return deduped
}

func (g *Graph) isOnFloor(cell mesh.Bounds) bool {
	if !g.bounds.IsValid() || !cell.IsValid() {
		return false
	}
	return cell.Min.Z()-g.bounds.Min.Z() <= g.settings.FloorHeightThreshold
}

func buildChunkCells(m *mesh.Mesh, chunkID int) ChunkCells {
	cells := ChunkCells{
		ChunkID: chunkID,
	}

	for _, tris := range m.ConnectedComponents() {
		var area float64
		for _, t := range tris {
			area += m.TriangleArea(t)
		}

		cells.CellTriangles = append(cells.CellTriangles, tris)
		cells.CellBounds = append(cells.CellBounds, m.TrianglesBounds(tris))
		cells.CellAreas = append(cells.CellAreas, area)
	}
	return cells
}

// mapCells maps every old cell to the new cells overlapping its bounds. Old
// cells without any overlapping new cell are destroyed.
func mapCells(old, cur ChunkCells) []CellMapping {
	mappings := make([]CellMapping, 0, old.CellCount())
	for oldID, oldBounds := range old.CellBounds {
		m := CellMapping{
			OldCellID: oldID,
		}

		for newID, newBounds := range cur.CellBounds {
			if oldBounds.Intersects(newBounds, 0) {
				m.NewCellIDs = append(m.NewCellIDs, newID)
			}
		}

		m.Destroyed = len(m.NewCellIDs) == 0
		mappings = append(mappings, m)
	}
	return mappings
}
