package integrity

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/brotna/adjacency"
	"github.com/aukilabs/brotna/cellstructure"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

// System tracks the health of cells and their connection to anchors. A
// System must not be copied after first use.
type System struct {
	settings Settings
	falloff  FalloffFunc

	mutex sync.RWMutex

	// Graph.
	neighbors [][]int
	positions []mgl64.Vec3
	masses    []float64
	triangles [][]int
	keys      []adjacency.CellKey
	keyIndex  map[adjacency.CellKey]int
	locate    func(mgl64.Vec3) int
	voxelSize float64

	// Runtime.
	states         []CellState
	health         []float64
	anchors        map[int]struct{}
	destroyedCount int
	reachable      []bool
	reachableValid bool
	nextGroupID    int
}

type Option func(*System)

// WithFalloff replaces the damage falloff policy.
func WithFalloff(f FalloffFunc) Option {
	return func(s *System) {
		s.falloff = f
	}
}

func New(settings Settings, opts ...Option) *System {
	s := &System{
		settings: settings,
		falloff:  ExponentialFalloff(settings.DamageFalloff),
		keyIndex: make(map[adjacency.CellKey]int),
		anchors:  make(map[int]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *System) Settings() Settings {
	return s.settings
}

// Initialize builds the cell graph from a cell structure and resets every
// cell. Keys use chunk 0.
func (s *System) Initialize(data *cellstructure.Data) error {
	if data == nil || data.CellCount() == 0 {
		return errors.New("cell structure has no cell").WithType(ErrTypeInvalidGraph)
	}

	n := data.CellCount()
	neighbors := make([][]int, n)
	positions := make([]mgl64.Vec3, n)
	masses := make([]float64, n)
	keys := make([]adjacency.CellKey, n)

	for id := 0; id < n; id++ {
		neighbors[id] = append([]int(nil), data.CellNeighbors[id]...)
		positions[id] = data.CellWorldPosition(id)
		masses[id] = float64(data.CellVoxels[id])
		keys[id] = adjacency.CellKey{CellID: id}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.setGraph(neighbors, positions, masses, keys)
	s.triangles = data.CellTriangles
	s.locate = data.CellAt
	s.voxelSize = data.VoxelSize
	s.reset()

	if s.settings.AutoDetectFloorAnchors {
		s.autoDetectFloorAnchors(s.settings.FloorHeightThreshold)
	}
	return nil
}

// SyncGraph replaces the cell graph with the given snapshot. Destroyed state
// is kept for keys present in both graphs; anchors come from the snapshot.
func (s *System) SyncGraph(snapshot adjacency.Snapshot) error {
	n := len(snapshot.Nodes)
	neighbors := make([][]int, n)
	positions := make([]mgl64.Vec3, n)
	masses := make([]float64, n)
	keys := make([]adjacency.CellKey, n)

	for i, node := range snapshot.Nodes {
		for _, nb := range node.Neighbors {
			if nb < 0 || nb >= n || nb == i {
				return errors.New("snapshot node has an invalid neighbor").
					WithType(ErrTypeInvalidGraph).
					WithTag("key", node.Key).
					WithTag("neighbor", nb)
			}
		}

		neighbors[i] = append([]int(nil), node.Neighbors...)
		sort.Ints(neighbors[i])
		positions[i] = node.Center
		masses[i] = node.Mass
		keys[i] = node.Key
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	destroyed := make(map[adjacency.CellKey]struct{}, s.destroyedCount)
	for id, state := range s.states {
		if state == CellDestroyed {
			destroyed[s.keys[id]] = struct{}{}
		}
	}

	s.setGraph(neighbors, positions, masses, keys)
	s.triangles = nil
	s.locate = nil
	s.reset()

	for i, node := range snapshot.Nodes {
		if node.Anchor {
			s.anchors[i] = struct{}{}
		}
		if _, ok := destroyed[node.Key]; ok {
			s.states[i] = CellDestroyed
			s.health[i] = 0
			s.destroyedCount++
		}
	}
	return nil
}

func (s *System) setGraph(neighbors [][]int, positions []mgl64.Vec3, masses []float64, keys []adjacency.CellKey) {
	s.neighbors = neighbors
	s.positions = positions
	s.masses = masses
	s.keys = keys

	s.keyIndex = make(map[adjacency.CellKey]int, len(keys))
	for id, k := range keys {
		s.keyIndex[k] = id
	}
}

func (s *System) reset() {
	n := len(s.neighbors)
	s.states = make([]CellState, n)
	s.health = make([]float64, n)
	for i := range s.health {
		s.health[i] = s.settings.DefaultCellHealth
	}
	s.anchors = make(map[int]struct{})
	s.destroyedCount = 0
	s.reachable = nil
	s.reachableValid = false
	s.nextGroupID = 0
}

func (s *System) CellCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.neighbors)
}

func (s *System) IsValidCell(cellID int) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.isValidCell(cellID)
}

func (s *System) isValidCell(cellID int) bool {
	return cellID >= 0 && cellID < len(s.neighbors)
}

// ProcessHit damages the cells within radius graph hops of cellID and
// returns the destroyed cells and the groups that lost their anchors.
func (s *System) ProcessHit(cellID int, damage float64, radius int) Result {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isValidCell(cellID) || s.states[cellID] == CellDestroyed {
		return Result{TotalDestroyedCount: s.destroyedCount}
	}

	instrumentHit()
	destroyed := s.applyDamage(cellID, damage, radius)
	if len(destroyed) == 0 {
		return Result{TotalDestroyedCount: s.destroyedCount}
	}
	return s.update(destroyed)
}

// ProcessHitAtLocation runs ProcessHit on the cell found at location.
func (s *System) ProcessHitAtLocation(location mgl64.Vec3, damage float64, radius int) Result {
	cellID := s.FindCellAtLocation(location)
	if cellID == cellstructure.InvalidCellID {
		s.mutex.RLock()
		defer s.mutex.RUnlock()
		return Result{TotalDestroyedCount: s.destroyedCount}
	}
	return s.ProcessHit(cellID, damage, radius)
}

// FindCellAtLocation returns the cell containing location. Graphs synced from
// a snapshot use the closest cell centre instead.
func (s *System) FindCellAtLocation(location mgl64.Vec3) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.locate != nil {
		return s.locate(location)
	}

	best := cellstructure.InvalidCellID
	bestDist := math.Inf(1)
	for id, p := range s.positions {
		if d := p.Sub(location).LenSqr(); d < bestDist {
			best = id
			bestDist = d
		}
	}
	return best
}

// DestroyCells destroys the given cells and returns the resulting detached
// groups. Invalid and already destroyed cells are ignored.
func (s *System) DestroyCells(cellIDs []int) Result {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	destroyed := s.destroy(cellIDs)
	if len(destroyed) == 0 {
		return Result{TotalDestroyedCount: s.destroyedCount}
	}
	return s.update(destroyed)
}

func (s *System) DestroyCell(cellID int) Result {
	return s.DestroyCells([]int{cellID})
}

// MarkCellsAsDestroyed destroys the cells identified by keys. Unknown keys
// are ignored.
func (s *System) MarkCellsAsDestroyed(keys []adjacency.CellKey) Result {
	s.mutex.RLock()
	ids := make([]int, 0, len(keys))
	for _, k := range keys {
		if id, ok := s.keyIndex[k]; ok {
			ids = append(ids, id)
		}
	}
	s.mutex.RUnlock()

	return s.DestroyCells(ids)
}

// ForceSetDestroyedCells marks cells as destroyed without computing detached
// groups. It is used to restore a known state.
func (s *System) ForceSetDestroyedCells(cellIDs []int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.destroy(cellIDs)
}

// RefreshConnectivity recomputes anchor reachability and returns the groups
// that lost their anchors since the last update.
func (s *System) RefreshConnectivity() Result {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.reachableValid = false
	return s.update(nil)
}

func (s *System) destroy(cellIDs []int) []int {
	ids := append([]int(nil), cellIDs...)
	sort.Ints(ids)

	var destroyed []int
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		if !s.isValidCell(id) || s.states[id] == CellDestroyed {
			continue
		}

		s.states[id] = CellDestroyed
		s.health[id] = 0
		s.destroyedCount++
		destroyed = append(destroyed, id)
	}

	if len(destroyed) != 0 {
		s.reachableValid = false
	}
	return destroyed
}

func (s *System) applyDamage(cellID int, damage float64, radius int) []int {
	if radius < 0 {
		radius = 0
	}

	distances := map[int]int{cellID: 0}
	queue := []int{cellID}
	for head := 0; head < len(queue); head++ {
		cell := queue[head]
		dist := distances[cell]
		if dist == radius {
			continue
		}

		for _, n := range s.neighbors[cell] {
			if _, ok := distances[n]; ok || s.states[n] == CellDestroyed {
				continue
			}
			distances[n] = dist + 1
			queue = append(queue, n)
		}
	}

	sort.Ints(queue)

	var destroyed []int
	for _, cell := range queue {
		s.health[cell] -= s.falloff(damage, distances[cell])
		if s.health[cell] > 0 {
			if s.states[cell] == CellIntact {
				s.states[cell] = CellDamaged
			}
			continue
		}

		s.health[cell] = 0
		s.states[cell] = CellDestroyed
		s.destroyedCount++
		destroyed = append(destroyed, cell)
	}

	if len(destroyed) != 0 {
		s.reachableValid = false
	}
	return destroyed
}

// update recomputes reachability once and turns newly unreachable cells into
// detached groups.
func (s *System) update(destroyed []int) Result {
	instrumentDestroyedCells(len(destroyed))

	start := time.Now()
	s.computeReachability()
	instrumentReachability(start)

	var detached []int
	for id, state := range s.states {
		if (state == CellIntact || state == CellDamaged) && !s.reachable[id] {
			s.states[id] = CellDetached
			detached = append(detached, id)
		}
	}

	res := Result{
		NewlyDestroyed:      destroyed,
		DetachedGroups:      s.groupCells(detached),
		Collapsed:           s.isCollapsed(),
		TotalDestroyedCount: s.destroyedCount,
	}

	instrumentResult(res)
	if len(res.DetachedGroups) != 0 || res.Collapsed {
		logs.WithTag("destroyed", len(destroyed)).
			WithTag("detached_groups", len(res.DetachedGroups)).
			WithTag("detached_cells", len(detached)).
			WithTag("collapsed", res.Collapsed).
			Debug("structure lost support")
	}
	return res
}

func (s *System) computeReachability() {
	if s.reachableValid {
		return
	}

	s.reachable = make([]bool, len(s.neighbors))
	queue := make([]int, 0, len(s.neighbors))
	for _, a := range s.sortedAnchors() {
		if s.states[a] == CellDestroyed {
			continue
		}
		s.reachable[a] = true
		queue = append(queue, a)
	}

	for head := 0; head < len(queue); head++ {
		for _, n := range s.neighbors[queue[head]] {
			if s.reachable[n] || s.states[n] == CellDestroyed {
				continue
			}
			s.reachable[n] = true
			queue = append(queue, n)
		}
	}
	s.reachableValid = true
}

// groupCells splits the given sorted cells into connected groups.
func (s *System) groupCells(cells []int) []DetachedGroup {
	if len(cells) == 0 {
		return nil
	}

	pending := make(map[int]struct{}, len(cells))
	for _, c := range cells {
		pending[c] = struct{}{}
	}

	var groups []DetachedGroup
	for _, c := range cells {
		if _, ok := pending[c]; !ok {
			continue
		}
		delete(pending, c)

		members := []int{c}
		for head := 0; head < len(members); head++ {
			for _, n := range s.neighbors[members[head]] {
				if _, ok := pending[n]; ok {
					delete(pending, n)
					members = append(members, n)
				}
			}
		}
		sort.Ints(members)

		g := DetachedGroup{
			GroupID:     s.nextGroupID,
			CellIDs:     members,
			CellKeys:    make([]adjacency.CellKey, len(members)),
			TriangleIDs: s.collectTriangleIDs(members),
		}
		for i, m := range members {
			g.CellKeys[i] = s.keys[m]
		}
		g.CenterOfMass, g.ApproximateMass = s.centerOfMass(members)

		s.nextGroupID++
		groups = append(groups, g)
	}
	return groups
}

func (s *System) isCollapsed() bool {
	if len(s.anchors) == 0 {
		return false
	}
	for a := range s.anchors {
		if s.states[a] != CellDestroyed {
			return false
		}
	}
	return true
}

// CalculateCenterOfMass returns the mass weighted centre of the given cells
// and their total mass. Cells without mass weigh 1.
func (s *System) CalculateCenterOfMass(cellIDs []int) (mgl64.Vec3, float64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.centerOfMass(cellIDs)
}

func (s *System) centerOfMass(cellIDs []int) (mgl64.Vec3, float64) {
	var sum mgl64.Vec3
	var total float64
	for _, id := range cellIDs {
		if !s.isValidCell(id) {
			continue
		}

		m := s.masses[id]
		if m <= 0 {
			m = 1
		}
		sum = sum.Add(s.positions[id].Mul(m))
		total += m
	}

	if total == 0 {
		return mgl64.Vec3{}, 0
	}
	return sum.Mul(1 / total), total
}

// CollectTriangleIDs returns the sorted source mesh triangles of the given
// cells. It is empty for graphs synced from a snapshot.
func (s *System) CollectTriangleIDs(cellIDs []int) []int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.collectTriangleIDs(cellIDs)
}

func (s *System) collectTriangleIDs(cellIDs []int) []int {
	if s.triangles == nil {
		return nil
	}

	var ids []int
	for _, id := range cellIDs {
		if id >= 0 && id < len(s.triangles) {
			ids = append(ids, s.triangles[id]...)
		}
	}
	sort.Ints(ids)
	return ids
}
