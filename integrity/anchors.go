package integrity

import (
	"math"
	"sort"
)

// SetAnchor adds or removes cellID from the anchors. Changing anchors may
// reattach detached cells.
func (s *System) SetAnchor(cellID int, anchor bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isValidCell(cellID) {
		return
	}

	if anchor {
		s.anchors[cellID] = struct{}{}
	} else {
		delete(s.anchors, cellID)
	}
	s.anchorsChanged()
}

// SetAnchors replaces the anchors.
func (s *System) SetAnchors(cellIDs []int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.anchors = make(map[int]struct{}, len(cellIDs))
	for _, id := range cellIDs {
		if s.isValidCell(id) {
			s.anchors[id] = struct{}{}
		}
	}
	s.anchorsChanged()
}

func (s *System) IsAnchor(cellID int) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.anchors[cellID]
	return ok
}

// AnchorCellIDs returns the sorted anchors.
func (s *System) AnchorCellIDs() []int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.sortedAnchors()
}

// AutoDetectFloorAnchors makes anchors of the cells whose position is within
// threshold of the lowest cell. Thresholds <= 1 are a multiple of the voxel
// size when the graph comes from a cell structure. It returns the number of
// anchors.
func (s *System) AutoDetectFloorAnchors(threshold float64) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.autoDetectFloorAnchors(threshold)
}

func (s *System) autoDetectFloorAnchors(threshold float64) int {
	if len(s.positions) == 0 {
		return 0
	}

	if threshold <= 1 && s.voxelSize > 0 {
		threshold *= s.voxelSize
	}

	minZ := math.Inf(1)
	for _, p := range s.positions {
		minZ = math.Min(minZ, p.Z())
	}

	s.anchors = make(map[int]struct{})
	for id, p := range s.positions {
		if p.Z()-minZ <= threshold {
			s.anchors[id] = struct{}{}
		}
	}
	s.anchorsChanged()
	return len(s.anchors)
}

// anchorsChanged invalidates reachability and gives detached cells that are
// reachable again back to the structure. Destroyed cells never come back.
func (s *System) anchorsChanged() {
	s.reachableValid = false
	s.computeReachability()

	for id, state := range s.states {
		if state != CellDetached || !s.reachable[id] {
			continue
		}

		s.states[id] = CellIntact
		if s.health[id] < s.settings.DefaultCellHealth {
			s.states[id] = CellDamaged
		}
	}
}

func (s *System) sortedAnchors() []int {
	ids := make([]int, 0, len(s.anchors))
	for id := range s.anchors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
