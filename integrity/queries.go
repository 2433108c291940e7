package integrity

import (
	"github.com/aukilabs/brotna/adjacency"
	"github.com/aukilabs/brotna/cellstructure"
	"github.com/go-gl/mathgl/mgl64"
)

func (s *System) CellState(cellID int) CellState {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) {
		return CellDestroyed
	}
	return s.states[cellID]
}

func (s *System) CellHealth(cellID int) float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) {
		return 0
	}
	return s.health[cellID]
}

// CellHealthNormalized returns the cell health in [0, 1].
func (s *System) CellHealthNormalized(cellID int) float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) || s.settings.DefaultCellHealth <= 0 {
		return 0
	}
	return mgl64.Clamp(s.health[cellID]/s.settings.DefaultCellHealth, 0, 1)
}

func (s *System) IsCellDestroyed(cellID int) bool {
	return s.CellState(cellID) == CellDestroyed
}

// IsCellConnectedToAnchor uses the cached reachability. Before the first
// update every non destroyed cell is considered connected.
func (s *System) IsCellConnectedToAnchor(cellID int) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) || s.states[cellID] == CellDestroyed {
		return false
	}
	if !s.reachableValid {
		return s.states[cellID] != CellDetached
	}
	return s.reachable[cellID]
}

func (s *System) DestroyedCellIDs() []int {
	return s.cellIDsInState(CellDestroyed)
}

func (s *System) DetachedCellIDs() []int {
	return s.cellIDsInState(CellDetached)
}

func (s *System) cellIDsInState(state CellState) []int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var ids []int
	for id, st := range s.states {
		if st == state {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *System) DestroyedCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.destroyedCount
}

// DestroyedCellKeys returns the keys of the destroyed cells, sorted.
func (s *System) DestroyedCellKeys() []adjacency.CellKey {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var keys []adjacency.CellKey
	for id, st := range s.states {
		if st == CellDestroyed {
			keys = append(keys, s.keys[id])
		}
	}
	return keys
}

func (s *System) KeyForCellID(cellID int) (adjacency.CellKey, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) {
		return adjacency.CellKey{}, false
	}
	return s.keys[cellID], true
}

func (s *System) CellIDForKey(key adjacency.CellKey) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if id, ok := s.keyIndex[key]; ok {
		return id
	}
	return cellstructure.InvalidCellID
}

func (s *System) CellWorldPosition(cellID int) mgl64.Vec3 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isValidCell(cellID) {
		return mgl64.Vec3{}
	}
	return s.positions[cellID]
}

// Stats summarizes the cell states.
type Stats struct {
	Cells     int `json:"cells"`
	Intact    int `json:"intact"`
	Damaged   int `json:"damaged"`
	Destroyed int `json:"destroyed"`
	Detached  int `json:"detached"`
	Anchors   int `json:"anchors"`
}

func (s *System) Stats() Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	st := Stats{
		Cells:   len(s.states),
		Anchors: len(s.anchors),
	}
	for _, state := range s.states {
		switch state {
		case CellIntact:
			st.Intact++
		case CellDamaged:
			st.Damaged++
		case CellDestroyed:
			st.Destroyed++
		case CellDetached:
			st.Detached++
		}
	}
	return st
}
