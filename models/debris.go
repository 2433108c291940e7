package models

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/brotna/adjacency"
	"github.com/aukilabs/brotna/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Debris is a fragment that lost every path to an anchor and was cut out of
// its destructible.
type Debris struct {
	ID             uint32              `json:"id"`
	DestructibleID string              `json:"destructible_id"`
	GroupID        int                 `json:"group_id"`
	CellIDs        []int               `json:"cell_ids"`
	CellKeys       []adjacency.CellKey `json:"cell_keys,omitempty"`
	CenterOfMass   mgl64.Vec3          `json:"center_of_mass"`
	Mass           float64             `json:"mass"`
	TriangleCount  int                 `json:"triangle_count"`
	SpawnedAt      time.Time           `json:"spawned_at"`

	Mesh *mesh.Mesh `json:"-"`
}

// DebrisSpawner receives the debris cut out of destructibles.
type DebrisSpawner interface {
	SpawnDebris(d *Debris)
}

// DebrisStore is a DebrisSpawner that keeps the spawned debris.
type DebrisStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	debris   map[uint32]*Debris
	ids      SequentialIDGenerator
}

func (s *DebrisStore) init() {
	s.debris = make(map[uint32]*Debris)
}

func (s *DebrisStore) SpawnDebris(d *Debris) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if d.ID == 0 {
		d.ID = s.ids.New()
	}
	if d.SpawnedAt.IsZero() {
		d.SpawnedAt = time.Now()
	}
	s.debris[d.ID] = d

	instrumentDebrisSpawn(d.DestructibleID)
	instrumentDebrisGauge(len(s.debris))
}

func (s *DebrisStore) Get(id uint32) (*Debris, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	d, ok := s.debris[id]
	return d, ok
}

func (s *DebrisStore) Remove(id uint32) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.debris[id]; !ok {
		return
	}
	delete(s.debris, id)
	s.ids.Reuse(id)
	instrumentDebrisGauge(len(s.debris))
}

// List returns the debris sorted by id.
func (s *DebrisStore) List() []*Debris {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	debris := make([]*Debris, 0, len(s.debris))
	for _, d := range s.debris {
		debris = append(debris, d)
	}
	sort.Slice(debris, func(i, j int) bool {
		return debris[i].ID < debris[j].ID
	})
	return debris
}

func (s *DebrisStore) Count() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.debris)
}
