package adjacency

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// CellKey identifies a cell of a chunk.
type CellKey struct {
	ChunkID int `json:"chunk_id"`
	CellID  int `json:"cell_id"`
}

func (k CellKey) Less(o CellKey) bool {
	if k.ChunkID != o.ChunkID {
		return k.ChunkID < o.ChunkID
	}
	return k.CellID < o.CellID
}

func (k CellKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChunkID, k.CellID)
}

// SnapshotNode is a node of a graph snapshot. Neighbors are indices into
// Snapshot.Nodes.
type SnapshotNode struct {
	Key       CellKey    `json:"key"`
	Neighbors []int      `json:"neighbors"`
	Anchor    bool       `json:"anchor"`
	Center    mgl64.Vec3 `json:"center"`
	Mass      float64    `json:"mass"`
}

// Snapshot is a copy of the cell graph sorted by key. It is what the
// structural integrity system consumes.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes"`
}

func (s Snapshot) IndexOf(key CellKey) int {
	lo, hi := 0, len(s.Nodes)
	for lo < hi {
		mid := (lo + hi) / 2
		switch k := s.Nodes[mid].Key; {
		case k == key:
			return mid
		case k.Less(key):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}
