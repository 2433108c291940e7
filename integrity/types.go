package integrity

import (
	"math"

	"github.com/aukilabs/brotna/adjacency"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	ErrTypeInvalidCell  = "invalid_cell"
	ErrTypeInvalidGraph = "invalid_graph"
)

// CellState is the structural state of a cell. Destroyed is terminal.
type CellState int

const (
	CellIntact CellState = iota
	CellDamaged
	CellDestroyed
	CellDetached
)

func (s CellState) String() string {
	switch s {
	case CellIntact:
		return "intact"
	case CellDamaged:
		return "damaged"
	case CellDestroyed:
		return "destroyed"
	case CellDetached:
		return "detached"
	default:
		return "unknown"
	}
}

func (s CellState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// FalloffFunc returns the damage dealt to a cell distance graph hops away
// from the hit cell.
type FalloffFunc func(damage float64, distance int) float64

// ExponentialFalloff loses the given fraction of damage at every hop.
func ExponentialFalloff(fraction float64) FalloffFunc {
	keep := 1 - mgl64.Clamp(fraction, 0, 1)
	return func(damage float64, distance int) float64 {
		return damage * math.Pow(keep, float64(distance))
	}
}

// Settings configures a structural integrity system.
type Settings struct {
	DefaultCellHealth float64 `json:"default_cell_health" yaml:"default_cell_health"`

	// The fraction of damage lost at every hop away from the hit cell.
	DamageFalloff float64 `json:"damage_falloff" yaml:"damage_falloff"`

	// Cells whose seed is within this height of the lowest seed become
	// anchors when floor anchors are detected. Values <= 1 are a multiple of
	// the voxel size.
	FloorHeightThreshold   float64 `json:"floor_height_threshold"    yaml:"floor_height_threshold"`
	AutoDetectFloorAnchors bool    `json:"auto_detect_floor_anchors" yaml:"auto_detect_floor_anchors"`

	// The number of cells from which destruction runs in the background.
	AsyncThreshold int `json:"async_threshold" yaml:"async_threshold"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultCellHealth:      100,
		DamageFalloff:          0.5,
		FloorHeightThreshold:   1,
		AutoDetectFloorAnchors: true,
		AsyncThreshold:         1000,
	}
}

// DetachedGroup is a set of connected cells that lost every path to an
// anchor in the same update.
type DetachedGroup struct {
	GroupID         int                 `json:"group_id"`
	CellIDs         []int               `json:"cell_ids"`
	CellKeys        []adjacency.CellKey `json:"cell_keys"`
	CenterOfMass    mgl64.Vec3          `json:"center_of_mass"`
	ApproximateMass float64             `json:"approximate_mass"`
	TriangleIDs     []int               `json:"triangle_ids,omitempty"`
}

// Result describes the outcome of a structural update.
type Result struct {
	NewlyDestroyed      []int           `json:"newly_destroyed"`
	DetachedGroups      []DetachedGroup `json:"detached_groups"`
	Collapsed           bool            `json:"collapsed"`
	TotalDestroyedCount int             `json:"total_destroyed_count"`
}

func (r Result) HasChanges() bool {
	return len(r.NewlyDestroyed) != 0 || len(r.DetachedGroups) != 0
}

func (r Result) DetachedCellCount() int {
	var n int
	for _, g := range r.DetachedGroups {
		n += len(g.CellIDs)
	}
	return n
}
