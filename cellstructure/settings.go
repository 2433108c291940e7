package cellstructure

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeInvalidSettings = "invalid_settings"
	ErrTypeInvalidMesh     = "invalid_mesh"
	ErrTypeNoInsideVoxels  = "no_inside_voxels"
)

// InvalidCellID marks voxels and triangles that belong to no cell.
const InvalidCellID = -1

// NeighborMode is the voxel connectivity used for flood fill, adjacency and
// triangle mapping.
type NeighborMode int

const (
	Neighbors6  NeighborMode = 6
	Neighbors18 NeighborMode = 18
	Neighbors26 NeighborMode = 26
)

func (m NeighborMode) IsValid() bool {
	switch m {
	case Neighbors6, Neighbors18, Neighbors26:
		return true
	default:
		return false
	}
}

// Settings configures a cell structure build.
type Settings struct {
	// The number of voxels along the smallest extent of the mesh bounds.
	BaseResolution int `json:"base_resolution" yaml:"base_resolution"`

	// The wanted number of cells. Fewer cells are produced when the mesh has
	// fewer inside voxels.
	TargetSeedCount int `json:"target_seed_count" yaml:"target_seed_count"`

	NeighborMode NeighborMode `json:"neighbor_mode" yaml:"neighbor_mode"`
	GlobalSeed   uint64       `json:"global_seed"   yaml:"global_seed"`
}

func DefaultSettings() Settings {
	return Settings{
		BaseResolution:  32,
		TargetSeedCount: 64,
		NeighborMode:    Neighbors6,
		GlobalSeed:      0x5EED,
	}
}

func (s Settings) Validate() error {
	if s.BaseResolution <= 0 {
		return errors.New("base resolution must be positive").
			WithType(ErrTypeInvalidSettings).
			WithTag("base_resolution", s.BaseResolution)
	}

	if s.TargetSeedCount <= 0 {
		return errors.New("target seed count must be positive").
			WithType(ErrTypeInvalidSettings).
			WithTag("target_seed_count", s.TargetSeedCount)
	}

	if !s.NeighborMode.IsValid() {
		return errors.New("neighbor mode must be 6, 18 or 26").
			WithType(ErrTypeInvalidSettings).
			WithTag("neighbor_mode", int(s.NeighborMode))
	}
	return nil
}
