package cellstructure

import (
	"math"

	"github.com/aukilabs/brotna/mesh"
	"github.com/go-gl/mathgl/mgl64"
)

// Data is an immutable cell partition of a mesh. It is rebuilt wholesale
// and never mutated after Build returns.
type Data struct {
	Settings   Settings
	Bounds     mesh.Bounds
	VoxelSize  float64
	Resolution [3]int

	// Per voxel, indexed by VoxelIndex.
	VoxelInside  []bool
	VoxelCellIDs []int

	// Per cell, indexed by cell id.
	CellSeeds     []Coord
	CellNeighbors [][]int
	CellTriangles [][]int
	CellVoxels    []int

	// Per triangle of the source mesh.
	TriangleCellIDs []int
}

func (d *Data) CellCount() int {
	return len(d.CellSeeds)
}

func (d *Data) VoxelCount() int {
	return len(d.VoxelInside)
}

func (d *Data) InsideCount() int {
	var n int
	for _, in := range d.VoxelInside {
		if in {
			n++
		}
	}
	return n
}

func (d *Data) IsValidCell(cellID int) bool {
	return cellID >= 0 && cellID < len(d.CellSeeds)
}

func (d *Data) VoxelIndex(c Coord) int {
	return voxelIndex(d.Resolution, c)
}

func (d *Data) VoxelCoord(index int) Coord {
	return voxelCoord(d.Resolution, index)
}

func (d *Data) InGrid(c Coord) bool {
	return inGrid(d.Resolution, c)
}

// VoxelCenter returns the world position of the voxel centre.
func (d *Data) VoxelCenter(c Coord) mgl64.Vec3 {
	return voxelCenter(d.Bounds.Min, d.VoxelSize, c)
}

// WorldToVoxel returns the voxel containing p. Points outside the grid by
// more than mesh.Epsilon voxels are rejected; points on the grid boundary are
// clamped into it.
func (d *Data) WorldToVoxel(p mgl64.Vec3) (Coord, bool) {
	var c Coord
	for axis := 0; axis < 3; axis++ {
		local := (p[axis] - d.Bounds.Min[axis]) / d.VoxelSize
		if local < -mesh.Epsilon || local > float64(d.Resolution[axis])+mesh.Epsilon {
			return Coord{}, false
		}
		c[axis] = clampInt(int(math.Floor(local)), 0, d.Resolution[axis]-1)
	}
	return c, true
}

// CellAt returns the cell of the voxel containing p, or InvalidCellID.
func (d *Data) CellAt(p mgl64.Vec3) int {
	c, ok := d.WorldToVoxel(p)
	if !ok {
		return InvalidCellID
	}
	return d.VoxelCellIDs[d.VoxelIndex(c)]
}

// CellForPoint returns the cell of the voxel containing p or, when that
// voxel is empty, the closest cell around it. Triangles are mapped the same
// way.
func (d *Data) CellForPoint(p mgl64.Vec3) int {
	return d.cellForPoint(p, neighborOffsets(d.Settings.NeighborMode), fallbackOffsets())
}

// CellWorldPosition returns the world position of the cell seed voxel.
func (d *Data) CellWorldPosition(cellID int) mgl64.Vec3 {
	if !d.IsValidCell(cellID) {
		return mgl64.Vec3{}
	}
	return d.VoxelCenter(d.CellSeeds[cellID])
}

// CellsInSphere returns the sorted ids of the cells owning a voxel whose
// centre lies within radius of center.
func (d *Data) CellsInSphere(center mgl64.Vec3, radius float64) []int {
	if radius <= 0 {
		return nil
	}

	lo, _ := d.clampedVoxel(center.Sub(mgl64.Vec3{radius, radius, radius}))
	hi, _ := d.clampedVoxel(center.Add(mgl64.Vec3{radius, radius, radius}))

	seen := make(map[int]struct{})
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				c := Coord{x, y, z}
				cell := d.VoxelCellIDs[d.VoxelIndex(c)]
				if cell == InvalidCellID {
					continue
				}
				if d.VoxelCenter(c).Sub(center).Len() <= radius {
					seen[cell] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(seen)
}

func (d *Data) clampedVoxel(p mgl64.Vec3) (Coord, bool) {
	var c Coord
	inside := true
	for axis := 0; axis < 3; axis++ {
		v := int(math.Floor((p[axis] - d.Bounds.Min[axis]) / d.VoxelSize))
		if v < 0 || v >= d.Resolution[axis] {
			inside = false
		}
		c[axis] = clampInt(v, 0, d.Resolution[axis]-1)
	}
	return c, inside
}

func voxelIndex(res [3]int, c Coord) int {
	return c[2]*res[1]*res[0] + c[1]*res[0] + c[0]
}

func voxelCoord(res [3]int, index int) Coord {
	x := index % res[0]
	y := (index / res[0]) % res[1]
	z := index / (res[0] * res[1])
	return Coord{x, y, z}
}

func inGrid(res [3]int, c Coord) bool {
	return c[0] >= 0 && c[1] >= 0 && c[2] >= 0 &&
		c[0] < res[0] && c[1] < res[1] && c[2] < res[2]
}

func voxelCenter(min mgl64.Vec3, size float64, c Coord) mgl64.Vec3 {
	return mgl64.Vec3{
		min[0] + (float64(c[0])+0.5)*size,
		min[1] + (float64(c[1])+0.5)*size,
		min[2] + (float64(c[2])+0.5)*size,
	}
}
