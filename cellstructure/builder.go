package cellstructure

import (
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

// Build voxelizes m, grows cells from deterministic seeds and maps every
// triangle to a cell. The same mesh and settings always produce the same
// data.
func Build(m *mesh.Mesh, s Settings) (data *Data, err error) {
	start := time.Now()
	defer func() {
		instrumentBuild(start, data, err)
	}()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, errors.New("invalid mesh").WithType(ErrTypeInvalidMesh).Wrap(err)
	}

	if m.IsEmpty() {
		return nil, errors.New("mesh has no triangles").WithType(ErrTypeInvalidMesh)
	}

	bounds := m.Bounds()
	size := bounds.Size()
	minExtent := math.Min(size.X(), math.Min(size.Y(), size.Z()))
	if !bounds.IsValid() || minExtent <= 0 {
		return nil, errors.New("mesh bounds are degenerate").
			WithType(ErrTypeInvalidMesh).
			WithTag("size", size)
	}

	voxelSize := minExtent / float64(s.BaseResolution)
	var resolution [3]int
	for axis := 0; axis < 3; axis++ {
		resolution[axis] = int(math.Max(1, math.Ceil(size[axis]/voxelSize)))
	}

	data = &Data{
		Settings:   s,
		Bounds:     bounds,
		VoxelSize:  voxelSize,
		Resolution: resolution,
	}

	insideCount := data.voxelize(m)
	if insideCount == 0 {
		return nil, errors.New("mesh has no inside voxel").
			WithType(ErrTypeNoInsideVoxels).
			WithTag("resolution", resolution)
	}

	seeds := selectSeeds(resolution, data.VoxelInside, insideCount, s.TargetSeedCount, s.GlobalSeed)
	offsets := neighborOffsets(s.NeighborMode)

	data.CellSeeds = seeds
	data.floodFill(offsets)
	data.buildAdjacency(offsets)
	data.mapTriangles(m, offsets)

	logs.WithTag("resolution", resolution).
		WithTag("voxel_size", voxelSize).
		WithTag("inside_voxels", insideCount).
		WithTag("cells", data.CellCount()).
		WithTag("duration", time.Since(start)).
		Debug("cell structure built")
	return data, nil
}

// voxelize samples every voxel centre against m. Z slices are processed in
// parallel; each one only writes its own range of the mask.
func (d *Data) voxelize(m *mesh.Mesh) int {
	d.VoxelInside = make([]bool, product(d.Resolution))
	tester := mesh.NewInsideTester(m, d.VoxelSize)

	slices := make(chan int)
	counts := make([]int, d.Resolution[2])

	var wg sync.WaitGroup
	for w := 0; w < runtime.GOMAXPROCS(0); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for z := range slices {
				for y := 0; y < d.Resolution[1]; y++ {
					for x := 0; x < d.Resolution[0]; x++ {
						c := Coord{x, y, z}
						if tester.Contains(d.VoxelCenter(c)) {
							d.VoxelInside[d.VoxelIndex(c)] = true
							counts[z]++
						}
					}
				}
			}
		}()
	}

	for z := 0; z < d.Resolution[2]; z++ {
		slices <- z
	}
	close(slices)
	wg.Wait()

	var total int
	for _, c := range counts {
		total += c
	}
	return total
}

// floodFill grows every seed through inside voxels in breadth first order.
// The first cell reaching a voxel owns it.
func (d *Data) floodFill(offsets []Coord) {
	d.VoxelCellIDs = make([]int, len(d.VoxelInside))
	for i := range d.VoxelCellIDs {
		d.VoxelCellIDs[i] = InvalidCellID
	}
	d.CellVoxels = make([]int, len(d.CellSeeds))

	queue := make([]Coord, 0, len(d.VoxelInside))
	for id, seed := range d.CellSeeds {
		d.VoxelCellIDs[d.VoxelIndex(seed)] = id
		d.CellVoxels[id]++
		queue = append(queue, seed)
	}

	for head := 0; head < len(queue); head++ {
		c := queue[head]
		cell := d.VoxelCellIDs[d.VoxelIndex(c)]

		for _, o := range offsets {
			n := c.Add(o)
			if !d.InGrid(n) {
				continue
			}

			ni := d.VoxelIndex(n)
			if !d.VoxelInside[ni] || d.VoxelCellIDs[ni] != InvalidCellID {
				continue
			}

			d.VoxelCellIDs[ni] = cell
			d.CellVoxels[cell]++
			queue = append(queue, n)
		}
	}
}

func (d *Data) buildAdjacency(offsets []Coord) {
	neighbors := make([]map[int]struct{}, d.CellCount())
	for i := range neighbors {
		neighbors[i] = make(map[int]struct{})
	}

	for i, cell := range d.VoxelCellIDs {
		if cell == InvalidCellID {
			continue
		}

		c := d.VoxelCoord(i)
		for _, o := range offsets {
			n := c.Add(o)
			if !d.InGrid(n) {
				continue
			}

			other := d.VoxelCellIDs[d.VoxelIndex(n)]
			if other == InvalidCellID || other <= cell {
				continue
			}

			neighbors[cell][other] = struct{}{}
			neighbors[other][cell] = struct{}{}
		}
	}

	d.CellNeighbors = make([][]int, d.CellCount())
	for i, n := range neighbors {
		d.CellNeighbors[i] = sortedKeys(n)
	}
}

// mapTriangles assigns each triangle to the cell of the voxel containing its
// centroid. Centroids in empty voxels take the closest cell around them.
func (d *Data) mapTriangles(m *mesh.Mesh, offsets []Coord) {
	fallback := fallbackOffsets()

	d.TriangleCellIDs = make([]int, m.TriangleCount())
	d.CellTriangles = make([][]int, d.CellCount())

	for tri := range m.Triangles {
		cell := d.cellForPoint(m.Centroid(tri), offsets, fallback)
		d.TriangleCellIDs[tri] = cell
		if cell != InvalidCellID {
			d.CellTriangles[cell] = append(d.CellTriangles[cell], tri)
		}
	}
}

func (d *Data) cellForPoint(p mgl64.Vec3, offsets, fallback []Coord) int {
	c, ok := d.WorldToVoxel(p)
	if !ok {
		return InvalidCellID
	}

	if cell := d.VoxelCellIDs[d.VoxelIndex(c)]; cell != InvalidCellID {
		return cell
	}

	if cell := d.closestCell(c, offsets); cell != InvalidCellID {
		return cell
	}
	return d.closestCell(c, fallback)
}

func (d *Data) closestCell(c Coord, offsets []Coord) int {
	best := InvalidCellID
	bestDist := math.MaxInt

	for _, o := range offsets {
		n := c.Add(o)
		if !d.InGrid(n) {
			continue
		}

		cell := d.VoxelCellIDs[d.VoxelIndex(n)]
		if cell == InvalidCellID {
			continue
		}

		dist := c.ManhattanDistance(n)
		if dist < bestDist || (dist == bestDist && cell < best) {
			best = cell
			bestDist = dist
		}
	}
	return best
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
