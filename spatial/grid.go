package spatial

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Regular Grid Spatial Partition
//
// An uniformly sub-divided 2D grid holding integer ids (triangle indices in
// practice). The particularities are:
//   - the grid has a resolution that defines how large a cell is, in world
//     units. An id inserted with bounds spanning several cells is stored in
//     each of them.
//   - the grid grows to fit inserted bounds. Cell limits are in the range
//     [min..min+resolution[.
type Grid struct {
	Resolution float64
	Count      uint32
	Min        mgl64.Vec2
	Max        mgl64.Vec2
	Cells      [][][]int
}

// NewGrid returns a grid with the given number of columns and rows whose
// minimum corner is at origin.
func NewGrid(origin mgl64.Vec2, numCols, numRows uint, resolution float64) *Grid {
	if numCols == 0 {
		numCols = 1
	}
	if numRows == 0 {
		numRows = 1
	}
	if resolution <= 0 {
		resolution = 1
	}

	g := &Grid{
		Resolution: resolution,
		Min:        origin,
		Max: mgl64.Vec2{
			origin.X() + float64(numCols)*resolution,
			origin.Y() + float64(numRows)*resolution,
		},
	}

	g.Cells = make([][][]int, numRows)
	for i := range g.Cells {
		g.Cells[i] = make([][]int, numCols)
	}
	return g
}

// NewGridForBounds returns a grid covering the given bounds with roughly
// cellsPerAxis cells along its largest side.
func NewGridForBounds(min, max mgl64.Vec2, cellsPerAxis int) *Grid {
	if cellsPerAxis <= 0 {
		cellsPerAxis = 1
	}

	size := max.Sub(min)
	resolution := math.Max(size.X(), size.Y()) / float64(cellsPerAxis)
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 0) {
		resolution = 1
	}

	cols := uint(math.Ceil(size.X()/resolution)) + 1
	rows := uint(math.Ceil(size.Y()/resolution)) + 1
	return NewGrid(min, cols, rows, resolution)
}

// Insert stores id in every cell overlapped by the given bounds, growing the
// grid when needed.
func (g *Grid) Insert(id int, min, max mgl64.Vec2) {
	g.ExpandToFitPoint(min)
	g.ExpandToFitPoint(max)

	minCol, minRow := g.cellCoord(min)
	maxCol, maxRow := g.cellCoord(max)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.Cells[row][col] = append(g.Cells[row][col], id)
		}
	}
	g.Count++
}

// Query returns the ids stored in the cell containing p. The returned slice
// must not be modified.
func (g *Grid) Query(p mgl64.Vec2) []int {
	if p.X() < g.Min.X() || p.Y() < g.Min.Y() || p.X() >= g.Max.X() || p.Y() >= g.Max.Y() {
		return nil
	}

	col, row := g.cellCoord(p)
	return g.Cells[row][col]
}

// Region returns the sorted, deduplicated ids stored in the cells overlapping
// the given bounds.
func (g *Grid) Region(min, max mgl64.Vec2) []int {
	min = mgl64.Vec2{math.Max(min.X(), g.Min.X()), math.Max(min.Y(), g.Min.Y())}
	max = mgl64.Vec2{math.Min(max.X(), g.Max.X()), math.Min(max.Y(), g.Max.Y())}
	if min.X() > max.X() || min.Y() > max.Y() {
		return nil
	}

	minCol, minRow := g.cellCoord(min)
	maxCol, maxRow := g.cellCoord(max)

	seen := make(map[int]struct{})
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.Cells[row][col] {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ExpandToFitPoint grows the grid by whole cells until p lies inside it.
func (g *Grid) ExpandToFitPoint(p mgl64.Vec2) {
	if p.X() >= g.Min.X() && p.Y() >= g.Min.Y() && p.X() < g.Max.X() && p.Y() < g.Max.Y() {
		return
	}

	var left, right, down, up int
	if p.X() < g.Min.X() {
		left = int(math.Ceil((g.Min.X() - p.X()) / g.Resolution))
	} else if p.X() >= g.Max.X() {
		right = int(math.Floor((p.X()-g.Max.X())/g.Resolution)) + 1
	}
	if p.Y() < g.Min.Y() {
		down = int(math.Ceil((g.Min.Y() - p.Y()) / g.Resolution))
	} else if p.Y() >= g.Max.Y() {
		up = int(math.Floor((p.Y()-g.Max.Y())/g.Resolution)) + 1
	}

	// Add columns:
	if left > 0 || right > 0 {
		for i := range g.Cells {
			row := make([][]int, 0, left+len(g.Cells[i])+right)
			row = append(row, make([][]int, left)...)
			row = append(row, g.Cells[i]...)
			row = append(row, make([][]int, right)...)
			g.Cells[i] = row
		}
		g.Min[0] -= float64(left) * g.Resolution
		g.Max[0] += float64(right) * g.Resolution
	}

	// Add rows:
	if down > 0 || up > 0 {
		cols := len(g.Cells[0])
		rows := make([][][]int, 0, down+len(g.Cells)+up)
		for i := 0; i < down; i++ {
			rows = append(rows, make([][]int, cols))
		}
		rows = append(rows, g.Cells...)
		for i := 0; i < up; i++ {
			rows = append(rows, make([][]int, cols))
		}
		g.Cells = rows
		g.Min[1] -= float64(down) * g.Resolution
		g.Max[1] += float64(up) * g.Resolution
	}
}

// DebugInfo describes the grid layout and how many ids each cell holds.
type DebugInfo struct {
	Resolution float64    `json:"resolution"`
	RowCount   uint32     `json:"row_count"`
	ColCount   uint32     `json:"col_count"`
	Count      uint32     `json:"count"`
	MinPoint   mgl64.Vec2 `json:"min_point"`
	MaxPoint   mgl64.Vec2 `json:"max_point"`
	Occupancy  []uint32   `json:"occupancy"`
}

func (g *Grid) GetDebugInfo() DebugInfo {
	info := DebugInfo{
		Resolution: g.Resolution,
		RowCount:   uint32(len(g.Cells)),
		ColCount:   uint32(len(g.Cells[0])),
		Count:      g.Count,
		MinPoint:   g.Min,
		MaxPoint:   g.Max,
	}

	info.Occupancy = make([]uint32, info.RowCount*info.ColCount)
	for y := uint32(0); y < info.RowCount; y++ {
		for x := uint32(0); x < info.ColCount; x++ {
			info.Occupancy[y*info.ColCount+x] = uint32(len(g.Cells[y][x]))
		}
	}
	return info
}

// NOTE: points on the max edge belong to the last cell.
func (g *Grid) cellCoord(p mgl64.Vec2) (col, row int) {
	col = int(math.Floor((p.X() - g.Min.X()) / g.Resolution))
	row = int(math.Floor((p.Y() - g.Min.Y()) / g.Resolution))

	col = clampIndex(col, len(g.Cells[0]))
	row = clampIndex(row, len(g.Cells))
	return col, row
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
