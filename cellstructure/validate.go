package cellstructure

import (
	"github.com/aukilabs/brotna/mesh"
)

// Report counts the invariant violations found by Validate.
type Report struct {
	InsideVoxels        int `json:"inside_voxels"`
	InsideWithoutCell   int `json:"inside_without_cell"`
	OutsideWithCell     int `json:"outside_with_cell"`
	InvalidCellRefs     int `json:"invalid_cell_refs"`
	EmptyCells          int `json:"empty_cells"`
	SelfNeighbors       int `json:"self_neighbors"`
	UnsortedNeighbors   int `json:"unsorted_neighbors"`
	AsymmetricNeighbors int `json:"asymmetric_neighbors"`
	MissingNeighbors    int `json:"missing_neighbors"`
	UnmappedTriangles   int `json:"unmapped_triangles"`
	MismatchedTriangles int `json:"mismatched_triangles"`
}

func (r Report) IssueCount() int {
	return r.InsideWithoutCell +
		r.OutsideWithCell +
		r.InvalidCellRefs +
		r.EmptyCells +
		r.SelfNeighbors +
		r.UnsortedNeighbors +
		r.AsymmetricNeighbors +
		r.MissingNeighbors +
		r.UnmappedTriangles +
		r.MismatchedTriangles
}

func (r Report) OK() bool {
	return r.IssueCount() == 0
}

// Validate re-derives the invariants of d against m and counts violations.
// It never modifies d.
func Validate(d *Data, m *mesh.Mesh) Report {
	var r Report

	cellVoxels := make([]int, d.CellCount())
	for i, in := range d.VoxelInside {
		cell := d.VoxelCellIDs[i]
		if in {
			r.InsideVoxels++
		}

		switch {
		case in && cell == InvalidCellID:
			r.InsideWithoutCell++
		case !in && cell != InvalidCellID:
			r.OutsideWithCell++
		case cell != InvalidCellID && !d.IsValidCell(cell):
			r.InvalidCellRefs++
		case cell != InvalidCellID:
			cellVoxels[cell]++
		}
	}

	for _, n := range cellVoxels {
		if n == 0 {
			r.EmptyCells++
		}
	}

	for cell, neighbors := range d.CellNeighbors {
		for i, n := range neighbors {
			if n == cell {
				r.SelfNeighbors++
			}
			if i > 0 && neighbors[i-1] >= n {
				r.UnsortedNeighbors++
			}
			if !d.IsValidCell(n) {
				r.InvalidCellRefs++
				continue
			}
			if !containsSorted(d.CellNeighbors[n], cell) {
				r.AsymmetricNeighbors++
			}
		}
	}

	r.MissingNeighbors = d.countMissingNeighbors()

	if m.TriangleCount() != len(d.TriangleCellIDs) {
		r.MismatchedTriangles += abs(m.TriangleCount() - len(d.TriangleCellIDs))
	}

	listed := make(map[int]int, len(d.TriangleCellIDs))
	for cell, tris := range d.CellTriangles {
		for _, tri := range tris {
			if _, dup := listed[tri]; dup {
				r.MismatchedTriangles++
				continue
			}
			listed[tri] = cell
		}
	}

	for tri, cell := range d.TriangleCellIDs {
		if cell == InvalidCellID {
			r.UnmappedTriangles++
			continue
		}
		if !d.IsValidCell(cell) {
			r.InvalidCellRefs++
			continue
		}
		if listedCell, ok := listed[tri]; !ok || listedCell != cell {
			r.MismatchedTriangles++
		}
	}
	return r
}

// countMissingNeighbors counts touching cell pairs absent from the neighbour
// lists.
func (d *Data) countMissingNeighbors() int {
	offsets := neighborOffsets(d.Settings.NeighborMode)
	missing := make(map[[2]int]struct{})

	for i, cell := range d.VoxelCellIDs {
		if !d.IsValidCell(cell) {
			continue
		}

		c := d.VoxelCoord(i)
		for _, o := range offsets {
			n := c.Add(o)
			if !d.InGrid(n) {
				continue
			}

			other := d.VoxelCellIDs[d.VoxelIndex(n)]
			if !d.IsValidCell(other) || other <= cell {
				continue
			}
			if !containsSorted(d.CellNeighbors[cell], other) {
				missing[[2]int{cell, other}] = struct{}{}
			}
		}
	}
	return len(missing)
}

func containsSorted(s []int, v int) bool {
	lo, hi := 0, len(s)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case s[mid] == v:
			return true
		case s[mid] < v:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}
