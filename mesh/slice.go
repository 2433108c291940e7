package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SliceCount is the number of grid slices along each axis.
type SliceCount [3]int

func (s SliceCount) Total() int {
	return s[0] * s[1] * s[2]
}

// GridIndex returns the index of the grid cell (x, y, z), x varying fastest.
func (s SliceCount) GridIndex(x, y, z int) int {
	return x + y*s[0] + z*s[0]*s[1]
}

// Slice splits m into a regular grid of chunks over its bounds. A triangle
// goes to the chunk containing its centroid. The returned slice is indexed by
// SliceCount.GridIndex; empty grid cells hold empty meshes.
func Slice(m *Mesh, count SliceCount) []*Mesh {
	for i := range count {
		if count[i] < 1 {
			count[i] = 1
		}
	}

	bounds := m.Bounds()
	size := bounds.Size()

	groups := make([][]int, count.Total())
	for i := range m.Triangles {
		c := m.Centroid(i)

		var coord [3]int
		for axis := 0; axis < 3; axis++ {
			if size[axis] <= 0 {
				continue
			}
			f := (c[axis] - bounds.Min[axis]) / size[axis] * float64(count[axis])
			coord[axis] = int(mgl64.Clamp(math.Floor(f), 0, float64(count[axis]-1)))
		}

		idx := count.GridIndex(coord[0], coord[1], coord[2])
		groups[idx] = append(groups[idx], i)
	}

	chunks := make([]*Mesh, len(groups))
	for i, g := range groups {
		chunks[i] = m.Extract(g)
	}
	return chunks
}
