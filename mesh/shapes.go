package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Box returns a closed box with outward facing triangles.
func Box(min, max mgl64.Vec3) *Mesh {
	b := NewBounds(min, max)
	x0, y0, z0 := b.Min.Elem()
	x1, y1, z1 := b.Max.Elem()

	return &Mesh{
		Vertices: []mgl64.Vec3{
			{x0, y0, z0}, {x1, y0, z0}, {x1, y1, z0}, {x0, y1, z0},
			{x0, y0, z1}, {x1, y0, z1}, {x1, y1, z1}, {x0, y1, z1},
		},
		Triangles: [][3]int{
			{0, 2, 1}, {0, 3, 2}, // -z
			{4, 5, 6}, {4, 6, 7}, // +z
			{0, 1, 5}, {0, 5, 4}, // -y
			{3, 7, 6}, {3, 6, 2}, // +y
			{0, 4, 7}, {0, 7, 3}, // -x
			{1, 2, 6}, {1, 6, 5}, // +x
		},
	}
}

// Sphere returns an icosphere. Each subdivision splits every triangle in
// four.
func Sphere(center mgl64.Vec3, radius float64, subdivisions int) *Mesh {
	t := (1 + math.Sqrt(5)) / 2

	vertices := []mgl64.Vec3{
		{-1, t, 0}, {1, t, 0}, {-1, -t, 0}, {1, -t, 0},
		{0, -1, t}, {0, 1, t}, {0, -1, -t}, {0, 1, -t},
		{t, 0, -1}, {t, 0, 1}, {-t, 0, -1}, {-t, 0, 1},
	}
	for i, v := range vertices {
		vertices[i] = v.Normalize()
	}

	triangles := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < subdivisions; s++ {
		midpoints := make(map[[2]int]int)
		midpoint := func(a, b int) int {
			k := [2]int{a, b}
			if a > b {
				k = [2]int{b, a}
			}
			if i, ok := midpoints[k]; ok {
				return i
			}
			i := len(vertices)
			vertices = append(vertices, vertices[a].Add(vertices[b]).Normalize())
			midpoints[k] = i
			return i
		}

		next := make([][3]int, 0, len(triangles)*4)
		for _, tri := range triangles {
			a := midpoint(tri[0], tri[1])
			b := midpoint(tri[1], tri[2])
			c := midpoint(tri[2], tri[0])
			next = append(next,
				[3]int{tri[0], a, c},
				[3]int{tri[1], b, a},
				[3]int{tri[2], c, b},
				[3]int{a, b, c},
			)
		}
		triangles = next
	}

	for i, v := range vertices {
		vertices[i] = v.Mul(radius).Add(center)
	}

	return &Mesh{
		Vertices:  vertices,
		Triangles: triangles,
	}
}

// BoxGrid splits the box (min, max) into a regular grid of closed boxes,
// indexed by SliceCount.GridIndex. Neighbouring boxes share their faces.
func BoxGrid(min, max mgl64.Vec3, count SliceCount) []*Mesh {
	for i := range count {
		if count[i] < 1 {
			count[i] = 1
		}
	}

	b := NewBounds(min, max)
	size := b.Size()
	cell := mgl64.Vec3{
		size.X() / float64(count[0]),
		size.Y() / float64(count[1]),
		size.Z() / float64(count[2]),
	}

	boxes := make([]*Mesh, count.Total())
	for z := 0; z < count[2]; z++ {
		for y := 0; y < count[1]; y++ {
			for x := 0; x < count[0]; x++ {
				lo := b.Min.Add(MulElem(mgl64.Vec3{float64(x), float64(y), float64(z)}, cell))
				boxes[count.GridIndex(x, y, z)] = Box(lo, lo.Add(cell))
			}
		}
	}
	return boxes
}
