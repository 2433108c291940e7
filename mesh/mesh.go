package mesh

import (
	"math"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	ErrTypeInvalidMesh = "invalid_mesh"
)

// Mesh is an indexed triangle mesh. Materials is optional and, when set,
// holds one material id per triangle.
type Mesh struct {
	Vertices  []mgl64.Vec3
	Triangles [][3]int
	Materials []int32
}

func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles)
}

func (m *Mesh) IsEmpty() bool {
	return m.TriangleCount() == 0
}

// Validate returns an error when a triangle references a missing vertex or
// the material list does not match the triangle list.
func (m *Mesh) Validate() error {
	if m == nil {
		return errors.New("mesh is nil").WithType(ErrTypeInvalidMesh)
	}

	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v < 0 || v >= len(m.Vertices) {
				return errors.New("triangle references a missing vertex").
					WithType(ErrTypeInvalidMesh).
					WithTag("triangle", i).
					WithTag("vertex", v)
			}
		}
	}

	if len(m.Materials) != 0 && len(m.Materials) != len(m.Triangles) {
		return errors.New("material count does not match triangle count").
			WithType(ErrTypeInvalidMesh).
			WithTag("materials", len(m.Materials)).
			WithTag("triangles", len(m.Triangles))
	}
	return nil
}

func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return &Mesh{}
	}

	out := &Mesh{
		Vertices:  make([]mgl64.Vec3, len(m.Vertices)),
		Triangles: make([][3]int, len(m.Triangles)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Triangles, m.Triangles)

	if len(m.Materials) != 0 {
		out.Materials = make([]int32, len(m.Materials))
		copy(out.Materials, m.Materials)
	}
	return out
}

// Append adds the triangles of o to m, as a separate shell.
func (m *Mesh) Append(o *Mesh) {
	if o.IsEmpty() {
		return
	}

	hadMaterials := len(m.Materials) != 0 || len(o.Materials) != 0
	if hadMaterials && len(m.Materials) == 0 {
		m.Materials = make([]int32, len(m.Triangles))
	}

	offset := len(m.Vertices)
	m.Vertices = append(m.Vertices, o.Vertices...)
	for i, tri := range o.Triangles {
		m.Triangles = append(m.Triangles, [3]int{tri[0] + offset, tri[1] + offset, tri[2] + offset})
		if hadMaterials {
			var mat int32
			if len(o.Materials) != 0 {
				mat = o.Materials[i]
			}
			m.Materials = append(m.Materials, mat)
		}
	}
}

func (m *Mesh) TriangleVertices(tri int) (a, b, c mgl64.Vec3) {
	t := m.Triangles[tri]
	return m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
}

func (m *Mesh) Centroid(tri int) mgl64.Vec3 {
	a, b, c := m.TriangleVertices(tri)
	return a.Add(b).Add(c).Mul(1.0 / 3.0)
}

func (m *Mesh) TriangleArea(tri int) float64 {
	a, b, c := m.TriangleVertices(tri)
	return b.Sub(a).Cross(c.Sub(a)).Len() * 0.5
}

func (m *Mesh) TriangleBounds(tri int) Bounds {
	a, b, c := m.TriangleVertices(tri)
	return EmptyBounds().Extend(a).Extend(b).Extend(c)
}

// Bounds returns the bounds of the vertices referenced by triangles.
func (m *Mesh) Bounds() Bounds {
	b := EmptyBounds()
	if m == nil {
		return b
	}

	for _, tri := range m.Triangles {
		for _, v := range tri {
			b = b.Extend(m.Vertices[v])
		}
	}
	return b
}

// TrianglesBounds returns the bounds of the given triangles.
func (m *Mesh) TrianglesBounds(triIDs []int) Bounds {
	b := EmptyBounds()
	for _, id := range triIDs {
		b = b.Union(m.TriangleBounds(id))
	}
	return b
}

// Extract returns a compact mesh holding only the given triangles, in the
// given order.
func (m *Mesh) Extract(triIDs []int) *Mesh {
	out := &Mesh{}
	remap := make(map[int]int)

	for _, id := range triIDs {
		if id < 0 || id >= len(m.Triangles) {
			continue
		}

		var tri [3]int
		for k, v := range m.Triangles[id] {
			nv, ok := remap[v]
			if !ok {
				nv = len(out.Vertices)
				remap[v] = nv
				out.Vertices = append(out.Vertices, m.Vertices[v])
			}
			tri[k] = nv
		}

		out.Triangles = append(out.Triangles, tri)
		if len(m.Materials) != 0 {
			out.Materials = append(out.Materials, m.Materials[id])
		}
	}
	return out
}

// Without returns a compact mesh without the given triangles.
func (m *Mesh) Without(triIDs []int) *Mesh {
	removed := make(map[int]struct{}, len(triIDs))
	for _, id := range triIDs {
		removed[id] = struct{}{}
	}

	keep := make([]int, 0, len(m.Triangles))
	for i := range m.Triangles {
		if _, ok := removed[i]; !ok {
			keep = append(keep, i)
		}
	}
	return m.Extract(keep)
}

// Compact drops vertices that no triangle references.
func (m *Mesh) Compact() {
	ids := make([]int, len(m.Triangles))
	for i := range ids {
		ids[i] = i
	}
	*m = *m.Extract(ids)
}

// Weld merges vertices closer than tolerance, drops triangles that became
// degenerate and compacts the mesh. It returns the number of removed
// triangles.
func (m *Mesh) Weld(tolerance float64) int {
	if tolerance <= 0 {
		tolerance = Epsilon
	}

	type key [3]int64
	canonical := make(map[key]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))

	for i, v := range m.Vertices {
		k := key{
			int64(math.Round(v[0] / tolerance)),
			int64(math.Round(v[1] / tolerance)),
			int64(math.Round(v[2] / tolerance)),
		}
		if c, ok := canonical[k]; ok {
			remap[i] = c
			continue
		}
		canonical[k] = i
		remap[i] = i
	}

	var removed int
	triangles := m.Triangles[:0]
	var materials []int32
	for i, tri := range m.Triangles {
		t := [3]int{remap[tri[0]], remap[tri[1]], remap[tri[2]]}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			removed++
			continue
		}

		triangles = append(triangles, t)
		if len(m.Materials) != 0 {
			materials = append(materials, m.Materials[i])
		}
	}

	m.Triangles = triangles
	if len(m.Materials) != 0 {
		m.Materials = materials
	}
	m.Compact()
	return removed
}

// ConnectedComponents groups triangles sharing a vertex position. Each
// component lists sorted triangle ids; components are ordered by their
// lowest triangle id.
func (m *Mesh) ConnectedComponents() [][]int {
	if m.IsEmpty() {
		return nil
	}

	parent := make([]int, len(m.Triangles))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	owner := make(map[mgl64.Vec3]int, len(m.Vertices))
	for i, tri := range m.Triangles {
		for _, v := range tri {
			p := m.Vertices[v]
			if o, ok := owner[p]; ok {
				union(o, i)
				continue
			}
			owner[p] = i
		}
	}

	groups := make(map[int][]int)
	for i := range m.Triangles {
		r := find(i)
		groups[r] = append(groups[r], i)
	}

	roots := make([]int, 0, len(groups))
	for r := range groups {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	components := make([][]int, 0, len(roots))
	for _, r := range roots {
		components = append(components, groups[r])
	}
	return components
}
