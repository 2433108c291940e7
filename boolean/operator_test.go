package boolean

import (
	"math/rand/v2"
	"testing"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func voxelBlock() *mesh.Mesh {
	m := &mesh.Mesh{}
	for _, b := range mesh.BoxGrid(mgl64.Vec3{}, mgl64.Vec3{10, 10, 10}, mesh.SliceCount{5, 5, 5}) {
		m.Append(b)
	}
	return m
}

func TestCullingOperator(t *testing.T) {
	op := CullingOperator{}

	t.Run("union", func(t *testing.T) {
		a := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
		b := mesh.Box(mgl64.Vec3{2, 0, 0}, mgl64.Vec3{3, 1, 1})

		u, err := op.Union(a, b)
		require.NoError(t, err)
		require.Equal(t, 24, u.TriangleCount())
		require.Len(t, u.ConnectedComponents(), 2)

		u, err = op.Union(nil, b)
		require.NoError(t, err)
		require.Equal(t, 12, u.TriangleCount())
	})

	t.Run("union of empty meshes", func(t *testing.T) {
		_, err := op.Union(nil, &mesh.Mesh{})
		require.Error(t, err)
		require.Equal(t, ErrTypeEmptyOperand, errors.Type(err))
	})

	t.Run("subtract", func(t *testing.T) {
		target := voxelBlock()
		tool := mesh.Box(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{3, 3, 3})
		toolBounds := tool.Bounds()

		out, err := op.Subtract(target, tool)
		require.NoError(t, err)
		require.Less(t, out.TriangleCount(), target.TriangleCount())
		require.Equal(t, 125*12, target.TriangleCount())

		for i := range out.Triangles {
			c := out.Centroid(i)
			inside := c.X() > toolBounds.Min.X() && c.X() < toolBounds.Max.X() &&
				c.Y() > toolBounds.Min.Y() && c.Y() < toolBounds.Max.Y() &&
				c.Z() > toolBounds.Min.Z() && c.Z() < toolBounds.Max.Z()
			require.False(t, inside, "triangle %d centroid %v", i, c)
		}
	})

	t.Run("subtract overlapping shells", func(t *testing.T) {
		target := voxelBlock()
		tool := mesh.Box(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{3, 3, 3})
		tool.Append(mesh.Box(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{3.5, 3.5, 3.5}))

		single, err := op.Subtract(target, mesh.Box(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{3, 3, 3}))
		require.NoError(t, err)

		out, err := op.Subtract(target, tool)
		require.NoError(t, err)
		require.Less(t, out.TriangleCount(), single.TriangleCount())
	})

	t.Run("subtract a disjoint tool", func(t *testing.T) {
		target := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})

		out, err := op.Subtract(target, mesh.Box(mgl64.Vec3{5, 5, 5}, mgl64.Vec3{6, 6, 6}))
		require.NoError(t, err)
		require.Equal(t, target, out)
		require.NotSame(t, target, out)
	})

	t.Run("subtract with an empty operand", func(t *testing.T) {
		_, err := op.Subtract(&mesh.Mesh{}, mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}))
		require.Equal(t, ErrTypeEmptyOperand, errors.Type(err))

		_, err = op.Subtract(mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), nil)
		require.Equal(t, ErrTypeEmptyOperand, errors.Type(err))
	})

	t.Run("subtract an invalid tool", func(t *testing.T) {
		tool := &mesh.Mesh{
			Vertices:  []mgl64.Vec3{{0, 0, 0}},
			Triangles: [][3]int{{0, 1, 2}},
		}

		_, err := op.Subtract(mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), tool)
		require.Equal(t, ErrTypeBooleanFailed, errors.Type(err))
	})

	t.Run("simplify", func(t *testing.T) {
		m := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})
		m.Append(mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}))
		require.Equal(t, 16, m.VertexCount())

		out, err := op.Simplify(m)
		require.NoError(t, err)
		require.Equal(t, 8, out.VertexCount())
		require.Equal(t, 16, m.VertexCount())

		_, err = op.Simplify(nil)
		require.Equal(t, ErrTypeEmptyOperand, errors.Type(err))
	})
}

type flakyOperator struct {
	CullingOperator

	failures int
	tools    []*mesh.Mesh
}

func (o *flakyOperator) Subtract(target, tool *mesh.Mesh) (*mesh.Mesh, error) {
	o.tools = append(o.tools, tool)
	if len(o.tools) <= o.failures {
		return nil, errors.New("subtract failed").WithType(ErrTypeBooleanFailed)
	}
	return o.CullingOperator.Subtract(target, tool)
}

func TestRetryPolicy(t *testing.T) {
	target := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{10, 10, 10})
	tool := mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1})

	policy := DefaultRetryPolicy()
	policy.Rand = rand.New(rand.NewPCG(1, 2))

	t.Run("first attempt succeeds", func(t *testing.T) {
		op := &flakyOperator{}

		out, err := policy.Subtract(op, target, tool, mesh.IdentityTransform())
		require.NoError(t, err)
		require.NotNil(t, out)
		require.Len(t, op.tools, 1)
		require.Equal(t, tool.Vertices, op.tools[0].Vertices)
	})

	t.Run("retry with jitter", func(t *testing.T) {
		op := &flakyOperator{failures: 1}

		out, err := policy.Subtract(op, target, tool, mesh.IdentityTransform())
		require.NoError(t, err)
		require.NotNil(t, out)
		require.Len(t, op.tools, 2)
		require.NotEqual(t, op.tools[0].Vertices, op.tools[1].Vertices)

		for i, v := range op.tools[1].Vertices {
			require.InDelta(t, tool.Vertices[i].X(), v.X(), 0.02)
			require.InDelta(t, tool.Vertices[i].Y(), v.Y(), 0.02)
			require.InDelta(t, tool.Vertices[i].Z(), v.Z(), 0.016)
		}
	})

	t.Run("give up after every attempt", func(t *testing.T) {
		op := &flakyOperator{failures: 5}

		_, err := policy.Subtract(op, target, tool, mesh.IdentityTransform())
		require.Equal(t, ErrTypeBooleanFailed, errors.Type(err))
		require.Len(t, op.tools, 2)
	})

	t.Run("do not retry empty operands", func(t *testing.T) {
		op := &flakyOperator{}

		_, err := policy.Subtract(op, &mesh.Mesh{}, tool, mesh.IdentityTransform())
		require.Equal(t, ErrTypeEmptyOperand, errors.Type(err))
		require.Len(t, op.tools, 1)
	})
}
