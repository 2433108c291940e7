// Package boolean provides the mesh operations used to carve impacts into
// chunk meshes.
package boolean

import (
	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeEmptyOperand  = "boolean_empty_operand"
	ErrTypeBooleanFailed = "boolean_failed"

	// WeldTolerance is the distance under which result vertices are merged.
	WeldTolerance = 0.001
)

// Operator is a boolean mesh capability. Implementations must not modify
// their operands.
type Operator interface {
	// Union merges two tool meshes.
	Union(a, b *mesh.Mesh) (*mesh.Mesh, error)

	// Subtract carves tool out of target. Both meshes are in the same space.
	Subtract(target, tool *mesh.Mesh) (*mesh.Mesh, error)

	// Simplify reduces the triangle count of m.
	Simplify(m *mesh.Mesh) (*mesh.Mesh, error)
}

// CullingOperator is an approximate operator working at triangle
// granularity. Union keeps every shell, subtraction drops the target
// triangles whose centroid lies inside a tool shell and simplification welds
// vertices and drops degenerate triangles.
type CullingOperator struct{}

func (CullingOperator) Union(a, b *mesh.Mesh) (*mesh.Mesh, error) {
	if a.IsEmpty() && b.IsEmpty() {
		return nil, errors.New("union of empty meshes").WithType(ErrTypeEmptyOperand)
	}

	out := &mesh.Mesh{}
	out.Append(a)
	out.Append(b)
	return out, nil
}

func (CullingOperator) Subtract(target, tool *mesh.Mesh) (*mesh.Mesh, error) {
	if target.IsEmpty() || tool.IsEmpty() {
		return nil, errors.New("subtract with an empty operand").
			WithType(ErrTypeEmptyOperand).
			WithTag("target_triangles", target.TriangleCount()).
			WithTag("tool_triangles", tool.TriangleCount())
	}

	if err := tool.Validate(); err != nil {
		return nil, errors.New("invalid tool mesh").
			WithType(ErrTypeBooleanFailed).
			Wrap(err)
	}

	toolBounds := tool.Bounds()
	if !toolBounds.Intersects(target.Bounds(), 0) {
		return target.Clone(), nil
	}

	var testers []*mesh.InsideTester
	var shells []mesh.Bounds
	for _, component := range tool.ConnectedComponents() {
		shell := tool.Extract(component)
		testers = append(testers, mesh.NewInsideTester(shell, 0))
		shells = append(shells, shell.Bounds())
	}

	keep := make([]int, 0, target.TriangleCount())
	for i := range target.Triangles {
		c := target.Centroid(i)

		inside := false
		for j, t := range testers {
			if shells[j].Contains(c) && t.Contains(c) {
				inside = true
				break
			}
		}

		if !inside {
			keep = append(keep, i)
		}
	}

	if len(keep) == len(target.Triangles) {
		return target.Clone(), nil
	}
	return target.Extract(keep), nil
}

func (CullingOperator) Simplify(m *mesh.Mesh) (*mesh.Mesh, error) {
	if m.IsEmpty() {
		return nil, errors.New("simplify an empty mesh").WithType(ErrTypeEmptyOperand)
	}

	out := m.Clone()
	out.Weld(WeldTolerance)
	return out, nil
}
