package mesh

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Transform places a mesh in world space: scale, then rotation, then
// translation.
type Transform struct {
	Translation mgl64.Vec3 `json:"translation"`
	Rotation    mgl64.Quat `json:"rotation"`
	Scale       mgl64.Vec3 `json:"scale"`
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// TranslationTransform returns an unrotated, unscaled transform moving
// points by t.
func TranslationTransform(t mgl64.Vec3) Transform {
	tr := IdentityTransform()
	tr.Translation = t
	return tr
}

func (t Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.Rotation.Rotate(MulElem(p, t.Scale)).Add(t.Translation)
}

// Then returns the transform applying t first and next after.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		Translation: next.Apply(t.Translation),
		Rotation:    next.Rotation.Mul(t.Rotation).Normalize(),
		Scale:       MulElem(t.Scale, next.Scale),
	}
}

// Transformed returns a copy of m with every vertex transformed by t.
func (m *Mesh) Transformed(t Transform) *Mesh {
	out := m.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = t.Apply(v)
	}
	return out
}
