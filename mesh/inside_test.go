package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func TestIntersectRayTriangle(t *testing.T) {
	a := mgl64.Vec3{0, 0, 0}
	b := mgl64.Vec3{0, 1, 0}
	c := mgl64.Vec3{0, 0, 1}
	origin := mgl64.Vec3{-1, 0.2, 0.2}

	t.Run("hit inside", func(t *testing.T) {
		hit, dist := IntersectRayTriangle(origin, mgl64.Vec3{1, 0, 0}, a, b, c)
		require.Equal(t, RayHitInside, hit)
		require.InDelta(t, 1.0, dist, 1e-9)
	})

	t.Run("hit behind origin", func(t *testing.T) {
		hit, _ := IntersectRayTriangle(origin, mgl64.Vec3{-1, 0, 0}, a, b, c)
		require.Equal(t, RayMiss, hit)
	})

	t.Run("miss outside", func(t *testing.T) {
		hit, _ := IntersectRayTriangle(mgl64.Vec3{-1, 2, 2}, mgl64.Vec3{1, 0, 0}, a, b, c)
		require.Equal(t, RayMiss, hit)
	})

	t.Run("parallel ray", func(t *testing.T) {
		hit, _ := IntersectRayTriangle(origin, mgl64.Vec3{0, 1, 0}, a, b, c)
		require.Equal(t, RayMiss, hit)
	})

	t.Run("edge is grazing", func(t *testing.T) {
		hit, _ := IntersectRayTriangle(mgl64.Vec3{-1, 0.5, 0.5}, mgl64.Vec3{1, 0, 0}, a, b, c)
		require.Equal(t, RayHitGrazing, hit)
	})

	t.Run("vertex is grazing", func(t *testing.T) {
		hit, _ := IntersectRayTriangle(mgl64.Vec3{-1, 0, 0}, mgl64.Vec3{1, 0, 0}, a, b, c)
		require.Equal(t, RayHitGrazing, hit)
	})
}

func TestInsideTester(t *testing.T) {
	t.Run("box", func(t *testing.T) {
		tester := NewInsideTester(Box(mgl64.Vec3{}, mgl64.Vec3{10, 10, 10}), 1)

		require.True(t, tester.Contains(mgl64.Vec3{5, 5, 5}))
		require.True(t, tester.Contains(mgl64.Vec3{0.5, 0.5, 0.5}))
		require.True(t, tester.Contains(mgl64.Vec3{9.5, 2.5, 7.5}))
		require.False(t, tester.Contains(mgl64.Vec3{-0.5, 5, 5}))
		require.False(t, tester.Contains(mgl64.Vec3{10.5, 5, 5}))
		require.False(t, tester.Contains(mgl64.Vec3{5, 11, 5}))
	})

	t.Run("face diagonal", func(t *testing.T) {
		tester := NewInsideTester(Box(mgl64.Vec3{}, mgl64.Vec3{10, 10, 10}), 1)

		for i := 0; i < 10; i++ {
			c := float64(i) + 0.5
			require.True(t, tester.Contains(mgl64.Vec3{c, c, c}))
		}
	})

	t.Run("sphere", func(t *testing.T) {
		tester := NewInsideTester(Sphere(mgl64.Vec3{1, 2, 3}, 2, 2), 0.1)

		require.True(t, tester.Contains(mgl64.Vec3{1, 2, 3}))
		require.True(t, tester.Contains(mgl64.Vec3{2.5, 2, 3}))
		require.False(t, tester.Contains(mgl64.Vec3{3.5, 2, 3}))
		require.False(t, tester.Contains(mgl64.Vec3{1, 2, 6}))
	})

	t.Run("debug info", func(t *testing.T) {
		tester := NewInsideTester(Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), 0.1)
		require.Equal(t, uint32(12), tester.GetDebugInfo().Count)
	})
}
