package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the tolerance used by the strict geometric predicates.
const Epsilon = 1e-6

func Swap(a *float64, b *float64) {
	*a, *b = *b, *a
}

func EqualWithEpsilon(a float64, b float64, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float64, min float64, max float64, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// MulElem returns the component-wise product of a and b.
func MulElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// MinVec returns the component-wise minimum of a and b.
func MinVec(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])}
}

// MaxVec returns the component-wise maximum of a and b.
func MaxVec(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])}
}
