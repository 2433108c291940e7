package boolean

import (
	"math/rand/v2"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

// RetryPolicy retries failed subtractions with a slightly moved tool.
type RetryPolicy struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// The maximum tool offset along each axis.
	JitterTranslation float64 `json:"jitter_translation" yaml:"jitter_translation"`

	// The maximum tool rotation about Z, in degrees.
	JitterAngle float64 `json:"jitter_angle" yaml:"jitter_angle"`

	// The random source. The global source is used when nil. A rand.Rand must
	// not be shared between goroutines.
	Rand *rand.Rand `json:"-" yaml:"-"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       2,
		JitterTranslation: 0.015,
		JitterAngle:       0.1,
	}
}

// Subtract places tool with toolTransform and carves it out of target. A
// failed attempt is retried with a jittered transform until MaxAttempts is
// reached. Empty operands are not retried. The result is welded.
func (p RetryPolicy) Subtract(op Operator, target, tool *mesh.Mesh, toolTransform mesh.Transform) (*mesh.Mesh, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		t := toolTransform
		if attempt > 0 {
			t = p.jitter(t)
			instrumentRetry()
			logs.WithTag("attempt", attempt).Debug("retrying subtract with jitter")
		}

		var out *mesh.Mesh
		out, err = op.Subtract(target, tool.Transformed(t))
		if err == nil {
			out.Weld(WeldTolerance)
			return out, nil
		}

		if errors.Type(err) == ErrTypeEmptyOperand {
			break
		}
	}

	instrumentFailure(err)
	return nil, err
}

func (p RetryPolicy) jitter(t mesh.Transform) mesh.Transform {
	offset := mgl64.Vec3{
		p.uniform(p.JitterTranslation),
		p.uniform(p.JitterTranslation),
		p.uniform(p.JitterTranslation),
	}
	angle := mgl64.DegToRad(p.uniform(p.JitterAngle))

	t.Translation = t.Translation.Add(offset)
	t.Rotation = t.Rotation.Mul(mgl64.QuatRotate(angle, mgl64.Vec3{0, 0, 1})).Normalize()
	return t
}

// uniform returns a random value in [-max, max].
func (p RetryPolicy) uniform(max float64) float64 {
	f := rand.Float64
	if p.Rand != nil {
		f = p.Rand.Float64
	}
	return (f()*2 - 1) * max
}
