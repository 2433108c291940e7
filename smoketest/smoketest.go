// Package smoketest runs a self-contained destruction scenario to check that
// the service carves, destroys and cuts debris end to end.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/brotna/models"
	"github.com/aukilabs/brotna/scheduler"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeTimeout = "smoke_test_timeout"

	defaultImpacts = 4
	defaultTimeout = 10 * time.Second
)

type Options struct {
	// The wall destroyed by the scenario.
	Min      mgl64.Vec3
	Max      mgl64.Vec3
	Settings models.DestructibleSettings

	// Runs boolean operations. A pool owned by the scenario is used when nil.
	Workers scheduler.WorkRequester

	Impacts int
	Radius  float64
	Timeout time.Duration

	// How often the scenario ticks. Defaults to 1ms.
	TickInterval time.Duration

	SendResult func(context.Context, Results) error
}

// Request overrides the scenario options of a smoke test run over HTTP.
type Request struct {
	Impacts   int     `json:"impacts"`
	Radius    float64 `json:"radius"`
	TimeoutMS int     `json:"timeout_ms"`
}

type Results struct {
	Impacts         int     `json:"impacts"`
	Carved          int     `json:"carved"`
	TrianglesBefore int     `json:"triangles_before"`
	TrianglesAfter  int     `json:"triangles_after"`
	DestroyedCells  int     `json:"destroyed_cells"`
	Debris          int     `json:"debris"`
	DurationMS      float64 `json:"duration_ms"`
	Error           string  `json:"error,omitempty"`
}

// Run fires impacts along the middle of a wall and ticks it until every
// impact is handled.
func Run(ctx context.Context, opts Options) (Results, error) {
	start := time.Now()
	opts = withDefaults(opts)

	var debris models.DebrisStore
	dOpts := []models.DestructibleOption{models.WithDebrisSpawner(&debris)}
	if opts.Workers != nil {
		dOpts = append(dOpts, models.WithWorkRequester(opts.Workers))
	}

	d, err := models.NewDestructible("smoke-test", mesh.Box(opts.Min, opts.Max), opts.Settings, dOpts...)
	if err != nil {
		return Results{}, errors.New("creating smoke test wall failed").Wrap(err)
	}
	defer d.Close()

	res := Results{
		Impacts:         opts.Impacts,
		TrianglesBefore: d.TriangleCount(),
	}

	bounds := mesh.NewBounds(opts.Min, opts.Max)
	center := bounds.Center()
	size := bounds.Size()
	for i := 0; i < opts.Impacts; i++ {
		location := center
		location[0] = bounds.Min.X() + (float64(i)+0.5)/float64(opts.Impacts)*size.X()

		if _, err := d.Impact(models.Impact{
			Location:    location,
			Radius:      opts.Radius,
			Penetrating: i%2 == 0,
		}); err != nil {
			return res, errors.New("smoke test impact failed").
				WithTag("impact", i).
				Wrap(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.TickInterval)
	defer ticker.Stop()

	for !d.Idle() {
		select {
		case <-ctx.Done():
			return res, errors.New("smoke test timed out").
				WithType(ErrTypeTimeout).
				WithTag("timeout", opts.Timeout).
				Wrap(ctx.Err())

		case <-ticker.C:
			d.Tick()
		}
	}
	d.Tick()

	for chunk := 0; chunk < d.ChunkCount(); chunk++ {
		if d.ChunkRevision(chunk) != 0 {
			res.Carved++
		}
	}
	res.TrianglesAfter = d.TriangleCount()
	res.DestroyedCells = d.Integrity().DestroyedCount()
	res.Debris = debris.Count()
	res.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
	return res, nil
}

func withDefaults(opts Options) Options {
	if opts.Min == opts.Max {
		opts.Min = mgl64.Vec3{0, 0, 0}
		opts.Max = mgl64.Vec3{4, 0.5, 2}
	}
	if opts.Settings.Slices.Total() == 0 {
		opts.Settings = models.DefaultDestructibleSettings()
		opts.Settings.Slices = mesh.SliceCount{2, 1, 1}
		opts.Settings.CellStructure.BaseResolution = 4
		opts.Settings.CellStructure.TargetSeedCount = 16
	}
	if opts.Impacts <= 0 {
		opts.Impacts = defaultImpacts
	}
	if opts.Radius <= 0 {
		size := opts.Max.Sub(opts.Min)
		opts.Radius = size.Z() / 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Millisecond
	}
	return opts
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a smoke test and sends its results with
// opts.SendResult once done.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logs.Warn(errors.New("decoding smoke test request failed").Wrap(err))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		runOpts := opts
		if req.Impacts > 0 {
			runOpts.Impacts = req.Impacts
		}
		if req.Radius > 0 {
			runOpts.Radius = req.Radius
		}
		if req.TimeoutMS > 0 {
			runOpts.Timeout = time.Duration(req.TimeoutMS) * time.Millisecond
		}

		go func() {
			defer func() {
				// Signals tests that the run is over.
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, runOpts)
			if err != nil {
				res.Error = err.Error()
				logs.Warn(err)
			}

			logs.WithTag("impacts", res.Impacts).
				WithTag("carved", res.Carved).
				WithTag("destroyed_cells", res.DestroyedCells).
				WithTag("debris", res.Debris).
				WithTag("duration_ms", res.DurationMS).
				Info("smoke test done")

			if opts.SendResult == nil {
				return
			}
			if err := opts.SendResult(ctx, res); err != nil {
				logs.Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}
