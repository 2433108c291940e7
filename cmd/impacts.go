package main

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/aukilabs/brotna/config"
	"github.com/aukilabs/brotna/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

type impacter interface {
	Impact(i models.Impact) (uint32, error)
}

// impactGenerator fires impacts at random points of the front face of a
// wall.
type impactGenerator struct {
	target impacter
	wall   config.Wall
	conf   config.Impacts
	rand   *rand.Rand
}

func newImpactGenerator(target impacter, wall config.Wall, conf config.Impacts) *impactGenerator {
	return &impactGenerator{
		target: target,
		wall:   wall,
		conf:   conf,
		rand:   rand.New(rand.NewPCG(conf.Seed, conf.Seed^0x9E3779B97F4A7C15)),
	}
}

func (g *impactGenerator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / g.conf.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := g.target.Impact(g.next()); err != nil {
				logs.Warn(errors.New("generated impact failed").Wrap(err))
			}
		}
	}
}

func (g *impactGenerator) next() models.Impact {
	size := g.wall.Max.Sub(g.wall.Min)

	return models.Impact{
		Location: mgl64.Vec3{
			g.wall.Min.X() + g.rand.Float64()*size.X(),
			g.wall.Min.Y(),
			g.wall.Min.Z() + g.rand.Float64()*size.Z(),
		},
		Radius:      g.conf.MinRadius + g.rand.Float64()*(g.conf.MaxRadius-g.conf.MinRadius),
		Penetrating: g.rand.Float64() < g.conf.PenetratingRatio,
	}
}
