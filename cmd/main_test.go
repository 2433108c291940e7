package main

import (
	"testing"

	"github.com/aukilabs/brotna/config"
	"github.com/aukilabs/brotna/featureflag"
	"github.com/aukilabs/brotna/models"
	"github.com/stretchr/testify/require"
)

func TestApplyFeatureFlags(t *testing.T) {
	s := models.DefaultDestructibleSettings()
	applyFeatureFlags(featureflag.New([]string{
		string(featureflag.FlagDisableSimplify),
		string(featureflag.FlagDisableDebris),
	}), &s)

	require.True(t, s.Scheduler.DisableSimplify)
	require.True(t, s.DisableDebris)
	require.False(t, s.Scheduler.DisableAdaptiveUnion)
	require.False(t, s.DisableValidation)
	require.False(t, s.DisableChunkGraph)
}

func TestImpactsEnabled(t *testing.T) {
	conf := config.Default().Impacts

	t.Run("impacts are off without a rate", func(t *testing.T) {
		require.False(t, impactsEnabled(featureflag.New(nil), conf))
	})

	conf.Rate = 2

	t.Run("impacts are on with a rate", func(t *testing.T) {
		require.True(t, impactsEnabled(featureflag.New(nil), conf))
	})

	t.Run("impacts flag disables impacts", func(t *testing.T) {
		flags := featureflag.New([]string{string(featureflag.FlagDisableImpacts)})
		require.False(t, impactsEnabled(flags, conf))
	})
}

func TestImpactGenerator(t *testing.T) {
	tuning := config.Default()
	tuning.Impacts.Seed = 42

	t.Run("impacts hit the front face of the wall", func(t *testing.T) {
		g := newImpactGenerator(nil, tuning.Wall, tuning.Impacts)

		for i := 0; i < 100; i++ {
			impact := g.next()
			require.GreaterOrEqual(t, impact.Location.X(), tuning.Wall.Min.X())
			require.LessOrEqual(t, impact.Location.X(), tuning.Wall.Max.X())
			require.Equal(t, tuning.Wall.Min.Y(), impact.Location.Y())
			require.GreaterOrEqual(t, impact.Location.Z(), tuning.Wall.Min.Z())
			require.LessOrEqual(t, impact.Location.Z(), tuning.Wall.Max.Z())
			require.GreaterOrEqual(t, impact.Radius, tuning.Impacts.MinRadius)
			require.LessOrEqual(t, impact.Radius, tuning.Impacts.MaxRadius)
		}
	})

	t.Run("impacts are deterministic for a seed", func(t *testing.T) {
		a := newImpactGenerator(nil, tuning.Wall, tuning.Impacts)
		b := newImpactGenerator(nil, tuning.Wall, tuning.Impacts)

		for i := 0; i < 10; i++ {
			require.Equal(t, a.next(), b.next())
		}
	})
}
