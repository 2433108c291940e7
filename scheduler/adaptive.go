package scheduler

import (
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	unionGrowThreshold  = 0.6
	applyCostSmoothing  = 0.1
	applyCostWorsening  = 0.1
	simplifyGrowthRatio = 1.2
	simplifyGrowthCount = 1000
	minSlowSubtracts    = 2
	subtractCostSamples = 10
	initialSubtractCost = 2 * time.Millisecond
)

// shrink returns 70 % of n, rounded down.
func shrink(n int) int {
	return n * 7 / 10
}

// chunkPacing is the adaptive state of a chunk, shared with workers.
type chunkPacing struct {
	unionLimit int

	slowSubtracts     time.Duration
	slowSubtractCount int

	interval             int
	lastSimplifyTriCount int
}

// nextUnionLimit shrinks the union limit when a subtract is slower than the
// budget and grows it by one when it is well under.
func nextUnionLimit(current int, cost, budget time.Duration, maxLimit int) int {
	switch {
	case cost > budget:
		return max(1, shrink(current))

	case float64(cost) < float64(budget)*unionGrowThreshold:
		return min(current+1, maxLimit)

	default:
		return current
	}
}

// simplifyCadence adapts the number of unioned requests between two
// simplifications to the cost of applying results.
type simplifyCadence struct {
	initial     int
	minInterval int
	maxInterval int
	applyCost   time.Duration
}

func newSimplifyCadence(initial, minInterval int) simplifyCadence {
	return simplifyCadence{
		initial:     initial,
		minInterval: minInterval,
		maxInterval: initial,
	}
}

func (c *simplifyCadence) update(cost time.Duration) {
	if c.applyCost <= 0 {
		c.applyCost = cost
		return
	}

	old := float64(c.applyCost)
	avg := old + (float64(cost)-old)*applyCostSmoothing
	c.applyCost = time.Duration(avg)
	rate := (old - avg) / old

	switch {
	case -rate > applyCostWorsening:
		c.maxInterval = max(c.minInterval, shrink(c.maxInterval))

	case rate >= 0:
		c.maxInterval = min(2*c.initial, c.maxInterval+1)
	}
}

// shouldSimplify reports whether a chunk mesh of triangleCount triangles is
// due for a simplification.
func shouldSimplify(p chunkPacing, triangleCount int, slowLimit time.Duration, maxInterval int) bool {
	last := p.lastSimplifyTriCount
	if (float64(triangleCount) > float64(last)*simplifyGrowthRatio && last > simplifyGrowthCount) ||
		triangleCount-last > simplifyGrowthCount {
		return true
	}

	if p.slowSubtractCount >= minSlowSubtracts &&
		p.slowSubtracts/time.Duration(p.slowSubtractCount) >= slowLimit {
		return true
	}

	return p.interval >= maxInterval
}

// costAverage is a running average that keeps its weight bounded.
type costAverage struct {
	avg   time.Duration
	sum   time.Duration
	count int
}

func (c *costAverage) add(d time.Duration) {
	c.sum += d
	c.count++

	if c.count >= subtractCostSamples {
		c.avg = c.sum / time.Duration(c.count)
		c.sum = c.avg
		c.count = 1
	}
}

func (s *Scheduler) accumulateSubtractDuration(chunk int, d time.Duration) {
	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	p := &s.pacing[chunk]
	if d >= s.settings.SubtractDurationLimit {
		p.slowSubtracts += d
		p.slowSubtractCount++
	} else if p.slowSubtractCount > 0 {
		p.slowSubtracts = 0
		p.slowSubtractCount = 0
	}
}

func (s *Scheduler) resetSubtractDuration(chunk int) {
	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	s.pacing[chunk].slowSubtracts = 0
	s.pacing[chunk].slowSubtractCount = 0
}

func (s *Scheduler) updateUnionLimit(chunk int, cost time.Duration) {
	if s.settings.DisableAdaptiveUnion {
		return
	}

	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	p := &s.pacing[chunk]
	p.unionLimit = nextUnionLimit(p.unionLimit, cost, s.settings.FrameBudget, s.settings.MaxUnionLimit)
	instrumentUnionLimit(chunk, p.unionLimit)
}

func (s *Scheduler) updateSubtractCost(d time.Duration) {
	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	s.subtractCost.add(d)
}

func (s *Scheduler) updateSimplifyCadence(applyCost time.Duration) {
	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	s.cadence.update(applyCost)
}

func (s *Scheduler) unionLimit(chunk int) int {
	s.pacingMutex.Lock()
	defer s.pacingMutex.Unlock()

	return s.pacing[chunk].unionLimit
}

// trySimplify counts unionCount more holes in the chunk and simplifies m when
// it is due. A failed simplification keeps m.
func (s *Scheduler) trySimplify(m *mesh.Mesh, chunk, unionCount int) *mesh.Mesh {
	if s.settings.DisableSimplify {
		return m
	}

	s.pacingMutex.Lock()
	p := &s.pacing[chunk]
	p.interval += unionCount
	due := shouldSimplify(*p, m.TriangleCount(), s.settings.SubtractDurationLimit, s.cadence.maxInterval)
	if due {
		p.interval = 0
		p.slowSubtracts = 0
		p.slowSubtractCount = 0
	}
	s.pacingMutex.Unlock()

	if !due {
		return m
	}

	before := m.TriangleCount()
	simplified, err := s.op.Simplify(m)
	if err != nil {
		logs.Warn(errors.New("simplifying chunk mesh failed").
			WithTag("chunk", chunk).
			Wrap(err))
		simplified = m
	}

	s.pacingMutex.Lock()
	s.pacing[chunk].lastSimplifyTriCount = simplified.TriangleCount()
	s.pacingMutex.Unlock()

	logs.WithTag("chunk", chunk).
		WithTag("triangles_before", before).
		WithTag("triangles_after", simplified.TriangleCount()).
		Debug("chunk mesh simplified")
	instrumentSimplify()
	return simplified
}
