package cellstructure

import (
	"math"
	"sort"
)

const coarseResolutionGuard = 1024

func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// hashCoord deterministically mixes a voxel coordinate with the global seed.
func hashCoord(c Coord, seed uint64) uint64 {
	h := seed
	h ^= uint64(c[0]) * 0x9E3779B185EBCA87
	h ^= uint64(c[1]) * 0xC2B2AE3D27D4EB4F
	h ^= uint64(c[2]) * 0x165667B19E3779F9
	return splitMix64(h)
}

type seedCandidate struct {
	coord Coord
	hash  uint64
}

func (s seedCandidate) less(o seedCandidate) bool {
	if s.hash != o.hash {
		return s.hash < o.hash
	}
	return s.coord.less(o.coord)
}

func sortCandidates(c []seedCandidate) {
	sort.Slice(c, func(i, j int) bool {
		return c[i].less(c[j])
	})
}

// coarseResolution returns a coarse grid whose cell count approaches target,
// each axis staying in [1, resolution].
func coarseResolution(resolution [3]int, target int) [3]int {
	total := resolution[0] * resolution[1] * resolution[2]
	if total <= 0 || target <= 0 {
		return [3]int{1, 1, 1}
	}

	t := math.Cbrt(float64(target) / float64(total))

	var coarse [3]int
	for i := range coarse {
		coarse[i] = clampInt(int(roundHalfToZero(float64(resolution[i])*t)), 1, resolution[i])
	}

	// Largest axes grow first, smallest axes shrink first. Ties go to the
	// lower axis.
	byResDesc := axesSortedByResolution(resolution, true)
	byResAsc := axesSortedByResolution(resolution, false)

	for guard := 0; product(coarse) < target && guard < coarseResolutionGuard; guard++ {
		grown := false
		for _, axis := range byResDesc {
			if coarse[axis] < resolution[axis] {
				coarse[axis]++
				grown = true
				break
			}
		}
		if !grown {
			break
		}
	}

	for guard := 0; product(coarse) > target && guard < coarseResolutionGuard; guard++ {
		shrunk := false
		for _, axis := range byResAsc {
			if coarse[axis] > 1 {
				coarse[axis]--
				shrunk = true
				break
			}
		}
		if !shrunk {
			break
		}
	}
	return coarse
}

func axesSortedByResolution(resolution [3]int, descending bool) []int {
	axes := []int{0, 1, 2}
	sort.SliceStable(axes, func(i, j int) bool {
		if descending {
			return resolution[axes[i]] > resolution[axes[j]]
		}
		return resolution[axes[i]] < resolution[axes[j]]
	})
	return axes
}

// selectSeeds picks at most target inside voxels spread over a coarse grid.
// The result is ordered by (hash, coordinate); the position of a seed is its
// cell id.
func selectSeeds(resolution [3]int, inside []bool, insideCount, target int, seed uint64) []Coord {
	targetSeeds := target
	if insideCount < targetSeeds {
		targetSeeds = insideCount
	}
	if targetSeeds <= 0 {
		return nil
	}

	coarse := coarseResolution(resolution, targetSeeds)
	best := make(map[int]seedCandidate)
	var coarseOrder []int

	for i, in := range inside {
		if !in {
			continue
		}

		c := voxelCoord(resolution, i)
		candidate := seedCandidate{coord: c, hash: hashCoord(c, seed)}

		cx := c[0] * coarse[0] / resolution[0]
		cy := c[1] * coarse[1] / resolution[1]
		cz := c[2] * coarse[2] / resolution[2]
		ci := cz*coarse[1]*coarse[0] + cy*coarse[0] + cx

		current, ok := best[ci]
		if !ok {
			coarseOrder = append(coarseOrder, ci)
			best[ci] = candidate
			continue
		}
		if candidate.less(current) {
			best[ci] = candidate
		}
	}

	sort.Ints(coarseOrder)
	seeds := make([]seedCandidate, 0, len(coarseOrder))
	chosen := make(map[Coord]struct{}, len(coarseOrder))
	for _, ci := range coarseOrder {
		seeds = append(seeds, best[ci])
		chosen[best[ci].coord] = struct{}{}
	}

	switch {
	case len(seeds) > targetSeeds:
		sortCandidates(seeds)
		seeds = seeds[:targetSeeds]

	case len(seeds) < targetSeeds:
		extras := make([]seedCandidate, 0, insideCount-len(seeds))
		for i, in := range inside {
			if !in {
				continue
			}

			c := voxelCoord(resolution, i)
			if _, ok := chosen[c]; ok {
				continue
			}
			extras = append(extras, seedCandidate{coord: c, hash: hashCoord(c, seed)})
		}

		sortCandidates(extras)
		missing := targetSeeds - len(seeds)
		if missing > len(extras) {
			missing = len(extras)
		}
		seeds = append(seeds, extras[:missing]...)
	}

	sortCandidates(seeds)

	coords := make([]Coord, len(seeds))
	for i, s := range seeds {
		coords[i] = s.coord
	}
	return coords
}

func roundHalfToZero(v float64) float64 {
	if v < 0 {
		return -math.Ceil(-v - 0.5)
	}
	return math.Ceil(v - 0.5)
}

func product(v [3]int) int {
	return v[0] * v[1] * v[2]
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
