package cellstructure

// Coord is an integer voxel coordinate.
type Coord [3]int

func (c Coord) Add(o Coord) Coord {
	return Coord{c[0] + o[0], c[1] + o[1], c[2] + o[2]}
}

func (c Coord) ManhattanDistance(o Coord) int {
	return abs(c[0]-o[0]) + abs(c[1]-o[1]) + abs(c[2]-o[2])
}

// less orders coordinates by Z, then Y, then X.
func (c Coord) less(o Coord) bool {
	if c[2] != o[2] {
		return c[2] < o[2]
	}
	if c[1] != o[1] {
		return c[1] < o[1]
	}
	return c[0] < o[0]
}

func neighborOffsets(mode NeighborMode) []Coord {
	var offsets []Coord
	for z := -1; z <= 1; z++ {
		for y := -1; y <= 1; y++ {
			for x := -1; x <= 1; x++ {
				d := abs(x) + abs(y) + abs(z)
				if d == 0 {
					continue
				}

				switch mode {
				case Neighbors6:
					if d != 1 {
						continue
					}
				case Neighbors18:
					if d > 2 {
						continue
					}
				}
				offsets = append(offsets, Coord{x, y, z})
			}
		}
	}
	return offsets
}

const fallbackSearchRadius = 2

func fallbackOffsets() []Coord {
	var offsets []Coord
	for z := -fallbackSearchRadius; z <= fallbackSearchRadius; z++ {
		for y := -fallbackSearchRadius; y <= fallbackSearchRadius; y++ {
			for x := -fallbackSearchRadius; x <= fallbackSearchRadius; x++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				offsets = append(offsets, Coord{x, y, z})
			}
		}
	}
	return offsets
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
