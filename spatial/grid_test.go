package spatial

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func TestGridCreation(t *testing.T) {
	emptyGrid := NewGrid(mgl64.Vec2{}, 0, 0, 0)
	require.Equal(t, float64(1), emptyGrid.Resolution)
	require.Zero(t, emptyGrid.Count)
	require.Equal(t, mgl64.Vec2{0, 0}, emptyGrid.Min)
	require.Equal(t, mgl64.Vec2{1, 1}, emptyGrid.Max)
	require.Len(t, emptyGrid.Cells, 1)
	require.Len(t, emptyGrid.Cells[0], 1)
}

func TestGridInsert(t *testing.T) {
	t.Run("insert inside grid", func(t *testing.T) {
		grid := NewGrid(mgl64.Vec2{}, 4, 4, 1)
		grid.Insert(7, mgl64.Vec2{0.5, 0.5}, mgl64.Vec2{1.5, 0.7})

		require.Equal(t, uint32(1), grid.Count)
		require.Equal(t, []int{7}, grid.Query(mgl64.Vec2{0.2, 0.2}))
		require.Equal(t, []int{7}, grid.Query(mgl64.Vec2{1.2, 0.2}))
		require.Empty(t, grid.Query(mgl64.Vec2{2.2, 0.2}))
		require.Empty(t, grid.Query(mgl64.Vec2{0.2, 1.2}))
	})

	t.Run("insert grows grid", func(t *testing.T) {
		grid := NewGrid(mgl64.Vec2{}, 1, 1, 1)
		grid.Insert(1, mgl64.Vec2{-1, -1}, mgl64.Vec2{1, 1})

		require.Equal(t, mgl64.Vec2{-1, -1}, grid.Min)
		require.Equal(t, mgl64.Vec2{2, 2}, grid.Max)
		require.Len(t, grid.Cells, 3)
		require.Len(t, grid.Cells[0], 3)
		require.Equal(t, []int{1}, grid.Query(mgl64.Vec2{-0.5, -0.5}))
		require.Equal(t, []int{1}, grid.Query(mgl64.Vec2{1.5, 1.5}))
	})

	t.Run("query outside grid", func(t *testing.T) {
		grid := NewGrid(mgl64.Vec2{}, 2, 2, 1)
		grid.Insert(1, mgl64.Vec2{0, 0}, mgl64.Vec2{1.9, 1.9})
		require.Nil(t, grid.Query(mgl64.Vec2{-0.1, 0}))
		require.Nil(t, grid.Query(mgl64.Vec2{0, 2}))
	})
}

func TestGridRegion(t *testing.T) {
	grid := NewGridForBounds(mgl64.Vec2{0, 0}, mgl64.Vec2{10, 10}, 10)
	grid.Insert(3, mgl64.Vec2{1, 1}, mgl64.Vec2{1.5, 1.5})
	grid.Insert(1, mgl64.Vec2{5, 5}, mgl64.Vec2{6, 6})
	grid.Insert(2, mgl64.Vec2{1.2, 1.2}, mgl64.Vec2{5.5, 5.5})

	require.Equal(t, []int{2, 3}, grid.Region(mgl64.Vec2{0, 0}, mgl64.Vec2{2, 2}))
	require.Equal(t, []int{1, 2, 3}, grid.Region(mgl64.Vec2{-5, -5}, mgl64.Vec2{20, 20}))
	require.Nil(t, grid.Region(mgl64.Vec2{30, 30}, mgl64.Vec2{40, 40}))
}

func TestGridDebugInfo(t *testing.T) {
	grid := NewGrid(mgl64.Vec2{}, 2, 3, 1)
	grid.Insert(1, mgl64.Vec2{0, 0}, mgl64.Vec2{1.5, 0.5})

	info := grid.GetDebugInfo()
	require.Equal(t, uint32(3), info.RowCount)
	require.Equal(t, uint32(2), info.ColCount)
	require.Equal(t, uint32(1), info.Count)
	require.Equal(t, []uint32{1, 1, 0, 0, 0, 0}, info.Occupancy)
}
