package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/brotna/mesh"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func TestOwnerWithLogs(t *testing.T) {
	t.Run("results are counted", func(t *testing.T) {
		owner := newFakeOwner(1)
		o := OwnerWithLogs(owner, "wall", time.Hour)
		defer o.Close()

		o.ApplyBooleanResult(mesh.Box(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}), 0, false)
		o.NotifyBooleanCompleted(1)
		o.NotifyBooleanCompleted(2)
		o.NotifyBooleanSkipped(3)

		require.Equal(t, 1, o.counter["applied"])
		require.Equal(t, 2, o.counter["completed"])
		require.Equal(t, 1, o.counter["skipped"])
		require.Equal(t, []uint32{1, 2}, owner.completed)
		require.Equal(t, []uint32{3}, owner.skipped)
	})

	t.Run("summary is logged", func(t *testing.T) {
		o := OwnerWithLogs(newFakeOwner(1), "wall", time.Hour)
		defer o.Close()

		o.incCounter("completed")
		o.incCounter("completed")

		var b strings.Builder
		logs.SetInlineEncoder()
		logs.SetLogger(func(e logs.Entry) {
			fmt.Fprint(&b, e)
		})

		o.logSummary()
		require.Empty(t, o.counter)
		require.Contains(t, b.String(), `"completed":2`)
		require.Contains(t, b.String(), `"destructible":"wall"`)
	})

	t.Run("summary worker logs periodically", func(t *testing.T) {
		var wg sync.WaitGroup
		var once sync.Once

		var b strings.Builder
		logs.SetInlineEncoder()
		logs.SetLogger(func(e logs.Entry) {
			fmt.Fprint(&b, e)
			once.Do(wg.Done)
		})

		wg.Add(1)
		o := OwnerWithLogs(newFakeOwner(1), "wall", time.Millisecond)
		defer o.Close()

		o.incCounter("skipped")
		wg.Wait()
	})
}

func TestOwnerWithMetrics(t *testing.T) {
	owner := newFakeOwner(1)
	o := OwnerWithMetrics(owner, "wall")

	o.ApplyBooleanResult(&mesh.Mesh{}, 0, false)
	o.NotifyBooleanCompleted(1)
	o.NotifyBooleanSkipped(2)

	require.Equal(t, []int{0}, owner.applied)
	require.Equal(t, []uint32{1}, owner.completed)
	require.Equal(t, []uint32{2}, owner.skipped)
	require.Equal(t, 1, o.ChunkCount())
}
