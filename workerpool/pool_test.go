package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("active workers are capped", func(t *testing.T) {
		p := New(2)
		release := make(chan struct{})
		var ran atomic.Int32

		for i := 0; i < 5; i++ {
			p.RequestWork(func() {
				<-release
				ran.Add(1)
			})
		}

		require.Equal(t, 2, p.Active())
		require.Equal(t, 3, p.Pending())

		close(release)
		require.Eventually(t, func() bool {
			return ran.Load() == 5
		}, time.Second, time.Millisecond)
		require.Eventually(t, func() bool {
			return p.Active() == 0
		}, time.Second, time.Millisecond)
		require.Zero(t, p.Pending())
		require.NoError(t, p.Close(context.Background()))
	})

	t.Run("pending work runs in order", func(t *testing.T) {
		p := New(1)
		release := make(chan struct{})

		var mutex sync.Mutex
		var order []int

		p.RequestWork(func() {
			<-release
		})
		for i := 0; i < 4; i++ {
			p.RequestWork(func() {
				mutex.Lock()
				defer mutex.Unlock()
				order = append(order, i)
			})
		}

		close(release)
		require.Eventually(t, func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return len(order) == 4
		}, time.Second, time.Millisecond)
		require.Equal(t, []int{0, 1, 2, 3}, order)
	})

	t.Run("close drops pending work", func(t *testing.T) {
		p := New(1)
		release := make(chan struct{})
		var ran atomic.Int32

		p.RequestWork(func() {
			<-release
			ran.Add(1)
		})
		p.RequestWork(func() {
			ran.Add(1)
		})

		go func() {
			time.Sleep(10 * time.Millisecond)
			close(release)
		}()
		require.NoError(t, p.Close(context.Background()))
		require.Equal(t, int32(1), ran.Load())

		p.RequestWork(func() {
			ran.Add(1)
		})
		require.Zero(t, p.Active())
		require.Zero(t, p.Pending())
	})

	t.Run("close times out", func(t *testing.T) {
		p := New(1, WithGracePeriod(10*time.Millisecond))
		release := make(chan struct{})
		defer close(release)

		p.RequestWork(func() {
			<-release
		})

		err := p.Close(context.Background())
		require.Error(t, err)
		require.Equal(t, ErrTypeCloseTimeout, errors.Type(err))
	})

	t.Run("panics are recovered", func(t *testing.T) {
		p := New(1)
		done := make(chan struct{})

		p.RequestWork(func() {
			panic("boom")
		})
		p.RequestWork(func() {
			close(done)
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("work after a panic did not run")
		}
	})

	t.Run("default size", func(t *testing.T) {
		require.Positive(t, New(0).Max())
	})
}
