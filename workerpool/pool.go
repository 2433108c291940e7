// Package workerpool runs closures on a bounded number of goroutines.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	ErrTypeCloseTimeout = "workerpool_close_timeout"

	// DefaultGracePeriod is how long Close waits for active work.
	DefaultGracePeriod = time.Second
)

// Pool runs requested work as soon as fewer than Max workers are active, and
// queues it in FIFO order otherwise.
type Pool struct {
	max         int
	gracePeriod time.Duration

	mutex   sync.Mutex
	active  int
	pending []func()
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Pool)

func WithGracePeriod(d time.Duration) Option {
	return func(p *Pool) {
		p.gracePeriod = d
	}
}

// New creates a pool running at most maxWorkers closures at once. A value
// <= 0 uses GOMAXPROCS.
func New(maxWorkers int, opts ...Option) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		max:         maxWorkers,
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Max() int {
	return p.max
}

// RequestWork runs fn on a worker goroutine. Work requested after Close is
// dropped.
func (p *Pool) RequestWork(fn func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.closed || fn == nil {
		return
	}

	if p.active < p.max {
		p.launch(fn)
		return
	}

	p.pending = append(p.pending, fn)
	instrumentQueue(p.active, len(p.pending))
}

func (p *Pool) Active() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.active
}

func (p *Pool) Pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.pending)
}

// Close drops pending work and waits for active work to finish, up to the
// grace period or until ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mutex.Lock()
	p.closed = true
	dropped := len(p.pending)
	p.pending = nil
	active := p.active
	instrumentQueue(p.active, 0)
	p.mutex.Unlock()

	if dropped != 0 {
		logs.WithTag("dropped", dropped).Debug("worker pool dropped pending work")
	}

	ctx, cancel := context.WithTimeout(ctx, p.gracePeriod)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil

	case <-ctx.Done():
		return errors.New("worker pool did not stop in time").
			WithType(ErrTypeCloseTimeout).
			WithTag("active", active).
			Wrap(ctx.Err())
	}
}

func (p *Pool) launch(fn func()) {
	p.active++
	p.wg.Add(1)
	instrumentQueue(p.active, len(p.pending))

	go func() {
		defer p.done()
		run(fn)
	}()
}

func (p *Pool) done() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.active--
	for !p.closed && p.active < p.max && len(p.pending) != 0 {
		fn := p.pending[0]
		p.pending[0] = nil
		p.pending = p.pending[1:]
		p.launch(fn)
	}

	instrumentQueue(p.active, len(p.pending))
	p.wg.Done()
}

func run(fn func()) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			instrumentPanic()
			logs.Error(errors.Newf("work panicked: %v", r))
		}
		instrumentWork(start)
	}()

	fn()
}
