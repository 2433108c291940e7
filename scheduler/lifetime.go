package scheduler

import "sync/atomic"

// lifetime is captured by worker closures instead of the scheduler. Once
// cleared, workers drop their results.
type lifetime struct {
	alive     atomic.Bool
	scheduler atomic.Pointer[Scheduler]
}

func newLifetime(s *Scheduler) *lifetime {
	l := &lifetime{}
	l.scheduler.Store(s)
	l.alive.Store(true)
	return l
}

func (l *lifetime) get() *Scheduler {
	if !l.alive.Load() {
		return nil
	}
	return l.scheduler.Load()
}

func (l *lifetime) clear() {
	l.alive.Store(false)
	l.scheduler.Store(nil)
}
