package integrity

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncResult is the outcome of a background destruction task.
type AsyncResult struct {
	TaskID uint32
	Result Result
	Err    error
}

// AsyncProcessor runs large destructions in the background. Results are
// posted to a mailbox that the owning goroutine drains, small destructions
// run inline and are posted right away.
type AsyncProcessor struct {
	system *System

	taskIDs atomic.Uint32
	pending atomic.Int32
	wg      sync.WaitGroup

	mailboxMutex sync.Mutex
	mailbox      []AsyncResult
}

func NewAsyncProcessor(s *System) *AsyncProcessor {
	return &AsyncProcessor{
		system: s,
	}
}

// DestroyCells destroys the given cells, in the background when there are
// at least Settings.AsyncThreshold of them. Cancelling before the task
// starts posts a result holding the context error.
func (p *AsyncProcessor) DestroyCells(ctx context.Context, cellIDs []int) (taskID uint32, cancel func()) {
	taskID = p.taskIDs.Add(1)
	ids := append([]int(nil), cellIDs...)

	threshold := p.system.settings.AsyncThreshold
	if threshold <= 0 || len(ids) < threshold {
		p.post(AsyncResult{
			TaskID: taskID,
			Result: p.system.DestroyCells(ids),
		})
		return taskID, func() {}
	}

	ctx, cancel = context.WithCancel(ctx)
	p.pending.Add(1)
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)
		defer cancel()

		if err := ctx.Err(); err != nil {
			p.post(AsyncResult{TaskID: taskID, Err: err})
			return
		}

		p.post(AsyncResult{
			TaskID: taskID,
			Result: p.system.DestroyCells(ids),
		})
	}()

	return taskID, cancel
}

// Pending returns the number of background tasks not finished yet.
func (p *AsyncProcessor) Pending() int {
	return int(p.pending.Load())
}

// Drain returns and clears the posted results, in completion order.
func (p *AsyncProcessor) Drain() []AsyncResult {
	p.mailboxMutex.Lock()
	defer p.mailboxMutex.Unlock()

	results := p.mailbox
	p.mailbox = nil
	return results
}

// Wait blocks until every background task is finished or ctx is done.
func (p *AsyncProcessor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncProcessor) post(r AsyncResult) {
	p.mailboxMutex.Lock()
	defer p.mailboxMutex.Unlock()

	p.mailbox = append(p.mailbox, r)
}
