// Package worker provides the bounded-concurrency pool used for
// provider-backed work at ingest time.
package worker

import (
	"context"
	"sync"
)

// Job is one unit of background work.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result reports the outcome of a job.
type Result interface {
	Err() error
}

// Pool fans jobs out to a fixed set of goroutines. A pool is single-use:
// submit jobs on one goroutine, collect from Results on another, and Close
// after the last submission. Both channels are bounded, so submission and
// collection must overlap once the job count exceeds the buffers.
type Pool struct {
	workers int
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers*2),
		results: make(chan Result, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers plus a closer that shuts the results channel
// once every worker has drained the queue.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. After Shutdown, submissions are dropped.
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
	case p.jobs <- job:
	}
}

// Close marks the end of submissions. Without it, Results never closes.
func (p *Pool) Close() {
	close(p.jobs)
}

// Results yields job outcomes. The channel closes once every submitted
// job has finished.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown aborts outstanding work. Queued jobs are discarded; Results
// still closes.
func (p *Pool) Shutdown() {
	p.cancel()
}
