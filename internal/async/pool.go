// Package async provides the bounded worker pool that runs batch processing
// jobs off the caller's goroutine. Submitters get no result channel back;
// job outcomes are observed through persisted batch state.
package async

import (
	"log"
	"sync"
)

// Scheduler accepts no-argument jobs for background execution. There is no
// result channel back to the submitter; outcomes are observed through
// persisted state.
type Scheduler interface {
	Submit(job func()) bool
}

// Pool is a fixed-size worker pool over a buffered job queue.
type Pool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	workers int
}

// NewPool starts a pool with the given worker count and queue depth.
func NewPool(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers * 4
	}

	p := &Pool{
		jobs:    make(chan func(), queueDepth),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("async: job panicked: %v", r)
		}
	}()
	job()
}

// Submit enqueues a job, blocking while the queue is full. It returns false
// if the pool is already shut down. The mutex makes the shut-down check and
// the send one step, so Shutdown can never close the channel between them.
func (p *Pool) Submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.jobs <- job
	return true
}

// Shutdown stops accepting jobs and waits for in-flight ones to finish.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
