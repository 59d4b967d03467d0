// Package pool runs request tasks on a fixed set of worker goroutines fed
// by a FIFO queue. The queue is guarded by a mutex and a not-empty
// condition: Execute signals one waiter, Stop broadcasts so every worker
// observes the stop flag and drains what is left.
package pool

import (
	"errors"
	"log"
	"sync"
)

// ErrStopped is returned by Execute after Stop.
var ErrStopped = errors.New("pool: stopped")

// Pool is a bounded worker pool.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    []func()
	stopped  bool
	wg       sync.WaitGroup
}

// New starts n workers. n must be at least 1.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{}
	p.notEmpty = sync.NewCond(&p.mu)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// Execute enqueues a task and wakes one worker.
func (p *Pool) Execute(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	p.queue = append(p.queue, task)
	p.notEmpty.Signal()
	return nil
}

// Stop marks the pool stopped and wakes every worker. Workers drain the
// remaining queue before exiting; Stop returns once all of them are done.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.notEmpty.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.notEmpty.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		// Run outside the queue lock so other workers keep dequeuing.
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pool: task panic: %v", r)
		}
	}()
	task()
}
