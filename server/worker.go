package server

import (
	"context"
	"fmt"
	"runtime"
)

// job is a unit of work handed to a pool goroutine.
type job struct {
	fn   func() any
	done chan jobResult
}

// jobResult holds the return value of a job.
type jobResult struct {
	value any
	err   error
}

// Pool bounds how many evaluations run at once and turns evaluator
// panics into errors.
type Pool struct {
	jobs chan job
	quit chan struct{}
}

// NewPool starts n worker goroutines. n <= 0 means one per CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{
		jobs: make(chan job, 64),
		quit: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	for {
		select {
		case j := <-p.jobs:
			j.done <- p.execute(j.fn)
		case <-p.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (p *Pool) execute(fn func() any) jobResult {
	var result jobResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("panic: %v", r)
			}
		}()
		result.value = fn()
	}()
	return result
}

// Do runs fn on a pool goroutine and waits for it. It gives up when ctx
// is done; fn itself should watch the same ctx to stop early.
func (p *Pool) Do(ctx context.Context, fn func() any) (any, error) {
	j := job{fn: fn, done: make(chan jobResult, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, errStopped
	}
	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the pool goroutines. Jobs already running finish.
func (p *Pool) Stop() {
	close(p.quit)
}
