// Package pool runs leaf jobs on a fixed number of workers. Only jobs that
// launch processes go through the pool; coordinators waiting on jobs never
// hold a worker, so nested submission cannot starve it.
package pool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

type Pool struct {
	jobs    chan job
	wg      sync.WaitGroup
	workers int
	once    sync.Once
}

// New starts workers goroutines, NumCPU when workers is not positive.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		jobs:    make(chan job),
		workers: workers,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.fn(j.ctx)
		close(j.done)
	}
}

// Do runs fn on a worker and waits for it. If ctx ends before a worker
// picks the job up, fn never runs. A job that started always runs to
// completion. The context error is returned whenever ctx ended, so callers
// never mistake a cancelled job's result for a real one.
func (p *Pool) Do(ctx context.Context, fn func(context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-j.done
	return ctx.Err()
}

// Close waits for running jobs and stops the workers. Do must not be called
// afterwards.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

// Run submits every job and returns the results in submission order,
// whatever order they finished in.
func Run[T any](ctx context.Context, p *Pool, jobs []func(context.Context) T) ([]T, error) {
	results := make([]T, len(jobs))
	var eg errgroup.Group
	for i, fn := range jobs {
		eg.Go(func() error {
			return p.Do(ctx, func(ctx context.Context) {
				results[i] = fn(ctx)
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
