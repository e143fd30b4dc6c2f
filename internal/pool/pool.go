// Package pool runs independent tasks on a bounded set of workers. Each
// worker first runs a setup hook producing a per-worker environment (used
// for the per-thread RNG seeding policy), and results are returned in
// submission order regardless of completion order. A pool with zero
// workers executes everything deferred in the calling goroutine.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task computes one result using the worker environment it runs on.
type Task[E, T any] func(env E) (T, error)

// Pool collects tasks for one pass.
type Pool[E, T any] struct {
	workers int
	setup   func(worker int) E
	tasks   []Task[E, T]
}

// New creates a pool. workers == 0 means deferred execution in the calling
// goroutine; setup runs once per worker before its first task.
func New[E, T any](workers int, setup func(worker int) E) *Pool[E, T] {
	return &Pool[E, T]{workers: workers, setup: setup}
}

// Submit queues a task. The i-th submitted task owns the i-th result slot.
func (p *Pool[E, T]) Submit(task Task[E, T]) {
	p.tasks = append(p.tasks, task)
}

// Len returns the number of queued tasks.
func (p *Pool[E, T]) Len() int { return len(p.tasks) }

// Run executes all queued tasks and returns their results in submission
// order. The first task error cancels the remaining tasks and is returned;
// ctx cancellation is checked between tasks.
func (p *Pool[E, T]) Run(ctx context.Context) ([]T, error) {
	results := make([]T, len(p.tasks))

	if p.workers == 0 {
		env := p.setup(0)
		for i, task := range p.tasks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := task(env)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		p.tasks = p.tasks[:0]
		return results, nil
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.workers; w++ {
		worker := w
		g.Go(func() error {
			env := p.setup(worker)
			for {
				idx := int(next.Add(1)) - 1
				if idx >= len(p.tasks) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := p.tasks[idx](env)
				if err != nil {
					return err
				}
				results[idx] = res
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.tasks = p.tasks[:0]
	return results, nil
}
