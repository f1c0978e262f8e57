package worker

import (
	"context"
	"sync"
)

// Group submits tasks to a pool and waits for all of them. Unlike Submit,
// a task skipped because ctx ended still counts as finished, so Wait never
// hangs on cancellation.
type Group struct {
	pool *Pool
	wg   sync.WaitGroup
}

// NewGroup creates a Group on the pool.
func (p *Pool) NewGroup() *Group {
	return &Group{pool: p}
}

// Go submits task. It blocks while the pool is saturated and returns the
// submit error, or ctx.Err() if ctx is already done.
func (g *Group) Go(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.wg.Add(1)
	err := g.pool.pool.Submit(func() {
		defer g.wg.Done()
		if ctx.Err() != nil {
			return
		}
		task(ctx)
	})
	if err != nil {
		g.wg.Done()
	}
	return err
}

// Wait blocks until every submitted task has returned or been skipped.
func (g *Group) Wait() {
	g.wg.Wait()
}
