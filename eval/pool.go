// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nodedag/dflow"
)

// pool is the fixed-size task pool of spec.md §5: a bounded number of
// worker goroutines pull node handles off a channel and run each to
// quiescence, following the single-candidate chaining optimization
// (spec.md §4.8) internally before returning to the channel for more
// work. Grounded on MOD_nodes_evaluator.cc's BLI_task_pool usage
// (add_node_to_task_pool, run_node_from_task_pool), with
// golang.org/x/sync/errgroup managing worker lifetime and error
// propagation the way flow/eval.go manages its own goroutine groups.
type pool struct {
	e     *Eval
	tasks chan dflow.NodeHandle
	wg    sync.WaitGroup

	g   *errgroup.Group
	ctx context.Context
}

func newPool(ctx context.Context, e *Eval, workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{e: e, tasks: make(chan dflow.NodeHandle, 4*workers)}
	g, gctx := errgroup.WithContext(ctx)
	p.g, p.ctx = g, gctx
	for i := 0; i < workers; i++ {
		g.Go(p.worker)
	}
	return p
}

// submit enqueues n for execution. It is the Go counterpart of
// add_node_to_task_pool: called only while no node lock is held, so
// that a pool that happens to run the task synchronously (as
// BLI_task_pool_push may, with a single worker) cannot deadlock.
func (p *pool) submit(n dflow.NodeHandle) {
	p.wg.Add(1)
	p.tasks <- n
}

func (p *pool) worker() error {
	for n := range p.tasks {
		err := p.e.runNodeChain(p.ctx, n)
		p.wg.Done()
		if err != nil {
			return err
		}
	}
	return nil
}

// wait blocks until no task is queued or in flight, then shuts the
// pool down and returns the first error any worker encountered, if
// any.
func (p *pool) wait() error {
	p.wg.Wait()
	close(p.tasks)
	return p.g.Wait()
}
