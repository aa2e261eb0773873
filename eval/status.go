// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/nodedag/dflow"
)

// reportStatus prints an aggregate one-line summary of every reachable
// node's schedule state to e.config.Status. A no-op when no Status was
// configured. Grounded on flow/eval.go's reportStatus/counters.
func (e *Eval) reportStatus() {
	if e.config.Status == nil {
		return
	}
	var notScheduledN, scheduledN, runningN, finishedN int
	for _, st := range e.nodes {
		st.mu.Lock()
		switch {
		case st.nodeHasFinished:
			finishedN++
		case st.schedule == running || st.schedule == runningAndRescheduled:
			runningN++
		case st.schedule == scheduled:
			scheduledN++
		default:
			notScheduledN++
		}
		st.mu.Unlock()
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "nodes: %d", len(e.nodes))
	if runningN > 0 {
		fmt.Fprintf(&b, ", running:%d", runningN)
	}
	if scheduledN > 0 {
		fmt.Fprintf(&b, ", scheduled:%d", scheduledN)
	}
	fmt.Fprintf(&b, ", waiting:%d", notScheduledN)
	fmt.Fprintf(&b, ", finished:%d/%d", finishedN, len(e.nodes))
	e.config.Status.Print(b.String())
}

// runStatusTicker starts a goroutine that calls reportStatus every
// interval until ctx is done, returning a function that stops the
// ticker and waits for the goroutine to exit. A no-op (returning a
// no-op stop func) when no Status was configured. Grounded on
// flow/eval.go's ticker-driven reportStatus call in its main select
// loop.
func (e *Eval) runStatusTicker(ctx context.Context, interval time.Duration) func() {
	if e.config.Status == nil {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.reportStatus()
			}
		}
	}()
	return func() {
		ticker.Stop()
		<-done
	}
}

// nodeStatusStart begins a per-node status task the first time a node
// starts running; safe to call redundantly. Must be called with st.mu
// held. Grounded on flow/eval.go's f.Status = e.Status.Start(f.Ident).
func (e *Eval) nodeStatusStart(n dflow.NodeHandle, st *nodeState) {
	if e.config.Status == nil || st.statusTask != nil {
		return
	}
	st.statusTask = e.config.Status.Start(fmt.Sprintf("%v", n))
	st.statusTask.Print(fmt.Sprintf("%s running", e.graph.Kind(n)))
}

// nodeStatusFinish ends a node's status task once it has finished for
// good. Must be called with st.mu held. Grounded on flow/eval.go's
// f.Status.Done().
func (e *Eval) nodeStatusFinish(st *nodeState) {
	if st.statusTask == nil {
		return
	}
	st.statusTask.Print("done")
	st.statusTask.Done()
	st.statusTask = nil
}
