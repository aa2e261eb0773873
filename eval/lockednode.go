// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import "github.com/nodedag/dflow"

// lockedNode gives a closure running under withLockedNode exclusive
// access to one node's state, and a place to record notifications that
// must be sent once that node's lock is released (spec.md §4.5),
// grounded on MOD_nodes_evaluator.cc's LockedNode class.
type lockedNode struct {
	node  dflow.NodeHandle
	state *nodeState

	delayedRequiredOutputs []dflow.Socket
	delayedUnusedOutputs   []dflow.Socket
	delayedScheduledNodes  []dflow.NodeHandle
}

// requireOutputLater records that out's producing node must be told its
// output is required, once the current node's lock is released.
func (l *lockedNode) requireOutputLater(out dflow.Socket) {
	l.delayedRequiredOutputs = append(l.delayedRequiredOutputs, out)
}

// maybeUnusedOutputLater records that out's producing node must be told
// one of its output's potential users has gone away, once the current
// node's lock is released.
func (l *lockedNode) maybeUnusedOutputLater(out dflow.Socket) {
	l.delayedUnusedOutputs = append(l.delayedUnusedOutputs, out)
}

// scheduleLater records that n must be scheduled for execution once the
// current node's lock is released. Called only while n == l.node: a
// node schedules only itself, from inside its own locked block (spec.md
// §4.8).
func (l *lockedNode) scheduleLater(n dflow.NodeHandle) {
	l.delayedScheduledNodes = append(l.delayedScheduledNodes, n)
}

// runState threads the single-candidate chaining optimization of
// spec.md §4.8 through one worker's processing of one task: the first
// node scheduled while this worker is unwinding nested withLockedNode
// calls is run directly by this worker instead of round-tripping
// through the task pool, grounded on MOD_nodes_evaluator.cc's
// NodeTaskRunState.next_node_to_run.
type runState struct {
	hasNext bool
	next    dflow.NodeHandle
}

// withLockedNode locks n's state, runs fn, unlocks, and then dispatches
// every notification fn recorded — in required, then unused, then
// schedule order — strictly after the unlock. This is the single
// mechanism by which invariant I7 (a goroutine never holds two node
// locks at once) is upheld: fn may itself call withLockedNode on other
// nodes, but only after this function has already released n's lock.
//
// rs may be nil (driver-initiated notifications outside of any running
// task); when non-nil and chaining is enabled, at most one newly
// scheduled node is handed back to the caller via rs instead of being
// pushed to the task pool.
func (e *Eval) withLockedNode(n dflow.NodeHandle, st *nodeState, rs *runState, fn func(*lockedNode)) {
	ln := &lockedNode{node: n, state: st}

	st.mu.Lock()
	fn(ln)
	st.mu.Unlock()

	for _, out := range ln.delayedRequiredOutputs {
		e.sendOutputRequiredNotification(out, rs)
	}
	for _, out := range ln.delayedUnusedOutputs {
		e.sendOutputUnusedNotification(out, rs)
	}
	for _, next := range ln.delayedScheduledNodes {
		if rs != nil && !e.config.ChainingDisabled && !rs.hasNext {
			rs.hasNext = true
			rs.next = next
			continue
		}
		e.pool.submit(next)
	}
}
