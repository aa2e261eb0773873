// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/errors"
)

// runNodeChain runs n and then, following the single-candidate
// chaining optimization (spec.md §4.8), any node scheduled during n's
// processing that no other node claimed first — directly, on this same
// goroutine, without a further round trip through the task pool.
// Grounded on MOD_nodes_evaluator.cc's run_node_from_task_pool.
func (e *Eval) runNodeChain(ctx context.Context, n dflow.NodeHandle) error {
	for {
		rs := &runState{}
		if err := e.nodeTaskRun(ctx, n, rs); err != nil {
			return err
		}
		if !rs.hasNext {
			return nil
		}
		n = rs.next
	}
}

// nodeTaskRun preprocesses, conditionally executes, and postprocesses
// one node. Grounded on MOD_nodes_evaluator.cc's node_task_run.
func (e *Eval) nodeTaskRun(ctx context.Context, n dflow.NodeHandle, rs *runState) error {
	switch e.graph.Kind(n) {
	case dflow.KindGroupInput, dflow.KindGroupOutput:
		// These are scheduled sometimes as an artifact of the generic
		// notification paths, but have no execution of their own: they
		// are boundary markers consulted during forwarding (forward.go),
		// not executable nodes.
		return nil
	}

	st := e.state(n)
	doExecute, err := e.nodeTaskPreprocessing(n, st, rs)
	if err != nil {
		return err
	}
	if doExecute {
		if err := e.executeNode(ctx, n, st, rs); err != nil {
			return err
		}
		// A lazy node still waiting on inputs it just required has
		// yielded: it runs again once they arrive, so its uncomputed
		// outputs are not defaulted now.
		st.mu.Lock()
		yielded := st.lazy && (st.missingRequiredCount > 0 || st.schedule == runningAndRescheduled)
		st.mu.Unlock()
		if !yielded {
			if err := e.setDefaultRemainingOutputs(ctx, n, st, rs); err != nil {
				return err
			}
		}
	}
	return e.nodeTaskPostprocessing(n, st, doExecute, rs)
}

// nodeTaskPreprocessing snapshots output usage, requires every
// non-lazy input on the node's first run, and snapshots ready inputs,
// deciding whether the node should actually execute now. Grounded on
// MOD_nodes_evaluator.cc's node_task_preprocessing.
func (e *Eval) nodeTaskPreprocessing(n dflow.NodeHandle, st *nodeState, rs *runState) (doExecute bool, err error) {
	e.withLockedNode(n, st, rs, func(ln *lockedNode) {
		if ln.state.schedule != scheduled {
			err = errors.E("preprocess", errors.Invariant, errors.New("node was not in scheduled state"))
			return
		}
		ln.state.schedule = running

		if ln.state.nodeHasFinished {
			return
		}
		if !e.prepareNodeOutputsForExecution(ln) {
			return
		}
		if !ln.state.nonLazyInputsHandled {
			e.requireNonLazyInputs(ln)
			ln.state.nonLazyInputsHandled = true
		}
		if !e.prepareNodeInputsForExecution(ln) {
			return
		}
		doExecute = true
		e.nodeStatusStart(n, ln.state)
	})
	return doExecute, err
}

// prepareNodeOutputsForExecution snapshots output_usage into
// output_usage_for_execution and reports whether any not-yet-computed
// output is Required. Grounded on
// MOD_nodes_evaluator.cc's prepare_node_outputs_for_execution.
func (e *Eval) prepareNodeOutputsForExecution(ln *lockedNode) bool {
	necessary := false
	for i := range ln.state.outputs {
		out := &ln.state.outputs[i]
		out.usageForExec = out.outputUsage
		if !out.computed && out.outputUsage == usageRequired {
			necessary = true
		}
	}
	return necessary
}

// requireNonLazyInputs marks every available input Required for a node
// that does not support laziness, so the node need not be re-entered
// once per input. Grounded on MOD_nodes_evaluator.cc's
// require_non_lazy_inputs / foreach_non_lazy_input.
func (e *Eval) requireNonLazyInputs(ln *lockedNode) {
	if ln.state.lazy {
		return
	}
	for i := range ln.state.inputs {
		if ln.state.inputs[i].typ == nil {
			continue
		}
		e.requireInput(ln, dflow.In(ln.node, i))
	}
}

// prepareNodeInputsForExecution checks which inputs are available and
// marks was-ready-for-execution on those that are; it reports false
// (node cannot execute yet) if any Required input is still missing.
// Grounded on MOD_nodes_evaluator.cc's
// prepare_node_inputs_for_execution.
func (e *Eval) prepareNodeInputsForExecution(ln *lockedNode) bool {
	for i := range ln.state.inputs {
		slot := &ln.state.inputs[i]
		if slot.typ == nil {
			continue
		}
		if slot.readyForExecution {
			continue
		}
		isRequired := slot.usage == usageRequired
		if slot.isMulti() {
			if slot.multi.allAvailable() {
				slot.readyForExecution = true
			} else if isRequired {
				return false
			}
		} else {
			if slot.single.set {
				slot.readyForExecution = true
			} else if isRequired {
				return false
			}
		}
	}
	return true
}

// nodeTaskPostprocessing attempts to finish the node, reschedules it
// if it was rescheduled while running and did not finish, and, if the
// node executed, asserts every Required output was computed.
// Grounded on MOD_nodes_evaluator.cc's node_task_postprocessing.
func (e *Eval) nodeTaskPostprocessing(n dflow.NodeHandle, st *nodeState, wasExecuted bool, rs *runState) error {
	var assertErr error
	e.withLockedNode(n, st, rs, func(ln *lockedNode) {
		alreadyFinished := ln.state.nodeHasFinished
		finished := e.finishNodeIfPossible(ln)
		if finished && !alreadyFinished {
			e.nodeStatusFinish(ln.state)
		}
		rescheduleRequested := ln.state.schedule == runningAndRescheduled
		ln.state.schedule = notScheduled
		if rescheduleRequested && !finished {
			e.scheduleNode(ln)
		}
		if wasExecuted {
			assertErr = e.assertExpectedOutputsComputed(ln)
		}
	})
	return assertErr
}

// finishNodeIfPossible reports whether n is done for good: every
// output that might still be used has been computed, and every
// force-compute input has at least been ready for execution once. If
// so, every Maybe input is marked Unused and every other input's value
// is released, and the node is marked finished (idempotently).
// Grounded on MOD_nodes_evaluator.cc's finish_node_if_possible; the
// force_compute criterion resolves spec.md §9's first Open Question
// per SPEC_FULL.md §4.
func (e *Eval) finishNodeIfPossible(ln *lockedNode) bool {
	if ln.state.nodeHasFinished {
		return true
	}
	for i := range ln.state.outputs {
		out := &ln.state.outputs[i]
		if out.computed {
			continue
		}
		if out.outputUsage != usageUnused {
			return false
		}
	}
	for i := range ln.state.inputs {
		in := &ln.state.inputs[i]
		if in.forceCompute && !in.readyForExecution {
			return false
		}
	}
	for i := range ln.state.inputs {
		slot := &ln.state.inputs[i]
		if slot.typ == nil {
			continue
		}
		switch slot.usage {
		case usageMaybe:
			e.markInputUnused(ln, dflow.In(ln.node, i))
		case usageRequired:
			destructInputValueIfExists(slot)
		}
	}
	ln.state.nodeHasFinished = true
	return true
}

// assertExpectedOutputsComputed is a last-resort invariant check, run
// after every execution,
// instantiating P2 of spec.md §8: it is a fatal bug if a node's
// schedule state settles without every output that was (as of this
// execution) Required having been computed, given all of its Required
// inputs had already been supplied. Grounded on
// MOD_nodes_evaluator.cc's assert_expected_outputs_have_been_computed.
func (e *Eval) assertExpectedOutputsComputed(ln *lockedNode) error {
	if ln.state.missingRequiredCount > 0 {
		return nil
	}
	if ln.state.schedule == scheduled {
		return nil
	}
	for i := range ln.state.outputs {
		out := &ln.state.outputs[i]
		if ln.state.lazy {
			if out.usageForExec == usageRequired && !out.computed {
				return errors.E("execute", errors.Invariant,
					errors.New("required output was not computed by lazy node"))
			}
		} else {
			if out.usageForExec != usageUnused && !out.computed {
				return errors.E("execute", errors.Invariant,
					errors.New("used output was not computed by non-lazy node"))
			}
		}
	}
	return nil
}
