// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"
	"time"

	"github.com/grailbio/base/traverse"
	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/errors"
	"github.com/nodedag/dflow/eval/dot"
	"github.com/nodedag/dflow/values"
)

// statusReportInterval is how often Run reports aggregate progress to
// Config.Status while a request is draining.
const statusReportInterval = time.Second

// Run evaluates one request against e's graph: it discovers every node
// reachable (backwards, via input origins) from req.Roots and
// req.ForceCompute, builds their state (counting each output's
// potential users in parallel), forwards
// caller-supplied group-input values, seeds usage from the request,
// drains the task pool to quiescence, extracts the requested values,
// and tears the reachable state back down. Grounded on
// MOD_nodes_evaluator.cc's execute,
// create_states_for_reachable_nodes/initialize_node_state,
// forward_group_inputs, schedule_initial_nodes,
// extract_group_outputs, destruct_node_states.
func (e *Eval) Run(ctx context.Context, req dflow.Request) (*dflow.Result, error) {
	e.nodes = make(map[dflow.NodeHandle]*nodeState)

	if err := e.createStatesForReachableNodes(req); err != nil {
		return nil, err
	}

	if e.config.DotWriter != nil {
		defer func() {
			b, err := dot.Render(e.graph, e.dotSnapshot(), "dflow evaluation")
			if err != nil {
				if e.log != nil {
					e.log.Debugf("dot render: %v", err)
				}
				return
			}
			if _, err := e.config.DotWriter.Write(b); err != nil && e.log != nil {
				e.log.Debugf("dot write: %v", err)
			}
		}()
	}

	e.pool = newPool(ctx, e, e.config.workers())
	defer func() { e.pool = nil }()

	stopStatus := e.runStatusTicker(ctx, statusReportInterval)
	defer stopStatus()

	for out, v := range req.GroupInputs {
		if _, ok := e.nodes[out.Node]; !ok {
			v.Release()
			continue
		}
		if err := e.forwardOutput(ctx, out, v, nil); err != nil {
			e.pool.wait()
			return nil, err
		}
	}

	if err := e.scheduleInitialNodes(req); err != nil {
		e.pool.wait()
		return nil, err
	}

	if err := e.pool.wait(); err != nil {
		return nil, err
	}

	result, err := e.extractResults(req.Roots)
	e.destructNodeStates()
	return result, err
}

// createStatesForReachableNodes performs a reverse depth-first search
// from req.Roots and req.ForceCompute, constructing a nodeState for
// every node it finds, then initializes every output's potential-user
// count (and every force-compute input's flag) now that the full
// reachable set is known. Grounded on
// MOD_nodes_evaluator.cc's create_states_for_reachable_nodes.
func (e *Eval) createStatesForReachableNodes(req dflow.Request) error {
	var stack []dflow.NodeHandle
	for _, s := range req.Roots {
		stack = append(stack, s.Node)
	}
	for _, s := range req.ForceCompute {
		stack = append(stack, s.Node)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := e.nodes[n]; ok {
			continue
		}
		st := newNodeState(e.graph, n)
		e.nodes[n] = st
		for i := 0; i < e.graph.NumInputs(n); i++ {
			in := dflow.In(n, i)
			if !e.graph.Available(in) {
				continue
			}
			for _, origin := range e.graph.Origins(in) {
				if origin.IsOutput() {
					stack = append(stack, origin.Node)
				}
			}
		}
	}

	nodes := make([]*nodeState, 0, len(e.nodes))
	for _, st := range e.nodes {
		nodes = append(nodes, st)
	}
	if err := traverse.Each(len(nodes), func(i int) error {
		e.initializePotentialUsers(nodes[i])
		return nil
	}); err != nil {
		return err
	}

	for _, s := range req.ForceCompute {
		st, ok := e.nodes[s.Node]
		if !ok || s.IsOutput() {
			continue
		}
		st.inputs[s.Index].forceCompute = true
	}
	return nil
}

// initializePotentialUsers counts, for every available output of st's
// node, how many reachable targets it forwards to; an output with no
// reachable targets starts out Unused (it may still become Required in
// scheduleInitialNodes if it is itself a force-compute socket).
func (e *Eval) initializePotentialUsers(st *nodeState) {
	for i := range st.outputs {
		out := &st.outputs[i]
		if out.typ == nil {
			continue
		}
		count := 0
		for _, p := range e.graph.Targets(dflow.Out(st.node, i)) {
			if _, ok := e.nodes[p.Target().Node]; ok {
				count++
			}
		}
		out.potentialUsers = count
		if count == 0 {
			out.outputUsage = usageUnused
		}
	}
}

// scheduleInitialNodes seeds Required usage from the request: every
// requested root input, and every force-compute socket (whether input
// or output). Grounded on MOD_nodes_evaluator.cc's
// schedule_initial_nodes.
func (e *Eval) scheduleInitialNodes(req dflow.Request) error {
	for _, s := range req.Roots {
		st, ok := e.nodes[s.Node]
		if !ok {
			return errors.E("schedule", errors.Invariant,
				errors.New("requested root socket has no reachable node state"))
		}
		e.withLockedNode(s.Node, st, nil, func(ln *lockedNode) {
			e.requireInput(ln, s)
		})
	}
	for _, s := range req.ForceCompute {
		st, ok := e.nodes[s.Node]
		if !ok {
			return errors.E("schedule", errors.Invariant,
				errors.New("force-compute socket has no reachable node state"))
		}
		e.withLockedNode(s.Node, st, nil, func(ln *lockedNode) {
			if s.IsInput() {
				e.requireInput(ln, s)
				return
			}
			ln.state.outputs[s.Index].outputUsage = usageRequired
			e.scheduleNode(ln)
		})
	}
	return nil
}

// extractResults takes ownership of the final value at every requested
// root socket, in request order, clearing each slot so that the
// subsequent destructNodeStates pass does not also release it.
// Grounded on MOD_nodes_evaluator.cc's extract_group_outputs.
func (e *Eval) extractResults(roots []dflow.Socket) (*dflow.Result, error) {
	out := make([]values.Value, len(roots))
	for i, s := range roots {
		st := e.nodes[s.Node]
		slot := &st.inputs[s.Index]
		if slot.isMulti() || !slot.single.set {
			return nil, errors.E("extract", errors.Invariant,
				errors.New("requested socket was not computed by the time the evaluation drained"))
		}
		out[i] = slot.single.value
		slot.single.value = values.Value{}
		slot.single.set = false
	}
	return &dflow.Result{Values: out}, nil
}

// dotSnapshot captures the current schedule state of every reachable
// node, for rendering by package dot.
func (e *Eval) dotSnapshot() map[dflow.NodeHandle]dot.NodeState {
	out := make(map[dflow.NodeHandle]dot.NodeState, len(e.nodes))
	for n, st := range e.nodes {
		st.mu.Lock()
		out[n] = dot.NodeState{
			Finished: st.nodeHasFinished,
			Running:  st.schedule == running || st.schedule == runningAndRescheduled,
		}
		st.mu.Unlock()
	}
	return out
}

// destructNodeStates releases every value still held by the reachable
// node states' slots (those that were not released by finishing nodes
// along the way, i.e. values kept because they were extracted or
// force-computed without ever triggering a finish), in parallel.
// Grounded on MOD_nodes_evaluator.cc's destruct_node_states.
func (e *Eval) destructNodeStates() {
	nodes := make([]*nodeState, 0, len(e.nodes))
	for _, st := range e.nodes {
		nodes = append(nodes, st)
	}
	_ = traverse.Each(len(nodes), func(i int) error {
		st := nodes[i]
		for j := range st.inputs {
			destructInputValueIfExists(&st.inputs[j])
		}
		return nil
	})
}
