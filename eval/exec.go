// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"
	"time"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/errors"
	"github.com/nodedag/dflow/values"
)

// executeNode dispatches to the flavor of execution a node's kind
// implies (spec.md §4.9): a custom callback, a pure multi-function
// (lifted over fields as needed, §4.10), or — for a node whose kind the
// graph cannot resolve — default values forwarded on every output
// (§4.12). Grounded on MOD_nodes_evaluator.cc's execute_node.
func (e *Eval) executeNode(ctx context.Context, n dflow.NodeHandle, st *nodeState, rs *runState) error {
	if st.hasBeenExecuted && st.lazy {
		// Lazy nodes may legitimately run more than once; nothing to
		// check.
	} else if st.hasBeenExecuted {
		return errors.E("execute", errors.Invariant,
			errors.New("non-lazy node executed more than once"))
	}
	st.hasBeenExecuted = true

	switch st.kind {
	case dflow.KindCallback:
		return e.executeCallbackNode(ctx, n, st, rs)
	case dflow.KindMultiFunction:
		return e.executeMultiFunctionNode(ctx, n, st, rs)
	default:
		return e.executeUnknownNode(ctx, n, st, rs)
	}
}

func (e *Eval) executeCallbackNode(ctx context.Context, n dflow.NodeHandle, st *nodeState, rs *runState) error {
	cb := e.graph.Callback(n)
	if cb == nil {
		return e.executeUnknownNode(ctx, n, st, rs)
	}
	params := &execParams{e: e, ctx: ctx, node: n, state: st, rs: rs}
	start := time.Now()
	err := cb.Execute(ctx, params)
	if e.config.Logger != nil {
		e.config.Logger.LogExecutionDuration(n, time.Since(start))
	}
	if err == nil {
		err = params.forwardErr
	}
	return err
}

// executeUnknownNode forwards a default-constructed value on every
// available, typed output as a fallback, per spec.md §4.12. Grounded
// on MOD_nodes_evaluator.cc's execute_unknown_node.
func (e *Eval) executeUnknownNode(ctx context.Context, n dflow.NodeHandle, st *nodeState, rs *runState) error {
	for i := range st.outputs {
		out := &st.outputs[i]
		if out.typ == nil || out.computed {
			continue
		}
		v := values.Value{Type: out.typ, Data: out.typ.Default()}
		out.computed = true
		out.value = v
		if e.config.Logger != nil {
			e.config.Logger.LogValue(dflow.Out(n, i), v)
		}
		if err := e.forwardOutput(ctx, dflow.Out(n, i), v.Clone(), rs); err != nil {
			return err
		}
	}
	return nil
}

// setDefaultRemainingOutputs default-constructs and forwards a value
// for every output that a callback (or multi-function dispatch) left
// uncomputed despite this execution needing it (usageForExec != Unused).
// This is spec.md §7's "missing user output" recovery: the condition is
// explicitly recoverable, not fatal, so a node that forgets to set a
// Required output still lets the evaluation finish instead of stalling
// forever. Grounded on MOD_nodes_evaluator.cc's
// NodeParamsProvider::set_default_remaining_outputs, made an automatic
// postprocessing step here rather than a call a node author must
// remember to make explicitly. nodeTaskRun skips it after a lazy node's
// execution that left the node waiting on inputs it required.
func (e *Eval) setDefaultRemainingOutputs(ctx context.Context, n dflow.NodeHandle, st *nodeState, rs *runState) error {
	for i := range st.outputs {
		out := &st.outputs[i]
		if out.typ == nil || out.computed {
			continue
		}
		if out.usageForExec == usageUnused {
			continue
		}
		v := values.Value{Type: out.typ, Data: out.typ.Default()}
		out.computed = true
		out.value = v
		if e.config.Logger != nil {
			e.config.Logger.LogDebug("dflow: node %v output %d missing after execution, forwarding default", n, i)
		}
		if err := e.forwardOutput(ctx, dflow.Out(n, i), v.Clone(), rs); err != nil {
			return err
		}
	}
	return nil
}

// execParams implements dflow.ExecParams for one node execution; it is
// handed to a Callback (directly) or driven internally by the
// multi-function dispatch in multifn.go.
type execParams struct {
	e     *Eval
	ctx   context.Context
	node  dflow.NodeHandle
	state *nodeState
	rs    *runState

	// forwardErr holds the first error a forwardOutput call triggered
	// by SetOutput produced, since dflow.ExecParams.SetOutput itself
	// cannot return one (it mirrors the original's void interface).
	forwardErr error
}

func (p *execParams) Input(i int) values.Value {
	return p.state.inputs[i].single.value
}

func (p *execParams) MultiInput(i int) []values.Value {
	return p.state.inputs[i].multi.orderedValues()
}

func (p *execParams) SetOutput(i int, v values.Value) {
	out := &p.state.outputs[i]
	if out.computed {
		panic("dflow/eval: output set more than once in a single execution")
	}
	if p.e.config.Logger != nil {
		p.e.config.Logger.LogValue(dflow.Out(p.node, i), v)
	}
	out.value = v
	out.computed = true
	if err := p.e.forwardOutput(p.ctx, dflow.Out(p.node, i), v.Clone(), p.rs); err != nil && p.forwardErr == nil {
		p.forwardErr = err
	}
}

func (p *execParams) OutputRequired(i int) bool {
	return p.state.outputs[i].usageForExec == usageRequired
}

func (p *execParams) RequireInput(i int) {
	slot := &p.state.inputs[i]
	if slot.readyForExecution {
		return
	}
	in := dflow.In(p.node, i)
	p.e.withLockedNode(p.node, p.state, p.rs, func(ln *lockedNode) {
		if !p.e.requireInput(ln, in) {
			// The value is already available (or was loaded
			// synchronously); reschedule so the node picks it up, since
			// no other node will notify it (lazy_require_input in the
			// original source).
			p.e.scheduleNode(ln)
		}
	})
}

func (p *execParams) SetInputUnused(i int) {
	in := dflow.In(p.node, i)
	p.e.withLockedNode(p.node, p.state, p.rs, func(ln *lockedNode) {
		p.e.markInputUnused(ln, in)
	})
}
