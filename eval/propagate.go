// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

// requireInput marks input socket in, belonging to ln's locked node, as
// Required (spec.md §4.6), propagating Required to its origins as
// needed. Grounded on MOD_nodes_evaluator.cc's set_input_required.
//
// Returns true if this node will be triggered again by another node
// once the value becomes available (the caller need not reschedule);
// false if the input is already satisfied or was loaded synchronously
// from an unlinked origin.
func (e *Eval) requireInput(ln *lockedNode, in dflow.Socket) bool {
	slot := &ln.state.inputs[in.Index]
	if slot.typ == nil {
		return false
	}
	if slot.usage == usageUnused {
		panic("dflow/eval: input already unused cannot become required")
	}
	if slot.readyForExecution {
		return false
	}
	if slot.usage == usageRequired {
		return true
	}
	slot.usage = usageRequired

	missing := 0
	if slot.isMulti() {
		for i := range slot.multi.items {
			if !slot.multi.items[i].set {
				missing++
			}
		}
	} else if !slot.single.set {
		missing = 1
	}
	if missing == 0 {
		return false
	}
	ln.state.missingRequiredCount += missing

	origins := e.graph.Origins(in)
	if len(origins) == 0 {
		e.loadUnlinkedInputValue(slot, in, in)
		ln.state.missingRequiredCount--
		return false
	}
	requestedFromOther := false
	for _, origin := range origins {
		if origin.IsInput() {
			e.loadUnlinkedInputValue(slot, in, origin)
			ln.state.missingRequiredCount--
			continue
		}
		requestedFromOther = true
		ln.requireOutputLater(origin)
	}
	return requestedFromOther
}

// loadUnlinkedInputValue loads a value directly into slot without
// awaiting any producing node, for the self-origin / unlinked-input
// case of spec.md §4.1 and §4.6 (SPEC_FULL.md §4). Grounded on
// MOD_nodes_evaluator.cc's load_unlinked_input_value: since this
// evaluator has no literal-constant storage of its own, the origin
// socket's declared type's default value stands in for "the socket's
// own value" and is converted to the input's type like any other
// forwarded value.
func (e *Eval) loadUnlinkedInputValue(slot *inputSlot, in, origin dflow.Socket) {
	originType := e.graph.SocketType(origin)
	if originType == nil {
		originType = slot.typ
	}
	v, ok := values.Convert(values.Value{Type: originType, Data: originType.Default()}, slot.typ)
	if !ok && e.config.Logger != nil {
		e.config.Logger.LogDebug("dflow: %v cannot convert unlinked default from %v to %v, using %v's default",
			in, originType.Name(), slot.typ.Name(), slot.typ.Name())
	}
	if slot.isMulti() {
		slot.multi.addValue(origin, v)
	} else {
		slot.single.value = v
		slot.single.set = true
	}
}

// markInputUnused marks input socket in as definitely Unused (spec.md
// §4.6), releasing its value and notifying origins that might want to
// propagate Unused further left. Grounded on
// MOD_nodes_evaluator.cc's set_input_unused.
func (e *Eval) markInputUnused(ln *lockedNode, in dflow.Socket) {
	slot := &ln.state.inputs[in.Index]
	if slot.typ == nil {
		return
	}
	if slot.usage == usageRequired {
		panic("dflow/eval: required input cannot become unused")
	}
	if slot.usage == usageUnused {
		return
	}
	slot.usage = usageUnused
	destructInputValueIfExists(slot)
	if slot.readyForExecution {
		return
	}
	for _, origin := range e.graph.Origins(in) {
		if origin.IsInput() {
			continue
		}
		ln.maybeUnusedOutputLater(origin)
	}
}

// destructInputValueIfExists releases any value(s) currently held by
// slot, grounded on MOD_nodes_evaluator.cc's
// destruct_input_value_if_exists.
func destructInputValueIfExists(slot *inputSlot) {
	if slot.isMulti() {
		for i := range slot.multi.items {
			it := &slot.multi.items[i]
			if it.set {
				it.value.Release()
				it.value = values.Value{}
				it.set = false
			}
		}
		return
	}
	if slot.single.set {
		slot.single.value.Release()
		slot.single.value = values.Value{}
		slot.single.set = false
	}
}

// sendOutputRequiredNotification tells out's producing node that out
// is now Required, scheduling that node if needed. Grounded on
// MOD_nodes_evaluator.cc's send_output_required_notification.
func (e *Eval) sendOutputRequiredNotification(out dflow.Socket, rs *runState) {
	st := e.state(out.Node)
	e.withLockedNode(out.Node, st, rs, func(ln *lockedNode) {
		slot := &ln.state.outputs[out.Index]
		if slot.outputUsage == usageRequired {
			return
		}
		slot.outputUsage = usageRequired
		e.scheduleNode(ln)
	})
}

// sendOutputUnusedNotification tells out's producing node that one of
// its potential users has gone away, marking the output Unused and
// scheduling the node once no potential users remain (so it can in
// turn mark its own now-Unused inputs). Grounded on
// MOD_nodes_evaluator.cc's send_output_unused_notification.
func (e *Eval) sendOutputUnusedNotification(out dflow.Socket, rs *runState) {
	st := e.state(out.Node)
	e.withLockedNode(out.Node, st, rs, func(ln *lockedNode) {
		slot := &ln.state.outputs[out.Index]
		slot.potentialUsers--
		if slot.potentialUsers == 0 && slot.outputUsage != usageRequired {
			slot.outputUsage = usageUnused
			e.scheduleNode(ln)
		}
	})
}

// scheduleNode transitions ln's node through the four-state schedule
// machine of spec.md §4.8, grounded on MOD_nodes_evaluator.cc's
// schedule_node.
func (e *Eval) scheduleNode(ln *lockedNode) {
	switch ln.state.schedule {
	case notScheduled:
		ln.state.schedule = scheduled
		ln.scheduleLater(ln.node)
	case scheduled:
	case running:
		ln.state.schedule = runningAndRescheduled
	case runningAndRescheduled:
	}
}
