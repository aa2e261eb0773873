// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"sync"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/once"
	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

// usage is the three-valued monotone lattice of spec.md §3:
// Maybe -> {Required, Unused}, never the reverse.
type usage uint8

const (
	usageMaybe usage = iota
	usageRequired
	usageUnused
)

func (u usage) String() string {
	switch u {
	case usageRequired:
		return "required"
	case usageUnused:
		return "unused"
	default:
		return "maybe"
	}
}

// singleInputValue holds the value forwarded to a non-multi input
// socket, grounded on MOD_nodes_evaluator.cc's SingleInputValue.
type singleInputValue struct {
	value values.Value
	set   bool
}

// multiInputItem is one origin/value pair of a multi-input socket.
type multiInputItem struct {
	origin dflow.Socket
	value  values.Value
	set    bool
}

// multiInputValue holds the ordered, origin-keyed values forwarded to a
// multi-input socket, grounded on MOD_nodes_evaluator.cc's
// MultiInputValue. The same origin may occur more than once (spec.md
// §4.4); each occurrence gets its own slot, filled independently.
type multiInputValue struct {
	items []multiInputItem
}

func newMultiInputValue(origins []dflow.Socket) *multiInputValue {
	items := make([]multiInputItem, len(origins))
	for i, o := range origins {
		items[i].origin = o
	}
	return &multiInputValue{items: items}
}

// allAvailable reports whether every item has been filled.
func (m *multiInputValue) allAvailable() bool {
	for i := range m.items {
		if !m.items[i].set {
			return false
		}
	}
	return true
}

// addValue fills the first not-yet-filled slot whose origin matches.
// It is the Go counterpart of MultiInputValue::add_value: the same
// origin may supply several values over time (duplicate edges), and
// each fills a distinct slot in declaration order.
func (m *multiInputValue) addValue(origin dflow.Socket, v values.Value) {
	for i := range m.items {
		if m.items[i].set {
			continue
		}
		if m.items[i].origin != origin {
			continue
		}
		m.items[i].value = v
		m.items[i].set = true
		return
	}
	panic("dflow/eval: no available multi-input slot for origin")
}

// orderedValues returns the values in declared origin order. Only
// valid once allAvailable reports true.
func (m *multiInputValue) orderedValues() []values.Value {
	out := make([]values.Value, len(m.items))
	for i := range m.items {
		out[i] = m.items[i].value
	}
	return out
}

// inputSlot is the per-node, per-input-socket state, grounded on
// MOD_nodes_evaluator.cc's InputState.
type inputSlot struct {
	// typ is nil when the socket should be ignored entirely (spec.md
	// §4.1: unavailable or control-only sockets).
	typ values.Type

	single *singleInputValue
	multi  *multiInputValue

	// usage records how the owning node intends to use this input.
	usage usage

	// readyForExecution becomes true the first time this input was
	// available when the node last snapshotted its inputs for
	// execution. Once true it never reverts; it is read without the
	// node lock while the node is running, exactly as
	// was_ready_for_execution is in the original.
	readyForExecution bool

	// forceCompute requires this input to be materialized for
	// diagnostic purposes, independent of whether any output needs it
	// (spec.md §4.1, §4.3).
	forceCompute bool
}

func (s *inputSlot) isMulti() bool { return s.multi != nil }

// outputSlot is the per-node, per-output-socket state, grounded on
// MOD_nodes_evaluator.cc's OutputState.
type outputSlot struct {
	typ values.Type

	// computed holds the output's value once has been computed is true.
	computed       bool
	value          values.Value
	outputUsage    usage
	usageForExec   usage
	potentialUsers int
}

// scheduleState is the four-state node dispatch machine of spec.md
// §4.8, grounded on MOD_nodes_evaluator.cc's NodeScheduleState.
type scheduleState uint8

const (
	notScheduled scheduleState = iota
	scheduled
	running
	runningAndRescheduled
)

func (s scheduleState) String() string {
	switch s {
	case scheduled:
		return "scheduled"
	case running:
		return "running"
	case runningAndRescheduled:
		return "running-and-rescheduled"
	default:
		return "not-scheduled"
	}
}

// nodeState is the per-node state, grounded on
// MOD_nodes_evaluator.cc's NodeState. mu must be held for any access to
// the fields below it save where individually noted.
type nodeState struct {
	node dflow.NodeHandle
	kind dflow.NodeKind
	lazy bool

	mu sync.Mutex

	inputs  []inputSlot
	outputs []outputSlot

	nonLazyInputsHandled bool
	hasBeenExecuted      bool
	nodeHasFinished      bool
	missingRequiredCount int
	schedule             scheduleState

	finishOnce once.Map

	// statusTask is the optional live progress handle opened while this
	// node is running and closed once it finishes for good (status.go).
	statusTask *status.Task
}

func newNodeState(g dflow.Graph, n dflow.NodeHandle) *nodeState {
	ni, no := g.NumInputs(n), g.NumOutputs(n)
	st := &nodeState{
		node:    n,
		kind:    g.Kind(n),
		lazy:    g.Lazy(n),
		inputs:  make([]inputSlot, ni),
		outputs: make([]outputSlot, no),
	}
	for i := 0; i < ni; i++ {
		in := dflow.In(n, i)
		slot := &st.inputs[i]
		if !g.Available(in) {
			continue
		}
		slot.typ = g.SocketType(in)
		if slot.typ == nil {
			continue
		}
		if g.MultiInput(in) {
			origins := g.Origins(in)
			if len(origins) == 0 {
				// No links connected: read the value from the socket
				// itself (spec.md §4.1, SPEC_FULL.md §4).
				origins = []dflow.Socket{in}
			}
			slot.multi = newMultiInputValue(origins)
		} else {
			slot.single = &singleInputValue{}
		}
	}
	for i := 0; i < no; i++ {
		out := dflow.Out(n, i)
		if !g.Available(out) {
			continue
		}
		st.outputs[i].typ = g.SocketType(out)
	}
	return st
}
