// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

// forwardOutput moves a newly computed value from output socket from to
// every reachable target input that still wants it, converting at
// boundary sockets along the way, copying before the final move when
// more than one target remains, and releasing the value if nothing
// wants it at all (spec.md §4.7). Grounded on
// MOD_nodes_evaluator.cc's forward_output,
// forward_to_sockets_with_same_type and add_value_to_input_socket.
func (e *Eval) forwardOutput(ctx context.Context, from dflow.Socket, v values.Value, rs *runState) error {
	paths := e.graph.Targets(from)

	// Several Paths can share the same Target() here: a diamond in the
	// graph, or the same output connected more than once to one
	// multi-input. The value is converted only once per target (kept
	// holds the first path to each), but every path is still delivered,
	// since each fills its own cell of the target slot
	// (multiInputValue.addValue); deliveries counts them per target.
	deliveries := make(map[dflow.Socket]int, len(paths))
	var kept []dflow.Path
	for _, p := range paths {
		to := p.Target()
		if !e.shouldForwardToSocket(to) {
			continue
		}
		if deliveries[to] == 0 {
			kept = append(kept, p)
		}
		deliveries[to]++
	}

	if len(kept) == 0 {
		v.Release()
		return nil
	}

	type converted struct {
		to  dflow.Socket
		val values.Value
	}
	var convertedTargets []converted
	var sameTypeTargets []dflow.Socket

	for _, p := range kept {
		cur := v
		changed := false
		for i, sock := range p {
			isFinal := i == len(p)-1
			if !e.needsConversionCheck(sock, isFinal) {
				continue
			}
			target := e.graph.SocketType(sock)
			if target == nil || cur.Type == nil || cur.Type.Name() == target.Name() {
				continue
			}
			if err := e.lim.Acquire(ctx, 1); err != nil {
				return err
			}
			next, ok := values.Convert(cur, target)
			e.lim.Release(1)
			if !ok && e.config.Logger != nil {
				e.config.Logger.LogDebug("dflow: %v cannot convert value from %v to %v, using %v's default",
					sock, cur.Type.Name(), target.Name(), target.Name())
			}
			if changed {
				cur.Release()
			}
			cur = next
			changed = true
		}
		if changed {
			convertedTargets = append(convertedTargets, converted{to: p.Target(), val: cur})
		} else {
			for k := 0; k < deliveries[p.Target()]; k++ {
				sameTypeTargets = append(sameTypeTargets, p.Target())
			}
		}
	}

	for _, c := range convertedTargets {
		for k := 1; k < deliveries[c.to]; k++ {
			e.addValueToInputSocket(c.to, from, c.val.Clone(), rs)
		}
		e.addValueToInputSocket(c.to, from, c.val, rs)
	}
	e.forwardToSocketsWithSameType(sameTypeTargets, v, from, rs)
	return nil
}

// needsConversionCheck reports whether a type conversion must be
// attempted at sock along a forwarding path: always at the final
// target, and at group-output/muted-group boundary sockets along the
// way (spec.md §4.7 step 2), grounded on MOD_nodes_evaluator.cc's
// do_conversion_if_necessary condition.
func (e *Eval) needsConversionCheck(sock dflow.Socket, isFinal bool) bool {
	if isFinal {
		return true
	}
	switch e.graph.Kind(sock.Node) {
	case dflow.KindGroupOutput, dflow.KindMutedGroup:
		return true
	default:
		return false
	}
}

// shouldForwardToSocket reports whether to is still interested in a
// forwarded value: it is not forwarded to an input already marked
// Unused. Grounded on MOD_nodes_evaluator.cc's should_forward_to_socket.
func (e *Eval) shouldForwardToSocket(to dflow.Socket) bool {
	st, ok := e.nodes[to.Node]
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.inputs[to.Index].usage != usageUnused
}

// forwardToSocketsWithSameType delivers v, unconverted, to every socket
// in to: released if there are none, moved if there is exactly one,
// cloned for all but the last if there is more than one. Grounded on
// MOD_nodes_evaluator.cc's forward_to_sockets_with_same_type.
func (e *Eval) forwardToSocketsWithSameType(to []dflow.Socket, v values.Value, from dflow.Socket, rs *runState) {
	switch len(to) {
	case 0:
		v.Release()
	case 1:
		e.addValueToInputSocket(to[0], from, v, rs)
	default:
		for _, sock := range to[1:] {
			e.addValueToInputSocket(sock, from, v.Clone(), rs)
		}
		e.addValueToInputSocket(to[0], from, v, rs)
	}
}

// addValueToInputSocket deposits value into socket's slot (single or
// one cell of a multi-input), and schedules its node once every
// Required input has been provided. Grounded on
// MOD_nodes_evaluator.cc's add_value_to_input_socket.
func (e *Eval) addValueToInputSocket(socket, origin dflow.Socket, value values.Value, rs *runState) {
	st := e.state(socket.Node)
	e.withLockedNode(socket.Node, st, rs, func(ln *lockedNode) {
		slot := &ln.state.inputs[socket.Index]
		if slot.isMulti() {
			slot.multi.addValue(origin, value)
			if e.config.Logger != nil && slot.multi.allAvailable() {
				e.config.Logger.LogMultiInput(socket, slot.multi.orderedValues())
			}
		} else {
			slot.single.value = value
			slot.single.set = true
			if e.config.Logger != nil {
				e.config.Logger.LogValue(socket, value)
			}
		}
		if slot.usage == usageRequired {
			ln.state.missingRequiredCount--
			if ln.state.missingRequiredCount == 0 {
				e.scheduleNode(ln)
			}
		}
	})
}
