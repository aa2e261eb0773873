// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval

import (
	"context"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

// executeMultiFunctionNode runs a node's pure multi-function (spec.md
// §4.10): directly over scalar values when none of its ready inputs is
// a Field, or lifted into a new Field-producing operation, without
// materializing anything eagerly, when at least one is. Grounded on
// MOD_nodes_evaluator.cc's execute_multi_function_node.
func (e *Eval) executeMultiFunctionNode(ctx context.Context, n dflow.NodeHandle, st *nodeState, rs *runState) error {
	fn := e.graph.MultiFn(n)
	if fn == nil {
		return e.executeUnknownNode(ctx, n, st, rs)
	}

	args := make([]values.Value, 0, len(st.inputs))
	anyField := false
	for i := range st.inputs {
		slot := &st.inputs[i]
		if slot.typ == nil {
			continue
		}
		v := slot.single.value
		args = append(args, v)
		if _, ok := values.AsField(v); ok {
			anyField = true
		}
	}

	var results []values.Value
	if anyField {
		fields, err := fn.Lift(args)
		if err != nil {
			return err
		}
		results = make([]values.Value, len(fields))
		for i, f := range fields {
			results[i] = wrapField(st.outputs[i].typ, f)
		}
	} else {
		raw := make([]values.T, len(args))
		for i, a := range args {
			raw[i] = a.Data
		}
		out, err := fn.Call(ctx, raw)
		if err != nil {
			return err
		}
		results = make([]values.Value, len(out))
		for i, data := range out {
			results[i] = values.Value{Type: st.outputs[i].typ, Data: data}
		}
	}

	for i, v := range results {
		out := &st.outputs[i]
		if out.typ == nil || out.computed {
			continue
		}
		out.value = v
		out.computed = true
		if e.config.Logger != nil {
			e.config.Logger.LogValue(dflow.Out(n, i), v)
		}
		if err := e.forwardOutput(ctx, dflow.Out(n, i), v.Clone(), rs); err != nil {
			return err
		}
	}
	return nil
}

// wrapField wraps a lifted Field f as a Value of the field-carrier
// counterpart of scalarType, falling back to scalarType itself when it
// is already field-capable (spec.md §4.10).
func wrapField(scalarType values.Type, f values.Field) values.Value {
	if scalarType == nil {
		return values.Value{}
	}
	if scalarType.IsFieldType() {
		return values.Value{Type: scalarType, Data: f}
	}
	if p, ok := scalarType.(values.FieldTypeProvider); ok {
		if ft := p.FieldType(); ft != nil {
			return values.Value{Type: ft, Data: f}
		}
	}
	return values.Value{Type: scalarType, Data: f}
}
