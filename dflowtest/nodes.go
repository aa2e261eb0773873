// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dflowtest

import (
	"context"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

// CallbackFunc adapts a plain function to dflow.Callback, in the
// spirit of http.HandlerFunc.
type CallbackFunc func(ctx context.Context, params dflow.ExecParams) error

// Execute implements dflow.Callback.
func (f CallbackFunc) Execute(ctx context.Context, params dflow.ExecParams) error {
	return f(ctx, params)
}

// Constant adds a non-lazy, no-input node whose single int output is
// always v. Grounded on test/flow's Val constructor (a fixed,
// already-known value standing in for a computed one).
func (g *Graph) Constant(v int) (n dflow.NodeHandle, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	out = g.AddOutput(n, IntType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		p.SetOutput(0, mkIntValue(v))
		return nil
	})
	return n, out
}

// ConstantString adds a non-lazy, no-input node whose single string
// output is always v, the string counterpart of Constant.
func (g *Graph) ConstantString(v string) (n dflow.NodeHandle, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	out = g.AddOutput(n, StringType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		p.SetOutput(0, mkStringValue(v))
		return nil
	})
	return n, out
}

// Sink adds a group-output-kind node with a single input of typ and no
// outputs, used by tests to turn an output socket under observation
// into a Request.Roots-eligible input socket (Roots names input
// sockets only, spec.md §4.11). Like any KindGroupOutput node it is
// never itself scheduled for execution (eval/scheduler.go's
// nodeTaskRun returns immediately for group boundary node kinds), so
// its Required input is never destructed by finish_node_if_possible
// before Run extracts it — grounded on MOD_nodes_evaluator.cc's
// is_group_output_node() exemption in node_task_run.
func (g *Graph) Sink(typ values.Type) (n dflow.NodeHandle, in dflow.Socket) {
	n = g.AddNode(dflow.KindGroupOutput, false, nil, nil)
	in = g.AddInput(n, typ, false)
	return n, in
}

// AddConst adds a non-lazy node with one int input and one int output
// equal to input+delta, for building straight-line chains (spec.md
// §8's A->B->C scenario).
func (g *Graph) AddConst(delta int) (n dflow.NodeHandle, in, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	in = g.AddInput(n, IntType, false)
	out = g.AddOutput(n, IntType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		v := p.Input(0).Data.(int)
		p.SetOutput(0, mkIntValue(v+delta))
		return nil
	})
	return n, in, out
}

// Sum adds a non-lazy node with one multi-valued int input and one
// int output equal to the sum of its ordered values, for exercising
// fan-in (spec.md §4.4).
func (g *Graph) Sum() (n dflow.NodeHandle, in, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	in = g.AddInput(n, IntType, true)
	out = g.AddOutput(n, IntType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		sum := 0
		for _, v := range p.MultiInput(0) {
			sum += v.Data.(int)
		}
		p.SetOutput(0, mkIntValue(sum))
		return nil
	})
	return n, in, out
}

// Concat adds a non-lazy node with one multi-valued string input and
// one string output equal to its ordered values joined with sep, for
// exercising multi-input ordering (spec.md §4.4) with an
// order-sensitive operation.
func (g *Graph) Concat(sep string) (n dflow.NodeHandle, in, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	in = g.AddInput(n, StringType, true)
	out = g.AddOutput(n, StringType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		s := ""
		for i, v := range p.MultiInput(0) {
			if i > 0 {
				s += sep
			}
			s += v.Data.(string)
		}
		p.SetOutput(0, mkStringValue(s))
		return nil
	})
	return n, in, out
}

// Selector adds a lazy node with a selector input and two data inputs
// (a, b): on its first run it requires only the selector; once the
// selector is ready, it requires whichever of a/b it names and marks
// the other unused; once the chosen input is ready, it forwards it as
// its single output. This exercises the voluntary-yield re-entry path
// of spec.md §4.9 (ExecParams.RequireInput/SetInputUnused) and the
// lazy branch of the usage lattice (spec.md §3).
//
// The node tracks its own progress across executions with a phase
// variable captured in its closure, rather than probing an input
// before RequireInput has confirmed it ready, per ExecParams's
// contract. This relies on invariant I2 (a node's Execute is never
// entered concurrently with itself), and means a Selector node built
// by one Graph must not be reused across more than one Eval.Run.
func (g *Graph) Selector() (n dflow.NodeHandle, selector, a, b, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, true, nil, nil)
	selector = g.AddInput(n, IntType, false)
	a = g.AddInput(n, IntType, false)
	b = g.AddInput(n, IntType, false)
	out = g.AddOutput(n, IntType)

	const (
		phaseNeedSelector = iota
		phaseHaveSelector
		phaseNeedA
		phaseNeedB
	)
	phase := phaseNeedSelector

	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		switch phase {
		case phaseNeedSelector:
			p.RequireInput(0)
			phase = phaseHaveSelector
		case phaseHaveSelector:
			if p.Input(0).Data.(int) == 0 {
				p.SetInputUnused(2)
				p.RequireInput(1)
				phase = phaseNeedA
			} else {
				p.SetInputUnused(1)
				p.RequireInput(2)
				phase = phaseNeedB
			}
		case phaseNeedA:
			p.SetOutput(0, mkIntValue(p.Input(1).Data.(int)))
		case phaseNeedB:
			p.SetOutput(0, mkIntValue(p.Input(2).Data.(int)))
		}
		return nil
	})
	return n, selector, a, b, out
}

// Splitter adds a non-lazy node with one int input and two int
// outputs (the input value, and the input value doubled), for
// exercising the unused-output/unused-input propagation of spec.md
// §4.6: a request for only one of its outputs must mark the other
// Unused without ever computing it, without releasing the shared
// input the computed output still needs.
func (g *Graph) Splitter() (n dflow.NodeHandle, in, out0, out1 dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	in = g.AddInput(n, IntType, false)
	out0 = g.AddOutput(n, IntType)
	out1 = g.AddOutput(n, IntType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		v := p.Input(0).Data.(int)
		if p.OutputRequired(0) {
			p.SetOutput(0, mkIntValue(v))
		}
		if p.OutputRequired(1) {
			p.SetOutput(1, mkIntValue(v*2))
		}
		return nil
	})
	return n, in, out0, out1
}

// CountingPassthrough adds a non-lazy node with one int input and one
// int output equal to the input, recording how many times it executed
// in *count (not safe for concurrent execution of the SAME node, which
// invariant I2 rules out in any case).
func (g *Graph) CountingPassthrough(count *int) (n dflow.NodeHandle, in, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	in = g.AddInput(n, IntType, false)
	out = g.AddOutput(n, IntType)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		*count++
		p.SetOutput(0, mkIntValue(p.Input(0).Data.(int)))
		return nil
	})
	return n, in, out
}

func mkIntValue(v int) values.Value {
	return values.Value{Type: IntType, Data: v}
}

func mkStringValue(v string) values.Value {
	return values.Value{Type: StringType, Data: v}
}

// FieldConstant adds a non-lazy, no-input node whose single output is
// always the same IntField, standing in for a real lazily-computed
// column. Used to feed a genuine Field value into a downstream
// multi-function node (spec.md §4.10).
func (g *Graph) FieldConstant(data []int) (n dflow.NodeHandle, out dflow.Socket) {
	n = g.AddNode(dflow.KindCallback, false, nil, nil)
	out = g.AddOutput(n, IntFieldType)
	cp := append([]int(nil), data...)
	g.node(n).cb = CallbackFunc(func(ctx context.Context, p dflow.ExecParams) error {
		p.SetOutput(0, values.Value{Type: IntFieldType, Data: IntField{Data: cp}})
		return nil
	})
	return n, out
}

// sumIntsFn is a values.MultiFunction summing its arguments, used to
// exercise both branches of eval/multifn.go's executeMultiFunctionNode:
// Call on plain scalars, Lift when at least one argument is a Field
// (broadcasting any plain scalar argument across the field's length).
type sumIntsFn struct{}

func (sumIntsFn) NumOutputs() int { return 1 }

func (sumIntsFn) Call(ctx context.Context, args []values.T) ([]values.T, error) {
	sum := 0
	for _, a := range args {
		sum += a.(int)
	}
	return []values.T{sum}, nil
}

func (sumIntsFn) Lift(args []values.Value) ([]values.Field, error) {
	length := 1
	for _, a := range args {
		if f, ok := values.AsField(a); ok {
			if n := len(f.(IntField).Data); n > length {
				length = n
			}
		}
	}
	out := make([]int, length)
	for _, a := range args {
		if f, ok := values.AsField(a); ok {
			data := f.(IntField).Data
			for j := 0; j < length && j < len(data); j++ {
				out[j] += data[j]
			}
			continue
		}
		scalar := a.Data.(int)
		for j := 0; j < length; j++ {
			out[j] += scalar
		}
	}
	return []values.Field{IntField{Data: out}}, nil
}

// SumFn adds a KindMultiFunction node with two plain int inputs and one
// int output equal to their sum, computed via sumIntsFn.Call since
// neither input is ever a Field (spec.md §4.10's non-lifted branch).
func (g *Graph) SumFn() (n dflow.NodeHandle, inA, inB, out dflow.Socket) {
	n = g.AddNode(dflow.KindMultiFunction, false, nil, sumIntsFn{})
	inA = g.AddInput(n, IntType, false)
	inB = g.AddInput(n, IntType, false)
	out = g.AddOutput(n, IntType)
	return n, inA, inB, out
}

// SumFieldFn adds a KindMultiFunction node with one Field-typed input
// and one plain int input, summed via sumIntsFn.Lift since the Field
// input makes it ineligible for the plain Call path (spec.md §4.10's
// lifted branch); the output is declared IntType and wrapped as
// IntFieldType by wrapField via IntType's FieldTypeProvider.
func (g *Graph) SumFieldFn() (n dflow.NodeHandle, field, scalar, out dflow.Socket) {
	n = g.AddNode(dflow.KindMultiFunction, false, nil, sumIntsFn{})
	field = g.AddInput(n, IntFieldType, false)
	scalar = g.AddInput(n, IntType, false)
	out = g.AddOutput(n, IntType)
	return n, field, scalar, out
}
