// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eval_test

import (
	"context"
	"testing"

	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/dflowtest"
	"github.com/nodedag/dflow/eval"
)

func mustRun(t *testing.T, g dflow.Graph, req dflow.Request) *dflow.Result {
	t.Helper()
	e := eval.New(eval.Config{Graph: g})
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// TestStraightLine covers spec.md §8's A->B->C scenario: a chain of
// three non-lazy nodes, each computed exactly once, in order.
func TestStraightLine(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.Constant(1)
	_, inB, outB := g.AddConst(10)
	_, inC, outC := g.AddConst(100)
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, inB)
	g.Connect(outB, inC)
	g.Connect(outC, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 111 {
		t.Fatalf("got %d, want 111", got)
	}
}

// TestFanOutMultiInput covers spec.md §8's fan-out/multi-input
// scenario: a Sum node's multi-input must receive every origin's
// value. Declared origin order is checked separately, with Concat, by
// TestMultiInputOrderPreserved.
func TestFanOutMultiInput(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.Constant(1)
	_, outB := g.Constant(2)
	_, outC := g.Constant(3)
	_, sumIn, sumOut := g.Sum()
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, sumIn)
	g.Connect(outB, sumIn)
	g.Connect(outC, sumIn)
	g.Connect(sumOut, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
}

// TestMultiInputOrderPreserved builds a three-way fan-in of strings
// and confirms Concat's output reflects declared origin order (spec.md
// §4.4), independent of the order in which the pool happens to finish
// the origin nodes' work.
func TestMultiInputOrderPreserved(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.ConstantString("a")
	_, outB := g.ConstantString("b")
	_, outC := g.ConstantString("c")
	_, in, out := g.Concat("")
	_, sinkIn := g.Sink(dflowtest.StringType)
	g.Connect(outA, in)
	g.Connect(outB, in)
	g.Connect(outC, in)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(string); got != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
}

// TestDuplicateMultiInputOrigin covers spec.md §4.4's duplicate-origin
// case: the same output connected twice to the same multi-input must
// fill two distinct ordered slots, not overwrite one another.
func TestDuplicateMultiInputOrigin(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.Constant(5)
	_, in, out := g.Sum()
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, in)
	g.Connect(outA, in)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 10 {
		t.Fatalf("got %d, want 10 (5 counted twice)", got)
	}
}

// TestUnusedBranchNeverComputed covers spec.md §4.6/§8: requesting
// only one output of a two-output node must not compute the other,
// and the shared input must still reach the output that was
// requested.
func TestUnusedBranchNeverComputed(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.Constant(21)
	_, in, out0, out1 := g.Splitter()
	_, in1, out1Chain := g.AddConst(0)
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, in)
	g.Connect(out1, in1)
	g.Connect(out1Chain, sinkIn)
	_ = out0

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 42 {
		t.Fatalf("got %d, want 42 (21 doubled)", got)
	}
}

// TestLazySelectorYieldsAndRerun covers spec.md §4.9/§8's lazy
// voluntary-yield scenario: a Selector node runs three times (a first
// run, then one more after each of its two RequireInput calls is
// satisfied), never touches the branch it marks
// Unused, and forwards only the chosen branch's value.
func TestLazySelectorYieldsAndRerun(t *testing.T) {
	g := dflowtest.New()
	_, selOut := g.Constant(1) // choose branch b
	_, aOut := g.Constant(111)
	_, bOut := g.Constant(222)
	_, sel, a, b, out := g.Selector()
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(selOut, sel)
	g.Connect(aOut, a)
	g.Connect(bOut, b)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 222 {
		t.Fatalf("got %d, want 222", got)
	}
}

// TestMultiFunctionScalarCall covers spec.md §4.10's non-lifted branch:
// a KindMultiFunction node whose inputs are both plain scalars is
// invoked directly via MultiFunction.Call, not Lift.
func TestMultiFunctionScalarCall(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.Constant(3)
	_, outB := g.Constant(4)
	_, inA, inB, out := g.SumFn()
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, inA)
	g.Connect(outB, inB)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

// TestMultiFunctionFieldLift covers spec.md §4.10's lifted branch: a
// KindMultiFunction node with one Field-typed input is invoked via
// MultiFunction.Lift instead of Call, broadcasting its plain scalar
// input across the field, and its scalar-declared output is wrapped as
// a Field by wrapField's FieldTypeProvider path.
func TestMultiFunctionFieldLift(t *testing.T) {
	g := dflowtest.New()
	_, fieldOut := g.FieldConstant([]int{1, 2, 3})
	_, scalarOut := g.Constant(10)
	_, inField, inScalar, out := g.SumFieldFn()
	_, sinkIn := g.Sink(dflowtest.IntFieldType)
	g.Connect(fieldOut, inField)
	g.Connect(scalarOut, inScalar)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	got := res.Values[0].Data.(dflowtest.IntField).Data
	want := []int{11, 12, 13}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

// TestTypeMismatchRecoversToDefault covers spec.md §4.12/§7: a
// converted value that cannot actually convert falls back to the
// target type's default rather than propagating an error.
func TestTypeMismatchRecoversToDefault(t *testing.T) {
	g := dflowtest.New()
	_, outA := g.ConstantString("not-a-number")
	_, in, out := g.AddConst(1)
	_, sinkIn := g.Sink(dflowtest.IntType)
	g.Connect(outA, in)
	g.Connect(out, sinkIn)

	res := mustRun(t, g, dflow.Request{Roots: []dflow.Socket{sinkIn}})
	if got := res.Values[0].Data.(int); got != 1 {
		t.Fatalf("got %d, want 1 (0 default + 1)", got)
	}
}

// TestForceCompute covers spec.md §4.1/§4.3: a force-compute socket
// with no downstream consumer must still be materialized.
func TestForceCompute(t *testing.T) {
	g := dflowtest.New()
	_, in, out := g.AddConst(1)
	_, outA := g.Constant(41)
	g.Connect(outA, in)

	req := dflow.Request{ForceCompute: []dflow.Socket{out}}
	e := eval.New(eval.Config{Graph: g})
	if _, err := e.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestChainingDisabledMatchesEnabled confirms correctness does not
// depend on the single-candidate chaining optimization of spec.md
// §4.8 (P-series invariants hold either way).
func TestChainingDisabledMatchesEnabled(t *testing.T) {
	build := func() (dflow.Graph, dflow.Socket) {
		g := dflowtest.New()
		_, outA := g.Constant(2)
		_, inB, outB := g.AddConst(3)
		_, inC, outC := g.AddConst(4)
		_, sinkIn := g.Sink(dflowtest.IntType)
		g.Connect(outA, inB)
		g.Connect(outB, inC)
		g.Connect(outC, sinkIn)
		return g, sinkIn
	}

	g1, root1 := build()
	e1 := eval.New(eval.Config{Graph: g1})
	res1, err := e1.Run(context.Background(), dflow.Request{Roots: []dflow.Socket{root1}})
	if err != nil {
		t.Fatalf("Run (chaining enabled): %v", err)
	}

	g2, root2 := build()
	e2 := eval.New(eval.Config{Graph: g2, ChainingDisabled: true})
	res2, err := e2.Run(context.Background(), dflow.Request{Roots: []dflow.Socket{root2}})
	if err != nil {
		t.Fatalf("Run (chaining disabled): %v", err)
	}

	if res1.Values[0].Data.(int) != res2.Values[0].Data.(int) {
		t.Fatalf("chaining changed the result: %v vs %v", res1.Values[0].Data, res2.Values[0].Data)
	}
}
