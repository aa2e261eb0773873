// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dot renders a dataflow evaluation's reachable node set to
// Graphviz, for debugging (spec.md §6's optional DotWriter hook).
// Grounded on flow/dot.go and flow/eval.go's flowgraph/DotWriter
// handling.
package dot

import (
	"fmt"

	"github.com/nodedag/dflow"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	gdot "gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// NodeState summarizes one reachable node's current schedule status
// for rendering. Supplied by package eval (Eval.dotSnapshot), which is
// the only thing that knows a node's current nodeState.
type NodeState struct {
	Running  bool
	Finished bool
}

// node adapts a dflow.NodeHandle plus its rendering state to gonum's
// graph.Node and encoding.Attributer, grounded on flow/dot.go's Node.
type node struct {
	id    int64
	label string
	state NodeState
}

func (n node) ID() int64      { return n.id }
func (n node) DOTID() string  { return n.label }
func (n node) Attributes() []encoding.Attribute {
	switch {
	case n.state.Finished:
		return []encoding.Attribute{
			{Key: "style", Value: "filled"},
			{Key: "fillcolor", Value: "green"},
		}
	case n.state.Running:
		return []encoding.Attribute{
			{Key: "style", Value: "filled"},
			{Key: "fillcolor", Value: "yellow"},
		}
	default:
		return nil
	}
}

// Render walks every node named in states, draws an edge for every
// input whose origin is also in states, and marshals the result to
// Graphviz dot format. Grounded on flow/dot.go's printDeps plus
// flow/eval.go's simple.NewDirectedGraph()/dot.Marshal(e.flowgraph, ...).
func Render(g dflow.Graph, states map[dflow.NodeHandle]NodeState, name string) ([]byte, error) {
	fg := simple.NewDirectedGraph()

	ids := make(map[dflow.NodeHandle]int64, len(states))
	nodes := make(map[dflow.NodeHandle]node, len(states))
	var next int64
	for n, st := range states {
		next++
		ids[n] = next
		nd := node{id: next, label: fmt.Sprintf("%v [%s]", n, g.Kind(n)), state: st}
		nodes[n] = nd
		fg.AddNode(nd)
	}

	for n := range states {
		to := nodes[n]
		for i := 0; i < g.NumInputs(n); i++ {
			in := dflow.In(n, i)
			if !g.Available(in) {
				continue
			}
			for _, origin := range g.Origins(in) {
				if !origin.IsOutput() {
					continue
				}
				from, ok := nodes[origin.Node]
				if !ok || from.id == to.id {
					continue
				}
				if fg.HasEdgeBetween(from.ID(), to.ID()) {
					continue
				}
				fg.SetEdge(fg.NewEdge(graph.Node(from), graph.Node(to)))
			}
		}
	}

	return gdot.Marshal(fg, name, "", "  ")
}
