// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dflowtest

import (
	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/values"
)

type inputSocket struct {
	typ     values.Type
	multi   bool
	origins []dflow.Socket
}

type outputSocket struct {
	typ values.Type
}

type node struct {
	kind    dflow.NodeKind
	lazy    bool
	inputs  []inputSocket
	outputs []outputSocket
	cb      dflow.Callback
	multiFn values.MultiFunction
}

// Graph is a mutable, in-memory dflow.Graph builder. It is not safe
// for concurrent use while being built, but (like any dflow.Graph) is
// safe for concurrent reads by an Eval once construction is finished.
// Grounded on test/flow's hand-built *flow.Flow graphs, recast from a
// single recursive struct into an explicit node/socket table since
// dflow.Graph's NodeHandle is an opaque comparable value, not a
// pointer into a tree.
type Graph struct {
	nodes []*node
}

// New returns an empty graph builder.
func New() *Graph { return &Graph{} }

// AddNode adds a node of the given kind and laziness, returning its
// handle. cb is consulted only for KindCallback nodes; multiFn only
// for KindMultiFunction nodes.
func (g *Graph) AddNode(kind dflow.NodeKind, lazy bool, cb dflow.Callback, multiFn values.MultiFunction) dflow.NodeHandle {
	g.nodes = append(g.nodes, &node{kind: kind, lazy: lazy, cb: cb, multiFn: multiFn})
	return len(g.nodes) - 1
}

func (g *Graph) node(n dflow.NodeHandle) *node { return g.nodes[n.(int)] }

// AddInput appends a new input socket of type typ (multi-valued if
// multi) to node n and returns its socket.
func (g *Graph) AddInput(n dflow.NodeHandle, typ values.Type, multi bool) dflow.Socket {
	nd := g.node(n)
	nd.inputs = append(nd.inputs, inputSocket{typ: typ, multi: multi})
	return dflow.In(n, len(nd.inputs)-1)
}

// AddOutput appends a new output socket of type typ to node n and
// returns its socket.
func (g *Graph) AddOutput(n dflow.NodeHandle, typ values.Type) dflow.Socket {
	nd := g.node(n)
	nd.outputs = append(nd.outputs, outputSocket{typ: typ})
	return dflow.Out(n, len(nd.outputs)-1)
}

// Connect appends from as one more origin of input socket to (spec.md
// §4.1/§4.4: an input may have more than one origin, the same origin
// may occur more than once). from may be an output socket of another
// node, or to itself (the unlinked/self-origin case).
func (g *Graph) Connect(from, to dflow.Socket) {
	nd := g.node(to.Node)
	in := &nd.inputs[to.Index]
	in.origins = append(in.origins, from)
}

// NumInputs implements dflow.Graph.
func (g *Graph) NumInputs(n dflow.NodeHandle) int { return len(g.node(n).inputs) }

// NumOutputs implements dflow.Graph.
func (g *Graph) NumOutputs(n dflow.NodeHandle) int { return len(g.node(n).outputs) }

// Available implements dflow.Graph: every socket added via
// AddInput/AddOutput is available.
func (g *Graph) Available(s dflow.Socket) bool {
	nd := g.node(s.Node)
	if s.IsInput() {
		return s.Index < len(nd.inputs)
	}
	return s.Index < len(nd.outputs)
}

// SocketType implements dflow.Graph.
func (g *Graph) SocketType(s dflow.Socket) values.Type {
	nd := g.node(s.Node)
	if s.IsInput() {
		return nd.inputs[s.Index].typ
	}
	return nd.outputs[s.Index].typ
}

// MultiInput implements dflow.Graph.
func (g *Graph) MultiInput(in dflow.Socket) bool {
	return g.node(in.Node).inputs[in.Index].multi
}

// Origins implements dflow.Graph.
func (g *Graph) Origins(in dflow.Socket) []dflow.Socket {
	return g.node(in.Node).inputs[in.Index].origins
}

// Targets implements dflow.Graph by scanning every input socket in the
// graph for one whose Origins() includes out, walking forward through
// KindMutedGroup pass-through nodes (spec.md §4.7's boundary sockets).
// This full scan is adequate for the small graphs built by tests; a
// real Graph implementation would maintain a forward index instead.
func (g *Graph) Targets(out dflow.Socket) []dflow.Path {
	var paths []dflow.Path
	g.walkTargets(out, dflow.Path{out}, &paths, map[dflow.Socket]bool{})
	return paths
}

func (g *Graph) walkTargets(out dflow.Socket, prefix dflow.Path, paths *[]dflow.Path, visited map[dflow.Socket]bool) {
	if visited[out] {
		return
	}
	visited[out] = true
	for ni, nd := range g.nodes {
		for ii, in := range nd.inputs {
			for _, origin := range in.origins {
				if origin != out {
					continue
				}
				to := dflow.In(ni, ii)
				path := make(dflow.Path, len(prefix), len(prefix)+1)
				copy(path, prefix)
				path = append(path, to)
				*paths = append(*paths, path)
				if nd.kind == dflow.KindMutedGroup && ii < len(nd.outputs) {
					g.walkTargets(dflow.Out(ni, ii), path, paths, visited)
				}
			}
		}
	}
}

// Kind implements dflow.Graph.
func (g *Graph) Kind(n dflow.NodeHandle) dflow.NodeKind { return g.node(n).kind }

// Lazy implements dflow.Graph.
func (g *Graph) Lazy(n dflow.NodeHandle) bool { return g.node(n).lazy }

// Callback implements dflow.Graph.
func (g *Graph) Callback(n dflow.NodeHandle) dflow.Callback { return g.node(n).cb }

// MultiFn implements dflow.Graph.
func (g *Graph) MultiFn(n dflow.NodeHandle) values.MultiFunction { return g.node(n).multiFn }
