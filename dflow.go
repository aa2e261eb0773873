// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dflow defines the capability interfaces that the evaluator in
// package eval consumes from the graph and type systems, plus the
// request/result types of one evaluation. The graph itself (the set of
// nodes, sockets, types and edges) is assumed given and immutable for
// the duration of one evaluation; this package never mutates it.
package dflow

import (
	"context"
	"fmt"
	"time"

	"github.com/nodedag/dflow/values"
)

// NodeHandle identifies a node stably across one evaluation. Graph
// implementations are free to use any comparable type (an integer id,
// a pointer, a string); dflow never constructs a NodeHandle itself.
type NodeHandle = interface{}

// SocketKind distinguishes an input socket from an output socket.
type SocketKind int

const (
	SocketInput SocketKind = iota
	SocketOutput
)

func (k SocketKind) String() string {
	if k == SocketOutput {
		return "output"
	}
	return "input"
}

// Socket identifies one input or output socket of one node.
type Socket struct {
	Node  NodeHandle
	Index int
	Kind  SocketKind
}

// In returns the input socket at index i of node n.
func In(n NodeHandle, i int) Socket { return Socket{Node: n, Index: i, Kind: SocketInput} }

// Out returns the output socket at index i of node n.
func Out(n NodeHandle, i int) Socket { return Socket{Node: n, Index: i, Kind: SocketOutput} }

// IsOutput reports whether s is an output socket.
func (s Socket) IsOutput() bool { return s.Kind == SocketOutput }

// IsInput reports whether s is an input socket.
func (s Socket) IsInput() bool { return s.Kind == SocketInput }

func (s Socket) String() string {
	return fmt.Sprintf("%v.%s[%d]", s.Node, s.Kind, s.Index)
}

// NodeKind identifies the execution flavor of a node (§6).
type NodeKind int

const (
	// KindCallback dispatches to a custom node callback.
	KindCallback NodeKind = iota
	// KindMultiFunction dispatches to a pure, columnar multi-function,
	// lifted over fields when any input is itself a field (§4.10).
	KindMultiFunction
	// KindUnknown has no known execution; the evaluator forwards
	// default-constructed values for all of its outputs (§4.12).
	KindUnknown
	// KindGroupInput is a group boundary node supplying caller-provided
	// starting values (§4.2).
	KindGroupInput
	// KindGroupOutput is a group boundary node whose input sockets are
	// extraction points; forwarding treats it as a conversion boundary
	// (§4.7).
	KindGroupOutput
	// KindMutedGroup is a passthrough group node; forwarding treats its
	// sockets as a conversion boundary but it performs no computation of
	// its own.
	KindMutedGroup
)

func (k NodeKind) String() string {
	switch k {
	case KindCallback:
		return "callback"
	case KindMultiFunction:
		return "multifunction"
	case KindUnknown:
		return "unknown"
	case KindGroupInput:
		return "group-input"
	case KindGroupOutput:
		return "group-output"
	case KindMutedGroup:
		return "muted-group"
	default:
		return "invalid"
	}
}

// Path is an ordered sequence of sockets from a source output socket to
// one reachable target input socket (spec §4.7): Path[0] is the source,
// Path[len(Path)-1] is the target. Interior sockets are boundary sockets
// (group-input/group-output/muted-group) at which a type conversion may
// need to be inserted even though they are not the final target.
type Path []Socket

// Target returns the final (target) socket of the path.
func (p Path) Target() Socket { return p[len(p)-1] }

// Graph is the capability interface the evaluator consumes from the
// graph layer (§6 of the specification). All methods must be safe for
// concurrent use by multiple goroutines; the graph is immutable for the
// duration of one evaluation.
type Graph interface {
	// NumInputs and NumOutputs report the number of input/output
	// sockets of a node.
	NumInputs(n NodeHandle) int
	NumOutputs(n NodeHandle) int

	// Available reports whether a socket is available (present) at all;
	// unavailable sockets are ignored entirely (§4.1).
	Available(s Socket) bool

	// SocketType returns s's declared value type, or nil if the socket
	// is control-only and should be ignored.
	SocketType(s Socket) values.Type

	// MultiInput reports whether an input socket accepts an ordered
	// collection of values from multiple origins.
	MultiInput(in Socket) bool

	// Origins returns, in declared fan-in order and preserving
	// duplicates, the origin sockets of an input socket (§4.1, §4.4).
	// Each origin is either an output socket of another node, or an
	// input socket itself (the unlinked/group-passthrough case: its
	// literal value is loaded directly rather than awaited, §4.6).
	Origins(in Socket) []Socket

	// Targets returns one Path per reachable target input socket of an
	// output socket (§4.7).
	Targets(out Socket) []Path

	// Kind reports a node's execution flavor.
	Kind(n NodeHandle) NodeKind

	// Lazy reports whether a node decides at run time which inputs it
	// needs (true), or always requires every available input (false).
	Lazy(n NodeHandle) bool

	// Callback returns the custom execution callback of a KindCallback
	// node.
	Callback(n NodeHandle) Callback

	// MultiFn returns the pure multi-function of a KindMultiFunction
	// node.
	MultiFn(n NodeHandle) values.MultiFunction
}

// Callback is a node's custom, arbitrary execution function (§2,
// component 7; §4.9 flavor a).
type Callback interface {
	Execute(ctx context.Context, params ExecParams) error
}

// ExecParams is the view into one node execution given to a Callback
// (§4.9). Inputs not yet ready for execution, and outputs not required
// for execution, must not be accessed; implementations of Callback
// consult OutputRequired/RequireInput to decide.
type ExecParams interface {
	// Input returns the ready value at input index i. i must refer to a
	// non-multi input that was ready_for_execution at preprocessing time.
	Input(i int) values.Value
	// MultiInput returns the ordered values at multi-input index i, in
	// declared origin order (§4.4).
	MultiInput(i int) []values.Value
	// SetOutput sets output index i's value for this execution.
	SetOutput(i int, v values.Value)
	// OutputRequired reports whether output i was required as of this
	// execution's usage snapshot (output_usage_for_execution, §3).
	OutputRequired(i int) bool
	// RequireInput marks input index i as Required, so that this node
	// is re-scheduled once the input becomes available (§4.9's lazy
	// voluntary-yield path).
	RequireInput(i int)
	// SetInputUnused marks input index i as definitely not needed by
	// this node.
	SetInputUnused(i int)
}

// Logger is the optional domain logger consumed per §6. All methods
// must tolerate being invoked from arbitrary worker goroutines.
type Logger interface {
	// LogValue records the value observed at a single-input or output
	// socket.
	LogValue(s Socket, v values.Value)
	// LogMultiInput records the ordered values observed at a completed
	// multi-input socket.
	LogMultiInput(s Socket, vs []values.Value)
	// LogExecutionDuration records how long one node execution took.
	LogExecutionDuration(n NodeHandle, d time.Duration)
	// LogDebug records a free-form diagnostic message, including
	// recovery from type-mismatch and missing-output errors (§7).
	LogDebug(format string, args ...interface{})
}

// Request is one evaluation request (§6), evaluated against the
// eval.Config.Graph an Eval was constructed with.
type Request struct {
	// Roots are the caller-requested input sockets to materialize
	// (§4.1, §4.3, §4.11). Each must belong to a KindGroupOutput node:
	// the evaluator never runs preprocessing/postprocessing on that node
	// kind, so a root's value survives until extraction instead of being
	// destructed the moment its owning node would otherwise finish.
	Roots []Socket
	// ForceCompute are sockets that must be computed even if no
	// downstream consumer needs them (§4.1, §4.3).
	ForceCompute []Socket
	// GroupInputs supplies caller-provided starting values for
	// group-input output sockets (§4.2).
	GroupInputs map[Socket]values.Value
}

// Result is the outcome of one evaluation request: one value per
// Request.Roots entry, in the same order (§4.11).
type Result struct {
	Values []values.Value
}
