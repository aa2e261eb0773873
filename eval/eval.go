// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package eval implements the lazy, parallel, pull-based dataflow
// evaluator of spec.md: per-socket and per-node state, the locked-node
// discipline, usage propagation, value forwarding, the scheduler state
// machine and task pool, node execution and multi-function lifting, and
// the driver that ties reachability, initialization and extraction
// together.
package eval

import (
	"io"
	"runtime"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/status"
	"github.com/nodedag/dflow"
	"github.com/nodedag/dflow/log"
)

// Config configures an Eval. Graph is required; every other field is
// optional and has a zero-value-safe default, following the teacher's
// EvalConfig pattern in flow/eval.go.
type Config struct {
	// Graph is the graph to evaluate. Required.
	Graph dflow.Graph
	// Workers bounds the task pool's concurrency. Defaults to
	// runtime.GOMAXPROCS(0).
	Workers int
	// Logger is the caller-supplied domain logger of spec.md §6. May be
	// nil.
	Logger dflow.Logger
	// Log is this package's own internal diagnostic logger, distinct
	// from Logger. May be nil, in which case diagnostics are discarded.
	Log *log.Logger
	// DotWriter, if non-nil, receives a Graphviz rendering of the
	// reachable node set after each Run (see package eval/dot).
	DotWriter io.Writer
	// Status, if non-nil, receives live progress reporting (see
	// status.go).
	Status *status.Group
	// ConversionLimiter bounds the number of concurrent cross-type
	// conversions performed while forwarding values. Defaults to a
	// limiter with runtime.NumCPU() permits.
	ConversionLimiter *limiter.Limiter
	// ChainingDisabled forces every node schedule through the task pool
	// instead of the single-candidate chaining optimization of spec.md
	// §4.8; it exists so tests can confirm correctness does not depend
	// on chaining (spec.md §9).
	ChainingDisabled bool
}

func (c *Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c *Config) logger() *log.Logger {
	return c.Log
}

func (c *Config) limiter() *limiter.Limiter {
	if c.ConversionLimiter != nil {
		return c.ConversionLimiter
	}
	lim := limiter.New()
	lim.Release(runtime.NumCPU())
	return lim
}

// Eval evaluates one or more requests against a fixed Config.Graph. An
// Eval is not safe for concurrent Run calls; construct a fresh Eval (or
// serialize calls to Run) for overlapping evaluations.
type Eval struct {
	config Config
	graph  dflow.Graph
	log    *log.Logger
	lim    *limiter.Limiter

	nodes map[dflow.NodeHandle]*nodeState

	pool *pool
}

// New constructs an Eval from cfg. cfg.Graph must be non-nil.
func New(cfg Config) *Eval {
	if cfg.Graph == nil {
		panic("dflow/eval: Config.Graph is required")
	}
	return &Eval{
		config: cfg,
		graph:  cfg.Graph,
		log:    cfg.logger(),
		lim:    cfg.limiter(),
	}
}

func (e *Eval) state(n dflow.NodeHandle) *nodeState {
	st, ok := e.nodes[n]
	if !ok {
		panic("dflow/eval: node not reachable in this evaluation")
	}
	return st
}
