// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizer rewrites a graph.Graph into an equivalent, cheaper one, before it is lowered for a backend.
//
// It provides dead code elimination (DCE), local rewrite passes (SinkCode, OptimizePool, FoldBatchNorm)
// and the driver that sequences them according to a CompilationMode (Optimize and OptimizeWithOptions).
//
// Passes either rewrite a pattern or leave the node alone: a pattern that doesn't match is the normal case,
// and it is silent. Malformed graphs are contract violations and panic (see package graph).
package optimizer

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Names of the passes, as used in Options.DisabledPasses and Stats.Rewrites.
const (
	PassSinkCode      = "sink-code"
	PassOptimizePool  = "optimize-pool"
	PassFoldBatchNorm = "fold-batchnorm"
	PassDCE           = "dce"
)

// PassNames lists all the passes, in the order the driver runs them.
var PassNames = []string{PassSinkCode, PassOptimizePool, PassDCE, PassFoldBatchNorm}

// Pass is a graph-to-graph transformation.
type Pass interface {
	// Name of the pass.
	Name() string

	// Run the pass over the graph, and return the number of changes made.
	Run(g *graph.Graph) int
}

// funcPass implements a Pass with a function.
type funcPass struct {
	name string
	fn   func(g *graph.Graph) int
}

func (p funcPass) Name() string           { return p.name }
func (p funcPass) Run(g *graph.Graph) int { return p.fn(g) }

var (
	// SinkCodePass runs SinkCode.
	SinkCodePass Pass = funcPass{PassSinkCode, SinkCode}

	// OptimizePoolPass runs OptimizePool.
	OptimizePoolPass Pass = funcPass{PassOptimizePool, OptimizePool}

	// FoldBatchNormPass runs FoldBatchNorm.
	FoldBatchNormPass Pass = funcPass{PassFoldBatchNorm, FoldBatchNorm}
)

// NewDCEPass returns a Pass that runs DCE with the given policy.
func NewDCEPass(policy VariablePolicy) Pass {
	return &dcePass{policy: policy}
}

// Stats reports what the driver did.
type Stats struct {
	// Rewrites per pass name. For the DCE pass, the number of nodes and variables removed.
	Rewrites map[string]int

	// RemovedNodes and RemovedVariables by all DCE runs.
	RemovedNodes, RemovedVariables int

	// NodesBefore and NodesAfter are the number of operation nodes before and after optimizing.
	NodesBefore, NodesAfter int
}

// Optimize the graph for the given mode, with the default options.
func Optimize(g *graph.Graph, mode CompilationMode) Stats {
	opts := DefaultOptions()
	opts.Mode = mode
	stats, err := OptimizeWithOptions(g, opts)
	if err != nil {
		exceptions.Panicf("Optimize(%q, %s): %+v", g.Name(), mode, err)
	}
	return stats
}

// OptimizeWithOptions optimizes the graph in place. The sequence is:
//
//  1. SinkCode: run up to opts.SinkIterations times, while it changes something.
//  2. OptimizePool.
//  3. DCE.
//  4. FoldBatchNorm, only in Infer mode.
//  5. DCE again, for the batch normalizations orphaned by the fold.
//
// Mode None leaves the graph untouched. It returns an error only if the options are invalid.
func OptimizeWithOptions(g *graph.Graph, opts Options) (Stats, error) {
	stats := Stats{
		Rewrites:    make(map[string]int),
		NodesBefore: g.NumNodes(),
	}
	if err := opts.Validate(); err != nil {
		return stats, errors.WithMessagef(err, "optimizing graph %q", g.Name())
	}
	if opts.Mode == None {
		stats.NodesAfter = stats.NodesBefore
		return stats, nil
	}

	run := func(pass Pass) int {
		if slices.Contains(opts.DisabledPasses, pass.Name()) {
			return 0
		}
		count := pass.Run(g)
		stats.Rewrites[pass.Name()] += count
		klog.V(1).Infof("optimizer(%q): pass %s made %d changes, %d nodes left", g.Name(), pass.Name(), count, g.NumNodes())
		if opts.Verify {
			if err := g.Verify(); err != nil {
				exceptions.Panicf("graph %q corrupted after pass %s: %+v", g.Name(), pass.Name(), err)
			}
		}
		return count
	}

	dce := &dcePass{policy: opts.VariablePolicy}
	for range opts.SinkIterations {
		if run(SinkCodePass) == 0 {
			break
		}
	}
	run(OptimizePoolPass)
	run(dce)
	if opts.Mode == Infer {
		run(FoldBatchNormPass)
	}
	run(dce)

	stats.RemovedNodes = dce.removedNodes
	stats.RemovedVariables = dce.removedVariables
	stats.NodesAfter = g.NumNodes()
	klog.V(1).Infof("optimizer(%q, %s): %d -> %d nodes, %d variables removed",
		g.Name(), opts.Mode, stats.NodesBefore, stats.NodesAfter, stats.RemovedVariables)
	return stats, nil
}
