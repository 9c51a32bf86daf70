// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"github.com/gomlx/graphopt/pkg/core/graph"
	"k8s.io/klog/v2"
)

// OptimizePool swaps MaxPool(Relu(x)) into Relu(MaxPool(x)), so the relu runs on the smaller pooled output.
//
// It only applies to max pooling (an average doesn't commute with the relu clipping), and only when the
// pool is the single user of the relu: otherwise the relu would have to be kept for its other users, and
// the rewrite would add a node.
//
// It returns the number of rewrites.
func OptimizePool(g *graph.Graph) (rewrites int) {
	for _, node := range g.Nodes() {
		if node.IsRemoved() || !node.HasUsers() {
			// Unused nodes, including those orphaned by earlier rewrites, are left for DCE.
			continue
		}
		if reorderReluBeforeMaxPool(g, node) {
			rewrites++
		}
	}
	return
}

func reorderReluBeforeMaxPool(g *graph.Graph, node *graph.Node) bool {
	poolOp, ok := node.Op().(*graph.PoolOp)
	if !ok || poolOp.Mode != graph.PoolMax {
		return false
	}
	relu := node.Operand(0)
	if relu.Type() != graph.NodeTypeRelu || !relu.HasOneUse() {
		return false
	}
	newPool := g.Pool(node.Name(), graph.PoolMax, relu.Operand(0), poolOp.Kernels, poolOp.Strides, poolOp.Pads)
	newRelu := g.Relu(relu.Name(), newPool)
	klog.V(2).Infof("optimize-pool: relu %q moved after max-pool %q", relu.Name(), node.Name())
	node.ReplaceAllUsesWith(newRelu)
	return true
}
