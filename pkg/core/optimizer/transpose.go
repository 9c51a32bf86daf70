// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"k8s.io/klog/v2"
)

// IsIdentityShuffle returns whether transposing by first and then by second restores the original
// axis order, that is, whether the two masks are inverse permutations of each other.
//
// Masks of different lengths are never inverses. It never panics, even for malformed masks.
func IsIdentityShuffle(first, second []int) bool {
	if len(first) != len(second) {
		return false
	}
	for ii, axis := range first {
		if axis < 0 || axis >= len(second) || second[axis] != ii {
			return false
		}
	}
	return true
}

// SinkCode moves transposes closer to the outputs of the graph, where they can cancel each other out.
//
// It scans the operation nodes once, and for each node tries, in order:
//
//   - BatchNorm(Transpose(x)) -> Transpose(BatchNorm(x)), with the channel axis remapped through the permutation.
//   - Relu(Transpose(x)) -> Transpose(Relu(x)).
//   - Transpose(Transpose(x)) -> x, if the two permutations are inverses.
//   - Arithmetic(Transpose(l), Transpose(r)) -> Transpose(Arithmetic(l, r)), if both permutations are equal.
//   - Concat(Transpose(x1), ..., Transpose(xn)) -> Transpose(Concat(x1, ..., xn)), if every input is a transpose
//     with the same permutation.
//
// Replaced nodes are left without users, for DCE to remove, and are never matched again: repeated scans
// reach a fixpoint. Nodes created during the scan are not visited.
// It returns the number of rewrites.
func SinkCode(g *graph.Graph) (rewrites int) {
	for _, node := range g.Nodes() {
		if node.IsRemoved() || !node.HasUsers() {
			// Unused nodes, including those orphaned by earlier rewrites, are left for DCE.
			continue
		}
		if sinkTransposeBelowBatchNorm(g, node) ||
			sinkTransposeBelowRelu(g, node) ||
			cancelTransposes(node) ||
			sinkTransposeBelowArithmetic(g, node) ||
			sinkTransposeBelowConcat(g, node) {
			rewrites++
		}
	}
	return
}

// asTranspose returns the TransposeOp of the node, or nil if it is not a transpose.
func asTranspose(node *graph.Node) *graph.TransposeOp {
	op, _ := node.Op().(*graph.TransposeOp)
	return op
}

func sinkTransposeBelowBatchNorm(g *graph.Graph, node *graph.Node) bool {
	bn, ok := node.Op().(*graph.BatchNormOp)
	if !ok {
		return false
	}
	transpose := node.Operand(graph.BatchNormInput)
	transposeOp := asTranspose(transpose)
	if transposeOp == nil {
		return false
	}
	// The channel axis of the transposed value is axis Permutation[ChannelAxis] of its input.
	newChannelAxis := transposeOp.Permutation[bn.ChannelAxis]
	newBN := g.BatchNormalization(node.Name(), transpose.Operand(0),
		node.Operand(graph.BatchNormScale), node.Operand(graph.BatchNormBias),
		node.Operand(graph.BatchNormMean), node.Operand(graph.BatchNormVariance),
		newChannelAxis, bn.Epsilon, bn.Momentum)
	newTranspose := g.Transpose(transpose.Name(), newBN, transposeOp.Permutation)
	klog.V(2).Infof("sink-code: %q sunk below batch-norm %q (channel axis %d -> %d)",
		transpose.Name(), node.Name(), bn.ChannelAxis, newChannelAxis)
	node.ReplaceAllUsesWith(newTranspose)
	return true
}

func sinkTransposeBelowRelu(g *graph.Graph, node *graph.Node) bool {
	if node.Type() != graph.NodeTypeRelu {
		return false
	}
	transpose := node.Operand(0)
	transposeOp := asTranspose(transpose)
	if transposeOp == nil {
		return false
	}
	newRelu := g.Relu(node.Name(), transpose.Operand(0))
	newTranspose := g.Transpose(transpose.Name(), newRelu, transposeOp.Permutation)
	klog.V(2).Infof("sink-code: %q sunk below relu %q", transpose.Name(), node.Name())
	node.ReplaceAllUsesWith(newTranspose)
	return true
}

func cancelTransposes(node *graph.Node) bool {
	outerOp := asTranspose(node)
	if outerOp == nil {
		return false
	}
	inner := node.Operand(0)
	innerOp := asTranspose(inner)
	if innerOp == nil {
		return false
	}
	if len(innerOp.Permutation) != len(outerOp.Permutation) {
		exceptions.Panicf("sink-code: transposes %q%v and %q%v have different mask sizes",
			inner.Name(), innerOp.Permutation, node.Name(), outerOp.Permutation)
	}
	if !IsIdentityShuffle(innerOp.Permutation, outerOp.Permutation) {
		return false
	}
	klog.V(2).Infof("sink-code: transposes %q and %q cancel out", inner.Name(), node.Name())
	node.ReplaceAllUsesWith(inner.Operand(0))
	return true
}

func sinkTransposeBelowArithmetic(g *graph.Graph, node *graph.Node) bool {
	arithmeticOp, ok := node.Op().(*graph.ArithmeticOp)
	if !ok {
		return false
	}
	lhs, rhs := node.Operand(0), node.Operand(1)
	lhsOp, rhsOp := asTranspose(lhs), asTranspose(rhs)
	if lhsOp == nil || rhsOp == nil || !slices.Equal(lhsOp.Permutation, rhsOp.Permutation) {
		return false
	}
	newArithmetic := g.Arithmetic(node.Name(), arithmeticOp.Mode, lhs.Operand(0), rhs.Operand(0))
	newTranspose := g.Transpose(lhs.Name(), newArithmetic, lhsOp.Permutation)
	klog.V(2).Infof("sink-code: %q and %q sunk below %s %q", lhs.Name(), rhs.Name(), arithmeticOp.Mode, node.Name())
	node.ReplaceAllUsesWith(newTranspose)
	return true
}

func sinkTransposeBelowConcat(g *graph.Graph, node *graph.Node) bool {
	concatOp, ok := node.Op().(*graph.ConcatOp)
	if !ok {
		return false
	}
	numInputs := node.NumOperands()
	if numInputs < 2 {
		exceptions.Panicf("sink-code: concat %q has %d operands, at least 2 are required", node.Name(), numInputs)
	}

	// Classify all inputs first, then decide.
	inputs := node.Operands()
	transposeOps := make([]*graph.TransposeOp, numInputs)
	for ii, input := range inputs {
		transposeOps[ii] = asTranspose(input)
	}
	for _, transposeOp := range transposeOps {
		if transposeOp == nil || !slices.Equal(transposeOp.Permutation, transposeOps[0].Permutation) {
			return false
		}
	}

	permutation := transposeOps[0].Permutation
	unwrapped := make([]*graph.Node, numInputs)
	for ii, input := range inputs {
		unwrapped[ii] = input.Operand(0)
	}
	newAxis := permutation[concatOp.Axis]
	newConcat := g.Concatenate(node.Name(), newAxis, unwrapped...)
	newTranspose := g.Transpose(inputs[0].Name(), newConcat, permutation)
	klog.V(2).Infof("sink-code: %d transposes sunk below concat %q (axis %d -> %d)",
		numInputs, node.Name(), concatOp.Axis, newAxis)
	node.ReplaceAllUsesWith(newTranspose)
	return true
}
