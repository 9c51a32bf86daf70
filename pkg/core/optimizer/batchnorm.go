// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"math"

	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// FoldBatchNorm absorbs BatchNorm(Convolution(x)) into the convolution weights.
//
// For each output channel c of the convolution:
//
//	A[c] = scale[c] / sqrt(variance[c] + epsilon)
//	B[c] = bias[c] - mean[c] * A[c]
//	filter[c, ...] *= A[c]
//	convBias[c] = convBias[c] * A[c] + B[c]
//
// and every user of the batch normalization is rewired to the convolution. The batch normalization node is
// left without users, for DCE to remove.
//
// This is only valid for inference, when the batch normalization uses its fixed running statistics.
// It applies only if the convolution has the batch normalization as its single user, the normalization is
// over the convolution output channels, and all weights and statistics are variables.
//
// Weights are updated in place only if they are private variables used solely by this convolution. Otherwise
// (e.g. a filter shared by two convolutions) the folded values go to a new private variable, and the
// convolution is rewired to it.
//
// It returns the number of batch normalizations folded.
func FoldBatchNorm(g *graph.Graph) (rewrites int) {
	for _, node := range g.Nodes() {
		if node.IsRemoved() || !node.HasUsers() {
			// Unused nodes, including those orphaned by earlier rewrites, are left for DCE.
			continue
		}
		if foldBatchNormIntoConvolution(g, node) {
			rewrites++
		}
	}
	return
}

func foldBatchNormIntoConvolution(g *graph.Graph, node *graph.Node) bool {
	bnOp, ok := node.Op().(*graph.BatchNormOp)
	if !ok {
		return false
	}
	conv := node.Operand(graph.BatchNormInput)
	if conv.Type() != graph.NodeTypeConvolution || !conv.HasOneUse() {
		return false
	}
	// Convolution outputs are NHWC: channels are the last axis.
	if bnOp.ChannelAxis != conv.Shape().Rank()-1 {
		return false
	}
	filter, convBias := conv.Operand(graph.ConvFilter), conv.Operand(graph.ConvBias)
	scale, bias := node.Operand(graph.BatchNormScale), node.Operand(graph.BatchNormBias)
	mean, variance := node.Operand(graph.BatchNormMean), node.Operand(graph.BatchNormVariance)
	for _, param := range []*graph.Node{filter, convBias, scale, bias, mean, variance} {
		if !param.IsVariable() {
			return false
		}
	}

	numChannels := convBias.Shape().Dim(0)
	a := make([]float64, numChannels)
	b := make([]float64, numChannels)
	for c := range numChannels {
		stdInv := 1.0 / math.Sqrt(variance.Value().Raw(c)+bnOp.Epsilon)
		a[c] = scale.Value().Raw(c) * stdInv
		b[c] = bias.Value().Raw(c) - mean.Value().Raw(c)*a[c]
	}

	filterValue := writableOperandValue(g, conv, graph.ConvFilter)
	for ii := range filterValue.Size() {
		c := filterValue.AxisIndex(0, ii)
		filterValue.SetRaw(ii, filterValue.Raw(ii)*a[c])
	}
	biasValue := writableOperandValue(g, conv, graph.ConvBias)
	for c := range numChannels {
		biasValue.SetRaw(c, biasValue.Raw(c)*a[c]+b[c])
	}

	klog.V(2).Infof("fold-batchnorm: %q folded into convolution %q", node.Name(), conv.Name())
	node.ReplaceAllUsesWith(conv)
	return true
}

// writableOperandValue returns the value of the variable at the operand slot idx of node, that can be
// updated without affecting anything other than node.
//
// If the variable is private and node is its only user, its own value is returned. Otherwise a private copy
// is created and node is rewired to it.
func writableOperandValue(g *graph.Graph, node *graph.Node, idx int) *tensors.Tensor {
	variable := node.Operand(idx)
	if variable.Visibility() == graph.Private && variable.HasOneUse() {
		return variable.Value()
	}
	folded := g.Variable(variable.Name()+"_folded", variable.Value().Clone(), graph.Private)
	node.SetOperand(idx, folded)
	klog.V(2).Infof("fold-batchnorm: %q is shared, folded values stored in %q", variable.Name(), folded.Name())
	return folded.Value()
}
