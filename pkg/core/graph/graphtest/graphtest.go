// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for packages that build or rewrite graphs.
package graphtest

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/gomlx/graphopt/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

// AssertConsistent fails the test if the graph's use-graph invariants don't hold.
func AssertConsistent(t testing.TB, g *graph.Graph) {
	t.Helper()
	require.NoError(t, g.Verify(), "graph:\n%s", g)
}

// Input creates a public float32 variable of the given dimensions, filled with zeros.
func Input(g *graph.Graph, name string, dimensions ...int) *graph.Node {
	return g.Variable(name, tensors.FromShape(shapes.Make(dtypes.Float32, dimensions...)), graph.Public)
}

// Param creates a private float32 variable with the given values and dimensions.
func Param(g *graph.Graph, name string, values []float32, dimensions ...int) *graph.Node {
	return g.Variable(name, tensors.FromFlatDataAndDimensions(values, dimensions...), graph.Private)
}

// ParamWithValue creates a private float32 variable of the given dimensions, filled with value.
func ParamWithValue(g *graph.Graph, name string, value float32, dimensions ...int) *graph.Node {
	return g.Variable(name, tensors.FromScalarAndDimensions(value, dimensions...), graph.Private)
}

// BatchNorm creates a batch normalization over the last axis of input, with freshly created private parameters.
func BatchNorm(g *graph.Graph, name string, input *graph.Node, scale, bias, mean, variance []float32, epsilon float64) *graph.Node {
	channels := input.Shape().Dim(-1)
	return g.BatchNormalization(name, input,
		Param(g, name+"_scale", scale, channels),
		Param(g, name+"_bias", bias, channels),
		Param(g, name+"_mean", mean, channels),
		Param(g, name+"_var", variance, channels),
		input.Shape().Rank()-1, epsilon, 0.9)
}

// Conv1x1 creates a 1x1 convolution with stride 1 and no padding, using the given filter and bias values.
// The filter values are laid out [outChannels, 1, 1, inChannels].
func Conv1x1(g *graph.Graph, name string, input *graph.Node, filter []float32, bias []float32) *graph.Node {
	outChannels := len(bias)
	inChannels := input.Shape().Dim(3)
	return g.Convolution(name, input,
		Param(g, name+"_filter", filter, outChannels, 1, 1, inChannels),
		Param(g, name+"_bias", bias, outChannels),
		[]int{1, 1}, []int{0, 0, 0, 0}, 1)
}

// Types returns the node types of the live operation nodes, in creation order.
func Types(g *graph.Graph) []graph.NodeType {
	nodes := g.Nodes()
	types := make([]graph.NodeType, len(nodes))
	for ii, node := range nodes {
		types[ii] = node.Type()
	}
	return types
}

// CountType returns the number of live operation nodes of the given type.
func CountType(g *graph.Graph, nodeType graph.NodeType) (count int) {
	for _, node := range g.Nodes() {
		if node.Type() == nodeType {
			count++
		}
	}
	return
}
