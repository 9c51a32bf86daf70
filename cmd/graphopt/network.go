// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math/rand"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/gomlx/graphopt/pkg/core/tensors"
)

var (
	toNHWC = []int{0, 2, 3, 1}
	toNCHW = []int{0, 3, 1, 2}
)

// demoNetwork builds a small inception-like block imported from an NCHW framework:
//
//   - "x" [batch, 3, 8, 8] is transposed to NHWC and goes through two conv/batch-norm/relu branches,
//     one of them max-pooled, that are concatenated and transposed back to NCHW into "out".
//   - "y" [batch, 8, 4, 4] is normalized over its channels in NHWC, and transposed back into "aux".
//     The transposes sink and cancel out.
//   - A leftover relu over the concatenation, that nothing uses.
func demoNetwork(batchSize int, seed int64) *graph.Graph {
	rng := rand.New(rand.NewSource(seed))
	g := graph.New("inception_block")
	input := func(name string, dims ...int) *graph.Node {
		return g.Variable(name, tensors.FromShape(shapes.Make(dtypes.Float32, dims...)), graph.Public)
	}
	param := func(name string, mean, stddev float64, dims ...int) *graph.Node {
		value := tensors.FromShape(shapes.Make(dtypes.Float32, dims...))
		for ii := range value.Size() {
			value.SetRaw(ii, mean+stddev*rng.NormFloat64())
		}
		return g.Variable(name, value, graph.Private)
	}
	batchNorm := func(name string, input *graph.Node, channelAxis int) *graph.Node {
		channels := input.Shape().Dim(channelAxis)
		return g.BatchNormalization(name, input,
			param(name+"_scale", 1, 0.1, channels), param(name+"_bias", 0, 0.1, channels),
			param(name+"_mean", 0, 0.1, channels), param(name+"_var", 1, 0, channels),
			channelAxis, 1e-3, 0.99)
	}

	x := g.Transpose("x_nhwc", input("x", batchSize, 3, 8, 8), toNHWC)
	branchA := g.Convolution("conv_a", x, param("conv_a_filter", 0, 0.5, 4, 1, 1, 3), param("conv_a_bias", 0, 0.1, 4),
		[]int{1, 1}, []int{0, 0, 0, 0}, 1)
	branchA = g.Relu("relu_a", batchNorm("bn_a", branchA, 3))
	branchA = g.MaxPool("pool_a", branchA, []int{2, 2}, []int{2, 2}, []int{0, 0, 0, 0})
	branchB := g.Convolution("conv_b", x, param("conv_b_filter", 0, 0.2, 4, 3, 3, 3), param("conv_b_bias", 0, 0.1, 4),
		[]int{2, 2}, []int{1, 1, 1, 1}, 1)
	branchB = g.Relu("relu_b", batchNorm("bn_b", branchB, 3))
	concat := g.Concatenate("concat", 3, branchA, branchB)
	g.Save("out", g.Transpose("out_nchw", concat, toNCHW))

	y := g.Transpose("y_nhwc", input("y", batchSize, 8, 4, 4), toNHWC)
	y = g.Relu("relu_y", batchNorm("bn_y", y, 3))
	g.Save("aux", g.Transpose("aux_nchw", y, toNCHW))

	g.Relu("unused", concat)
	return g
}
