// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/gomlx/graphopt/pkg/core/tensors"
)

// Variable creates a variable node holding value.
func (g *Graph) Variable(name string, value *tensors.Tensor, visibility Visibility) *Node {
	if value == nil {
		exceptions.Panicf("Variable %q: nil value", name)
	}
	return g.newNode(name, &VariableOp{Value: value, Visibility: visibility}, value.Shape())
}

// Convolution creates a 2D convolution over an NHWC input.
//
// filter must be shaped [outChannels, kernelHeight, kernelWidth, inChannels/group] and bias [outChannels].
// strides are [height, width] and pads are [top, left, bottom, right].
func (g *Graph) Convolution(name string, input, filter, bias *Node, strides, pads []int, group int) *Node {
	if input == nil || filter == nil || bias == nil {
		exceptions.Panicf("Convolution %q: input, filter and bias are required", name)
	}
	if input.Shape().Rank() != 4 || filter.Shape().Rank() != 4 || bias.Shape().Rank() != 1 {
		exceptions.Panicf("Convolution %q: expected input and filter of rank 4 and bias of rank 1, got %s, %s and %s",
			name, input.Shape(), filter.Shape(), bias.Shape())
	}
	checkSameDType(name, input, filter, bias)
	checkWindow(name, strides, pads)
	inChannels := input.Shape().Dim(3)
	outChannels := filter.Shape().Dim(0)
	if group <= 0 || inChannels%group != 0 || outChannels%group != 0 {
		exceptions.Panicf("Convolution %q: group %d must divide input channels %d and output channels %d",
			name, group, inChannels, outChannels)
	}
	if filter.Shape().Dim(3) != inChannels/group {
		exceptions.Panicf("Convolution %q: filter %s doesn't match %d input channels in %d groups",
			name, filter.Shape(), inChannels, group)
	}
	if bias.Shape().Dim(0) != outChannels {
		exceptions.Panicf("Convolution %q: bias %s doesn't match %d output channels", name, bias.Shape(), outChannels)
	}
	kernels := []int{filter.Shape().Dim(1), filter.Shape().Dim(2)}
	outH, outW := windowOutputDims(name, input.Shape(), kernels, strides, pads)
	op := &ConvolutionOp{
		Kernels: kernels,
		Strides: slices.Clone(strides),
		Pads:    slices.Clone(pads),
		Group:   group,
	}
	shape := shapes.Make(input.DType(), input.Shape().Dim(0), outH, outW, outChannels)
	return g.newNode(name, op, shape, input, filter, bias)
}

// BatchNormalization creates a batch normalization node over channelAxis of input.
// scale, bias, mean and variance must be rank-1 with the dimension of the channel axis.
func (g *Graph) BatchNormalization(name string, input, scale, bias, mean, variance *Node,
	channelAxis int, epsilon, momentum float64) *Node {
	if input == nil || scale == nil || bias == nil || mean == nil || variance == nil {
		exceptions.Panicf("BatchNormalization %q: input, scale, bias, mean and variance are required", name)
	}
	if channelAxis < 0 || channelAxis >= input.Shape().Rank() {
		exceptions.Panicf("BatchNormalization %q: channel axis %d out-of-bounds for input %s", name, channelAxis, input.Shape())
	}
	checkSameDType(name, input, scale, bias, mean, variance)
	channels := input.Shape().Dim(channelAxis)
	for _, param := range []*Node{scale, bias, mean, variance} {
		if param.Shape().Rank() != 1 || param.Shape().Dim(0) != channels {
			exceptions.Panicf("BatchNormalization %q: parameter %q shaped %s, expected [%d]",
				name, param.Name(), param.Shape(), channels)
		}
	}
	op := &BatchNormOp{ChannelAxis: channelAxis, Epsilon: epsilon, Momentum: momentum}
	return g.newNode(name, op, input.Shape().Clone(), input, scale, bias, mean, variance)
}

// Relu creates a max(x, 0) node.
func (g *Graph) Relu(name string, input *Node) *Node {
	if input == nil {
		exceptions.Panicf("Relu %q: nil input", name)
	}
	return g.newNode(name, &ReluOp{}, input.Shape().Clone(), input)
}

// Pool creates a pooling node over the spatial axes of an NHWC input.
// kernels and strides are [height, width] and pads are [top, left, bottom, right].
func (g *Graph) Pool(name string, mode PoolMode, input *Node, kernels, strides, pads []int) *Node {
	if input == nil {
		exceptions.Panicf("Pool %q: nil input", name)
	}
	if mode != PoolMax && mode != PoolAvg {
		exceptions.Panicf("Pool %q: invalid mode %d", name, mode)
	}
	if input.Shape().Rank() != 4 {
		exceptions.Panicf("Pool %q: expected input of rank 4, got %s", name, input.Shape())
	}
	if len(kernels) != 2 || kernels[0] <= 0 || kernels[1] <= 0 {
		exceptions.Panicf("Pool %q: kernels must be 2 positive values, got %v", name, kernels)
	}
	checkWindow(name, strides, pads)
	outH, outW := windowOutputDims(name, input.Shape(), kernels, strides, pads)
	op := &PoolOp{
		Mode:    mode,
		Kernels: slices.Clone(kernels),
		Strides: slices.Clone(strides),
		Pads:    slices.Clone(pads),
	}
	shape := shapes.Make(input.DType(), input.Shape().Dim(0), outH, outW, input.Shape().Dim(3))
	return g.newNode(name, op, shape, input)
}

// MaxPool is a shortcut to Pool with PoolMax.
func (g *Graph) MaxPool(name string, input *Node, kernels, strides, pads []int) *Node {
	return g.Pool(name, PoolMax, input, kernels, strides, pads)
}

// AvgPool is a shortcut to Pool with PoolAvg.
func (g *Graph) AvgPool(name string, input *Node, kernels, strides, pads []int) *Node {
	return g.Pool(name, PoolAvg, input, kernels, strides, pads)
}

// Transpose creates a node that permutes the axes of input: output axis i is input axis permutation[i].
func (g *Graph) Transpose(name string, input *Node, permutation []int) *Node {
	if input == nil {
		exceptions.Panicf("Transpose %q: nil input", name)
	}
	rank := input.Shape().Rank()
	if !IsPermutation(permutation, rank) {
		exceptions.Panicf("Transpose %q: %v is not a permutation of the %d axes of %s", name, permutation, rank, input.Shape())
	}
	dims := make([]int, rank)
	for ii, axis := range permutation {
		dims[ii] = input.Shape().Dim(axis)
	}
	op := &TransposeOp{Permutation: slices.Clone(permutation)}
	return g.newNode(name, op, shapes.Make(input.DType(), dims...), input)
}

// Concatenate creates a node that concatenates inputs along axis.
// It requires at least two inputs, with the same dtype and the same dimensions except on axis.
func (g *Graph) Concatenate(name string, axis int, inputs ...*Node) *Node {
	if len(inputs) < 2 {
		exceptions.Panicf("Concatenate %q: requires at least 2 inputs, got %d", name, len(inputs))
	}
	for ii, input := range inputs {
		if input == nil {
			exceptions.Panicf("Concatenate %q: input #%d is nil", name, ii)
		}
	}
	checkSameDType(name, inputs...)
	first := inputs[0].Shape()
	if axis < 0 || axis >= first.Rank() {
		exceptions.Panicf("Concatenate %q: axis %d out-of-bounds for %s", name, axis, first)
	}
	dims := slices.Clone(first.Dimensions)
	for _, input := range inputs[1:] {
		shape := input.Shape()
		if shape.Rank() != first.Rank() {
			exceptions.Panicf("Concatenate %q: input %q shaped %s has a different rank than %s", name, input.Name(), shape, first)
		}
		for ii, dim := range shape.Dimensions {
			if ii == axis {
				dims[ii] += dim
			} else if dim != first.Dimensions[ii] {
				exceptions.Panicf("Concatenate %q: input %q shaped %s incompatible with %s on axis %d",
					name, input.Name(), shape, first, ii)
			}
		}
	}
	return g.newNode(name, &ConcatOp{Axis: axis}, shapes.Make(first.DType, dims...), inputs...)
}

// Arithmetic creates an elementwise binary node. Both operands must have the same shape.
func (g *Graph) Arithmetic(name string, mode ArithmeticMode, lhs, rhs *Node) *Node {
	if lhs == nil || rhs == nil {
		exceptions.Panicf("%s %q: nil operand", mode, name)
	}
	if int(mode) < 0 || int(mode) >= len(arithmeticModeNames) {
		exceptions.Panicf("Arithmetic %q: invalid mode %d", name, mode)
	}
	if !lhs.Shape().Equal(rhs.Shape()) {
		exceptions.Panicf("%s %q: operands have different shapes, %s and %s", mode, name, lhs.Shape(), rhs.Shape())
	}
	return g.newNode(name, &ArithmeticOp{Mode: mode}, lhs.Shape().Clone(), lhs, rhs)
}

// Add is a shortcut to Arithmetic with ArithmeticAdd.
func (g *Graph) Add(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticAdd, lhs, rhs)
}

// Sub is a shortcut to Arithmetic with ArithmeticSub.
func (g *Graph) Sub(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticSub, lhs, rhs)
}

// Mul is a shortcut to Arithmetic with ArithmeticMul.
func (g *Graph) Mul(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticMul, lhs, rhs)
}

// Div is a shortcut to Arithmetic with ArithmeticDiv.
func (g *Graph) Div(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticDiv, lhs, rhs)
}

// Max is a shortcut to Arithmetic with ArithmeticMax.
func (g *Graph) Max(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticMax, lhs, rhs)
}

// Min is a shortcut to Arithmetic with ArithmeticMin.
func (g *Graph) Min(name string, lhs, rhs *Node) *Node {
	return g.Arithmetic(name, ArithmeticMin, lhs, rhs)
}

// Save creates a public output variable named name, shaped like input, and a Save node
// (named name + "_save") that writes input into it. It returns the Save node.
func (g *Graph) Save(name string, input *Node) *Node {
	if input == nil {
		exceptions.Panicf("Save %q: nil input", name)
	}
	output := g.Variable(name, tensors.FromShape(input.Shape()), Public)
	return g.SaveTo(name+"_save", input, output)
}

// SaveTo creates a Save node that writes input into the given output variable.
func (g *Graph) SaveTo(name string, input, output *Node) *Node {
	if input == nil || output == nil {
		exceptions.Panicf("SaveTo %q: input and output are required", name)
	}
	if !output.IsVariable() {
		exceptions.Panicf("SaveTo %q: output %q must be a variable, got %s", name, output.Name(), output.Type())
	}
	if !input.Shape().Equal(output.Shape()) {
		exceptions.Panicf("SaveTo %q: input shape %s doesn't match output shape %s", name, input.Shape(), output.Shape())
	}
	return g.newNode(name, &SaveOp{}, output.Shape().Clone(), input, output)
}

func checkSameDType(name string, nodes ...*Node) {
	for _, node := range nodes[1:] {
		if node.DType() != nodes[0].DType() {
			exceptions.Panicf("%q: operand %q has dtype %s, expected %s", name, node.Name(), node.DType(), nodes[0].DType())
		}
	}
}

func checkWindow(name string, strides, pads []int) {
	if len(strides) != 2 || strides[0] <= 0 || strides[1] <= 0 {
		exceptions.Panicf("%q: strides must be 2 positive values, got %v", name, strides)
	}
	if len(pads) != 4 || slices.Min(pads) < 0 {
		exceptions.Panicf("%q: pads must be 4 non-negative values (top, left, bottom, right), got %v", name, pads)
	}
}

// windowOutputDims returns the spatial output dimensions of a window op (convolution or pool) over an NHWC input.
func windowOutputDims(name string, input shapes.Shape, kernels, strides, pads []int) (outH, outW int) {
	paddedH := input.Dim(1) + pads[0] + pads[2]
	paddedW := input.Dim(2) + pads[1] + pads[3]
	if paddedH < kernels[0] || paddedW < kernels[1] {
		exceptions.Panicf("%q: kernels %v larger than padded input %s (pads=%v)", name, kernels, input, pads)
	}
	outH = (paddedH-kernels[0])/strides[0] + 1
	outW = (paddedW-kernels[1])/strides[1] + 1
	return
}
