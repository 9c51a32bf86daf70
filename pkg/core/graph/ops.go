// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/graphopt/pkg/core/tensors"
)

// NodeType identifies the operation performed by a node.
type NodeType int

const (
	NodeTypeInvalid NodeType = iota
	NodeTypeVariable
	NodeTypeConvolution
	NodeTypeBatchNorm
	NodeTypeRelu
	NodeTypePool
	NodeTypeTranspose
	NodeTypeConcat
	NodeTypeArithmetic
	NodeTypeSave
)

var nodeTypeNames = []string{"Invalid", "Variable", "Convolution", "BatchNorm", "Relu", "Pool", "Transpose",
	"Concat", "Arithmetic", "Save"}

// String implements fmt.Stringer.
func (t NodeType) String() string {
	if t < 0 || int(t) >= len(nodeTypeNames) {
		return fmt.Sprintf("NodeType(%d)", int(t))
	}
	return nodeTypeNames[t]
}

// Op holds the static parameters of a node, and identifies its type.
//
// The set of ops is closed: it is implemented only by the *XxxOp types of this package, and rewrites
// match on them with a type switch or a type assertion.
type Op interface {
	// Type of the node.
	Type() NodeType

	// String prints the op parameters.
	String() string

	isOp()
}

// Visibility of a variable.
type Visibility int

const (
	// Private variables are owned by the graph, typically learned parameters.
	Private Visibility = iota

	// Public variables are the interface with the surrounding program: inputs and outputs.
	Public
)

// String implements fmt.Stringer.
func (v Visibility) String() string {
	if v == Public {
		return "Public"
	}
	return "Private"
}

// VariableOp is a persistent value: it has no operands and no computation.
type VariableOp struct {
	Value      *tensors.Tensor
	Visibility Visibility
}

func (op *VariableOp) Type() NodeType { return NodeTypeVariable }
func (op *VariableOp) String() string { return fmt.Sprintf("Variable(%s)", op.Visibility) }
func (op *VariableOp) isOp()          {}

// Operand positions of a Convolution node.
const (
	ConvInput = iota
	ConvFilter
	ConvBias
)

// ConvolutionOp is a 2D convolution over NHWC inputs.
//
// The filter is shaped [outChannels, kernelHeight, kernelWidth, inChannels/Group] and the bias [outChannels].
type ConvolutionOp struct {
	Kernels []int // [height, width], taken from the filter.
	Strides []int // [height, width]
	Pads    []int // [top, left, bottom, right]
	Group   int
}

func (op *ConvolutionOp) Type() NodeType { return NodeTypeConvolution }
func (op *ConvolutionOp) String() string {
	return fmt.Sprintf("Convolution(kernels=%v, strides=%v, pads=%v, group=%d)", op.Kernels, op.Strides, op.Pads, op.Group)
}
func (op *ConvolutionOp) isOp() {}

// Operand positions of a BatchNorm node.
const (
	BatchNormInput = iota
	BatchNormScale
	BatchNormBias
	BatchNormMean
	BatchNormVariance
)

// BatchNormOp normalizes its input over every axis except ChannelAxis.
type BatchNormOp struct {
	ChannelAxis int
	Epsilon     float64
	Momentum    float64
}

func (op *BatchNormOp) Type() NodeType { return NodeTypeBatchNorm }
func (op *BatchNormOp) String() string {
	return fmt.Sprintf("BatchNorm(channel=%d, epsilon=%g, momentum=%g)", op.ChannelAxis, op.Epsilon, op.Momentum)
}
func (op *BatchNormOp) isOp() {}

// ReluOp is max(x, 0), applied elementwise.
type ReluOp struct{}

func (op *ReluOp) Type() NodeType { return NodeTypeRelu }
func (op *ReluOp) String() string { return "Relu" }
func (op *ReluOp) isOp()          {}

// PoolMode selects the reduction of a pooling window.
type PoolMode int

const (
	PoolMax PoolMode = iota
	PoolAvg
)

// String implements fmt.Stringer.
func (m PoolMode) String() string {
	if m == PoolAvg {
		return "Avg"
	}
	return "Max"
}

// PoolOp reduces spatial windows of NHWC inputs.
type PoolOp struct {
	Mode    PoolMode
	Kernels []int // [height, width]
	Strides []int // [height, width]
	Pads    []int // [top, left, bottom, right]
}

func (op *PoolOp) Type() NodeType { return NodeTypePool }
func (op *PoolOp) String() string {
	return fmt.Sprintf("%sPool(kernels=%v, strides=%v, pads=%v)", op.Mode, op.Kernels, op.Strides, op.Pads)
}
func (op *PoolOp) isOp() {}

// TransposeOp permutes the axes of its input: output axis i is the input axis Permutation[i].
type TransposeOp struct {
	Permutation []int
}

func (op *TransposeOp) Type() NodeType { return NodeTypeTranspose }
func (op *TransposeOp) String() string { return fmt.Sprintf("Transpose(%v)", op.Permutation) }
func (op *TransposeOp) isOp()          {}

// ConcatOp concatenates its operands, in order, along Axis.
type ConcatOp struct {
	Axis int
}

func (op *ConcatOp) Type() NodeType { return NodeTypeConcat }
func (op *ConcatOp) String() string { return fmt.Sprintf("Concat(axis=%d)", op.Axis) }
func (op *ConcatOp) isOp()          {}

// ArithmeticMode selects the elementwise binary operation of an Arithmetic node.
type ArithmeticMode int

const (
	ArithmeticAdd ArithmeticMode = iota
	ArithmeticSub
	ArithmeticMul
	ArithmeticDiv
	ArithmeticMax
	ArithmeticMin
)

var arithmeticModeNames = []string{"Add", "Sub", "Mul", "Div", "Max", "Min"}

// String implements fmt.Stringer.
func (m ArithmeticMode) String() string {
	if m < 0 || int(m) >= len(arithmeticModeNames) {
		return fmt.Sprintf("ArithmeticMode(%d)", int(m))
	}
	return arithmeticModeNames[m]
}

// ArithmeticOp is an elementwise binary operation over operands of the same shape.
type ArithmeticOp struct {
	Mode ArithmeticMode
}

func (op *ArithmeticOp) Type() NodeType { return NodeTypeArithmetic }
func (op *ArithmeticOp) String() string { return op.Mode.String() }
func (op *ArithmeticOp) isOp()          {}

// Operand positions of a Save node.
const (
	SaveInput = iota
	SaveOutput
)

// SaveOp copies its input into a public output variable. Save nodes are the externally observed
// outputs of the graph, they are never considered dead.
type SaveOp struct{}

func (op *SaveOp) Type() NodeType { return NodeTypeSave }
func (op *SaveOp) String() string { return "Save" }
func (op *SaveOp) isOp()          {}

// IsPermutation returns whether perm is a permutation of [0, rank).
func IsPermutation(perm []int, rank int) bool {
	if len(perm) != rank {
		return false
	}
	seen := make([]bool, rank)
	for _, axis := range perm {
		if axis < 0 || axis >= rank || seen[axis] {
			return false
		}
		seen[axis] = true
	}
	return true
}
