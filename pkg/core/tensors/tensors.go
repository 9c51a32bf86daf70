// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements host-side tensors used as the persistent values of a graph: learned
// parameters (convolution filters, batch normalization statistics) and I/O slots.
//
// Values are stored flat in row-major order. Element access goes through float64, regardless of the
// storage dtype, which is enough for the graph rewrites that need to read or update weights.
//
// Supported storage dtypes are Float32, Float64 and Float16 (using github.com/x448/float16).
package tensors

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/x448/float16"
)

// Supported lists the Go types that can be used as storage for a Tensor.
type Supported interface {
	float32 | float64 | float16.Float16
}

// Tensor is a multidimensional value stored in host memory.
type Tensor struct {
	shape shapes.Shape

	// flat holds the data, a slice of the Go type matching shape.DType.
	flat any
}

// dtypeFor returns the DType for the Go type T.
func dtypeFor[T Supported]() dtypes.DType {
	var v T
	switch any(v).(type) {
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	case float16.Float16:
		return dtypes.Float16
	}
	return dtypes.InvalidDType
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape: invalid shape %s", shape)
	}
	t := &Tensor{shape: shape.Clone()}
	switch shape.DType {
	case dtypes.Float32:
		t.flat = make([]float32, shape.Size())
	case dtypes.Float64:
		t.flat = make([]float64, shape.Size())
	case dtypes.Float16:
		t.flat = make([]float16.Float16, shape.Size())
	default:
		exceptions.Panicf("tensors.FromShape: dtype %s not supported", shape.DType)
	}
	return t
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in data.
// The data is copied.
func FromFlatDataAndDimensions[T Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeFor[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%v): data has %d values, shape %s requires %d",
			dimensions, len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: slices.Clone(data)}
}

// FromScalarAndDimensions returns a tensor with the given dimensions, filled with the given value.
func FromScalarAndDimensions[T Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeFor[T](), dimensions...)
	flat := make([]T, shape.Size())
	for ii := range flat {
		flat[ii] = value
	}
	return &Tensor{shape: shape, flat: flat}
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements of the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Raw returns the element at the flat index i, converted to float64.
func (t *Tensor) Raw(i int) float64 {
	switch flat := t.flat.(type) {
	case []float32:
		return float64(flat[i])
	case []float64:
		return flat[i]
	case []float16.Float16:
		return float64(flat[i].Float32())
	}
	exceptions.Panicf("Tensor.Raw: tensor with dtype %s has no storage", t.shape.DType)
	return 0
}

// SetRaw sets the element at the flat index i, converting value to the tensor's dtype.
func (t *Tensor) SetRaw(i int, value float64) {
	switch flat := t.flat.(type) {
	case []float32:
		flat[i] = float32(value)
	case []float64:
		flat[i] = value
	case []float16.Float16:
		flat[i] = float16.Fromfloat32(float32(value))
	default:
		exceptions.Panicf("Tensor.SetRaw: tensor with dtype %s has no storage", t.shape.DType)
	}
}

// At returns the element at the given multidimensional indices.
func (t *Tensor) At(indices ...int) float64 {
	return t.Raw(t.shape.FlatIndex(indices...))
}

// Set the element at the given multidimensional indices.
func (t *Tensor) Set(value float64, indices ...int) {
	t.SetRaw(t.shape.FlatIndex(indices...), value)
}

// AxisIndex returns the coordinate along axis of the element stored at the flat index flatIdx.
//
// E.g.: for a convolution filter shaped [outChannels, kernelH, kernelW, inChannels], AxisIndex(0, i)
// is the output channel the i-th weight belongs to.
func (t *Tensor) AxisIndex(axis, flatIdx int) int {
	return t.shape.AxisIndex(axis, flatIdx)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	clone := &Tensor{shape: t.shape.Clone()}
	switch flat := t.flat.(type) {
	case []float32:
		clone.flat = slices.Clone(flat)
	case []float64:
		clone.flat = slices.Clone(flat)
	case []float16.Float16:
		clone.flat = slices.Clone(flat)
	}
	return clone
}

// CopyFlatData returns a copy of the flat data of the tensor.
// It panics if T doesn't match the tensor's dtype.
func CopyFlatData[T Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("CopyFlatData[%T]: tensor has dtype %s", *new(T), t.shape.DType)
	}
	return slices.Clone(flat)
}

// InDelta returns whether t and other have the same shape and all their values are within delta of each other.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for ii := range t.Size() {
		if math.Abs(t.Raw(ii)-other.Raw(ii)) > delta {
			return false
		}
	}
	return true
}

// MaxSizeToPrint is the maximum number of values printed by Tensor.String.
const MaxSizeToPrint = 8

// String implements fmt.Stringer. Large tensors are truncated.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString(t.shape.String())
	sb.WriteString("{")
	for ii := range min(t.Size(), MaxSizeToPrint) {
		if ii > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%g", t.Raw(ii))
	}
	if t.Size() > MaxSizeToPrint {
		sb.WriteString(", ...")
	}
	sb.WriteString("}")
	return sb.String()
}
