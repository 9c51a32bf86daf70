// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromShape(t *testing.T) {
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16} {
		tensor := FromShape(shapes.Make(dtype, 2, 3))
		assert.Equal(t, 6, tensor.Size())
		assert.Equal(t, dtype, tensor.DType())
		for ii := range tensor.Size() {
			assert.Equal(t, 0.0, tensor.Raw(ii))
		}
	}
	require.Panics(t, func() { _ = FromShape(shapes.Make(dtypes.Int32, 2)) })
	require.Panics(t, func() { _ = FromShape(shapes.Invalid()) })
}

func TestAccess(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, 2, tensor.Rank())
	assert.Equal(t, 6.0, tensor.At(1, 2))
	assert.Equal(t, 2.0, tensor.At(0, 1))
	tensor.Set(10, 1, 0)
	assert.Equal(t, 10.0, tensor.Raw(3))
	tensor.SetRaw(0, -1)
	assert.Equal(t, []float32{-1, 2, 3, 10, 5, 6}, CopyFlatData[float32](tensor))
	require.Panics(t, func() { _ = CopyFlatData[float64](tensor) })
	require.Panics(t, func() { _ = tensor.At(2, 0) })
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]float64{1, 2}, 3) })
}

func TestAxisIndex(t *testing.T) {
	// Filter shaped [outChannels=2, kH=1, kW=2, inChannels=2]: the first 4 weights belong to channel 0.
	filter := FromScalarAndDimensions(float32(1), 2, 1, 2, 2)
	var channels []int
	for ii := range filter.Size() {
		channels = append(channels, filter.AxisIndex(0, ii))
	}
	assert.Equal(t, []int{0, 0, 0, 0, 1, 1, 1, 1}, channels)
	assert.Equal(t, 1, filter.AxisIndex(3, 5))
}

func TestFloat16(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1.5), float16.Fromfloat32(-2)}, 2)
	assert.Equal(t, 1.5, tensor.Raw(0))
	tensor.SetRaw(1, 0.25)
	assert.Equal(t, 0.25, tensor.At(1))
}

func TestCloneAndInDelta(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float64{1, 2, 3}, 3)
	clone := tensor.Clone()
	require.True(t, tensor.InDelta(clone, 0))
	clone.SetRaw(0, 1.001)
	assert.Equal(t, 1.0, tensor.Raw(0))
	assert.True(t, tensor.InDelta(clone, 0.01))
	assert.False(t, tensor.InDelta(clone, 1e-6))
	assert.False(t, tensor.InDelta(FromFlatDataAndDimensions([]float64{1, 2, 3}, 1, 3), 0.1))
	assert.Equal(t, "(Float64)[3]{1, 2, 3}", tensor.String())
}
