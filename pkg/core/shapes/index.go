// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/gomlx/exceptions"
)

// FlatIndex converts the multi-dimensional indices into the flat (row-major) index.
// It panics if the number of indices doesn't match the rank or if any index is out of bounds.
func (s Shape) FlatIndex(indices ...int) int {
	if len(indices) != s.Rank() {
		exceptions.Panicf("Shape.FlatIndex(%v): %d indices given for shape %s of rank %d",
			indices, len(indices), s, s.Rank())
	}
	flatIdx := 0
	for axis, idx := range indices {
		dim := s.Dimensions[axis]
		if idx < 0 || idx >= dim {
			exceptions.Panicf("Shape.FlatIndex(%v): index %d out-of-bounds for axis %d of shape %s", indices, idx, axis, s)
		}
		flatIdx = flatIdx*dim + idx
	}
	return flatIdx
}

// AxisIndex returns the coordinate along axis of the element stored at the flat (row-major) index flatIdx.
func (s Shape) AxisIndex(axis, flatIdx int) int {
	if axis < 0 || axis >= s.Rank() {
		exceptions.Panicf("Shape.AxisIndex(axis=%d): axis out-of-bounds for shape %s", axis, s)
	}
	if flatIdx < 0 || flatIdx >= s.Size() {
		exceptions.Panicf("Shape.AxisIndex(flatIdx=%d): index out-of-bounds for shape %s of size %d", flatIdx, s, s.Size())
	}
	return (flatIdx / s.Strides()[axis]) % s.Dimensions[axis]
}
