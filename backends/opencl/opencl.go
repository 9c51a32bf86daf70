// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build opencl

// Package opencl implements the OpenCL GPU backend. It is only compiled in with the build tag "opencl".
package opencl

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/backends"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/pkg/errors"
)

// Capabilities of the OpenCL backend: every operation, in float32 and float16.
var Capabilities = backends.NewCapabilities(backends.AllOperations, dtypes.Float32, dtypes.Float16)

// Registers New as the constructor for backends.OpenCL.
func init() {
	backends.Register(backends.OpenCL, New)
}

// Backend implements backends.Backend for OpenCL devices.
type Backend struct {
	*backends.Base
}

var _ backends.Backend = &Backend{}

// New constructs a new OpenCL Backend for fn.
func New(fn *ir.Function) backends.Backend {
	return &Backend{Base: backends.NewBase(backends.OpenCL, "OpenCL GPU", fn, Capabilities)}
}

// Compile implements backends.Backend. On top of the generic checks, the OpenCL kernels only
// support grouped convolutions that are depthwise or ungrouped.
func (b *Backend) Compile() error {
	for ii, inst := range b.Function().Instructions {
		op, ok := inst.Node.Op().(*graph.ConvolutionOp)
		if !ok || op.Group == 1 {
			continue
		}
		inChannels := inst.Node.Operand(graph.ConvInput).Shape().Dim(-1)
		if op.Group != inChannels {
			return errors.Errorf("backend opencl: instruction #%d (%q) is a convolution with %d groups over %d channels, "+
				"only depthwise or ungrouped convolutions are supported", ii, inst.Node.Name(), op.Group, inChannels)
		}
	}
	return b.Base.Compile()
}
