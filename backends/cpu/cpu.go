// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build cpu

// Package cpu implements the native CPU backend. It is only compiled in with the build tag "cpu".
package cpu

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/backends"
	"github.com/gomlx/graphopt/pkg/core/ir"
)

// Capabilities of the CPU backend: every operation, in float32 and float64. Float16 is not supported.
var Capabilities = backends.NewCapabilities(backends.AllOperations, dtypes.Float32, dtypes.Float64)

// Registers New as the constructor for backends.CPU.
func init() {
	backends.Register(backends.CPU, New)
}

// New constructs a new CPU Backend for fn.
func New(fn *ir.Function) backends.Backend {
	return backends.NewBase(backends.CPU, "Native CPU", fn, Capabilities)
}
