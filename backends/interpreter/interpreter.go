// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package interpreter implements the portable reference backend. It is always compiled in.
package interpreter

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/backends"
	"github.com/gomlx/graphopt/pkg/core/ir"
)

// Capabilities of the interpreter: every operation, in every dtype the graph supports.
var Capabilities = backends.NewCapabilities(backends.AllOperations, dtypes.Float32, dtypes.Float64, dtypes.Float16)

// Registers New as the constructor for backends.Interpreter.
func init() {
	backends.Register(backends.Interpreter, New)
}

// New constructs a new interpreter Backend for fn.
func New(fn *ir.Function) backends.Backend {
	return backends.NewBase(backends.Interpreter, "Portable Interpreter", fn, Capabilities)
}
