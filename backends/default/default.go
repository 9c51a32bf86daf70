// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default includes the backends enabled by the build, the interpreter always.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/graphopt/backends/default"
//
// Build with the tags `cpu` and/or `opencl` to include the corresponding backends.
package _default

import (
	_ "github.com/gomlx/graphopt/backends/interpreter"
)
