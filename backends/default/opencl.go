//go:build opencl

package _default

import _ "github.com/gomlx/graphopt/backends/opencl"
