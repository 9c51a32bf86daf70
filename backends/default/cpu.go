//go:build cpu

package _default

import _ "github.com/gomlx/graphopt/backends/cpu"
