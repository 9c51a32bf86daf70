// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends_test

import (
	"os"
	"os/exec"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/backends"
	_ "github.com/gomlx/graphopt/backends/interpreter"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/graph/graphtest"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowered(t *testing.T) *ir.Function {
	g := graph.New("relu")
	g.Save("out", g.Relu("relu", graphtest.Input(g, "x", 2, 2)))
	fn, err := ir.Lower(g)
	require.NoError(t, err)
	return fn
}

func TestKind(t *testing.T) {
	for _, kind := range []backends.Kind{backends.Interpreter, backends.CPU, backends.OpenCL} {
		parsed, err := backends.ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
	assert.Equal(t, backends.OpenCL, must.M1(backends.ParseKind(" OpenCL ")))
	_, err := backends.ParseKind("cuda")
	assert.Error(t, err)
	assert.Equal(t, "invalid", backends.Kind(5).String())
}

func TestRegistry(t *testing.T) {
	assert.True(t, backends.IsRegistered(backends.Interpreter))
	assert.Contains(t, backends.Registered(), backends.Interpreter)
	assert.Equal(t, backends.Interpreter, backends.Registered()[0])

	assert.Panics(t, func() { backends.Register(backends.Interpreter, func(fn *ir.Function) backends.Backend { return nil }) })
	assert.Panics(t, func() { backends.Register(backends.Kind(9), func(fn *ir.Function) backends.Backend { return nil }) })
	assert.Panics(t, func() { backends.Register(backends.OpenCL, nil) })
}

func TestNew(t *testing.T) {
	fn := lowered(t)
	backend := backends.New(backends.Interpreter, fn)
	assert.Equal(t, backends.Interpreter, backend.Kind())
	assert.Same(t, fn, backend.Function())
	assert.NotEmpty(t, backend.Name())
	require.NoError(t, backend.Compile())

	require.Panics(t, func() { backends.New(backends.Interpreter, nil) })
}

func TestCompileErrors(t *testing.T) {
	fn := lowered(t)
	fn.Instructions[0].Operands[0] = ir.Value{Kind: ir.InstructionValue, Index: 1}
	err := backends.New(backends.Interpreter, fn).Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interpreter")
}

func TestCapabilities(t *testing.T) {
	fn := lowered(t)
	caps := backends.NewCapabilities(backends.AllOperations, dtypes.Float32)
	require.NoError(t, caps.Check(fn))

	noRelu := caps.Clone()
	noRelu.Operations[graph.NodeTypeRelu] = false
	assert.ErrorContains(t, noRelu.Check(fn), "unsupported operation Relu")
	// Clone is deep.
	assert.True(t, caps.Operations[graph.NodeTypeRelu])

	onlyFloat64 := backends.NewCapabilities(backends.AllOperations, dtypes.Float64)
	assert.ErrorContains(t, onlyFloat64.Check(fn), "unsupported dtype")

	base := backends.NewBase(backends.CPU, "test", fn, noRelu)
	assert.Error(t, base.Compile())
	assert.False(t, base.IsCompiled())
	base = backends.NewBase(backends.CPU, "test", fn, caps)
	require.NoError(t, base.Compile())
	assert.True(t, base.IsCompiled())
	assert.Equal(t, "cpu", base.String())
}

func TestDefaultKind(t *testing.T) {
	t.Setenv(backends.GRAPHOPT_BACKEND, "")
	assert.Equal(t, backends.Interpreter, must.M1(backends.DefaultKind()))

	t.Setenv(backends.GRAPHOPT_BACKEND, "opencl")
	assert.Equal(t, backends.OpenCL, must.M1(backends.DefaultKind()))

	t.Setenv(backends.GRAPHOPT_BACKEND, "tpu")
	_, err := backends.DefaultKind()
	assert.ErrorContains(t, err, backends.GRAPHOPT_BACKEND)
	assert.Panics(t, func() { backends.Default(lowered(t)) })

	t.Setenv(backends.GRAPHOPT_BACKEND, "interpreter")
	assert.Equal(t, backends.Interpreter, backends.Default(lowered(t)).Kind())
}

// envCrashBackend selects, in the subprocess started by TestNewNotCompiledIn, the backend to request.
const envCrashBackend = "GRAPHOPT_TEST_CRASH_BACKEND"

// TestNewNotCompiledIn checks that asking for a backend that was not compiled in exits the process.
// It re-runs the test binary as a subprocess that requests the backend.
func TestNewNotCompiledIn(t *testing.T) {
	if name := os.Getenv(envCrashBackend); name != "" {
		backends.New(must.M1(backends.ParseKind(name)), lowered(t))
		t.Fatalf("backends.New(%s) should have exited the process", name)
		return
	}

	for _, kind := range []backends.Kind{backends.CPU, backends.OpenCL} {
		if backends.IsRegistered(kind) {
			continue
		}
		t.Run(kind.String(), func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestNewNotCompiledIn$")
			cmd.Env = append(os.Environ(), envCrashBackend+"="+kind.String())
			output, err := cmd.CombinedOutput()
			var exitErr *exec.ExitError
			require.ErrorAs(t, err, &exitErr, "subprocess should have failed, output:\n%s", output)
			assert.False(t, exitErr.Success())
			assert.Contains(t, string(output), "was not compiled in")
		})
	}
}
