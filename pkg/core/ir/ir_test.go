// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"testing"

	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/graph/graphtest"
	"github.com/gomlx/graphopt/pkg/core/optimizer"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLower(t *testing.T) {
	g := graph.New("lower")
	x := graphtest.Input(g, "x", 2, 3)
	y := graphtest.Input(g, "y", 2, 3)
	sum := g.Add("sum", x, y)
	g.Relu("dead", sum)
	g.Save("out", g.Mul("square", sum, sum))

	fn, err := Lower(g)
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	assert.NotEqual(t, uuid.Nil, fn.ID)
	assert.Equal(t, "lower", fn.Name)
	assert.Len(t, fn.Weights, 3)

	// The unused relu is not lowered.
	require.Len(t, fn.Instructions, 3)
	assert.Equal(t, graph.NodeTypeArithmetic, fn.Instructions[0].Type())
	assert.Equal(t, []Value{{WeightValue, 0}, {WeightValue, 1}}, fn.Instructions[0].Operands)
	assert.Equal(t, []Value{{InstructionValue, 0}, {InstructionValue, 0}}, fn.Instructions[1].Operands)
	assert.Equal(t, graph.NodeTypeSave, fn.Instructions[2].Type())
	assert.Equal(t, []Value{{InstructionValue, 1}, {WeightValue, 2}}, fn.Instructions[2].Operands)
	assert.Equal(t, 1, fn.NumOutputs())
	assert.Contains(t, fn.String(), "%1 = Mul(%0, %0) (Float32)[2 3]")
	assert.Contains(t, fn.String(), "w2 = out Public (Float32)[2 3]")

	// Every lowering has its own id.
	fn2, err := Lower(g)
	require.NoError(t, err)
	assert.NotEqual(t, fn.ID, fn2.ID)
}

func TestLowerAfterRewrites(t *testing.T) {
	// Rewrites create nodes after their users: lowering must still produce a topological order.
	g := graph.New("rewritten")
	x := graphtest.Input(g, "x", 1, 4, 4, 3)
	relu := g.Relu("relu", x)
	g.Save("out", g.MaxPool("pool", relu, []int{2, 2}, []int{2, 2}, []int{0, 0, 0, 0}))
	optimizer.Optimize(g, optimizer.Infer)

	fn, err := Lower(g)
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	var types []graph.NodeType
	for _, inst := range fn.Instructions {
		types = append(types, inst.Type())
	}
	assert.Equal(t, []graph.NodeType{graph.NodeTypePool, graph.NodeTypeRelu, graph.NodeTypeSave}, types)
}

func TestLowerErrors(t *testing.T) {
	g := graph.New("no_outputs")
	g.Relu("relu", graphtest.Input(g, "x", 2))
	_, err := Lower(g)
	assert.ErrorContains(t, err, "no Save node")
}

func TestVerify(t *testing.T) {
	g := graph.New("verify")
	x := graphtest.Input(g, "x", 2)
	g.Save("out", g.Relu("relu", x))
	fn, err := Lower(g)
	require.NoError(t, err)

	// Use before definition.
	fn.Instructions[0].Operands[0] = Value{InstructionValue, 1}
	assert.ErrorContains(t, fn.Verify(), "before it is defined")

	fn.Instructions[0].Operands[0] = Value{WeightValue, 7}
	assert.ErrorContains(t, fn.Verify(), "unknown weight")

	// Weight 1 is the output variable: same shape, so it passes.
	fn.Instructions[0].Operands[0] = Value{WeightValue, 1}
	assert.NoError(t, fn.Verify())

	fn.Instructions[0].Operands = nil
	assert.Error(t, fn.Verify())
}
