// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	. "github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/graph/graphtest"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderShapes(t *testing.T) {
	g := New("shapes")
	x := graphtest.Input(g, "x", 2, 8, 8, 3)

	conv := g.Convolution("conv", x,
		graphtest.ParamWithValue(g, "filter", 1, 4, 3, 3, 3),
		graphtest.ParamWithValue(g, "bias", 0, 4),
		[]int{1, 1}, []int{1, 1, 1, 1}, 1)
	assert.Equal(t, []int{2, 8, 8, 4}, conv.Shape().Dimensions)
	assert.Equal(t, []int{3, 3}, conv.Op().(*ConvolutionOp).Kernels)

	pool := g.MaxPool("pool", conv, []int{2, 2}, []int{2, 2}, []int{0, 0, 0, 0})
	assert.Equal(t, []int{2, 4, 4, 4}, pool.Shape().Dimensions)

	nchw := g.Transpose("nchw", pool, []int{0, 3, 1, 2})
	assert.Equal(t, []int{2, 4, 4, 4}, nchw.Shape().Dimensions)
	tr := g.Transpose("tr", x, []int{0, 3, 1, 2})
	assert.Equal(t, []int{2, 3, 8, 8}, tr.Shape().Dimensions)

	concat := g.Concatenate("concat", 3, x, x, pool.Graph().NodeByName("x"))
	assert.Equal(t, []int{2, 8, 8, 9}, concat.Shape().Dimensions)

	bn := graphtest.BatchNorm(g, "bn", conv, make([]float32, 4), make([]float32, 4), make([]float32, 4), make([]float32, 4), 1e-5)
	assert.True(t, bn.Shape().Equal(conv.Shape()))
	assert.Equal(t, 3, bn.Op().(*BatchNormOp).ChannelAxis)

	sum := g.Add("sum", bn, conv)
	assert.True(t, sum.Shape().Equal(conv.Shape()))
	save := g.Save("out", sum)
	assert.Equal(t, NodeTypeSave, save.Type())
	assert.Equal(t, Public, save.Operand(SaveOutput).Visibility())
	assert.Equal(t, "out", save.Operand(SaveOutput).Name())
	graphtest.AssertConsistent(t, g)
}

func TestBuilderContractViolations(t *testing.T) {
	g := New("violations")
	x := graphtest.Input(g, "x", 1, 4, 4, 2)
	y := graphtest.Input(g, "y", 1, 4, 4, 3)
	require.Panics(t, func() { g.Transpose("bad_perm", x, []int{0, 1, 1, 2}) })
	require.Panics(t, func() { g.Transpose("short_perm", x, []int{0, 1, 2}) })
	require.Panics(t, func() { g.Concatenate("one_input", 3, x) })
	require.Panics(t, func() { g.Concatenate("mismatch", 2, x, y) })
	require.Panics(t, func() { g.Add("add", x, y) })
	require.Panics(t, func() { g.Relu("nil", nil) })
	require.Panics(t, func() { g.MaxPool("too_big", x, []int{5, 5}, []int{1, 1}, []int{0, 0, 0, 0}) })
	require.Panics(t, func() {
		g.Convolution("bad_filter", x,
			graphtest.ParamWithValue(g, "f", 1, 4, 1, 1, 3),
			graphtest.ParamWithValue(g, "b", 0, 4),
			[]int{1, 1}, []int{0, 0, 0, 0}, 1)
	})
	other := New("other")
	z := graphtest.Input(other, "z", 1, 4, 4, 2)
	require.Panics(t, func() { g.Add("foreign", x, z) })

	// Contract violations carry a stack trace through gomlx/exceptions.
	err := exceptions.TryCatch[error](func() { g.Concatenate("one_input", 3, x) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 inputs")
}

func TestUsers(t *testing.T) {
	g := New("users")
	x := graphtest.Input(g, "x", 2, 3)
	assert.False(t, x.HasUsers())

	sq := g.Mul("sq", x, x)
	assert.Equal(t, 2, x.NumUsers())
	assert.Equal(t, []*Node{sq, sq}, x.Users())
	relu := g.Relu("relu", x)
	assert.Equal(t, 3, x.NumUsers())
	assert.False(t, relu.HasUsers())

	g.RemoveNode(sq)
	assert.Equal(t, []*Node{relu}, x.Users())
	assert.True(t, x.HasOneUse())
	assert.True(t, sq.IsRemoved())
	graphtest.AssertConsistent(t, g)
}

func TestReplaceAllUsesWith(t *testing.T) {
	g := New("replace")
	x := graphtest.Input(g, "x", 2, 3)
	y := graphtest.Input(g, "y", 2, 3)
	a := g.Relu("a", x)
	sum := g.Add("sum", a, a)
	diff := g.Sub("diff", y, a)

	a.ReplaceAllUsesWith(a)
	assert.Equal(t, 3, a.NumUsers())

	b := g.Relu("b", y)
	a.ReplaceAllUsesWith(b)
	assert.False(t, a.HasUsers())
	assert.Equal(t, 3, b.NumUsers())
	assert.Equal(t, []*Node{b, b}, sum.Operands())
	assert.Equal(t, []*Node{y, b}, diff.Operands())
	graphtest.AssertConsistent(t, g)

	// Shape mismatch and cycles are contract violations.
	z := graphtest.Input(g, "z", 3, 2)
	require.Panics(t, func() { b.ReplaceAllUsesWith(z) })
	require.Panics(t, func() { y.ReplaceAllUsesWith(b) })
	graphtest.AssertConsistent(t, g)
}

func TestSetOperand(t *testing.T) {
	g := New("set_operand")
	x := graphtest.Input(g, "x", 4)
	y := graphtest.Input(g, "y", 4)
	sum := g.Add("sum", x, x)
	sum.SetOperand(1, y)
	assert.Equal(t, []*Node{x, y}, sum.Operands())
	assert.Equal(t, 1, x.NumUsers())
	assert.Equal(t, 1, y.NumUsers())
	require.Panics(t, func() { sum.SetOperand(0, graphtest.Input(g, "z", 5)) })
	require.Panics(t, func() { sum.SetOperand(2, y) })
	graphtest.AssertConsistent(t, g)
}

func TestRemoveNode(t *testing.T) {
	g := New("remove")
	x := graphtest.Input(g, "x", 2, 3)
	a := g.Relu("a", x)
	b := g.Relu("b", a)

	// Removing a node with users is a contract violation, and leaves the graph untouched.
	require.Panics(t, func() { g.RemoveNode(a) })
	graphtest.AssertConsistent(t, g)
	assert.Equal(t, 2, g.NumNodes())

	g.RemoveNode(b)
	g.RemoveNode(a)
	assert.Equal(t, 0, g.NumNodes())
	assert.False(t, x.HasUsers())
	require.Panics(t, func() { g.Relu("c", a) })
	require.Panics(t, func() { a.ReplaceAllUsesWith(x) })
	require.Panics(t, func() { g.RemoveNode(a) })

	g.RemoveNode(x)
	assert.Equal(t, 0, g.NumVariables())
	assert.Nil(t, g.NodeByName("x"))
	graphtest.AssertConsistent(t, g)
}

func TestRemoveWhileIterating(t *testing.T) {
	g := New("iterate")
	x := graphtest.Input(g, "x", 3)
	prev := x
	for range 5 {
		prev = g.Relu("r", prev)
	}
	// Remove the current node, and create new ones, while iterating over the snapshot.
	visited := 0
	nodes := g.Nodes()
	for ii := len(nodes) - 1; ii >= 0; ii-- {
		node := nodes[ii]
		if node.IsRemoved() {
			continue
		}
		visited++
		g.RemoveNode(node)
		if ii == 2 {
			g.Relu("new", x)
		}
	}
	assert.Equal(t, 5, visited)
	assert.Equal(t, 1, g.NumNodes())
	assert.Equal(t, "new", g.Nodes()[0].Name())
	graphtest.AssertConsistent(t, g)
}

func TestString(t *testing.T) {
	g := New("print")
	x := graphtest.Input(g, "x", 1, 2, 2, 3)
	tr := g.Transpose("tr", x, []int{0, 3, 1, 2})
	assert.Equal(t, "%tr = Transpose([0 3 1 2])(%x) (Float32)[1 3 2 2]", tr.String())
	assert.Equal(t, "%x = Variable(Public) (Float32)[1 2 2 3]", x.String())
	assert.Contains(t, g.String(), `Graph "print": 1 variables, 1 nodes`)
	require.Panics(t, func() { g.Variable("nil", nil, Private) })
}

func TestNodeIds(t *testing.T) {
	g := New("ids")
	x := graphtest.Input(g, "x", 2)
	a := g.Relu("a", x)
	g.RemoveNode(a)
	b := g.Relu("b", x)
	assert.NotEqual(t, a.Id(), b.Id())
	assert.Equal(t, shapes.Make(dtypes.Float32, 2), b.Shape())
}
