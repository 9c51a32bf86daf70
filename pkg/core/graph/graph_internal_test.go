// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/gomlx/graphopt/pkg/core/tensors"
	"github.com/stretchr/testify/require"
)

func newTestInput(g *Graph, name string, dims ...int) *Node {
	return g.Variable(name, tensors.FromShape(shapes.Make(dtypes.Float32, dims...)), Public)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	{
		// Missing user entry.
		g := New("missing_user")
		x := newTestInput(g, "x", 2)
		_ = g.Relu("r", x)
		require.NoError(t, g.Verify())
		x.users = nil
		require.ErrorContains(t, g.Verify(), "listed 0 times")
	}
	{
		// Multiplicity mismatch: Add(x, x) must list the Add twice.
		g := New("multiplicity")
		x := newTestInput(g, "x", 2)
		sum := g.Add("sum", x, x)
		x.users = []*Node{sum}
		require.Error(t, g.Verify())
	}
	{
		// Stale user entry.
		g := New("stale_user")
		x := newTestInput(g, "x", 2)
		y := newTestInput(g, "y", 2)
		r := g.Relu("r", x)
		y.users = append(y.users, r)
		require.ErrorContains(t, g.Verify(), "not one of its operands")
	}
	{
		// Dangling operand to a removed node.
		g := New("dangling")
		x := newTestInput(g, "x", 2)
		a := g.Relu("a", x)
		b := g.Relu("b", a)
		a.users = nil
		g.RemoveNode(a)
		_ = b
		require.ErrorContains(t, g.Verify(), "removed")
	}
}

func TestCompaction(t *testing.T) {
	g := New("compaction")
	x := newTestInput(g, "x", 2)
	var nodes []*Node
	for range 4 {
		nodes = append(nodes, g.Relu("r", x))
	}
	g.RemoveNode(nodes[0])
	g.RemoveNode(nodes[2])
	require.Len(t, g.nodes, 4)
	require.Equal(t, 2, g.NumNodes())
	live := g.Nodes()
	require.Equal(t, []*Node{nodes[1], nodes[3]}, live)
	require.Len(t, g.nodes, 2)
	require.Equal(t, 1, nodes[3].idx)
	g.RemoveNode(nodes[3])
	require.Equal(t, 1, g.NumNodes())
	require.NoError(t, g.Verify())
}
