// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is the mutable dataflow graph that the optimizer rewrites.
//
// The main elements in the package are:
//
//   - Graph: owns two disjoint collections, operation nodes and variable nodes. It is the only
//     authority that creates and removes nodes.
//   - Node: one operation (Convolution, BatchNorm, Relu, Pool, Transpose, Concat, Arithmetic, Save)
//     or one variable (a persistent value: learned parameter or I/O slot). Each node holds its operands
//     (use edges), and the inverse list of its users, so "has users" is O(1) and "replace all uses" is
//     O(degree).
//   - Op: the static parameters of a node. The set of ops is closed, and rewrites pattern-match on it
//     with type switches.
//
// ## Contract violations
//
// Malformed graphs (shape mismatches, invalid permutations, removing a node that still has users, using a
// removed node) are bugs in the caller, not runtime conditions. They panic with a stack trace, using
// github.com/gomlx/exceptions. Graph.Verify can be used to check the use-graph invariants explicitly.
//
// ## Iterating while mutating
//
// Graph.Nodes and Graph.Variables return snapshots. It is safe to remove any node, including the
// current one, while iterating over a snapshot; removed nodes report IsRemoved() and should be skipped.
// Nodes created during the iteration are not part of the snapshot.
package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Graph of operation nodes and variables.
//
// It is not safe for concurrent use: there is a single owner that builds and rewrites it.
type Graph struct {
	name   string
	nextId NodeId

	// nodes holds the operation nodes in creation order. Removed nodes leave a nil slot until the
	// next compaction.
	nodes           []*Node
	numRemovedNodes int

	// variables, with the same tombstone scheme as nodes.
	variables           []*Node
	numRemovedVariables int
}

// New creates an empty Graph.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Nodes returns a snapshot of the live operation nodes, in creation order.
func (g *Graph) Nodes() []*Node {
	if g.numRemovedNodes > 0 {
		g.nodes = compact(g.nodes)
		g.numRemovedNodes = 0
	}
	return slices.Clone(g.nodes)
}

// Variables returns a snapshot of the live variable nodes, in creation order.
func (g *Graph) Variables() []*Node {
	if g.numRemovedVariables > 0 {
		g.variables = compact(g.variables)
		g.numRemovedVariables = 0
	}
	return slices.Clone(g.variables)
}

// NumNodes returns the number of live operation nodes.
func (g *Graph) NumNodes() int { return len(g.nodes) - g.numRemovedNodes }

// NumVariables returns the number of live variable nodes.
func (g *Graph) NumVariables() int { return len(g.variables) - g.numRemovedVariables }

// compact drops the nil slots of list, in place, and updates the position of the remaining nodes.
func compact(list []*Node) []*Node {
	live := list[:0]
	for _, node := range list {
		if node != nil {
			node.idx = len(live)
			live = append(live, node)
		}
	}
	clear(list[len(live):])
	return live
}

// NodeByName returns the first live node (operation or variable) with the given name, or nil if there is none.
func (g *Graph) NodeByName(name string) *Node {
	for _, list := range [][]*Node{g.nodes, g.variables} {
		for _, node := range list {
			if node != nil && node.name == name {
				return node
			}
		}
	}
	return nil
}

// newNode creates a node and wires it to its operands. Used by the builder methods.
func (g *Graph) newNode(name string, op Op, shape shapes.Shape, operands ...*Node) *Node {
	for ii, operand := range operands {
		if operand == nil {
			exceptions.Panicf("%s %q: operand #%d is nil", op.Type(), name, ii)
		}
		operand.AssertValid()
		if operand.graph != g {
			exceptions.Panicf("%s %q: operand #%d (%q) belongs to graph %q, not %q",
				op.Type(), name, ii, operand.name, operand.graph.name, g.name)
		}
	}
	n := &Node{
		graph:    g,
		id:       g.nextId,
		name:     name,
		op:       op,
		shape:    shape,
		operands: slices.Clone(operands),
	}
	g.nextId++
	for _, operand := range operands {
		operand.users = append(operand.users, n)
	}
	if op.Type() == NodeTypeVariable {
		n.idx = len(g.variables)
		g.variables = append(g.variables, n)
	} else {
		n.idx = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	return n
}

// RemoveNode removes the node (operation or variable) from the graph, and detaches it from its operands.
//
// It panics if the node still has users: removing it would leave dangling use edges.
func (g *Graph) RemoveNode(n *Node) {
	n.AssertValid()
	if n.graph != g {
		exceptions.Panicf("RemoveNode: node %q belongs to graph %q, not %q", n.name, n.graph.name, g.name)
	}
	if n.HasUsers() {
		exceptions.Panicf("RemoveNode: node %q (%s) still has %d users", n.name, n.Type(), n.NumUsers())
	}
	for _, operand := range n.operands {
		operand.removeUser(n)
	}
	n.operands = nil
	n.removed = true
	if n.IsVariable() {
		g.variables[n.idx] = nil
		g.numRemovedVariables++
	} else {
		g.nodes[n.idx] = nil
		g.numRemovedNodes++
	}
}

// Verify checks the invariants of the graph:
//
//   - Use-graph consistency: node A lists B as an operand k times iff B lists A as a user k times.
//   - No live node refers to (or is referred to by) a removed node or a node from another graph.
//   - Variables have no operands, and each node is kept in the collection matching its type.
//
// It returns an error describing the first violation found.
func (g *Graph) Verify() error {
	for _, list := range [][]*Node{g.nodes, g.variables} {
		for idx, node := range list {
			if node == nil {
				continue
			}
			if node.removed {
				return errors.Errorf("graph %q: removed node %q still listed at position %d", g.name, node.name, idx)
			}
			if node.idx != idx {
				return errors.Errorf("graph %q: node %q at position %d thinks it is at %d", g.name, node.name, idx, node.idx)
			}
			if err := g.verifyNode(node); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) verifyNode(node *Node) error {
	if node.graph != g {
		return errors.Errorf("graph %q: node %q belongs to graph %q", g.name, node.name, node.graph.name)
	}
	if node.IsVariable() {
		if len(node.operands) > 0 {
			return errors.Errorf("graph %q: variable %q has %d operands", g.name, node.name, len(node.operands))
		}
		if idx := node.idx; idx >= len(g.variables) || g.variables[idx] != node {
			return errors.Errorf("graph %q: variable %q not in the variables collection", g.name, node.name)
		}
	} else if idx := node.idx; idx >= len(g.nodes) || g.nodes[idx] != node {
		return errors.Errorf("graph %q: node %q not in the nodes collection", g.name, node.name)
	}
	for ii, operand := range node.operands {
		if operand == nil || operand.removed || operand.graph != g {
			return errors.Errorf("graph %q: node %q operand #%d is nil, removed or from another graph", g.name, node.name, ii)
		}
		uses := countOf(node.operands, operand)
		if listed := countOf(operand.users, node); listed != uses {
			return errors.Errorf("graph %q: node %q uses %q %d times, but it is listed %d times as its user",
				g.name, node.name, operand.name, uses, listed)
		}
	}
	for _, user := range node.users {
		if user == nil || user.removed || user.graph != g {
			return errors.Errorf("graph %q: node %q has a nil, removed or foreign user", g.name, node.name)
		}
		if !slices.Contains(user.operands, node) {
			return errors.Errorf("graph %q: node %q lists %q as a user, but it is not one of its operands",
				g.name, node.name, user.name)
		}
	}
	return nil
}

func countOf(list []*Node, node *Node) (count int) {
	for _, e := range list {
		if e == node {
			count++
		}
	}
	return
}

// String implements fmt.Stringer, it lists variables and then operation nodes in creation order.
func (g *Graph) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Graph %q: %d variables, %d nodes\n", g.name, g.NumVariables(), g.NumNodes())
	for _, list := range [][]*Node{g.variables, g.nodes} {
		for _, node := range list {
			if node != nil {
				_, _ = fmt.Fprintf(&sb, "\t%s\n", node)
			}
		}
	}
	return sb.String()
}
