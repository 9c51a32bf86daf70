// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/gomlx/graphopt/pkg/core/tensors"
)

// NodeId is a unique id of a node within a Graph. Ids are never reused, even after a node is removed.
type NodeId int

// Node is either an operation or a variable (persistent value) of a Graph.
//
// Nodes are owned by their Graph: they are created by the builder methods (Graph.Relu, Graph.Transpose, ...)
// and destroyed by Graph.RemoveNode. A removed node must not be used anymore, and any attempt panics.
type Node struct {
	graph *Graph
	id    NodeId
	name  string
	op    Op
	shape shapes.Shape

	// operands are the use edges: the nodes whose outputs this node consumes.
	operands []*Node

	// users is the inverse of operands: one entry per operand slot of another node that refers to this one.
	// So Add(x, x) lists the Add node twice in x.users.
	users []*Node

	// idx is the position in Graph.nodes or Graph.variables.
	idx     int
	removed bool
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph { return n.graph }

// Id is the unique id of this node within the Graph.
func (n *Node) Id() NodeId { return n.id }

// Name of the node, given at creation.
func (n *Node) Name() string { return n.name }

// Op returns the parameters of the node operation. Use a type switch or type assertion to match a specific op.
func (n *Node) Op() Op { return n.op }

// Type of the node.
func (n *Node) Type() NodeType {
	if n == nil || n.op == nil {
		return NodeTypeInvalid
	}
	return n.op.Type()
}

// Shape of the node's output.
func (n *Node) Shape() shapes.Shape { return n.shape }

// DType of the node's output.
func (n *Node) DType() dtypes.DType { return n.shape.DType }

// IsVariable returns whether the node is a variable, as opposed to an operation.
func (n *Node) IsVariable() bool { return n.Type() == NodeTypeVariable }

// IsRemoved returns whether the node has been removed from its graph.
func (n *Node) IsRemoved() bool { return n.removed }

// Value returns the tensor held by a variable node. It panics for other node types.
func (n *Node) Value() *tensors.Tensor {
	return n.variableOp().Value
}

// Visibility of a variable node. It panics for other node types.
func (n *Node) Visibility() Visibility {
	return n.variableOp().Visibility
}

func (n *Node) variableOp() *VariableOp {
	n.AssertValid()
	op, ok := n.op.(*VariableOp)
	if !ok {
		exceptions.Panicf("node %q is a %s, not a Variable", n.name, n.Type())
	}
	return op
}

// Operands returns a copy of the list of nodes consumed by this node.
func (n *Node) Operands() []*Node { return slices.Clone(n.operands) }

// NumOperands returns the number of operand slots of the node.
func (n *Node) NumOperands() int { return len(n.operands) }

// Operand returns the node consumed at the operand slot idx.
func (n *Node) Operand(idx int) *Node {
	if idx < 0 || idx >= len(n.operands) {
		exceptions.Panicf("node %q (%s) has %d operands, operand #%d requested", n.name, n.Type(), len(n.operands), idx)
	}
	return n.operands[idx]
}

// Users returns a copy of the list of nodes that consume this node, with one entry per operand slot.
func (n *Node) Users() []*Node { return slices.Clone(n.users) }

// NumUsers returns the number of operand slots, across all live nodes, that consume this node.
func (n *Node) NumUsers() int { return len(n.users) }

// HasUsers returns whether any live node consumes this node's output.
func (n *Node) HasUsers() bool { return len(n.users) > 0 }

// HasOneUse returns whether the node is consumed by exactly one operand slot.
func (n *Node) HasOneUse() bool { return len(n.users) == 1 }

// AssertValid panics if n is nil or has been removed from its graph.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.removed {
		exceptions.Panicf("node %q (#%d, %s) has been removed from graph %q", n.name, n.id, n.Type(), n.graph.name)
	}
}

// SetOperand rewires the operand slot idx to value. The new operand must have the same shape as the old one.
func (n *Node) SetOperand(idx int, value *Node) {
	n.AssertValid()
	value.AssertValid()
	old := n.Operand(idx)
	if old == value {
		return
	}
	if value.graph != n.graph {
		exceptions.Panicf("SetOperand: node %q belongs to graph %q, not %q", value.name, value.graph.name, n.graph.name)
	}
	if !old.shape.Equal(value.shape) {
		exceptions.Panicf("SetOperand(%q, #%d): operand shape %s doesn't match new value %q shape %s",
			n.name, idx, old.shape, value.name, value.shape)
	}
	old.removeUser(n)
	n.operands[idx] = value
	value.users = append(value.users, n)
}

// ReplaceAllUsesWith rewires every node that consumes n to consume replacement instead.
// Afterwards n has no users. It is a no-op if replacement is n itself.
//
// The replacement must have the same shape as n, and must not be a user of n (it would create a cycle).
func (n *Node) ReplaceAllUsesWith(replacement *Node) {
	n.AssertValid()
	replacement.AssertValid()
	if n == replacement {
		return
	}
	if replacement.graph != n.graph {
		exceptions.Panicf("ReplaceAllUsesWith: node %q belongs to graph %q, not %q",
			replacement.name, replacement.graph.name, n.graph.name)
	}
	if !n.shape.Equal(replacement.shape) {
		exceptions.Panicf("ReplaceAllUsesWith(%q -> %q): shapes differ, %s != %s",
			n.name, replacement.name, n.shape, replacement.shape)
	}
	if slices.Contains(n.users, replacement) {
		exceptions.Panicf("ReplaceAllUsesWith(%q -> %q): replacement is a user of the node, it would create a cycle",
			n.name, replacement.name)
	}
	users := n.users
	n.users = nil
	visited := make(map[*Node]bool, len(users))
	for _, user := range users {
		if visited[user] {
			continue
		}
		visited[user] = true
		for ii, operand := range user.operands {
			if operand == n {
				user.operands[ii] = replacement
				replacement.users = append(replacement.users, user)
			}
		}
	}
}

// removeUser removes one entry of user from n.users.
func (n *Node) removeUser(user *Node) {
	idx := slices.Index(n.users, user)
	if idx < 0 {
		exceptions.Panicf("use-graph corrupted: node %q not listed as a user of %q", user.name, n.name)
	}
	n.users = slices.Delete(n.users, idx, idx+1)
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%%%s = %s", n.name, n.op)
	if len(n.operands) > 0 {
		names := make([]string, len(n.operands))
		for ii, operand := range n.operands {
			names[ii] = "%" + operand.name
		}
		_, _ = fmt.Fprintf(&sb, "(%s)", strings.Join(names, ", "))
	}
	_, _ = fmt.Fprintf(&sb, " %s", n.shape)
	if n.removed {
		sb.WriteString(" [removed]")
	}
	return sb.String()
}
