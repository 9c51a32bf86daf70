// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir lowers an optimized graph.Graph into a Function: a flat list of instructions in execution order,
// that backends consume.
//
// The Function references the graph's nodes (for their operation parameters and shapes), but it doesn't
// change the graph. A Function is only valid as long as the graph is not rewritten further.
package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ValueKind tells where a Value comes from.
type ValueKind int

const (
	// WeightValue refers to Function.Weights.
	WeightValue ValueKind = iota

	// InstructionValue refers to the result of an earlier instruction in Function.Instructions.
	InstructionValue
)

// Value is an instruction operand.
type Value struct {
	Kind  ValueKind
	Index int
}

// String implements fmt.Stringer: weights are printed as "w<index>" and instruction results as "%<index>".
func (v Value) String() string {
	if v.Kind == WeightValue {
		return fmt.Sprintf("w%d", v.Index)
	}
	return fmt.Sprintf("%%%d", v.Index)
}

// Instruction is one operation of a Function.
type Instruction struct {
	// Node is the graph node this instruction was lowered from: it holds the operation parameters.
	Node *graph.Node

	// Operands of the instruction, one per operand slot of Node.
	Operands []Value
}

// Type of the operation.
func (inst *Instruction) Type() graph.NodeType { return inst.Node.Type() }

// Shape of the instruction result.
func (inst *Instruction) Shape() shapes.Shape { return inst.Node.Shape() }

// Function is a lowered graph, ready to be handed to a backend.
type Function struct {
	// ID uniquely identifies this lowering.
	ID uuid.UUID

	// Name of the graph the function was lowered from.
	Name string

	// Weights are the variables of the graph, both private parameters and public inputs/outputs.
	Weights []*graph.Node

	// Instructions in execution order: every instruction only uses weights and results of earlier instructions.
	Instructions []*Instruction
}

// Lower returns the Function that computes all the Save nodes of g.
//
// Only operations the Save nodes depend on are lowered, in topological order. Ties are broken by creation
// order, so lowering the same graph twice gives the same instructions.
//
// It returns an error if the graph fails graph.Graph.Verify or if it has no Save node.
func Lower(g *graph.Graph) (*Function, error) {
	if err := g.Verify(); err != nil {
		return nil, errors.WithMessagef(err, "can't lower graph %q", g.Name())
	}
	fn := &Function{
		ID:   uuid.New(),
		Name: g.Name(),
	}
	weightIdx := make(map[*graph.Node]int)
	for _, variable := range g.Variables() {
		weightIdx[variable] = len(fn.Weights)
		fn.Weights = append(fn.Weights, variable)
	}

	// Iterative post-order DFS from the Save nodes.
	instructionIdx := make(map[*graph.Node]int)
	type frame struct {
		node    *graph.Node
		operand int
	}
	var stack []frame
	numOutputs := 0
	for _, root := range g.Nodes() {
		if root.Type() != graph.NodeTypeSave {
			continue
		}
		numOutputs++
		stack = append(stack, frame{node: root})
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.operand < top.node.NumOperands() {
				operand := top.node.Operand(top.operand)
				top.operand++
				if _, isWeight := weightIdx[operand]; isWeight {
					continue
				}
				if _, done := instructionIdx[operand]; done {
					continue
				}
				stack = append(stack, frame{node: operand})
				continue
			}
			node := top.node
			stack = stack[:len(stack)-1]
			inst := &Instruction{Node: node, Operands: make([]Value, node.NumOperands())}
			for ii, operand := range node.Operands() {
				if idx, isWeight := weightIdx[operand]; isWeight {
					inst.Operands[ii] = Value{Kind: WeightValue, Index: idx}
				} else {
					inst.Operands[ii] = Value{Kind: InstructionValue, Index: instructionIdx[operand]}
				}
			}
			instructionIdx[node] = len(fn.Instructions)
			fn.Instructions = append(fn.Instructions, inst)
		}
	}
	if numOutputs == 0 {
		return nil, errors.Errorf("can't lower graph %q: it has no Save node, nothing would be computed", g.Name())
	}
	return fn, nil
}

// NumOutputs returns the number of Save instructions.
func (fn *Function) NumOutputs() (count int) {
	for _, inst := range fn.Instructions {
		if inst.Type() == graph.NodeTypeSave {
			count++
		}
	}
	return
}

// Verify checks that every operand refers to an existing weight or to an earlier instruction, and that
// operand shapes match the lowered nodes.
func (fn *Function) Verify() error {
	for ii, inst := range fn.Instructions {
		if inst.Node == nil {
			return errors.Errorf("function %q: instruction #%d has no node", fn.Name, ii)
		}
		if len(inst.Operands) != inst.Node.NumOperands() {
			return errors.Errorf("function %q: instruction #%d (%s) has %d operands, its node has %d",
				fn.Name, ii, inst.Type(), len(inst.Operands), inst.Node.NumOperands())
		}
		for jj, value := range inst.Operands {
			var shape shapes.Shape
			switch value.Kind {
			case WeightValue:
				if value.Index < 0 || value.Index >= len(fn.Weights) {
					return errors.Errorf("function %q: instruction #%d (%s) operand #%d refers to unknown weight %s",
						fn.Name, ii, inst.Type(), jj, value)
				}
				shape = fn.Weights[value.Index].Shape()
			case InstructionValue:
				if value.Index < 0 || value.Index >= ii {
					return errors.Errorf("function %q: instruction #%d (%s) operand #%d uses %s before it is defined",
						fn.Name, ii, inst.Type(), jj, value)
				}
				shape = fn.Instructions[value.Index].Shape()
			default:
				return errors.Errorf("function %q: instruction #%d operand #%d has invalid kind %d",
					fn.Name, ii, jj, value.Kind)
			}
			if !shape.Equal(inst.Node.Operand(jj).Shape()) {
				return errors.Errorf("function %q: instruction #%d (%s) operand #%d is shaped %s, expected %s",
					fn.Name, ii, inst.Type(), jj, shape, inst.Node.Operand(jj).Shape())
			}
		}
	}
	return nil
}

// String pretty-prints the function, one line per weight and instruction.
func (fn *Function) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "Function %q (%s): %d weights, %d instructions\n",
		fn.Name, fn.ID, len(fn.Weights), len(fn.Instructions))
	for ii, weight := range fn.Weights {
		_, _ = fmt.Fprintf(&sb, "\tw%d = %s %s %s\n", ii, weight.Name(), weight.Visibility(), weight.Shape())
	}
	for ii, inst := range fn.Instructions {
		operands := make([]string, len(inst.Operands))
		for jj, value := range inst.Operands {
			operands[jj] = value.String()
		}
		_, _ = fmt.Fprintf(&sb, "\t%%%d = %s(%s) %s\n", ii, inst.Node.Op(), strings.Join(operands, ", "), inst.Shape())
	}
	return sb.String()
}
