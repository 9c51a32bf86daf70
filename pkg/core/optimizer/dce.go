// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// VariablePolicy defines which unused variables are removed by DCE, after the operation nodes
// reached their fixpoint.
type VariablePolicy int

const (
	// SweepUnusedPrivate removes unused private variables (learned parameters nobody reads anymore)
	// and keeps public ones, which are the interface with the surrounding program.
	SweepUnusedPrivate VariablePolicy = iota

	// SweepUnused removes every unused variable, regardless of its visibility.
	SweepUnused

	// KeepVariables never removes variables.
	KeepVariables
)

var variablePolicyNames = []string{"sweep_unused_private", "sweep_unused", "keep"}

// String implements fmt.Stringer.
func (p VariablePolicy) String() string {
	if p < 0 || int(p) >= len(variablePolicyNames) {
		return "invalid"
	}
	return variablePolicyNames[p]
}

// ParseVariablePolicy converts the name returned by VariablePolicy.String back to the policy.
func ParseVariablePolicy(name string) (VariablePolicy, error) {
	for ii, policyName := range variablePolicyNames {
		if name == policyName {
			return VariablePolicy(ii), nil
		}
	}
	return 0, errors.Errorf("unknown variable policy %q, valid values are %q", name, variablePolicyNames)
}

// MarshalText implements encoding.TextMarshaler.
func (p VariablePolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *VariablePolicy) UnmarshalText(text []byte) (err error) {
	*p, err = ParseVariablePolicy(string(text))
	return
}

// DCE removes dead code from the graph:
//
//  1. Repeatedly, until nothing changes, removes every operation node that has no users, except
//     Save nodes: they are the observable outputs of the graph. Removing a node may leave its
//     operands without users, hence the fixpoint.
//  2. In a single pass, removes unused variables according to policy.
//
// It returns the number of operation nodes and variables removed.
// Running DCE again on its own result removes nothing.
func DCE(g *graph.Graph, policy VariablePolicy) (removedNodes, removedVariables int) {
	for changed := true; changed; {
		changed = false
		for _, node := range g.Nodes() {
			if node.IsRemoved() || node.HasUsers() || node.Type() == graph.NodeTypeSave {
				continue
			}
			g.RemoveNode(node)
			removedNodes++
			changed = true
		}
	}

	if policy != KeepVariables {
		for _, variable := range g.Variables() {
			if variable.HasUsers() {
				continue
			}
			if policy == SweepUnusedPrivate && variable.Visibility() == graph.Public {
				continue
			}
			g.RemoveNode(variable)
			removedVariables++
		}
	}
	if removedNodes+removedVariables > 0 {
		klog.V(1).Infof("dce(%q): removed %d nodes and %d variables", g.Name(), removedNodes, removedVariables)
	}
	return
}

// dcePass adapts DCE to the Pass interface, and accumulates what it removed.
type dcePass struct {
	policy                         VariablePolicy
	removedNodes, removedVariables int
}

func (p *dcePass) Name() string { return PassDCE }

func (p *dcePass) Run(g *graph.Graph) int {
	nodes, variables := DCE(g, p.policy)
	p.removedNodes += nodes
	p.removedVariables += variables
	return nodes + variables
}
