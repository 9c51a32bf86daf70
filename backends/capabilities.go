// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/pkg/errors"
)

// Capabilities holds mappings of what is supported by a backend.
type Capabilities struct {
	// Operations supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	Operations map[graph.NodeType]bool

	// DTypes list the data types supported by a backend.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// AllOperations lists every operation type a lowered function can hold.
var AllOperations = []graph.NodeType{
	graph.NodeTypeConvolution, graph.NodeTypeBatchNorm, graph.NodeTypeRelu, graph.NodeTypePool,
	graph.NodeTypeTranspose, graph.NodeTypeConcat, graph.NodeTypeArithmetic, graph.NodeTypeSave,
}

// NewCapabilities returns Capabilities with the given operations and dtypes.
func NewCapabilities(operations []graph.NodeType, dtypesList ...dtypes.DType) Capabilities {
	c := Capabilities{
		Operations: make(map[graph.NodeType]bool, len(operations)),
		DTypes:     make(map[dtypes.DType]bool, len(dtypesList)),
	}
	for _, op := range operations {
		c.Operations[op] = true
	}
	for _, dtype := range dtypesList {
		c.DTypes[dtype] = true
	}
	return c
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Operations = make(map[graph.NodeType]bool, len(c.Operations))
	maps.Copy(c2.Operations, c.Operations)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}

// Check returns an error describing the first instruction or weight of fn that is not supported.
func (c Capabilities) Check(fn *ir.Function) error {
	for ii, weight := range fn.Weights {
		if !c.DTypes[weight.DType()] {
			return errors.Errorf("weight #%d (%q) has unsupported dtype %s", ii, weight.Name(), weight.DType())
		}
	}
	for ii, inst := range fn.Instructions {
		if !c.Operations[inst.Type()] {
			return errors.Errorf("instruction #%d (%q) has unsupported operation %s", ii, inst.Node.Name(), inst.Type())
		}
		if !c.DTypes[inst.Shape().DType] {
			return errors.Errorf("instruction #%d (%q) has unsupported dtype %s", ii, inst.Node.Name(), inst.Shape().DType)
		}
	}
	return nil
}
