// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Base implements the Backend interface for a kind and its capabilities. Backend implementations
// embed it, and override what they need.
type Base struct {
	kind         Kind
	name         string
	fn           *ir.Function
	capabilities Capabilities
	compiled     bool
}

var _ Backend = &Base{}

// NewBase returns a Base for the given backend kind, description name and capabilities.
func NewBase(kind Kind, name string, fn *ir.Function, capabilities Capabilities) *Base {
	return &Base{kind: kind, name: name, fn: fn, capabilities: capabilities}
}

// Kind implements Backend.
func (b *Base) Kind() Kind { return b.kind }

// Name implements Backend.
func (b *Base) Name() string { return b.name }

// String returns the kind of the backend.
func (b *Base) String() string { return b.kind.String() }

// Function implements Backend.
func (b *Base) Function() *ir.Function { return b.fn }

// Capabilities implements Backend. It returns a copy.
func (b *Base) Capabilities() Capabilities { return b.capabilities.Clone() }

// IsCompiled returns whether Compile succeeded.
func (b *Base) IsCompiled() bool { return b.compiled }

// Compile implements Backend: it verifies the function and checks it against the backend capabilities.
func (b *Base) Compile() error {
	if err := b.fn.Verify(); err != nil {
		return errors.WithMessagef(err, "backend %s", b.kind)
	}
	if err := b.capabilities.Check(b.fn); err != nil {
		return errors.WithMessagef(err, "backend %s can't compile function %q", b.kind, b.fn.Name)
	}
	b.compiled = true
	klog.V(1).Infof("backend %s: compiled function %q: %d instructions, %d weights",
		b.kind, b.fn.Name, len(b.fn.Instructions), len(b.fn.Weights))
	return nil
}
