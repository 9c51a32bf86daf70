// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends dispatches a lowered ir.Function to one of the execution backends.
//
// Backends are compiled in selectively: each backend package registers itself (see Register) from its init
// function, and it is only linked in if imported. Package backends/default imports all the backends enabled
// by the build tags ("cpu", "opencl"); the interpreter is always included.
//
// Asking for a backend that was not compiled in is a fatal configuration error: New logs it and exits the
// process. Other contract violations panic with a stack trace, see package github.com/gomlx/exceptions.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Kind selects a backend.
type Kind int

const (
	// Interpreter is the portable reference backend. It is always compiled in.
	Interpreter Kind = iota

	// CPU is the native CPU backend, compiled in with the build tag "cpu".
	CPU

	// OpenCL is the GPU backend, compiled in with the build tag "opencl".
	OpenCL
)

var kindNames = []string{"interpreter", "cpu", "opencl"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// ParseKind converts a backend name (as returned by Kind.String, case-insensitive) to a Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ii, kindName := range kindNames {
		if name == kindName {
			return Kind(ii), nil
		}
	}
	return Interpreter, errors.Errorf("unknown backend %q, valid values are %q", name, kindNames)
}

// Backend holds a lowered function for execution by one of the backends.
type Backend interface {
	// Kind of the backend.
	Kind() Kind

	// Name returns a longer description of the backend, for pretty-printing.
	Name() string

	// Function returns the lowered function the backend was created with.
	Function() *ir.Function

	// Capabilities returns the operations and dtypes supported by the backend.
	Capabilities() Capabilities

	// Compile checks that the function is well-formed and supported by the backend, and prepares it for execution.
	Compile() error
}

// Constructor creates a Backend for a lowered function.
type Constructor func(fn *ir.Function) Backend

var registeredConstructors = make(map[Kind]Constructor)

// Register the constructor of the backend of the given kind.
//
// To be safe, call Register during initialization of a package. Registering the same kind twice panics.
func Register(kind Kind, constructor Constructor) {
	if kind < Interpreter || kind > OpenCL {
		exceptions.Panicf("backends.Register: invalid backend kind %d", kind)
	}
	if constructor == nil {
		exceptions.Panicf("backends.Register(%s): nil constructor", kind)
	}
	if _, found := registeredConstructors[kind]; found {
		exceptions.Panicf("backends.Register(%s): backend already registered", kind)
	}
	registeredConstructors[kind] = constructor
}

// IsRegistered returns whether the backend of the given kind was compiled in.
func IsRegistered(kind Kind) bool {
	_, found := registeredConstructors[kind]
	return found
}

// Registered returns the kinds of the backends compiled in, in Kind order.
func Registered() []Kind {
	kinds := make([]Kind, 0, len(registeredConstructors))
	for kind := range registeredConstructors {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// New creates the backend of the given kind for fn.
//
// If the backend was not compiled in, it logs a fatal error and exits the process: there is no way to
// recover from a build that is missing the requested backend.
// It panics if fn is nil.
func New(kind Kind, fn *ir.Function) Backend {
	if fn == nil {
		exceptions.Panicf("backends.New(%s): nil function", kind)
	}
	constructor, found := registeredConstructors[kind]
	if !found {
		klog.Fatalf("backend %q was not compiled in (compiled in: %v): rebuild with the build tag %q, "+
			"and import github.com/gomlx/graphopt/backends/default", kind, Registered(), kind)
	}
	klog.V(1).Infof("backends: dispatching function %q (%s) to %s", fn.Name, fn.ID, kind)
	return constructor(fn)
}

// GRAPHOPT_BACKEND is the environment variable with the name of the default backend, see Default.
const GRAPHOPT_BACKEND = "GRAPHOPT_BACKEND"

// DefaultKind returns the backend named by the environment variable GRAPHOPT_BACKEND, if set.
// Otherwise, it returns the first compiled in backend, in Kind order.
func DefaultKind() (Kind, error) {
	if name, found := os.LookupEnv(GRAPHOPT_BACKEND); found && name != "" {
		kind, err := ParseKind(name)
		if err != nil {
			return kind, errors.WithMessagef(err, "environment variable %s", GRAPHOPT_BACKEND)
		}
		return kind, nil
	}
	kinds := Registered()
	if len(kinds) == 0 {
		return Interpreter, errors.New("no backends compiled in, import github.com/gomlx/graphopt/backends/default")
	}
	return kinds[0], nil
}

// Default creates the default backend (see DefaultKind) for fn. It panics if the default can't be determined.
func Default(fn *ir.Function) Backend {
	kind, err := DefaultKind()
	if err != nil {
		panic(err)
	}
	return New(kind, fn)
}
