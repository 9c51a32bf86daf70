// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizer

import (
	"os"
	"slices"

	"github.com/gomlx/graphopt/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CompilationMode selects which rewrites are valid for the graph.
type CompilationMode int

const (
	// None disables the optimizer.
	None CompilationMode = iota

	// Infer compiles for inference: batch normalization statistics are fixed, and can be folded
	// into the preceding convolution.
	Infer

	// Train compiles for training: every rewrite that doesn't depend on fixed statistics.
	Train
)

var compilationModeNames = []string{"none", "infer", "train"}

// String implements fmt.Stringer.
func (m CompilationMode) String() string {
	if m < 0 || int(m) >= len(compilationModeNames) {
		return "invalid"
	}
	return compilationModeNames[m]
}

// ParseCompilationMode converts the name returned by CompilationMode.String back to the mode.
func ParseCompilationMode(name string) (CompilationMode, error) {
	for ii, modeName := range compilationModeNames {
		if name == modeName {
			return CompilationMode(ii), nil
		}
	}
	return None, errors.Errorf("unknown compilation mode %q, valid values are %q", name, compilationModeNames)
}

// MarshalText implements encoding.TextMarshaler.
func (m CompilationMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *CompilationMode) UnmarshalText(text []byte) (err error) {
	*m, err = ParseCompilationMode(string(text))
	return
}

// Options configure OptimizeWithOptions. They can be loaded from YAML, e.g.:
//
//	mode: infer
//	variable_policy: sweep_unused_private
//	sink_iterations: 2
//	disabled_passes: [optimize-pool]
//	verify: true
type Options struct {
	Mode           CompilationMode `yaml:"mode"`
	VariablePolicy VariablePolicy  `yaml:"variable_policy"`

	// SinkIterations is the maximum number of times SinkCode is run, stopping earlier if it makes no change.
	SinkIterations int `yaml:"sink_iterations"`

	// DisabledPasses lists pass names (PassSinkCode, PassOptimizePool, PassFoldBatchNorm) not to run.
	// DCE can't be disabled.
	DisabledPasses []string `yaml:"disabled_passes"`

	// Verify the use-graph invariants after every pass. A violation panics.
	Verify bool `yaml:"verify"`
}

// DefaultOptions returns the options used by Optimize: Infer mode, sweep of unused private variables and
// a single SinkCode scan.
func DefaultOptions() Options {
	return Options{
		Mode:           Infer,
		VariablePolicy: SweepUnusedPrivate,
		SinkIterations: 1,
	}
}

// Validate returns an error if the options are not valid.
func (o Options) Validate() error {
	if o.Mode < None || o.Mode > Train {
		return errors.Errorf("invalid compilation mode %d", o.Mode)
	}
	if o.VariablePolicy < SweepUnusedPrivate || o.VariablePolicy > KeepVariables {
		return errors.Errorf("invalid variable policy %d", o.VariablePolicy)
	}
	if o.SinkIterations < 1 {
		return errors.Errorf("sink_iterations must be >= 1, got %d", o.SinkIterations)
	}
	for _, name := range o.DisabledPasses {
		if name == PassDCE {
			return errors.Errorf("pass %q can't be disabled", PassDCE)
		}
		if !slices.Contains(PassNames, name) {
			return errors.Errorf("unknown pass %q in disabled_passes, valid passes are %q", name, PassNames)
		}
	}
	return nil
}

// ParseOptions parses YAML encoded options. Fields not given keep the values of DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "failed to parse optimizer options")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// LoadOptions reads YAML encoded options from filePath. A leading "~" in filePath is expanded to the
// home directory. See ParseOptions.
func LoadOptions(filePath string) (Options, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return Options{}, err
	}
	exists, err := fsutil.FileExists(filePath)
	if err != nil {
		return Options{}, err
	}
	if !exists {
		return Options{}, errors.Errorf("optimizer options file %q not found", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Options{}, errors.Wrapf(err, "failed to read optimizer options from %q", filePath)
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return opts, errors.WithMessagef(err, "options file %q", filePath)
	}
	return opts, nil
}
