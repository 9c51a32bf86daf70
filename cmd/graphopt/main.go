// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// graphopt builds a demo network imported from an NCHW framework, optimizes it, lowers it and dispatches
// it to a backend, printing a report of each step.
//
// Usage:
//
//	graphopt -mode=infer -backend=interpreter -verify
//	graphopt -config=optimizer.yaml -print_graph
//
// The backend defaults to the environment variable GRAPHOPT_BACKEND, or to the interpreter.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/graphopt/backends"
	_ "github.com/gomlx/graphopt/backends/default"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/gomlx/graphopt/pkg/core/optimizer"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagMode = flag.String("mode", "", "Compilation mode: none, infer or train. "+
		"If set, it overrides the mode in -config. Default is infer.")
	flagConfig = flag.String("config", "", "YAML file with the optimizer options, "+
		"see optimizer.Options. Unset fields keep their defaults.")
	flagBackend = flag.String("backend", "", fmt.Sprintf("Backend to dispatch to: interpreter, cpu or opencl. "+
		"Default is given by $%s, or the first compiled in backend.", backends.GRAPHOPT_BACKEND))
	flagVerify     = flag.Bool("verify", false, "Verify the graph after every optimizer pass.")
	flagBatchSize  = flag.Int("batch", 1, "Batch size of the demo network.")
	flagSeed       = flag.Int64("seed", 42, "Random seed for the demo network weights.")
	flagPrintGraph = flag.Bool("print_graph", false, "Print the graph before and after optimizing, and the lowered function.")
	flagNoColor    = flag.Bool("no_color", false, "Disable colors in the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	output := termenv.NewOutput(os.Stdout)
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	} else {
		lipgloss.SetColorProfile(output.Profile)
	}

	opts := must.M1(optionsFromFlags())
	g := demoNetwork(*flagBatchSize, *flagSeed)
	if err := run(os.Stdout, g, opts); err != nil {
		klog.Errorf("graphopt failed: %+v", err)
		os.Exit(1)
	}
}

// optionsFromFlags returns the optimizer options from -config, overridden by -mode and -verify.
func optionsFromFlags() (opts optimizer.Options, err error) {
	opts = optimizer.DefaultOptions()
	if *flagConfig != "" {
		opts, err = optimizer.LoadOptions(*flagConfig)
		if err != nil {
			return
		}
	}
	if *flagMode != "" {
		opts.Mode, err = optimizer.ParseCompilationMode(*flagMode)
		if err != nil {
			return opts, errors.WithMessagef(err, "flag -mode")
		}
	}
	if *flagVerify {
		opts.Verify = true
	}
	return
}

// selectBackend returns the backend kind given by -backend, or the default one.
func selectBackend() (backends.Kind, error) {
	if *flagBackend == "" {
		return backends.DefaultKind()
	}
	kind, err := backends.ParseKind(*flagBackend)
	if err != nil {
		return kind, errors.WithMessagef(err, "flag -backend")
	}
	return kind, nil
}

// run optimizes g, lowers it and dispatches it to the selected backend, reporting to w.
func run(w io.Writer, g *graph.Graph, opts optimizer.Options) error {
	before := countTypes(g)
	variablesBefore := g.NumVariables()
	if *flagPrintGraph {
		_, _ = fmt.Fprintf(w, "%s\n", g)
	}

	stats, err := optimizer.OptimizeWithOptions(g, opts)
	if err != nil {
		return err
	}
	if *flagPrintGraph {
		_, _ = fmt.Fprintf(w, "%s\n", g)
	}
	reportGraph(w, g, before, variablesBefore)
	reportPasses(w, opts, stats)

	fn, err := ir.Lower(g)
	if err != nil {
		return err
	}
	if *flagPrintGraph {
		_, _ = fmt.Fprintf(w, "%s\n", fn)
	}
	reportWeights(w, fn)

	kind, err := selectBackend()
	if err != nil {
		return err
	}
	backend := backends.New(kind, fn)
	if err := backend.Compile(); err != nil {
		return err
	}
	reportBackend(w, backend)
	return nil
}

// countTypes returns the number of live nodes per type.
func countTypes(g *graph.Graph) map[graph.NodeType]int {
	counts := make(map[graph.NodeType]int)
	for _, node := range g.Nodes() {
		counts[node.Type()]++
	}
	return counts
}
