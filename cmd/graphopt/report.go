// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/graphopt/backends"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/gomlx/graphopt/pkg/core/optimizer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	changedStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).Bold(true)
)

// section is one titled table of the report. Rows marked as changed are highlighted, and columns from
// firstNumeric on are right-aligned.
type section struct {
	title        string
	headers      []string
	firstNumeric int
	rows         [][]string
	changed      []bool
}

func (s *section) add(changed bool, cells ...string) {
	s.rows = append(s.rows, cells)
	s.changed = append(s.changed, changed)
}

func (s *section) render(w io.Writer) {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(s.headers...).
		Rows(s.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			if row == lgtable.HeaderRow {
				style = headerStyle
			} else if row >= 0 && row < len(s.changed) && s.changed[row] {
				style = changedStyle
			}
			if col >= s.firstNumeric {
				return style.Align(lipgloss.Right)
			}
			return style
		})
	_, _ = fmt.Fprintln(w, titleStyle.Render(s.title))
	_, _ = fmt.Fprintln(w, table.Render())
}

func count(n int) string { return humanize.Comma(int64(n)) }

// reportGraph compares the node counts per operation type before and after optimizing.
func reportGraph(w io.Writer, g *graph.Graph, before map[graph.NodeType]int, variablesBefore int) {
	after := countTypes(g)
	types := make([]graph.NodeType, 0, len(before)+len(after))
	for nodeType := range before {
		types = append(types, nodeType)
	}
	for nodeType := range after {
		if _, found := before[nodeType]; !found {
			types = append(types, nodeType)
		}
	}
	slices.Sort(types)

	s := &section{title: fmt.Sprintf("Graph %q", g.Name()), headers: []string{"Operation", "Before", "After"}, firstNumeric: 1}
	var totalBefore, totalAfter int
	for _, nodeType := range types {
		s.add(before[nodeType] != after[nodeType], nodeType.String(), count(before[nodeType]), count(after[nodeType]))
		totalBefore += before[nodeType]
		totalAfter += after[nodeType]
	}
	s.add(totalBefore != totalAfter, "total operations", count(totalBefore), count(totalAfter))
	s.add(variablesBefore != g.NumVariables(), "variables", count(variablesBefore), count(g.NumVariables()))
	s.render(w)
}

// reportPasses lists the changes made by each pass. Passes that didn't run are marked with "-".
func reportPasses(w io.Writer, opts optimizer.Options, stats optimizer.Stats) {
	s := &section{
		title:        fmt.Sprintf("Optimizer (mode=%s, variable_policy=%s)", opts.Mode, opts.VariablePolicy),
		headers:      []string{"Pass", "Changes"},
		firstNumeric: 1,
	}
	for _, name := range optimizer.PassNames {
		changes, ran := stats.Rewrites[name]
		if !ran {
			s.add(false, name, "-")
			continue
		}
		s.add(changes > 0, name, count(changes))
	}
	s.add(false, "removed nodes", count(stats.RemovedNodes))
	s.add(false, "removed variables", count(stats.RemovedVariables))
	s.render(w)
}

// reportWeights lists the weights of the lowered function, public ones highlighted.
func reportWeights(w io.Writer, fn *ir.Function) {
	s := &section{
		title:        fmt.Sprintf("Function %q: %d instructions", fn.Name, len(fn.Instructions)),
		headers:      []string{"Weight", "Visibility", "Shape", "Size", "Bytes"},
		firstNumeric: 3,
	}
	var totalSize int
	var totalMemory uintptr
	for _, weight := range fn.Weights {
		shape := weight.Shape()
		s.add(weight.Visibility() == graph.Public, weight.Name(), weight.Visibility().String(), shape.String(),
			count(shape.Size()), humanize.Bytes(uint64(shape.Memory())))
		totalSize += shape.Size()
		totalMemory += shape.Memory()
	}
	s.add(false, "total", "", "", count(totalSize), humanize.Bytes(uint64(totalMemory)))
	s.render(w)
}

func reportBackend(w io.Writer, backend backends.Backend) {
	s := &section{title: "Backend", headers: []string{"Property", "Value"}, firstNumeric: 2}
	s.add(false, "kind", backend.Kind().String())
	s.add(false, "name", backend.Name())
	s.add(false, "function id", backend.Function().ID.String())
	s.add(false, "compiled in", fmt.Sprintf("%v", backends.Registered()))
	s.add(true, "status", "compiled")
	s.render(w)
}
