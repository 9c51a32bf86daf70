// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/gomlx/graphopt/backends"
	"github.com/gomlx/graphopt/pkg/core/graph"
	"github.com/gomlx/graphopt/pkg/core/graph/graphtest"
	"github.com/gomlx/graphopt/pkg/core/ir"
	"github.com/gomlx/graphopt/pkg/core/optimizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoNetwork(t *testing.T) {
	g := demoNetwork(2, 1)
	graphtest.AssertConsistent(t, g)
	assert.Equal(t, 3, graphtest.CountType(g, graph.NodeTypeBatchNorm))
	assert.Equal(t, 4, graphtest.CountType(g, graph.NodeTypeTranspose))

	opts := optimizer.DefaultOptions()
	opts.Verify = true
	stats, err := optimizer.OptimizeWithOptions(g, opts)
	require.NoError(t, err)
	graphtest.AssertConsistent(t, g)
	assert.Equal(t, 3, stats.Rewrites[optimizer.PassSinkCode])
	assert.Equal(t, 1, stats.Rewrites[optimizer.PassOptimizePool])
	assert.Equal(t, 2, stats.Rewrites[optimizer.PassFoldBatchNorm])
	assert.Equal(t, 8, stats.RemovedVariables)

	// Only the normalization of "y" remains, it doesn't follow a convolution.
	assert.Equal(t, 1, graphtest.CountType(g, graph.NodeTypeBatchNorm))
	// "x" to NHWC and the concatenation back to NCHW: the transposes around "y" cancelled out.
	assert.Equal(t, 2, graphtest.CountType(g, graph.NodeTypeTranspose))
	assert.Nil(t, g.NodeByName("unused"))

	fn, err := ir.Lower(g)
	require.NoError(t, err)
	require.NoError(t, fn.Verify())
	assert.Equal(t, 2, fn.NumOutputs())
}

func TestRun(t *testing.T) {
	t.Setenv(backends.GRAPHOPT_BACKEND, "interpreter")
	var buf bytes.Buffer
	require.NoError(t, run(&buf, demoNetwork(1, 1), optimizer.DefaultOptions()))
	report := buf.String()
	for _, want := range []string{"inception_block", optimizer.PassFoldBatchNorm, "conv_a_filter", "interpreter", "compiled"} {
		assert.Contains(t, report, want)
	}

	opts := optimizer.DefaultOptions()
	opts.SinkIterations = 0
	assert.Error(t, run(&buf, demoNetwork(1, 1), opts))
}

func TestReportPasses(t *testing.T) {
	opts := optimizer.DefaultOptions()
	opts.Mode = optimizer.Train
	stats, err := optimizer.OptimizeWithOptions(demoNetwork(1, 1), opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	reportPasses(&buf, opts, stats)
	report := buf.String()
	assert.Contains(t, report, "mode=train")
	// Folding only runs when inferring.
	assert.Regexp(t, regexp.MustCompile(regexp.QuoteMeta(optimizer.PassFoldBatchNorm)+`\s+\S\s+-\s`), report)
	assert.Regexp(t, regexp.MustCompile(regexp.QuoteMeta(optimizer.PassSinkCode)+`\s+\S\s+\d+\s`), report)
}
