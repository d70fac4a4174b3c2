package tree_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/render/tree"
	"github.com/ramkumarar/planprobe/test"
)

func TestRenderSampleTree(t *testing.T) {
	summary := test.LoadSampleSummary(t, "join_hash.txt")

	var buf bytes.Buffer
	err := tree.Render(&buf, summary, tree.Options{EnableColor: false})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Total cost 540.30")
	assert.Contains(t, out, "Nodes 4 | Depth 2 | Scans 2 | Joins 1")
	assert.Contains(t, out, "Hash Join (cost=270.12..540.30)")
	assert.Contains(t, out, "`-- ")
	assert.NotContains(t, out, "\033[", "color disabled must not emit ANSI codes")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, 7, len(lines), "header, blank, one line per node")
}

func TestRenderMaxDepthElides(t *testing.T) {
	summary := test.LoadSampleSummary(t, "join_hash.txt")

	var buf bytes.Buffer
	require.NoError(t, tree.Render(&buf, summary, tree.Options{MaxDepth: 1}))
	assert.Contains(t, buf.String(), "... (1 more nodes)")
	assert.NotContains(t, buf.String(), "customers")
}

func TestRenderColor(t *testing.T) {
	summary := test.LoadSampleSummary(t, "department_forced.txt")

	var buf bytes.Buffer
	require.NoError(t, tree.Render(&buf, summary, tree.Options{EnableColor: true}))
	assert.Contains(t, buf.String(), "\033[", "dominant nodes are colored")
}

func TestRenderRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, tree.Render(&buf, nil, tree.Options{}))
	assert.Error(t, tree.Render(nil, test.LoadSampleSummary(t, "join_hash.txt"), tree.Options{}))
}
