package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/test"
)

func TestApplyDefaultAndFile(t *testing.T) {
	Use(Default())
	t.Cleanup(func() { Use(Default()) })

	assert.NotZero(t, Active().Capture.TimeoutSeconds)
	assert.NotZero(t, Active().Compare.TolerancePercent)

	root := test.RootPath(t)
	path := filepath.Join(root, "samples", "config.example.json")
	require.NoError(t, Apply(path))

	cfg := Active()
	assert.Equal(t, 2.5, cfg.Compare.TolerancePercent)
	assert.True(t, cfg.Compare.FullTree)
	assert.Equal(t, 6, cfg.Report.MaxNotes)
	assert.Equal(t, 10, cfg.Capture.TimeoutSeconds)

	require.NoError(t, Apply(""))
	assert.Equal(t, Default(), Active())
}

func TestApplyMissingFile(t *testing.T) {
	err := Apply(filepath.Join(os.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}
