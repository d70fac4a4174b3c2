package scenario_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/scenario"
	"github.com/ramkumarar/planprobe/test"
)

func TestParseSuiteDefaults(t *testing.T) {
	suite, err := scenario.ParseSuite([]byte(`
name: minimal
template: SELECT * FROM t WHERE k = ?
cases:
  - label: one
    value: 1
`))
	require.NoError(t, err)
	assert.Equal(t, scenario.ModeBeforeAfter, suite.Mode)
	assert.Equal(t, scenario.TransitionAnalyze, suite.Transition)
	assert.Equal(t, "before", suite.Before.Condition)
	assert.Equal(t, "after", suite.After.Condition)
	assert.Nil(t, suite.CountRows)
}

func TestParseSuiteRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing name", "template: SELECT 1 WHERE a = ?\ncases: [{label: x, value: 1}]"},
		{"no placeholder", "name: s\ntemplate: SELECT 1\ncases: [{label: x, value: 1}]"},
		{"two placeholders", "name: s\ntemplate: SELECT 1 WHERE a = ? AND b = ?\ncases: [{label: x, value: 1}]"},
		{"no cases", "name: s\ntemplate: SELECT 1 WHERE a = ?"},
		{"unlabeled case", "name: s\ntemplate: SELECT 1 WHERE a = ?\ncases: [{value: 1}]"},
		{"duplicate labels", "name: s\ntemplate: SELECT 1 WHERE a = ?\ncases: [{label: x, value: 1}, {label: x, value: 2}]"},
		{"bad mode", "name: s\ntemplate: SELECT 1 WHERE a = ?\nmode: pairwise\ncases: [{label: x, value: 1}]"},
		{"bad transition", "name: s\ntemplate: SELECT 1 WHERE a = ?\ntransition: vacuum\ncases: [{label: x, value: 1}]"},
		{"bad format", "name: s\ntemplate: SELECT 1 WHERE a = ?\nformat: xml\ncases: [{label: x, value: 1}]"},
		{"not yaml", "::::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.ParseSuite([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadSuiteSample(t *testing.T) {
	suite, err := scenario.LoadSuite(filepath.Join(test.RootPath(t), "samples", "suite.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "department-selectivity", suite.Name)
	assert.Equal(t, scenario.ModeBeforeAfter, suite.Mode)
	assert.Equal(t, scenario.TransitionAnalyze, suite.Transition)
	assert.Equal(t, []string{"employee_simple"}, suite.Tables)
	require.NotNil(t, suite.CountRows)
	assert.True(t, *suite.CountRows)

	assert.Equal(t, "stale", suite.Before.Condition)
	assert.False(t, suite.Before.StatsFresh)
	assert.Equal(t, "analyzed", suite.After.Condition)
	assert.True(t, suite.After.StatsFresh)

	require.Len(t, suite.Cases, 4)
	assert.Equal(t, model.ScenarioCase{Label: "Sales", Value: "Sales", ExpectedRows: suite.Cases[0].ExpectedRows}, suite.Cases[0])
	require.NotNil(t, suite.Cases[0].ExpectedRows)
	assert.EqualValues(t, 9444, *suite.Cases[0].ExpectedRows)
}

func TestLoadSuiteMissingFile(t *testing.T) {
	_, err := scenario.LoadSuite(filepath.Join(test.RootPath(t), "samples", "nope.yaml"))
	assert.Error(t, err)
}
