package test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ramkumarar/planprobe/internal/inspect"
	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves a path relative to the repository rootPath (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// LoadSampleRaw reads a fixture from samples/ relative to the repository root.
func LoadSampleRaw(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(RootPath(t), "samples", rel))
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	return string(data)
}

// LoadSamplePlan parses a plan fixture into a tree.
func LoadSamplePlan(t *testing.T, rel string) *model.PlanNode {
	t.Helper()
	plan, err := parser.Parse([]byte(LoadSampleRaw(t, rel)))
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return plan
}

// LoadSampleSummary parses a plan fixture and derives its shape metrics.
func LoadSampleSummary(t *testing.T, rel string) *inspect.TreeSummary {
	t.Helper()
	summary, err := inspect.Summarize(LoadSamplePlan(t, rel))
	if err != nil {
		t.Fatalf("summarize plan: %v", err)
	}
	return summary
}

// LoadSampleCapture wraps a plan fixture into a capture for a given case.
func LoadSampleCapture(t *testing.T, label, condition, rel string) *model.Capture {
	t.Helper()
	raw := LoadSampleRaw(t, rel)
	format := model.FormatText
	if strings.HasSuffix(rel, ".json") {
		format = model.FormatJSON
	}
	plan, err := parser.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return &model.Capture{
		Label:     label,
		Condition: condition,
		Parameter: label,
		Raw:       raw,
		Format:    format,
		Plan:      plan,
		RowCount:  -1,
	}
}
