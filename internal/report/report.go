// Package report assembles scenario case outcomes into run reports.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/ramkumarar/planprobe/internal/model"
)

// Status is the per-case outcome. A run never hides a partial failure
// behind an overall success.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// CaseResult is the outcome of one scenario case.
type CaseResult struct {
	Label      string            `json:"label"`
	Parameter  any               `json:"parameter"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	RowCount   int64             `json:"row_count"`
	Expected   *int64            `json:"expected_rows,omitempty"`
	Before     *model.Capture    `json:"before,omitempty"`
	After      *model.Capture    `json:"after,omitempty"`
	Comparison *model.Comparison `json:"comparison,omitempty"`
}

// Report is the outcome of a scenario run, one entry per case in input order.
type Report struct {
	Suite      string       `json:"suite"`
	Template   string       `json:"template"`
	Mode       string       `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cases      []CaseResult `json:"cases"`
	Notes      []Note       `json:"notes,omitempty"`
}

// Failed reports whether any case did not produce a result.
func (r *Report) Failed() bool {
	for _, c := range r.Cases {
		if c.Status != StatusOK {
			return true
		}
	}
	return false
}

// JSON marshals the report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "# planprobe: %s\n\n", r.Suite)
	_, _ = fmt.Fprintf(&b, "- Template: `%s`\n", r.Template)
	_, _ = fmt.Fprintf(&b, "- Mode: %s\n", r.Mode)
	if !r.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(&b, "- Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n## Cases\n")

	if r.HasComparisons() {
		b.WriteString("| Label | Parameter | Rows | Before | After | Δ cost | Δ rows | Changed | Status |\n")
		b.WriteString("|---|---|---:|---|---|---:|---:|---|---|\n")
		for _, c := range r.Cases {
			_, _ = fmt.Fprintf(&b, "| %s | %v | %s | %s | %s | %s | %s | %s | %s |\n",
				c.Label, c.Parameter, rowsCell(c), planCell(c.Before), planCell(c.After),
				costDeltaCell(c.Comparison), rowDeltaCell(c.Comparison), changedCell(c.Comparison), c.Status)
		}
	} else {
		b.WriteString("| Label | Parameter | Rows | Plan | Status |\n")
		b.WriteString("|---|---|---:|---|---|\n")
		for _, c := range r.Cases {
			_, _ = fmt.Fprintf(&b, "| %s | %v | %s | %s | %s |\n",
				c.Label, c.Parameter, rowsCell(c), planCell(c.Before), c.Status)
		}
	}

	b.WriteString("\n### Notes\n")
	if len(r.Notes) == 0 {
		b.WriteString("- No notable plan changes detected\n")
	} else {
		for _, note := range r.Notes {
			_, _ = fmt.Fprintf(&b, "- %s %s\n", note.Severity.Icon(), note.Text)
		}
	}
	return b.String()
}

// HasComparisons reports whether any case carries before/after data, which
// switches renderers to the comparison layout.
func (r *Report) HasComparisons() bool {
	for _, c := range r.Cases {
		if c.Comparison != nil || c.After != nil {
			return true
		}
	}
	return false
}

func rowsCell(c CaseResult) string {
	if c.RowCount < 0 {
		return "-"
	}
	return humanize.Comma(c.RowCount)
}

func planCell(capture *model.Capture) string {
	if capture == nil || capture.Plan == nil {
		return "-"
	}
	return capture.Plan.Summary()
}

func costDeltaCell(cmp *model.Comparison) string {
	if cmp == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f", cmp.CostDelta)
}

func rowDeltaCell(cmp *model.Comparison) string {
	if cmp == nil {
		return "-"
	}
	return fmt.Sprintf("%+d", cmp.RowEstimateDelta)
}

func changedCell(cmp *model.Comparison) string {
	if cmp == nil {
		return "-"
	}
	if cmp.ScanMethodChanged {
		return "yes"
	}
	return "no"
}
