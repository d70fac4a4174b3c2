package report

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ramkumarar/planprobe/internal/config"
	"github.com/ramkumarar/planprobe/internal/model"
)

// Severity expresses the urgency of a note.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Icon returns the marker used in rendered output.
func (s Severity) Icon() string {
	switch s {
	case SeverityCritical:
		return "🔥"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// Note is an observation about a run, tied to a case when Label is set.
type Note struct {
	Severity Severity `json:"severity"`
	Label    string   `json:"label,omitempty"`
	Text     string   `json:"text"`
}

// BuildNotes derives human-readable observations from a run report. The
// comparator only records what changed; whether a change deserves attention
// is decided here.
func BuildNotes(r *Report) []Note {
	if r == nil {
		return nil
	}
	var out []Note

	for _, c := range r.Cases {
		switch c.Status {
		case StatusFailed:
			out = append(out, Note{
				Severity: SeverityCritical,
				Label:    c.Label,
				Text:     fmt.Sprintf("%s: case failed: %s", c.Label, c.Error),
			})
			continue
		case StatusSkipped:
			text := c.Label + ": skipped"
			if c.Error != "" {
				text = fmt.Sprintf("%s: skipped: %s", c.Label, c.Error)
			}
			out = append(out, Note{Severity: SeverityWarning, Label: c.Label, Text: text})
			continue
		}

		if note := rowExpectationNote(c); note != nil {
			out = append(out, *note)
		}
		if c.Comparison == nil {
			continue
		}
		if c.Comparison.ScanMethodChanged {
			out = append(out, Note{
				Severity: SeverityInfo,
				Label:    c.Label,
				Text: fmt.Sprintf("%s: scan method changed %s → %s (cost %+.2f)",
					c.Label, c.Comparison.BeforeOp, c.Comparison.AfterOp, c.Comparison.CostDelta),
			})
		}
		if c.Comparison.MaterialCost && c.Comparison.CostDelta > 0 {
			out = append(out, Note{
				Severity: SeverityWarning,
				Label:    c.Label,
				Text: fmt.Sprintf("%s: estimated cost rose by %.2f (%s → %s)",
					c.Label, c.Comparison.CostDelta, c.Comparison.BeforeOp, c.Comparison.AfterOp),
			})
		}
		for _, mismatch := range c.Comparison.Mismatches {
			out = append(out, Note{
				Severity: SeverityInfo,
				Label:    c.Label,
				Text: fmt.Sprintf("%s: node %s changed %s → %s",
					c.Label, mismatch.Position, opOrAbsent(mismatch.Before), opOrAbsent(mismatch.After)),
			})
		}
	}

	if max := config.Active().Report.MaxNotes; max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func rowExpectationNote(c CaseResult) *Note {
	if c.Expected == nil || c.RowCount < 0 || c.RowCount == *c.Expected {
		return nil
	}
	return &Note{
		Severity: SeverityWarning,
		Label:    c.Label,
		Text: fmt.Sprintf("%s: matched %s rows, expected %s",
			c.Label, humanize.Comma(c.RowCount), humanize.Comma(*c.Expected)),
	}
}

func opOrAbsent(op model.Operation) string {
	if op == "" {
		return "(absent)"
	}
	return string(op)
}
