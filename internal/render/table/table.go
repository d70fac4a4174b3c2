// Package table renders a scenario report as an aligned terminal table.
package table

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/report"
)

// Render writes one row per scenario case, in the report's case order.
func Render(w io.Writer, r *report.Report) error {
	if w == nil {
		return errors.New("table: writer is nil")
	}
	if r == nil {
		return errors.New("table: empty report")
	}

	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetColumnSeparator("")
	t.SetTablePadding("  ")
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetReflowDuringAutoWrap(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)

	if r.HasComparisons() {
		t.SetHeader([]string{"label", "parameter", "rows", "before", "after", "Δ cost", "Δ rows", "changed", "status"})
		for _, c := range r.Cases {
			t.Append([]string{
				c.Label,
				fmt.Sprintf("%v", c.Parameter),
				rowsCell(c),
				planCell(c.Before),
				planCell(c.After),
				deltaCell(c, func(cmp *model.Comparison) string { return fmt.Sprintf("%+.2f", cmp.CostDelta) }),
				deltaCell(c, func(cmp *model.Comparison) string { return fmt.Sprintf("%+d", cmp.RowEstimateDelta) }),
				changedCell(c),
				string(c.Status),
			})
		}
	} else {
		t.SetHeader([]string{"label", "parameter", "rows", "plan", "status"})
		for _, c := range r.Cases {
			t.Append([]string{
				c.Label,
				fmt.Sprintf("%v", c.Parameter),
				rowsCell(c),
				planCell(c.Before),
				string(c.Status),
			})
		}
	}
	t.Render()
	return nil
}

func rowsCell(c report.CaseResult) string {
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

func deltaCell(c report.CaseResult, format func(*model.Comparison) string) string {
	if c.Comparison == nil {
		return "-"
	}
	return format(c.Comparison)
}

func changedCell(c report.CaseResult) string {
	if c.Comparison == nil {
		return "-"
	}
	if c.Comparison.ScanMethodChanged {
		return "yes"
	}
	return "no"
}
