// Package html writes a standalone HTML rendering of a scenario report.
package html

import (
	"fmt"
	"html/template"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/report"
)

// Options configures the HTML renderer.
type Options struct {
	Title         string
	IncludeStyles bool
}

// Render writes an HTML report with one row per scenario case.
func Render(w io.Writer, r *report.Report, opts Options) error {
	if r == nil {
		return errors.New("html render: empty report")
	}
	if opts.Title == "" {
		opts.Title = "planprobe report"
	}
	data := buildTemplateData(r, opts)
	tpl, err := template.New("report").Parse(reportTemplate)
	if err != nil {
		return errors.Wrap(err, "html render: compile template")
	}
	if err := tpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "html render: execute template")
	}
	return nil
}

type templateData struct {
	Title         string
	IncludeStyles bool
	Suite         string
	Template      string
	Mode          string
	Comparison    bool
	OKCount       int
	FailedCount   int
	Cases         []caseView
	Notes         []noteView
}

type caseView struct {
	Label     string
	Parameter string
	Rows      string
	Before    string
	After     string
	CostDelta string
	RowDelta  string
	Changed   string
	Status    string
}

type noteView struct {
	Icon     string
	Severity string
	Text     string
}

func buildTemplateData(r *report.Report, opts Options) templateData {
	data := templateData{
		Title:         opts.Title,
		IncludeStyles: opts.IncludeStyles,
		Suite:         r.Suite,
		Template:      r.Template,
		Mode:          r.Mode,
	}

	for _, c := range r.Cases {
		if c.Status == report.StatusOK {
			data.OKCount++
		} else {
			data.FailedCount++
		}
		if c.Comparison != nil || c.After != nil {
			data.Comparison = true
		}
		data.Cases = append(data.Cases, buildCaseView(c))
	}

	for _, note := range r.Notes {
		data.Notes = append(data.Notes, noteView{
			Icon:     note.Severity.Icon(),
			Severity: string(note.Severity),
			Text:     note.Text,
		})
	}
	return data
}

func buildCaseView(c report.CaseResult) caseView {
	view := caseView{
		Label:     c.Label,
		Parameter: fmt.Sprintf("%v", c.Parameter),
		Rows:      "-",
		Before:    planLabel(c.Before),
		After:     planLabel(c.After),
		CostDelta: "-",
		RowDelta:  "-",
		Changed:   "-",
		Status:    string(c.Status),
	}
	if c.RowCount >= 0 {
		view.Rows = humanize.Comma(c.RowCount)
	}
	if cmp := c.Comparison; cmp != nil {
		view.CostDelta = fmt.Sprintf("%+.2f", cmp.CostDelta)
		view.RowDelta = fmt.Sprintf("%+d", cmp.RowEstimateDelta)
		if cmp.ScanMethodChanged {
			view.Changed = "yes"
		} else {
			view.Changed = "no"
		}
	}
	return view
}

func planLabel(capture *model.Capture) string {
	if capture == nil || capture.Plan == nil {
		return "-"
	}
	return capture.Plan.Summary()
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	{{- if .IncludeStyles }}
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; padding: 0; background: #f7f7f8; color: #202124; }
		main { max-width: 1080px; margin: 0 auto; padding: 32px 24px 48px; }
		header { background: #212a3b; color: #f7f7f8; padding: 32px 24px; }
		header h1 { margin: 0 0 8px; font-size: 28px; }
		header p { margin: 4px 0; opacity: 0.8; }
		header code { background: rgba(247,247,248,0.12); padding: 2px 6px; border-radius: 4px; }
		section { margin-top: 32px; }
		section h2 { margin-bottom: 12px; font-size: 20px; }
		table { width: 100%; border-collapse: collapse; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 6px 18px rgba(13,28,39,0.12); }
		th, td { padding: 10px 14px; text-align: left; font-size: 14px; border-bottom: 1px solid rgba(91,112,131,0.16); }
		th { background: #253043; color: #f7f7f8; font-weight: 600; }
		tr:last-child td { border-bottom: none; }
		td.num { text-align: right; font-variant-numeric: tabular-nums; }
		td.status-ok { color: #0a7d38; font-weight: 600; }
		td.status-failed { color: #c22525; font-weight: 600; }
		td.status-skipped { color: #b25600; font-weight: 600; }
		.note-list { list-style: none; margin: 0; padding: 0; display: flex; flex-direction: column; gap: 10px; }
		.note-list li { background: #fff; border-radius: 12px; padding: 14px 16px; box-shadow: 0 4px 12px rgba(13,28,39,0.10); font-size: 14px; display: flex; align-items: center; gap: 10px; }
		.note-list li.severity-critical { border-left: 4px solid #f44747; }
		.note-list li.severity-warning { border-left: 4px solid #faae32; }
		.note-list li.severity-info { border-left: 4px solid rgba(33,42,59,0.15); }
	</style>
	{{- end }}
</head>
<body>
	<header>
		<h1>{{.Title}}</h1>
		<p>Suite {{.Suite}} · Mode {{.Mode}}</p>
		<p>Template <code>{{.Template}}</code></p>
		<p>{{.OKCount}} ok · {{.FailedCount}} not ok</p>
	</header>
	<main>
		<section>
			<h2>Cases</h2>
			<table>
				<thead>
					{{- if .Comparison }}
					<tr><th>Label</th><th>Parameter</th><th>Rows</th><th>Before</th><th>After</th><th>Δ cost</th><th>Δ rows</th><th>Changed</th><th>Status</th></tr>
					{{- else }}
					<tr><th>Label</th><th>Parameter</th><th>Rows</th><th>Plan</th><th>Status</th></tr>
					{{- end }}
				</thead>
				<tbody>
					{{- range .Cases }}
					{{- if $.Comparison }}
					<tr>
						<td>{{.Label}}</td>
						<td>{{.Parameter}}</td>
						<td class="num">{{.Rows}}</td>
						<td>{{.Before}}</td>
						<td>{{.After}}</td>
						<td class="num">{{.CostDelta}}</td>
						<td class="num">{{.RowDelta}}</td>
						<td>{{.Changed}}</td>
						<td class="status-{{.Status}}">{{.Status}}</td>
					</tr>
					{{- else }}
					<tr>
						<td>{{.Label}}</td>
						<td>{{.Parameter}}</td>
						<td class="num">{{.Rows}}</td>
						<td>{{.Before}}</td>
						<td class="status-{{.Status}}">{{.Status}}</td>
					</tr>
					{{- end }}
					{{- end }}
				</tbody>
			</table>
		</section>

		{{- if .Notes }}
		<section>
			<h2>Notes</h2>
			<ul class="note-list">
				{{- range .Notes }}
				<li class="severity-{{.Severity}}"><span>{{.Icon}}</span><span>{{.Text}}</span></li>
				{{- end }}
			</ul>
		</section>
		{{- end }}
	</main>
</body>
</html>
`
