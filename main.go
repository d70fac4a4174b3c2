package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/capture"
	"github.com/ramkumarar/planprobe/internal/config"
	"github.com/ramkumarar/planprobe/internal/diff"
	"github.com/ramkumarar/planprobe/internal/inspect"
	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/parser"
	"github.com/ramkumarar/planprobe/internal/render/html"
	"github.com/ramkumarar/planprobe/internal/render/table"
	"github.com/ramkumarar/planprobe/internal/render/tree"
	"github.com/ramkumarar/planprobe/internal/report"
	"github.com/ramkumarar/planprobe/internal/scenario"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "capture":
		err = captureCommand(args)
	case "scenario":
		err = scenarioCommand(args)
	case "diff":
		err = diffCommand(args)
	case "parse":
		err = parseCommand(args)
	case "version":
		err = versionCommand(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`planprobe - PostgreSQL query-plan capture and regression harness

Usage:
  planprobe <command> [options]

Commands:
  capture   Run EXPLAIN for one query template and parameter
  scenario  Run a scenario suite and report per-case plan changes
  diff      Compare two saved plans and report what changed
  parse     Normalize saved EXPLAIN output (text or JSON)
  version   Show CLI version information

Use "planprobe <command> -h" for command-specific help.`)
}

func applyConfigPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("PLANPROBE_CONFIG"))
	}
	return config.Apply(path)
}

// settingsFlag collects repeated --set name=value pairs.
type settingsFlag map[string]string

func (f settingsFlag) String() string {
	if len(f) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(f))
	for name, value := range f {
		pairs = append(pairs, name+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (f settingsFlag) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return errors.Newf("expected name=value, got %q", raw)
	}
	f[name] = strings.TrimSpace(value)
	return nil
}

func captureCommand(args []string) error {
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: planprobe capture --url <url> --query \"SELECT ... WHERE col = ?\" --param <value> [--mode raw|tree|json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	envURL := os.Getenv("DATABASE_URL")

	settings := settingsFlag{}
	var (
		urlFlag    = fs.String("url", envURL, "PostgreSQL connection string; defaults to $DATABASE_URL")
		inlineSQL  = fs.String("query", "", "Query template with exactly one ? or $1 placeholder")
		sqlPath    = fs.String("sql", "", "Path to a file holding the query template")
		param      = fs.String("param", "", "Value bound to the template placeholder")
		label      = fs.String("label", "", "Case label (defaults to the parameter value)")
		condition  = fs.String("condition", "", "Condition tag recorded on the capture")
		analyze    = fs.Bool("analyze", false, "Run EXPLAIN ANALYZE (executes the statement)")
		format     = fs.String("format", "text", "EXPLAIN output format: text or json")
		countRows  = fs.Bool("count-rows", false, "Probe the matched row count with SELECT count(*)")
		statsFresh = fs.Bool("stats-fresh", false, "Tag the capture as taken under current statistics")
		refresh    = fs.Bool("refresh-stats", false, "Run ANALYZE on the whole database before capturing")
		mode       = fs.String("mode", "raw", "Output mode: raw, tree, or json")
		outPath    = fs.String("out", "", "Output path (stdout if omitted)")
		color      = fs.Bool("color", true, "Enable ANSI colors for tree output")
		maxDepth   = fs.Int("max-depth", 0, "Limit tree depth (tree mode)")
		timeout    = fs.Duration("timeout", 0, "Optional capture timeout, e.g. 45s")
		configPath = fs.String("config", "", "Path to configuration file (JSON). Falls back to $PLANPROBE_CONFIG")
	)
	fs.Var(settings, "set", "Planner setting scoped to this capture, name=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}

	templateText, err := readTemplate(*inlineSQL, *sqlPath)
	if err != nil {
		return err
	}
	tpl, err := capture.NewTemplate(templateText)
	if err != nil {
		return err
	}
	if *param == "" {
		return errors.New("--param is required")
	}
	caseLabel := strings.TrimSpace(*label)
	if caseLabel == "" {
		caseLabel = *param
	}

	planFormat := model.PlanFormat(*format)
	switch planFormat {
	case model.FormatText, model.FormatJSON:
	default:
		return errors.Newf("unknown format %q (expected text or json)", *format)
	}

	ctx := context.Background()
	repo, err := connect(ctx, *urlFlag, *timeout)
	if err != nil {
		return err
	}
	defer repo.Close()

	if *refresh {
		if err := repo.RefreshStatistics(ctx); err != nil {
			return err
		}
	}

	got, err := repo.Capture(ctx, tpl, model.ScenarioCase{Label: caseLabel, Value: *param}, capture.CaptureOptions{
		Condition:  *condition,
		Analyze:    *analyze,
		Format:     planFormat,
		Settings:   settings,
		CountRows:  *countRows,
		StatsFresh: *statsFresh,
	})
	if err != nil {
		return err
	}

	target, done, err := outputWriter(*outPath)
	if err != nil {
		return err
	}
	defer done()

	switch *mode {
	case "raw":
		if got.Format == model.FormatJSON {
			pretty, err := indentJSON([]byte(got.Raw))
			if err != nil {
				return err
			}
			_, err = target.Write(pretty)
			return err
		}
		_, err = io.WriteString(target, strings.TrimRight(got.Raw, "\n")+"\n")
		return err
	case "tree":
		summary, err := inspect.Summarize(got.Plan)
		if err != nil {
			return err
		}
		return tree.Render(target, summary, tree.Options{EnableColor: enableColor(fs, *color), MaxDepth: *maxDepth})
	case "json":
		payload, err := json.MarshalIndent(got, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal capture")
		}
		_, err = target.Write(append(payload, '\n'))
		return err
	default:
		return errors.Newf("unknown mode %q (expected raw, tree, or json)", *mode)
	}
}

func scenarioCommand(args []string) error {
	fs := flag.NewFlagSet("scenario", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: planprobe scenario --url <url> --suite suite.yaml [--format table|md|json|html]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	envURL := os.Getenv("DATABASE_URL")

	var (
		urlFlag     = fs.String("url", envURL, "PostgreSQL connection string; defaults to $DATABASE_URL")
		suitePath   = fs.String("suite", "", "Path to the scenario suite (YAML)")
		format      = fs.String("format", "table", "Output format: table, md, json, or html")
		outPath     = fs.String("out", "", "Output path (stdout if omitted)")
		title       = fs.String("title", "planprobe report", "Report title (HTML)")
		includeCSS  = fs.Bool("css", true, "Include inline styles (HTML)")
		parallelism = fs.Int("parallelism", 0, "Concurrent captures per phase (default from config)")
		tolerance   = fs.Float64("tolerance", 0, "Percent cost delta classified as material (default from config)")
		fullTree    = fs.Bool("full-tree", false, "Record every positional operation mismatch, not only the root")
		timeout     = fs.Duration("timeout", 0, "Optional per-capture timeout, e.g. 45s")
		configPath  = fs.String("config", "", "Path to configuration file (JSON). Falls back to $PLANPROBE_CONFIG")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}
	if *suitePath == "" {
		return errors.New("--suite is required")
	}

	suite, err := scenario.LoadSuite(*suitePath)
	if err != nil {
		return err
	}

	// Flags override the configured comparison defaults for this run only.
	if *tolerance > 0 || *fullTree {
		cfg := config.Active()
		if *tolerance > 0 {
			cfg.Compare.TolerancePercent = *tolerance
		}
		if *fullTree {
			cfg.Compare.FullTree = true
		}
		config.Use(cfg)
	}

	ctx := context.Background()
	repo, err := connect(ctx, *urlFlag, *timeout)
	if err != nil {
		return err
	}
	defer repo.Close()

	rep, runErr := scenario.NewRunner(repo, *parallelism).Run(ctx, suite)
	if rep == nil {
		return runErr
	}

	if err := renderReport(rep, *format, *outPath, *title, *includeCSS); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if rep.Failed() {
		return errors.Newf("%d of %d cases did not produce a result", incompleteCases(rep), len(rep.Cases))
	}
	return nil
}

func diffCommand(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: planprobe diff --before base.txt --after target.txt [--format text|json]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		beforePath = fs.String("before", "", "Path to the baseline plan (EXPLAIN text or JSON)")
		afterPath  = fs.String("after", "", "Path to the comparison plan (EXPLAIN text or JSON)")
		label      = fs.String("label", "offline", "Case label recorded on both captures")
		fullTree   = fs.Bool("full-tree", false, "Record every positional operation mismatch, not only the root")
		tolerance  = fs.Float64("tolerance", 0, "Percent cost delta classified as material (default from config)")
		format     = fs.String("format", "text", "Output format: text or json")
		outPath    = fs.String("out", "", "Output path (stdout if omitted)")
		configPath = fs.String("config", "", "Path to configuration file (JSON). Falls back to $PLANPROBE_CONFIG")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}
	if *beforePath == "" || *afterPath == "" {
		return errors.New("--before and --after are required")
	}

	before, err := loadCapture(*beforePath, *label)
	if err != nil {
		return errors.Wrap(err, "load before")
	}
	after, err := loadCapture(*afterPath, *label)
	if err != nil {
		return errors.Wrap(err, "load after")
	}

	cmp, err := diff.Compare(before, after, diff.Options{
		FullTree:         *fullTree,
		TolerancePercent: *tolerance,
	})
	if err != nil {
		return err
	}

	target, done, err := outputWriter(*outPath)
	if err != nil {
		return err
	}
	defer done()

	switch *format {
	case "text":
		_, err = io.WriteString(target, formatComparison(cmp, before, after))
		return err
	case "json":
		payload, err := json.MarshalIndent(cmp, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal comparison")
		}
		_, err = target.Write(append(payload, '\n'))
		return err
	default:
		return errors.Newf("unsupported format %q", *format)
	}
}

func parseCommand(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "Usage: planprobe parse --input plan.txt [--mode canonical|tree|json] [--out file]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var (
		input      = fs.String("input", "", "Path to saved EXPLAIN output (text or JSON)")
		mode       = fs.String("mode", "canonical", "Output mode: canonical, tree, or json")
		outPath    = fs.String("out", "", "Output path (stdout if omitted)")
		color      = fs.Bool("color", true, "Enable ANSI colors for tree output")
		maxDepth   = fs.Int("max-depth", 0, "Limit tree depth (tree mode)")
		configPath = fs.String("config", "", "Path to configuration file (JSON). Falls back to $PLANPROBE_CONFIG")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}
	if err := applyConfigPath(*configPath); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("--input is required")
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		return errors.Wrapf(err, "read %s", *input)
	}
	plan, err := parser.Parse(data)
	if err != nil {
		return err
	}

	target, done, err := outputWriter(*outPath)
	if err != nil {
		return err
	}
	defer done()

	switch *mode {
	case "canonical":
		_, err = io.WriteString(target, parser.FormatText(plan))
		return err
	case "tree":
		summary, err := inspect.Summarize(plan)
		if err != nil {
			return err
		}
		return tree.Render(target, summary, tree.Options{EnableColor: enableColor(fs, *color), MaxDepth: *maxDepth})
	case "json":
		payload, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal plan")
		}
		_, err = target.Write(append(payload, '\n'))
		return err
	default:
		return errors.Newf("unknown mode %q (expected canonical, tree, or json)", *mode)
	}
}

func versionCommand(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	short := fs.Bool("short", false, "Print only the version number")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.Usage()
			return nil
		}
		return err
	}

	v, meta := resolveVersion()
	if *short {
		fmt.Println(v)
		return nil
	}
	if meta != "" {
		fmt.Printf("planprobe %s (%s)\n", v, meta)
	} else {
		fmt.Printf("planprobe %s\n", v)
	}
	return nil
}

func resolveVersion() (string, string) {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}

	var commit, buildTime string
	var dirty bool
	if info, ok := debug.ReadBuildInfo(); ok {
		if (v == "dev" || v == "(devel)") &&
			info.Main.Version != "" &&
			info.Main.Version != "(devel)" &&
			!strings.HasPrefix(info.Main.Version, "v0.0.0-") {
			v = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				buildTime = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}

	var details []string
	if commit != "" {
		short := commit
		if len(short) > 12 {
			short = short[:12]
		}
		if dirty {
			short += "*"
			dirty = false
		}
		details = append(details, fmt.Sprintf("commit %s", short))
	}
	if buildTime != "" {
		details = append(details, fmt.Sprintf("built %s", buildTime))
	}
	if dirty {
		details = append(details, "modified workspace")
	}

	return v, strings.Join(details, ", ")
}

func connect(ctx context.Context, url string, timeout time.Duration) (*capture.Repository, error) {
	connection := strings.TrimSpace(url)
	if connection == "" {
		return nil, errors.New("--url is required or set $DATABASE_URL")
	}
	cfg := config.Active().Capture
	if timeout <= 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return capture.Connect(ctx, connection, capture.Options{
		MaxConns: cfg.MaxConns,
		Timeout:  timeout,
	})
}

func readTemplate(inline, path string) (string, error) {
	if inline != "" && path != "" {
		return "", errors.New("specify only one of --query or --sql")
	}
	if inline != "" {
		return inline, nil
	}
	if path == "" {
		return "", errors.New("--query or --sql is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read sql file")
	}
	return string(data), nil
}

func renderReport(rep *report.Report, format, outPath, title string, includeCSS bool) error {
	target, done, err := outputWriter(outPath)
	if err != nil {
		return err
	}
	defer done()

	switch format {
	case "table":
		return table.Render(target, rep)
	case "md", "markdown":
		_, err := io.WriteString(target, rep.Markdown())
		return err
	case "json":
		payload, err := rep.JSON()
		if err != nil {
			return err
		}
		_, err = target.Write(append(payload, '\n'))
		return err
	case "html":
		return html.Render(target, rep, html.Options{Title: title, IncludeStyles: includeCSS})
	default:
		return errors.Newf("unsupported format %q", format)
	}
}

// enableColor resolves the tree-color setting: an explicit --color flag wins,
// otherwise the configured default applies.
func enableColor(fs *flag.FlagSet, flagValue bool) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "color" {
			set = true
		}
	})
	if set {
		return flagValue
	}
	return config.Active().Report.Color
}

func outputWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}
	return file, func() { _ = file.Close() }, nil
}

func loadCapture(path, label string) (*model.Capture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	plan, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	format := model.FormatText
	if strings.HasSuffix(path, ".json") {
		format = model.FormatJSON
	}
	return &model.Capture{
		Label:  label,
		Raw:    string(data),
		Format: format,
		Plan:   plan,
	}, nil
}

func formatComparison(cmp *model.Comparison, before, after *model.Capture) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "label: %s\n", cmp.Label)
	_, _ = fmt.Fprintf(&b, "before: %s\n", before.Plan.Summary())
	_, _ = fmt.Fprintf(&b, "after:  %s\n", after.Plan.Summary())
	_, _ = fmt.Fprintf(&b, "scan method changed: %v\n", cmp.ScanMethodChanged)
	_, _ = fmt.Fprintf(&b, "cost delta: %+.2f", cmp.CostDelta)
	if cmp.MaterialCost {
		b.WriteString(" (material)")
	}
	b.WriteByte('\n')
	_, _ = fmt.Fprintf(&b, "row estimate delta: %+d\n", cmp.RowEstimateDelta)
	for _, m := range cmp.Mismatches {
		_, _ = fmt.Fprintf(&b, "node %s: %s -> %s\n", m.Position, opText(m.Before), opText(m.After))
	}
	return b.String()
}

func opText(op model.Operation) string {
	if op == "" {
		return "(absent)"
	}
	return string(op)
}

func incompleteCases(rep *report.Report) int {
	n := 0
	for _, c := range rep.Cases {
		if c.Status != report.StatusOK {
			n++
		}
	}
	return n
}

func indentJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indent json")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
