// Package tree prints an ASCII rendering of a plan tree with cost shares.
package tree

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/inspect"
)

// Options controls how the tree renderer behaves.
type Options struct {
	EnableColor bool
	MaxDepth    int
	BarWidth    int
}

// Render prints an ASCII tree that highlights where the planner expects the
// work to happen.
func Render(w io.Writer, summary *inspect.TreeSummary, opts Options) error {
	if w == nil {
		return errors.New("tree: writer is nil")
	}
	if summary == nil || summary.Root == nil {
		return errors.New("tree: empty summary")
	}

	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}

	root := summary.Root.Node
	_, _ = fmt.Fprintf(w, "Total cost %.2f (startup %.2f)\n", root.TotalCost, root.StartupCost)
	_, _ = fmt.Fprintf(w, "Nodes %d | Depth %d | Scans %d | Joins %d\n\n",
		summary.NodeCount, summary.MaxDepth, len(summary.Scans), len(summary.Joins))

	_, _ = fmt.Fprintf(w, "%s\n", renderLine(summary.Root, opts))
	printChildren(w, summary.Root, "", opts)

	return nil
}

func printChildren(w io.Writer, parent *inspect.NodeStats, prefix string, opts Options) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, i == len(parent.Children)-1, opts)
	}
}

func renderBranch(w io.Writer, node *inspect.NodeStats, prefix string, isLast bool, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(node, opts))

	if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, countDescendants(node))
		}
		return
	}

	printChildren(w, node, childPrefix, opts)
}

func renderLine(node *inspect.NodeStats, opts Options) string {
	label := node.Node.Summary()
	self := fmt.Sprintf("self %.2f", node.SelfCost)
	share := fmt.Sprintf("%5.1f%%", node.PercentOfPlan*100)

	bar := drawBar(node.PercentOfPlan, opts.BarWidth)
	if opts.EnableColor {
		if color := pickColor(node.PercentOfPlan); color != "" {
			bar = applyColor(bar, color)
		}
	}

	rowInfo := fmt.Sprintf("rows %d", node.Node.PlanRows)
	if actual := node.Node.Actual; actual != nil {
		rowInfo = fmt.Sprintf("rows %d/%d", actual.Rows, node.Node.PlanRows)
		if !math.IsInf(node.RowFactor, 0) {
			rowInfo += fmt.Sprintf(" (x%.2f)", node.RowFactor)
		} else {
			rowInfo += " (∞)"
		}
	}

	return strings.Join([]string{label, self, share, bar, rowInfo}, " | ")
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := ratio
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 1 {
		clamped = 1
	}
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	if fill > width {
		fill = width
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(ratio float64) string {
	switch {
	case ratio >= 0.40:
		return "red"
	case ratio >= 0.20:
		return "yellow"
	case ratio >= 0.10:
		return "cyan"
	default:
		return ""
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	case "cyan":
		code = "\033[36m"
	default:
		return text
	}
	return code + text + "\033[0m"
}

func countDescendants(node *inspect.NodeStats) int {
	total := 0
	var walk func(*inspect.NodeStats)
	walk = func(n *inspect.NodeStats) {
		for _, child := range n.Children {
			total++
			walk(child)
		}
	}
	walk(node)
	return total
}
