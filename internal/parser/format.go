package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ramkumarar/planprobe/internal/model"
)

// FormatText re-serializes a plan tree in the PostgreSQL text layout. The
// output is canonical: parsing it again yields an identical tree.
func FormatText(root *model.PlanNode) string {
	var b strings.Builder
	writeNode(&b, root, 0)
	return b.String()
}

func writeNode(b *strings.Builder, node *model.PlanNode, depth int) {
	textCol := 0
	if depth > 0 {
		indent := 6*(depth-1) + 2
		b.WriteString(strings.Repeat(" ", indent))
		b.WriteString("->  ")
		textCol = indent + 4
	}

	b.WriteString(headText(node))
	_, _ = fmt.Fprintf(b, "  (cost=%s..%s rows=%d width=%d)",
		formatNum(node.StartupCost, 2), formatNum(node.TotalCost, 2), node.PlanRows, node.PlanWidth)
	if node.Actual != nil {
		if node.Actual.Loops == 0 {
			b.WriteString(" (never executed)")
		} else {
			_, _ = fmt.Fprintf(b, " (actual time=%s..%s rows=%d loops=%d)",
				formatNum(node.Actual.StartupMs, 3), formatNum(node.Actual.TotalMs, 3), node.Actual.Rows, node.Actual.Loops)
		}
	}
	b.WriteByte('\n')

	annotationIndent := strings.Repeat(" ", textCol+2)
	for _, key := range sortedKeys(node.Annotations) {
		b.WriteString(annotationIndent)
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(node.Annotations[key])
		b.WriteByte('\n')
	}

	for _, child := range node.Children {
		writeNode(b, child, depth+1)
	}
}

func headText(node *model.PlanNode) string {
	head := string(node.Operation)
	if node.Operation == model.OpBitmapIndexScan && node.Index != "" {
		return head + " on " + node.Index
	}
	if node.Index != "" {
		head += " using " + node.Index
	}
	if node.Relation != "" {
		head += " on " + node.Relation
	}
	return head
}

// formatNum uses the engine's fixed decimal width unless that would lose
// precision, which would break reparse idempotency.
func formatNum(v float64, places int) string {
	s := strconv.FormatFloat(v, 'f', places, 64)
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == v {
		return s
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
