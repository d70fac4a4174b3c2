package parser

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/model"
)

var (
	costPattern    = regexp.MustCompile(`\(cost=([0-9]+(?:\.[0-9]+)?)\.\.([0-9]+(?:\.[0-9]+)?) rows=([0-9]+) width=([0-9]+)\)`)
	actualPattern  = regexp.MustCompile(`\(actual(?: time=([0-9]+(?:\.[0-9]+)?)\.\.([0-9]+(?:\.[0-9]+)?))? rows=([0-9]+) loops=([0-9]+)\)`)
	trailerPattern = regexp.MustCompile(`^\([0-9]+ rows?\)$`)
)

// ParseText reads the indented text form of EXPLAIN output and produces the
// plan tree. Nesting depth comes from the column of the "->" arrow; lines of
// the form "Key: value" attach to the most recently seen node. psql decoration
// (the QUERY PLAN header, dashed rules, the row-count trailer) is skipped.
func ParseText(r io.Reader) (*model.PlanNode, error) {
	type frame struct {
		col  int
		node *model.PlanNode
	}

	var (
		root  *model.PlanNode
		last  *model.PlanNode
		stack []frame
		lines int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		lines++
		if skipDecoration(line) {
			continue
		}

		cost := costPattern.FindStringSubmatchIndex(line)
		if cost == nil {
			// Annotation line: attach to the node it describes.
			if last != nil {
				attachAnnotation(last, line)
			}
			continue
		}

		col, node := parseNodeLine(line, cost)
		if root == nil {
			root = node
			stack = []frame{{col: -1, node: node}}
			last = node
			continue
		}

		for len(stack) > 1 && col <= stack[len(stack)-1].col {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, node)
		stack = append(stack, frame{col: col, node: node})
		last = node
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "parser: read plan text")
	}
	if root == nil {
		return nil, errors.Wrapf(ErrParse, "parser: no plan node in %d lines", lines)
	}
	return validated(root)
}

func skipDecoration(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return true
	case trimmed == "QUERY PLAN":
		return true
	case strings.Trim(trimmed, "-+") == "":
		return true
	case trailerPattern.MatchString(trimmed):
		return true
	}
	return false
}

// parseNodeLine splits one plan-tree line into its nesting column and node.
// cost holds the submatch indexes of costPattern within line.
func parseNodeLine(line string, cost []int) (int, *model.PlanNode) {
	col := strings.Index(line, "->")
	textStart := 0
	if col >= 0 {
		textStart = col + len("->")
	} else {
		col = len(line) - len(strings.TrimLeft(line, " \t"))
		textStart = col
	}

	head := strings.TrimSpace(line[textStart:cost[0]])
	op, relation, index, alias := parseHead(head)

	node := &model.PlanNode{
		Operation:   op,
		Relation:    relation,
		Index:       index,
		StartupCost: mustFloat(line[cost[2]:cost[3]]),
		TotalCost:   mustFloat(line[cost[4]:cost[5]]),
		PlanRows:    mustInt(line[cost[6]:cost[7]]),
		PlanWidth:   mustInt(line[cost[8]:cost[9]]),
	}
	if alias != "" {
		node.Annotations = map[string]string{"Alias": alias}
	}
	node.Actual = parseActual(line[cost[1]:])
	return col, node
}

// parseHead extracts the operation tag and the "using <index> on <relation>"
// suffixes. Bitmap Index Scan names its index after "on"; a trailing word on
// the relation is the alias.
func parseHead(head string) (op model.Operation, relation, index, alias string) {
	rest := head
	if i := strings.Index(rest, " using "); i >= 0 {
		op = model.Operation(rest[:i])
		rest = rest[i+len(" using "):]
		if j := strings.Index(rest, " on "); j >= 0 {
			index = rest[:j]
			relation, alias = splitAlias(rest[j+len(" on "):])
		} else {
			index = rest
		}
		return op, relation, index, alias
	}
	if i := strings.Index(rest, " on "); i >= 0 {
		op = model.Operation(rest[:i])
		name, al := splitAlias(rest[i+len(" on "):])
		if op == model.OpBitmapIndexScan {
			return op, "", name, al
		}
		return op, name, "", al
	}
	return model.Operation(head), "", "", ""
}

func splitAlias(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

func parseActual(tail string) *model.ActualStats {
	if strings.Contains(tail, "(never executed)") {
		return &model.ActualStats{}
	}
	m := actualPattern.FindStringSubmatch(tail)
	if m == nil {
		return nil
	}
	actual := &model.ActualStats{
		Rows:  mustInt(m[3]),
		Loops: mustInt(m[4]),
	}
	if m[1] != "" {
		actual.StartupMs = mustFloat(m[1])
		actual.TotalMs = mustFloat(m[2])
	}
	return actual
}

func attachAnnotation(node *model.PlanNode, line string) {
	trimmed := strings.TrimSpace(line)
	key, value, ok := strings.Cut(trimmed, ": ")
	if !ok || key == "" {
		return
	}
	if strings.ContainsAny(key, "()=") {
		// Not a "Key: value" annotation; likely wrapped expression text.
		return
	}
	if node.Annotations == nil {
		node.Annotations = map[string]string{}
	}
	node.Annotations[key] = value
}

// mustFloat and mustInt run on regexp-matched digit groups only.
func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func mustInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}
