package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Operation tags a plan node with its scan or join method. Values outside the
// fixed vocabulary carry the engine's raw wording verbatim, since planner output
// text is not a stable contract across PostgreSQL versions.
type Operation string

const (
	OpSeqScan         Operation = "Seq Scan"
	OpIndexScan       Operation = "Index Scan"
	OpIndexOnlyScan   Operation = "Index Only Scan"
	OpBitmapHeapScan  Operation = "Bitmap Heap Scan"
	OpBitmapIndexScan Operation = "Bitmap Index Scan"
	OpNestedLoop      Operation = "Nested Loop"
	OpHashJoin        Operation = "Hash Join"
	OpMergeJoin       Operation = "Merge Join"
)

var scanOperations = map[Operation]struct{}{
	OpSeqScan:         {},
	OpIndexScan:       {},
	OpIndexOnlyScan:   {},
	OpBitmapHeapScan:  {},
	OpBitmapIndexScan: {},
}

var joinOperations = map[Operation]struct{}{
	OpNestedLoop: {},
	OpHashJoin:   {},
	OpMergeJoin:  {},
}

// Known reports whether the operation belongs to the fixed vocabulary.
func (o Operation) Known() bool {
	if _, ok := scanOperations[o]; ok {
		return true
	}
	_, ok := joinOperations[o]
	return ok
}

// IsScan reports whether the operation locates rows in a relation.
func (o Operation) IsScan() bool {
	_, ok := scanOperations[o]
	return ok
}

// IsJoin reports whether the operation combines two inputs.
func (o Operation) IsJoin() bool {
	_, ok := joinOperations[o]
	return ok
}

// ActualStats holds runtime measurements, present only when the plan was
// executed rather than estimated.
type ActualStats struct {
	StartupMs float64 `json:"startup_ms"`
	TotalMs   float64 `json:"total_ms"`
	Rows      int64   `json:"rows"`
	Loops     int64   `json:"loops"`
}

// PlanNode is one node in a query execution plan tree. Children are owned
// exclusively by their parent; trees are never mutated after parse.
type PlanNode struct {
	Operation   Operation         `json:"operation"`
	Relation    string            `json:"relation,omitempty"`
	Index       string            `json:"index,omitempty"`
	StartupCost float64           `json:"startup_cost"`
	TotalCost   float64           `json:"total_cost"`
	PlanRows    int64             `json:"plan_rows"`
	PlanWidth   int64             `json:"plan_width"`
	Actual      *ActualStats      `json:"actual,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Children    []*PlanNode       `json:"children,omitempty"`
}

// Leaf reports whether the node is a leaf scan (no children).
func (n *PlanNode) Leaf() bool {
	return len(n.Children) == 0
}

// Summary renders the node as operation plus cost range, e.g.
// "Bitmap Heap Scan on employee_simple (cost=4.30..15.21)".
func (n *PlanNode) Summary() string {
	var b strings.Builder
	b.WriteString(string(n.Operation))
	if n.Index != "" {
		b.WriteString(" using ")
		b.WriteString(n.Index)
	}
	if n.Relation != "" {
		b.WriteString(" on ")
		b.WriteString(n.Relation)
	}
	_, _ = fmt.Fprintf(&b, " (cost=%.2f..%.2f)", n.StartupCost, n.TotalCost)
	return b.String()
}

// Walk visits the tree depth-first in child order. Positions are dotted child
// indexes from the root: "0", "0.0", "0.1", ...
func (n *PlanNode) Walk(visit func(position string, node *PlanNode)) {
	var walk func(string, *PlanNode)
	walk = func(pos string, node *PlanNode) {
		visit(pos, node)
		for i, child := range node.Children {
			walk(fmt.Sprintf("%s.%d", pos, i), child)
		}
	}
	walk("0", n)
}

// Validate checks tree-wide invariants: costs are non-negative and every
// node's total cost is at least its startup cost.
func (n *PlanNode) Validate() error {
	var err error
	n.Walk(func(pos string, node *PlanNode) {
		if err != nil {
			return
		}
		if node.StartupCost < 0 || node.TotalCost < 0 {
			err = errors.Newf("model: negative cost at %s: cost=%.2f..%.2f", pos, node.StartupCost, node.TotalCost)
			return
		}
		if node.TotalCost < node.StartupCost {
			err = errors.Newf("model: inverted cost range at %s: cost=%.2f..%.2f", pos, node.StartupCost, node.TotalCost)
		}
	})
	return err
}

// PlanFormat identifies the raw representation a plan was captured in.
type PlanFormat string

const (
	FormatText PlanFormat = "text"
	FormatJSON PlanFormat = "json"
)

// ScenarioCase is one parameter instance to probe.
type ScenarioCase struct {
	Label        string `json:"label" yaml:"label"`
	Value        any    `json:"value" yaml:"value"`
	ExpectedRows *int64 `json:"expected_rows,omitempty" yaml:"expected_rows,omitempty"`
}

// Capture is a single captured plan for a scenario case, tagged with the
// conditions it was taken under. RowCount is -1 when not probed.
type Capture struct {
	Label      string     `json:"label"`
	Condition  string     `json:"condition,omitempty"`
	Parameter  any        `json:"parameter"`
	Raw        string     `json:"raw"`
	Format     PlanFormat `json:"format"`
	Plan       *PlanNode  `json:"plan,omitempty"`
	RowCount   int64      `json:"row_count"`
	StatsFresh bool       `json:"stats_fresh"`
	Analyzed   bool       `json:"analyzed"`
	CapturedAt time.Time  `json:"captured_at"`
}

// Root returns the root operation tag, or the empty Operation when the
// capture has no parsed plan.
func (c *Capture) Root() Operation {
	if c == nil || c.Plan == nil {
		return ""
	}
	return c.Plan.Operation
}

// NodeMismatch records an operation-tag difference at one tree position. An
// empty Operation marks a node absent on that side.
type NodeMismatch struct {
	Position string    `json:"position"`
	Before   Operation `json:"before,omitempty"`
	After    Operation `json:"after,omitempty"`
}

// Comparison is the outcome of diffing two captures of the same case.
type Comparison struct {
	Label             string         `json:"label"`
	BeforeOp          Operation      `json:"before_op"`
	AfterOp           Operation      `json:"after_op"`
	ScanMethodChanged bool           `json:"scan_method_changed"`
	CostDelta         float64        `json:"cost_delta"`
	RowEstimateDelta  int64          `json:"row_estimate_delta"`
	MaterialCost      bool           `json:"material_cost"`
	Mismatches        []NodeMismatch `json:"mismatches,omitempty"`
}
