// Package inspect derives shape metrics from a parsed plan tree.
package inspect

import (
	"math"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/model"
)

// TreeSummary contains derived metrics for a parsed plan.
type TreeSummary struct {
	Root      *NodeStats
	NodeCount int
	MaxDepth  int
	Scans     []*NodeStats
	Joins     []*NodeStats
	Costliest []*NodeStats
	Divergent []*NodeStats
}

// NodeStats augments a plan node with computed statistics. Costs in a plan
// tree are cumulative, so SelfCost subtracts the children's totals.
type NodeStats struct {
	Node          *model.PlanNode
	Position      string
	Depth         int
	SelfCost      float64
	PercentOfPlan float64
	RowFactor     float64
	Children      []*NodeStats
}

// Summarize derives metrics for the provided plan tree.
func Summarize(root *model.PlanNode) (*TreeSummary, error) {
	if root == nil {
		return nil, errors.New("inspect: missing plan")
	}

	stats := buildStats(root, "0", 0)
	total := root.TotalCost
	annotateShares(stats, total)

	allNodes := flatten(stats)

	summary := &TreeSummary{
		Root:      stats,
		NodeCount: len(allNodes),
		Costliest: selectCostliest(allNodes),
		Divergent: selectDivergent(allNodes),
	}
	for _, n := range allNodes {
		if n.Depth > summary.MaxDepth {
			summary.MaxDepth = n.Depth
		}
		if n.Node.Operation.IsScan() {
			summary.Scans = append(summary.Scans, n)
		}
		if n.Node.Operation.IsJoin() {
			summary.Joins = append(summary.Joins, n)
		}
	}
	return summary, nil
}

func buildStats(node *model.PlanNode, position string, depth int) *NodeStats {
	stats := &NodeStats{
		Node:      node,
		Position:  position,
		Depth:     depth,
		RowFactor: rowFactor(node),
	}

	var childCost float64
	for i, childNode := range node.Children {
		child := buildStats(childNode, childPosition(position, i), depth+1)
		stats.Children = append(stats.Children, child)
		childCost += childNode.TotalCost
	}

	stats.SelfCost = node.TotalCost - childCost
	if stats.SelfCost < 0 {
		stats.SelfCost = 0
	}
	return stats
}

func childPosition(parent string, i int) string {
	return parent + "." + strconv.Itoa(i)
}

func annotateShares(node *NodeStats, total float64) {
	if total > 0 {
		node.PercentOfPlan = node.SelfCost / total
	}
	for _, child := range node.Children {
		annotateShares(child, total)
	}
}

func flatten(root *NodeStats) []*NodeStats {
	var out []*NodeStats
	var walk func(*NodeStats)
	walk = func(n *NodeStats) {
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}

func selectCostliest(nodes []*NodeStats) []*NodeStats {
	candidates := make([]*NodeStats, 0, len(nodes))
	for _, n := range nodes {
		if n.SelfCost > 0 {
			candidates = append(candidates, n)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SelfCost > candidates[j].SelfCost
	})

	limit := 5
	if len(candidates) < limit {
		limit = len(candidates)
	}
	cutoff := 0.10

	var out []*NodeStats
	for _, candidate := range candidates[:limit] {
		if candidate.PercentOfPlan < cutoff {
			break
		}
		out = append(out, candidate)
	}
	if len(out) == 0 && len(candidates) > 0 {
		out = candidates[:limit]
	}
	return out
}

// selectDivergent keeps nodes whose actual row count strays far from the
// planner's estimate. Estimate-only captures never qualify.
func selectDivergent(nodes []*NodeStats) []*NodeStats {
	var out []*NodeStats
	for _, n := range nodes {
		if n.Node.Actual == nil {
			continue
		}
		if math.IsInf(n.RowFactor, 1) || n.RowFactor >= 2.0 || n.RowFactor <= 0.5 {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].RowFactor-1) > math.Abs(out[j].RowFactor-1)
	})
	limit := 5
	if len(out) < limit {
		limit = len(out)
	}
	return out[:limit]
}

func rowFactor(node *model.PlanNode) float64 {
	if node.Actual == nil {
		return 1
	}
	const epsilon = 1e-9
	estimated := float64(node.PlanRows)
	actual := float64(node.Actual.Rows)
	if node.Actual.Loops > 1 {
		actual *= float64(node.Actual.Loops)
		estimated *= float64(node.Actual.Loops)
	}
	if estimated <= epsilon {
		if actual <= epsilon {
			return 1
		}
		return math.Inf(1)
	}
	return actual / estimated
}
