// Package diff compares two plan captures for the same scenario case.
package diff

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/ramkumarar/planprobe/internal/config"
	"github.com/ramkumarar/planprobe/internal/model"
)

// ErrLabelMismatch marks an attempt to compare captures taken for different
// case labels. That is a caller bug, not a runtime condition.
var ErrLabelMismatch = errors.New("diff: capture labels do not match")

// Options configures the comparison.
type Options struct {
	// FullTree records every positional operation mismatch, not only the root.
	FullTree bool
	// TolerancePercent classifies a cost delta as material when its magnitude
	// exceeds this share of the before cost. It never filters the delta.
	TolerancePercent float64
}

// Compare produces the delta between two captures of the same case. It
// reports what changed; judging whether a change is good is left to the
// renderers.
func Compare(before, after *model.Capture, opts Options) (*model.Comparison, error) {
	if before == nil || before.Plan == nil {
		return nil, errors.New("diff: before capture missing")
	}
	if after == nil || after.Plan == nil {
		return nil, errors.New("diff: after capture missing")
	}
	if before.Label != after.Label {
		return nil, errors.Wrapf(ErrLabelMismatch, "diff: %q vs %q", before.Label, after.Label)
	}

	opts = applyDefaults(opts)

	result := &model.Comparison{
		Label:            before.Label,
		BeforeOp:         before.Root(),
		AfterOp:          after.Root(),
		CostDelta:        after.Plan.TotalCost - before.Plan.TotalCost,
		RowEstimateDelta: after.Plan.PlanRows - before.Plan.PlanRows,
	}
	result.ScanMethodChanged = result.BeforeOp != result.AfterOp
	result.MaterialCost = material(before.Plan.TotalCost, result.CostDelta, opts.TolerancePercent)
	if opts.FullTree {
		result.Mismatches = treeMismatches(before.Plan, after.Plan)
	}
	return result, nil
}

func material(base, delta, tolerancePercent float64) bool {
	if delta == 0 {
		return false
	}
	if tolerancePercent <= 0 || base == 0 {
		return true
	}
	return math.Abs(delta)/math.Abs(base)*100 > tolerancePercent
}

// treeMismatches walks both trees in positional lockstep. When one side lacks
// a node the divergence is recorded once at its root and the orphan subtree
// is not expanded.
func treeMismatches(before, after *model.PlanNode) []model.NodeMismatch {
	var out []model.NodeMismatch
	var walk func(position string, b, a *model.PlanNode)
	walk = func(position string, b, a *model.PlanNode) {
		switch {
		case b == nil && a == nil:
			return
		case b == nil:
			out = append(out, model.NodeMismatch{Position: position, After: a.Operation})
			return
		case a == nil:
			out = append(out, model.NodeMismatch{Position: position, Before: b.Operation})
			return
		}
		if b.Operation != a.Operation {
			out = append(out, model.NodeMismatch{Position: position, Before: b.Operation, After: a.Operation})
		}
		width := len(b.Children)
		if len(a.Children) > width {
			width = len(a.Children)
		}
		for i := 0; i < width; i++ {
			var bc, ac *model.PlanNode
			if i < len(b.Children) {
				bc = b.Children[i]
			}
			if i < len(a.Children) {
				ac = a.Children[i]
			}
			walk(fmt.Sprintf("%s.%d", position, i), bc, ac)
		}
	}
	walk("0", before, after)
	return out
}

func applyDefaults(opts Options) Options {
	cfg := config.Active().Compare
	if opts.TolerancePercent <= 0 {
		opts.TolerancePercent = cfg.TolerancePercent
	}
	if !opts.FullTree {
		opts.FullTree = cfg.FullTree
	}
	return opts
}
