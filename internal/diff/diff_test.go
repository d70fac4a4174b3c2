package diff_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/config"
	"github.com/ramkumarar/planprobe/internal/diff"
	"github.com/ramkumarar/planprobe/internal/model"
)

func capture(label string, plan *model.PlanNode) *model.Capture {
	return &model.Capture{Label: label, Plan: plan}
}

func scanNode(op model.Operation, totalCost float64, rows int64) *model.PlanNode {
	return &model.PlanNode{
		Operation: op,
		Relation:  "employee_simple",
		TotalCost: totalCost,
		PlanRows:  rows,
	}
}

func TestCompareRootDelta(t *testing.T) {
	before := capture("Sales", scanNode(model.OpBitmapHeapScan, 311.49, 10000))
	after := capture("Sales", scanNode(model.OpSeqScan, 191.39, 9444))

	got, err := diff.Compare(before, after, diff.Options{})
	require.NoError(t, err)

	assert.Equal(t, "Sales", got.Label)
	assert.Equal(t, model.OpBitmapHeapScan, got.BeforeOp)
	assert.Equal(t, model.OpSeqScan, got.AfterOp)
	assert.True(t, got.ScanMethodChanged)
	assert.InDelta(t, -120.10, got.CostDelta, 1e-9)
	assert.EqualValues(t, -556, got.RowEstimateDelta)
	assert.True(t, got.MaterialCost)
	assert.Empty(t, got.Mismatches)
}

func TestCompareSymmetry(t *testing.T) {
	a := capture("HR", scanNode(model.OpIndexScan, 8.31, 120))
	b := capture("HR", scanNode(model.OpBitmapHeapScan, 42.77, 133))

	forward, err := diff.Compare(a, b, diff.Options{})
	require.NoError(t, err)
	backward, err := diff.Compare(b, a, diff.Options{})
	require.NoError(t, err)

	assert.Equal(t, forward.CostDelta, -backward.CostDelta)
	assert.Equal(t, forward.RowEstimateDelta, -backward.RowEstimateDelta)
}

func TestCompareLabelMismatch(t *testing.T) {
	a := capture("Sales", scanNode(model.OpSeqScan, 1, 1))
	b := capture("HR", scanNode(model.OpSeqScan, 1, 1))

	_, err := diff.Compare(a, b, diff.Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diff.ErrLabelMismatch))
}

func TestCompareMissingPlan(t *testing.T) {
	ok := capture("Sales", scanNode(model.OpSeqScan, 1, 1))

	_, err := diff.Compare(nil, ok, diff.Options{})
	assert.Error(t, err)
	_, err = diff.Compare(ok, capture("Sales", nil), diff.Options{})
	assert.Error(t, err)
}

func TestCompareTolerance(t *testing.T) {
	before := capture("Sales", scanNode(model.OpSeqScan, 200, 100))
	after := capture("Sales", scanNode(model.OpSeqScan, 204, 100))

	got, err := diff.Compare(before, after, diff.Options{TolerancePercent: 5})
	require.NoError(t, err)
	assert.False(t, got.ScanMethodChanged)
	assert.InDelta(t, 4, got.CostDelta, 1e-9, "delta itself is never filtered")
	assert.False(t, got.MaterialCost)

	got, err = diff.Compare(before, after, diff.Options{TolerancePercent: 1})
	require.NoError(t, err)
	assert.True(t, got.MaterialCost)
}

func TestCompareFullTree(t *testing.T) {
	before := capture("Sales", &model.PlanNode{
		Operation: model.OpHashJoin,
		TotalCost: 500,
		Children: []*model.PlanNode{
			scanNode(model.OpSeqScan, 100, 1000),
			{
				Operation: "Hash",
				TotalCost: 300,
				Children:  []*model.PlanNode{scanNode(model.OpSeqScan, 250, 4000)},
			},
		},
	})
	after := capture("Sales", &model.PlanNode{
		Operation: model.OpNestedLoop,
		TotalCost: 410,
		Children: []*model.PlanNode{
			scanNode(model.OpSeqScan, 100, 1000),
			scanNode(model.OpIndexScan, 2, 1),
		},
	})

	got, err := diff.Compare(before, after, diff.Options{FullTree: true})
	require.NoError(t, err)

	require.Len(t, got.Mismatches, 3)
	assert.Equal(t, model.NodeMismatch{Position: "0", Before: model.OpHashJoin, After: model.OpNestedLoop}, got.Mismatches[0])
	assert.Equal(t, model.NodeMismatch{Position: "0.1", Before: "Hash", After: model.OpIndexScan}, got.Mismatches[1])
	assert.Equal(t, model.NodeMismatch{Position: "0.1.0", Before: model.OpSeqScan}, got.Mismatches[2])
}

func TestCompareDefaultsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Compare.FullTree = true
	config.Use(cfg)
	t.Cleanup(func() { config.Use(config.Default()) })

	before := capture("Sales", &model.PlanNode{
		Operation: model.OpNestedLoop,
		Children:  []*model.PlanNode{scanNode(model.OpSeqScan, 1, 1)},
	})
	after := capture("Sales", &model.PlanNode{
		Operation: model.OpNestedLoop,
		Children:  []*model.PlanNode{scanNode(model.OpIndexScan, 1, 1)},
	})

	got, err := diff.Compare(before, after, diff.Options{})
	require.NoError(t, err)
	require.Len(t, got.Mismatches, 1)
	assert.Equal(t, "0.0", got.Mismatches[0].Position)
}
