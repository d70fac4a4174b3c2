package inspect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/inspect"
	"github.com/ramkumarar/planprobe/internal/model"
)

func TestSummarizeJoinTree(t *testing.T) {
	root := &model.PlanNode{
		Operation: model.OpHashJoin,
		TotalCost: 500,
		Children: []*model.PlanNode{
			{Operation: model.OpSeqScan, Relation: "orders", TotalCost: 150, PlanRows: 10000},
			{
				Operation: "Hash",
				TotalCost: 320,
				Children: []*model.PlanNode{
					{Operation: model.OpIndexScan, Relation: "customers", Index: "customers_pkey", TotalCost: 300, PlanRows: 4000},
				},
			},
		},
	}

	summary, err := inspect.Summarize(root)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.NodeCount)
	assert.Equal(t, 2, summary.MaxDepth)

	require.Len(t, summary.Scans, 2)
	assert.Equal(t, "0.0", summary.Scans[0].Position)
	assert.Equal(t, "orders", summary.Scans[0].Node.Relation)
	assert.Equal(t, "0.1.0", summary.Scans[1].Position)

	require.Len(t, summary.Joins, 1)
	assert.Equal(t, model.OpHashJoin, summary.Joins[0].Node.Operation)

	// Self cost subtracts the children's cumulative totals.
	assert.InDelta(t, 30, summary.Root.SelfCost, 1e-9)
	require.NotEmpty(t, summary.Costliest)
	assert.Equal(t, model.OpIndexScan, summary.Costliest[0].Node.Operation)
	assert.InDelta(t, 0.6, summary.Costliest[0].PercentOfPlan, 1e-9)

	assert.Empty(t, summary.Divergent, "estimate-only nodes never diverge")
}

func TestSummarizeDivergence(t *testing.T) {
	root := &model.PlanNode{
		Operation: model.OpSeqScan,
		Relation:  "employee_simple",
		TotalCost: 191.39,
		PlanRows:  100,
		Actual:    &model.ActualStats{TotalMs: 3.2, Rows: 9444, Loops: 1},
	}

	summary, err := inspect.Summarize(root)
	require.NoError(t, err)
	require.Len(t, summary.Divergent, 1)
	assert.InDelta(t, 94.44, summary.Divergent[0].RowFactor, 1e-9)
}

func TestSummarizeNil(t *testing.T) {
	_, err := inspect.Summarize(nil)
	assert.Error(t, err)
}
