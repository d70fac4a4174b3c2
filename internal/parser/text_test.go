package parser_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/parser"
	"github.com/ramkumarar/planprobe/test"
)

// TestParseTextDataDriven runs raw EXPLAIN text through Parse and compares the
// canonical re-serialization against golden output. Each successful case also
// reparses its own output and requires the identical tree.
func TestParseTextDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/explain_text", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "parse":
			plan, err := parser.Parse([]byte(d.Input))
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			out := parser.FormatText(plan)
			reparsed, err := parser.Parse([]byte(out))
			require.NoError(t, err)
			require.Equal(t, plan, reparsed)
			return out

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func TestParseTextSample(t *testing.T) {
	plan := test.LoadSamplePlan(t, "join_hash.txt")

	require.Equal(t, model.OpHashJoin, plan.Operation)
	require.Len(t, plan.Children, 2)
	assert.Equal(t, "(orders.customer_id = customers.id)", plan.Annotations["Hash Cond"])

	outer := plan.Children[0]
	assert.Equal(t, model.OpSeqScan, outer.Operation)
	assert.Equal(t, "orders", outer.Relation)

	inner := plan.Children[1]
	assert.Equal(t, model.Operation("Hash"), inner.Operation)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, "customers", inner.Children[0].Relation)
}

func TestParseTextPsqlDecoration(t *testing.T) {
	decorated := test.LoadSamplePlan(t, "psql_decorated.txt")
	bare := test.LoadSamplePlan(t, "department_seq.txt")

	require.Equal(t, bare, decorated)
}

func TestParseTextDeepNesting(t *testing.T) {
	var b strings.Builder
	b.WriteString("Nested Loop  (cost=0.00..100.00 rows=1 width=4)\n")
	for depth := 1; depth <= 12; depth++ {
		fmt.Fprintf(&b, "%s->  Seq Scan on t%d  (cost=0.00..%d.00 rows=1 width=4)\n",
			strings.Repeat(" ", 6*(depth-1)+2), depth, 100-depth)
	}

	plan, err := parser.Parse([]byte(b.String()))
	require.NoError(t, err)

	node, depth := plan, 0
	for len(node.Children) > 0 {
		require.Len(t, node.Children, 1)
		node = node.Children[0]
		depth++
	}
	assert.Equal(t, 12, depth)
	assert.Equal(t, "t12", node.Relation)
}

func TestParseSniffsFormat(t *testing.T) {
	text, err := parser.Parse([]byte(test.LoadSampleRaw(t, "department_seq.txt")))
	require.NoError(t, err)
	assert.Equal(t, model.OpSeqScan, text.Operation)

	jsonPlan, err := parser.Parse([]byte(test.LoadSampleRaw(t, "analyze_seq.json")))
	require.NoError(t, err)
	assert.Equal(t, model.OpSeqScan, jsonPlan.Operation)
	require.NotNil(t, jsonPlan.Actual)

	_, err = parser.Parse([]byte("   \n\t"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, parser.ErrParse))
}
