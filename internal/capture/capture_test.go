package capture

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramkumarar/planprobe/internal/model"
)

func TestExplainStatement(t *testing.T) {
	tpl, err := NewTemplate("SELECT * FROM employee_simple WHERE department = ?")
	require.NoError(t, err)

	tests := []struct {
		name    string
		analyze bool
		format  model.PlanFormat
		want    string
	}{
		{
			name:   "estimate text",
			format: model.FormatText,
			want:   "EXPLAIN (COSTS) SELECT * FROM employee_simple WHERE department = $1",
		},
		{
			name:    "analyze text",
			analyze: true,
			format:  model.FormatText,
			want:    "EXPLAIN (COSTS, ANALYZE, BUFFERS) SELECT * FROM employee_simple WHERE department = $1",
		},
		{
			name:   "estimate json",
			format: model.FormatJSON,
			want:   "EXPLAIN (COSTS, FORMAT JSON) SELECT * FROM employee_simple WHERE department = $1",
		},
		{
			name:    "analyze json",
			analyze: true,
			format:  model.FormatJSON,
			want:    "EXPLAIN (COSTS, ANALYZE, BUFFERS, FORMAT JSON) SELECT * FROM employee_simple WHERE department = $1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, explainStatement(tpl, tt.analyze, tt.format))
		})
	}
}

func TestClassify(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "missing" does not exist`}
	err := classify(pgErr, "explain")
	assert.True(t, errors.Is(err, ErrQuery))
	assert.False(t, errors.Is(err, ErrConnection))

	err = classify(context.DeadlineExceeded, "explain")
	assert.True(t, errors.Is(err, ErrQuery), "a per-case timeout must not abort the run")

	err = classify(context.Canceled, "explain")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrQuery))
	assert.False(t, errors.Is(err, ErrConnection))

	err = classify(errors.New("broken pipe"), "explain")
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), "  ", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestConnectRejectsMalformedURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

// TestCaptureAgainstDatabase exercises the full capture path. It needs a
// reachable PostgreSQL instance and is skipped otherwise.
func TestCaptureAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("PLANPROBE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PLANPROBE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := Connect(ctx, dsn, Options{Timeout: 30 * time.Second})
	require.NoError(t, err)
	defer repo.Close()

	tpl, err := NewTemplate("SELECT * FROM generate_series(1, 100) AS g(n) WHERE n > ?")
	require.NoError(t, err)

	got, err := repo.Capture(ctx, tpl, model.ScenarioCase{Label: "tail", Value: 42}, CaptureOptions{
		Condition: "baseline",
		Settings:  map[string]string{"enable_seqscan": "off"},
		CountRows: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tail", got.Label)
	assert.NotEmpty(t, got.Raw)
	require.NotNil(t, got.Plan)
	assert.EqualValues(t, 58, got.RowCount)
	assert.False(t, got.Analyzed)

	// The transaction-local override must not leak into later sessions.
	var seqscan string
	require.NoError(t, repo.pool.QueryRow(ctx, "SHOW enable_seqscan").Scan(&seqscan))
	assert.Equal(t, "on", seqscan)

	require.NoError(t, repo.RefreshStatistics(ctx))

	missing, err := NewTemplate("SELECT * FROM planprobe_missing_relation WHERE id = ?")
	require.NoError(t, err)
	_, err = repo.Capture(ctx, missing, model.ScenarioCase{Label: "bad", Value: 1}, CaptureOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuery))
}
