// Package capture issues EXPLAIN statements against a live PostgreSQL
// connection pool and turns the output into plan captures.
package capture

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramkumarar/planprobe/internal/model"
	"github.com/ramkumarar/planprobe/internal/parser"
)

var (
	// ErrConnection marks failures to establish or keep a connection. A run
	// cannot proceed past one of these.
	ErrConnection = errors.New("capture: connection unavailable")

	// ErrQuery marks statements the server rejected or timed out. These are
	// recoverable per case.
	ErrQuery = errors.New("capture: query failed")
)

// Options configure the repository connection.
type Options struct {
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	// Timeout bounds each capture unless CaptureOptions overrides it.
	Timeout time.Duration
}

// CaptureOptions configure a single plan capture.
type CaptureOptions struct {
	// Condition names the capture phase, e.g. "stale" or "analyzed".
	Condition string
	// Analyze runs EXPLAIN ANALYZE, executing the statement for real timings.
	Analyze bool
	// Format selects the EXPLAIN output format. Defaults to text.
	Format model.PlanFormat
	// Settings are planner settings applied for the duration of the capture
	// transaction only, e.g. {"enable_seqscan": "off"}. Prior session values
	// are restored on every exit path because the transaction is rolled back.
	Settings map[string]string
	// CountRows probes the number of rows the template matches for the case
	// value using SELECT count(*) over the same statement.
	CountRows bool
	// StatsFresh tags the capture with the caller's knowledge of statistics
	// currency. The repository records it verbatim.
	StatsFresh bool
	// Timeout overrides the repository default for this capture.
	Timeout time.Duration
}

// Repository captures query plans from a PostgreSQL database.
type Repository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Connect builds a pool for the given DSN and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts Options) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.Wrap(ErrConnection, "capture: empty database URL")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "capture: parse database URL"), ErrConnection)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "capture: create pool"), ErrConnection)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Mark(errors.Wrap(err, "capture: ping"), ErrConnection)
	}
	return &Repository{pool: pool, timeout: opts.Timeout}, nil
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Capture explains the template for one case value and parses the result.
// The whole capture runs inside a transaction that is always rolled back, so
// planner settings applied via set_config(..., true) never outlive it and
// EXPLAIN ANALYZE side effects are discarded.
func (r *Repository) Capture(ctx context.Context, tpl Template, kase model.ScenarioCase, opts CaptureOptions) (*model.Capture, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, classify(err, "begin")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	for _, name := range sortedSettingNames(opts.Settings) {
		if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", name, opts.Settings[name]); err != nil {
			return nil, classify(err, "set "+name)
		}
	}

	format := opts.Format
	if format == "" {
		format = model.FormatText
	}
	raw, err := explain(ctx, tx, tpl, kase.Value, opts.Analyze, format)
	if err != nil {
		return nil, err
	}

	rowCount := int64(-1)
	if opts.CountRows {
		probe := "SELECT count(*) FROM (" + tpl.SQL() + ") AS matched"
		if err := tx.QueryRow(ctx, probe, kase.Value).Scan(&rowCount); err != nil {
			return nil, classify(err, "count rows")
		}
	}

	// Unparseable output keeps the raw text in the error so the case report
	// shows what the server actually sent.
	plan, err := parser.Parse([]byte(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "capture: case %q: raw output: %s", kase.Label, compact(raw))
	}

	return &model.Capture{
		Label:      kase.Label,
		Condition:  opts.Condition,
		Parameter:  kase.Value,
		Raw:        raw,
		Format:     format,
		Plan:       plan,
		RowCount:   rowCount,
		StatsFresh: opts.StatsFresh,
		Analyzed:   opts.Analyze,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// RefreshStatistics runs ANALYZE on the given tables, or on the whole
// database when none are named. It returns only after the server
// acknowledges, so a capture issued afterwards sees the new statistics.
func (r *Repository) RefreshStatistics(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		if _, err := r.pool.Exec(ctx, "ANALYZE"); err != nil {
			return classify(err, "analyze")
		}
		return nil
	}
	for _, table := range tables {
		ident := pgx.Identifier(strings.Split(table, "."))
		if _, err := r.pool.Exec(ctx, "ANALYZE "+ident.Sanitize()); err != nil {
			return classify(err, "analyze "+table)
		}
	}
	return nil
}

func explainStatement(tpl Template, analyze bool, format model.PlanFormat) string {
	clauses := []string{"COSTS"}
	if analyze {
		clauses = append(clauses, "ANALYZE", "BUFFERS")
	}
	if format == model.FormatJSON {
		clauses = append(clauses, "FORMAT JSON")
	}
	return "EXPLAIN (" + strings.Join(clauses, ", ") + ") " + tpl.SQL()
}

func explain(ctx context.Context, tx pgx.Tx, tpl Template, value any, analyze bool, format model.PlanFormat) (string, error) {
	stmt := explainStatement(tpl, analyze, format)

	if format == model.FormatJSON {
		var payload string
		if err := tx.QueryRow(ctx, stmt, value).Scan(&payload); err != nil {
			return "", classify(err, "explain")
		}
		return payload, nil
	}

	rows, err := tx.Query(ctx, stmt, value)
	if err != nil {
		return "", classify(err, "explain")
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return "", classify(err, "explain")
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return "", classify(err, "explain")
	}
	return strings.Join(lines, "\n"), nil
}

// classify maps a driver error onto the failure taxonomy. A PgError means
// the server processed and rejected the statement, so the case fails but the
// run survives. A deadline is likewise per case. Anything else transport
// level is fatal, except caller cancellation which propagates unmarked.
func classify(err error, verb string) error {
	wrapped := errors.Wrapf(err, "capture: %s", verb)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errors.Mark(wrapped, ErrQuery)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(wrapped, ErrQuery)
	}
	if errors.Is(err, context.Canceled) {
		return wrapped
	}
	return errors.Mark(wrapped, ErrConnection)
}

// compact collapses raw plan output into a single bounded line for error
// messages.
func compact(raw string) string {
	flat := strings.Join(strings.Fields(raw), " ")
	const limit = 200
	if len(flat) > limit {
		return flat[:limit] + "..."
	}
	return flat
}

func sortedSettingNames(settings map[string]string) []string {
	if len(settings) == 0 {
		return nil
	}
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
