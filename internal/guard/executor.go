package guard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	reasonTimeout = "timed out"
	reasonMaxRows = "exceeds maximum allowed rows"
)

// ErrNotConnected is returned when Execute is called without a pool.
var ErrNotConnected = errors.New("not connected")

// ErrGuardrail marks queries aborted by a guardrail bound.
var ErrGuardrail = errors.New("query guardrail")

// GuardrailError reports which bound aborted the query. A breach is a hard
// failure; partial results are never returned.
type GuardrailError struct {
	Reason string
}

func (e *GuardrailError) Error() string { return "query guardrail: " + e.Reason }
func (e *GuardrailError) Unwrap() error { return ErrGuardrail }

// IsTimeout reports whether the guardrail was the execution deadline.
func (e *GuardrailError) IsTimeout() bool { return e.Reason == reasonTimeout }

// Result is an executed query's output: column order plus row values aligned
// with Columns.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Records renders rows as column-named maps in row order.
func (r *Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}
	return records
}

// ExecutorConfig bounds a single executor instance.
type ExecutorConfig struct {
	Timeout     time.Duration
	MaxRows     int
	PoolMaxOpen int
	PoolMaxIdle int
}

// Executor runs validated read-only SQL against a bounded connection pool.
// Safe for concurrent use; each call independently acquires and releases a
// pooled connection.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	maxRows int
}

// Open dials the backing database with the pgx stdlib driver and applies the
// configured pool bounds.
func Open(dsn string, cfg ExecutorConfig) (*Executor, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewExecutor(db, cfg), nil
}

// NewExecutor wraps an existing pool, applying the configured bounds.
func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	if db != nil {
		if cfg.PoolMaxOpen > 0 {
			db.SetMaxOpenConns(cfg.PoolMaxOpen)
		}
		if cfg.PoolMaxIdle > 0 {
			db.SetMaxIdleConns(cfg.PoolMaxIdle)
		}
	}
	return &Executor{
		db:      db,
		timeout: cfg.Timeout,
		maxRows: cfg.MaxRows,
	}
}

// Close drains and closes the pool.
func (e *Executor) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Ping reports pool health for readiness probes.
func (e *Executor) Ping(ctx context.Context) error {
	if e == nil || e.db == nil {
		return ErrNotConnected
	}
	return e.db.PingContext(ctx)
}

// Execute validates sqlText and runs it under the configured deadline and
// row cap. The caller never blocks or receives rows past the deadline; the
// server side may keep running, which is acceptable because the guardrails
// bound what this process consumes and returns.
//
// Breaching either bound fails the whole call. A result set trimmed to the
// cap would be an incomplete answer presented as complete, so it is never
// produced.
func (e *Executor) Execute(ctx context.Context, sqlText string, args ...any) (*Result, error) {
	if err := Validate(sqlText); err != nil {
		return nil, err
	}
	if e == nil || e.db == nil {
		return nil, ErrNotConnected
	}

	qctx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(qctx, sqlText, args...)
	if err != nil {
		if qctx.Err() != nil {
			return nil, &GuardrailError{Reason: reasonTimeout}
		}
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		if e.maxRows > 0 && len(result.Rows) >= e.maxRows {
			return nil, &GuardrailError{Reason: reasonMaxRows}
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		if qctx.Err() != nil {
			return nil, &GuardrailError{Reason: reasonTimeout}
		}
		return nil, err
	}
	return result, nil
}

// Column describes one column of an introspected table.
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// TableColumns introspects a table through the guarded path, so the same
// timeout and row-cap bounds apply.
func (e *Executor) TableColumns(ctx context.Context, table string) ([]Column, error) {
	const introspect = `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE lower(table_name) = lower($1)
		ORDER BY ordinal_position`

	result, err := e.Execute(ctx, introspect, table)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) != 3 {
			continue
		}
		name, _ := row[0].(string)
		dataType, _ := row[1].(string)
		nullable, _ := row[2].(string)
		cols = append(cols, Column{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	return cols, nil
}
