// Package resolver runs planned SQL against the store. It executes filtered
// root queries, then batch-loads every record reachable from the roots
// through the schema's relations, so serializers can build nested documents
// without issuing a query per record.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/schema"

	"go.opentelemetry.io/otel/attribute"
)

// ErrNotFound is returned when a lookup by id matches no record.
var ErrNotFound = errors.New("record not found")

// Row is one scanned record keyed by column name.
type Row map[string]interface{}

// ID returns the row's integer id.
func (r Row) ID() (int64, bool) {
	return AsInt64(r["id"])
}

// QueryObserver receives the duration of every query the resolver runs.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, entity string, duration time.Duration, err error)
}

// Resolver executes plans through a dbexec.QueryExecutor.
type Resolver struct {
	executor  dbexec.QueryExecutor
	observer  QueryObserver
	batchSize int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithQueryObserver reports query timings to o.
func WithQueryObserver(o QueryObserver) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithBatchSize caps the number of values bound into one IN list.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// defaultBatchSize stays under SQLite's default bound-parameter limit.
const defaultBatchSize = 500

// NewResolver creates a resolver. Queries run on the request's session when
// the context carries one, otherwise on executor.
func NewResolver(executor dbexec.QueryExecutor, opts ...Option) *Resolver {
	r := &Resolver{
		executor:  executor,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find plans and executes the root query for entity. When opts.ID is set and
// nothing matches, it returns ErrNotFound.
func (r *Resolver) Find(ctx context.Context, entity schema.Entity, filters planner.Filters, opts planner.RootOptions) ([]Row, error) {
	plan, err := planner.PlanRootQuery(entity, filters, opts)
	if err != nil {
		return nil, err
	}
	rows, err := r.Execute(ctx, entity, plan)
	if err != nil {
		return nil, err
	}
	if opts.ID != nil && len(rows) == 0 {
		return nil, fmt.Errorf("%s %d: %w", entity, *opts.ID, ErrNotFound)
	}
	return rows, nil
}

// Execute runs a root plan for entity and returns its rows in order, keeping
// only the first row seen for each id.
func (r *Resolver) Execute(ctx context.Context, entity schema.Entity, plan planner.SQLQuery) ([]Row, error) {
	table, ok := schema.Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("execute: unknown entity %q", entity)
	}
	rows, err := r.Query(ctx, string(entity), plan, table.ColumnNames())
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		id, ok := row.ID()
		if ok {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, row)
	}
	return out, nil
}

// Query runs plan and scans each result row positionally into columns.
// label names the query in traces and metrics.
func (r *Resolver) Query(ctx context.Context, label string, plan planner.SQLQuery, columns []string) (result []Row, err error) {
	if plan.SQL == "" {
		return nil, nil
	}
	ctx, endSpan := traceResolver(ctx, "resolver.query",
		attribute.String("db.table", label),
		attribute.Int("db.args", len(plan.Args)),
	)
	started := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveQuery(ctx, label, time.Since(started), err)
		}
		endSpan(err, attribute.Int("db.rows", len(result)))
	}()

	rows, err := dbexec.ForContext(ctx, r.executor).QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", label, err)
	}
	defer rows.Close()

	result, err = scanRows(rows, columns)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", label, err)
	}
	return result, nil
}

func scanRows(rows dbexec.Rows, columns []string) ([]Row, error) {
	if names, err := rows.Columns(); err == nil && len(names) != len(columns) {
		return nil, fmt.Errorf("result has %d columns, expected %d", len(names), len(columns))
	}

	var results []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func convertValue(val interface{}) interface{} {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// AsInt64 converts an id-like driver value to int64.
func AsInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > uint64(^uint64(0)>>1) {
			return 0, false
		}
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func chunkValues(values []interface{}, max int) [][]interface{} {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]interface{}{values}
	}
	chunks := make([][]interface{}, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
