package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"
)

func parseID(raw, singular string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, badRequest("Invalid %s id %q", singular, raw)
	}
	return id, nil
}

func (h *Handler) listTables() http.Handler {
	return h.serve([]any{}, "An error occurred while retrieving tables",
		func(context.Context, *http.Request) (string, any, error) {
			return "Tables retrieved successfully", schema.TableNames(), nil
		})
}

func (h *Handler) countRows() http.Handler {
	return h.serve(map[string]any{}, "An error occurred while counting rows",
		func(ctx context.Context, r *http.Request) (string, any, error) {
			table := strings.TrimSpace(r.URL.Query().Get("table"))
			if table == "" {
				return "", nil, badRequest("Table name is required")
			}
			if _, ok := schema.PhysicalColumns(table); !ok {
				return "", nil, notFound("Table %s not found", table)
			}

			plan, err := planner.PlanTableCount(table)
			if err != nil {
				return "", nil, err
			}
			rows, err := h.resolver.Query(ctx, table, plan, []string{"count"})
			if err != nil {
				return "", nil, err
			}
			if len(rows) == 0 {
				return "", nil, fmt.Errorf("count %s: no result row", table)
			}
			count, ok := resolver.AsInt64(rows[0]["count"])
			if !ok {
				return "", nil, fmt.Errorf("count %s: unexpected value %v", table, rows[0]["count"])
			}
			return fmt.Sprintf("Row count for %s retrieved successfully", table), count, nil
		})
}

func (h *Handler) uniqueValues() http.Handler {
	return h.serve([]any{}, "An error occurred while retrieving unique values",
		func(ctx context.Context, r *http.Request) (string, any, error) {
			query := r.URL.Query()
			table := strings.TrimSpace(query.Get("table"))
			column := strings.TrimSpace(query.Get("column"))
			if table == "" || column == "" {
				return "", nil, badRequest("Table name and column name are required")
			}
			columns, ok := schema.PhysicalColumns(table)
			if !ok {
				return "", nil, notFound("Table %s not found", table)
			}
			if !containsString(columns, column) {
				return "", nil, notFound("Column '%s' not found in table '%s'", column, table)
			}

			plan, err := planner.PlanDistinctValues(table, column)
			if err != nil {
				return "", nil, err
			}
			rows, err := h.resolver.Query(ctx, table, plan, []string{column})
			if err != nil {
				return "", nil, err
			}
			kind := columnKind(table, column)
			values := make([]any, 0, len(rows))
			for _, row := range rows {
				values = append(values, serialize.Normalize(kind, row[column]))
			}
			return fmt.Sprintf("Unique values for column '%s' in table '%s' retrieved successfully", column, table), values, nil
		})
}

// columnKind returns the declared kind of an entity column. Junction
// columns are foreign keys.
func columnKind(table, column string) schema.Kind {
	if t, ok := schema.Lookup(schema.Entity(table)); ok {
		if col, ok := t.Column(column); ok {
			return col.Kind
		}
	}
	return schema.KindInt
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
