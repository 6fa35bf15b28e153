package planner

import (
	"fmt"

	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Scan aliases emitted by junction batch queries.
const (
	BatchParentAlias = "__batch_parent_id"
	BatchChildAlias  = "__batch_child_id"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// RootOptions narrows a root query beyond its filters.
type RootOptions struct {
	// ID restricts the result to a single record.
	ID *int64
	// IDs restricts the result to the listed records.
	IDs []interface{}
}

// PlanRootQuery builds the filtered select for a root entity:
//
//	SELECT DISTINCT root.* FROM root [joins] WHERE <filters> [AND root.id = ?] ORDER BY root.id
//
// Joins come from the root entity's resolver; the predicate from CompileFilters.
func PlanRootQuery(root schema.Entity, filters Filters, opts RootOptions) (SQLQuery, error) {
	table, ok := schema.Lookup(root)
	if !ok {
		return SQLQuery{}, fmt.Errorf("plan root query: unknown entity %q", root)
	}
	resolver, ok := ResolverFor(root)
	if !ok {
		return SQLQuery{}, fmt.Errorf("plan root query: no resolver for %q", root)
	}

	b := NewQueryBuilder(root)
	if err := resolver.ResolveJoins(b, root, filters); err != nil {
		return SQLQuery{}, fmt.Errorf("plan root query: %w", err)
	}

	alias := string(root)
	builder := b.Select().
		Distinct().
		Columns(qualifiedColumns(alias, table.ColumnNames())...)

	if cond := CompileFilters(b, filters); cond != nil {
		builder = builder.Where(cond)
	}
	if opts.ID != nil {
		builder = builder.Where(sq.Eq{sqlutil.Qualified(alias, "id"): *opts.ID})
	}
	if opts.IDs != nil {
		builder = builder.Where(sq.Eq{sqlutil.Qualified(alias, "id"): opts.IDs})
	}

	query, args, err := builder.
		OrderBy(sqlutil.Qualified(alias, "id")).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanRowsByColumn builds the SQL for loading every row of an entity whose
// column matches one of values. It serves belongs-to lookups (column "id")
// and has-many lookups (the remote column).
func PlanRowsByColumn(entity schema.Entity, column string, values []interface{}) (SQLQuery, error) {
	if len(values) == 0 {
		return SQLQuery{}, nil
	}
	table, ok := schema.Lookup(entity)
	if !ok {
		return SQLQuery{}, fmt.Errorf("plan rows: unknown entity %q", entity)
	}
	if _, ok := table.Column(column); !ok {
		return SQLQuery{}, fmt.Errorf("plan rows: %s has no column %q", entity, column)
	}

	query, args, err := sq.Select(quotedColumnNames(table.ColumnNames())...).
		From(sqlutil.QuoteIdentifier(string(entity))).
		Where(sq.Eq{sqlutil.QuoteIdentifier(column): values}).
		OrderBy(sqlutil.QuoteIdentifier("id")).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanRowsByIDs builds the SQL for a batched primary key lookup.
func PlanRowsByIDs(entity schema.Entity, ids []interface{}) (SQLQuery, error) {
	return PlanRowsByColumn(entity, "id", ids)
}

// PlanJunctionLinks builds the SQL that lists the (parent, child) id pairs of
// a many-to-many relation for a batch of parents.
func PlanJunctionLinks(rel schema.Relation, parentIDs []interface{}) (SQLQuery, error) {
	if len(parentIDs) == 0 {
		return SQLQuery{}, nil
	}
	if rel.Kind != schema.ManyToMany || rel.Junction == "" {
		return SQLQuery{}, fmt.Errorf("junction batch requires a many-to-many relation, got %q", rel.Name)
	}
	local := sqlutil.QuoteIdentifier(rel.JunctionLocal)
	remote := sqlutil.QuoteIdentifier(rel.JunctionRemote)

	query, args, err := sq.Select(
		fmt.Sprintf("%s AS %s", local, BatchParentAlias),
		fmt.Sprintf("%s AS %s", remote, BatchChildAlias),
	).
		From(sqlutil.QuoteIdentifier(rel.Junction)).
		Where(sq.Eq{local: parentIDs}).
		OrderBy(local, remote).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanTableCount builds a row count for any physical table.
func PlanTableCount(table string) (SQLQuery, error) {
	if _, ok := schema.PhysicalColumns(table); !ok {
		return SQLQuery{}, fmt.Errorf("plan count: unknown table %q", table)
	}
	query, args, err := sq.Select("COUNT(*)").
		From(sqlutil.QuoteIdentifier(table)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanDistinctValues builds the SQL listing the distinct values of one column.
func PlanDistinctValues(table, column string) (SQLQuery, error) {
	columns, ok := schema.PhysicalColumns(table)
	if !ok {
		return SQLQuery{}, fmt.Errorf("plan distinct: unknown table %q", table)
	}
	if !containsString(columns, column) {
		return SQLQuery{}, fmt.Errorf("plan distinct: %s has no column %q", table, column)
	}
	quoted := sqlutil.QuoteIdentifier(column)
	query, args, err := sq.Select(quoted).
		Distinct().
		From(sqlutil.QuoteIdentifier(table)).
		OrderBy(quoted).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func quotedColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = sqlutil.QuoteIdentifier(col)
	}
	return out
}

func qualifiedColumns(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = sqlutil.Qualified(alias, col)
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
