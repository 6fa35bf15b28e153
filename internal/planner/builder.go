package planner

import (
	"fmt"

	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// JoinKind selects INNER or LEFT join semantics.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// JoinRecord describes one join added to a QueryBuilder.
type JoinRecord struct {
	Alias string
	Table string
	Kind  JoinKind
}

// QueryBuilder owns a select statement under construction together with the
// set of aliases already joined into it. Every table reachable from the root
// is joined at most once per alias, no matter how many resolvers ask for it.
type QueryBuilder struct {
	root    schema.Entity
	sel     sq.SelectBuilder
	joined  map[string]struct{}
	byTable map[string][]string
	joins   []JoinRecord
}

// NewQueryBuilder starts a select over the root entity's table. The root
// table is registered under its own name.
func NewQueryBuilder(root schema.Entity) *QueryBuilder {
	b := &QueryBuilder{
		root:    root,
		sel:     sq.Select().From(sqlutil.QuoteIdentifier(string(root))),
		joined:  make(map[string]struct{}),
		byTable: make(map[string][]string),
	}
	b.record(string(root), string(root))
	return b
}

// Root returns the entity the builder selects from.
func (b *QueryBuilder) Root() schema.Entity {
	return b.root
}

// EnsureJoined adds "table AS alias ON on" unless alias is already present.
// It reports whether the alias was already joined.
func (b *QueryBuilder) EnsureJoined(alias string, kind JoinKind, table string, on string) bool {
	if b.Joined(alias) {
		return true
	}
	clause := fmt.Sprintf("%s ON %s", sqlutil.AliasedTable(table, alias), on)
	if kind == LeftJoin {
		b.sel = b.sel.LeftJoin(clause)
	} else {
		b.sel = b.sel.Join(clause)
	}
	b.record(alias, table)
	b.joins = append(b.joins, JoinRecord{Alias: alias, Table: table, Kind: kind})
	return false
}

// Joined reports whether alias is part of the statement.
func (b *QueryBuilder) Joined(alias string) bool {
	_, ok := b.joined[alias]
	return ok
}

// Aliases returns every alias under which table is present, in join order.
func (b *QueryBuilder) Aliases(table string) []string {
	aliases := b.byTable[table]
	out := make([]string, len(aliases))
	copy(out, aliases)
	return out
}

// Joins returns the joins added so far, in order.
func (b *QueryBuilder) Joins() []JoinRecord {
	out := make([]JoinRecord, len(b.joins))
	copy(out, b.joins)
	return out
}

// Select returns the underlying select builder with all joins applied.
func (b *QueryBuilder) Select() sq.SelectBuilder {
	return b.sel
}

func (b *QueryBuilder) record(alias, table string) {
	b.joined[alias] = struct{}{}
	b.byTable[table] = append(b.byTable[table], alias)
}

// On renders the equality predicate leftAlias.leftColumn = rightAlias.rightColumn.
func On(leftAlias, leftColumn, rightAlias, rightColumn string) string {
	return sqlutil.Qualified(leftAlias, leftColumn) + " = " + sqlutil.Qualified(rightAlias, rightColumn)
}
