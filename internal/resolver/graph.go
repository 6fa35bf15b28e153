package resolver

import (
	"context"
	"fmt"
	"sort"

	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/schema"

	"go.opentelemetry.io/otel/attribute"
)

// Graph is the set of records loaded for a request, with the links between
// them. Lookups never touch the database.
type Graph struct {
	state *batchState
}

// Row returns a loaded record.
func (g *Graph) Row(entity schema.Entity, id int64) (Row, bool) {
	return g.state.row(entity, id)
}

// One follows a belongs-to relation of row. It reports false when the
// foreign key is null or the target was not loaded.
func (g *Graph) One(entity schema.Entity, row Row, relation string) (Row, bool) {
	rel, ok := relationOf(entity, relation)
	if !ok || rel.Kind != schema.BelongsTo {
		return nil, false
	}
	fk, ok := AsInt64(row[rel.LocalColumn])
	if !ok {
		return nil, false
	}
	return g.state.row(rel.Target, fk)
}

// Many follows a many-to-many or has-many relation of row, in id order.
func (g *Graph) Many(entity schema.Entity, row Row, relation string) []Row {
	rel, ok := relationOf(entity, relation)
	if !ok {
		return nil
	}
	var ids []int64
	switch rel.Kind {
	case schema.ManyToMany:
		parent, ok := row.ID()
		if !ok {
			return nil
		}
		ids, _ = g.state.linked(linkKey(entity, rel), parent)
	case schema.HasMany:
		value, ok := AsInt64(row[rel.LocalColumn])
		if !ok {
			return nil
		}
		ids, _ = g.state.grouped(groupKey(rel), value)
	default:
		if one, ok := g.One(entity, row, relation); ok {
			return []Row{one}
		}
		return nil
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := g.state.row(rel.Target, id); ok {
			out = append(out, r)
		}
	}
	return out
}

// CacheStats returns the request cache hit and miss counts.
func (g *Graph) CacheStats() (hits, misses int32) {
	return g.state.GetCacheHits(), g.state.GetCacheMisses()
}

func relationOf(entity schema.Entity, name string) (schema.Relation, bool) {
	table, ok := schema.Lookup(entity)
	if !ok {
		return schema.Relation{}, false
	}
	return table.Relation(name)
}

func linkKey(entity schema.Entity, rel schema.Relation) string {
	return string(entity) + "." + rel.Name
}

func groupKey(rel schema.Relation) string {
	return string(rel.Target) + "." + rel.RemoteColumn
}

type pending struct {
	entity schema.Entity
	rows   []Row
}

// Load caches roots and walks the schema relations from them breadth-first,
// fetching each level with one batched query per relation. Records already
// loaded earlier in the request are not fetched again.
func (r *Resolver) Load(ctx context.Context, entity schema.Entity, roots []Row) (graph *Graph, err error) {
	state := stateForContext(ctx)
	ctx, endSpan := traceResolver(ctx, "resolver.load",
		attribute.String("entity", string(entity)),
		attribute.Int("roots", len(roots)),
	)
	defer func() {
		endSpan(err,
			attribute.Int("cache.hits", int(state.GetCacheHits())),
			attribute.Int("cache.misses", int(state.GetCacheMisses())),
		)
	}()

	state.putRows(entity, roots)
	level := []pending{{entity: entity, rows: roots}}
	for len(level) > 0 {
		var next []pending
		for _, p := range level {
			rows := state.expand(p.entity, p.rows)
			if len(rows) == 0 {
				continue
			}
			table := schema.MustLookup(p.entity)
			for _, rel := range table.Relations {
				loaded, err := r.loadRelation(ctx, state, p.entity, rel, rows)
				if err != nil {
					return nil, fmt.Errorf("load %s.%s: %w", p.entity, rel.Name, err)
				}
				if len(loaded) > 0 {
					next = append(next, pending{entity: rel.Target, rows: loaded})
				}
			}
		}
		level = next
	}
	return &Graph{state: state}, nil
}

// LoadIDs fetches the given records of entity (through the request cache)
// and loads everything reachable from them.
func (r *Resolver) LoadIDs(ctx context.Context, entity schema.Entity, ids []int64) (*Graph, []Row, error) {
	state := stateForContext(ctx)
	ctx = context.WithValue(ctx, batchStateKey{}, state)

	rows, err := r.fetchByIDs(ctx, state, entity, ids)
	if err != nil {
		return nil, nil, err
	}
	graph, err := r.Load(ctx, entity, rows)
	if err != nil {
		return nil, nil, err
	}
	return graph, rows, nil
}

func (r *Resolver) loadRelation(ctx context.Context, state *batchState, entity schema.Entity, rel schema.Relation, rows []Row) ([]Row, error) {
	switch rel.Kind {
	case schema.BelongsTo:
		return r.fetchByIDs(ctx, state, rel.Target, columnInts(rows, rel.LocalColumn))
	case schema.ManyToMany:
		return r.loadManyToMany(ctx, state, entity, rel, rows)
	case schema.HasMany:
		return r.loadHasMany(ctx, state, rel, rows)
	default:
		return nil, fmt.Errorf("unknown relation kind %d", rel.Kind)
	}
}

// fetchByIDs returns the rows for ids in id order, querying only the ids
// missing from the cache.
func (r *Resolver) fetchByIDs(ctx context.Context, state *batchState, entity schema.Entity, ids []int64) ([]Row, error) {
	ids = uniqueSorted(ids)
	missing := state.missing(entity, ids)
	if len(missing) > 0 {
		table := schema.MustLookup(entity)
		for _, chunk := range chunkValues(toInterfaces(missing), r.batchSize) {
			plan, err := planner.PlanRowsByIDs(entity, chunk)
			if err != nil {
				return nil, err
			}
			fetched, err := r.Query(ctx, string(entity), plan, table.ColumnNames())
			if err != nil {
				return nil, err
			}
			state.putRows(entity, fetched)
		}
	}

	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := state.row(entity, id); ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *Resolver) loadManyToMany(ctx context.Context, state *batchState, entity schema.Entity, rel schema.Relation, rows []Row) ([]Row, error) {
	key := linkKey(entity, rel)
	var parents []int64
	for _, row := range rows {
		id, ok := row.ID()
		if !ok {
			continue
		}
		if _, done := state.linked(key, id); !done {
			parents = append(parents, id)
		}
	}
	parents = uniqueSorted(parents)

	for _, chunk := range chunkValues(toInterfaces(parents), r.batchSize) {
		plan, err := planner.PlanJunctionLinks(rel, chunk)
		if err != nil {
			return nil, err
		}
		linkRows, err := r.Query(ctx, rel.Junction, plan, []string{planner.BatchParentAlias, planner.BatchChildAlias})
		if err != nil {
			return nil, err
		}
		pairs := make([][2]int64, 0, len(linkRows))
		for _, lr := range linkRows {
			parent, ok1 := AsInt64(lr[planner.BatchParentAlias])
			child, ok2 := AsInt64(lr[planner.BatchChildAlias])
			if ok1 && ok2 {
				pairs = append(pairs, [2]int64{parent, child})
			}
		}
		state.setLinks(key, interfacesToInts(chunk), pairs)
	}

	var children []int64
	for _, row := range rows {
		if id, ok := row.ID(); ok {
			linked, _ := state.linked(key, id)
			children = append(children, linked...)
		}
	}
	return r.fetchByIDs(ctx, state, rel.Target, children)
}

func (r *Resolver) loadHasMany(ctx context.Context, state *batchState, rel schema.Relation, rows []Row) ([]Row, error) {
	key := groupKey(rel)
	values := columnInts(rows, rel.LocalColumn)
	var pendingValues []int64
	for _, v := range values {
		if _, done := state.grouped(key, v); !done {
			pendingValues = append(pendingValues, v)
		}
	}

	table := schema.MustLookup(rel.Target)
	for _, chunk := range chunkValues(toInterfaces(pendingValues), r.batchSize) {
		plan, err := planner.PlanRowsByColumn(rel.Target, rel.RemoteColumn, chunk)
		if err != nil {
			return nil, err
		}
		fetched, err := r.Query(ctx, string(rel.Target), plan, table.ColumnNames())
		if err != nil {
			return nil, err
		}
		state.putRows(rel.Target, fetched)

		members := make(map[int64][]int64)
		for _, row := range fetched {
			v, ok1 := AsInt64(row[rel.RemoteColumn])
			id, ok2 := row.ID()
			if ok1 && ok2 {
				members[v] = append(members[v], id)
			}
		}
		state.setGroups(key, interfacesToInts(chunk), members)
	}

	var out []Row
	for _, v := range values {
		ids, _ := state.grouped(key, v)
		for _, id := range ids {
			if row, ok := state.row(rel.Target, id); ok {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// columnInts returns the distinct non-null integer values of column, sorted.
func columnInts(rows []Row, column string) []int64 {
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		if v, ok := AsInt64(row[column]); ok {
			out = append(out, v)
		}
	}
	return uniqueSorted(out)
}

func uniqueSorted(values []int64) []int64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func toInterfaces(values []int64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func interfacesToInts(values []interface{}) []int64 {
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if n, ok := AsInt64(v); ok {
			out = append(out, n)
		}
	}
	return out
}
