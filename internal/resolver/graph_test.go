package resolver

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moalmanac-api/internal/dbexec"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/schema"
)

func mustPlanIDs(t *testing.T, entity schema.Entity, ids ...interface{}) planner.SQLQuery {
	t.Helper()
	plan, err := planner.PlanRowsByIDs(entity, ids)
	require.NoError(t, err)
	return plan
}

func mustPlanColumn(t *testing.T, entity schema.Entity, column string, values ...interface{}) planner.SQLQuery {
	t.Helper()
	plan, err := planner.PlanRowsByColumn(entity, column, values)
	require.NoError(t, err)
	return plan
}

func columnsOf(entity schema.Entity) []string {
	return schema.MustLookup(entity).ColumnNames()
}

func TestLoadFollowsBelongsToAndHasMany(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	codings := columnsOf(schema.Codings)
	mappings := columnsOf(schema.Mappings)

	plan := mustPlanIDs(t, schema.Codings, int64(10))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(codings).
		AddRow(int64(10), "C1", "Strong", "ncit", "24.01", nil))
	plan = mustPlanColumn(t, schema.Mappings, "primary_coding_id", int64(10))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(mappings).
		AddRow(int64(5), int64(10), int64(11), "exactMatch"))
	plan = mustPlanIDs(t, schema.Codings, int64(11))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(codings).
		AddRow(int64(11), "C2", "Strong evidence", "other", nil, nil))

	strength := Row{"id": int64(1), "concept_type": "Evidence strength", "name": "Strong", "primary_coding_id": int64(10)}
	r := NewResolver(dbexec.NewStandardExecutor(db))
	graph, err := r.Load(context.Background(), schema.Strengths, []Row{strength})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	primary, ok := graph.One(schema.Strengths, strength, "primaryCoding")
	require.True(t, ok)
	assert.Equal(t, "C1", primary["code"])

	maps := graph.Many(schema.Strengths, strength, "mappings")
	require.Len(t, maps, 1)
	coding, ok := graph.One(schema.Mappings, maps[0], "coding")
	require.True(t, ok)
	assert.Equal(t, "C2", coding["code"])

	hits, misses := graph.CacheStats()
	assert.Equal(t, int32(1), hits)
	assert.Equal(t, int32(2), misses)
}

func TestLoadFollowsManyToMany(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	rel, _ := schema.MustLookup(schema.Biomarkers).Relation("genes")
	links, err := planner.PlanJunctionLinks(rel, []interface{}{int64(1), int64(2)})
	require.NoError(t, err)
	expectQuery(t, mock, links.SQL, links.Args,
		sqlmock.NewRows([]string{planner.BatchParentAlias, planner.BatchChildAlias}).
			AddRow(int64(1), int64(7)).
			AddRow(int64(1), int64(8)))

	plan := mustPlanIDs(t, schema.Genes, int64(7), int64(8))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(columnsOf(schema.Genes)).
		AddRow(int64(7), "Gene", "BRAF", int64(20), "7q34", "7.34").
		AddRow(int64(8), "Gene", "NRAS", int64(21), "1p13.2", "1.13"))

	plan = mustPlanIDs(t, schema.Codings, int64(20), int64(21))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(columnsOf(schema.Codings)))
	plan = mustPlanColumn(t, schema.Mappings, "primary_coding_id", int64(20), int64(21))
	expectQuery(t, mock, plan.SQL, plan.Args, sqlmock.NewRows(columnsOf(schema.Mappings)))

	b1 := Row{"id": int64(1), "name": "BRAF p.V600E"}
	b2 := Row{"id": int64(2), "name": "Fusion"}
	r := NewResolver(dbexec.NewStandardExecutor(db))
	graph, err := r.Load(context.Background(), schema.Biomarkers, []Row{b1, b2})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	genes := graph.Many(schema.Biomarkers, b1, "genes")
	require.Len(t, genes, 2)
	assert.Equal(t, "BRAF", genes[0]["name"])
	assert.Equal(t, "NRAS", genes[1]["name"])
	assert.Empty(t, graph.Many(schema.Biomarkers, b2, "genes"))

	_, ok := graph.One(schema.Genes, genes[0], "primaryCoding")
	assert.False(t, ok)
}

func TestLoadSharesCacheAcrossCalls(t *testing.T) {
	exec := &fakeExecutor{
		columns: columnsOf(schema.Agents),
		responses: [][][]any{
			{{int64(4), "Person", nil, "Reviewer", nil}},
		},
	}
	r := NewResolver(exec)
	ctx := NewBatchingContext(context.Background())

	_, rows, err := r.LoadIDs(ctx, schema.Agents, []int64{4})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	graph, rows, err := r.LoadIDs(ctx, schema.Agents, []int64{4, 4})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, exec.calls)

	row, ok := graph.Row(schema.Agents, 4)
	require.True(t, ok)
	assert.Equal(t, "Reviewer", row["name"])
}

func TestFetchByIDsChunks(t *testing.T) {
	exec := &fakeExecutor{
		columns: columnsOf(schema.Agents),
		responses: [][][]any{
			{{int64(1), "Person", nil, "A", nil}, {int64(2), "Person", nil, "B", nil}},
			{{int64(3), "Person", nil, "C", nil}},
		},
	}
	r := NewResolver(exec, WithBatchSize(2))
	rows, err := r.fetchByIDs(context.Background(), newBatchState(), schema.Agents, []int64{3, 1, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, []any{int64(1), int64(2)}, exec.args[0])
	assert.Equal(t, []any{int64(3)}, exec.args[1])
	require.Len(t, rows, 3)
	assert.Equal(t, "C", rows[2]["name"])
}
