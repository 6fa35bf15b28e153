package planner

import (
	"fmt"

	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Scan aliases emitted by breakdown queries.
const (
	GroupKeyAlias     = "__group_key"
	DimensionKeyAlias = "__dimension_key"
	CountAlias        = "__count"
)

// Dimension names one way of grouping a proposition's statements.
type Dimension string

const (
	DimensionTotal        Dimension = "count"
	DimensionDirection    Dimension = "direction"
	DimensionDocument     Dimension = "document"
	DimensionOrganization Dimension = "organization"
	DimensionStrength     Dimension = "strength"
)

// Dimensions lists every breakdown in the order summaries are built.
var Dimensions = []Dimension{
	DimensionTotal,
	DimensionDirection,
	DimensionDocument,
	DimensionOrganization,
	DimensionStrength,
}

// BreakdownFilter scopes statement breakdowns.
type BreakdownFilter struct {
	// PropositionIDs limits the statements counted; an empty list plans nothing.
	PropositionIDs []interface{}
	// Organizations, when set, keeps only statements reported in a document
	// published by one of the named organizations.
	Organizations []interface{}
}

// PlanStatementBreakdown builds one grouped count of statements per
// proposition. DimensionTotal yields (__group_key, __count); every other
// dimension adds __dimension_key and groups by it as well.
func PlanStatementBreakdown(dim Dimension, filter BreakdownFilter) (SQLQuery, error) {
	if len(filter.PropositionIDs) == 0 {
		return SQLQuery{}, nil
	}

	b := NewQueryBuilder(schema.Statements)
	groupCol := sqlutil.Qualified(tStatements, "proposition_id")

	var dimensionCol string
	switch dim {
	case DimensionTotal:
	case DimensionDirection:
		dimensionCol = sqlutil.Qualified(tStatements, "direction")
	case DimensionStrength:
		dimensionCol = sqlutil.Qualified(tStatements, "strength_id")
	case DimensionDocument:
		joinReportedIn(b)
		dimensionCol = sqlutil.Qualified(schema.DocumentsStatements, "document_id")
	case DimensionOrganization:
		joinReportedIn(b)
		dimensionCol = sqlutil.Qualified(tDocuments, "organization_id")
	default:
		return SQLQuery{}, fmt.Errorf("unknown breakdown dimension %q", dim)
	}

	columns := []string{groupCol + " AS " + GroupKeyAlias}
	groupBy := []string{groupCol}
	if dimensionCol != "" {
		columns = append(columns, dimensionCol+" AS "+DimensionKeyAlias)
		groupBy = append(groupBy, dimensionCol)
	}
	columns = append(columns, fmt.Sprintf("COUNT(DISTINCT %s) AS %s", sqlutil.Qualified(tStatements, "id"), CountAlias))

	conditions := sq.And{sq.Eq{groupCol: filter.PropositionIDs}}
	if len(filter.Organizations) > 0 {
		sub, err := planStatementsByOrganization(filter.Organizations)
		if err != nil {
			return SQLQuery{}, err
		}
		conditions = append(conditions, sq.Expr(sqlutil.Qualified(tStatements, "id")+" IN ("+sub.SQL+")", sub.Args...))
	}

	query, args, err := b.Select().
		Columns(columns...).
		Where(conditions).
		GroupBy(groupBy...).
		OrderBy(groupBy...).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// joinReportedIn joins the documents a statement is reported in.
func joinReportedIn(b *QueryBuilder) {
	b.EnsureJoined(schema.DocumentsStatements, InnerJoin, schema.DocumentsStatements,
		On(schema.DocumentsStatements, "statement_id", tStatements, "id"))
	b.EnsureJoined(tDocuments, InnerJoin, tDocuments,
		On(tDocuments, "id", schema.DocumentsStatements, "document_id"))
}

// planStatementsByOrganization selects the ids of statements reported in a
// document of one of the named organizations.
func planStatementsByOrganization(names []interface{}) (SQLQuery, error) {
	b := NewQueryBuilder(schema.DocumentsStatements)
	b.EnsureJoined(tDocuments, InnerJoin, tDocuments,
		On(tDocuments, "id", schema.DocumentsStatements, "document_id"))
	b.EnsureJoined(tOrganizations, InnerJoin, tOrganizations,
		On(tOrganizations, "id", tDocuments, "organization_id"))

	query, args, err := b.Select().
		Columns(sqlutil.Qualified(schema.DocumentsStatements, "statement_id")).
		Where(sq.Eq{sqlutil.Qualified(tOrganizations, "name"): names}).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
