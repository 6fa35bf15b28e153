// Package aggregate summarizes the statements behind a set of propositions:
// a total count plus breakdowns by direction, document, organization and
// strength. Each breakdown is one grouped query over every requested
// proposition at once.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"
)

// Params narrows the statements that are counted.
type Params struct {
	// Organizations keeps only statements reported by one of the named
	// organizations. Empty means no restriction.
	Organizations []interface{}
}

// ParamsFromFilters takes the organization allow-list from request filters.
func ParamsFromFilters(filters planner.Filters) Params {
	return Params{Organizations: filters["organization"]}
}

// DirectionCount is one entry of Summary.ByDirection.
type DirectionCount struct {
	Direction any   `json:"direction"`
	Count     int64 `json:"count"`
}

// DocumentCount is one entry of Summary.ByDocument.
type DocumentCount struct {
	DocumentID int64 `json:"document_id"`
	Count      int64 `json:"count"`
}

// OrganizationCount is one entry of Summary.ByOrganization.
type OrganizationCount struct {
	Organization *serialize.OrderedMap `json:"organization"`
	Count        int64                 `json:"count"`
}

// StrengthCount is one entry of Summary.ByStrength.
type StrengthCount struct {
	Strength *serialize.OrderedMap `json:"strength"`
	Count    int64                 `json:"count"`
}

// Summary is the statement aggregate of one proposition.
type Summary struct {
	Count          int64               `json:"count"`
	ByDirection    []DirectionCount    `json:"byDirection"`
	ByDocument     []DocumentCount     `json:"byDocument"`
	ByOrganization []OrganizationCount `json:"byOrganization"`
	ByStrength     []StrengthCount     `json:"byStrength"`
}

// NewSummary returns the zero summary: no statements and empty breakdowns.
func NewSummary() *Summary {
	return &Summary{
		ByDirection:    []DirectionCount{},
		ByDocument:     []DocumentCount{},
		ByOrganization: []OrganizationCount{},
		ByStrength:     []StrengthCount{},
	}
}

// Aggregator computes summaries through a resolver.
type Aggregator struct {
	resolver  *resolver.Resolver
	batchSize int
}

// New creates an aggregator. batchSize caps the propositions counted per
// query; zero or less means 500.
func New(r *resolver.Resolver, batchSize int) *Aggregator {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Aggregator{resolver: r, batchSize: batchSize}
}

// group is one scanned breakdown row.
type group struct {
	proposition int64
	key         any
	count       int64
}

// Aggregate returns a summary for every id in propositionIDs. Propositions
// without matching statements get the zero summary.
func (a *Aggregator) Aggregate(ctx context.Context, propositionIDs []int64, params Params) (map[int64]*Summary, error) {
	out := make(map[int64]*Summary, len(propositionIDs))
	for _, id := range propositionIDs {
		out[id] = NewSummary()
	}
	if len(propositionIDs) == 0 {
		return out, nil
	}

	grouped := make(map[planner.Dimension][]group, len(planner.Dimensions))
	for _, dim := range planner.Dimensions {
		for start := 0; start < len(propositionIDs); start += a.batchSize {
			end := start + a.batchSize
			if end > len(propositionIDs) {
				end = len(propositionIDs)
			}
			groups, err := a.breakdown(ctx, dim, propositionIDs[start:end], params)
			if err != nil {
				return nil, err
			}
			grouped[dim] = append(grouped[dim], groups...)
		}
	}

	organizations, err := a.render(ctx, schema.Organizations, keysOf(grouped[planner.DimensionOrganization]))
	if err != nil {
		return nil, err
	}
	strengths, err := a.render(ctx, schema.Strengths, keysOf(grouped[planner.DimensionStrength]))
	if err != nil {
		return nil, err
	}

	for _, g := range grouped[planner.DimensionTotal] {
		if s, ok := out[g.proposition]; ok {
			s.Count = g.count
		}
	}
	for _, g := range grouped[planner.DimensionDirection] {
		if s, ok := out[g.proposition]; ok {
			s.ByDirection = append(s.ByDirection, DirectionCount{Direction: g.key, Count: g.count})
		}
	}
	for _, g := range grouped[planner.DimensionDocument] {
		id, ok := resolver.AsInt64(g.key)
		if s, found := out[g.proposition]; found && ok {
			s.ByDocument = append(s.ByDocument, DocumentCount{DocumentID: id, Count: g.count})
		}
	}
	for _, g := range grouped[planner.DimensionOrganization] {
		id, _ := resolver.AsInt64(g.key)
		if s, ok := out[g.proposition]; ok {
			s.ByOrganization = append(s.ByOrganization, OrganizationCount{Organization: organizations[id], Count: g.count})
		}
	}
	for _, g := range grouped[planner.DimensionStrength] {
		id, _ := resolver.AsInt64(g.key)
		if s, ok := out[g.proposition]; ok {
			s.ByStrength = append(s.ByStrength, StrengthCount{Strength: strengths[id], Count: g.count})
		}
	}

	for _, s := range out {
		s.sortBreakdowns()
	}
	return out, nil
}

func (a *Aggregator) breakdown(ctx context.Context, dim planner.Dimension, ids []int64, params Params) ([]group, error) {
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	plan, err := planner.PlanStatementBreakdown(dim, planner.BreakdownFilter{
		PropositionIDs: values,
		Organizations:  params.Organizations,
	})
	if err != nil {
		return nil, err
	}

	columns := []string{planner.GroupKeyAlias, planner.CountAlias}
	if dim != planner.DimensionTotal {
		columns = []string{planner.GroupKeyAlias, planner.DimensionKeyAlias, planner.CountAlias}
	}
	rows, err := a.resolver.Query(ctx, "statements_by_"+string(dim), plan, columns)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", dim, err)
	}

	out := make([]group, 0, len(rows))
	for _, row := range rows {
		proposition, ok := resolver.AsInt64(row[planner.GroupKeyAlias])
		if !ok {
			continue
		}
		count, _ := resolver.AsInt64(row[planner.CountAlias])
		out = append(out, group{proposition: proposition, key: row[planner.DimensionKeyAlias], count: count})
	}
	return out, nil
}

// render loads the records behind ids in one batch and serializes them.
func (a *Aggregator) render(ctx context.Context, entity schema.Entity, ids []int64) (map[int64]*serialize.OrderedMap, error) {
	out := make(map[int64]*serialize.OrderedMap, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	graph, rows, err := a.resolver.LoadIDs(ctx, entity, ids)
	if err != nil {
		return nil, err
	}
	s, ok := serialize.For(entity)
	if !ok {
		return nil, fmt.Errorf("no serializer for %q", entity)
	}
	for _, row := range rows {
		doc, err := s.Full(graph, row)
		if err != nil {
			return nil, err
		}
		id, _ := row.ID()
		out[id] = doc
	}
	return out, nil
}

func keysOf(groups []group) []int64 {
	seen := make(map[int64]struct{}, len(groups))
	var out []int64
	for _, g := range groups {
		id, ok := resolver.AsInt64(g.key)
		if !ok {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// sortBreakdowns orders every breakdown by count descending, then key.
func (s *Summary) sortBreakdowns() {
	sort.SliceStable(s.ByDirection, func(i, j int) bool {
		a, b := s.ByDirection[i], s.ByDirection[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return fmt.Sprint(a.Direction) < fmt.Sprint(b.Direction)
	})
	sort.SliceStable(s.ByDocument, func(i, j int) bool {
		a, b := s.ByDocument[i], s.ByDocument[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.DocumentID < b.DocumentID
	})
	sort.SliceStable(s.ByOrganization, func(i, j int) bool {
		a, b := s.ByOrganization[i], s.ByOrganization[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return idOf(a.Organization) < idOf(b.Organization)
	})
	sort.SliceStable(s.ByStrength, func(i, j int) bool {
		a, b := s.ByStrength[i], s.ByStrength[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return idOf(a.Strength) < idOf(b.Strength)
	})
}

func idOf(doc *serialize.OrderedMap) int64 {
	if doc == nil {
		return 0
	}
	v, _ := doc.Get("id")
	id, _ := resolver.AsInt64(v)
	return id
}
