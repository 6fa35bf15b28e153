// Package serialize renders loaded records as ordered JSON documents. Each
// entity's output follows its field layout in the schema: scalar columns are
// normalized by kind, related records are embedded recursively and the
// extension columns are flattened into name/value entries.
package serialize

import (
	"errors"
	"fmt"

	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
)

var (
	// ErrTherapeuticMissing is returned for a proposition with neither a
	// therapy nor a therapy group.
	ErrTherapeuticMissing = errors.New("proposition has no therapeutic")
	// ErrTherapeuticAmbiguous is returned for a proposition with both.
	ErrTherapeuticAmbiguous = errors.New("proposition has both a therapy and a therapy group")
)

// Graph resolves the relations of loaded rows. *resolver.Graph implements it.
type Graph interface {
	One(entity schema.Entity, row resolver.Row, relation string) (resolver.Row, bool)
	Many(entity schema.Entity, row resolver.Row, relation string) []resolver.Row
}

// Serializer renders one entity.
type Serializer interface {
	// Primary renders only the record's own scalar fields.
	Primary(g Graph, row resolver.Row) *OrderedMap
	// Full renders the complete document, embedding related records.
	Full(g Graph, row resolver.Row) (*OrderedMap, error)
}

// computedFunc produces the value of a computed field.
type computedFunc func(g Graph, row resolver.Row) (any, error)

var computed = map[string]computedFunc{
	schema.ComputedIRIs:              codingIRIs,
	schema.ComputedSubjectVariant:    subjectVariant,
	schema.ComputedObjectTherapeutic: objectTherapeutic,
}

type layoutSerializer struct {
	table *schema.Table
	view  string
}

var registry = map[schema.Entity]Serializer{}

func init() {
	for _, entity := range schema.Entities() {
		registry[entity] = layoutSerializer{table: schema.MustLookup(entity)}
	}
}

// For returns the serializer of entity.
func For(entity schema.Entity) (Serializer, bool) {
	s, ok := registry[entity]
	return s, ok
}

func forView(entity schema.Entity, view string) (layoutSerializer, error) {
	table, ok := schema.Lookup(entity)
	if !ok {
		return layoutSerializer{}, fmt.Errorf("no serializer for %q", entity)
	}
	return layoutSerializer{table: table, view: view}, nil
}

// Rows renders every row of entity in order.
func Rows(g Graph, entity schema.Entity, rows []resolver.Row) ([]*OrderedMap, error) {
	s, ok := For(entity)
	if !ok {
		return nil, fmt.Errorf("no serializer for %q", entity)
	}
	out := make([]*OrderedMap, 0, len(rows))
	for _, row := range rows {
		doc, err := s.Full(g, row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s layoutSerializer) Primary(_ Graph, row resolver.Row) *OrderedMap {
	out := NewOrderedMap()
	for _, f := range s.table.Layout(s.view) {
		switch f.Source {
		case schema.FromColumn:
			out.Set(f.Key, s.column(f.Name, row))
		case schema.FromConstant:
			out.Set(f.Key, f.Value)
		}
	}
	return out
}

func (s layoutSerializer) Full(g Graph, row resolver.Row) (*OrderedMap, error) {
	out := NewOrderedMap()
	for _, f := range s.table.Layout(s.view) {
		switch f.Source {
		case schema.FromColumn:
			out.Set(f.Key, s.column(f.Name, row))
		case schema.FromConstant:
			out.Set(f.Key, f.Value)
		case schema.FromRelation:
			value, err := s.relation(g, row, f.Name)
			if err != nil {
				return nil, err
			}
			out.Set(f.Key, value)
		case schema.FromExtensions:
			out.Set(f.Key, Flatten(s.table.Extensions, s.extensionRecord(g, row)))
		case schema.FromComputed:
			fn, ok := computed[f.Name]
			if !ok {
				return nil, fmt.Errorf("%s: unknown computed field %q", s.table.Entity, f.Name)
			}
			value, err := fn(g, row)
			if err != nil {
				return nil, err
			}
			out.Set(f.Key, value)
		}
	}
	return out, nil
}

func (s layoutSerializer) column(name string, row resolver.Row) any {
	col, ok := s.table.Column(name)
	if !ok {
		return row[name]
	}
	return Normalize(col.Kind, row[name])
}

// relation embeds a related record, or a list of them. Missing single
// targets render as null and empty lists as [].
func (s layoutSerializer) relation(g Graph, row resolver.Row, name string) (any, error) {
	rel, ok := s.table.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%s: unknown relation %q", s.table.Entity, name)
	}
	target, err := forView(rel.Target, rel.View)
	if err != nil {
		return nil, err
	}
	if rel.Kind == schema.BelongsTo {
		related, ok := g.One(s.table.Entity, row, name)
		if !ok {
			return nil, nil
		}
		return target.Full(g, related)
	}
	related := g.Many(s.table.Entity, row, name)
	out := make([]*OrderedMap, 0, len(related))
	for _, r := range related {
		doc, err := target.Full(g, r)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// extensionRecord collects the flat values Flatten reads for this row.
func (s layoutSerializer) extensionRecord(g Graph, row resolver.Row) map[string]any {
	record := make(map[string]any, len(s.table.Extensions.Fields)*2)
	for _, ext := range s.table.Extensions.Fields {
		if ext.Relation != "" {
			rel, _ := s.table.Relation(ext.Relation)
			targetTable := schema.MustLookup(rel.Target)
			kind := schema.KindText
			if col, ok := targetTable.Column(ext.RelationColumn); ok {
				kind = col.Kind
			}
			values := []any{}
			for _, related := range g.Many(s.table.Entity, row, ext.Relation) {
				values = append(values, Normalize(kind, related[ext.RelationColumn]))
			}
			record[ext.Name] = values
		} else {
			record[ext.Column] = s.column(ext.Column, row)
		}
		if ext.DescriptionColumn != "" {
			record[ext.DescriptionColumn] = s.column(ext.DescriptionColumn, row)
		}
	}
	return record
}

// codingIRIs renders the stored iris value as a list.
func codingIRIs(_ Graph, row resolver.Row) (any, error) {
	value := Normalize(schema.KindText, row["iris"])
	if value == nil {
		return []any{}, nil
	}
	return []any{value}, nil
}

func subjectVariant(g Graph, row resolver.Row) (any, error) {
	biomarkers := g.Many(schema.Propositions, row, "biomarkers")
	if len(biomarkers) == 0 {
		return nil, nil
	}
	s, _ := For(schema.Biomarkers)
	return s.Full(g, biomarkers[0])
}

func objectTherapeutic(g Graph, row resolver.Row) (any, error) {
	therapy, hasTherapy := g.One(schema.Propositions, row, "therapy")
	group, hasGroup := g.One(schema.Propositions, row, "therapyGroup")
	id, _ := row.ID()
	switch {
	case hasTherapy && hasGroup:
		return nil, fmt.Errorf("proposition %d: %w", id, ErrTherapeuticAmbiguous)
	case hasTherapy:
		s, _ := For(schema.Therapies)
		return s.Full(g, therapy)
	case hasGroup:
		s, _ := For(schema.TherapyGroups)
		return s.Full(g, group)
	default:
		return nil, fmt.Errorf("proposition %d: %w", id, ErrTherapeuticMissing)
	}
}
