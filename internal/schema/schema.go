// Package schema is the static description of the knowledgebase: every
// entity table, its scalar columns, its relationships, the fixed output
// field order and the extension tables used when serializing.
//
// The relational layout never changes at runtime, so nothing here is
// introspected; planners, loaders and serializers all read from the same
// registry.
package schema

import (
	"fmt"
	"sort"
)

// Entity names a table. Entity values double as SQL table names.
type Entity string

const (
	About             Entity = "about"
	Agents            Entity = "agents"
	Biomarkers        Entity = "biomarkers"
	Codings           Entity = "codings"
	Contributions     Entity = "contributions"
	Diseases          Entity = "diseases"
	Documents         Entity = "documents"
	Genes             Entity = "genes"
	Indications       Entity = "indications"
	Mappings          Entity = "mappings"
	Organizations     Entity = "organizations"
	Propositions      Entity = "propositions"
	Statements        Entity = "statements"
	Strengths         Entity = "strengths"
	Therapies         Entity = "therapies"
	TherapyGroups     Entity = "therapy_groups"
	TherapyStrategies Entity = "therapy_strategies"
)

// Junction tables. They carry only the two foreign keys of the pair.
const (
	BiomarkersGenes            = "biomarkers_genes"
	BiomarkersPropositions     = "biomarkers_propositions"
	ContributionsStatements    = "contributions_statements"
	DocumentsStatements        = "documents_statements"
	TherapiesTherapyGroups     = "therapies_therapy_groups"
	TherapiesTherapyStrategies = "therapies_therapy_strategies"
)

// Kind is the logical type of a column, used to normalize driver values.
type Kind int

const (
	KindInt Kind = iota
	KindText
	KindBool
	KindDate
	KindReal
)

// Column is a scalar column on a table.
type Column struct {
	Name     string
	Kind     Kind
	Nullable bool
}

// RelationKind describes how a related entity is reached.
type RelationKind int

const (
	// BelongsTo follows a foreign key stored on this row.
	BelongsTo RelationKind = iota
	// ManyToMany goes through a junction table.
	ManyToMany
	// HasMany matches RemoteColumn on the target against LocalColumn here.
	HasMany
)

// Relation is a named edge from one entity to another.
type Relation struct {
	Name   string
	Kind   RelationKind
	Target Entity
	// LocalColumn is the FK column for BelongsTo, or the local key for HasMany.
	LocalColumn string
	// RemoteColumn is the matching column on the target for HasMany.
	RemoteColumn string
	// Junction, JunctionLocal and JunctionRemote describe a ManyToMany hop.
	Junction       string
	JunctionLocal  string
	JunctionRemote string
	// View selects an alternate field layout of the target when embedded.
	View string
}

// Table is the full static definition of one entity.
type Table struct {
	Entity    Entity
	Columns   []Column
	Relations []Relation
	// Fields is the ordered output layout; Views holds alternate layouts.
	Fields []Field
	Views  map[string][]Field
	// Extensions lists the columns re-expressed under the extensions key.
	Extensions ExtensionSet
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Relation returns the named relation.
func (t *Table) Relation(name string) (Relation, bool) {
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Layout returns the field layout for the given view, falling back to the
// default layout when the view is empty or unknown.
func (t *Table) Layout(view string) []Field {
	if view != "" {
		if fields, ok := t.Views[view]; ok {
			return fields
		}
	}
	return t.Fields
}

var registry = map[Entity]*Table{}

func register(t *Table) {
	if _, exists := registry[t.Entity]; exists {
		panic(fmt.Sprintf("schema: duplicate table %s", t.Entity))
	}
	registry[t.Entity] = t
}

// Lookup returns the table for an entity.
func Lookup(e Entity) (*Table, bool) {
	t, ok := registry[e]
	return t, ok
}

// MustLookup returns the table for an entity and panics when it is not
// registered. Only use it with the Entity constants of this package.
func MustLookup(e Entity) *Table {
	t, ok := registry[e]
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity %q", e))
	}
	return t
}

// Entities returns all registered entities sorted by name.
func Entities() []Entity {
	out := make([]Entity, 0, len(registry))
	for e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// junctionColumns lists the pair columns of each junction table.
var junctionColumns = map[string][2]string{
	BiomarkersGenes:            {"biomarker_id", "gene_id"},
	BiomarkersPropositions:     {"proposition_id", "biomarker_id"},
	ContributionsStatements:    {"statement_id", "contribution_id"},
	DocumentsStatements:        {"statement_id", "document_id"},
	TherapiesTherapyGroups:     {"therapy_group_id", "therapy_id"},
	TherapiesTherapyStrategies: {"therapy_id", "therapy_strategy_id"},
}

// TableNames returns every physical table name (entities and junctions), sorted.
func TableNames() []string {
	names := make([]string, 0, len(registry)+len(junctionColumns))
	for e := range registry {
		names = append(names, string(e))
	}
	for j := range junctionColumns {
		names = append(names, j)
	}
	sort.Strings(names)
	return names
}

// PhysicalColumns returns the column names of any physical table.
func PhysicalColumns(table string) ([]string, bool) {
	if t, ok := registry[Entity(table)]; ok {
		return t.ColumnNames(), true
	}
	if cols, ok := junctionColumns[table]; ok {
		return []string{cols[0], cols[1]}, true
	}
	return nil, false
}
