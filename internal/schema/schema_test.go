package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRelationsResolve(t *testing.T) {
	for _, e := range Entities() {
		table := MustLookup(e)
		for _, rel := range table.Relations {
			target, ok := Lookup(rel.Target)
			require.Truef(t, ok, "%s.%s targets unknown entity %s", e, rel.Name, rel.Target)

			switch rel.Kind {
			case BelongsTo:
				_, ok := table.Column(rel.LocalColumn)
				assert.Truef(t, ok, "%s.%s: missing FK column %s", e, rel.Name, rel.LocalColumn)
			case HasMany:
				_, ok := table.Column(rel.LocalColumn)
				assert.Truef(t, ok, "%s.%s: missing local column %s", e, rel.Name, rel.LocalColumn)
				_, ok = target.Column(rel.RemoteColumn)
				assert.Truef(t, ok, "%s.%s: missing remote column %s", e, rel.Name, rel.RemoteColumn)
			case ManyToMany:
				cols, ok := PhysicalColumns(rel.Junction)
				require.Truef(t, ok, "%s.%s: unknown junction %s", e, rel.Name, rel.Junction)
				assert.Contains(t, cols, rel.JunctionLocal)
				assert.Contains(t, cols, rel.JunctionRemote)
			}
		}
	}
}

func TestLayoutsReferenceKnownSources(t *testing.T) {
	for _, e := range Entities() {
		table := MustLookup(e)
		layouts := [][]Field{table.Fields}
		for _, v := range table.Views {
			layouts = append(layouts, v)
		}
		for _, layout := range layouts {
			seen := map[string]bool{}
			for _, f := range layout {
				assert.Falsef(t, seen[f.Key], "%s: duplicate key %s", e, f.Key)
				seen[f.Key] = true
				switch f.Source {
				case FromColumn:
					_, ok := table.Column(f.Name)
					assert.Truef(t, ok, "%s: field %s reads unknown column %s", e, f.Key, f.Name)
				case FromRelation:
					_, ok := table.Relation(f.Name)
					assert.Truef(t, ok, "%s: field %s reads unknown relation %s", e, f.Key, f.Name)
				}
			}
		}
	}
}

func TestForeignKeysNeverEmitted(t *testing.T) {
	for _, e := range Entities() {
		table := MustLookup(e)
		for _, rel := range table.Relations {
			if rel.Kind != BelongsTo {
				continue
			}
			assert.NotContainsf(t, Keys(table.Fields), rel.LocalColumn,
				"%s emits FK column %s next to relation %s", e, rel.LocalColumn, rel.Name)
		}
	}
}

func TestFieldOrders(t *testing.T) {
	tests := map[Entity][]string{
		Codings:       {"id", "code", "name", "system", "systemVersion", "iris"},
		Diseases:      {"id", "conceptType", "name", "primaryCoding", "mappings", "extensions"},
		Genes:         {"id", "conceptType", "name", "primaryCoding", "mappings", "extensions"},
		Therapies:     {"id", "conceptType", "name", "primaryCoding", "mappings", "extensions"},
		Strengths:     {"id", "conceptType", "name", "primaryCoding", "mappings"},
		Contributions: {"id", "type", "agent", "description", "date"},
		Organizations: {"id", "name", "description", "url", "last_updated"},
		Propositions:  {"id", "type", "predicate", "biomarkers", "subjectVariant", "conditionQualifier", "objectTherapeutic"},
		Statements:    {"id", "type", "description", "contributions", "reportedIn", "direction", "indication", "proposition", "strength"},
		About:         {"github", "label", "license", "release", "url", "last_updated"},
	}
	for entity, want := range tests {
		assert.Equal(t, want, Keys(MustLookup(entity).Fields), entity)
	}
	assert.Equal(t, []string{"relation", "coding"}, Keys(MustLookup(Mappings).Layout(ViewEmbedded)))
	assert.Equal(t, []string{"id", "relation", "primaryCoding", "coding"}, Keys(MustLookup(Mappings).Layout("")))
}

func TestFilterColumnsPointAtRealColumns(t *testing.T) {
	for key, ref := range FilterColumns {
		table, ok := Lookup(ref.Table)
		require.Truef(t, ok, "filter %s: unknown table %s", key, ref.Table)
		_, ok = table.Column(ref.Column)
		assert.Truef(t, ok, "filter %s: unknown column %s.%s", key, ref.Table, ref.Column)
	}
	assert.Equal(t, "therapy_type", FilterColumns["therapy_type"].Column)
	assert.Equal(t, "name", FilterColumns["therapy"].Column)
}

func TestPhysicalColumns(t *testing.T) {
	cols, ok := PhysicalColumns(DocumentsStatements)
	require.True(t, ok)
	assert.Equal(t, []string{"statement_id", "document_id"}, cols)

	cols, ok = PhysicalColumns("genes")
	require.True(t, ok)
	assert.Contains(t, cols, "location_sortable")

	_, ok = PhysicalColumns("nope")
	assert.False(t, ok)
	assert.Contains(t, TableNames(), BiomarkersGenes)
}

func TestBiomarkerExtensionsCoverEveryAttribute(t *testing.T) {
	set := MustLookup(Biomarkers).Extensions
	assert.True(t, set.OmitNull)
	assert.Equal(t, BiomarkerExtensionColumns, set.Columns())
}
