package serialize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
)

// fakeGraph links rows by "entity.relation.id".
type fakeGraph struct {
	links map[string][]resolver.Row
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{links: make(map[string][]resolver.Row)}
}

func (g *fakeGraph) link(entity schema.Entity, row resolver.Row, relation string, targets ...resolver.Row) {
	id, _ := row.ID()
	key := fmt.Sprintf("%s.%s.%d", entity, relation, id)
	g.links[key] = append(g.links[key], targets...)
}

func (g *fakeGraph) One(entity schema.Entity, row resolver.Row, relation string) (resolver.Row, bool) {
	rows := g.Many(entity, row, relation)
	if len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

func (g *fakeGraph) Many(entity schema.Entity, row resolver.Row, relation string) []resolver.Row {
	id, _ := row.ID()
	return g.links[fmt.Sprintf("%s.%s.%d", entity, relation, id)]
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(v))
	return strings.TrimSuffix(buf.String(), "\n")
}

func full(t *testing.T, g Graph, entity schema.Entity, row resolver.Row) *OrderedMap {
	t.Helper()
	s, ok := For(entity)
	require.True(t, ok)
	doc, err := s.Full(g, row)
	require.NoError(t, err)
	return doc
}

func TestOrderedMapKeepsInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", 1)
	m.Set("a", "<b>")
	m.Set("m", nil)
	m.Set("z", 2)
	assert.Equal(t, `{"z":2,"a":"<b>","m":null}`, mustJSON(t, m))

	m.Delete("a")
	assert.Equal(t, []string{"z", "m"}, m.Keys())
	assert.Equal(t, 2, m.Len())

	var nilMap *OrderedMap
	assert.Equal(t, "null", mustJSON(t, nilMap))
}

func TestNormalize(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		kind schema.Kind
		in   any
		want any
	}{
		{schema.KindBool, int64(1), true},
		{schema.KindBool, int64(0), false},
		{schema.KindBool, "true", true},
		{schema.KindDate, day, "2024-03-05"},
		{schema.KindDate, "2024-03-05 00:00:00", "2024-03-05"},
		{schema.KindDate, []byte("2024-03-05"), "2024-03-05"},
		{schema.KindDate, "not a date", "not a date"},
		{schema.KindDate, nil, nil},
		{schema.KindInt, "42", int64(42)},
		{schema.KindText, []byte("BRAF"), "BRAF"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.kind, tt.in), "%v", tt.in)
	}
}

func TestCodingRendersIRIsAsList(t *testing.T) {
	g := newFakeGraph()
	coding := resolver.Row{"id": int64(1), "code": "C3224", "name": "Melanoma", "system": "ncit",
		"systemVersion": "24.01", "iris": "https://ncit.nci.nih.gov/C3224"}
	doc := full(t, g, schema.Codings, coding)
	assert.Equal(t, []string{"id", "code", "name", "system", "systemVersion", "iris"}, doc.Keys())
	iris, _ := doc.Get("iris")
	assert.Equal(t, []any{"https://ncit.nci.nih.gov/C3224"}, iris)

	coding["iris"] = nil
	doc = full(t, g, schema.Codings, coding)
	iris, _ = doc.Get("iris")
	assert.Equal(t, []any{}, iris)
}

func TestDiseaseEmbedsCodingAndMappings(t *testing.T) {
	g := newFakeGraph()
	disease := resolver.Row{"id": int64(3), "concept_type": "Disease", "name": "Melanoma",
		"primary_coding_id": int64(1), "solid_tumor": int64(1)}
	primary := resolver.Row{"id": int64(1), "code": "C3224", "name": "Melanoma", "system": "ncit",
		"systemVersion": nil, "iris": nil}
	other := resolver.Row{"id": int64(2), "code": "MEL", "name": "Melanoma", "system": "oncotree",
		"systemVersion": nil, "iris": nil}
	mapping := resolver.Row{"id": int64(9), "primary_coding_id": int64(1), "coding_id": int64(2), "relation": "exactMatch"}
	g.link(schema.Diseases, disease, "primaryCoding", primary)
	g.link(schema.Diseases, disease, "mappings", mapping)
	g.link(schema.Mappings, mapping, "coding", other)

	doc := full(t, g, schema.Diseases, disease)
	assert.Equal(t, []string{"id", "conceptType", "name", "primaryCoding", "mappings", "extensions"}, doc.Keys())

	encoded := mustJSON(t, doc)
	assert.Contains(t, encoded, `"mappings":[{"relation":"exactMatch","coding":{"id":2,"code":"MEL"`)
	assert.Contains(t, encoded, `"extensions":[{"name":"solid_tumor","value":true,"description":"Boolean value for if this tumor type is categorized as a solid tumor."}]`)
	assert.NotContains(t, encoded, "primary_coding_id")
}

func TestTherapyExtensionsIncludeStrategies(t *testing.T) {
	g := newFakeGraph()
	therapy := resolver.Row{"id": int64(5), "concept_type": "Drug", "name": "Dabrafenib", "primary_coding_id": nil,
		"therapy_strategy_description": "Targets a kinase", "therapy_type": "Targeted therapy",
		"therapy_type_description": "Acts on a molecular target"}
	g.link(schema.Therapies, therapy, "therapy_strategy",
		resolver.Row{"id": int64(1), "name": "BRAF inhibition"},
		resolver.Row{"id": int64(2), "name": "RAF inhibition"})

	doc := full(t, g, schema.Therapies, therapy)
	pc, _ := doc.Get("primaryCoding")
	assert.Nil(t, pc)
	mappings, _ := doc.Get("mappings")
	assert.Equal(t, []*OrderedMap{}, mappings)

	raw, _ := doc.Get("extensions")
	exts := raw.([]*OrderedMap)
	require.Len(t, exts, 2)
	assert.Equal(t,
		`{"name":"therapy_strategy","value":["BRAF inhibition","RAF inhibition"],"description":"Targets a kinase"}`,
		mustJSON(t, exts[0]))
	assert.Equal(t,
		`{"name":"therapy_type","value":"Targeted therapy","description":"Acts on a molecular target"}`,
		mustJSON(t, exts[1]))
}

func TestBiomarkerExtensionsSkipNulls(t *testing.T) {
	g := newFakeGraph()
	biomarker := resolver.Row{"id": int64(7), "name": "BRAF p.V600E"}
	for _, col := range schema.BiomarkerExtensionColumns {
		biomarker[col] = nil
	}
	biomarker["biomarker_type"] = "Somatic Variant"
	biomarker["present"] = int64(0)
	biomarker["protein_change"] = "p.V600E"

	doc := full(t, g, schema.Biomarkers, biomarker)
	assert.Equal(t, []string{"id", "type", "name", "extensions", "genes"}, doc.Keys())
	typ, _ := doc.Get("type")
	assert.Equal(t, "CategoricalVariant", typ)

	raw, _ := doc.Get("extensions")
	exts := raw.([]*OrderedMap)
	require.Len(t, exts, 3)
	assert.Equal(t, `{"name":"biomarker_type","value":"Somatic Variant"}`, mustJSON(t, exts[0]))
	assert.Equal(t, `{"name":"present","value":false}`, mustJSON(t, exts[1]))
	assert.Equal(t, `{"name":"protein_change","value":"p.V600E"}`, mustJSON(t, exts[2]))
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	for _, entity := range []schema.Entity{schema.Diseases, schema.Genes, schema.Therapies, schema.Biomarkers} {
		set := schema.MustLookup(entity).Extensions
		record := map[string]any{}
		for i, ext := range set.Fields {
			if i%2 == 1 && set.OmitNull {
				continue
			}
			record[sourceKey(ext)] = fmt.Sprintf("v%d", i)
			if ext.DescriptionColumn != "" {
				record[ext.DescriptionColumn] = fmt.Sprintf("d%d", i)
			}
		}

		back, err := Unflatten(set, Flatten(set, record))
		require.NoError(t, err, entity)
		assert.Equal(t, record, back, entity)
	}
}

func TestUnflattenRejectsUnknownName(t *testing.T) {
	entry := NewOrderedMap()
	entry.Set("name", "nope")
	_, err := Unflatten(schema.MustLookup(schema.Genes).Extensions, []*OrderedMap{entry})
	require.Error(t, err)
}

func propositionFixture() (*fakeGraph, resolver.Row) {
	g := newFakeGraph()
	prop := resolver.Row{"id": int64(11), "type": "VariantTherapeuticResponseProposition",
		"predicate": "predictSensitivityTo", "condition_qualifier_id": int64(3)}
	biomarker := resolver.Row{"id": int64(7), "name": "BRAF p.V600E", "biomarker_type": "Somatic Variant"}
	g.link(schema.Propositions, prop, "biomarkers", biomarker)
	g.link(schema.Propositions, prop, "conditionQualifier",
		resolver.Row{"id": int64(3), "concept_type": "Disease", "name": "Melanoma", "solid_tumor": int64(1)})
	return g, prop
}

func TestPropositionWithTherapy(t *testing.T) {
	g, prop := propositionFixture()
	g.link(schema.Propositions, prop, "therapy",
		resolver.Row{"id": int64(5), "concept_type": "Drug", "name": "Dabrafenib"})

	doc := full(t, g, schema.Propositions, prop)
	assert.Equal(t, []string{"id", "type", "predicate", "biomarkers", "subjectVariant",
		"conditionQualifier", "objectTherapeutic"}, doc.Keys())

	subject, _ := doc.Get("subjectVariant")
	require.IsType(t, &OrderedMap{}, subject)
	name, _ := subject.(*OrderedMap).Get("name")
	assert.Equal(t, "BRAF p.V600E", name)

	object, _ := doc.Get("objectTherapeutic")
	name, _ = object.(*OrderedMap).Get("name")
	assert.Equal(t, "Dabrafenib", name)
	assert.NotContains(t, mustJSON(t, doc), "therapy_id")
}

func TestPropositionWithTherapyGroup(t *testing.T) {
	g, prop := propositionFixture()
	group := resolver.Row{"id": int64(2), "membership_operator": "AND"}
	g.link(schema.Propositions, prop, "therapyGroup", group)
	g.link(schema.TherapyGroups, group, "therapies",
		resolver.Row{"id": int64(5), "name": "Dabrafenib"},
		resolver.Row{"id": int64(6), "name": "Trametinib"})

	doc := full(t, g, schema.Propositions, prop)
	object, _ := doc.Get("objectTherapeutic")
	assert.Equal(t, []string{"id", "membershipOperator", "therapies"}, object.(*OrderedMap).Keys())
	therapies, _ := object.(*OrderedMap).Get("therapies")
	assert.Len(t, therapies, 2)
}

func TestPropositionTherapeuticMustBeExclusive(t *testing.T) {
	s, _ := For(schema.Propositions)

	g, prop := propositionFixture()
	_, err := s.Full(g, prop)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTherapeuticMissing))

	g.link(schema.Propositions, prop, "therapy", resolver.Row{"id": int64(5), "name": "Dabrafenib"})
	g.link(schema.Propositions, prop, "therapyGroup", resolver.Row{"id": int64(2), "membership_operator": "AND"})
	_, err = s.Full(g, prop)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTherapeuticAmbiguous))
}

func TestSubjectVariantNullWithoutBiomarkers(t *testing.T) {
	g := newFakeGraph()
	prop := resolver.Row{"id": int64(12), "type": "t", "predicate": "p"}
	g.link(schema.Propositions, prop, "therapy", resolver.Row{"id": int64(5), "name": "Dabrafenib"})

	doc := full(t, g, schema.Propositions, prop)
	subject, ok := doc.Get("subjectVariant")
	assert.True(t, ok)
	assert.Nil(t, subject)
	biomarkers, _ := doc.Get("biomarkers")
	assert.Equal(t, []*OrderedMap{}, biomarkers)
}

func TestPrimarySkipsRelations(t *testing.T) {
	s, _ := For(schema.Documents)
	doc := s.Primary(newFakeGraph(), resolver.Row{
		"id": int64(1), "type": "Regulatory approval", "name": "Label", "organization_id": int64(4),
		"publication_date": "2023-01-02",
	})
	_, hasOrg := doc.Get("organization")
	assert.False(t, hasOrg)
	date, _ := doc.Get("publication_date")
	assert.Equal(t, "2023-01-02", date)
}

func TestAboutLayout(t *testing.T) {
	doc := full(t, newFakeGraph(), schema.About, resolver.Row{
		"id": int64(1), "github": "g", "label": "l", "license": "GPL-2.0", "release": "v.2024-01-01",
		"url": "u", "last_updated": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, `{"github":"g","label":"l","license":"GPL-2.0","release":"v.2024-01-01","url":"u","last_updated":"2024-01-01"}`,
		mustJSON(t, doc))
}

func TestRowsUnknownEntity(t *testing.T) {
	_, err := Rows(newFakeGraph(), schema.Entity("nope"), nil)
	require.Error(t, err)
}
