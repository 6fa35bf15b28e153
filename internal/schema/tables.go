package schema

func cols(kind Kind, names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Kind: kind}
	}
	return out
}

func nullable(columns []Column) []Column {
	for i := range columns {
		columns[i].Nullable = true
	}
	return columns
}

func concat(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func conceptColumns(extra ...[]Column) []Column {
	base := concat(
		cols(KindInt, "id"),
		cols(KindText, "concept_type", "name"),
		cols(KindInt, "primary_coding_id"),
	)
	return concat(append([][]Column{base}, extra...)...)
}

// conceptRelations are shared by every concept entity.
var conceptRelations = []Relation{
	{Name: "primaryCoding", Kind: BelongsTo, Target: Codings, LocalColumn: "primary_coding_id"},
	{Name: "mappings", Kind: HasMany, Target: Mappings, LocalColumn: "primary_coding_id", RemoteColumn: "primary_coding_id", View: ViewEmbedded},
}

// ViewEmbedded is the compact mapping layout used inside concepts.
const ViewEmbedded = "embedded"

// Computed value names.
const (
	ComputedIRIs              = "iris"
	ComputedSubjectVariant    = "subjectVariant"
	ComputedObjectTherapeutic = "objectTherapeutic"
)

func conceptFields(withExtensions bool) []Field {
	fields := []Field{
		Col("id", "id"),
		Col("conceptType", "concept_type"),
		Col("name", "name"),
		Rel("primaryCoding", "primaryCoding"),
		Rel("mappings", "mappings"),
	}
	if withExtensions {
		fields = append(fields, Ext())
	}
	return fields
}

// BiomarkerExtensionColumns are the categorical-variant attributes that are
// only ever emitted as extensions.
var BiomarkerExtensionColumns = []string{
	"biomarker_type", "present", "marker", "unit", "equality", "value",
	"chromosome", "start_position", "end_position", "reference_allele",
	"alternate_allele", "cdna_change", "protein_change", "variant_annotation",
	"exon", "rsid", "hgvsg", "hgvsc", "requires_oncogenic", "requires_pathogenic",
	"rearrangement_type", "locus", "direction", "cytoband", "arm", "status",
}

var biomarkerColumnKinds = map[string]Kind{
	"present":             KindBool,
	"start_position":      KindInt,
	"end_position":        KindInt,
	"requires_oncogenic":  KindBool,
	"requires_pathogenic": KindBool,
}

func biomarkerColumns() []Column {
	out := concat(cols(KindInt, "id"), cols(KindText, "name"))
	for _, name := range BiomarkerExtensionColumns {
		kind, ok := biomarkerColumnKinds[name]
		if !ok {
			kind = KindText
		}
		out = append(out, Column{Name: name, Kind: kind, Nullable: name != "biomarker_type"})
	}
	return out
}

func biomarkerExtensions() ExtensionSet {
	set := ExtensionSet{OmitNull: true}
	for _, name := range BiomarkerExtensionColumns {
		set.Fields = append(set.Fields, Extension{Name: name, Column: name})
	}
	return set
}

func init() {
	register(&Table{
		Entity: About,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "github", "label", "license", "release", "url"),
			cols(KindDate, "last_updated"),
		),
		Fields: Same("github", "label", "license", "release", "url", "last_updated"),
	})

	register(&Table{
		Entity:  Agents,
		Columns: concat(cols(KindInt, "id"), cols(KindText, "type", "subtype", "name", "description")),
		Fields:  Same("id", "type", "subtype", "name", "description"),
	})

	register(&Table{
		Entity:  Codings,
		Columns: concat(cols(KindInt, "id"), cols(KindText, "code", "name", "system", "systemVersion", "iris")),
		Fields: append(
			Same("id", "code", "name", "system", "systemVersion"),
			Computed("iris", ComputedIRIs),
		),
	})

	register(&Table{
		Entity: Mappings,
		Columns: concat(
			cols(KindInt, "id", "primary_coding_id", "coding_id"),
			cols(KindText, "relation"),
		),
		Relations: []Relation{
			{Name: "primaryCoding", Kind: BelongsTo, Target: Codings, LocalColumn: "primary_coding_id"},
			{Name: "coding", Kind: BelongsTo, Target: Codings, LocalColumn: "coding_id"},
		},
		Fields: []Field{
			Col("id", "id"),
			Col("relation", "relation"),
			Rel("primaryCoding", "primaryCoding"),
			Rel("coding", "coding"),
		},
		Views: map[string][]Field{
			ViewEmbedded: {Col("relation", "relation"), Rel("coding", "coding")},
		},
	})

	register(&Table{
		Entity:    Diseases,
		Columns:   conceptColumns(nullable(cols(KindBool, "solid_tumor"))),
		Relations: conceptRelations,
		Fields:    conceptFields(true),
		Extensions: ExtensionSet{Fields: []Extension{{
			Name:        "solid_tumor",
			Column:      "solid_tumor",
			Description: "Boolean value for if this tumor type is categorized as a solid tumor.",
		}}},
	})

	register(&Table{
		Entity:    Genes,
		Columns:   conceptColumns(nullable(cols(KindText, "location", "location_sortable"))),
		Relations: conceptRelations,
		Fields:    conceptFields(true),
		Extensions: ExtensionSet{Fields: []Extension{
			{Name: "location", Column: "location"},
			{Name: "location_sortable", Column: "location_sortable"},
		}},
	})

	register(&Table{
		Entity:  TherapyStrategies,
		Columns: concat(cols(KindInt, "id"), cols(KindText, "name")),
		Fields:  Same("id", "name"),
	})

	register(&Table{
		Entity: Therapies,
		Columns: conceptColumns(nullable(cols(KindText,
			"therapy_strategy_description", "therapy_type", "therapy_type_description",
		))),
		Relations: append(append([]Relation{}, conceptRelations...), Relation{
			Name: "therapy_strategy", Kind: ManyToMany, Target: TherapyStrategies,
			Junction: TherapiesTherapyStrategies, JunctionLocal: "therapy_id", JunctionRemote: "therapy_strategy_id",
		}),
		Fields: conceptFields(true),
		Extensions: ExtensionSet{Fields: []Extension{
			{Name: "therapy_strategy", Relation: "therapy_strategy", RelationColumn: "name", DescriptionColumn: "therapy_strategy_description"},
			{Name: "therapy_type", Column: "therapy_type", DescriptionColumn: "therapy_type_description"},
		}},
	})

	register(&Table{
		Entity:    Strengths,
		Columns:   conceptColumns(),
		Relations: conceptRelations,
		Fields:    conceptFields(false),
	})

	register(&Table{
		Entity:  Biomarkers,
		Columns: biomarkerColumns(),
		Relations: []Relation{{
			Name: "genes", Kind: ManyToMany, Target: Genes,
			Junction: BiomarkersGenes, JunctionLocal: "biomarker_id", JunctionRemote: "gene_id",
		}},
		Fields: []Field{
			Col("id", "id"),
			Const("type", "CategoricalVariant"),
			Col("name", "name"),
			Ext(),
			Rel("genes", "genes"),
		},
		Extensions: biomarkerExtensions(),
	})

	register(&Table{
		Entity:  TherapyGroups,
		Columns: concat(cols(KindInt, "id"), cols(KindText, "membership_operator")),
		Relations: []Relation{{
			Name: "therapies", Kind: ManyToMany, Target: Therapies,
			Junction: TherapiesTherapyGroups, JunctionLocal: "therapy_group_id", JunctionRemote: "therapy_id",
		}},
		Fields: []Field{
			Col("id", "id"),
			Col("membershipOperator", "membership_operator"),
			Rel("therapies", "therapies"),
		},
	})

	register(&Table{
		Entity: Propositions,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "type", "predicate"),
			cols(KindInt, "condition_qualifier_id"),
			nullable(cols(KindInt, "therapy_id", "therapy_group_id")),
		),
		Relations: []Relation{
			{
				Name: "biomarkers", Kind: ManyToMany, Target: Biomarkers,
				Junction: BiomarkersPropositions, JunctionLocal: "proposition_id", JunctionRemote: "biomarker_id",
			},
			{Name: "conditionQualifier", Kind: BelongsTo, Target: Diseases, LocalColumn: "condition_qualifier_id"},
			{Name: "therapy", Kind: BelongsTo, Target: Therapies, LocalColumn: "therapy_id"},
			{Name: "therapyGroup", Kind: BelongsTo, Target: TherapyGroups, LocalColumn: "therapy_group_id"},
		},
		Fields: []Field{
			Col("id", "id"),
			Col("type", "type"),
			Col("predicate", "predicate"),
			Rel("biomarkers", "biomarkers"),
			Computed("subjectVariant", ComputedSubjectVariant),
			Rel("conditionQualifier", "conditionQualifier"),
			Computed("objectTherapeutic", ComputedObjectTherapeutic),
		},
	})

	register(&Table{
		Entity: Organizations,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "name", "description", "url"),
			cols(KindDate, "last_updated"),
		),
		Fields: Same("id", "name", "description", "url", "last_updated"),
	})

	register(&Table{
		Entity: Documents,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "type"),
			nullable(cols(KindText, "subtype")),
			cols(KindText, "name"),
			nullable(cols(KindText, "citation", "company", "drug_name_brand", "drug_name_generic")),
			nullable(cols(KindDate, "first_published", "access_date")),
			cols(KindInt, "organization_id"),
			nullable(cols(KindDate, "publication_date")),
			nullable(cols(KindText, "url", "url_drug", "application_number")),
		),
		Relations: []Relation{
			{Name: "organization", Kind: BelongsTo, Target: Organizations, LocalColumn: "organization_id"},
		},
		Fields: append(append(
			Same("id", "type", "subtype", "name", "citation", "company", "drug_name_brand",
				"drug_name_generic", "first_published", "access_date"),
			Rel("organization", "organization")),
			Same("publication_date", "url", "url_drug", "application_number")...,
		),
	})

	register(&Table{
		Entity: Indications,
		Columns: concat(
			cols(KindInt, "id", "document_id"),
			cols(KindText, "indication"),
			nullable(cols(KindDate, "initial_approval_date")),
			nullable(cols(KindText, "initial_approval_url", "description", "raw_biomarkers",
				"raw_cancer_type", "raw_therapeutics")),
			nullable(cols(KindDate, "date_regular_approval", "date_accelerated_approval")),
			nullable(cols(KindText, "regimen_code", "reimbursement_category")),
			nullable(cols(KindDate, "reimbursement_date")),
			nullable(cols(KindText, "reimbursement_details", "icd10")),
		),
		Relations: []Relation{
			{Name: "document", Kind: BelongsTo, Target: Documents, LocalColumn: "document_id"},
		},
		Fields: append(
			[]Field{Col("id", "id"), Rel("document", "document")},
			Same("indication", "initial_approval_date", "initial_approval_url", "description",
				"raw_biomarkers", "raw_cancer_type", "raw_therapeutics", "date_regular_approval",
				"date_accelerated_approval", "regimen_code", "reimbursement_category",
				"reimbursement_date", "reimbursement_details", "icd10")...,
		),
	})

	register(&Table{
		Entity: Contributions,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "type"),
			cols(KindInt, "agent_id"),
			nullable(cols(KindText, "description")),
			nullable(cols(KindDate, "date")),
		),
		Relations: []Relation{
			{Name: "agent", Kind: BelongsTo, Target: Agents, LocalColumn: "agent_id"},
		},
		Fields: []Field{
			Col("id", "id"),
			Col("type", "type"),
			Rel("agent", "agent"),
			Col("description", "description"),
			Col("date", "date"),
		},
	})

	register(&Table{
		Entity: Statements,
		Columns: concat(
			cols(KindInt, "id"),
			cols(KindText, "type", "description", "direction"),
			cols(KindInt, "proposition_id", "strength_id"),
			nullable(cols(KindInt, "indication_id")),
		),
		Relations: []Relation{
			{
				Name: "contributions", Kind: ManyToMany, Target: Contributions,
				Junction: ContributionsStatements, JunctionLocal: "statement_id", JunctionRemote: "contribution_id",
			},
			{
				Name: "reportedIn", Kind: ManyToMany, Target: Documents,
				Junction: DocumentsStatements, JunctionLocal: "statement_id", JunctionRemote: "document_id",
			},
			{Name: "indication", Kind: BelongsTo, Target: Indications, LocalColumn: "indication_id"},
			{Name: "proposition", Kind: BelongsTo, Target: Propositions, LocalColumn: "proposition_id"},
			{Name: "strength", Kind: BelongsTo, Target: Strengths, LocalColumn: "strength_id"},
		},
		Fields: []Field{
			Col("id", "id"),
			Col("type", "type"),
			Col("description", "description"),
			Rel("contributions", "contributions"),
			Rel("reportedIn", "reportedIn"),
			Col("direction", "direction"),
			Rel("indication", "indication"),
			Rel("proposition", "proposition"),
			Rel("strength", "strength"),
		},
	})
}
