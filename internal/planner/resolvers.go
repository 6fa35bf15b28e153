package planner

import (
	"errors"
	"fmt"
	"sort"

	"moalmanac-api/internal/schema"
)

// ErrUnsupportedRoot indicates a resolver was asked to reach its entity from
// a root it has no join path for. It signals a wiring defect.
var ErrUnsupportedRoot = errors.New("unsupported root entity")

// UnsupportedRootError records which resolver rejected which root.
type UnsupportedRootError struct {
	Resolver schema.Entity
	Root     schema.Entity
}

func (e *UnsupportedRootError) Error() string {
	return fmt.Sprintf("%s resolver: %v: %s", e.Resolver, ErrUnsupportedRoot, e.Root)
}

func (e *UnsupportedRootError) Unwrap() error {
	return ErrUnsupportedRoot
}

// JoinResolver adds the joins needed to filter a root query by one entity.
type JoinResolver interface {
	// Entity is the entity whose columns the resolver makes reachable.
	Entity() schema.Entity
	// Keys lists every filter key the resolver (and the resolvers it calls) reacts to.
	Keys() []string
	// ResolveJoins joins the entity into b, reached from root. It is a no-op
	// when filters carry none of Keys, and is safe to call repeatedly.
	ResolveJoins(b *QueryBuilder, root schema.Entity, filters Filters) error
}

// Aliases used for the diamond paths.
const (
	AliasDocumentsViaStatements      = "documents_via_statements"
	AliasDocumentsViaIndications     = "documents_via_indications"
	AliasOrganizationsViaStatements  = "organizations_via_statements"
	AliasOrganizationsViaIndications = "organizations_via_indications"
	AliasTherapiesDirect             = "therapies_direct"
	AliasTherapiesIndirect           = "therapies_indirect"
)

// joinPath adds the joins that reach an entity from a particular root.
type joinPath func(b *QueryBuilder)

// entityResolver is the single JoinResolver implementation; each entity gets
// an instance with its own keys, join paths and dependent resolvers.
type entityResolver struct {
	entity schema.Entity
	keys   []string
	paths  map[schema.Entity]joinPath
	calls  []schema.Entity
	// anyRoot makes every root acceptable with no joins.
	anyRoot bool
}

func (r *entityResolver) Entity() schema.Entity { return r.entity }

func (r *entityResolver) Keys() []string {
	seen := make(map[string]struct{})
	r.collectKeys(seen)
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *entityResolver) collectKeys(seen map[string]struct{}) {
	for _, k := range r.keys {
		seen[k] = struct{}{}
	}
	for _, dep := range r.calls {
		resolvers[dep].collectKeys(seen)
	}
}

func (r *entityResolver) ResolveJoins(b *QueryBuilder, root schema.Entity, filters Filters) error {
	if !filters.HasAny(r.Keys()...) {
		return nil
	}
	if !r.anyRoot {
		path, ok := r.paths[root]
		if !ok {
			return &UnsupportedRootError{Resolver: r.entity, Root: root}
		}
		if path != nil {
			path(b)
		}
	}
	for _, dep := range r.calls {
		if err := resolvers[dep].ResolveJoins(b, root, filters); err != nil {
			return err
		}
	}
	return nil
}

var resolvers = map[schema.Entity]*entityResolver{}

// ResolverFor returns the join resolver for an entity. Entities with no
// filterable relationships get a resolver that never joins.
func ResolverFor(entity schema.Entity) (JoinResolver, bool) {
	r, ok := resolvers[entity]
	if !ok {
		return nil, false
	}
	return r, true
}

func registerResolver(r *entityResolver) {
	resolvers[r.entity] = r
}

const (
	tStatements    = string(schema.Statements)
	tPropositions  = string(schema.Propositions)
	tBiomarkers    = string(schema.Biomarkers)
	tGenes         = string(schema.Genes)
	tDiseases      = string(schema.Diseases)
	tTherapies     = string(schema.Therapies)
	tTherapyGroups = string(schema.TherapyGroups)
	tContributions = string(schema.Contributions)
	tAgents        = string(schema.Agents)
	tIndications   = string(schema.Indications)
	tDocuments     = string(schema.Documents)
	tOrganizations = string(schema.Organizations)
)

// Hops. Each one joins its prerequisites first, so a path never depends on
// another resolver having run.

func joinPropositionsFromStatements(b *QueryBuilder) {
	b.EnsureJoined(tPropositions, InnerJoin, tPropositions,
		On(tPropositions, "id", tStatements, "proposition_id"))
}

func joinBiomarkersFromPropositions(b *QueryBuilder) {
	b.EnsureJoined(schema.BiomarkersPropositions, InnerJoin, schema.BiomarkersPropositions,
		On(schema.BiomarkersPropositions, "proposition_id", tPropositions, "id"))
	b.EnsureJoined(tBiomarkers, InnerJoin, tBiomarkers,
		On(tBiomarkers, "id", schema.BiomarkersPropositions, "biomarker_id"))
}

func joinGenesFromBiomarkers(b *QueryBuilder) {
	b.EnsureJoined(schema.BiomarkersGenes, InnerJoin, schema.BiomarkersGenes,
		On(schema.BiomarkersGenes, "biomarker_id", tBiomarkers, "id"))
	b.EnsureJoined(tGenes, InnerJoin, tGenes,
		On(tGenes, "id", schema.BiomarkersGenes, "gene_id"))
}

func joinDiseasesFromPropositions(b *QueryBuilder) {
	b.EnsureJoined(tDiseases, InnerJoin, tDiseases,
		On(tDiseases, "id", tPropositions, "condition_qualifier_id"))
}

// joinTherapiesFromPropositions joins both therapy paths as outer joins: a
// proposition names either a therapy or a therapy group, never both.
func joinTherapiesFromPropositions(b *QueryBuilder) {
	b.EnsureJoined(AliasTherapiesDirect, LeftJoin, tTherapies,
		On(AliasTherapiesDirect, "id", tPropositions, "therapy_id"))
	b.EnsureJoined(tTherapyGroups, LeftJoin, tTherapyGroups,
		On(tTherapyGroups, "id", tPropositions, "therapy_group_id"))
	b.EnsureJoined(schema.TherapiesTherapyGroups, LeftJoin, schema.TherapiesTherapyGroups,
		On(schema.TherapiesTherapyGroups, "therapy_group_id", tTherapyGroups, "id"))
	b.EnsureJoined(AliasTherapiesIndirect, LeftJoin, tTherapies,
		On(AliasTherapiesIndirect, "id", schema.TherapiesTherapyGroups, "therapy_id"))
}

func joinContributionsFromStatements(b *QueryBuilder) {
	b.EnsureJoined(schema.ContributionsStatements, InnerJoin, schema.ContributionsStatements,
		On(schema.ContributionsStatements, "statement_id", tStatements, "id"))
	b.EnsureJoined(tContributions, InnerJoin, tContributions,
		On(tContributions, "id", schema.ContributionsStatements, "contribution_id"))
}

func joinAgentsFromContributions(b *QueryBuilder) {
	b.EnsureJoined(tAgents, InnerJoin, tAgents,
		On(tAgents, "id", tContributions, "agent_id"))
}

// joinIndicationsFromStatements is an outer join: most statements have no indication.
func joinIndicationsFromStatements(b *QueryBuilder) {
	b.EnsureJoined(tIndications, LeftJoin, tIndications,
		On(tIndications, "id", tStatements, "indication_id"))
}

func joinDocumentsFromIndications(b *QueryBuilder) {
	b.EnsureJoined(AliasDocumentsViaIndications, LeftJoin, tDocuments,
		On(AliasDocumentsViaIndications, "id", tIndications, "document_id"))
}

func joinDocumentsFromStatements(b *QueryBuilder) {
	b.EnsureJoined(schema.DocumentsStatements, LeftJoin, schema.DocumentsStatements,
		On(schema.DocumentsStatements, "statement_id", tStatements, "id"))
	b.EnsureJoined(AliasDocumentsViaStatements, LeftJoin, tDocuments,
		On(AliasDocumentsViaStatements, "id", schema.DocumentsStatements, "document_id"))
	joinIndicationsFromStatements(b)
	joinDocumentsFromIndications(b)
}

func joinOrganizationsFrom(documentAlias, organizationAlias string) joinPath {
	return func(b *QueryBuilder) {
		b.EnsureJoined(organizationAlias, LeftJoin, tOrganizations,
			On(organizationAlias, "id", documentAlias, "organization_id"))
	}
}

var (
	organizationsViaStatements  = joinOrganizationsFrom(AliasDocumentsViaStatements, AliasOrganizationsViaStatements)
	organizationsViaIndications = joinOrganizationsFrom(AliasDocumentsViaIndications, AliasOrganizationsViaIndications)
)

func chain(paths ...joinPath) joinPath {
	return func(b *QueryBuilder) {
		for _, p := range paths {
			p(b)
		}
	}
}

func init() {
	registerResolver(&entityResolver{
		entity: schema.Agents,
		keys:   []string{"agent"},
		paths: map[schema.Entity]joinPath{
			schema.Agents:        nil,
			schema.Contributions: joinAgentsFromContributions,
			schema.Statements:    chain(joinContributionsFromStatements, joinAgentsFromContributions),
		},
	})

	registerResolver(&entityResolver{
		entity: schema.Contributions,
		keys:   []string{"contribution"},
		paths: map[schema.Entity]joinPath{
			schema.Contributions: nil,
			schema.Statements:    joinContributionsFromStatements,
		},
		calls: []schema.Entity{schema.Agents},
	})

	registerResolver(&entityResolver{
		entity: schema.Genes,
		keys:   []string{"gene"},
		paths: map[schema.Entity]joinPath{
			schema.Genes:        nil,
			schema.Biomarkers:   joinGenesFromBiomarkers,
			schema.Propositions: chain(joinBiomarkersFromPropositions, joinGenesFromBiomarkers),
			schema.Statements:   chain(joinPropositionsFromStatements, joinBiomarkersFromPropositions, joinGenesFromBiomarkers),
		},
	})

	registerResolver(&entityResolver{
		entity: schema.Biomarkers,
		keys:   []string{"biomarker", "biomarker_type"},
		paths: map[schema.Entity]joinPath{
			schema.Biomarkers:   nil,
			schema.Propositions: joinBiomarkersFromPropositions,
			schema.Statements:   chain(joinPropositionsFromStatements, joinBiomarkersFromPropositions),
		},
		calls: []schema.Entity{schema.Genes},
	})

	registerResolver(&entityResolver{
		entity: schema.Diseases,
		keys:   []string{"disease"},
		paths: map[schema.Entity]joinPath{
			schema.Diseases:     nil,
			schema.Propositions: joinDiseasesFromPropositions,
			schema.Statements:   chain(joinPropositionsFromStatements, joinDiseasesFromPropositions),
		},
	})

	registerResolver(&entityResolver{
		entity: schema.Therapies,
		keys:   []string{"therapy", "therapy_type"},
		paths: map[schema.Entity]joinPath{
			schema.Therapies:    nil,
			schema.Propositions: joinTherapiesFromPropositions,
			schema.Statements:   chain(joinPropositionsFromStatements, joinTherapiesFromPropositions),
		},
	})

	registerResolver(&entityResolver{
		entity: schema.Propositions,
		paths: map[schema.Entity]joinPath{
			schema.Propositions: nil,
			schema.Statements:   joinPropositionsFromStatements,
		},
		calls: []schema.Entity{schema.Biomarkers, schema.Diseases, schema.Therapies},
	})

	registerResolver(&entityResolver{
		entity: schema.Organizations,
		keys:   []string{"organization"},
		paths: map[schema.Entity]joinPath{
			schema.Organizations: nil,
			schema.Documents:     joinOrganizationsFrom(tDocuments, tOrganizations),
			schema.Indications:   chain(joinDocumentsFromIndications, organizationsViaIndications),
			schema.Statements:    chain(joinDocumentsFromStatements, organizationsViaStatements, organizationsViaIndications),
		},
	})

	registerResolver(&entityResolver{
		entity: schema.Documents,
		keys:   []string{"document"},
		paths: map[schema.Entity]joinPath{
			schema.Documents:   nil,
			schema.Indications: joinDocumentsFromIndications,
			schema.Statements:  joinDocumentsFromStatements,
		},
		calls: []schema.Entity{schema.Organizations},
	})

	registerResolver(&entityResolver{
		entity: schema.Indications,
		keys:   []string{"indication"},
		paths: map[schema.Entity]joinPath{
			schema.Indications: nil,
			schema.Statements:  joinIndicationsFromStatements,
		},
		calls: []schema.Entity{schema.Documents},
	})

	// No filter key binds to these entities.
	for _, e := range []schema.Entity{
		schema.About, schema.Codings, schema.Mappings, schema.Strengths,
		schema.TherapyGroups, schema.TherapyStrategies,
	} {
		registerResolver(&entityResolver{entity: e, anyRoot: true})
	}

	registerResolver(&entityResolver{
		entity: schema.Statements,
		paths:  map[schema.Entity]joinPath{schema.Statements: nil},
		calls: []schema.Entity{
			schema.Contributions, schema.Documents, schema.Indications,
			schema.Propositions, schema.Strengths,
		},
	})
}
