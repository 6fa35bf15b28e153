// Package planner composes the parameterized SQL the API runs: the filtered
// root query for each entity (joins chosen by per-entity resolvers, WHERE
// compiled from query-string filters), the batched relationship lookups used
// to load nested records, and the grouped statement breakdowns behind
// proposition summaries.
package planner
