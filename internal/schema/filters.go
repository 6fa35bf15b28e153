package schema

import "sort"

// ColumnRef points at a column of an entity table.
type ColumnRef struct {
	Table  Entity
	Column string
}

// FilterColumns binds each query-string filter key to the column it matches.
// Keys are lower-case; unknown keys are ignored by callers.
var FilterColumns = map[string]ColumnRef{
	"agent":          {Agents, "name"},
	"biomarker":      {Biomarkers, "name"},
	"biomarker_type": {Biomarkers, "biomarker_type"},
	"contribution":   {Contributions, "id"},
	"disease":        {Diseases, "name"},
	"document":       {Documents, "id"},
	"gene":           {Genes, "name"},
	"indication":     {Indications, "id"},
	"organization":   {Organizations, "name"},
	"therapy":        {Therapies, "name"},
	"therapy_type":   {Therapies, "therapy_type"},
}

// FilterKeys returns the known filter keys, sorted.
func FilterKeys() []string {
	keys := make([]string, 0, len(FilterColumns))
	for k := range FilterColumns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
