package planner

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Filters maps a lower-case filter key to its values in request order.
type Filters map[string][]interface{}

// ParseFilters converts query parameters into Filters. Values that parse as
// integers are kept as int64; everything else stays a string. Keys that do
// not name a known filter are kept and later ignored by CompileFilters.
func ParseFilters(values url.Values) Filters {
	filters := make(Filters, len(values))
	for key, raw := range values {
		k := strings.ToLower(key)
		for _, v := range raw {
			filters[k] = append(filters[k], coerceFilterValue(v))
		}
	}
	return filters
}

func coerceFilterValue(v string) interface{} {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}

// HasAny reports whether any of keys carries at least one value.
func (f Filters) HasAny(keys ...string) bool {
	for _, k := range keys {
		if len(f[k]) > 0 {
			return true
		}
	}
	return false
}

// Keys returns the filter keys in sorted order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Strings returns the values of key rendered as strings.
func (f Filters) Strings(key string) []string {
	values := f[key]
	out := make([]string, len(values))
	for i, v := range values {
		switch typed := v.(type) {
		case string:
			out[i] = typed
		case int64:
			out[i] = strconv.FormatInt(typed, 10)
		}
	}
	return out
}

// CompileFilters builds the WHERE predicate for filters against the tables
// already joined into b. Values of one key are OR'd (IN), a key bound to a
// table joined under several aliases matches if any alias matches, and
// distinct keys are AND'd. Unknown keys and keys whose table is absent from
// the statement contribute nothing. It returns nil when no key applies.
func CompileFilters(b *QueryBuilder, filters Filters) sq.Sqlizer {
	var conditions sq.And
	for _, key := range filters.Keys() {
		ref, ok := schema.FilterColumns[key]
		if !ok {
			continue
		}
		values := filters[key]
		if len(values) == 0 {
			continue
		}
		aliases := b.Aliases(string(ref.Table))
		if len(aliases) == 0 {
			continue
		}

		perAlias := make(sq.Or, 0, len(aliases))
		for _, alias := range aliases {
			perAlias = append(perAlias, matchValues(sqlutil.Qualified(alias, ref.Column), values))
		}
		if len(perAlias) == 1 {
			conditions = append(conditions, perAlias[0])
		} else {
			conditions = append(conditions, perAlias)
		}
	}

	switch len(conditions) {
	case 0:
		return nil
	case 1:
		return conditions[0]
	default:
		return conditions
	}
}

func matchValues(column string, values []interface{}) sq.Sqlizer {
	if len(values) == 1 {
		return sq.Eq{column: values[0]}
	}
	return sq.Eq{column: values}
}
