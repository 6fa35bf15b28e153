package serialize

import (
	"fmt"

	"moalmanac-api/internal/schema"
)

// sourceKey is the flat record key an extension reads its value from.
func sourceKey(ext schema.Extension) string {
	if ext.Column != "" {
		return ext.Column
	}
	return ext.Name
}

// Flatten renders the extension entries of set from a flat record. Scalar
// entries read record[Column]; relation entries read record[Name], which the
// caller fills with the related values. Descriptions are fixed or read from
// record[DescriptionColumn].
func Flatten(set schema.ExtensionSet, record map[string]any) []*OrderedMap {
	out := make([]*OrderedMap, 0, len(set.Fields))
	for _, ext := range set.Fields {
		value := record[sourceKey(ext)]
		if value == nil && set.OmitNull {
			continue
		}
		entry := NewOrderedMap()
		entry.Set("name", ext.Name)
		entry.Set("value", value)
		if ext.HasDescription() {
			if ext.Description != "" {
				entry.Set("description", ext.Description)
			} else {
				entry.Set("description", record[ext.DescriptionColumn])
			}
		}
		out = append(out, entry)
	}
	return out
}

// Unflatten is the inverse of Flatten. Entries dropped by OmitNull come back
// absent rather than null.
func Unflatten(set schema.ExtensionSet, entries []*OrderedMap) (map[string]any, error) {
	record := make(map[string]any, len(entries))
	for _, entry := range entries {
		raw, _ := entry.Get("name")
		name, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("extension entry without a name")
		}
		ext, ok := set.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown extension %q", name)
		}
		value, _ := entry.Get("value")
		record[sourceKey(ext)] = value
		if ext.DescriptionColumn != "" {
			description, _ := entry.Get("description")
			record[ext.DescriptionColumn] = description
		}
	}
	return record, nil
}
