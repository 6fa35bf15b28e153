package schema

// FieldSource says where an output field takes its value from.
type FieldSource int

const (
	FromColumn FieldSource = iota
	FromRelation
	FromConstant
	FromExtensions
	FromComputed
)

// Field is one key of an entity's ordered output layout.
type Field struct {
	Key    string
	Source FieldSource
	// Name is the column, relation or computed-value name, depending on Source.
	Name  string
	Value any
}

// Col emits a column under key.
func Col(key, column string) Field { return Field{Key: key, Source: FromColumn, Name: column} }

// Rel embeds a related entity (or list of entities) under key.
func Rel(key, relation string) Field { return Field{Key: key, Source: FromRelation, Name: relation} }

// Const emits a fixed value under key.
func Const(key string, value any) Field { return Field{Key: key, Source: FromConstant, Value: value} }

// Computed emits a value produced by an entity-specific hook.
func Computed(key, name string) Field { return Field{Key: key, Source: FromComputed, Name: name} }

// Ext emits the flattened extension list under "extensions".
func Ext() Field { return Field{Key: "extensions", Source: FromExtensions} }

// Same emits each column under its own name.
func Same(columns ...string) []Field {
	out := make([]Field, len(columns))
	for i, c := range columns {
		out[i] = Col(c, c)
	}
	return out
}

// Keys returns the output keys of a layout, in order.
func Keys(fields []Field) []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}

// Extension maps one flat value to a {name, value[, description]} entry.
type Extension struct {
	Name string
	// Column is the scalar source. When Relation is set instead, the value is
	// the list of RelationColumn values of the related records.
	Column         string
	Relation       string
	RelationColumn string
	// Description is a fixed description; DescriptionColumn reads it from the row.
	Description       string
	DescriptionColumn string
}

// HasDescription reports whether the entry carries a description key.
func (e Extension) HasDescription() bool {
	return e.Description != "" || e.DescriptionColumn != ""
}

// ExtensionSet is the declarative extension table of one entity.
type ExtensionSet struct {
	Fields []Extension
	// OmitNull drops entries whose value is null instead of emitting null.
	OmitNull bool
}

// Columns returns the scalar columns consumed by the set.
func (s ExtensionSet) Columns() []string {
	var out []string
	for _, e := range s.Fields {
		if e.Column != "" {
			out = append(out, e.Column)
		}
	}
	return out
}

// Lookup returns the extension with the given output name.
func (s ExtensionSet) Lookup(name string) (Extension, bool) {
	for _, e := range s.Fields {
		if e.Name == name {
			return e, true
		}
	}
	return Extension{}, false
}
