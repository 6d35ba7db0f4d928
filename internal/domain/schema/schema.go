// Package schema describes the eight persisted models of a profile page:
// their scalar fields, unique keys and relations. Every other layer
// (argument validation, SQL building, projection) reads these descriptors
// instead of hard-coding column names.
package schema

import (
	"fmt"
	"sort"

	"github.com/go-openapi/inflect"
)

// Kind is the scalar type of a field.
type Kind int

const (
	String Kind = iota
	Int
	Bool
	DateTime
	Enum
)

func (k Kind) String() string {
	switch k {
	case String:
		return "String"
	case Int:
		return "Int"
	case Bool:
		return "Boolean"
	case DateTime:
		return "DateTime"
	case Enum:
		return "Enum"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is a scalar column of a model.
type Field struct {
	Name     string // API name, e.g. userName
	Column   string // SQL column, e.g. user_name
	Kind     Kind
	Optional bool

	IsID      bool
	IsUnique  bool
	UpdatedAt bool

	// HasDefault marks fields the database fills when they are absent from an insert.
	HasDefault bool
	// Generate produces a client-side default (ids).
	Generate func() any

	// EnumName and EnumValues are set for Enum fields.
	EnumName   string
	EnumValues []string

	// Rule is a validator/v10 rule applied by the validation middleware.
	Rule string
}

// Required reports whether a create must supply the field.
func (f *Field) Required() bool {
	return !f.Optional && !f.HasDefault && f.Generate == nil && !f.UpdatedAt
}

// Comparable reports whether lt/gt and min/max make sense for the field.
func (f *Field) Comparable() bool {
	return f.Kind == Int || f.Kind == String || f.Kind == DateTime || f.Kind == Enum
}

// Cardinality of a relation, seen from the model that declares it.
type Cardinality int

const (
	ToOne Cardinality = iota
	ToMany
)

// Relation links a model to another model. The join condition is
// target.ForeignField = owner.LocalField.
type Relation struct {
	Name         string // API name, e.g. links
	GoField      string // struct field holding loaded rows, e.g. Links
	Target       string // target model name
	Cardinality  Cardinality
	LocalField   string
	ForeignField string
	// Required marks to-one relations backed by a non-null foreign key on the owner.
	Required bool
}

// Model is the descriptor of one table.
type Model struct {
	Name      string
	Table     string
	Fields    []*Field
	Relations []*Relation

	fields    map[string]*Field
	relations map[string]*Relation
}

// Field returns the scalar field with the given API name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// Relation returns the relation with the given API name.
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// ID returns the primary key field.
func (m *Model) ID() *Field {
	for _, f := range m.Fields {
		if f.IsID {
			return f
		}
	}
	return nil
}

// UniqueFields returns the fields usable in a unique where, id first.
func (m *Model) UniqueFields() []*Field {
	var out []*Field
	for _, f := range m.Fields {
		if f.IsID || f.IsUnique {
			out = append(out, f)
		}
	}
	return out
}

// UpdatedAtField returns the field stamped on every write, if any.
func (m *Model) UpdatedAtField() *Field {
	for _, f := range m.Fields {
		if f.UpdatedAt {
			return f
		}
	}
	return nil
}

// OwnerField returns the foreign key pointing at User, if the model has one.
func (m *Model) OwnerField() *Field {
	f, _ := m.Field("userId")
	return f
}

// FieldNames lists scalar API names in declaration order.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// ToManyRelations lists relations that can be counted.
func (m *Model) ToManyRelations() []*Relation {
	var out []*Relation
	for _, r := range m.Relations {
		if r.Cardinality == ToMany {
			out = append(out, r)
		}
	}
	return out
}

// TargetModel resolves the model a relation points at.
func (r *Relation) TargetModel() *Model {
	return registry[r.Target]
}

var registry = map[string]*Model{}

func register(m *Model) *Model {
	m.fields = make(map[string]*Field, len(m.Fields))
	for _, f := range m.Fields {
		if f.Column == "" {
			f.Column = inflect.Underscore(f.Name)
		}
		m.fields[f.Name] = f
	}
	m.relations = make(map[string]*Relation, len(m.Relations))
	for _, r := range m.Relations {
		if r.GoField == "" {
			r.GoField = inflect.Camelize(r.Name)
		}
		m.relations[r.Name] = r
	}
	registry[m.Name] = m
	return m
}

// Lookup returns the model with the given name.
func Lookup(name string) (*Model, bool) {
	m, ok := registry[name]
	return m, ok
}

// Models returns every registered model sorted by name.
func Models() []*Model {
	out := make([]*Model, 0, len(registry))
	for _, m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
