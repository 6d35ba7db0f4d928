package query

import (
	"slices"

	"github.com/oksasatya/biolink/internal/domain/schema"
)

// Shape is a resolved projection: the scalar fields, relations and relation
// counts a result carries, in declaration order.
type Shape struct {
	Model     *schema.Model
	Fields    []*schema.Field
	Relations []*RelationShape
	Counts    []*CountShape
}

// RelationShape is a relation to load with its nested arguments and shape.
type RelationShape struct {
	Relation *schema.Relation
	Args     RelationArgs
	Shape    *Shape
}

// CountShape is a to-many relation to count, optionally filtered.
type CountShape struct {
	Relation *schema.Relation
	Where    Filter
}

// GlobalOmit lists fields left out of every result per model name, unless a
// query selects them explicitly.
type GlobalOmit map[string][]string

// ResolveShape computes the shape of a query result. Arguments must have
// passed ValidateProjection.
func ResolveShape(m *schema.Model, sel Select, inc Include, omit []string, global GlobalOmit) *Shape {
	s := &Shape{Model: m}
	if sel != nil {
		for _, f := range m.Fields {
			if _, ok := sel[f.Name]; ok {
				s.Fields = append(s.Fields, f)
			}
		}
		s.addRelations(map[string]*RelationArgs(sel), global)
		return s
	}
	for _, f := range m.Fields {
		if slices.Contains(omit, f.Name) || slices.Contains(global[m.Name], f.Name) {
			continue
		}
		s.Fields = append(s.Fields, f)
	}
	s.addRelations(map[string]*RelationArgs(inc), global)
	return s
}

func (s *Shape) addRelations(keys map[string]*RelationArgs, global GlobalOmit) {
	for _, rel := range s.Model.Relations {
		args, ok := keys[rel.Name]
		if !ok {
			continue
		}
		rs := &RelationShape{Relation: rel}
		if args != nil {
			rs.Args = *args
		}
		rs.Shape = ResolveShape(rel.TargetModel(), rs.Args.Select, rs.Args.Include, rs.Args.Omit, global)
		s.Relations = append(s.Relations, rs)
	}
	countArgs, ok := keys[CountKey]
	if !ok {
		return
	}
	for _, rel := range s.Model.ToManyRelations() {
		if countArgs == nil || countArgs.Select == nil {
			s.Counts = append(s.Counts, &CountShape{Relation: rel})
			continue
		}
		sub, ok := countArgs.Select[rel.Name]
		if !ok {
			continue
		}
		cs := &CountShape{Relation: rel}
		if sub != nil {
			cs.Where = sub.Where
		}
		s.Counts = append(s.Counts, cs)
	}
}

// Has reports whether the shape projects the scalar field.
func (s *Shape) Has(field string) bool {
	for _, f := range s.Fields {
		if f.Name == field {
			return true
		}
	}
	return false
}

// Columns lists the fields a query must read to build the shape: the
// projected fields plus the id and the keys relation loading joins on.
func (s *Shape) Columns() []*schema.Field {
	need := map[string]bool{s.Model.ID().Name: true}
	for _, f := range s.Fields {
		need[f.Name] = true
	}
	for _, r := range s.Relations {
		need[r.Relation.LocalField] = true
	}
	var out []*schema.Field
	for _, f := range s.Model.Fields {
		if need[f.Name] {
			out = append(out, f)
		}
	}
	return out
}
