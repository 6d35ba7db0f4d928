// Package query defines the arguments accepted by the data client: filters,
// orderings, projections, write payloads and aggregations. It also validates
// those arguments against the model descriptors and narrows loaded records to
// the requested shape.
package query

import "encoding/json"

// Filter is a where condition. Implementations are Cond, And, Or, NotFilter
// and RelationFilter.
type Filter interface {
	isFilter()
}

// Op is a scalar comparison operator.
type Op string

const (
	Equals     Op = "equals"
	NotEquals  Op = "not"
	In         Op = "in"
	NotIn      Op = "notIn"
	Lt         Op = "lt"
	Lte        Op = "lte"
	Gt         Op = "gt"
	Gte        Op = "gte"
	Contains   Op = "contains"
	StartsWith Op = "startsWith"
	EndsWith   Op = "endsWith"
	IsNull     Op = "isNull"
	IsNotNull  Op = "isNotNull"
)

// Ops lists every supported operator.
var Ops = []Op{Equals, NotEquals, In, NotIn, Lt, Lte, Gt, Gte, Contains, StartsWith, EndsWith, IsNull, IsNotNull}

// Mode selects string comparison semantics.
type Mode string

const (
	Default     Mode = ""
	Insensitive Mode = "insensitive"
)

// AggFunc names an aggregate. It is used by groupBy having and orderBy.
type AggFunc string

const (
	AggCount AggFunc = "_count"
	AggAvg   AggFunc = "_avg"
	AggSum   AggFunc = "_sum"
	AggMin   AggFunc = "_min"
	AggMax   AggFunc = "_max"
)

// Cond compares one scalar field. Agg is only valid inside a groupBy having.
type Cond struct {
	Field string  `json:"field"`
	Op    Op      `json:"op"`
	Value any     `json:"value,omitempty"`
	Mode  Mode    `json:"mode,omitempty"`
	Agg   AggFunc `json:"agg,omitempty"`
}

// And matches when every filter matches. An empty And matches everything.
type And []Filter

// Or matches when at least one filter matches. An empty Or matches nothing.
type Or []Filter

// NotFilter negates its inner filter.
type NotFilter struct {
	Filter Filter
}

// Quantifier applies a nested filter to related rows.
type Quantifier string

const (
	Some  Quantifier = "some"
	Every Quantifier = "every"
	None  Quantifier = "none"
	Is    Quantifier = "is"
	IsNot Quantifier = "isNot"
)

// RelationFilter filters on related rows. A nil Where with Is means
// "relation exists"; with IsNot it means "relation is absent".
type RelationFilter struct {
	Relation   string
	Quantifier Quantifier
	Where      Filter
}

func (Cond) isFilter()           {}
func (And) isFilter()            {}
func (Or) isFilter()             {}
func (NotFilter) isFilter()      {}
func (RelationFilter) isFilter() {}

// Where is shorthand for And.
func Where(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return And(filters)
}

// Not negates the conjunction of filters.
func Not(filters ...Filter) Filter {
	return NotFilter{Filter: Where(filters...)}
}

// AnyOf is shorthand for Or.
func AnyOf(filters ...Filter) Filter {
	return Or(filters)
}

// Eq builds an equals condition on a field by API name.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: Equals, Value: value}
}

// MarshalJSON gives filters a stable encoding so they can be part of cache keys.
func (a And) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Filter{"AND": a})
}

func (o Or) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Filter{"OR": o})
}

func (n NotFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Filter{"NOT": n.Filter})
}

func (r RelationFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[Quantifier]Filter{r.Relation: {r.Quantifier: r.Where}})
}
