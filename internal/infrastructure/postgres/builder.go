package postgres

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// builder accumulates positional arguments and table aliases for one statement.
type builder struct {
	args    []any
	aliases int
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) alias() string {
	a := "t" + strconv.Itoa(b.aliases)
	b.aliases++
	return a
}

func quote(name string) string { return pgx.Identifier{name}.Sanitize() }

func tableOf(m *schema.Model) string { return quote(m.Table) }

func column(alias string, f *schema.Field) string {
	return alias + "." + quote(f.Column)
}

func columnList(alias string, fields []*schema.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = column(alias, f)
	}
	return strings.Join(cols, ", ")
}

// value binds a scalar, casting enums through text.
func (b *builder) value(f *schema.Field, v any) string {
	p := b.bind(normalize(f, v))
	if f.Kind == schema.Enum {
		return p + "::text::" + quote(f.EnumName)
	}
	return p
}

// list binds a slice for = ANY.
func (b *builder) list(f *schema.Field, vs []any) string {
	p := b.bind(normalizeList(f, vs))
	if f.Kind == schema.Enum {
		return p + "::text[]::" + quote(f.EnumName) + "[]"
	}
	return p
}

// normalize converts named and pointer types into the plain Go values pgx encodes.
func normalize(f *schema.Field, v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	switch f.Kind {
	case schema.String, schema.Enum:
		if rv.Kind() == reflect.String {
			return rv.String()
		}
	case schema.Int:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		}
	case schema.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool()
		}
	case schema.DateTime:
		if t, ok := rv.Interface().(time.Time); ok {
			return t
		}
	}
	return rv.Interface()
}

func normalizeList(f *schema.Field, vs []any) any {
	switch f.Kind {
	case schema.String, schema.Enum:
		out := make([]string, 0, len(vs))
		for _, v := range vs {
			if s, ok := normalize(f, v).(string); ok {
				out = append(out, s)
			}
		}
		return out
	case schema.Int:
		out := make([]int64, 0, len(vs))
		for _, v := range vs {
			if n, ok := normalize(f, v).(int64); ok {
				out = append(out, n)
			}
		}
		return out
	case schema.Bool:
		out := make([]bool, 0, len(vs))
		for _, v := range vs {
			if x, ok := normalize(f, v).(bool); ok {
				out = append(out, x)
			}
		}
		return out
	case schema.DateTime:
		out := make([]time.Time, 0, len(vs))
		for _, v := range vs {
			if t, ok := normalize(f, v).(time.Time); ok {
				out = append(out, t)
			}
		}
		return out
	}
	return vs
}

func toSlice(v any) []any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func lower(v any) any {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return v
}

// where renders a filter against rows of m under alias. A nil filter is TRUE.
func (b *builder) where(m *schema.Model, alias string, f query.Filter) (string, error) {
	return b.filter(m, alias, f, false)
}

// having renders a groupBy having, which may aggregate.
func (b *builder) having(m *schema.Model, alias string, f query.Filter) (string, error) {
	return b.filter(m, alias, f, true)
}

func (b *builder) filter(m *schema.Model, alias string, f query.Filter, agg bool) (string, error) {
	switch f := f.(type) {
	case nil:
		return "TRUE", nil
	case query.Cond:
		return b.cond(m, alias, f, agg)
	case *query.Cond:
		if f == nil {
			return "TRUE", nil
		}
		return b.cond(m, alias, *f, agg)
	case query.And:
		return b.join(m, alias, f, " AND ", "TRUE", agg)
	case query.Or:
		return b.join(m, alias, f, " OR ", "FALSE", agg)
	case query.NotFilter:
		inner, err := b.filter(m, alias, f.Filter, agg)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case query.RelationFilter:
		return b.relation(m, alias, f)
	}
	return "", fmt.Errorf("postgres: unsupported filter %T", f)
}

func (b *builder) join(m *schema.Model, alias string, fs []query.Filter, sep, empty string, agg bool) (string, error) {
	if len(fs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(fs))
	for _, sub := range fs {
		s, err := b.filter(m, alias, sub, agg)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+s+")")
	}
	return strings.Join(parts, sep), nil
}

func (b *builder) cond(m *schema.Model, alias string, c query.Cond, agg bool) (string, error) {
	var (
		lhs  string
		one  func(v any) string
		many func(vs []any) string
	)
	if c.Agg != "" {
		if !agg {
			return "", fmt.Errorf("postgres: aggregate condition on %s outside having", c.Field)
		}
		expr, err := aggExpr(m, alias, c.Agg, c.Field)
		if err != nil {
			return "", err
		}
		lhs = expr
		one = func(v any) string { return b.bind(v) }
		many = func(vs []any) string { return b.bind(vs) }
	} else {
		f, ok := m.Field(c.Field)
		if !ok {
			return "", fmt.Errorf("postgres: unknown field %s.%s", m.Name, c.Field)
		}
		lhs = column(alias, f)
		one = func(v any) string { return b.value(f, v) }
		many = func(vs []any) string { return b.list(f, vs) }
	}

	insensitive := c.Mode == query.Insensitive
	cmp := lhs
	if insensitive {
		cmp = "LOWER(" + lhs + ")"
	}
	switch c.Op {
	case query.Equals, "":
		if deref(c.Value) == nil {
			return lhs + " IS NULL", nil
		}
		if insensitive {
			return cmp + " = " + one(lower(c.Value)), nil
		}
		return lhs + " = " + one(c.Value), nil
	case query.NotEquals:
		if deref(c.Value) == nil {
			return lhs + " IS NOT NULL", nil
		}
		if insensitive {
			return cmp + " <> " + one(lower(c.Value)), nil
		}
		return lhs + " <> " + one(c.Value), nil
	case query.In, query.NotIn:
		vs := toSlice(c.Value)
		if len(vs) == 0 {
			if c.Op == query.In {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		if insensitive {
			for i := range vs {
				vs[i] = lower(vs[i])
			}
		}
		if c.Op == query.In {
			return cmp + " = ANY(" + many(vs) + ")", nil
		}
		return cmp + " <> ALL(" + many(vs) + ")", nil
	case query.Lt:
		return lhs + " < " + one(c.Value), nil
	case query.Lte:
		return lhs + " <= " + one(c.Value), nil
	case query.Gt:
		return lhs + " > " + one(c.Value), nil
	case query.Gte:
		return lhs + " >= " + one(c.Value), nil
	case query.Contains, query.StartsWith, query.EndsWith:
		s, _ := c.Value.(string)
		pattern := likeEscaper.Replace(s)
		switch c.Op {
		case query.Contains:
			pattern = "%" + pattern + "%"
		case query.StartsWith:
			pattern += "%"
		case query.EndsWith:
			pattern = "%" + pattern
		}
		op := " LIKE "
		if insensitive {
			op = " ILIKE "
		}
		return lhs + op + b.bind(pattern), nil
	case query.IsNull:
		return lhs + " IS NULL", nil
	case query.IsNotNull:
		return lhs + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("postgres: unknown operator %q", c.Op)
}

// relation renders some/every/none/is/isNot as correlated EXISTS subqueries.
func (b *builder) relation(m *schema.Model, alias string, f query.RelationFilter) (string, error) {
	rel, ok := m.Relation(f.Relation)
	if !ok {
		return "", fmt.Errorf("postgres: unknown relation %s.%s", m.Name, f.Relation)
	}
	target := rel.TargetModel()
	sub := b.alias()
	local, _ := m.Field(rel.LocalField)
	foreign, _ := target.Field(rel.ForeignField)
	link := column(sub, foreign) + " = " + column(alias, local)
	exists := func(cond string) string {
		return "EXISTS (SELECT 1 FROM " + tableOf(target) + " " + sub + " WHERE " + link + " AND " + cond + ")"
	}
	inner := "TRUE"
	if f.Where != nil {
		s, err := b.where(target, sub, f.Where)
		if err != nil {
			return "", err
		}
		inner = "(" + s + ")"
	}
	switch f.Quantifier {
	case query.Some, query.Is:
		return exists(inner), nil
	case query.None, query.IsNot:
		return "NOT " + exists(inner), nil
	case query.Every:
		return "NOT " + exists("NOT COALESCE("+inner+", FALSE)"), nil
	}
	return "", fmt.Errorf("postgres: unknown quantifier %q", f.Quantifier)
}

func aggExpr(m *schema.Model, alias string, agg query.AggFunc, field string) (string, error) {
	if agg == query.AggCount && field == query.AllKey {
		return "COUNT(*)", nil
	}
	f, ok := m.Field(field)
	if !ok {
		return "", fmt.Errorf("postgres: unknown field %s.%s", m.Name, field)
	}
	col := column(alias, f)
	switch agg {
	case query.AggCount:
		return "COUNT(" + col + ")", nil
	case query.AggAvg:
		return "AVG(" + col + ")::float8", nil
	case query.AggSum:
		return "SUM(" + col + ")::int8", nil
	case query.AggMin:
		return "MIN(" + col + ")", nil
	case query.AggMax:
		return "MAX(" + col + ")", nil
	}
	return "", fmt.Errorf("postgres: unknown aggregate %q", agg)
}

// orderTerm is one ORDER BY expression. field is nil for computed terms.
type orderTerm struct {
	expr  string
	desc  bool
	nulls query.NullsOrder
	field *schema.Field
}

func (t orderTerm) String() string {
	s := t.expr + " ASC"
	if t.desc {
		s = t.expr + " DESC"
	}
	switch t.nulls {
	case query.NullsFirst:
		s += " NULLS FIRST"
	case query.NullsLast:
		s += " NULLS LAST"
	}
	return s
}

func (t orderTerm) reversed() orderTerm {
	t.desc = !t.desc
	switch t.nulls {
	case query.NullsFirst:
		t.nulls = query.NullsLast
	case query.NullsLast:
		t.nulls = query.NullsFirst
	}
	return t
}

func orderSQL(terms []orderTerm) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (b *builder) orderTerms(m *schema.Model, alias string, orders []query.OrderBy) ([]orderTerm, error) {
	terms := make([]orderTerm, 0, len(orders)+1)
	for _, o := range orders {
		t := orderTerm{desc: o.Descending(), nulls: o.Nulls}
		switch {
		case o.RelationCount != "":
			rel, ok := m.Relation(o.RelationCount)
			if !ok {
				return nil, fmt.Errorf("postgres: unknown relation %s.%s", m.Name, o.RelationCount)
			}
			target := rel.TargetModel()
			sub := b.alias()
			local, _ := m.Field(rel.LocalField)
			foreign, _ := target.Field(rel.ForeignField)
			t.expr = "(SELECT COUNT(*) FROM " + tableOf(target) + " " + sub + " WHERE " +
				column(sub, foreign) + " = " + column(alias, local) + ")"
		case o.Agg != "":
			expr, err := aggExpr(m, alias, o.Agg, o.Field)
			if err != nil {
				return nil, err
			}
			t.expr = expr
		default:
			f, ok := m.Field(o.Field)
			if !ok {
				return nil, fmt.Errorf("postgres: unknown field %s.%s", m.Name, o.Field)
			}
			t.expr = column(alias, f)
			t.field = f
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// withTiebreak appends the id so paginated orderings are total.
func withTiebreak(m *schema.Model, alias string, terms []orderTerm) []orderTerm {
	id := m.ID()
	for _, t := range terms {
		if t.field == id {
			return terms
		}
	}
	return append(terms, orderTerm{expr: column(alias, id), field: id})
}

// cursorCond keeps rows at or after the cursor row in the given ordering.
func (b *builder) cursorCond(m *schema.Model, alias string, terms []orderTerm, cursor query.Unique) (string, error) {
	values := make([]string, len(terms))
	for i, t := range terms {
		if t.field == nil {
			return "", fmt.Errorf("postgres: cursor pagination needs field orderings")
		}
		sub := b.alias()
		cond, err := b.where(m, sub, cursor.Filter())
		if err != nil {
			return "", err
		}
		values[i] = "(SELECT " + column(sub, t.field) + " FROM " + tableOf(m) + " " + sub + " WHERE " + cond + ")"
	}
	ors := make([]string, 0, len(terms))
	for i, t := range terms {
		ands := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			ands = append(ands, sameAs(terms[j], values[j]))
		}
		cmp := after(t, values[i])
		if i == len(terms)-1 {
			// the cursor row itself is part of the page
			if t.field.Optional {
				cmp = "(" + cmp + " OR " + sameAs(t, values[i]) + ")"
			} else {
				cmp = t.expr + " " + strictOp(t) + "= " + values[i]
			}
		}
		ands = append(ands, cmp)
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")", nil
}

func strictOp(t orderTerm) string {
	if t.desc {
		return "<"
	}
	return ">"
}

// nullsLast reports where NULLs sort for t, following PostgreSQL's default
// of NULLS LAST for ascending and NULLS FIRST for descending order.
func (t orderTerm) nullsLast() bool {
	if t.nulls == "" {
		return !t.desc
	}
	return t.nulls == query.NullsLast
}

func sameAs(t orderTerm, v string) string {
	if !t.field.Optional {
		return t.expr + " = " + v
	}
	return t.expr + " IS NOT DISTINCT FROM " + v
}

// after matches rows sorting strictly after v under t, NULLs included.
func after(t orderTerm, v string) string {
	cmp := t.expr + " " + strictOp(t) + " " + v
	if !t.field.Optional {
		return cmp
	}
	if t.nullsLast() {
		return "(" + cmp + " OR (" + t.expr + " IS NULL AND " + v + " IS NOT NULL))"
	}
	return "(" + cmp + " OR (" + v + " IS NULL AND " + t.expr + " IS NOT NULL))"
}
