package query

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

type checker struct {
	model  *schema.Model
	action string
}

func (c checker) fail(field, format string, args ...any) error {
	return &dberr.ValidationError{
		Model:  c.model.Name,
		Action: c.action,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (c checker) on(m *schema.Model) checker {
	return checker{model: m, action: c.action}
}

func (c checker) field(name string) (*schema.Field, error) {
	f, ok := c.model.Field(name)
	if !ok {
		return nil, c.fail(name, "unknown field on %s", c.model.Name)
	}
	return f, nil
}

func (c checker) filter(f Filter, having map[string]bool) error {
	switch f := f.(type) {
	case nil:
		return nil
	case Cond:
		return c.cond(f, having)
	case *Cond:
		if f == nil {
			return nil
		}
		return c.cond(*f, having)
	case And:
		for _, sub := range f {
			if err := c.filter(sub, having); err != nil {
				return err
			}
		}
	case Or:
		for _, sub := range f {
			if err := c.filter(sub, having); err != nil {
				return err
			}
		}
	case NotFilter:
		return c.filter(f.Filter, having)
	case RelationFilter:
		if having != nil {
			return c.fail(f.Relation, "relation filters are not allowed in having")
		}
		rel, ok := c.model.Relation(f.Relation)
		if !ok {
			return c.fail(f.Relation, "unknown relation on %s", c.model.Name)
		}
		switch f.Quantifier {
		case Some, Every, None:
			if rel.Cardinality != schema.ToMany {
				return c.fail(f.Relation, "%s is only valid on to-many relations", f.Quantifier)
			}
		case Is, IsNot:
			if rel.Cardinality != schema.ToOne {
				return c.fail(f.Relation, "%s is only valid on to-one relations", f.Quantifier)
			}
		default:
			return c.fail(f.Relation, "unknown relation quantifier %q", f.Quantifier)
		}
		return c.on(rel.TargetModel()).filter(f.Where, nil)
	default:
		return c.fail("", "unsupported filter %T", f)
	}
	return nil
}

func (c checker) cond(cd Cond, having map[string]bool) error {
	if cd.Agg != "" {
		if having == nil {
			return c.fail(cd.Field, "aggregate conditions are only allowed in having")
		}
		if err := c.aggField(cd.Agg, cd.Field); err != nil {
			return err
		}
		if !isNumber(cd.Value) && cd.Agg != AggMin && cd.Agg != AggMax {
			return c.fail(cd.Field, "%s condition needs a number", cd.Agg)
		}
		return nil
	}
	f, err := c.field(cd.Field)
	if err != nil {
		return err
	}
	if having != nil && !having[cd.Field] {
		return c.fail(cd.Field, "having on a scalar field requires it in by")
	}
	if cd.Mode == Insensitive && f.Kind != schema.String {
		return c.fail(cd.Field, "insensitive mode needs a String field, got %s", f.Kind)
	}
	switch cd.Op {
	case Equals, NotEquals:
		return c.value(f, cd.Value)
	case In, NotIn:
		rv := reflect.ValueOf(cd.Value)
		if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return c.fail(cd.Field, "%s needs a list value", cd.Op)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := c.value(f, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case Lt, Lte, Gt, Gte:
		if !f.Comparable() {
			return c.fail(cd.Field, "%s is not defined for %s fields", cd.Op, f.Kind)
		}
		if cd.Value == nil {
			return c.fail(cd.Field, "%s needs a value", cd.Op)
		}
		return c.value(f, cd.Value)
	case Contains, StartsWith, EndsWith:
		if f.Kind != schema.String {
			return c.fail(cd.Field, "%s needs a String field, got %s", cd.Op, f.Kind)
		}
		if _, ok := cd.Value.(string); !ok {
			return c.fail(cd.Field, "%s needs a string value", cd.Op)
		}
	case IsNull, IsNotNull:
		if !f.Optional {
			return c.fail(cd.Field, "%s is only valid on optional fields", cd.Op)
		}
	default:
		return c.fail(cd.Field, "unknown operator %q", cd.Op)
	}
	return nil
}

// value checks that v fits the scalar type of f.
func (c checker) value(f *schema.Field, v any) error {
	if v == nil {
		if !f.Optional {
			return c.fail(f.Name, "must not be null")
		}
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			if !f.Optional {
				return c.fail(f.Name, "must not be null")
			}
			return nil
		}
		rv = rv.Elem()
	}
	switch f.Kind {
	case schema.String:
		if rv.Kind() != reflect.String {
			return c.fail(f.Name, "expected String, got %T", v)
		}
	case schema.Enum:
		if rv.Kind() != reflect.String {
			return c.fail(f.Name, "expected %s, got %T", f.EnumName, v)
		}
		if !slices.Contains(f.EnumValues, rv.String()) {
			return c.fail(f.Name, "%q is not a valid %s", rv.String(), f.EnumName)
		}
	case schema.Int:
		if !isInteger(rv) {
			return c.fail(f.Name, "expected Int, got %T", v)
		}
	case schema.Bool:
		if rv.Kind() != reflect.Bool {
			return c.fail(f.Name, "expected Boolean, got %T", v)
		}
	case schema.DateTime:
		if _, ok := rv.Interface().(time.Time); !ok {
			return c.fail(f.Name, "expected DateTime, got %T", v)
		}
	}
	return nil
}

func isInteger(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumber(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	return isInteger(rv) || rv.Kind() == reflect.Float32 || rv.Kind() == reflect.Float64
}

func (c checker) unique(u Unique) error {
	if len(u) == 0 {
		return c.fail("where", "a unique where needs at least one of %v", uniqueNames(c.model))
	}
	hasUnique := false
	for _, k := range u.Keys() {
		f, err := c.field(k)
		if err != nil {
			return err
		}
		if err := c.value(f, u[k]); err != nil {
			return err
		}
		if u[k] == nil {
			return c.fail(k, "unique where values must not be null")
		}
		if f.IsID || f.IsUnique {
			hasUnique = true
		}
	}
	if !hasUnique {
		return c.fail("where", "a unique where needs at least one of %v", uniqueNames(c.model))
	}
	return nil
}

func uniqueNames(m *schema.Model) []string {
	var names []string
	for _, f := range m.UniqueFields() {
		names = append(names, f.Name)
	}
	return names
}

func (c checker) orderBy(orders []OrderBy) error {
	for _, o := range orders {
		if o.Order != "" && o.Order != Asc && o.Order != Desc {
			return c.fail(o.Field, "unknown sort order %q", o.Order)
		}
		if o.Nulls != "" && o.Nulls != NullsFirst && o.Nulls != NullsLast {
			return c.fail(o.Field, "unknown nulls order %q", o.Nulls)
		}
		if o.Agg != "" {
			return c.fail(o.Field, "aggregate ordering is only valid in groupBy")
		}
		if o.RelationCount != "" {
			rel, ok := c.model.Relation(o.RelationCount)
			if !ok || rel.Cardinality != schema.ToMany {
				return c.fail(o.RelationCount, "relation count ordering needs a to-many relation")
			}
			continue
		}
		f, err := c.field(o.Field)
		if err != nil {
			return err
		}
		if o.Nulls != "" && !f.Optional {
			return c.fail(o.Field, "nulls ordering is only valid on optional fields")
		}
	}
	return nil
}

func (c checker) fieldList(what string, names []string) error {
	for _, n := range names {
		if _, err := c.field(n); err != nil {
			return c.fail(n, "unknown %s field on %s", what, c.model.Name)
		}
	}
	return nil
}

func (c checker) window(cursor Unique, skip int) error {
	if skip < 0 {
		return c.fail("skip", "must not be negative")
	}
	if cursor != nil {
		return c.unique(cursor)
	}
	return nil
}

func (c checker) projection(sel Select, inc Include, omit []string) error {
	if sel != nil && inc != nil {
		return c.fail("select", "select and include cannot be used together")
	}
	if sel != nil && len(omit) > 0 {
		return c.fail("select", "select and omit cannot be used together")
	}
	if sel != nil && len(sel) == 0 {
		return c.fail("select", "at least one key must be selected")
	}
	for _, name := range omit {
		if _, err := c.field(name); err != nil {
			return err
		}
	}
	for name, args := range sel {
		if _, ok := c.model.Field(name); ok {
			if args != nil {
				return c.fail(name, "scalar fields take no nested arguments")
			}
			continue
		}
		if err := c.relationKey(name, args); err != nil {
			return err
		}
	}
	for name, args := range inc {
		if _, ok := c.model.Field(name); ok {
			return c.fail(name, "scalar fields cannot be included, use select")
		}
		if err := c.relationKey(name, args); err != nil {
			return err
		}
	}
	return nil
}

func (c checker) relationKey(name string, args *RelationArgs) error {
	if name == CountKey {
		return c.count(args)
	}
	rel, ok := c.model.Relation(name)
	if !ok {
		return c.fail(name, "unknown relation on %s", c.model.Name)
	}
	if args == nil {
		return nil
	}
	target := c.on(rel.TargetModel())
	if rel.Cardinality == schema.ToOne {
		if args.Where != nil || args.OrderBy != nil || args.Cursor != nil || args.Take != nil || args.Skip != 0 || args.Distinct != nil {
			return c.fail(name, "to-one relations only accept select, include and omit")
		}
	} else {
		if err := target.filter(args.Where, nil); err != nil {
			return err
		}
		if err := target.orderBy(args.OrderBy); err != nil {
			return err
		}
		if err := target.window(args.Cursor, args.Skip); err != nil {
			return err
		}
		if err := target.fieldList("distinct", args.Distinct); err != nil {
			return err
		}
	}
	return target.projection(args.Select, args.Include, args.Omit)
}

func (c checker) count(args *RelationArgs) error {
	if len(c.model.ToManyRelations()) == 0 {
		return c.fail(CountKey, "%s has no to-many relations to count", c.model.Name)
	}
	if args == nil {
		return nil
	}
	if args.Include != nil || args.Omit != nil || args.Where != nil {
		return c.fail(CountKey, "only select is allowed")
	}
	for name, sub := range args.Select {
		rel, ok := c.model.Relation(name)
		if !ok || rel.Cardinality != schema.ToMany {
			return c.fail(name, "only to-many relations can be counted")
		}
		if sub != nil {
			if sub.Select != nil || sub.Include != nil || sub.OrderBy != nil || sub.Take != nil || sub.Skip != 0 {
				return c.fail(name, "relation counts only accept where")
			}
			if err := c.on(rel.TargetModel()).filter(sub.Where, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c checker) data(d Data, create bool, implied string) error {
	if len(d) == 0 && !create {
		return c.fail("data", "must not be empty")
	}
	for _, k := range d.Keys() {
		v := d[k]
		if f, ok := c.model.Field(k); ok {
			if op, isOp := asNumberOp(v); isOp {
				if create {
					return c.fail(k, "number operations are only allowed on update")
				}
				if f.Kind != schema.Int {
					return c.fail(k, "number operations need an Int field")
				}
				if op.Kind == OpDivide && op.Value == 0 {
					return c.fail(k, "division by zero")
				}
				continue
			}
			if err := c.value(f, v); err != nil {
				return err
			}
			continue
		}
		rel, ok := c.model.Relation(k)
		if !ok {
			return c.fail(k, "unknown field on %s", c.model.Name)
		}
		n, ok := asNested(v)
		if !ok {
			return c.fail(k, "relation writes need a nested create or connect")
		}
		if err := c.nested(rel, n, create); err != nil {
			return err
		}
	}
	if !create {
		return nil
	}
	for _, f := range c.model.Fields {
		if !f.Required() || f.Name == implied {
			continue
		}
		if _, ok := d[f.Name]; ok {
			continue
		}
		if c.impliedByRelation(d, f.Name) {
			continue
		}
		return c.fail(f.Name, "is required")
	}
	return nil
}

func (c checker) impliedByRelation(d Data, field string) bool {
	for _, rel := range c.model.Relations {
		if rel.LocalField != field || rel.Cardinality != schema.ToOne {
			continue
		}
		if _, ok := d[rel.Name]; ok {
			return true
		}
	}
	return false
}

func (c checker) nested(rel *schema.Relation, n *Nested, create bool) error {
	total := len(n.Create) + len(n.Connect)
	if total == 0 {
		return c.fail(rel.Name, "nested write needs create or connect")
	}
	belongsTo := rel.ForeignField == rel.TargetModel().ID().Name
	if rel.Cardinality == schema.ToOne && total > 1 {
		return c.fail(rel.Name, "to-one relations take exactly one nested record")
	}
	if belongsTo && !create {
		return c.fail(rel.Name, "changing the owner of a record is not supported")
	}
	target := c.on(rel.TargetModel())
	implied := ""
	if !belongsTo {
		implied = rel.ForeignField
	}
	for _, row := range n.Create {
		if _, ok := row[implied]; ok && implied != "" {
			return c.fail(rel.Name, "%s is set by the nested write", implied)
		}
		if err := target.data(row, true, implied); err != nil {
			return err
		}
	}
	for _, u := range n.Connect {
		if err := target.unique(u); err != nil {
			return err
		}
	}
	return nil
}

func asNumberOp(v any) (NumberOp, bool) {
	switch op := v.(type) {
	case NumberOp:
		return op, true
	case *NumberOp:
		if op != nil {
			return *op, true
		}
	}
	return NumberOp{}, false
}

func asNested(v any) (*Nested, bool) {
	switch n := v.(type) {
	case *Nested:
		return n, n != nil
	case Nested:
		return &n, true
	}
	return nil, false
}

// AsNumberOp reports whether a data value is an atomic number operation.
func AsNumberOp(v any) (NumberOp, bool) { return asNumberOp(v) }

// AsNested reports whether a data value is a nested relation write.
func AsNested(v any) (*Nested, bool) { return asNested(v) }

func (c checker) aggField(agg AggFunc, name string) error {
	if agg == AggCount && name == AllKey {
		return nil
	}
	f, err := c.field(name)
	if err != nil {
		return err
	}
	switch agg {
	case AggCount:
	case AggAvg, AggSum:
		if f.Kind != schema.Int {
			return c.fail(name, "%s needs an Int field, got %s", agg, f.Kind)
		}
	case AggMin, AggMax:
		if !f.Comparable() {
			return c.fail(name, "%s is not defined for %s fields", agg, f.Kind)
		}
	default:
		return c.fail(name, "unknown aggregate %q", agg)
	}
	return nil
}

func (c checker) aggregates(count, avg, sum, min, max []string) error {
	groups := []struct {
		agg   AggFunc
		names []string
	}{{AggCount, count}, {AggAvg, avg}, {AggSum, sum}, {AggMin, min}, {AggMax, max}}
	for _, g := range groups {
		for _, n := range g.names {
			if err := c.aggField(g.agg, n); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateFilter checks a where filter against m.
func ValidateFilter(m *schema.Model, action string, f Filter) error {
	return checker{m, action}.filter(f, nil)
}

// ValidateUnique checks that u names a unique field of m.
func ValidateUnique(m *schema.Model, action string, u Unique) error {
	return checker{m, action}.unique(u)
}

// ValidateProjection checks select, include and omit against m.
func ValidateProjection(m *schema.Model, action string, sel Select, inc Include, omit []string) error {
	return checker{m, action}.projection(sel, inc, omit)
}

// ValidateData checks a write payload. Creates must carry every required
// field unless a to-one relation write supplies it.
func ValidateData(m *schema.Model, action string, d Data, create bool) error {
	return checker{m, action}.data(d, create, "")
}

func ValidateFindUnique(m *schema.Model, action string, a FindUniqueArgs) error {
	c := checker{m, action}
	if err := c.unique(a.Where); err != nil {
		return err
	}
	return c.projection(a.Select, a.Include, a.Omit)
}

func ValidateFindMany(m *schema.Model, action string, a FindManyArgs) error {
	c := checker{m, action}
	if err := c.filter(a.Where, nil); err != nil {
		return err
	}
	if err := c.orderBy(a.OrderBy); err != nil {
		return err
	}
	if err := c.window(a.Cursor, a.Skip); err != nil {
		return err
	}
	if err := c.fieldList("distinct", a.Distinct); err != nil {
		return err
	}
	return c.projection(a.Select, a.Include, a.Omit)
}

func ValidateCount(m *schema.Model, action string, a CountArgs) error {
	c := checker{m, action}
	if err := c.filter(a.Where, nil); err != nil {
		return err
	}
	if err := c.orderBy(a.OrderBy); err != nil {
		return err
	}
	return c.window(a.Cursor, a.Skip)
}

func ValidateAggregate(m *schema.Model, action string, a AggregateArgs) error {
	if err := ValidateCount(m, action, CountArgs{Where: a.Where, OrderBy: a.OrderBy, Cursor: a.Cursor, Take: a.Take, Skip: a.Skip}); err != nil {
		return err
	}
	return checker{m, action}.aggregates(a.Count, a.Avg, a.Sum, a.Min, a.Max)
}

func ValidateGroupBy(m *schema.Model, action string, a GroupByArgs) error {
	c := checker{m, action}
	if len(a.By) == 0 {
		return c.fail("by", "at least one field is required")
	}
	by := make(map[string]bool, len(a.By))
	for _, name := range a.By {
		if _, err := c.field(name); err != nil {
			return err
		}
		by[name] = true
	}
	if err := c.filter(a.Where, nil); err != nil {
		return err
	}
	if err := c.filter(a.Having, by); err != nil {
		return err
	}
	for _, o := range a.OrderBy {
		if o.Order != "" && o.Order != Asc && o.Order != Desc {
			return c.fail(o.Field, "unknown sort order %q", o.Order)
		}
		if o.RelationCount != "" {
			return c.fail(o.RelationCount, "relation count ordering is not valid in groupBy")
		}
		if o.Agg != "" {
			if err := c.aggField(o.Agg, o.Field); err != nil {
				return err
			}
			continue
		}
		if !by[o.Field] {
			return c.fail(o.Field, "every orderBy field must be listed in by")
		}
	}
	if (a.Take != nil || a.Skip != 0) && len(a.OrderBy) == 0 {
		return c.fail("orderBy", "take and skip require orderBy")
	}
	if a.Skip < 0 {
		return c.fail("skip", "must not be negative")
	}
	return c.aggregates(a.Count, a.Avg, a.Sum, a.Min, a.Max)
}
