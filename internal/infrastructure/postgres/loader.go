package postgres

import (
	"context"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// loadRelations loads the relations and relation counts of shape s for rows,
// a slice of entity structs. Related rows are fetched with one query per
// relation using = ANY over the parent keys.
func (c *Client) loadRelations(ctx context.Context, s *query.Shape, rows reflect.Value) error {
	if rows.Len() == 0 || (len(s.Relations) == 0 && len(s.Counts) == 0) {
		return nil
	}
	b := bindings[s.Model.Name]
	children := make([]reflect.Value, len(s.Relations))
	var counts map[string]map[string]int64

	tasks := make([]func(ctx context.Context) error, 0, len(s.Relations)+1)
	for i, rs := range s.Relations {
		keys := parentKeys(b, rows, rs.Relation.LocalField)
		tasks = append(tasks, func(ctx context.Context) error {
			v, err := c.fetchRelation(ctx, rs, keys)
			children[i] = v
			return err
		})
	}
	if len(s.Counts) > 0 {
		keys := parentKeys(b, rows, s.Model.ID().Name)
		tasks = append(tasks, func(ctx context.Context) error {
			var err error
			counts, err = c.fetchCounts(ctx, s.Counts, keys)
			return err
		})
	}
	if err := c.parallel(ctx, tasks...); err != nil {
		return err
	}

	for i, rs := range s.Relations {
		attach(b, rows, rs, children[i])
	}
	if counts != nil {
		attachCounts(b, rows, s.Counts, counts)
	}
	return nil
}

func parentKeys(b *binding, rows reflect.Value, field string) []string {
	seen := map[string]bool{}
	keys := make([]string, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		k := keyOf(b.field(rows.Index(i), field))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func (c *Client) fetchRelation(ctx context.Context, rs *query.RelationShape, keys []string) (reflect.Value, error) {
	rel := rs.Relation
	target := rel.TargetModel()
	tb := bindings[target.Name]
	foreign, _ := target.Field(rel.ForeignField)
	args := rs.Args

	cols := rs.Shape.Columns()
	if !slices.Contains(cols, foreign) {
		cols = append(cols, foreign)
	}

	b := &builder{}
	alias := b.alias()
	where := column(alias, foreign) + " = ANY(" + b.bind(keys) + ")"
	if args.Where != nil {
		w, err := b.where(target, alias, args.Where)
		if err != nil {
			return reflect.Value{}, err
		}
		where += " AND (" + w + ")"
	}
	terms, err := b.orderTerms(target, alias, args.OrderBy)
	if err != nil {
		return reflect.Value{}, err
	}
	paginated := args.Cursor != nil || args.Take != nil || args.Skip > 0
	if paginated {
		terms = withTiebreak(target, alias, terms)
	}
	reverse := args.Take != nil && *args.Take < 0
	if reverse {
		for i := range terms {
			terms[i] = terms[i].reversed()
		}
	}
	if args.Cursor != nil {
		cc, err := b.cursorCond(target, alias, terms, args.Cursor)
		if err != nil {
			return reflect.Value{}, err
		}
		where += " AND " + cc
	}

	var sql string
	windowed := rel.Cardinality == schema.ToMany && (args.Take != nil || args.Skip > 0) && len(args.Distinct) == 0
	if windowed {
		rn := quote("__rn")
		inner := "SELECT " + alias + ".*, ROW_NUMBER() OVER (PARTITION BY " + column(alias, foreign) +
			orderSQL(terms) + ") AS " + rn + " FROM " + tableOf(target) + " " + alias + " WHERE " + where
		sql = "SELECT " + columnList(alias, cols) + " FROM (" + inner + ") " + alias +
			" WHERE " + alias + "." + rn + " > " + strconv.Itoa(args.Skip)
		if args.Take != nil {
			sql += " AND " + alias + "." + rn + " <= " + strconv.Itoa(args.Skip+abs(*args.Take))
		}
		sql += orderSQL(terms)
	} else {
		sql = "SELECT " + columnList(alias, cols) + " FROM " + tableOf(target) + " " + alias +
			" WHERE " + where + orderSQL(terms)
	}

	rows, err := c.db.Query(ctx, sql, b.args...)
	if err != nil {
		return reflect.Value{}, mapError(target, err)
	}
	out, err := tb.collect(rows)
	if err != nil {
		return reflect.Value{}, mapError(target, err)
	}
	if err := c.loadRelations(ctx, rs.Shape, out); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

func attach(b *binding, parents reflect.Value, rs *query.RelationShape, children reflect.Value) {
	rel := rs.Relation
	tb := bindings[rel.Target]
	groups := map[string][]reflect.Value{}
	for i := 0; i < children.Len(); i++ {
		child := children.Index(i)
		k := keyOf(tb.field(child, rel.ForeignField))
		groups[k] = append(groups[k], child)
	}
	args := rs.Args
	reverse := args.Take != nil && *args.Take < 0
	windowed := args.Take != nil || args.Skip > 0
	for i := 0; i < parents.Len(); i++ {
		p := parents.Index(i)
		group := groups[keyOf(b.field(p, rel.LocalField))]
		dst := p.FieldByName(rel.GoField)
		if rel.Cardinality == schema.ToOne {
			if len(group) > 0 {
				ptr := reflect.New(dst.Type().Elem())
				ptr.Elem().Set(group[0])
				dst.Set(ptr)
			}
			continue
		}
		if len(args.Distinct) > 0 {
			group = distinct(tb, group, args.Distinct)
			if windowed {
				group = window(group, args.Skip, args.Take)
			}
		}
		if reverse {
			group = slices.Clone(group)
			slices.Reverse(group)
		}
		list := reflect.MakeSlice(dst.Type(), 0, len(group))
		list = reflect.Append(list, group...)
		dst.Set(list)
	}
}

func (c *Client) fetchCounts(ctx context.Context, shapes []*query.CountShape, keys []string) (map[string]map[string]int64, error) {
	out := make(map[string]map[string]int64, len(shapes))
	for _, cs := range shapes {
		rel := cs.Relation
		target := rel.TargetModel()
		foreign, _ := target.Field(rel.ForeignField)
		b := &builder{}
		alias := b.alias()
		where := column(alias, foreign) + " = ANY(" + b.bind(keys) + ")"
		if cs.Where != nil {
			w, err := b.where(target, alias, cs.Where)
			if err != nil {
				return nil, err
			}
			where += " AND (" + w + ")"
		}
		sql := "SELECT " + column(alias, foreign) + ", COUNT(*) FROM " + tableOf(target) + " " + alias +
			" WHERE " + where + " GROUP BY " + column(alias, foreign)
		rows, err := c.db.Query(ctx, sql, b.args...)
		if err != nil {
			return nil, mapError(target, err)
		}
		counts := map[string]int64{}
		for rows.Next() {
			var (
				k string
				n int64
			)
			if err := rows.Scan(&k, &n); err != nil {
				rows.Close()
				return nil, err
			}
			counts[k] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, mapError(target, err)
		}
		out[rel.Name] = counts
	}
	return out, nil
}

func attachCounts(b *binding, parents reflect.Value, shapes []*query.CountShape, counts map[string]map[string]int64) {
	idName := b.model.ID().Name
	for i := 0; i < parents.Len(); i++ {
		p := parents.Index(i)
		dst := b.field(p, query.CountKey)
		if !dst.IsValid() {
			continue
		}
		cv := reflect.New(dst.Type().Elem())
		key := keyOf(b.field(p, idName))
		for _, cs := range shapes {
			if f := fieldByJSON(cv.Elem(), cs.Relation.Name); f.IsValid() {
				f.SetInt(counts[cs.Relation.Name][key])
			}
		}
		dst.Set(cv)
	}
}

func fieldByJSON(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if tag == name {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

// distinct keeps the first row of every combination of the given fields.
func distinct(b *binding, rows []reflect.Value, fields []string) []reflect.Value {
	seen := map[string]bool{}
	out := make([]reflect.Value, 0, len(rows))
	for _, r := range rows {
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = keyOf(b.field(r, f))
		}
		k := strings.Join(parts, "\x00")
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func window[E any](rows []E, skip int, take *int) []E {
	if skip >= len(rows) {
		return rows[:0]
	}
	rows = rows[skip:]
	if take != nil && abs(*take) < len(rows) {
		rows = rows[:abs(*take)]
	}
	return rows
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
