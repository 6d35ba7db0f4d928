package postgres

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// aggCol is one aggregate output column and the destination it scans into.
type aggCol struct {
	agg   query.AggFunc
	field string
	expr  string
	dest  any
}

func scalarDest(f *schema.Field) any {
	switch f.Kind {
	case schema.Int:
		return new(*int64)
	case schema.Bool:
		return new(*bool)
	case schema.DateTime:
		return new(*time.Time)
	default:
		return new(*string)
	}
}

// scalarExpr reads enums as text so they scan into strings.
func scalarExpr(f *schema.Field, expr string) string {
	if f.Kind == schema.Enum {
		return expr + "::text"
	}
	return expr
}

func scanned(dest any) any {
	switch p := dest.(type) {
	case **int64:
		if *p != nil {
			return **p
		}
	case **float64:
		if *p != nil {
			return **p
		}
	case **bool:
		if *p != nil {
			return **p
		}
	case **time.Time:
		if *p != nil {
			return **p
		}
	case **string:
		if *p != nil {
			return **p
		}
	}
	return nil
}

func aggColumns(m *schema.Model, alias string, count, avg, sum, min, max []string) ([]aggCol, error) {
	var cols []aggCol
	add := func(agg query.AggFunc, names []string) error {
		for _, name := range names {
			expr, err := aggExpr(m, alias, agg, name)
			if err != nil {
				return err
			}
			c := aggCol{agg: agg, field: name, expr: expr}
			switch agg {
			case query.AggCount:
				c.dest = new(int64)
			case query.AggAvg:
				c.dest = new(*float64)
			case query.AggSum:
				c.dest = new(*int64)
			default:
				f, _ := m.Field(name)
				c.expr = scalarExpr(f, expr)
				c.dest = scalarDest(f)
			}
			cols = append(cols, c)
		}
		return nil
	}
	for _, step := range []struct {
		agg   query.AggFunc
		names []string
	}{{query.AggCount, count}, {query.AggAvg, avg}, {query.AggSum, sum}, {query.AggMin, min}, {query.AggMax, max}} {
		if err := add(step.agg, step.names); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func fillAggregates(cols []aggCol) query.AggregateResult {
	var r query.AggregateResult
	for _, c := range cols {
		switch c.agg {
		case query.AggCount:
			if r.Count == nil {
				r.Count = map[string]int64{}
			}
			r.Count[c.field] = *c.dest.(*int64)
		case query.AggAvg:
			if r.Avg == nil {
				r.Avg = map[string]*float64{}
			}
			r.Avg[c.field] = *c.dest.(**float64)
		case query.AggSum:
			if r.Sum == nil {
				r.Sum = map[string]*int64{}
			}
			r.Sum[c.field] = *c.dest.(**int64)
		case query.AggMin:
			if r.Min == nil {
				r.Min = map[string]any{}
			}
			r.Min[c.field] = scanned(c.dest)
		case query.AggMax:
			if r.Max == nil {
				r.Max = map[string]any{}
			}
			r.Max[c.field] = scanned(c.dest)
		}
	}
	return r
}

func exprs(cols []aggCol) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.expr
	}
	return out
}

func dests(cols []aggCol) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c.dest
	}
	return out
}

func (d *Delegate[T]) Aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error) {
	res, err := d.run(ctx, ActionAggregate, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.AggregateArgs)
		if err := query.ValidateAggregate(d.model, string(ActionAggregate), args); err != nil {
			return nil, err
		}
		return d.aggregate(ctx, args)
	})
	if err != nil {
		return nil, err
	}
	r, _ := res.(*query.AggregateResult)
	return r, nil
}

func (d *Delegate[T]) aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error) {
	b := &builder{}
	alias := b.alias()
	w, err := d.paginate(b, alias, args.Where, args.OrderBy, args.Cursor, args.Take, args.Skip, false)
	if err != nil {
		return nil, err
	}
	cols, err := aggColumns(d.model, alias, args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return &query.AggregateResult{}, nil
	}
	inner := "SELECT " + alias + ".* FROM " + tableOf(d.model) + " " + alias + " WHERE " + w.where + orderSQL(w.order) + w.limit
	sql := "SELECT " + strings.Join(exprs(cols), ", ") + " FROM (" + inner + ") " + alias
	if err := d.c.db.QueryRow(ctx, sql, b.args...).Scan(dests(cols)...); err != nil {
		return nil, mapError(d.model, err)
	}
	r := fillAggregates(cols)
	return &r, nil
}

func (d *Delegate[T]) GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.GroupByRow, error) {
	res, err := d.run(ctx, ActionGroupBy, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.GroupByArgs)
		if err := query.ValidateGroupBy(d.model, string(ActionGroupBy), args); err != nil {
			return nil, err
		}
		return d.groupBy(ctx, args)
	})
	if err != nil {
		return nil, err
	}
	rows, _ := res.([]query.GroupByRow)
	return rows, nil
}

func (d *Delegate[T]) groupBy(ctx context.Context, args query.GroupByArgs) ([]query.GroupByRow, error) {
	b := &builder{}
	alias := b.alias()
	by := make([]*schema.Field, len(args.By))
	keyExprs := make([]string, len(args.By))
	groupExprs := make([]string, len(args.By))
	for i, name := range args.By {
		f, _ := d.model.Field(name)
		by[i] = f
		groupExprs[i] = column(alias, f)
		keyExprs[i] = scalarExpr(f, column(alias, f))
	}
	where, err := b.where(d.model, alias, args.Where)
	if err != nil {
		return nil, err
	}
	cols, err := aggColumns(d.model, alias, args.Count, args.Avg, args.Sum, args.Min, args.Max)
	if err != nil {
		return nil, err
	}
	sql := "SELECT " + strings.Join(append(keyExprs, exprs(cols)...), ", ") +
		" FROM " + tableOf(d.model) + " " + alias + " WHERE " + where +
		" GROUP BY " + strings.Join(groupExprs, ", ")
	if args.Having != nil {
		having, err := b.having(d.model, alias, args.Having)
		if err != nil {
			return nil, err
		}
		sql += " HAVING " + having
	}
	terms, err := b.orderTerms(d.model, alias, args.OrderBy)
	if err != nil {
		return nil, err
	}
	reverse := args.Take != nil && *args.Take < 0
	if reverse {
		for i := range terms {
			terms[i] = terms[i].reversed()
		}
	}
	sql += orderSQL(terms)
	if args.Take != nil {
		sql += " LIMIT " + strconv.Itoa(abs(*args.Take))
	}
	if args.Skip > 0 {
		sql += " OFFSET " + strconv.Itoa(args.Skip)
	}

	rows, err := d.c.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, mapError(d.model, err)
	}
	defer rows.Close()
	out := []query.GroupByRow{}
	for rows.Next() {
		keys := make([]any, len(by))
		for i, f := range by {
			keys[i] = scalarDest(f)
		}
		cols, err := aggColumns(d.model, alias, args.Count, args.Avg, args.Sum, args.Min, args.Max)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(append(keys, dests(cols)...)...); err != nil {
			return nil, mapError(d.model, err)
		}
		row := query.GroupByRow{Keys: make(map[string]any, len(by)), AggregateResult: fillAggregates(cols)}
		for i, f := range by {
			row.Keys[f.Name] = scanned(keys[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(d.model, err)
	}
	if reverse {
		slices.Reverse(out)
	}
	return out, nil
}
