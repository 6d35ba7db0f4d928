package handlers

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// Query string keys that are not field filters.
var reservedParams = []string{"take", "skip", "orderBy", "select", "include", "omit", "mode", "cursor", "distinct", "count", "avg", "sum", "min", "max", "by"}

const opSeparator = "__"

func badParam(m *schema.Model, field, reason string) error {
	return &dberr.ValidationError{Model: m.Name, Action: "studio", Field: field, Reason: reason}
}

func csv(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fieldParams name fields in their comma separated values.
var fieldParams = []string{"select", "orderBy", "distinct", "count", "avg", "sum", "min", "max", "by"}

// CheckHidden rejects any parameter that reads, filters, sorts or
// aggregates one of the hidden fields of m.
func CheckHidden(m *schema.Model, values url.Values, hidden []string) error {
	if len(hidden) == 0 {
		return nil
	}
	check := func(name string) error {
		if slices.Contains(hidden, name) {
			return badParam(m, name, "field is not readable")
		}
		return nil
	}
	for key, vs := range values {
		if slices.Contains(fieldParams, key) {
			for _, v := range vs {
				for _, item := range csv(v) {
					name, _, _ := strings.Cut(item, ":")
					if err := check(name); err != nil {
						return err
					}
				}
			}
			continue
		}
		if slices.Contains(reservedParams, key) {
			continue
		}
		name, _, _ := strings.Cut(key, opSeparator)
		if err := check(name); err != nil {
			return err
		}
	}
	return nil
}

// parseValue converts a query string value to the Go type of f.
func parseValue(m *schema.Model, f *schema.Field, raw string) (any, error) {
	if raw == "null" && f.Optional {
		return nil, nil
	}
	switch f.Kind {
	case schema.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, badParam(m, f.Name, "expected an integer")
		}
		return n, nil
	case schema.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, badParam(m, f.Name, "expected a boolean")
		}
		return b, nil
	case schema.DateTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, badParam(m, f.Name, "expected an RFC 3339 timestamp")
		}
		return t, nil
	}
	return raw, nil
}

// ParseWhere turns field=value and field__op=value parameters into a filter.
// Keys are handled in sorted order so equal queries build equal filters.
func ParseWhere(m *schema.Model, values url.Values) (query.Filter, error) {
	mode := query.Default
	if strings.EqualFold(values.Get("mode"), string(query.Insensitive)) {
		mode = query.Insensitive
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if !slices.Contains(reservedParams, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var conds []query.Filter
	for _, key := range keys {
		name, op, found := strings.Cut(key, opSeparator)
		if !found {
			op = string(query.Equals)
		}
		f, ok := m.Field(name)
		if !ok {
			return nil, badParam(m, name, "unknown field")
		}
		if !slices.Contains(query.Ops, query.Op(op)) {
			return nil, badParam(m, name, "unknown operator "+strconv.Quote(op))
		}
		c := query.Cond{Field: name, Op: query.Op(op)}
		if f.Kind == schema.String {
			c.Mode = mode
		}
		for _, raw := range values[key] {
			switch c.Op {
			case query.IsNull, query.IsNotNull:
				c.Op = query.Op(op)
				if raw != "" {
					set, err := strconv.ParseBool(raw)
					if err != nil {
						return nil, badParam(m, name, "expected true or false")
					}
					if !set {
						c.Op = flipNull(c.Op)
					}
				}
			case query.In, query.NotIn:
				list := []any{}
				for _, item := range csv(raw) {
					v, err := parseValue(m, f, item)
					if err != nil {
						return nil, err
					}
					list = append(list, v)
				}
				c.Value = list
			default:
				v, err := parseValue(m, f, raw)
				if err != nil {
					return nil, err
				}
				c.Value = v
			}
			conds = append(conds, c)
		}
	}
	switch len(conds) {
	case 0:
		return nil, nil
	case 1:
		return conds[0], nil
	}
	return query.And(conds), nil
}

func flipNull(op query.Op) query.Op {
	if op == query.IsNull {
		return query.IsNotNull
	}
	return query.IsNull
}

// ParseOrderBy reads orderBy=field[:asc|desc],...
func ParseOrderBy(m *schema.Model, raw string) ([]query.OrderBy, error) {
	var out []query.OrderBy
	for _, term := range csv(raw) {
		name, dir, _ := strings.Cut(term, ":")
		o := query.OrderBy{Field: name, Order: query.Asc}
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			o.Order = query.Desc
		default:
			return nil, badParam(m, name, "sort order must be asc or desc")
		}
		out = append(out, o)
	}
	return out, nil
}

// ParseFindMany builds the arguments of a studio listing. take defaults to
// maxTake and is capped by it.
func ParseFindMany(m *schema.Model, values url.Values, maxTake int) (query.FindManyArgs, error) {
	var args query.FindManyArgs
	where, err := ParseWhere(m, values)
	if err != nil {
		return args, err
	}
	args.Where = where
	if args.OrderBy, err = ParseOrderBy(m, values.Get("orderBy")); err != nil {
		return args, err
	}
	take := maxTake
	if raw := values.Get("take"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n == 0 {
			return args, badParam(m, "take", "expected a non-zero integer")
		}
		if n > maxTake {
			n = maxTake
		}
		if n < -maxTake {
			n = -maxTake
		}
		take = n
	}
	args.Take = query.Take(take)
	if raw := values.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return args, badParam(m, "skip", "expected a non-negative integer")
		}
		args.Skip = n
	}
	if raw := values.Get("cursor"); raw != "" {
		args.Cursor = query.ByID(raw)
	}
	if sel := csv(values.Get("select")); len(sel) > 0 {
		args.Select = query.Fields(sel...)
	}
	if inc := csv(values.Get("include")); len(inc) > 0 {
		args.Include = query.Relations(inc...)
	}
	args.Omit = csv(values.Get("omit"))
	args.Distinct = csv(values.Get("distinct"))
	return args, nil
}

// ParseAggregate reads count=, avg=, sum=, min= and max= field lists.
func ParseAggregate(m *schema.Model, values url.Values) (query.AggregateArgs, error) {
	where, err := ParseWhere(m, values)
	if err != nil {
		return query.AggregateArgs{}, err
	}
	args := query.AggregateArgs{
		Where: where,
		Count: csv(values.Get("count")),
		Avg:   csv(values.Get("avg")),
		Sum:   csv(values.Get("sum")),
		Min:   csv(values.Get("min")),
		Max:   csv(values.Get("max")),
	}
	if len(args.Count)+len(args.Avg)+len(args.Sum)+len(args.Min)+len(args.Max) == 0 {
		args.Count = []string{query.AllKey}
	}
	return args, nil
}

// ParseGroupBy reads by= plus the aggregate lists and orderBy.
func ParseGroupBy(m *schema.Model, values url.Values) (query.GroupByArgs, error) {
	agg, err := ParseAggregate(m, values)
	if err != nil {
		return query.GroupByArgs{}, err
	}
	args := query.GroupByArgs{
		By:    csv(values.Get("by")),
		Where: agg.Where,
		Count: agg.Count,
		Avg:   agg.Avg,
		Sum:   agg.Sum,
		Min:   agg.Min,
		Max:   agg.Max,
	}
	if args.OrderBy, err = ParseOrderBy(m, values.Get("orderBy")); err != nil {
		return args, err
	}
	return args, nil
}
