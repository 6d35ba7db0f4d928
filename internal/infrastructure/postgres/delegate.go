package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
	"slices"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// Delegate runs the operations of one model, scanning rows into T.
type Delegate[T any] struct {
	c     *Client
	model *schema.Model
	b     *binding
}

var _ repository.UserDelegate = (*Delegate[entity.User])(nil)

func newDelegate[T any](c *Client, m *schema.Model) *Delegate[T] {
	return &Delegate[T]{c: c, model: m, b: bindings[m.Name]}
}

func (d *Delegate[T]) run(ctx context.Context, action Action, args any, fn func(ctx context.Context, args any) (any, error)) (any, error) {
	return d.c.dispatch(ctx, Params{Model: d.model.Name, Action: action, Args: args}, func(ctx context.Context, p Params) (any, error) {
		if err := d.c.checkTx(); err != nil {
			return nil, err
		}
		ctx, stop := d.c.txContext(ctx)
		defer stop()
		res, err := fn(ctx, p.Args)
		if err != nil && d.c.checkTx() != nil {
			return nil, txError("transaction already closed", err)
		}
		return res, err
	})
}

func one[T any](res any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	v, _ := res.(*T)
	return v, nil
}

func many[T any](res any, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	v, _ := res.([]T)
	return v, nil
}

func (d *Delegate[T]) shape(sel query.Select, inc query.Include, omit []string) *query.Shape {
	return query.ResolveShape(d.model, sel, inc, omit, d.c.omit)
}

func (d *Delegate[T]) FindUnique(ctx context.Context, args query.FindUniqueArgs) (*T, error) {
	return one[T](d.run(ctx, ActionFindUnique, args, func(ctx context.Context, a any) (any, error) {
		return d.findUnique(ctx, ActionFindUnique, a.(query.FindUniqueArgs))
	}))
}

func (d *Delegate[T]) FindUniqueOrThrow(ctx context.Context, args query.FindUniqueArgs) (*T, error) {
	return one[T](d.run(ctx, ActionFindUniqueOrThrow, args, func(ctx context.Context, a any) (any, error) {
		row, err := d.findUnique(ctx, ActionFindUniqueOrThrow, a.(query.FindUniqueArgs))
		if err == nil && row == nil {
			return nil, dberr.NotFound(d.model.Name, "a query")
		}
		return row, err
	}))
}

func (d *Delegate[T]) FindFirst(ctx context.Context, args query.FindManyArgs) (*T, error) {
	return one[T](d.run(ctx, ActionFindFirst, args, func(ctx context.Context, a any) (any, error) {
		return d.findFirst(ctx, ActionFindFirst, a.(query.FindManyArgs))
	}))
}

func (d *Delegate[T]) FindFirstOrThrow(ctx context.Context, args query.FindManyArgs) (*T, error) {
	return one[T](d.run(ctx, ActionFindFirstOrThrow, args, func(ctx context.Context, a any) (any, error) {
		row, err := d.findFirst(ctx, ActionFindFirstOrThrow, a.(query.FindManyArgs))
		if err == nil && row == nil {
			return nil, dberr.NotFound(d.model.Name, "a query")
		}
		return row, err
	}))
}

func (d *Delegate[T]) FindMany(ctx context.Context, args query.FindManyArgs) ([]T, error) {
	return many[T](d.run(ctx, ActionFindMany, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.FindManyArgs)
		if err := query.ValidateFindMany(d.model, string(ActionFindMany), args); err != nil {
			return nil, err
		}
		return withCache(ctx, d.c, d.model.Name, ActionFindMany, args.Cache, args, func(ctx context.Context) ([]T, error) {
			return d.find(ctx, args, d.shape(args.Select, args.Include, args.Omit))
		})
	}))
}

func (d *Delegate[T]) Count(ctx context.Context, args query.CountArgs) (int64, error) {
	res, err := d.run(ctx, ActionCount, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.CountArgs)
		if err := query.ValidateCount(d.model, string(ActionCount), args); err != nil {
			return nil, err
		}
		return withCache(ctx, d.c, d.model.Name, ActionCount, args.Cache, args, func(ctx context.Context) (int64, error) {
			return d.count(ctx, args)
		})
	})
	if err != nil {
		return 0, err
	}
	n, _ := res.(int64)
	return n, nil
}

func (d *Delegate[T]) findUnique(ctx context.Context, action Action, args query.FindUniqueArgs) (*T, error) {
	if err := query.ValidateFindUnique(d.model, string(action), args); err != nil {
		return nil, err
	}
	return withCache(ctx, d.c, d.model.Name, action, args.Cache, args, func(ctx context.Context) (*T, error) {
		return d.byUnique(ctx, args.Where, d.shape(args.Select, args.Include, args.Omit))
	})
}

func (d *Delegate[T]) findFirst(ctx context.Context, action Action, args query.FindManyArgs) (*T, error) {
	if err := query.ValidateFindMany(d.model, string(action), args); err != nil {
		return nil, err
	}
	take := 1
	if args.Take != nil && *args.Take < 0 {
		take = -1
	}
	args.Take = &take
	return withCache(ctx, d.c, d.model.Name, action, args.Cache, args, func(ctx context.Context) (*T, error) {
		rows, err := d.find(ctx, args, d.shape(args.Select, args.Include, args.Omit))
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return &rows[0], nil
	})
}

func (d *Delegate[T]) byUnique(ctx context.Context, where query.Unique, s *query.Shape) (*T, error) {
	rows, err := d.find(ctx, query.FindManyArgs{Where: where.Filter()}, s)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (d *Delegate[T]) byIDs(ctx context.Context, ids []string, s *query.Shape) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}
	rows, err := d.find(ctx, query.FindManyArgs{Where: query.Cond{Field: d.model.ID().Name, Op: query.In, Value: ids}}, s)
	if err != nil {
		return nil, err
	}
	// keep the order of ids
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	idName := d.model.ID().Name
	slices.SortStableFunc(rows, func(a, b T) int {
		return pos[keyOf(d.b.field(reflect.ValueOf(a), idName))] - pos[keyOf(d.b.field(reflect.ValueOf(b), idName))]
	})
	return rows, nil
}

// page is the WHERE, ORDER BY and LIMIT/OFFSET of a paginated read.
type page struct {
	where   string
	order   []orderTerm
	limit   string
	reverse bool
}

func (d *Delegate[T]) paginate(b *builder, alias string, where query.Filter, orderBy []query.OrderBy, cursor query.Unique, take *int, skip int, inMemory bool) (page, error) {
	var w page
	cond, err := b.where(d.model, alias, where)
	if err != nil {
		return w, err
	}
	terms, err := b.orderTerms(d.model, alias, orderBy)
	if err != nil {
		return w, err
	}
	if cursor != nil || take != nil || skip > 0 {
		terms = withTiebreak(d.model, alias, terms)
	}
	w.reverse = take != nil && *take < 0
	if w.reverse {
		for i := range terms {
			terms[i] = terms[i].reversed()
		}
	}
	if cursor != nil {
		cc, err := b.cursorCond(d.model, alias, terms, cursor)
		if err != nil {
			return w, err
		}
		cond = "(" + cond + ") AND " + cc
	}
	w.where = cond
	w.order = terms
	if !inMemory {
		if take != nil {
			w.limit += " LIMIT " + strconv.Itoa(abs(*take))
		}
		if skip > 0 {
			w.limit += " OFFSET " + strconv.Itoa(skip)
		}
	}
	return w, nil
}

func (d *Delegate[T]) find(ctx context.Context, args query.FindManyArgs, s *query.Shape) ([]T, error) {
	b := &builder{}
	alias := b.alias()
	inMemory := len(args.Distinct) > 0
	w, err := d.paginate(b, alias, args.Where, args.OrderBy, args.Cursor, args.Take, args.Skip, inMemory)
	if err != nil {
		return nil, err
	}
	sql := "SELECT " + columnList(alias, s.Columns()) + " FROM " + tableOf(d.model) + " " + alias +
		" WHERE " + w.where + orderSQL(w.order) + w.limit

	rows, err := d.c.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, mapError(d.model, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
	if err != nil {
		return nil, mapError(d.model, err)
	}
	if inMemory {
		vals := make([]reflect.Value, len(out))
		for i := range out {
			vals[i] = reflect.ValueOf(&out[i]).Elem()
		}
		vals = window(distinct(d.b, vals, args.Distinct), args.Skip, args.Take)
		kept := make([]T, len(vals))
		for i, v := range vals {
			kept[i] = v.Interface().(T)
		}
		out = kept
	}
	if w.reverse {
		slices.Reverse(out)
	}
	if err := d.c.loadRelations(ctx, s, reflect.ValueOf(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Delegate[T]) count(ctx context.Context, args query.CountArgs) (int64, error) {
	b := &builder{}
	alias := b.alias()
	w, err := d.paginate(b, alias, args.Where, args.OrderBy, args.Cursor, args.Take, args.Skip, false)
	if err != nil {
		return 0, err
	}
	var sql string
	if w.limit == "" && args.Cursor == nil {
		sql = "SELECT COUNT(*) FROM " + tableOf(d.model) + " " + alias + " WHERE " + w.where
	} else {
		sql = "SELECT COUNT(*) FROM (SELECT 1 FROM " + tableOf(d.model) + " " + alias +
			" WHERE " + w.where + orderSQL(w.order) + w.limit + ") sub"
	}
	var n int64
	if err := d.c.db.QueryRow(ctx, sql, b.args...).Scan(&n); err != nil {
		return 0, mapError(d.model, err)
	}
	return n, nil
}

// withCache serves a read from the cache when a strategy is given. Cache
// failures are logged and the query runs against the database.
func withCache[R any](ctx context.Context, c *Client, model string, action Action, strategy *query.CacheStrategy, args any, load func(ctx context.Context) (R, error)) (R, error) {
	if strategy == nil || c.cache == nil || c.tx != nil {
		return load(ctx)
	}
	key, err := cacheKey(model, action, args)
	if err != nil {
		return load(ctx)
	}
	var hit R
	found, err := c.cache.Get(ctx, key, &hit)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache read failed")
	} else if found {
		return hit, nil
	}
	res, err := load(ctx)
	if err != nil {
		return res, err
	}
	if err := c.cache.Set(ctx, key, res, strategy.TTL); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return res, nil
}

// cacheKey is <Model>:<action>:<sha256 of the JSON encoded arguments>.
func cacheKey(model string, action Action, args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return model + ":" + string(action) + ":" + hex.EncodeToString(sum[:]), nil
}
