package postgres

import (
	"context"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
)

// on returns the same delegate bound to client c.
func (d *Delegate[T]) on(c *Client) *Delegate[T] {
	return &Delegate[T]{c: c, model: d.model, b: d.b}
}

// atomic runs fn in a transaction when needed, reusing the current one.
func (d *Delegate[T]) atomic(ctx context.Context, need bool, fn func(dd *Delegate[T]) error) error {
	if !need {
		return fn(d)
	}
	return d.c.inTx(ctx, func(tc *Client) error { return fn(d.on(tc)) })
}

func (d *Delegate[T]) invalid(action Action, field, reason string) error {
	return &dberr.ValidationError{Model: d.model.Name, Action: string(action), Field: field, Reason: reason}
}

func (d *Delegate[T]) Create(ctx context.Context, args query.CreateArgs) (*T, error) {
	return one[T](d.run(ctx, ActionCreate, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.CreateArgs)
		if err := query.ValidateData(d.model, string(ActionCreate), args.Data, true); err != nil {
			return nil, err
		}
		if err := query.ValidateProjection(d.model, string(ActionCreate), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)
		var out *T
		err := d.atomic(ctx, hasNested(args.Data), func(dd *Delegate[T]) error {
			w, err := dd.c.createNested(ctx, d.model, args.Data)
			if err != nil {
				return err
			}
			out, err = dd.byUnique(ctx, query.ByID(w.id), s)
			return err
		})
		return out, err
	}))
}

func (d *Delegate[T]) validateMany(action Action, rows []query.Data) error {
	for _, row := range rows {
		if hasNested(row) {
			return d.invalid(action, "data", "nested writes are not supported in bulk writes")
		}
		if err := query.ValidateData(d.model, string(action), row, true); err != nil {
			return err
		}
	}
	return nil
}

func (d *Delegate[T]) CreateMany(ctx context.Context, args query.CreateManyArgs) (query.BatchPayload, error) {
	res, err := d.run(ctx, ActionCreateMany, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.CreateManyArgs)
		if err := d.validateMany(ActionCreateMany, args.Data); err != nil {
			return nil, err
		}
		ws, err := d.c.createMany(ctx, d.model, args.Data, args.SkipDuplicates)
		if err != nil {
			return nil, err
		}
		return query.BatchPayload{Count: int64(len(ws))}, nil
	})
	return batch(res, err)
}

func (d *Delegate[T]) CreateManyAndReturn(ctx context.Context, args query.CreateManyArgs) ([]T, error) {
	return many[T](d.run(ctx, ActionCreateManyAndReturn, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.CreateManyArgs)
		if err := d.validateMany(ActionCreateManyAndReturn, args.Data); err != nil {
			return nil, err
		}
		if err := query.ValidateProjection(d.model, string(ActionCreateManyAndReturn), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)
		var out []T
		err := d.atomic(ctx, true, func(dd *Delegate[T]) error {
			ws, err := dd.c.createMany(ctx, d.model, args.Data, args.SkipDuplicates)
			if err != nil {
				return err
			}
			out, err = dd.byIDs(ctx, ids(ws), s)
			return err
		})
		return out, err
	}))
}

func (d *Delegate[T]) Update(ctx context.Context, args query.UpdateArgs) (*T, error) {
	return one[T](d.run(ctx, ActionUpdate, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.UpdateArgs)
		if err := query.ValidateUnique(d.model, string(ActionUpdate), args.Where); err != nil {
			return nil, err
		}
		if err := query.ValidateData(d.model, string(ActionUpdate), args.Data, false); err != nil {
			return nil, err
		}
		if err := query.ValidateProjection(d.model, string(ActionUpdate), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)
		var out *T
		err := d.atomic(ctx, hasNested(args.Data), func(dd *Delegate[T]) error {
			w, err := dd.updateOne(ctx, args.Where, args.Data)
			if err != nil {
				return err
			}
			out, err = dd.byUnique(ctx, query.ByID(w.id), s)
			return err
		})
		return out, err
	}))
}

// updateOne updates the row matching where and runs nested writes of d.
func (d *Delegate[T]) updateOne(ctx context.Context, where query.Unique, data query.Data) (written, error) {
	ws, err := d.c.updateRows(ctx, d.model, where.Filter(), scalarData(d.model, data), 0)
	if err != nil {
		return written{}, err
	}
	if len(ws) == 0 {
		return written{}, dberr.NotFound(d.model.Name, "an update")
	}
	for _, k := range data.Keys() {
		rel, ok := d.model.Relation(k)
		if !ok {
			continue
		}
		n, _ := query.AsNested(data[k])
		if n == nil {
			continue
		}
		if err := d.c.writeOwned(ctx, rel, n, ws[0].id); err != nil {
			return written{}, err
		}
	}
	return ws[0], nil
}

func (d *Delegate[T]) validateUpdateMany(action Action, args query.UpdateManyArgs) error {
	if hasNested(args.Data) {
		return d.invalid(action, "data", "nested writes are not supported in bulk writes")
	}
	if args.Limit < 0 {
		return d.invalid(action, "limit", "must not be negative")
	}
	if err := query.ValidateFilter(d.model, string(action), args.Where); err != nil {
		return err
	}
	return query.ValidateData(d.model, string(action), args.Data, false)
}

func (d *Delegate[T]) UpdateMany(ctx context.Context, args query.UpdateManyArgs) (query.BatchPayload, error) {
	res, err := d.run(ctx, ActionUpdateMany, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.UpdateManyArgs)
		if err := d.validateUpdateMany(ActionUpdateMany, args); err != nil {
			return nil, err
		}
		ws, err := d.c.updateRows(ctx, d.model, args.Where, args.Data, args.Limit)
		if err != nil {
			return nil, err
		}
		return query.BatchPayload{Count: int64(len(ws))}, nil
	})
	return batch(res, err)
}

func (d *Delegate[T]) UpdateManyAndReturn(ctx context.Context, args query.UpdateManyArgs) ([]T, error) {
	return many[T](d.run(ctx, ActionUpdateManyAndReturn, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.UpdateManyArgs)
		if err := d.validateUpdateMany(ActionUpdateManyAndReturn, args); err != nil {
			return nil, err
		}
		if err := query.ValidateProjection(d.model, string(ActionUpdateManyAndReturn), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)
		var out []T
		err := d.atomic(ctx, true, func(dd *Delegate[T]) error {
			ws, err := dd.c.updateRows(ctx, d.model, args.Where, args.Data, args.Limit)
			if err != nil {
				return err
			}
			out, err = dd.byIDs(ctx, ids(ws), s)
			return err
		})
		return out, err
	}))
}

func (d *Delegate[T]) Upsert(ctx context.Context, args query.UpsertArgs) (*T, error) {
	return one[T](d.run(ctx, ActionUpsert, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.UpsertArgs)
		if err := query.ValidateUnique(d.model, string(ActionUpsert), args.Where); err != nil {
			return nil, err
		}
		if err := query.ValidateData(d.model, string(ActionUpsert), args.Create, true); err != nil {
			return nil, err
		}
		if len(args.Update) > 0 {
			if err := query.ValidateData(d.model, string(ActionUpsert), args.Update, false); err != nil {
				return nil, err
			}
		}
		if err := query.ValidateProjection(d.model, string(ActionUpsert), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)

		nested := hasNested(args.Create) || hasNested(args.Update)
		if f := conflictField(d.model, args.Where, args.Create); f != nil && !nested {
			w, err := d.c.upsertNative(ctx, d.model, f, args.Create, args.Update)
			if err != nil {
				return nil, err
			}
			return d.byUnique(ctx, query.ByID(w.id), s)
		}

		var out *T
		err := d.atomic(ctx, true, func(dd *Delegate[T]) error {
			id := d.model.ID()
			existing, err := dd.c.lookup(ctx, d.model, id, args.Where)
			var w written
			switch {
			case err == nil && len(args.Update) == 0:
				w.id = existing
			case err == nil:
				w, err = dd.updateOne(ctx, query.ByID(existing), args.Update)
			case dberr.IsNotFound(err):
				w, err = dd.c.createNested(ctx, d.model, args.Create)
			}
			if err != nil {
				return err
			}
			out, err = dd.byUnique(ctx, query.ByID(w.id), s)
			return err
		})
		return out, err
	}))
}

func (d *Delegate[T]) Delete(ctx context.Context, args query.DeleteArgs) (*T, error) {
	return one[T](d.run(ctx, ActionDelete, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.DeleteArgs)
		if err := query.ValidateUnique(d.model, string(ActionDelete), args.Where); err != nil {
			return nil, err
		}
		if err := query.ValidateProjection(d.model, string(ActionDelete), args.Select, args.Include, args.Omit); err != nil {
			return nil, err
		}
		s := d.shape(args.Select, args.Include, args.Omit)
		var out *T
		err := d.atomic(ctx, true, func(dd *Delegate[T]) error {
			row, err := dd.byUnique(ctx, args.Where, s)
			if err != nil {
				return err
			}
			if row == nil {
				return dberr.NotFound(d.model.Name, "a delete")
			}
			ws, err := dd.c.deleteRows(ctx, d.model, args.Where.Filter(), 0)
			if err != nil {
				return err
			}
			if len(ws) == 0 {
				return dberr.NotFound(d.model.Name, "a delete")
			}
			out = row
			return nil
		})
		return out, err
	}))
}

func (d *Delegate[T]) DeleteMany(ctx context.Context, args query.DeleteManyArgs) (query.BatchPayload, error) {
	res, err := d.run(ctx, ActionDeleteMany, args, func(ctx context.Context, a any) (any, error) {
		args := a.(query.DeleteManyArgs)
		if args.Limit < 0 {
			return nil, d.invalid(ActionDeleteMany, "limit", "must not be negative")
		}
		if err := query.ValidateFilter(d.model, string(ActionDeleteMany), args.Where); err != nil {
			return nil, err
		}
		ws, err := d.c.deleteRows(ctx, d.model, args.Where, args.Limit)
		if err != nil {
			return nil, err
		}
		return query.BatchPayload{Count: int64(len(ws))}, nil
	})
	return batch(res, err)
}

func batch(res any, err error) (query.BatchPayload, error) {
	if err != nil {
		return query.BatchPayload{}, err
	}
	p, _ := res.(query.BatchPayload)
	return p, nil
}

func ids(ws []written) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.id
	}
	return out
}
