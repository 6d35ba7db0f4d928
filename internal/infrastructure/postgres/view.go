package postgres

import (
	"context"

	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// modelView serves the untyped repository.ModelDelegate on top of a typed
// delegate, projecting every row onto its resolved shape.
type modelView[T any] struct {
	d *Delegate[T]
}

var _ repository.ModelDelegate = (*modelView[struct{}])(nil)

func (v *modelView[T]) Model() *schema.Model { return v.d.model }

func (v *modelView[T]) FindManyRecords(ctx context.Context, args query.FindManyArgs) ([]*query.Record, error) {
	rows, err := v.d.FindMany(ctx, args)
	if err != nil {
		return nil, err
	}
	return query.ProjectAll(v.d.shape(args.Select, args.Include, args.Omit), rows), nil
}

func (v *modelView[T]) FindUniqueRecord(ctx context.Context, args query.FindUniqueArgs) (*query.Record, error) {
	row, err := v.d.FindUnique(ctx, args)
	if err != nil || row == nil {
		return nil, err
	}
	return query.Project(v.d.shape(args.Select, args.Include, args.Omit), row), nil
}

func (v *modelView[T]) Count(ctx context.Context, args query.CountArgs) (int64, error) {
	return v.d.Count(ctx, args)
}

func (v *modelView[T]) Aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error) {
	return v.d.Aggregate(ctx, args)
}

func (v *modelView[T]) GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.GroupByRow, error) {
	return v.d.GroupBy(ctx, args)
}
