package repository

import (
	"context"

	"github.com/oksasatya/biolink/internal/domain/entity"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/schema"
)

// Delegate is the operation set of one model. Reads that find nothing return
// (nil, nil); the OrThrow variants return an error matching dberr.ErrNotFound.
type Delegate[T any] interface {
	FindUnique(ctx context.Context, args query.FindUniqueArgs) (*T, error)
	FindUniqueOrThrow(ctx context.Context, args query.FindUniqueArgs) (*T, error)
	FindFirst(ctx context.Context, args query.FindManyArgs) (*T, error)
	FindFirstOrThrow(ctx context.Context, args query.FindManyArgs) (*T, error)
	FindMany(ctx context.Context, args query.FindManyArgs) ([]T, error)

	Create(ctx context.Context, args query.CreateArgs) (*T, error)
	CreateMany(ctx context.Context, args query.CreateManyArgs) (query.BatchPayload, error)
	CreateManyAndReturn(ctx context.Context, args query.CreateManyArgs) ([]T, error)
	Update(ctx context.Context, args query.UpdateArgs) (*T, error)
	UpdateMany(ctx context.Context, args query.UpdateManyArgs) (query.BatchPayload, error)
	UpdateManyAndReturn(ctx context.Context, args query.UpdateManyArgs) ([]T, error)
	Upsert(ctx context.Context, args query.UpsertArgs) (*T, error)
	Delete(ctx context.Context, args query.DeleteArgs) (*T, error)
	DeleteMany(ctx context.Context, args query.DeleteManyArgs) (query.BatchPayload, error)

	Count(ctx context.Context, args query.CountArgs) (int64, error)
	Aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error)
	GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.GroupByRow, error)
}

type (
	UserDelegate            = Delegate[entity.User]
	CosmeticDelegate        = Delegate[entity.Cosmetic]
	LinkDelegate            = Delegate[entity.Link]
	LabelDelegate           = Delegate[entity.Label]
	SocialIconDelegate      = Delegate[entity.SocialIcon]
	BackgroundColorDelegate = Delegate[entity.BackgroundColor]
	NeonColorDelegate       = Delegate[entity.NeonColor]
	StatusbarDelegate       = Delegate[entity.Statusbar]
)

// ModelDelegate is the untyped view of a model used by tooling. Results are
// projected records carrying only the requested keys.
type ModelDelegate interface {
	Model() *schema.Model
	FindManyRecords(ctx context.Context, args query.FindManyArgs) ([]*query.Record, error)
	FindUniqueRecord(ctx context.Context, args query.FindUniqueArgs) (*query.Record, error)
	Count(ctx context.Context, args query.CountArgs) (int64, error)
	Aggregate(ctx context.Context, args query.AggregateArgs) (*query.AggregateResult, error)
	GroupBy(ctx context.Context, args query.GroupByArgs) ([]query.GroupByRow, error)
}
