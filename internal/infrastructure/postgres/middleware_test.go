package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/pkg/helpers"
)

func TestMiddlewareChain(t *testing.T) {
	ctx := context.Background()
	var trace []string
	record := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, p Params) (any, error) {
				tag := name + ":" + string(p.Action)
				if p.InTransaction {
					tag += ":tx"
				}
				trace = append(trace, tag)
				return next(ctx, p)
			}
		}
	}

	db := &fakeDB{}
	c, _ := newTestClient(db, WithMiddleware(record("outer")))
	c.Use(record("inner"))
	db.push(countResult(0))

	_, err := c.User().Count(ctx, query.CountArgs{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:count", "inner:count"}, trace)

	trace = nil
	err = c.Transaction(ctx, func(tx repository.Client) error {
		_, err := tx.Link().FindMany(ctx, query.FindManyArgs{})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:findMany:tx", "inner:findMany:tx"}, trace)
}

func TestMiddlewareRewritesArgs(t *testing.T) {
	ctx := context.Background()
	onlyActive := func(next Handler) Handler {
		return func(ctx context.Context, p Params) (any, error) {
			if a, ok := p.Args.(query.CountArgs); ok {
				a.Where = query.UserFields.Views.Gt(0)
				p.Args = a
			}
			return next(ctx, p)
		}
	}
	db := &fakeDB{}
	c, _ := newTestClient(db, WithMiddleware(onlyActive))
	db.push(countResult(4))
	_, err := c.User().Count(ctx, query.CountArgs{})
	require.NoError(t, err)
	assert.Contains(t, db.last().sql, `t0."views" > $1`)
}

func TestMiddlewareShortCircuit(t *testing.T) {
	deny := func(Handler) Handler {
		return func(context.Context, Params) (any, error) {
			return nil, assert.AnError
		}
	}
	db := &fakeDB{}
	c, _ := newTestClient(db, WithMiddleware(deny))
	_, err := c.User().FindMany(context.Background(), query.FindManyArgs{})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, db.sqls())
}

func TestLoggingMiddleware(t *testing.T) {
	ctx := context.Background()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	db := &fakeDB{}
	c, _ := newTestClient(db, WithMiddleware(LoggingMiddleware(logger)))
	db.push(countResult(1))

	_, err := c.User().Count(ctx, query.CountArgs{})
	require.NoError(t, err)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "User", entry.Data["model"])
	assert.Equal(t, ActionCount, entry.Data["action"])
	assert.Contains(t, entry.Data, "duration_ms")

	_, err = c.User().FindUnique(ctx, query.FindUniqueArgs{Where: query.Unique{"bio": "x"}})
	require.Error(t, err)
	entry = hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, ActionFindUnique, entry.Data["action"])
}

func TestPasswordMiddleware(t *testing.T) {
	var seen any
	capture := func(_ context.Context, p Params) (any, error) {
		seen = p.Args
		return nil, nil
	}
	h := PasswordMiddleware()(capture)
	ctx := context.Background()

	t.Run("update", func(t *testing.T) {
		_, err := h(ctx, Params{Model: "User", Action: ActionUpdate, Args: query.UpdateArgs{Data: query.Data{"password": "correct horse"}}})
		require.NoError(t, err)
		hash := seen.(query.UpdateArgs).Data["password"].(string)
		assert.True(t, helpers.CompareHashAndPassword(hash, "correct horse"))
	})

	t.Run("upsert hashes both payloads", func(t *testing.T) {
		orig := query.Data{"password": "first password"}
		_, err := h(ctx, Params{Model: "User", Action: ActionUpsert, Args: query.UpsertArgs{
			Create: orig,
			Update: query.Data{"password": "second password"},
		}})
		require.NoError(t, err)
		a := seen.(query.UpsertArgs)
		assert.True(t, helpers.IsPasswordHash(a.Create["password"].(string)))
		assert.True(t, helpers.IsPasswordHash(a.Update["password"].(string)))
		assert.Equal(t, "first password", orig["password"])
	})

	t.Run("existing hash is kept", func(t *testing.T) {
		hash, err := helpers.HashPassword("correct horse")
		require.NoError(t, err)
		_, err = h(ctx, Params{Model: "User", Action: ActionCreateMany, Args: query.CreateManyArgs{Data: []query.Data{{"password": hash}}}})
		require.NoError(t, err)
		assert.Equal(t, hash, seen.(query.CreateManyArgs).Data[0]["password"])
	})

	t.Run("pointer password", func(t *testing.T) {
		pw := "correct horse"
		_, err := h(ctx, Params{Model: "User", Action: ActionCreate, Args: query.CreateArgs{Data: query.Data{"password": &pw}}})
		require.NoError(t, err)
		hash, ok := seen.(query.CreateArgs).Data["password"].(string)
		require.True(t, ok)
		assert.True(t, helpers.CompareHashAndPassword(hash, pw))
	})

	t.Run("user created through another model", func(t *testing.T) {
		user := query.Data{"userName": "ana", "email": "ana@example.com", "password": "correct horse"}
		_, err := h(ctx, Params{Model: "Cosmetic", Action: ActionCreate, Args: query.CreateArgs{Data: query.Data{
			"theme": "dark",
			"user":  query.CreateNested(user),
		}}})
		require.NoError(t, err)
		nested, ok := query.AsNested(seen.(query.CreateArgs).Data["user"])
		require.True(t, ok)
		require.Len(t, nested.Create, 1)
		assert.True(t, helpers.CompareHashAndPassword(nested.Create[0]["password"].(string), "correct horse"))
		assert.Equal(t, "correct horse", user["password"])
	})

	t.Run("other models untouched", func(t *testing.T) {
		args := query.CreateArgs{Data: query.Data{"password": "plain"}}
		_, err := h(ctx, Params{Model: "Link", Action: ActionCreate, Args: args})
		require.NoError(t, err)
		assert.Equal(t, args, seen)
	})
}

func TestValidationMiddleware(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{}
	c, _ := newTestClient(db, WithMiddleware(ValidationMiddleware(nil)))

	tests := []struct {
		name  string
		run   func() error
		field string
	}{
		{
			name: "email",
			run: func() error {
				_, err := c.User().Create(ctx, query.CreateArgs{Data: query.Data{
					"userName": "ana", "email": "not-an-email", "password": "correct horse",
				}})
				return err
			},
			field: "email",
		},
		{
			name: "range",
			run: func() error {
				_, err := c.User().UpdateMany(ctx, query.UpdateManyArgs{Data: query.Data{"profileOpacity": 150}})
				return err
			},
			field: "profileOpacity",
		},
		{
			name: "nested create rows",
			run: func() error {
				_, err := c.User().Create(ctx, query.CreateArgs{Data: query.Data{
					"userName": "ana", "email": "ana@example.com", "password": "correct horse",
					"statusbar": query.CreateNested(query.Data{"text": strings.Repeat("x", 300)}),
				}})
				return err
			},
			field: "text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			var ve *dberr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.NotEmpty(t, ve.Reason)
		})
	}
	assert.Empty(t, db.sqls())

	t.Run("number operations are skipped", func(t *testing.T) {
		_, err := c.User().UpdateMany(ctx, query.UpdateManyArgs{Data: query.Data{"views": query.Decrement(5)}})
		require.NoError(t, err)
	})
}
