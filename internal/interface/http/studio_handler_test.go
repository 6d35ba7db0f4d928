package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
	"github.com/oksasatya/biolink/pkg/validation"
)

type fakeView struct {
	model *schema.Model
	rows  []*query.Record
	count int64
	err   error

	findArgs   query.FindManyArgs
	uniqueArgs query.FindUniqueArgs
	countArgs  query.CountArgs
	aggArgs    query.AggregateArgs
	groupArgs  query.GroupByArgs
}

func (v *fakeView) Model() *schema.Model { return v.model }

func (v *fakeView) FindManyRecords(_ context.Context, args query.FindManyArgs) ([]*query.Record, error) {
	v.findArgs = args
	return v.rows, v.err
}

func (v *fakeView) FindUniqueRecord(_ context.Context, args query.FindUniqueArgs) (*query.Record, error) {
	v.uniqueArgs = args
	if len(v.rows) == 0 {
		return nil, v.err
	}
	return v.rows[0], v.err
}

func (v *fakeView) Count(_ context.Context, args query.CountArgs) (int64, error) {
	v.countArgs = args
	return v.count, v.err
}

func (v *fakeView) Aggregate(_ context.Context, args query.AggregateArgs) (*query.AggregateResult, error) {
	v.aggArgs = args
	return &query.AggregateResult{Count: map[string]int64{query.AllKey: v.count}}, v.err
}

func (v *fakeView) GroupBy(_ context.Context, args query.GroupByArgs) ([]query.GroupByRow, error) {
	v.groupArgs = args
	return []query.GroupByRow{{
		Keys:            map[string]any{"role": "USER"},
		AggregateResult: query.AggregateResult{Count: map[string]int64{query.AllKey: v.count}},
	}}, v.err
}

type models map[string]*fakeView

func (m models) Model(name string) (repository.ModelDelegate, bool) {
	v, ok := m[name]
	return v, ok
}

type searcher struct {
	q    string
	size int
	docs []search.ProfileDoc
}

func (s *searcher) SearchProfiles(_ context.Context, q string, size int) ([]search.ProfileDoc, error) {
	s.q, s.size = q, size
	return s.docs, nil
}

type envelope struct {
	Status  int               `json:"status"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Meta    map[string]any    `json:"meta"`
	Error   map[string]string `json:"error"`
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	validation.Init()
	os.Exit(m.Run())
}

func newStudio(h *StudioHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/studio")
	g.GET("/models", h.ListModels)
	g.GET("/search", h.SearchProfiles)
	g.GET("/:model", h.FindMany)
	g.GET("/:model/count", h.Count)
	g.GET("/:model/aggregate", h.Aggregate)
	g.GET("/:model/groupBy", h.GroupBy)
	g.GET("/:model/:id", h.FindUnique)
	return r
}

func get(t *testing.T, r http.Handler, target string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func record(pairs ...any) *query.Record {
	rec := query.NewRecord()
	for i := 0; i < len(pairs); i += 2 {
		rec.Set(pairs[i].(string), pairs[i+1])
	}
	return rec
}

func TestStudioListModels(t *testing.T) {
	r := newStudio(NewStudioHandler(models{}, nil, nil, 0))
	code, env := get(t, r, "/studio/models")
	require.Equal(t, http.StatusOK, code)

	var out []modelInfo
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out, len(schema.Models()))
	assert.Equal(t, "BackgroundColor", out[0].Name)

	var user modelInfo
	for _, m := range out {
		if m.Name == "User" {
			user = m
		}
	}
	assert.Equal(t, "users", user.Table)
	assert.NotEmpty(t, user.Relations)
	assert.Contains(t, user.Fields, fieldInfo{Name: "id", Kind: "String", Unique: true, ID: true})
}

func TestStudioFindMany(t *testing.T) {
	users := &fakeView{model: schema.User, rows: []*query.Record{record("id", "u1", "userName", "ana")}}
	r := newStudio(NewStudioHandler(models{"User": users}, nil, nil, 20))

	code, env := get(t, r, "/studio/User?views__gte=5&orderBy=views:desc&take=500&omit=password")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `[{"id":"u1","userName":"ana"}]`, string(env.Data))
	assert.Equal(t, float64(20), env.Meta["take"])

	assert.Equal(t, query.Cond{Field: "views", Op: query.Gte, Value: int64(5)}, users.findArgs.Where)
	assert.Equal(t, 20, *users.findArgs.Take)
	assert.Equal(t, []string{"password"}, users.findArgs.Omit)
}

func TestStudioErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	users := &fakeView{model: schema.User}
	broken := &fakeView{model: schema.Link, err: errors.New("connection refused")}
	rejected := &fakeView{model: schema.Label, err: &dberr.ValidationError{Model: "Label", Field: "color", Reason: "too long"}}
	r := newStudio(NewStudioHandler(models{"User": users, "Link": broken, "Label": rejected}, nil, logger, 0))
	hidden := map[string]string{"password": "field is not readable"}

	tests := []struct {
		name    string
		target  string
		status  int
		message string
		detail  map[string]string
	}{
		{name: "unknown model", target: "/studio/Pet", status: http.StatusNotFound, message: "unknown model", detail: map[string]string{"model": "Pet"}},
		{name: "unknown field", target: "/studio/User?nope=1", status: http.StatusBadRequest, message: "invalid query", detail: map[string]string{"nope": "unknown field"}},
		{name: "bad take", target: "/studio/User?take=0", status: http.StatusBadRequest, message: "invalid query"},
		{name: "record missing", target: "/studio/User/u9", status: http.StatusNotFound, message: "record not found"},
		{name: "delegate validation", target: "/studio/Label/count", status: http.StatusBadRequest, message: "invalid query", detail: map[string]string{"color": "too long"}},
		{name: "storage failure", target: "/studio/Link/count", status: http.StatusInternalServerError, message: "query failed"},
		{name: "hidden select", target: "/studio/User?select=email,password", status: http.StatusBadRequest, message: "invalid query", detail: hidden},
		{name: "hidden unique select", target: "/studio/User/u1?select=password", status: http.StatusBadRequest, message: "invalid query", detail: hidden},
		{name: "hidden filter", target: "/studio/User/count?password__startsWith=%242a", status: http.StatusBadRequest, message: "invalid query", detail: hidden},
		{name: "hidden aggregate", target: "/studio/User/aggregate?max=password", status: http.StatusBadRequest, message: "invalid query", detail: hidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := get(t, r, tt.target)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			if tt.detail != nil {
				assert.Equal(t, tt.detail, env.Error)
			}
		})
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "studio query failed", hook.LastEntry().Message)
	assert.Nil(t, users.findArgs.Select, "hidden fields never reach the delegate")
	assert.Nil(t, users.uniqueArgs.Select)
}

func TestStudioFindUnique(t *testing.T) {
	links := &fakeView{model: schema.Link, rows: []*query.Record{record("id", "l1", "url", "https://a.example")}}
	r := newStudio(NewStudioHandler(models{"Link": links}, nil, nil, 0))

	code, env := get(t, r, "/studio/Link/l1?select=url")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"l1","url":"https://a.example"}`, string(env.Data))
	assert.Equal(t, query.ByID("l1"), links.uniqueArgs.Where)
	assert.Equal(t, query.Fields("url"), links.uniqueArgs.Select)
}

func TestStudioCountAggregateGroupBy(t *testing.T) {
	users := &fakeView{model: schema.User, count: 7}
	r := newStudio(NewStudioHandler(models{"User": users}, nil, nil, 0))

	code, env := get(t, r, "/studio/User/count?role=ADMIN")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":7}`, string(env.Data))
	assert.Equal(t, query.Cond{Field: "role", Op: query.Equals, Value: "ADMIN"}, users.countArgs.Where)

	code, _ = get(t, r, "/studio/User/aggregate?avg=views")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"views"}, users.aggArgs.Avg)

	code, _ = get(t, r, "/studio/User/groupBy?by=role")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"role"}, users.groupArgs.By)
	assert.Equal(t, []string{query.AllKey}, users.groupArgs.Count)
}

func TestStudioSearchProfiles(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := newStudio(NewStudioHandler(models{}, nil, nil, 0))
		code, _ := get(t, r, "/studio/search?q=ana")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("missing query", func(t *testing.T) {
		r := newStudio(NewStudioHandler(models{}, &searcher{}, nil, 0))
		code, env := get(t, r, "/studio/search")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, env.Error, "q")
	})

	t.Run("results", func(t *testing.T) {
		s := &searcher{docs: []search.ProfileDoc{{ID: "u1", UserName: "ana", Role: "USER"}}}
		r := newStudio(NewStudioHandler(models{}, s, nil, 0))
		code, env := get(t, r, "/studio/search?q=ana&size=5")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ana", s.q)
		assert.Equal(t, 5, s.size)

		var docs []search.ProfileDoc
		require.NoError(t, json.Unmarshal(env.Data, &docs))
		require.Len(t, docs, 1)
		assert.Equal(t, "ana", docs[0].UserName)
	})
}
