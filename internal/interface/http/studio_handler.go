package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/biolink/internal/domain/dberr"
	"github.com/oksasatya/biolink/internal/domain/query"
	"github.com/oksasatya/biolink/internal/domain/repository"
	"github.com/oksasatya/biolink/internal/domain/schema"
	"github.com/oksasatya/biolink/internal/infrastructure/search"
	"github.com/oksasatya/biolink/pkg/helpers"
	"github.com/oksasatya/biolink/pkg/response"
	"github.com/oksasatya/biolink/pkg/validation"
)

// ModelSource resolves the untyped view of a model.
type ModelSource interface {
	Model(name string) (repository.ModelDelegate, bool)
}

// ProfileSearcher is implemented by application.ProfileIndexer.
type ProfileSearcher interface {
	SearchProfiles(ctx context.Context, q string, size int) ([]search.ProfileDoc, error)
}

// StudioHandler serves the read-only data browser. Hidden fields can never
// be selected, filtered, sorted or aggregated through it.
type StudioHandler struct {
	Models  ModelSource
	Search  ProfileSearcher
	Logger  *logrus.Logger
	MaxTake int
	Hidden  query.GlobalOmit
}

func NewStudioHandler(models ModelSource, searcher ProfileSearcher, logger *logrus.Logger, maxTake int) *StudioHandler {
	if maxTake <= 0 {
		maxTake = 100
	}
	return &StudioHandler{
		Models:  models,
		Search:  searcher,
		Logger:  logger,
		MaxTake: maxTake,
		Hidden:  query.GlobalOmit{schema.User.Name: {"password"}},
	}
}

type searchRequest struct {
	Q    string `form:"q" json:"q" binding:"required,max=200"`
	Size int    `form:"size" json:"size" binding:"omitempty,min=1,max=50"`
}

type fieldInfo struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Optional bool     `json:"optional"`
	Unique   bool     `json:"unique"`
	ID       bool     `json:"id,omitempty"`
	Values   []string `json:"values,omitempty"`
}

type relationInfo struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	List   bool   `json:"list"`
}

type modelInfo struct {
	Name      string         `json:"name"`
	Table     string         `json:"table"`
	Fields    []fieldInfo    `json:"fields"`
	Relations []relationInfo `json:"relations"`
}

func describe(m *schema.Model) modelInfo {
	info := modelInfo{Name: m.Name, Table: m.Table}
	for _, f := range m.Fields {
		info.Fields = append(info.Fields, fieldInfo{
			Name:     f.Name,
			Kind:     f.Kind.String(),
			Optional: f.Optional,
			Unique:   f.IsUnique || f.IsID,
			ID:       f.IsID,
			Values:   f.EnumValues,
		})
	}
	for _, r := range m.Relations {
		info.Relations = append(info.Relations, relationInfo{Name: r.Name, Target: r.Target, List: r.Cardinality == schema.ToMany})
	}
	return info
}

// fail writes err with the status matching its kind.
func (h *StudioHandler) fail(c *gin.Context, err error) {
	var verr *dberr.ValidationError
	switch {
	case errors.As(err, &verr):
		response.Error[any](c, http.StatusBadRequest, "invalid query", map[string]string{verr.Field: verr.Reason})
	case dberr.IsNotFound(err):
		response.Error[any](c, http.StatusNotFound, "record not found", nil)
	default:
		if h.Logger != nil {
			helpers.LogError(h.Logger, "studio query failed", err, logrus.Fields{"path": c.FullPath(), "request_id": c.GetString("request_id")})
		}
		response.Error[any](c, http.StatusInternalServerError, "query failed", nil)
	}
}

// model resolves the :model parameter and rejects queries touching hidden
// fields. It writes the response itself when it returns false.
func (h *StudioHandler) model(c *gin.Context) (repository.ModelDelegate, bool) {
	view, ok := h.Models.Model(c.Param("model"))
	if !ok {
		response.Error[any](c, http.StatusNotFound, "unknown model", map[string]string{"model": c.Param("model")})
		return nil, false
	}
	m := view.Model()
	if err := CheckHidden(m, c.Request.URL.Query(), h.Hidden[m.Name]); err != nil {
		h.fail(c, err)
		return nil, false
	}
	return view, true
}

func (h *StudioHandler) ListModels(c *gin.Context) {
	models := schema.Models()
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, describe(m))
	}
	response.Success(c, http.StatusOK, out, "models", nil)
}

func (h *StudioHandler) FindMany(c *gin.Context) {
	view, ok := h.model(c)
	if !ok {
		return
	}
	args, err := ParseFindMany(view.Model(), c.Request.URL.Query(), h.MaxTake)
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := view.FindManyRecords(c.Request.Context(), args)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows, "records", map[string]any{"take": *args.Take, "skip": args.Skip})
}

func (h *StudioHandler) FindUnique(c *gin.Context) {
	view, ok := h.model(c)
	if !ok {
		return
	}
	values := c.Request.URL.Query()
	args := query.FindUniqueArgs{Where: query.ByID(c.Param("id")), Omit: csv(values.Get("omit"))}
	if sel := csv(values.Get("select")); len(sel) > 0 {
		args.Select = query.Fields(sel...)
	}
	if inc := csv(values.Get("include")); len(inc) > 0 {
		args.Include = query.Relations(inc...)
	}
	rec, err := view.FindUniqueRecord(c.Request.Context(), args)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rec == nil {
		response.Error[any](c, http.StatusNotFound, "record not found", nil)
		return
	}
	response.Success(c, http.StatusOK, rec, "record", nil)
}

func (h *StudioHandler) Count(c *gin.Context) {
	view, ok := h.model(c)
	if !ok {
		return
	}
	where, err := ParseWhere(view.Model(), c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	n, err := view.Count(c.Request.Context(), query.CountArgs{Where: where})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": n}, "count", nil)
}

func (h *StudioHandler) Aggregate(c *gin.Context) {
	view, ok := h.model(c)
	if !ok {
		return
	}
	args, err := ParseAggregate(view.Model(), c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := view.Aggregate(c.Request.Context(), args)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res, "aggregate", nil)
}

func (h *StudioHandler) GroupBy(c *gin.Context) {
	view, ok := h.model(c)
	if !ok {
		return
	}
	args, err := ParseGroupBy(view.Model(), c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	rows, err := view.GroupBy(c.Request.Context(), args)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows, "groups", nil)
}

func (h *StudioHandler) SearchProfiles(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid query", validation.ToDetails(err))
		return
	}
	if h.Search == nil {
		response.Error[any](c, http.StatusServiceUnavailable, "search is not enabled", nil)
		return
	}
	docs, err := h.Search.SearchProfiles(c.Request.Context(), req.Q, req.Size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, docs, "profiles", nil)
}
