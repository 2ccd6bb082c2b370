package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/http/response"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/pagination"
	"github.com/yungbote/coursecatalog-backend/internal/services"
)

// CatalogHandler serves the same route set for every hierarchy level.
type CatalogHandler struct {
	log *logger.Logger
	svc services.CatalogService
}

func NewCatalogHandler(log *logger.Logger, svc services.CatalogService) *CatalogHandler {
	return &CatalogHandler{log: log.With("handler", "CatalogHandler"), svc: svc}
}

// Register mounts /<route> for every level on rg.
func (h *CatalogHandler) Register(rg *gin.RouterGroup) {
	hier := h.svc.Hierarchy()
	for _, level := range hier.Levels() {
		spec := hier.MustSpec(level)
		g := rg.Group("/" + spec.Route)
		g.POST("", h.Create(spec))
		g.GET("", h.List(spec))
		g.PATCH("/positions", h.Reposition(spec))
		g.PATCH("/status", h.BulkChangeStatus(spec))
		g.GET("/:id", h.Get(spec))
		g.PATCH("/:id", h.Update(spec))
		g.PATCH("/:id/status", h.ChangeStatus(spec))
		g.GET("/:id/impact", h.Impact(spec))
		g.DELETE("/:id", h.SoftDelete(spec))
		g.DELETE("/:id/permanent", h.HardDelete(spec))
		g.POST("/:id/restore", h.Restore(spec))
	}
}

type nodeFieldsBody struct {
	Title           *string `json:"title" binding:"omitempty,max=200"`
	Description     *string `json:"description"`
	IconURL         *string `json:"icon_url" binding:"omitempty,url"`
	CourseLevel     *string `json:"level" binding:"omitempty,max=32"`
	Language        *string `json:"language" binding:"omitempty,max=16"`
	DurationMinutes *int    `json:"duration_minutes"`
	URL             *string `json:"url" binding:"omitempty,url"`
	Kind            *string `json:"kind" binding:"omitempty,max=32"`
}

func (b nodeFieldsBody) fields() domainagg.NodeFields {
	return domainagg.NodeFields{
		Title:           b.Title,
		Description:     b.Description,
		IconURL:         b.IconURL,
		CourseLevel:     b.CourseLevel,
		Language:        b.Language,
		DurationMinutes: b.DurationMinutes,
		URL:             b.URL,
		Kind:            b.Kind,
	}
}

type createBody struct {
	nodeFieldsBody
	ParentID *uuid.UUID   `json:"parent_id"`
	Position *int         `json:"position"`
	Type     string       `json:"type"`
	Content  *contentBody `json:"content"`
}

type statusBody struct {
	Status lifecycle.Status `json:"status" binding:"required,lifecycle_status"`
}

type bulkStatusBody struct {
	IDs    []uuid.UUID      `json:"ids" binding:"required,min=1,max=500"`
	Status lifecycle.Status `json:"status" binding:"required,lifecycle_status"`
}

type positionEntryBody struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
}

type positionsBody struct {
	Positions []positionEntryBody `json:"positions" binding:"required,min=1"`
}

type listQueryParams struct {
	Page           int    `form:"page" binding:"omitempty,gte=1"`
	Limit          int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
	ParentID       string `form:"parent_id" binding:"omitempty,uuid"`
	Status         string `form:"status" binding:"omitempty,lifecycle_status"`
	IncludeDeleted bool   `form:"include_deleted"`
}

func badRequest(c *gin.Context, err error) {
	response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeValidation), err)
}

func parseID(c *gin.Context, spec catalog.LevelSpec) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid %s id", spec.Label))
		return uuid.Nil, false
	}
	return id, true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (h *CatalogHandler) fail(c *gin.Context, op string, spec catalog.LevelSpec, id uuid.UUID, err error) {
	idStr := ""
	if id != uuid.Nil {
		idStr = id.String()
	}
	response.RespondAggregateError(c, h.log, op, string(spec.Level), idStr, err)
}

// POST /api/<route>
func (h *CatalogHandler) Create(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		in := domainagg.CreateNodeInput{
			Level:    spec.Level,
			ParentID: body.ParentID,
			Fields:   body.fields(),
			Position: body.Position,
		}
		if spec.HasContent {
			t, err := catalog.ParseLessonType(body.Type)
			if err != nil {
				badRequest(c, err)
				return
			}
			in.LessonType = t
		} else if body.Type != "" {
			badRequest(c, fmt.Errorf("%s does not take a type", spec.Label))
			return
		}
		if body.Content != nil {
			content := body.Content.input()
			in.Content = &content
		}
		res, err := h.svc.Create(c.Request.Context(), in)
		if err != nil {
			h.fail(c, "catalog.create", spec, uuid.Nil, err)
			return
		}
		response.RespondCreated(c, capitalize(spec.Label)+" created", res.Entity)
	}
}

// GET /api/<route>
func (h *CatalogHandler) List(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params listQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			badRequest(c, err)
			return
		}
		q := catalogrepo.ListQuery{
			IncludeDeleted: params.IncludeDeleted,
			Page:           pagination.Params{Page: params.Page, Limit: params.Limit},
		}
		if params.ParentID != "" {
			pid := uuid.MustParse(params.ParentID)
			q.ParentID = &pid
		}
		if params.Status != "" {
			q.Status = lifecycle.Ptr(lifecycle.Status(params.Status))
		}
		rows, meta, err := h.svc.List(c.Request.Context(), spec.Level, q)
		if err != nil {
			h.fail(c, "catalog.list", spec, uuid.Nil, err)
			return
		}
		links := pagination.BuildLinks(c.Request.URL.Path, c.Request.URL.Query(), meta)
		response.RespondPage(c, capitalize(spec.Plural)+" retrieved", rows, meta, links)
	}
}

// GET /api/<route>/:id
func (h *CatalogHandler) Get(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		includeDeleted := c.Query("include_deleted") == "true"
		e, err := h.svc.Get(c.Request.Context(), spec.Level, id, includeDeleted)
		if err != nil {
			h.fail(c, "catalog.get", spec, id, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Label)+" retrieved", e)
	}
}

// PATCH /api/<route>/:id
func (h *CatalogHandler) Update(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		var body nodeFieldsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		res, err := h.svc.Update(c.Request.Context(), domainagg.UpdateNodeInput{Level: spec.Level, ID: id, Fields: body.fields()})
		if err != nil {
			h.fail(c, "catalog.update", spec, id, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Label)+" updated", res.Entity)
	}
}

// PATCH /api/<route>/:id/status
func (h *CatalogHandler) ChangeStatus(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		var body statusBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		res, err := h.svc.ChangeStatus(c.Request.Context(), domainagg.ChangeStatusInput{Level: spec.Level, ID: id, Status: body.Status})
		if err != nil {
			h.fail(c, "catalog.change_status", spec, id, err)
			return
		}
		response.RespondOK(c, fmt.Sprintf("%s status changed to %s", capitalize(spec.Label), res.To), gin.H{
			"entity":         res.Entity,
			"from":           res.From,
			"to":             res.To,
			"impact":         res.Impact,
			"cascadeUpdated": res.CascadeUpdated,
		})
	}
}

// PATCH /api/<route>/status
func (h *CatalogHandler) BulkChangeStatus(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body bulkStatusBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		res, err := h.svc.BulkChangeStatus(c.Request.Context(), domainagg.BulkChangeStatusInput{Level: spec.Level, IDs: body.IDs, Status: body.Status})
		if err != nil {
			h.fail(c, "catalog.bulk_change_status", spec, uuid.Nil, err)
			return
		}
		s := res.Summary
		response.RespondOK(c, fmt.Sprintf("%d of %d %s updated", s.Successful, s.Requested, spec.Plural), gin.H{
			"status":  res.Status,
			"summary": s,
		})
	}
}

// GET /api/<route>/:id/impact?status=
func (h *CatalogHandler) Impact(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		var q struct {
			Status string `form:"status" binding:"required,lifecycle_status"`
		}
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		prev, err := h.svc.PreviewStatusChange(c.Request.Context(), spec.Level, id, lifecycle.Status(q.Status))
		if err != nil {
			h.fail(c, "catalog.impact", spec, id, err)
			return
		}
		response.RespondOK(c, prev.Impact.Summary, prev)
	}
}

// DELETE /api/<route>/:id?cascade=true
func (h *CatalogHandler) SoftDelete(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		cascade := c.Query("cascade") == "true"
		res, err := h.svc.SoftDelete(c.Request.Context(), domainagg.SoftDeleteInput{Level: spec.Level, ID: id, Cascade: cascade})
		if err != nil {
			h.fail(c, "catalog.soft_delete", spec, id, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Label)+" deleted", gin.H{
			"id":       res.ID,
			"batchId":  res.BatchID,
			"cascaded": res.Cascaded,
		})
	}
}

// DELETE /api/<route>/:id/permanent
func (h *CatalogHandler) HardDelete(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		res, err := h.svc.HardDelete(c.Request.Context(), domainagg.HardDeleteInput{Level: spec.Level, ID: id})
		if err != nil {
			h.fail(c, "catalog.hard_delete", spec, id, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Label)+" permanently deleted", gin.H{
			"id":         res.ID,
			"deleted":    res.Deleted,
			"renumbered": res.Renumbered,
		})
	}
}

// POST /api/<route>/:id/restore
func (h *CatalogHandler) Restore(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, spec)
		if !ok {
			return
		}
		res, err := h.svc.Restore(c.Request.Context(), domainagg.RestoreInput{Level: spec.Level, ID: id})
		if err != nil {
			h.fail(c, "catalog.restore", spec, id, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Label)+" restored", gin.H{
			"entity":       res.Entity,
			"restored":     res.Restored,
			"repositioned": res.Repositioned,
		})
	}
}

// PATCH /api/<route>/positions
func (h *CatalogHandler) Reposition(spec catalog.LevelSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body positionsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
		entries := make([]domainagg.PositionEntry, 0, len(body.Positions))
		for _, p := range body.Positions {
			entries = append(entries, domainagg.PositionEntry{ID: p.ID, Position: p.Position})
		}
		res, err := h.svc.Reposition(c.Request.Context(), domainagg.RepositionInput{Level: spec.Level, Entries: entries})
		if err != nil {
			h.fail(c, "catalog.reposition", spec, uuid.Nil, err)
			return
		}
		response.RespondOK(c, capitalize(spec.Plural)+" reordered", gin.H{
			"parentId": res.ParentID,
			"updated":  res.Updated,
		})
	}
}
