package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/http/response"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/services"
)

const maxUploadMemory = 8 << 20

type contentBody struct {
	Format       *string                `json:"format"`
	Body         *string                `json:"body"`
	Instructions *string                `json:"instructions"`
	MaxScore     *int                   `json:"max_score"`
	DueInDays    *int                   `json:"due_in_days"`
	Questions    []catalog.QuizQuestion `json:"questions"`
	PassingScore *int                   `json:"passing_score"`
}

func (b contentBody) input() domainagg.ContentInput {
	return domainagg.ContentInput{
		Format:       b.Format,
		Body:         b.Body,
		Instructions: b.Instructions,
		MaxScore:     b.MaxScore,
		DueInDays:    b.DueInDays,
		Questions:    b.Questions,
		PassingScore: b.PassingScore,
	}
}

type LessonContentHandler struct {
	log  *logger.Logger
	svc  services.CatalogService
	spec catalog.LevelSpec
}

func NewLessonContentHandler(log *logger.Logger, svc services.CatalogService) *LessonContentHandler {
	return &LessonContentHandler{
		log:  log.With("handler", "LessonContentHandler"),
		svc:  svc,
		spec: svc.Hierarchy().MustSpec(catalog.LevelLesson),
	}
}

func (h *LessonContentHandler) fail(c *gin.Context, op string, id uuid.UUID, err error) {
	response.RespondAggregateError(c, h.log, op, string(catalog.LevelLesson), id.String(), err)
}

// GET /api/lessons/:id/content
func (h *LessonContentHandler) GetContent(c *gin.Context) {
	id, ok := parseID(c, h.spec)
	if !ok {
		return
	}
	view, err := h.svc.GetLessonContent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "catalog.get_content", id, err)
		return
	}
	response.RespondOK(c, "Lesson content retrieved", view)
}

// PUT /api/lessons/:id/content
func (h *LessonContentHandler) UpdateContent(c *gin.Context) {
	id, ok := parseID(c, h.spec)
	if !ok {
		return
	}
	var body contentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.UpdateLessonContent(c.Request.Context(), domainagg.UpdateContentInput{LessonID: id, Content: body.input()})
	if err != nil {
		h.fail(c, "catalog.update_content", id, err)
		return
	}
	response.RespondOK(c, "Lesson content updated", gin.H{
		"lessonId": res.LessonID,
		"type":     res.Type,
		"payload":  res.Payload,
	})
}

// POST /api/lessons/:id/pdf (multipart field "file")
func (h *LessonContentHandler) UploadPdf(c *gin.Context) {
	id, ok := parseID(c, h.spec)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(c, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("missing file"))
		return
	}
	defer file.Close()

	res, err := h.svc.UploadLessonPdf(c.Request.Context(), services.UploadPdfInput{
		LessonID:  id,
		FileName:  header.Filename,
		SizeBytes: header.Size,
		Body:      file,
	})
	if err != nil {
		h.fail(c, "catalog.upload_pdf", id, err)
		return
	}
	response.RespondCreated(c, "Lesson pdf uploaded", gin.H{
		"lessonId": res.LessonID,
		"type":     res.Type,
		"payload":  res.Payload,
	})
}

// GET /api/lessons/:id/pdf
func (h *LessonContentHandler) DownloadPdf(c *gin.Context) {
	id, ok := parseID(c, h.spec)
	if !ok {
		return
	}
	doc, rc, err := h.svc.OpenLessonPdf(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "catalog.download_pdf", id, err)
		return
	}
	defer rc.Close()

	name := doc.FileName
	if name == "" {
		name = id.String() + ".pdf"
	}
	c.Header("Content-Type", doc.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	if doc.SizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Warn("PDF stream interrupted", "lesson_id", id, "error", err)
	}
}
