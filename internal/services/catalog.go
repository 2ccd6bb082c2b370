package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/observability"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/pagination"
	"github.com/yungbote/coursecatalog-backend/internal/platform/gcp"
	"github.com/yungbote/coursecatalog-backend/internal/realtime"
	"github.com/yungbote/coursecatalog-backend/internal/realtime/bus"
)

const (
	opGet           = "catalog.get"
	opList          = "catalog.list"
	opImpact        = "catalog.impact"
	opGetContent    = "catalog.get_content"
	opUploadPdf     = "catalog.upload_pdf"
	opDownloadPdf   = "catalog.download_pdf"
	maxPdfSizeBytes = 50 << 20
)

// CatalogService is the entry point of the HTTP layer. Writes go through the
// catalog aggregate; after commit the service purges orphaned blobs and
// publishes change events.
type CatalogService interface {
	Hierarchy() *catalog.Hierarchy

	Get(ctx context.Context, level catalog.Level, id uuid.UUID, includeDeleted bool) (catalog.Entity, error)
	List(ctx context.Context, level catalog.Level, q catalogrepo.ListQuery) ([]catalog.Entity, pagination.Meta, error)
	PreviewStatusChange(ctx context.Context, level catalog.Level, id uuid.UUID, to lifecycle.Status) (ImpactPreview, error)

	Create(ctx context.Context, in domainagg.CreateNodeInput) (domainagg.NodeResult, error)
	Update(ctx context.Context, in domainagg.UpdateNodeInput) (domainagg.NodeResult, error)
	ChangeStatus(ctx context.Context, in domainagg.ChangeStatusInput) (domainagg.ChangeStatusResult, error)
	BulkChangeStatus(ctx context.Context, in domainagg.BulkChangeStatusInput) (domainagg.BulkChangeStatusResult, error)
	SoftDelete(ctx context.Context, in domainagg.SoftDeleteInput) (domainagg.SoftDeleteResult, error)
	Restore(ctx context.Context, in domainagg.RestoreInput) (domainagg.RestoreResult, error)
	HardDelete(ctx context.Context, in domainagg.HardDeleteInput) (domainagg.HardDeleteResult, error)
	Reposition(ctx context.Context, in domainagg.RepositionInput) (domainagg.RepositionResult, error)

	GetLessonContent(ctx context.Context, lessonID uuid.UUID) (LessonContentView, error)
	UpdateLessonContent(ctx context.Context, in domainagg.UpdateContentInput) (domainagg.ContentResult, error)
	UploadLessonPdf(ctx context.Context, in UploadPdfInput) (domainagg.ContentResult, error)
	OpenLessonPdf(ctx context.Context, lessonID uuid.UUID) (*catalog.LessonPdf, io.ReadCloser, error)
}

// ImpactPreview answers "what would happen" without writing anything.
type ImpactPreview struct {
	Level    catalog.Level      `json:"level"`
	ID       uuid.UUID          `json:"id"`
	From     lifecycle.Status   `json:"from"`
	To       lifecycle.Status   `json:"to"`
	Decision lifecycle.Decision `json:"decision"`
	Impact   lifecycle.Impact   `json:"impact"`
}

type LessonContentView struct {
	LessonID uuid.UUID          `json:"lessonId"`
	Type     catalog.LessonType `json:"type"`
	Payload  catalog.Payload    `json:"payload"`
}

type UploadPdfInput struct {
	LessonID  uuid.UUID
	FileName  string
	SizeBytes int64
	Body      io.Reader
}

type CatalogServiceDeps struct {
	Log       *logger.Logger
	Aggregate domainagg.CatalogAggregate
	Repos     *catalogrepo.Set
	// Blobs and Bus are optional; without them PDF uploads fail and events are dropped.
	Blobs   gcp.BlobStore
	Bus     bus.Bus
	Metrics *observability.Metrics
	Now     func() time.Time
}

type catalogService struct {
	log     *logger.Logger
	agg     domainagg.CatalogAggregate
	repos   *catalogrepo.Set
	blobs   gcp.BlobStore
	bus     bus.Bus
	metrics *observability.Metrics
	now     func() time.Time
}

func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Aggregate == nil {
		return nil, fmt.Errorf("catalog aggregate required")
	}
	if deps.Repos == nil || deps.Repos.Hierarchy == nil {
		return nil, fmt.Errorf("catalog repos required")
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &catalogService{
		log:     deps.Log.With("service", "CatalogService"),
		agg:     deps.Aggregate,
		repos:   deps.Repos,
		blobs:   deps.Blobs,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		now:     now,
	}, nil
}

func (s *catalogService) Hierarchy() *catalog.Hierarchy { return s.repos.Hierarchy }

func (s *catalogService) spec(op string, level catalog.Level) (catalog.LevelSpec, error) {
	spec, ok := s.repos.Hierarchy.Spec(level)
	if !ok {
		return catalog.LevelSpec{}, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unknown catalog level %q", level), nil)
	}
	return spec, nil
}

func (s *catalogService) Get(ctx context.Context, level catalog.Level, id uuid.UUID, includeDeleted bool) (catalog.Entity, error) {
	spec, err := s.spec(opGet, level)
	if err != nil {
		return nil, err
	}
	repo, err := s.repos.Entity(level)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, opGet, err)
	}
	e, err := repo.GetByID(dbctx.Context{Ctx: ctx}, id, includeDeleted)
	if err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInternal, opGet, err)
	}
	if e == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, opGet, fmt.Sprintf("%s %s not found", spec.Label, id), nil)
	}
	return e, nil
}

func (s *catalogService) List(ctx context.Context, level catalog.Level, q catalogrepo.ListQuery) ([]catalog.Entity, pagination.Meta, error) {
	if _, err := s.spec(opList, level); err != nil {
		return nil, pagination.Meta{}, err
	}
	if q.Status != nil && !q.Status.Valid() {
		return nil, pagination.Meta{}, domainagg.NewError(domainagg.CodeValidation, opList, fmt.Sprintf("unknown status %q", *q.Status), nil)
	}
	repo, err := s.repos.Entity(level)
	if err != nil {
		return nil, pagination.Meta{}, domainagg.Wrap(domainagg.CodeInternal, opList, err)
	}
	rows, meta, err := repo.List(dbctx.Context{Ctx: ctx}, q)
	if err != nil {
		return nil, pagination.Meta{}, domainagg.Wrap(domainagg.CodeInternal, opList, err)
	}
	return rows, meta, nil
}

// PreviewStatusChange runs the validator and the impact analyzer against the
// current rows. The outcome can go stale before a subsequent write.
func (s *catalogService) PreviewStatusChange(ctx context.Context, level catalog.Level, id uuid.UUID, to lifecycle.Status) (ImpactPreview, error) {
	spec, err := s.spec(opImpact, level)
	if err != nil {
		return ImpactPreview{}, err
	}
	if !to.Valid() {
		return ImpactPreview{}, domainagg.NewError(domainagg.CodeValidation, opImpact, fmt.Sprintf("unknown status %q", to), nil)
	}
	dbc := dbctx.Context{Ctx: ctx}
	nodes, err := s.repos.Node(level)
	if err != nil {
		return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
	}
	row, err := nodes.GetByID(dbc, id, catalogrepo.ReadOptions{})
	if err != nil {
		return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
	}
	if row == nil {
		return ImpactPreview{}, domainagg.NewError(domainagg.CodeNotFound, opImpact, fmt.Sprintf("%s %s not found", spec.Label, id), nil)
	}

	var parentStatus *lifecycle.Status
	parentName := ""
	if parentSpec, ok := s.repos.Hierarchy.Parent(level); ok {
		parentName = parentSpec.Label
		if row.ParentID != nil {
			parentNodes, err := s.repos.Node(parentSpec.Level)
			if err != nil {
				return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
			}
			parent, err := parentNodes.GetByID(dbc, *row.ParentID, catalogrepo.ReadOptions{IncludeDeleted: true})
			if err != nil {
				return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
			}
			if parent != nil {
				parentStatus = lifecycle.Ptr(parent.Status)
			}
		}
	}

	out := ImpactPreview{
		Level:    level,
		ID:       id,
		From:     row.Status,
		To:       to,
		Decision: lifecycle.ValidateStatusChange(parentStatus, row.Status, to, spec.Label, parentName),
	}

	var children []lifecycle.Status
	childName := "children"
	if childSpec, ok := s.repos.Hierarchy.Child(level); ok {
		childName = childSpec.Plural
		childNodes, err := s.repos.Node(childSpec.Level)
		if err != nil {
			return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
		}
		rows, err := childNodes.ListByParents(dbc, []uuid.UUID{id}, catalogrepo.ListOptions{})
		if err != nil {
			return ImpactPreview{}, domainagg.Wrap(domainagg.CodeInternal, opImpact, err)
		}
		for _, c := range rows {
			children = append(children, c.Status)
		}
	}
	out.Impact = lifecycle.AnalyzeParentChange(to, children, spec.Label, childName)
	return out, nil
}

func (s *catalogService) Create(ctx context.Context, in domainagg.CreateNodeInput) (domainagg.NodeResult, error) {
	res, err := s.agg.Create(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventEntityCreated, res.Level, res.Entity.Base().ID, res.Entity)
	return res, nil
}

func (s *catalogService) Update(ctx context.Context, in domainagg.UpdateNodeInput) (domainagg.NodeResult, error) {
	res, err := s.agg.Update(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventEntityUpdated, res.Level, res.Entity.Base().ID, res.Entity)
	return res, nil
}

func (s *catalogService) ChangeStatus(ctx context.Context, in domainagg.ChangeStatusInput) (domainagg.ChangeStatusResult, error) {
	res, err := s.agg.ChangeStatus(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventStatusChanged, res.Level, res.Entity.Base().ID, map[string]any{
		"from":           res.From,
		"to":             res.To,
		"cascadeUpdated": res.CascadeUpdated,
	})
	return res, nil
}

func (s *catalogService) BulkChangeStatus(ctx context.Context, in domainagg.BulkChangeStatusInput) (domainagg.BulkChangeStatusResult, error) {
	res, err := s.agg.BulkChangeStatus(ctx, in)
	if err != nil {
		var aggErr *domainagg.Error
		if errors.As(err, &aggErr) {
			if summary, ok := aggErr.Details.(domainagg.BulkSummary); ok {
				s.recordBulk(in.Level, summary)
			}
		}
		return res, err
	}
	s.recordBulk(res.Level, res.Summary)
	if res.Summary.Successful > 0 {
		s.publish(ctx, realtime.EventBulkStatusChanged, res.Level, uuid.Nil, map[string]any{
			"status":       res.Status,
			"succeededIds": res.Summary.SucceededIDs,
		})
	}
	return res, nil
}

func (s *catalogService) recordBulk(level catalog.Level, summary domainagg.BulkSummary) {
	l := string(level)
	s.metrics.AddBulkOutcome(l, "successful", summary.Successful)
	s.metrics.AddBulkOutcome(l, "skipped", summary.Skipped)
	s.metrics.AddBulkOutcome(l, "failed", summary.Failed)
	s.metrics.AddBulkOutcome(l, "not_found", summary.NotFound)
}

func (s *catalogService) SoftDelete(ctx context.Context, in domainagg.SoftDeleteInput) (domainagg.SoftDeleteResult, error) {
	res, err := s.agg.SoftDelete(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventEntityDeleted, res.Level, res.ID, map[string]any{
		"batchId":  res.BatchID,
		"cascaded": res.Cascaded,
	})
	return res, nil
}

func (s *catalogService) Restore(ctx context.Context, in domainagg.RestoreInput) (domainagg.RestoreResult, error) {
	res, err := s.agg.Restore(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventEntityRestored, res.Level, res.Entity.Base().ID, map[string]any{
		"restored":     res.Restored,
		"repositioned": res.Repositioned,
	})
	return res, nil
}

func (s *catalogService) HardDelete(ctx context.Context, in domainagg.HardDeleteInput) (domainagg.HardDeleteResult, error) {
	res, err := s.agg.HardDelete(ctx, in)
	if err != nil {
		return res, err
	}
	s.purgeBlobs(ctx, res.BlobKeys)
	s.publish(ctx, realtime.EventEntityPurged, res.Level, res.ID, map[string]any{
		"deleted":    res.Deleted,
		"renumbered": res.Renumbered,
	})
	return res, nil
}

func (s *catalogService) Reposition(ctx context.Context, in domainagg.RepositionInput) (domainagg.RepositionResult, error) {
	res, err := s.agg.Reposition(ctx, in)
	if err != nil {
		return res, err
	}
	s.publish(ctx, realtime.EventPositionsChanged, res.Level, uuid.Nil, map[string]any{
		"parentId": res.ParentID,
		"updated":  res.Updated,
	})
	return res, nil
}

func (s *catalogService) GetLessonContent(ctx context.Context, lessonID uuid.UUID) (LessonContentView, error) {
	lesson, err := s.lesson(ctx, opGetContent, lessonID)
	if err != nil {
		return LessonContentView{}, err
	}
	repo, err := s.repos.Payload(lesson.Type)
	if err != nil {
		return LessonContentView{}, domainagg.Wrap(domainagg.CodeInternal, opGetContent, err)
	}
	payload, err := repo.GetByLessonID(dbctx.Context{Ctx: ctx}, lessonID, false)
	if err != nil {
		return LessonContentView{}, domainagg.Wrap(domainagg.CodeInternal, opGetContent, err)
	}
	if payload == nil {
		return LessonContentView{}, domainagg.NewError(domainagg.CodeNotFound, opGetContent, fmt.Sprintf("lesson %s has no content", lessonID), nil)
	}
	return LessonContentView{LessonID: lessonID, Type: lesson.Type, Payload: payload}, nil
}

func (s *catalogService) lesson(ctx context.Context, op string, id uuid.UUID) (*catalog.Lesson, error) {
	e, err := s.Get(ctx, catalog.LevelLesson, id, false)
	if err != nil {
		var aggErr *domainagg.Error
		if errors.As(err, &aggErr) {
			aggErr.Op = op
		}
		return nil, err
	}
	lesson, ok := e.(*catalog.Lesson)
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, fmt.Sprintf("unexpected lesson model %T", e), nil)
	}
	return lesson, nil
}

func (s *catalogService) UpdateLessonContent(ctx context.Context, in domainagg.UpdateContentInput) (domainagg.ContentResult, error) {
	res, err := s.agg.UpdateLessonContent(ctx, in)
	if err != nil {
		return res, err
	}
	s.purgeBlobs(ctx, res.BlobKeys)
	s.publish(ctx, realtime.EventContentUpdated, catalog.LevelLesson, res.LessonID, map[string]any{"type": res.Type})
	return res, nil
}

// UploadLessonPdf stores the file first and then points the lesson at it. A
// failed content update deletes the fresh object again.
func (s *catalogService) UploadLessonPdf(ctx context.Context, in UploadPdfInput) (domainagg.ContentResult, error) {
	if s.blobs == nil {
		return domainagg.ContentResult{}, domainagg.NewError(domainagg.CodePreconditionFailed, opUploadPdf, "blob storage is not configured", nil)
	}
	if in.Body == nil {
		return domainagg.ContentResult{}, domainagg.NewError(domainagg.CodeValidation, opUploadPdf, "file is required", nil)
	}
	if in.SizeBytes > maxPdfSizeBytes {
		return domainagg.ContentResult{}, domainagg.NewError(domainagg.CodeValidation, opUploadPdf, fmt.Sprintf("file exceeds %d bytes", maxPdfSizeBytes), nil)
	}
	if !strings.EqualFold(filepath.Ext(strings.TrimSpace(in.FileName)), ".pdf") {
		return domainagg.ContentResult{}, domainagg.NewError(domainagg.CodeValidation, opUploadPdf, "only .pdf files are accepted", nil)
	}
	lesson, err := s.lesson(ctx, opUploadPdf, in.LessonID)
	if err != nil {
		return domainagg.ContentResult{}, err
	}
	if lesson.Type != catalog.LessonTypePdf {
		return domainagg.ContentResult{}, domainagg.NewError(domainagg.CodeBusinessRule, opUploadPdf,
			fmt.Sprintf("lesson %s is of type %s, not pdf", lesson.ID, lesson.Type), nil)
	}

	key := PdfObjectKey(in.LessonID, uuid.New())
	if err := s.blobs.Upload(ctx, key, in.Body, "application/pdf"); err != nil {
		return domainagg.ContentResult{}, domainagg.Wrap(domainagg.CodeInternal, opUploadPdf, err)
	}
	res, err := s.UpdateLessonContent(ctx, domainagg.UpdateContentInput{
		LessonID: in.LessonID,
		Content: domainagg.ContentInput{Pdf: &domainagg.PdfObject{
			StorageKey:  key,
			FileName:    in.FileName,
			ContentType: "application/pdf",
			SizeBytes:   in.SizeBytes,
		}},
	})
	if err != nil {
		s.purgeBlobs(ctx, []string{key})
		return res, err
	}
	return res, nil
}

func (s *catalogService) OpenLessonPdf(ctx context.Context, lessonID uuid.UUID) (*catalog.LessonPdf, io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, nil, domainagg.NewError(domainagg.CodePreconditionFailed, opDownloadPdf, "blob storage is not configured", nil)
	}
	view, err := s.GetLessonContent(ctx, lessonID)
	if err != nil {
		return nil, nil, err
	}
	doc, ok := view.Payload.(*catalog.LessonPdf)
	if !ok || doc.StorageKey == "" {
		return nil, nil, domainagg.NewError(domainagg.CodeNotFound, opDownloadPdf, fmt.Sprintf("lesson %s has no pdf", lessonID), nil)
	}
	rc, err := s.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, nil, domainagg.NewError(domainagg.CodeNotFound, opDownloadPdf, fmt.Sprintf("pdf of lesson %s is missing from storage", lessonID), err)
		}
		return nil, nil, domainagg.Wrap(domainagg.CodeInternal, opDownloadPdf, err)
	}
	return doc, rc, nil
}

// PdfObjectKey names a fresh object per upload so a replaced file can be
// purged without racing readers of the new one.
func PdfObjectKey(lessonID, objectID uuid.UUID) string {
	return fmt.Sprintf("lessons/%s/%s.pdf", lessonID, objectID)
}

// purgeBlobs runs after commit. Failures are logged and counted; the rows
// are gone already so there is nothing to roll back.
func (s *catalogService) purgeBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if s.blobs == nil {
		s.log.Warn("Blob storage not configured; leaving objects behind", "keys", keys)
		return
	}
	for _, key := range keys {
		err := s.blobs.Delete(ctx, key)
		s.metrics.IncBlobPurge(err == nil)
		if err != nil {
			s.log.Warn("Failed to purge blob", "key", key, "error", err)
		}
	}
}

func (s *catalogService) publish(ctx context.Context, event realtime.Event, level catalog.Level, id uuid.UUID, data any) {
	if s.bus == nil {
		return
	}
	msg := realtime.Message{
		Channel: realtime.LevelChannel(string(level)),
		Event:   event,
		Level:   string(level),
		Data:    data,
		At:      s.now(),
	}
	if id != uuid.Nil {
		msg.ID = id.String()
	}
	err := s.bus.Publish(ctx, msg)
	s.metrics.IncEvent(string(event), err == nil)
	if err != nil {
		s.log.Warn("Failed to publish catalog event", "event", event, "level", level, "id", id, "error", err)
	}
}
