package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/data/aggregates"
	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	repotestutil "github.com/yungbote/coursecatalog-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
	"github.com/yungbote/coursecatalog-backend/internal/realtime"
	"github.com/yungbote/coursecatalog-backend/internal/realtime/bus"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Upload(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memBlobs) Download(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type fixture struct {
	ctx    context.Context
	db     *gorm.DB
	svc    CatalogService
	blobs  *memBlobs
	mu     *sync.Mutex
	events *[]realtime.Message
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := repotestutil.DB(t)
	log := repotestutil.Logger(t)
	set := catalogrepo.NewSet(db, log, catalog.DefaultHierarchy())
	agg, err := aggregates.NewCatalogAggregate(aggregates.CatalogAggregateDeps{
		BaseDeps: aggregates.BaseDeps{DB: db, Log: log},
		Repos:    set,
	})
	if err != nil {
		t.Fatalf("NewCatalogAggregate: %v", err)
	}

	b := bus.NewLocalBus()
	var mu sync.Mutex
	events := []realtime.Message{}
	if err := b.StartForwarder(context.Background(), func(m realtime.Message) {
		mu.Lock()
		events = append(events, m)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	blobs := newMemBlobs()
	svc, err := NewCatalogService(CatalogServiceDeps{Log: log, Aggregate: agg, Repos: set, Blobs: blobs, Bus: b})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return fixture{ctx: context.Background(), db: db, svc: svc, blobs: blobs, mu: &mu, events: &events}
}

func (f fixture) lastEvent(t *testing.T) realtime.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(*f.events) == 0 {
		t.Fatalf("no events published")
	}
	return (*f.events)[len(*f.events)-1]
}

func (f fixture) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(*f.events)
}

func (f fixture) pdfLesson(t *testing.T) uuid.UUID {
	t.Helper()
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusDraft, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusDraft, 1)
	title := "Reading"
	res, err := f.svc.Create(f.ctx, domainagg.CreateNodeInput{
		Level:      catalog.LevelLesson,
		ParentID:   &chapter.ID,
		Fields:     domainagg.NodeFields{Title: &title},
		LessonType: catalog.LessonTypePdf,
	})
	if err != nil {
		t.Fatalf("Create lesson: %v", err)
	}
	return res.Entity.Base().ID
}

func TestCreatePublishesLevelEvent(t *testing.T) {
	f := newFixture(t)
	title := "Go Basics"
	res, err := f.svc.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, Fields: domainagg.NodeFields{Title: &title}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ev := f.lastEvent(t)
	if ev.Event != realtime.EventEntityCreated {
		t.Fatalf("event: want=%s got=%s", realtime.EventEntityCreated, ev.Event)
	}
	if ev.Channel != realtime.LevelChannel("course") {
		t.Fatalf("channel: want=%s got=%s", realtime.LevelChannel("course"), ev.Channel)
	}
	if ev.ID != res.Entity.Base().ID.String() {
		t.Fatalf("id: want=%s got=%s", res.Entity.Base().ID, ev.ID)
	}
}

func TestFailedWriteDoesNotPublish(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("Create without title: want validation got=%v", err)
	}
	if n := f.eventCount(); n != 0 {
		t.Fatalf("events: want=0 got=%d", n)
	}
}

func TestGetAndListReads(t *testing.T) {
	f := newFixture(t)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusPublished, 1)
	repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusPublished, 1)
	repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusDraft, 2)

	got, err := f.svc.Get(f.ctx, catalog.LevelCourse, course.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Base().ID != course.ID {
		t.Fatalf("id: want=%s got=%s", course.ID, got.Base().ID)
	}

	_, err = f.svc.Get(f.ctx, catalog.LevelCourse, uuid.New(), false)
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("Get missing: want not_found got=%v", err)
	}
	_, err = f.svc.Get(f.ctx, catalog.Level("module"), course.ID, false)
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("Get unknown level: want validation got=%v", err)
	}

	draft := lifecycle.StatusDraft
	rows, meta, err := f.svc.List(f.ctx, catalog.LevelChapter, catalogrepo.ListQuery{ParentID: &course.ID, Status: &draft})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || meta.TotalItems != 1 {
		t.Fatalf("list: want 1 draft chapter got rows=%d total=%d", len(rows), meta.TotalItems)
	}
}

func TestPreviewStatusChangeDoesNotWrite(t *testing.T) {
	f := newFixture(t)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusPublished, 1)
	published := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusPublished, 1)
	repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusDraft, 2)

	prev, err := f.svc.PreviewStatusChange(f.ctx, catalog.LevelCourse, course.ID, lifecycle.StatusInactive)
	if err != nil {
		t.Fatalf("PreviewStatusChange: %v", err)
	}
	if !prev.Decision.Allowed {
		t.Fatalf("decision: want allowed got=%+v", prev.Decision)
	}
	if prev.Impact.Resolution != lifecycle.ResolutionAutoDowngrade {
		t.Fatalf("resolution: want=%s got=%s", lifecycle.ResolutionAutoDowngrade, prev.Impact.Resolution)
	}
	if !prev.Impact.WillMakeInaccessible {
		t.Fatalf("willMakeInaccessible: want=true")
	}

	e, err := f.svc.Get(f.ctx, catalog.LevelChapter, published.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Base().Status != lifecycle.StatusPublished {
		t.Fatalf("chapter status after preview: want=%s got=%s", lifecycle.StatusPublished, e.Base().Status)
	}

	prev, err = f.svc.PreviewStatusChange(f.ctx, catalog.LevelCourse, course.ID, lifecycle.StatusDraft)
	if err != nil {
		t.Fatalf("PreviewStatusChange: %v", err)
	}
	if prev.Decision.Allowed {
		t.Fatalf("published -> draft: want denied")
	}
}

func TestUploadLessonPdfReplacesAndPurges(t *testing.T) {
	f := newFixture(t)
	lessonID := f.pdfLesson(t)

	first, err := f.svc.UploadLessonPdf(f.ctx, UploadPdfInput{LessonID: lessonID, FileName: "a.pdf", SizeBytes: 4, Body: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("UploadLessonPdf: %v", err)
	}
	firstKey := first.Payload.(*catalog.LessonPdf).StorageKey
	if !strings.HasPrefix(firstKey, "lessons/"+lessonID.String()+"/") {
		t.Fatalf("storage key: got=%s", firstKey)
	}

	second, err := f.svc.UploadLessonPdf(f.ctx, UploadPdfInput{LessonID: lessonID, FileName: "b.PDF", SizeBytes: 5, Body: strings.NewReader("%PDF2")})
	if err != nil {
		t.Fatalf("second UploadLessonPdf: %v", err)
	}
	secondKey := second.Payload.(*catalog.LessonPdf).StorageKey
	if _, ok := f.blobs.objects[firstKey]; ok {
		t.Fatalf("replaced object %s was not purged", firstKey)
	}

	doc, rc, err := f.svc.OpenLessonPdf(f.ctx, lessonID)
	if err != nil {
		t.Fatalf("OpenLessonPdf: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "%PDF2" || doc.FileName != "b.PDF" {
		t.Fatalf("download: got body=%q file=%q", body, doc.FileName)
	}

	if _, err := f.svc.HardDelete(f.ctx, domainagg.HardDeleteInput{Level: catalog.LevelLesson, ID: lessonID}); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if len(f.blobs.objects) != 0 {
		t.Fatalf("objects after hard delete: want none got=%v", f.blobs.objects)
	}
	if last := f.blobs.deleted[len(f.blobs.deleted)-1]; last != secondKey {
		t.Fatalf("last purge: want=%s got=%s", secondKey, last)
	}
	if ev := f.lastEvent(t); ev.Event != realtime.EventEntityPurged {
		t.Fatalf("event: want=%s got=%s", realtime.EventEntityPurged, ev.Event)
	}
}

func TestUploadLessonPdfRejections(t *testing.T) {
	f := newFixture(t)
	lessonID := f.pdfLesson(t)

	_, err := f.svc.UploadLessonPdf(f.ctx, UploadPdfInput{LessonID: lessonID, FileName: "notes.txt", Body: strings.NewReader("x")})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("non-pdf file: want validation got=%v", err)
	}

	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusDraft, 2)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, lifecycle.StatusDraft, 1)
	text := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, lifecycle.StatusDraft, 1)
	_, err = f.svc.UploadLessonPdf(f.ctx, UploadPdfInput{LessonID: text.ID, FileName: "a.pdf", Body: strings.NewReader("x")})
	if !domainagg.IsCode(err, domainagg.CodeBusinessRule) {
		t.Fatalf("text lesson: want business_rule got=%v", err)
	}
	if len(f.blobs.objects) != 0 {
		t.Fatalf("objects: want none got=%v", f.blobs.objects)
	}
}

func TestBulkChangeStatusPublishesOnce(t *testing.T) {
	f := newFixture(t)
	c1 := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusPublished, 1)
	c2 := repotestutil.SeedCourse(t, f.ctx, f.db, nil, lifecycle.StatusArchived, 2)

	res, err := f.svc.BulkChangeStatus(f.ctx, domainagg.BulkChangeStatusInput{
		Level:  catalog.LevelCourse,
		IDs:    []uuid.UUID{c1.ID, c2.ID, uuid.New()},
		Status: lifecycle.StatusArchived,
	})
	if err != nil {
		t.Fatalf("BulkChangeStatus: %v", err)
	}
	if res.Summary.Successful != 1 || res.Summary.Skipped != 1 || res.Summary.NotFound != 1 {
		t.Fatalf("summary: got=%+v", res.Summary)
	}
	if n := f.eventCount(); n != 1 {
		t.Fatalf("events: want=1 got=%d", n)
	}
	if ev := f.lastEvent(t); ev.Event != realtime.EventBulkStatusChanged {
		t.Fatalf("event: want=%s got=%s", realtime.EventBulkStatusChanged, ev.Event)
	}
}
