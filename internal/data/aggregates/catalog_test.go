package aggregates_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/data/aggregates"
	aggtestutil "github.com/yungbote/coursecatalog-backend/internal/data/aggregates/testutil"
	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	repotestutil "github.com/yungbote/coursecatalog-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

const (
	d = lifecycle.StatusDraft
	p = lifecycle.StatusPublished
	i = lifecycle.StatusInactive
	a = lifecycle.StatusArchived
)

type fixture struct {
	ctx   context.Context
	db    *gorm.DB
	repos *catalogrepo.Set
	hooks *aggtestutil.HooksRecorder
	agg   domainagg.CatalogAggregate
}

func newFixture(t *testing.T, runner aggregates.TxRunner) fixture {
	t.Helper()
	db := repotestutil.DB(t)
	log := repotestutil.Logger(t)
	set := catalogrepo.NewSet(db, log, catalog.DefaultHierarchy())
	hooks := &aggtestutil.HooksRecorder{}
	agg, err := aggregates.NewCatalogAggregate(aggregates.CatalogAggregateDeps{
		BaseDeps: aggregates.BaseDeps{DB: db, Log: log, Hooks: hooks, Runner: runner},
		Repos:    set,
	})
	if err != nil {
		t.Fatalf("NewCatalogAggregate: %v", err)
	}
	return fixture{ctx: context.Background(), db: db, repos: set, hooks: hooks, agg: agg}
}

func (f fixture) row(t *testing.T, level catalog.Level, id uuid.UUID) *catalogrepo.NodeRow {
	t.Helper()
	r, err := f.repos.Nodes[level].GetByID(dbctx.Context{Ctx: f.ctx}, id, catalogrepo.ReadOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("GetByID(%s, %s): %v", level, id, err)
	}
	if r == nil {
		t.Fatalf("GetByID(%s, %s): row missing", level, id)
	}
	return r
}

func requireCode(t *testing.T, err error, code domainagg.ErrorCode, contains string) *domainagg.Error {
	t.Helper()
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		t.Fatalf("want *aggregates.Error got=%v", err)
	}
	if aggErr.Code != code {
		t.Fatalf("code: want=%s got=%s (%v)", code, aggErr.Code, err)
	}
	if contains != "" && !strings.Contains(aggErr.Message, contains) {
		t.Fatalf("message: want substring %q got=%q", contains, aggErr.Message)
	}
	return aggErr
}

func title(s string) domainagg.NodeFields { return domainagg.NodeFields{Title: &s} }

func TestChangeStatusPublishRequiresChildren(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)

	_, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: catalog.LevelChapter, ID: chapter.ID, Status: p})
	requireCode(t, err, domainagg.CodeBusinessRule, "cannot publish without lessons")
	if got := f.row(t, catalog.LevelChapter, chapter.ID).Status; got != d {
		t.Fatalf("status: want=%s got=%s", d, got)
	}

	repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, d, 1)
	res, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: catalog.LevelChapter, ID: chapter.ID, Status: p})
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if res.From != d || res.To != p {
		t.Fatalf("from/to: want=%s/%s got=%s/%s", d, p, res.From, res.To)
	}
	if res.Entity.Base().PublishedAt == nil {
		t.Fatalf("PublishedAt: want set")
	}
}

func TestChangeStatusDowngradesChildren(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 1)
	l1 := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, p, 1)
	l2 := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, d, 2)

	res, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: catalog.LevelChapter, ID: chapter.ID, Status: i})
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if res.CascadeUpdated["lessons"] != 2 {
		t.Fatalf("cascadeUpdated.lessons: want=2 got=%v", res.CascadeUpdated)
	}
	if res.Impact.Resolution != lifecycle.ResolutionAutoDowngrade {
		t.Fatalf("resolution: want=%s got=%s", lifecycle.ResolutionAutoDowngrade, res.Impact.Resolution)
	}
	for _, id := range []uuid.UUID{l1.ID, l2.ID} {
		if got := f.row(t, catalog.LevelLesson, id).Status; got != i {
			t.Fatalf("lesson %s: want=%s got=%s", id, i, got)
		}
	}
	if res.Entity.Base().InactivatedAt == nil {
		t.Fatalf("InactivatedAt: want set")
	}
	if f.hooks.Cascades["status:lesson"] != 2 {
		t.Fatalf("hooks cascades: got=%v", f.hooks.Cascades)
	}
	last, ok := f.hooks.Last()
	if !ok || last.Name != "catalog.change_status" || last.Status != "success" {
		t.Fatalf("last op: got=%+v", last)
	}
}

func TestChangeStatusArchiveCascadesThroughLevels(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	ch1 := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 1)
	ch2 := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, i, 2)
	lesson := repotestutil.SeedLesson(t, f.ctx, f.db, ch1.ID, p, 1)

	res, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: catalog.LevelCourse, ID: course.ID, Status: a})
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if res.CascadeUpdated["chapters"] != 2 || res.CascadeUpdated["lessons"] != 1 {
		t.Fatalf("cascadeUpdated: got=%v", res.CascadeUpdated)
	}
	for _, id := range []uuid.UUID{ch1.ID, ch2.ID} {
		if got := f.row(t, catalog.LevelChapter, id).Status; got != a {
			t.Fatalf("chapter %s: want=%s got=%s", id, a, got)
		}
	}
	if got := f.row(t, catalog.LevelLesson, lesson.ID).Status; got != a {
		t.Fatalf("lesson: want=%s got=%s", a, got)
	}
}

func TestChangeStatusRejections(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, i, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, i, 1)
	repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, i, 1)

	cases := []struct {
		name     string
		level    catalog.Level
		id       uuid.UUID
		to       lifecycle.Status
		code     domainagg.ErrorCode
		contains string
	}{
		{"same status", catalog.LevelCourse, course.ID, i, domainagg.CodeBusinessRule, "already"},
		{"back to draft", catalog.LevelCourse, course.ID, d, domainagg.CodeBusinessRule, "draft"},
		{"parent inactive", catalog.LevelChapter, chapter.ID, p, domainagg.CodeBusinessRule, "inactive"},
		{"unknown status", catalog.LevelChapter, chapter.ID, lifecycle.Status("gone"), domainagg.CodeValidation, "unknown status"},
		{"missing", catalog.LevelChapter, uuid.New(), p, domainagg.CodeNotFound, "not found"},
		{"unknown level", catalog.Level("module"), chapter.ID, p, domainagg.CodeValidation, "unknown catalog level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: tc.level, ID: tc.id, Status: tc.to})
			requireCode(t, err, tc.code, tc.contains)
		})
	}
}

func TestBulkChangeStatusReportsOutcomes(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	ready := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)
	repotestutil.SeedLesson(t, f.ctx, f.db, ready.ID, d, 1)
	empty := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 2)
	done := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 3)
	repotestutil.SeedLesson(t, f.ctx, f.db, done.ID, p, 1)
	missing := uuid.New()

	res, err := f.agg.BulkChangeStatus(f.ctx, domainagg.BulkChangeStatusInput{
		Level:  catalog.LevelChapter,
		IDs:    []uuid.UUID{ready.ID, empty.ID, done.ID, missing, ready.ID},
		Status: p,
	})
	if err != nil {
		t.Fatalf("BulkChangeStatus: %v", err)
	}
	s := res.Summary
	if s.Requested != 4 || s.Successful != 1 || s.Skipped != 1 || s.Failed != 1 || s.NotFound != 1 {
		t.Fatalf("summary: got=%+v", s)
	}
	if len(s.Failures) != 1 || s.Failures[0].ID != empty.ID || s.Failures[0].Reason != "cannot publish without lessons" {
		t.Fatalf("failures: got=%+v", s.Failures)
	}
	if s.Failures[0].Code != domainagg.CodeBusinessRule {
		t.Fatalf("failure code: want=%s got=%s", domainagg.CodeBusinessRule, s.Failures[0].Code)
	}
	if len(s.NotFoundIDs) != 1 || s.NotFoundIDs[0] != missing {
		t.Fatalf("notFoundIds: got=%v", s.NotFoundIDs)
	}
	if got := f.row(t, catalog.LevelChapter, ready.ID).Status; got != p {
		t.Fatalf("ready chapter: want=%s got=%s", p, got)
	}
	if got := f.row(t, catalog.LevelChapter, empty.ID).Status; got != d {
		t.Fatalf("empty chapter: want=%s got=%s", d, got)
	}
}

func TestBulkChangeStatusAllFailed(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	empty := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)

	res, err := f.agg.BulkChangeStatus(f.ctx, domainagg.BulkChangeStatusInput{
		Level:  catalog.LevelChapter,
		IDs:    []uuid.UUID{empty.ID, uuid.New()},
		Status: p,
	})
	aggErr := requireCode(t, err, domainagg.CodeBusinessRule, "no chapters could be updated")
	summary, ok := aggErr.Details.(domainagg.BulkSummary)
	if !ok {
		t.Fatalf("details: want BulkSummary got=%T", aggErr.Details)
	}
	if summary.Failed != 1 || summary.NotFound != 1 {
		t.Fatalf("summary: got=%+v", summary)
	}
	if res.Summary.Requested != 2 {
		t.Fatalf("result summary: got=%+v", res.Summary)
	}

	_, err = f.agg.BulkChangeStatus(f.ctx, domainagg.BulkChangeStatusInput{Level: catalog.LevelChapter, IDs: []uuid.UUID{uuid.New()}, Status: p})
	requireCode(t, err, domainagg.CodeNotFound, "")

	_, err = f.agg.BulkChangeStatus(f.ctx, domainagg.BulkChangeStatusInput{Level: catalog.LevelChapter, Status: p})
	requireCode(t, err, domainagg.CodeValidation, "ids are required")
}

func TestRepositionValidation(t *testing.T) {
	f := newFixture(t, nil)
	c1 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 1)
	c2 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 2)
	c3 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 3)
	level := catalog.LevelCategory

	cases := []struct {
		name     string
		entries  []domainagg.PositionEntry
		code     domainagg.ErrorCode
		contains string
	}{
		{"empty", nil, domainagg.CodeValidation, "positions are required"},
		{"duplicate positions", []domainagg.PositionEntry{{ID: c1.ID, Position: 1}, {ID: c2.ID, Position: 1}}, domainagg.CodeValidation, "duplicate positions detected"},
		{"duplicate ids", []domainagg.PositionEntry{{ID: c1.ID, Position: 1}, {ID: c1.ID, Position: 2}}, domainagg.CodeValidation, "duplicate id"},
		{"below one", []domainagg.PositionEntry{{ID: c1.ID, Position: 0}}, domainagg.CodeValidation, ">= 1"},
		{"out of range", []domainagg.PositionEntry{{ID: c1.ID, Position: 4}}, domainagg.CodeValidation, "out of range"},
		{"collision", []domainagg.PositionEntry{{ID: c1.ID, Position: 3}}, domainagg.CodeConflict, "outside the batch"},
		{"missing", []domainagg.PositionEntry{{ID: uuid.New(), Position: 1}}, domainagg.CodeNotFound, "categories not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.agg.Reposition(f.ctx, domainagg.RepositionInput{Level: level, Entries: tc.entries})
			requireCode(t, err, tc.code, tc.contains)
		})
	}
	for id, want := range map[uuid.UUID]int{c1.ID: 1, c2.ID: 2, c3.ID: 3} {
		if got := f.row(t, level, id).Position; got != want {
			t.Fatalf("position of %s after rejected batches: want=%d got=%d", id, want, got)
		}
	}

	res, err := f.agg.Reposition(f.ctx, domainagg.RepositionInput{Level: level, Entries: []domainagg.PositionEntry{
		{ID: c1.ID, Position: 3},
		{ID: c3.ID, Position: 1},
	}})
	if err != nil {
		t.Fatalf("Reposition: %v", err)
	}
	if res.Updated != 2 || res.ParentID != nil {
		t.Fatalf("result: got=%+v", res)
	}
	if f.row(t, level, c1.ID).Position != 3 || f.row(t, level, c3.ID).Position != 1 {
		t.Fatalf("positions not swapped")
	}
}

func TestRepositionRejectsMixedScopesAndFrozenParents(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	other := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 2)
	ch1 := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)
	ch2 := repotestutil.SeedChapter(t, f.ctx, f.db, other.ID, d, 1)

	_, err := f.agg.Reposition(f.ctx, domainagg.RepositionInput{Level: catalog.LevelChapter, Entries: []domainagg.PositionEntry{
		{ID: ch1.ID, Position: 1},
		{ID: ch2.ID, Position: 2},
	}})
	requireCode(t, err, domainagg.CodeValidation, "share a parent")

	archived := repotestutil.SeedCourse(t, f.ctx, f.db, nil, a, 3)
	ch3 := repotestutil.SeedChapter(t, f.ctx, f.db, archived.ID, a, 1)
	_, err = f.agg.Reposition(f.ctx, domainagg.RepositionInput{Level: catalog.LevelChapter, Entries: []domainagg.PositionEntry{{ID: ch3.ID, Position: 1}}})
	requireCode(t, err, domainagg.CodeBusinessRule, "cannot reorder")
}

func TestSoftDeleteUnderArchivedCourse(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, a, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, a, 1)

	_, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelChapter, ID: chapter.ID})
	requireCode(t, err, domainagg.CodeBusinessRule, "parent is archived forever")
	if f.row(t, catalog.LevelChapter, chapter.ID).Deleted() {
		t.Fatalf("chapter deleted despite denial")
	}
}

func TestRestoreUnderArchivedParent(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 1)
	lesson := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, d, 1)

	if _, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelLesson, ID: lesson.ID}); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := f.agg.ChangeStatus(f.ctx, domainagg.ChangeStatusInput{Level: catalog.LevelChapter, ID: chapter.ID, Status: a}); err != nil {
		t.Fatalf("archive chapter: %v", err)
	}
	_, err := f.agg.Restore(f.ctx, domainagg.RestoreInput{Level: catalog.LevelLesson, ID: lesson.ID})
	requireCode(t, err, domainagg.CodeBusinessRule, "cannot restore to archived parent; restore parent first")
	if !f.row(t, catalog.LevelLesson, lesson.ID).Deleted() {
		t.Fatalf("lesson restored despite denial")
	}
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 1)
	kept := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, p, 1)
	earlier := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, d, 2)

	if _, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelLesson, ID: earlier.ID}); err != nil {
		t.Fatalf("SoftDelete lesson: %v", err)
	}
	del, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelChapter, ID: chapter.ID})
	if err != nil {
		t.Fatalf("SoftDelete chapter: %v", err)
	}
	if del.Cascaded["lessons"] != 1 || del.Cascaded[catalog.ContentKey] != 1 {
		t.Fatalf("cascaded: got=%v", del.Cascaded)
	}
	batch, err := f.repos.Batches.GetByID(dbctx.Context{Ctx: f.ctx}, del.BatchID)
	if err != nil || batch == nil {
		t.Fatalf("batch: %v %v", batch, err)
	}
	items, err := batch.DecodeItems()
	if err != nil {
		t.Fatalf("DecodeItems: %v", err)
	}
	if len(items["chapters"]) != 1 || len(items["lessons"]) != 1 || items["lessons"][0] != kept.ID {
		t.Fatalf("batch items: got=%v", items)
	}

	_, err = f.agg.Update(f.ctx, domainagg.UpdateNodeInput{Level: catalog.LevelChapter, ID: chapter.ID, Fields: title("Renamed")})
	requireCode(t, err, domainagg.CodeNotFound, "")

	res, err := f.agg.Restore(f.ctx, domainagg.RestoreInput{Level: catalog.LevelChapter, ID: chapter.ID})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Restored["lessons"] != 1 || res.Restored[catalog.ContentKey] != 1 {
		t.Fatalf("restored: got=%v", res.Restored)
	}
	if res.Repositioned {
		t.Fatalf("repositioned: want=false")
	}
	if f.row(t, catalog.LevelLesson, kept.ID).Deleted() {
		t.Fatalf("kept lesson still deleted")
	}
	if !f.row(t, catalog.LevelLesson, earlier.ID).Deleted() {
		t.Fatalf("lesson from an earlier batch came back")
	}
	if got := f.row(t, catalog.LevelLesson, kept.ID).Status; got != p {
		t.Fatalf("restore changed status: want=%s got=%s", p, got)
	}
	payload, err := f.repos.Payloads[catalog.LessonTypeContent].GetByLessonID(dbctx.Context{Ctx: f.ctx}, kept.ID, false)
	if err != nil || payload == nil {
		t.Fatalf("payload after restore: %v %v", payload, err)
	}
	if b, _ := f.repos.Batches.GetByID(dbctx.Context{Ctx: f.ctx}, del.BatchID); b != nil {
		t.Fatalf("batch row should be gone after restore")
	}

	_, err = f.agg.Restore(f.ctx, domainagg.RestoreInput{Level: catalog.LevelChapter, ID: chapter.ID})
	requireCode(t, err, domainagg.CodeBusinessRule, "nothing to restore")
}

func TestHardDeleteDropsDeletionBatches(t *testing.T) {
	f := newFixture(t, nil)
	dbc := dbctx.Context{Ctx: f.ctx}
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 1)
	other := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, p, 2)
	lesson := repotestutil.SeedLesson(t, f.ctx, f.db, chapter.ID, d, 1)

	inner, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelLesson, ID: lesson.ID})
	if err != nil {
		t.Fatalf("SoftDelete lesson: %v", err)
	}
	outer, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelChapter, ID: chapter.ID})
	if err != nil {
		t.Fatalf("SoftDelete chapter: %v", err)
	}
	kept, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelChapter, ID: other.ID})
	if err != nil {
		t.Fatalf("SoftDelete other chapter: %v", err)
	}

	if _, err := f.agg.HardDelete(f.ctx, domainagg.HardDeleteInput{Level: catalog.LevelChapter, ID: chapter.ID}); err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	for name, id := range map[string]uuid.UUID{"chapter": outer.BatchID, "lesson": inner.BatchID} {
		if b, err := f.repos.Batches.GetByID(dbc, id); err != nil || b != nil {
			t.Fatalf("%s batch after purge: want=nil got=%+v err=%v", name, b, err)
		}
	}
	if b, err := f.repos.Batches.GetByID(dbc, kept.BatchID); err != nil || b == nil {
		t.Fatalf("unrelated batch: want present got=%+v err=%v", b, err)
	}
}

func TestRestoreMovesToEndOnPositionCollision(t *testing.T) {
	f := newFixture(t, nil)
	level := catalog.LevelCategory
	c1 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 1)
	c2 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 2)
	c3 := repotestutil.SeedCategory(t, f.ctx, f.db, d, 3)

	if _, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: level, ID: c1.ID}); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := f.agg.Reposition(f.ctx, domainagg.RepositionInput{Level: level, Entries: []domainagg.PositionEntry{
		{ID: c2.ID, Position: 1},
		{ID: c3.ID, Position: 2},
	}}); err != nil {
		t.Fatalf("Reposition: %v", err)
	}
	res, err := f.agg.Restore(f.ctx, domainagg.RestoreInput{Level: level, ID: c1.ID})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !res.Repositioned {
		t.Fatalf("repositioned: want=true")
	}
	if got := f.row(t, level, c1.ID).Position; got != 3 {
		t.Fatalf("position: want=3 got=%d", got)
	}
}

func TestSoftDeleteRequireEmptyPolicy(t *testing.T) {
	f := newFixture(t, nil)
	category := repotestutil.SeedCategory(t, f.ctx, f.db, d, 1)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, repotestutil.PtrUUID(category.ID), d, 1)

	_, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelCategory, ID: category.ID})
	requireCode(t, err, domainagg.CodeBusinessRule, "1 active courses")

	res, err := f.agg.SoftDelete(f.ctx, domainagg.SoftDeleteInput{Level: catalog.LevelCategory, ID: category.ID, Cascade: true})
	if err != nil {
		t.Fatalf("SoftDelete with cascade: %v", err)
	}
	if res.Cascaded["courses"] != 1 {
		t.Fatalf("cascaded: got=%v", res.Cascaded)
	}
	if !f.row(t, catalog.LevelCourse, course.ID).Deleted() {
		t.Fatalf("course not deleted")
	}
	if f.hooks.Cascades["delete:course"] != 1 {
		t.Fatalf("hooks cascades: got=%v", f.hooks.Cascades)
	}
}

func TestCreatePositionsAndHardDeleteRenumbers(t *testing.T) {
	f := newFixture(t, nil)
	var ids []uuid.UUID
	for n, name := range []string{"Alpha", "Beta", "Gamma"} {
		res, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCategory, Fields: title(name)})
		if err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
		if got := res.Entity.Base().Position; got != n+1 {
			t.Fatalf("%s position: want=%d got=%d", name, n+1, got)
		}
		if got := res.Entity.Base().Status; got != d {
			t.Fatalf("%s status: want=%s got=%s", name, d, got)
		}
		ids = append(ids, res.Entity.Base().ID)
	}
	if got := f.row(t, catalog.LevelCategory, ids[0]).Slug; got != "alpha" {
		t.Fatalf("slug: want=alpha got=%s", got)
	}

	res, err := f.agg.HardDelete(f.ctx, domainagg.HardDeleteInput{Level: catalog.LevelCategory, ID: ids[1]})
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if res.Renumbered != 1 || res.Deleted["categories"] != 1 {
		t.Fatalf("result: got=%+v", res)
	}
	if got := f.row(t, catalog.LevelCategory, ids[2]).Position; got != 2 {
		t.Fatalf("gamma position: want=2 got=%d", got)
	}
	gone, err := f.repos.Nodes[catalog.LevelCategory].GetByID(dbctx.Context{Ctx: f.ctx}, ids[1], catalogrepo.ReadOptions{IncludeDeleted: true})
	if err != nil || gone != nil {
		t.Fatalf("purged row: got=%v err=%v", gone, err)
	}
}

func TestCreateRules(t *testing.T) {
	f := newFixture(t, nil)
	archived := repotestutil.SeedCategory(t, f.ctx, f.db, a, 1)
	inactive := repotestutil.SeedCategory(t, f.ctx, f.db, i, 2)
	open := repotestutil.SeedCategory(t, f.ctx, f.db, p, 3)
	repotestutil.SeedCourse(t, f.ctx, f.db, repotestutil.PtrUUID(open.ID), d, 1)
	pos := func(n int) *int { return &n }

	_, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, ParentID: repotestutil.PtrUUID(archived.ID), Fields: title("Go")})
	requireCode(t, err, domainagg.CodeBusinessRule, "archived")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, ParentID: repotestutil.PtrUUID(inactive.ID), Fields: title("Go")})
	requireCode(t, err, domainagg.CodeBusinessRule, "inactive")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, ParentID: repotestutil.PtrUUID(open.ID), Fields: title("Go"), Position: pos(1)})
	requireCode(t, err, domainagg.CodeConflict, "position 1")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, ParentID: repotestutil.PtrUUID(uuid.New()), Fields: title("Go")})
	requireCode(t, err, domainagg.CodeNotFound, "category")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, Fields: title("  ")})
	requireCode(t, err, domainagg.CodeValidation, "title is required")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCategory, ParentID: repotestutil.PtrUUID(open.ID), Fields: title("Nested")})
	requireCode(t, err, domainagg.CodeValidation, "no parent level")

	res, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, ParentID: repotestutil.PtrUUID(open.ID), Fields: title("Go"), Position: pos(5)})
	if err != nil {
		t.Fatalf("Create at explicit position: %v", err)
	}
	course, ok := res.Entity.(*catalog.Course)
	if !ok || course.Position != 5 || course.CategoryID == nil || *course.CategoryID != open.ID {
		t.Fatalf("course: got=%+v", res.Entity)
	}

	dup, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCourse, Fields: title("Go")})
	if err != nil {
		t.Fatalf("Create duplicate title: %v", err)
	}
	if s := dup.Entity.Base().Slug; !strings.HasPrefix(s, "go-") || len(s) != len("go-")+6 {
		t.Fatalf("suffixed slug: got=%q", s)
	}
}

func TestCreateLessonWithContent(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, d, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)
	cid := repotestutil.PtrUUID(chapter.ID)

	res, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelLesson, ParentID: cid, Fields: title("Intro")})
	if err != nil {
		t.Fatalf("Create lesson: %v", err)
	}
	lesson := res.Entity.(*catalog.Lesson)
	if lesson.Type != catalog.LessonTypeContent {
		t.Fatalf("type: want=%s got=%s", catalog.LessonTypeContent, lesson.Type)
	}
	payload, err := f.repos.Payloads[catalog.LessonTypeContent].GetByLessonID(dbctx.Context{Ctx: f.ctx}, lesson.ID, false)
	if err != nil || payload == nil {
		t.Fatalf("payload: %v %v", payload, err)
	}

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{
		Level:      catalog.LevelLesson,
		ParentID:   cid,
		Fields:     title("Quiz"),
		LessonType: catalog.LessonTypeQuiz,
		Content:    &domainagg.ContentInput{Questions: []catalog.QuizQuestion{{Prompt: "2+2", Options: []string{"4"}, Answer: 0}}},
	})
	requireCode(t, err, domainagg.CodeValidation, "")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelLesson, ParentID: cid, Fields: title("X"), LessonType: "video"})
	requireCode(t, err, domainagg.CodeValidation, "unknown lesson type")

	_, err = f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelChapter, ParentID: repotestutil.PtrUUID(course.ID), Fields: title("X"), Content: &domainagg.ContentInput{}})
	requireCode(t, err, domainagg.CodeValidation, "does not carry lesson content")
}

func TestPdfContentAndHardDeleteBlobKeys(t *testing.T) {
	f := newFixture(t, nil)
	course := repotestutil.SeedCourse(t, f.ctx, f.db, nil, p, 1)
	chapter := repotestutil.SeedChapter(t, f.ctx, f.db, course.ID, d, 1)

	res, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{
		Level:      catalog.LevelLesson,
		ParentID:   repotestutil.PtrUUID(chapter.ID),
		Fields:     title("Handout"),
		LessonType: catalog.LessonTypePdf,
		Content:    &domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "lessons/a.pdf", FileName: "a.pdf", SizeBytes: 10}},
	})
	if err != nil {
		t.Fatalf("Create pdf lesson: %v", err)
	}
	lessonID := res.Entity.Base().ID

	upd, err := f.agg.UpdateLessonContent(f.ctx, domainagg.UpdateContentInput{
		LessonID: lessonID,
		Content:  domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "lessons/b.pdf", FileName: "b.pdf", SizeBytes: 20}},
	})
	if err != nil {
		t.Fatalf("UpdateLessonContent: %v", err)
	}
	if upd.Type != catalog.LessonTypePdf || len(upd.BlobKeys) != 1 || upd.BlobKeys[0] != "lessons/a.pdf" {
		t.Fatalf("update result: got=%+v", upd)
	}
	doc, ok := upd.Payload.(*catalog.LessonPdf)
	if !ok || doc.StorageKey != "lessons/b.pdf" {
		t.Fatalf("payload: got=%+v", upd.Payload)
	}

	del, err := f.agg.HardDelete(f.ctx, domainagg.HardDeleteInput{Level: catalog.LevelChapter, ID: chapter.ID})
	if err != nil {
		t.Fatalf("HardDelete: %v", err)
	}
	if len(del.BlobKeys) != 1 || del.BlobKeys[0] != "lessons/b.pdf" {
		t.Fatalf("blob keys: got=%v", del.BlobKeys)
	}
	if del.Deleted["lessons"] != 1 || del.Deleted["chapters"] != 1 {
		t.Fatalf("deleted: got=%v", del.Deleted)
	}
	left, err := f.repos.Payloads[catalog.LessonTypePdf].GetByLessonID(dbctx.Context{Ctx: f.ctx}, lessonID, true)
	if err != nil || left != nil {
		t.Fatalf("pdf payload after purge: %v %v", left, err)
	}
}

func TestUpdateFieldsAndSlug(t *testing.T) {
	f := newFixture(t, nil)
	created, err := f.agg.Create(f.ctx, domainagg.CreateNodeInput{Level: catalog.LevelCategory, Fields: title("Alpha")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.Entity.Base().ID
	fields := title("Beta Course")
	desc := "  Programming topics  "
	fields.Description = &desc
	res, err := f.agg.Update(f.ctx, domainagg.UpdateNodeInput{Level: catalog.LevelCategory, ID: id, Fields: fields})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	n := res.Entity.Base()
	if n.Slug != "beta-course" || n.Description != "Programming topics" {
		t.Fatalf("updated: slug=%q description=%q", n.Slug, n.Description)
	}

	archived := repotestutil.SeedCategory(t, f.ctx, f.db, a, 2)
	_, err = f.agg.Update(f.ctx, domainagg.UpdateNodeInput{Level: catalog.LevelCategory, ID: archived.ID, Fields: title("Gamma")})
	requireCode(t, err, domainagg.CodeBusinessRule, "archived")
}

func TestCommitFailureRollsBackWrites(t *testing.T) {
	db := repotestutil.DB(t)
	log := repotestutil.Logger(t)
	set := catalogrepo.NewSet(db, log, catalog.DefaultHierarchy())
	runner := &aggtestutil.InjectedTxRunner{DB: db, FailCommit: errors.New("commit lost")}
	agg, err := aggregates.NewCatalogAggregate(aggregates.CatalogAggregateDeps{
		BaseDeps: aggregates.BaseDeps{DB: db, Log: log, Runner: runner},
		Repos:    set,
	})
	if err != nil {
		t.Fatalf("NewCatalogAggregate: %v", err)
	}
	ctx := context.Background()

	_, err = agg.Create(ctx, domainagg.CreateNodeInput{Level: catalog.LevelCategory, Fields: title("Lost")})
	requireCode(t, err, domainagg.CodeInternal, "commit lost")
	n, err := set.Nodes[catalog.LevelCategory].CountActiveByScope(dbctx.Context{Ctx: ctx}, nil)
	if err != nil {
		t.Fatalf("CountActiveByScope: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows after failed commit: want=0 got=%d", n)
	}
	if runner.RollbackCalls != 1 {
		t.Fatalf("rollbacks: want=1 got=%d", runner.RollbackCalls)
	}
}
