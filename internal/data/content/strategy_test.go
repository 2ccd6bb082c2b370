package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	db := testutil.DB(t)
	reg, err := NewRegistry(testutil.Logger(t), catalogrepo.NewSet(db, testutil.Logger(t), catalog.DefaultHierarchy()))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestPrepareDefaults(t *testing.T) {
	reg := newRegistry(t)
	lessonID := uuid.New()
	for _, typ := range catalog.LessonTypes {
		s, err := reg.For(typ)
		if err != nil {
			t.Fatalf("For(%s): %v", typ, err)
		}
		p, err := s.Prepare(lessonID, nil)
		if err != nil {
			t.Fatalf("Prepare(%s): %v", typ, err)
		}
		if p.PayloadBase().LessonID != lessonID {
			t.Fatalf("Prepare(%s) lesson id: got=%s", typ, p.PayloadBase().LessonID)
		}
	}
	if _, err := reg.For("video"); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("For(video): want ErrInvalidArgument got=%v", err)
	}
}

func TestTextAndAssignmentValidation(t *testing.T) {
	reg := newRegistry(t)
	text, _ := reg.For(catalog.LessonTypeContent)
	if _, err := text.Prepare(uuid.New(), &domainagg.ContentInput{Format: strPtr("docx")}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad format: want ErrInvalidArgument got=%v", err)
	}
	p, err := text.Prepare(uuid.New(), &domainagg.ContentInput{Format: strPtr(" HTML "), Body: strPtr("<p>hi</p>")})
	if err != nil {
		t.Fatalf("Prepare text: %v", err)
	}
	if c := p.(*catalog.LessonContent); c.Format != "html" || c.Body != "<p>hi</p>" {
		t.Fatalf("text payload: got=%+v", c)
	}

	assign, _ := reg.For(catalog.LessonTypeAssignment)
	if _, err := assign.Prepare(uuid.New(), &domainagg.ContentInput{MaxScore: intPtr(0)}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("max score 0: want ErrInvalidArgument got=%v", err)
	}
	if _, err := assign.Prepare(uuid.New(), &domainagg.ContentInput{DueInDays: intPtr(-1)}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("negative due: want ErrInvalidArgument got=%v", err)
	}
}

func TestQuizQuestions(t *testing.T) {
	reg := newRegistry(t)
	quiz, _ := reg.For(catalog.LessonTypeQuiz)

	bad := []catalog.QuizQuestion{{Prompt: "2+2?", Options: []string{"4"}, Answer: 0}}
	if _, err := quiz.Prepare(uuid.New(), &domainagg.ContentInput{Questions: bad}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("single option: want ErrInvalidArgument got=%v", err)
	}
	outOfRange := []catalog.QuizQuestion{{Prompt: "2+2?", Options: []string{"3", "4"}, Answer: 2}}
	if _, err := quiz.Prepare(uuid.New(), &domainagg.ContentInput{Questions: outOfRange}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("answer out of range: want ErrInvalidArgument got=%v", err)
	}

	good := []catalog.QuizQuestion{{Prompt: "2+2?", Options: []string{"3", "4"}, Answer: 1}}
	p, err := quiz.Prepare(uuid.New(), &domainagg.ContentInput{Questions: good, PassingScore: intPtr(80)})
	if err != nil {
		t.Fatalf("Prepare quiz: %v", err)
	}
	q := p.(*catalog.LessonQuiz)
	got, err := DecodeQuestions(q)
	if err != nil {
		t.Fatalf("DecodeQuestions: %v", err)
	}
	if len(got) != 1 || got[0].Answer != 1 || q.PassingScore != 80 {
		t.Fatalf("quiz payload: questions=%+v passing=%d", got, q.PassingScore)
	}
	if _, err := quiz.Update(q, domainagg.ContentInput{PassingScore: intPtr(101)}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("passing 101: want ErrInvalidArgument got=%v", err)
	}
}

func TestPdfReplaceReportsOldKey(t *testing.T) {
	reg := newRegistry(t)
	pdf, _ := reg.For(catalog.LessonTypePdf)
	p, err := pdf.Prepare(uuid.New(), &domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "lessons/a.pdf", SizeBytes: 10}})
	if err != nil {
		t.Fatalf("Prepare pdf: %v", err)
	}
	replaced, err := pdf.Update(p, domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "lessons/b.pdf", ContentType: "application/pdf"}})
	if err != nil {
		t.Fatalf("Update pdf: %v", err)
	}
	if len(replaced) != 1 || replaced[0] != "lessons/a.pdf" {
		t.Fatalf("replaced: got=%v", replaced)
	}
	if _, err := pdf.Update(p, domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "x", ContentType: "image/png"}}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("png: want ErrInvalidArgument got=%v", err)
	}
}

func TestRegistryCleanupAndRestore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	set := catalogrepo.NewSet(db, testutil.Logger(t), catalog.DefaultHierarchy())
	reg, err := NewRegistry(testutil.Logger(t), set)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	course := testutil.SeedCourse(t, ctx, tx, nil, lifecycle.StatusDraft, 1)
	ch := testutil.SeedChapter(t, ctx, tx, course.ID, lifecycle.StatusDraft, 1)
	textLesson := testutil.SeedLesson(t, ctx, tx, ch.ID, lifecycle.StatusDraft, 1)
	pdfLesson := testutil.SeedLesson(t, ctx, tx, ch.ID, lifecycle.StatusDraft, 2)

	pdf, _ := reg.For(catalog.LessonTypePdf)
	p, err := pdf.Prepare(pdfLesson.ID, &domainagg.ContentInput{Pdf: &domainagg.PdfObject{StorageKey: "lessons/doc.pdf"}})
	if err != nil {
		t.Fatalf("Prepare pdf: %v", err)
	}
	if err := pdf.Repo().Create(dbc, p); err != nil {
		t.Fatalf("create pdf payload: %v", err)
	}

	lessonIDs := []uuid.UUID{textLesson.ID, pdfLesson.ID}
	ids, err := reg.CleanupOnDelete(dbc, lessonIDs, uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatalf("CleanupOnDelete: %v", err)
	}
	// Seeded lessons carry a text payload; the pdf lesson has both.
	if len(ids) != 3 {
		t.Fatalf("payloads soft-deleted: want=3 got=%d", len(ids))
	}
	n, err := reg.Restore(dbc, ids)
	if err != nil || n != 3 {
		t.Fatalf("Restore: n=%d err=%v", n, err)
	}

	keys, err := reg.CleanupOnHardDelete(dbc, lessonIDs)
	if err != nil {
		t.Fatalf("CleanupOnHardDelete: %v", err)
	}
	if len(keys) != 1 || keys[0] != "lessons/doc.pdf" {
		t.Fatalf("blob keys: got=%v", keys)
	}
}

func TestPayloadAs(t *testing.T) {
	quiz := &catalog.LessonQuiz{}
	got, err := payloadAs[catalog.LessonQuiz](quiz)
	if err != nil || got != quiz {
		t.Fatalf("payloadAs match: want=%p got=%p err=%v", quiz, got, err)
	}
	if _, err := payloadAs[catalog.LessonContent](quiz); err == nil {
		t.Fatalf("payloadAs mismatch: want error")
	}

	text, _ := newRegistry(t).For(catalog.LessonTypeContent)
	if _, err := text.Update(quiz, domainagg.ContentInput{Body: strPtr("x")}); err == nil {
		t.Fatalf("text Update with quiz payload: want error")
	}
}
