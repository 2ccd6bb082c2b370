package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
)

func PtrUUID(id uuid.UUID) *uuid.UUID { return &id }

func node(title string, status lifecycle.Status, position int) catalog.Node {
	return catalog.Node{
		ID:        uuid.New(),
		Title:     title,
		Slug:      fmt.Sprintf("%s-%s", title, uuid.NewString()[:8]),
		Position:  position,
		Lifecycle: catalog.Lifecycle{Status: status},
	}
}

func create(tb testing.TB, ctx context.Context, tx *gorm.DB, row any, what string) {
	tb.Helper()
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed %s: %v", what, err)
	}
}

func SeedCategory(tb testing.TB, ctx context.Context, tx *gorm.DB, status lifecycle.Status, position int) *catalog.Category {
	tb.Helper()
	c := &catalog.Category{Node: node("category", status, position)}
	create(tb, ctx, tx, c, "category")
	return c
}

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, categoryID *uuid.UUID, status lifecycle.Status, position int) *catalog.Course {
	tb.Helper()
	c := &catalog.Course{Node: node("course", status, position), CategoryID: categoryID}
	create(tb, ctx, tx, c, "course")
	return c
}

func SeedChapter(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, status lifecycle.Status, position int) *catalog.Chapter {
	tb.Helper()
	c := &catalog.Chapter{Node: node("chapter", status, position), CourseID: PtrUUID(courseID)}
	create(tb, ctx, tx, c, "chapter")
	return c
}

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, chapterID uuid.UUID, status lifecycle.Status, position int) *catalog.Lesson {
	tb.Helper()
	l := &catalog.Lesson{Node: node("lesson", status, position), ChapterID: PtrUUID(chapterID), Type: catalog.LessonTypeContent}
	create(tb, ctx, tx, l, "lesson")
	create(tb, ctx, tx, &catalog.LessonContent{PayloadRow: catalog.PayloadRow{LessonID: l.ID}, Format: "markdown", Body: "body"}, "lesson content")
	return l
}

func SeedLibrary(tb testing.TB, ctx context.Context, tx *gorm.DB, status lifecycle.Status, position int) *catalog.ResourceLibrary {
	tb.Helper()
	l := &catalog.ResourceLibrary{Node: node("library", status, position)}
	create(tb, ctx, tx, l, "resource library")
	return l
}

func SeedResource(tb testing.TB, ctx context.Context, tx *gorm.DB, libraryID uuid.UUID, status lifecycle.Status, position int) *catalog.Resource {
	tb.Helper()
	r := &catalog.Resource{Node: node("resource", status, position), LibraryID: PtrUUID(libraryID), URL: "https://example.com/r", Kind: "link"}
	create(tb, ctx, tx, r, "resource")
	return r
}
