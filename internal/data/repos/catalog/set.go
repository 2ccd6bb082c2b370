package catalog

import (
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// Set bundles every repo of the catalog, indexed by level and lesson type.
type Set struct {
	Hierarchy *domain.Hierarchy
	Nodes     map[domain.Level]NodeRepo
	Entities  map[domain.Level]EntityRepo
	Payloads  map[domain.LessonType]PayloadRepo
	Batches   DeletionBatchRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger, h *domain.Hierarchy) *Set {
	s := &Set{
		Hierarchy: h,
		Nodes:     map[domain.Level]NodeRepo{},
		Entities:  map[domain.Level]EntityRepo{},
		Payloads: map[domain.LessonType]PayloadRepo{
			domain.LessonTypeContent:    NewPayloadRepo[domain.LessonContent](db, baseLog, domain.LessonTypeContent),
			domain.LessonTypeAssignment: NewPayloadRepo[domain.LessonAssignment](db, baseLog, domain.LessonTypeAssignment),
			domain.LessonTypeQuiz:       NewPayloadRepo[domain.LessonQuiz](db, baseLog, domain.LessonTypeQuiz),
			domain.LessonTypePdf:        NewPayloadRepo[domain.LessonPdf](db, baseLog, domain.LessonTypePdf),
		},
		Batches: NewDeletionBatchRepo(db, baseLog),
	}
	for _, level := range h.Levels() {
		spec := h.MustSpec(level)
		s.Nodes[level] = NewNodeRepo(db, baseLog, h, level)
		s.Entities[level] = newEntityRepoFor(db, baseLog, spec)
	}
	return s
}

func newEntityRepoFor(db *gorm.DB, baseLog *logger.Logger, spec domain.LevelSpec) EntityRepo {
	switch spec.Level {
	case domain.LevelCategory:
		return NewEntityRepo[domain.Category](db, baseLog, spec)
	case domain.LevelCourse:
		return NewEntityRepo[domain.Course](db, baseLog, spec)
	case domain.LevelChapter:
		return NewEntityRepo[domain.Chapter](db, baseLog, spec)
	case domain.LevelLesson:
		return NewEntityRepo[domain.Lesson](db, baseLog, spec)
	case domain.LevelResourceLibrary:
		return NewEntityRepo[domain.ResourceLibrary](db, baseLog, spec)
	case domain.LevelResource:
		return NewEntityRepo[domain.Resource](db, baseLog, spec)
	}
	panic(fmt.Sprintf("no entity model for level %q", spec.Level))
}

func (s *Set) Node(level domain.Level) (NodeRepo, error) {
	r, ok := s.Nodes[level]
	if !ok {
		return nil, fmt.Errorf("unknown catalog level %q", level)
	}
	return r, nil
}

func (s *Set) Entity(level domain.Level) (EntityRepo, error) {
	r, ok := s.Entities[level]
	if !ok {
		return nil, fmt.Errorf("unknown catalog level %q", level)
	}
	return r, nil
}

func (s *Set) Payload(t domain.LessonType) (PayloadRepo, error) {
	r, ok := s.Payloads[t]
	if !ok {
		return nil, fmt.Errorf("unknown lesson type %q", t)
	}
	return r, nil
}
