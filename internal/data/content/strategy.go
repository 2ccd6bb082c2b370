package content

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// Strategy owns the payload table of one lesson type. Input failures wrap
// pkgerrors.ErrInvalidArgument.
type Strategy interface {
	Type() catalog.LessonType
	Repo() catalogrepo.PayloadRepo

	// Prepare builds the initial payload of a new lesson; nil input yields defaults.
	Prepare(lessonID uuid.UUID, in *domainagg.ContentInput) (catalog.Payload, error)
	// Update applies in onto p and returns blob keys it replaced.
	Update(p catalog.Payload, in domainagg.ContentInput) ([]string, error)

	CleanupOnDelete(dbc dbctx.Context, lessonIDs []uuid.UUID, batchID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	// CleanupOnHardDelete removes payload rows, deleted or not, and returns the blob keys they referenced.
	CleanupOnHardDelete(dbc dbctx.Context, lessonIDs []uuid.UUID) ([]string, error)
	Restore(dbc dbctx.Context, payloadIDs []uuid.UUID) (int64, error)
}

// Registry maps lesson types to their strategies.
type Registry struct {
	log        *logger.Logger
	strategies map[catalog.LessonType]Strategy
}

func NewRegistry(baseLog *logger.Logger, repos *catalogrepo.Set) (*Registry, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	r := &Registry{
		log:        baseLog.With("component", "ContentRegistry"),
		strategies: map[catalog.LessonType]Strategy{},
	}
	for _, t := range catalog.LessonTypes {
		repo, err := repos.Payload(t)
		if err != nil {
			return nil, err
		}
		b := base{repo: repo}
		switch t {
		case catalog.LessonTypeContent:
			r.strategies[t] = &textStrategy{base: b}
		case catalog.LessonTypeAssignment:
			r.strategies[t] = &assignmentStrategy{base: b}
		case catalog.LessonTypeQuiz:
			r.strategies[t] = &quizStrategy{base: b, validate: v}
		case catalog.LessonTypePdf:
			r.strategies[t] = &pdfStrategy{base: b}
		default:
			return nil, fmt.Errorf("no content strategy for lesson type %q", t)
		}
	}
	return r, nil
}

func (r *Registry) For(t catalog.LessonType) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown lesson type %q", pkgerrors.ErrInvalidArgument, t)
	}
	return s, nil
}

func (r *Registry) ordered() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// CleanupOnDelete soft-deletes the payloads of lessons of any type.
func (r *Registry) CleanupOnDelete(dbc dbctx.Context, lessonIDs []uuid.UUID, batchID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var all []uuid.UUID
	for _, s := range r.ordered() {
		ids, err := s.CleanupOnDelete(dbc, lessonIDs, batchID, at)
		if err != nil {
			return nil, fmt.Errorf("%s payloads: %w", s.Type(), err)
		}
		all = append(all, ids...)
	}
	return all, nil
}

func (r *Registry) CleanupOnHardDelete(dbc dbctx.Context, lessonIDs []uuid.UUID) ([]string, error) {
	var keys []string
	for _, s := range r.ordered() {
		k, err := s.CleanupOnHardDelete(dbc, lessonIDs)
		if err != nil {
			return nil, fmt.Errorf("%s payloads: %w", s.Type(), err)
		}
		keys = append(keys, k...)
	}
	return keys, nil
}

func (r *Registry) Restore(dbc dbctx.Context, payloadIDs []uuid.UUID) (int64, error) {
	var n int64
	for _, s := range r.ordered() {
		got, err := s.Restore(dbc, payloadIDs)
		if err != nil {
			return n, fmt.Errorf("%s payloads: %w", s.Type(), err)
		}
		n += got
	}
	return n, nil
}

type base struct {
	repo catalogrepo.PayloadRepo
}

func (b base) Type() catalog.LessonType { return b.repo.Type() }

func (b base) Repo() catalogrepo.PayloadRepo { return b.repo }

func (b base) CleanupOnDelete(dbc dbctx.Context, lessonIDs []uuid.UUID, batchID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	return b.repo.SoftDeleteByLessonIDs(dbc, lessonIDs, batchID, at)
}

func (b base) CleanupOnHardDelete(dbc dbctx.Context, lessonIDs []uuid.UUID) ([]string, error) {
	_, err := b.repo.FullDeleteByLessonIDs(dbc, lessonIDs)
	return nil, err
}

func (b base) Restore(dbc dbctx.Context, payloadIDs []uuid.UUID) (int64, error) {
	return b.repo.RestoreByIDs(dbc, payloadIDs)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{pkgerrors.ErrInvalidArgument}, args...)...)
}

func payloadAs[T any](p catalog.Payload) (*T, error) {
	typed, ok := any(p).(*T)
	if !ok {
		return nil, fmt.Errorf("unexpected payload %T", p)
	}
	return typed, nil
}
