package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// PayloadRepo persists one lesson payload table, keyed by lesson id.
type PayloadRepo interface {
	Type() domain.LessonType
	New() domain.Payload

	GetByLessonID(dbc dbctx.Context, lessonID uuid.UUID, includeDeleted bool) (domain.Payload, error)
	GetByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID, includeDeleted bool) ([]domain.Payload, error)
	Create(dbc dbctx.Context, p domain.Payload) error
	Save(dbc dbctx.Context, p domain.Payload) error

	// SoftDeleteByLessonIDs returns the ids of the payload rows it deleted.
	SoftDeleteByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID, batchID uuid.UUID, at time.Time) ([]uuid.UUID, error)
	RestoreByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
	FullDeleteByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID) (int64, error)
}

type payloadModel[T any] interface {
	*T
	domain.Payload
}

type payloadRepo[T any, PT payloadModel[T]] struct {
	db  *gorm.DB
	log *logger.Logger
	typ domain.LessonType
}

func NewPayloadRepo[T any, PT payloadModel[T]](db *gorm.DB, baseLog *logger.Logger, typ domain.LessonType) PayloadRepo {
	return &payloadRepo[T, PT]{
		db:  db,
		log: baseLog.With("repo", "PayloadRepo", "lesson_type", string(typ)),
		typ: typ,
	}
}

func (r *payloadRepo[T, PT]) Type() domain.LessonType { return r.typ }

func (r *payloadRepo[T, PT]) New() domain.Payload { return PT(new(T)) }

func (r *payloadRepo[T, PT]) GetByLessonID(dbc dbctx.Context, lessonID uuid.UUID, includeDeleted bool) (domain.Payload, error) {
	rows, err := r.GetByLessonIDs(dbc, []uuid.UUID{lessonID}, includeDeleted)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *payloadRepo[T, PT]) GetByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID, includeDeleted bool) ([]domain.Payload, error) {
	out := []domain.Payload{}
	if len(lessonIDs) == 0 {
		return out, nil
	}
	t := dbc.DB(r.db)
	if includeDeleted {
		t = t.Unscoped()
	}
	var rows []T
	if err := t.Where("lesson_id IN ?", lessonIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out = append(out, PT(&rows[i]))
	}
	return out, nil
}

func (r *payloadRepo[T, PT]) Create(dbc dbctx.Context, p domain.Payload) error {
	return dbc.DB(r.db).Create(p).Error
}

func (r *payloadRepo[T, PT]) Save(dbc dbctx.Context, p domain.Payload) error {
	return dbc.DB(r.db).Save(p).Error
}

func (r *payloadRepo[T, PT]) SoftDeleteByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID, batchID uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	t := dbc.DB(r.db)
	var ids []uuid.UUID
	if err := t.Model(PT(new(T))).Where("lesson_id IN ?", lessonIDs).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err := t.Model(PT(new(T))).
		Where("id IN ?", ids).
		Updates(map[string]any{"deletion_batch_id": batchID, "deleted_at": at, "updated_at": at}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *payloadRepo[T, PT]) RestoreByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Unscoped().
		Model(PT(new(T))).
		Where("id IN ? AND deleted_at IS NOT NULL", ids).
		Updates(map[string]any{"deleted_at": nil, "deletion_batch_id": nil, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *payloadRepo[T, PT]) FullDeleteByLessonIDs(dbc dbctx.Context, lessonIDs []uuid.UUID) (int64, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Unscoped().
		Where("lesson_id IN ?", lessonIDs).
		Delete(PT(new(T)))
	return res.RowsAffected, res.Error
}
