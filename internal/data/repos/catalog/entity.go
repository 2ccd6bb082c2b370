package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/pagination"
)

type ListQuery struct {
	// ParentID filters by scope; ignored on root levels.
	ParentID       *uuid.UUID
	Status         *lifecycle.Status
	IncludeDeleted bool
	Page           pagination.Params
}

// EntityRepo persists the full typed model of one level.
type EntityRepo interface {
	Level() domain.Level
	New() domain.Entity

	Create(dbc dbctx.Context, e domain.Entity) error
	Save(dbc dbctx.Context, e domain.Entity) error
	GetByID(dbc dbctx.Context, id uuid.UUID, includeDeleted bool) (domain.Entity, error)
	List(dbc dbctx.Context, q ListQuery) ([]domain.Entity, pagination.Meta, error)
}

type entityModel[T any] interface {
	*T
	domain.Entity
}

type entityRepo[T any, PT entityModel[T]] struct {
	db   *gorm.DB
	log  *logger.Logger
	spec domain.LevelSpec
}

func NewEntityRepo[T any, PT entityModel[T]](db *gorm.DB, baseLog *logger.Logger, spec domain.LevelSpec) EntityRepo {
	return &entityRepo[T, PT]{
		db:   db,
		log:  baseLog.With("repo", "EntityRepo", "level", string(spec.Level)),
		spec: spec,
	}
}

func (r *entityRepo[T, PT]) Level() domain.Level { return r.spec.Level }

func (r *entityRepo[T, PT]) New() domain.Entity { return PT(new(T)) }

func (r *entityRepo[T, PT]) Create(dbc dbctx.Context, e domain.Entity) error {
	return dbc.DB(r.db).Create(e).Error
}

func (r *entityRepo[T, PT]) Save(dbc dbctx.Context, e domain.Entity) error {
	return dbc.DB(r.db).Save(e).Error
}

func (r *entityRepo[T, PT]) GetByID(dbc dbctx.Context, id uuid.UUID, includeDeleted bool) (domain.Entity, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	t := dbc.DB(r.db)
	if includeDeleted {
		t = t.Unscoped()
	}
	var rows []T
	if err := t.Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return PT(&rows[0]), nil
}

func (r *entityRepo[T, PT]) List(dbc dbctx.Context, q ListQuery) ([]domain.Entity, pagination.Meta, error) {
	t := dbc.DB(r.db).Model(PT(new(T)))
	if q.IncludeDeleted {
		t = t.Unscoped()
	}
	if !r.spec.IsRoot() && q.ParentID != nil {
		t = t.Where(r.spec.ParentColumn+" = ?", *q.ParentID)
	}
	if q.Status != nil {
		t = t.Where("status = ?", string(*q.Status))
	}

	var rows []T
	meta, err := pagination.Paginate(t, &rows, q.Page, "position ASC, id ASC")
	if err != nil {
		return nil, pagination.Meta{}, err
	}
	out := make([]domain.Entity, 0, len(rows))
	for i := range rows {
		out = append(out, PT(&rows[i]))
	}
	return out, meta, nil
}
