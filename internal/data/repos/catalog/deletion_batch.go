package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

type DeletionBatchRepo interface {
	Create(dbc dbctx.Context, b *domain.DeletionBatch) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.DeletionBatch, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	DeleteByRootIDs(dbc dbctx.Context, rootIDs []uuid.UUID) (int64, error)
}

type deletionBatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeletionBatchRepo(db *gorm.DB, baseLog *logger.Logger) DeletionBatchRepo {
	return &deletionBatchRepo{db: db, log: baseLog.With("repo", "DeletionBatchRepo")}
}

func (r *deletionBatchRepo) Create(dbc dbctx.Context, b *domain.DeletionBatch) error {
	return dbc.DB(r.db).Create(b).Error
}

func (r *deletionBatchRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.DeletionBatch, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var rows []domain.DeletionBatch
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *deletionBatchRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).Where("id IN ?", ids).Delete(&domain.DeletionBatch{}).Error
}

// DeleteByRootIDs drops batches rooted at any of rootIDs.
func (r *deletionBatchRepo) DeleteByRootIDs(dbc dbctx.Context, rootIDs []uuid.UUID) (int64, error) {
	if len(rootIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("root_id IN ?", rootIDs).Delete(&domain.DeletionBatch{})
	return res.RowsAffected, res.Error
}
