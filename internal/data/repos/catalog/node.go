package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/coursecatalog-backend/internal/pkg/errors"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// NodeRow is the lifecycle projection of one row at any level.
type NodeRow struct {
	ID              uuid.UUID
	ParentID        *uuid.UUID
	Title           string
	Slug            string
	Status          lifecycle.Status
	Position        int
	DeletionBatchID *uuid.UUID
	DeletedAt       gorm.DeletedAt
}

func (n *NodeRow) Deleted() bool { return n.DeletedAt.Valid }

type ReadOptions struct {
	IncludeDeleted bool
	// Lock takes a FOR UPDATE row lock; it requires a transaction.
	Lock bool
}

type ListOptions struct {
	ReadOptions
	// BatchID restricts the result to rows soft-deleted by one cascade.
	BatchID *uuid.UUID
	// OnlyDeleted excludes active rows.
	OnlyDeleted bool
}

// NodeRepo reads and writes the lifecycle columns of one level. Every method
// falls back to the base db when dbc.Tx is nil.
type NodeRepo interface {
	Spec() domain.LevelSpec

	GetByID(dbc dbctx.Context, id uuid.UUID, opts ReadOptions) (*NodeRow, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID, opts ReadOptions) ([]*NodeRow, error)
	ListByParents(dbc dbctx.Context, parentIDs []uuid.UUID, opts ListOptions) ([]*NodeRow, error)
	ListByScope(dbc dbctx.Context, parentID *uuid.UUID, opts ListOptions) ([]*NodeRow, error)

	CountActiveByScope(dbc dbctx.Context, parentID *uuid.UUID) (int64, error)
	MaxPosition(dbc dbctx.Context, parentID *uuid.UUID) (int, error)
	SlugExists(dbc dbctx.Context, slug string, excludeID uuid.UUID) (bool, error)

	UpdateStatus(dbc dbctx.Context, ids []uuid.UUID, to lifecycle.Status, at time.Time) (int64, error)
	UpdatePositions(dbc dbctx.Context, positions map[uuid.UUID]int) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID, batchID uuid.UUID, at time.Time) (int64, error)
	RestoreByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error

	// LockScope serializes writers of one sibling scope.
	LockScope(dbc dbctx.Context, parentID *uuid.UUID) error
}

type nodeRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	spec domain.LevelSpec
	// parentTable owns the scope lock for non-root levels.
	parentTable string
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger, h *domain.Hierarchy, level domain.Level) NodeRepo {
	spec := h.MustSpec(level)
	r := &nodeRepo{
		db:   db,
		log:  baseLog.With("repo", "NodeRepo", "level", string(level)),
		spec: spec,
	}
	if p, ok := h.Parent(level); ok {
		r.parentTable = p.Table
	}
	return r
}

func (r *nodeRepo) Spec() domain.LevelSpec { return r.spec }

func (r *nodeRepo) parentExpr() string {
	if r.spec.IsRoot() {
		return "NULL AS parent_id"
	}
	return r.spec.ParentColumn + " AS parent_id"
}

func (r *nodeRepo) base(dbc dbctx.Context, opts ReadOptions) (*gorm.DB, error) {
	if opts.Lock && dbc.Tx == nil {
		return nil, pkgerrors.ErrTxRequired
	}
	q := dbc.DB(r.db).
		Unscoped().
		Table(r.spec.Table).
		Select("id, " + r.parentExpr() + ", title, slug, status, position, deletion_batch_id, deleted_at")
	if !opts.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if opts.Lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q, nil
}

func (r *nodeRepo) scopeWhere(q *gorm.DB, parentID *uuid.UUID) *gorm.DB {
	if r.spec.IsRoot() {
		return q
	}
	if parentID == nil {
		return q.Where(r.spec.ParentColumn + " IS NULL")
	}
	return q.Where(r.spec.ParentColumn+" = ?", *parentID)
}

func (r *nodeRepo) GetByID(dbc dbctx.Context, id uuid.UUID, opts ReadOptions) (*NodeRow, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id}, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// GetByIDs returns rows ordered by id so lock acquisition order is stable.
func (r *nodeRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID, opts ReadOptions) ([]*NodeRow, error) {
	var out []*NodeRow
	if len(ids) == 0 {
		return out, nil
	}
	q, err := r.base(dbc, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Where("id IN ?", ids).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) list(q *gorm.DB, opts ListOptions) ([]*NodeRow, error) {
	if opts.OnlyDeleted {
		q = q.Where("deleted_at IS NOT NULL")
	}
	if opts.BatchID != nil {
		q = q.Where("deletion_batch_id = ?", *opts.BatchID)
	}
	var out []*NodeRow
	if err := q.Order("position ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) ListByParents(dbc dbctx.Context, parentIDs []uuid.UUID, opts ListOptions) ([]*NodeRow, error) {
	if r.spec.IsRoot() {
		return nil, fmt.Errorf("%s has no parent column", r.spec.Level)
	}
	if len(parentIDs) == 0 {
		return []*NodeRow{}, nil
	}
	q, err := r.base(dbc, opts.ReadOptions)
	if err != nil {
		return nil, err
	}
	return r.list(q.Where(r.spec.ParentColumn+" IN ?", parentIDs), opts)
}

func (r *nodeRepo) ListByScope(dbc dbctx.Context, parentID *uuid.UUID, opts ListOptions) ([]*NodeRow, error) {
	q, err := r.base(dbc, opts.ReadOptions)
	if err != nil {
		return nil, err
	}
	return r.list(r.scopeWhere(q, parentID), opts)
}

func (r *nodeRepo) CountActiveByScope(dbc dbctx.Context, parentID *uuid.UUID) (int64, error) {
	var n int64
	q := dbc.DB(r.db).Table(r.spec.Table).Where("deleted_at IS NULL")
	if err := r.scopeWhere(q, parentID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// MaxPosition covers soft-deleted rows too so a restore can reclaim its slot.
func (r *nodeRepo) MaxPosition(dbc dbctx.Context, parentID *uuid.UUID) (int, error) {
	var max int
	q := dbc.DB(r.db).Table(r.spec.Table).Select("COALESCE(MAX(position), 0)")
	if err := r.scopeWhere(q, parentID).Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

func (r *nodeRepo) SlugExists(dbc dbctx.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var n int64
	q := dbc.DB(r.db).Table(r.spec.Table).Where("slug = ?", slug)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func timestampColumn(s lifecycle.Status) string {
	switch s {
	case lifecycle.StatusPublished:
		return "published_at"
	case lifecycle.StatusInactive:
		return "inactivated_at"
	case lifecycle.StatusArchived:
		return "archived_at"
	}
	return ""
}

// StatusUpdates is the column set for entering status to at: the status
// itself and the first-entry timestamp, which is kept when already set.
func StatusUpdates(to lifecycle.Status, at time.Time) map[string]any {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": at,
	}
	if col := timestampColumn(to); col != "" {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", at)
	}
	return updates
}

// UpdateStatus sets status on active rows and stamps the first-entry
// timestamp for the new state.
func (r *nodeRepo) UpdateStatus(dbc dbctx.Context, ids []uuid.UUID, to lifecycle.Status, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !to.Valid() {
		return 0, fmt.Errorf("%w: status %q", pkgerrors.ErrInvalidArgument, to)
	}
	res := dbc.DB(r.db).
		Table(r.spec.Table).
		Where("id IN ? AND deleted_at IS NULL", ids).
		Updates(StatusUpdates(to, at))
	return res.RowsAffected, res.Error
}

func (r *nodeRepo) UpdatePositions(dbc dbctx.Context, positions map[uuid.UUID]int) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	t := dbc.DB(r.db)
	now := time.Now().UTC()
	for _, id := range ids {
		pos := positions[id]
		if pos < 1 {
			return fmt.Errorf("%w: position %d for %s", pkgerrors.ErrInvalidArgument, pos, id)
		}
		if err := t.Table(r.spec.Table).
			Where("id = ?", id).
			Updates(map[string]any{"position": pos, "updated_at": now}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *nodeRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID, batchID uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Table(r.spec.Table).
		Where("id IN ? AND deleted_at IS NULL", ids).
		Updates(map[string]any{
			"deleted_at":        at,
			"deletion_batch_id": batchID,
			"updated_at":        at,
		})
	return res.RowsAffected, res.Error
}

func (r *nodeRepo) RestoreByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Table(r.spec.Table).
		Where("id IN ? AND deleted_at IS NOT NULL", ids).
		Updates(map[string]any{
			"deleted_at":        nil,
			"deletion_batch_id": nil,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *nodeRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Exec("DELETE FROM "+r.spec.Table+" WHERE id IN ?", ids).Error
}

func (r *nodeRepo) LockScope(dbc dbctx.Context, parentID *uuid.UUID) error {
	if dbc.Tx == nil {
		return pkgerrors.ErrTxRequired
	}
	if parentID != nil && r.parentTable != "" {
		var locked []uuid.UUID
		err := dbc.DB(r.db).
			Table(r.parentTable).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", *parentID).
			Pluck("id", &locked).Error
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return fmt.Errorf("%w: %s %s", pkgerrors.ErrNotFound, r.parentTable, *parentID)
		}
		return nil
	}
	if dbc.Tx.Dialector.Name() != "postgres" {
		return nil
	}
	return dbc.DB(r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "catalog_scope:"+r.spec.Table).Error
}
