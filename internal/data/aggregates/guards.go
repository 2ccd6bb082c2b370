package aggregates

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/domain/lifecycle"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/dbctx"
)

// CASGuard provides compare-and-set writes for aggregate flows.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.DB(nil), nil
	}
	if g.db != nil {
		return dbc.DB(g.db), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// UpdateByStatus updates an active row only while its status is one of
// allowed. It reports whether a row matched.
func (g CASGuard) UpdateByStatus(dbc dbctx.Context, table string, id uuid.UUID, allowed []lifecycle.Status, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id == uuid.Nil {
		return false, ValidationError("table and id are required for UpdateByStatus")
	}
	if len(allowed) == 0 {
		return false, ValidationError("allowed statuses must not be empty")
	}
	raw := make([]string, 0, len(allowed))
	for _, s := range allowed {
		raw = append(raw, string(s))
	}
	res := db.Table(table).
		Where("id = ? AND status IN ? AND deleted_at IS NULL", id, raw).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}

// RequireStatusAllowed validates current status against allowed values.
func RequireStatusAllowed(current lifecycle.Status, allowed ...lifecycle.Status) error {
	if len(allowed) == 0 {
		return ValidationError("allowed statuses cannot be empty")
	}
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return ConflictError("status changed concurrently")
}
