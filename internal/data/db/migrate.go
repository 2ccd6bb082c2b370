package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(catalog.AllModels()...)
}

// EnsureCatalogIndexes adds the sibling-scope indexes AutoMigrate cannot
// express. Position is not unique since soft-deleted rows keep theirs.
func EnsureCatalogIndexes(db *gorm.DB, h *catalog.Hierarchy) error {
	for _, level := range h.Levels() {
		spec := h.MustSpec(level)
		cols := "position"
		if !spec.IsRoot() {
			cols = spec.ParentColumn + ", position"
		}
		stmt := fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_scope_position ON %s (%s)",
			spec.Table, spec.Table, cols,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create idx_%s_scope_position: %w", spec.Table, err)
		}
	}
	return nil
}
