package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// OpenSQLite opens a SQLite database for local runs and tests. SQLite allows
// a single writer, so the pool is pinned to one connection.
func OpenSQLite(path string, logg *logger.Logger) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if logg != nil {
		logg.Info("Opened sqlite database", "path", path)
	}
	return db, nil
}
