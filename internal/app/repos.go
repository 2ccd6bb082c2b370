package app

import (
	"gorm.io/gorm"

	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

func wireRepos(db *gorm.DB, log *logger.Logger, h *catalog.Hierarchy) *catalogrepo.Set {
	log.Info("Wiring repos...")
	return catalogrepo.NewSet(db, log, h)
}
