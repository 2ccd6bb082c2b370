package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/coursecatalog-backend/internal/http"
	httpH "github.com/yungbote/coursecatalog-backend/internal/http/handlers"
	"github.com/yungbote/coursecatalog-backend/internal/observability"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/realtime"
)

type Handlers struct {
	Health        *httpH.HealthHandler
	Catalog       *httpH.CatalogHandler
	LessonContent *httpH.LessonContentHandler
	Realtime      *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services, hub *realtime.Hub) (Handlers, error) {
	log.Info("Wiring handlers...")
	if err := httpH.RegisterValidators(); err != nil {
		return Handlers{}, err
	}
	var pinger httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		pinger = sqlDB
	}
	levels := make([]string, 0)
	for _, l := range services.Catalog.Hierarchy().Levels() {
		levels = append(levels, string(l))
	}
	return Handlers{
		Health:        httpH.NewHealthHandler(pinger),
		Catalog:       httpH.NewCatalogHandler(log, services.Catalog),
		LessonContent: httpH.NewLessonContentHandler(log, services.Catalog),
		Realtime:      httpH.NewRealtimeHandler(log, hub, levels),
	}, nil
}

func wireRouterConfig(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:                  log,
		Metrics:              metrics,
		ServiceName:          cfg.ServiceName,
		CORSOrigins:          cfg.CORSOrigins,
		CatalogHandler:       handlers.Catalog,
		LessonContentHandler: handlers.LessonContent,
		RealtimeHandler:      handlers.Realtime,
		HealthHandler:        handlers.Health,
	}
}
