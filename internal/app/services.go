package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/data/aggregates"
	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/observability"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/platform/gcp"
	"github.com/yungbote/coursecatalog-backend/internal/realtime/bus"
	"github.com/yungbote/coursecatalog-backend/internal/services"
)

type Services struct {
	Catalog services.CatalogService
}

func wireServices(db *gorm.DB, log *logger.Logger, repos *catalogrepo.Set, blobs gcp.BlobStore, eventBus bus.Bus, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	agg, err := aggregates.NewCatalogAggregate(aggregates.CatalogAggregateDeps{
		BaseDeps: aggregates.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: aggregates.NewObservabilityHooks(metrics),
		},
		Repos: repos,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init catalog aggregate: %w", err)
	}
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Log:       log,
		Aggregate: agg,
		Repos:     repos,
		Blobs:     blobs,
		Bus:       eventBus,
		Metrics:   metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init catalog service: %w", err)
	}
	return Services{Catalog: catalogSvc}, nil
}
