package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/coursecatalog-backend/internal/data/db"
	catalogrepo "github.com/yungbote/coursecatalog-backend/internal/data/repos/catalog"
	"github.com/yungbote/coursecatalog-backend/internal/domain/catalog"
	apphttp "github.com/yungbote/coursecatalog-backend/internal/http"
	"github.com/yungbote/coursecatalog-backend/internal/observability"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
	"github.com/yungbote/coursecatalog-backend/internal/platform/gcp"
	"github.com/yungbote/coursecatalog-backend/internal/realtime"
	"github.com/yungbote/coursecatalog-backend/internal/realtime/bus"
)

type App struct {
	Log       *logger.Logger
	DB        *gorm.DB
	Cfg       Config
	Hierarchy *catalog.Hierarchy
	Repos     *catalogrepo.Set
	Services  Services
	Metrics   *observability.Metrics
	Hub       *realtime.Hub
	Bus       bus.Bus
	Server    *apphttp.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	fail := func(err error) (*App, error) {
		log.Sync()
		return nil, err
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	h, err := catalog.LoadHierarchy(log)
	if err != nil {
		return fail(fmt.Errorf("load hierarchy: %w", err))
	}

	theDB, err := openDB(log, cfg)
	if err != nil {
		return fail(err)
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		return fail(fmt.Errorf("automigrate: %w", err))
	}
	if err := db.EnsureCatalogIndexes(theDB, h); err != nil {
		return fail(fmt.Errorf("catalog indexes: %w", err))
	}
	if sqlDB, err := theDB.DB(); err == nil {
		metrics.RegisterDBStats(sqlDB, cfg.DBDriver)
	}

	var blobs gcp.BlobStore
	if strings.TrimSpace(cfg.BlobBucket) == "" {
		log.Warn("BLOB_BUCKET not set; pdf lesson uploads are disabled")
	} else {
		blobs, err = resolveBlobStore(ctx, log, cfg)
		if err != nil {
			return fail(err)
		}
	}

	eventBus, err := wireBus(ctx, log)
	if err != nil {
		return fail(err)
	}
	hub := realtime.NewHub(log)

	reposet := wireRepos(theDB, log, h)
	serviceset, err := wireServices(theDB, log, reposet, blobs, eventBus, metrics)
	if err != nil {
		_ = eventBus.Close()
		return fail(err)
	}
	handlerset, err := wireHandlers(log, theDB, serviceset, hub)
	if err != nil {
		_ = eventBus.Close()
		return fail(err)
	}
	server := apphttp.NewServer(":"+cfg.Port, wireRouterConfig(log, cfg, metrics, handlerset))

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Hierarchy:    h,
		Repos:        reposet,
		Services:     serviceset,
		Metrics:      metrics,
		Hub:          hub,
		Bus:          eventBus,
		Server:       server,
		otelShutdown: otelShutdown,
	}, nil
}

func openDB(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case DBDriverPostgres:
		pg, err := db.NewPostgresService(log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		return pg.DB(), nil
	case DBDriverSQLite:
		return db.OpenSQLite(cfg.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// wireBus selects redis when REDIS_ADDR is set and the in-process bus otherwise.
func wireBus(ctx context.Context, log *logger.Logger) (bus.Bus, error) {
	redisCfg := bus.RedisConfigFromEnv(log)
	if redisCfg.Addr == "" {
		log.Info("REDIS_ADDR not set; catalog events stay in process")
		return bus.NewLocalBus(), nil
	}
	b, err := bus.NewRedisBus(ctx, log, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("init redis bus: %w", err)
	}
	return b, nil
}

// Run serves HTTP and fans bus messages into the realtime hub until ctx is
// cancelled, then shuts the server down within Cfg.ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Bus.StartForwarder(ctx, a.Hub.Publish); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
		return a.Server.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Log.Warn("event bus close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
