package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coursecatalog-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursecatalog-backend/internal/http/middleware"
	"github.com/yungbote/coursecatalog-backend/internal/observability"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	CatalogHandler       *httpH.CatalogHandler
	LessonContentHandler *httpH.LessonContentHandler
	RealtimeHandler      *httpH.RealtimeHandler
	HealthHandler        *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/events", cfg.RealtimeHandler.Stream)
		}

		// Lesson payloads
		if cfg.LessonContentHandler != nil {
			api.GET("/lessons/:id/content", cfg.LessonContentHandler.GetContent)
			api.PUT("/lessons/:id/content", cfg.LessonContentHandler.UpdateContent)
			api.POST("/lessons/:id/pdf", cfg.LessonContentHandler.UploadPdf)
			api.GET("/lessons/:id/pdf", cfg.LessonContentHandler.DownloadPdf)
		}

		// Catalog levels
		if cfg.CatalogHandler != nil {
			cfg.CatalogHandler.Register(api)
		}
	}

	return r
}
