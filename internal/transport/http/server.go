package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"paperchat/internal/bootstrap"
	"paperchat/internal/platform/database"
	"paperchat/internal/storage"
	"paperchat/internal/transport/http/handler"
	"paperchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.AccessLog(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)
	router.Static(storage.URLPrefix, app.Storage.Dir())

	Register(router.Group("/api/v1"), Handlers{
		Pipeline:  handler.NewPipelineHandler(app.PipelineService),
		Documents: handler.NewDocumentHandler(app.DocumentService, app.ChatService, app.Config.Ingest.MaxPDFBytes),
	}, app.Config.Auth.JWTSecret)

	return router
}

type Handlers struct {
	Pipeline  *handler.PipelineHandler
	Documents *handler.DocumentHandler
}

// Register mounts the authenticated API on group.
func Register(group *gin.RouterGroup, h Handlers, jwtSecret string) {
	group.Use(middleware.AuthJWT(jwtSecret))

	group.POST("/extract", h.Pipeline.Extract)
	group.POST("/embed", h.Pipeline.Embed)
	group.POST("/answer", h.Pipeline.Answer)

	docs := group.Group("/documents")
	docs.POST("", h.Documents.Upload)
	docs.POST("/register", h.Documents.Register)
	docs.GET("", h.Documents.List)
	docs.GET("/:id", h.Documents.Get)
	docs.DELETE("/:id", h.Documents.Delete)
	docs.POST("/:id/ingest", h.Documents.Ingest)
	docs.GET("/:id/progress", h.Documents.Progress)
	docs.GET("/:id/progress/stream", h.Documents.StreamProgress)
	docs.POST("/:id/search", h.Documents.Search)
	docs.POST("/:id/ask", h.Documents.Ask)
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := map[string]handler.Check{
		"database": nil,
		"redis":    nil,
		"rabbitmq": nil,
	}
	if app.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			return database.Ping(ctx, app.DB)
		}
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
