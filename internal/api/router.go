package api

import (
	"github.com/docassist/docassist/internal/api/handler"
	"github.com/docassist/docassist/internal/api/middleware"
	"github.com/docassist/docassist/internal/service"
	"github.com/docassist/docassist/internal/source"
	"github.com/gin-gonic/gin"
)

// RouterDeps collects what the HTTP layer serves.
type RouterDeps struct {
	VisitService  *service.VisitService
	QueryService  *service.CaseQueryService
	IngestService *service.IngestService // nil disables the admin routes
	Provider      service.EmbeddingProvider
	Worker        *service.EmbeddingWorker
	Doctors       handler.DoctorReader
	Jobs          handler.JobReader     // nil hides job history
	Mirror        handler.MirrorCounter // nil when no vector index is mirrored
	Sources       map[string]source.Source
	ChatTopK      int
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string, auth middleware.AuthConfig, cors middleware.CORSConfig) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler(deps.VisitService, deps.Provider, deps.Worker, deps.Mirror)
	visitHandler := handler.NewVisitHandler(deps.VisitService, deps.QueryService)
	chatHandler := handler.NewChatHandler(deps.QueryService, deps.ChatTopK)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	v1.GET("/stats", healthHandler.GetStats)

	authed := v1.Group("", middleware.Auth(auth))
	{
		authed.POST("/visits", visitHandler.CreateVisit)
		authed.GET("/visits", visitHandler.ListVisits)
		authed.GET("/visits/:id", visitHandler.GetVisit)
		authed.DELETE("/visits/:id", visitHandler.DeleteVisit)
		authed.GET("/visits/:id/similar", visitHandler.SimilarVisits)

		authed.POST("/chat", chatHandler.Chat)

		if deps.Doctors != nil {
			authed.GET("/doctors/me", handler.NewDoctorHandler(deps.Doctors).Profile)
		}

		if deps.IngestService != nil {
			adminHandler := handler.NewAdminHandler(deps.IngestService, deps.Sources, deps.Jobs)
			admin := authed.Group("/admin")
			admin.POST("/ingest", adminHandler.TriggerIngest)
			admin.POST("/backfill", adminHandler.TriggerBackfill)
			admin.GET("/status", adminHandler.GetJobStatus)
			admin.GET("/jobs", adminHandler.ListJobs)
			admin.GET("/jobs/:id", adminHandler.GetJob)
		}
	}

	return r
}
