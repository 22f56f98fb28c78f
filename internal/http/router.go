package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/eosdis/harmony-workflow/internal/http/handlers"
	httpMW "github.com/eosdis/harmony-workflow/internal/http/middleware"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	JobHandler  *httpH.JobHandler
	StacHandler *httpH.StacHandler
	WorkHandler *httpH.WorkHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "harmony-workflow"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Worker polling endpoints. Workers run inside the deployment boundary
	// and do not carry user sessions.
	if cfg.WorkHandler != nil {
		service := r.Group("/service")
		service.GET("/work", cfg.WorkHandler.GetWork)
		service.PUT("/work/:id", cfg.WorkHandler.UpdateWork)
	}

	protected := r.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireUser())
	}

	// Jobs
	if cfg.JobHandler != nil {
		protected.GET("/jobs", cfg.JobHandler.ListJobs(false))
		protected.GET("/jobs/:jobID", cfg.JobHandler.GetJobStatus(false))
		protected.POST("/jobs/:jobID/cancel", cfg.JobHandler.CancelJob(false))
		protected.POST("/jobs/:jobID/pause", cfg.JobHandler.PauseJob(false))
		protected.POST("/jobs/:jobID/resume", cfg.JobHandler.ResumeJob(false))
		protected.POST("/jobs/:jobID/skip-preview", cfg.JobHandler.SkipPreview(false))

		admin := protected.Group("/admin")
		if cfg.AuthMiddleware != nil {
			admin.Use(cfg.AuthMiddleware.RequireAdmin())
		}
		admin.GET("/jobs", cfg.JobHandler.ListJobs(true))
		admin.GET("/jobs/:jobID", cfg.JobHandler.GetJobStatus(true))
		admin.POST("/jobs/:jobID/cancel", cfg.JobHandler.CancelJob(true))
		admin.POST("/jobs/:jobID/pause", cfg.JobHandler.PauseJob(true))
		admin.POST("/jobs/:jobID/resume", cfg.JobHandler.ResumeJob(true))
		admin.POST("/jobs/:jobID/skip-preview", cfg.JobHandler.SkipPreview(true))
	}

	// STAC views of completed jobs
	if cfg.StacHandler != nil {
		protected.GET("/stac/:jobID", cfg.StacHandler.GetCatalog)
		protected.GET("/stac/:jobID/:index", cfg.StacHandler.GetItem)
	}

	return r
}
