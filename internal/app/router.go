package app

import (
	"github.com/gin-gonic/gin"

	httpx "github.com/eosdis/harmony-workflow/internal/http"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers, mw Middleware) *gin.Engine {
	log.Info("Wiring router...")
	return httpx.NewRouter(httpx.RouterConfig{
		Log:            log,
		ServiceName:    "harmony-workflow",
		AuthMiddleware: mw.Auth,
		JobHandler:     handlerset.Job,
		StacHandler:    handlerset.Stac,
		WorkHandler:    handlerset.Work,
		HealthHandler:  handlerset.Health,
	})
}
