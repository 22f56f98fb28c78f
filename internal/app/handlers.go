package app

import (
	httpH "github.com/eosdis/harmony-workflow/internal/http/handlers"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type Handlers struct {
	Job    *httpH.JobHandler
	Stac   *httpH.StacHandler
	Work   *httpH.WorkHandler
	Health *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Job:    httpH.NewJobHandler(serviceset.Job),
		Stac:   httpH.NewStacHandler(serviceset.Job),
		Work:   httpH.NewWorkHandler(serviceset.Work),
		Health: httpH.NewHealthHandler(),
	}
}
