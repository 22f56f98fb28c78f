package app

import (
	httpMW "github.com/eosdis/harmony-workflow/internal/http/middleware"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config, clients Clients) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.SharedSecretKey, cfg.AdminGroup, clients.Edl),
	}
}
