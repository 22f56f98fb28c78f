package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/eosdis/harmony-workflow/internal/clients/cmr"
	"github.com/eosdis/harmony-workflow/internal/clients/edl"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
	"github.com/eosdis/harmony-workflow/internal/platform/objectstore"
)

type Clients struct {
	Cmr   *cmr.Client
	Edl   *edl.Client
	Redis *redis.Client
	Store objectstore.Store
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	var (
		store objectstore.Store
		err   error
	)
	switch cfg.ObjectStoreType {
	case "local":
		store, err = objectstore.NewLocalStore(log, cfg.HostVolumePath)
	default:
		store, err = objectstore.NewS3Store(ctx, log, cfg.ArtifactBucket, cfg.AwsRegion)
	}
	if err != nil {
		return Clients{}, fmt.Errorf("init object store: %w", err)
	}

	return Clients{
		Cmr:   cmr.NewClient(cfg.CmrEndpoint, cfg.ClientID, log),
		Edl:   edl.NewClient(cfg.EdlEndpoint, log),
		Redis: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
		Store: store,
	}, nil
}
