package app

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/platform/logger"
	"github.com/eosdis/harmony-workflow/internal/platform/tokencrypt"
	"github.com/eosdis/harmony-workflow/internal/services"
)

type Services struct {
	Work       services.WorkService
	Job        services.JobService
	ShareGate  services.ShareGateService
	WorkFailer services.WorkFailerService
	WorkReaper services.WorkReaperService
	DeadLetter services.DeadLetterService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	cipher, err := tokencrypt.New(cfg.SharedSecretKey)
	if err != nil {
		return Services{}, fmt.Errorf("init token cipher: %w", err)
	}

	workService := services.NewWorkService(
		db, log,
		reposet.Job,
		reposet.JobLink,
		reposet.WorkflowStep,
		reposet.WorkItem,
		clients.Store,
		services.WorkServiceConfig{
			RetryLimit:           cfg.WorkItemRetryLimit,
			CmrMaxPageSize:       cfg.CmrMaxPageSize,
			AggregateMaxPageSize: cfg.AggregateMaxPageSize,
		},
		nil,
	)

	shareGate := services.NewShareGateService(clients.Cmr, log)

	jobService := services.NewJobService(
		db, log,
		reposet.Job,
		reposet.JobLink,
		reposet.WorkflowStep,
		reposet.WorkItem,
		shareGate,
		cipher,
		services.JobServiceConfig{
			LinkPageSize: cfg.DefaultResultPageSize,
			S3Region:     cfg.AwsRegion,
		},
	)

	failer := services.NewWorkFailerService(
		db, log,
		reposet.Job,
		reposet.WorkItem,
		workService,
		services.WorkFailerConfig{
			Period:              cfg.WorkFailerPeriod,
			DefaultFailDuration: time.Duration(cfg.WorkFailerMinutes) * time.Minute,
			RetryLimit:          cfg.WorkItemRetryLimit,
		},
	)

	reaper := services.NewWorkReaperService(
		db, log,
		reposet.Job,
		reposet.WorkflowStep,
		reposet.WorkItem,
		services.WorkReaperConfig{
			Period: cfg.WorkReaperPeriod,
			MinAge: cfg.WorkReaperMinAge,
		},
	)

	deadLetter := services.NewDeadLetterService(
		clients.Redis, db, log,
		reposet.Job,
		reposet.WorkItem,
		services.DeadLetterConfig{Stream: cfg.DeadLetterStream},
	)

	return Services{
		Work:       workService,
		Job:        jobService,
		ShareGate:  shareGate,
		WorkFailer: failer,
		WorkReaper: reaper,
		DeadLetter: deadLetter,
	}, nil
}
