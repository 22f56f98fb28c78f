package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type WorkReaperConfig struct {
	Period time.Duration
	// MinAge is how long a terminal job must sit idle before its work items
	// and workflow steps are deleted. The job row itself is retained.
	MinAge    time.Duration
	BatchSize int
}

// ReaperResult reports what a tick deleted.
type ReaperResult struct {
	Jobs          int
	WorkItems     int64
	WorkflowSteps int64
}

type WorkReaperService interface {
	Tick(ctx context.Context) (*ReaperResult, error)
	Start(ctx context.Context)
}

type workReaperService struct {
	db    *gorm.DB
	log   *logger.Logger
	jobs  repos.JobRepo
	steps repos.WorkflowStepRepo
	items repos.WorkItemRepo
	cfg   WorkReaperConfig
}

func NewWorkReaperService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	steps repos.WorkflowStepRepo,
	items repos.WorkItemRepo,
	cfg WorkReaperConfig,
) WorkReaperService {
	if cfg.Period <= 0 {
		cfg.Period = 6 * time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &workReaperService{
		db:    db,
		log:   baseLog.With("service", "WorkReaperService"),
		jobs:  jobs,
		steps: steps,
		items: items,
		cfg:   cfg,
	}
}

func (s *workReaperService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := s.Tick(ctx)
				if err != nil {
					s.log.Warn("Work reaper tick failed", "error", err)
					continue
				}
				if res.Jobs > 0 {
					s.log.Info("Reaped terminated jobs",
						"jobs", res.Jobs, "workItems", res.WorkItems, "workflowSteps", res.WorkflowSteps)
				}
			}
		}
	}()
}

func (s *workReaperService) Tick(ctx context.Context) (*ReaperResult, error) {
	result := &ReaperResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		ids, err := s.jobs.TerminalOlderThan(dbc, s.cfg.MinAge, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("find reapable jobs: %w", err)
		}
		for start := 0; start < len(ids); start += 50 {
			end := start + 50
			if end > len(ids) {
				end = len(ids)
			}
			items, err := s.items.DeleteByJobIDs(dbc, ids[start:end])
			if err != nil {
				return fmt.Errorf("delete work items: %w", err)
			}
			steps, err := s.steps.DeleteByJobIDs(dbc, ids[start:end])
			if err != nil {
				return fmt.Errorf("delete workflow steps: %w", err)
			}
			if items > 0 || steps > 0 {
				result.Jobs += end - start
				result.WorkItems += items
				result.WorkflowSteps += steps
			}
		}
		return nil
	})
	return result, err
}
