package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

// DefaultFailDurationMs applies to a step until it has at least two
// successful items to base an outlier threshold on.
const DefaultFailDurationMs = 7_200_000

type WorkFailerConfig struct {
	// Period between ticks.
	Period time.Duration
	// DefaultFailDuration replaces DefaultFailDurationMs when positive.
	DefaultFailDuration time.Duration
	RetryLimit          int
}

// FailerResult reports what a tick touched, for tests and metrics.
type FailerResult struct {
	JobIDs      []uuid.UUID
	WorkItemIDs []int64
}

type WorkFailerService interface {
	// Tick requeues or fails RUNNING items stuck past their threshold. Each
	// candidate is handled in its own transaction so one bad row cannot
	// wedge the pass.
	Tick(ctx context.Context) (*FailerResult, error)
	Start(ctx context.Context)
}

type workFailerService struct {
	db    *gorm.DB
	log   *logger.Logger
	jobs  repos.JobRepo
	items repos.WorkItemRepo
	work  *workService
	cfg   WorkFailerConfig
}

func NewWorkFailerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	items repos.WorkItemRepo,
	work WorkService,
	cfg WorkFailerConfig,
) WorkFailerService {
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	if cfg.DefaultFailDuration <= 0 {
		cfg.DefaultFailDuration = DefaultFailDurationMs * time.Millisecond
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	return &workFailerService{
		db:    db,
		log:   baseLog.With("service", "WorkFailerService"),
		jobs:  jobs,
		items: items,
		work:  work.(*workService),
		cfg:   cfg,
	}
}

func (s *workFailerService) Start(ctx context.Context) {
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
					s.log.Warn("Work failer tick failed", "error", err)
					continue
				}
				if len(res.WorkItemIDs) > 0 {
					s.log.Info("Work failer reclaimed stuck items",
						"workItems", len(res.WorkItemIDs), "jobs", len(res.JobIDs))
				}
			}
		}
	}()
}

func (s *workFailerService) Tick(ctx context.Context) (*FailerResult, error) {
	// The scan window is the smallest threshold any step can have; per-item
	// thresholds are rechecked below.
	cutoff := time.Now().Add(-s.cfg.Period)
	candidates, err := s.items.RunningOlderThan(dbctx.Context{Ctx: ctx}, cutoff, 0)
	if err != nil {
		return nil, fmt.Errorf("find stuck items: %w", err)
	}

	var (
		mu     sync.Mutex
		result FailerResult
		seen   = map[uuid.UUID]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, candidate := range candidates {
		item := candidate
		g.Go(func() error {
			touched, err := s.handleCandidate(gctx, item)
			if err != nil {
				// Log and keep going; the next tick retries.
				s.log.Warn("Failed to handle stuck work item",
					"workItemID", item.ID, "jobID", item.JobID, "error", err)
				return nil
			}
			if touched {
				mu.Lock()
				result.WorkItemIDs = append(result.WorkItemIDs, item.ID)
				if !seen[item.JobID] {
					seen[item.JobID] = true
					result.JobIDs = append(result.JobIDs, item.JobID)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *workFailerService) handleCandidate(ctx context.Context, stale *types.WorkItem) (bool, error) {
	touched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		job, err := s.jobs.GetByJobID(dbc, stale.JobID, true)
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if job == nil || job.Status.Terminal() {
			return nil
		}

		item, err := s.items.GetByID(dbc, stale.ID, true)
		if err != nil {
			return fmt.Errorf("lock item: %w", err)
		}
		if item == nil || item.Status != types.WorkItemStatusRunning {
			// Completed or reclaimed since discovery.
			return nil
		}

		threshold, err := s.failThreshold(dbc, item)
		if err != nil {
			return err
		}
		if time.Since(item.UpdatedAt) < threshold {
			return nil
		}

		touched = true
		if item.RetryCount < s.cfg.RetryLimit {
			return s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
				"status":      types.WorkItemStatusReady,
				"retry_count": item.RetryCount + 1,
				"started_at":  nil,
			})
		}

		message := fmt.Sprintf("Work item exceeded the %d ms processing limit", threshold.Milliseconds())
		if err := s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
			"status":  types.WorkItemStatusFailed,
			"message": message,
		}); err != nil {
			return fmt.Errorf("persist failed item: %w", err)
		}
		return s.work.handleFinalFailure(dbc, job, message)
	})
	return touched, err
}

// failThreshold is twice the longest successful duration at the item's
// (job, service, step) when at least two successes exist, else the default.
func (s *workFailerService) failThreshold(dbc dbctx.Context, item *types.WorkItem) (time.Duration, error) {
	durations, err := s.items.SuccessfulDurations(dbc, item.JobID, item.ServiceID, item.WorkflowStepIndex)
	if err != nil {
		return 0, fmt.Errorf("load successful durations: %w", err)
	}
	if len(durations) < 2 {
		return s.cfg.DefaultFailDuration, nil
	}
	var max int64
	for _, d := range durations {
		if d > max {
			max = d
		}
	}
	return 2 * time.Duration(max) * time.Millisecond, nil
}
