package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
	"github.com/eosdis/harmony-workflow/internal/platform/objectstore"
)

// WorkResponse is what a polling worker receives. MaxCmrGranules is set only
// for the granule-index query stage.
type WorkResponse struct {
	Item           *types.WorkItem
	Operation      []byte
	MaxCmrGranules *int
}

// WorkItemUpdate carries the only worker-supplied fields the server trusts.
type WorkItemUpdate struct {
	Status             types.WorkItemStatus
	Results            []string
	OutputGranuleSizes []float64
	ErrorMessage       string
	ScrollID           string
	Hits               int
}

// CompletionPolicy decides the finalizing event once a job has no pending
// work left. anyFailed reports whether any item ended FAILED.
type CompletionPolicy func(job *types.Job, anyFailed bool) JobEvent

// DefaultCompletionPolicy completes with errors whenever a final failure
// occurred under ignoreErrors, even if every terminal-step item succeeded.
func DefaultCompletionPolicy(job *types.Job, anyFailed bool) JobEvent {
	if anyFailed {
		return EventCompleteWithErrors
	}
	return EventComplete
}

type WorkServiceConfig struct {
	RetryLimit           int
	CmrMaxPageSize       int
	AggregateMaxPageSize int
}

type WorkService interface {
	// GetWork claims the next ready item for the service under the fair
	// queuing policy. Returns nil when no work is available.
	GetWork(ctx context.Context, serviceID string) (*WorkResponse, error)
	// UpdateWork applies a worker's terminal status report and performs
	// result chaining.
	UpdateWork(ctx context.Context, itemID int64, upd WorkItemUpdate) error
}

type workService struct {
	db     *gorm.DB
	log    *logger.Logger
	jobs   repos.JobRepo
	links  repos.JobLinkRepo
	steps  repos.WorkflowStepRepo
	items  repos.WorkItemRepo
	store  objectstore.Store
	cfg    WorkServiceConfig
	policy CompletionPolicy
}

func NewWorkService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.JobRepo,
	links repos.JobLinkRepo,
	steps repos.WorkflowStepRepo,
	items repos.WorkItemRepo,
	store objectstore.Store,
	cfg WorkServiceConfig,
	policy CompletionPolicy,
) WorkService {
	if policy == nil {
		policy = DefaultCompletionPolicy
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.AggregateMaxPageSize <= 0 {
		cfg.AggregateMaxPageSize = 2000
	}
	return &workService{
		db:     db,
		log:    baseLog.With("service", "WorkService"),
		jobs:   jobs,
		links:  links,
		steps:  steps,
		items:  items,
		store:  store,
		cfg:    cfg,
		policy: policy,
	}
}

func (s *workService) GetWork(ctx context.Context, serviceID string) (*WorkResponse, error) {
	var resp *WorkResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		item, err := s.items.ClaimNextReady(dbc, serviceID)
		if err != nil {
			return fmt.Errorf("claim next ready item: %w", err)
		}
		if item == nil {
			return nil
		}

		job, err := s.jobs.GetByJobID(dbc, item.JobID, true)
		if err != nil {
			return fmt.Errorf("load job %s: %w", item.JobID, err)
		}
		if job == nil {
			return apierr.NotFound("job %s not found for work item %d", item.JobID, item.ID)
		}

		// First dispatch moves the job out of ACCEPTED.
		if job.Status == types.JobStatusAccepted {
			if err := ApplyEvent(job, EventDispatch, ApplyOptions{}); err != nil {
				return err
			}
			if err := s.jobs.Save(dbc, job); err != nil {
				return fmt.Errorf("save dispatched job: %w", err)
			}
		}

		step, err := s.steps.Get(dbc, item.JobID, item.WorkflowStepIndex)
		if err != nil {
			return fmt.Errorf("load workflow step: %w", err)
		}
		if step == nil {
			return apierr.Service(fmt.Errorf("workflow step %d missing for job %s", item.WorkflowStepIndex, item.JobID))
		}

		resp = &WorkResponse{Item: item, Operation: step.Operation}
		if step.IsQueryCmr() {
			remaining, err := s.remainingGranules(dbc, job, step)
			if err != nil {
				return err
			}
			if remaining <= 0 {
				// Nothing left to index. Retire the item so it does not
				// block the queue, and report no work.
				if err := s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
					"status": types.WorkItemStatusCanceled,
				}); err != nil {
					return fmt.Errorf("retire exhausted query item: %w", err)
				}
				resp = nil
				return nil
			}
			if s.cfg.CmrMaxPageSize > 0 && remaining > s.cfg.CmrMaxPageSize {
				remaining = s.cfg.CmrMaxPageSize
			}
			resp.MaxCmrGranules = &remaining
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// remainingGranules is the job's input estimate minus the granules already
// produced by completed items of the query stage.
func (s *workService) remainingGranules(dbc dbctx.Context, job *types.Job, step *types.WorkflowStep) (int, error) {
	done, err := s.items.GetByStepAndStatus(dbc, job.JobID, step.StepIndex,
		[]types.WorkItemStatus{types.WorkItemStatusSuccessful})
	if err != nil {
		return 0, fmt.Errorf("count produced granules: %w", err)
	}
	produced := 0
	for _, wi := range done {
		produced += len(wi.ResultURIs())
	}
	return job.NumInputGranules - produced, nil
}

func (s *workService) UpdateWork(ctx context.Context, itemID int64, upd WorkItemUpdate) error {
	switch upd.Status {
	case types.WorkItemStatusSuccessful, types.WorkItemStatusFailed:
	default:
		return apierr.Validation("invalid work item status %q", upd.Status)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		// Find the owning job first, then take locks job before item so all
		// writers within a job serialize the same way.
		peek, err := s.items.GetByID(dbc, itemID, false)
		if err != nil {
			return fmt.Errorf("load work item %d: %w", itemID, err)
		}
		if peek == nil {
			return apierr.NotFound("work item %d not found", itemID)
		}

		job, err := s.jobs.GetByJobID(dbc, peek.JobID, true)
		if err != nil {
			return fmt.Errorf("load job %s: %w", peek.JobID, err)
		}
		if job == nil {
			return apierr.NotFound("job %s not found", peek.JobID)
		}

		item, err := s.items.GetByID(dbc, itemID, true)
		if err != nil {
			return fmt.Errorf("lock work item %d: %w", itemID, err)
		}

		if item.Status.Terminal() {
			if item.Status == upd.Status {
				// Repeated identical reports are idempotent.
				return nil
			}
			return apierr.Conflict("work item %d already %s", item.ID, item.Status)
		}

		if upd.Status == types.WorkItemStatusSuccessful {
			return s.completeItem(dbc, job, item, upd)
		}
		return s.failItem(dbc, job, item, upd)
	})
}

func (s *workService) completeItem(dbc dbctx.Context, job *types.Job, item *types.WorkItem, upd WorkItemUpdate) error {
	now := time.Now()
	var duration int64
	if item.StartedAt != nil {
		duration = now.Sub(*item.StartedAt).Milliseconds()
	}
	item.Status = types.WorkItemStatusSuccessful
	item.DurationMs = duration
	item.ScrollID = upd.ScrollID
	item.SetResultURIs(upd.Results)
	item.SetOutputGranuleSizes(upd.OutputGranuleSizes)

	if err := s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
		"status":               item.Status,
		"duration_ms":          item.DurationMs,
		"scroll_id":            item.ScrollID,
		"results":              item.Results,
		"output_granule_sizes": item.OutputGranuleSizes,
	}); err != nil {
		return fmt.Errorf("persist successful item: %w", err)
	}

	step, err := s.steps.Get(dbc, job.JobID, item.WorkflowStepIndex)
	if err != nil {
		return fmt.Errorf("load workflow step: %w", err)
	}
	if step == nil {
		return apierr.Service(fmt.Errorf("workflow step %d missing for job %s", item.WorkflowStepIndex, job.JobID))
	}

	if step.IsQueryCmr() && upd.Hits > 0 && upd.Hits < job.NumInputGranules {
		if err := s.shrinkToHits(dbc, job, step, upd.Hits); err != nil {
			return err
		}
	}

	return s.chain(dbc, job, step, item)
}

// shrinkToHits narrows the job when the granule index reports fewer matches
// than initially estimated. A larger report never grows the job.
func (s *workService) shrinkToHits(dbc dbctx.Context, job *types.Job, queryStep *types.WorkflowStep, hits int) error {
	job.NumInputGranules = hits
	if err := s.jobs.UpdateFields(dbc, job.JobID, map[string]interface{}{
		"num_input_granules": hits,
	}); err != nil {
		return fmt.Errorf("shrink job granule count: %w", err)
	}
	next, err := s.steps.Get(dbc, job.JobID, queryStep.StepIndex+1)
	if err != nil {
		return fmt.Errorf("load next step: %w", err)
	}
	if next != nil && next.WorkItemCount > hits {
		if err := s.steps.UpdateFields(dbc, next.ID, map[string]interface{}{
			"work_item_count": hits,
		}); err != nil {
			return fmt.Errorf("shrink next step count: %w", err)
		}
	}
	return nil
}

func (s *workService) failItem(dbc dbctx.Context, job *types.Job, item *types.WorkItem, upd WorkItemUpdate) error {
	if item.RetryCount < s.cfg.RetryLimit {
		if err := s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
			"status":      types.WorkItemStatusReady,
			"retry_count": item.RetryCount + 1,
			"started_at":  nil,
		}); err != nil {
			return fmt.Errorf("requeue failed item: %w", err)
		}
		s.log.Info("Requeued failed work item",
			"workItemID", item.ID, "jobID", job.JobID, "retryCount", item.RetryCount+1)
		return nil
	}

	message := upd.ErrorMessage
	if message == "" {
		message = types.DefaultMessages[types.JobStatusFailed]
	}
	if err := s.items.UpdateFields(dbc, item.ID, map[string]interface{}{
		"status":  types.WorkItemStatusFailed,
		"message": types.Truncate(message),
	}); err != nil {
		return fmt.Errorf("persist failed item: %w", err)
	}
	return s.handleFinalFailure(dbc, job, message)
}

// handleFinalFailure routes a work item failure that has exhausted retries.
// Under ignoreErrors the job keeps running as long as other work remains;
// otherwise the job fails and all pending sibling items are canceled.
func (s *workService) handleFinalFailure(dbc dbctx.Context, job *types.Job, message string) error {
	if job.IgnoreErrors {
		pending, err := s.items.CountPendingInJob(dbc, job.JobID)
		if err != nil {
			return fmt.Errorf("count pending items: %w", err)
		}
		if pending > 0 {
			if job.Status != types.JobStatusRunningWithErrors {
				if err := ApplyEvent(job, EventWorkFailed, ApplyOptions{}); err != nil {
					return err
				}
				if err := s.jobs.Save(dbc, job); err != nil {
					return fmt.Errorf("save job running with errors: %w", err)
				}
			}
			return nil
		}
		// Nothing left to do; the failure decides the terminal state.
		return s.finalizeJob(dbc, job)
	}

	if err := ApplyEvent(job, EventWorkFailed, ApplyOptions{Message: message}); err != nil {
		return err
	}
	if err := s.jobs.Save(dbc, job); err != nil {
		return fmt.Errorf("save failed job: %w", err)
	}
	canceled, err := s.items.CancelPending(dbc, job.JobID)
	if err != nil {
		return fmt.Errorf("cancel pending items: %w", err)
	}
	s.log.Warn("Job failed after retry exhaustion",
		"jobID", job.JobID, "canceledItems", canceled, "message", message)
	return nil
}

// finalizeJob transitions a job with no pending work to its terminal state
// according to the completion policy.
func (s *workService) finalizeJob(dbc dbctx.Context, job *types.Job) error {
	anyFailed, err := s.items.AnyFailedInJob(dbc, job.JobID)
	if err != nil {
		return fmt.Errorf("check for failed items: %w", err)
	}
	event := s.policy(job, anyFailed)
	if err := ApplyEvent(job, event, ApplyOptions{}); err != nil {
		return err
	}
	if err := s.jobs.Save(dbc, job); err != nil {
		return fmt.Errorf("save completed job: %w", err)
	}
	s.log.Info("Job reached terminal state", "jobID", job.JobID, "status", job.Status)
	return nil
}
