package work

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type WorkItemRepo interface {
	Create(dbc dbctx.Context, items []*types.WorkItem) error
	GetByID(dbc dbctx.Context, id int64, forUpdate bool) (*types.WorkItem, error)
	// ClaimNextReady picks the next READY item for a service under the fair
	// per-user queuing policy and flips it to RUNNING. Must be called inside a
	// transaction; the claimed row stays locked until the transaction ends.
	ClaimNextReady(dbc dbctx.Context, serviceID string) (*types.WorkItem, error)
	GetByStepAndStatus(dbc dbctx.Context, jobID uuid.UUID, stepIndex int, statuses []types.WorkItemStatus) ([]*types.WorkItem, error)
	CountByStepAndStatus(dbc dbctx.Context, jobID uuid.UUID, stepIndex int, statuses []types.WorkItemStatus) (int64, error)
	// CountPendingInJob counts READY plus RUNNING items across all steps.
	CountPendingInJob(dbc dbctx.Context, jobID uuid.UUID) (int64, error)
	AnyFailedInJob(dbc dbctx.Context, jobID uuid.UUID) (bool, error)
	// CancelPending flips every READY and RUNNING item of the job to CANCELED.
	CancelPending(dbc dbctx.Context, jobID uuid.UUID) (int64, error)
	// RunningOlderThan returns RUNNING items whose updated_at is before cutoff.
	RunningOlderThan(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.WorkItem, error)
	// SuccessfulDurations returns the durations (ms) of successful items at
	// one (job, service, step), for outlier detection.
	SuccessfulDurations(dbc dbctx.Context, jobID uuid.UUID, serviceID string, stepIndex int) ([]int64, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error)
}

type workItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkItemRepo(db *gorm.DB, baseLog *logger.Logger) WorkItemRepo {
	return &workItemRepo{db: db, log: baseLog.With("repo", "WorkItemRepo")}
}

func (r *workItemRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *workItemRepo) Create(dbc dbctx.Context, items []*types.WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.handle(dbc).Create(&items).Error
}

func (r *workItemRepo) GetByID(dbc dbctx.Context, id int64, forUpdate bool) (*types.WorkItem, error) {
	q := r.handle(dbc)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item types.WorkItem
	err := q.Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// The selection walks: user who has waited longest (oldest max updated_at
// over all their active jobs, so serving a user rotates them to the back even
// when the served job has no further ready items), then that user's oldest
// job with synchronous jobs outranking asynchronous ones. The chosen job row
// is locked here, before the item row, so the claim takes its locks in the
// same job-then-item order as every other work item writer. SKIP LOCKED keeps
// two pollers from claiming one row.
const claimJobSQL = `
WITH candidates AS (
	SELECT wi.id, wi.job_id, j.username, j.is_async, j.updated_at AS job_updated_at
	FROM work_items wi
	JOIN jobs j ON j.job_id = wi.job_id
	WHERE wi.status = 'ready'
	  AND wi.service_id = ?
	  AND j.status IN ('accepted','running','running_with_errors','previewing')
), chosen_user AS (
	SELECT j.username
	FROM jobs j
	WHERE j.username IN (SELECT DISTINCT username FROM candidates)
	  AND j.status IN ('accepted','running','running_with_errors','previewing')
	GROUP BY j.username
	ORDER BY MAX(j.updated_at) ASC
	LIMIT 1
), chosen_job AS (
	SELECT c.job_id
	FROM candidates c
	JOIN chosen_user u ON u.username = c.username
	ORDER BY c.is_async ASC, c.job_updated_at ASC
	LIMIT 1
)
SELECT j.job_id
FROM jobs j
WHERE j.job_id = (SELECT job_id FROM chosen_job)
FOR UPDATE SKIP LOCKED
`

const claimItemSQL = `
SELECT wi.*
FROM work_items wi
WHERE wi.job_id = ?
  AND wi.status = 'ready'
  AND wi.service_id = ?
ORDER BY wi.id ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`

func (r *workItemRepo) ClaimNextReady(dbc dbctx.Context, serviceID string) (*types.WorkItem, error) {
	q := r.handle(dbc)
	var picked struct {
		JobID uuid.UUID
	}
	if err := q.Raw(claimJobSQL, serviceID).Scan(&picked).Error; err != nil {
		return nil, err
	}
	if picked.JobID == uuid.Nil {
		return nil, nil
	}
	var item types.WorkItem
	if err := q.Raw(claimItemSQL, picked.JobID, serviceID).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		// Another poller drained the job between the two locks.
		return nil, nil
	}
	now := time.Now()
	err := q.Model(&types.WorkItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":     types.WorkItemStatusRunning,
			"started_at": now,
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	// Send the claimed job to the back of its user's queue so successive
	// polls rotate across jobs and users.
	err = q.Model(&types.Job{}).
		Where("job_id = ?", item.JobID).
		Update("updated_at", now).Error
	if err != nil {
		return nil, err
	}
	item.Status = types.WorkItemStatusRunning
	item.StartedAt = &now
	item.UpdatedAt = now
	return &item, nil
}

func (r *workItemRepo) GetByStepAndStatus(dbc dbctx.Context, jobID uuid.UUID, stepIndex int, statuses []types.WorkItemStatus) ([]*types.WorkItem, error) {
	q := r.handle(dbc).Where("job_id = ? AND workflow_step_index = ?", jobID, stepIndex)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var items []*types.WorkItem
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *workItemRepo) CountByStepAndStatus(dbc dbctx.Context, jobID uuid.UUID, stepIndex int, statuses []types.WorkItemStatus) (int64, error) {
	q := r.handle(dbc).Model(&types.WorkItem{}).
		Where("job_id = ? AND workflow_step_index = ?", jobID, stepIndex)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *workItemRepo) CountPendingInJob(dbc dbctx.Context, jobID uuid.UUID) (int64, error) {
	var count int64
	err := r.handle(dbc).Model(&types.WorkItem{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]types.WorkItemStatus{types.WorkItemStatusReady, types.WorkItemStatusRunning}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *workItemRepo) AnyFailedInJob(dbc dbctx.Context, jobID uuid.UUID) (bool, error) {
	var count int64
	err := r.handle(dbc).Model(&types.WorkItem{}).
		Where("job_id = ? AND status = ?", jobID, types.WorkItemStatusFailed).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *workItemRepo) CancelPending(dbc dbctx.Context, jobID uuid.UUID) (int64, error) {
	res := r.handle(dbc).Model(&types.WorkItem{}).
		Where("job_id = ? AND status IN ?", jobID,
			[]types.WorkItemStatus{types.WorkItemStatusReady, types.WorkItemStatusRunning}).
		Updates(map[string]interface{}{
			"status":     types.WorkItemStatusCanceled,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *workItemRepo) RunningOlderThan(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.WorkItem, error) {
	q := r.handle(dbc).
		Where("status = ? AND updated_at < ?", types.WorkItemStatusRunning, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []*types.WorkItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *workItemRepo) SuccessfulDurations(dbc dbctx.Context, jobID uuid.UUID, serviceID string, stepIndex int) ([]int64, error) {
	var durations []int64
	err := r.handle(dbc).Model(&types.WorkItem{}).
		Where("job_id = ? AND service_id = ? AND workflow_step_index = ? AND status = ?",
			jobID, serviceID, stepIndex, types.WorkItemStatusSuccessful).
		Pluck("duration_ms", &durations).Error
	if err != nil {
		return nil, err
	}
	return durations, nil
}

func (r *workItemRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.handle(dbc).
		Model(&types.WorkItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *workItemRepo) DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	res := r.handle(dbc).Where("job_id IN ?", jobIDs).Delete(&types.WorkItem{})
	return res.RowsAffected, res.Error
}
