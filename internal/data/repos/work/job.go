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

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) error
	// GetByJobID loads a job by its external UUID. With forUpdate the row is
	// locked until the surrounding transaction ends.
	GetByJobID(dbc dbctx.Context, jobID uuid.UUID, forUpdate bool) (*types.Job, error)
	GetByUsernameAndJobID(dbc dbctx.Context, username string, jobID uuid.UUID, forUpdate bool) (*types.Job, error)
	// List returns jobs newest-first with the total count for the filter.
	List(dbc dbctx.Context, username string, statuses []types.JobStatus, page, limit int) ([]*types.Job, int64, error)
	// NotUpdatedForMinutes returns running jobs whose updated_at is older than
	// now minus the given number of minutes.
	NotUpdatedForMinutes(dbc dbctx.Context, minutes int) ([]*types.Job, error)
	// TerminalOlderThan returns external ids of terminal jobs idle at least age.
	TerminalOlderThan(dbc dbctx.Context, age time.Duration, limit int) ([]uuid.UUID, error)
	Save(dbc dbctx.Context, job *types.Job) error
	UpdateFields(dbc dbctx.Context, jobID uuid.UUID, updates map[string]interface{}) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) error {
	if job == nil {
		return nil
	}
	job.Message = types.Truncate(job.Message)
	job.Request = types.Truncate(job.Request)
	if job.Message == "" {
		job.Message = types.DefaultMessages[job.Status]
	}
	if err := job.Validate(); err != nil {
		return err
	}
	return r.handle(dbc).Create(job).Error
}

func (r *jobRepo) GetByJobID(dbc dbctx.Context, jobID uuid.UUID, forUpdate bool) (*types.Job, error) {
	q := r.handle(dbc)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var job types.Job
	err := q.Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) GetByUsernameAndJobID(dbc dbctx.Context, username string, jobID uuid.UUID, forUpdate bool) (*types.Job, error) {
	q := r.handle(dbc)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var job types.Job
	err := q.Where("username = ? AND job_id = ?", username, jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) List(dbc dbctx.Context, username string, statuses []types.JobStatus, page, limit int) ([]*types.Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	q := r.handle(dbc).Model(&types.Job{})
	if username != "" {
		q = q.Where("username = ?", username)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var jobs []*types.Job
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *jobRepo) NotUpdatedForMinutes(dbc dbctx.Context, minutes int) ([]*types.Job, error) {
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	var jobs []*types.Job
	err := r.handle(dbc).
		Where("status = ? AND updated_at < ?", types.JobStatusRunning, cutoff).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRepo) TerminalOlderThan(dbc dbctx.Context, age time.Duration, limit int) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-age)
	terminal := []types.JobStatus{
		types.JobStatusSuccessful,
		types.JobStatusCompleteWithErrors,
		types.JobStatusFailed,
		types.JobStatusCanceled,
	}
	q := r.handle(dbc).Model(&types.Job{}).
		Where("status IN ? AND updated_at < ?", terminal, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("job_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *jobRepo) Save(dbc dbctx.Context, job *types.Job) error {
	if job == nil || job.ID == 0 {
		return errors.New("cannot save a job without an id")
	}
	job.Message = types.Truncate(job.Message)
	job.Request = types.Truncate(job.Request)
	if err := job.Validate(); err != nil {
		return err
	}
	job.UpdatedAt = time.Now()
	return r.handle(dbc).Save(job).Error
}

func (r *jobRepo) UpdateFields(dbc dbctx.Context, jobID uuid.UUID, updates map[string]interface{}) error {
	if jobID == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.handle(dbc).
		Model(&types.Job{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}
