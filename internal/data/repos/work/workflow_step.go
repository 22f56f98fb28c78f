package work

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eosdis/harmony-workflow/internal/domain"
	"github.com/eosdis/harmony-workflow/internal/pkg/dbctx"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type WorkflowStepRepo interface {
	Create(dbc dbctx.Context, steps []*types.WorkflowStep) error
	Get(dbc dbctx.Context, jobID uuid.UUID, stepIndex int) (*types.WorkflowStep, error)
	GetAll(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WorkflowStep, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error)
}

type workflowStepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowStepRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowStepRepo {
	return &workflowStepRepo{db: db, log: baseLog.With("repo", "WorkflowStepRepo")}
}

func (r *workflowStepRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *workflowStepRepo) Create(dbc dbctx.Context, steps []*types.WorkflowStep) error {
	if len(steps) == 0 {
		return nil
	}
	return r.handle(dbc).Create(&steps).Error
}

func (r *workflowStepRepo) Get(dbc dbctx.Context, jobID uuid.UUID, stepIndex int) (*types.WorkflowStep, error) {
	var step types.WorkflowStep
	err := r.handle(dbc).
		Where("job_id = ? AND step_index = ?", jobID, stepIndex).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *workflowStepRepo) GetAll(dbc dbctx.Context, jobID uuid.UUID) ([]*types.WorkflowStep, error) {
	var steps []*types.WorkflowStep
	err := r.handle(dbc).
		Where("job_id = ?", jobID).
		Order("step_index ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *workflowStepRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
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
		Model(&types.WorkflowStep{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *workflowStepRepo) DeleteByJobIDs(dbc dbctx.Context, jobIDs []uuid.UUID) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	res := r.handle(dbc).Where("job_id IN ?", jobIDs).Delete(&types.WorkflowStep{})
	return res.RowsAffected, res.Error
}
