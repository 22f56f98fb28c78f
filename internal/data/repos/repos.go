package repos

import (
	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos/work"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type JobRepo = work.JobRepo
type JobLinkRepo = work.JobLinkRepo
type WorkflowStepRepo = work.WorkflowStepRepo
type WorkItemRepo = work.WorkItemRepo

type LinkFilter = work.LinkFilter

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo { return work.NewJobRepo(db, baseLog) }
func NewJobLinkRepo(db *gorm.DB, baseLog *logger.Logger) JobLinkRepo {
	return work.NewJobLinkRepo(db, baseLog)
}
func NewWorkflowStepRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowStepRepo {
	return work.NewWorkflowStepRepo(db, baseLog)
}
func NewWorkItemRepo(db *gorm.DB, baseLog *logger.Logger) WorkItemRepo {
	return work.NewWorkItemRepo(db, baseLog)
}
