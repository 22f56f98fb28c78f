package app

import (
	"gorm.io/gorm"

	"github.com/eosdis/harmony-workflow/internal/data/repos"
	"github.com/eosdis/harmony-workflow/internal/platform/logger"
)

type Repos struct {
	Job          repos.JobRepo
	JobLink      repos.JobLinkRepo
	WorkflowStep repos.WorkflowStepRepo
	WorkItem     repos.WorkItemRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Job:          repos.NewJobRepo(db, log),
		JobLink:      repos.NewJobLinkRepo(db, log),
		WorkflowStep: repos.NewWorkflowStepRepo(db, log),
		WorkItem:     repos.NewWorkItemRepo(db, log),
	}
}
